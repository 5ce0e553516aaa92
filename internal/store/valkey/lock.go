package valkey

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/valkey-io/valkey-go"
)

const (
	lockKeyPrefix    = "creditlens:lock:index:"
	lockPollInterval = 200 * time.Millisecond
)

// Compare-and-delete so an expired holder never releases a successor's lock.
const unlockScript = `if redis.call("GET", KEYS[1]) == ARGV[1] then return redis.call("DEL", KEYS[1]) else return 0 end`

// Locker is a single-instance Valkey lock keyed by index content hash. The TTL
// frees the lock if its holder dies mid-build.
type Locker struct {
	client valkey.Client
	ttl    time.Duration
}

func NewLocker(client valkey.Client, ttl time.Duration) *Locker {
	if ttl < time.Second {
		ttl = time.Second
	}
	return &Locker{client: client, ttl: ttl}
}

// Lock blocks until the lock for key is held or ctx is done.
func (l *Locker) Lock(ctx context.Context, key string) (func(), error) {
	lockKey := lockKeyPrefix + key
	token := uuid.NewString()

	ticker := time.NewTicker(lockPollInterval)
	defer ticker.Stop()
	for {
		err := l.client.Do(ctx, l.client.B().Set().Key(lockKey).Value(token).Nx().Ex(l.ttl).Build()).Error()
		if err == nil {
			return func() { l.release(lockKey, token) }, nil
		}
		if !valkey.IsValkeyNil(err) {
			return nil, fmt.Errorf("acquire lock %s: %w", key, err)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (l *Locker) release(lockKey, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = l.client.Do(ctx, l.client.B().Eval().Script(unlockScript).Numkeys(1).Key(lockKey).Arg(token).Build()).Error()
}
