package valkey

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/valkey-io/valkey-go"

	"github.com/maraichr/creditlens/pkg/models"
)

const resultKeyPrefix = "creditlens:result:"

// ErrResultNotFound means the result expired or never existed.
var ErrResultNotFound = errors.New("analysis result not found")

// ResultStore hands finished runs to async callers. Entries expire after ttl;
// it is not an archive.
type ResultStore struct {
	client valkey.Client
	ttl    time.Duration
}

func NewResultStore(client valkey.Client, ttl time.Duration) *ResultStore {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &ResultStore{client: client, ttl: ttl}
}

// Save stores the state under its request id.
func (r *ResultStore) Save(ctx context.Context, state *models.RunState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	key := resultKeyPrefix + state.RequestID.String()
	if err := r.client.Do(ctx, r.client.B().Set().Key(key).Value(string(data)).Ex(r.ttl).Build()).Error(); err != nil {
		return fmt.Errorf("save result %s: %w", state.RequestID, err)
	}
	return nil
}

// Get returns ErrResultNotFound when nothing is retained for id.
func (r *ResultStore) Get(ctx context.Context, id uuid.UUID) (*models.RunState, error) {
	data, err := r.client.Do(ctx, r.client.B().Get().Key(resultKeyPrefix+id.String()).Build()).AsBytes()
	if err != nil {
		if valkey.IsValkeyNil(err) {
			return nil, ErrResultNotFound
		}
		return nil, fmt.Errorf("load result %s: %w", id, err)
	}

	var state models.RunState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("decode result %s: %w", id, err)
	}
	return &state, nil
}
