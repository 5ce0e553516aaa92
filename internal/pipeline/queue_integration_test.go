//go:build integration

package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/valkey-io/valkey-go"
)

func setupQueue(t *testing.T) valkey.Client {
	t.Helper()
	addr := os.Getenv("TEST_VALKEY_ADDR")
	if addr == "" {
		t.Skip("TEST_VALKEY_ADDR not set")
	}
	client, err := valkey.NewClient(valkey.ClientOption{InitAddress: []string{addr}})
	if err != nil {
		t.Skipf("valkey not available: %v", err)
	}
	t.Cleanup(client.Close)
	return client
}

func pendingFor(t *testing.T, client valkey.Client, consumer string) int {
	t.Helper()
	entries, err := client.Do(context.Background(), client.B().Xpending().
		Key(StreamName).Group(GroupName).Start("-").End("+").Count(100).Consumer(consumer).
		Build()).ToArray()
	if err != nil {
		t.Fatalf("xpending: %v", err)
	}
	return len(entries)
}

// consumeOne runs a consumer until handler has started on one request, then
// stops it and returns how many messages it left pending.
func consumeOne(t *testing.T, client valkey.Client, handler func(context.Context, AnalyzeRequest) error) int {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	id := "test-" + uuid.NewString()
	consumer := NewConsumer(client, id, logger)
	if err := consumer.EnsureGroup(context.Background()); err != nil {
		t.Fatalf("EnsureGroup: %v", err)
	}

	req := AnalyzeRequest{RequestID: uuid.New(), SubjectID: "11222333000181"}
	if _, err := NewProducer(client).Enqueue(context.Background(), req); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	handled := make(chan struct{}, 1)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = consumer.Consume(ctx, func(ctx context.Context, r AnalyzeRequest) error {
			if r.RequestID != req.RequestID {
				return nil
			}
			handled <- struct{}{}
			return handler(ctx, r)
		})
	}()

	select {
	case <-handled:
	case <-time.After(15 * time.Second):
		cancel()
		t.Fatal("request never consumed")
	}
	// Let a returning handler reach its ACK before stopping.
	time.Sleep(200 * time.Millisecond)
	cancel()
	<-done
	return pendingFor(t, client, id)
}

func TestConsumerAcksFailedAnalysis(t *testing.T) {
	client := setupQueue(t)
	n := consumeOne(t, client, func(context.Context, AnalyzeRequest) error {
		return errors.New("load documents: connection reset")
	})
	if n != 0 {
		t.Errorf("expected a failed analysis to be ACKed, %d pending", n)
	}
}

func TestConsumerLeavesInterruptedAnalysisPending(t *testing.T) {
	client := setupQueue(t)
	n := consumeOne(t, client, func(ctx context.Context, _ AnalyzeRequest) error {
		<-ctx.Done()
		return ctx.Err()
	})
	if n != 1 {
		t.Errorf("expected the interrupted analysis to stay pending, got %d", n)
	}
}
