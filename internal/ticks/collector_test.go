package ticks

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"deriv-trading-bot/internal/database"
	"deriv-trading-bot/internal/deriv"
)

type fakeStore struct {
	mu    sync.Mutex
	ticks []database.Tick
}

func (f *fakeStore) EnabledAssets(_ context.Context) ([]database.Asset, error) {
	return []database.Asset{{Name: "R_100", Enabled: true}}, nil
}

func (f *fakeStore) UpsertTick(_ context.Context, tick *database.Tick) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ticks = append(f.ticks, *tick)
	return nil
}

func (f *fakeStore) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.ticks)
}

// streamingBroker emits one tick per millisecond, optionally failing the
// first subscription.
type streamingBroker struct {
	deriv.MockClient

	mu        sync.Mutex
	failFirst bool
	attempts  int
}

func (b *streamingBroker) StreamTicks(ctx context.Context, symbol string, out chan<- deriv.StreamTick) error {
	b.mu.Lock()
	b.attempts++
	fail := b.failFirst && b.attempts == 1
	b.mu.Unlock()
	if fail {
		return errors.New("stream interrupted")
	}

	epoch := time.Now().Unix()
	for i := 0; ; i++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case out <- deriv.StreamTick{
			Symbol:  symbol,
			Epoch:   epoch + int64(i),
			Quote:   decimal.RequireFromString("100.12345"),
			PipSize: 5,
		}:
		}
		time.Sleep(time.Millisecond)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func TestCollectorStopsAtTickBound(t *testing.T) {
	store := &fakeStore{}
	broker := &streamingBroker{}
	col := NewCollector(store, broker, Config{MaxTicks: 5, ReconnectDelay: time.Millisecond}, zerolog.Nop())

	if err := col.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	waitFor(t, func() bool { return col.Stored() >= 5 })
	col.Stop()

	if got := col.Stored(); got != 5 {
		t.Errorf("stored %d ticks, want exactly 5", got)
	}
	if store.count() != 5 {
		t.Errorf("persisted %d ticks, want 5", store.count())
	}
}

func TestCollectorResubscribesAfterStreamFailure(t *testing.T) {
	store := &fakeStore{}
	broker := &streamingBroker{failFirst: true}
	col := NewCollector(store, broker, Config{MaxTicks: 3, ReconnectDelay: time.Millisecond}, zerolog.Nop())

	if err := col.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	waitFor(t, func() bool { return col.Stored() >= 3 })
	col.Stop()

	broker.mu.Lock()
	attempts := broker.attempts
	broker.mu.Unlock()
	if attempts < 2 {
		t.Errorf("subscription attempts = %d, want a resubscribe after the failure", attempts)
	}
}
