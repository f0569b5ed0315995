package risk

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"deriv-trading-bot/internal/database"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// fakeStore is an in-memory Store for tests.
type fakeStore struct {
	cooldowns   []database.Cooldown
	tradeCount  int
	failInserts int // fail the next N CreateCooldown calls
}

func (f *fakeStore) HasActiveCooldown(_ context.Context, asset string, now time.Time) (bool, error) {
	for _, cd := range f.cooldowns {
		if cd.Asset == asset && cd.ExpiresAt.After(now) {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) CreateCooldown(_ context.Context, cd *database.Cooldown) error {
	if f.failInserts > 0 {
		f.failInserts--
		return errors.New("insert failed")
	}
	f.cooldowns = append(f.cooldowns, *cd)
	return nil
}

func (f *fakeStore) CountRealTradesSince(_ context.Context, _ string, _ time.Time) (int, error) {
	return f.tradeCount, nil
}

func newTestManager(store *fakeStore) *Manager {
	return NewManager(store, DefaultConfig(), zerolog.Nop())
}

func TestAdaptiveStake(t *testing.T) {
	m := newTestManager(&fakeStore{})

	tests := []struct {
		name       string
		balance    string
		volatility string
		want       string
	}{
		{"zero volatility keeps full base risk", "10000", "0", "50"},
		{"half of max volatility discounts a quarter", "10000", "1.0", "37.5"},
		{"max volatility halves the stake", "10000", "2.0", "25"},
		{"volatility beyond max is capped", "10000", "10.0", "25"},
		{"small balance clamps to minimum", "100", "2.0", "0.25"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := m.AdaptiveStake(d(tt.balance), d(tt.volatility))
			if !got.Equal(d(tt.want)) {
				t.Errorf("AdaptiveStake(%s, %s) = %s, want %s", tt.balance, tt.volatility, got, tt.want)
			}
		})
	}
}

func TestAdaptiveStakeStaysWithinBounds(t *testing.T) {
	m := newTestManager(&fakeStore{})
	balance := d("10000")

	for _, vol := range []string{"0", "0.5", "1.0", "1.5", "2.0", "5.0"} {
		stake := m.AdaptiveStake(balance, d(vol))
		if stake.LessThan(balance.Mul(d("0.001"))) {
			t.Errorf("stake %s below 0.1%% of balance at volatility %s", stake, vol)
		}
		if stake.GreaterThan(balance.Mul(d("0.02"))) {
			t.Errorf("stake %s above 2%% of balance at volatility %s", stake, vol)
		}
	}
}

func TestCreateCooldownTruncatesReason(t *testing.T) {
	store := &fakeStore{}
	m := newTestManager(store)

	longReason := strings.Repeat("x", 55)
	if err := m.CreateCooldown(context.Background(), "R_100", longReason); err != nil {
		t.Fatalf("CreateCooldown() error = %v", err)
	}

	if len(store.cooldowns) != 1 {
		t.Fatalf("got %d cooldowns, want 1", len(store.cooldowns))
	}
	if got := len(store.cooldowns[0].Reason); got != 40 {
		t.Errorf("stored reason length = %d, want exactly 40", got)
	}
}

func TestCreateCooldownTruncatesOnRuneBoundary(t *testing.T) {
	store := &fakeStore{}
	m := newTestManager(store)

	// 45 two-byte runes; a byte-wise cut at 40 would split one in half.
	longReason := strings.Repeat("é", 45)
	if err := m.CreateCooldown(context.Background(), "R_100", longReason); err != nil {
		t.Fatalf("CreateCooldown() error = %v", err)
	}

	got := store.cooldowns[0].Reason
	if !utf8.ValidString(got) {
		t.Errorf("stored reason %q is not valid UTF-8", got)
	}
	if n := utf8.RuneCountInString(got); n != 40 {
		t.Errorf("stored reason has %d characters, want exactly 40", n)
	}
}

func TestCreateCooldownEmptyReasonGetsPlaceholder(t *testing.T) {
	store := &fakeStore{}
	m := newTestManager(store)

	if err := m.CreateCooldown(context.Background(), "R_100", ""); err != nil {
		t.Fatalf("CreateCooldown() error = %v", err)
	}
	if store.cooldowns[0].Reason != placeholderReason {
		t.Errorf("stored reason = %q, want placeholder %q", store.cooldowns[0].Reason, placeholderReason)
	}
}

func TestCreateCooldownRetriesWithPlaceholder(t *testing.T) {
	store := &fakeStore{failInserts: 1}
	m := newTestManager(store)

	if err := m.CreateCooldown(context.Background(), "R_100", "volatile"); err != nil {
		t.Fatalf("CreateCooldown() error after retry = %v", err)
	}
	if store.cooldowns[0].Reason != placeholderReason {
		t.Errorf("retry stored reason = %q, want placeholder", store.cooldowns[0].Reason)
	}

	// Both attempts failing propagates the error.
	store = &fakeStore{failInserts: 2}
	m = newTestManager(store)
	if err := m.CreateCooldown(context.Background(), "R_100", "volatile"); err == nil {
		t.Error("CreateCooldown() = nil, want error when both inserts fail")
	}
}

func TestCooldownActive(t *testing.T) {
	store := &fakeStore{}
	m := newTestManager(store)
	ctx := context.Background()

	active, err := m.CooldownActive(ctx, "R_100")
	if err != nil {
		t.Fatalf("CooldownActive() error = %v", err)
	}
	if active {
		t.Error("CooldownActive() = true with no cooldowns")
	}

	if err := m.CreateCooldown(ctx, "R_100", "test"); err != nil {
		t.Fatalf("CreateCooldown() error = %v", err)
	}
	active, err = m.CooldownActive(ctx, "R_100")
	if err != nil {
		t.Fatalf("CooldownActive() error = %v", err)
	}
	if !active {
		t.Error("CooldownActive() = false after creating a cooldown")
	}

	// Expired cooldowns do not count.
	store.cooldowns[0].ExpiresAt = time.Now().Add(-time.Minute)
	active, _ = m.CooldownActive(ctx, "R_100")
	if active {
		t.Error("CooldownActive() = true for an expired cooldown")
	}
}

func TestWithinRateLimit(t *testing.T) {
	store := &fakeStore{tradeCount: 0}
	m := newTestManager(store)
	ctx := context.Background()

	ok, err := m.WithinRateLimit(ctx, "R_100")
	if err != nil {
		t.Fatalf("WithinRateLimit() error = %v", err)
	}
	if !ok {
		t.Error("WithinRateLimit() = false with no recent trades")
	}

	store.tradeCount = 1
	ok, _ = m.WithinRateLimit(ctx, "R_100")
	if ok {
		t.Error("WithinRateLimit() = true at the per-window maximum")
	}
}

func TestIsMicroCongested(t *testing.T) {
	tests := []struct {
		name        string
		momentumPct string
		ticks       int
		want        bool
	}{
		{"flat and busy", "0.005", 20, true},
		{"flat negative and busy", "-0.005", 20, true},
		{"flat but quiet", "0.005", 5, false},
		{"moving and busy", "0.5", 20, false},
		{"exactly at variation threshold", "0.01", 20, false},
		{"exactly at tick threshold", "0.005", 10, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsMicroCongested(d(tt.momentumPct), tt.ticks); got != tt.want {
				t.Errorf("IsMicroCongested(%s, %d) = %v, want %v", tt.momentumPct, tt.ticks, got, tt.want)
			}
		})
	}
}
