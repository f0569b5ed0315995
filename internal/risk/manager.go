package risk

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"deriv-trading-bot/internal/database"
)

// Reason stored when a cooldown is created without one.
const placeholderReason = "no reason provided"

// Column width of the cooldown reason.
const maxReasonLen = 40

// Store is the persistence surface the risk manager needs.
type Store interface {
	HasActiveCooldown(ctx context.Context, asset string, now time.Time) (bool, error)
	CreateCooldown(ctx context.Context, cd *database.Cooldown) error
	CountRealTradesSince(ctx context.Context, asset string, since time.Time) (int, error)
}

// Config holds risk manager parameters.
type Config struct {
	BaseRisk           decimal.Decimal // Fraction of balance risked per trade
	MaxVolatility      decimal.Decimal // Volatility at which the stake discount bottoms out
	CooldownMinutes    int
	MaxTradesPerWindow int
	RateWindowMinutes  int
}

// DefaultConfig returns the standard risk parameters.
func DefaultConfig() Config {
	return Config{
		BaseRisk:           decimal.RequireFromString("0.005"),
		MaxVolatility:      decimal.RequireFromString("2.0"),
		CooldownMinutes:    5,
		MaxTradesPerWindow: 1,
		RateWindowMinutes:  60,
	}
}

// Manager sizes positions and gates trading per asset.
type Manager struct {
	store  Store
	config Config
	logger zerolog.Logger
	now    func() time.Time
}

// NewManager creates a risk manager.
func NewManager(store Store, config Config, logger zerolog.Logger) *Manager {
	return &Manager{
		store:  store,
		config: config,
		logger: logger.With().Str("component", "risk").Logger(),
		now:    time.Now,
	}
}

var (
	half        = decimal.RequireFromString("0.5")
	minStakePct = decimal.RequireFromString("0.001")
	maxStakePct = decimal.RequireFromString("0.02")
	one         = decimal.NewFromInt(1)
)

// AdaptiveStake sizes a stake from balance and market volatility. Higher
// volatility discounts the stake down to half the base risk; the result is
// clamped to [0.1%, 2%] of balance and rounded to cents.
func (m *Manager) AdaptiveStake(balance, volatility decimal.Decimal) decimal.Decimal {
	ratio := one
	if m.config.MaxVolatility.IsPositive() {
		ratio = volatility.Div(m.config.MaxVolatility)
		if ratio.GreaterThan(one) {
			ratio = one
		}
		if ratio.IsNegative() {
			ratio = decimal.Zero
		}
	}

	stake := balance.Mul(m.config.BaseRisk).Mul(one.Sub(half.Mul(ratio)))

	min := balance.Mul(minStakePct)
	max := balance.Mul(maxStakePct)
	if stake.LessThan(min) {
		stake = min
	}
	if stake.GreaterThan(max) {
		stake = max
	}
	return stake.Round(2)
}

// CooldownActive reports whether the asset has an unexpired cooldown.
func (m *Manager) CooldownActive(ctx context.Context, asset string) (bool, error) {
	return m.store.HasActiveCooldown(ctx, asset, m.now())
}

// CreateCooldown suppresses trading on the asset for the configured
// minutes. The reason is hard-truncated to the column width; an empty
// reason gets a placeholder. On insert failure the write is retried once
// with the placeholder before the error propagates.
func (m *Manager) CreateCooldown(ctx context.Context, asset, reason string) error {
	reason = sanitizeReason(reason)
	expiresAt := m.now().Add(time.Duration(m.config.CooldownMinutes) * time.Minute)

	cd := &database.Cooldown{Asset: asset, Reason: reason, ExpiresAt: expiresAt}
	err := m.store.CreateCooldown(ctx, cd)
	if err == nil {
		return nil
	}

	m.logger.Warn().Err(err).Str("asset", asset).Msg("cooldown insert failed, retrying with placeholder reason")
	cd = &database.Cooldown{Asset: asset, Reason: placeholderReason, ExpiresAt: expiresAt}
	return m.store.CreateCooldown(ctx, cd)
}

func sanitizeReason(reason string) string {
	if reason == "" {
		return placeholderReason
	}
	// The column width counts characters, so truncate on rune boundaries.
	runes := []rune(reason)
	if len(runes) > maxReasonLen {
		return string(runes[:maxReasonLen])
	}
	return reason
}

// WithinRateLimit reports whether the asset has room for another real
// trade in the trailing window.
func (m *Manager) WithinRateLimit(ctx context.Context, asset string) (bool, error) {
	since := m.now().Add(-time.Duration(m.config.RateWindowMinutes) * time.Minute)
	count, err := m.store.CountRealTradesSince(ctx, asset, since)
	if err != nil {
		return false, err
	}
	return count < m.config.MaxTradesPerWindow, nil
}

var (
	congestionVariation = decimal.RequireFromString("0.01")
	congestionTicks     = 10
)

// IsMicroCongested flags a dead market with noisy tick volume: momentum
// percentage below the variation threshold while plenty of ticks arrived.
func IsMicroCongested(momentumPct decimal.Decimal, ticksAnalyzed int) bool {
	return momentumPct.Abs().LessThan(congestionVariation) && ticksAnalyzed > congestionTicks
}
