package account

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"deriv-trading-bot/internal/database"
	"deriv-trading-bot/internal/scheduler"
)

// Notification kinds emitted by the state machine.
const (
	EventPaused  = "paused"
	EventResumed = "resumed"
)

// Store is the persistence surface the account manager needs. Account
// mutations go through UpdateAccount, which re-reads the latest persisted
// state and applies the change atomically.
type Store interface {
	GetAccount(ctx context.Context) (*database.Account, error)
	UpdateAccount(ctx context.Context, fn func(*database.Account) error) (*database.Account, error)
	SumFinalizedRealProfit(ctx context.Context) (decimal.Decimal, error)
	CreateBalanceAdjustment(ctx context.Context, adj *database.BalanceAdjustment) error
}

// Notifier delivers pause/resume messages. Failures are logged and
// swallowed; they never block a state transition.
type Notifier interface {
	Notify(ctx context.Context, kind string, acct *database.Account) error
}

// Config holds state machine parameters.
type Config struct {
	PauseHours int
}

var (
	goalPct        = decimal.RequireFromString("0.01")
	stoplossPct    = decimal.RequireFromString("0.02")
	driftThreshold = decimal.RequireFromString("0.01")
)

// CalculateGoal returns the profit target for a base balance.
func CalculateGoal(base decimal.Decimal) decimal.Decimal {
	return base.Mul(goalPct).Round(2)
}

// CalculateStoploss returns the stop-loss threshold for a base balance.
func CalculateStoploss(base decimal.Decimal) decimal.Decimal {
	return base.Mul(stoplossPct).Round(2)
}

// Manager owns the balance bookkeeping and the TRADING/PAUSED state
// machine.
type Manager struct {
	store    Store
	notifier Notifier
	config   Config
	logger   zerolog.Logger
	now      func() time.Time
}

// NewManager creates an account manager. notifier may be nil.
func NewManager(store Store, notifier Notifier, config Config, logger zerolog.Logger) *Manager {
	if config.PauseHours <= 0 {
		config.PauseHours = 24
	}
	return &Manager{
		store:    store,
		notifier: notifier,
		config:   config,
		logger:   logger.With().Str("component", "account").Logger(),
		now:      time.Now,
	}
}

// normalize fills in defaults: bases fall back to the current balance when
// non-positive, and targets are recomputed from their bases.
func normalize(acct *database.Account) {
	if !acct.GoalBase.IsPositive() {
		acct.GoalBase = acct.Balance
	}
	if !acct.StoplossBase.IsPositive() {
		acct.StoplossBase = acct.Balance
	}
	acct.GoalTarget = CalculateGoal(acct.GoalBase)
	acct.StoplossTarget = CalculateStoploss(acct.StoplossBase)
}

// InitializeBalance seeds the account with a fresh balance: both bases are
// rebased, accumulators reset, and the account returns to TRADING.
func (m *Manager) InitializeBalance(ctx context.Context, balance decimal.Decimal) (*database.Account, error) {
	acct, err := m.store.UpdateAccount(ctx, func(acct *database.Account) error {
		acct.Balance = balance.Round(2)
		acct.GoalBase = acct.Balance
		acct.StoplossBase = acct.Balance
		acct.AccumulatedLoss = decimal.Zero
		acct.AccumulatedGain = decimal.Zero
		acct.State = database.StateTrading
		acct.InTrade = false
		acct.PausedSince = nil
		acct.PauseUntil = nil
		acct.BestHour = nil
		acct.LastSimulationAt = nil
		normalize(acct)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("initializing balance: %w", err)
	}

	m.logger.Info().Str("balance", acct.Balance.String()).Msg("account balance initialized")
	return acct, nil
}

// ApplyTradeResult folds a finalized real trade into the account. Wins
// ratchet the stop-loss base and roll the goal forward once reached;
// losses grow the accumulated loss and may trip the pause transition.
func (m *Manager) ApplyTradeResult(ctx context.Context, trade *database.Trade) (*database.Account, error) {
	paused := false
	acct, err := m.store.UpdateAccount(ctx, func(acct *database.Account) error {
		normalize(acct)
		acct.Balance = acct.Balance.Add(trade.Profit).Round(2)

		if trade.Result == database.ResultWin {
			acct.AccumulatedGain = acct.AccumulatedGain.Add(trade.Profit).Round(2)
			acct.AccumulatedLoss = decimal.Zero

			// Ratchet: the stop-loss base only ever moves up.
			if acct.Balance.GreaterThan(acct.StoplossBase) {
				acct.StoplossBase = acct.Balance
			}
			// Goal rolls forward once achieved.
			if acct.Balance.Sub(acct.GoalBase).GreaterThanOrEqual(acct.GoalTarget) {
				acct.GoalBase = acct.Balance
				acct.GoalTarget = CalculateGoal(acct.GoalBase)
			}
			acct.StoplossTarget = CalculateStoploss(acct.StoplossBase)
			return nil
		}

		loss := acct.StoplossBase.Sub(acct.Balance)
		if loss.IsNegative() {
			loss = decimal.Zero
		}
		acct.AccumulatedLoss = loss.Round(2)

		if acct.AccumulatedLoss.GreaterThanOrEqual(acct.StoplossTarget) {
			m.pauseLocked(acct)
			paused = true
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("applying trade result: %w", err)
	}

	if paused {
		m.notify(ctx, EventPaused, acct)
	}
	return acct, nil
}

// pauseLocked applies the TRADING to PAUSED transition to an account held
// under the update lock.
func (m *Manager) pauseLocked(acct *database.Account) {
	now := m.now()
	until := now.Add(time.Duration(m.config.PauseHours) * time.Hour)

	acct.State = database.StatePaused
	acct.PausedSince = &now
	acct.PauseUntil = &until
	acct.BestHour = nil
	acct.LastSimulationAt = nil
	acct.InTrade = false

	m.logger.Warn().
		Str("accumulated_loss", acct.AccumulatedLoss.String()).
		Str("stoploss_target", acct.StoplossTarget.String()).
		Time("pause_until", until).
		Msg("stop-loss reached, trading paused")
}

// MaybeResume moves a paused account back to TRADING when the pause has
// elapsed and either no best hour is set or the local time has reached it.
// Both bases are rebased to the current balance on resume. Returns the
// account and whether a resume happened.
func (m *Manager) MaybeResume(ctx context.Context) (*database.Account, bool, error) {
	resumed := false
	acct, err := m.store.UpdateAccount(ctx, func(acct *database.Account) error {
		if acct.State != database.StatePaused {
			return nil
		}
		now := m.now()
		if acct.PauseUntil != nil && now.Before(*acct.PauseUntil) {
			return nil
		}
		if acct.BestHour != nil && scheduler.BucketMinute(now) < *acct.BestHour {
			return nil
		}

		acct.State = database.StateTrading
		acct.AccumulatedLoss = decimal.Zero
		acct.GoalBase = acct.Balance
		acct.StoplossBase = acct.Balance
		acct.GoalTarget = CalculateGoal(acct.GoalBase)
		acct.StoplossTarget = CalculateStoploss(acct.StoplossBase)
		acct.PausedSince = nil
		acct.PauseUntil = nil
		acct.BestHour = nil
		resumed = true
		return nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("resuming account: %w", err)
	}

	if resumed {
		m.logger.Info().Str("balance", acct.Balance.String()).Msg("pause elapsed, trading resumed")
		m.notify(ctx, EventResumed, acct)
	}
	return acct, resumed, nil
}

// Reconcile compares the broker-reported balance against local
// bookkeeping. Drift beyond one cent is recorded as an audit row; the
// broker balance always wins and becomes the working balance.
func (m *Manager) Reconcile(ctx context.Context, realBalance decimal.Decimal) (*database.Account, error) {
	acct, err := m.store.GetAccount(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading account for reconciliation: %w", err)
	}

	base := acct.GoalBase
	if !base.IsPositive() {
		base = acct.Balance
	}
	profits, err := m.store.SumFinalizedRealProfit(ctx)
	if err != nil {
		return nil, fmt.Errorf("summing trade profits: %w", err)
	}
	expected := base.Add(profits).Round(2)

	difference := realBalance.Sub(expected).Round(2)
	if difference.Abs().GreaterThan(driftThreshold) {
		adj := &database.BalanceAdjustment{
			ExpectedBalance: expected,
			RealBalance:     realBalance,
			Difference:      difference,
			PreviousBalance: acct.Balance,
			Description:     "balance drift detected during reconciliation",
		}
		if err := m.store.CreateBalanceAdjustment(ctx, adj); err != nil {
			// The audit row is best-effort; the cycle proceeds on the
			// broker balance regardless.
			m.logger.Error().Err(err).Msg("failed to record balance adjustment")
		} else {
			m.logger.Warn().
				Str("expected", expected.String()).
				Str("real", realBalance.String()).
				Str("difference", difference.String()).
				Msg("balance drift recorded")
		}
	}

	acct, err = m.store.UpdateAccount(ctx, func(acct *database.Account) error {
		acct.Balance = realBalance.Round(2)
		normalize(acct)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("adopting broker balance: %w", err)
	}
	return acct, nil
}

// SetInTrade flips the in-trade flag.
func (m *Manager) SetInTrade(ctx context.Context, inTrade bool) error {
	_, err := m.store.UpdateAccount(ctx, func(acct *database.Account) error {
		acct.InTrade = inTrade
		return nil
	})
	return err
}

// TouchSimulation stamps the time of the latest simulation run.
func (m *Manager) TouchSimulation(ctx context.Context, at time.Time) error {
	_, err := m.store.UpdateAccount(ctx, func(acct *database.Account) error {
		acct.LastSimulationAt = &at
		return nil
	})
	return err
}

// SetBestHour records the simulator's winning asset and hour bucket.
func (m *Manager) SetBestHour(ctx context.Context, asset string, bestHour int, at time.Time) error {
	_, err := m.store.UpdateAccount(ctx, func(acct *database.Account) error {
		acct.SelectedAsset = asset
		acct.BestHour = &bestHour
		acct.LastSimulationAt = &at
		return nil
	})
	return err
}

func (m *Manager) notify(ctx context.Context, kind string, acct *database.Account) {
	if m.notifier == nil {
		return
	}
	if err := m.notifier.Notify(ctx, kind, acct); err != nil {
		m.logger.Warn().Err(err).Str("kind", kind).Msg("notification failed")
	}
}
