package bot

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"deriv-trading-bot/internal/account"
	"deriv-trading-bot/internal/database"
	"deriv-trading-bot/internal/deriv"
	"deriv-trading-bot/internal/engine"
	"deriv-trading-bot/internal/events"
	"deriv-trading-bot/internal/scheduler"
	"deriv-trading-bot/internal/simulation"
)

// Store is the persistence surface the decision loop needs.
type Store interface {
	GetAccount(ctx context.Context) (*database.Account, error)
	PurgeExpiredCooldowns(ctx context.Context, now time.Time) (int, error)
}

// Bot runs the periodic decision cycle: reconcile, maybe resume, maybe
// simulate, and hand the cycle to the configured engine when the account
// is in a tradable state. Cycle failures are logged and never stop the
// loop.
type Bot struct {
	store     Store
	broker    deriv.BrokerClient
	accounts  *account.Manager
	scheduler *scheduler.Scheduler
	simulator *simulation.Simulator
	engine    engine.TradingEngine
	bus       *events.EventBus
	interval  time.Duration
	logger    zerolog.Logger

	stopChan chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// New creates the decision loop.
func New(
	store Store,
	broker deriv.BrokerClient,
	accounts *account.Manager,
	sched *scheduler.Scheduler,
	simulator *simulation.Simulator,
	eng engine.TradingEngine,
	bus *events.EventBus,
	interval time.Duration,
	logger zerolog.Logger,
) *Bot {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Bot{
		store:     store,
		broker:    broker,
		accounts:  accounts,
		scheduler: sched,
		simulator: simulator,
		engine:    eng,
		bus:       bus,
		interval:  interval,
		logger:    logger.With().Str("component", "bot").Logger(),
		stopChan:  make(chan struct{}),
	}
}

// Start launches the decision loop in its own goroutine.
func (b *Bot) Start(ctx context.Context) {
	b.wg.Add(1)
	go b.loop(ctx)

	if b.bus != nil {
		b.bus.Publish(events.Event{
			Type: events.EventBotStarted,
			Data: map[string]interface{}{"engine": b.engine.Name()},
		})
	}
	b.logger.Info().Str("engine", b.engine.Name()).Dur("interval", b.interval).Msg("decision loop started")
}

// Stop shuts the loop down and waits for the in-flight cycle to finish.
func (b *Bot) Stop() {
	b.stopOnce.Do(func() { close(b.stopChan) })
	b.wg.Wait()

	if b.bus != nil {
		b.bus.Publish(events.Event{Type: events.EventBotStopped, Data: map[string]interface{}{}})
	}
	b.logger.Info().Msg("decision loop stopped")
}

func (b *Bot) loop(ctx context.Context) {
	defer b.wg.Done()

	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	// First cycle runs immediately rather than one interval in.
	b.runCycle(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-b.stopChan:
			return
		case <-ticker.C:
			b.runCycle(ctx)
		}
	}
}

// runCycle executes one full decision cycle. Every error is absorbed here
// so a failing broker or database never kills the loop.
func (b *Bot) runCycle(ctx context.Context) {
	if err := b.cycle(ctx); err != nil {
		b.logger.Error().Err(err).Msg("cycle failed")
		if b.bus != nil {
			b.bus.PublishError("bot", err)
		}
	}
}

func (b *Bot) cycle(ctx context.Context) error {
	now := time.Now()
	if purged, err := b.store.PurgeExpiredCooldowns(ctx, now); err != nil {
		b.logger.Warn().Err(err).Msg("cooldown purge failed")
	} else if purged > 0 {
		b.logger.Debug().Int("purged", purged).Msg("expired cooldowns purged")
	}

	balance, err := b.broker.Balance(ctx)
	if err != nil {
		return err
	}
	acct, err := b.accounts.Reconcile(ctx, balance)
	if err != nil {
		return err
	}

	if acct.State == database.StatePaused {
		if _, err := b.simulator.MaybeRun(ctx, acct); err != nil {
			b.logger.Error().Err(err).Msg("pause simulation failed")
		}
		acct, _, err = b.accounts.MaybeResume(ctx)
		if err != nil {
			return err
		}
	}

	if !b.tradable(acct) {
		return nil
	}

	trade, err := b.engine.EvaluateAndExecute(ctx)
	if err != nil {
		return err
	}
	if trade == nil {
		return nil
	}

	if !trade.IsSimulated {
		if err := b.scheduler.UpdateHourlyPerformance(ctx, trade.Asset, trade); err != nil {
			b.logger.Error().Err(err).Str("asset", trade.Asset).Msg("hourly performance update failed")
		}
	}
	return nil
}

// tradable reports whether the account may open a contract this cycle.
func (b *Bot) tradable(acct *database.Account) bool {
	if acct.State != database.StateTrading {
		return false
	}
	if acct.InTrade {
		b.logger.Debug().Msg("previous trade still marked open, skipping cycle")
		return false
	}
	if !acct.Balance.GreaterThan(decimal.Zero) {
		b.logger.Warn().Msg("balance exhausted, skipping cycle")
		return false
	}
	if !acct.GoalTarget.IsPositive() || !acct.StoplossTarget.IsPositive() {
		b.logger.Warn().Msg("goal or stop-loss target not positive, skipping cycle")
		return false
	}
	return true
}
