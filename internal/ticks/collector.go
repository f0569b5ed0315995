package ticks

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"deriv-trading-bot/internal/database"
	"deriv-trading-bot/internal/deriv"
)

// Store is the persistence surface the collector needs.
type Store interface {
	EnabledAssets(ctx context.Context) ([]database.Asset, error)
	UpsertTick(ctx context.Context, tick *database.Tick) error
}

// Config holds collector parameters.
type Config struct {
	MaxTicks       int           // Stop after this many ticks per asset, 0 = unlimited
	ReconnectDelay time.Duration // Wait before re-subscribing a failed stream
}

// Collector subscribes to the live tick stream of every enabled asset and
// persists each tick. Duplicate (asset, epoch) deliveries collapse into
// the existing row, so reconnects never double-count.
type Collector struct {
	store  Store
	broker deriv.BrokerClient
	config Config
	logger zerolog.Logger

	wg     sync.WaitGroup
	cancel context.CancelFunc
	stored atomic.Int64
}

// NewCollector creates a tick collector.
func NewCollector(store Store, broker deriv.BrokerClient, config Config, logger zerolog.Logger) *Collector {
	if config.ReconnectDelay <= 0 {
		config.ReconnectDelay = 5 * time.Second
	}
	return &Collector{
		store:  store,
		broker: broker,
		config: config,
		logger: logger.With().Str("component", "ticks").Logger(),
	}
}

// Start launches one streaming goroutine per enabled asset. It returns
// immediately; use Stop to shut the streams down.
func (c *Collector) Start(ctx context.Context) error {
	assets, err := c.store.EnabledAssets(ctx)
	if err != nil {
		return err
	}

	ctx, c.cancel = context.WithCancel(ctx)
	for _, asset := range assets {
		c.wg.Add(1)
		go func(symbol string) {
			defer c.wg.Done()
			c.collect(ctx, symbol)
		}(asset.Name)
	}

	c.logger.Info().Int("assets", len(assets)).Msg("tick collection started")
	return nil
}

// Stop cancels every stream and waits for the goroutines to drain.
func (c *Collector) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
	c.logger.Info().Int64("ticks_stored", c.stored.Load()).Msg("tick collection stopped")
}

// Stored returns the number of ticks persisted so far.
func (c *Collector) Stored() int64 {
	return c.stored.Load()
}

// collect runs the subscribe-consume loop for one asset, resubscribing
// after stream failures until ctx is cancelled or the tick bound is hit.
func (c *Collector) collect(ctx context.Context, symbol string) {
	log := c.logger.With().Str("asset", symbol).Logger()
	var count int

	for {
		if ctx.Err() != nil {
			return
		}

		stream := make(chan deriv.StreamTick, 64)
		errCh := make(chan error, 1)
		go func() {
			errCh <- c.broker.StreamTicks(ctx, symbol, stream)
		}()

	consume:
		for {
			select {
			case <-ctx.Done():
				return
			case err := <-errCh:
				if ctx.Err() != nil {
					return
				}
				log.Warn().Err(err).Dur("retry_in", c.config.ReconnectDelay).Msg("tick stream dropped")
				break consume
			case tick := <-stream:
				if err := c.persist(ctx, tick); err != nil {
					log.Error().Err(err).Int64("epoch", tick.Epoch).Msg("failed to store tick")
					continue
				}
				count++
				if c.config.MaxTicks > 0 && count >= c.config.MaxTicks {
					log.Info().Int("ticks", count).Msg("tick bound reached, stopping stream")
					return
				}
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(c.config.ReconnectDelay):
		}
	}
}

func (c *Collector) persist(ctx context.Context, tick deriv.StreamTick) error {
	row := &database.Tick{
		Asset:      tick.Symbol,
		Epoch:      tick.Epoch,
		Price:      tick.Quote.Round(5),
		PipSize:    tick.PipSize,
		RawPayload: tick.RawPayload,
	}
	err := database.WithRetry(ctx, func() error {
		return c.store.UpsertTick(ctx, row)
	})
	if err == nil {
		c.stored.Add(1)
	}
	return err
}
