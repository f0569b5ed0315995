package simulation

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"deriv-trading-bot/internal/database"
	"deriv-trading-bot/internal/events"
)

const contractIDWidth = 40

// Store is the persistence surface the simulator needs.
type Store interface {
	EnabledAssets(ctx context.Context) ([]database.Asset, error)
	TicksSince(ctx context.Context, asset string, since time.Time) ([]database.Tick, error)
	CreateTrade(ctx context.Context, trade *database.Trade) error
	ContractIDExists(ctx context.Context, contractID string) (bool, error)
	CreateSimulationHourResult(ctx context.Context, res *database.SimulationHourResult) error
	UpdateAssetSimulation(ctx context.Context, name string, winrate decimal.Decimal, bestHour *int, at time.Time) error
}

// Accounts is the account surface the simulator needs.
type Accounts interface {
	SetBestHour(ctx context.Context, asset string, bestHour int, at time.Time) error
	TouchSimulation(ctx context.Context, at time.Time) error
}

// Config holds simulator parameters.
type Config struct {
	Interval      time.Duration // Minimum time between runs
	TradesPerHour int           // Synthetic trades per hour bucket
	HoldTicks     int           // Ticks a synthetic trade is held
}

// DefaultConfig returns the standard simulator parameters.
func DefaultConfig() Config {
	return Config{
		Interval:      time.Hour,
		TradesPerHour: 5,
		HoldTicks:     5,
	}
}

// HourResult summarizes one simulated hour bucket. HourBucket is
// minute-of-day at the top of the hour.
type HourResult struct {
	Asset      string
	HourBucket int
	Winrate    decimal.Decimal
	Total      int
	Won        int
	Lost       int
}

// Simulator replays recent tick history while the account is paused to
// estimate the best hour to resume trading.
type Simulator struct {
	store    Store
	accounts Accounts
	bus      *events.EventBus
	config   Config
	logger   zerolog.Logger
	now      func() time.Time
}

// New creates a simulator. bus may be nil.
func New(store Store, accounts Accounts, bus *events.EventBus, config Config, logger zerolog.Logger) *Simulator {
	if config.HoldTicks < 1 {
		config.HoldTicks = 1
	}
	if config.TradesPerHour < 1 {
		config.TradesPerHour = 5
	}
	return &Simulator{
		store:    store,
		accounts: accounts,
		bus:      bus,
		config:   config,
		logger:   logger.With().Str("component", "simulation").Logger(),
		now:      time.Now,
	}
}

// MaybeRun executes a simulation when the account is paused and enough
// time has passed since the previous run. Returns whether a run happened.
func (s *Simulator) MaybeRun(ctx context.Context, acct *database.Account) (bool, error) {
	if acct.State != database.StatePaused {
		return false, nil
	}
	now := s.now()
	if acct.LastSimulationAt != nil && now.Sub(*acct.LastSimulationAt) < s.config.Interval {
		return false, nil
	}

	if err := s.accounts.TouchSimulation(ctx, now); err != nil {
		return false, fmt.Errorf("stamping simulation run: %w", err)
	}
	_, err := s.Run(ctx)
	return true, err
}

// Run replays the trailing 24 hours of ticks for every enabled asset,
// persists per-hour summaries and synthetic trades, and promotes the best
// (winrate, trade count) bucket to the account's best hour and selected
// asset. Returns the winning bucket, or nil when no asset produced one.
func (s *Simulator) Run(ctx context.Context) (*HourResult, error) {
	now := s.now()
	since := now.Add(-24 * time.Hour)
	runID := uuid.New().String()

	assets, err := s.store.EnabledAssets(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading enabled assets: %w", err)
	}
	if len(assets) == 0 {
		s.logger.Info().Msg("no enabled assets to simulate")
		return nil, nil
	}

	var globalBest *HourResult
	processed := make(map[string]bool)

	for _, asset := range assets {
		best, err := s.runAsset(ctx, asset.Name, runID, since, now)
		if err != nil {
			return nil, err
		}
		if best == nil {
			continue
		}
		processed[asset.Name] = true

		bucket := best.HourBucket
		if err := s.store.UpdateAssetSimulation(ctx, asset.Name, best.Winrate, &bucket, now); err != nil {
			return nil, fmt.Errorf("recording simulation on asset %s: %w", asset.Name, err)
		}
		if betterThan(best, globalBest) {
			globalBest = best
		}
	}

	// Assets that produced no usable bucket are zeroed so stale winrates
	// cannot influence later selection.
	for _, asset := range assets {
		if processed[asset.Name] {
			continue
		}
		if err := s.store.UpdateAssetSimulation(ctx, asset.Name, decimal.Zero, nil, now); err != nil {
			return nil, fmt.Errorf("zeroing simulation on asset %s: %w", asset.Name, err)
		}
	}

	if globalBest == nil {
		s.logger.Info().Msg("simulation produced no hour buckets")
		return nil, nil
	}

	if err := s.accounts.SetBestHour(ctx, globalBest.Asset, globalBest.HourBucket, now); err != nil {
		return nil, fmt.Errorf("promoting best hour: %w", err)
	}
	if s.bus != nil {
		s.bus.PublishSimulationFinished(runID, globalBest.Asset, globalBest.HourBucket, globalBest.Winrate.String())
	}

	s.logger.Info().
		Str("asset", globalBest.Asset).
		Int("best_hour", globalBest.HourBucket).
		Str("winrate", globalBest.Winrate.String()).
		Msg("simulation finished")
	return globalBest, nil
}

func betterThan(a, b *HourResult) bool {
	if b == nil {
		return true
	}
	if !a.Winrate.Equal(b.Winrate) {
		return a.Winrate.GreaterThan(b.Winrate)
	}
	return a.Total > b.Total
}

// runAsset simulates every hour bucket of one asset and returns its best
// bucket, or nil when no bucket produced trades.
func (s *Simulator) runAsset(ctx context.Context, asset, runID string, since, now time.Time) (*HourResult, error) {
	ticks, err := s.store.TicksSince(ctx, asset, since)
	if err != nil {
		return nil, fmt.Errorf("loading ticks for %s: %w", asset, err)
	}
	if len(ticks) <= s.config.HoldTicks {
		return nil, nil
	}

	byHour := make(map[int][]database.Tick)
	for _, tick := range ticks {
		hour := time.Unix(tick.Epoch, 0).Local().Hour()
		byHour[hour] = append(byHour[hour], tick)
	}

	hours := make([]int, 0, len(byHour))
	for hour := range byHour {
		hours = append(hours, hour)
	}
	sort.Ints(hours)

	var best *HourResult
	for _, hour := range hours {
		won, lost, err := s.simulateBucket(ctx, asset, runID, byHour[hour])
		if err != nil {
			return nil, err
		}
		total := won + lost
		if total == 0 {
			continue
		}

		winrate := decimal.NewFromInt(int64(won)).
			Div(decimal.NewFromInt(int64(total))).
			Mul(decimal.NewFromInt(100)).
			Round(2)

		result := &HourResult{
			Asset:      asset,
			HourBucket: hour * 60,
			Winrate:    winrate,
			Total:      total,
			Won:        won,
			Lost:       lost,
		}
		if err := s.store.CreateSimulationHourResult(ctx, &database.SimulationHourResult{
			RunID:       runID,
			Asset:       asset,
			HourBucket:  result.HourBucket,
			Winrate:     winrate,
			TotalTrades: total,
			WonTrades:   won,
		}); err != nil {
			return nil, fmt.Errorf("saving hour result: %w", err)
		}

		if betterThan(result, best) {
			best = result
		}
	}
	return best, nil
}

// simulateBucket synthesizes up to the configured number of trades from
// one hour's ticks: entry ticks are sampled at an even step starting at
// index 1, direction follows the immediately preceding tick's momentum
// (flat defaults to CALL), and the exit price after the hold window
// decides the outcome. A flat exit always counts as a loss.
func (s *Simulator) simulateBucket(ctx context.Context, asset, runID string, ticks []database.Tick) (won, lost int, err error) {
	if len(ticks) <= s.config.HoldTicks {
		return 0, 0, nil
	}

	universe := len(ticks) - s.config.HoldTicks
	if universe < 1 {
		universe = 1
	}
	step := universe / s.config.TradesPerHour
	if step < 1 {
		step = 1
	}

	generated := 0
	for i := 1; i < len(ticks)-s.config.HoldTicks; i += step {
		if generated >= s.config.TradesPerHour {
			break
		}

		entry := ticks[i]
		prev := ticks[i-1]
		exit := ticks[i+s.config.HoldTicks]

		// Flat previous movement defaults to CALL.
		direction := "CALL"
		if entry.Price.LessThan(prev.Price) {
			direction = "PUT"
		}

		var result string
		switch {
		case exit.Price.Equal(entry.Price):
			// Flat outcomes always lose; tie-break policy, not a bug.
			result = database.ResultLoss
		case direction == "CALL" && exit.Price.GreaterThan(entry.Price),
			direction == "PUT" && exit.Price.LessThan(entry.Price):
			result = database.ResultWin
		default:
			result = database.ResultLoss
		}

		move := exit.Price.Sub(entry.Price).Round(5)
		confidence := decimal.Zero
		if entry.Price.IsPositive() {
			confidence = move.Abs().Div(entry.Price).Mul(decimal.NewFromInt(100)).Round(2)
		}
		profit := move.Abs().Round(2)
		if result == database.ResultLoss {
			profit = profit.Neg()
		}

		contractID, err := s.contractID(ctx, asset, entry.Epoch, exit.Epoch, runID)
		if err != nil {
			return won, lost, err
		}

		closedAt := time.Unix(exit.Epoch, 0)
		trade := &database.Trade{
			Asset:       asset,
			Direction:   direction,
			EntryPrice:  entry.Price,
			ClosePrice:  exit.Price,
			Stake:       decimal.Zero,
			Confidence:  confidence,
			Result:      result,
			ContractID:  contractID,
			OpenedAt:    time.Unix(entry.Epoch, 0),
			ClosedAt:    &closedAt,
			Profit:      profit,
			IsSimulated: true,
		}
		if err := s.store.CreateTrade(ctx, trade); err != nil {
			return won, lost, fmt.Errorf("saving simulated trade: %w", err)
		}

		if result == database.ResultWin {
			won++
		} else {
			lost++
		}
		generated++
	}
	return won, lost, nil
}

// contractID derives a deterministic, collision-resistant contract id from
// the trade's identity, truncated to the storage width. On the unlikely
// collision with an existing row the hash is salted and recomputed.
func (s *Simulator) contractID(ctx context.Context, asset string, entryEpoch, exitEpoch int64, runID string) (string, error) {
	id := hashContractID(asset, entryEpoch, exitEpoch, runID, "")
	exists, err := s.store.ContractIDExists(ctx, id)
	if err != nil {
		return "", fmt.Errorf("checking contract id: %w", err)
	}
	if !exists {
		return id, nil
	}

	salted := hashContractID(asset, entryEpoch, exitEpoch, runID, uuid.New().String())
	s.logger.Warn().Str("contract_id", id).Msg("contract id collision, salting")
	return salted, nil
}

func hashContractID(asset string, entryEpoch, exitEpoch int64, runID, salt string) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%d|%d|%s|%s", asset, entryEpoch, exitEpoch, runID, salt)))
	return hex.EncodeToString(sum[:])[:contractIDWidth]
}
