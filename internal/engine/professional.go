package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"deriv-trading-bot/internal/database"
	"deriv-trading-bot/internal/deriv"
	"deriv-trading-bot/internal/indicators"
	"deriv-trading-bot/internal/risk"
	"deriv-trading-bot/internal/scoring"
)

// Indicator windows over the analysis tick series.
const (
	momentumPeriod    = 10
	volatilityPeriod  = 20
	emaPeriod         = 10
	rocPeriod         = 10
	consistencyPeriod = 10

	minPrices = 10
)

// Risk is the risk surface the professional engine needs.
type Risk interface {
	AdaptiveStake(balance, volatility decimal.Decimal) decimal.Decimal
	CooldownActive(ctx context.Context, asset string) (bool, error)
	CreateCooldown(ctx context.Context, asset, reason string) error
	WithinRateLimit(ctx context.Context, asset string) (bool, error)
}

// Confidence resolves the historical winrate expectation for trading an
// asset at a given time of day.
type Confidence interface {
	HourlyConfidence(ctx context.Context, asset string, at time.Time) (decimal.Decimal, error)
}

// ProfessionalConfig holds the thresholds of the indicator pipeline.
type ProfessionalConfig struct {
	AnalysisPeriod        int
	MinScore              decimal.Decimal
	MinConsistency        decimal.Decimal
	MinVolatility         decimal.Decimal
	HourlyConfidenceFloor decimal.Decimal
	LowConfidenceFactor   decimal.Decimal
}

// DefaultProfessionalConfig returns the standard pipeline thresholds.
func DefaultProfessionalConfig() ProfessionalConfig {
	return ProfessionalConfig{
		AnalysisPeriod:        20,
		MinScore:              decimal.NewFromInt(40),
		MinConsistency:        decimal.NewFromInt(30),
		MinVolatility:         decimal.RequireFromString("0.001"),
		HourlyConfidenceFloor: decimal.NewFromInt(45),
		LowConfidenceFactor:   decimal.RequireFromString("0.5"),
	}
}

// candidate is one asset that survived every gate of the pipeline.
type candidate struct {
	asset    string
	score    decimal.Decimal
	snapshot scoring.Snapshot
	ticks    int
}

// ProfessionalEngine runs the full indicator pipeline: per-asset gates,
// composite scoring, hourly confidence discounting, and adaptive stake
// sizing, then trades the highest-scoring asset.
type ProfessionalEngine struct {
	store      Store
	broker     deriv.BrokerClient
	risk       Risk
	confidence Confidence
	executor   *Executor
	weights    scoring.Weights
	config     ProfessionalConfig
	logger     zerolog.Logger
	now        func() time.Time
}

// NewProfessionalEngine creates the indicator pipeline engine.
func NewProfessionalEngine(
	store Store,
	broker deriv.BrokerClient,
	risk Risk,
	confidence Confidence,
	executor *Executor,
	weights scoring.Weights,
	config ProfessionalConfig,
	logger zerolog.Logger,
) *ProfessionalEngine {
	if config.AnalysisPeriod < minPrices {
		config.AnalysisPeriod = minPrices
	}
	return &ProfessionalEngine{
		store:      store,
		broker:     broker,
		risk:       risk,
		confidence: confidence,
		executor:   executor,
		weights:    weights,
		config:     config,
		logger:     logger.With().Str("component", "engine").Str("engine", "professional").Logger(),
		now:        time.Now,
	}
}

func (p *ProfessionalEngine) Name() string { return "professional" }

// EvaluateAndExecute scores every enabled asset, picks the best one above
// the minimum score, and places one adaptive-stake contract. A cycle where
// no asset qualifies returns nil without error.
func (p *ProfessionalEngine) EvaluateAndExecute(ctx context.Context) (*database.Trade, error) {
	acct, err := p.store.GetAccount(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading account: %w", err)
	}
	assets, err := p.store.EnabledAssets(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading enabled assets: %w", err)
	}

	var best *candidate
	for _, asset := range assets {
		cand, err := p.evaluateAsset(ctx, asset.Name)
		if err != nil {
			return nil, err
		}
		if cand == nil {
			continue
		}
		if best == nil || cand.score.GreaterThan(best.score) {
			best = cand
		}
	}

	if best == nil || best.score.LessThan(p.config.MinScore) {
		p.logger.Debug().Msg("no asset above the minimum score")
		return nil, nil
	}

	direction := scoring.SuggestDirection(best.snapshot)
	if direction == scoring.DirectionNone {
		// Majority vote tied; momentum alone breaks it.
		switch best.snapshot.MomentumPct.Sign() {
		case 1:
			direction = scoring.DirectionCall
		case -1:
			direction = scoring.DirectionPut
		default:
			p.logger.Debug().Str("asset", best.asset).Msg("no direction signal, skipping cycle")
			return nil, nil
		}
	}

	stake := p.risk.AdaptiveStake(acct.Balance, best.snapshot.Volatility)
	if !stake.IsPositive() {
		p.logger.Warn().Str("balance", acct.Balance.String()).Msg("balance too small to stake")
		return nil, nil
	}

	p.logger.Info().
		Str("asset", best.asset).
		Str("score", best.score.String()).
		Str("direction", string(direction)).
		Str("stake", stake.String()).
		Msg("signal selected")

	return p.executor.Execute(ctx, Signal{
		Asset:      best.asset,
		Direction:  string(direction),
		Stake:      stake,
		EntryPrice: best.snapshot.CurrentPrice,
		Confidence: best.score,
	})
}

// evaluateAsset runs every gate for one asset and returns its candidate,
// or nil when any gate rejects it.
func (p *ProfessionalEngine) evaluateAsset(ctx context.Context, asset string) (*candidate, error) {
	log := p.logger.With().Str("asset", asset).Logger()

	cooling, err := p.risk.CooldownActive(ctx, asset)
	if err != nil {
		return nil, fmt.Errorf("checking cooldown for %s: %w", asset, err)
	}
	if cooling {
		log.Debug().Msg("asset in cooldown")
		return nil, nil
	}

	withinLimit, err := p.risk.WithinRateLimit(ctx, asset)
	if err != nil {
		return nil, fmt.Errorf("checking rate limit for %s: %w", asset, err)
	}
	if !withinLimit {
		log.Debug().Msg("asset at trade rate limit")
		return nil, nil
	}

	prices, err := p.broker.TicksHistory(ctx, asset, p.config.AnalysisPeriod)
	if err != nil {
		log.Warn().Err(err).Msg("tick history unavailable")
		return nil, nil
	}
	if len(prices) < minPrices {
		log.Debug().Int("prices", len(prices)).Msg("not enough ticks to analyze")
		return nil, nil
	}

	current := prices[len(prices)-1].Round(5)
	momentum, momentumPct := indicators.Momentum(prices, momentumPeriod)
	volatility := indicators.Volatility(prices, volatilityPeriod)
	ema := indicators.EMA(prices, emaPeriod)
	roc := indicators.RateOfChange(prices, rocPeriod)
	strength := indicators.MovementStrength(current, ema)
	consistency := indicators.Consistency(prices, consistencyPeriod)

	if volatility.LessThan(p.config.MinVolatility) {
		log.Debug().Str("volatility", volatility.String()).Msg("market flat, skipping")
		return nil, nil
	}
	if consistency.LessThan(p.config.MinConsistency) {
		log.Debug().Str("consistency", consistency.String()).Msg("consistency below minimum, skipping")
		return nil, nil
	}

	snapshot := scoring.Snapshot{
		MomentumPct:  momentumPct,
		RateOfChange: roc,
		Volatility:   volatility,
		EMA:          ema,
		CurrentPrice: current,
		Consistency:  consistency,
	}

	winrate, err := p.bestWinrate(ctx, asset)
	if err != nil {
		return nil, err
	}

	score := scoring.Score(p.weights, snapshot, winrate, p.config.MinScore)

	confidence, err := p.confidence.HourlyConfidence(ctx, asset, p.now())
	if err != nil {
		return nil, fmt.Errorf("resolving hourly confidence for %s: %w", asset, err)
	}
	if confidence.LessThan(p.config.HourlyConfidenceFloor) {
		score = score.Mul(p.config.LowConfidenceFactor).Round(2)
		log.Debug().
			Str("confidence", confidence.String()).
			Str("score", score.String()).
			Msg("low hourly confidence, score discounted")
	}

	direction := scoring.SuggestDirection(snapshot)
	if err := p.store.UpsertAssetIndicators(ctx, &database.AssetIndicators{
		Asset:              asset,
		Momentum:           momentum.Round(5),
		MomentumPct:        momentumPct,
		Volatility:         volatility,
		EMA:                ema,
		CurrentPrice:       current,
		RateOfChange:       roc,
		MovementStrength:   strength,
		Consistency:        consistency,
		TotalScore:         score,
		SuggestedDirection: string(direction),
		TicksAnalyzed:      len(prices),
		ComputedAt:         p.now(),
	}); err != nil {
		return nil, fmt.Errorf("saving indicators for %s: %w", asset, err)
	}

	if risk.IsMicroCongested(momentumPct, len(prices)) {
		log.Info().Str("momentum_pct", momentumPct.String()).Msg("micro-congestion detected, cooling asset down")
		if err := p.risk.CreateCooldown(ctx, asset, "micro-congestion"); err != nil {
			return nil, fmt.Errorf("creating congestion cooldown for %s: %w", asset, err)
		}
		return nil, nil
	}

	return &candidate{asset: asset, score: score, snapshot: snapshot, ticks: len(prices)}, nil
}

// bestWinrate returns the asset's strongest persisted bucket winrate, or
// nil when no performance history exists yet.
func (p *ProfessionalEngine) bestWinrate(ctx context.Context, asset string) (*decimal.Decimal, error) {
	buckets, err := p.store.BestPerformanceBuckets(ctx, asset)
	if err != nil {
		return nil, fmt.Errorf("loading performance buckets for %s: %w", asset, err)
	}
	if len(buckets) == 0 {
		return nil, nil
	}
	winrate := buckets[0].DynamicWinrate
	return &winrate, nil
}
