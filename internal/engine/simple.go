package engine

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"deriv-trading-bot/internal/database"
	"deriv-trading-bot/internal/deriv"
)

var (
	hundred       = decimal.NewFromInt(100)
	maxConfidence = decimal.RequireFromString("99.99")
)

// SimpleEngine trades the asset with the largest relative move between its
// last two ticks. Stake is a fixed fraction of the balance.
type SimpleEngine struct {
	store    Store
	broker   deriv.BrokerClient
	executor *Executor
	stakePct decimal.Decimal
	logger   zerolog.Logger
}

// NewSimpleEngine creates the two-tick momentum engine.
func NewSimpleEngine(store Store, broker deriv.BrokerClient, executor *Executor, stakePct decimal.Decimal, logger zerolog.Logger) *SimpleEngine {
	return &SimpleEngine{
		store:    store,
		broker:   broker,
		executor: executor,
		stakePct: stakePct,
		logger:   logger.With().Str("component", "engine").Str("engine", "simple").Logger(),
	}
}

func (s *SimpleEngine) Name() string { return "simple" }

// EvaluateAndExecute scans every enabled asset, picks the one with the
// largest absolute two-tick variation, and buys in the direction of that
// move. Flat markets everywhere yield no trade.
func (s *SimpleEngine) EvaluateAndExecute(ctx context.Context) (*database.Trade, error) {
	acct, err := s.store.GetAccount(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading account: %w", err)
	}
	assets, err := s.store.EnabledAssets(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading enabled assets: %w", err)
	}

	var best *Signal
	bestVariation := decimal.Zero

	for _, asset := range assets {
		prices, err := s.broker.TicksHistory(ctx, asset.Name, 2)
		if err != nil {
			s.logger.Warn().Err(err).Str("asset", asset.Name).Msg("tick history unavailable")
			continue
		}
		if len(prices) < 2 {
			continue
		}

		prev := prices[len(prices)-2]
		current := prices[len(prices)-1]
		if current.Equal(prev) || !prev.IsPositive() {
			continue
		}

		variation := current.Sub(prev).Abs().Div(prev).Mul(hundred).Round(2)
		if variation.LessThanOrEqual(bestVariation) {
			continue
		}

		direction := "CALL"
		if current.LessThan(prev) {
			direction = "PUT"
		}
		confidence := variation
		if confidence.GreaterThan(maxConfidence) {
			confidence = maxConfidence
		}

		bestVariation = variation
		best = &Signal{
			Asset:      asset.Name,
			Direction:  direction,
			EntryPrice: current.Round(5),
			Confidence: confidence,
		}
	}

	if best == nil {
		s.logger.Debug().Msg("no price variation on any asset")
		return nil, nil
	}

	best.Stake = acct.Balance.Mul(s.stakePct).Round(2)
	if !best.Stake.IsPositive() {
		s.logger.Warn().Str("balance", acct.Balance.String()).Msg("balance too small to stake")
		return nil, nil
	}

	s.logger.Info().
		Str("asset", best.Asset).
		Str("direction", best.Direction).
		Str("variation", bestVariation.String()).
		Msg("signal selected")
	return s.executor.Execute(ctx, *best)
}
