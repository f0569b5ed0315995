package database

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
)

// ============================================================================
// ASSET INDICATORS
// ============================================================================

// UpsertAssetIndicators overwrites the latest indicator snapshot for the
// asset. No history is kept.
func (r *Repository) UpsertAssetIndicators(ctx context.Context, ind *AssetIndicators) error {
	query := `
		INSERT INTO asset_indicators (asset, momentum, momentum_pct, volatility, ema, current_price,
		                              rate_of_change, movement_strength, consistency, total_score,
		                              suggested_direction, ticks_analyzed, computed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW())
		ON CONFLICT (asset) DO UPDATE SET
			momentum = EXCLUDED.momentum,
			momentum_pct = EXCLUDED.momentum_pct,
			volatility = EXCLUDED.volatility,
			ema = EXCLUDED.ema,
			current_price = EXCLUDED.current_price,
			rate_of_change = EXCLUDED.rate_of_change,
			movement_strength = EXCLUDED.movement_strength,
			consistency = EXCLUDED.consistency,
			total_score = EXCLUDED.total_score,
			suggested_direction = EXCLUDED.suggested_direction,
			ticks_analyzed = EXCLUDED.ticks_analyzed,
			computed_at = NOW()
		RETURNING id, computed_at
	`
	return r.db.Pool.QueryRow(ctx, query,
		ind.Asset, ind.Momentum, ind.MomentumPct, ind.Volatility, ind.EMA,
		ind.CurrentPrice, ind.RateOfChange, ind.MovementStrength, ind.Consistency,
		ind.TotalScore, ind.SuggestedDirection, ind.TicksAnalyzed,
	).Scan(&ind.ID, &ind.ComputedAt)
}

// GetAssetIndicators returns the latest snapshot for the asset, or nil
// when none has been computed yet.
func (r *Repository) GetAssetIndicators(ctx context.Context, asset string) (*AssetIndicators, error) {
	ind := &AssetIndicators{}
	err := r.db.Pool.QueryRow(ctx, `
		SELECT id, asset, momentum, momentum_pct, volatility, ema, current_price,
		       rate_of_change, movement_strength, consistency, total_score,
		       suggested_direction, ticks_analyzed, computed_at
		FROM asset_indicators
		WHERE asset = $1
	`, asset).Scan(
		&ind.ID, &ind.Asset, &ind.Momentum, &ind.MomentumPct, &ind.Volatility,
		&ind.EMA, &ind.CurrentPrice, &ind.RateOfChange, &ind.MovementStrength,
		&ind.Consistency, &ind.TotalScore, &ind.SuggestedDirection,
		&ind.TicksAnalyzed, &ind.ComputedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return ind, nil
}

// ============================================================================
// SIMULATION RESULTS
// ============================================================================

// CreateSimulationHourResult persists one hour-bucket summary of a
// simulation run.
func (r *Repository) CreateSimulationHourResult(ctx context.Context, res *SimulationHourResult) error {
	query := `
		INSERT INTO simulation_hour_results (run_id, asset, hour_bucket, winrate, total_trades, won_trades)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (run_id, asset, hour_bucket) DO UPDATE SET
			winrate = EXCLUDED.winrate,
			total_trades = EXCLUDED.total_trades,
			won_trades = EXCLUDED.won_trades
		RETURNING id, created_at
	`
	return r.db.Pool.QueryRow(ctx, query,
		res.RunID, res.Asset, res.HourBucket, res.Winrate, res.TotalTrades, res.WonTrades,
	).Scan(&res.ID, &res.CreatedAt)
}
