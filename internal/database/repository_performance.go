package database

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
)

// ============================================================================
// HOURLY PERFORMANCE
// ============================================================================

// GetHourlyPerformance returns the persisted bucket for the asset, or nil
// when no record exists.
func (r *Repository) GetHourlyPerformance(ctx context.Context, asset string, hourBucket int) (*HourlyPerformance, error) {
	hp := &HourlyPerformance{}
	err := r.db.Pool.QueryRow(ctx, `
		SELECT id, asset, hour_bucket, dynamic_winrate, total_trades, won_trades, lost_trades,
		       profit_total, loss_total, max_drawdown, current_drawdown, updated_at
		FROM hourly_performance
		WHERE asset = $1 AND hour_bucket = $2
	`, asset, hourBucket).Scan(
		&hp.ID, &hp.Asset, &hp.HourBucket, &hp.DynamicWinrate, &hp.TotalTrades,
		&hp.WonTrades, &hp.LostTrades, &hp.ProfitTotal, &hp.LossTotal,
		&hp.MaxDrawdown, &hp.CurrentDrawdown, &hp.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return hp, nil
}

// UpsertHourlyPerformance writes the bucket keyed by (asset, hour_bucket).
func (r *Repository) UpsertHourlyPerformance(ctx context.Context, hp *HourlyPerformance) error {
	query := `
		INSERT INTO hourly_performance (asset, hour_bucket, dynamic_winrate, total_trades, won_trades,
		                                lost_trades, profit_total, loss_total, max_drawdown, current_drawdown, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW())
		ON CONFLICT (asset, hour_bucket) DO UPDATE SET
			dynamic_winrate = EXCLUDED.dynamic_winrate,
			total_trades = EXCLUDED.total_trades,
			won_trades = EXCLUDED.won_trades,
			lost_trades = EXCLUDED.lost_trades,
			profit_total = EXCLUDED.profit_total,
			loss_total = EXCLUDED.loss_total,
			max_drawdown = EXCLUDED.max_drawdown,
			current_drawdown = EXCLUDED.current_drawdown,
			updated_at = NOW()
		RETURNING id
	`
	return r.db.Pool.QueryRow(ctx, query,
		hp.Asset, hp.HourBucket, hp.DynamicWinrate, hp.TotalTrades, hp.WonTrades,
		hp.LostTrades, hp.ProfitTotal, hp.LossTotal, hp.MaxDrawdown, hp.CurrentDrawdown,
	).Scan(&hp.ID)
}

// BestPerformanceBuckets returns all buckets for the asset ordered by
// winrate descending.
func (r *Repository) BestPerformanceBuckets(ctx context.Context, asset string) ([]HourlyPerformance, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT id, asset, hour_bucket, dynamic_winrate, total_trades, won_trades, lost_trades,
		       profit_total, loss_total, max_drawdown, current_drawdown, updated_at
		FROM hourly_performance
		WHERE asset = $1
		ORDER BY dynamic_winrate DESC, total_trades DESC
	`, asset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var buckets []HourlyPerformance
	for rows.Next() {
		var hp HourlyPerformance
		if err := rows.Scan(
			&hp.ID, &hp.Asset, &hp.HourBucket, &hp.DynamicWinrate, &hp.TotalTrades,
			&hp.WonTrades, &hp.LostTrades, &hp.ProfitTotal, &hp.LossTotal,
			&hp.MaxDrawdown, &hp.CurrentDrawdown, &hp.UpdatedAt,
		); err != nil {
			return nil, err
		}
		buckets = append(buckets, hp)
	}
	return buckets, rows.Err()
}
