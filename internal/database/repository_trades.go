package database

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ============================================================================
// TRADES
// ============================================================================

const tradeColumns = `id, asset, direction, entry_price, close_price, stake, confidence,
	result, contract_id, opened_at, closed_at, profit, is_simulated`

// CreateTrade inserts a new trade
func (r *Repository) CreateTrade(ctx context.Context, trade *Trade) error {
	query := `
		INSERT INTO trades (asset, direction, entry_price, close_price, stake, confidence,
		                    result, contract_id, opened_at, closed_at, profit, is_simulated)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id
	`
	return r.db.Pool.QueryRow(ctx, query,
		trade.Asset, trade.Direction, trade.EntryPrice, trade.ClosePrice,
		trade.Stake, trade.Confidence, trade.Result, trade.ContractID,
		trade.OpenedAt, trade.ClosedAt, trade.Profit, trade.IsSimulated,
	).Scan(&trade.ID)
}

// FinalizeTrade records the terminal outcome of a pending trade.
func (r *Repository) FinalizeTrade(ctx context.Context, trade *Trade) error {
	query := `
		UPDATE trades
		SET close_price = $2, result = $3, contract_id = $4, closed_at = $5, profit = $6
		WHERE id = $1
	`
	_, err := r.db.Pool.Exec(ctx, query,
		trade.ID, trade.ClosePrice, trade.Result, trade.ContractID,
		trade.ClosedAt, trade.Profit,
	)
	return err
}

// ContractIDExists reports whether a trade already uses the contract id.
func (r *Repository) ContractIDExists(ctx context.Context, contractID string) (bool, error) {
	var exists bool
	err := r.db.Pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM trades WHERE contract_id = $1)`, contractID,
	).Scan(&exists)
	return exists, err
}

// CountRealTradesSince counts non-simulated trades for an asset opened at
// or after the cutoff.
func (r *Repository) CountRealTradesSince(ctx context.Context, asset string, since time.Time) (int, error) {
	var count int
	err := r.db.Pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM trades
		WHERE asset = $1 AND is_simulated = FALSE AND opened_at >= $2
	`, asset, since).Scan(&count)
	return count, err
}

// SumFinalizedRealProfit totals the profit of all finalized real trades.
func (r *Repository) SumFinalizedRealProfit(ctx context.Context) (decimal.Decimal, error) {
	var sum decimal.Decimal
	err := r.db.Pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(profit), 0) FROM trades
		WHERE is_simulated = FALSE AND result IN ('WIN', 'LOSS')
	`).Scan(&sum)
	return sum, err
}

// RecentRealTrades returns up to limit finalized real trades for the asset
// opened at or after the cutoff, most recent first.
func (r *Repository) RecentRealTrades(ctx context.Context, asset string, since time.Time, limit int) ([]Trade, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM trades
		WHERE asset = $1 AND is_simulated = FALSE AND result IN ('WIN', 'LOSS') AND opened_at >= $2
		ORDER BY opened_at DESC
		LIMIT $3
	`, tradeColumns)

	rows, err := r.db.Pool.Query(ctx, query, asset, since, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trades []Trade
	for rows.Next() {
		var t Trade
		if err := rows.Scan(
			&t.ID, &t.Asset, &t.Direction, &t.EntryPrice, &t.ClosePrice,
			&t.Stake, &t.Confidence, &t.Result, &t.ContractID,
			&t.OpenedAt, &t.ClosedAt, &t.Profit, &t.IsSimulated,
		); err != nil {
			return nil, err
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// RealTradesNearMinute returns finalized real trades opened within the
// inclusive minute-of-day window [fromMinute, toMinute] since the cutoff.
// When fromMinute > toMinute the window wraps across midnight. The minute
// match happens in Go on the process's local time, so it cannot drift
// from the scheduler when the database session runs in a different zone.
func (r *Repository) RealTradesNearMinute(ctx context.Context, asset string, fromMinute, toMinute int, since time.Time) ([]Trade, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM trades
		WHERE asset = $1 AND is_simulated = FALSE AND result IN ('WIN', 'LOSS') AND opened_at >= $2
	`, tradeColumns)

	rows, err := r.db.Pool.Query(ctx, query, asset, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trades []Trade
	for rows.Next() {
		var t Trade
		if err := rows.Scan(
			&t.ID, &t.Asset, &t.Direction, &t.EntryPrice, &t.ClosePrice,
			&t.Stake, &t.Confidence, &t.Result, &t.ContractID,
			&t.OpenedAt, &t.ClosedAt, &t.Profit, &t.IsSimulated,
		); err != nil {
			return nil, err
		}
		if minuteWindowContains(fromMinute, toMinute, localMinuteOfDay(t.OpenedAt)) {
			trades = append(trades, t)
		}
	}
	return trades, rows.Err()
}

func localMinuteOfDay(t time.Time) int {
	local := t.Local()
	return local.Hour()*60 + local.Minute()
}

// minuteWindowContains reports whether minute falls in the inclusive
// window [from, to], wrapping across midnight when from > to.
func minuteWindowContains(from, to, minute int) bool {
	if from > to {
		return minute >= from || minute <= to
	}
	return minute >= from && minute <= to
}
