package database

import (
	"context"
	"time"
)

// ============================================================================
// TICKS
// ============================================================================

// UpsertTick inserts or overwrites a tick keyed by (asset, epoch).
// Re-registering the same epoch replaces price, pip size and payload
// without creating a duplicate row.
func (r *Repository) UpsertTick(ctx context.Context, tick *Tick) error {
	query := `
		INSERT INTO ticks (asset, epoch, price, pip_size, raw_payload)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (asset, epoch)
		DO UPDATE SET price = EXCLUDED.price, pip_size = EXCLUDED.pip_size, raw_payload = EXCLUDED.raw_payload
		RETURNING id
	`
	return r.db.Pool.QueryRow(ctx, query,
		tick.Asset, tick.Epoch, tick.Price, tick.PipSize, tick.RawPayload,
	).Scan(&tick.ID)
}

// TicksSince returns the asset's ticks with epoch at or after the cutoff,
// ordered oldest first.
func (r *Repository) TicksSince(ctx context.Context, asset string, since time.Time) ([]Tick, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT id, asset, epoch, price, pip_size, raw_payload
		FROM ticks
		WHERE asset = $1 AND epoch >= $2
		ORDER BY epoch ASC
	`, asset, since.Unix())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ticks []Tick
	for rows.Next() {
		var t Tick
		if err := rows.Scan(&t.ID, &t.Asset, &t.Epoch, &t.Price, &t.PipSize, &t.RawPayload); err != nil {
			return nil, err
		}
		ticks = append(ticks, t)
	}
	return ticks, rows.Err()
}
