package database

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// ============================================================================
// ASSETS
// ============================================================================

// EnabledAssets returns all enabled assets ordered by name.
func (r *Repository) EnabledAssets(ctx context.Context) ([]Asset, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT id, name, enabled, simulation_winrate, simulation_best_hour, last_simulation_at
		FROM assets
		WHERE enabled = TRUE
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var assets []Asset
	for rows.Next() {
		var a Asset
		if err := rows.Scan(&a.ID, &a.Name, &a.Enabled, &a.SimulationWinrate, &a.SimulationBestHour, &a.LastSimulationAt); err != nil {
			return nil, err
		}
		assets = append(assets, a)
	}
	return assets, rows.Err()
}

// GetAsset returns one asset by name.
func (r *Repository) GetAsset(ctx context.Context, name string) (*Asset, error) {
	a := &Asset{}
	err := r.db.Pool.QueryRow(ctx, `
		SELECT id, name, enabled, simulation_winrate, simulation_best_hour, last_simulation_at
		FROM assets WHERE name = $1
	`, name).Scan(&a.ID, &a.Name, &a.Enabled, &a.SimulationWinrate, &a.SimulationBestHour, &a.LastSimulationAt)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// SyncAssets enables the named symbols, creating rows for new ones, and
// disables every asset not in the list. Returns created and disabled counts.
func (r *Repository) SyncAssets(ctx context.Context, symbols []string) (created, disabled int, err error) {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return 0, 0, err
	}
	defer tx.Rollback(ctx)

	for _, symbol := range symbols {
		tag, err := tx.Exec(ctx, `
			INSERT INTO assets (name, enabled) VALUES ($1, TRUE)
			ON CONFLICT (name) DO UPDATE SET enabled = TRUE
		`, symbol)
		if err != nil {
			return 0, 0, err
		}
		if tag.RowsAffected() > 0 {
			created++ // counts both inserts and re-enables
		}
	}

	tag, err := tx.Exec(ctx, `
		UPDATE assets SET enabled = FALSE
		WHERE enabled = TRUE AND NOT (name = ANY($1))
	`, symbols)
	if err != nil {
		return 0, 0, err
	}
	disabled = int(tag.RowsAffected())

	if err := tx.Commit(ctx); err != nil {
		return 0, 0, err
	}
	return created, disabled, nil
}

// UpdateAssetSimulation records the outcome of a simulation run on the
// asset row. bestHour may be nil when the run produced no usable bucket.
func (r *Repository) UpdateAssetSimulation(ctx context.Context, name string, winrate decimal.Decimal, bestHour *int, at time.Time) error {
	tag, err := r.db.Pool.Exec(ctx, `
		UPDATE assets
		SET simulation_winrate = $2, simulation_best_hour = $3, last_simulation_at = $4
		WHERE name = $1
	`, name, winrate, bestHour, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errors.New("asset not found: " + name)
	}
	return nil
}
