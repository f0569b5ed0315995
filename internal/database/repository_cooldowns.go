package database

import (
	"context"
	"time"
)

// ============================================================================
// COOLDOWNS
// ============================================================================

// CreateCooldown inserts a cooldown row for the asset.
func (r *Repository) CreateCooldown(ctx context.Context, cd *Cooldown) error {
	query := `
		INSERT INTO asset_cooldowns (asset, reason, expires_at)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`
	return r.db.Pool.QueryRow(ctx, query, cd.Asset, cd.Reason, cd.ExpiresAt).
		Scan(&cd.ID, &cd.CreatedAt)
}

// HasActiveCooldown reports whether an unexpired cooldown exists for the
// asset at the given instant.
func (r *Repository) HasActiveCooldown(ctx context.Context, asset string, now time.Time) (bool, error) {
	var exists bool
	err := r.db.Pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM asset_cooldowns WHERE asset = $1 AND expires_at > $2
		)
	`, asset, now).Scan(&exists)
	return exists, err
}

// PurgeExpiredCooldowns removes rows whose expiry has passed.
func (r *Repository) PurgeExpiredCooldowns(ctx context.Context, now time.Time) (int, error) {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM asset_cooldowns WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}
