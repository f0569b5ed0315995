package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// ErrNoRows is returned when a lookup matches nothing.
var ErrNoRows = pgx.ErrNoRows

// Repository provides data access methods
type Repository struct {
	db *DB
}

// NewRepository creates a new repository
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// HealthCheck performs a database health check
func (r *Repository) HealthCheck(ctx context.Context) error {
	return r.db.Pool.Ping(ctx)
}

// ============================================================================
// ACCOUNT
// ============================================================================

const accountColumns = `id, balance, goal_base, stoploss_base, goal_target, stoploss_target,
	accumulated_loss, accumulated_gain, state, selected_asset, in_trade,
	paused_since, pause_until, best_hour, last_simulation_at, updated_at`

func scanAccount(row pgx.Row) (*Account, error) {
	acct := &Account{}
	err := row.Scan(
		&acct.ID, &acct.Balance, &acct.GoalBase, &acct.StoplossBase,
		&acct.GoalTarget, &acct.StoplossTarget, &acct.AccumulatedLoss,
		&acct.AccumulatedGain, &acct.State, &acct.SelectedAsset, &acct.InTrade,
		&acct.PausedSince, &acct.PauseUntil, &acct.BestHour,
		&acct.LastSimulationAt, &acct.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return acct, nil
}

// GetAccount returns the singleton account row, creating it on first access.
func (r *Repository) GetAccount(ctx context.Context) (*Account, error) {
	query := fmt.Sprintf(`SELECT %s FROM account ORDER BY id LIMIT 1`, accountColumns)
	acct, err := scanAccount(r.db.Pool.QueryRow(ctx, query))
	if err == nil {
		return acct, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("loading account: %w", err)
	}

	insert := fmt.Sprintf(`INSERT INTO account DEFAULT VALUES RETURNING %s`, accountColumns)
	acct, err = scanAccount(r.db.Pool.QueryRow(ctx, insert))
	if err != nil {
		return nil, fmt.Errorf("creating account: %w", err)
	}
	return acct, nil
}

// UpdateAccount applies fn to the latest persisted account state inside a
// transaction holding a row lock, then writes all mutable fields back in
// one statement. This is the only mutation path for account fields.
func (r *Repository) UpdateAccount(ctx context.Context, fn func(*Account) error) (*Account, error) {
	// Ensure the row exists before locking it
	if _, err := r.GetAccount(ctx); err != nil {
		return nil, err
	}

	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("beginning account update: %w", err)
	}
	defer tx.Rollback(ctx)

	query := fmt.Sprintf(`SELECT %s FROM account ORDER BY id LIMIT 1 FOR UPDATE`, accountColumns)
	acct, err := scanAccount(tx.QueryRow(ctx, query))
	if err != nil {
		return nil, fmt.Errorf("locking account: %w", err)
	}

	if err := fn(acct); err != nil {
		return nil, err
	}

	update := `
		UPDATE account
		SET balance = $2, goal_base = $3, stoploss_base = $4, goal_target = $5,
		    stoploss_target = $6, accumulated_loss = $7, accumulated_gain = $8,
		    state = $9, selected_asset = $10, in_trade = $11, paused_since = $12,
		    pause_until = $13, best_hour = $14, last_simulation_at = $15,
		    updated_at = NOW()
		WHERE id = $1
	`
	_, err = tx.Exec(ctx, update,
		acct.ID, acct.Balance, acct.GoalBase, acct.StoplossBase, acct.GoalTarget,
		acct.StoplossTarget, acct.AccumulatedLoss, acct.AccumulatedGain,
		acct.State, acct.SelectedAsset, acct.InTrade, acct.PausedSince,
		acct.PauseUntil, acct.BestHour, acct.LastSimulationAt,
	)
	if err != nil {
		return nil, fmt.Errorf("writing account: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing account update: %w", err)
	}
	return acct, nil
}

// ============================================================================
// BALANCE ADJUSTMENTS
// ============================================================================

// CreateBalanceAdjustment appends a reconciliation audit row.
func (r *Repository) CreateBalanceAdjustment(ctx context.Context, adj *BalanceAdjustment) error {
	query := `
		INSERT INTO balance_adjustments (expected_balance, real_balance, difference, previous_balance, description)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, detected_at
	`
	return r.db.Pool.QueryRow(ctx, query,
		adj.ExpectedBalance, adj.RealBalance, adj.Difference,
		adj.PreviousBalance, adj.Description,
	).Scan(&adj.ID, &adj.DetectedAt)
}
