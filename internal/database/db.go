package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// DB wraps the PostgreSQL connection pool
type DB struct {
	Pool   *pgxpool.Pool
	logger zerolog.Logger
}

// Config holds database configuration
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// NewDB creates a new database connection
func NewDB(cfg Config, logger zerolog.Logger) (*DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}

	poolConfig.MaxConns = 10
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	logger.Info().Str("database", cfg.Database).Msg("connected to PostgreSQL")

	return &DB{Pool: pool, logger: logger}, nil
}

// Close closes the database connection
func (db *DB) Close() {
	if db.Pool != nil {
		db.Pool.Close()
		db.logger.Info().Msg("database connection closed")
	}
}

// RunMigrations executes database migrations
func (db *DB) RunMigrations(ctx context.Context) error {
	db.logger.Info().Msg("running database migrations")

	migrations := []string{
		// Single-row account aggregate. best_hour is minute-of-day.
		`CREATE TABLE IF NOT EXISTS account (
			id SERIAL PRIMARY KEY,
			balance DECIMAL(20, 2) NOT NULL DEFAULT 0,
			goal_base DECIMAL(20, 2) NOT NULL DEFAULT 0,
			stoploss_base DECIMAL(20, 2) NOT NULL DEFAULT 0,
			goal_target DECIMAL(20, 2) NOT NULL DEFAULT 0,
			stoploss_target DECIMAL(20, 2) NOT NULL DEFAULT 0,
			accumulated_loss DECIMAL(20, 2) NOT NULL DEFAULT 0,
			accumulated_gain DECIMAL(20, 2) NOT NULL DEFAULT 0,
			state VARCHAR(10) NOT NULL DEFAULT 'TRADING',
			selected_asset VARCHAR(30) NOT NULL DEFAULT '',
			in_trade BOOLEAN NOT NULL DEFAULT FALSE,
			paused_since TIMESTAMPTZ,
			pause_until TIMESTAMPTZ,
			best_hour SMALLINT,
			last_simulation_at TIMESTAMPTZ,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,

		`CREATE TABLE IF NOT EXISTS assets (
			id SERIAL PRIMARY KEY,
			name VARCHAR(30) NOT NULL UNIQUE,
			enabled BOOLEAN NOT NULL DEFAULT TRUE,
			simulation_winrate DECIMAL(5, 2) NOT NULL DEFAULT 0,
			simulation_best_hour SMALLINT,
			last_simulation_at TIMESTAMPTZ
		)`,

		`CREATE TABLE IF NOT EXISTS trades (
			id SERIAL PRIMARY KEY,
			asset VARCHAR(30) NOT NULL,
			direction VARCHAR(4) NOT NULL,
			entry_price DECIMAL(20, 5) NOT NULL DEFAULT 0,
			close_price DECIMAL(20, 5) NOT NULL DEFAULT 0,
			stake DECIMAL(20, 2) NOT NULL DEFAULT 0,
			confidence DECIMAL(5, 2) NOT NULL DEFAULT 0,
			result VARCHAR(10) NOT NULL DEFAULT 'PENDING',
			contract_id VARCHAR(60) NOT NULL UNIQUE,
			opened_at TIMESTAMPTZ NOT NULL,
			closed_at TIMESTAMPTZ,
			profit DECIMAL(20, 2) NOT NULL DEFAULT 0,
			is_simulated BOOLEAN NOT NULL DEFAULT FALSE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_trades_asset ON trades(asset)`,
		`CREATE INDEX IF NOT EXISTS idx_trades_opened_at ON trades(opened_at)`,
		`CREATE INDEX IF NOT EXISTS idx_trades_result ON trades(result)`,

		`CREATE TABLE IF NOT EXISTS ticks (
			id BIGSERIAL PRIMARY KEY,
			asset VARCHAR(30) NOT NULL,
			epoch BIGINT NOT NULL,
			price DECIMAL(20, 5) NOT NULL,
			pip_size INTEGER NOT NULL DEFAULT 0,
			raw_payload JSONB,
			UNIQUE (asset, epoch)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_ticks_asset_epoch ON ticks(asset, epoch)`,

		`CREATE TABLE IF NOT EXISTS balance_adjustments (
			id SERIAL PRIMARY KEY,
			expected_balance DECIMAL(20, 2) NOT NULL,
			real_balance DECIMAL(20, 2) NOT NULL,
			difference DECIMAL(20, 2) NOT NULL,
			previous_balance DECIMAL(20, 2) NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			detected_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,

		// hour_bucket is minute-of-day rounded down to a 30-minute boundary
		`CREATE TABLE IF NOT EXISTS hourly_performance (
			id SERIAL PRIMARY KEY,
			asset VARCHAR(30) NOT NULL,
			hour_bucket SMALLINT NOT NULL,
			dynamic_winrate DECIMAL(5, 2) NOT NULL DEFAULT 0,
			total_trades INTEGER NOT NULL DEFAULT 0,
			won_trades INTEGER NOT NULL DEFAULT 0,
			lost_trades INTEGER NOT NULL DEFAULT 0,
			profit_total DECIMAL(20, 2) NOT NULL DEFAULT 0,
			loss_total DECIMAL(20, 2) NOT NULL DEFAULT 0,
			max_drawdown DECIMAL(20, 2) NOT NULL DEFAULT 0,
			current_drawdown DECIMAL(20, 2) NOT NULL DEFAULT 0,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE (asset, hour_bucket)
		)`,

		`CREATE TABLE IF NOT EXISTS asset_indicators (
			id SERIAL PRIMARY KEY,
			asset VARCHAR(30) NOT NULL UNIQUE,
			momentum DECIMAL(20, 5) NOT NULL DEFAULT 0,
			momentum_pct DECIMAL(10, 4) NOT NULL DEFAULT 0,
			volatility DECIMAL(10, 4) NOT NULL DEFAULT 0,
			ema DECIMAL(20, 5) NOT NULL DEFAULT 0,
			current_price DECIMAL(20, 5) NOT NULL DEFAULT 0,
			rate_of_change DECIMAL(10, 4) NOT NULL DEFAULT 0,
			movement_strength DECIMAL(20, 5) NOT NULL DEFAULT 0,
			consistency DECIMAL(5, 2) NOT NULL DEFAULT 0,
			total_score DECIMAL(5, 2) NOT NULL DEFAULT 0,
			suggested_direction VARCHAR(4) NOT NULL DEFAULT 'NONE',
			ticks_analyzed INTEGER NOT NULL DEFAULT 0,
			computed_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,

		`CREATE TABLE IF NOT EXISTS asset_cooldowns (
			id SERIAL PRIMARY KEY,
			asset VARCHAR(30) NOT NULL,
			reason VARCHAR(40) NOT NULL,
			expires_at TIMESTAMPTZ NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_cooldowns_asset_expires ON asset_cooldowns(asset, expires_at)`,

		`CREATE TABLE IF NOT EXISTS simulation_hour_results (
			id SERIAL PRIMARY KEY,
			run_id VARCHAR(40) NOT NULL,
			asset VARCHAR(30) NOT NULL,
			hour_bucket SMALLINT NOT NULL,
			winrate DECIMAL(5, 2) NOT NULL DEFAULT 0,
			total_trades INTEGER NOT NULL DEFAULT 0,
			won_trades INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE (run_id, asset, hour_bucket)
		)`,
	}

	for i, migration := range migrations {
		if _, err := db.Pool.Exec(ctx, migration); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}

	db.logger.Info().Int("statements", len(migrations)).Msg("migrations completed")
	return nil
}
