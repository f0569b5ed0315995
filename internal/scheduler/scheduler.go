package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"deriv-trading-bot/internal/database"
)

const (
	minutesPerDay  = 24 * 60
	bucketMinutes  = 30
	fallbackWindow = 30 // minutes either side of the queried time
	analysisDays   = 30
	recentTrades   = 50
)

// Store is the persistence surface the scheduler needs.
type Store interface {
	GetHourlyPerformance(ctx context.Context, asset string, hourBucket int) (*database.HourlyPerformance, error)
	UpsertHourlyPerformance(ctx context.Context, hp *database.HourlyPerformance) error
	BestPerformanceBuckets(ctx context.Context, asset string) ([]database.HourlyPerformance, error)
	RealTradesNearMinute(ctx context.Context, asset string, fromMinute, toMinute int, since time.Time) ([]database.Trade, error)
	RecentRealTrades(ctx context.Context, asset string, since time.Time, limit int) ([]database.Trade, error)
}

var (
	neutral = decimal.RequireFromString("50.00")
	hundred = decimal.NewFromInt(100)

	// Best-hour selection thresholds
	minWinrate   = decimal.RequireFromString("55.00")
	minBucketOps = 5
)

// Scheduler tracks per-asset, per-time-bucket win rates and picks the best
// trading hour.
type Scheduler struct {
	store  Store
	logger zerolog.Logger
	now    func() time.Time
}

// New creates a scheduler.
func New(store Store, logger zerolog.Logger) *Scheduler {
	return &Scheduler{
		store:  store,
		logger: logger.With().Str("component", "scheduler").Logger(),
		now:    time.Now,
	}
}

// BucketMinute returns the 30-minute bucket containing t as minute-of-day,
// in local time.
func BucketMinute(t time.Time) int {
	local := t.Local()
	return local.Hour()*60 + (local.Minute()/bucketMinutes)*bucketMinutes
}

// HourlyConfidence returns the winrate expectation (0-100) for trading the
// asset around the given time. It prefers the persisted bucket; absent
// that, it derives a winrate from real trades within ±30 minutes over a
// trailing 30-day window, and defaults to the neutral 50.
func (s *Scheduler) HourlyConfidence(ctx context.Context, asset string, at time.Time) (decimal.Decimal, error) {
	bucket := BucketMinute(at)

	hp, err := s.store.GetHourlyPerformance(ctx, asset, bucket)
	if err != nil {
		return decimal.Zero, fmt.Errorf("loading hourly performance: %w", err)
	}
	if hp != nil {
		return hp.DynamicWinrate, nil
	}

	local := at.Local()
	minute := local.Hour()*60 + local.Minute()
	from := (minute - fallbackWindow + minutesPerDay) % minutesPerDay
	to := (minute + fallbackWindow) % minutesPerDay
	since := s.now().AddDate(0, 0, -analysisDays)

	trades, err := s.store.RealTradesNearMinute(ctx, asset, from, to, since)
	if err != nil {
		return decimal.Zero, fmt.Errorf("loading trades near %02d:%02d: %w", local.Hour(), local.Minute(), err)
	}
	if len(trades) == 0 {
		return neutral, nil
	}

	won := 0
	for _, t := range trades {
		if t.Result == database.ResultWin {
			won++
		}
	}
	return decimal.NewFromInt(int64(won)).
		Div(decimal.NewFromInt(int64(len(trades)))).
		Mul(hundred).
		Round(2), nil
}

// BucketWinrate returns the persisted dynamic winrate for the bucket
// containing t, or nil when no record exists.
func (s *Scheduler) BucketWinrate(ctx context.Context, asset string, at time.Time) (*decimal.Decimal, error) {
	hp, err := s.store.GetHourlyPerformance(ctx, asset, BucketMinute(at))
	if err != nil {
		return nil, fmt.Errorf("loading hourly performance: %w", err)
	}
	if hp == nil {
		return nil, nil
	}
	winrate := hp.DynamicWinrate
	return &winrate, nil
}

// UpdateHourlyPerformance folds a finalized real trade into its 30-minute
// bucket and recomputes the dynamic winrate from the asset's most recent
// 50 real trades in the trailing 30 days.
func (s *Scheduler) UpdateHourlyPerformance(ctx context.Context, asset string, trade *database.Trade) error {
	bucket := BucketMinute(trade.OpenedAt)

	hp, err := s.store.GetHourlyPerformance(ctx, asset, bucket)
	if err != nil {
		return fmt.Errorf("loading hourly performance: %w", err)
	}
	if hp == nil {
		hp = &database.HourlyPerformance{Asset: asset, HourBucket: bucket}
	}

	hp.TotalTrades++
	switch trade.Result {
	case database.ResultWin:
		hp.WonTrades++
		hp.ProfitTotal = hp.ProfitTotal.Add(trade.Profit)
		hp.CurrentDrawdown = decimal.Zero
	case database.ResultLoss:
		hp.LostTrades++
		hp.LossTotal = hp.LossTotal.Add(trade.Profit.Abs())
		hp.CurrentDrawdown = hp.CurrentDrawdown.Add(trade.Profit.Abs())
		if hp.CurrentDrawdown.GreaterThan(hp.MaxDrawdown) {
			hp.MaxDrawdown = hp.CurrentDrawdown
		}
	}

	since := s.now().AddDate(0, 0, -analysisDays)
	recent, err := s.store.RecentRealTrades(ctx, asset, since, recentTrades)
	if err != nil {
		return fmt.Errorf("loading recent trades: %w", err)
	}
	if len(recent) > 0 {
		won := 0
		for _, t := range recent {
			if t.Result == database.ResultWin {
				won++
			}
		}
		hp.DynamicWinrate = decimal.NewFromInt(int64(won)).
			Div(decimal.NewFromInt(int64(len(recent)))).
			Mul(hundred).
			Round(2)
	}

	if err := s.store.UpsertHourlyPerformance(ctx, hp); err != nil {
		return fmt.Errorf("saving hourly performance: %w", err)
	}

	s.logger.Debug().
		Str("asset", asset).
		Int("bucket", bucket).
		Str("winrate", hp.DynamicWinrate.String()).
		Msg("hourly performance updated")
	return nil
}

// BestHour returns the minute-of-day bucket with the highest winrate that
// has at least the minimum winrate and trade count, or nil when no bucket
// qualifies.
func (s *Scheduler) BestHour(ctx context.Context, asset string) (*int, error) {
	buckets, err := s.store.BestPerformanceBuckets(ctx, asset)
	if err != nil {
		return nil, fmt.Errorf("loading performance buckets: %w", err)
	}

	for _, hp := range buckets {
		if hp.DynamicWinrate.GreaterThanOrEqual(minWinrate) && hp.TotalTrades >= minBucketOps {
			bucket := hp.HourBucket
			return &bucket, nil
		}
	}
	return nil, nil
}
