package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"deriv-trading-bot/internal/database"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type fakeStore struct {
	buckets      map[int]*database.HourlyPerformance
	nearTrades   []database.Trade
	recentTrades []database.Trade

	// captured window from the last RealTradesNearMinute call
	lastFrom, lastTo int
}

func newFakeStore() *fakeStore {
	return &fakeStore{buckets: make(map[int]*database.HourlyPerformance)}
}

func (f *fakeStore) GetHourlyPerformance(_ context.Context, _ string, hourBucket int) (*database.HourlyPerformance, error) {
	if hp, ok := f.buckets[hourBucket]; ok {
		copied := *hp
		return &copied, nil
	}
	return nil, nil
}

func (f *fakeStore) UpsertHourlyPerformance(_ context.Context, hp *database.HourlyPerformance) error {
	copied := *hp
	f.buckets[hp.HourBucket] = &copied
	return nil
}

func (f *fakeStore) BestPerformanceBuckets(_ context.Context, _ string) ([]database.HourlyPerformance, error) {
	var out []database.HourlyPerformance
	for _, hp := range f.buckets {
		out = append(out, *hp)
	}
	// order by winrate descending, mirroring the SQL
	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if out[j].DynamicWinrate.GreaterThan(out[i].DynamicWinrate) {
				out[i], out[j] = out[j], out[i]
			}
		}
	}
	return out, nil
}

func (f *fakeStore) RealTradesNearMinute(_ context.Context, _ string, fromMinute, toMinute int, _ time.Time) ([]database.Trade, error) {
	f.lastFrom, f.lastTo = fromMinute, toMinute
	return f.nearTrades, nil
}

func (f *fakeStore) RecentRealTrades(_ context.Context, _ string, _ time.Time, _ int) ([]database.Trade, error) {
	return f.recentTrades, nil
}

func newTestScheduler(store *fakeStore) *Scheduler {
	return New(store, zerolog.Nop())
}

func TestBucketMinute(t *testing.T) {
	tests := []struct {
		hour, minute int
		want         int
	}{
		{0, 0, 0},
		{0, 29, 0},
		{0, 30, 30},
		{9, 15, 540},
		{9, 45, 570},
		{23, 59, 1410},
	}

	for _, tt := range tests {
		at := time.Date(2025, 6, 1, tt.hour, tt.minute, 0, 0, time.Local)
		if got := BucketMinute(at); got != tt.want {
			t.Errorf("BucketMinute(%02d:%02d) = %d, want %d", tt.hour, tt.minute, got, tt.want)
		}
	}
}

func TestHourlyConfidencePrefersPersistedBucket(t *testing.T) {
	store := newFakeStore()
	at := time.Date(2025, 6, 1, 14, 10, 0, 0, time.Local)
	store.buckets[BucketMinute(at)] = &database.HourlyPerformance{
		HourBucket:     BucketMinute(at),
		DynamicWinrate: d("62.50"),
	}

	s := newTestScheduler(store)
	got, err := s.HourlyConfidence(context.Background(), "R_100", at)
	if err != nil {
		t.Fatalf("HourlyConfidence() error = %v", err)
	}
	if !got.Equal(d("62.50")) {
		t.Errorf("HourlyConfidence() = %s, want 62.50", got)
	}
}

func TestHourlyConfidenceFallsBackToTrades(t *testing.T) {
	store := newFakeStore()
	store.nearTrades = []database.Trade{
		{Result: database.ResultWin},
		{Result: database.ResultWin},
		{Result: database.ResultLoss},
	}

	s := newTestScheduler(store)
	at := time.Date(2025, 6, 1, 14, 10, 0, 0, time.Local)
	got, err := s.HourlyConfidence(context.Background(), "R_100", at)
	if err != nil {
		t.Fatalf("HourlyConfidence() error = %v", err)
	}
	if !got.Equal(d("66.67")) {
		t.Errorf("HourlyConfidence() = %s, want 66.67", got)
	}
}

func TestHourlyConfidenceNeutralWithNoData(t *testing.T) {
	s := newTestScheduler(newFakeStore())
	at := time.Date(2025, 6, 1, 3, 0, 0, 0, time.Local)
	got, err := s.HourlyConfidence(context.Background(), "R_100", at)
	if err != nil {
		t.Fatalf("HourlyConfidence() error = %v", err)
	}
	if !got.Equal(d("50.00")) {
		t.Errorf("HourlyConfidence() = %s, want neutral 50.00", got)
	}
}

func TestHourlyConfidenceWindowWrapsMidnight(t *testing.T) {
	store := newFakeStore()
	s := newTestScheduler(store)

	// 00:10 local: the window is [23:40, 00:40] and wraps.
	at := time.Date(2025, 6, 1, 0, 10, 0, 0, time.Local)
	if _, err := s.HourlyConfidence(context.Background(), "R_100", at); err != nil {
		t.Fatalf("HourlyConfidence() error = %v", err)
	}
	if store.lastFrom != 23*60+40 || store.lastTo != 40 {
		t.Errorf("window = [%d, %d], want [1420, 40]", store.lastFrom, store.lastTo)
	}
}

func TestUpdateHourlyPerformance(t *testing.T) {
	store := newFakeStore()
	store.recentTrades = []database.Trade{
		{Result: database.ResultWin},
		{Result: database.ResultLoss},
	}
	s := newTestScheduler(store)

	openedAt := time.Date(2025, 6, 1, 9, 45, 0, 0, time.Local)
	trade := &database.Trade{
		Result:   database.ResultWin,
		Profit:   d("4.75"),
		OpenedAt: openedAt,
	}
	if err := s.UpdateHourlyPerformance(context.Background(), "R_100", trade); err != nil {
		t.Fatalf("UpdateHourlyPerformance() error = %v", err)
	}

	hp := store.buckets[570]
	if hp == nil {
		t.Fatal("bucket 570 not created")
	}
	if hp.TotalTrades != 1 || hp.WonTrades != 1 {
		t.Errorf("bucket counts = %d total / %d won, want 1/1", hp.TotalTrades, hp.WonTrades)
	}
	if !hp.ProfitTotal.Equal(d("4.75")) {
		t.Errorf("profit total = %s, want 4.75", hp.ProfitTotal)
	}
	if !hp.DynamicWinrate.Equal(d("50.00")) {
		t.Errorf("dynamic winrate = %s, want 50.00 from 1 win in 2 recent trades", hp.DynamicWinrate)
	}
}

func TestUpdateHourlyPerformanceTracksDrawdown(t *testing.T) {
	store := newFakeStore()
	s := newTestScheduler(store)
	ctx := context.Background()

	openedAt := time.Date(2025, 6, 1, 9, 0, 0, 0, time.Local)
	loss := func(amount string) *database.Trade {
		return &database.Trade{Result: database.ResultLoss, Profit: d(amount), OpenedAt: openedAt}
	}

	if err := s.UpdateHourlyPerformance(ctx, "R_100", loss("-10.00")); err != nil {
		t.Fatal(err)
	}
	if err := s.UpdateHourlyPerformance(ctx, "R_100", loss("-15.00")); err != nil {
		t.Fatal(err)
	}

	hp := store.buckets[540]
	if !hp.CurrentDrawdown.Equal(d("25.00")) {
		t.Errorf("current drawdown = %s, want 25.00", hp.CurrentDrawdown)
	}
	if !hp.MaxDrawdown.Equal(d("25.00")) {
		t.Errorf("max drawdown = %s, want 25.00", hp.MaxDrawdown)
	}

	win := &database.Trade{Result: database.ResultWin, Profit: d("9.00"), OpenedAt: openedAt}
	if err := s.UpdateHourlyPerformance(ctx, "R_100", win); err != nil {
		t.Fatal(err)
	}
	hp = store.buckets[540]
	if !hp.CurrentDrawdown.IsZero() {
		t.Errorf("current drawdown after win = %s, want 0", hp.CurrentDrawdown)
	}
	if !hp.MaxDrawdown.Equal(d("25.00")) {
		t.Errorf("max drawdown after win = %s, want 25.00 (retained)", hp.MaxDrawdown)
	}
}

func TestBestHour(t *testing.T) {
	store := newFakeStore()
	store.buckets[540] = &database.HourlyPerformance{HourBucket: 540, DynamicWinrate: d("70.00"), TotalTrades: 3}
	store.buckets[600] = &database.HourlyPerformance{HourBucket: 600, DynamicWinrate: d("60.00"), TotalTrades: 8}
	store.buckets[660] = &database.HourlyPerformance{HourBucket: 660, DynamicWinrate: d("40.00"), TotalTrades: 20}

	s := newTestScheduler(store)
	got, err := s.BestHour(context.Background(), "R_100")
	if err != nil {
		t.Fatalf("BestHour() error = %v", err)
	}
	// 540 has the best winrate but too few trades; 660 is below the
	// winrate floor; 600 qualifies.
	if got == nil || *got != 600 {
		t.Errorf("BestHour() = %v, want 600", got)
	}
}

func TestBestHourNoneQualify(t *testing.T) {
	store := newFakeStore()
	store.buckets[540] = &database.HourlyPerformance{HourBucket: 540, DynamicWinrate: d("54.99"), TotalTrades: 10}

	s := newTestScheduler(store)
	got, err := s.BestHour(context.Background(), "R_100")
	if err != nil {
		t.Fatalf("BestHour() error = %v", err)
	}
	if got != nil {
		t.Errorf("BestHour() = %d, want nil", *got)
	}
}
