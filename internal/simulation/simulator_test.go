package simulation

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
	assets      []database.Asset
	ticks       map[string][]database.Tick
	trades      []database.Trade
	hourResults []database.SimulationHourResult
	simUpdates  map[string]decimal.Decimal
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		ticks:      make(map[string][]database.Tick),
		simUpdates: make(map[string]decimal.Decimal),
	}
}

func (f *fakeStore) EnabledAssets(_ context.Context) ([]database.Asset, error) {
	return f.assets, nil
}

func (f *fakeStore) TicksSince(_ context.Context, asset string, _ time.Time) ([]database.Tick, error) {
	return f.ticks[asset], nil
}

func (f *fakeStore) CreateTrade(_ context.Context, trade *database.Trade) error {
	f.trades = append(f.trades, *trade)
	return nil
}

func (f *fakeStore) ContractIDExists(_ context.Context, contractID string) (bool, error) {
	for _, t := range f.trades {
		if t.ContractID == contractID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) CreateSimulationHourResult(_ context.Context, res *database.SimulationHourResult) error {
	f.hourResults = append(f.hourResults, *res)
	return nil
}

func (f *fakeStore) UpdateAssetSimulation(_ context.Context, name string, winrate decimal.Decimal, _ *int, _ time.Time) error {
	f.simUpdates[name] = winrate
	return nil
}

type fakeAccounts struct {
	bestAsset string
	bestHour  int
	touched   int
	setCalls  int
}

func (f *fakeAccounts) SetBestHour(_ context.Context, asset string, bestHour int, _ time.Time) error {
	f.bestAsset = asset
	f.bestHour = bestHour
	f.setCalls++
	return nil
}

func (f *fakeAccounts) TouchSimulation(_ context.Context, _ time.Time) error {
	f.touched++
	return nil
}

// risingTicks builds a strictly rising series within one local hour.
func risingTicks(asset string, base time.Time, count int) []database.Tick {
	ticks := make([]database.Tick, count)
	price := d("100.00000")
	for i := 0; i < count; i++ {
		price = price.Add(d("0.5"))
		ticks[i] = database.Tick{
			Asset: asset,
			Epoch: base.Add(time.Duration(i) * time.Second).Unix(),
			Price: price,
		}
	}
	return ticks
}

func newTestSimulator(store *fakeStore, accounts *fakeAccounts) *Simulator {
	return New(store, accounts, nil, DefaultConfig(), zerolog.Nop())
}

func TestHashContractIDDeterministic(t *testing.T) {
	a := hashContractID("R_100", 1000, 1060, "run-1", "")
	b := hashContractID("R_100", 1000, 1060, "run-1", "")
	if a != b {
		t.Errorf("same inputs produced different ids: %s vs %s", a, b)
	}
	if len(a) != contractIDWidth {
		t.Errorf("contract id length = %d, want %d", len(a), contractIDWidth)
	}

	c := hashContractID("R_100", 1000, 1060, "run-2", "")
	if a == c {
		t.Error("different run ids produced the same contract id")
	}

	salted := hashContractID("R_100", 1000, 1060, "run-1", "salt")
	if a == salted {
		t.Error("salting did not change the contract id")
	}
}

func TestRunPromotesWinningBucket(t *testing.T) {
	store := newFakeStore()
	store.assets = []database.Asset{{Name: "R_100", Enabled: true}}

	// A rising series: every CALL entry wins.
	hourStart := time.Now().Add(-2 * time.Hour).Truncate(time.Hour)
	store.ticks["R_100"] = risingTicks("R_100", hourStart, 40)

	accounts := &fakeAccounts{}
	sim := newTestSimulator(store, accounts)

	best, err := sim.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if best == nil {
		t.Fatal("Run() = nil, want a winning bucket")
	}
	if best.Asset != "R_100" {
		t.Errorf("best asset = %s, want R_100", best.Asset)
	}
	if !best.Winrate.Equal(d("100.00")) {
		t.Errorf("winrate = %s, want 100.00 for a strictly rising series", best.Winrate)
	}
	if accounts.setCalls != 1 || accounts.bestAsset != "R_100" {
		t.Errorf("best hour not promoted to account: %+v", accounts)
	}
	if len(store.trades) == 0 {
		t.Fatal("no synthetic trades persisted")
	}
	for _, trade := range store.trades {
		if !trade.IsSimulated {
			t.Error("simulator persisted a non-simulated trade")
		}
		if trade.Direction != "CALL" {
			t.Errorf("direction = %s, want CALL on a rising series", trade.Direction)
		}
		if trade.Result != database.ResultWin {
			t.Errorf("result = %s, want WIN on a rising series", trade.Result)
		}
		if len(trade.ContractID) != contractIDWidth {
			t.Errorf("contract id %q has length %d, want %d", trade.ContractID, len(trade.ContractID), contractIDWidth)
		}
	}
}

func TestRunCapsTradesPerBucket(t *testing.T) {
	store := newFakeStore()
	store.assets = []database.Asset{{Name: "R_100", Enabled: true}}
	hourStart := time.Now().Add(-2 * time.Hour).Truncate(time.Hour)
	store.ticks["R_100"] = risingTicks("R_100", hourStart, 500)

	sim := newTestSimulator(store, &fakeAccounts{})
	if _, err := sim.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(store.trades) > DefaultConfig().TradesPerHour {
		t.Errorf("generated %d trades in one bucket, want at most %d", len(store.trades), DefaultConfig().TradesPerHour)
	}
}

func TestFlatExitCountsAsLoss(t *testing.T) {
	store := newFakeStore()
	store.assets = []database.Asset{{Name: "R_100", Enabled: true}}

	// Rise on the first move to pick CALL, then hold perfectly flat so
	// the exit equals the entry.
	hourStart := time.Now().Add(-2 * time.Hour).Truncate(time.Hour)
	ticks := []database.Tick{
		{Asset: "R_100", Epoch: hourStart.Unix(), Price: d("100")},
		{Asset: "R_100", Epoch: hourStart.Add(1 * time.Second).Unix(), Price: d("101")},
	}
	for i := 2; i < 10; i++ {
		ticks = append(ticks, database.Tick{
			Asset: "R_100",
			Epoch: hourStart.Add(time.Duration(i) * time.Second).Unix(),
			Price: d("101"),
		})
	}
	store.ticks["R_100"] = ticks

	sim := newTestSimulator(store, &fakeAccounts{})
	if _, err := sim.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(store.trades) == 0 {
		t.Fatal("no trades generated")
	}
	for _, trade := range store.trades {
		if trade.ClosePrice.Equal(trade.EntryPrice) && trade.Result != database.ResultLoss {
			t.Errorf("flat exit scored %s, want LOSS", trade.Result)
		}
	}
}

func TestRunZeroesAssetsWithoutBuckets(t *testing.T) {
	store := newFakeStore()
	store.assets = []database.Asset{
		{Name: "R_100", Enabled: true},
		{Name: "R_50", Enabled: true}, // no ticks at all
	}
	hourStart := time.Now().Add(-2 * time.Hour).Truncate(time.Hour)
	store.ticks["R_100"] = risingTicks("R_100", hourStart, 40)

	sim := newTestSimulator(store, &fakeAccounts{})
	if _, err := sim.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got, ok := store.simUpdates["R_50"]; !ok || !got.IsZero() {
		t.Errorf("asset without ticks: winrate = %v (ok=%v), want zeroed", got, ok)
	}
}

func TestMaybeRunGates(t *testing.T) {
	store := newFakeStore()
	accounts := &fakeAccounts{}
	sim := newTestSimulator(store, accounts)
	ctx := context.Background()

	// Not paused: no run.
	ran, err := sim.MaybeRun(ctx, &database.Account{State: database.StateTrading})
	if err != nil || ran {
		t.Errorf("MaybeRun(TRADING) = (%v, %v), want (false, nil)", ran, err)
	}

	// Paused but simulated recently: no run.
	recent := time.Now().Add(-time.Minute)
	ran, err = sim.MaybeRun(ctx, &database.Account{State: database.StatePaused, LastSimulationAt: &recent})
	if err != nil || ran {
		t.Errorf("MaybeRun(recent) = (%v, %v), want (false, nil)", ran, err)
	}

	// Paused and stale: runs and stamps.
	stale := time.Now().Add(-2 * time.Hour)
	ran, err = sim.MaybeRun(ctx, &database.Account{State: database.StatePaused, LastSimulationAt: &stale})
	if err != nil {
		t.Fatalf("MaybeRun(stale) error = %v", err)
	}
	if !ran {
		t.Error("MaybeRun(stale) = false, want true")
	}
	if accounts.touched != 1 {
		t.Errorf("simulation stamp calls = %d, want 1", accounts.touched)
	}
}
