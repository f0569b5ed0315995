package deriv

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MockClient provides simulated market data for development and testing.
type MockClient struct {
	mu        sync.RWMutex
	prices    map[string]float64
	contracts map[string]*ContractResult

	// WinEverything forces every contract to settle as won (payout 0.95x)
	// instead of the default random outcome. Useful in tests.
	WinEverything bool
	// FailBuys makes BuyContract return an error, simulating a broker outage.
	FailBuys bool
}

// NewMockClient creates a mock broker with a fixed set of synthetic symbols.
func NewMockClient() *MockClient {
	return &MockClient{
		prices: map[string]float64{
			"R_10":     6300.0,
			"R_25":     2450.0,
			"R_50":     180.0,
			"R_75":     9800.0,
			"R_100":    1620.0,
			"frxEURUSD": 1.085,
			"frxGBPUSD": 1.265,
		},
		contracts: make(map[string]*ContractResult),
	}
}

// step applies a small random walk to a symbol's price.
func (mc *MockClient) step(symbol string) float64 {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	price, ok := mc.prices[symbol]
	if !ok {
		price = 100.0
	}
	price *= 1 + (rand.Float64()-0.5)*0.002
	mc.prices[symbol] = price
	return price
}

// TicksHistory returns a synthetic random-walk price series.
func (mc *MockClient) TicksHistory(_ context.Context, symbol string, count int) ([]decimal.Decimal, error) {
	prices := make([]decimal.Decimal, count)
	for i := 0; i < count; i++ {
		prices[i] = decimal.NewFromFloat(mc.step(symbol)).Round(5)
	}
	return prices, nil
}

// BuyContract simulates a contract purchase and pre-computes its outcome.
func (mc *MockClient) BuyContract(_ context.Context, req BuyRequest) (*BuyResult, error) {
	if mc.FailBuys {
		return nil, fmt.Errorf("mock broker unavailable")
	}

	contractID := "MOCK-" + uuid.New().String()
	stake := req.Amount.Round(2)

	won := mc.WinEverything || rand.Float64() < 0.5
	result := &ContractResult{
		ContractID: contractID,
		Status:     StatusLost,
		Profit:     stake.Neg(),
	}
	if won {
		result.Status = StatusWon
		result.Profit = stake.Mul(decimal.RequireFromString("0.95")).Round(2)
		result.SellPrice = stake.Add(result.Profit)
	}
	result.EntrySpot = decimal.NewFromFloat(mc.step(req.Symbol)).Round(5)
	result.ExitSpot = decimal.NewFromFloat(mc.step(req.Symbol)).Round(5)

	mc.mu.Lock()
	mc.contracts[contractID] = result
	mc.mu.Unlock()

	return &BuyResult{
		ContractID: contractID,
		BuyPrice:   stake,
		StartTime:  time.Now(),
	}, nil
}

// WaitForResult returns the pre-computed outcome of a mock contract.
func (mc *MockClient) WaitForResult(_ context.Context, contractID string, _ time.Duration) (*ContractResult, error) {
	mc.mu.RLock()
	result, ok := mc.contracts[contractID]
	mc.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown mock contract %s", contractID)
	}
	return result, nil
}

// Balance returns a fixed mock balance.
func (mc *MockClient) Balance(_ context.Context) (decimal.Decimal, error) {
	return decimal.RequireFromString("10000.00"), nil
}

// ActiveSymbols lists the mock symbol universe.
func (mc *MockClient) ActiveSymbols(_ context.Context) ([]Symbol, error) {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	symbols := make([]Symbol, 0, len(mc.prices))
	for name := range mc.prices {
		symbols = append(symbols, Symbol{Name: name, DisplayName: name, Market: "synthetic_index", IsOpen: true})
	}
	return symbols, nil
}

// StreamTicks emits one synthetic tick per second until ctx is cancelled.
func (mc *MockClient) StreamTicks(ctx context.Context, symbol string, out chan<- StreamTick) error {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			tick := StreamTick{
				Symbol:  symbol,
				Epoch:   now.Unix(),
				Quote:   decimal.NewFromFloat(mc.step(symbol)).Round(5),
				PipSize: 3,
			}
			select {
			case out <- tick:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}
