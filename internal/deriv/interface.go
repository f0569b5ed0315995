package deriv

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// BrokerClient defines the operations the bot needs from the Deriv API.
type BrokerClient interface {
	// TicksHistory returns the latest count prices for a symbol, oldest first.
	TicksHistory(ctx context.Context, symbol string, count int) ([]decimal.Decimal, error)
	// BuyContract places a binary contract and returns the broker's buy receipt.
	BuyContract(ctx context.Context, req BuyRequest) (*BuyResult, error)
	// WaitForResult polls the contract until it reaches a terminal status or
	// the timeout elapses. Timing out is an error, never a silent wait.
	WaitForResult(ctx context.Context, contractID string, timeout time.Duration) (*ContractResult, error)
	// Balance returns the account balance reported by the broker.
	Balance(ctx context.Context) (decimal.Decimal, error)
	// ActiveSymbols lists the symbols currently offered by the broker.
	ActiveSymbols(ctx context.Context) ([]Symbol, error)
	// StreamTicks subscribes to the symbol's tick stream and delivers ticks
	// on the channel until ctx is cancelled or the stream fails.
	StreamTicks(ctx context.Context, symbol string, out chan<- StreamTick) error
}

// BuyRequest describes one contract purchase.
type BuyRequest struct {
	Symbol       string
	Amount       decimal.Decimal
	Duration     int
	DurationUnit string
	ContractType string
}

// BuyResult is the broker's receipt for a placed contract.
type BuyResult struct {
	ContractID string
	BuyPrice   decimal.Decimal
	StartTime  time.Time
}

// Contract terminal statuses as reported by the broker. Anything other
// than StatusWon is treated as lost.
const (
	StatusWon  = "won"
	StatusLost = "lost"
)

// ContractResult is the terminal outcome of a contract.
type ContractResult struct {
	ContractID string
	Status     string
	Profit     decimal.Decimal
	SellPrice  decimal.Decimal
	EntrySpot  decimal.Decimal
	ExitSpot   decimal.Decimal
}

// Symbol is one tradable instrument offered by the broker.
type Symbol struct {
	Name        string
	DisplayName string
	Market      string
	IsOpen      bool
}

// StreamTick is one tick delivered by a live subscription.
type StreamTick struct {
	Symbol     string
	Epoch      int64
	Quote      decimal.Decimal
	PipSize    int
	RawPayload []byte
}

// Ensure both Client and MockClient implement BrokerClient
var _ BrokerClient = (*Client)(nil)
var _ BrokerClient = (*MockClient)(nil)
