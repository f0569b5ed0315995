package database

import (
	"time"

	"github.com/shopspring/decimal"
)

// Account state values
const (
	StateTrading = "TRADING"
	StatePaused  = "PAUSED"
)

// Trade result values
const (
	ResultWin     = "WIN"
	ResultLoss    = "LOSS"
	ResultPending = "PENDING"
)

// Account is the single-row aggregate holding balance bookkeeping and the
// pause/resume state machine fields. BestHour is stored as minute-of-day;
// nil means no best hour is set.
type Account struct {
	ID               int64
	Balance          decimal.Decimal
	GoalBase         decimal.Decimal
	StoplossBase     decimal.Decimal
	GoalTarget       decimal.Decimal
	StoplossTarget   decimal.Decimal
	AccumulatedLoss  decimal.Decimal
	AccumulatedGain  decimal.Decimal
	State            string
	SelectedAsset    string
	InTrade          bool
	PausedSince      *time.Time
	PauseUntil       *time.Time
	BestHour         *int
	LastSimulationAt *time.Time
	UpdatedAt        time.Time
}

// Asset is one tradable instrument.
type Asset struct {
	ID                 int64
	Name               string
	Enabled            bool
	SimulationWinrate  decimal.Decimal
	SimulationBestHour *int
	LastSimulationAt   *time.Time
}

// Trade is one placed (or simulated) contract.
type Trade struct {
	ID          int64
	Asset       string
	Direction   string
	EntryPrice  decimal.Decimal
	ClosePrice  decimal.Decimal
	Stake       decimal.Decimal
	Confidence  decimal.Decimal
	Result      string
	ContractID  string
	OpenedAt    time.Time
	ClosedAt    *time.Time
	Profit      decimal.Decimal
	IsSimulated bool
}

// Tick is one price observation, unique per (asset, epoch).
type Tick struct {
	ID         int64
	Asset      string
	Epoch      int64
	Price      decimal.Decimal
	PipSize    int
	RawPayload []byte
}

// BalanceAdjustment is an append-only audit row recording reconciliation
// drift between the broker balance and local bookkeeping.
type BalanceAdjustment struct {
	ID              int64
	ExpectedBalance decimal.Decimal
	RealBalance     decimal.Decimal
	Difference      decimal.Decimal
	PreviousBalance decimal.Decimal
	Description     string
	DetectedAt      time.Time
}

// HourlyPerformance aggregates real trade outcomes per asset and
// 30-minute bucket. HourBucket is minute-of-day rounded down to a
// half-hour boundary.
type HourlyPerformance struct {
	ID              int64
	Asset           string
	HourBucket      int
	DynamicWinrate  decimal.Decimal
	TotalTrades     int
	WonTrades       int
	LostTrades      int
	ProfitTotal     decimal.Decimal
	LossTotal       decimal.Decimal
	MaxDrawdown     decimal.Decimal
	CurrentDrawdown decimal.Decimal
	UpdatedAt       time.Time
}

// AssetIndicators is the latest indicator snapshot for an asset,
// overwritten on every analysis cycle.
type AssetIndicators struct {
	ID                 int64
	Asset              string
	Momentum           decimal.Decimal
	MomentumPct        decimal.Decimal
	Volatility         decimal.Decimal
	EMA                decimal.Decimal
	CurrentPrice       decimal.Decimal
	RateOfChange       decimal.Decimal
	MovementStrength   decimal.Decimal
	Consistency        decimal.Decimal
	TotalScore         decimal.Decimal
	SuggestedDirection string
	TicksAnalyzed      int
	ComputedAt         time.Time
}

// Cooldown suppresses trading on an asset until ExpiresAt.
type Cooldown struct {
	ID        int64
	Asset     string
	Reason    string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// SimulationHourResult is one hour-bucket summary from a pause-horizon
// simulation run, keyed by (asset, hour bucket, run id).
type SimulationHourResult struct {
	ID          int64
	RunID       string
	Asset       string
	HourBucket  int
	Winrate     decimal.Decimal
	TotalTrades int
	WonTrades   int
	CreatedAt   time.Time
}
