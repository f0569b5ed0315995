package engine

import (
	"context"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"deriv-trading-bot/internal/database"
	"deriv-trading-bot/internal/deriv"
	"deriv-trading-bot/internal/events"
)

// TradingEngine evaluates the market and, when a signal qualifies, places
// and settles one contract. A nil trade with a nil error means the cycle
// produced no actionable signal.
type TradingEngine interface {
	Name() string
	EvaluateAndExecute(ctx context.Context) (*database.Trade, error)
}

// Store is the persistence surface the engines need.
type Store interface {
	GetAccount(ctx context.Context) (*database.Account, error)
	EnabledAssets(ctx context.Context) ([]database.Asset, error)
	CreateTrade(ctx context.Context, trade *database.Trade) error
	FinalizeTrade(ctx context.Context, trade *database.Trade) error
	ContractIDExists(ctx context.Context, contractID string) (bool, error)
	UpsertAssetIndicators(ctx context.Context, ind *database.AssetIndicators) error
	BestPerformanceBuckets(ctx context.Context, asset string) ([]database.HourlyPerformance, error)
}

// Accounts is the account surface the executor needs.
type Accounts interface {
	SetInTrade(ctx context.Context, inTrade bool) error
	ApplyTradeResult(ctx context.Context, trade *database.Trade) (*database.Account, error)
}

// TradeNotifier announces finalized trades. May be backed by the
// notification manager; delivery failures never affect settlement.
type TradeNotifier interface {
	SendTradeResult(ctx context.Context, trade *database.Trade) error
}

// Signal is one qualified trading decision handed to the executor.
type Signal struct {
	Asset      string
	Direction  string
	Stake      decimal.Decimal
	EntryPrice decimal.Decimal
	Confidence decimal.Decimal
}

// ExecutionConfig holds contract parameters shared by both engines.
type ExecutionConfig struct {
	ContractDuration  int
	DurationUnit      string
	SettlementTimeout time.Duration
}

// Executor owns the place-and-settle lifecycle of a single contract. The
// trade row is created as PENDING before the broker call so a crash or
// broker failure can never leave money unaccounted for; every failure
// path settles the row as a loss of the full stake.
type Executor struct {
	store    Store
	accounts Accounts
	broker   deriv.BrokerClient
	bus      *events.EventBus
	notifier TradeNotifier
	config   ExecutionConfig
	logger   zerolog.Logger
	now      func() time.Time
}

// NewExecutor creates a trade executor. bus and notifier may be nil.
func NewExecutor(
	store Store,
	accounts Accounts,
	broker deriv.BrokerClient,
	bus *events.EventBus,
	notifier TradeNotifier,
	config ExecutionConfig,
	logger zerolog.Logger,
) *Executor {
	if config.SettlementTimeout <= 0 {
		config.SettlementTimeout = 120 * time.Second
	}
	return &Executor{
		store:    store,
		accounts: accounts,
		broker:   broker,
		bus:      bus,
		notifier: notifier,
		config:   config,
		logger:   logger.With().Str("component", "executor").Logger(),
		now:      time.Now,
	}
}

// Execute places the contract described by the signal and blocks until it
// settles. Broker failures after the trade row exists are absorbed: the
// trade is settled as a full-stake loss and returned with a nil error so
// the decision loop keeps running.
func (e *Executor) Execute(ctx context.Context, sig Signal) (*database.Trade, error) {
	if err := e.accounts.SetInTrade(ctx, true); err != nil {
		return nil, fmt.Errorf("marking account in trade: %w", err)
	}

	trade := &database.Trade{
		Asset:      sig.Asset,
		Direction:  sig.Direction,
		EntryPrice: sig.EntryPrice,
		ClosePrice: sig.EntryPrice,
		Stake:      sig.Stake,
		Confidence: sig.Confidence,
		Result:     database.ResultPending,
		ContractID: "PEND-" + uuid.New().String(),
		OpenedAt:   e.now(),
	}
	if err := e.store.CreateTrade(ctx, trade); err != nil {
		e.clearInTrade(ctx)
		return nil, fmt.Errorf("creating pending trade: %w", err)
	}

	buy, err := e.broker.BuyContract(ctx, deriv.BuyRequest{
		Symbol:       sig.Asset,
		Amount:       sig.Stake,
		Duration:     e.config.ContractDuration,
		DurationUnit: e.config.DurationUnit,
		ContractType: sig.Direction,
	})
	if err != nil {
		e.logger.Error().Err(err).Str("asset", sig.Asset).Msg("contract purchase failed")
		return e.settleFailed(ctx, trade)
	}

	result, err := e.broker.WaitForResult(ctx, buy.ContractID, e.config.SettlementTimeout)
	if err != nil {
		e.logger.Error().Err(err).Str("contract_id", buy.ContractID).Msg("contract settlement failed")
		trade.ContractID = buy.ContractID
		return e.settleFailed(ctx, trade)
	}

	closedAt := e.now()
	trade.ClosedAt = &closedAt
	trade.ClosePrice = result.SellPrice.Round(5)
	trade.Profit = result.Profit.Round(2)
	if result.Status == deriv.StatusWon {
		trade.Result = database.ResultWin
	} else {
		trade.Result = database.ResultLoss
	}

	contractID, err := e.uniqueContractID(ctx, buy.ContractID)
	if err != nil {
		e.clearInTrade(ctx)
		return nil, err
	}
	trade.ContractID = contractID

	return e.finalize(ctx, trade)
}

// settleFailed closes a trade whose broker interaction failed: a loss of
// the full stake at the entry price.
func (e *Executor) settleFailed(ctx context.Context, trade *database.Trade) (*database.Trade, error) {
	closedAt := e.now()
	trade.ClosedAt = &closedAt
	trade.ClosePrice = trade.EntryPrice
	trade.Result = database.ResultLoss
	trade.Profit = trade.Stake.Neg().Round(2)
	return e.finalize(ctx, trade)
}

func (e *Executor) finalize(ctx context.Context, trade *database.Trade) (*database.Trade, error) {
	if err := e.store.FinalizeTrade(ctx, trade); err != nil {
		e.clearInTrade(ctx)
		return nil, fmt.Errorf("finalizing trade %s: %w", trade.ContractID, err)
	}
	if _, err := e.accounts.ApplyTradeResult(ctx, trade); err != nil {
		e.clearInTrade(ctx)
		return nil, fmt.Errorf("applying trade result: %w", err)
	}
	e.clearInTrade(ctx)

	if e.bus != nil {
		e.bus.PublishTradeCompleted(
			trade.ContractID, trade.Asset, trade.Direction, trade.Result,
			trade.Profit.String(), trade.Stake.String(),
		)
	}
	if e.notifier != nil {
		if err := e.notifier.SendTradeResult(ctx, trade); err != nil {
			e.logger.Warn().Err(err).Msg("trade notification failed")
		}
	}

	e.logger.Info().
		Str("asset", trade.Asset).
		Str("direction", trade.Direction).
		Str("result", trade.Result).
		Str("profit", trade.Profit.String()).
		Str("contract_id", trade.ContractID).
		Msg("trade settled")
	return trade, nil
}

// uniqueContractID guards the unique contract_id column against a broker
// id that already exists, suffixing a short random tag when it does.
func (e *Executor) uniqueContractID(ctx context.Context, id string) (string, error) {
	exists, err := e.store.ContractIDExists(ctx, id)
	if err != nil {
		return "", fmt.Errorf("checking contract id: %w", err)
	}
	if !exists {
		return id, nil
	}

	u := uuid.New()
	suffixed := id + "-" + hex.EncodeToString(u[:])[:8]
	e.logger.Warn().Str("contract_id", id).Str("suffixed", suffixed).Msg("duplicate broker contract id")
	return suffixed, nil
}

func (e *Executor) clearInTrade(ctx context.Context) {
	if err := e.accounts.SetInTrade(context.WithoutCancel(ctx), false); err != nil {
		e.logger.Error().Err(err).Msg("failed to clear in-trade flag")
	}
}
