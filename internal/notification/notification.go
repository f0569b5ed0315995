package notification

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"deriv-trading-bot/internal/database"
)

// NotificationType represents the type of notification
type NotificationType string

const (
	NotifyPause  NotificationType = "pause"
	NotifyResume NotificationType = "resume"
	NotifyTrade  NotificationType = "trade"
	NotifyError  NotificationType = "error"
)

// Notification represents a notification message
type Notification struct {
	Type      NotificationType
	Title     string
	Message   string
	Timestamp time.Time
}

// Notifier interface for different notification providers
type Notifier interface {
	Send(ctx context.Context, notification *Notification) error
	Name() string
	IsEnabled() bool
}

// Manager manages multiple notification providers. Delivery is
// best-effort: provider failures are logged and never propagate.
type Manager struct {
	notifiers []Notifier
	enabled   bool
	logger    zerolog.Logger
}

// NewManager creates a new notification manager
func NewManager(enabled bool, logger zerolog.Logger) *Manager {
	return &Manager{
		notifiers: make([]Notifier, 0),
		enabled:   enabled,
		logger:    logger.With().Str("component", "notification").Logger(),
	}
}

// AddNotifier adds a notification provider
func (m *Manager) AddNotifier(n Notifier) {
	m.notifiers = append(m.notifiers, n)
}

// Send delivers a notification to all enabled providers.
func (m *Manager) Send(ctx context.Context, notification *Notification) error {
	if !m.enabled {
		return nil
	}
	if notification.Timestamp.IsZero() {
		notification.Timestamp = time.Now()
	}

	var lastErr error
	for _, n := range m.notifiers {
		if !n.IsEnabled() {
			continue
		}
		if err := n.Send(ctx, notification); err != nil {
			m.logger.Warn().Err(err).Str("provider", n.Name()).Msg("notification delivery failed")
			lastErr = err
		}
	}
	return lastErr
}

// Notify renders an account state-change message and sends it. This
// satisfies the account manager's notifier contract.
func (m *Manager) Notify(ctx context.Context, kind string, acct *database.Account) error {
	var n *Notification
	switch kind {
	case "paused":
		until := "unknown"
		if acct.PauseUntil != nil {
			until = acct.PauseUntil.Format(time.RFC3339)
		}
		n = &Notification{
			Type:  NotifyPause,
			Title: "Trading paused: stop-loss reached",
			Message: fmt.Sprintf(
				"Accumulated loss %s reached the stop-loss target %s.\nBalance: %s\nPaused until %s.",
				acct.AccumulatedLoss, acct.StoplossTarget, acct.Balance, until,
			),
		}
	case "resumed":
		n = &Notification{
			Type:  NotifyResume,
			Title: "Trading resumed",
			Message: fmt.Sprintf(
				"Pause elapsed. Balance %s, new goal target %s, new stop-loss target %s.",
				acct.Balance, acct.GoalTarget, acct.StoplossTarget,
			),
		}
	default:
		n = &Notification{
			Type:    NotifyError,
			Title:   "Account event: " + kind,
			Message: fmt.Sprintf("Balance: %s, state: %s", acct.Balance, acct.State),
		}
	}
	return m.Send(ctx, n)
}

// SendTradeResult announces a finalized trade.
func (m *Manager) SendTradeResult(ctx context.Context, trade *database.Trade) error {
	outcome := "lost"
	if trade.Result == database.ResultWin {
		outcome = "won"
	}
	return m.Send(ctx, &Notification{
		Type:  NotifyTrade,
		Title: fmt.Sprintf("Trade %s: %s %s", outcome, trade.Asset, trade.Direction),
		Message: fmt.Sprintf(
			"Contract %s\nStake: %s, profit: %s\nEntry: %s, close: %s",
			trade.ContractID, trade.Stake, trade.Profit, trade.EntryPrice, trade.ClosePrice,
		),
	})
}
