package events

import (
	"sync"
	"time"
)

// EventType represents different types of events in the system
type EventType string

const (
	EventTradeCompleted     EventType = "TRADE_COMPLETED"
	EventTradePlaced        EventType = "TRADE_PLACED"
	EventSimulationFinished EventType = "SIMULATION_FINISHED"
	EventAccountPaused      EventType = "ACCOUNT_PAUSED"
	EventAccountResumed     EventType = "ACCOUNT_RESUMED"
	EventBalanceAdjusted    EventType = "BALANCE_ADJUSTED"
	EventBotStarted         EventType = "BOT_STARTED"
	EventBotStopped         EventType = "BOT_STOPPED"
	EventError              EventType = "ERROR"
)

// Event represents a system event
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// Subscriber is a function that handles events
type Subscriber func(Event)

// EventBus manages event publishing and subscriptions
type EventBus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]Subscriber
	allSubs     []Subscriber
}

// NewEventBus creates a new event bus
func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make(map[EventType][]Subscriber),
		allSubs:     make([]Subscriber, 0),
	}
}

// Subscribe registers a subscriber for a specific event type
func (eb *EventBus) Subscribe(eventType EventType, subscriber Subscriber) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.subscribers[eventType] = append(eb.subscribers[eventType], subscriber)
}

// SubscribeAll registers a subscriber for all events
func (eb *EventBus) SubscribeAll(subscriber Subscriber) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.allSubs = append(eb.allSubs, subscriber)
}

// Publish sends an event to all subscribers
func (eb *EventBus) Publish(event Event) {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	if subs, ok := eb.subscribers[event.Type]; ok {
		for _, sub := range subs {
			go sub(event) // Run in goroutine to avoid blocking
		}
	}

	for _, sub := range eb.allSubs {
		go sub(event)
	}
}

// PublishTradeCompleted publishes a completed-trade event
func (eb *EventBus) PublishTradeCompleted(contractID, asset, direction, result string, profit, stake string) {
	eb.Publish(Event{
		Type: EventTradeCompleted,
		Data: map[string]interface{}{
			"contract_id": contractID,
			"asset":       asset,
			"direction":   direction,
			"result":      result,
			"profit":      profit,
			"stake":       stake,
		},
	})
}

// PublishSimulationFinished publishes the outcome of a pause-horizon
// simulation run
func (eb *EventBus) PublishSimulationFinished(runID, bestAsset string, bestHour int, winrate string) {
	eb.Publish(Event{
		Type: EventSimulationFinished,
		Data: map[string]interface{}{
			"run_id":     runID,
			"best_asset": bestAsset,
			"best_hour":  bestHour,
			"winrate":    winrate,
		},
	})
}

// PublishAccountPaused publishes a stop-loss pause event
func (eb *EventBus) PublishAccountPaused(balance, accumulatedLoss string, pauseUntil time.Time) {
	eb.Publish(Event{
		Type: EventAccountPaused,
		Data: map[string]interface{}{
			"balance":          balance,
			"accumulated_loss": accumulatedLoss,
			"pause_until":      pauseUntil,
		},
	})
}

// PublishError publishes an error event
func (eb *EventBus) PublishError(component string, err error) {
	eb.Publish(Event{
		Type: EventError,
		Data: map[string]interface{}{
			"component": component,
			"error":     err.Error(),
		},
	})
}
