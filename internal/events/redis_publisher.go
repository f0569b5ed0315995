package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisPublisher forwards bus events to a Redis pub/sub channel for the
// live dashboard. Publishing is best-effort: a nil client or an
// unavailable Redis never surfaces an error to the core.
type RedisPublisher struct {
	client  *redis.Client
	channel string
	logger  zerolog.Logger
}

// NewRedisPublisher creates a publisher. client may be nil, in which case
// every publish is a no-op.
func NewRedisPublisher(client *redis.Client, channel string, logger zerolog.Logger) *RedisPublisher {
	return &RedisPublisher{
		client:  client,
		channel: channel,
		logger:  logger.With().Str("component", "redis-publisher").Logger(),
	}
}

// Attach subscribes the publisher to every event on the bus.
func (p *RedisPublisher) Attach(bus *EventBus) {
	bus.SubscribeAll(p.handle)
}

func (p *RedisPublisher) handle(event Event) {
	if p.client == nil {
		return
	}

	payload, err := json.Marshal(event)
	if err != nil {
		p.logger.Warn().Err(err).Str("type", string(event.Type)).Msg("failed to marshal event")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := p.client.Publish(ctx, p.channel, payload).Err(); err != nil {
		p.logger.Debug().Err(err).Str("type", string(event.Type)).Msg("dashboard publish failed")
	}
}
