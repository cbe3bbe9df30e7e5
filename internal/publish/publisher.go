package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Publisher pushes decision and optimization events to downstream consumers.
// Resolved once at startup: deployments without a broker get the no-op
// implementation instead of per-call feature checks.
type Publisher interface {
	PublishDecision(ctx context.Context, event DecisionEvent) error
	PublishOptimization(ctx context.Context, event OptimizationEvent) error
	Close() error
}

// DecisionEvent is the published shape of one evaluation outcome.
type DecisionEvent struct {
	Symbol    string    `json:"symbol"`
	Side      string    `json:"side"`
	Accepted  bool      `json:"accepted"`
	Score     float64   `json:"score"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}

// OptimizationEvent is the published shape of one optimization or rollback.
type OptimizationEvent struct {
	Kind                string    `json:"kind"` // "optimization" or "rollback"
	ValidationPassed    bool      `json:"validation_passed"`
	ExpectedImprovement float64   `json:"expected_improvement"`
	Timestamp           time.Time `json:"timestamp"`
}

const (
	decisionChannel     = "signalgate:decisions"
	optimizationChannel = "signalgate:optimizations"
)

// RedisPublisher publishes events over Redis pub/sub.
type RedisPublisher struct {
	client *redis.Client
}

// NewRedisPublisher connects to Redis and verifies the connection.
func NewRedisPublisher(ctx context.Context, addr string) (*RedisPublisher, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  5 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect redis publisher: %w", err)
	}
	return &RedisPublisher{client: client}, nil
}

func (p *RedisPublisher) PublishDecision(ctx context.Context, event DecisionEvent) error {
	return p.publish(ctx, decisionChannel, event)
}

func (p *RedisPublisher) PublishOptimization(ctx context.Context, event OptimizationEvent) error {
	return p.publish(ctx, optimizationChannel, event)
}

func (p *RedisPublisher) publish(ctx context.Context, channel string, event interface{}) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := p.client.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", channel, err)
	}
	return nil
}

func (p *RedisPublisher) Close() error {
	return p.client.Close()
}

// NopPublisher discards all events. Registered when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) PublishDecision(context.Context, DecisionEvent) error         { return nil }
func (NopPublisher) PublishOptimization(context.Context, OptimizationEvent) error { return nil }
func (NopPublisher) Close() error                                                 { return nil }

// Resolve returns a Redis publisher when addr is set, otherwise the no-op.
// Connection failure degrades to the no-op with a warning rather than
// blocking startup.
func Resolve(ctx context.Context, addr string) Publisher {
	if addr == "" {
		return NopPublisher{}
	}
	p, err := NewRedisPublisher(ctx, addr)
	if err != nil {
		log.Warn().Err(err).Str("addr", addr).Msg("Event publisher unavailable, events disabled")
		return NopPublisher{}
	}
	log.Info().Str("addr", addr).Msg("Event publisher connected")
	return p
}
