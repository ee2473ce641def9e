package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/unclebandit/crm-pipeline/internal/config"
	"github.com/unclebandit/crm-pipeline/internal/metrics"
)

// ErrClosed is returned when publishing or subscribing on a closed handle.
var ErrClosed = errors.New("queue: bus handle closed")

// Message is one payload received from a topic.
type Message struct {
	Topic   string
	Payload []byte
}

// Bus is a publish/subscribe handle. Delivery is at-most-once: a message
// published while nobody is subscribed is gone, and publishers get no
// confirmation that any subscriber handled it.
type Bus interface {
	Publish(ctx context.Context, topic string, payload []byte) error
	Subscribe(ctx context.Context, topic string) (Subscription, error)
	Close() error
}

// Subscription delivers messages for one topic until closed.
type Subscription interface {
	Messages() <-chan Message
	Close() error
}

// Connector hands out bus handles. Every consumer acquires its own handle at
// startup and closes it on shutdown.
type Connector struct {
	cfg    config.BusConfig
	log    *zap.Logger
	memory *InMemoryQueue
}

func NewConnector(cfg config.BusConfig, log *zap.Logger) *Connector {
	if log == nil {
		log = zap.NewNop()
	}
	c := &Connector{cfg: cfg, log: log}
	if cfg.Driver == config.BusMemory {
		c.memory = NewInMemoryQueue(cfg.MemoryBuffer, log)
	}
	return c
}

// Connect opens a new handle on the configured driver.
func (c *Connector) Connect(ctx context.Context) (Bus, error) {
	switch c.cfg.Driver {
	case config.BusRedis:
		return NewRedisBus(ctx, c.cfg, c.log)
	case config.BusAMQP:
		return NewAMQPBus(c.cfg.AMQPURL, c.log)
	case config.BusMemory:
		return c.memory.Handle(), nil
	default:
		return nil, fmt.Errorf("queue: unsupported driver %q", c.cfg.Driver)
	}
}

// Close releases driver state shared between handles.
func (c *Connector) Close() error {
	if c.memory != nil {
		return c.memory.Close()
	}
	return nil
}

// PublishJSON encodes v and publishes it on topic.
func PublishJSON(ctx context.Context, bus Bus, topic string, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", topic, err)
	}
	if err := bus.Publish(ctx, topic, body); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	metrics.MessagesPublished.WithLabelValues(topic).Inc()
	return nil
}
