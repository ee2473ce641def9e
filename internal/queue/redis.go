package queue

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/unclebandit/crm-pipeline/internal/config"
)

// RedisBus publishes and subscribes through Redis PUBLISH/SUBSCRIBE.
type RedisBus struct {
	client *redis.Client
	log    *zap.Logger
}

func NewRedisBus(ctx context.Context, cfg config.BusConfig, log *zap.Logger) (*RedisBus, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.RedisAddr, err)
	}
	return &RedisBus{client: client, log: log}, nil
}

func (b *RedisBus) Publish(ctx context.Context, topic string, payload []byte) error {
	n, err := b.client.Publish(ctx, topic, payload).Result()
	if err != nil {
		return err
	}
	if n == 0 {
		b.log.Debug("no subscribers, message discarded", zap.String("topic", topic))
	}
	return nil
}

func (b *RedisBus) Subscribe(ctx context.Context, topic string) (Subscription, error) {
	ps := b.client.Subscribe(ctx, topic)
	// Wait for the subscription confirmation so messages published after
	// Subscribe returns are not missed.
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("redis subscribe %s: %w", topic, err)
	}

	s := &redisSubscription{
		ps:   ps,
		out:  make(chan Message),
		done: make(chan struct{}),
	}
	go s.pump()
	return s, nil
}

func (b *RedisBus) Close() error {
	return b.client.Close()
}

type redisSubscription struct {
	ps   *redis.PubSub
	out  chan Message
	done chan struct{}
	once sync.Once
}

func (s *redisSubscription) pump() {
	defer close(s.out)
	for m := range s.ps.Channel() {
		select {
		case s.out <- Message{Topic: m.Channel, Payload: []byte(m.Payload)}:
		case <-s.done:
			return
		}
	}
}

func (s *redisSubscription) Messages() <-chan Message { return s.out }

func (s *redisSubscription) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		err = s.ps.Close()
	})
	return err
}
