package queue

import (
	"context"
	"fmt"
	"sync"

	"github.com/streadway/amqp"
	"go.uber.org/zap"
)

// AMQPBus maps every topic to a fanout exchange. Each subscription binds its
// own exclusive, auto-deleted queue, so every subscriber sees every message
// published while it is connected.
type AMQPBus struct {
	conn *amqp.Connection
	log  *zap.Logger

	mu       sync.Mutex
	pub      *amqp.Channel
	declared map[string]bool
}

func NewAMQPBus(url string, log *zap.Logger) (*AMQPBus, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}
	return &AMQPBus{
		conn:     conn,
		log:      log,
		pub:      ch,
		declared: make(map[string]bool),
	}, nil
}

func declareExchange(ch *amqp.Channel, topic string) error {
	return ch.ExchangeDeclare(
		topic,    // name
		"fanout", // kind
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,
	)
}

func (b *AMQPBus) Publish(_ context.Context, topic string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.declared[topic] {
		if err := declareExchange(b.pub, topic); err != nil {
			return fmt.Errorf("declare exchange %s: %w", topic, err)
		}
		b.declared[topic] = true
	}
	return b.pub.Publish(
		topic, // exchange
		"",    // routing key
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Transient,
			Body:         payload,
		},
	)
}

func (b *AMQPBus) Subscribe(_ context.Context, topic string) (Subscription, error) {
	ch, err := b.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("amqp channel: %w", err)
	}
	fail := func(step string, err error) (Subscription, error) {
		_ = ch.Close()
		return nil, fmt.Errorf("%s %s: %w", step, topic, err)
	}

	if err := declareExchange(ch, topic); err != nil {
		return fail("declare exchange", err)
	}
	q, err := ch.QueueDeclare(
		"",    // server-named
		false, // durable
		true,  // delete when unused
		true,  // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		return fail("declare queue", err)
	}
	if err := ch.QueueBind(q.Name, "", topic, false, nil); err != nil {
		return fail("bind queue", err)
	}
	deliveries, err := ch.Consume(
		q.Name,
		"",    // consumer
		true,  // auto-ack
		true,  // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return fail("consume", err)
	}

	s := &amqpSubscription{
		ch:    ch,
		topic: topic,
		out:   make(chan Message),
		done:  make(chan struct{}),
	}
	go s.pump(deliveries)
	return s, nil
}

func (b *AMQPBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	_ = b.pub.Close()
	return b.conn.Close()
}

type amqpSubscription struct {
	ch    *amqp.Channel
	topic string
	out   chan Message
	done  chan struct{}
	once  sync.Once
}

func (s *amqpSubscription) pump(deliveries <-chan amqp.Delivery) {
	defer close(s.out)
	for d := range deliveries {
		select {
		case s.out <- Message{Topic: s.topic, Payload: d.Body}:
		case <-s.done:
			return
		}
	}
}

func (s *amqpSubscription) Messages() <-chan Message { return s.out }

func (s *amqpSubscription) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		err = s.ch.Close()
	})
	return err
}
