package queue

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/unclebandit/crm-pipeline/internal/metrics"
)

const defaultMemoryBuffer = 256

// InMemoryQueue is an in-process broker with the same at-most-once
// semantics as the networked drivers: a subscriber whose buffer is full
// misses the message.
type InMemoryQueue struct {
	mu     sync.Mutex
	subs   map[string]map[uint64]*memorySubscription
	nextID uint64
	buffer int
	closed bool
	log    *zap.Logger
}

// NewInMemoryQueue creates a new broker. buffer is the per-subscription
// channel capacity.
func NewInMemoryQueue(buffer int, log *zap.Logger) *InMemoryQueue {
	if buffer <= 0 {
		buffer = defaultMemoryBuffer
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &InMemoryQueue{
		subs:   make(map[string]map[uint64]*memorySubscription),
		buffer: buffer,
		log:    log,
	}
}

// Publish sends a message to all current subscribers of topic.
func (q *InMemoryQueue) Publish(_ context.Context, topic string, payload []byte) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrClosed
	}
	targets := make([]*memorySubscription, 0, len(q.subs[topic]))
	for _, s := range q.subs[topic] {
		targets = append(targets, s)
	}
	q.mu.Unlock()

	if len(targets) == 0 {
		q.log.Debug("no subscribers, message discarded", zap.String("topic", topic))
		return nil
	}

	body := append([]byte(nil), payload...)
	for _, s := range targets {
		if !s.deliver(Message{Topic: topic, Payload: body}) {
			metrics.BusDropped.WithLabelValues(topic).Inc()
			q.log.Warn("subscriber buffer full, message dropped", zap.String("topic", topic))
		}
	}
	return nil
}

// Subscribe adds a subscription for a topic.
func (q *InMemoryQueue) Subscribe(_ context.Context, topic string) (Subscription, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil, ErrClosed
	}

	id := q.nextID
	q.nextID++
	s := &memorySubscription{
		queue: q,
		topic: topic,
		id:    id,
		ch:    make(chan Message, q.buffer),
	}
	if q.subs[topic] == nil {
		q.subs[topic] = make(map[uint64]*memorySubscription)
	}
	q.subs[topic][id] = s
	return s, nil
}

// Close ends every subscription. Further publishes fail with ErrClosed.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	var all []*memorySubscription
	for _, byID := range q.subs {
		for _, s := range byID {
			all = append(all, s)
		}
	}
	q.subs = make(map[string]map[uint64]*memorySubscription)
	q.mu.Unlock()

	for _, s := range all {
		s.shut()
	}
	return nil
}

// Subscribers reports the number of open subscriptions on topic.
func (q *InMemoryQueue) Subscribers(topic string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.subs[topic])
}

// Handle returns a Bus view whose Close only releases the subscriptions
// opened through it.
func (q *InMemoryQueue) Handle() Bus {
	return &memoryHandle{queue: q}
}

func (q *InMemoryQueue) remove(s *memorySubscription) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if byID, ok := q.subs[s.topic]; ok {
		delete(byID, s.id)
		if len(byID) == 0 {
			delete(q.subs, s.topic)
		}
	}
}

type memorySubscription struct {
	queue *InMemoryQueue
	topic string
	id    uint64

	mu     sync.Mutex
	ch     chan Message
	closed bool
}

func (s *memorySubscription) Messages() <-chan Message { return s.ch }

func (s *memorySubscription) deliver(m Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return true
	}
	select {
	case s.ch <- m:
		return true
	default:
		return false
	}
}

func (s *memorySubscription) shut() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

func (s *memorySubscription) Close() error {
	s.queue.remove(s)
	s.shut()
	return nil
}

type memoryHandle struct {
	queue *InMemoryQueue

	mu     sync.Mutex
	subs   []*memorySubscription
	closed bool
}

func (h *memoryHandle) Publish(ctx context.Context, topic string, payload []byte) error {
	h.mu.Lock()
	closed := h.closed
	h.mu.Unlock()
	if closed {
		return ErrClosed
	}
	return h.queue.Publish(ctx, topic, payload)
}

func (h *memoryHandle) Subscribe(ctx context.Context, topic string) (Subscription, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, ErrClosed
	}
	sub, err := h.queue.Subscribe(ctx, topic)
	if err != nil {
		return nil, err
	}
	h.subs = append(h.subs, sub.(*memorySubscription))
	return sub, nil
}

func (h *memoryHandle) Close() error {
	h.mu.Lock()
	subs := h.subs
	h.subs = nil
	h.closed = true
	h.mu.Unlock()

	for _, s := range subs {
		_ = s.Close()
	}
	return nil
}
