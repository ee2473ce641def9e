// Package provider simulates the third-party messaging vendor. Each send draws
// an outcome and a delay, waits, then reports a receipt through a ReceiptSink.
package provider

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/unclebandit/crm-pipeline/internal/metrics"
	"github.com/unclebandit/crm-pipeline/internal/model"
)

// ErrClosed is reported for sends that were cancelled or rejected by Close.
var ErrClosed = errors.New("provider: simulator closed")

const (
	DefaultSuccessRate = 0.9
	DefaultMinDelay    = 500 * time.Millisecond
	DefaultMaxDelay    = 1500 * time.Millisecond
)

// ReceiptSink receives the simulated vendor callback.
type ReceiptSink interface {
	Deliver(ctx context.Context, r model.Receipt) error
}

// SinkFunc adapts a function to ReceiptSink.
type SinkFunc func(ctx context.Context, r model.Receipt) error

func (f SinkFunc) Deliver(ctx context.Context, r model.Receipt) error { return f(ctx, r) }

// Result is the eventual outcome of one Send. Err is non-nil when the
// receipt could not be handed to the sink.
type Result struct {
	Receipt model.Receipt
	Err     error
}

type Simulator struct {
	sink ReceiptSink
	log  *zap.Logger

	successRate float64
	minDelay    time.Duration
	maxDelay    time.Duration
	outcome     func() model.DeliveryStatus
	delay       func() time.Duration

	rndMu sync.Mutex
	rnd   *rand.Rand

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

type Option func(*Simulator)

// WithSuccessRate sets the probability of a SENT outcome.
func WithSuccessRate(p float64) Option {
	return func(s *Simulator) { s.successRate = p }
}

// WithDelay sets the callback delay range [min, max).
func WithDelay(min, max time.Duration) Option {
	return func(s *Simulator) {
		s.minDelay = min
		s.maxDelay = max
	}
}

// WithRand replaces the random source, e.g. with a seeded one in tests.
func WithRand(r *rand.Rand) Option {
	return func(s *Simulator) { s.rnd = r }
}

// WithOutcome replaces the outcome draw entirely.
func WithOutcome(f func() model.DeliveryStatus) Option {
	return func(s *Simulator) { s.outcome = f }
}

// WithDelayFunc replaces the delay draw entirely.
func WithDelayFunc(f func() time.Duration) Option {
	return func(s *Simulator) { s.delay = f }
}

func WithLogger(log *zap.Logger) Option {
	return func(s *Simulator) { s.log = log }
}

func NewSimulator(sink ReceiptSink, opts ...Option) *Simulator {
	s := &Simulator{
		sink:        sink,
		log:         zap.NewNop(),
		successRate: DefaultSuccessRate,
		minDelay:    DefaultMinDelay,
		maxDelay:    DefaultMaxDelay,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.rnd == nil {
		s.rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if s.outcome == nil {
		s.outcome = s.drawOutcome
	}
	if s.delay == nil {
		s.delay = s.drawDelay
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	return s
}

func (s *Simulator) drawOutcome() model.DeliveryStatus {
	s.rndMu.Lock()
	defer s.rndMu.Unlock()
	if s.rnd.Float64() < s.successRate {
		return model.DeliverySent
	}
	return model.DeliveryFailed
}

func (s *Simulator) drawDelay() time.Duration {
	if s.maxDelay <= s.minDelay {
		return s.minDelay
	}
	s.rndMu.Lock()
	defer s.rndMu.Unlock()
	return s.minDelay + time.Duration(s.rnd.Int63n(int64(s.maxDelay-s.minDelay)))
}

// Send schedules a simulated delivery for logID and returns at once. The
// returned channel yields exactly one Result once the receipt has been handed
// to the sink, or the send was cancelled through ctx or Close.
func (s *Simulator) Send(ctx context.Context, logID, message string) <-chan Result {
	out := make(chan Result, 1)
	receipt := model.Receipt{LogID: logID, Status: s.outcome()}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		out <- Result{Receipt: receipt, Err: ErrClosed}
		return out
	}
	s.wg.Add(1)
	s.mu.Unlock()

	wait := s.delay()
	metrics.VendorOutcomes.WithLabelValues(string(receipt.Status)).Inc()
	s.log.Debug("vendor send",
		zap.String("log_id", logID),
		zap.String("outcome", string(receipt.Status)),
		zap.Duration("delay", wait),
		zap.Int("message_len", len(message)),
	)

	go func() {
		defer s.wg.Done()
		out <- s.deliver(ctx, receipt, wait)
	}()
	return out
}

func (s *Simulator) deliver(ctx context.Context, receipt model.Receipt, wait time.Duration) Result {
	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-ctx.Done():
		return Result{Receipt: receipt, Err: ctx.Err()}
	case <-s.ctx.Done():
		return Result{Receipt: receipt, Err: ErrClosed}
	}

	if err := s.sink.Deliver(s.ctx, receipt); err != nil {
		metrics.VendorCallbackErrors.Inc()
		s.log.Warn("receipt callback failed",
			zap.String("log_id", receipt.LogID),
			zap.String("status", string(receipt.Status)),
			zap.Error(err),
		)
		return Result{Receipt: receipt, Err: err}
	}
	return Result{Receipt: receipt}
}

// Wait blocks until every scheduled send has finished.
func (s *Simulator) Wait() {
	s.wg.Wait()
}

// Close rejects new sends, cancels pending ones and waits for them to return.
func (s *Simulator) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.cancel()
	s.wg.Wait()
	return nil
}
