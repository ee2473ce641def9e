package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	appErrors "github.com/unclebandit/crm-pipeline/internal/errors"
	"github.com/unclebandit/crm-pipeline/internal/metrics"
	"github.com/unclebandit/crm-pipeline/internal/queue"
	"github.com/unclebandit/crm-pipeline/internal/rules"
)

// HandlerFunc processes one bus payload.
type HandlerFunc func(ctx context.Context, payload []byte) error

// Worker consumes one topic and hands each message to Handle, one at a time
// in arrival order. Failed messages are logged and dropped.
type Worker struct {
	Name   string
	Topic  string
	Bus    queue.Bus
	Handle HandlerFunc
	Log    *zap.Logger
}

// Constructor
func NewWorker(name, topic string, bus queue.Bus, handle HandlerFunc, log *zap.Logger) *Worker {
	return &Worker{
		Name:   name,
		Topic:  topic,
		Bus:    bus,
		Handle: handle,
		Log:    log,
	}
}

// Run subscribes and processes messages until ctx is done or the
// subscription closes. A message already taken off the subscription is
// processed to completion even if ctx is cancelled meanwhile.
func (w *Worker) Run(ctx context.Context) error {
	sub, err := w.Bus.Subscribe(ctx, w.Topic)
	if err != nil {
		return fmt.Errorf("%s: subscribe %s: %w", w.Name, w.Topic, err)
	}
	defer sub.Close()

	w.Log.Info("listening", zap.String("topic", w.Topic))
	for {
		select {
		case <-ctx.Done():
			w.Log.Info("stopping", zap.String("topic", w.Topic))
			return nil
		case msg, ok := <-sub.Messages():
			if !ok {
				w.Log.Warn("subscription closed", zap.String("topic", w.Topic))
				return nil
			}
			w.process(context.WithoutCancel(ctx), msg)
		}
	}
}

func (w *Worker) process(ctx context.Context, msg queue.Message) {
	start := time.Now()
	metrics.MessagesConsumed.WithLabelValues(w.Name).Inc()

	err := w.safeHandle(ctx, msg.Payload)
	metrics.HandlerLatency.WithLabelValues(w.Name).Observe(time.Since(start).Seconds())
	if err == nil {
		return
	}

	reason := failureReason(err)
	metrics.MessagesFailed.WithLabelValues(w.Name, reason).Inc()
	w.Log.Error("message dropped",
		zap.String("topic", msg.Topic),
		zap.String("reason", reason),
		zap.Error(err),
	)
}

func (w *Worker) safeHandle(ctx context.Context, payload []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", errHandlerPanic, r)
		}
	}()
	return w.Handle(ctx, payload)
}

var errHandlerPanic = errors.New("handler panic")

func failureReason(err error) string {
	var ruleErr *rules.Error
	switch {
	case errors.Is(err, appErrors.ErrMalformedMessage):
		return "malformed"
	case errors.As(err, &ruleErr):
		return "invalid_rule"
	case errors.Is(err, errHandlerPanic):
		return "panic"
	default:
		return "handler"
	}
}
