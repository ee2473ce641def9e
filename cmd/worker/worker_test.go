package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/unclebandit/crm-pipeline/internal/config"
	"github.com/unclebandit/crm-pipeline/internal/provider"
	"github.com/unclebandit/crm-pipeline/internal/queue"
)

func TestReceiptSinkSelection(t *testing.T) {
	q := queue.NewInMemoryQueue(1, nil)
	defer q.Close()

	sink := receiptSink(config.VendorConfig{ReceiptAPI: "http://localhost:5000/api/delivery-receipt"}, q)
	httpSink, ok := sink.(*provider.HTTPReceiptSink)
	assert.True(t, ok)
	assert.Equal(t, "http://localhost:5000/api/delivery-receipt", httpSink.URL)

	sink = receiptSink(config.VendorConfig{}, q)
	busSink, ok := sink.(*provider.BusReceiptSink)
	assert.True(t, ok)
	assert.Equal(t, queue.Bus(q), busSink.Bus)
}

func TestSimulatorOptions(t *testing.T) {
	opts := simulatorOptions(config.VendorConfig{SuccessRate: 0.5, MinDelay: time.Second, MaxDelay: 2 * time.Second}, zap.NewNop())
	assert.Len(t, opts, 3)
}

func TestDrainSimulatorCancelsAfterGrace(t *testing.T) {
	sim := provider.NewSimulator(provider.SinkFunc(nil), provider.WithDelay(time.Hour, time.Hour))
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	res := sim.Send(ctx, "log-1", "hi")

	start := time.Now()
	drainSimulator(sim, 10*time.Millisecond, zap.NewNop())
	assert.Less(t, time.Since(start), time.Second)
	assert.ErrorIs(t, (<-res).Err, provider.ErrClosed)
}

func memoryConfig() config.Config {
	return config.Config{
		Bus:           config.BusConfig{Driver: config.BusMemory, MemoryBuffer: 8},
		Vendor:        config.VendorConfig{SuccessRate: 1, MinDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond},
		ShutdownGrace: 10 * time.Millisecond,
	}
}

func TestRunReturnsWhenConsumersStop(t *testing.T) {
	cfg := memoryConfig()
	connector := queue.NewConnector(cfg.Bus, zap.NewNop())

	done := make(chan error, 1)
	go func() { done <- run(context.Background(), cfg, zap.NewNop(), nil, connector) }()

	// Give the consumers a moment to subscribe; closing earlier fails them at
	// subscribe time, which must also end run.
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, connector.Close())

	select {
	case err := <-done:
		assert.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("run still blocked after its consumers stopped")
	}
}

func TestRunStopsCleanlyOnCancel(t *testing.T) {
	cfg := memoryConfig()
	connector := queue.NewConnector(cfg.Bus, zap.NewNop())
	defer connector.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- run(ctx, cfg, zap.NewNop(), nil, connector) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("run did not return after cancel")
	}
}
