package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/unclebandit/crm-pipeline/internal/config"
	"github.com/unclebandit/crm-pipeline/internal/db"
	"github.com/unclebandit/crm-pipeline/internal/logger"
	"github.com/unclebandit/crm-pipeline/internal/metrics"
	"github.com/unclebandit/crm-pipeline/internal/model"
	"github.com/unclebandit/crm-pipeline/internal/provider"
	"github.com/unclebandit/crm-pipeline/internal/queue"
	"github.com/unclebandit/crm-pipeline/internal/repository"
	"github.com/unclebandit/crm-pipeline/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	lg, err := logger.New(cfg.ServiceName+"-worker", cfg.Environment, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer lg.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	conn, err := db.Open(ctx, cfg, lg)
	if err != nil {
		lg.Fatal("database", zap.Error(err))
	}
	defer conn.Close()

	connector := queue.NewConnector(cfg.Bus, lg)
	defer connector.Close()

	metricsSrv := metrics.Serve(cfg.MetricsAddr, lg)
	defer metricsSrv.Close()

	if err := run(ctx, cfg, lg, conn, connector); err != nil {
		lg.Fatal("worker", zap.Error(err))
	}
	lg.Info("worker stopped")
}

// run wires the three consumers and the vendor simulator, each on its own bus
// handle, and blocks until ctx is done. If a consumer stops while ctx is
// still live, the others are stopped and run returns an error.
func run(ctx context.Context, cfg config.Config, lg *zap.Logger, conn *sql.DB, connector *queue.Connector) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	customerRepo := &repository.CustomerRepository{DB: conn}
	campaignRepo := &repository.CampaignRepository{DB: conn}
	logRepo := &repository.CommunicationLogRepository{DB: conn}

	var handles []queue.Bus
	defer func() {
		for _, h := range handles {
			_ = h.Close()
		}
	}()
	connect := func() (queue.Bus, error) {
		h, err := connector.Connect(ctx)
		if err != nil {
			return nil, err
		}
		handles = append(handles, h)
		return h, nil
	}

	receiptBus, err := connect()
	if err != nil {
		return err
	}
	sim := provider.NewSimulator(receiptSink(cfg.Vendor, receiptBus), simulatorOptions(cfg.Vendor, lg.Named("vendor"))...)

	ingestion := &service.IngestionService{CustomerRepo: customerRepo, Log: lg.Named("ingestion")}
	execution := &service.CampaignService{
		CampaignRepo: campaignRepo,
		CustomerRepo: customerRepo,
		LogRepo:      logRepo,
		Sender:       sim,
		Log:          lg.Named("campaign"),
	}
	receipts := &service.ReceiptService{LogRepo: logRepo, CampaignRepo: campaignRepo, Log: lg.Named("receipt")}

	consumers := []struct {
		name   string
		topic  string
		handle service.HandlerFunc
	}{
		{"ingestion", model.TopicCustomerIngestion, ingestion.HandleMessage},
		{"campaign", model.TopicCampaignStart, execution.HandleMessage},
		{"receipt", model.TopicDeliveryReceipt, receipts.HandleMessage},
	}

	var wg sync.WaitGroup
	exited := make(chan error, len(consumers))
	for _, c := range consumers {
		bus, err := connect()
		if err != nil {
			cancel()
			wg.Wait()
			sim.Close()
			return err
		}
		w := service.NewWorker(c.name, c.topic, bus, c.handle, lg.Named(c.name))
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := w.Run(ctx)
			if ctx.Err() != nil {
				return
			}
			if err == nil {
				err = fmt.Errorf("consumer %s stopped: subscription closed", w.Name)
			}
			exited <- err
		}()
	}

	var failure error
	select {
	case <-ctx.Done():
	case failure = <-exited:
		lg.Error("consumer exited, stopping worker", zap.Error(failure))
		cancel()
	}
	wg.Wait()
	drainSimulator(sim, cfg.ShutdownGrace, lg)
	return failure
}

// drainSimulator gives in-flight deliveries up to grace to report, then
// cancels the rest. Cancelled deliveries leave their logs PENDING.
func drainSimulator(sim *provider.Simulator, grace time.Duration, lg *zap.Logger) {
	done := make(chan struct{})
	go func() {
		sim.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(grace):
		lg.Warn("cancelling in-flight deliveries", zap.Duration("grace", grace))
	}
	sim.Close()
}

func receiptSink(cfg config.VendorConfig, bus queue.Bus) provider.ReceiptSink {
	if cfg.ReceiptAPI != "" {
		return provider.NewHTTPReceiptSink(cfg.ReceiptAPI)
	}
	return &provider.BusReceiptSink{Bus: bus}
}

func simulatorOptions(cfg config.VendorConfig, lg *zap.Logger) []provider.Option {
	return []provider.Option{
		provider.WithSuccessRate(cfg.SuccessRate),
		provider.WithDelay(cfg.MinDelay, cfg.MaxDelay),
		provider.WithLogger(lg),
	}
}
