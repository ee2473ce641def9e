// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/unclebandit/crm-pipeline/internal/config"
	"github.com/unclebandit/crm-pipeline/internal/controller"
	"github.com/unclebandit/crm-pipeline/internal/db"
	"github.com/unclebandit/crm-pipeline/internal/handler"
	"github.com/unclebandit/crm-pipeline/internal/logger"
	"github.com/unclebandit/crm-pipeline/internal/queue"
	"github.com/unclebandit/crm-pipeline/internal/repository"
	"github.com/unclebandit/crm-pipeline/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	lg, err := logger.New(cfg.ServiceName+"-server", cfg.Environment, cfg.LogLevel, cfg.LogFormat)
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
	bus, err := connector.Connect(ctx)
	if err != nil {
		lg.Fatal("bus", zap.String("driver", cfg.Bus.Driver), zap.Error(err))
	}
	defer bus.Close()

	campaignService := &service.CampaignService{
		CampaignRepo: &repository.CampaignRepository{DB: conn},
		CustomerRepo: &repository.CustomerRepository{DB: conn},
		LogRepo:      &repository.CommunicationLogRepository{DB: conn},
		Log:          lg.Named("campaign"),
	}

	router := newRouter(routes{
		customers: &controller.CustomerController{Bus: bus, Log: lg.Named("customers")},
		campaigns: &controller.CampaignController{Bus: bus, Log: lg.Named("campaigns")},
		receipts:  &controller.ReceiptController{Bus: bus, Log: lg.Named("receipts")},
		history:   handler.NewCampaignHandler(campaignService, lg.Named("history")),
	})

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		lg.Info("server listening", zap.String("addr", cfg.HTTPAddr), zap.String("bus", cfg.Bus.Driver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			lg.Error("server stopped", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		lg.Warn("shutdown", zap.Error(err))
	}
	lg.Info("server stopped")
}
