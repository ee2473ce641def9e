package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

var (
	MessagesConsumed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "crm_messages_consumed_total",
		Help: "Bus messages handed to a consumer, by worker.",
	}, []string{"worker"})
	MessagesFailed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "crm_messages_failed_total",
		Help: "Bus messages dropped after a handler error, by worker and reason.",
	}, []string{"worker", "reason"})
	HandlerLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "crm_handler_duration_seconds",
		Help:    "Time spent handling one bus message.",
		Buckets: prometheus.DefBuckets,
	}, []string{"worker"})
	BusDropped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "crm_bus_dropped_total",
		Help: "Messages the in-memory bus dropped because a subscriber buffer was full.",
	}, []string{"topic"})
	MessagesPublished = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "crm_messages_published_total",
		Help: "Messages published onto the bus, by topic.",
	}, []string{"topic"})
	CampaignsCreated = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "crm_campaigns_created_total",
		Help: "Campaigns created by the execution consumer.",
	})
	VendorOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "crm_vendor_outcomes_total",
		Help: "Simulated vendor outcomes, by status.",
	}, []string{"status"})
	VendorCallbackErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "crm_vendor_callback_errors_total",
		Help: "Receipt callbacks that failed to reach the receipt endpoint.",
	})
	ReceiptsReconciled = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "crm_receipts_reconciled_total",
		Help: "Receipts applied to a log and campaign, by status.",
	}, []string{"status"})
	ReceiptsIgnored = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "crm_receipts_ignored_total",
		Help: "Receipts for unknown or already delivered logs.",
	})
)

func init() {
	prometheus.MustRegister(
		MessagesConsumed,
		MessagesFailed,
		HandlerLatency,
		BusDropped,
		MessagesPublished,
		CampaignsCreated,
		VendorOutcomes,
		VendorCallbackErrors,
		ReceiptsReconciled,
		ReceiptsIgnored,
	)
}

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Serve starts a /metrics endpoint on addr in the background and returns the
// server so the caller can shut it down.
func Serve(addr string, log *zap.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server stopped", zap.Error(err))
		}
	}()
	return srv
}
