package main

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/unclebandit/crm-pipeline/internal/controller"
	"github.com/unclebandit/crm-pipeline/internal/handler"
	"github.com/unclebandit/crm-pipeline/internal/metrics"
)

type routes struct {
	customers *controller.CustomerController
	campaigns *controller.CampaignController
	receipts  *controller.ReceiptController
	history   *handler.CampaignHandler
}

func newRouter(rt routes) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Post("/customers", rt.customers.CreateCustomer)
		r.Post("/campaigns", rt.campaigns.CreateCampaign)
		r.Get("/campaigns", rt.history.ListCampaignsHandler)
		r.Get("/campaigns/{id}", rt.history.GetCampaignHandlerWithStats)
		r.Get("/campaigns/{id}/logs", rt.history.ListCampaignLogsHandler)
		r.Post("/delivery-receipt", rt.receipts.DeliveryReceipt)
	})
	return r
}
