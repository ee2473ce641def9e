package controller

import (
	"encoding/json"
	"math"
	"net/http"
	"net/mail"
	"strings"

	"go.uber.org/zap"

	"github.com/unclebandit/crm-pipeline/internal/model"
	"github.com/unclebandit/crm-pipeline/internal/queue"
)

// CustomerController accepts customer records and queues them on
// ingestion:customer.
type CustomerController struct {
	Bus queue.Bus
	Log *zap.Logger
}

func (c *CustomerController) CreateCustomer(w http.ResponseWriter, r *http.Request) {
	var body model.CustomerPayload
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}
	if msg := validateCustomer(&body); msg != "" {
		writeMessage(w, http.StatusBadRequest, msg)
		return
	}

	if err := queue.PublishJSON(r.Context(), c.Bus, model.TopicCustomerIngestion, body); err != nil {
		c.Log.Error("could not queue customer", zap.String("email", body.Email), zap.Error(err))
		writeMessage(w, http.StatusInternalServerError, "Could not queue customer data.")
		return
	}
	writeMessage(w, http.StatusAccepted, "Customer data accepted for processing.")
}

func validateCustomer(p *model.CustomerPayload) string {
	p.Name = strings.TrimSpace(p.Name)
	p.Email = strings.TrimSpace(p.Email)
	switch {
	case len(p.Name) < 2:
		return `"name" must be at least 2 characters`
	case p.Email == "":
		return `"email" is required`
	case p.TotalSpends < 0 || math.IsNaN(p.TotalSpends) || math.IsInf(p.TotalSpends, 0):
		return `"totalSpends" must be a non-negative number`
	case p.Visits < 0:
		return `"visits" must be a non-negative integer`
	}
	if addr, err := mail.ParseAddress(p.Email); err != nil || addr.Address != p.Email {
		return `"email" must be a valid email`
	}
	return ""
}
