package controller

import (
	"encoding/json"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/unclebandit/crm-pipeline/internal/model"
	"github.com/unclebandit/crm-pipeline/internal/queue"
)

// ReceiptController is the vendor callback. Every well-formed receipt is
// published once onto delivery:receipt.
type ReceiptController struct {
	Bus queue.Bus
	Log *zap.Logger
}

func (c *ReceiptController) DeliveryReceipt(w http.ResponseWriter, r *http.Request) {
	var body model.Receipt
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid body")
		return
	}
	if strings.TrimSpace(body.LogID) == "" || strings.TrimSpace(string(body.Status)) == "" {
		writeMessage(w, http.StatusBadRequest, "logId and status are required.")
		return
	}

	if err := queue.PublishJSON(r.Context(), c.Bus, model.TopicDeliveryReceipt, body); err != nil {
		c.Log.Error("could not queue receipt", zap.String("log_id", body.LogID), zap.Error(err))
		writeMessage(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}
	writeMessage(w, http.StatusOK, "Receipt acknowledged.")
}
