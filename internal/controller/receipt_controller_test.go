package controller_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/unclebandit/crm-pipeline/internal/controller"
	"github.com/unclebandit/crm-pipeline/internal/model"
	"github.com/unclebandit/crm-pipeline/internal/queue"
)

func TestDeliveryReceiptPublishesOncePerCall(t *testing.T) {
	q := queue.NewInMemoryQueue(4, nil)
	defer q.Close()
	sub := subscribe(t, q, model.TopicDeliveryReceipt)
	ctrl := &controller.ReceiptController{Bus: q, Log: zap.NewNop()}

	rec := post(ctrl.DeliveryReceipt, `{"logId":"abc","status":"SENT"}`, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"logId":"abc","status":"SENT"}`, string(next(t, sub)))
	assert.Len(t, sub.Messages(), 0)

	rec = post(ctrl.DeliveryReceipt, `{"logId":"abc","status":"SENT"}`, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"logId":"abc","status":"SENT"}`, string(next(t, sub)))
}

func TestDeliveryReceiptRequiresFields(t *testing.T) {
	q := queue.NewInMemoryQueue(4, nil)
	defer q.Close()
	sub := subscribe(t, q, model.TopicDeliveryReceipt)
	ctrl := &controller.ReceiptController{Bus: q, Log: zap.NewNop()}

	for _, body := range []string{`{"status":"SENT"}`, `{"logId":"abc"}`, `nope`} {
		rec := post(ctrl.DeliveryReceipt, body, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}
	assert.Len(t, sub.Messages(), 0)
}
