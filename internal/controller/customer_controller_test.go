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

func TestCreateCustomerQueuesPayload(t *testing.T) {
	q := queue.NewInMemoryQueue(4, nil)
	defer q.Close()
	sub := subscribe(t, q, model.TopicCustomerIngestion)
	ctrl := &controller.CustomerController{Bus: q, Log: zap.NewNop()}

	rec := post(ctrl.CreateCustomer, `{"name":" Ana ","email":"ana@example.com","totalSpends":120,"visits":2,"lastVisit":"2024-05-01"}`, nil)
	assert.Equal(t, http.StatusAccepted, rec.Code)

	assert.JSONEq(t,
		`{"name":"Ana","email":"ana@example.com","totalSpends":120,"visits":2,"lastVisit":"2024-05-01T00:00:00Z"}`,
		string(next(t, sub)))
}

func TestCreateCustomerValidation(t *testing.T) {
	q := queue.NewInMemoryQueue(4, nil)
	defer q.Close()
	sub := subscribe(t, q, model.TopicCustomerIngestion)
	ctrl := &controller.CustomerController{Bus: q, Log: zap.NewNop()}

	cases := map[string]string{
		"short name":      `{"name":"A","email":"a@example.com"}`,
		"missing email":   `{"name":"Ana"}`,
		"bad email":       `{"name":"Ana","email":"not-an-email"}`,
		"negative spends": `{"name":"Ana","email":"a@example.com","totalSpends":-1}`,
		"negative visits": `{"name":"Ana","email":"a@example.com","visits":-3}`,
		"fraction visits": `{"name":"Ana","email":"a@example.com","visits":1.5}`,
		"bad date":        `{"name":"Ana","email":"a@example.com","lastVisit":"soon"}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			rec := post(ctrl.CreateCustomer, body, nil)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
	assert.Len(t, sub.Messages(), 0)
}
