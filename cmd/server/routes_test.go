package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/unclebandit/crm-pipeline/internal/controller"
	appErrors "github.com/unclebandit/crm-pipeline/internal/errors"
	"github.com/unclebandit/crm-pipeline/internal/handler"
	"github.com/unclebandit/crm-pipeline/internal/model"
	"github.com/unclebandit/crm-pipeline/internal/queue"
	"github.com/unclebandit/crm-pipeline/internal/service"
)

type stubCampaignRepo struct {
	campaigns []*model.Campaign
}

func (s *stubCampaignRepo) Create(context.Context, *model.Campaign) error { return nil }

func (s *stubCampaignRepo) GetByID(_ context.Context, id string) (*model.Campaign, error) {
	for _, c := range s.campaigns {
		if c.ID == id {
			return c, nil
		}
	}
	return nil, appErrors.NewCampaignNotFound(id)
}

func (s *stubCampaignRepo) ListCampaigns(_ context.Context, offset, limit int, status string) ([]*model.Campaign, int, error) {
	return s.campaigns, len(s.campaigns), nil
}

func (s *stubCampaignRepo) UpdateStatus(context.Context, string, model.CampaignStatus) error {
	return nil
}

func (s *stubCampaignRepo) IncrementCounter(context.Context, string, model.DeliveryStatus) (*model.Campaign, error) {
	return nil, nil
}

type stubLogRepo struct{}

func (stubLogRepo) Create(context.Context, *model.CommunicationLog) error { return nil }
func (stubLogRepo) GetByID(context.Context, string) (*model.CommunicationLog, error) {
	return nil, nil
}
func (stubLogRepo) MarkDelivered(context.Context, string, model.DeliveryStatus) (*model.CommunicationLog, error) {
	return nil, nil
}
func (stubLogRepo) ListByCampaign(_ context.Context, campaignID string, offset, limit int) ([]*model.CommunicationLog, error) {
	logs := []*model.CommunicationLog{
		{ID: "l1", CampaignID: campaignID, Status: model.DeliverySent},
		{ID: "l2", CampaignID: campaignID, Status: model.DeliverySent},
		{ID: "l3", CampaignID: campaignID, Status: model.DeliveryFailed},
	}
	if offset >= len(logs) {
		return nil, nil
	}
	end := offset + limit
	if end > len(logs) {
		end = len(logs)
	}
	return logs[offset:end], nil
}
func (stubLogRepo) StatsByCampaign(context.Context, string) (map[string]int, error) {
	return map[string]int{"PENDING": 0, "SENT": 2, "FAILED": 1}, nil
}

func testRouter(t *testing.T) (http.Handler, *queue.InMemoryQueue) {
	t.Helper()
	q := queue.NewInMemoryQueue(4, nil)
	t.Cleanup(func() { q.Close() })

	svc := &service.CampaignService{
		CampaignRepo: &stubCampaignRepo{campaigns: []*model.Campaign{
			{ID: "c1", AudienceSize: 3, Status: model.CampaignCompleted, SentCount: 2, FailedCount: 1, Rules: []byte(`{}`)},
		}},
		LogRepo: stubLogRepo{},
		Log:     zap.NewNop(),
	}
	return newRouter(routes{
		customers: &controller.CustomerController{Bus: q, Log: zap.NewNop()},
		campaigns: &controller.CampaignController{Bus: q, Log: zap.NewNop()},
		receipts:  &controller.ReceiptController{Bus: q, Log: zap.NewNop()},
		history:   handler.NewCampaignHandler(svc, zap.NewNop()),
	}), q
}

func TestHealthz(t *testing.T) {
	r, _ := testRouter(t)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	r, _ := testRouter(t)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "crm_")
}

func TestReceiptRouteRepublishes(t *testing.T) {
	r, q := testRouter(t)
	sub, err := q.Subscribe(context.Background(), model.TopicDeliveryReceipt)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/delivery-receipt", strings.NewReader(`{"logId":"l1","status":"FAILED"}`)))
	require.Equal(t, http.StatusOK, rec.Code)

	select {
	case m := <-sub.Messages():
		assert.JSONEq(t, `{"logId":"l1","status":"FAILED"}`, string(m.Payload))
	case <-time.After(time.Second):
		t.Fatal("receipt not published")
	}
}

func TestCampaignDetailsRoute(t *testing.T) {
	r, _ := testRouter(t)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/campaigns/c1", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		ID        string         `json:"id"`
		SentCount int            `json:"sentCount"`
		Stats     map[string]int `json:"stats"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "c1", body.ID)
	assert.Equal(t, 2, body.SentCount)
	assert.Equal(t, 3, body.Stats["total"])

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/campaigns/missing", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCampaignListRoute(t *testing.T) {
	r, _ := testRouter(t)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/campaigns?page=1&page_size=10", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Data       []model.Campaign `json:"data"`
		Pagination map[string]int   `json:"pagination"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Len(t, body.Data, 1)
	assert.Equal(t, 1, body.Pagination["total_count"])

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/campaigns?status=LOST", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCampaignLogsRoute(t *testing.T) {
	r, _ := testRouter(t)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/campaigns/c1/logs?page=2&page_size=2", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Data       []model.CommunicationLog `json:"data"`
		Pagination map[string]int           `json:"pagination"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Data, 1)
	assert.Equal(t, "l3", body.Data[0].ID)
	assert.Equal(t, model.DeliveryFailed, body.Data[0].Status)
	assert.Equal(t, 3, body.Pagination["total_count"])
	assert.Equal(t, 2, body.Pagination["total_pages"])

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/campaigns/missing/logs", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
