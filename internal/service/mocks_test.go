package service_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	appErrors "github.com/unclebandit/crm-pipeline/internal/errors"
	"github.com/unclebandit/crm-pipeline/internal/model"
	"github.com/unclebandit/crm-pipeline/internal/provider"
	"github.com/unclebandit/crm-pipeline/internal/rules"
)

var errStoreDown = errors.New("store unavailable")

// MockCustomerRepo keeps customers in insertion order.
type MockCustomerRepo struct {
	mu        sync.Mutex
	customers []*model.Customer
	seq       int
	fail      bool
}

func (m *MockCustomerRepo) Upsert(_ context.Context, c *model.Customer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errStoreDown
	}
	now := time.Now()
	for _, existing := range m.customers {
		if existing.Email == c.Email {
			c.ID = existing.ID
			c.CreatedAt = existing.CreatedAt
			c.UpdatedAt = now
			*existing = *c
			return nil
		}
	}
	m.seq++
	c.ID = fmt.Sprintf("cust-%d", m.seq)
	c.CreatedAt = now
	c.UpdatedAt = now
	stored := *c
	m.customers = append(m.customers, &stored)
	return nil
}

func (m *MockCustomerRepo) GetByID(_ context.Context, id string) (*model.Customer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.customers {
		if c.ID == id {
			cp := *c
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *MockCustomerRepo) GetByEmail(_ context.Context, email string) (*model.Customer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.customers {
		if c.Email == email {
			cp := *c
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *MockCustomerRepo) FindByRule(_ context.Context, node rules.Node) ([]model.Customer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return nil, errStoreDown
	}
	all := make([]model.Customer, len(m.customers))
	for i, c := range m.customers {
		all[i] = *c
	}
	return rules.Filter(node, all)
}

func (m *MockCustomerRepo) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.customers)
}

// MockCampaignRepo mirrors the single-statement counter update of the
// Postgres repository under a mutex.
type MockCampaignRepo struct {
	mu        sync.Mutex
	campaigns map[string]*model.Campaign
	order     []string
	seq       int
}

func NewMockCampaignRepo() *MockCampaignRepo {
	return &MockCampaignRepo{campaigns: map[string]*model.Campaign{}}
}

func (m *MockCampaignRepo) Create(_ context.Context, c *model.Campaign) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	c.ID = fmt.Sprintf("camp-%d", m.seq)
	c.CreatedAt = time.Now()
	stored := *c
	m.campaigns[c.ID] = &stored
	m.order = append(m.order, c.ID)
	return nil
}

func (m *MockCampaignRepo) GetByID(_ context.Context, id string) (*model.Campaign, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[id]
	if !ok {
		return nil, appErrors.NewCampaignNotFound(id)
	}
	cp := *c
	return &cp, nil
}

// ListCampaigns returns newest first.
func (m *MockCampaignRepo) ListCampaigns(_ context.Context, offset, limit int, status string) ([]*model.Campaign, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []*model.Campaign
	for i := len(m.order) - 1; i >= 0; i-- {
		c := m.campaigns[m.order[i]]
		if status == "" || string(c.Status) == status {
			cp := *c
			all = append(all, &cp)
		}
	}
	if offset >= len(all) {
		return []*model.Campaign{}, len(all), nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], len(all), nil
}

func (m *MockCampaignRepo) UpdateStatus(_ context.Context, id string, status model.CampaignStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[id]
	if !ok {
		return appErrors.NewCampaignNotFound(id)
	}
	c.Status = status
	return nil
}

func (m *MockCampaignRepo) IncrementCounter(_ context.Context, id string, status model.DeliveryStatus) (*model.Campaign, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[id]
	if !ok {
		return nil, appErrors.NewCampaignNotFound(id)
	}
	switch status {
	case model.DeliverySent:
		c.SentCount++
	case model.DeliveryFailed:
		c.FailedCount++
	default:
		return nil, fmt.Errorf("cannot count delivery status %q", status)
	}
	if c.Status == model.CampaignPending && c.Delivered() >= c.AudienceSize {
		c.Status = model.CampaignCompleted
	}
	cp := *c
	return &cp, nil
}

func (m *MockCampaignRepo) all() []model.Campaign {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.Campaign{}
	for _, id := range m.order {
		out = append(out, *m.campaigns[id])
	}
	return out
}

// MockLogRepo fails Create once failAfter logs exist, when failAfter > 0.
type MockLogRepo struct {
	mu        sync.Mutex
	logs      map[string]*model.CommunicationLog
	order     []string
	seq       int
	failAfter int
}

func NewMockLogRepo() *MockLogRepo {
	return &MockLogRepo{logs: map[string]*model.CommunicationLog{}}
}

func (m *MockLogRepo) Create(_ context.Context, l *model.CommunicationLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAfter > 0 && len(m.logs) >= m.failAfter {
		return errStoreDown
	}
	m.seq++
	l.ID = fmt.Sprintf("log-%d", m.seq)
	l.CreatedAt = time.Now()
	l.UpdatedAt = l.CreatedAt
	stored := *l
	m.logs[l.ID] = &stored
	m.order = append(m.order, l.ID)
	return nil
}

func (m *MockLogRepo) GetByID(_ context.Context, id string) (*model.CommunicationLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.logs[id]
	if !ok {
		return nil, nil
	}
	cp := *l
	return &cp, nil
}

func (m *MockLogRepo) MarkDelivered(_ context.Context, id string, status model.DeliveryStatus) (*model.CommunicationLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.logs[id]
	if !ok || l.Status != model.DeliveryPending {
		return nil, nil
	}
	l.Status = status
	l.UpdatedAt = time.Now()
	cp := *l
	return &cp, nil
}

func (m *MockLogRepo) ListByCampaign(_ context.Context, campaignID string, offset, limit int) ([]*model.CommunicationLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []*model.CommunicationLog{}
	for _, id := range m.order {
		if l := m.logs[id]; l.CampaignID == campaignID {
			cp := *l
			out = append(out, &cp)
		}
	}
	if offset >= len(out) {
		return []*model.CommunicationLog{}, nil
	}
	end := offset + limit
	if end > len(out) {
		end = len(out)
	}
	return out[offset:end], nil
}

func (m *MockLogRepo) StatsByCampaign(_ context.Context, campaignID string) (map[string]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats := map[string]int{"PENDING": 0, "SENT": 0, "FAILED": 0}
	for _, l := range m.logs {
		if l.CampaignID == campaignID {
			stats[string(l.Status)]++
		}
	}
	return stats, nil
}

func (m *MockLogRepo) all() []model.CommunicationLog {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.CommunicationLog{}
	for _, id := range m.order {
		out = append(out, *m.logs[id])
	}
	return out
}

type sentMessage struct {
	LogID   string
	Message string
}

// MockSender records sends and resolves each one immediately as SENT.
type MockSender struct {
	mu   sync.Mutex
	sent []sentMessage
}

func (m *MockSender) Send(_ context.Context, logID, message string) <-chan provider.Result {
	m.mu.Lock()
	m.sent = append(m.sent, sentMessage{LogID: logID, Message: message})
	m.mu.Unlock()
	ch := make(chan provider.Result, 1)
	ch <- provider.Result{Receipt: model.Receipt{LogID: logID, Status: model.DeliverySent}}
	return ch
}

func (m *MockSender) messages() []sentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := append([]sentMessage(nil), m.sent...)
	return out
}
