package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"go.uber.org/zap"

	appErrors "github.com/unclebandit/crm-pipeline/internal/errors"
	"github.com/unclebandit/crm-pipeline/internal/model"
	"github.com/unclebandit/crm-pipeline/internal/repository"
)

// IngestionService upserts customers received on ingestion:customer.
type IngestionService struct {
	CustomerRepo repository.CustomerRepositoryInterface
	Log          *zap.Logger
}

func (s *IngestionService) HandleMessage(ctx context.Context, payload []byte) error {
	var p model.CustomerPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return appErrors.Malformed(model.TopicCustomerIngestion, err)
	}
	if strings.TrimSpace(p.Email) == "" {
		return appErrors.Malformed(model.TopicCustomerIngestion, errors.New("email is required"))
	}
	_, err := s.Ingest(ctx, p)
	return err
}

// Ingest creates the customer or replaces every field of the existing record
// with the same email.
func (s *IngestionService) Ingest(ctx context.Context, p model.CustomerPayload) (*model.Customer, error) {
	c := p.Customer()
	if err := s.CustomerRepo.Upsert(ctx, c); err != nil {
		return nil, err
	}
	s.Log.Info("customer saved", zap.String("email", c.Email), zap.String("customer_id", c.ID))
	return c, nil
}
