package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	appErrors "github.com/unclebandit/crm-pipeline/internal/errors"
	"github.com/unclebandit/crm-pipeline/internal/metrics"
	"github.com/unclebandit/crm-pipeline/internal/model"
	"github.com/unclebandit/crm-pipeline/internal/repository"
)

// ReceiptService applies delivery receipts to logs and campaign counters.
type ReceiptService struct {
	LogRepo      repository.CommunicationLogRepositoryInterface
	CampaignRepo repository.CampaignRepositoryInterface
	Log          *zap.Logger
}

func (s *ReceiptService) HandleMessage(ctx context.Context, payload []byte) error {
	var r model.Receipt
	if err := json.Unmarshal(payload, &r); err != nil {
		return appErrors.Malformed(model.TopicDeliveryReceipt, err)
	}
	_, err := s.Reconcile(ctx, r)
	return err
}

// Reconcile moves the receipt's log out of PENDING and bumps the owning
// campaign's counter. Receipts for unknown logs, and repeats for logs that
// already left PENDING, change nothing and return (nil, nil).
func (s *ReceiptService) Reconcile(ctx context.Context, r model.Receipt) (*model.Campaign, error) {
	r.Status = model.DeliveryStatus(strings.ToUpper(strings.TrimSpace(string(r.Status))))
	if strings.TrimSpace(r.LogID) == "" {
		return nil, appErrors.Malformed(model.TopicDeliveryReceipt, errors.New("logId is required"))
	}
	if !r.Status.Terminal() {
		return nil, appErrors.Malformed(model.TopicDeliveryReceipt, fmt.Errorf("unknown status %q", r.Status))
	}

	entry, err := s.LogRepo.MarkDelivered(ctx, r.LogID, r.Status)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		metrics.ReceiptsIgnored.Inc()
		s.Log.Debug("receipt ignored", zap.String("log_id", r.LogID), zap.String("status", string(r.Status)))
		return nil, nil
	}

	campaign, err := s.CampaignRepo.IncrementCounter(ctx, entry.CampaignID, r.Status)
	if err != nil {
		return nil, err
	}
	metrics.ReceiptsReconciled.WithLabelValues(string(r.Status)).Inc()

	if campaign.Status == model.CampaignCompleted && campaign.Delivered() == campaign.AudienceSize {
		s.Log.Info("campaign completed",
			zap.String("campaign_id", campaign.ID),
			zap.Int("sent", campaign.SentCount),
			zap.Int("failed", campaign.FailedCount),
		)
	}
	return campaign, nil
}
