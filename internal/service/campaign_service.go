// internal/service/campaign_service.go
package service

import (
    "context"
    "encoding/json"
    "fmt"

    "go.uber.org/zap"

    appErrors "github.com/unclebandit/crm-pipeline/internal/errors"
    "github.com/unclebandit/crm-pipeline/internal/metrics"
    "github.com/unclebandit/crm-pipeline/internal/model"
    "github.com/unclebandit/crm-pipeline/internal/provider"
    "github.com/unclebandit/crm-pipeline/internal/repository"
    "github.com/unclebandit/crm-pipeline/internal/rules"
)

// Sender hands a personalized message to the delivery vendor. Send must not
// block on the delivery itself.
type Sender interface {
    Send(ctx context.Context, logID, message string) <-chan provider.Result
}

type CampaignService struct {
    CampaignRepo repository.CampaignRepositoryInterface
    CustomerRepo repository.CustomerRepositoryInterface
    LogRepo      repository.CommunicationLogRepositoryInterface
    Sender       Sender
    Log          *zap.Logger
}

// ExecutionResult describes one campaign job. Campaign is nil when the
// audience was empty.
type ExecutionResult struct {
    Campaign *model.Campaign
    LogIDs   []string
    // Deliveries are buffered and may be ignored; callers that want to wait
    // for the vendor outcome of LogIDs[i] receive from Deliveries[i].
    Deliveries []<-chan provider.Result
}

type CampaignDetails struct {
    model.Campaign
    Stats map[string]int `json:"stats"`
}

func (s *CampaignService) HandleMessage(ctx context.Context, payload []byte) error {
    var job model.CampaignJob
    if err := json.Unmarshal(payload, &job); err != nil {
        return appErrors.Malformed(model.TopicCampaignStart, err)
    }
    _, err := s.Execute(ctx, job)
    return err
}

// Execute resolves the job's audience once, records the campaign and fans out
// one delivery per audience member in audience order. A failure partway
// through stops the fan-out and marks the campaign FAILED; logs already
// created are kept.
func (s *CampaignService) Execute(ctx context.Context, job model.CampaignJob) (*ExecutionResult, error) {
    node, err := rules.Parse(job.Rules)
    if err != nil {
        return nil, err
    }

    audience, err := s.CustomerRepo.FindByRule(ctx, node)
    if err != nil {
        return nil, fmt.Errorf("resolve audience: %w", err)
    }
    if len(audience) == 0 {
        s.Log.Info("empty audience, no campaign created", zap.String("user_id", job.UserID))
        return &ExecutionResult{}, nil
    }

    campaign := &model.Campaign{
        AudienceSize:    len(audience),
        Rules:           job.Rules,
        MessageTemplate: job.MessageTemplate,
        Status:          model.CampaignPending,
        CreatedBy:       job.UserID,
    }
    if err := s.CampaignRepo.Create(ctx, campaign); err != nil {
        return nil, err
    }
    metrics.CampaignsCreated.Inc()
    s.Log.Info("campaign created",
        zap.String("campaign_id", campaign.ID),
        zap.Int("audience_size", campaign.AudienceSize),
    )

    result := &ExecutionResult{
        Campaign:   campaign,
        LogIDs:     make([]string, 0, len(audience)),
        Deliveries: make([]<-chan provider.Result, 0, len(audience)),
    }
    for i, customer := range audience {
        entry := &model.CommunicationLog{
            CampaignID: campaign.ID,
            CustomerID: customer.ID,
            Status:     model.DeliveryPending,
        }
        if err := s.LogRepo.Create(ctx, entry); err != nil {
            s.abort(ctx, campaign, i)
            return result, fmt.Errorf("fan-out stopped after %d of %d: %w", i, len(audience), err)
        }
        result.LogIDs = append(result.LogIDs, entry.ID)
        result.Deliveries = append(result.Deliveries, s.Sender.Send(ctx, entry.ID, Personalize(customer.Name, job.MessageTemplate)))
    }

    s.Log.Info("campaign queued", zap.String("campaign_id", campaign.ID), zap.Int("messages", len(result.LogIDs)))
    return result, nil
}

func (s *CampaignService) abort(ctx context.Context, campaign *model.Campaign, created int) {
    s.Log.Error("fan-out failed",
        zap.String("campaign_id", campaign.ID),
        zap.Int("logs_created", created),
        zap.Int("audience_size", campaign.AudienceSize),
    )
    if err := s.CampaignRepo.UpdateStatus(ctx, campaign.ID, model.CampaignFailed); err != nil {
        s.Log.Error("could not mark campaign failed", zap.String("campaign_id", campaign.ID), zap.Error(err))
        return
    }
    campaign.Status = model.CampaignFailed
}

// ListCampaigns fetches campaigns with pagination
func normalizePage(page, pageSize int) (int, int, int) {
    if page < 1 {
        page = 1
    }
    if pageSize < 1 {
        pageSize = 20
    }
    if pageSize > 100 {
        pageSize = 100
    }
    return page, pageSize, (page - 1) * pageSize
}

func pagination(page, pageSize, total int) map[string]int {
    return map[string]int{
        "page":        page,
        "page_size":   pageSize,
        "total_count": total,
        "total_pages": (total + pageSize - 1) / pageSize,
    }
}

func (s *CampaignService) ListCampaigns(ctx context.Context, page, pageSize int, status string) ([]model.Campaign, map[string]int, error) {
    page, pageSize, offset := normalizePage(page, pageSize)

    ptrs, total, err := s.CampaignRepo.ListCampaigns(ctx, offset, pageSize, status)
    if err != nil {
        return nil, nil, err
    }

    campaigns := make([]model.Campaign, len(ptrs))
    for i, c := range ptrs {
        campaigns[i] = *c
    }

    return campaigns, pagination(page, pageSize, total), nil
}

// ListCampaignLogs pages through a campaign's communication logs in fan-out
// order.
func (s *CampaignService) ListCampaignLogs(ctx context.Context, campaignID string, page, pageSize int) ([]model.CommunicationLog, map[string]int, error) {
    if _, err := s.CampaignRepo.GetByID(ctx, campaignID); err != nil {
        return nil, nil, err
    }
    page, pageSize, offset := normalizePage(page, pageSize)

    stats, err := s.LogRepo.StatsByCampaign(ctx, campaignID)
    if err != nil {
        return nil, nil, fmt.Errorf("load stats for campaign %s: %w", campaignID, err)
    }
    total := 0
    for _, n := range stats {
        total += n
    }

    ptrs, err := s.LogRepo.ListByCampaign(ctx, campaignID, offset, pageSize)
    if err != nil {
        return nil, nil, fmt.Errorf("list logs for campaign %s: %w", campaignID, err)
    }
    logs := make([]model.CommunicationLog, len(ptrs))
    for i, l := range ptrs {
        logs[i] = *l
    }

    return logs, pagination(page, pageSize, total), nil
}

func (s *CampaignService) GetCampaignDetailsWithStats(ctx context.Context, campaignID string) (*CampaignDetails, error) {
    campaign, err := s.CampaignRepo.GetByID(ctx, campaignID)
    if err != nil {
        return nil, err
    }

    stats, err := s.LogRepo.StatsByCampaign(ctx, campaignID)
    if err != nil {
        return nil, fmt.Errorf("load stats for campaign %s: %w", campaignID, err)
    }
    total := 0
    for _, n := range stats {
        total += n
    }
    stats["total"] = total

    return &CampaignDetails{Campaign: *campaign, Stats: stats}, nil
}
