package repository

import (
    "context"
    "database/sql"
    "errors"
    "fmt"
    "time"

    "github.com/google/uuid"

    appErrors "github.com/unclebandit/crm-pipeline/internal/errors"
    "github.com/unclebandit/crm-pipeline/internal/model"
)

type CampaignRepositoryInterface interface {
    Create(ctx context.Context, c *model.Campaign) error
    GetByID(ctx context.Context, id string) (*model.Campaign, error)
    ListCampaigns(ctx context.Context, offset, limit int, status string) ([]*model.Campaign, int, error)
    UpdateStatus(ctx context.Context, id string, status model.CampaignStatus) error

    // IncrementCounter adds one to the sent or failed counter in a single
    // statement and moves a PENDING campaign to COMPLETED once every
    // audience member has a receipt.
    IncrementCounter(ctx context.Context, id string, status model.DeliveryStatus) (*model.Campaign, error)
}

type CampaignRepository struct {
    DB *sql.DB
}

const campaignColumns = `id, audience_size, rules, message_template, status, sent_count, failed_count, created_by, created_at, updated_at`

func scanCampaign(row rowScanner, c *model.Campaign) error {
    var rules []byte
    var updatedAt sql.NullTime
    err := row.Scan(&c.ID, &c.AudienceSize, &rules, &c.MessageTemplate, &c.Status,
        &c.SentCount, &c.FailedCount, &c.CreatedBy, &c.CreatedAt, &updatedAt)
    if err != nil {
        return err
    }
    c.Rules = rules
    c.UpdatedAt = nil
    if updatedAt.Valid {
        t := updatedAt.Time
        c.UpdatedAt = &t
    }
    return nil
}

// ====================== Campaign CRUD ======================

func (r *CampaignRepository) Create(ctx context.Context, c *model.Campaign) error {
    if c.ID == "" {
        c.ID = uuid.NewString()
    }
    if c.Status == "" {
        c.Status = model.CampaignPending
    }
    c.CreatedAt = time.Now().UTC()
    query := `
        INSERT INTO campaigns (id, audience_size, rules, message_template, status, created_by, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
    `
    _, err := r.DB.ExecContext(ctx, query, c.ID, c.AudienceSize, string(c.Rules), c.MessageTemplate, c.Status, c.CreatedBy, c.CreatedAt)
    if err != nil {
        return fmt.Errorf("insert campaign: %w", err)
    }
    return nil
}

func (r *CampaignRepository) UpdateStatus(ctx context.Context, id string, status model.CampaignStatus) error {
    query := `UPDATE campaigns SET status=$1, updated_at=NOW() WHERE id=$2`
    res, err := r.DB.ExecContext(ctx, query, status, id)
    if err != nil {
        return err
    }
    if n, _ := res.RowsAffected(); n == 0 {
        return appErrors.NewCampaignNotFound(id)
    }
    return nil
}

func (r *CampaignRepository) GetByID(ctx context.Context, id string) (*model.Campaign, error) {
    if _, err := uuid.Parse(id); err != nil {
        return nil, appErrors.NewCampaignNotFound(id)
    }
    query := `SELECT ` + campaignColumns + ` FROM campaigns WHERE id=$1`
    var c model.Campaign
    if err := scanCampaign(r.DB.QueryRowContext(ctx, query, id), &c); err != nil {
        if errors.Is(err, sql.ErrNoRows) {
            return nil, appErrors.NewCampaignNotFound(id)
        }
        return nil, err
    }
    return &c, nil
}

func (r *CampaignRepository) ListCampaigns(ctx context.Context, offset, limit int, status string) ([]*model.Campaign, int, error) {
    campaigns := []*model.Campaign{}
    where := ` WHERE 1=1`
    args := []interface{}{}
    argPos := 1

    if status != "" {
        where += fmt.Sprintf(" AND status=$%d", argPos)
        args = append(args, status)
        argPos++
    }

    query := `SELECT ` + campaignColumns + ` FROM campaigns` + where +
        fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d", argPos, argPos+1)

    rows, err := r.DB.QueryContext(ctx, query, append(args, limit, offset)...)
    if err != nil {
        return nil, 0, err
    }
    defer rows.Close()

    for rows.Next() {
        c := &model.Campaign{}
        if err := scanCampaign(rows, c); err != nil {
            return nil, 0, err
        }
        campaigns = append(campaigns, c)
    }
    if err := rows.Err(); err != nil {
        return nil, 0, err
    }

    // Count total
    var total int
    if err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM campaigns`+where, args...).Scan(&total); err != nil {
        return nil, 0, err
    }

    return campaigns, total, nil
}

// ====================== Delivery counters ======================

func (r *CampaignRepository) IncrementCounter(ctx context.Context, id string, status model.DeliveryStatus) (*model.Campaign, error) {
    var column string
    switch status {
    case model.DeliverySent:
        column = "sent_count"
    case model.DeliveryFailed:
        column = "failed_count"
    default:
        return nil, fmt.Errorf("cannot count delivery status %q", status)
    }

    // Right-hand sides see the row before the update.
    query := `
        UPDATE campaigns
        SET ` + column + ` = ` + column + ` + 1,
            status = CASE
                WHEN status = 'PENDING' AND sent_count + failed_count + 1 >= audience_size THEN 'COMPLETED'
                ELSE status
            END,
            updated_at = NOW()
        WHERE id = $1
        RETURNING ` + campaignColumns

    var c model.Campaign
    if err := scanCampaign(r.DB.QueryRowContext(ctx, query, id), &c); err != nil {
        if errors.Is(err, sql.ErrNoRows) {
            return nil, appErrors.NewCampaignNotFound(id)
        }
        return nil, fmt.Errorf("increment %s for campaign %s: %w", column, id, err)
    }
    return &c, nil
}

var _ CampaignRepositoryInterface = (*CampaignRepository)(nil)
