package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/unclebandit/crm-pipeline/internal/model"
)

type CommunicationLogRepositoryInterface interface {
	Create(ctx context.Context, l *model.CommunicationLog) error
	GetByID(ctx context.Context, id string) (*model.CommunicationLog, error)
	MarkDelivered(ctx context.Context, id string, status model.DeliveryStatus) (*model.CommunicationLog, error)
	ListByCampaign(ctx context.Context, campaignID string, offset, limit int) ([]*model.CommunicationLog, error)
	StatsByCampaign(ctx context.Context, campaignID string) (map[string]int, error)
}

type CommunicationLogRepository struct {
	DB *sql.DB
}

const logColumns = `id, campaign_id, customer_id, status, created_at, updated_at`

func scanLog(row rowScanner, l *model.CommunicationLog) error {
	return row.Scan(&l.ID, &l.CampaignID, &l.CustomerID, &l.Status, &l.CreatedAt, &l.UpdatedAt)
}

// Create inserts a new PENDING log and fills its ID and timestamps.
func (r *CommunicationLogRepository) Create(ctx context.Context, l *model.CommunicationLog) error {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	if l.Status == "" {
		l.Status = model.DeliveryPending
	}
	now := time.Now().UTC()
	l.CreatedAt = now
	l.UpdatedAt = now

	query := `
        INSERT INTO communication_logs (id, campaign_id, customer_id, status, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6)
    `
	if _, err := r.DB.ExecContext(ctx, query, l.ID, l.CampaignID, l.CustomerID, l.Status, l.CreatedAt, l.UpdatedAt); err != nil {
		return fmt.Errorf("insert communication log: %w", err)
	}
	return nil
}

// GetByID fetches a log by its ID. A missing log is (nil, nil).
func (r *CommunicationLogRepository) GetByID(ctx context.Context, id string) (*model.CommunicationLog, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, nil
	}
	var l model.CommunicationLog
	err := scanLog(r.DB.QueryRowContext(ctx, `SELECT `+logColumns+` FROM communication_logs WHERE id=$1`, id), &l)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &l, nil
}

// MarkDelivered moves a PENDING log to status. It returns (nil, nil) when the
// log does not exist or already carries a terminal status, so a receipt is
// applied at most once.
func (r *CommunicationLogRepository) MarkDelivered(ctx context.Context, id string, status model.DeliveryStatus) (*model.CommunicationLog, error) {
	if !status.Terminal() {
		return nil, fmt.Errorf("invalid delivery status %q", status)
	}
	if _, err := uuid.Parse(id); err != nil {
		return nil, nil
	}
	query := `
        UPDATE communication_logs
        SET status=$1, updated_at=NOW()
        WHERE id=$2 AND status='PENDING'
        RETURNING ` + logColumns

	var l model.CommunicationLog
	if err := scanLog(r.DB.QueryRowContext(ctx, query, status, id), &l); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("mark log %s %s: %w", id, status, err)
	}
	return &l, nil
}

func (r *CommunicationLogRepository) ListByCampaign(ctx context.Context, campaignID string, offset, limit int) ([]*model.CommunicationLog, error) {
	query := `SELECT ` + logColumns + ` FROM communication_logs WHERE campaign_id=$1 ORDER BY created_at, id LIMIT $2 OFFSET $3`
	rows, err := r.DB.QueryContext(ctx, query, campaignID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := []*model.CommunicationLog{}
	for rows.Next() {
		l := &model.CommunicationLog{}
		if err := scanLog(rows, l); err != nil {
			return nil, err
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

// StatsByCampaign counts logs per status. All three statuses are present in
// the result.
func (r *CommunicationLogRepository) StatsByCampaign(ctx context.Context, campaignID string) (map[string]int, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT status, COUNT(*) FROM communication_logs WHERE campaign_id=$1 GROUP BY status`, campaignID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := map[string]int{
		string(model.DeliveryPending): 0,
		string(model.DeliverySent):    0,
		string(model.DeliveryFailed):  0,
	}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

var _ CommunicationLogRepositoryInterface = (*CommunicationLogRepository)(nil)
