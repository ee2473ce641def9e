package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/unclebandit/crm-pipeline/internal/model"
	"github.com/unclebandit/crm-pipeline/internal/rules"
)

// CustomerRepositoryInterface defines methods used by service
type CustomerRepositoryInterface interface {
	Upsert(ctx context.Context, c *model.Customer) error
	GetByID(ctx context.Context, id string) (*model.Customer, error)
	GetByEmail(ctx context.Context, email string) (*model.Customer, error)
	FindByRule(ctx context.Context, node rules.Node) ([]model.Customer, error)
}

// CustomerRepository is the concrete implementation
type CustomerRepository struct {
	DB *sql.DB
}

const customerColumns = `id, name, email, total_spends, visits, last_visit, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCustomer(row rowScanner, c *model.Customer) error {
	var lastVisit sql.NullTime
	if err := row.Scan(&c.ID, &c.Name, &c.Email, &c.TotalSpends, &c.Visits, &lastVisit, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return err
	}
	c.LastVisit = nil
	if lastVisit.Valid {
		t := time.Date(lastVisit.Time.Year(), lastVisit.Time.Month(), lastVisit.Time.Day(), 0, 0, 0, 0, time.UTC)
		c.LastVisit = &t
	}
	return nil
}

// dayParam binds a date as YYYY-MM-DD so the session time zone cannot shift it.
func dayParam(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format("2006-01-02")
}

// Upsert inserts the customer or fully overwrites the record with the same
// email in a single statement. c.ID, CreatedAt and UpdatedAt are filled from
// the stored row.
func (r *CustomerRepository) Upsert(ctx context.Context, c *model.Customer) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	query := `
        INSERT INTO customers (id, name, email, total_spends, visits, last_visit, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
        ON CONFLICT (email) DO UPDATE
        SET name = EXCLUDED.name,
            total_spends = EXCLUDED.total_spends,
            visits = EXCLUDED.visits,
            last_visit = EXCLUDED.last_visit,
            updated_at = NOW()
        RETURNING id, created_at, updated_at
    `
	err := r.DB.QueryRowContext(ctx, query,
		c.ID, c.Name, c.Email, c.TotalSpends, c.Visits, dayParam(c.LastVisit),
	).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert customer %s: %w", c.Email, err)
	}
	return nil
}

// GetByID fetches a customer by ID
func (r *CustomerRepository) GetByID(ctx context.Context, id string) (*model.Customer, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, nil
	}
	return r.getOne(ctx, `SELECT `+customerColumns+` FROM customers WHERE id = $1`, id)
}

func (r *CustomerRepository) GetByEmail(ctx context.Context, email string) (*model.Customer, error) {
	return r.getOne(ctx, `SELECT `+customerColumns+` FROM customers WHERE email = $1`, email)
}

func (r *CustomerRepository) getOne(ctx context.Context, query string, arg any) (*model.Customer, error) {
	var c model.Customer
	if err := scanCustomer(r.DB.QueryRowContext(ctx, query, arg), &c); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // not found
		}
		return nil, err
	}
	return &c, nil
}

// FindByRule returns every customer matching node, oldest first. The order is
// the audience iteration order used by campaign execution.
func (r *CustomerRepository) FindByRule(ctx context.Context, node rules.Node) ([]model.Customer, error) {
	clause, args, err := rules.ToSQL(node, 1)
	if err != nil {
		return nil, err
	}
	query := `SELECT ` + customerColumns + ` FROM customers WHERE ` + clause + ` ORDER BY created_at, id`

	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query audience: %w", err)
	}
	defer rows.Close()

	customers := []model.Customer{}
	for rows.Next() {
		var c model.Customer
		if err := scanCustomer(rows, &c); err != nil {
			return nil, err
		}
		customers = append(customers, c)
	}
	return customers, rows.Err()
}

var _ CustomerRepositoryInterface = (*CustomerRepository)(nil)
