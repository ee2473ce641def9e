// internal/model/customer.go
package model

import "time"

type Customer struct {
    ID          string     `db:"id" json:"id"`
    Name        string     `db:"name" json:"name"`
    Email       string     `db:"email" json:"email"`
    TotalSpends float64    `db:"total_spends" json:"totalSpends"`
    Visits      int        `db:"visits" json:"visits"`
    LastVisit   *time.Time `db:"last_visit" json:"lastVisit,omitempty"`
    CreatedAt   time.Time  `db:"created_at" json:"createdAt"`
    UpdatedAt   time.Time  `db:"updated_at" json:"updatedAt"`
}
