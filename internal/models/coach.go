package models

import (
	"time"

	"github.com/google/uuid"
)

// CoachProfile хранит статус одобрения коуча и его счёт для выплат.
type CoachProfile struct {
	UserID          uuid.UUID `db:"user_id" json:"user_id"`
	Status          string    `db:"status" json:"status"`
	PayoutAccountID *string   `db:"payout_account_id" json:"payout_account_id,omitempty"`
	PayoutsEnabled  bool      `db:"payouts_enabled" json:"payouts_enabled"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}

// IsApproved сообщает, может ли коуч делать ставки.
func (p *CoachProfile) IsApproved() bool {
	return p.Status == CoachStatusApproved
}
