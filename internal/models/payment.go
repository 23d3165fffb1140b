package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Статусы платежей (escrow)
const (
	PaymentStatusPending      = "pending"
	PaymentStatusSucceeded    = "succeeded"
	PaymentStatusHeldInEscrow = "held_in_escrow"
	PaymentStatusReleased     = "released"
	PaymentStatusRefunded     = "refunded"
	PaymentStatusFailed       = "failed"
)

// Payment представляет платёж клиента, привязанный к задаче или сессии.
type Payment struct {
	ID               uuid.UUID       `db:"id" json:"id"`
	PayerID          uuid.UUID       `db:"payer_id" json:"payer_id"`
	TaskID           *uuid.UUID      `db:"task_id" json:"task_id,omitempty"`
	SessionID        *uuid.UUID      `db:"session_id" json:"session_id,omitempty"`
	BidID            *uuid.UUID      `db:"bid_id" json:"bid_id,omitempty"`
	Amount           decimal.Decimal `db:"amount" json:"amount"`
	Currency         string          `db:"currency" json:"currency"`
	ExternalRef      string          `db:"external_payment_ref" json:"external_payment_ref"`
	Status           string          `db:"status" json:"status"`
	FailureReason    *string         `db:"failure_reason" json:"failure_reason,omitempty"`
	CreatedAt        time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time       `db:"updated_at" json:"updated_at"`
	EscrowHeldAt     *time.Time      `db:"escrow_held_at" json:"escrow_held_at,omitempty"`
	EscrowReleasedAt *time.Time      `db:"escrow_released_at" json:"escrow_released_at,omitempty"`
	RefundedAt       *time.Time      `db:"refunded_at" json:"refunded_at,omitempty"`
}

// IsTerminal сообщает, что платёж больше не меняет статус.
func (p *Payment) IsTerminal() bool {
	switch p.Status {
	case PaymentStatusReleased, PaymentStatusRefunded, PaymentStatusFailed:
		return true
	}
	return false
}
