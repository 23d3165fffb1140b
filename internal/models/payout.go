package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Статусы выплат коучу
const (
	PayoutStatusPending   = "pending"
	PayoutStatusPaid      = "paid"
	PayoutStatusFailed    = "failed"
	PayoutStatusCancelled = "cancelled"
)

// Payout фиксирует перевод коучу за вычетом комиссии платформы.
type Payout struct {
	ID                  uuid.UUID       `db:"id" json:"id"`
	CoachID             uuid.UUID       `db:"coach_id" json:"coach_id"`
	PaymentID           uuid.UUID       `db:"payment_id" json:"payment_id"`
	TaskID              *uuid.UUID      `db:"task_id" json:"task_id,omitempty"`
	SessionID           *uuid.UUID      `db:"session_id" json:"session_id,omitempty"`
	Amount              decimal.Decimal `db:"amount" json:"amount"`
	PlatformFee         decimal.Decimal `db:"platform_fee" json:"platform_fee"`
	Currency            string          `db:"currency" json:"currency"`
	ExternalTransferRef *string         `db:"external_transfer_ref" json:"external_transfer_ref,omitempty"`
	Status              string          `db:"status" json:"status"`
	FailureReason       *string         `db:"failure_reason" json:"failure_reason,omitempty"`
	Attempts            int             `db:"attempts" json:"attempts"`
	CreatedAt           time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time       `db:"updated_at" json:"updated_at"`
	PaidAt              *time.Time      `db:"paid_at" json:"paid_at,omitempty"`
}

// GrossAmount возвращает сумму, освобождённую из escrow.
func (p *Payout) GrossAmount() decimal.Decimal {
	return p.Amount.Add(p.PlatformFee)
}

// IsRetryable сообщает, можно ли повторить перевод.
func (p *Payout) IsRetryable() bool {
	return p.Status == PayoutStatusPending || p.Status == PayoutStatusFailed
}
