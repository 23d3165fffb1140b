package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ignatzorin/career-marketplace/internal/models"
	"github.com/ignatzorin/career-marketplace/internal/repository/common"
)

// PayoutRepository хранит выплаты коучам. На один платёж приходится не больше одной выплаты.
type PayoutRepository struct {
	db *sqlx.DB
}

func NewPayoutRepository(db *sqlx.DB) *PayoutRepository {
	return &PayoutRepository{db: db}
}

// CreateForPayment создаёт pending выплату для освобождённого платежа.
// Повторный вызов для того же платежа возвращает существующую запись и created=false.
func (r *PayoutRepository) CreateForPayment(ctx context.Context, p *models.Payout) (*models.Payout, bool, error) {
	var payout models.Payout
	err := r.db.GetContext(ctx, &payout, `
		INSERT INTO payouts (coach_id, payment_id, task_id, session_id, amount, platform_fee, currency, status)
		SELECT $1, $2, $3, $4, $5, $6, $7, $8
		FROM payments WHERE id = $2 AND status = $9
		ON CONFLICT (payment_id) DO NOTHING
		RETURNING *
	`, p.CoachID, p.PaymentID, p.TaskID, p.SessionID, p.Amount, p.PlatformFee, p.Currency,
		models.PayoutStatusPending, models.PaymentStatusReleased)
	if err == nil {
		return &payout, true, nil
	}
	if !isNoRows(err) {
		return nil, false, fmt.Errorf("payout repository: create %w", err)
	}

	// Либо выплата уже есть, либо платёж не в статусе released.
	existing, getErr := r.GetByPaymentID(ctx, p.PaymentID)
	if getErr == nil {
		return existing, false, nil
	}
	if !errors.Is(getErr, ErrPayoutNotFound) {
		return nil, false, getErr
	}
	return nil, false, ErrPaymentStateConflict
}

func (r *PayoutRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Payout, error) {
	return common.GetByID[models.Payout](ctx, r.db, "payouts", id, ErrPayoutNotFound)
}

func (r *PayoutRepository) GetByPaymentID(ctx context.Context, paymentID uuid.UUID) (*models.Payout, error) {
	return common.GetByField[models.Payout](ctx, r.db, "payouts", "payment_id", paymentID, ErrPayoutNotFound)
}

func (r *PayoutRepository) GetByTransferRef(ctx context.Context, ref string) (*models.Payout, error) {
	return common.GetByField[models.Payout](ctx, r.db, "payouts", "external_transfer_ref", ref, ErrPayoutNotFound)
}

// BeginAttempt готовит выплату к переводу. Разрешено только для pending и failed.
// attempts задаёт поколение ключа идемпотентности: он растёт при первой попытке и после
// окончательного отказа, а pending выплата с неизвестным исходом повторяется с тем же ключом.
func (r *PayoutRepository) BeginAttempt(ctx context.Context, id uuid.UUID) (*models.Payout, error) {
	var payout models.Payout
	err := r.db.GetContext(ctx, &payout, `
		UPDATE payouts SET
			attempts = CASE WHEN status = $3 OR attempts = 0 THEN attempts + 1 ELSE attempts END,
			status = $2, failure_reason = NULL, updated_at = NOW()
		WHERE id = $1 AND status IN ($2, $3)
		RETURNING *
	`, id, models.PayoutStatusPending, models.PayoutStatusFailed)
	if err != nil {
		if isNoRows(err) {
			if _, getErr := r.GetByID(ctx, id); getErr != nil {
				return nil, getErr
			}
			return nil, ErrPayoutStateConflict
		}
		return nil, fmt.Errorf("payout repository: begin attempt %w", err)
	}
	return &payout, nil
}

// MarkPaid фиксирует успешный перевод. Повтор для уже paid выплаты возвращает changed=false.
func (r *PayoutRepository) MarkPaid(ctx context.Context, id uuid.UUID, transferRef string) (*models.Payout, bool, error) {
	var payout models.Payout
	err := r.db.GetContext(ctx, &payout, `
		UPDATE payouts SET status = $2, external_transfer_ref = $3, failure_reason = NULL, paid_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status IN ($4, $5)
		RETURNING *
	`, id, models.PayoutStatusPaid, transferRef, models.PayoutStatusPending, models.PayoutStatusFailed)
	if err == nil {
		return &payout, true, nil
	}
	if !isNoRows(err) {
		return nil, false, fmt.Errorf("payout repository: mark paid %w", err)
	}

	existing, getErr := r.GetByID(ctx, id)
	if getErr != nil {
		return nil, false, getErr
	}
	if existing.Status == models.PayoutStatusPaid {
		return existing, false, nil
	}
	return existing, false, ErrPayoutStateConflict
}

// MarkFailed фиксирует отказ перевода с причиной. Paid выплату откатить нельзя.
func (r *PayoutRepository) MarkFailed(ctx context.Context, id uuid.UUID, reason string) (*models.Payout, error) {
	var payout models.Payout
	err := r.db.GetContext(ctx, &payout, `
		UPDATE payouts SET status = $2, failure_reason = $3, updated_at = NOW()
		WHERE id = $1 AND status IN ($4, $2)
		RETURNING *
	`, id, models.PayoutStatusFailed, reason, models.PayoutStatusPending)
	if err != nil {
		if isNoRows(err) {
			if _, getErr := r.GetByID(ctx, id); getErr != nil {
				return nil, getErr
			}
			return nil, ErrPayoutStateConflict
		}
		return nil, fmt.Errorf("payout repository: mark failed %w", err)
	}
	return &payout, nil
}

// MarkReversed переводит выплату в failed после полного отзыва перевода провайдером.
func (r *PayoutRepository) MarkReversed(ctx context.Context, transferRef, reason string) (*models.Payout, bool, error) {
	var payout models.Payout
	err := r.db.GetContext(ctx, &payout, `
		UPDATE payouts SET status = $2, failure_reason = $3, paid_at = NULL, updated_at = NOW()
		WHERE external_transfer_ref = $1 AND status = $4
		RETURNING *
	`, transferRef, models.PayoutStatusFailed, reason, models.PayoutStatusPaid)
	if err == nil {
		return &payout, true, nil
	}
	if !isNoRows(err) {
		return nil, false, fmt.Errorf("payout repository: mark reversed %w", err)
	}
	existing, getErr := r.GetByTransferRef(ctx, transferRef)
	if getErr != nil {
		return nil, false, getErr
	}
	return existing, false, nil
}

func (r *PayoutRepository) ListByCoach(ctx context.Context, coachID uuid.UUID, limit, offset int) ([]models.Payout, error) {
	var payouts []models.Payout
	if err := r.db.SelectContext(ctx, &payouts, `
		SELECT * FROM payouts WHERE coach_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3
	`, coachID, limit, offset); err != nil {
		return nil, fmt.Errorf("payout repository: list by coach %w", err)
	}
	return payouts, nil
}

// ListByStatus нужен операторам для разбора неудачных выплат.
func (r *PayoutRepository) ListByStatus(ctx context.Context, status string, limit, offset int) ([]models.Payout, error) {
	var payouts []models.Payout
	if err := r.db.SelectContext(ctx, &payouts, `
		SELECT * FROM payouts WHERE status = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3
	`, status, limit, offset); err != nil {
		return nil, fmt.Errorf("payout repository: list by status %w", err)
	}
	return payouts, nil
}
