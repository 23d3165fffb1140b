package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/ignatzorin/career-marketplace/internal/models"
	"github.com/ignatzorin/career-marketplace/internal/repository/common"
)

// PaymentRepository ведёт журнал платежей и escrow.
// Терминальные статусы (released, refunded, failed) никогда не откатываются:
// каждый переход это условный UPDATE по ожидаемому текущему статусу.
type PaymentRepository struct {
	db *sqlx.DB
}

// NewPaymentRepository создаёт экземпляр репозитория.
func NewPaymentRepository(db *sqlx.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

// CreatePending сохраняет платёж в статусе pending после создания payment intent.
func (r *PaymentRepository) CreatePending(ctx context.Context, p *models.Payment) error {
	p.Status = models.PaymentStatusPending
	err := r.db.QueryRowxContext(ctx, `
		INSERT INTO payments (payer_id, task_id, session_id, bid_id, amount, currency, external_payment_ref, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at, updated_at
	`, p.PayerID, p.TaskID, p.SessionID, p.BidID, p.Amount, p.Currency, p.ExternalRef, p.Status).
		Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		switch {
		case common.IsUniqueViolation(err, "payments_external_ref_key"):
			return ErrPaymentRefExists
		case common.IsUniqueViolation(err, "payments_one_open_per_task"):
			return ErrPaymentInProgress
		}
		return fmt.Errorf("payment repository: create pending %w", err)
	}
	return nil
}

// GetByID возвращает платёж по идентификатору.
func (r *PaymentRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	return common.GetByID[models.Payment](ctx, r.db, "payments", id, ErrPaymentNotFound)
}

// GetByExternalRef ищет платёж по идентификатору payment intent через уникальный индекс.
func (r *PaymentRepository) GetByExternalRef(ctx context.Context, ref string) (*models.Payment, error) {
	return common.GetByField[models.Payment](ctx, r.db, "payments", "external_payment_ref", ref, ErrPaymentNotFound)
}

// ListByTask возвращает все платежи задачи.
func (r *PaymentRepository) ListByTask(ctx context.Context, taskID uuid.UUID) ([]models.Payment, error) {
	var payments []models.Payment
	if err := r.db.SelectContext(ctx, &payments, `
		SELECT * FROM payments WHERE task_id = $1 ORDER BY created_at DESC
	`, taskID); err != nil {
		return nil, fmt.Errorf("payment repository: list by task %w", err)
	}
	return payments, nil
}

// GetReleasedForTask возвращает последний освобождённый платёж задачи.
func (r *PaymentRepository) GetReleasedForTask(ctx context.Context, taskID uuid.UUID) (*models.Payment, error) {
	var p models.Payment
	err := r.db.GetContext(ctx, &p, `
		SELECT * FROM payments WHERE task_id = $1 AND status = $2
		ORDER BY escrow_released_at DESC LIMIT 1
	`, taskID, models.PaymentStatusReleased)
	if err != nil {
		if isNoRows(err) {
			return nil, ErrPaymentNotFound
		}
		return nil, fmt.Errorf("payment repository: get released for task %w", err)
	}
	return &p, nil
}

// Hold фиксирует средства задачи в escrow. Задача должна быть в статусе assigned.
// Если платёж с тем же external ref уже есть в pending/succeeded/failed, он переводится в held_in_escrow,
// иначе создаётся новая запись. Вторая активная блокировка по задаче отклоняется.
func (r *PaymentRepository) Hold(ctx context.Context, p *models.Payment) (*models.Payment, error) {
	if p.TaskID == nil {
		return nil, fmt.Errorf("payment repository: hold требует task_id")
	}

	var held models.Payment
	err := common.WithTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		task, err := lockTask(ctx, tx, *p.TaskID)
		if err != nil {
			return err
		}
		if task.Status != models.TaskStatusAssigned {
			return ErrTaskStateConflict
		}

		// Удерживать можно только по ставке, которая привела к назначению.
		if p.BidID == nil {
			return ErrBidNotFound
		}
		var bid models.Bid
		if err := tx.GetContext(ctx, &bid, `SELECT * FROM bids WHERE id = $1`, *p.BidID); err != nil {
			if isNoRows(err) {
				return ErrBidNotFound
			}
			return fmt.Errorf("payment repository: get bid %w", err)
		}
		if bid.TaskID != task.ID || bid.Status != models.BidStatusAccepted || !task.IsAssignedTo(bid.CoachID) {
			return ErrBidNotAccepted
		}
		p.Amount = task.FinalPrice.Decimal

		var active int
		if err := tx.GetContext(ctx, &active, `
			SELECT COUNT(*) FROM payments WHERE task_id = $1 AND status = $2
		`, task.ID, models.PaymentStatusHeldInEscrow); err != nil {
			return fmt.Errorf("payment repository: count holds %w", err)
		}
		if active > 0 {
			return ErrEscrowAlreadyHeld
		}

		var existing models.Payment
		err = tx.GetContext(ctx, &existing, `
			SELECT * FROM payments WHERE external_payment_ref = $1 FOR UPDATE
		`, p.ExternalRef)
		switch {
		case err == nil:
			if existing.TaskID == nil || *existing.TaskID != task.ID {
				return ErrPaymentRefExists
			}
			// failed здесь устаревший: провайдер уже подтвердил оплату intent.
			if !statusIn(existing.Status, []string{models.PaymentStatusPending, models.PaymentStatusSucceeded, models.PaymentStatusFailed}) {
				return ErrPaymentStateConflict
			}
			err = tx.GetContext(ctx, &held, `
				UPDATE payments SET status = $2, bid_id = COALESCE(bid_id, $3), failure_reason = NULL, escrow_held_at = NOW(), updated_at = NOW()
				WHERE id = $1
				RETURNING *
			`, existing.ID, models.PaymentStatusHeldInEscrow, p.BidID)
		case isNoRows(err):
			err = tx.GetContext(ctx, &held, `
				INSERT INTO payments (payer_id, task_id, bid_id, amount, currency, external_payment_ref, status, escrow_held_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
				RETURNING *
			`, p.PayerID, p.TaskID, p.BidID, p.Amount, p.Currency, p.ExternalRef, models.PaymentStatusHeldInEscrow)
		default:
			return fmt.Errorf("payment repository: find by ref %w", err)
		}
		if err != nil {
			if common.IsUniqueViolation(err, "payments_one_hold_per_task") {
				return ErrEscrowAlreadyHeld
			}
			if common.IsUniqueViolation(err, "payments_external_ref_key") {
				return ErrPaymentRefExists
			}
			return fmt.Errorf("payment repository: hold %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &held, nil
}

// Release освобождает escrow задачи. Задача должна быть completed;
// проверка статуса и запись выполняются под одной блокировкой.
func (r *PaymentRepository) Release(ctx context.Context, taskID uuid.UUID) (*models.Payment, error) {
	var released models.Payment
	err := common.WithTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		task, err := lockTask(ctx, tx, taskID)
		if err != nil {
			return err
		}
		if task.Status != models.TaskStatusCompleted {
			return ErrTaskStateConflict
		}

		held, err := lockHeldPayment(ctx, tx, taskID)
		if err != nil {
			return err
		}

		return tx.GetContext(ctx, &released, `
			UPDATE payments SET status = $2, escrow_released_at = NOW(), updated_at = NOW()
			WHERE id = $1 AND status = $3
			RETURNING *
		`, held.ID, models.PaymentStatusReleased, models.PaymentStatusHeldInEscrow)
	})
	if err != nil {
		return nil, err
	}
	return &released, nil
}

// RefundResult итог возврата по спору.
type RefundResult struct {
	Payment *models.Payment
	Task    *models.Task
	Dispute *models.Dispute
}

// Refund возвращает escrow клиенту и переводит задачу в disputed.
// beforeCommit вызывается под блокировкой до записи статусов (там выполняется
// возврат у провайдера); при его ошибке транзакция откатывается и состояние не меняется.
func (r *PaymentRepository) Refund(ctx context.Context, taskID uuid.UUID, dispute *models.Dispute, beforeCommit func(*models.Payment) error) (*RefundResult, error) {
	result := &RefundResult{}
	err := common.WithTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		task, err := lockTask(ctx, tx, taskID)
		if err != nil {
			return err
		}
		if !statusIn(task.Status, models.DisputableTaskStatuses) {
			return ErrTaskStateConflict
		}

		held, err := lockHeldPayment(ctx, tx, taskID)
		if err != nil {
			return err
		}

		if beforeCommit != nil {
			if err := beforeCommit(held); err != nil {
				return err
			}
		}

		var refunded models.Payment
		if err := tx.GetContext(ctx, &refunded, `
			UPDATE payments SET status = $2, refunded_at = NOW(), updated_at = NOW()
			WHERE id = $1 AND status = $3
			RETURNING *
		`, held.ID, models.PaymentStatusRefunded, models.PaymentStatusHeldInEscrow); err != nil {
			return fmt.Errorf("payment repository: refund %w", err)
		}

		if err := tx.GetContext(ctx, task, `
			UPDATE tasks SET status = $2, updated_at = NOW() WHERE id = $1 RETURNING *
		`, taskID, models.TaskStatusDisputed); err != nil {
			return fmt.Errorf("payment repository: task -> disputed %w", err)
		}

		dispute.TaskID = taskID
		dispute.PaymentID = refunded.ID
		dispute.Status = models.DisputeStatusOpen
		if err := tx.QueryRowxContext(ctx, `
			INSERT INTO disputes (task_id, payment_id, initiator_id, reason, status)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id, created_at
		`, dispute.TaskID, dispute.PaymentID, dispute.InitiatorID, dispute.Reason, dispute.Status).
			Scan(&dispute.ID, &dispute.CreatedAt); err != nil {
			return fmt.Errorf("payment repository: create dispute %w", err)
		}

		result.Payment = &refunded
		result.Task = task
		result.Dispute = dispute
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// MarkSucceededByRef применяет подтверждение оплаты от провайдера.
// Платёж задачи сразу уходит в held_in_escrow, платёж сессии в succeeded.
// Failed тоже принимается: провайдер допускает повторную оплату того же intent,
// и деньги уже списаны. Возвращает changed=false, если переход уже был применён.
func (r *PaymentRepository) MarkSucceededByRef(ctx context.Context, ref string) (*models.Payment, bool, error) {
	var (
		payment models.Payment
		changed bool
	)
	err := common.WithTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		if err := lockTaskOfPayment(ctx, tx, ref); err != nil {
			return err
		}
		if err := lockPaymentByRef(ctx, tx, ref, &payment); err != nil {
			return err
		}

		switch payment.Status {
		case models.PaymentStatusPending, models.PaymentStatusFailed:
		case models.PaymentStatusSucceeded:
			if payment.TaskID == nil {
				return nil
			}
		case models.PaymentStatusHeldInEscrow, models.PaymentStatusReleased, models.PaymentStatusRefunded:
			return nil
		default:
			return ErrPaymentStateConflict
		}

		query := `
			UPDATE payments SET status = $2, failure_reason = NULL, updated_at = NOW() WHERE id = $1 RETURNING *
		`
		target := models.PaymentStatusSucceeded
		if payment.TaskID != nil {
			query = `
				UPDATE payments SET status = $2, failure_reason = NULL, escrow_held_at = NOW(), updated_at = NOW()
				WHERE id = $1 RETURNING *
			`
			target = models.PaymentStatusHeldInEscrow
		}
		if err := tx.GetContext(ctx, &payment, query, payment.ID, target); err != nil {
			if common.IsUniqueViolation(err, "payments_one_hold_per_task") {
				return ErrEscrowAlreadyHeld
			}
			return fmt.Errorf("payment repository: mark succeeded %w", err)
		}
		changed = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return &payment, changed, nil
}

// MarkFailedByRef переводит pending платёж в failed.
func (r *PaymentRepository) MarkFailedByRef(ctx context.Context, ref, reason string) (*models.Payment, bool, error) {
	var payment models.Payment
	err := r.db.GetContext(ctx, &payment, `
		UPDATE payments SET status = $2, failure_reason = $3, updated_at = NOW()
		WHERE external_payment_ref = $1 AND status = $4
		RETURNING *
	`, ref, models.PaymentStatusFailed, reason, models.PaymentStatusPending)
	if err == nil {
		return &payment, true, nil
	}
	if !isNoRows(err) {
		return nil, false, fmt.Errorf("payment repository: mark failed %w", err)
	}

	existing, getErr := r.GetByExternalRef(ctx, ref)
	if getErr != nil {
		return nil, false, getErr
	}
	if existing.Status == models.PaymentStatusFailed {
		return existing, false, nil
	}
	return existing, false, ErrPaymentStateConflict
}

// MarkRefundedByRef применяет возврат, пришедший от провайдера.
// Повтор для уже refunded платежа ничего не меняет. Возврат освобождённого escrow
// недопустим и возвращает ErrEscrowAlreadyReleased.
func (r *PaymentRepository) MarkRefundedByRef(ctx context.Context, ref string) (*models.Payment, bool, error) {
	var (
		payment models.Payment
		changed bool
	)
	err := common.WithTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		if err := lockTaskOfPayment(ctx, tx, ref); err != nil {
			return err
		}
		if err := lockPaymentByRef(ctx, tx, ref, &payment); err != nil {
			return err
		}

		switch payment.Status {
		case models.PaymentStatusRefunded:
			return nil
		case models.PaymentStatusReleased:
			return ErrEscrowAlreadyReleased
		case models.PaymentStatusHeldInEscrow, models.PaymentStatusSucceeded:
		default:
			return ErrPaymentStateConflict
		}

		if payment.TaskID != nil {
			if _, err := tx.ExecContext(ctx, `
				UPDATE tasks SET status = $2, updated_at = NOW()
				WHERE id = $1 AND status = ANY($3)
			`, *payment.TaskID, models.TaskStatusDisputed, pq.Array(models.DisputableTaskStatuses)); err != nil {
				return fmt.Errorf("payment repository: task -> disputed %w", err)
			}
		}

		if err := tx.GetContext(ctx, &payment, `
			UPDATE payments SET status = $2, refunded_at = NOW(), updated_at = NOW()
			WHERE id = $1
			RETURNING *
		`, payment.ID, models.PaymentStatusRefunded); err != nil {
			return fmt.Errorf("payment repository: mark refunded %w", err)
		}
		changed = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return &payment, changed, nil
}

func lockHeldPayment(ctx context.Context, tx *sqlx.Tx, taskID uuid.UUID) (*models.Payment, error) {
	var held models.Payment
	err := tx.GetContext(ctx, &held, `
		SELECT * FROM payments WHERE task_id = $1 AND status = $2 FOR UPDATE
	`, taskID, models.PaymentStatusHeldInEscrow)
	if err != nil {
		if isNoRows(err) {
			return nil, ErrEscrowNotFound
		}
		return nil, fmt.Errorf("payment repository: lock held payment %w", err)
	}
	return &held, nil
}

// lockTaskOfPayment блокирует строку задачи платежа раньше строки платежа,
// в том же порядке, что Hold, Release и Refund. task_id платежа не меняется, читается без блокировки.
func lockTaskOfPayment(ctx context.Context, tx *sqlx.Tx, ref string) error {
	var taskID uuid.NullUUID
	err := tx.GetContext(ctx, &taskID, `SELECT task_id FROM payments WHERE external_payment_ref = $1`, ref)
	if err != nil {
		if isNoRows(err) {
			return ErrPaymentNotFound
		}
		return fmt.Errorf("payment repository: task of payment %w", err)
	}
	if !taskID.Valid {
		return nil
	}
	_, err = lockTask(ctx, tx, taskID.UUID)
	return err
}

func lockPaymentByRef(ctx context.Context, tx *sqlx.Tx, ref string, dest *models.Payment) error {
	err := tx.GetContext(ctx, dest, `SELECT * FROM payments WHERE external_payment_ref = $1 FOR UPDATE`, ref)
	if err != nil {
		if isNoRows(err) {
			return ErrPaymentNotFound
		}
		return fmt.Errorf("payment repository: lock by ref %w", err)
	}
	return nil
}
