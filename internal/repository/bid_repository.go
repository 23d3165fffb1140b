package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ignatzorin/career-marketplace/internal/models"
	"github.com/ignatzorin/career-marketplace/internal/repository/common"
)

// BidRepository хранит ставки коучей.
type BidRepository struct {
	db *sqlx.DB
}

// NewBidRepository создаёт экземпляр репозитория.
func NewBidRepository(db *sqlx.DB) *BidRepository {
	return &BidRepository{db: db}
}

// CreateForTask сохраняет ставку и, если задача была open, переводит её в bidding.
// Строка задачи блокируется, поэтому ставка не может проскочить мимо принятия другой ставки.
// Повторная ставка того же коуча отсекается уникальным ограничением (task_id, coach_id).
func (r *BidRepository) CreateForTask(ctx context.Context, bid *models.Bid) (*models.Task, error) {
	var task *models.Task
	err := common.WithTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		locked, err := lockTask(ctx, tx, bid.TaskID)
		if err != nil {
			return err
		}
		if !statusIn(locked.Status, models.BiddableTaskStatuses) {
			return ErrTaskStateConflict
		}

		err = tx.QueryRowxContext(ctx, `
			INSERT INTO bids (task_id, coach_id, price, estimated_hours, message, status)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING id, created_at, updated_at
		`, bid.TaskID, bid.CoachID, bid.Price, bid.EstimatedHours, bid.Message, models.BidStatusPending).
			Scan(&bid.ID, &bid.CreatedAt, &bid.UpdatedAt)
		if err != nil {
			if common.IsUniqueViolation(err, "bids_task_coach_key") {
				return ErrDuplicateBid
			}
			return fmt.Errorf("bid repository: insert %w", err)
		}
		bid.Status = models.BidStatusPending

		if locked.Status == models.TaskStatusOpen {
			if err := tx.GetContext(ctx, locked, `
				UPDATE tasks SET status = $2, updated_at = NOW()
				WHERE id = $1 AND status = $3
				RETURNING *
			`, locked.ID, models.TaskStatusBidding, models.TaskStatusOpen); err != nil {
				return fmt.Errorf("bid repository: open -> bidding %w", err)
			}
		}
		task = locked
		return nil
	})
	if err != nil {
		return nil, err
	}
	return task, nil
}

// GetByID возвращает ставку по идентификатору.
func (r *BidRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Bid, error) {
	return common.GetByID[models.Bid](ctx, r.db, "bids", id, ErrBidNotFound)
}

// GetByTaskAndCoach возвращает ставку коуча на задачу.
func (r *BidRepository) GetByTaskAndCoach(ctx context.Context, taskID, coachID uuid.UUID) (*models.Bid, error) {
	var bid models.Bid
	err := r.db.GetContext(ctx, &bid, `SELECT * FROM bids WHERE task_id = $1 AND coach_id = $2`, taskID, coachID)
	if err != nil {
		if isNoRows(err) {
			return nil, ErrBidNotFound
		}
		return nil, fmt.Errorf("bid repository: get by task and coach %w", err)
	}
	return &bid, nil
}

// ListByTask возвращает все ставки задачи в порядке поступления.
func (r *BidRepository) ListByTask(ctx context.Context, taskID uuid.UUID) ([]models.Bid, error) {
	var bids []models.Bid
	if err := r.db.SelectContext(ctx, &bids, `
		SELECT * FROM bids WHERE task_id = $1 ORDER BY created_at ASC
	`, taskID); err != nil {
		return nil, fmt.Errorf("bid repository: list by task %w", err)
	}
	return bids, nil
}

// Accept принимает ставку одной транзакцией: ставка → accepted, задача → assigned
// с коучем и итоговой ценой, остальные pending ставки → rejected.
// Задача блокируется FOR UPDATE, поэтому из двух одновременных вызовов
// проходит первый, а второй видит статус assigned и получает ErrTaskStateConflict.
func (r *BidRepository) Accept(ctx context.Context, taskID, bidID uuid.UUID) (*models.BidAcceptance, error) {
	result := &models.BidAcceptance{}
	err := common.WithTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		task, err := lockTask(ctx, tx, taskID)
		if err != nil {
			return err
		}
		if task.Status != models.TaskStatusBidding {
			return ErrTaskStateConflict
		}

		bid, err := common.LockByID[models.Bid](ctx, tx, "bids", bidID, ErrBidNotFound)
		if err != nil {
			return err
		}
		if bid.TaskID != taskID {
			return ErrBidNotFound
		}
		if bid.Status != models.BidStatusPending {
			return ErrBidNotPending
		}

		if err := tx.GetContext(ctx, bid, `
			UPDATE bids SET status = $2, updated_at = NOW() WHERE id = $1 RETURNING *
		`, bidID, models.BidStatusAccepted); err != nil {
			if common.IsUniqueViolation(err, "bids_one_accepted_per_task") {
				return ErrTaskStateConflict
			}
			return fmt.Errorf("bid repository: accept %w", err)
		}

		var rejected []models.Bid
		if err := tx.SelectContext(ctx, &rejected, `
			UPDATE bids SET status = $3, updated_at = NOW()
			WHERE task_id = $1 AND id <> $2 AND status = $4
			RETURNING *
		`, taskID, bidID, models.BidStatusRejected, models.BidStatusPending); err != nil {
			return fmt.Errorf("bid repository: reject competitors %w", err)
		}

		if err := tx.GetContext(ctx, task, `
			UPDATE tasks SET status = $2, assigned_coach_id = $3, final_price = $4, updated_at = NOW()
			WHERE id = $1 AND status = $5
			RETURNING *
		`, taskID, models.TaskStatusAssigned, bid.CoachID, bid.Price, models.TaskStatusBidding); err != nil {
			return fmt.Errorf("bid repository: assign task %w", err)
		}

		result.Task = task
		result.Bid = bid
		result.Rejected = rejected
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
