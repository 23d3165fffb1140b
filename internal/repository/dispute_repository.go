package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ignatzorin/career-marketplace/internal/models"
)

// DisputeRepository читает споры. Создаются они вместе с возвратом в PaymentRepository.Refund.
type DisputeRepository struct {
	db *sqlx.DB
}

func NewDisputeRepository(db *sqlx.DB) *DisputeRepository {
	return &DisputeRepository{db: db}
}

func (r *DisputeRepository) GetByTaskID(ctx context.Context, taskID uuid.UUID) (*models.Dispute, error) {
	var d models.Dispute
	err := r.db.GetContext(ctx, &d, `
		SELECT * FROM disputes WHERE task_id = $1 ORDER BY created_at DESC LIMIT 1
	`, taskID)
	if err != nil {
		if isNoRows(err) {
			return nil, ErrDisputeNotFound
		}
		return nil, fmt.Errorf("dispute repository: get by task %w", err)
	}
	return &d, nil
}

// ListByUser возвращает споры по задачам, где пользователь клиент или назначенный коуч.
func (r *DisputeRepository) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Dispute, error) {
	var disputes []models.Dispute
	if err := r.db.SelectContext(ctx, &disputes, `
		SELECT d.* FROM disputes d
		JOIN tasks t ON d.task_id = t.id
		WHERE t.client_id = $1 OR t.assigned_coach_id = $1
		ORDER BY d.created_at DESC LIMIT $2 OFFSET $3
	`, userID, limit, offset); err != nil {
		return nil, fmt.Errorf("dispute repository: list by user %w", err)
	}
	return disputes, nil
}
