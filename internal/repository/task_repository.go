package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/ignatzorin/career-marketplace/internal/models"
	"github.com/ignatzorin/career-marketplace/internal/repository/common"
)

// TaskRepository хранит задачи на проверку.
type TaskRepository struct {
	db *sqlx.DB
}

// NewTaskRepository создаёт экземпляр репозитория.
func NewTaskRepository(db *sqlx.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

// Create сохраняет новую задачу.
func (r *TaskRepository) Create(ctx context.Context, task *models.Task) error {
	query := `
		INSERT INTO tasks (client_id, resume_id, task_type, urgency, description, suggested_price, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at
	`
	if err := r.db.QueryRowxContext(ctx, query,
		task.ClientID,
		task.ResumeID,
		task.TaskType,
		task.Urgency,
		task.Description,
		task.SuggestedPrice,
		task.Status,
	).Scan(&task.ID, &task.CreatedAt, &task.UpdatedAt); err != nil {
		return fmt.Errorf("task repository: create %w", err)
	}
	return nil
}

// GetByID возвращает задачу по идентификатору.
func (r *TaskRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Task, error) {
	return common.GetByID[models.Task](ctx, r.db, "tasks", id, ErrTaskNotFound)
}

// ListOpen возвращает задачи, доступные для ставок.
func (r *TaskRepository) ListOpen(ctx context.Context, filter models.TaskFilter) ([]models.Task, error) {
	query := `
		SELECT t.*, (SELECT COUNT(*) FROM bids b WHERE b.task_id = t.id) AS bids_count
		FROM tasks t
		WHERE t.status = ANY($1)
			AND ($2 = '' OR t.task_type = $2)
			AND ($3 = '' OR t.urgency = $3)
		ORDER BY t.created_at DESC
		LIMIT $4 OFFSET $5
	`
	var tasks []models.Task
	if err := r.db.SelectContext(ctx, &tasks, query,
		pq.Array(models.BiddableTaskStatuses), filter.TaskType, filter.Urgency, filter.Limit, filter.Offset,
	); err != nil {
		return nil, fmt.Errorf("task repository: list open %w", err)
	}
	return tasks, nil
}

// ListByClient возвращает задачи клиента.
func (r *TaskRepository) ListByClient(ctx context.Context, clientID uuid.UUID, limit, offset int) ([]models.Task, error) {
	var tasks []models.Task
	err := r.db.SelectContext(ctx, &tasks, `
		SELECT t.*, (SELECT COUNT(*) FROM bids b WHERE b.task_id = t.id) AS bids_count
		FROM tasks t WHERE t.client_id = $1
		ORDER BY t.created_at DESC LIMIT $2 OFFSET $3
	`, clientID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("task repository: list by client %w", err)
	}
	return tasks, nil
}

// ListByCoach возвращает задачи, назначенные коучу.
func (r *TaskRepository) ListByCoach(ctx context.Context, coachID uuid.UUID, limit, offset int) ([]models.Task, error) {
	var tasks []models.Task
	err := r.db.SelectContext(ctx, &tasks, `
		SELECT * FROM tasks WHERE assigned_coach_id = $1
		ORDER BY created_at DESC LIMIT $2 OFFSET $3
	`, coachID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("task repository: list by coach %w", err)
	}
	return tasks, nil
}

// Transition переводит задачу в статус to условным UPDATE: строка меняется,
// только если текущий статус входит в from. Иначе ErrTaskStateConflict.
func (r *TaskRepository) Transition(ctx context.Context, id uuid.UUID, from []string, to string, feedback *string) (*models.Task, error) {
	query := `
		UPDATE tasks SET
			status = $3,
			feedback = COALESCE($4, feedback),
			completed_at = CASE WHEN $3 = 'completed' THEN NOW() ELSE completed_at END,
			updated_at = NOW()
		WHERE id = $1 AND status = ANY($2)
		RETURNING *
	`
	var task models.Task
	err := r.db.GetContext(ctx, &task, query, id, pq.Array(from), to, feedback)
	if err == nil {
		return &task, nil
	}
	if !isNoRows(err) {
		return nil, fmt.Errorf("task repository: transition %w", err)
	}

	// Различаем «нет задачи» и «статус уже другой».
	if _, getErr := r.GetByID(ctx, id); getErr != nil {
		return nil, getErr
	}
	return nil, ErrTaskStateConflict
}

// lockTask блокирует строку задачи до конца транзакции.
func lockTask(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) (*models.Task, error) {
	return common.LockByID[models.Task](ctx, tx, "tasks", id, ErrTaskNotFound)
}

// statusIn проверяет вхождение статуса в набор.
func statusIn(status string, allowed []string) bool {
	for _, s := range allowed {
		if s == status {
			return true
		}
	}
	return false
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
