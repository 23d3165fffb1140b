package service

import (
	"context"

	"github.com/google/uuid"

	"github.com/ignatzorin/career-marketplace/internal/models"
)

type DisputeRepository interface {
	GetByTaskID(ctx context.Context, taskID uuid.UUID) (*models.Dispute, error)
	ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Dispute, error)
}

// DisputeService чтение споров. Открывается спор через EscrowService.RefundEscrowPayment.
type DisputeService struct {
	disputes DisputeRepository
	tasks    TaskRepository
}

func NewDisputeService(disputes DisputeRepository, tasks TaskRepository) *DisputeService {
	return &DisputeService{disputes: disputes, tasks: tasks}
}

// GetTaskDispute спор по задаче, доступен только участникам.
func (s *DisputeService) GetTaskDispute(ctx context.Context, userID, taskID uuid.UUID) (*models.Dispute, error) {
	task, err := s.tasks.GetByID(ctx, taskID)
	if err != nil {
		return nil, translateError(err)
	}
	if !task.IsParticipant(userID) {
		return nil, errNotParticipant
	}

	dispute, err := s.disputes.GetByTaskID(ctx, taskID)
	return dispute, translateError(err)
}

// ListUserDisputes споры по задачам, где пользователь клиент или коуч.
func (s *DisputeService) ListUserDisputes(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Dispute, error) {
	limit, offset = normalizePage(limit, offset)
	disputes, err := s.disputes.ListByUser(ctx, userID, limit, offset)
	return disputes, translateError(err)
}
