package service

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/career-marketplace/internal/logger"
	"github.com/ignatzorin/career-marketplace/internal/models"
	"github.com/ignatzorin/career-marketplace/internal/pkg/apperror"
	"github.com/ignatzorin/career-marketplace/internal/repository"
	"github.com/ignatzorin/career-marketplace/internal/validation"
)

// События, которые маркетплейс отправляет пользователям.
const (
	EventBidCreated    = "bid.created"
	EventBidAccepted   = "bid.accepted"
	EventBidRejected   = "bid.rejected"
	EventTaskStarted   = "task.started"
	EventTaskCompleted = "task.completed"
	EventTaskDisputed  = "task.disputed"
	EventPayoutPaid    = "payout.paid"
	EventPayoutFailed  = "payout.failed"
)

// TaskRepository описывает хранилище задач.
type TaskRepository interface {
	Create(ctx context.Context, task *models.Task) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Task, error)
	ListOpen(ctx context.Context, filter models.TaskFilter) ([]models.Task, error)
	ListByClient(ctx context.Context, clientID uuid.UUID, limit, offset int) ([]models.Task, error)
	ListByCoach(ctx context.Context, coachID uuid.UUID, limit, offset int) ([]models.Task, error)
	Transition(ctx context.Context, id uuid.UUID, from []string, to string, feedback *string) (*models.Task, error)
}

// BidRepository описывает хранилище ставок. CreateForTask и Accept атомарны относительно задачи.
type BidRepository interface {
	CreateForTask(ctx context.Context, bid *models.Bid) (*models.Task, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Bid, error)
	GetByTaskAndCoach(ctx context.Context, taskID, coachID uuid.UUID) (*models.Bid, error)
	ListByTask(ctx context.Context, taskID uuid.UUID) ([]models.Bid, error)
	Accept(ctx context.Context, taskID, bidID uuid.UUID) (*models.BidAcceptance, error)
}

type CoachRepository interface {
	GetByUserID(ctx context.Context, userID uuid.UUID) (*models.CoachProfile, error)
	GetByPayoutAccount(ctx context.Context, accountID string) (*models.CoachProfile, error)
	SetPayoutsEnabled(ctx context.Context, accountID string, enabled bool) error
}

type ResumeRepository interface {
	GetOwnerID(ctx context.Context, resumeID uuid.UUID) (uuid.UUID, error)
}

// Notifier доставляет события пользователям (WebSocket hub).
type Notifier interface {
	BroadcastToUser(userID uuid.UUID, event string, data any) error
}

// Settler освобождает escrow завершённой задачи и запускает выплату.
type Settler interface {
	Settle(ctx context.Context, taskID uuid.UUID) (*Settlement, error)
}

// CreateTaskInput данные новой задачи.
type CreateTaskInput struct {
	ResumeID       uuid.UUID       `json:"resume_id" binding:"required"`
	TaskType       string          `json:"task_type" binding:"required"`
	Urgency        string          `json:"urgency" binding:"required"`
	Description    string          `json:"description"`
	SuggestedPrice decimal.Decimal `json:"suggested_price"`
}

// CreateBidInput данные ставки коуча.
type CreateBidInput struct {
	Price          decimal.Decimal `json:"price"`
	EstimatedHours int             `json:"estimated_hours"`
	Message        *string         `json:"message"`
}

// CompleteResult итог завершения задачи. Settlement пуст, если расчёт не удался.
type CompleteResult struct {
	Task       *models.Task `json:"task"`
	Settlement *Settlement  `json:"settlement,omitempty"`
}

// MarketplaceService единственный владелец переходов задач и ставок.
type MarketplaceService struct {
	tasks    TaskRepository
	bids     BidRepository
	coaches  CoachRepository
	resumes  ResumeRepository
	minPrice decimal.Decimal
	settler  Settler
	notifier Notifier
}

// NewMarketplaceService создаёт оркестратор маркетплейса.
// Ставка должна быть строго больше minPrice (минимальной комиссии платформы).
func NewMarketplaceService(tasks TaskRepository, bids BidRepository, coaches CoachRepository, resumes ResumeRepository, minPrice decimal.Decimal) *MarketplaceService {
	return &MarketplaceService{
		tasks:    tasks,
		bids:     bids,
		coaches:  coaches,
		resumes:  resumes,
		minPrice: minPrice,
	}
}

// SetSettler подключает расчёт после завершения задачи.
func (s *MarketplaceService) SetSettler(settler Settler) {
	s.settler = settler
}

// SetNotifier подключает доставку уведомлений.
func (s *MarketplaceService) SetNotifier(notifier Notifier) {
	s.notifier = notifier
}

// CreateTask публикует задачу. Резюме должно принадлежать клиенту.
func (s *MarketplaceService) CreateTask(ctx context.Context, clientID uuid.UUID, input CreateTaskInput) (*models.Task, error) {
	if _, ok := models.ValidTaskTypes[input.TaskType]; !ok {
		return nil, apperror.New(apperror.ErrCodeValidation, "неизвестный тип задачи")
	}
	if _, ok := models.ValidUrgencies[input.Urgency]; !ok {
		return nil, apperror.New(apperror.ErrCodeValidation, "неизвестная срочность")
	}
	if !input.SuggestedPrice.IsPositive() {
		return nil, apperror.New(apperror.ErrCodeValidation, "предлагаемая цена должна быть положительной")
	}
	if input.SuggestedPrice.Exponent() < -2 {
		return nil, apperror.New(apperror.ErrCodeValidation, "цена указывается с точностью до центов")
	}
	if err := validation.ValidateTaskDescription(input.Description); err != nil {
		return nil, apperror.New(apperror.ErrCodeValidation, err.Error())
	}

	ownerID, err := s.resumes.GetOwnerID(ctx, input.ResumeID)
	if err != nil {
		return nil, translateError(err)
	}
	if ownerID != clientID {
		return nil, apperror.New(apperror.ErrCodeForbidden, "резюме принадлежит другому пользователю")
	}

	task := &models.Task{
		ClientID:       clientID,
		ResumeID:       input.ResumeID,
		TaskType:       input.TaskType,
		Urgency:        input.Urgency,
		Description:    strings.TrimSpace(input.Description),
		SuggestedPrice: input.SuggestedPrice,
		Status:         models.TaskStatusOpen,
	}
	if err := s.tasks.Create(ctx, task); err != nil {
		return nil, translateError(err)
	}

	logger.Log.WithFields(logrus.Fields{
		"task_id":   task.ID,
		"client_id": clientID,
	}).Info("Задача создана")

	return task, nil
}

// GetTask возвращает задачу. Открытые задачи видны всем, назначенные только участникам.
func (s *MarketplaceService) GetTask(ctx context.Context, userID, taskID uuid.UUID) (*models.Task, error) {
	task, err := s.tasks.GetByID(ctx, taskID)
	if err != nil {
		return nil, translateError(err)
	}
	if task.AssignedCoachID != nil && !task.IsParticipant(userID) {
		return nil, errNotParticipant
	}
	return task, nil
}

func (s *MarketplaceService) ListOpenTasks(ctx context.Context, filter models.TaskFilter) ([]models.Task, error) {
	if filter.TaskType != "" {
		if _, ok := models.ValidTaskTypes[filter.TaskType]; !ok {
			return nil, apperror.New(apperror.ErrCodeValidation, "неизвестный тип задачи")
		}
	}
	if filter.Urgency != "" {
		if _, ok := models.ValidUrgencies[filter.Urgency]; !ok {
			return nil, apperror.New(apperror.ErrCodeValidation, "неизвестная срочность")
		}
	}
	filter.Limit, filter.Offset = normalizePage(filter.Limit, filter.Offset)

	tasks, err := s.tasks.ListOpen(ctx, filter)
	return tasks, translateError(err)
}

func (s *MarketplaceService) ListClientTasks(ctx context.Context, clientID uuid.UUID, limit, offset int) ([]models.Task, error) {
	limit, offset = normalizePage(limit, offset)
	tasks, err := s.tasks.ListByClient(ctx, clientID, limit, offset)
	return tasks, translateError(err)
}

func (s *MarketplaceService) ListAssignedTasks(ctx context.Context, coachID uuid.UUID, limit, offset int) ([]models.Task, error) {
	limit, offset = normalizePage(limit, offset)
	tasks, err := s.tasks.ListByCoach(ctx, coachID, limit, offset)
	return tasks, translateError(err)
}

// CreateBid создаёт ставку одобренного коуча. Первая ставка переводит задачу open -> bidding.
func (s *MarketplaceService) CreateBid(ctx context.Context, coachID, taskID uuid.UUID, input CreateBidInput) (*models.Bid, error) {
	if !input.Price.GreaterThan(s.minPrice) {
		return nil, apperror.New(apperror.ErrCodeValidation, "цена ставки должна быть больше минимальной комиссии платформы "+s.minPrice.StringFixed(2))
	}
	if input.Price.Exponent() < -2 {
		return nil, apperror.New(apperror.ErrCodeValidation, "цена указывается с точностью до центов")
	}
	if input.EstimatedHours < 0 {
		return nil, apperror.New(apperror.ErrCodeValidation, "оценка времени не может быть отрицательной")
	}
	if err := validation.ValidateBidMessage(input.Message); err != nil {
		return nil, apperror.New(apperror.ErrCodeValidation, err.Error())
	}

	profile, err := s.coaches.GetByUserID(ctx, coachID)
	if err != nil {
		return nil, translateError(err)
	}
	if !profile.IsApproved() {
		return nil, errCoachNotApproved
	}

	task, err := s.tasks.GetByID(ctx, taskID)
	if err != nil {
		return nil, translateError(err)
	}
	if task.IsOwnedBy(coachID) {
		return nil, errOwnTask
	}

	// Быстрая проверка для понятной ошибки; гарантию даёт уникальный индекс (task_id, coach_id).
	if _, err := s.bids.GetByTaskAndCoach(ctx, taskID, coachID); err == nil {
		return nil, errDuplicateBid
	} else if !errors.Is(err, repository.ErrBidNotFound) {
		return nil, translateError(err)
	}

	bid := &models.Bid{
		TaskID:         taskID,
		CoachID:        coachID,
		Price:          input.Price,
		EstimatedHours: input.EstimatedHours,
		Message:        input.Message,
	}
	if _, err := s.bids.CreateForTask(ctx, bid); err != nil {
		return nil, translateError(err)
	}

	logger.Log.WithFields(logrus.Fields{
		"task_id":  taskID,
		"bid_id":   bid.ID,
		"coach_id": coachID,
		"price":    bid.Price.StringFixed(2),
	}).Info("Ставка создана")

	s.notify(task.ClientID, EventBidCreated, bid)
	return bid, nil
}

// ListBids владелец видит все ставки, коуч только свою.
func (s *MarketplaceService) ListBids(ctx context.Context, userID, taskID uuid.UUID) ([]models.Bid, error) {
	task, err := s.tasks.GetByID(ctx, taskID)
	if err != nil {
		return nil, translateError(err)
	}

	if task.IsOwnedBy(userID) {
		bids, err := s.bids.ListByTask(ctx, taskID)
		return bids, translateError(err)
	}

	bid, err := s.bids.GetByTaskAndCoach(ctx, taskID, userID)
	if errors.Is(err, repository.ErrBidNotFound) {
		return []models.Bid{}, nil
	}
	if err != nil {
		return nil, translateError(err)
	}
	return []models.Bid{*bid}, nil
}

// AcceptBid принимает ставку: ставка accepted, задача assigned с ценой ставки,
// остальные pending ставки rejected. Всё в одной транзакции под блокировкой задачи.
func (s *MarketplaceService) AcceptBid(ctx context.Context, clientID, taskID, bidID uuid.UUID) (*models.BidAcceptance, error) {
	task, err := s.tasks.GetByID(ctx, taskID)
	if err != nil {
		return nil, translateError(err)
	}
	if !task.IsOwnedBy(clientID) {
		return nil, errNotTaskOwner
	}

	result, err := s.bids.Accept(ctx, taskID, bidID)
	if err != nil {
		return nil, translateError(err)
	}

	logger.Log.WithFields(logrus.Fields{
		"task_id":     taskID,
		"bid_id":      bidID,
		"coach_id":    result.Bid.CoachID,
		"final_price": result.Bid.Price.StringFixed(2),
		"rejected":    len(result.Rejected),
	}).Info("Ставка принята")

	s.notify(result.Bid.CoachID, EventBidAccepted, result.Bid)
	for i := range result.Rejected {
		s.notify(result.Rejected[i].CoachID, EventBidRejected, result.Rejected[i])
	}
	return result, nil
}

// StartTask назначенный коуч начинает работу: assigned -> in_progress.
func (s *MarketplaceService) StartTask(ctx context.Context, coachID, taskID uuid.UUID) (*models.Task, error) {
	task, err := s.tasks.GetByID(ctx, taskID)
	if err != nil {
		return nil, translateError(err)
	}
	if !task.IsAssignedTo(coachID) {
		return nil, errNotAssignedCoach
	}

	task, err = s.tasks.Transition(ctx, taskID, []string{models.TaskStatusAssigned}, models.TaskStatusInProgress, nil)
	if err != nil {
		return nil, translateError(err)
	}

	s.notify(task.ClientID, EventTaskStarted, task)
	return task, nil
}

// CompleteTask завершает задачу и запускает расчёт. Ошибка расчёта не отменяет завершение:
// освобождение и выплата повторяются через ReleaseTask или повтор выплаты.
func (s *MarketplaceService) CompleteTask(ctx context.Context, coachID, taskID uuid.UUID, feedback *string) (*CompleteResult, error) {
	task, err := s.tasks.GetByID(ctx, taskID)
	if err != nil {
		return nil, translateError(err)
	}
	if !task.IsAssignedTo(coachID) {
		return nil, errNotAssignedCoach
	}
	if err := validation.ValidateFeedback(feedback); err != nil {
		return nil, apperror.New(apperror.ErrCodeValidation, err.Error())
	}
	if feedback != nil {
		trimmed := strings.TrimSpace(*feedback)
		feedback = &trimmed
	}

	task, err = s.tasks.Transition(ctx, taskID,
		[]string{models.TaskStatusAssigned, models.TaskStatusInProgress},
		models.TaskStatusCompleted, feedback)
	if err != nil {
		return nil, translateError(err)
	}

	logger.Log.WithFields(logrus.Fields{
		"task_id":  taskID,
		"coach_id": coachID,
	}).Info("Задача завершена")
	s.notify(task.ClientID, EventTaskCompleted, task)

	result := &CompleteResult{Task: task}
	if s.settler == nil {
		return result, nil
	}

	settlement, err := s.settler.Settle(ctx, taskID)
	if err != nil {
		logger.Log.WithError(err).WithField("task_id", taskID).
			Warn("Расчёт по завершённой задаче не выполнен, требуется повтор")
		return result, nil
	}
	result.Settlement = settlement
	return result, nil
}

// ReleaseTask повторяет расчёт по завершённой задаче. Доступно участникам задачи.
func (s *MarketplaceService) ReleaseTask(ctx context.Context, userID, taskID uuid.UUID) (*Settlement, error) {
	task, err := s.tasks.GetByID(ctx, taskID)
	if err != nil {
		return nil, translateError(err)
	}
	if !task.IsParticipant(userID) {
		return nil, errNotParticipant
	}
	if task.Status != models.TaskStatusCompleted {
		return nil, errTaskState
	}
	if s.settler == nil {
		return nil, apperror.New(apperror.ErrCodeInternal, "расчёты не настроены")
	}

	settlement, err := s.settler.Settle(ctx, taskID)
	return settlement, translateError(err)
}

func (s *MarketplaceService) notify(userID uuid.UUID, event string, data any) {
	notifyUser(s.notifier, userID, event, data)
}

// normalizePage приводит параметры пагинации к допустимым значениям.
func normalizePage(limit, offset int) (int, int) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
