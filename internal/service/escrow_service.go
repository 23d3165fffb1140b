package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/career-marketplace/internal/logger"
	"github.com/ignatzorin/career-marketplace/internal/models"
	"github.com/ignatzorin/career-marketplace/internal/payment"
	"github.com/ignatzorin/career-marketplace/internal/pkg/apperror"
	"github.com/ignatzorin/career-marketplace/internal/repository"
	"github.com/ignatzorin/career-marketplace/internal/validation"
)

// PaymentRepository журнал платежей. Hold, Release и Refund проверяют статус задачи
// и пишут под одной блокировкой строки задачи.
type PaymentRepository interface {
	CreatePending(ctx context.Context, p *models.Payment) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Payment, error)
	GetByExternalRef(ctx context.Context, ref string) (*models.Payment, error)
	ListByTask(ctx context.Context, taskID uuid.UUID) ([]models.Payment, error)
	GetReleasedForTask(ctx context.Context, taskID uuid.UUID) (*models.Payment, error)
	Hold(ctx context.Context, p *models.Payment) (*models.Payment, error)
	Release(ctx context.Context, taskID uuid.UUID) (*models.Payment, error)
	Refund(ctx context.Context, taskID uuid.UUID, dispute *models.Dispute, beforeCommit func(*models.Payment) error) (*repository.RefundResult, error)
	MarkSucceededByRef(ctx context.Context, ref string) (*models.Payment, bool, error)
	MarkFailedByRef(ctx context.Context, ref, reason string) (*models.Payment, bool, error)
	MarkRefundedByRef(ctx context.Context, ref string) (*models.Payment, bool, error)
}

// PaymentIntentResult ответ клиенту для подтверждения оплаты на фронтенде.
type PaymentIntentResult struct {
	Payment      *models.Payment `json:"payment"`
	ClientSecret string          `json:"client_secret,omitempty"`
}

// HoldInput ссылка на уже проведённый у провайдера платёж.
type HoldInput struct {
	BidID       uuid.UUID `json:"bid_id" binding:"required"`
	ExternalRef string    `json:"external_payment_ref" binding:"required"`
}

// EscrowService управляет удержанием средств клиента по задаче.
type EscrowService struct {
	tasks    TaskRepository
	bids     BidRepository
	payments PaymentRepository
	gateway  payment.Gateway
	currency string
	notifier Notifier
}

func NewEscrowService(tasks TaskRepository, bids BidRepository, payments PaymentRepository, gateway payment.Gateway, currency string) *EscrowService {
	return &EscrowService{
		tasks:    tasks,
		bids:     bids,
		payments: payments,
		gateway:  gateway,
		currency: currency,
	}
}

func (s *EscrowService) SetNotifier(notifier Notifier) {
	s.notifier = notifier
}

// CreatePaymentIntent создаёт у провайдера payment intent на итоговую цену задачи.
// Ключ идемпотентности привязан к задаче и числу неудачных попыток: повтор возвращает
// тот же intent и ту же запись, а после отказа оплаты создаётся новый intent.
func (s *EscrowService) CreatePaymentIntent(ctx context.Context, clientID, taskID uuid.UUID) (*PaymentIntentResult, error) {
	task, err := s.tasks.GetByID(ctx, taskID)
	if err != nil {
		return nil, translateError(err)
	}
	if !task.IsOwnedBy(clientID) {
		return nil, errNotTaskOwner
	}
	if task.Status != models.TaskStatusAssigned || !task.FinalPrice.Valid {
		return nil, errTaskState
	}

	bid, err := s.bids.GetByTaskAndCoach(ctx, taskID, *task.AssignedCoachID)
	if err != nil {
		return nil, translateError(err)
	}

	attempt, err := s.failedAttempts(ctx, task.ID)
	if err != nil {
		return nil, translateError(err)
	}

	intent, err := s.gateway.CreatePaymentIntent(ctx, task.FinalPrice.Decimal, s.currency, map[string]string{
		payment.MetadataTaskID:   task.ID.String(),
		payment.MetadataBidID:    bid.ID.String(),
		payment.MetadataClientID: clientID.String(),
	}, intentKey(task.ID, bid.ID, attempt))
	if err != nil {
		logger.Log.WithError(err).WithField("task_id", taskID).Error("Не удалось создать payment intent")
		return nil, translateError(err)
	}

	record := &models.Payment{
		PayerID:     clientID,
		TaskID:      &task.ID,
		BidID:       &bid.ID,
		Amount:      task.FinalPrice.Decimal,
		Currency:    s.currency,
		ExternalRef: intent.ID,
	}
	if err := s.payments.CreatePending(ctx, record); err != nil {
		if !errors.Is(err, repository.ErrPaymentRefExists) {
			return nil, translateError(err)
		}
		existing, getErr := s.payments.GetByExternalRef(ctx, intent.ID)
		if getErr != nil {
			return nil, translateError(getErr)
		}
		record = existing
	}

	logger.Log.WithFields(logrus.Fields{
		"task_id":    taskID,
		"payment_id": record.ID,
		"amount":     record.Amount.StringFixed(2),
	}).Info("Payment intent создан")

	return &PaymentIntentResult{Payment: record, ClientSecret: intent.ClientSecret}, nil
}

func intentKey(taskID, bidID uuid.UUID, attempt int) string {
	return fmt.Sprintf("intent-%s-%s-%d", taskID, bidID, attempt)
}

func (s *EscrowService) failedAttempts(ctx context.Context, taskID uuid.UUID) (int, error) {
	payments, err := s.payments.ListByTask(ctx, taskID)
	if err != nil {
		return 0, err
	}
	failed := 0
	for _, p := range payments {
		if p.Status == models.PaymentStatusFailed {
			failed++
		}
	}
	return failed, nil
}

// HoldPaymentInEscrow удерживает средства по задаче в статусе assigned.
// Ссылка на платёж сверяется с провайдером до записи. Ставка должна быть той,
// что привела к назначению; вторая активная блокировка отклоняется.
func (s *EscrowService) HoldPaymentInEscrow(ctx context.Context, clientID, taskID uuid.UUID, input HoldInput) (*models.Payment, error) {
	ref := strings.TrimSpace(input.ExternalRef)
	if err := validation.ValidateExternalRef(ref); err != nil {
		return nil, apperror.New(apperror.ErrCodeValidation, err.Error())
	}

	task, err := s.tasks.GetByID(ctx, taskID)
	if err != nil {
		return nil, translateError(err)
	}
	if !task.IsOwnedBy(clientID) {
		return nil, errNotTaskOwner
	}
	if task.Status != models.TaskStatusAssigned || !task.FinalPrice.Valid {
		return nil, errTaskState
	}
	if err := s.verifyIntent(ctx, task, ref); err != nil {
		return nil, err
	}

	held, err := s.payments.Hold(ctx, &models.Payment{
		PayerID:     clientID,
		TaskID:      &task.ID,
		BidID:       &input.BidID,
		Currency:    s.currency,
		ExternalRef: ref,
	})
	if err != nil {
		return nil, translateError(err)
	}

	logger.Log.WithFields(logrus.Fields{
		"task_id":    taskID,
		"payment_id": held.ID,
		"amount":     held.Amount.StringFixed(2),
	}).Info("Средства удержаны в escrow")

	return held, nil
}

// verifyIntent сверяет intent у провайдера с задачей до удержания.
func (s *EscrowService) verifyIntent(ctx context.Context, task *models.Task, ref string) error {
	intent, err := s.gateway.RetrievePaymentIntent(ctx, ref)
	if err != nil {
		if payment.IsDeclined(err) {
			return apperror.Wrap(err, apperror.ErrCodeValidation, "платёж не найден у провайдера")
		}
		logger.Log.WithError(err).WithField("task_id", task.ID).Error("Не удалось проверить payment intent")
		return translateError(err)
	}

	fields := logrus.Fields{
		"task_id": task.ID,
		"ref":     ref,
		"status":  intent.Status,
		"amount":  intent.Amount.StringFixed(2),
	}
	switch {
	case intent.Status != payment.IntentSucceeded:
		logger.Log.WithFields(fields).Warn("Удержание по неоплаченному intent отклонено")
		return apperror.New(apperror.ErrCodeValidation, "платёж ещё не подтверждён провайдером")
	case payment.ToMinorUnits(intent.Amount) != payment.ToMinorUnits(task.FinalPrice.Decimal),
		!strings.EqualFold(intent.Currency, s.currency):
		logger.Log.WithFields(fields).Warn("Сумма intent не совпадает с ценой задачи")
		return apperror.New(apperror.ErrCodeValidation, "сумма платежа не совпадает с итоговой ценой задачи")
	case intent.Metadata[payment.MetadataTaskID] != task.ID.String():
		logger.Log.WithFields(fields).Warn("Intent создан для другой задачи")
		return apperror.New(apperror.ErrCodeValidation, "платёж относится к другой задаче")
	}
	return nil
}

// ReleaseEscrowPayment переводит удержание завершённой задачи в released.
// Дальше по этому платежу создаётся выплата коучу.
func (s *EscrowService) ReleaseEscrowPayment(ctx context.Context, taskID uuid.UUID) (*models.Payment, error) {
	released, err := s.payments.Release(ctx, taskID)
	if err != nil {
		return nil, err
	}

	logger.Log.WithFields(logrus.Fields{
		"task_id":    taskID,
		"payment_id": released.ID,
		"amount":     released.Amount.StringFixed(2),
	}).Info("Escrow освобождён")

	return released, nil
}

// RefundEscrowPayment открывает спор: возврат у провайдера, платёж refunded, задача disputed.
// Если провайдер отказал, локальное состояние не меняется.
func (s *EscrowService) RefundEscrowPayment(ctx context.Context, userID, taskID uuid.UUID, reason string) (*repository.RefundResult, error) {
	reason = strings.TrimSpace(reason)
	if err := validation.ValidateDisputeReason(reason); err != nil {
		return nil, apperror.New(apperror.ErrCodeValidation, err.Error())
	}

	task, err := s.tasks.GetByID(ctx, taskID)
	if err != nil {
		return nil, translateError(err)
	}
	if !task.IsParticipant(userID) {
		return nil, errNotParticipant
	}

	dispute := &models.Dispute{InitiatorID: userID, Reason: reason}
	result, err := s.payments.Refund(ctx, taskID, dispute, func(held *models.Payment) error {
		refund, err := s.gateway.Refund(ctx, held.ExternalRef, nil, "refund-"+held.ID.String())
		if err != nil {
			return err
		}
		logger.Log.WithFields(logrus.Fields{
			"task_id":    taskID,
			"payment_id": held.ID,
			"refund_id":  refund.ID,
		}).Info("Возврат проведён у провайдера")
		return nil
	})
	if err != nil {
		if payment.IsDeclined(err) || errors.Is(err, payment.ErrUnavailable) {
			logger.Log.WithError(err).WithField("task_id", taskID).Error("Возврат у провайдера не выполнен")
		}
		return nil, translateError(err)
	}

	logger.Log.WithFields(logrus.Fields{
		"task_id":    taskID,
		"payment_id": result.Payment.ID,
		"dispute_id": result.Dispute.ID,
	}).Info("Средства возвращены клиенту, задача в споре")

	for _, participant := range []uuid.UUID{task.ClientID, *task.AssignedCoachID} {
		if participant != userID {
			s.notify(participant, EventTaskDisputed, result.Dispute)
		}
	}
	return result, nil
}

// ListTaskPayments возвращает платежи задачи её участникам.
func (s *EscrowService) ListTaskPayments(ctx context.Context, userID, taskID uuid.UUID) ([]models.Payment, error) {
	task, err := s.tasks.GetByID(ctx, taskID)
	if err != nil {
		return nil, translateError(err)
	}
	if !task.IsParticipant(userID) {
		return nil, errNotParticipant
	}

	payments, err := s.payments.ListByTask(ctx, taskID)
	return payments, translateError(err)
}

func (s *EscrowService) notify(userID uuid.UUID, event string, data any) {
	notifyUser(s.notifier, userID, event, data)
}
