package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/career-marketplace/internal/fee"
	"github.com/ignatzorin/career-marketplace/internal/logger"
	"github.com/ignatzorin/career-marketplace/internal/models"
	"github.com/ignatzorin/career-marketplace/internal/payment"
	"github.com/ignatzorin/career-marketplace/internal/pkg/apperror"
	"github.com/ignatzorin/career-marketplace/internal/repository"
)

// PayoutRepository хранилище выплат коучам.
type PayoutRepository interface {
	CreateForPayment(ctx context.Context, p *models.Payout) (*models.Payout, bool, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Payout, error)
	GetByPaymentID(ctx context.Context, paymentID uuid.UUID) (*models.Payout, error)
	GetByTransferRef(ctx context.Context, ref string) (*models.Payout, error)
	BeginAttempt(ctx context.Context, id uuid.UUID) (*models.Payout, error)
	MarkPaid(ctx context.Context, id uuid.UUID, transferRef string) (*models.Payout, bool, error)
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) (*models.Payout, error)
	MarkReversed(ctx context.Context, transferRef, reason string) (*models.Payout, bool, error)
	ListByCoach(ctx context.Context, coachID uuid.UUID, limit, offset int) ([]models.Payout, error)
	ListByStatus(ctx context.Context, status string, limit, offset int) ([]models.Payout, error)
}

// Settlement итог расчёта по задаче: освобождённый платёж и выплата коучу.
type Settlement struct {
	Payment *models.Payment `json:"payment"`
	Payout  *models.Payout  `json:"payout"`
}

var validPayoutStatuses = map[string]struct{}{
	models.PayoutStatusPending:   {},
	models.PayoutStatusPaid:      {},
	models.PayoutStatusFailed:    {},
	models.PayoutStatusCancelled: {},
}

// PayoutService создаёт выплаты после освобождения escrow и переводит деньги коучам.
type PayoutService struct {
	tasks    TaskRepository
	payments PaymentRepository
	payouts  PayoutRepository
	coaches  CoachRepository
	escrow   *EscrowService
	fees     *fee.Calculator
	gateway  payment.Gateway
	notifier Notifier
}

func NewPayoutService(tasks TaskRepository, payments PaymentRepository, payouts PayoutRepository, coaches CoachRepository, escrow *EscrowService, fees *fee.Calculator, gateway payment.Gateway) *PayoutService {
	return &PayoutService{
		tasks:    tasks,
		payments: payments,
		payouts:  payouts,
		coaches:  coaches,
		escrow:   escrow,
		fees:     fees,
		gateway:  gateway,
	}
}

func (s *PayoutService) SetNotifier(notifier Notifier) {
	s.notifier = notifier
}

// Settle освобождает escrow завершённой задачи и создаёт выплату.
// Повторный вызов доводит до конца прерванный расчёт: если платёж уже released,
// создаётся недостающая выплата или повторяется перевод.
func (s *PayoutService) Settle(ctx context.Context, taskID uuid.UUID) (*Settlement, error) {
	task, err := s.tasks.GetByID(ctx, taskID)
	if err != nil {
		return nil, translateError(err)
	}
	if task.AssignedCoachID == nil {
		return nil, errTaskState
	}

	released, err := s.escrow.ReleaseEscrowPayment(ctx, taskID)
	if errors.Is(err, repository.ErrEscrowNotFound) {
		released, err = s.payments.GetReleasedForTask(ctx, taskID)
		if errors.Is(err, repository.ErrPaymentNotFound) {
			return nil, errNoEscrow
		}
	}
	if err != nil {
		return nil, translateError(err)
	}

	payout, err := s.CreatePayoutForPayment(ctx, released, *task.AssignedCoachID)
	return &Settlement{Payment: released, Payout: payout}, err
}

// CreatePayoutForPayment фиксирует комиссию и сумму коуча и пытается перевести деньги.
// На один платёж создаётся одна выплата; повторный вызов работает с существующей.
func (s *PayoutService) CreatePayoutForPayment(ctx context.Context, released *models.Payment, coachID uuid.UUID) (*models.Payout, error) {
	if released.Status != models.PaymentStatusReleased {
		return nil, apperror.New(apperror.ErrCodeConflict, "выплата возможна только после освобождения escrow")
	}

	split := s.fees.Split(released.Amount)
	if !split.CoachAmount.IsPositive() {
		logger.Log.WithFields(logrus.Fields{
			"payment_id":   released.ID,
			"amount":       released.Amount.StringFixed(2),
			"platform_fee": split.PlatformFee.StringFixed(2),
		}).Error("Сумма выплаты после комиссии не положительна, выплата не создана")
		return nil, apperror.New(apperror.ErrCodeValidation, "сумма выплаты после комиссии должна быть положительной")
	}

	payout, created, err := s.payouts.CreateForPayment(ctx, &models.Payout{
		CoachID:     coachID,
		PaymentID:   released.ID,
		TaskID:      released.TaskID,
		SessionID:   released.SessionID,
		Amount:      split.CoachAmount,
		PlatformFee: split.PlatformFee,
		Currency:    released.Currency,
	})
	if err != nil {
		return nil, translateError(err)
	}

	if created {
		logger.Log.WithFields(logrus.Fields{
			"payout_id":    payout.ID,
			"payment_id":   released.ID,
			"coach_id":     coachID,
			"amount":       payout.Amount.StringFixed(2),
			"platform_fee": payout.PlatformFee.StringFixed(2),
		}).Info("Выплата создана")
	}

	if !payout.IsRetryable() {
		return payout, nil
	}
	return s.transfer(ctx, payout)
}

// RetryPayout повторяет перевод по pending или failed выплате (для операторов).
func (s *PayoutService) RetryPayout(ctx context.Context, payoutID uuid.UUID) (*models.Payout, error) {
	payout, err := s.payouts.GetByID(ctx, payoutID)
	if err != nil {
		return nil, translateError(err)
	}
	if !payout.IsRetryable() {
		return nil, translateError(repository.ErrPayoutStateConflict)
	}
	return s.transfer(ctx, payout)
}

// transfer выполняет перевод у провайдера.
// Окончательный отказ переводит выплату в failed, неизвестный исход оставляет pending.
func (s *PayoutService) transfer(ctx context.Context, payout *models.Payout) (*models.Payout, error) {
	log := logger.Log.WithFields(logrus.Fields{
		"payout_id":  payout.ID,
		"payment_id": payout.PaymentID,
		"coach_id":   payout.CoachID,
	})

	profile, err := s.coaches.GetByUserID(ctx, payout.CoachID)
	if err != nil && !errors.Is(err, repository.ErrCoachNotFound) {
		return payout, translateError(err)
	}
	if profile == nil || profile.PayoutAccountID == nil || *profile.PayoutAccountID == "" {
		failed, markErr := s.payouts.MarkFailed(ctx, payout.ID, "у коуча не подключён счёт для выплат")
		if markErr != nil {
			return payout, translateError(markErr)
		}
		log.Error("Выплата невозможна: у коуча нет счёта для выплат")
		s.notifyPayout(failed, EventPayoutFailed)
		return failed, apperror.New(apperror.ErrCodeConflict, "у коуча не подключён счёт для выплат")
	}

	attempt, err := s.payouts.BeginAttempt(ctx, payout.ID)
	if err != nil {
		return payout, translateError(err)
	}

	metadata := map[string]string{
		payment.MetadataPayoutID: attempt.ID.String(),
		payment.MetadataCoachID:  attempt.CoachID.String(),
	}
	if attempt.TaskID != nil {
		metadata[payment.MetadataTaskID] = attempt.TaskID.String()
	}
	if attempt.SessionID != nil {
		metadata[payment.MetadataSessionID] = attempt.SessionID.String()
	}

	tr, err := s.gateway.CreateTransfer(ctx, attempt.Amount, attempt.Currency, *profile.PayoutAccountID, metadata, transferIdempotencyKey(attempt))
	if err != nil {
		if !payment.IsDeclined(err) {
			log.WithError(err).WithField("attempts", attempt.Attempts).
				Error("Перевод коучу не подтверждён, выплата остаётся pending до повтора")
			return attempt, translateError(err)
		}

		failed, markErr := s.payouts.MarkFailed(ctx, attempt.ID, payment.DeclineReason(err))
		if markErr != nil {
			return attempt, translateError(markErr)
		}
		log.WithError(err).WithField("attempts", attempt.Attempts).Error("Перевод коучу отклонён провайдером")
		s.notifyPayout(failed, EventPayoutFailed)
		return failed, translateError(err)
	}

	paid, changed, err := s.payouts.MarkPaid(ctx, attempt.ID, tr.ID)
	if err != nil {
		log.WithError(err).WithField("transfer_id", tr.ID).Error("Перевод выполнен, но статус выплаты не записан")
		return attempt, translateError(err)
	}
	if changed {
		log.WithFields(logrus.Fields{
			"transfer_id": tr.ID,
			"amount":      paid.Amount.StringFixed(2),
		}).Info("Выплата переведена коучу")
		s.notifyPayout(paid, EventPayoutPaid)
	}
	return paid, nil
}

func (s *PayoutService) ListCoachPayouts(ctx context.Context, coachID uuid.UUID, limit, offset int) ([]models.Payout, error) {
	limit, offset = normalizePage(limit, offset)
	payouts, err := s.payouts.ListByCoach(ctx, coachID, limit, offset)
	return payouts, translateError(err)
}

// ListPayoutsByStatus выборка для операторов, например все failed выплаты.
func (s *PayoutService) ListPayoutsByStatus(ctx context.Context, status string, limit, offset int) ([]models.Payout, error) {
	if _, ok := validPayoutStatuses[status]; !ok {
		return nil, apperror.New(apperror.ErrCodeValidation, "неизвестный статус выплаты")
	}
	limit, offset = normalizePage(limit, offset)
	payouts, err := s.payouts.ListByStatus(ctx, status, limit, offset)
	return payouts, translateError(err)
}

func (s *PayoutService) notifyPayout(payout *models.Payout, event string) {
	notifyUser(s.notifier, payout.CoachID, event, payout)
}

// transferIdempotencyKey один ключ на поколение попыток: повтор после сбоя сети
// не переведёт деньги дважды, а повтор после отказа отправит новый запрос.
func transferIdempotencyKey(p *models.Payout) string {
	return fmt.Sprintf("payout-%s-%d", p.ID, p.Attempts)
}
