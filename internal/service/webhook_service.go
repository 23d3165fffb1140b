package service

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/career-marketplace/internal/logger"
	"github.com/ignatzorin/career-marketplace/internal/models"
	"github.com/ignatzorin/career-marketplace/internal/payment"
	"github.com/ignatzorin/career-marketplace/internal/pkg/apperror"
	"github.com/ignatzorin/career-marketplace/internal/repository"
)

// WebhookEventRepository журнал уже обработанных событий.
type WebhookEventRepository interface {
	IsProcessed(ctx context.Context, eventID string) (bool, error)
	MarkProcessed(ctx context.Context, event *models.WebhookEvent) (bool, error)
}

var (
	errUnknownWebhookFamily = apperror.New(apperror.ErrCodeNotFound, "неизвестный тип webhook")
	errWebhookSignature     = apperror.New(apperror.ErrCodeBadRequest, "неверная подпись webhook")
	errWebhookPayload       = apperror.New(apperror.ErrCodeBadRequest, "некорректное тело webhook")
	errWebhookRetry         = apperror.New(apperror.ErrCodeRetryLater, "запись для события ещё не создана, повторите позже")
)

// WebhookService сверяет события платёжного провайдера с журналами платежей и выплат.
// Каждое событие применяется не больше одного раза: журнал webhook_events плюс
// условные переходы статусов, повтор которых ничего не меняет.
type WebhookService struct {
	events   WebhookEventRepository
	payments PaymentRepository
	payouts  PayoutRepository
	coaches  CoachRepository
	tasks    TaskRepository
	gateway  payment.Gateway
	secrets  map[string]string
	notifier Notifier
}

func NewWebhookService(events WebhookEventRepository, payments PaymentRepository, payouts PayoutRepository, coaches CoachRepository, tasks TaskRepository, gateway payment.Gateway, secrets map[string]string) *WebhookService {
	return &WebhookService{
		events:   events,
		payments: payments,
		payouts:  payouts,
		coaches:  coaches,
		tasks:    tasks,
		gateway:  gateway,
		secrets:  secrets,
	}
}

func (s *WebhookService) SetNotifier(notifier Notifier) {
	s.notifier = notifier
}

// Handle проверяет подпись, отбрасывает повторы и применяет событие.
// nil означает «принято» (в том числе повтор), ошибка RETRY_LATER просит провайдера повторить доставку.
func (s *WebhookService) Handle(ctx context.Context, family string, payload []byte, signature string) error {
	secret, ok := s.secrets[family]
	if !ok {
		return errUnknownWebhookFamily
	}

	event, err := s.gateway.VerifyWebhook(payload, signature, secret)
	if err != nil {
		logger.Log.WithError(err).WithField("family", family).Warn("Webhook отклонён")
		if errors.Is(err, payment.ErrInvalidSignature) {
			return errWebhookSignature
		}
		return errWebhookPayload.WithCause(err)
	}

	log := logger.Log.WithFields(logrus.Fields{
		"event_id":   event.ID,
		"event_type": event.Type,
		"family":     family,
	})

	processed, err := s.events.IsProcessed(ctx, event.ID)
	if err != nil {
		return translateError(err)
	}
	if processed {
		log.Debug("Повтор webhook, событие уже обработано")
		return nil
	}

	if err := s.dispatch(ctx, event, log); err != nil {
		return err
	}

	if _, err := s.events.MarkProcessed(ctx, &models.WebhookEvent{
		EventID:   event.ID,
		EventType: event.Type,
		Family:    family,
	}); err != nil {
		// Переходы уже применены и идемпотентны, повтор доставки ничего не сломает.
		log.WithError(err).Warn("Не удалось записать событие в журнал webhook")
	}
	return nil
}

func (s *WebhookService) dispatch(ctx context.Context, event *payment.Event, log *logrus.Entry) error {
	switch event.Kind {
	case payment.KindPaymentSucceeded:
		return s.applySucceeded(ctx, event.PaymentIntent.ID, event.PaymentIntent.Metadata, log)
	case payment.KindPaymentFailed, payment.KindPaymentCanceled:
		reason := event.PaymentIntent.FailureMessage
		if reason == "" {
			reason = event.Type
		}
		return s.applyFailed(ctx, event.PaymentIntent.ID, reason, event.PaymentIntent.Metadata, log)
	case payment.KindChargeRefunded:
		return s.applyRefunded(ctx, event.Charge, log)
	case payment.KindCheckoutCompleted:
		if event.Checkout.PaymentIntentID == "" || event.Checkout.PaymentStatus != "paid" {
			log.WithField("payment_status", event.Checkout.PaymentStatus).Info("Checkout завершён без оплаты, пропускаем")
			return nil
		}
		return s.applySucceeded(ctx, event.Checkout.PaymentIntentID, event.Checkout.Metadata, log)
	case payment.KindSubscriptionCreated, payment.KindSubscriptionUpdated, payment.KindSubscriptionDeleted:
		log.WithFields(logrus.Fields{
			"subscription_id": event.Subscription.ID,
			"status":          event.Subscription.Status,
		}).Info("Событие подписки записано")
		return nil
	case payment.KindAccountUpdated:
		return s.applyAccountUpdated(ctx, event.AccountInfo, log)
	case payment.KindTransferReversed:
		return s.applyTransferReversed(ctx, event.Transfer, log)
	case payment.KindPayoutPaid:
		log.WithFields(logrus.Fields{"account": event.Account, "bank_payout_id": event.Payout.ID}).
			Info("Провайдер перевёл средства коуча на банковский счёт")
		return nil
	case payment.KindPayoutFailed:
		return s.applyBankPayoutFailed(ctx, event, log)
	default:
		log.Debug("Тип события не обрабатывается")
		return nil
	}
}

// applySucceeded pending или failed -> held_in_escrow для задачи (succeeded для сессии).
func (s *WebhookService) applySucceeded(ctx context.Context, ref string, metadata map[string]string, log *logrus.Entry) error {
	p, changed, err := s.payments.MarkSucceededByRef(ctx, ref)
	switch {
	case errors.Is(err, repository.ErrPaymentNotFound):
		return s.unmatched(ref, metadata, log)
	case errors.Is(err, repository.ErrPaymentStateConflict):
		log.WithField("payment_ref", ref).Error("Оплата подтверждена для платежа в неизвестном статусе, требуется ручной разбор")
		return nil
	case errors.Is(err, repository.ErrEscrowAlreadyHeld):
		log.WithField("payment_ref", ref).Error("Оплата подтверждена, но по задаче уже есть удержание, требуется возврат вручную")
		return nil
	case err != nil:
		return translateError(err)
	}

	if changed {
		log.WithFields(logrus.Fields{"payment_id": p.ID, "status": p.Status}).Info("Оплата подтверждена провайдером")
	}
	return nil
}

func (s *WebhookService) applyFailed(ctx context.Context, ref, reason string, metadata map[string]string, log *logrus.Entry) error {
	p, changed, err := s.payments.MarkFailedByRef(ctx, ref, reason)
	switch {
	case errors.Is(err, repository.ErrPaymentNotFound):
		return s.unmatched(ref, metadata, log)
	case errors.Is(err, repository.ErrPaymentStateConflict):
		log.WithField("payment_ref", ref).Warn("Отказ оплаты пришёл после подтверждения, игнорируем")
		return nil
	case err != nil:
		return translateError(err)
	}

	if changed {
		log.WithFields(logrus.Fields{"payment_id": p.ID, "reason": reason}).Warn("Оплата не прошла")
	}
	return nil
}

// applyRefunded refunded по charge.refunded. Повтор для refunded платежа ничего не делает.
func (s *WebhookService) applyRefunded(ctx context.Context, charge *payment.ChargeData, log *logrus.Entry) error {
	if charge.PaymentIntentID == "" {
		log.WithField("charge_id", charge.ID).Info("Возврат без payment intent, пропускаем")
		return nil
	}
	if !charge.FullyRefunded {
		log.WithFields(logrus.Fields{
			"charge_id":       charge.ID,
			"amount_refunded": charge.AmountRefunded.StringFixed(2),
		}).Info("Частичный возврат, статус платежа не меняется")
		return nil
	}

	p, changed, err := s.payments.MarkRefundedByRef(ctx, charge.PaymentIntentID)
	switch {
	case errors.Is(err, repository.ErrPaymentNotFound):
		return s.unmatched(charge.PaymentIntentID, charge.Metadata, log)
	case errors.Is(err, repository.ErrEscrowAlreadyReleased):
		log.WithField("payment_ref", charge.PaymentIntentID).
			Error("Возврат по уже освобождённому escrow, средства переведены коучу, требуется ручной разбор")
		return nil
	case errors.Is(err, repository.ErrPaymentStateConflict):
		log.WithField("payment_ref", charge.PaymentIntentID).Warn("Возврат для платежа в неподходящем статусе, пропускаем")
		return nil
	case err != nil:
		return translateError(err)
	}

	if !changed {
		return nil
	}
	log.WithField("payment_id", p.ID).Info("Возврат применён по событию провайдера")

	if p.TaskID != nil {
		task, err := s.tasks.GetByID(ctx, *p.TaskID)
		if err == nil {
			notifyUser(s.notifier, task.ClientID, EventTaskDisputed, task)
			if task.AssignedCoachID != nil {
				notifyUser(s.notifier, *task.AssignedCoachID, EventTaskDisputed, task)
			}
		}
	}
	return nil
}

func (s *WebhookService) applyAccountUpdated(ctx context.Context, account *payment.AccountData, log *logrus.Entry) error {
	err := s.coaches.SetPayoutsEnabled(ctx, account.ID, account.PayoutsEnabled)
	if errors.Is(err, repository.ErrCoachNotFound) {
		log.WithField("account", account.ID).Info("Аккаунт не привязан к коучу, пропускаем")
		return nil
	}
	if err != nil {
		return translateError(err)
	}

	log.WithFields(logrus.Fields{
		"account":         account.ID,
		"payouts_enabled": account.PayoutsEnabled,
	}).Info("Статус выплат коуча обновлён")
	return nil
}

// applyTransferReversed paid -> failed: перевод отозван целиком, деньги коучу не дошли.
// Частичный отзыв статус не меняет: часть суммы у коуча, такой случай разбирается вручную.
func (s *WebhookService) applyTransferReversed(ctx context.Context, transfer *payment.TransferData, log *logrus.Entry) error {
	payout, err := s.payouts.GetByTransferRef(ctx, transfer.ID)
	if errors.Is(err, repository.ErrPayoutNotFound) {
		if _, ok := transfer.Metadata[payment.MetadataPayoutID]; ok {
			return errWebhookRetry
		}
		log.WithField("transfer_id", transfer.ID).Info("Перевод не найден в журнале выплат, пропускаем")
		return nil
	}
	if err != nil {
		return translateError(err)
	}

	if payment.ToMinorUnits(transfer.AmountReversed) < payment.ToMinorUnits(payout.Amount) {
		log.WithFields(logrus.Fields{
			"payout_id":       payout.ID,
			"transfer_id":     transfer.ID,
			"amount":          payout.Amount.StringFixed(2),
			"amount_reversed": transfer.AmountReversed.StringFixed(2),
		}).Error("Перевод коучу отозван частично, статус выплаты не меняется, требуется ручной разбор")
		return nil
	}

	payout, changed, err := s.payouts.MarkReversed(ctx, transfer.ID, "перевод отозван провайдером")
	if err != nil {
		return translateError(err)
	}

	if changed {
		log.WithFields(logrus.Fields{
			"payout_id":       payout.ID,
			"transfer_id":     transfer.ID,
			"amount_reversed": transfer.AmountReversed.StringFixed(2),
		}).Error("Перевод коучу отозван, выплата переведена в failed")
		notifyUser(s.notifier, payout.CoachID, EventPayoutFailed, payout)
	}
	return nil
}

// applyBankPayoutFailed вывод средств коуча на банковский счёт не прошёл.
func (s *WebhookService) applyBankPayoutFailed(ctx context.Context, event *payment.Event, log *logrus.Entry) error {
	log = log.WithFields(logrus.Fields{
		"account":        event.Account,
		"bank_payout_id": event.Payout.ID,
		"reason":         event.Payout.FailureMessage,
	})

	if raw, ok := event.Payout.Metadata[payment.MetadataPayoutID]; ok {
		if payoutID, err := uuid.Parse(raw); err == nil {
			payout, err := s.payouts.MarkFailed(ctx, payoutID, event.Payout.FailureMessage)
			switch {
			case err == nil:
				log.WithField("payout_id", payout.ID).Error("Выплата коучу не прошла")
				notifyUser(s.notifier, payout.CoachID, EventPayoutFailed, payout)
				return nil
			case errors.Is(err, repository.ErrPayoutNotFound), errors.Is(err, repository.ErrPayoutStateConflict):
			default:
				return translateError(err)
			}
		}
	}

	if event.Account == "" {
		log.Error("Вывод средств не прошёл")
		return nil
	}
	coach, err := s.coaches.GetByPayoutAccount(ctx, event.Account)
	if errors.Is(err, repository.ErrCoachNotFound) {
		log.Error("Вывод средств не прошёл для неизвестного аккаунта")
		return nil
	}
	if err != nil {
		return translateError(err)
	}

	log.WithField("coach_id", coach.UserID).Error("Вывод средств коуча на банковский счёт не прошёл")
	notifyUser(s.notifier, coach.UserID, EventPayoutFailed, map[string]string{
		"bank_payout_id": event.Payout.ID,
		"reason":         event.Payout.FailureMessage,
	})
	return nil
}

// unmatched событие без записи. Если провайдер пометил его нашими метаданными,
// запись может быть ещё не закоммичена, просим повторить доставку.
func (s *WebhookService) unmatched(ref string, metadata map[string]string, log *logrus.Entry) error {
	_, hasTask := metadata[payment.MetadataTaskID]
	_, hasSession := metadata[payment.MetadataSessionID]
	if hasTask || hasSession {
		log.WithField("payment_ref", ref).Warn("Платёж по событию ещё не найден, просим повторить")
		return errWebhookRetry
	}
	log.WithField("payment_ref", ref).Info("Событие не относится к платежам маркетплейса, пропускаем")
	return nil
}
