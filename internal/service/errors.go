package service

import (
	"context"
	"errors"

	"github.com/ignatzorin/career-marketplace/internal/payment"
	"github.com/ignatzorin/career-marketplace/internal/pkg/apperror"
	"github.com/ignatzorin/career-marketplace/internal/repository"
)

var (
	errNotTaskOwner     = apperror.New(apperror.ErrCodeForbidden, "только владелец задачи может выполнить это действие")
	errNotAssignedCoach = apperror.New(apperror.ErrCodeForbidden, "только назначенный коуч может выполнить это действие")
	errNotParticipant   = apperror.New(apperror.ErrCodeForbidden, "вы не участник этой задачи")
	errCoachNotApproved = apperror.New(apperror.ErrCodeForbidden, "профиль коуча не одобрен")
	errOwnTask          = apperror.New(apperror.ErrCodeForbidden, "нельзя делать ставку на собственную задачу")
	errTaskState        = apperror.New(apperror.ErrCodeConflict, "статус задачи не позволяет выполнить операцию")
	errDuplicateBid     = apperror.New(apperror.ErrCodeDuplicate, "вы уже сделали ставку на эту задачу")
	errEscrowHeld       = apperror.New(apperror.ErrCodeDuplicate, "средства по задаче уже удерживаются")
	errNoEscrow         = apperror.New(apperror.ErrCodeConflict, "по задаче нет удерживаемых средств")
)

// translateError переводит ошибки хранилища и провайдера в AppError.
func translateError(err error) error {
	if err == nil {
		return nil
	}

	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		return err
	}

	switch {
	case errors.Is(err, repository.ErrTaskNotFound):
		return apperror.ErrTaskNotFound
	case errors.Is(err, repository.ErrBidNotFound):
		return apperror.ErrBidNotFound
	case errors.Is(err, repository.ErrPaymentNotFound):
		return apperror.ErrPaymentNotFound
	case errors.Is(err, repository.ErrPayoutNotFound):
		return apperror.ErrPayoutNotFound
	case errors.Is(err, repository.ErrResumeNotFound):
		return apperror.New(apperror.ErrCodeNotFound, "резюме не найдено")
	case errors.Is(err, repository.ErrDisputeNotFound):
		return apperror.New(apperror.ErrCodeNotFound, "спор не найден")
	case errors.Is(err, repository.ErrNotificationNotFound):
		return apperror.New(apperror.ErrCodeNotFound, "уведомление не найдено")
	case errors.Is(err, repository.ErrCoachNotFound):
		return errCoachNotApproved

	case errors.Is(err, repository.ErrTaskStateConflict):
		return errTaskState
	case errors.Is(err, repository.ErrBidNotPending):
		return apperror.New(apperror.ErrCodeConflict, "ставка уже обработана")
	case errors.Is(err, repository.ErrBidNotAccepted):
		return apperror.New(apperror.ErrCodeConflict, "ставка не является принятой для этой задачи")
	case errors.Is(err, repository.ErrDuplicateBid):
		return errDuplicateBid
	case errors.Is(err, repository.ErrPaymentRefExists):
		return apperror.New(apperror.ErrCodeDuplicate, "платёж с таким идентификатором уже существует")
	case errors.Is(err, repository.ErrPaymentInProgress):
		return apperror.New(apperror.ErrCodeConflict, "по задаче уже есть незавершённый платёж")
	case errors.Is(err, repository.ErrPaymentStateConflict):
		return apperror.New(apperror.ErrCodeConflict, "статус платежа не позволяет выполнить операцию")
	case errors.Is(err, repository.ErrEscrowNotFound):
		return errNoEscrow
	case errors.Is(err, repository.ErrEscrowAlreadyHeld):
		return errEscrowHeld
	case errors.Is(err, repository.ErrEscrowAlreadyReleased):
		return apperror.New(apperror.ErrCodeConflict, "средства уже переведены коучу")
	case errors.Is(err, repository.ErrPayoutStateConflict):
		return apperror.New(apperror.ErrCodeConflict, "статус выплаты не позволяет выполнить операцию")

	case payment.IsDeclined(err):
		return apperror.Wrap(err, apperror.ErrCodeGateway, "платёжный провайдер отклонил операцию: "+payment.DeclineReason(err))
	case errors.Is(err, payment.ErrUnavailable), errors.Is(err, context.DeadlineExceeded):
		return apperror.Wrap(err, apperror.ErrCodeGateway, "платёжный провайдер недоступен, повторите позже")
	}

	return apperror.Wrap(err, apperror.ErrCodeDatabaseError, "ошибка хранилища")
}
