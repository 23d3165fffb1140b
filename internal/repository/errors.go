package repository

import "errors"

// Ошибки хранилища маркетплейса. Сервисный слой переводит их в apperror.
var (
	ErrTaskNotFound          = errors.New("task not found")
	ErrTaskStateConflict     = errors.New("task status does not allow this operation")
	ErrBidNotFound           = errors.New("bid not found")
	ErrBidNotPending         = errors.New("bid is not pending")
	ErrBidNotAccepted        = errors.New("bid did not produce the task assignment")
	ErrDuplicateBid          = errors.New("coach already bid on this task")
	ErrPaymentNotFound       = errors.New("payment not found")
	ErrPaymentRefExists      = errors.New("payment with this external reference already exists")
	ErrPaymentInProgress     = errors.New("task already has an unfinished payment")
	ErrPaymentStateConflict  = errors.New("payment status does not allow this operation")
	ErrEscrowNotFound        = errors.New("escrow hold not found")
	ErrEscrowAlreadyHeld     = errors.New("task already has an active escrow hold")
	ErrEscrowAlreadyReleased = errors.New("escrow hold already released")
	ErrPayoutNotFound        = errors.New("payout not found")
	ErrPayoutStateConflict   = errors.New("payout status does not allow this operation")
	ErrCoachNotFound         = errors.New("coach profile not found")
	ErrResumeNotFound        = errors.New("resume not found")
	ErrDisputeNotFound       = errors.New("dispute not found")
	ErrNotificationNotFound  = errors.New("notification not found")
)
