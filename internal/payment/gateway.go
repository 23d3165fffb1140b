package payment

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Ключи метаданных, по которым события провайдера сопоставляются с записями.
const (
	MetadataTaskID    = "task_id"
	MetadataBidID     = "bid_id"
	MetadataClientID  = "client_id"
	MetadataSessionID = "session_id"
	MetadataPayoutID  = "payout_id"
	MetadataCoachID   = "coach_id"
)

var (
	// ErrInvalidSignature подпись webhook не прошла проверку.
	ErrInvalidSignature = errors.New("payment: invalid webhook signature")
	// ErrInvalidPayload тело webhook не разбирается.
	ErrInvalidPayload = errors.New("payment: invalid webhook payload")
	// ErrUnavailable провайдер не ответил или ответил ошибкой на своей стороне.
	// Результат операции неизвестен, повтор безопасен только с тем же ключом идемпотентности.
	ErrUnavailable = errors.New("payment: gateway unavailable")
)

// DeclineError окончательный отказ провайдера. Повтор с теми же данными не поможет.
type DeclineError struct {
	Code   string
	Reason string
}

func (e *DeclineError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("payment: declined: %s", e.Reason)
	}
	return fmt.Sprintf("payment: declined (%s): %s", e.Code, e.Reason)
}

// IsDeclined проверяет, что ошибка является окончательным отказом.
func IsDeclined(err error) bool {
	var declined *DeclineError
	return errors.As(err, &declined)
}

// DeclineReason возвращает причину отказа или текст ошибки.
func DeclineReason(err error) string {
	var declined *DeclineError
	if errors.As(err, &declined) {
		return declined.Reason
	}
	return err.Error()
}

// IntentSucceeded статус intent, по которому деньги списаны с клиента.
const IntentSucceeded = "succeeded"

// Intent payment intent провайдера.
type Intent struct {
	ID           string
	ClientSecret string
	Status       string
	Amount       decimal.Decimal
	Currency     string
	Metadata     map[string]string
}

// Transfer перевод на счёт коуча.
type Transfer struct {
	ID string
}

// Refund возврат платежа клиенту.
type Refund struct {
	ID     string
	Status string
}

// Gateway адаптер платёжного провайдера. Все вызовы удалённые и могут упасть.
type Gateway interface {
	CreatePaymentIntent(ctx context.Context, amount decimal.Decimal, currency string, metadata map[string]string, idempotencyKey string) (*Intent, error)
	// RetrievePaymentIntent читает intent у провайдера. Неизвестный ref возвращает DeclineError.
	RetrievePaymentIntent(ctx context.Context, ref string) (*Intent, error)
	CreateTransfer(ctx context.Context, amount decimal.Decimal, currency, destination string, metadata map[string]string, idempotencyKey string) (*Transfer, error)
	// Refund возвращает платёж целиком, если amount == nil.
	Refund(ctx context.Context, paymentRef string, amount *decimal.Decimal, idempotencyKey string) (*Refund, error)
	VerifyWebhook(payload []byte, signature, secret string) (*Event, error)
}

// ToMinorUnits переводит сумму в центы. Используется только на границе с провайдером.
func ToMinorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}

// FromMinorUnits переводит центы обратно в денежные единицы.
func FromMinorUnits(minor int64) decimal.Decimal {
	return decimal.New(minor, -2)
}
