package payment

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"

	"github.com/ignatzorin/career-marketplace/internal/logger"
)

// StripeGateway реализация Gateway поверх Stripe (Payment Intents + Connect transfers).
type StripeGateway struct {
	api     *client.API
	timeout time.Duration
}

// NewStripeGateway создаёт клиента Stripe с ограничением времени на каждый вызов.
func NewStripeGateway(secretKey string, timeout time.Duration) *StripeGateway {
	api := &client.API{}
	api.Init(secretKey, nil)
	return &StripeGateway{api: api, timeout: timeout}
}

func (g *StripeGateway) CreatePaymentIntent(ctx context.Context, amount decimal.Decimal, currency string, metadata map[string]string, idempotencyKey string) (*Intent, error) {
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(ToMinorUnits(amount)),
		Currency: stripe.String(currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	params.SetIdempotencyKey(idempotencyKey)
	for key, value := range metadata {
		params.AddMetadata(key, value)
	}

	pi, err := g.api.PaymentIntents.New(params)
	if err != nil {
		return nil, classifyError("create payment intent", err)
	}

	return intentFromStripe(pi), nil
}

func (g *StripeGateway) RetrievePaymentIntent(ctx context.Context, ref string) (*Intent, error) {
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	params := &stripe.PaymentIntentParams{}
	params.Context = ctx

	pi, err := g.api.PaymentIntents.Get(ref, params)
	if err != nil {
		return nil, classifyError("retrieve payment intent", err)
	}

	return intentFromStripe(pi), nil
}

func intentFromStripe(pi *stripe.PaymentIntent) *Intent {
	return &Intent{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		Status:       string(pi.Status),
		Amount:       FromMinorUnits(pi.Amount),
		Currency:     string(pi.Currency),
		Metadata:     pi.Metadata,
	}
}

func (g *StripeGateway) CreateTransfer(ctx context.Context, amount decimal.Decimal, currency, destination string, metadata map[string]string, idempotencyKey string) (*Transfer, error) {
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	params := &stripe.TransferParams{
		Amount:      stripe.Int64(ToMinorUnits(amount)),
		Currency:    stripe.String(currency),
		Destination: stripe.String(destination),
	}
	params.Context = ctx
	params.SetIdempotencyKey(idempotencyKey)
	for key, value := range metadata {
		params.AddMetadata(key, value)
	}

	tr, err := g.api.Transfers.New(params)
	if err != nil {
		return nil, classifyError("create transfer", err)
	}

	return &Transfer{ID: tr.ID}, nil
}

func (g *StripeGateway) Refund(ctx context.Context, paymentRef string, amount *decimal.Decimal, idempotencyKey string) (*Refund, error) {
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(paymentRef),
	}
	if amount != nil {
		params.Amount = stripe.Int64(ToMinorUnits(*amount))
	}
	params.Context = ctx
	params.SetIdempotencyKey(idempotencyKey)

	rf, err := g.api.Refunds.New(params)
	if err != nil {
		return nil, classifyError("refund", err)
	}

	return &Refund{ID: rf.ID, Status: string(rf.Status)}, nil
}

// VerifyWebhook проверяет подпись Stripe-Signature и разбирает событие.
func (g *StripeGateway) VerifyWebhook(payload []byte, signature, secret string) (*Event, error) {
	return ParseWebhook(payload, signature, secret)
}

// ParseWebhook проверяет подпись и декодирует событие без обращения к API.
func ParseWebhook(payload []byte, signature, secret string) (*Event, error) {
	if secret == "" {
		return nil, fmt.Errorf("%w: секрет не настроен", ErrInvalidSignature)
	}

	raw, err := webhook.ConstructEventWithOptions(payload, signature, secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		switch {
		case errors.Is(err, webhook.ErrNotSigned),
			errors.Is(err, webhook.ErrInvalidHeader),
			errors.Is(err, webhook.ErrNoValidSignature),
			errors.Is(err, webhook.ErrTooOld):
			return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	return decodeEvent(raw)
}

func (g *StripeGateway) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if g.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, g.timeout)
}

// classifyError разделяет окончательные отказы (4xx) и сбои, после которых исход неизвестен.
func classifyError(op string, err error) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		status := stripeErr.HTTPStatusCode
		if status >= 400 && status < 500 && status != http.StatusTooManyRequests && status != http.StatusConflict {
			return &DeclineError{Code: string(stripeErr.Code), Reason: stripeErr.Msg}
		}
		logger.Log.WithFields(logrus.Fields{
			"operation":  op,
			"status":     status,
			"request_id": stripeErr.RequestID,
		}).Warn("stripe: ошибка на стороне провайдера")
	}
	return fmt.Errorf("%w: %s: %v", ErrUnavailable, op, err)
}
