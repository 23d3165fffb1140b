package payment

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v76"
)

// EventKind тип события провайдера, который понимает сервис.
type EventKind string

const (
	KindPaymentSucceeded    EventKind = "payment_intent.succeeded"
	KindPaymentFailed       EventKind = "payment_intent.payment_failed"
	KindPaymentCanceled     EventKind = "payment_intent.canceled"
	KindChargeRefunded      EventKind = "charge.refunded"
	KindCheckoutCompleted   EventKind = "checkout.session.completed"
	KindSubscriptionCreated EventKind = "customer.subscription.created"
	KindSubscriptionUpdated EventKind = "customer.subscription.updated"
	KindSubscriptionDeleted EventKind = "customer.subscription.deleted"
	KindAccountUpdated      EventKind = "account.updated"
	KindTransferReversed    EventKind = "transfer.reversed"
	KindPayoutPaid          EventKind = "payout.paid"
	KindPayoutFailed        EventKind = "payout.failed"
	KindUnknown             EventKind = ""
)

// Event событие провайдера, разобранное один раз на границе.
// Заполнено ровно одно из полей с данными, соответствующее Kind.
type Event struct {
	ID      string
	Type    string
	Kind    EventKind
	Account string

	PaymentIntent *PaymentIntentData
	Charge        *ChargeData
	Checkout      *CheckoutData
	Subscription  *SubscriptionData
	AccountInfo   *AccountData
	Transfer      *TransferData
	Payout        *PayoutData
}

type PaymentIntentData struct {
	ID             string
	Amount         decimal.Decimal
	Currency       string
	Metadata       map[string]string
	FailureMessage string
}

type ChargeData struct {
	ID              string
	PaymentIntentID string
	AmountRefunded  decimal.Decimal
	FullyRefunded   bool
	Metadata        map[string]string
}

type CheckoutData struct {
	ID              string
	PaymentIntentID string
	PaymentStatus   string
	Metadata        map[string]string
}

type SubscriptionData struct {
	ID         string
	Status     string
	CustomerID string
}

type AccountData struct {
	ID             string
	PayoutsEnabled bool
}

type TransferData struct {
	ID             string
	Destination    string
	AmountReversed decimal.Decimal
	Metadata       map[string]string
}

type PayoutData struct {
	ID             string
	Status         string
	FailureMessage string
	Metadata       map[string]string
}

// knownKinds события, для которых разбирается полезная нагрузка.
var knownKinds = map[EventKind]struct{}{
	KindPaymentSucceeded:    {},
	KindPaymentFailed:       {},
	KindPaymentCanceled:     {},
	KindChargeRefunded:      {},
	KindCheckoutCompleted:   {},
	KindSubscriptionCreated: {},
	KindSubscriptionUpdated: {},
	KindSubscriptionDeleted: {},
	KindAccountUpdated:      {},
	KindTransferReversed:    {},
	KindPayoutPaid:          {},
	KindPayoutFailed:        {},
}

// decodeEvent превращает событие stripe в типизированный Event.
func decodeEvent(raw stripe.Event) (*Event, error) {
	event := &Event{
		ID:      raw.ID,
		Type:    string(raw.Type),
		Kind:    EventKind(raw.Type),
		Account: raw.Account,
	}
	if event.ID == "" {
		return nil, fmt.Errorf("%w: пустой id события", ErrInvalidPayload)
	}
	if _, ok := knownKinds[event.Kind]; !ok {
		event.Kind = KindUnknown
		return event, nil
	}
	if raw.Data == nil || len(raw.Data.Raw) == 0 {
		return nil, fmt.Errorf("%w: нет data.object для %s", ErrInvalidPayload, raw.Type)
	}

	var err error
	switch event.Kind {
	case KindPaymentSucceeded, KindPaymentFailed, KindPaymentCanceled:
		var pi stripe.PaymentIntent
		if err = json.Unmarshal(raw.Data.Raw, &pi); err == nil {
			event.PaymentIntent = &PaymentIntentData{
				ID:       pi.ID,
				Amount:   FromMinorUnits(pi.Amount),
				Currency: string(pi.Currency),
				Metadata: pi.Metadata,
			}
			if pi.LastPaymentError != nil {
				event.PaymentIntent.FailureMessage = pi.LastPaymentError.Msg
			}
			if pi.ID == "" {
				err = fmt.Errorf("пустой id payment intent")
			}
		}
	case KindChargeRefunded:
		var ch stripe.Charge
		if err = json.Unmarshal(raw.Data.Raw, &ch); err == nil {
			event.Charge = &ChargeData{
				ID:             ch.ID,
				AmountRefunded: FromMinorUnits(ch.AmountRefunded),
				FullyRefunded:  ch.Refunded,
				Metadata:       ch.Metadata,
			}
			if ch.PaymentIntent != nil {
				event.Charge.PaymentIntentID = ch.PaymentIntent.ID
			}
		}
	case KindCheckoutCompleted:
		var cs stripe.CheckoutSession
		if err = json.Unmarshal(raw.Data.Raw, &cs); err == nil {
			event.Checkout = &CheckoutData{
				ID:            cs.ID,
				PaymentStatus: string(cs.PaymentStatus),
				Metadata:      cs.Metadata,
			}
			if cs.PaymentIntent != nil {
				event.Checkout.PaymentIntentID = cs.PaymentIntent.ID
			}
		}
	case KindSubscriptionCreated, KindSubscriptionUpdated, KindSubscriptionDeleted:
		var sub stripe.Subscription
		if err = json.Unmarshal(raw.Data.Raw, &sub); err == nil {
			event.Subscription = &SubscriptionData{ID: sub.ID, Status: string(sub.Status)}
			if sub.Customer != nil {
				event.Subscription.CustomerID = sub.Customer.ID
			}
		}
	case KindAccountUpdated:
		var acct stripe.Account
		if err = json.Unmarshal(raw.Data.Raw, &acct); err == nil {
			event.AccountInfo = &AccountData{ID: acct.ID, PayoutsEnabled: acct.PayoutsEnabled}
		}
	case KindTransferReversed:
		var tr stripe.Transfer
		if err = json.Unmarshal(raw.Data.Raw, &tr); err == nil {
			event.Transfer = &TransferData{
				ID:             tr.ID,
				AmountReversed: FromMinorUnits(tr.AmountReversed),
				Metadata:       tr.Metadata,
			}
			if tr.Destination != nil {
				event.Transfer.Destination = tr.Destination.ID
			}
		}
	case KindPayoutPaid, KindPayoutFailed:
		var po stripe.Payout
		if err = json.Unmarshal(raw.Data.Raw, &po); err == nil {
			event.Payout = &PayoutData{
				ID:             po.ID,
				Status:         string(po.Status),
				FailureMessage: po.FailureMessage,
				Metadata:       po.Metadata,
			}
		}
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidPayload, raw.Type, err)
	}
	return event, nil
}
