package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v76/webhook"

	"github.com/ignatzorin/career-marketplace/internal/config"
	"github.com/ignatzorin/career-marketplace/internal/fee"
	"github.com/ignatzorin/career-marketplace/internal/models"
	"github.com/ignatzorin/career-marketplace/internal/payment"
)

const testWebhookSecret = "whsec_service_test"

type mockGateway struct {
	mock.Mock

	mu      sync.Mutex
	intents map[string]*payment.Intent
	lookups map[string]error
}

func (m *mockGateway) CreatePaymentIntent(ctx context.Context, amount decimal.Decimal, currency string, metadata map[string]string, idempotencyKey string) (*payment.Intent, error) {
	args := m.Called(ctx, amount, currency, metadata, idempotencyKey)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.Intent), args.Error(1)
}

func (m *mockGateway) CreateTransfer(ctx context.Context, amount decimal.Decimal, currency, destination string, metadata map[string]string, idempotencyKey string) (*payment.Transfer, error) {
	args := m.Called(ctx, amount, currency, destination, metadata, idempotencyKey)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.Transfer), args.Error(1)
}

func (m *mockGateway) Refund(ctx context.Context, paymentRef string, amount *decimal.Decimal, idempotencyKey string) (*payment.Refund, error) {
	args := m.Called(ctx, paymentRef, amount, idempotencyKey)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.Refund), args.Error(1)
}

// RetrievePaymentIntent отдаёт intent, заведённый через setIntent. Неизвестный ref это отказ провайдера.
func (m *mockGateway) RetrievePaymentIntent(_ context.Context, ref string) (*payment.Intent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.lookups[ref]; err != nil {
		return nil, err
	}
	intent, ok := m.intents[ref]
	if !ok {
		return nil, &payment.DeclineError{Code: "resource_missing", Reason: "No such payment_intent: " + ref}
	}
	out := *intent
	return &out, nil
}

func (m *mockGateway) setIntent(intent *payment.Intent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.intents == nil {
		m.intents = make(map[string]*payment.Intent)
	}
	m.intents[intent.ID] = intent
}

func (m *mockGateway) failLookup(ref string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lookups == nil {
		m.lookups = make(map[string]error)
	}
	m.lookups[ref] = err
}

// VerifyWebhook проверяет настоящую подпись Stripe, тесты подписывают тела сами.
func (m *mockGateway) VerifyWebhook(payload []byte, signature, secret string) (*payment.Event, error) {
	return payment.ParseWebhook(payload, signature, secret)
}

func sign(payload []byte) string {
	return webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    testWebhookSecret,
		Timestamp: time.Now(),
	}).Header
}

func amountEq(value string) interface{} {
	want := decimal.RequireFromString(value)
	return mock.MatchedBy(func(got decimal.Decimal) bool { return got.Equal(want) })
}

type sentNotification struct {
	UserID uuid.UUID
	Event  string
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []sentNotification
}

func (n *recordingNotifier) BroadcastToUser(userID uuid.UUID, event string, _ any) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentNotification{UserID: userID, Event: event})
	return nil
}

func (n *recordingNotifier) count(userID uuid.UUID, event string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	total := 0
	for _, s := range n.sent {
		if s.UserID == userID && s.Event == event {
			total++
		}
	}
	return total
}

type fixture struct {
	store    *memStore
	gateway  *mockGateway
	notifier *recordingNotifier
	fees     *fee.Calculator

	market   *MarketplaceService
	escrow   *EscrowService
	payouts  *PayoutService
	webhooks *WebhookService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	fees, err := fee.NewCalculator(
		decimal.RequireFromString("0.15"),
		decimal.RequireFromString("1.00"),
		decimal.RequireFromString("100.00"),
	)
	require.NoError(t, err)

	store := newMemStore()
	gateway := new(mockGateway)
	notifier := &recordingNotifier{}

	tasks, bids, coaches := memTasks{store}, memBids{store}, memCoaches{store}
	payments, payouts := memPayments{store}, memPayouts{store}

	market := NewMarketplaceService(tasks, bids, coaches, coaches, fees.MinimumFee())
	escrow := NewEscrowService(tasks, bids, payments, gateway, "usd")
	payoutSvc := NewPayoutService(tasks, payments, payouts, coaches, escrow, fees, gateway)
	webhooks := NewWebhookService(memEvents{store}, payments, payouts, coaches, tasks, gateway, map[string]string{
		config.WebhookFamilyPayments:      testWebhookSecret,
		config.WebhookFamilyCheckout:      testWebhookSecret,
		config.WebhookFamilySubscriptions: testWebhookSecret,
		config.WebhookFamilyConnect:       testWebhookSecret,
	})

	market.SetSettler(payoutSvc)
	for _, s := range []interface{ SetNotifier(Notifier) }{market, escrow, payoutSvc, webhooks} {
		s.SetNotifier(notifier)
	}

	return &fixture{
		store:    store,
		gateway:  gateway,
		notifier: notifier,
		fees:     fees,
		market:   market,
		escrow:   escrow,
		payouts:  payoutSvc,
		webhooks: webhooks,
	}
}

func (f *fixture) newTask(t *testing.T, clientID uuid.UUID, price string) *models.Task {
	t.Helper()
	task, err := f.market.CreateTask(context.Background(), clientID, CreateTaskInput{
		ResumeID:       f.store.addResume(clientID),
		TaskType:       models.TaskTypeFullResumeReview,
		Urgency:        models.UrgencyStandard,
		Description:    "Проверить резюме backend-разработчика",
		SuggestedPrice: decimal.RequireFromString(price),
	})
	require.NoError(t, err)
	return task
}

func (f *fixture) placeBid(t *testing.T, coachID, taskID uuid.UUID, price string) *models.Bid {
	t.Helper()
	bid, err := f.market.CreateBid(context.Background(), coachID, taskID, CreateBidInput{
		Price:          decimal.RequireFromString(price),
		EstimatedHours: 2,
	})
	require.NoError(t, err)
	return bid
}

type assignment struct {
	Task     *models.Task
	ClientID uuid.UUID
	CoachID  uuid.UUID
	Bid      *models.Bid
}

// assigned задача с принятой ставкой коуча, у которого подключён счёт для выплат.
func (f *fixture) assigned(t *testing.T, price string) assignment {
	t.Helper()
	clientID := uuid.New()
	coachID := f.store.addCoach(models.CoachStatusApproved, "acct_"+uuid.NewString()[:8])
	task := f.newTask(t, clientID, price)
	bid := f.placeBid(t, coachID, task.ID, price)

	result, err := f.market.AcceptBid(context.Background(), clientID, task.ID, bid.ID)
	require.NoError(t, err)
	return assignment{Task: result.Task, ClientID: clientID, CoachID: coachID, Bid: result.Bid}
}

// paid заводит у провайдера оплаченный intent на сумму amount по задаче.
func (f *fixture) paid(ref string, taskID uuid.UUID, amount string) string {
	f.gateway.setIntent(&payment.Intent{
		ID:       ref,
		Status:   payment.IntentSucceeded,
		Amount:   decimal.RequireFromString(amount),
		Currency: "usd",
		Metadata: map[string]string{payment.MetadataTaskID: taskID.String()},
	})
	return ref
}

// held назначенная задача с удержанными средствами.
func (f *fixture) held(t *testing.T, price string) (assignment, *models.Payment) {
	t.Helper()
	a := f.assigned(t, price)
	p, err := f.escrow.HoldPaymentInEscrow(context.Background(), a.ClientID, a.Task.ID, HoldInput{
		BidID:       a.Bid.ID,
		ExternalRef: f.paid("pi_"+a.Task.ID.String()[:8], a.Task.ID, price),
	})
	require.NoError(t, err)
	return a, p
}
