package repository

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignatzorin/career-marketplace/internal/db"
	"github.com/ignatzorin/career-marketplace/internal/models"
)

// testDB подключается к базе из TEST_DATABASE_URL и применяет миграции.
// Без переменной тесты пропускаются.
func testDB(t *testing.T) *sqlx.DB {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL не задан")
	}

	ctx := context.Background()
	conn, err := db.NewPostgres(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	require.NoError(t, db.RunMigrations(ctx, conn, filepath.Join("..", "..", "migrations")))
	return conn
}

func insertCoach(t *testing.T, conn *sqlx.DB) uuid.UUID {
	t.Helper()
	id := uuid.New()
	_, err := conn.Exec(`
		INSERT INTO coach_profiles (user_id, status, payout_account_id, payouts_enabled)
		VALUES ($1, $2, $3, TRUE)
	`, id, models.CoachStatusApproved, "acct_"+id.String()[:12])
	require.NoError(t, err)
	return id
}

func insertTask(t *testing.T, conn *sqlx.DB, clientID uuid.UUID) *models.Task {
	t.Helper()
	var resumeID uuid.UUID
	require.NoError(t, conn.Get(&resumeID, `INSERT INTO resumes (user_id, title) VALUES ($1, 'cv') RETURNING id`, clientID))

	task := &models.Task{
		ClientID:       clientID,
		ResumeID:       resumeID,
		TaskType:       models.TaskTypeFullResumeReview,
		Urgency:        models.UrgencyStandard,
		Description:    "Проверить резюме",
		SuggestedPrice: decimal.RequireFromString("45"),
		Status:         models.TaskStatusOpen,
	}
	require.NoError(t, NewTaskRepository(conn).Create(context.Background(), task))
	return task
}

func placeBid(t *testing.T, conn *sqlx.DB, taskID, coachID uuid.UUID, price string) *models.Bid {
	t.Helper()
	bid := &models.Bid{TaskID: taskID, CoachID: coachID, Price: decimal.RequireFromString(price), EstimatedHours: 2}
	_, err := NewBidRepository(conn).CreateForTask(context.Background(), bid)
	require.NoError(t, err)
	return bid
}

// assignedTask задача с принятой ставкой.
func assignedTask(t *testing.T, conn *sqlx.DB) (*models.Task, *models.Bid) {
	t.Helper()
	task := insertTask(t, conn, uuid.New())
	bid := placeBid(t, conn, task.ID, insertCoach(t, conn), "45")
	accepted, err := NewBidRepository(conn).Accept(context.Background(), task.ID, bid.ID)
	require.NoError(t, err)
	return accepted.Task, accepted.Bid
}

func heldPayment(t *testing.T, conn *sqlx.DB) (*models.Task, *models.Payment) {
	t.Helper()
	task, bid := assignedTask(t, conn)
	held, err := NewPaymentRepository(conn).Hold(context.Background(), &models.Payment{
		PayerID:     task.ClientID,
		TaskID:      &task.ID,
		BidID:       &bid.ID,
		Currency:    "usd",
		ExternalRef: "pi_" + uuid.NewString(),
	})
	require.NoError(t, err)
	return task, held
}

func isDeadlock(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "40P01"
}

func TestPostgres_DuplicateBidRejectedByConstraint(t *testing.T) {
	conn := testDB(t)
	ctx := context.Background()
	task := insertTask(t, conn, uuid.New())
	coachID := insertCoach(t, conn)
	bids := NewBidRepository(conn)

	first := &models.Bid{TaskID: task.ID, CoachID: coachID, Price: decimal.RequireFromString("40"), EstimatedHours: 1}
	updated, err := bids.CreateForTask(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusBidding, updated.Status)

	second := &models.Bid{TaskID: task.ID, CoachID: coachID, Price: decimal.RequireFromString("35"), EstimatedHours: 1}
	_, err = bids.CreateForTask(ctx, second)
	assert.ErrorIs(t, err, ErrDuplicateBid)

	list, err := bids.ListByTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestPostgres_ConcurrentAcceptSingleWinner(t *testing.T) {
	conn := testDB(t)
	ctx := context.Background()
	task := insertTask(t, conn, uuid.New())

	var candidates []*models.Bid
	for i := 0; i < 4; i++ {
		candidates = append(candidates, placeBid(t, conn, task.ID, insertCoach(t, conn), "45"))
	}

	var wg sync.WaitGroup
	errs := make([]error, len(candidates))
	for i, bid := range candidates {
		wg.Add(1)
		go func(i int, bidID uuid.UUID) {
			defer wg.Done()
			_, errs[i] = NewBidRepository(conn).Accept(ctx, task.ID, bidID)
		}(i, bid.ID)
	}
	wg.Wait()

	won := 0
	for _, err := range errs {
		if err == nil {
			won++
			continue
		}
		assert.True(t, errors.Is(err, ErrTaskStateConflict) || errors.Is(err, ErrBidNotPending), "неожиданная ошибка: %v", err)
	}
	assert.Equal(t, 1, won)

	var accepted int
	require.NoError(t, conn.Get(&accepted, `SELECT COUNT(*) FROM bids WHERE task_id = $1 AND status = $2`, task.ID, models.BidStatusAccepted))
	assert.Equal(t, 1, accepted)

	stored, err := NewTaskRepository(conn).GetByID(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusAssigned, stored.Status)
	assert.True(t, stored.FinalPrice.Valid)
}

func TestPostgres_ConcurrentHoldSingleEscrow(t *testing.T) {
	conn := testDB(t)
	ctx := context.Background()
	task, bid := assignedTask(t, conn)

	var wg sync.WaitGroup
	errs := make([]error, 6)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = NewPaymentRepository(conn).Hold(ctx, &models.Payment{
				PayerID:     task.ClientID,
				TaskID:      &task.ID,
				BidID:       &bid.ID,
				Currency:    "usd",
				ExternalRef: "pi_race_" + uuid.NewString(),
			})
		}(i)
	}
	wg.Wait()

	won := 0
	for _, err := range errs {
		if err == nil {
			won++
			continue
		}
		assert.ErrorIs(t, err, ErrEscrowAlreadyHeld)
	}
	assert.Equal(t, 1, won)

	var held int
	require.NoError(t, conn.Get(&held, `SELECT COUNT(*) FROM payments WHERE task_id = $1 AND status = $2`, task.ID, models.PaymentStatusHeldInEscrow))
	assert.Equal(t, 1, held)
}

func TestPostgres_PendingPaymentConstraints(t *testing.T) {
	conn := testDB(t)
	ctx := context.Background()
	task, bid := assignedTask(t, conn)
	payments := NewPaymentRepository(conn)

	pending := func(ref string) *models.Payment {
		return &models.Payment{
			PayerID:     task.ClientID,
			TaskID:      &task.ID,
			BidID:       &bid.ID,
			Amount:      task.FinalPrice.Decimal,
			Currency:    "usd",
			ExternalRef: ref,
		}
	}

	first := "pi_" + uuid.NewString()
	require.NoError(t, payments.CreatePending(ctx, pending(first)))
	assert.ErrorIs(t, payments.CreatePending(ctx, pending(first)), ErrPaymentRefExists)
	assert.ErrorIs(t, payments.CreatePending(ctx, pending("pi_"+uuid.NewString())), ErrPaymentInProgress)

	// После отказа оплаты по задаче можно завести новый intent.
	_, changed, err := payments.MarkFailedByRef(ctx, first, "card_declined")
	require.NoError(t, err)
	require.True(t, changed)
	retry := "pi_" + uuid.NewString()
	require.NoError(t, payments.CreatePending(ctx, pending(retry)))

	// Запоздалый успех старого intent забирает удержание, успех нового уже не может его повторить.
	late, changed, err := payments.MarkSucceededByRef(ctx, first)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, models.PaymentStatusHeldInEscrow, late.Status)
	assert.Nil(t, late.FailureReason)

	_, _, err = payments.MarkSucceededByRef(ctx, retry)
	assert.ErrorIs(t, err, ErrEscrowAlreadyHeld)
}

func TestPostgres_RefundPathsDoNotDeadlock(t *testing.T) {
	conn := testDB(t)
	ctx := context.Background()
	payments := NewPaymentRepository(conn)

	for i := 0; i < 10; i++ {
		task, held := heldPayment(t, conn)

		var wg sync.WaitGroup
		var byRefErr, refundErr error
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _, byRefErr = payments.MarkRefundedByRef(ctx, held.ExternalRef)
		}()
		go func() {
			defer wg.Done()
			dispute := &models.Dispute{InitiatorID: task.ClientID, Reason: "коуч пропал"}
			_, refundErr = payments.Refund(ctx, task.ID, dispute, nil)
		}()
		wg.Wait()

		assert.False(t, isDeadlock(byRefErr), "MarkRefundedByRef: %v", byRefErr)
		assert.False(t, isDeadlock(refundErr), "Refund: %v", refundErr)
		assert.NoError(t, byRefErr)
		if refundErr != nil {
			assert.True(t, errors.Is(refundErr, ErrTaskStateConflict) || errors.Is(refundErr, ErrEscrowNotFound), "Refund: %v", refundErr)
		}

		stored, err := payments.GetByID(ctx, held.ID)
		require.NoError(t, err)
		assert.Equal(t, models.PaymentStatusRefunded, stored.Status)

		storedTask, err := NewTaskRepository(conn).GetByID(ctx, task.ID)
		require.NoError(t, err)
		assert.Equal(t, models.TaskStatusDisputed, storedTask.Status)
	}
}

func TestPostgres_NotificationEnvelope(t *testing.T) {
	conn := testDB(t)
	ctx := context.Background()
	repo := NewNotificationRepository(conn)
	userID := uuid.New()
	taskID, paymentID := uuid.New(), uuid.New()

	disputed := &models.Notification{
		UserID:    userID,
		Event:     "task.disputed",
		TaskID:    &taskID,
		PaymentID: &paymentID,
		Data:      []byte(`{"reason":"коуч пропал"}`),
	}
	require.NoError(t, repo.Create(ctx, disputed))
	require.NoError(t, repo.Create(ctx, &models.Notification{UserID: userID, Event: "bid.created", TaskID: &taskID}))
	require.NoError(t, repo.Create(ctx, &models.Notification{UserID: userID, Event: "payout.failed"}))

	stored, err := repo.GetByID(ctx, disputed.ID)
	require.NoError(t, err)
	assert.Equal(t, "task.disputed", stored.Event)
	require.NotNil(t, stored.PaymentID)
	assert.Equal(t, paymentID, *stored.PaymentID)
	assert.Nil(t, stored.PayoutID)
	assert.JSONEq(t, `{"reason":"коуч пропал"}`, string(stored.Data))

	byTask, err := repo.List(ctx, userID, models.NotificationFilter{TaskID: &taskID, Limit: 10})
	require.NoError(t, err)
	assert.Len(t, byTask, 2)

	byEvent, err := repo.List(ctx, userID, models.NotificationFilter{Event: "payout.failed", Limit: 10})
	require.NoError(t, err)
	require.Len(t, byEvent, 1)
	assert.Nil(t, byEvent[0].TaskID)

	require.NoError(t, repo.MarkAsRead(ctx, userID, disputed.ID))
	require.NoError(t, repo.MarkAsRead(ctx, userID, disputed.ID))
	assert.ErrorIs(t, repo.MarkAsRead(ctx, uuid.New(), disputed.ID), ErrNotificationNotFound)

	unread, err := repo.CountUnread(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, 2, unread)

	unreadList, err := repo.List(ctx, userID, models.NotificationFilter{UnreadOnly: true, Limit: 10})
	require.NoError(t, err)
	assert.Len(t, unreadList, 2)

	require.NoError(t, repo.MarkAllAsRead(ctx, userID))
	unread, err = repo.CountUnread(ctx, userID)
	require.NoError(t, err)
	assert.Zero(t, unread)
}
