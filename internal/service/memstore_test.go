package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ignatzorin/career-marketplace/internal/models"
	"github.com/ignatzorin/career-marketplace/internal/repository"
)

// memStore хранилище в памяти с одной блокировкой на все записи.
// Семантика совпадает с репозиториями Postgres: проверка статуса и запись атомарны.
type memStore struct {
	mu sync.Mutex

	resumes  map[uuid.UUID]uuid.UUID
	coaches  map[uuid.UUID]*models.CoachProfile
	tasks    map[uuid.UUID]*models.Task
	bids     map[uuid.UUID]*models.Bid
	payments map[uuid.UUID]*models.Payment
	payouts  map[uuid.UUID]*models.Payout
	disputes []models.Dispute
	events   map[string]models.WebhookEvent

	taskOrder    []uuid.UUID
	bidOrder     []uuid.UUID
	paymentOrder []uuid.UUID
	payoutOrder  []uuid.UUID
}

func newMemStore() *memStore {
	return &memStore{
		resumes:  make(map[uuid.UUID]uuid.UUID),
		coaches:  make(map[uuid.UUID]*models.CoachProfile),
		tasks:    make(map[uuid.UUID]*models.Task),
		bids:     make(map[uuid.UUID]*models.Bid),
		payments: make(map[uuid.UUID]*models.Payment),
		payouts:  make(map[uuid.UUID]*models.Payout),
		events:   make(map[string]models.WebhookEvent),
	}
}

func (s *memStore) addResume(ownerID uuid.UUID) uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := uuid.New()
	s.resumes[id] = ownerID
	return id
}

func (s *memStore) addCoach(status string, payoutAccount string) uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	profile := &models.CoachProfile{UserID: uuid.New(), Status: status, CreatedAt: time.Now(), UpdatedAt: time.Now()}
	if payoutAccount != "" {
		profile.PayoutAccountID = &payoutAccount
		profile.PayoutsEnabled = true
	}
	s.coaches[profile.UserID] = profile
	return profile.UserID
}

func (s *memStore) task(id uuid.UUID) models.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.tasks[id]
}

func (s *memStore) bid(id uuid.UUID) models.Bid {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.bids[id]
}

func (s *memStore) taskPayments(taskID uuid.UUID) []models.Payment {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Payment
	for _, id := range s.paymentOrder {
		if p := s.payments[id]; p.TaskID != nil && *p.TaskID == taskID {
			out = append(out, *p)
		}
	}
	return out
}

func (s *memStore) allPayouts() []models.Payout {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Payout, 0, len(s.payoutOrder))
	for _, id := range s.payoutOrder {
		out = append(out, *s.payouts[id])
	}
	return out
}

func (s *memStore) disputeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.disputes)
}

func contains(list []string, value string) bool {
	for _, v := range list {
		if v == value {
			return true
		}
	}
	return false
}

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return []T{}
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}

// memTasks реализует TaskRepository.
type memTasks struct{ *memStore }

func (r memTasks) Create(_ context.Context, task *models.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	task.ID = uuid.New()
	task.Status = models.TaskStatusOpen
	task.CreatedAt, task.UpdatedAt = now, now
	stored := *task
	r.tasks[task.ID] = &stored
	r.taskOrder = append(r.taskOrder, task.ID)
	return nil
}

func (r memTasks) GetByID(_ context.Context, id uuid.UUID) (*models.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	task, ok := r.tasks[id]
	if !ok {
		return nil, repository.ErrTaskNotFound
	}
	out := *task
	return &out, nil
}

func (r memTasks) list(match func(*models.Task) bool, limit, offset int) []models.Task {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Task
	for i := len(r.taskOrder) - 1; i >= 0; i-- {
		if task := r.tasks[r.taskOrder[i]]; match(task) {
			out = append(out, *task)
		}
	}
	return page(out, limit, offset)
}

func (r memTasks) ListOpen(_ context.Context, filter models.TaskFilter) ([]models.Task, error) {
	return r.list(func(t *models.Task) bool {
		return contains(models.BiddableTaskStatuses, t.Status) &&
			(filter.TaskType == "" || t.TaskType == filter.TaskType) &&
			(filter.Urgency == "" || t.Urgency == filter.Urgency)
	}, filter.Limit, filter.Offset), nil
}

func (r memTasks) ListByClient(_ context.Context, clientID uuid.UUID, limit, offset int) ([]models.Task, error) {
	return r.list(func(t *models.Task) bool { return t.ClientID == clientID }, limit, offset), nil
}

func (r memTasks) ListByCoach(_ context.Context, coachID uuid.UUID, limit, offset int) ([]models.Task, error) {
	return r.list(func(t *models.Task) bool { return t.IsAssignedTo(coachID) }, limit, offset), nil
}

func (r memTasks) Transition(_ context.Context, id uuid.UUID, from []string, to string, feedback *string) (*models.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	task, ok := r.tasks[id]
	if !ok {
		return nil, repository.ErrTaskNotFound
	}
	if !contains(from, task.Status) {
		return nil, repository.ErrTaskStateConflict
	}
	now := time.Now()
	task.Status = to
	task.UpdatedAt = now
	if feedback != nil {
		task.Feedback = feedback
	}
	if to == models.TaskStatusCompleted {
		task.CompletedAt = &now
	}
	out := *task
	return &out, nil
}

// memBids реализует BidRepository.
type memBids struct{ *memStore }

func (r memBids) CreateForTask(_ context.Context, bid *models.Bid) (*models.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	task, ok := r.tasks[bid.TaskID]
	if !ok {
		return nil, repository.ErrTaskNotFound
	}
	if !contains(models.BiddableTaskStatuses, task.Status) {
		return nil, repository.ErrTaskStateConflict
	}
	for _, existing := range r.bids {
		if existing.TaskID == bid.TaskID && existing.CoachID == bid.CoachID {
			return nil, repository.ErrDuplicateBid
		}
	}
	now := time.Now()
	bid.ID = uuid.New()
	bid.Status = models.BidStatusPending
	bid.CreatedAt, bid.UpdatedAt = now, now
	stored := *bid
	r.bids[bid.ID] = &stored
	r.bidOrder = append(r.bidOrder, bid.ID)
	if task.Status == models.TaskStatusOpen {
		task.Status = models.TaskStatusBidding
		task.UpdatedAt = now
	}
	out := *task
	return &out, nil
}

func (r memBids) GetByID(_ context.Context, id uuid.UUID) (*models.Bid, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	bid, ok := r.bids[id]
	if !ok {
		return nil, repository.ErrBidNotFound
	}
	out := *bid
	return &out, nil
}

func (r memBids) GetByTaskAndCoach(_ context.Context, taskID, coachID uuid.UUID) (*models.Bid, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, bid := range r.bids {
		if bid.TaskID == taskID && bid.CoachID == coachID {
			out := *bid
			return &out, nil
		}
	}
	return nil, repository.ErrBidNotFound
}

func (r memBids) ListByTask(_ context.Context, taskID uuid.UUID) ([]models.Bid, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []models.Bid{}
	for _, id := range r.bidOrder {
		if bid := r.bids[id]; bid.TaskID == taskID {
			out = append(out, *bid)
		}
	}
	return out, nil
}

func (r memBids) Accept(_ context.Context, taskID, bidID uuid.UUID) (*models.BidAcceptance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	task, ok := r.tasks[taskID]
	if !ok {
		return nil, repository.ErrTaskNotFound
	}
	if task.Status != models.TaskStatusBidding {
		return nil, repository.ErrTaskStateConflict
	}
	bid, ok := r.bids[bidID]
	if !ok || bid.TaskID != taskID {
		return nil, repository.ErrBidNotFound
	}
	if bid.Status != models.BidStatusPending {
		return nil, repository.ErrBidNotPending
	}

	now := time.Now()
	bid.Status = models.BidStatusAccepted
	bid.UpdatedAt = now

	rejected := []models.Bid{}
	for _, id := range r.bidOrder {
		other := r.bids[id]
		if other.TaskID == taskID && other.ID != bidID && other.Status == models.BidStatusPending {
			other.Status = models.BidStatusRejected
			other.UpdatedAt = now
			rejected = append(rejected, *other)
		}
	}

	coachID := bid.CoachID
	task.AssignedCoachID = &coachID
	task.FinalPrice = decimal.NewNullDecimal(bid.Price)
	task.Status = models.TaskStatusAssigned
	task.UpdatedAt = now

	taskOut, bidOut := *task, *bid
	return &models.BidAcceptance{Task: &taskOut, Bid: &bidOut, Rejected: rejected}, nil
}

// memCoaches реализует CoachRepository и ResumeRepository.
type memCoaches struct{ *memStore }

func (r memCoaches) GetByUserID(_ context.Context, userID uuid.UUID) (*models.CoachProfile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	profile, ok := r.coaches[userID]
	if !ok {
		return nil, repository.ErrCoachNotFound
	}
	out := *profile
	return &out, nil
}

func (r memCoaches) GetByPayoutAccount(_ context.Context, accountID string) (*models.CoachProfile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, profile := range r.coaches {
		if profile.PayoutAccountID != nil && *profile.PayoutAccountID == accountID {
			out := *profile
			return &out, nil
		}
	}
	return nil, repository.ErrCoachNotFound
}

func (r memCoaches) SetPayoutsEnabled(_ context.Context, accountID string, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, profile := range r.coaches {
		if profile.PayoutAccountID != nil && *profile.PayoutAccountID == accountID {
			profile.PayoutsEnabled = enabled
			return nil
		}
	}
	return repository.ErrCoachNotFound
}

func (r memCoaches) GetOwnerID(_ context.Context, resumeID uuid.UUID) (uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	owner, ok := r.resumes[resumeID]
	if !ok {
		return uuid.Nil, repository.ErrResumeNotFound
	}
	return owner, nil
}

// memPayments реализует PaymentRepository.
type memPayments struct{ *memStore }

func (r memPayments) insert(p *models.Payment) *models.Payment {
	now := time.Now()
	p.ID = uuid.New()
	p.CreatedAt, p.UpdatedAt = now, now
	stored := *p
	r.payments[p.ID] = &stored
	r.paymentOrder = append(r.paymentOrder, p.ID)
	return &stored
}

func (r memPayments) findByRef(ref string) *models.Payment {
	for _, p := range r.payments {
		if p.ExternalRef == ref {
			return p
		}
	}
	return nil
}

func (r memPayments) findForTask(taskID uuid.UUID, statuses ...string) *models.Payment {
	for _, id := range r.paymentOrder {
		p := r.payments[id]
		if p.TaskID != nil && *p.TaskID == taskID && contains(statuses, p.Status) {
			return p
		}
	}
	return nil
}

func (r memPayments) CreatePending(_ context.Context, p *models.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.findByRef(p.ExternalRef) != nil {
		return repository.ErrPaymentRefExists
	}
	if p.TaskID != nil && r.findForTask(*p.TaskID, models.PaymentStatusPending, models.PaymentStatusSucceeded) != nil {
		return repository.ErrPaymentInProgress
	}
	p.Status = models.PaymentStatusPending
	r.insert(p)
	return nil
}

func (r memPayments) GetByID(_ context.Context, id uuid.UUID) (*models.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.payments[id]
	if !ok {
		return nil, repository.ErrPaymentNotFound
	}
	out := *p
	return &out, nil
}

func (r memPayments) GetByExternalRef(_ context.Context, ref string) (*models.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := r.findByRef(ref)
	if p == nil {
		return nil, repository.ErrPaymentNotFound
	}
	out := *p
	return &out, nil
}

func (r memPayments) ListByTask(_ context.Context, taskID uuid.UUID) ([]models.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []models.Payment{}
	for i := len(r.paymentOrder) - 1; i >= 0; i-- {
		if p := r.payments[r.paymentOrder[i]]; p.TaskID != nil && *p.TaskID == taskID {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (r memPayments) GetReleasedForTask(_ context.Context, taskID uuid.UUID) (*models.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := r.findForTask(taskID, models.PaymentStatusReleased)
	if p == nil {
		return nil, repository.ErrPaymentNotFound
	}
	out := *p
	return &out, nil
}

func (r memPayments) Hold(_ context.Context, p *models.Payment) (*models.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	task, ok := r.tasks[*p.TaskID]
	if !ok {
		return nil, repository.ErrTaskNotFound
	}
	if task.Status != models.TaskStatusAssigned {
		return nil, repository.ErrTaskStateConflict
	}
	if p.BidID == nil {
		return nil, repository.ErrBidNotFound
	}
	bid, ok := r.bids[*p.BidID]
	if !ok {
		return nil, repository.ErrBidNotFound
	}
	if bid.TaskID != task.ID || bid.Status != models.BidStatusAccepted || !task.IsAssignedTo(bid.CoachID) {
		return nil, repository.ErrBidNotAccepted
	}
	if r.findForTask(task.ID, models.PaymentStatusHeldInEscrow) != nil {
		return nil, repository.ErrEscrowAlreadyHeld
	}

	now := time.Now()
	if existing := r.findByRef(p.ExternalRef); existing != nil {
		if existing.TaskID == nil || *existing.TaskID != task.ID {
			return nil, repository.ErrPaymentRefExists
		}
		if !contains([]string{models.PaymentStatusPending, models.PaymentStatusSucceeded, models.PaymentStatusFailed}, existing.Status) {
			return nil, repository.ErrPaymentStateConflict
		}
		existing.Status = models.PaymentStatusHeldInEscrow
		existing.FailureReason = nil
		existing.EscrowHeldAt = &now
		out := *existing
		return &out, nil
	}

	p.Amount = task.FinalPrice.Decimal
	p.Status = models.PaymentStatusHeldInEscrow
	p.EscrowHeldAt = &now
	out := *r.insert(p)
	return &out, nil
}

func (r memPayments) Release(_ context.Context, taskID uuid.UUID) (*models.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	task, ok := r.tasks[taskID]
	if !ok {
		return nil, repository.ErrTaskNotFound
	}
	if task.Status != models.TaskStatusCompleted {
		return nil, repository.ErrTaskStateConflict
	}
	held := r.findForTask(taskID, models.PaymentStatusHeldInEscrow)
	if held == nil {
		return nil, repository.ErrEscrowNotFound
	}
	now := time.Now()
	held.Status = models.PaymentStatusReleased
	held.EscrowReleasedAt = &now
	out := *held
	return &out, nil
}

func (r memPayments) Refund(_ context.Context, taskID uuid.UUID, dispute *models.Dispute, beforeCommit func(*models.Payment) error) (*repository.RefundResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	task, ok := r.tasks[taskID]
	if !ok {
		return nil, repository.ErrTaskNotFound
	}
	if !contains(models.DisputableTaskStatuses, task.Status) {
		return nil, repository.ErrTaskStateConflict
	}
	held := r.findForTask(taskID, models.PaymentStatusHeldInEscrow)
	if held == nil {
		return nil, repository.ErrEscrowNotFound
	}
	if beforeCommit != nil {
		snapshot := *held
		if err := beforeCommit(&snapshot); err != nil {
			return nil, err
		}
	}

	now := time.Now()
	held.Status = models.PaymentStatusRefunded
	held.RefundedAt = &now
	task.Status = models.TaskStatusDisputed
	task.UpdatedAt = now

	dispute.ID = uuid.New()
	dispute.TaskID = taskID
	dispute.PaymentID = held.ID
	dispute.Status = models.DisputeStatusOpen
	dispute.CreatedAt = now
	r.disputes = append(r.disputes, *dispute)

	paymentOut, taskOut := *held, *task
	return &repository.RefundResult{Payment: &paymentOut, Task: &taskOut, Dispute: dispute}, nil
}

func (r memPayments) MarkSucceededByRef(_ context.Context, ref string) (*models.Payment, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := r.findByRef(ref)
	if p == nil {
		return nil, false, repository.ErrPaymentNotFound
	}
	switch p.Status {
	case models.PaymentStatusPending, models.PaymentStatusFailed:
	case models.PaymentStatusSucceeded:
		if p.TaskID == nil {
			out := *p
			return &out, false, nil
		}
	case models.PaymentStatusHeldInEscrow, models.PaymentStatusReleased, models.PaymentStatusRefunded:
		out := *p
		return &out, false, nil
	default:
		return nil, false, repository.ErrPaymentStateConflict
	}

	if p.TaskID == nil {
		p.Status = models.PaymentStatusSucceeded
	} else {
		if r.findForTask(*p.TaskID, models.PaymentStatusHeldInEscrow) != nil {
			return nil, false, repository.ErrEscrowAlreadyHeld
		}
		now := time.Now()
		p.Status = models.PaymentStatusHeldInEscrow
		p.EscrowHeldAt = &now
	}
	p.FailureReason = nil
	out := *p
	return &out, true, nil
}

func (r memPayments) MarkFailedByRef(_ context.Context, ref, reason string) (*models.Payment, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := r.findByRef(ref)
	if p == nil {
		return nil, false, repository.ErrPaymentNotFound
	}
	switch p.Status {
	case models.PaymentStatusPending:
		p.Status = models.PaymentStatusFailed
		p.FailureReason = &reason
		out := *p
		return &out, true, nil
	case models.PaymentStatusFailed:
		out := *p
		return &out, false, nil
	}
	out := *p
	return &out, false, repository.ErrPaymentStateConflict
}

func (r memPayments) MarkRefundedByRef(_ context.Context, ref string) (*models.Payment, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := r.findByRef(ref)
	if p == nil {
		return nil, false, repository.ErrPaymentNotFound
	}
	switch p.Status {
	case models.PaymentStatusRefunded:
		out := *p
		return &out, false, nil
	case models.PaymentStatusReleased:
		return nil, false, repository.ErrEscrowAlreadyReleased
	case models.PaymentStatusHeldInEscrow, models.PaymentStatusSucceeded:
	default:
		return nil, false, repository.ErrPaymentStateConflict
	}

	now := time.Now()
	if p.TaskID != nil {
		if task := r.tasks[*p.TaskID]; contains(models.DisputableTaskStatuses, task.Status) {
			task.Status = models.TaskStatusDisputed
			task.UpdatedAt = now
		}
	}
	p.Status = models.PaymentStatusRefunded
	p.RefundedAt = &now
	out := *p
	return &out, true, nil
}

// memPayouts реализует PayoutRepository.
type memPayouts struct{ *memStore }

func (r memPayouts) findBy(match func(*models.Payout) bool) *models.Payout {
	for _, id := range r.payoutOrder {
		if p := r.payouts[id]; match(p) {
			return p
		}
	}
	return nil
}

func (r memPayouts) CreateForPayment(_ context.Context, p *models.Payout) (*models.Payout, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing := r.findBy(func(x *models.Payout) bool { return x.PaymentID == p.PaymentID }); existing != nil {
		out := *existing
		return &out, false, nil
	}
	paymentRow, ok := r.payments[p.PaymentID]
	if !ok || paymentRow.Status != models.PaymentStatusReleased {
		return nil, false, repository.ErrPaymentStateConflict
	}
	now := time.Now()
	stored := *p
	stored.ID = uuid.New()
	stored.Status = models.PayoutStatusPending
	stored.CreatedAt, stored.UpdatedAt = now, now
	r.payouts[stored.ID] = &stored
	r.payoutOrder = append(r.payoutOrder, stored.ID)
	out := stored
	return &out, true, nil
}

func (r memPayouts) get(match func(*models.Payout) bool) (*models.Payout, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := r.findBy(match)
	if p == nil {
		return nil, repository.ErrPayoutNotFound
	}
	out := *p
	return &out, nil
}

func (r memPayouts) GetByID(_ context.Context, id uuid.UUID) (*models.Payout, error) {
	return r.get(func(p *models.Payout) bool { return p.ID == id })
}

func (r memPayouts) GetByPaymentID(_ context.Context, paymentID uuid.UUID) (*models.Payout, error) {
	return r.get(func(p *models.Payout) bool { return p.PaymentID == paymentID })
}

func (r memPayouts) GetByTransferRef(_ context.Context, ref string) (*models.Payout, error) {
	return r.get(func(p *models.Payout) bool { return p.ExternalTransferRef != nil && *p.ExternalTransferRef == ref })
}

func (r memPayouts) BeginAttempt(_ context.Context, id uuid.UUID) (*models.Payout, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.payouts[id]
	if !ok {
		return nil, repository.ErrPayoutNotFound
	}
	if !p.IsRetryable() {
		return nil, repository.ErrPayoutStateConflict
	}
	if p.Status == models.PayoutStatusFailed || p.Attempts == 0 {
		p.Attempts++
	}
	p.Status = models.PayoutStatusPending
	p.FailureReason = nil
	out := *p
	return &out, nil
}

func (r memPayouts) MarkPaid(_ context.Context, id uuid.UUID, transferRef string) (*models.Payout, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.payouts[id]
	if !ok {
		return nil, false, repository.ErrPayoutNotFound
	}
	if p.Status == models.PayoutStatusPaid {
		out := *p
		return &out, false, nil
	}
	if !p.IsRetryable() {
		return nil, false, repository.ErrPayoutStateConflict
	}
	now := time.Now()
	p.Status = models.PayoutStatusPaid
	p.ExternalTransferRef = &transferRef
	p.FailureReason = nil
	p.PaidAt = &now
	out := *p
	return &out, true, nil
}

func (r memPayouts) MarkFailed(_ context.Context, id uuid.UUID, reason string) (*models.Payout, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.payouts[id]
	if !ok {
		return nil, repository.ErrPayoutNotFound
	}
	if !p.IsRetryable() {
		return nil, repository.ErrPayoutStateConflict
	}
	p.Status = models.PayoutStatusFailed
	p.FailureReason = &reason
	out := *p
	return &out, nil
}

func (r memPayouts) MarkReversed(_ context.Context, transferRef, reason string) (*models.Payout, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := r.findBy(func(x *models.Payout) bool { return x.ExternalTransferRef != nil && *x.ExternalTransferRef == transferRef })
	if p == nil {
		return nil, false, repository.ErrPayoutNotFound
	}
	if p.Status != models.PayoutStatusPaid {
		out := *p
		return &out, false, nil
	}
	p.Status = models.PayoutStatusFailed
	p.FailureReason = &reason
	p.PaidAt = nil
	out := *p
	return &out, true, nil
}

func (r memPayouts) list(match func(*models.Payout) bool, limit, offset int) []models.Payout {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Payout
	for _, id := range r.payoutOrder {
		if p := r.payouts[id]; match(p) {
			out = append(out, *p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return page(out, limit, offset)
}

func (r memPayouts) ListByCoach(_ context.Context, coachID uuid.UUID, limit, offset int) ([]models.Payout, error) {
	return r.list(func(p *models.Payout) bool { return p.CoachID == coachID }, limit, offset), nil
}

func (r memPayouts) ListByStatus(_ context.Context, status string, limit, offset int) ([]models.Payout, error) {
	return r.list(func(p *models.Payout) bool { return p.Status == status }, limit, offset), nil
}

// memEvents реализует WebhookEventRepository.
type memEvents struct{ *memStore }

func (r memEvents) IsProcessed(_ context.Context, eventID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.events[eventID]
	return ok, nil
}

func (r memEvents) MarkProcessed(_ context.Context, event *models.WebhookEvent) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.events[event.EventID]; ok {
		return false, nil
	}
	event.ProcessedAt = time.Now()
	r.events[event.EventID] = *event
	return true, nil
}

// memDisputes реализует DisputeRepository.
type memDisputes struct{ *memStore }

func (r memDisputes) GetByTaskID(_ context.Context, taskID uuid.UUID) (*models.Dispute, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.disputes) - 1; i >= 0; i-- {
		if r.disputes[i].TaskID == taskID {
			out := r.disputes[i]
			return &out, nil
		}
	}
	return nil, repository.ErrDisputeNotFound
}

func (r memDisputes) ListByUser(_ context.Context, userID uuid.UUID, limit, offset int) ([]models.Dispute, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Dispute
	for _, d := range r.disputes {
		if task := r.tasks[d.TaskID]; task != nil && task.IsParticipant(userID) {
			out = append(out, d)
		}
	}
	return page(out, limit, offset), nil
}
