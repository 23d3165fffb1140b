package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Notification событие маркетплейса, адресованное пользователю.
// Ссылки на задачу, платёж и выплату вынесены из data, чтобы по ним фильтровать.
type Notification struct {
	ID        uuid.UUID       `db:"id" json:"id"`
	UserID    uuid.UUID       `db:"user_id" json:"user_id"`
	Event     string          `db:"event" json:"event"`
	TaskID    *uuid.UUID      `db:"task_id" json:"task_id,omitempty"`
	PaymentID *uuid.UUID      `db:"payment_id" json:"payment_id,omitempty"`
	PayoutID  *uuid.UUID      `db:"payout_id" json:"payout_id,omitempty"`
	Data      json.RawMessage `db:"data" json:"data"`
	ReadAt    *time.Time      `db:"read_at" json:"read_at,omitempty"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
}

// NotificationFilter параметры выборки уведомлений пользователя.
type NotificationFilter struct {
	UnreadOnly bool
	Event      string
	TaskID     *uuid.UUID
	Limit      int
	Offset     int
}

// WebhookEvent отмечает уже обработанное событие платёжного провайдера.
type WebhookEvent struct {
	EventID     string    `db:"event_id" json:"event_id"`
	EventType   string    `db:"event_type" json:"event_type"`
	Family      string    `db:"family" json:"family"`
	ProcessedAt time.Time `db:"processed_at" json:"processed_at"`
}
