package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Task описывает задачу на проверку, которую клиент публикует для коучей.
type Task struct {
	ID              uuid.UUID           `db:"id" json:"id"`
	ClientID        uuid.UUID           `db:"client_id" json:"client_id"`
	ResumeID        uuid.UUID           `db:"resume_id" json:"resume_id"`
	AssignedCoachID *uuid.UUID          `db:"assigned_coach_id" json:"assigned_coach_id,omitempty"`
	TaskType        string              `db:"task_type" json:"task_type"`
	Urgency         string              `db:"urgency" json:"urgency"`
	Description     string              `db:"description" json:"description"`
	SuggestedPrice  decimal.Decimal     `db:"suggested_price" json:"suggested_price"`
	FinalPrice      decimal.NullDecimal `db:"final_price" json:"final_price"`
	Status          string              `db:"status" json:"status"`
	Feedback        *string             `db:"feedback" json:"feedback,omitempty"`
	CreatedAt       time.Time           `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time           `db:"updated_at" json:"updated_at"`
	CompletedAt     *time.Time          `db:"completed_at" json:"completed_at,omitempty"`
	BidsCount       *int                `db:"bids_count" json:"bids_count,omitempty"`
}

// IsOwnedBy проверяет, что задача принадлежит клиенту.
func (t *Task) IsOwnedBy(userID uuid.UUID) bool {
	return t.ClientID == userID
}

// IsAssignedTo проверяет, что задача назначена коучу.
func (t *Task) IsAssignedTo(userID uuid.UUID) bool {
	return t.AssignedCoachID != nil && *t.AssignedCoachID == userID
}

// IsParticipant возвращает true для владельца и назначенного коуча.
func (t *Task) IsParticipant(userID uuid.UUID) bool {
	return t.IsOwnedBy(userID) || t.IsAssignedTo(userID)
}

// TaskFilter параметры выборки открытых задач.
type TaskFilter struct {
	TaskType string
	Urgency  string
	Limit    int
	Offset   int
}

// Bid представляет ставку коуча на задачу.
type Bid struct {
	ID             uuid.UUID       `db:"id" json:"id"`
	TaskID         uuid.UUID       `db:"task_id" json:"task_id"`
	CoachID        uuid.UUID       `db:"coach_id" json:"coach_id"`
	Price          decimal.Decimal `db:"price" json:"price"`
	EstimatedHours int             `db:"estimated_hours" json:"estimated_hours"`
	Message        *string         `db:"message" json:"message,omitempty"`
	Status         string          `db:"status" json:"status"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time       `db:"updated_at" json:"updated_at"`
}

// BidAcceptance результат принятия ставки: задача, принятая ставка и отклонённые конкуренты.
type BidAcceptance struct {
	Task     *Task `json:"task"`
	Bid      *Bid  `json:"bid"`
	Rejected []Bid `json:"rejected"`
}
