package models

// TaskStatus константы статусов задач на проверку
const (
	TaskStatusOpen       = "open"
	TaskStatusBidding    = "bidding"
	TaskStatusAssigned   = "assigned"
	TaskStatusInProgress = "in_progress"
	TaskStatusCompleted  = "completed"
	TaskStatusDisputed   = "disputed"
)

// TaskType константы типов задач
const (
	TaskTypeQuickResumeReview = "quick_resume_review"
	TaskTypeFullResumeReview  = "full_resume_review"
	TaskTypeCoverLetterReview = "cover_letter_review"
)

// Urgency константы срочности
const (
	UrgencyUrgent   = "urgent"
	UrgencyStandard = "standard"
	UrgencyFlexible = "flexible"
)

// BidStatus константы статусов ставок
const (
	BidStatusPending  = "pending"
	BidStatusAccepted = "accepted"
	BidStatusRejected = "rejected"
)

// CoachStatus константы статусов профиля коуча
const (
	CoachStatusPending  = "pending"
	CoachStatusApproved = "approved"
	CoachStatusRejected = "rejected"
)

// RoleAdmin роль оператора платформы.
const RoleAdmin = "admin"

// ValidTaskTypes список валидных типов задач
var ValidTaskTypes = map[string]struct{}{
	TaskTypeQuickResumeReview: {},
	TaskTypeFullResumeReview:  {},
	TaskTypeCoverLetterReview: {},
}

// ValidUrgencies список валидных уровней срочности
var ValidUrgencies = map[string]struct{}{
	UrgencyUrgent:   {},
	UrgencyStandard: {},
	UrgencyFlexible: {},
}

// BiddableTaskStatuses статусы, в которых коуч может сделать ставку.
var BiddableTaskStatuses = []string{TaskStatusOpen, TaskStatusBidding}

// DisputableTaskStatuses статусы после назначения, из которых можно открыть спор.
var DisputableTaskStatuses = []string{TaskStatusAssigned, TaskStatusInProgress, TaskStatusCompleted}

var taskTransitions = map[string][]string{
	TaskStatusOpen:       {TaskStatusBidding},
	TaskStatusBidding:    {TaskStatusAssigned},
	TaskStatusAssigned:   {TaskStatusInProgress, TaskStatusCompleted, TaskStatusDisputed},
	TaskStatusInProgress: {TaskStatusCompleted, TaskStatusDisputed},
	TaskStatusCompleted:  {TaskStatusDisputed},
	TaskStatusDisputed:   {},
}

// CanTransitionTask проверяет, разрешён ли переход задачи между статусами.
func CanTransitionTask(from, to string) bool {
	for _, status := range taskTransitions[from] {
		if status == to {
			return true
		}
	}
	return false
}

// TaskSourcesFor возвращает все статусы, из которых достижим статус to.
func TaskSourcesFor(to string) []string {
	var sources []string
	for _, from := range []string{TaskStatusOpen, TaskStatusBidding, TaskStatusAssigned, TaskStatusInProgress, TaskStatusCompleted, TaskStatusDisputed} {
		if CanTransitionTask(from, to) {
			sources = append(sources, from)
		}
	}
	return sources
}
