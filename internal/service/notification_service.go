package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/ignatzorin/career-marketplace/internal/logger"
	"github.com/ignatzorin/career-marketplace/internal/models"
	"github.com/ignatzorin/career-marketplace/internal/repository"
)

// NotificationRepository описывает взаимодействие сервиса с хранилищем уведомлений.
type NotificationRepository interface {
	Create(ctx context.Context, notification *models.Notification) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Notification, error)
	List(ctx context.Context, userID uuid.UUID, filter models.NotificationFilter) ([]models.Notification, error)
	MarkAsRead(ctx context.Context, userID, id uuid.UUID) error
	MarkAllAsRead(ctx context.Context, userID uuid.UUID) error
	CountUnread(ctx context.Context, userID uuid.UUID) (int, error)
}

// NotificationService хранит уведомления, которые hub доставляет по WebSocket.
type NotificationService struct {
	repo NotificationRepository
}

// NewNotificationService создаёт новый сервис уведомлений.
func NewNotificationService(repo NotificationRepository) *NotificationService {
	return &NotificationService{repo: repo}
}

// CreateNotification сохраняет событие. Ссылки на задачу, платёж и выплату берутся из data.
func (s *NotificationService) CreateNotification(ctx context.Context, userID uuid.UUID, event string, data interface{}) (*models.Notification, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("notification service: marshal data %w", err)
	}

	notification := &models.Notification{UserID: userID, Event: event, Data: raw}
	attachRefs(notification, data)

	if err := s.repo.Create(ctx, notification); err != nil {
		return nil, translateError(err)
	}
	return notification, nil
}

// attachRefs заполняет ссылки уведомления по типу отправленных данных.
func attachRefs(n *models.Notification, data interface{}) {
	switch v := data.(type) {
	case *models.Task:
		n.TaskID = &v.ID
	case *models.Bid:
		n.TaskID = &v.TaskID
	case models.Bid:
		n.TaskID = &v.TaskID
	case *models.Payment:
		n.TaskID = v.TaskID
		n.PaymentID = &v.ID
	case *models.Payout:
		n.TaskID = v.TaskID
		n.PaymentID = &v.PaymentID
		n.PayoutID = &v.ID
	case *models.Dispute:
		n.TaskID = &v.TaskID
		n.PaymentID = &v.PaymentID
	case map[string]string:
		n.TaskID = parseRef(v["task_id"])
		n.PaymentID = parseRef(v["payment_id"])
		n.PayoutID = parseRef(v["payout_id"])
	}
}

func parseRef(raw string) *uuid.UUID {
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil
	}
	return &id
}

// ListNotifications возвращает события пользователя по фильтру.
func (s *NotificationService) ListNotifications(ctx context.Context, userID uuid.UUID, filter models.NotificationFilter) ([]models.Notification, error) {
	filter.Limit, filter.Offset = normalizePage(filter.Limit, filter.Offset)
	notifications, err := s.repo.List(ctx, userID, filter)
	return notifications, translateError(err)
}

// GetNotification возвращает уведомление владельцу. Для остальных его как будто нет.
func (s *NotificationService) GetNotification(ctx context.Context, userID, id uuid.UUID) (*models.Notification, error) {
	notification, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, translateError(err)
	}
	if notification.UserID != userID {
		return nil, translateError(repository.ErrNotificationNotFound)
	}
	return notification, nil
}

// MarkAsRead отмечает уведомление как прочитанное. Чужое уведомление не находится.
func (s *NotificationService) MarkAsRead(ctx context.Context, userID, id uuid.UUID) error {
	return translateError(s.repo.MarkAsRead(ctx, userID, id))
}

func (s *NotificationService) MarkAllAsRead(ctx context.Context, userID uuid.UUID) error {
	return translateError(s.repo.MarkAllAsRead(ctx, userID))
}

func (s *NotificationService) CountUnread(ctx context.Context, userID uuid.UUID) (int, error) {
	count, err := s.repo.CountUnread(ctx, userID)
	return count, translateError(err)
}

// CreateNotificationForWS создаёт уведомление (для использования в WebSocket hub).
func (s *NotificationService) CreateNotificationForWS(ctx context.Context, userID uuid.UUID, event string, data interface{}) error {
	_, err := s.CreateNotification(ctx, userID, event, data)
	return err
}

// notifyUser отправляет событие, если доставка подключена. Ошибка доставки не влияет на операцию.
func notifyUser(notifier Notifier, userID uuid.UUID, event string, data any) {
	if notifier == nil {
		return
	}
	if err := notifier.BroadcastToUser(userID, event, data); err != nil {
		logger.Log.WithError(err).WithField("event", event).Warn("Не удалось отправить уведомление")
	}
}
