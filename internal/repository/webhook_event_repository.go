package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/ignatzorin/career-marketplace/internal/models"
)

// WebhookEventRepository журнал обработанных событий провайдера.
type WebhookEventRepository struct {
	db *sqlx.DB
}

func NewWebhookEventRepository(db *sqlx.DB) *WebhookEventRepository {
	return &WebhookEventRepository{db: db}
}

func (r *WebhookEventRepository) IsProcessed(ctx context.Context, eventID string) (bool, error) {
	var exists bool
	if err := r.db.GetContext(ctx, &exists, `
		SELECT EXISTS (SELECT 1 FROM webhook_events WHERE event_id = $1)
	`, eventID); err != nil {
		return false, fmt.Errorf("webhook event repository: is processed %w", err)
	}
	return exists, nil
}

// MarkProcessed записывает событие. Возвращает false, если оно уже было записано.
func (r *WebhookEventRepository) MarkProcessed(ctx context.Context, event *models.WebhookEvent) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		INSERT INTO webhook_events (event_id, event_type, family)
		VALUES ($1, $2, $3)
		ON CONFLICT (event_id) DO NOTHING
	`, event.EventID, event.EventType, event.Family)
	if err != nil {
		return false, fmt.Errorf("webhook event repository: mark processed %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("webhook event repository: rows affected %w", err)
	}
	return rowsAffected > 0, nil
}
