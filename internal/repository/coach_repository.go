package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ignatzorin/career-marketplace/internal/models"
	"github.com/ignatzorin/career-marketplace/internal/repository/common"
)

// CoachRepository читает профили коучей и их платёжные аккаунты.
type CoachRepository struct {
	db *sqlx.DB
}

func NewCoachRepository(db *sqlx.DB) *CoachRepository {
	return &CoachRepository{db: db}
}

func (r *CoachRepository) GetByUserID(ctx context.Context, userID uuid.UUID) (*models.CoachProfile, error) {
	return common.GetByField[models.CoachProfile](ctx, r.db, "coach_profiles", "user_id", userID, ErrCoachNotFound)
}

func (r *CoachRepository) GetByPayoutAccount(ctx context.Context, accountID string) (*models.CoachProfile, error) {
	return common.GetByField[models.CoachProfile](ctx, r.db, "coach_profiles", "payout_account_id", accountID, ErrCoachNotFound)
}

// SetPayoutsEnabled обновляет флаг доступности выплат по данным провайдера.
func (r *CoachRepository) SetPayoutsEnabled(ctx context.Context, accountID string, enabled bool) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE coach_profiles SET payouts_enabled = $2, updated_at = NOW() WHERE payout_account_id = $1
	`, accountID, enabled)
	if err != nil {
		return fmt.Errorf("coach repository: set payouts enabled %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("coach repository: rows affected %w", err)
	}
	if rowsAffected == 0 {
		return ErrCoachNotFound
	}
	return nil
}
