package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

type ResumeRepository struct {
	db *sqlx.DB
}

func NewResumeRepository(db *sqlx.DB) *ResumeRepository {
	return &ResumeRepository{db: db}
}

// GetOwnerID возвращает владельца резюме.
func (r *ResumeRepository) GetOwnerID(ctx context.Context, resumeID uuid.UUID) (uuid.UUID, error) {
	var ownerID uuid.UUID
	if err := r.db.GetContext(ctx, &ownerID, `SELECT user_id FROM resumes WHERE id = $1`, resumeID); err != nil {
		if isNoRows(err) {
			return uuid.Nil, ErrResumeNotFound
		}
		return uuid.Nil, fmt.Errorf("resume repository: get owner %w", err)
	}
	return ownerID, nil
}
