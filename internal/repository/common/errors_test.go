package common

import (
	"errors"
	"fmt"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
)

func TestIsUniqueViolation(t *testing.T) {
	err := fmt.Errorf("insert bid: %w", &pq.Error{Code: "23505", Constraint: "bids_task_coach_key"})

	assert.True(t, IsUniqueViolation(err))
	assert.True(t, IsUniqueViolation(err, "bids_task_coach_key"))
	assert.True(t, IsUniqueViolation(err, "other", "bids_task_coach_key"))
	assert.False(t, IsUniqueViolation(err, "payments_one_hold_per_task"))
}

func TestIsUniqueViolation_OtherErrors(t *testing.T) {
	assert.False(t, IsUniqueViolation(errors.New("boom")))
	assert.False(t, IsUniqueViolation(&pq.Error{Code: "23503"}))
	assert.False(t, IsUniqueViolation(nil))
}
