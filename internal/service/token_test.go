package service

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenManager_RoundTrip(t *testing.T) {
	tm := NewTokenManager("test-secret-test-secret-test-secret", time.Minute)
	userID := uuid.New()

	token, err := tm.IssueAccess(userID, "admin")
	require.NoError(t, err)

	gotID, role, err := tm.ParseAccess(token)
	require.NoError(t, err)
	assert.Equal(t, userID, gotID)
	assert.Equal(t, "admin", role)
}

func TestTokenManager_WrongSecret(t *testing.T) {
	token, err := NewTokenManager("secret-one-secret-one-secret-one", time.Minute).IssueAccess(uuid.New(), "")
	require.NoError(t, err)

	_, _, err = NewTokenManager("secret-two-secret-two-secret-two", time.Minute).ParseAccess(token)
	assert.Error(t, err)
}

func TestTokenManager_Expired(t *testing.T) {
	tm := NewTokenManager("test-secret-test-secret-test-secret", -time.Minute)
	token, err := tm.IssueAccess(uuid.New(), "")
	require.NoError(t, err)

	_, _, err = tm.ParseAccess(token)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)
}

func TestTokenManager_RejectsOtherAlgorithms(t *testing.T) {
	claims := jwt.MapClaims{"sub": uuid.NewString(), "exp": time.Now().Add(time.Minute).Unix()}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte("test-secret-test-secret-test-secret"))
	require.NoError(t, err)

	_, _, err = NewTokenManager("test-secret-test-secret-test-secret", time.Minute).ParseAccess(token)
	assert.Error(t, err)
}
