package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTService_RoundTrip(t *testing.T) {
	s, err := NewJWTService("secret")
	require.NoError(t, err)

	token, err := s.GenerateToken("user-1", "a@example.com", "user")
	require.NoError(t, err)

	claims, err := s.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, "a@example.com", claims.Email)
	assert.Equal(t, "user", claims.Role)
}

func TestJWTService_Expired(t *testing.T) {
	s, err := NewJWTService("secret")
	require.NoError(t, err)

	issued := time.Now().Add(-48 * time.Hour)
	s.now = func() time.Time { return issued }
	token, err := s.GenerateToken("user-1", "a@example.com", "user")
	require.NoError(t, err)

	s.now = time.Now
	_, err = s.ValidateToken(token)
	assert.Error(t, err)
}

func TestJWTService_RejectsOtherSecret(t *testing.T) {
	a, _ := NewJWTService("secret-a")
	b, _ := NewJWTService("secret-b")

	token, err := a.GenerateToken("user-1", "a@example.com", "user")
	require.NoError(t, err)
	_, err = b.ValidateToken(token)
	assert.Error(t, err)
}

func TestNewJWTService_EmptySecret(t *testing.T) {
	_, err := NewJWTService("")
	assert.ErrorIs(t, err, ErrEmptySecret)
}
