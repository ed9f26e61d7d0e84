package service

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-entry-sync/internal/models"
	appErrors "github.com/noah-isme/sma-entry-sync/pkg/errors"
)

func TestValidateTokenRoundTrip(t *testing.T) {
	svc := NewAuthService("secret", nil)
	token, err := svc.IssueToken("teacher-1", time.Hour)
	require.NoError(t, err)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "teacher-1", claims.UserID)
}

func TestValidateTokenRejects(t *testing.T) {
	svc := NewAuthService("secret", nil)

	other, err := NewAuthService("other", nil).IssueToken("teacher-1", time.Hour)
	require.NoError(t, err)
	_, err = svc.ValidateToken(other)
	assert.ErrorIs(t, err, appErrors.ErrUnauthorized)

	expired, err := svc.IssueToken("teacher-1", -time.Minute)
	require.NoError(t, err)
	_, err = svc.ValidateToken(expired)
	assert.ErrorIs(t, err, appErrors.ErrUnauthorized)

	anonymous, err := svc.IssueToken("", time.Hour)
	require.NoError(t, err)
	_, err = svc.ValidateToken(anonymous)
	assert.ErrorIs(t, err, appErrors.ErrUnauthorized)

	_, err = svc.ValidateToken("not-a-token")
	assert.ErrorIs(t, err, appErrors.ErrUnauthorized)
}

func TestValidateTokenRejectsOtherAlgorithms(t *testing.T) {
	svc := NewAuthService("secret", nil)
	claims := &models.JWTClaims{UserID: "teacher-1", RegisteredClaims: jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte("secret"))
	require.NoError(t, err)

	_, err = svc.ValidateToken(token)
	assert.ErrorIs(t, err, appErrors.ErrUnauthorized)
}
