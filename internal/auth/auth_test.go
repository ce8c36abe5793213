package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndValidateToken(t *testing.T) {
	s := NewService("secret")
	s.RegisterAPICredentials(TestAPIKey, TestAPISecret, TestAccountID)

	tok, err := s.GenerateToken(Credentials{APIKey: TestAPIKey, APISecret: TestAPISecret})
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(24*time.Hour), tok.Expiration, time.Minute)

	claims, err := s.ValidateToken(tok.Token)
	require.NoError(t, err)
	assert.Equal(t, TestAccountID, claims.AccountID)
	assert.True(t, claims.HasPermission(PermissionTrade))
	assert.False(t, claims.HasPermission(PermissionInternal))
}

func TestGenerateTokenRejectsBadCredentials(t *testing.T) {
	s := NewService("secret")
	s.RegisterAPICredentials(TestAPIKey, TestAPISecret, TestAccountID)

	_, err := s.GenerateToken(Credentials{APIKey: TestAPIKey, APISecret: "wrong"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = s.GenerateToken(Credentials{APIKey: "unknown", APISecret: TestAPISecret})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestValidateTokenRejectsOtherSecret(t *testing.T) {
	issuer := NewService("secret-a")
	issuer.RegisterAPICredentials(TestAPIKey, TestAPISecret, TestAccountID)
	tok, err := issuer.GenerateToken(Credentials{APIKey: TestAPIKey, APISecret: TestAPISecret})
	require.NoError(t, err)

	_, err = NewService("secret-b").ValidateToken(tok.Token)
	assert.Error(t, err)
}

func TestExpiredTokenRejected(t *testing.T) {
	s := NewService("secret")
	s.ttl = -time.Minute
	s.RegisterAPICredentials(TestAPIKey, TestAPISecret, TestAccountID)

	tok, err := s.GenerateToken(Credentials{APIKey: TestAPIKey, APISecret: TestAPISecret})
	require.NoError(t, err)

	_, err = s.ValidateToken(tok.Token)
	assert.Error(t, err)
}
