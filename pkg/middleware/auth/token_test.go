package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTokens(t *testing.T) *TokenManager {
	t.Helper()
	m, err := NewTokenManager("test-secret", "umbraco-cms", time.Hour)
	require.NoError(t, err)
	return m
}

func TestNewTokenManager_RequiresSecret(t *testing.T) {
	_, err := NewTokenManager("", "umbraco-cms", time.Hour)
	assert.ErrorIs(t, err, ErrNoSecret)
}

func TestGenerateAndValidate(t *testing.T) {
	m := newTestTokens(t)

	token, err := m.GenerateToken("u-1", []string{RoleAdmin})
	require.NoError(t, err)

	claims, err := m.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "u-1", claims.UserID)
	assert.Equal(t, "u-1", claims.Subject)
	assert.Equal(t, []string{RoleAdmin}, claims.Roles)
	assert.NotEmpty(t, claims.ID)
	assert.InDelta(t, time.Hour.Seconds(), m.Remaining(claims).Seconds(), 5)
}

func TestValidateToken_Rejects(t *testing.T) {
	m := newTestTokens(t)
	token, err := m.GenerateToken("u-1", nil)
	require.NoError(t, err)

	t.Run("other secret", func(t *testing.T) {
		other, err := NewTokenManager("another-secret", "umbraco-cms", time.Hour)
		require.NoError(t, err)
		_, err = other.ValidateToken(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("other issuer", func(t *testing.T) {
		other, err := NewTokenManager("test-secret", "someone-else", time.Hour)
		require.NoError(t, err)
		_, err = other.ValidateToken(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("expired", func(t *testing.T) {
		m.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
		defer func() { m.now = time.Now }()
		_, err := m.ValidateToken(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("unsigned", func(t *testing.T) {
		unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{UserID: "u-1"}).
			SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)
		_, err = m.ValidateToken(unsigned)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}
