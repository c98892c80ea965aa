package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndVerify(t *testing.T) {
	m := NewTokenManager("secret", time.Hour)

	token, exp, err := m.Generate(42)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), exp, 5*time.Second)

	claims, err := m.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), claims.UserID)
	assert.NotEmpty(t, claims.ID)
}

func TestGenerate_UniqueTokens(t *testing.T) {
	m := NewTokenManager("secret", time.Hour)
	a, _, _ := m.Generate(1)
	b, _, _ := m.Generate(1)
	assert.NotEqual(t, a, b)
}

func TestVerify_WrongSecret(t *testing.T) {
	token, _, err := NewTokenManager("one", time.Hour).Generate(1)
	require.NoError(t, err)

	_, err = NewTokenManager("two", time.Hour).Verify(token)
	assert.Error(t, err)
}

func TestVerify_Expired(t *testing.T) {
	token, _, err := NewTokenManager("secret", -time.Minute).Generate(1)
	require.NoError(t, err)

	_, err = NewTokenManager("secret", time.Hour).Verify(token)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)
}

func TestVerify_Garbage(t *testing.T) {
	_, err := NewTokenManager("secret", time.Hour).Verify("not-a-token")
	assert.Error(t, err)
}
