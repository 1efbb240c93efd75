package security

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenManager_RoundTrip(t *testing.T) {
	tm, err := NewTokenManager("secret", time.Hour)
	require.NoError(t, err)

	token, err := tm.GenerateToken(42)
	require.NoError(t, err)

	claims, err := tm.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), claims.UserID)
	assert.Equal(t, Issuer, claims.Issuer)

	sig, err := ExtractSignature(token)
	require.NoError(t, err)
	assert.NotEmpty(t, sig)
}

func TestTokenManager_Rejects(t *testing.T) {
	tm, err := NewTokenManager("secret", time.Hour)
	require.NoError(t, err)
	other, err := NewTokenManager("other", time.Hour)
	require.NoError(t, err)

	foreign, err := other.GenerateToken(1)
	require.NoError(t, err)
	_, err = tm.ValidateToken(foreign)
	assert.ErrorIs(t, err, ErrTokenInvalid)

	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, &UserClaims{
		UserID: 1,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
			Issuer:    Issuer,
		},
	})
	signed, err := expired.SignedString([]byte("secret"))
	require.NoError(t, err)
	_, err = tm.ValidateToken(signed)
	assert.ErrorIs(t, err, ErrTokenInvalid)

	_, err = ExtractSignature("not-a-token")
	assert.Error(t, err)

	_, err = NewTokenManager("", time.Hour)
	assert.Error(t, err)
}
