package utils

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Lierre03/bcp-ems-sub000/internal/model"
)

const secret = "test-secret"

func sign(t *testing.T, method jwt.SigningMethod, key any, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return s
}

func TestAccessTokenRoundTrip(t *testing.T) {
	t.Parallel()
	tok, err := NewAccessToken(secret, 42, model.RoleStaff, 15)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(15*time.Minute), tok.Exp, 5*time.Second)

	a, err := ParseAccessToken(secret, tok.Token)
	require.NoError(t, err)
	assert.Equal(t, model.Actor{ID: 42, Role: model.RoleStaff}, a)

	_, err = ParseAccessToken("other-secret", tok.Token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestParseAccessToken_Rejects(t *testing.T) {
	t.Parallel()
	exp := time.Now().Add(time.Hour).Unix()

	tests := []struct {
		name string
		raw  string
	}{
		{"garbage", "not-a-jwt"},
		{"expired", sign(t, jwt.SigningMethodHS256, []byte(secret), jwt.MapClaims{"sub": "1", "role": "ADMIN", "exp": time.Now().Add(-time.Minute).Unix()})},
		{"no exp", sign(t, jwt.SigningMethodHS256, []byte(secret), jwt.MapClaims{"sub": "1", "role": "ADMIN"})},
		{"unknown role", sign(t, jwt.SigningMethodHS256, []byte(secret), jwt.MapClaims{"sub": "1", "role": "JANITOR", "exp": exp})},
		{"system role", sign(t, jwt.SigningMethodHS256, []byte(secret), jwt.MapClaims{"sub": "1", "role": "SYSTEM", "exp": exp})},
		{"zero subject", sign(t, jwt.SigningMethodHS256, []byte(secret), jwt.MapClaims{"sub": "0", "role": "ADMIN", "exp": exp})},
		{"text subject", sign(t, jwt.SigningMethodHS256, []byte(secret), jwt.MapClaims{"sub": "alice", "role": "ADMIN", "exp": exp})},
		{"none alg", sign(t, jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType, jwt.MapClaims{"sub": "1", "role": "ADMIN", "exp": exp})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseAccessToken(secret, tt.raw)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func TestParseAccessToken_NumericSubject(t *testing.T) {
	t.Parallel()
	raw := sign(t, jwt.SigningMethodHS256, []byte(secret), jwt.MapClaims{
		"sub": 7, "role": "REQUESTOR", "exp": time.Now().Add(time.Hour).Unix(),
	})
	a, err := ParseAccessToken(secret, raw)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), a.ID)
}
