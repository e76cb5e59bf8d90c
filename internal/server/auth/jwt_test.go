package auth

import (
	"testing"
	"time"

	"github.com/Scille/parsec-cloud-sub009/internal/common"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckAdministrationToken(t *testing.T) {
	t.Parallel()

	secret := []byte("s3cr3t")
	valid, err := GenerateToken(secret, time.Hour)
	require.NoError(t, err)
	expired, err := GenerateToken(secret, -time.Second)
	require.NoError(t, err)
	foreign, err := GenerateToken([]byte("other"), time.Hour)
	require.NoError(t, err)

	otherSubject, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "user",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString(secret)
	require.NoError(t, err)

	tests := []struct {
		name    string
		header  string
		secret  []byte
		wantErr error
	}{
		{"raw token", "Bearer s3cr3t", secret, nil},
		{"lowercase scheme", "bearer s3cr3t", secret, nil},
		{"jwt", "Bearer " + valid, secret, nil},
		{"expired jwt", "Bearer " + expired, secret, common.ErrInvalidToken},
		{"jwt signed with another key", "Bearer " + foreign, secret, common.ErrorUnauthorized},
		{"jwt for another subject", "Bearer " + otherSubject, secret, common.ErrorUnauthorized},
		{"wrong raw token", "Bearer nope", secret, common.ErrorUnauthorized},
		{"malformed jwt", "Bearer not.a.jwt", secret, common.ErrorUnauthorized},
		{"missing scheme", "s3cr3t", secret, common.ErrorUnauthorized},
		{"basic scheme", "Basic s3cr3t", secret, common.ErrorUnauthorized},
		{"empty header", "", secret, common.ErrorUnauthorized},
		{"no secret configured", "Bearer ", nil, common.ErrorUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckAdministrationToken(tt.header, tt.secret)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}
