// Package auth checks the bearer token of the administration API.
//
// Operators either send the administration token itself, or a short lived
// HS256 JWT signed with it, so the raw secret does not have to travel with
// every request.
package auth

import (
	"crypto/subtle"
	"errors"
	"strings"
	"time"

	"github.com/Scille/parsec-cloud-sub009/internal/common"
	"github.com/golang-jwt/jwt/v5"
)

const administrationSubject = "administration"

// Claims of an administration JWT.
type Claims struct {
	jwt.RegisteredClaims
}

// GenerateToken signs an administration JWT valid for validityDuration.
func GenerateToken(secretKey []byte, validityDuration time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   administrationSubject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(validityDuration)),
		},
	})

	tokenString, err := token.SignedString(secretKey)
	if err != nil {
		return "", err
	}

	return tokenString, nil
}

// CheckAdministrationToken validates an "Authorization" header value.
func CheckAdministrationToken(header string, secretKey []byte) error {
	if len(secretKey) == 0 {
		return common.ErrorUnauthorized
	}
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return common.ErrorUnauthorized
	}
	token = strings.TrimSpace(token)

	if subtle.ConstantTimeCompare([]byte(token), secretKey) == 1 {
		return nil
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return secretKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithSubject(administrationSubject))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return common.ErrInvalidToken
		}
		return common.ErrorUnauthorized
	}
	if !parsed.Valid {
		return common.ErrInvalidToken
	}

	return nil
}
