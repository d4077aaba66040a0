// Package auth verifies bearer tokens and produces the authenticated
// principal that is passed explicitly into every service call.
package auth

import (
	"errors"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid bearer token")

// Principal identifies the authenticated caller.
type Principal struct {
	UserID string
	Email  string
	Name   string
}

// ParseToken validates an HS256 JWT and extracts the principal from its
// sub, email, and name claims.
func ParseToken(secret, raw string) (Principal, error) {
	tok, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return []byte(secret), nil
	})
	if err != nil || !tok.Valid {
		return Principal{}, ErrInvalidToken
	}

	claims, ok := tok.Claims.(jwt.MapClaims)
	if !ok {
		return Principal{}, ErrInvalidToken
	}

	sub, _ := claims["sub"].(string)
	if sub == "" {
		return Principal{}, ErrInvalidToken
	}

	email, _ := claims["email"].(string)
	name, _ := claims["name"].(string)
	return Principal{UserID: sub, Email: email, Name: name}, nil
}

// IssueToken signs an HS256 JWT for the principal. Used by the seed tooling
// and tests; token issuance for real users lives in the identity service.
func IssueToken(secret string, p Principal, expiresAtUnix int64) (string, error) {
	claims := jwt.MapClaims{
		"sub":   p.UserID,
		"email": p.Email,
		"name":  p.Name,
	}
	if expiresAtUnix > 0 {
		claims["exp"] = expiresAtUnix
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString([]byte(secret))
}
