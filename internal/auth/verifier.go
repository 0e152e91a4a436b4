package auth

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidCredential covers malformed, unsigned and expired tokens.
	ErrInvalidCredential = errors.New("invalid credential")
	// ErrUnknownUser means the token verified but the account it names is
	// no longer resolvable.
	ErrUnknownUser = errors.New("unknown user")
)

// Identity is the resolved subject of a verified token.
type Identity struct {
	UserID int
	Email  string
}

// TokenVerifier validates a bearer credential presented at connection time.
type TokenVerifier interface {
	Verify(token string) (Identity, error)
}

type claims struct {
	UserID int    `json:"user_id"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}

// JWTVerifier verifies HMAC-signed tokens issued by the auth service.
type JWTVerifier struct {
	secret []byte
}

// NewJWTVerifier constructs a verifier for the shared signing secret.
func NewJWTVerifier(secret string) *JWTVerifier {
	return &JWTVerifier{secret: []byte(secret)}
}

// Verify parses and validates the token and returns the identity it names.
func (v *JWTVerifier) Verify(token string) (Identity, error) {
	parsed, err := jwt.ParseWithClaims(token, &claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil || !parsed.Valid {
		return Identity{}, ErrInvalidCredential
	}

	c, ok := parsed.Claims.(*claims)
	if !ok || c.UserID == 0 {
		return Identity{}, ErrInvalidCredential
	}
	return Identity{UserID: c.UserID, Email: c.Email}, nil
}
