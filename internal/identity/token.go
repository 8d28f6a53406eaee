// Package identity verifies the bearer tokens that carry the caller's identity.
package identity

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/example/slot-reservations/internal/application"
)

// ErrInvalidToken reports a missing, malformed, expired or unsigned token.
var ErrInvalidToken = errors.New("identity: invalid token")

// Claims are the token claims understood by the service. The subject is the user id.
type Claims struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// Verifier validates HS256 tokens signed with a shared secret.
type Verifier struct {
	secret []byte
	now    func() time.Time
}

// NewVerifier constructs a Verifier. The secret must not be empty.
func NewVerifier(secret string, now func() time.Time) (*Verifier, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, fmt.Errorf("identity: token secret is required")
	}
	if now == nil {
		now = time.Now
	}
	return &Verifier{secret: []byte(secret), now: now}, nil
}

// Verify parses the token and returns the principal it identifies.
func (v *Verifier) Verify(token string) (application.Principal, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return application.Principal{}, ErrInvalidToken
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil {
		return application.Principal{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !parsed.Valid || strings.TrimSpace(claims.Subject) == "" {
		return application.Principal{}, fmt.Errorf("%w: subject is required", ErrInvalidToken)
	}

	return application.Principal{
		UserID:      claims.Subject,
		DisplayName: claims.Name,
		Email:       claims.Email,
	}, nil
}

// Issue signs a token for principal that expires after ttl. A non-positive ttl
// issues a token without expiry.
func (v *Verifier) Issue(principal application.Principal, ttl time.Duration) (string, error) {
	now := v.now()
	claims := Claims{
		Name:  principal.DisplayName,
		Email: principal.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  principal.UserID,
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}
