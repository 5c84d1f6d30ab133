// Package server provides the HTTP surface that embeds the query gateway.
package server

import (
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/sqlgate/sqlgate/pkg/errors"
	"github.com/sqlgate/sqlgate/pkg/services"
)

// SessionClaims are the claims carried by a session token.
type SessionClaims struct {
	Write bool `json:"write"`
	jwt.RegisteredClaims
}

// SessionManager issues and validates the short-lived tokens that back the
// gateway's authorization context. Tokens are re-validated on every policy
// decision, so expiry and revocation take effect mid-session.
type SessionManager struct {
	secret []byte
	ttl    time.Duration

	mu      sync.Mutex
	revoked map[string]time.Time
}

// NewSessionManager creates a session manager.
func NewSessionManager(secret string, ttl time.Duration) *SessionManager {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &SessionManager{
		secret:  []byte(secret),
		ttl:     ttl,
		revoked: make(map[string]time.Time),
	}
}

// Issue creates a signed session token for the given user.
func (m *SessionManager) Issue(username string, canWrite bool) (string, error) {
	now := time.Now()
	claims := SessionClaims{
		Write: canWrite,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", errors.Wrap(err, errors.CodeInternal, "failed to sign session token")
	}
	return signed, nil
}

// Validate parses and verifies a session token.
func (m *SessionManager) Validate(tokenString string) (*SessionClaims, error) {
	claims := &SessionClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New(errors.CodeUnauthorized, "unexpected signing method")
		}
		return m.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, errors.ErrAuthenticationRequired
	}

	m.mu.Lock()
	_, revoked := m.revoked[claims.ID]
	m.mu.Unlock()
	if revoked {
		return nil, errors.ErrAuthenticationRequired
	}

	return claims, nil
}

// Revoke invalidates a token for the rest of its lifetime.
func (m *SessionManager) Revoke(tokenString string) {
	claims := &SessionClaims{}
	// Signature still has to check out; expiry does not matter for revocation.
	parser := jwt.NewParser(jwt.WithoutClaimsValidation())
	token, err := parser.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return m.secret, nil
	})
	if err != nil || !token.Valid || claims.ID == "" {
		return
	}

	expiry := time.Now().Add(m.ttl)
	if claims.ExpiresAt != nil {
		expiry = claims.ExpiresAt.Time
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.revoked[claims.ID] = expiry
	now := time.Now()
	for id, exp := range m.revoked {
		if exp.Before(now) {
			delete(m.revoked, id)
		}
	}
}

// Authorizer derives an authorization context from a presented token. The
// returned context re-validates the token on every CanWrite call, so a
// revoked or expired session loses write capability immediately.
func (m *SessionManager) Authorizer(tokenString string) services.AuthorizationContext {
	return services.AuthorizerFunc(func() bool {
		if tokenString == "" {
			return false
		}
		claims, err := m.Validate(tokenString)
		if err != nil {
			return false
		}
		return claims.Write
	})
}
