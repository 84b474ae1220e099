// Package session issues and validates the signed app session token that
// carries the voter's identity between requests.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"evoto/internal/identity/models"
	dErrors "evoto/pkg/domain-errors"
	"evoto/pkg/platform/middleware/auth"
)

// Session is a validated app session.
type Session struct {
	ID        string
	Claims    models.Claims
	LoginAt   time.Time
	ExpiresAt time.Time
}

func (s *Session) SubjectID() string { return s.Claims.Subject }
func (s *Session) SessionID() string { return s.ID }

// FromContext returns the session attached by auth.RequireSession.
func FromContext(ctx context.Context) (*Session, bool) {
	s, ok := auth.SessionFrom(ctx).(*Session)
	return s, ok && s != nil
}

// tokenClaims nests the identity under "voter" so its "sub" does not collide
// with the registered subject claim.
type tokenClaims struct {
	Voter   models.Claims    `json:"voter"`
	LoginAt *jwt.NumericDate `json:"login_at"`
	jwt.RegisteredClaims
}

// Manager signs session tokens with HS256.
type Manager struct {
	signingKey []byte
	issuer     string
	ttl        time.Duration
	now        func() time.Time
}

type Option func(*Manager)

func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

func NewManager(signingKey, issuer string, ttl time.Duration, opts ...Option) *Manager {
	m := &Manager{
		signingKey: []byte(signingKey),
		issuer:     issuer,
		ttl:        ttl,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Issue starts a new session for claims. The session ID doubles as the key of
// the verification session cache.
func (m *Manager) Issue(claims models.Claims, loginAt time.Time) (string, *Session, error) {
	now := m.now()
	s := &Session{
		ID:        uuid.NewString(),
		Claims:    claims,
		LoginAt:   loginAt,
		ExpiresAt: now.Add(m.ttl),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, tokenClaims{
		Voter:   claims,
		LoginAt: jwt.NewNumericDate(loginAt),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   claims.Subject,
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(s.ExpiresAt),
			ID:        s.ID,
		},
	})
	signed, err := token.SignedString(m.signingKey)
	if err != nil {
		return "", nil, err
	}
	return signed, s, nil
}

// Validate parses a session token. Any failure is an unauthorized domain error.
func (m *Manager) Validate(tokenString string) (*Session, error) {
	claims := &tokenClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return m.signingKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(m.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "session has expired")
		}
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid session")
	}
	if claims.ID == "" || claims.Subject == "" || claims.Voter.Subject != claims.Subject {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid session")
	}

	s := &Session{ID: claims.ID, Claims: claims.Voter}
	if claims.LoginAt != nil {
		s.LoginAt = claims.LoginAt.Time
	}
	if claims.ExpiresAt != nil {
		s.ExpiresAt = claims.ExpiresAt.Time
	}
	return s, nil
}

// ValidateSession adapts Validate to the auth middleware.
func (m *Manager) ValidateSession(tokenString string) (auth.Session, error) {
	s, err := m.Validate(tokenString)
	if err != nil {
		return nil, err
	}
	return s, nil
}
