package auth

import (
	"context"
	"errors"
	"time"
)

const DefaultTTL = 24 * time.Hour

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrSessionNotFound    = errors.New("session not found")
)

// Session is the server-side record behind the opaque cookie value.
// The client only ever sees the token.
type Session struct {
	Token     string    `json:"token"`
	Username  string    `json:"username"`
	IsAdmin   bool      `json:"isAdmin"`
	CreatedAt time.Time `json:"createdAt"`
}

func (s *Session) Expired(ttl time.Duration, now time.Time) bool {
	return now.Sub(s.CreatedAt) > ttl
}

var _ SessionStore = (*RedisSessionStore)(nil)
var _ SessionStore = (*MemorySessionStore)(nil)

// SessionStore backend is selected by deployment config: redis in
// production, in-memory in development
type SessionStore interface {
	Create(ctx context.Context, session *Session) error
	// Get returns ErrSessionNotFound for unknown and expired tokens
	Get(ctx context.Context, token string) (*Session, error)
	// Destroy is idempotent, removing an absent session is fine
	Destroy(ctx context.Context, token string) error
	// SweepExpired drops all sessions past their TTL
	SweepExpired(ctx context.Context)
}
