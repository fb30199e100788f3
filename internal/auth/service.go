package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/websitekilla/webconnect/internal/accounts"
	"github.com/websitekilla/webconnect/pkg"
)

const sessionTokenLength = 35

type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Service drives the login / logout / password-change flow on top of
// the credential store and the session store
type Service struct {
	accounts accounts.Store
	sessions SessionStore
	ttl      time.Duration
	// ability to inject random string generator func for tokens (for unit and dev testing)
	RandStringFunc func(s int) (string, error)
}

func NewService(
	accountsStore accounts.Store,
	sessionStore SessionStore,
	ttl time.Duration,
) *Service {
	return &Service{
		accounts:       accountsStore,
		sessions:       sessionStore,
		ttl:            ttl,
		RandStringFunc: pkg.GenerateRandomString,
	}
}

// Login verifies the credentials and issues a new session. Unknown
// username and wrong password are indistinguishable to the caller,
// both yield ErrInvalidCredentials.
func (s *Service) Login(ctx context.Context, credentials Credentials) (*Session, error) {
	account, err := s.accounts.FindByUsername(ctx, credentials.Username)
	if err != nil {
		if errors.Is(err, accounts.ErrAccountNotFound) {
			log.Tracef("[username] failed login attempt for user: %s", credentials.Username)
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("find account: %w", err)
	}

	if !accounts.VerifyPassword(account, credentials.Password) {
		log.Tracef("[password] failed login attempt for user: %s", credentials.Username)
		return nil, ErrInvalidCredentials
	}

	token, err := s.newSessionToken(ctx)
	if err != nil {
		return nil, err
	}

	session := &Session{
		Token:     token,
		Username:  account.Username,
		IsAdmin:   account.IsAdmin,
		CreatedAt: time.Now(),
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	return session, nil
}

// newSessionToken generates an unguessable token; collisions are next
// to impossible at this length, but retry a couple of times anyway
func (s *Service) newSessionToken(ctx context.Context) (string, error) {
	for attempt := 0; attempt < 3; attempt++ {
		token, err := s.RandStringFunc(sessionTokenLength)
		if err != nil {
			return "", fmt.Errorf("generate session token: %w", err)
		}

		if _, err := s.sessions.Get(ctx, token); errors.Is(err, ErrSessionNotFound) {
			return token, nil
		} else if err != nil {
			return "", fmt.Errorf("check session token: %w", err)
		}

		log.Warnf("session token collision, retrying [attempt %d]", attempt+1)
	}
	return "", errors.New("failed to generate a unique session token")
}

// Logout destroys the session, it is a no-op for absent tokens
func (s *Service) Logout(ctx context.Context, token string) error {
	return s.sessions.Destroy(ctx, token)
}

// SessionOf resolves the token to the server-side session state
func (s *Service) SessionOf(ctx context.Context, token string) (*Session, error) {
	return s.sessions.Get(ctx, token)
}

// ChangePassword replaces the account password after verifying the
// current one; a wrong current password yields ErrInvalidCredentials
func (s *Service) ChangePassword(ctx context.Context, username, currentPassword, newPassword string) error {
	account, err := s.accounts.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, accounts.ErrAccountNotFound) {
			return ErrInvalidCredentials
		}
		return fmt.Errorf("find account: %w", err)
	}

	if !accounts.VerifyPassword(account, currentPassword) {
		return ErrInvalidCredentials
	}

	if err := s.accounts.UpdatePassword(ctx, username, newPassword); err != nil {
		return fmt.Errorf("update password: %w", err)
	}

	return nil
}
