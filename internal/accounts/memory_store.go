package accounts

import (
	"context"
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/websitekilla/webconnect/pkg"
)

var _ Store = (*MemoryStore)(nil)

// MemoryStore is used in development mode and unit tests
type MemoryStore struct {
	mutex    sync.RWMutex
	accounts map[string]Account
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts: make(map[string]Account),
	}
}

func (s *MemoryStore) SeedDefaultAdmin(_ context.Context, username, plaintextPassword string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, ok := s.accounts[username]; ok {
		log.Debugf("seed default admin: account [%s] already present, skipping", username)
		return nil
	}

	passwordHash, err := pkg.HashPassword(plaintextPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	s.accounts[username] = Account{
		Username:     username,
		PasswordHash: passwordHash,
		IsAdmin:      true,
	}

	log.Infof("default admin account [%s] created", username)
	return nil
}

func (s *MemoryStore) FindByUsername(_ context.Context, username string) (*Account, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	account, ok := s.accounts[username]
	if !ok {
		return nil, ErrAccountNotFound
	}

	return &account, nil
}

func (s *MemoryStore) UpdatePassword(_ context.Context, username, newPlaintextPassword string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	account, ok := s.accounts[username]
	if !ok {
		return ErrAccountNotFound
	}

	passwordHash, err := pkg.HashPassword(newPlaintextPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	account.PasswordHash = passwordHash
	s.accounts[username] = account
	return nil
}
