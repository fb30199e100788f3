package accounts

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/sdomino/scribble"
	log "github.com/sirupsen/logrus"

	"github.com/websitekilla/webconnect/pkg"
)

const accountsCollection = "accounts"

var _ Store = (*JsonDBStore)(nil)

// JsonDBStore keeps accounts as JSON documents on disk, one file per
// account, via the scribble driver
type JsonDBStore struct {
	db    *scribble.Driver
	mutex sync.RWMutex
}

func NewJsonDBStore(dbPath string) (*JsonDBStore, error) {
	db, err := scribble.New(dbPath, nil)
	if err != nil {
		return nil, fmt.Errorf("new scribble driver: %w", err)
	}
	return &JsonDBStore{db: db}, nil
}

func (s *JsonDBStore) SeedDefaultAdmin(_ context.Context, username, plaintextPassword string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	var existing Account
	if err := s.db.Read(accountsCollection, username, &existing); err == nil {
		log.Debugf("seed default admin: account [%s] already present, skipping", username)
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("read account %s: %w", username, err)
	}

	passwordHash, err := pkg.HashPassword(plaintextPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	account := Account{
		Username:     username,
		PasswordHash: passwordHash,
		IsAdmin:      true,
	}
	if err := s.db.Write(accountsCollection, username, account); err != nil {
		return fmt.Errorf("write account %s: %w", username, err)
	}

	log.Infof("default admin account [%s] created", username)
	return nil
}

func (s *JsonDBStore) FindByUsername(_ context.Context, username string) (*Account, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	var account Account
	if err := s.db.Read(accountsCollection, username, &account); err != nil {
		if os.IsNotExist(err) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("read account %s: %w", username, err)
	}

	return &account, nil
}

func (s *JsonDBStore) UpdatePassword(_ context.Context, username, newPlaintextPassword string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	var account Account
	if err := s.db.Read(accountsCollection, username, &account); err != nil {
		if os.IsNotExist(err) {
			return ErrAccountNotFound
		}
		return fmt.Errorf("read account %s: %w", username, err)
	}

	passwordHash, err := pkg.HashPassword(newPlaintextPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	account.PasswordHash = passwordHash
	if err := s.db.Write(accountsCollection, username, account); err != nil {
		return fmt.Errorf("write account %s: %w", username, err)
	}

	return nil
}
