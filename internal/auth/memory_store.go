package auth

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

type MemorySessionStore struct {
	mutex    sync.Mutex
	ttl      time.Duration
	sessions map[string]*Session
}

func NewMemorySessionStore(ttl time.Duration) *MemorySessionStore {
	return &MemorySessionStore{
		ttl:      ttl,
		sessions: make(map[string]*Session),
	}
}

func (s *MemorySessionStore) Create(_ context.Context, session *Session) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.sessions[session.Token] = session
	return nil
}

func (s *MemorySessionStore) Get(_ context.Context, token string) (*Session, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	session, ok := s.sessions[token]
	if !ok {
		return nil, ErrSessionNotFound
	}

	if session.Expired(s.ttl, time.Now()) {
		delete(s.sessions, token)
		return nil, ErrSessionNotFound
	}

	sessionCopy := *session
	return &sessionCopy, nil
}

func (s *MemorySessionStore) Destroy(_ context.Context, token string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	delete(s.sessions, token)
	return nil
}

func (s *MemorySessionStore) SweepExpired(_ context.Context) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if len(s.sessions) == 0 {
		return
	}

	now := time.Now()
	var toRemove []string
	for token, session := range s.sessions {
		if session.Expired(s.ttl, now) {
			toRemove = append(toRemove, token)
		}
	}

	for _, token := range toRemove {
		log.Debugf("=> session store, sweeping expired session: %s", token)
		delete(s.sessions, token)
	}
}
