package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	log "github.com/sirupsen/logrus"
)

const (
	sessionKeyPrefix = "webconnect-session||"
	tokensSetKey     = "webconnect-sessions"
)

type RedisSessionStore struct {
	redisClient *redis.Client
	ttl         time.Duration
}

func NewRedisSessionStore(ttl time.Duration, redisClient *redis.Client) *RedisSessionStore {
	return &RedisSessionStore{
		redisClient: redisClient,
		ttl:         ttl,
	}
}

func (s *RedisSessionStore) Create(ctx context.Context, session *Session) error {
	payload, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	sessionKey := sessionKeyPrefix + session.Token
	if err := s.redisClient.Set(ctx, sessionKey, payload, s.ttl).Err(); err != nil {
		return fmt.Errorf("set session: %w", err)
	}

	// add token to the list of sessions, so they can be swept later
	if err := s.redisClient.SAdd(ctx, tokensSetKey, session.Token).Err(); err != nil {
		return fmt.Errorf("add session token: %w", err)
	}

	return nil
}

func (s *RedisSessionStore) Get(ctx context.Context, token string) (*Session, error) {
	cmd := s.redisClient.Get(ctx, sessionKeyPrefix+token)
	if err := cmd.Err(); err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("get session: %w", err)
	}

	var session Session
	if err := json.Unmarshal([]byte(cmd.Val()), &session); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}

	// the redis key carries a TTL already, this covers clock drift
	// between the instance that created the session and this one
	if session.Expired(s.ttl, time.Now()) {
		return nil, ErrSessionNotFound
	}

	return &session, nil
}

func (s *RedisSessionStore) Destroy(ctx context.Context, token string) error {
	if err := s.redisClient.Del(ctx, sessionKeyPrefix+token).Err(); err != nil {
		return fmt.Errorf("del session: %w", err)
	}
	if err := s.redisClient.SRem(ctx, tokensSetKey, token).Err(); err != nil {
		return fmt.Errorf("remove session token: %w", err)
	}
	return nil
}

// SweepExpired will run through all session tokens and drop the ones
// whose session key expired or whose record is past the TTL
func (s *RedisSessionStore) SweepExpired(ctx context.Context) {
	cmd := s.redisClient.SMembers(ctx, tokensSetKey)
	if err := cmd.Err(); err != nil {
		log.Errorf("!!! session store, sweep expired, get tokens: %s", err)
		return
	}

	sessionTokens := cmd.Val()
	if len(sessionTokens) == 0 {
		log.Debugln("=> session store, sweep expired abort, no sessions")
		return
	}

	log.Debugf("=> session store, sweep expired [%d sessions] start ...", len(sessionTokens))
	for _, token := range sessionTokens {
		_, err := s.Get(ctx, token)
		if err == nil {
			continue
		}
		if !errors.Is(err, ErrSessionNotFound) {
			log.Errorf("=> session store, sweep token %s: %s", token, err)
			continue
		}

		if err := s.Destroy(ctx, token); err != nil {
			log.Errorf("=> session store, sweep destroy token %s: %s", token, err)
		}
	}
}
