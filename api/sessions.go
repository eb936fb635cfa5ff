package api

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const sessionOwnerTTL = 24 * time.Hour

var errSessionChurn = errors.New("session owner expired while being bound")

// SessionOwners ties a progress session to the first user that streams or
// dispatches on it. Other users are refused.
type SessionOwners interface {
	// Bind reports whether userID owns sessionID, taking ownership when the
	// session is new.
	Bind(ctx context.Context, sessionID, userID string) (bool, error)
}

// RedisSessionOwners shares ownership across API replicas.
type RedisSessionOwners struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisSessionOwners keeps each binding for ttl after its last use.
func NewRedisSessionOwners(rdb *redis.Client, ttl time.Duration) *RedisSessionOwners {
	if ttl <= 0 {
		ttl = sessionOwnerTTL
	}
	return &RedisSessionOwners{rdb: rdb, ttl: ttl}
}

func (s *RedisSessionOwners) Bind(ctx context.Context, sessionID, userID string) (bool, error) {
	k := "session-owner:" + sessionID
	for range 2 {
		won, err := s.rdb.SetNX(ctx, k, userID, s.ttl).Result()
		if err != nil {
			return false, err
		}
		if won {
			return true, nil
		}
		owner, err := s.rdb.Get(ctx, k).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return false, err
		}
		if owner != userID {
			return false, nil
		}
		return true, s.rdb.Expire(ctx, k, s.ttl).Err()
	}
	return false, errSessionChurn
}

type sessionOwner struct {
	userID  string
	expires time.Time
}

// memorySessionOwners serves a single replica.
type memorySessionOwners struct {
	mu     sync.Mutex
	ttl    time.Duration
	now    func() time.Time
	owners map[string]sessionOwner
}

func newMemorySessionOwners(ttl time.Duration) *memorySessionOwners {
	return &memorySessionOwners{ttl: ttl, now: time.Now, owners: map[string]sessionOwner{}}
}

func (m *memorySessionOwners) Bind(_ context.Context, sessionID, userID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	if o, ok := m.owners[sessionID]; ok && now.Before(o.expires) && o.userID != userID {
		return false, nil
	}
	m.owners[sessionID] = sessionOwner{userID: userID, expires: now.Add(m.ttl)}
	if len(m.owners) > 4096 {
		for id, o := range m.owners {
			if !now.Before(o.expires) {
				delete(m.owners, id)
			}
		}
	}
	return true, nil
}
