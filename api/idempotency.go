package api

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

var errKeyChurn = errors.New("idempotency key expired while being claimed")

// releaseIfHeld deletes KEYS[1] only while it still names ARGV[1] as holder.
var releaseIfHeld = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// IdempotencyStore remembers, per user, which job first used an
// Idempotency-Key. Entries live for the configured window in Redis so every
// API replica sees them.
type IdempotencyStore struct {
	rdb    *redis.Client
	window time.Duration
}

// NewIdempotencyStore creates a store whose claims expire after window.
func NewIdempotencyStore(rdb *redis.Client, window time.Duration) *IdempotencyStore {
	return &IdempotencyStore{rdb: rdb, window: window}
}

func idempotencyKey(userID, key string) string {
	return "idem:" + userID + ":" + key
}

// Claim binds key to jobID. When an earlier job already holds the key it
// returns that job's id and false.
func (s *IdempotencyStore) Claim(ctx context.Context, userID, key, jobID string) (string, bool, error) {
	k := idempotencyKey(userID, key)
	for range 2 {
		won, err := s.rdb.SetNX(ctx, k, jobID, s.window).Result()
		if err != nil {
			return "", false, err
		}
		if won {
			return jobID, true, nil
		}
		holder, err := s.rdb.Get(ctx, k).Result()
		switch {
		case errors.Is(err, redis.Nil):
			continue
		case err != nil:
			return "", false, err
		}
		return holder, false, nil
	}
	return "", false, errKeyChurn
}

// Release frees key when jobID still holds it, letting the client retry a
// request that created nothing.
func (s *IdempotencyStore) Release(ctx context.Context, userID, key, jobID string) error {
	return releaseIfHeld.Run(ctx, s.rdb, []string{idempotencyKey(userID, key)}, jobID).Err()
}
