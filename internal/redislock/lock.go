// Package redislock provides a small best-effort distributed lock over a
// single Redis instance. The gateway uses it to serialize registration of
// the same username across instances; correctness does not depend on it,
// the unique index in the database does.
package redislock

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const lockKeyPrefix = "tmplock:"

// ErrNotAcquired is returned by AcquireWait when the lock stayed held for the
// whole wait budget.
var ErrNotAcquired = errors.New("redislock: lock not acquired")

// releaseScript deletes the lock only if it still carries our token, so an
// expired-and-reacquired lock is never released by the previous holder.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type Locker struct {
	rdb *redis.Client
}

func NewLocker(rdb *redis.Client) *Locker {
	return &Locker{rdb: rdb}
}

// Acquire attempts to take the named lock once. On success it returns the
// token that Release requires.
func (l *Locker) Acquire(ctx context.Context, name string, ttl time.Duration) (string, bool, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", false, fmt.Errorf("generate lock token: %w", err)
	}
	token := hex.EncodeToString(buf)

	ok, err := l.rdb.SetNX(ctx, lockKeyPrefix+name, token, ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("acquire lock %q: %w", name, err)
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

// AcquireWait polls Acquire until it succeeds, the wait budget runs out, or
// ctx is cancelled.
func (l *Locker) AcquireWait(ctx context.Context, name string, ttl, wait time.Duration) (string, error) {
	deadline := time.Now().Add(wait)
	for {
		token, ok, err := l.Acquire(ctx, name, ttl)
		if err != nil {
			return "", err
		}
		if ok {
			return token, nil
		}
		if time.Now().After(deadline) {
			return "", ErrNotAcquired
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(10 * time.Millisecond):
		}
	}
}

// Release frees the lock if the token still matches. Returns false when the
// lock had already expired or been taken over.
func (l *Locker) Release(ctx context.Context, name, token string) (bool, error) {
	n, err := releaseScript.Run(ctx, l.rdb, []string{lockKeyPrefix + name}, token).Int()
	if err != nil {
		return false, fmt.Errorf("release lock %q: %w", name, err)
	}
	return n == 1, nil
}
