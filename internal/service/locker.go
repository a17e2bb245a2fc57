package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// ErrSessionBusy indicates another mutating request currently holds the
// session lock. The caller should retry after the in-flight call finishes.
var ErrSessionBusy = errors.New("session is being modified by another request")

// SessionLocker serialises mutating requests against one session id. The
// persistence layer additionally guards transitions with a status
// compare-and-swap, so the lock is an advisory fast-fail, not the only line
// of defence.
type SessionLocker interface {
	Acquire(ctx context.Context, sessionID string) (release func(), err error)
}

type redisSessionLocker struct {
	client *redis.Client
	ttl    time.Duration
	logger zerolog.Logger
}

// NewRedisSessionLocker builds a locker backed by redis SET NX with a TTL so
// a crashed holder cannot wedge a session forever.
func NewRedisSessionLocker(client *redis.Client, ttl time.Duration, logger zerolog.Logger) SessionLocker {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}

	return &redisSessionLocker{
		client: client,
		ttl:    ttl,
		logger: logger.With().Str("component", "session_locker").Logger(),
	}
}

// releaseScript deletes the lock only when the caller still owns it, so an
// expired-and-reacquired lock is never released by the previous holder.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

func (l *redisSessionLocker) Acquire(ctx context.Context, sessionID string) (func(), error) {
	key := "session_lock:" + sessionID
	owner := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, owner, l.ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrSessionBusy
	}

	release := func() {
		if _, err := releaseScript.Run(context.Background(), l.client, []string{key}, owner).Result(); err != nil {
			l.logger.Warn().Err(err).Str("session_id", sessionID).Msg("failed to release session lock")
		}
	}

	return release, nil
}

// noopSessionLocker serves deployments without redis; the repository CAS
// remains in force.
type noopSessionLocker struct{}

// NewNoopSessionLocker builds a locker that always grants the lock.
func NewNoopSessionLocker() SessionLocker {
	return noopSessionLocker{}
}

func (noopSessionLocker) Acquire(ctx context.Context, sessionID string) (func(), error) {
	return func() {}, nil
}
