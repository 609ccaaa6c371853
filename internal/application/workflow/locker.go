package workflow

import (
	"context"
	"time"

	redisdb "github.com/fairclaim/protest-engine/internal/infrastructure/database/redis"
	"github.com/fairclaim/protest-engine/pkg/types/common"
)

// RedisLocker serializes session mutations across API instances with a
// redis lock per session.
type RedisLocker struct {
	client *redisdb.Client
	ttl    time.Duration
}

func NewRedisLocker(client *redisdb.Client, ttl time.Duration) *RedisLocker {
	if ttl == 0 {
		ttl = 30 * time.Second
	}
	return &RedisLocker{client: client, ttl: ttl}
}

func (l *RedisLocker) Lock(ctx context.Context, sessionID common.ID) (func(context.Context) error, error) {
	lock, err := redisdb.AcquireLock(ctx, l.client, "session:"+string(sessionID), l.ttl)
	if err != nil {
		return nil, err
	}
	return lock.Release, nil
}
