package redis

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/fairclaim/protest-engine/pkg/errors"
)

var (
	ErrLockNotAcquired = errors.New(errors.ErrCodeConflict, "lock held by another owner")
	ErrLockLost        = errors.New(errors.ErrCodeConflict, "lock no longer held")
)

// unlockScript releases the lock only if the caller still owns it.
const unlockScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`

// refreshScript extends the lock only if the caller still owns it.
const refreshScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`

// Lock is a single-instance Redis lock used to serialize writes to one
// protest session across API instances.
type Lock struct {
	client *Client
	key    string
	token  string
	ttl    time.Duration
}

// AcquireLock takes the lock, or returns ErrLockNotAcquired when another
// owner holds it.
func AcquireLock(ctx context.Context, client *Client, key string, ttl time.Duration) (*Lock, error) {
	token := uuid.NewString()
	ok, err := client.Redis().SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeCacheError, "acquire lock")
	}
	if !ok {
		return nil, ErrLockNotAcquired
	}
	return &Lock{client: client, key: key, token: token, ttl: ttl}, nil
}

// Release gives the lock up.  Releasing a lock that expired and was retaken
// by someone else is reported as ErrLockLost, not a silent success.
func (l *Lock) Release(ctx context.Context) error {
	res, err := l.client.Redis().Eval(ctx, unlockScript, []string{l.key}, l.token).Int64()
	if err != nil && err != redis.Nil {
		return errors.Wrap(err, errors.ErrCodeCacheError, "release lock")
	}
	if res == 0 {
		return ErrLockLost
	}
	return nil
}

// Refresh extends the lock's TTL.
func (l *Lock) Refresh(ctx context.Context) error {
	res, err := l.client.Redis().Eval(ctx, refreshScript, []string{l.key}, l.token, l.ttl.Milliseconds()).Int64()
	if err != nil && err != redis.Nil {
		return errors.Wrap(err, errors.ErrCodeCacheError, "refresh lock")
	}
	if res == 0 {
		return ErrLockLost
	}
	return nil
}
