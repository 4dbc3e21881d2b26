package redisclient

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/hackgods/telehealth-scheduling/internal/lock"
)

const (
	keyPrefix       = "lock:"
	minRetryBackoff = 10 * time.Millisecond
	maxRetryBackoff = 200 * time.Millisecond
)

// DoctorLocker is a lock.Locker backed by SET NX with a lease. A crashed holder
// loses the lock when the lease expires.
type DoctorLocker struct {
	client *redis.Client
	ttl    time.Duration
}

func NewDoctorLocker(client *redis.Client, ttl time.Duration) *DoctorLocker {
	return &DoctorLocker{
		client: client,
		ttl:    ttl,
	}
}

func (l *DoctorLocker) Acquire(ctx context.Context, key string, timeout time.Duration) (*lock.Lease, error) {
	redisKey := keyPrefix + key
	token := uuid.NewString()
	deadline := time.Now().Add(timeout)
	backoff := minRetryBackoff

	for {
		// the server-side lease starts no earlier than this
		issued := time.Now()
		ok, err := l.client.SetNX(ctx, redisKey, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire %s: %w", key, err)
		}
		if ok {
			return &lock.Lease{
				Key:       key,
				Token:     token,
				ExpiresAt: issued.Add(l.ttl),
			}, nil
		}

		wait := backoff/2 + rand.N(backoff/2+1)
		if time.Now().Add(wait).After(deadline) {
			return nil, fmt.Errorf("%w: %s", lock.ErrNotAcquired, key)
		}
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		backoff = min(backoff*2, maxRetryBackoff)
	}
}

var unlockScript = redis.NewScript(`
local val = redis.call("GET", KEYS[1])
if val == ARGV[1] then
  return redis.call("DEL", KEYS[1])
else
  return 0
end
`)

// Release deletes the key only if it still holds this lease's token.
func (l *DoctorLocker) Release(ctx context.Context, lease *lock.Lease) error {
	if lease == nil {
		return nil
	}
	_, err := unlockScript.Run(ctx, l.client, []string{keyPrefix + lease.Key}, lease.Token).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release %s: %w", lease.Key, err)
	}
	return nil
}
