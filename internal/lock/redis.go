package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the lock key only if this holder still owns it,
// so an expired lease taken over by another process is never released here.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// acquirePollInterval is how often acquisition retries while waiting.
const acquirePollInterval = 50 * time.Millisecond

// Redis is a lock provider using SET NX PX leases on a Redis server.
type Redis struct {
	client *redis.Client
	prefix string
}

// NewRedis creates a Redis-backed lock provider.
func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client, prefix: "lock:"}
}

// TryUsing attempts to acquire the named lock within acquireTimeout and runs
// fn while holding it. The Redis key expires after hold so a crashed holder
// cannot block the fingerprint forever.
func (r *Redis) TryUsing(ctx context.Context, key string, hold, acquireTimeout time.Duration, fn func(ctx context.Context) error) (bool, error) {
	token := uuid.NewString()
	redisKey := r.prefix + key

	acquireCtx, cancel := context.WithTimeout(ctx, acquireTimeout)
	defer cancel()

	acquired := false
	for !acquired {
		ok, err := r.client.SetNX(acquireCtx, redisKey, token, hold).Result()
		if err != nil {
			if acquireCtx.Err() != nil {
				break
			}
			return false, fmt.Errorf("acquiring lock %s: %w", key, err)
		}
		if ok {
			acquired = true
			break
		}

		select {
		case <-acquireCtx.Done():
		case <-time.After(acquirePollInterval):
			continue
		}
		break
	}

	if !acquired {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		return false, nil
	}

	defer func() {
		// Best effort: the lease expires on its own if the release fails.
		releaseCtx, releaseCancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer releaseCancel()
		_ = releaseScript.Run(releaseCtx, r.client, []string{redisKey}, token).Err()
	}()

	holdCtx, cancelHold := context.WithTimeout(ctx, hold)
	defer cancelHold()

	return true, fn(holdCtx)
}

// Ensure Redis implements Provider at compile time.
var _ Provider = (*Redis)(nil)
