package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/backoffice/internal/clock"
)

const leaseReleaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

// Lease grants one holder at a time the right to run a job.
type Lease interface {
	// Acquire returns a release token and true when the lease was taken.
	Acquire(ctx context.Context, key string, ttl time.Duration) (string, bool, error)
	Release(ctx context.Context, key, token string) error
}

var (
	errEmptyLeaseKey = errors.New("lease key is empty")
	errLeaseTTL      = errors.New("lease ttl must be positive")
)

// RedisLease coordinates replicas through SET NX with a token-checked release.
type RedisLease struct {
	client *redis.Client
	script *redis.Script
}

func NewRedisLease(client *redis.Client) *RedisLease {
	return &RedisLease{
		client: client,
		script: redis.NewScript(leaseReleaseScript),
	}
}

func (l *RedisLease) Acquire(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	if key == "" {
		return "", false, errEmptyLeaseKey
	}
	if ttl <= 0 {
		return "", false, errLeaseTTL
	}

	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return "", false, err
	}
	return token, ok, nil
}

func (l *RedisLease) Release(ctx context.Context, key, token string) error {
	if key == "" || token == "" {
		return nil
	}
	return l.script.Run(ctx, l.client, []string{key}, token).Err()
}

// LocalLease only excludes runs inside one process.
type LocalLease struct {
	mu     sync.Mutex
	clock  clock.Clock
	leases map[string]localHold
}

type localHold struct {
	token   string
	expires time.Time
}

func NewLocalLease(clk clock.Clock) *LocalLease {
	return &LocalLease{clock: clk, leases: map[string]localHold{}}
}

func (l *LocalLease) Acquire(_ context.Context, key string, ttl time.Duration) (string, bool, error) {
	if key == "" {
		return "", false, errEmptyLeaseKey
	}
	if ttl <= 0 {
		return "", false, errLeaseTTL
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	if hold, ok := l.leases[key]; ok && now.Before(hold.expires) {
		return "", false, nil
	}
	token := uuid.NewString()
	l.leases[key] = localHold{token: token, expires: now.Add(ttl)}
	return token, true, nil
}

func (l *LocalLease) Release(_ context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if hold, ok := l.leases[key]; ok && hold.token == token {
		delete(l.leases, key)
	}
	return nil
}
