package redisclient

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	ErrLockNotAcquired = errors.New("dentist calendar lock not acquired")
)

// Locker serialises booking writes for one dentist on one calendar day.
// It narrows contention only; the store itself rejects overlapping rows.
type Locker interface {
	WithDentistDayLock(ctx context.Context, dentistID uuid.UUID, day string, fn func(ctx context.Context) error) error
}

func lockKey(dentistID uuid.UUID, day string) string {
	return fmt.Sprintf("lock:dentist:%s:%s", dentistID.String(), day)
}

type redisDayLocker struct {
	client *redis.Client
	ttl    time.Duration
	wait   time.Duration
	retry  time.Duration
}

// NewRedisDayLocker creates a locker backed by a per dentist-day Redis key.
// A contended lock is retried until wait elapses.
func NewRedisDayLocker(client *redis.Client, ttl, wait time.Duration) Locker {
	return &redisDayLocker{
		client: client,
		ttl:    ttl,
		wait:   wait,
		retry:  25 * time.Millisecond,
	}
}

func (l *redisDayLocker) WithDentistDayLock(ctx context.Context, dentistID uuid.UUID, day string, fn func(ctx context.Context) error) error {
	key := lockKey(dentistID, day)
	token := uuid.NewString()

	if err := l.acquire(ctx, key, token); err != nil {
		return err
	}

	defer func() {
		// release must run even if the caller's context is already done
		_ = l.release(context.WithoutCancel(ctx), key, token)
	}()

	ctxWithTimeout, cancel := context.WithTimeout(ctx, l.ttl)
	defer cancel()

	return fn(ctxWithTimeout)
}

func (l *redisDayLocker) acquire(ctx context.Context, key, token string) error {
	deadline := time.Now().Add(l.wait)
	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return fmt.Errorf("acquire dentist lock: %w", err)
		}
		if ok {
			return nil
		}
		if time.Now().After(deadline) {
			return ErrLockNotAcquired
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(l.retry):
		}
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

func (l *redisDayLocker) release(ctx context.Context, key, token string) error {
	_, err := unlockScript.Run(ctx, l.client, []string{key}, token).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release dentist lock: %w", err)
	}
	return nil
}

type localDayLocker struct {
	mu    sync.Mutex
	locks map[string]*localLock
}

// localLock is a one-slot semaphore shared by everyone waiting on a key.
type localLock struct {
	sem  chan struct{}
	refs int
}

// NewLocalDayLocker is an in-process Locker for single-instance deployments
// running without Redis. Keys are dropped once nobody holds or waits on them.
func NewLocalDayLocker() Locker {
	return &localDayLocker{locks: make(map[string]*localLock)}
}

func (l *localDayLocker) WithDentistDayLock(ctx context.Context, dentistID uuid.UUID, day string, fn func(ctx context.Context) error) error {
	key := lockKey(dentistID, day)
	lk := l.ref(key)
	defer l.unref(key, lk)

	select {
	case lk.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-lk.sem }()

	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(ctx)
}

func (l *localDayLocker) ref(key string) *localLock {
	l.mu.Lock()
	defer l.mu.Unlock()
	lk, ok := l.locks[key]
	if !ok {
		lk = &localLock{sem: make(chan struct{}, 1)}
		l.locks[key] = lk
	}
	lk.refs++
	return lk
}

func (l *localDayLocker) unref(key string, lk *localLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	lk.refs--
	if lk.refs == 0 {
		delete(l.locks, key)
	}
}

func (l *localDayLocker) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
