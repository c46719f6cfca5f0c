package redisclient

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DailyGuard makes a job run at most once per day across worker replicas.
type DailyGuard struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewDailyGuard(client *redis.Client, prefix string, ttl time.Duration) *DailyGuard {
	if ttl <= 0 {
		ttl = 48 * time.Hour
	}
	return &DailyGuard{client: client, prefix: prefix, ttl: ttl}
}

// Claim reports whether the caller is the first to claim day.
func (g *DailyGuard) Claim(ctx context.Context, day string) (bool, error) {
	ok, err := g.client.SetNX(ctx, g.prefix+":"+day, time.Now().UTC().Format(time.RFC3339), g.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("claim %s for %s: %w", g.prefix, day, err)
	}
	return ok, nil
}

// Release gives the day back, e.g. after the job failed.
func (g *DailyGuard) Release(ctx context.Context, day string) error {
	return g.client.Del(ctx, g.prefix+":"+day).Err()
}
