package clinic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const defaultKey = "clinic:hours:default"

// Source resolves the schedule that applies to a dentist.
type Source interface {
	ScheduleFor(ctx context.Context, dentistID uuid.UUID) (Schedule, error)
}

// Store keeps schedules in Redis. A dentist without an override uses the
// clinic default, and a clinic without one uses the fallback.
type Store struct {
	redis    *redis.Client
	fallback Schedule
}

func NewStore(client *redis.Client, fallback Schedule) *Store {
	return &Store{redis: client, fallback: fallback}
}

func dentistKey(dentistID uuid.UUID) string {
	return fmt.Sprintf("clinic:hours:dentist:%s", dentistID)
}

func (s *Store) ScheduleFor(ctx context.Context, dentistID uuid.UUID) (Schedule, error) {
	for _, key := range []string{dentistKey(dentistID), defaultKey} {
		sched, found, err := s.load(ctx, key)
		if err != nil {
			return Schedule{}, err
		}
		if found {
			return sched, nil
		}
	}
	return s.fallback, nil
}

func (s *Store) load(ctx context.Context, key string) (Schedule, bool, error) {
	data, err := s.redis.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return Schedule{}, false, nil
	}
	if err != nil {
		return Schedule{}, false, fmt.Errorf("get %s: %w", key, err)
	}

	var sched Schedule
	if err := json.Unmarshal(data, &sched); err != nil {
		return Schedule{}, false, fmt.Errorf("decode %s: %w", key, err)
	}
	return sched, true, nil
}

// Save stores a dentist-specific schedule.
func (s *Store) Save(ctx context.Context, dentistID uuid.UUID, sched Schedule) error {
	return s.save(ctx, dentistKey(dentistID), sched)
}

// SaveDefault stores the clinic-wide schedule.
func (s *Store) SaveDefault(ctx context.Context, sched Schedule) error {
	return s.save(ctx, defaultKey, sched)
}

func (s *Store) save(ctx context.Context, key string, sched Schedule) error {
	if err := sched.Validate(); err != nil {
		return err
	}
	data, err := json.Marshal(sched)
	if err != nil {
		return fmt.Errorf("encode schedule: %w", err)
	}
	if err := s.redis.Set(ctx, key, data, 0).Err(); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

// StaticSource serves one schedule for every dentist.
type StaticSource struct {
	Schedule Schedule
}

func (s StaticSource) ScheduleFor(context.Context, uuid.UUID) (Schedule, error) {
	return s.Schedule, nil
}
