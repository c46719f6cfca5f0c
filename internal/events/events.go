// Package events carries calendar change notifications to live subscribers
// such as open calendar views.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	TypeAppointmentBooked          = "appointment.booked"
	TypeAppointmentRescheduled     = "appointment.rescheduled"
	TypeAppointmentCancelled       = "appointment.cancelled"
	TypeAppointmentCancelRequested = "appointment.cancel_requested"
	TypeAppointmentStatusChanged   = "appointment.status_changed"
	TypeBlockedRangeAdded          = "blocked_range.added"
	TypeWaitlistMatched            = "waitlist.matched"
)

// ChangeEvent describes one mutation of a dentist's calendar.
type ChangeEvent struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	DentistID     string          `json:"dentist_id"`
	AppointmentID string          `json:"appointment_id,omitempty"`
	Date          string          `json:"date,omitempty"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Data          json.RawMessage `json:"data,omitempty"`
}

func NewChangeEvent(eventType string, dentistID uuid.UUID, date string, data any) ChangeEvent {
	ev := ChangeEvent{
		ID:         uuid.NewString(),
		Type:       eventType,
		DentistID:  dentistID.String(),
		Date:       date,
		OccurredAt: time.Now().UTC(),
	}
	if data != nil {
		if raw, err := json.Marshal(data); err == nil {
			ev.Data = raw
		}
	}
	return ev
}

type Publisher interface {
	Publish(ctx context.Context, ev ChangeEvent) error
}

// Subscriber streams events until ctx is done, then closes the channel.
type Subscriber interface {
	Subscribe(ctx context.Context) (<-chan ChangeEvent, error)
}

// Multi publishes to every publisher and joins their errors.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, ev ChangeEvent) error {
	var errs []error
	for _, p := range m {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LocalBus fans events out to in-process subscribers. Slow subscribers
// drop events rather than block publishers.
type LocalBus struct {
	mu     sync.RWMutex
	subs   map[chan ChangeEvent]struct{}
	buffer int
}

func NewLocalBus(buffer int) *LocalBus {
	if buffer <= 0 {
		buffer = 64
	}
	return &LocalBus{subs: make(map[chan ChangeEvent]struct{}), buffer: buffer}
}

func (b *LocalBus) Publish(_ context.Context, ev ChangeEvent) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
	return nil
}

func (b *LocalBus) Subscribe(ctx context.Context) (<-chan ChangeEvent, error) {
	ch := make(chan ChangeEvent, b.buffer)

	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subs, ch)
		b.mu.Unlock()
		close(ch)
	}()
	return ch, nil
}
