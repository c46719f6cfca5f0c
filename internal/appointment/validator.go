package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/dental-slot-booking/internal/clinic"
)

var ErrSlotUnavailable = errors.New("slot unavailable")

// MaxVisitMinutes caps a visit length and a slot step. Longer values are
// rejected before any time arithmetic can overflow.
const MaxVisitMinutes = 480

func checkVisitMinutes(minutes int) error {
	if minutes <= 0 || minutes > MaxVisitMinutes {
		return fmt.Errorf("%w: duration must be between 1 and %d minutes", ErrInvalidInput, MaxVisitMinutes)
	}
	return nil
}

type ConflictReason string

const (
	ReasonOutsideWorkingHours  ConflictReason = "outside_working_hours"
	ReasonOverlapsAppointment  ConflictReason = "overlaps_appointment"
	ReasonOverlapsBlockedRange ConflictReason = "overlaps_blocked_range"
)

// ConflictError explains why a proposal cannot be booked. It matches
// ErrSlotUnavailable with errors.Is.
type ConflictError struct {
	Reason ConflictReason
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("slot unavailable: %s", e.Reason)
}

func (e *ConflictError) Is(target error) bool {
	return target == ErrSlotUnavailable
}

// Proposal is a candidate appointment interval.
type Proposal struct {
	DentistID       uuid.UUID
	Start           time.Time
	DurationMinutes int
	// ExcludeAppointmentID skips the appointment being rescheduled.
	ExcludeAppointmentID *uuid.UUID
	// IgnoreWorkingHours is the administrative override.
	IgnoreWorkingHours bool
}

func (p Proposal) End() time.Time {
	return p.Start.Add(time.Duration(p.DurationMinutes) * time.Minute)
}

// Validator checks proposals against working hours, appointments and blocks.
// It only reads the calendar.
type Validator struct {
	repo  Repository
	hours clinic.Source
}

func NewValidator(repo Repository, hours clinic.Source) *Validator {
	return &Validator{repo: repo, hours: hours}
}

// Validate returns nil when the proposal can be booked, a *ConflictError for
// the first rule it breaks, or a storage error.
func (v *Validator) Validate(ctx context.Context, p Proposal) error {
	if err := checkVisitMinutes(p.DurationMinutes); err != nil {
		return err
	}

	start, end := p.Start, p.End()

	if !p.IgnoreWorkingHours {
		sched, err := v.hours.ScheduleFor(ctx, p.DentistID)
		if err != nil {
			return storageErr("load schedule", err)
		}
		if !withinWorkingHours(sched, start, end) {
			return &ConflictError{Reason: ReasonOutsideWorkingHours}
		}
	}

	appts, err := v.repo.ListBlockingAppointments(ctx, p.DentistID, start, end)
	if err != nil {
		return err
	}
	for _, a := range appts {
		if p.ExcludeAppointmentID != nil && a.ID == *p.ExcludeAppointmentID {
			continue
		}
		if a.Status.Blocking() && overlaps(start, end, a.ScheduledStart, a.ScheduledEnd()) {
			return &ConflictError{Reason: ReasonOverlapsAppointment}
		}
	}

	blocks, err := v.repo.ListBlockedRanges(ctx, p.DentistID, start, end)
	if err != nil {
		return err
	}
	for _, b := range blocks {
		if overlaps(start, end, b.Start, b.End) {
			return &ConflictError{Reason: ReasonOverlapsBlockedRange}
		}
	}

	return nil
}

// withinWorkingHours requires the whole interval inside one day's window.
func withinWorkingHours(sched clinic.Schedule, start, end time.Time) bool {
	open, close, ok := sched.Window(start)
	if !ok {
		return false
	}
	return !start.Before(open) && !end.After(close)
}
