package appointment

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrPatientNotFound     = notFound("patient not found")
	ErrDentistNotFound     = notFound("dentist not found")
	ErrAppointmentNotFound = notFound("appointment not found")

	// ErrStorage wraps any failure talking to the calendar store.
	ErrStorage = errors.New("calendar store failure")
)

type notFoundError struct{ msg string }

func notFound(msg string) error { return &notFoundError{msg: msg} }

func (e *notFoundError) Error() string        { return e.msg }
func (e *notFoundError) Is(target error) bool { return target == ErrNotFound }

// WaitlistFilter narrows which waitlist entries may claim a freed slot.
// A nil DentistID matches entries for any dentist.
type WaitlistFilter struct {
	Date      string
	DentistID *uuid.UUID
}

// Repository contains all calendar store interactions.
type Repository interface {
	GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	GetPatientByPhone(ctx context.Context, phone string) (*Patient, error)
	GetDentistByID(ctx context.Context, id uuid.UUID) (*Dentist, error)

	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	// ListBlockingAppointments returns non-cancelled appointments of the
	// dentist whose interval overlaps [from, to), ordered by start.
	ListBlockingAppointments(ctx context.Context, dentistID uuid.UUID, from, to time.Time) ([]Appointment, error)
	ListBlockedRanges(ctx context.Context, dentistID uuid.UUID, from, to time.Time) ([]BlockedRange, error)
	ListAppointmentsByStatus(ctx context.Context, from, to time.Time, status AppointmentStatus) ([]Appointment, error)
	ListPatientAppointments(ctx context.Context, patientID uuid.UUID, limit int) ([]Appointment, error)
	// NextPatientAppointment returns the earliest scheduled or cancel_requested
	// appointment starting at or after from, or nil when there is none.
	NextPatientAppointment(ctx context.Context, patientID uuid.UUID, from time.Time) (*Appointment, error)

	// InsertAppointment must reject a row overlapping another non-cancelled
	// appointment of the same dentist with ErrSlotUnavailable.
	InsertAppointment(ctx context.Context, in NewAppointment) (*Appointment, error)
	// MoveAppointment updates start and duration in place under the same
	// overlap guarantee as InsertAppointment. Only upcoming appointments move;
	// any other status yields ErrAppointmentNotFound.
	MoveAppointment(ctx context.Context, id uuid.UUID, start time.Time, durationMinutes int) (*Appointment, error)
	// UpdateAppointmentStatus is a compare-and-set on the current status.
	UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to AppointmentStatus) (*Appointment, error)
	SetRescheduleRequested(ctx context.Context, id uuid.UUID, requested bool) (*Appointment, error)

	InsertBlockedRange(ctx context.Context, br BlockedRange) (*BlockedRange, error)

	InsertWaitlistEntry(ctx context.Context, entry WaitlistEntry) (*WaitlistEntry, error)
	ListWaitlist(ctx context.Context, date string) ([]WaitlistEntry, error)
	// ClaimWaitlistEntry atomically marks the oldest matching non-notified
	// entry as notified and returns it. It returns nil, nil when none match.
	ClaimWaitlistEntry(ctx context.Context, filter WaitlistFilter, now time.Time) (*WaitlistEntry, error)

	InsertEvent(ctx context.Context, ev EventLog) error
}
