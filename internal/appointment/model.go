package appointment

import (
	"time"

	"github.com/google/uuid"
)

type AppointmentStatus string

const (
	StatusScheduled       AppointmentStatus = "scheduled"
	StatusCheckedIn       AppointmentStatus = "checked_in"
	StatusCancelRequested AppointmentStatus = "cancel_requested"
	StatusCancelled       AppointmentStatus = "cancelled"
	StatusCompleted       AppointmentStatus = "completed"
)

// Blocking reports whether an appointment in this status occupies calendar time.
func (s AppointmentStatus) Blocking() bool {
	return s != StatusCancelled
}

// Upcoming reports whether the visit has not happened or been cancelled yet.
// Only upcoming appointments can be moved or answered by text.
func (s AppointmentStatus) Upcoming() bool {
	return s == StatusScheduled || s == StatusCancelRequested
}

type Patient struct {
	ID        uuid.UUID
	Name      string
	Email     *string
	Phone     *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Dentist struct {
	ID        uuid.UUID
	Name      string
	Email     *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Appointment struct {
	ID                  uuid.UUID
	DentistID           uuid.UUID
	PatientID           uuid.UUID
	ScheduledStart      time.Time
	DurationMinutes     int
	Status              AppointmentStatus
	RescheduleRequested bool
	NoShowScore         *float64 // written by the offline risk batch only
	Notes               *string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

func (a Appointment) ScheduledEnd() time.Time {
	return a.ScheduledStart.Add(time.Duration(a.DurationMinutes) * time.Minute)
}

// BlockedRange is dentist time that cannot be booked: breaks, holidays, meetings.
type BlockedRange struct {
	ID        uuid.UUID
	DentistID uuid.UUID
	Start     time.Time
	End       time.Time
	Reason    *string
	CreatedAt time.Time
}

type WaitlistEntry struct {
	ID          uuid.UUID
	PatientID   uuid.UUID
	DentistID   *uuid.UUID // nil matches any dentist
	DesiredDate string     // YYYY-MM-DD
	Notified    bool
	NotifiedAt  *time.Time
	CreatedAt   time.Time
}

// Slot is a derived bookable start time. It is never stored.
type Slot struct {
	DentistID       uuid.UUID
	Date            string // YYYY-MM-DD in the clinic zone
	Time            string // HH:MM in the clinic zone
	Start           time.Time
	DurationMinutes int
}

func (s Slot) End() time.Time {
	return s.Start.Add(time.Duration(s.DurationMinutes) * time.Minute)
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}

// NewAppointment is the insert shape for a booking.
type NewAppointment struct {
	DentistID       uuid.UUID
	PatientID       uuid.UUID
	ScheduledStart  time.Time
	DurationMinutes int
	Notes           *string
}

func (n NewAppointment) ScheduledEnd() time.Time {
	return n.ScheduledStart.Add(time.Duration(n.DurationMinutes) * time.Minute)
}

// overlaps reports whether [aStart, aEnd) and [bStart, bEnd) intersect.
func overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && bStart.Before(aEnd)
}
