package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/hackgods/dental-slot-booking/internal/clinic"
	"github.com/hackgods/dental-slot-booking/internal/config"
	"github.com/hackgods/dental-slot-booking/internal/events"
	"github.com/hackgods/dental-slot-booking/internal/logging"
	"github.com/hackgods/dental-slot-booking/internal/metrics"
	"github.com/hackgods/dental-slot-booking/internal/notify"
	redisclient "github.com/hackgods/dental-slot-booking/internal/redis"
)

var tracer = otel.Tracer("dental.internal.appointment")

const (
	EventAppointmentBooked          = "APPOINTMENT_BOOKED"
	EventAppointmentRescheduled     = "APPOINTMENT_RESCHEDULED"
	EventAppointmentCancelRequested = "APPOINTMENT_CANCEL_REQUESTED"
	EventAppointmentCancelled       = "APPOINTMENT_CANCELLED"
	EventAppointmentCheckedIn       = "APPOINTMENT_CHECKED_IN"
	EventAppointmentCompleted       = "APPOINTMENT_COMPLETED"
	EventRescheduleRequested        = "APPOINTMENT_RESCHEDULE_REQUESTED"
)

var (
	ErrInvalidInput            = errors.New("invalid input")
	ErrSlotBeingBooked         = errors.New("dentist calendar is busy, please retry")
	ErrInvalidStatusTransition = errors.New("invalid status transition")
)

// Notifier delivers a message to a patient over whatever channels they have.
type Notifier interface {
	Notify(ctx context.Context, r notify.Recipient, msg notify.Message) error
}

type Option func(*Service)

func WithPublisher(p events.Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

func WithMetrics(m *metrics.BookingMetrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Service) { s.logger = logging.OrNop(l) }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// Service is the booking coordinator. It is the only writer of appointments.
type Service struct {
	repo      Repository
	locker    redisclient.Locker
	hours     clinic.Source
	cfg       config.Config
	publisher events.Publisher
	notifier  Notifier
	metrics   *metrics.BookingMetrics
	logger    *zap.Logger
	now       func() time.Time

	validator *Validator
	engine    *Engine
	waitlist  *WaitlistMatcher

	background sync.WaitGroup
}

func NewService(repo Repository, locker redisclient.Locker, hours clinic.Source, cfg config.Config, opts ...Option) *Service {
	s := &Service{
		repo:   repo,
		locker: locker,
		hours:  hours,
		cfg:    cfg,
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.validator = NewValidator(repo, hours)
	s.engine = NewEngine(repo, hours, s.now)
	s.waitlist = NewWaitlistMatcher(repo, s.notifier, cfg.WaitlistScope, s.metrics, s.logger, s.now)
	return s
}

// Wait blocks until detached waitlist runs have finished.
func (s *Service) Wait() {
	s.background.Wait()
}

func (s *Service) Engine() *Engine {
	return s.engine
}

func (s *Service) Validator() *Validator {
	return s.validator
}

func (s *Service) Waitlist() *WaitlistMatcher {
	return s.waitlist
}

// ComputeSlots wraps the availability engine with latency metrics.
func (s *Service) ComputeSlots(ctx context.Context, q SlotQuery) ([]Slot, error) {
	ctx, span := tracer.Start(ctx, "appointment.compute_slots")
	defer span.End()
	span.SetAttributes(
		attribute.String("dental.dentist_id", q.DentistID.String()),
		attribute.String("dental.date", q.Date),
	)

	start := time.Now()
	slots, err := s.engine.ComputeSlots(ctx, q)
	s.metrics.ObserveAvailability(outcome(err), time.Since(start).Seconds())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("dental.slot_count", len(slots)))
	return slots, nil
}

type BookRequest struct {
	PatientID       uuid.UUID
	DentistID       uuid.UUID
	Start           time.Time
	DurationMinutes int
	Notes           *string
	AdminOverride   bool
}

// Book creates a scheduled appointment. Two concurrent bookings of an
// overlapping interval for the same dentist never both succeed.
func (s *Service) Book(ctx context.Context, req BookRequest) (*Appointment, error) {
	ctx, span := tracer.Start(ctx, "appointment.book")
	defer span.End()
	span.SetAttributes(
		attribute.String("dental.dentist_id", req.DentistID.String()),
		attribute.String("dental.patient_id", req.PatientID.String()),
		attribute.String("dental.start", req.Start.Format(time.RFC3339)),
	)

	appt, err := s.book(ctx, req)
	s.metrics.ObserveBooking("book", outcome(err))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	s.publish(ctx, events.TypeAppointmentBooked, appt)
	return appt, nil
}

func (s *Service) book(ctx context.Context, req BookRequest) (*Appointment, error) {
	switch {
	case req.PatientID == uuid.Nil:
		return nil, fmt.Errorf("%w: patient id is required", ErrInvalidInput)
	case req.DentistID == uuid.Nil:
		return nil, fmt.Errorf("%w: dentist id is required", ErrInvalidInput)
	case req.DurationMinutes <= 0 || req.DurationMinutes > MaxVisitMinutes:
		return nil, fmt.Errorf("%w: duration must be between 1 and %d minutes", ErrInvalidInput, MaxVisitMinutes)
	case req.Start.IsZero():
		return nil, fmt.Errorf("%w: start is required", ErrInvalidInput)
	case req.Start.Before(s.now()):
		return nil, fmt.Errorf("%w: start is in the past", ErrInvalidInput)
	}

	if _, err := s.repo.GetDentistByID(ctx, req.DentistID); err != nil {
		return nil, err
	}
	if _, err := s.repo.GetPatientByID(ctx, req.PatientID); err != nil {
		return nil, err
	}

	var created *Appointment

	err := s.withDayLock(ctx, req.DentistID, req.Start, func(lockCtx context.Context) error {
		// The store rejects overlaps on its own; validating first gives the
		// caller a precise reason.
		err := s.validator.Validate(lockCtx, Proposal{
			DentistID:          req.DentistID,
			Start:              req.Start,
			DurationMinutes:    req.DurationMinutes,
			IgnoreWorkingHours: req.AdminOverride,
		})
		if err != nil {
			return err
		}

		appt, err := s.repo.InsertAppointment(lockCtx, NewAppointment{
			DentistID:       req.DentistID,
			PatientID:       req.PatientID,
			ScheduledStart:  req.Start,
			DurationMinutes: req.DurationMinutes,
			Notes:           req.Notes,
		})
		if err != nil {
			return err
		}
		created = appt

		s.logEvent(lockCtx, appt.ID, EventAppointmentBooked, map[string]any{
			"dentist_id":       req.DentistID.String(),
			"patient_id":       req.PatientID.String(),
			"scheduled_start":  req.Start,
			"duration_minutes": req.DurationMinutes,
			"admin_override":   req.AdminOverride,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	return created, nil
}

type RescheduleRequest struct {
	Start           time.Time
	DurationMinutes int // zero keeps the current duration
	AdminOverride   bool
}

// Reschedule moves an appointment in place, keeping its identity. The
// appointment never conflicts with its own current interval.
func (s *Service) Reschedule(ctx context.Context, id uuid.UUID, req RescheduleRequest) (*Appointment, error) {
	ctx, span := tracer.Start(ctx, "appointment.reschedule")
	defer span.End()
	span.SetAttributes(attribute.String("dental.appointment_id", id.String()))

	moved, previous, err := s.reschedule(ctx, id, req)
	s.metrics.ObserveBooking("reschedule", outcome(err))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	s.publish(ctx, events.TypeAppointmentRescheduled, moved)
	if freedAt, ok := firstFreed(previous.ScheduledStart, previous.ScheduledEnd(), moved.ScheduledStart, moved.ScheduledEnd()); ok {
		s.matchFreedSlot(ctx, previous.DentistID, previous.ID, freedAt)
	}
	return moved, nil
}

// firstFreed returns the earliest instant of the old interval that the new
// one no longer covers. ok is false when nothing was freed.
func firstFreed(oldStart, oldEnd, newStart, newEnd time.Time) (time.Time, bool) {
	if oldStart.Before(newStart) {
		return oldStart, true
	}
	// oldStart is covered, so any freed time lies after newEnd
	if newEnd.Before(oldEnd) {
		if newEnd.Before(oldStart) {
			return oldStart, true
		}
		return newEnd, true
	}
	return time.Time{}, false
}

func (s *Service) reschedule(ctx context.Context, id uuid.UUID, req RescheduleRequest) (*Appointment, *Appointment, error) {
	if req.Start.IsZero() {
		return nil, nil, fmt.Errorf("%w: start is required", ErrInvalidInput)
	}
	if req.DurationMinutes < 0 || req.DurationMinutes > MaxVisitMinutes {
		return nil, nil, fmt.Errorf("%w: duration must be between 1 and %d minutes", ErrInvalidInput, MaxVisitMinutes)
	}
	if req.Start.Before(s.now()) {
		return nil, nil, fmt.Errorf("%w: start is in the past", ErrInvalidInput)
	}

	current, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if !current.Status.Upcoming() {
		return nil, nil, fmt.Errorf("%w: cannot reschedule a %s appointment", ErrInvalidStatusTransition, current.Status)
	}

	duration := req.DurationMinutes
	if duration == 0 {
		duration = current.DurationMinutes
	}

	var moved *Appointment
	err = s.withDayLock(ctx, current.DentistID, req.Start, func(lockCtx context.Context) error {
		err := s.validator.Validate(lockCtx, Proposal{
			DentistID:            current.DentistID,
			Start:                req.Start,
			DurationMinutes:      duration,
			ExcludeAppointmentID: &current.ID,
			IgnoreWorkingHours:   req.AdminOverride,
		})
		if err != nil {
			return err
		}

		appt, err := s.repo.MoveAppointment(lockCtx, current.ID, req.Start, duration)
		if errors.Is(err, ErrAppointmentNotFound) {
			return fmt.Errorf("%w: status changed concurrently", ErrInvalidStatusTransition)
		}
		if err != nil {
			return err
		}
		moved = appt

		s.logEvent(lockCtx, appt.ID, EventAppointmentRescheduled, map[string]any{
			"from":             current.ScheduledStart,
			"to":               req.Start,
			"duration_minutes": duration,
		})
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	return moved, current, nil
}

// Cancel is idempotent. A patient request only flags the appointment as
// cancel_requested; staff cancellation (or confirming a request) frees the
// slot and offers it to the waitlist in the background.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID, requestedByPatient bool) (*Appointment, error) {
	ctx, span := tracer.Start(ctx, "appointment.cancel")
	defer span.End()
	span.SetAttributes(
		attribute.String("dental.appointment_id", id.String()),
		attribute.Bool("dental.requested_by_patient", requestedByPatient),
	)

	appt, freed, err := s.cancel(ctx, id, requestedByPatient)
	s.metrics.ObserveBooking("cancel", outcome(err))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	if freed {
		s.publish(ctx, events.TypeAppointmentCancelled, appt)
		s.matchFreedSlot(ctx, appt.DentistID, appt.ID, appt.ScheduledStart)
	}
	return appt, nil
}

func (s *Service) cancel(ctx context.Context, id uuid.UUID, requestedByPatient bool) (*Appointment, bool, error) {
	for attempt := 0; attempt < 3; attempt++ {
		current, err := s.repo.GetAppointmentByID(ctx, id)
		if err != nil {
			return nil, false, err
		}

		var to AppointmentStatus
		switch current.Status {
		case StatusCancelled:
			return current, false, nil
		case StatusCancelRequested:
			if requestedByPatient {
				return current, false, nil
			}
			to = StatusCancelled
		case StatusScheduled:
			to = StatusCancelled
			if requestedByPatient {
				to = StatusCancelRequested
			}
		default:
			return nil, false, fmt.Errorf("%w: cannot cancel a %s appointment", ErrInvalidStatusTransition, current.Status)
		}

		updated, err := s.repo.UpdateAppointmentStatus(ctx, id, current.Status, to)
		if errors.Is(err, ErrAppointmentNotFound) {
			// status changed underneath us; re-read and decide again
			continue
		}
		if err != nil {
			return nil, false, err
		}

		if to == StatusCancelRequested {
			s.logEvent(ctx, id, EventAppointmentCancelRequested, map[string]any{"requested_by": "patient"})
			s.publish(ctx, events.TypeAppointmentCancelRequested, updated)
			return updated, false, nil
		}

		s.logEvent(ctx, id, EventAppointmentCancelled, map[string]any{
			"previous_status": current.Status,
			"scheduled_start": current.ScheduledStart,
		})
		return updated, true, nil
	}

	return nil, false, fmt.Errorf("%w: appointment %s kept changing during cancel", ErrStorage, id)
}

// CheckIn marks a scheduled patient as arrived.
func (s *Service) CheckIn(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.transition(ctx, id, EventAppointmentCheckedIn, StatusCheckedIn, StatusScheduled, StatusCancelRequested)
}

// Complete closes a checked-in visit.
func (s *Service) Complete(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.transition(ctx, id, EventAppointmentCompleted, StatusCompleted, StatusCheckedIn)
}

func (s *Service) transition(ctx context.Context, id uuid.UUID, eventType string, to AppointmentStatus, allowed ...AppointmentStatus) (*Appointment, error) {
	current, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Status == to {
		return current, nil
	}

	ok := false
	for _, from := range allowed {
		if current.Status == from {
			ok = true
			break
		}
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s to %s", ErrInvalidStatusTransition, current.Status, to)
	}

	updated, err := s.repo.UpdateAppointmentStatus(ctx, id, current.Status, to)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, fmt.Errorf("%w: status changed concurrently", ErrInvalidStatusTransition)
		}
		return nil, err
	}

	s.logEvent(ctx, id, eventType, map[string]any{"from": current.Status, "to": to})
	s.publish(ctx, events.TypeAppointmentStatusChanged, updated)
	return updated, nil
}

// RequestReschedule flags an appointment for staff follow-up.
func (s *Service) RequestReschedule(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	current, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, err
	}
	switch current.Status {
	case StatusScheduled, StatusCancelRequested:
	default:
		return nil, fmt.Errorf("%w: cannot reschedule a %s appointment", ErrInvalidStatusTransition, current.Status)
	}
	if current.RescheduleRequested {
		return current, nil
	}

	updated, err := s.repo.SetRescheduleRequested(ctx, id, true)
	if err != nil {
		return nil, err
	}
	s.logEvent(ctx, id, EventRescheduleRequested, map[string]any{})
	s.publish(ctx, events.TypeAppointmentStatusChanged, updated)
	return updated, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.repo.GetAppointmentByID(ctx, id)
}

// ListDay returns the dentist's non-cancelled appointments on a clinic date.
func (s *Service) ListDay(ctx context.Context, dentistID uuid.UUID, date string) ([]Appointment, error) {
	sched, err := s.hours.ScheduleFor(ctx, dentistID)
	if err != nil {
		return nil, storageErr("load schedule", err)
	}
	day, err := sched.ParseDate(date)
	if err != nil {
		return nil, fmt.Errorf("%w: date must be YYYY-MM-DD", ErrInvalidInput)
	}
	return s.repo.ListBlockingAppointments(ctx, dentistID, day, day.AddDate(0, 0, 1))
}

// AddBlockedRange reserves dentist time. Existing appointments are left alone.
func (s *Service) AddBlockedRange(ctx context.Context, br BlockedRange) (*BlockedRange, error) {
	if br.DentistID == uuid.Nil {
		return nil, fmt.Errorf("%w: dentist id is required", ErrInvalidInput)
	}
	if !br.End.After(br.Start) {
		return nil, fmt.Errorf("%w: blocked range must end after it starts", ErrInvalidInput)
	}
	if _, err := s.repo.GetDentistByID(ctx, br.DentistID); err != nil {
		return nil, err
	}

	created, err := s.repo.InsertBlockedRange(ctx, br)
	if err != nil {
		return nil, err
	}

	date := created.Start.In(s.cfg.Location()).Format(clinic.DateLayout)
	s.publishEvent(ctx, events.NewChangeEvent(events.TypeBlockedRangeAdded, created.DentistID, date, map[string]any{
		"id":    created.ID,
		"start": created.Start,
		"end":   created.End,
	}))
	return created, nil
}

func (s *Service) withDayLock(ctx context.Context, dentistID uuid.UUID, start time.Time, fn func(context.Context) error) error {
	day := start.In(s.cfg.Location()).Format(clinic.DateLayout)
	err := s.locker.WithDentistDayLock(ctx, dentistID, day, fn)
	if errors.Is(err, redisclient.ErrLockNotAcquired) {
		return ErrSlotBeingBooked
	}
	return err
}

// matchFreedSlot offers time freed at freedAt to the waitlist without holding
// up the caller. Failures are logged only.
func (s *Service) matchFreedSlot(ctx context.Context, dentistID, appointmentID uuid.UUID, freedAt time.Time) {
	if s.waitlist == nil {
		return
	}

	local := freedAt.In(s.cfg.Location())
	date := local.Format(clinic.DateLayout)
	clock := local.Format(clinic.ClockLayout)

	timeout := s.cfg.NotifyTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	detached := context.WithoutCancel(ctx)

	s.background.Add(1)
	go func() {
		defer s.background.Done()

		runCtx, cancel := context.WithTimeout(detached, timeout)
		defer cancel()

		entry, err := s.waitlist.MatchFreedSlot(runCtx, dentistID, date, clock)
		if err != nil {
			s.logger.Warn("waitlist match failed",
				zap.String("appointment_id", appointmentID.String()),
				zap.String("date", date),
				zap.Error(err),
			)
			return
		}
		if entry != nil {
			s.publishEvent(runCtx, events.NewChangeEvent(events.TypeWaitlistMatched, dentistID, date, map[string]any{
				"waitlist_id": entry.ID,
				"patient_id":  entry.PatientID,
				"time":        clock,
			}))
		}
	}()
}

func (s *Service) publish(ctx context.Context, eventType string, a *Appointment) {
	date := a.ScheduledStart.In(s.cfg.Location()).Format(clinic.DateLayout)
	ev := events.NewChangeEvent(eventType, a.DentistID, date, map[string]any{
		"status":           a.Status,
		"scheduled_start":  a.ScheduledStart,
		"duration_minutes": a.DurationMinutes,
	})
	ev.AppointmentID = a.ID.String()
	s.publishEvent(ctx, ev)
}

func (s *Service) publishEvent(ctx context.Context, ev events.ChangeEvent) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, ev); err != nil {
		s.logger.Warn("publish change event failed", zap.String("type", ev.Type), zap.Error(err))
	}
}

func (s *Service) logEvent(ctx context.Context, appointmentID uuid.UUID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.Warn("failed to marshal event payload", zap.String("event_type", eventType), zap.Error(err))
		data = nil
	}

	apptID := appointmentID

	ev := EventLog{
		EventType:     eventType,
		AppointmentID: &apptID,
		Payload:       data,
		CreatedAt:     s.now(),
	}

	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		s.logger.Warn("failed to insert event log",
			zap.String("event_type", eventType),
			zap.String("appointment_id", appointmentID.String()),
			zap.Error(err),
		)
	}
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrSlotUnavailable):
		return "slot_unavailable"
	case errors.Is(err, ErrSlotBeingBooked):
		return "lock_timeout"
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidStatusTransition):
		return "invalid_transition"
	default:
		return "error"
	}
}
