package appointment

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/dental-slot-booking/internal/clinic"
	"github.com/hackgods/dental-slot-booking/internal/events"
	redisclient "github.com/hackgods/dental-slot-booking/internal/redis"
)

func TestBookCreatesScheduledAppointment(t *testing.T) {
	f := newFixture(t)

	appt := f.book(t, "10:00", 30)

	assert.Equal(t, StatusScheduled, appt.Status)
	assert.Equal(t, at(testDate, "10:30"), appt.ScheduledEnd())
	assert.Nil(t, appt.NoShowScore)

	evs := f.repo.Events()
	require.Len(t, evs, 1)
	assert.Equal(t, EventAppointmentBooked, evs[0].EventType)
}

func TestBookFitsExactlyBeforeClose(t *testing.T) {
	f := newFixture(t)

	appt := f.book(t, "16:45", 15)
	assert.Equal(t, at(testDate, "17:00"), appt.ScheduledEnd())
}

func TestBookRejectsInvalidInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name string
		req  BookRequest
	}{
		{name: "missing patient", req: BookRequest{DentistID: f.dentist.ID, Start: at(testDate, "10:00"), DurationMinutes: 30}},
		{name: "missing dentist", req: BookRequest{PatientID: f.patient.ID, Start: at(testDate, "10:00"), DurationMinutes: 30}},
		{name: "zero duration", req: BookRequest{PatientID: f.patient.ID, DentistID: f.dentist.ID, Start: at(testDate, "10:00")}},
		{name: "longer than a working day", req: BookRequest{PatientID: f.patient.ID, DentistID: f.dentist.ID, Start: at(testDate, "10:00"), DurationMinutes: MaxVisitMinutes + 1, AdminOverride: true}},
		{name: "overflowing duration", req: BookRequest{PatientID: f.patient.ID, DentistID: f.dentist.ID, Start: at(testDate, "10:00"), DurationMinutes: 200000000, AdminOverride: true}},
		{name: "in the past", req: BookRequest{PatientID: f.patient.ID, DentistID: f.dentist.ID, Start: at("2030-01-06", "10:00"), DurationMinutes: 30}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Book(ctx, tt.req)
			assert.ErrorIs(t, err, ErrInvalidInput)
		})
	}
	assert.Empty(t, f.repo.Events())
}

func TestBookUnknownParties(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Book(ctx, BookRequest{PatientID: f.patient.ID, DentistID: uuid.New(), Start: at(testDate, "10:00"), DurationMinutes: 30})
	assert.ErrorIs(t, err, ErrDentistNotFound)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.svc.Book(ctx, BookRequest{PatientID: uuid.New(), DentistID: f.dentist.ID, Start: at(testDate, "10:00"), DurationMinutes: 30})
	assert.ErrorIs(t, err, ErrPatientNotFound)
}

func TestBookConflictIsSlotUnavailable(t *testing.T) {
	f := newFixture(t)
	f.book(t, "10:00", 30)

	_, err := f.svc.Book(context.Background(), BookRequest{
		PatientID: f.patient.ID, DentistID: f.dentist.ID, Start: at(testDate, "10:15"), DurationMinutes: 30,
	})
	assert.ErrorIs(t, err, ErrSlotUnavailable)
	assert.False(t, errors.Is(err, ErrStorage))
}

func TestBookAdminOverrideOutsideHours(t *testing.T) {
	f := newFixture(t)

	appt, err := f.svc.Book(context.Background(), BookRequest{
		PatientID: f.patient.ID, DentistID: f.dentist.ID, Start: at(testDate, "18:00"), DurationMinutes: 30, AdminOverride: true,
	})
	require.NoError(t, err)
	assert.Equal(t, at(testDate, "18:00"), appt.ScheduledStart)
}

func concurrentBook(t *testing.T, svc *Service, req BookRequest, n int) (created []*Appointment, errs []error) {
	t.Helper()

	var mu sync.Mutex
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			appt, err := svc.Book(context.Background(), req)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			created = append(created, appt)
		}()
	}
	close(start)
	wg.Wait()
	return created, errs
}

func TestConcurrentBookingsOneWins(t *testing.T) {
	f := newFixture(t)
	req := BookRequest{PatientID: f.patient.ID, DentistID: f.dentist.ID, Start: at(testDate, "14:00"), DurationMinutes: 30}

	created, errs := concurrentBook(t, f.svc, req, 2)
	require.Len(t, created, 1)
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], ErrSlotUnavailable)
}

func TestConcurrentBookingsRedisLock(t *testing.T) {
	f := newFixture(t)
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	locker := redisclient.NewRedisDayLocker(client, 5*time.Second, 5*time.Second)
	svc := NewService(f.repo, locker, clinic.StaticSource{Schedule: f.schedule}, f.cfg, WithClock(fixedClock))

	req := BookRequest{PatientID: f.patient.ID, DentistID: f.dentist.ID, Start: at(testDate, "14:00"), DurationMinutes: 30}
	created, errs := concurrentBook(t, svc, req, 6)

	require.Len(t, created, 1)
	require.Len(t, errs, 5)
	for _, err := range errs {
		assert.ErrorIs(t, err, ErrSlotUnavailable)
	}
}

// noLocker skips the lock so only the store guards against double-booking.
type noLocker struct{}

func (noLocker) WithDentistDayLock(ctx context.Context, _ uuid.UUID, _ string, fn func(context.Context) error) error {
	return fn(ctx)
}

func TestStoreGuardsWithoutLock(t *testing.T) {
	f := newFixture(t)
	svc := NewService(f.repo, noLocker{}, clinic.StaticSource{Schedule: f.schedule}, f.cfg, WithClock(fixedClock))

	req := BookRequest{PatientID: f.patient.ID, DentistID: f.dentist.ID, Start: at(testDate, "14:00"), DurationMinutes: 30}
	created, errs := concurrentBook(t, svc, req, 16)

	require.Len(t, created, 1)
	for _, err := range errs {
		assert.ErrorIs(t, err, ErrSlotUnavailable)
	}
}

type contendedLocker struct{}

func (contendedLocker) WithDentistDayLock(context.Context, uuid.UUID, string, func(context.Context) error) error {
	return redisclient.ErrLockNotAcquired
}

func TestBookLockTimeout(t *testing.T) {
	f := newFixture(t)
	svc := NewService(f.repo, contendedLocker{}, clinic.StaticSource{Schedule: f.schedule}, f.cfg, WithClock(fixedClock))

	_, err := svc.Book(context.Background(), BookRequest{PatientID: f.patient.ID, DentistID: f.dentist.ID, Start: at(testDate, "14:00"), DurationMinutes: 30})
	assert.ErrorIs(t, err, ErrSlotBeingBooked)
}

func TestRescheduleExcludesItself(t *testing.T) {
	f := newFixture(t)
	appt := f.book(t, "10:00", 30)

	moved, err := f.svc.Reschedule(context.Background(), appt.ID, RescheduleRequest{Start: at(testDate, "10:15")})
	require.NoError(t, err)
	f.svc.Wait()

	assert.Equal(t, appt.ID, moved.ID)
	assert.Equal(t, at(testDate, "10:15"), moved.ScheduledStart)
	assert.Equal(t, 30, moved.DurationMinutes)
}

func TestRescheduleRejectsOversizedDuration(t *testing.T) {
	f := newFixture(t)
	appt := f.book(t, "10:00", 30)

	_, err := f.svc.Reschedule(context.Background(), appt.ID, RescheduleRequest{Start: at(testDate, "10:00"), DurationMinutes: 200000000, AdminOverride: true})
	assert.ErrorIs(t, err, ErrInvalidInput)

	unchanged, err := f.svc.Get(context.Background(), appt.ID)
	require.NoError(t, err)
	assert.Equal(t, 30, unchanged.DurationMinutes)
}

// checkInDuringMove checks the appointment in just before the move lands.
type checkInDuringMove struct {
	*MemRepository
}

func (r checkInDuringMove) MoveAppointment(ctx context.Context, id uuid.UUID, start time.Time, durationMinutes int) (*Appointment, error) {
	if _, err := r.UpdateAppointmentStatus(ctx, id, StatusScheduled, StatusCheckedIn); err != nil {
		return nil, err
	}
	return r.MemRepository.MoveAppointment(ctx, id, start, durationMinutes)
}

func TestRescheduleLosesToConcurrentCheckIn(t *testing.T) {
	f := newFixture(t)
	appt := f.book(t, "10:00", 30)
	svc := NewService(checkInDuringMove{f.repo}, redisclient.NewLocalDayLocker(), clinic.StaticSource{Schedule: f.schedule}, f.cfg,
		WithNotifier(f.notifier),
		WithClock(fixedClock),
	)

	_, err := svc.Reschedule(context.Background(), appt.ID, RescheduleRequest{Start: at(testDate, "14:00")})
	assert.ErrorIs(t, err, ErrInvalidStatusTransition)
	svc.Wait()

	got, err := f.svc.Get(context.Background(), appt.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCheckedIn, got.Status)
	assert.Equal(t, at(testDate, "10:00"), got.ScheduledStart)
}

func TestRescheduleConflict(t *testing.T) {
	f := newFixture(t)
	first := f.book(t, "10:00", 30)
	f.book(t, "11:00", 30)

	_, err := f.svc.Reschedule(context.Background(), first.ID, RescheduleRequest{Start: at(testDate, "11:15")})
	assert.ErrorIs(t, err, ErrSlotUnavailable)

	unchanged, err := f.svc.Get(context.Background(), first.ID)
	require.NoError(t, err)
	assert.Equal(t, at(testDate, "10:00"), unchanged.ScheduledStart)
}

func TestRescheduleClearsRequestFlag(t *testing.T) {
	f := newFixture(t)
	appt := f.book(t, "10:00", 30)
	_, err := f.svc.RequestReschedule(context.Background(), appt.ID)
	require.NoError(t, err)

	moved, err := f.svc.Reschedule(context.Background(), appt.ID, RescheduleRequest{Start: at("2030-01-08", "09:00"), DurationMinutes: 45})
	require.NoError(t, err)
	f.svc.Wait()

	assert.False(t, moved.RescheduleRequested)
	assert.Equal(t, 45, moved.DurationMinutes)
}

func TestRescheduleCancelledIsRejected(t *testing.T) {
	f := newFixture(t)
	appt := f.book(t, "10:00", 30)
	_, err := f.svc.Cancel(context.Background(), appt.ID, false)
	require.NoError(t, err)
	f.svc.Wait()

	_, err = f.svc.Reschedule(context.Background(), appt.ID, RescheduleRequest{Start: at(testDate, "11:00")})
	assert.ErrorIs(t, err, ErrInvalidStatusTransition)

	_, err = f.svc.Reschedule(context.Background(), uuid.New(), RescheduleRequest{Start: at(testDate, "11:00")})
	assert.ErrorIs(t, err, ErrAppointmentNotFound)
}

func TestCancelIsIdempotent(t *testing.T) {
	f := newFixture(t)
	appt := f.book(t, "10:00", 30)
	ctx := context.Background()

	first, err := f.svc.Cancel(ctx, appt.ID, false)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, first.Status)

	second, err := f.svc.Cancel(ctx, appt.ID, false)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, second.Status)
	f.svc.Wait()

	cancelled := 0
	for _, ev := range f.repo.Events() {
		if ev.EventType == EventAppointmentCancelled {
			cancelled++
		}
	}
	assert.Equal(t, 1, cancelled)
}

func TestPatientCancelOnlyRequests(t *testing.T) {
	f := newFixture(t)
	appt := f.book(t, "10:00", 30)
	ctx := context.Background()

	_, err := f.svc.Waitlist().AddEntry(ctx, f.addPatient(t, "waiting").ID, nil, testDate)
	require.NoError(t, err)

	requested, err := f.svc.Cancel(ctx, appt.ID, true)
	require.NoError(t, err)
	f.svc.Wait()
	assert.Equal(t, StatusCancelRequested, requested.Status)
	assert.Empty(t, f.notifier.recipients(), "a request must not free the slot")

	// the slot is still held
	_, err = f.svc.Book(ctx, BookRequest{PatientID: f.patient.ID, DentistID: f.dentist.ID, Start: at(testDate, "10:00"), DurationMinutes: 30})
	assert.ErrorIs(t, err, ErrSlotUnavailable)

	confirmed, err := f.svc.Cancel(ctx, appt.ID, false)
	require.NoError(t, err)
	f.svc.Wait()
	assert.Equal(t, StatusCancelled, confirmed.Status)
	assert.Len(t, f.notifier.recipients(), 1)
}

func TestCancelCompletedIsRejected(t *testing.T) {
	f := newFixture(t)
	appt := f.book(t, "10:00", 30)
	ctx := context.Background()

	_, err := f.svc.CheckIn(ctx, appt.ID)
	require.NoError(t, err)
	_, err = f.svc.Complete(ctx, appt.ID)
	require.NoError(t, err)

	_, err = f.svc.Cancel(ctx, appt.ID, false)
	assert.ErrorIs(t, err, ErrInvalidStatusTransition)

	_, err = f.svc.Cancel(ctx, uuid.New(), false)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStatusTransitions(t *testing.T) {
	f := newFixture(t)
	appt := f.book(t, "10:00", 30)
	ctx := context.Background()

	_, err := f.svc.Complete(ctx, appt.ID)
	assert.ErrorIs(t, err, ErrInvalidStatusTransition)

	checkedIn, err := f.svc.CheckIn(ctx, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCheckedIn, checkedIn.Status)

	again, err := f.svc.CheckIn(ctx, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCheckedIn, again.Status)

	done, err := f.svc.Complete(ctx, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, done.Status)

	_, err = f.svc.RequestReschedule(ctx, appt.ID)
	assert.ErrorIs(t, err, ErrInvalidStatusTransition)
}

func TestAddBlockedRange(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.AddBlockedRange(ctx, BlockedRange{DentistID: f.dentist.ID, Start: at(testDate, "13:00"), End: at(testDate, "12:00")})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = f.svc.AddBlockedRange(ctx, BlockedRange{DentistID: uuid.New(), Start: at(testDate, "12:00"), End: at(testDate, "13:00")})
	assert.ErrorIs(t, err, ErrDentistNotFound)

	br, err := f.svc.AddBlockedRange(ctx, BlockedRange{DentistID: f.dentist.ID, Start: at(testDate, "12:00"), End: at(testDate, "13:00"), Reason: strPtr("lunch")})
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, br.ID)

	_, err = f.svc.Book(ctx, BookRequest{PatientID: f.patient.ID, DentistID: f.dentist.ID, Start: at(testDate, "12:30"), DurationMinutes: 15})
	assert.ErrorIs(t, err, ErrSlotUnavailable)
}

func TestListDay(t *testing.T) {
	f := newFixture(t)
	f.book(t, "11:00", 30)
	f.book(t, "09:00", 30)
	cancelled := f.book(t, "15:00", 30)
	_, err := f.svc.Cancel(context.Background(), cancelled.ID, false)
	require.NoError(t, err)
	f.svc.Wait()

	day, err := f.svc.ListDay(context.Background(), f.dentist.ID, testDate)
	require.NoError(t, err)
	require.Len(t, day, 2)
	assert.Equal(t, at(testDate, "09:00"), day[0].ScheduledStart)
}

func TestServicePublishesChanges(t *testing.T) {
	f := newFixture(t)
	bus := events.NewLocalBus(16)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sub, err := bus.Subscribe(ctx)
	require.NoError(t, err)

	svc := NewService(f.repo, redisclient.NewLocalDayLocker(), clinic.StaticSource{Schedule: f.schedule}, f.cfg,
		WithClock(fixedClock), WithPublisher(bus))

	appt, err := svc.Book(context.Background(), BookRequest{PatientID: f.patient.ID, DentistID: f.dentist.ID, Start: at(testDate, "10:00"), DurationMinutes: 30})
	require.NoError(t, err)

	select {
	case ev := <-sub:
		assert.Equal(t, events.TypeAppointmentBooked, ev.Type)
		assert.Equal(t, appt.ID.String(), ev.AppointmentID)
		assert.Equal(t, testDate, ev.Date)
	case <-time.After(2 * time.Second):
		t.Fatal("no change event published")
	}
}
