package appointment

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemRepositoryInsertRejectsOverlap(t *testing.T) {
	repo := NewMemRepository()
	dentist := uuid.New()
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	ok, conflicts := 0, 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(offset int) {
			defer wg.Done()
			_, err := repo.InsertAppointment(ctx, NewAppointment{
				DentistID:       dentist,
				PatientID:       uuid.New(),
				ScheduledStart:  at(testDate, "10:00").Add(time.Duration(offset%3*10) * time.Minute),
				DurationMinutes: 30,
			})
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				assert.ErrorIs(t, err, ErrSlotUnavailable)
				conflicts++
				return
			}
			ok++
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, ok)
	assert.Equal(t, 19, conflicts)
}

func TestMemRepositoryCancelledDoesNotBlock(t *testing.T) {
	repo := NewMemRepository()
	ctx := context.Background()
	dentist := uuid.New()

	a, err := repo.InsertAppointment(ctx, NewAppointment{DentistID: dentist, PatientID: uuid.New(), ScheduledStart: at(testDate, "10:00"), DurationMinutes: 30})
	require.NoError(t, err)

	_, err = repo.UpdateAppointmentStatus(ctx, a.ID, StatusCheckedIn, StatusCompleted)
	assert.ErrorIs(t, err, ErrAppointmentNotFound, "stale from status")

	_, err = repo.UpdateAppointmentStatus(ctx, a.ID, StatusScheduled, StatusCancelled)
	require.NoError(t, err)

	b, err := repo.InsertAppointment(ctx, NewAppointment{DentistID: dentist, PatientID: uuid.New(), ScheduledStart: at(testDate, "10:00"), DurationMinutes: 30})
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, b.ID)

	// a cancelled appointment cannot move
	_, err = repo.MoveAppointment(ctx, a.ID, at(testDate, "12:00"), 30)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemRepositoryMoveOnlyUpcoming(t *testing.T) {
	repo := NewMemRepository()
	ctx := context.Background()
	dentist := uuid.New()

	for _, path := range [][]AppointmentStatus{
		{StatusScheduled, StatusCheckedIn},
		{StatusScheduled, StatusCheckedIn, StatusCompleted},
	} {
		status := path[len(path)-1]
		t.Run(string(status), func(t *testing.T) {
			a, err := repo.InsertAppointment(ctx, NewAppointment{DentistID: dentist, PatientID: uuid.New(), ScheduledStart: at(testDate, "10:00"), DurationMinutes: 30})
			require.NoError(t, err)
			for i := 1; i < len(path); i++ {
				_, err = repo.UpdateAppointmentStatus(ctx, a.ID, path[i-1], path[i])
				require.NoError(t, err)
			}

			_, err = repo.MoveAppointment(ctx, a.ID, at(testDate, "12:00"), 30)
			assert.ErrorIs(t, err, ErrAppointmentNotFound)

			got, err := repo.GetAppointmentByID(ctx, a.ID)
			require.NoError(t, err)
			assert.Equal(t, at(testDate, "10:00"), got.ScheduledStart)

			// free 10:00 for the next case
			_, err = repo.UpdateAppointmentStatus(ctx, a.ID, status, StatusCancelled)
			require.NoError(t, err)
		})
	}

	requested, err := repo.InsertAppointment(ctx, NewAppointment{DentistID: dentist, PatientID: uuid.New(), ScheduledStart: at(testDate, "10:00"), DurationMinutes: 30})
	require.NoError(t, err)
	_, err = repo.UpdateAppointmentStatus(ctx, requested.ID, StatusScheduled, StatusCancelRequested)
	require.NoError(t, err)

	moved, err := repo.MoveAppointment(ctx, requested.ID, at(testDate, "12:00"), 30)
	require.NoError(t, err)
	assert.Equal(t, at(testDate, "12:00"), moved.ScheduledStart)
}

func TestMemRepositoryNextPatientAppointment(t *testing.T) {
	repo := NewMemRepository()
	ctx := context.Background()
	patient := uuid.New()
	from := at(testDate, "09:00")

	insert := func(dentist uuid.UUID, start time.Time) *Appointment {
		a, err := repo.InsertAppointment(ctx, NewAppointment{DentistID: dentist, PatientID: patient, ScheduledStart: start, DurationMinutes: 30})
		require.NoError(t, err)
		return a
	}

	none, err := repo.NextPatientAppointment(ctx, patient, from)
	require.NoError(t, err)
	assert.Nil(t, none)

	past := insert(uuid.New(), from.Add(-time.Hour))
	cancelled := insert(uuid.New(), from.Add(30*time.Minute))
	_, err = repo.UpdateAppointmentStatus(ctx, cancelled.ID, StatusScheduled, StatusCancelled)
	require.NoError(t, err)
	for day := 1; day <= 25; day++ {
		insert(uuid.New(), from.AddDate(0, 0, day))
	}
	later := insert(uuid.New(), from.Add(2*time.Hour))
	first := insert(uuid.New(), from.Add(time.Hour))
	other, err := repo.InsertAppointment(ctx, NewAppointment{DentistID: uuid.New(), PatientID: uuid.New(), ScheduledStart: from, DurationMinutes: 30})
	require.NoError(t, err)

	got, err := repo.NextPatientAppointment(ctx, patient, from)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, first.ID, got.ID)
	assert.NotEqual(t, past.ID, got.ID)
	assert.NotEqual(t, other.ID, got.ID)

	got, err = repo.NextPatientAppointment(ctx, patient, from.Add(90*time.Minute))
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, later.ID, got.ID)
}

func TestMemRepositoryGetPatientByPhone(t *testing.T) {
	repo := NewMemRepository()
	p := Patient{ID: uuid.New(), Name: "kim", Phone: strPtr("+15550002222")}
	repo.PutPatient(p)

	got, err := repo.GetPatientByPhone(context.Background(), "+15550002222")
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)

	_, err = repo.GetPatientByPhone(context.Background(), "+15550003333")
	assert.ErrorIs(t, err, ErrPatientNotFound)
}
