package appointment

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendForDateRemindsScheduledOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.book(t, "09:00", 30)
	other := f.addPatient(t, "jon")
	_, err := f.svc.Book(ctx, BookRequest{PatientID: other.ID, DentistID: f.dentist.ID, Start: at(testDate, "11:00"), DurationMinutes: 30})
	require.NoError(t, err)
	cancelled := f.book(t, "14:00", 30)
	_, err = f.svc.Cancel(ctx, cancelled.ID, false)
	require.NoError(t, err)
	f.svc.Wait()

	// next day, must not be reminded
	_, err = f.svc.Book(ctx, BookRequest{PatientID: other.ID, DentistID: f.dentist.ID, Start: at("2030-01-08", "09:00"), DurationMinutes: 30})
	require.NoError(t, err)

	rs := NewReminderSender(f.repo, f.notifier, time.UTC, nil)
	sent, err := rs.SendForDate(ctx, at(testDate, "00:00"))
	require.NoError(t, err)
	assert.Equal(t, 2, sent)

	recipients := f.notifier.recipients()
	require.Len(t, recipients, 2)
	assert.Equal(t, "Mina", recipients[0].Name)
	assert.Equal(t, "jon", recipients[1].Name)
	assert.Contains(t, f.notifier.msgs[0].Body, "2030-01-07 at 09:00")
}

func TestSendForDateSkipsMissingPatient(t *testing.T) {
	f := newFixture(t)
	f.repo.PutAppointment(Appointment{
		ID:              uuid.New(),
		DentistID:       f.dentist.ID,
		PatientID:       uuid.New(),
		ScheduledStart:  at(testDate, "10:00"),
		DurationMinutes: 30,
		Status:          StatusScheduled,
	})
	f.book(t, "11:00", 30)

	sent, err := NewReminderSender(f.repo, f.notifier, time.UTC, nil).SendForDate(context.Background(), at(testDate, "12:00"))
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
}

func TestSendForDateUsesClinicDay(t *testing.T) {
	f := newFixture(t)
	f.book(t, "16:00", 30)

	loc := time.FixedZone("UTC-10", -10*3600)
	// 16:00 UTC on testDate is 06:00 on the same local day
	sent, err := NewReminderSender(f.repo, f.notifier, loc, nil).SendForDate(context.Background(), time.Date(2030, 1, 7, 12, 0, 0, 0, loc))
	require.NoError(t, err)
	assert.Equal(t, 1, sent)

	sent, err = NewReminderSender(f.repo, &recordingNotifier{}, loc, nil).SendForDate(context.Background(), time.Date(2030, 1, 6, 12, 0, 0, 0, loc))
	require.NoError(t, err)
	assert.Zero(t, sent)
}
