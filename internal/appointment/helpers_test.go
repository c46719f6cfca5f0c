package appointment

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/dental-slot-booking/internal/clinic"
	"github.com/hackgods/dental-slot-booking/internal/config"
	"github.com/hackgods/dental-slot-booking/internal/notify"
	redisclient "github.com/hackgods/dental-slot-booking/internal/redis"
)

const testDate = "2030-01-07" // a Monday

// testNow is early on testDate, before the clinic opens.
var testNow = time.Date(2030, 1, 7, 7, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return testNow }

func at(date, clock string) time.Time {
	t, err := time.ParseInLocation("2006-01-02 15:04", date+" "+clock, time.UTC)
	if err != nil {
		panic(err)
	}
	return t
}

func strPtr(s string) *string { return &s }

type recordingNotifier struct {
	mu   sync.Mutex
	sent []notify.Recipient
	msgs []notify.Message
	err  error
}

func (n *recordingNotifier) Notify(_ context.Context, r notify.Recipient, msg notify.Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, r)
	n.msgs = append(n.msgs, msg)
	return n.err
}

func (n *recordingNotifier) recipients() []notify.Recipient {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notify.Recipient(nil), n.sent...)
}

type fixture struct {
	repo     *MemRepository
	schedule clinic.Schedule
	dentist  Dentist
	patient  Patient
	notifier *recordingNotifier
	cfg      config.Config
	svc      *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	repo := NewMemRepository()
	repo.now = fixedClock

	f := &fixture{
		repo:     repo,
		schedule: clinic.DefaultSchedule("UTC", 30, 15),
		dentist:  Dentist{ID: uuid.New(), Name: "Dr. Osei"},
		patient: Patient{
			ID:    uuid.New(),
			Name:  "Mina",
			Email: strPtr("mina@example.com"),
			Phone: strPtr("+15550001111"),
		},
		notifier: &recordingNotifier{},
		cfg: config.Config{
			ClinicTimezone: "UTC",
			WaitlistScope:  config.WaitlistScopeClinic,
			NotifyTimeout:  time.Second,
		},
	}
	repo.PutDentist(f.dentist)
	repo.PutPatient(f.patient)

	f.svc = NewService(repo, redisclient.NewLocalDayLocker(), clinic.StaticSource{Schedule: f.schedule}, f.cfg,
		WithNotifier(f.notifier),
		WithClock(fixedClock),
	)
	return f
}

func (f *fixture) engine() *Engine {
	return NewEngine(f.repo, clinic.StaticSource{Schedule: f.schedule}, fixedClock)
}

func (f *fixture) validator() *Validator {
	return NewValidator(f.repo, clinic.StaticSource{Schedule: f.schedule})
}

func (f *fixture) addPatient(t *testing.T, name string) Patient {
	t.Helper()
	p := Patient{ID: uuid.New(), Name: name, Email: strPtr(name + "@example.com")}
	f.repo.PutPatient(p)
	return p
}

func (f *fixture) book(t *testing.T, clock string, minutes int) *Appointment {
	t.Helper()
	appt, err := f.svc.Book(context.Background(), BookRequest{
		PatientID:       f.patient.ID,
		DentistID:       f.dentist.ID,
		Start:           at(testDate, clock),
		DurationMinutes: minutes,
	})
	require.NoError(t, err)
	return appt
}

func (f *fixture) block(t *testing.T, from, to string) {
	t.Helper()
	_, err := f.repo.InsertBlockedRange(context.Background(), BlockedRange{
		DentistID: f.dentist.ID,
		Start:     at(testDate, from),
		End:       at(testDate, to),
	})
	require.NoError(t, err)
}

func slotTimes(slots []Slot) []string {
	out := make([]string, len(slots))
	for i, s := range slots {
		out[i] = s.Time
	}
	return out
}
