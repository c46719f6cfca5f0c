package appointment

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/dental-slot-booking/internal/clinic"
	"github.com/hackgods/dental-slot-booking/internal/config"
	"github.com/hackgods/dental-slot-booking/internal/logging"
	"github.com/hackgods/dental-slot-booking/internal/metrics"
	"github.com/hackgods/dental-slot-booking/internal/notify"
)

// WaitlistMatcher offers freed slots to waiting patients, oldest entry first.
type WaitlistMatcher struct {
	repo     Repository
	notifier Notifier
	scope    string
	metrics  *metrics.BookingMetrics
	logger   *zap.Logger
	now      func() time.Time
}

func NewWaitlistMatcher(repo Repository, notifier Notifier, scope string, m *metrics.BookingMetrics, logger *zap.Logger, now func() time.Time) *WaitlistMatcher {
	if scope == "" {
		scope = config.WaitlistScopeClinic
	}
	if now == nil {
		now = time.Now
	}
	return &WaitlistMatcher{
		repo:     repo,
		notifier: notifier,
		scope:    scope,
		metrics:  m,
		logger:   logging.OrNop(logger),
		now:      now,
	}
}

// MatchFreedSlot claims the oldest non-notified entry for date and tells
// that patient about the opening. It returns nil, nil when nobody is waiting.
// A claimed entry stays claimed even if the notification fails.
func (m *WaitlistMatcher) MatchFreedSlot(ctx context.Context, dentistID uuid.UUID, date, clock string) (*WaitlistEntry, error) {
	filter := WaitlistFilter{Date: date}
	if m.scope == config.WaitlistScopeDentist {
		filter.DentistID = &dentistID
	}

	entry, err := m.repo.ClaimWaitlistEntry(ctx, filter, m.now())
	if err != nil {
		m.metrics.ObserveWaitlist("error")
		return nil, err
	}
	if entry == nil {
		m.metrics.ObserveWaitlist("none")
		return nil, nil
	}
	m.metrics.ObserveWaitlist("matched")

	log := m.logger.With(
		zap.String("waitlist_id", entry.ID.String()),
		zap.String("patient_id", entry.PatientID.String()),
		zap.String("date", date),
		zap.String("time", clock),
	)

	if m.notifier == nil {
		log.Info("waitlist entry claimed, no notifier configured")
		return entry, nil
	}

	patient, err := m.repo.GetPatientByID(ctx, entry.PatientID)
	if err != nil {
		log.Warn("waitlist notification skipped, patient lookup failed", zap.Error(err))
		return entry, nil
	}

	msg := notify.Message{
		Subject: "An appointment slot has opened",
		Body: fmt.Sprintf("Hi %s, a slot has opened on %s at %s. Reply or call the clinic to book it.",
			patient.Name, date, clock),
	}
	if err := m.notifier.Notify(ctx, recipientFor(patient), msg); err != nil {
		log.Warn("waitlist notification failed", zap.Error(err))
		return entry, nil
	}

	log.Info("waitlist patient notified")
	return entry, nil
}

// AddEntry puts a patient on the waitlist for a date, optionally for one dentist.
func (m *WaitlistMatcher) AddEntry(ctx context.Context, patientID uuid.UUID, dentistID *uuid.UUID, date string) (*WaitlistEntry, error) {
	if patientID == uuid.Nil {
		return nil, fmt.Errorf("%w: patient id is required", ErrInvalidInput)
	}
	if _, err := time.Parse(clinic.DateLayout, date); err != nil {
		return nil, fmt.Errorf("%w: desired date must be YYYY-MM-DD", ErrInvalidInput)
	}
	if _, err := m.repo.GetPatientByID(ctx, patientID); err != nil {
		return nil, err
	}
	if dentistID != nil {
		if _, err := m.repo.GetDentistByID(ctx, *dentistID); err != nil {
			return nil, err
		}
	}

	return m.repo.InsertWaitlistEntry(ctx, WaitlistEntry{
		PatientID:   patientID,
		DentistID:   dentistID,
		DesiredDate: date,
	})
}

func (m *WaitlistMatcher) ListEntries(ctx context.Context, date string) ([]WaitlistEntry, error) {
	if _, err := time.Parse(clinic.DateLayout, date); err != nil {
		return nil, fmt.Errorf("%w: date must be YYYY-MM-DD", ErrInvalidInput)
	}
	return m.repo.ListWaitlist(ctx, date)
}

func recipientFor(p *Patient) notify.Recipient {
	return notify.Recipient{Name: p.Name, Email: p.Email, Phone: p.Phone}
}
