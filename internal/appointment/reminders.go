package appointment

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hackgods/dental-slot-booking/internal/clinic"
	"github.com/hackgods/dental-slot-booking/internal/logging"
	"github.com/hackgods/dental-slot-booking/internal/notify"
)

// ReminderSender tells patients about their scheduled visits for a day.
type ReminderSender struct {
	repo     Repository
	notifier Notifier
	loc      *time.Location
	logger   *zap.Logger
}

func NewReminderSender(repo Repository, notifier Notifier, loc *time.Location, logger *zap.Logger) *ReminderSender {
	if loc == nil {
		loc = time.UTC
	}
	return &ReminderSender{repo: repo, notifier: notifier, loc: loc, logger: logging.OrNop(logger)}
}

// SendForDate reminds every patient with a scheduled appointment on the
// clinic-local day containing date. It returns how many were notified.
// Individual delivery failures are logged and skipped.
func (r *ReminderSender) SendForDate(ctx context.Context, date time.Time) (int, error) {
	local := date.In(r.loc)
	dayStart := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, r.loc)
	dayEnd := dayStart.AddDate(0, 0, 1)

	appts, err := r.repo.ListAppointmentsByStatus(ctx, dayStart, dayEnd, StatusScheduled)
	if err != nil {
		return 0, fmt.Errorf("list reminders: %w", err)
	}

	sent := 0
	for _, a := range appts {
		if err := ctx.Err(); err != nil {
			return sent, err
		}

		patient, err := r.repo.GetPatientByID(ctx, a.PatientID)
		if err != nil {
			r.logger.Warn("reminder skipped, patient lookup failed",
				zap.String("appointment_id", a.ID.String()), zap.Error(err))
			continue
		}

		start := a.ScheduledStart.In(r.loc)
		msg := notify.Message{
			Subject: "Appointment reminder",
			Body: fmt.Sprintf("Hi %s, this is a reminder of your dental appointment on %s at %s. Reply CANCEL to cancel or RESCHEDULE to change it.",
				patient.Name, start.Format(clinic.DateLayout), start.Format(clinic.ClockLayout)),
		}
		if err := r.notifier.Notify(ctx, recipientFor(patient), msg); err != nil {
			r.logger.Warn("reminder delivery failed",
				zap.String("appointment_id", a.ID.String()), zap.Error(err))
			continue
		}
		sent++
	}

	return sent, nil
}
