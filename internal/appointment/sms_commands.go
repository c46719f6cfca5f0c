package appointment

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hackgods/dental-slot-booking/internal/clinic"
)

const (
	smsCommandCancel     = "cancel"
	smsCommandReschedule = "reschedule"
)

// HandleSMSCommand applies a patient's text reply to their next upcoming
// appointment and returns the text to send back.
func (s *Service) HandleSMSCommand(ctx context.Context, from, body string) (string, error) {
	fields := strings.Fields(strings.ToLower(body))
	command := ""
	if len(fields) > 0 {
		command = fields[0]
	}
	if command != smsCommandCancel && command != smsCommandReschedule {
		return "Reply CANCEL to cancel or RESCHEDULE to change your next appointment.", nil
	}

	patient, err := s.repo.GetPatientByPhone(ctx, from)
	if errors.Is(err, ErrPatientNotFound) {
		return "We could not find a patient record for this number. Please call the clinic.", nil
	}
	if err != nil {
		return "", err
	}

	next, err := s.repo.NextPatientAppointment(ctx, patient.ID, s.now())
	if err != nil {
		return "", err
	}
	if next == nil {
		return "You have no upcoming appointments.", nil
	}

	when := next.ScheduledStart.In(s.cfg.Location())
	label := fmt.Sprintf("%s at %s", when.Format(clinic.DateLayout), when.Format(clinic.ClockLayout))

	switch command {
	case smsCommandCancel:
		if _, err := s.Cancel(ctx, next.ID, true); err != nil {
			return "", err
		}
		return fmt.Sprintf("We received your request to cancel your appointment on %s. The clinic will confirm shortly.", label), nil
	default:
		if _, err := s.RequestReschedule(ctx, next.ID); err != nil {
			return "", err
		}
		return fmt.Sprintf("We received your request to reschedule your appointment on %s. The clinic will contact you with new times.", label), nil
	}
}
