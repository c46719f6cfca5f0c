package notify

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/hackgods/dental-slot-booking/internal/logging"
	"github.com/hackgods/dental-slot-booking/internal/metrics"
)

var ErrNotificationFailed = errors.New("notification failed")

// Recipient is whoever should hear about a calendar change. Either channel
// may be absent.
type Recipient struct {
	Name  string
	Email *string
	Phone *string
}

type Message struct {
	Subject string
	Body    string
}

// Dispatcher sends a message over every channel the recipient has.
type Dispatcher struct {
	email   EmailSender
	sms     SMSSender
	metrics *metrics.BookingMetrics
	logger  *zap.Logger
}

func NewDispatcher(email EmailSender, sms SMSSender, m *metrics.BookingMetrics, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{email: email, sms: sms, metrics: m, logger: logging.OrNop(logger)}
}

// Notify returns an error wrapping ErrNotificationFailed if any channel
// failed or the recipient has no usable channel.
func (d *Dispatcher) Notify(ctx context.Context, r Recipient, msg Message) error {
	var errs []error
	attempted := 0

	if d.email != nil && r.Email != nil && *r.Email != "" {
		attempted++
		err := d.email.Send(ctx, EmailMessage{
			To:      *r.Email,
			ToName:  r.Name,
			Subject: msg.Subject,
			Body:    msg.Body,
		})
		d.observe("email", err)
		if err != nil {
			errs = append(errs, fmt.Errorf("email: %w", err))
		}
	}

	if d.sms != nil && r.Phone != nil && *r.Phone != "" {
		attempted++
		err := d.sms.SendSMS(ctx, SMSMessage{To: *r.Phone, Body: msg.Body})
		d.observe("sms", err)
		if err != nil {
			errs = append(errs, fmt.Errorf("sms: %w", err))
		}
	}

	if attempted == 0 {
		return fmt.Errorf("%w: recipient has no reachable channel", ErrNotificationFailed)
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrNotificationFailed, errors.Join(errs...))
	}
	return nil
}

func (d *Dispatcher) observe(channel string, err error) {
	status := "sent"
	if err != nil {
		status = "failed"
		d.logger.Warn("notification channel failed", zap.String("channel", channel), zap.Error(err))
	}
	d.metrics.ObserveNotification(channel, status)
}
