package notify

import (
	"context"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"go.uber.org/zap"

	"github.com/hackgods/dental-slot-booking/internal/config"
	"github.com/hackgods/dental-slot-booking/internal/logging"
	"github.com/hackgods/dental-slot-booking/internal/metrics"
)

const (
	EmailProviderSendGrid = "sendgrid"
	EmailProviderSES      = "ses"
	EmailProviderStub     = "stub"
)

// NewDispatcherFromConfig wires the email provider named by EMAIL_PROVIDER
// and Twilio SMS. Missing credentials fall back to the logging stubs.
func NewDispatcherFromConfig(ctx context.Context, cfg config.Config, m *metrics.BookingMetrics, logger *zap.Logger) (*Dispatcher, error) {
	logger = logging.OrNop(logger)

	email, err := newEmailSender(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	var sms SMSSender = NewStubSMSSender(logger)
	if cfg.TwilioAccountSID != "" && cfg.TwilioAuthToken != "" {
		sms = NewTwilioSender(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioPhoneFrom, logger)
	} else {
		logger.Info("twilio not configured, sms notifications are logged only")
	}

	return NewDispatcher(email, sms, m, logger), nil
}

func newEmailSender(ctx context.Context, cfg config.Config, logger *zap.Logger) (EmailSender, error) {
	switch cfg.EmailProvider {
	case EmailProviderSendGrid:
		sender := NewSendGridSender(SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.EmailFrom,
			FromName:  cfg.EmailFromName,
		}, logger)
		if sender == nil {
			logger.Warn("SENDGRID_API_KEY missing, email notifications are logged only")
			return NewStubEmailSender(logger), nil
		}
		return sender, nil
	case EmailProviderSES:
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		return NewSESSender(sesv2.NewFromConfig(awsCfg), SESConfig{
			FromEmail: cfg.EmailFrom,
			FromName:  cfg.EmailFromName,
		}, logger), nil
	case EmailProviderStub, "":
		return NewStubEmailSender(logger), nil
	default:
		return nil, fmt.Errorf("unknown EMAIL_PROVIDER %q", cfg.EmailProvider)
	}
}
