package notify

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/dental-slot-booking/internal/config"
)

func TestNewDispatcherFromConfig(t *testing.T) {
	tests := []struct {
		name      string
		cfg       config.Config
		wantEmail any
		wantSMS   any
	}{
		{name: "stub", cfg: config.Config{EmailProvider: "stub"}, wantEmail: &StubEmailSender{}, wantSMS: &StubSMSSender{}},
		{name: "sendgrid without key", cfg: config.Config{EmailProvider: "sendgrid"}, wantEmail: &StubEmailSender{}, wantSMS: &StubSMSSender{}},
		{
			name:      "sendgrid and twilio",
			cfg:       config.Config{EmailProvider: "sendgrid", SendGridAPIKey: "key", TwilioAccountSID: "AC1", TwilioAuthToken: "tok"},
			wantEmail: &SendGridSender{},
			wantSMS:   &TwilioSender{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := NewDispatcherFromConfig(context.Background(), tt.cfg, nil, nil)
			require.NoError(t, err)
			assert.IsType(t, tt.wantEmail, d.email)
			assert.IsType(t, tt.wantSMS, d.sms)
		})
	}
}

func TestNewDispatcherFromConfigUnknownProvider(t *testing.T) {
	_, err := NewDispatcherFromConfig(context.Background(), config.Config{EmailProvider: "pigeon"}, nil, nil)
	assert.Error(t, err)
}
