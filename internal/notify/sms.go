package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hackgods/dental-slot-booking/internal/logging"
)

const twilioAPIBase = "https://api.twilio.com"

// SMSSender delivers one text message.
type SMSSender interface {
	SendSMS(ctx context.Context, msg SMSMessage) error
}

type SMSMessage struct {
	To   string
	Body string
}

// TwilioSender posts SMS messages to Twilio's REST API.
type TwilioSender struct {
	accountSID string
	authToken  string
	from       string
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

func NewTwilioSender(accountSID, authToken, from string, logger *zap.Logger) *TwilioSender {
	return &TwilioSender{
		accountSID: accountSID,
		authToken:  authToken,
		from:       from,
		baseURL:    twilioAPIBase,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logging.OrNop(logger),
	}
}

func (s *TwilioSender) SendSMS(ctx context.Context, msg SMSMessage) error {
	if s.accountSID == "" || s.authToken == "" {
		return errors.New("twilio credentials missing")
	}
	if msg.To == "" {
		return errors.New("sms recipient required")
	}
	if strings.TrimSpace(msg.Body) == "" {
		return errors.New("sms body required")
	}

	form := url.Values{}
	form.Set("To", msg.To)
	form.Set("From", s.from)
	form.Set("Body", msg.Body)

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", s.baseURL, s.accountSID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("build twilio request: %w", err)
	}
	req.SetBasicAuth(s.accountSID, s.authToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("twilio send: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("twilio send failed: %s", formatTwilioError(resp.StatusCode, body))
	}

	s.logger.Info("twilio sms sent", zap.String("to", msg.To))
	return nil
}

type twilioAPIError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func formatTwilioError(status int, body []byte) string {
	var parsed twilioAPIError
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Message != "" {
		if parsed.Code != 0 {
			return fmt.Sprintf("status %d code %d: %s", status, parsed.Code, parsed.Message)
		}
		return fmt.Sprintf("status %d: %s", status, parsed.Message)
	}
	if trimmed := strings.TrimSpace(string(body)); trimmed != "" {
		return fmt.Sprintf("status %d: %s", status, trimmed)
	}
	return fmt.Sprintf("status %d", status)
}

// StubSMSSender logs instead of sending.
type StubSMSSender struct {
	logger *zap.Logger
}

func NewStubSMSSender(logger *zap.Logger) *StubSMSSender {
	return &StubSMSSender{logger: logging.OrNop(logger)}
}

func (s *StubSMSSender) SendSMS(_ context.Context, msg SMSMessage) error {
	s.logger.Info("stub sms sender: would send sms", zap.String("to", msg.To))
	return nil
}
