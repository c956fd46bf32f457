package otp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const defaultSMSTimeout = 15 * time.Second

// SMSLocalSender delivers SMS codes through the SMS Local bulk API
// (route=otp). It rejects email messages.
type SMSLocalSender struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
}

// NewSMSLocalSender returns a sender for apiKey. An empty baseURL uses the
// public endpoint.
func NewSMSLocalSender(apiKey, baseURL string) *SMSLocalSender {
	if baseURL == "" {
		baseURL = "https://www.smslocal.com/dev/bulkV2"
	}
	return &SMSLocalSender{
		APIKey:     apiKey,
		BaseURL:    baseURL,
		HTTPClient: &http.Client{Timeout: defaultSMSTimeout},
	}
}

// Send posts the code. Phone numbers are sent digits only.
func (s *SMSLocalSender) Send(ctx context.Context, msg Message) error {
	if msg.Channel != ChannelSMS {
		return ErrUnsupported
	}
	if s.APIKey == "" {
		return fmt.Errorf("sms: API key not configured")
	}

	raw, err := json.Marshal(map[string]string{
		"route":     "otp",
		"numbers":   digitsOnly(msg.To),
		"variables": msg.Code,
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.BaseURL, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", s.APIKey)

	resp, err := s.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("sms: request failed status=%d body=%s", resp.StatusCode, string(b))
	}
	return nil
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// LogSender writes deliveries to a zerolog logger instead of sending them.
// Codes are masked unless Reveal is set, which is meant for local
// development only.
type LogSender struct {
	Logger zerolog.Logger
	Reveal bool
}

func (s LogSender) Send(_ context.Context, msg Message) error {
	code := maskCode(msg.Code)
	if s.Reveal {
		code = msg.Code
	}
	s.Logger.Info().
		Str("channel", string(msg.Channel)).
		Str("to", msg.To).
		Str("code", code).
		Msg("otp delivery")
	return nil
}

func maskCode(code string) string {
	if len(code) <= 2 {
		return strings.Repeat("*", len(code))
	}
	return strings.Repeat("*", len(code)-2) + code[len(code)-2:]
}

// ThrottledSender caps the request rate towards a gateway. Send blocks
// until a token is available or ctx is done.
type ThrottledSender struct {
	next    Sender
	limiter *rate.Limiter
}

// NewThrottledSender allows perSecond sends with the given burst.
func NewThrottledSender(next Sender, perSecond float64, burst int) *ThrottledSender {
	if burst < 1 {
		burst = 1
	}
	return &ThrottledSender{next: next, limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

func (s *ThrottledSender) Send(ctx context.Context, msg Message) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}
	return s.next.Send(ctx, msg)
}
