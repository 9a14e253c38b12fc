package email

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"PaperDigest/internal/logging"
	"PaperDigest/internal/ports"
)

const (
	defaultHost     = "https://api.sendgrid.com"
	mailSendPath    = "/v3/mail/send"
	defaultFromName = "Prompts & Papers"
)

var (
	// ErrNotConfigured is returned when the API key or sender address is missing.
	ErrNotConfigured = errors.New("email not configured")
	// ErrInvalidMessage is returned for empty content or an unusable recipient.
	ErrInvalidMessage = errors.New("invalid email")
)

// Options configures the SendGrid sender.
type Options struct {
	APIKey     string
	Host       string
	FromEmail  string
	FromName   string
	MaxRetries int
	Backoff    time.Duration
}

// Sender delivers HTML digests through the SendGrid v3 API.
type Sender struct {
	opts   Options
	logger *slog.Logger
	sleep  func(context.Context, time.Duration) error
}

var _ ports.Mailer = (*Sender)(nil)

// NewSender wires SendGrid credentials. MaxRetries counts total attempts.
func NewSender(opts Options, logger *slog.Logger) *Sender {
	if opts.Host == "" {
		opts.Host = defaultHost
	}
	if opts.FromName == "" {
		opts.FromName = defaultFromName
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 1
	}
	if opts.Backoff <= 0 {
		opts.Backoff = time.Second
	}
	return &Sender{opts: opts, logger: logging.OrDiscard(logger), sleep: sleepContext}
}

// Send validates the message and posts it, retrying server and transport
// errors with exponential backoff. Client errors are returned immediately.
func (s *Sender) Send(ctx context.Context, to, subject, html string) error {
	if s.opts.APIKey == "" || s.opts.FromEmail == "" {
		return ErrNotConfigured
	}
	if strings.TrimSpace(html) == "" {
		return fmt.Errorf("%w: empty content", ErrInvalidMessage)
	}
	if !strings.Contains(to, "@") {
		return fmt.Errorf("%w: recipient %q", ErrInvalidMessage, to)
	}

	message := mail.NewV3MailInit(
		mail.NewEmail(s.opts.FromName, s.opts.FromEmail),
		subject,
		mail.NewEmail("", to),
		mail.NewContent("text/html", html),
	)
	body := mail.GetRequestBody(message)

	var lastErr error
	for attempt := 0; attempt < s.opts.MaxRetries; attempt++ {
		if attempt > 0 {
			wait := s.opts.Backoff << (attempt - 1)
			s.logger.Warn("retrying email", "to", to, "attempt", attempt+1, "of", s.opts.MaxRetries, "wait", wait)
			if err := s.sleep(ctx, wait); err != nil {
				return fmt.Errorf("send email: %w", err)
			}
		}

		retry, err := s.post(ctx, body)
		if err == nil {
			return nil
		}
		lastErr = err
		if !retry {
			break
		}
	}
	return fmt.Errorf("send email to %s: %w", to, lastErr)
}

func (s *Sender) post(ctx context.Context, body []byte) (bool, error) {
	req := sendgrid.GetRequest(s.opts.APIKey, mailSendPath, s.opts.Host)
	req.Method = rest.Post
	req.Body = body

	resp, err := sendgrid.MakeRequestWithContext(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return false, err
		}
		return true, err
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return resp.StatusCode >= http.StatusInternalServerError,
			fmt.Errorf("sendgrid returned %d: %s", resp.StatusCode, truncate(resp.Body, 200))
	}
	return false, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n]
}
