package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/resend/resend-go/v2"
)

// EmailSender delivers a single transactional email and returns the
// provider message id.
type EmailSender interface {
	SendEmail(ctx context.Context, toEmail, subject, htmlContent, plainTextContent string) (string, error)
}

// NoopEmailSender is used when outbound email is disabled.
type NoopEmailSender struct{}

func (s *NoopEmailSender) SendEmail(ctx context.Context, toEmail, subject, htmlContent, plainTextContent string) (string, error) {
	messageID := "noop_msg_" + uuid.NewString()
	log.Printf("[EmailSender] noop send to=%s subject=%q message_id=%s", toEmail, subject, messageID)
	return messageID, nil
}

// ResendEmailSender sends emails via Resend REST API.
type ResendEmailSender struct {
	from   string
	client *resend.Client
}

func NewResendEmailSender(apiKey, from string) (*ResendEmailSender, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("resend api key is required")
	}
	if from == "" {
		return nil, fmt.Errorf("email from is required")
	}
	return &ResendEmailSender{
		from:   from,
		client: resend.NewClient(apiKey),
	}, nil
}

func (s *ResendEmailSender) SendEmail(ctx context.Context, toEmail, subject, htmlContent, plainTextContent string) (string, error) {
	if toEmail == "" || subject == "" {
		return "", fmt.Errorf("toEmail and subject are required")
	}

	params := &resend.SendEmailRequest{
		From:    s.from,
		To:      []string{toEmail},
		Subject: subject,
		Html:    htmlContent,
		Text:    plainTextContent,
	}

	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		sent, err := s.client.Emails.SendWithContext(ctx, params)
		if err == nil {
			return sent.Id, nil
		}
		lastErr = err

		if wait, ok := resendRetryDelay(err, attempt); ok {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(wait):
				continue
			}
		}

		return "", fmt.Errorf("resend send failed: %w", err)
	}

	return "", fmt.Errorf("resend send failed after retries: %w", lastErr)
}

func resendRetryDelay(err error, attempt int) (time.Duration, bool) {
	var rateLimitErr *resend.RateLimitError
	if errors.As(err, &rateLimitErr) {
		if seconds, convErr := strconv.Atoi(strings.TrimSpace(rateLimitErr.RetryAfter)); convErr == nil && seconds > 0 {
			if seconds > 30 {
				seconds = 30
			}
			return time.Duration(seconds) * time.Second, true
		}
		return time.Duration(attempt+1) * time.Second, true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return time.Duration(attempt+1) * 500 * time.Millisecond, true
	}

	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "timeout") || strings.Contains(msg, "temporar") {
		return time.Duration(attempt+1) * 500 * time.Millisecond, true
	}

	return 0, false
}
