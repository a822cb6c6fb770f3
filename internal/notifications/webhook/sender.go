// Package webhook provides notification delivery via HTTP POST callbacks.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/bissquit/notify-garden/internal/domain"
	"github.com/bissquit/notify-garden/internal/pkg/correlation"
)

// URLMetadataKey optionally overrides the configured endpoint per notification.
const URLMetadataKey = "webhook_url"

const defaultTimeout = 10 * time.Second

// Config holds webhook sender configuration.
type Config struct {
	URL         string
	BearerToken string
	Timeout     time.Duration
	// RateLimit caps outbound requests per second. Zero disables throttling.
	RateLimit float64
}

// Sender implements webhook notification delivery via HTTP POST.
type Sender struct {
	config     Config
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewSender creates a new webhook sender.
func NewSender(config Config) *Sender {
	if config.Timeout == 0 {
		config.Timeout = defaultTimeout
	}

	var limiter *rate.Limiter
	if config.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(config.RateLimit), 1)
	}

	return &Sender{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		limiter: limiter,
	}
}

// Type returns the channel type.
func (s *Sender) Type() domain.Channel {
	return domain.ChannelWebhook
}

// Available reports whether an endpoint is configured.
func (s *Sender) Available() bool {
	return s.config.URL != ""
}

// payload is the envelope POSTed to the webhook endpoint.
type payload struct {
	ID            string            `json:"id"`
	Title         string            `json:"title"`
	Body          string            `json:"body"`
	Channel       string            `json:"channel"`
	Status        string            `json:"status"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	CorrelationID string            `json:"correlation_id,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
}

// Send POSTs the notification envelope to the webhook endpoint.
func (s *Sender) Send(ctx context.Context, n *domain.Notification) error {
	url := s.config.URL
	if override := n.Metadata[URLMetadataKey]; override != "" {
		url = override
	}
	if url == "" {
		return &PermanentError{Message: "webhook URL is empty"}
	}

	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return &RetryableError{Message: fmt.Sprintf("rate limiter: %v", err)}
		}
	}

	body, err := json.Marshal(payload{
		ID:            n.ID,
		Title:         n.Title,
		Body:          n.Body,
		Channel:       string(n.Channel),
		Status:        string(n.Status),
		Metadata:      n.Metadata,
		CorrelationID: n.CorrelationID,
		CreatedAt:     n.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.config.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+s.config.BearerToken)
	}
	if n.CorrelationID != "" {
		req.Header.Set(correlation.Header, n.CorrelationID)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return &RetryableError{Message: fmt.Sprintf("send request: %v", err)}
	}
	defer func() { _ = resp.Body.Close() }()

	return s.handleResponse(resp, url)
}

func (s *Sender) handleResponse(resp *http.Response, url string) error {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		slog.Debug("webhook delivered", "endpoint", maskURL(url), "status", resp.StatusCode)
		return nil

	case resp.StatusCode == http.StatusBadRequest:
		return &PermanentError{
			Code:    resp.StatusCode,
			Message: fmt.Sprintf("bad request: %s", string(body)),
		}

	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return &PermanentError{
			Code:    resp.StatusCode,
			Message: "endpoint rejected credentials",
		}

	case resp.StatusCode == http.StatusNotFound:
		return &PermanentError{
			Code:    resp.StatusCode,
			Message: "endpoint not found",
		}

	case resp.StatusCode == http.StatusTooManyRequests:
		return &RetryableError{
			Code:    resp.StatusCode,
			Message: "rate limited by endpoint",
		}

	case resp.StatusCode >= 500:
		return &RetryableError{
			Code:    resp.StatusCode,
			Message: fmt.Sprintf("server error: %s", string(body)),
		}

	default:
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}
}

// maskURL hides part of the URL for logging.
func maskURL(url string) string {
	if len(url) > 40 {
		return url[:20] + "..." + url[len(url)-10:]
	}
	return url
}

// PermanentError indicates a permanent error that should not be retried.
type PermanentError struct {
	Code    int
	Message string
}

func (e *PermanentError) Error() string {
	if e.Code > 0 {
		return fmt.Sprintf("webhook error %d: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("webhook error: %s", e.Message)
}

// IsRetryable returns false as permanent errors should not be retried.
func (e *PermanentError) IsRetryable() bool { return false }

// RetryableError indicates a temporary error that can be retried.
type RetryableError struct {
	Code    int
	Message string
}

func (e *RetryableError) Error() string {
	if e.Code > 0 {
		return fmt.Sprintf("webhook error %d: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("webhook error: %s", e.Message)
}

// IsRetryable returns true as these errors are temporary.
func (e *RetryableError) IsRetryable() bool { return true }
