package submission

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/tjfontaine/behavior-verify-gateway/internal/validation"
)

const (
	// DefaultMaxAttempts bounds the total number of tries per submission.
	DefaultMaxAttempts = 5
	// DefaultBaseDelay is the first backoff delay.
	DefaultBaseDelay = 200 * time.Millisecond
	// DefaultMaxDelay caps the backoff delay.
	DefaultMaxDelay = 5 * time.Second
)

// VerifyResponse is the /verify acknowledgement.
type VerifyResponse struct {
	Message      string `json:"message"`
	LogID        string `json:"log_id"`
	SubmissionID string `json:"submission_id"`
}

// StatusError is a non-2xx reply from the server.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("verify returned status %d: %s", e.StatusCode, e.Body)
}

// Retryable reports whether the status is worth retrying.
func (e *StatusError) Retryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

// Client posts /verify requests, retrying transport failures, 5xx and 429
// with bounded exponential backoff. A submission id is assigned before the
// first attempt so retries are idempotent on the server.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
	logger      *slog.Logger
	sleep       func(ctx context.Context, d time.Duration) error
}

// ClientOption configures a Client.
type ClientOption func(*Client)

func WithHTTPClient(c *http.Client) ClientOption {
	return func(cl *Client) { cl.httpClient = c }
}

func WithMaxAttempts(n int) ClientOption {
	return func(cl *Client) {
		if n > 0 {
			cl.maxAttempts = n
		}
	}
}

func WithBackoff(base, maxDelay time.Duration) ClientOption {
	return func(cl *Client) {
		cl.baseDelay = base
		cl.maxDelay = maxDelay
	}
}

func WithClientLogger(l *slog.Logger) ClientOption {
	return func(cl *Client) {
		if l != nil {
			cl.logger = l
		}
	}
}

// NewClient creates a client for the server at baseURL.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		httpClient:  &http.Client{Timeout: 10 * time.Second},
		maxAttempts: DefaultMaxAttempts,
		baseDelay:   DefaultBaseDelay,
		maxDelay:    DefaultMaxDelay,
		logger:      slog.Default(),
		sleep:       sleepContext,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Backoff returns the delay before retry number attempt (0-based).
func (c *Client) Backoff(attempt int) time.Duration {
	delay := float64(c.baseDelay) * math.Pow(2, float64(attempt))
	if delay > float64(c.maxDelay) {
		delay = float64(c.maxDelay)
	}
	return time.Duration(delay)
}

// Submit sends req, filling SubmissionID when empty.
func (c *Client) Submit(ctx context.Context, req *validation.VerifyRequest) (*VerifyResponse, error) {
	if req.SubmissionID == "" {
		req.SubmissionID = uuid.NewString()
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal verify request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		resp, err := c.post(ctx, body)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if !retryable(err) || ctx.Err() != nil {
			return nil, err
		}
		if attempt == c.maxAttempts-1 {
			break
		}

		delay := c.Backoff(attempt)
		c.logger.Warn("verify submission failed, retrying",
			slog.String("submission_id", req.SubmissionID),
			slog.Int("attempt", attempt+1),
			slog.Duration("backoff", delay),
			slog.String("error", err.Error()))
		if err := c.sleep(ctx, delay); err != nil {
			return nil, err
		}
	}

	return nil, fmt.Errorf("verify failed after %d attempts: %w", c.maxAttempts, lastErr)
}

func (c *Client) post(ctx context.Context, body []byte) (*VerifyResponse, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/verify", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &transportError{err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, &transportError{err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	var out VerifyResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, fmt.Errorf("decode verify response: %w", err)
	}
	return &out, nil
}

type transportError struct{ err error }

func (e *transportError) Error() string { return "verify transport: " + e.err.Error() }
func (e *transportError) Unwrap() error { return e.err }

func retryable(err error) bool {
	var te *transportError
	if errors.As(err, &te) {
		return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Retryable()
	}
	return false
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
