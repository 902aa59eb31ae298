// Package webhook delegates classification to an external HTTP endpoint.
package webhook

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/sony/gobreaker/v2"

	"github.com/tjfontaine/behavior-verify-gateway/internal/core/domain"
	"github.com/tjfontaine/behavior-verify-gateway/internal/metrics"
)

// Name identifies this classifier in logs and stored records.
const Name = "webhook"

const (
	defaultTimeout          = 2 * time.Second
	defaultFailureThreshold = 5
	defaultOpenTimeout      = 30 * time.Second
	maxResponseBytes        = 64 << 10
)

// Config configures a webhook classifier.
type Config struct {
	URL     string
	Timeout time.Duration
	Retries int
	// FailureThreshold is the number of consecutive failed calls that opens
	// the breaker.
	FailureThreshold uint32
	// OpenTimeout is how long the breaker stays open before a trial call.
	OpenTimeout time.Duration
	Headers     map[string]string
}

// response is the endpoint's reply. is_bot is required.
type response struct {
	IsBot      *bool    `json:"is_bot"`
	Confidence *float64 `json:"confidence,omitempty"`
}

// callerGone marks a failure caused by the caller's context ending. It is
// returned to the caller but not counted against the endpoint.
type callerGone struct{ err error }

func (e *callerGone) Error() string { return e.err.Error() }
func (e *callerGone) Unwrap() error { return e.err }

// Classifier posts the ClassifierInput as JSON and reads back a verdict.
// Every failure, including an open breaker, is reported as
// domain.ErrClassifierUnavailable so the submission proceeds without one.
type Classifier struct {
	url     string
	retries int
	headers map[string]string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker[*domain.Verdict]
	logger  *slog.Logger
}

// Option configures a Classifier.
type Option func(*Classifier)

// WithHTTPClient replaces the default client. The client's timeout is left
// as given.
func WithHTTPClient(c *http.Client) Option {
	return func(w *Classifier) { w.client = c }
}

// WithLogger sets the logger. A nil logger is ignored.
func WithLogger(l *slog.Logger) Option {
	return func(w *Classifier) {
		if l != nil {
			w.logger = l
		}
	}
}

// New creates a webhook classifier.
func New(cfg Config, opts ...Option) (*Classifier, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("webhook classifier url required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = defaultFailureThreshold
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = defaultOpenTimeout
	}
	if cfg.Retries < 0 {
		cfg.Retries = 0
	}

	c := &Classifier{
		url:     cfg.URL,
		retries: cfg.Retries,
		headers: cfg.Headers,
		client:  &http.Client{Timeout: cfg.Timeout},
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}

	threshold := cfg.FailureThreshold
	metrics.ClassifierBreakerState.WithLabelValues(Name).Set(0)
	c.breaker = gobreaker.NewCircuitBreaker[*domain.Verdict](gobreaker.Settings{
		Name:        Name,
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: func(err error) bool {
			var gone *callerGone
			return err == nil || errors.As(err, &gone)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Warn("classifier breaker state change",
				slog.String("classifier", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()))
			metrics.ClassifierBreakerState.WithLabelValues(name).Set(float64(to))
		},
	})

	return c, nil
}

func (c *Classifier) Name() string { return Name }

// State reports the breaker state.
func (c *Classifier) State() gobreaker.State { return c.breaker.State() }

// Classify calls the endpoint through the breaker, retrying up to the
// configured count inside one breaker call.
func (c *Classifier) Classify(ctx context.Context, in *domain.ClassifierInput) (*domain.Verdict, error) {
	verdict, err := c.breaker.Execute(func() (*domain.Verdict, error) {
		v, err := c.classifyWithRetry(ctx, in)
		if err != nil && ctx.Err() != nil {
			return nil, &callerGone{err: err}
		}
		return v, err
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			metrics.ClassifierResults.WithLabelValues(Name, metrics.OutcomeUnavailable).Inc()
		} else {
			metrics.ClassifierResults.WithLabelValues(Name, metrics.OutcomeError).Inc()
		}
		return nil, fmt.Errorf("%w: %w", domain.ErrClassifierUnavailable, err)
	}

	metrics.ClassifierResults.WithLabelValues(Name, metrics.OutcomeVerdict).Inc()
	return verdict, nil
}

func (c *Classifier) classifyWithRetry(ctx context.Context, in *domain.ClassifierInput) (*domain.Verdict, error) {
	body, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("marshal classifier input: %w", err)
	}

	var lastErr error
	attempts := c.retries + 1
	for attempt := 0; attempt < attempts; attempt++ {
		verdict, err := c.doRequest(ctx, body)
		if err == nil {
			return verdict, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			break
		}
		c.logger.Debug("classifier attempt failed",
			slog.Int("attempt", attempt+1),
			slog.String("error", err.Error()))
	}
	return nil, lastErr
}

func (c *Classifier) doRequest(ctx context.Context, body []byte) (*domain.Verdict, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("classifier request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("classifier returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var out response
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, fmt.Errorf("unmarshal classifier response: %w", err)
	}
	if out.IsBot == nil {
		return nil, fmt.Errorf("classifier response missing is_bot")
	}

	verdict := &domain.Verdict{IsBot: *out.IsBot}
	if out.Confidence != nil {
		if *out.Confidence < 0 || *out.Confidence > 1 {
			return nil, fmt.Errorf("classifier confidence %v outside [0,1]", *out.Confidence)
		}
		verdict.Confidence = domain.Some(*out.Confidence)
	}
	return verdict, nil
}
