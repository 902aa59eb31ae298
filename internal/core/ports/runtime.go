package ports

import (
	"context"

	"github.com/tjfontaine/behavior-verify-gateway/internal/core/domain"
	"github.com/tjfontaine/behavior-verify-gateway/internal/pkg/config"
)

// ConfigProvider loads and manages configuration.
// Implementations: file-based (default).
type ConfigProvider interface {
	Load(ctx context.Context) (*config.Config, error)
	Watch(ctx context.Context, onChange func(*config.Config)) error
	Close() error
}

// AuthProvider authenticates admin console callers.
// Implementations: API key (default).
type AuthProvider interface {
	Authenticate(ctx context.Context, token string) (*AuthContext, error)
	// Enabled reports whether any credential is configured. When false the
	// admin routes are open.
	Enabled() bool
}

// AuthContext contains authenticated request context.
type AuthContext struct {
	KeyID       string
	Description string
}

// Classifier decides bot or human from the pipeline's output. Returning an
// error wrapping domain.ErrClassifierUnavailable means no verdict; the
// submission is still recorded.
// Implementations: static (no model), webhook.
type Classifier interface {
	Name() string
	Classify(ctx context.Context, in *domain.ClassifierInput) (*domain.Verdict, error)
}

// EventPublisher publishes submission events.
// Implementations: direct (in-process), NATS, Kafka.
type EventPublisher interface {
	Publish(ctx context.Context, event *domain.SubmissionEvent) error
	Close() error
}

// GeoResolver maps a client IP to an approximate location.
type GeoResolver interface {
	Name() string

	// Lookup returns the location of ip, or domain.ErrLocationUnknown when
	// the resolver has none.
	Lookup(ctx context.Context, ip string) (*domain.GeoPayload, error)
}
