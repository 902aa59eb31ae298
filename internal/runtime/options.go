package runtime

import (
	"fmt"
	"log/slog"
	"net"

	"github.com/tjfontaine/behavior-verify-gateway/internal/adapters/config/file"
	"github.com/tjfontaine/behavior-verify-gateway/internal/adapters/events/direct"
	"github.com/tjfontaine/behavior-verify-gateway/internal/adapters/events/kafka"
	"github.com/tjfontaine/behavior-verify-gateway/internal/adapters/events/nats"
	"github.com/tjfontaine/behavior-verify-gateway/internal/core/ports"
	"github.com/tjfontaine/behavior-verify-gateway/internal/pkg/config"
	"github.com/tjfontaine/behavior-verify-gateway/internal/storage/memory"
	"github.com/tjfontaine/behavior-verify-gateway/internal/storage/sqldb"
)

// Option is a functional option for configuring a Verifier.
type Option func(*Verifier) error

// WithFileConfig uses file-based configuration with hot-reload (default).
// Validation thresholds and admin keys are applied on change; other sections
// need a restart.
func WithFileConfig(path string) Option {
	return func(v *Verifier) error {
		provider, err := file.NewProvider(path, v.logger)
		if err != nil {
			return fmt.Errorf("create file config provider: %w", err)
		}
		v.config = provider
		return nil
	}
}

// WithConfig uses a fixed configuration. Nothing is watched.
func WithConfig(cfg *config.Config) Option {
	return func(v *Verifier) error {
		if cfg == nil {
			return fmt.Errorf("config cannot be nil")
		}
		v.config = &staticConfig{cfg: cfg}
		return nil
	}
}

// WithConfigProvider sets a custom config provider.
func WithConfigProvider(provider ports.ConfigProvider) Option {
	return func(v *Verifier) error {
		v.config = provider
		return nil
	}
}

// WithStorage uses the given log store instead of the one named in config.
func WithStorage(store ports.LogStore) Option {
	return func(v *Verifier) error {
		v.storage = store
		return nil
	}
}

// WithMemoryStorage keeps logs in process. Nothing survives a restart.
func WithMemoryStorage() Option {
	return WithStorage(memory.New())
}

// WithSQLite uses SQLite storage at path.
func WithSQLite(path string) Option {
	return func(v *Verifier) error {
		store, err := sqldb.NewSQLite(path)
		if err != nil {
			return fmt.Errorf("create sqlite storage: %w", err)
		}
		v.storage = store
		return nil
	}
}

// WithPostgres uses PostgreSQL storage.
// Recommended when several verifier instances share one log.
func WithPostgres(dsn string) Option {
	return func(v *Verifier) error {
		store, err := sqldb.NewPostgres(dsn)
		if err != nil {
			return fmt.Errorf("create postgres storage: %w", err)
		}
		v.storage = store
		return nil
	}
}

// WithClassifier sets the bot classifier.
func WithClassifier(c ports.Classifier) Option {
	return func(v *Verifier) error {
		v.classifier = c
		return nil
	}
}

// WithGeoResolver sets the IP location resolver.
func WithGeoResolver(r ports.GeoResolver) Option {
	return func(v *Verifier) error {
		v.geo = r
		return nil
	}
}

// WithPublisher sets a custom event publisher.
func WithPublisher(p ports.EventPublisher) Option {
	return func(v *Verifier) error {
		v.events = p
		return nil
	}
}

// WithDirectEvents delivers submission events in process to handlers.
func WithDirectEvents(handlers ...direct.Handler) Option {
	return func(v *Verifier) error {
		v.events = direct.NewPublisher(v.logger, handlers...)
		return nil
	}
}

// WithNATSEvents publishes submission events to a NATS subject.
func WithNATSEvents(url, subject string) Option {
	return func(v *Verifier) error {
		p, err := nats.NewPublisher(nats.Config{URL: url, Subject: subject, Name: serviceName}, v.logger)
		if err != nil {
			return fmt.Errorf("create nats publisher: %w", err)
		}
		v.events = p
		return nil
	}
}

// WithKafkaEvents publishes submission events to a Kafka topic.
func WithKafkaEvents(brokers []string, topic string) Option {
	return func(v *Verifier) error {
		p, err := kafka.NewPublisher(kafka.Config{Brokers: brokers, Topic: topic}, v.logger)
		if err != nil {
			return fmt.Errorf("create kafka publisher: %w", err)
		}
		v.events = p
		return nil
	}
}

// WithAuthProvider sets a custom admin auth provider.
func WithAuthProvider(provider ports.AuthProvider) Option {
	return func(v *Verifier) error {
		v.auth = provider
		return nil
	}
}

// WithListener serves on ln instead of listening on server.port.
func WithListener(ln net.Listener) Option {
	return func(v *Verifier) error {
		v.listener = ln
		return nil
	}
}

// WithLogger sets a custom logger. Pass it first so the other options log
// through it.
func WithLogger(logger *slog.Logger) Option {
	return func(v *Verifier) error {
		if logger != nil {
			v.logger = logger
		}
		return nil
	}
}
