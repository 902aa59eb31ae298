// Package runtime assembles the verification pipeline and its HTTP surface
// and manages their lifecycle.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tjfontaine/behavior-verify-gateway/internal/adapters/auth/apikey"
	"github.com/tjfontaine/behavior-verify-gateway/internal/adapters/events/direct"
	"github.com/tjfontaine/behavior-verify-gateway/internal/adapters/events/kafka"
	"github.com/tjfontaine/behavior-verify-gateway/internal/adapters/events/nats"
	"github.com/tjfontaine/behavior-verify-gateway/internal/api"
	"github.com/tjfontaine/behavior-verify-gateway/internal/api/controlplane"
	"github.com/tjfontaine/behavior-verify-gateway/internal/api/verify"
	"github.com/tjfontaine/behavior-verify-gateway/internal/classifier"
	"github.com/tjfontaine/behavior-verify-gateway/internal/core/ports"
	"github.com/tjfontaine/behavior-verify-gateway/internal/geo"
	"github.com/tjfontaine/behavior-verify-gateway/internal/logquery"
	"github.com/tjfontaine/behavior-verify-gateway/internal/pkg/config"
	"github.com/tjfontaine/behavior-verify-gateway/internal/server"
	"github.com/tjfontaine/behavior-verify-gateway/internal/storage"
	"github.com/tjfontaine/behavior-verify-gateway/internal/submission"
	"github.com/tjfontaine/behavior-verify-gateway/internal/validator"
)

const serviceName = "behavior-verifier"

// ErrNotStarted is returned by accessors used before Start.
var ErrNotStarted = errors.New("verifier not started")

// configReloader is implemented by auth providers that follow config changes.
type configReloader interface {
	ReloadFromConfig(*config.Config)
}

// Verifier is the main entry point for running the verification service.
// It owns configuration, the log store, the classifier, the event publisher
// and the HTTP server.
type Verifier struct {
	// Dependencies (injected via options or built from config)
	config     ports.ConfigProvider
	auth       ports.AuthProvider
	storage    ports.LogStore
	events     ports.EventPublisher
	classifier ports.Classifier
	geo        ports.GeoResolver
	listener   net.Listener
	logger     *slog.Logger

	// Built by Start
	cfg         *config.Config
	validator   *validator.Validator
	submissions *submission.Service
	logs        *logquery.Service
	server      *server.Server

	// Lifecycle management
	cancel context.CancelFunc
	done   <-chan error
	mu     sync.Mutex
}

// New creates a Verifier with the given options. A config provider is
// required; everything else defaults from configuration at Start.
func New(opts ...Option) (*Verifier, error) {
	v := &Verifier{
		logger: slog.Default(),
	}

	for _, opt := range opts {
		if err := opt(v); err != nil {
			return nil, fmt.Errorf("apply option: %w", err)
		}
	}

	if v.config == nil {
		return nil, fmt.Errorf("config provider required (use WithFileConfig or WithConfig)")
	}
	return v, nil
}

// Start loads configuration, builds the pipeline and starts serving in the
// background. It returns once the supervisor is running.
func (v *Verifier) Start(ctx context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.cancel != nil {
		return fmt.Errorf("verifier already started")
	}

	cfg, err := v.config.Load(ctx)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	v.cfg = cfg

	if err := v.initComponents(cfg); err != nil {
		return err
	}

	v.server = server.New(cfg.Server, v.logger)
	v.mountRoutes(v.server.Router, cfg)

	sup := newSupervisor(v.logger)
	sup.Add(&httpService{srv: v.server, ln: v.listener})
	sup.Add(&configWatchService{provider: v.config, onChange: v.onConfigChange})

	runCtx, cancel := context.WithCancel(ctx)
	v.cancel = cancel
	v.done = sup.ServeBackground(runCtx)

	v.logger.Info("verifier started",
		slog.String("addr", v.addr()),
		slog.String("storage", cfg.Storage.Type),
		slog.String("classifier", v.classifier.Name()),
		slog.Bool("admin_auth", v.auth.Enabled()),
	)
	return nil
}

// initComponents fills every dependency not injected by an option.
func (v *Verifier) initComponents(cfg *config.Config) error {
	var err error

	if v.storage == nil {
		if v.storage, err = storage.Open(cfg.Storage); err != nil {
			return fmt.Errorf("open storage: %w", err)
		}
	}
	if v.classifier == nil {
		if v.classifier, err = classifier.New(cfg.Classifier, v.logger); err != nil {
			return fmt.Errorf("create classifier: %w", err)
		}
	}
	if v.geo == nil {
		if v.geo, err = geo.New(cfg.Geo, v.logger); err != nil {
			return fmt.Errorf("create geo resolver: %w", err)
		}
	}
	if v.events == nil {
		if v.events, err = newPublisher(cfg.Events, v.logger); err != nil {
			return fmt.Errorf("create event publisher: %w", err)
		}
	}
	if v.auth == nil {
		v.auth = apikey.NewProvider(cfg.Admin)
		if !v.auth.Enabled() {
			v.logger.Warn("no admin API keys configured, admin routes are open")
		}
	}

	if v.validator, err = validator.New(cfg.Validation); err != nil {
		return fmt.Errorf("create validator: %w", err)
	}
	v.submissions, err = submission.NewService(v.validator, v.classifier, v.storage,
		submission.WithPublisher(v.events),
		submission.WithGeoResolver(v.geo),
		submission.WithLogger(v.logger),
	)
	if err != nil {
		return fmt.Errorf("create submission service: %w", err)
	}
	v.logs = logquery.NewService(v.storage)
	return nil
}

func newPublisher(cfg config.EventsConfig, logger *slog.Logger) (ports.EventPublisher, error) {
	switch cfg.Type {
	case "", "direct":
		return direct.NewPublisher(logger), nil
	case "nats":
		return nats.NewPublisher(nats.Config{URL: cfg.NATS.URL, Subject: cfg.NATS.Subject, Name: serviceName}, logger)
	case "kafka":
		return kafka.NewPublisher(kafka.Config{Brokers: cfg.Kafka.Brokers, Topic: cfg.Kafka.Topic}, logger)
	default:
		return nil, fmt.Errorf("unsupported events type: %s", cfg.Type)
	}
}

func (v *Verifier) mountRoutes(r chi.Router, cfg *config.Config) {
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		api.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/verify", func(r chi.Router) {
		r.Use(server.CORSMiddleware(cfg.Server.CORS.AllowedOrigins))
		r.Use(server.RateLimitMiddleware(cfg.Server.RateLimit.Requests, cfg.Server.RateLimit.Window))
		r.Method(http.MethodPost, "/", verify.NewHandler(v.submissions, cfg.Server.MaxBodyBytes, v.logger))
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(server.AdminAuth(v.auth))
		r.Mount("/", controlplane.NewServer(v.logs, cfg.Storage.Type))
	})
}

// onConfigChange applies the settings that can change without a restart.
func (v *Verifier) onConfigChange(cfg *config.Config) {
	v.logger.Info("config changed, reloading")
	if err := v.validator.Update(cfg.Validation); err != nil {
		v.logger.Error("failed to apply validation config", slog.String("error", err.Error()))
	}
	if r, ok := v.auth.(configReloader); ok {
		r.ReloadFromConfig(cfg)
	}
}

// Handler returns the root HTTP handler, or nil before Start.
func (v *Verifier) Handler() http.Handler {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.server == nil {
		return nil
	}
	return v.server.Handler()
}

// Submissions returns the submission service.
func (v *Verifier) Submissions() (*submission.Service, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.submissions == nil {
		return nil, ErrNotStarted
	}
	return v.submissions, nil
}

// Logs returns the log query service.
func (v *Verifier) Logs() (*logquery.Service, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.logs == nil {
		return nil, ErrNotStarted
	}
	return v.logs, nil
}

// Done is closed after the supervisor stops, carrying its terminal error.
func (v *Verifier) Done() <-chan error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.done
}

func (v *Verifier) addr() string {
	if v.listener != nil {
		return v.listener.Addr().String()
	}
	return v.server.Addr()
}

// Shutdown stops the supervised services and closes the store, the
// publisher and the config provider.
func (v *Verifier) Shutdown(ctx context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.logger.Info("shutting down verifier")

	if v.cancel != nil {
		v.cancel()
		select {
		case <-v.done:
		case <-ctx.Done():
			v.logger.Error("timed out waiting for services to stop")
		}
	}

	var errs []error
	if v.storage != nil {
		if err := v.storage.Close(); err != nil {
			v.logger.Error("failed to close storage", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}
	if v.events != nil {
		if err := v.events.Close(); err != nil {
			v.logger.Error("failed to close events", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}
	if v.config != nil {
		if err := v.config.Close(); err != nil {
			v.logger.Error("failed to close config", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	v.logger.Info("verifier shutdown complete")
	return errors.Join(errs...)
}
