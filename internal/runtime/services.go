package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/thejerf/suture/v4"
	"github.com/thejerf/sutureslog"

	"github.com/tjfontaine/behavior-verify-gateway/internal/core/ports"
	"github.com/tjfontaine/behavior-verify-gateway/internal/pkg/config"
	"github.com/tjfontaine/behavior-verify-gateway/internal/server"
)

const (
	supervisorFailureThreshold = 5.0
	supervisorFailureDecay     = 30.0
	supervisorFailureBackoff   = 15 * time.Second
	supervisorShutdownTimeout  = 10 * time.Second
)

// newSupervisor builds the root supervisor with lifecycle events logged
// through slog.
func newSupervisor(logger *slog.Logger) *suture.Supervisor {
	handler := &sutureslog.Handler{Logger: logger}
	return suture.New(serviceName, suture.Spec{
		EventHook:        handler.MustHook(),
		FailureThreshold: supervisorFailureThreshold,
		FailureDecay:     supervisorFailureDecay,
		FailureBackoff:   supervisorFailureBackoff,
		Timeout:          supervisorShutdownTimeout,
	})
}

// httpService runs the HTTP server under the supervisor.
type httpService struct {
	srv *server.Server
	ln  net.Listener
}

func (s *httpService) Serve(ctx context.Context) error {
	if s.ln != nil {
		return s.srv.Serve(ctx, s.ln)
	}
	return s.srv.Start(ctx)
}

func (s *httpService) String() string { return "http-server" }

// configWatchService applies config changes until the supervisor stops it.
type configWatchService struct {
	provider ports.ConfigProvider
	onChange func(*config.Config)
}

func (s *configWatchService) Serve(ctx context.Context) error {
	if err := s.provider.Watch(ctx, s.onChange); err != nil {
		return fmt.Errorf("watch config: %w", err)
	}
	<-ctx.Done()
	return ctx.Err()
}

func (s *configWatchService) String() string { return "config-watcher" }

// staticConfig serves one fixed configuration.
type staticConfig struct {
	cfg *config.Config
}

func (s *staticConfig) Load(context.Context) (*config.Config, error) { return s.cfg, nil }

func (s *staticConfig) Watch(context.Context, func(*config.Config)) error { return nil }

func (s *staticConfig) Close() error { return nil }
