// Package classifier builds the configured bot/human classifier.
package classifier

import (
	"fmt"
	"log/slog"

	"github.com/tjfontaine/behavior-verify-gateway/internal/classifier/static"
	"github.com/tjfontaine/behavior-verify-gateway/internal/classifier/webhook"
	"github.com/tjfontaine/behavior-verify-gateway/internal/core/ports"
	"github.com/tjfontaine/behavior-verify-gateway/internal/pkg/config"
	"github.com/tjfontaine/behavior-verify-gateway/internal/pkg/safehttp"
)

// New returns the classifier named by cfg.Type. An empty type selects the
// static classifier.
func New(cfg config.ClassifierConfig, logger *slog.Logger) (ports.Classifier, error) {
	switch cfg.Type {
	case "", static.Name:
		return static.New(), nil
	case webhook.Name:
		opts := []webhook.Option{webhook.WithLogger(logger)}
		if cfg.DenyPrivateNetworks {
			opts = append(opts, webhook.WithHTTPClient(safehttp.NewClient(cfg.Timeout)))
		}
		return webhook.New(webhook.Config{
			URL:              cfg.URL,
			Timeout:          cfg.Timeout,
			Retries:          cfg.Retries,
			FailureThreshold: cfg.FailureThreshold,
			OpenTimeout:      cfg.OpenTimeout,
			Headers:          cfg.Headers,
		}, opts...)
	default:
		return nil, fmt.Errorf("unsupported classifier type: %s", cfg.Type)
	}
}
