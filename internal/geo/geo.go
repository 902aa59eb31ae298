// Package geo builds the configured IP location resolver.
package geo

import (
	"fmt"
	"log/slog"

	"github.com/tjfontaine/behavior-verify-gateway/internal/core/ports"
	"github.com/tjfontaine/behavior-verify-gateway/internal/geo/maxmind"
	"github.com/tjfontaine/behavior-verify-gateway/internal/geo/static"
	"github.com/tjfontaine/behavior-verify-gateway/internal/pkg/config"
)

// New returns the resolver named by cfg.Type. The "none" type, and an empty
// one, return a nil resolver: submissions then carry no IP location.
func New(cfg config.GeoConfig, logger *slog.Logger) (ports.GeoResolver, error) {
	switch cfg.Type {
	case "", "none":
		return nil, nil
	case static.Name:
		networks := make([]static.Network, 0, len(cfg.Networks))
		for _, n := range cfg.Networks {
			networks = append(networks, static.Network{CIDR: n.CIDR, Latitude: n.Latitude, Longitude: n.Longitude})
		}
		r, err := static.New(networks)
		if err != nil {
			return nil, err
		}
		return r, nil
	case maxmind.Name:
		r, err := maxmind.New(maxmind.Config{
			AccountID:  cfg.MaxMind.AccountID,
			LicenseKey: cfg.MaxMind.LicenseKey,
			URL:        cfg.MaxMind.URL,
			Timeout:    cfg.Timeout,
		}, maxmind.WithLogger(logger))
		if err != nil {
			return nil, err
		}
		return r, nil
	default:
		return nil, fmt.Errorf("unsupported geo resolver type: %s", cfg.Type)
	}
}
