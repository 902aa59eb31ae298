package geo

import (
	"io"
	"log/slog"
	"testing"

	"github.com/tjfontaine/behavior-verify-gateway/internal/pkg/config"
)

func TestNew(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	tests := []struct {
		name     string
		cfg      config.GeoConfig
		wantName string
		wantErr  bool
	}{
		{name: "empty", cfg: config.GeoConfig{}},
		{name: "none", cfg: config.GeoConfig{Type: "none"}},
		{
			name:     "static",
			cfg:      config.GeoConfig{Type: "static", Networks: []config.GeoNetwork{{CIDR: "198.51.100.0/24", Latitude: 1, Longitude: 2}}},
			wantName: "static",
		},
		{name: "static bad cidr", cfg: config.GeoConfig{Type: "static", Networks: []config.GeoNetwork{{CIDR: "nope"}}}, wantErr: true},
		{
			name:     "maxmind",
			cfg:      config.GeoConfig{Type: "maxmind", MaxMind: config.MaxMindConfig{AccountID: "1", LicenseKey: "k"}},
			wantName: "maxmind",
		},
		{name: "maxmind without key", cfg: config.GeoConfig{Type: "maxmind"}, wantErr: true},
		{name: "unknown", cfg: config.GeoConfig{Type: "ipinfo"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := New(tt.cfg, logger)
			if (err != nil) != tt.wantErr {
				t.Fatalf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if tt.wantName == "" {
				if r != nil {
					t.Errorf("New() = %v, want nil resolver", r)
				}
				return
			}
			if r == nil || r.Name() != tt.wantName {
				t.Errorf("New() resolver = %v, want %s", r, tt.wantName)
			}
		})
	}
}
