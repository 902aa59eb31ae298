// Package maxmind resolves IP locations with the MaxMind GeoLite2 City web
// service.
package maxmind

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/netip"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/tjfontaine/behavior-verify-gateway/internal/core/domain"
)

// Name identifies this resolver in logs and metrics.
const Name = "maxmind"

const (
	// DefaultURL is the GeoLite2 City endpoint.
	DefaultURL       = "https://geolite.info/geoip/v2.1/city"
	defaultTimeout   = 2 * time.Second
	maxResponseBytes = 256 << 10
)

// Config configures a Resolver.
type Config struct {
	AccountID  string
	LicenseKey string
	URL        string
	Timeout    time.Duration
}

type cityResponse struct {
	Location *struct {
		Latitude       *float64 `json:"latitude"`
		Longitude      *float64 `json:"longitude"`
		AccuracyRadius float64  `json:"accuracy_radius"` // km
	} `json:"location"`
}

type errorResponse struct {
	Code  string `json:"code"`
	Error string `json:"error"`
}

// Error codes that mean "no location" rather than a failed call.
var unknownCodes = map[string]bool{
	"IP_ADDRESS_NOT_FOUND": true,
	"IP_ADDRESS_RESERVED":  true,
}

// Resolver queries the web service once per lookup.
type Resolver struct {
	accountID  string
	licenseKey string
	baseURL    string
	client     *http.Client
	logger     *slog.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) Option {
	return func(r *Resolver) { r.client = c }
}

// WithLogger sets the logger. A nil logger is ignored.
func WithLogger(l *slog.Logger) Option {
	return func(r *Resolver) {
		if l != nil {
			r.logger = l
		}
	}
}

// New creates a resolver. Both credentials are required.
func New(cfg Config, opts ...Option) (*Resolver, error) {
	if cfg.AccountID == "" || cfg.LicenseKey == "" {
		return nil, fmt.Errorf("maxmind account_id and license_key required")
	}
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}

	r := &Resolver{
		accountID:  cfg.AccountID,
		licenseKey: cfg.LicenseKey,
		baseURL:    strings.TrimRight(cfg.URL, "/"),
		client:     &http.Client{Timeout: cfg.Timeout},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

func (r *Resolver) Name() string { return Name }

// Lookup returns the city-level location of ip. Private, reserved and
// unlisted addresses yield domain.ErrLocationUnknown.
func (r *Resolver) Lookup(ctx context.Context, ip string) (*domain.GeoPayload, error) {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return nil, domain.ErrLocationUnknown
	}
	addr = addr.Unmap()
	if addr.IsPrivate() || addr.IsLoopback() || addr.IsLinkLocalUnicast() || addr.IsUnspecified() {
		return nil, domain.ErrLocationUnknown
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+"/"+addr.String(), http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.SetBasicAuth(r.accountID, r.licenseKey)
	req.Header.Set("Accept", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("query maxmind: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read maxmind response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var e errorResponse
		if json.Unmarshal(body, &e) == nil && e.Code != "" {
			if unknownCodes[e.Code] {
				return nil, domain.ErrLocationUnknown
			}
			return nil, fmt.Errorf("maxmind error (%s): %s", e.Code, e.Error)
		}
		if resp.StatusCode == http.StatusNotFound {
			return nil, domain.ErrLocationUnknown
		}
		return nil, fmt.Errorf("maxmind returned status %d", resp.StatusCode)
	}

	var city cityResponse
	if err := json.Unmarshal(body, &city); err != nil {
		return nil, fmt.Errorf("decode maxmind response: %w", err)
	}
	if city.Location == nil || city.Location.Latitude == nil || city.Location.Longitude == nil {
		r.logger.Debug("maxmind response has no location", slog.String("ip", addr.String()))
		return nil, domain.ErrLocationUnknown
	}

	return &domain.GeoPayload{
		Latitude:  *city.Location.Latitude,
		Longitude: *city.Location.Longitude,
		Accuracy:  city.Location.AccuracyRadius * 1000,
	}, nil
}
