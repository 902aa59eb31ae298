// Package config loads the verifier configuration from a YAML file and
// BVG_-prefixed environment variables.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// DefaultPath is the config file read by Load.
const DefaultPath = "config.yaml"

const envPrefix = "BVG_"

type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Storage    StorageConfig    `koanf:"storage"`
	Validation ValidationConfig `koanf:"validation"`
	Classifier ClassifierConfig `koanf:"classifier"`
	Events     EventsConfig     `koanf:"events"`
	Admin      AdminConfig      `koanf:"admin"`
	Tracing    TracingConfig    `koanf:"tracing"`
	Geo        GeoConfig        `koanf:"geo"`
}

type ServerConfig struct {
	Port           int             `koanf:"port"`
	ReadTimeout    time.Duration   `koanf:"read_timeout"`
	WriteTimeout   time.Duration   `koanf:"write_timeout"`
	RequestTimeout time.Duration   `koanf:"request_timeout"`
	MaxBodyBytes   int64           `koanf:"max_body_bytes"`
	CORS           CORSConfig      `koanf:"cors"`
	RateLimit      RateLimitConfig `koanf:"rate_limit"`
}

type CORSConfig struct {
	AllowedOrigins []string `koanf:"allowed_origins"`
}

// RateLimitConfig limits /verify per client IP. Zero Requests disables it.
type RateLimitConfig struct {
	Requests int           `koanf:"requests"`
	Window   time.Duration `koanf:"window"`
}

type StorageConfig struct {
	Type   string       `koanf:"type"` // sqlite, postgres, badger, memory
	SQLite SQLiteConfig `koanf:"sqlite"`
	// Database is the generic database configuration for multi-dialect support
	Database DatabaseConfig `koanf:"database"`
	Badger   BadgerConfig   `koanf:"badger"`
}

type SQLiteConfig struct {
	Path string `koanf:"path"`
}

// DatabaseConfig is the generic database configuration supporting multiple dialects.
type DatabaseConfig struct {
	Driver string `koanf:"driver"` // sqlite, postgres
	DSN    string `koanf:"dsn"`    // Data source name / connection string
}

// BadgerConfig configures the embedded key-value backend. An empty Path runs
// in memory.
type BadgerConfig struct {
	Path string `koanf:"path"`
}

// ValidationConfig holds the Validator thresholds.
type ValidationConfig struct {
	MinPointerSamples  int           `koanf:"min_pointer_samples"`
	MaxPointerSpeed    float64       `koanf:"max_pointer_speed"` // px/ms
	MinSessionDuration time.Duration `koanf:"min_session_duration"`
	MaxSessionDuration time.Duration `koanf:"max_session_duration"`
	MinKeyInterval     float64       `koanf:"min_key_interval"` // ms
	MinKeyHold         float64       `koanf:"min_key_hold"`     // ms
	IPBlocklist        []string      `koanf:"ip_blocklist"`
	IPAllowlist        []string      `koanf:"ip_allowlist"`
	UserAgentPatterns  []string      `koanf:"user_agent_patterns"`
	SuspiciousAgents   []string      `koanf:"suspicious_agents"`
	// GeoMatchRadius is the largest distance in km between the reported fix
	// and the IP location that still counts as a match.
	GeoMatchRadius float64 `koanf:"geo_match_radius_km"`
}

type ClassifierConfig struct {
	Type             string            `koanf:"type"` // static, webhook
	URL              string            `koanf:"url"`
	Timeout          time.Duration     `koanf:"timeout"`
	Retries          int               `koanf:"retries"`
	FailureThreshold uint32            `koanf:"failure_threshold"`
	OpenTimeout      time.Duration     `koanf:"open_timeout"`
	Headers          map[string]string `koanf:"headers"`
	// DenyPrivateNetworks refuses to call endpoints that resolve to private
	// or loopback addresses.
	DenyPrivateNetworks bool `koanf:"deny_private_networks"`
}

type EventsConfig struct {
	Type  string      `koanf:"type"` // direct, nats, kafka
	NATS  NATSConfig  `koanf:"nats"`
	Kafka KafkaConfig `koanf:"kafka"`
}

type NATSConfig struct {
	URL     string `koanf:"url"`
	Subject string `koanf:"subject"`
}

type KafkaConfig struct {
	Brokers []string `koanf:"brokers"`
	Topic   string   `koanf:"topic"`
}

type AdminConfig struct {
	APIKeys []APIKeyConfig `koanf:"api_keys"`
}

type APIKeyConfig struct {
	KeyHash     string `koanf:"key_hash"`
	Description string `koanf:"description"`
}

// GeoConfig selects the IP location resolver.
type GeoConfig struct {
	Type     string        `koanf:"type"` // none, static, maxmind
	Timeout  time.Duration `koanf:"timeout"`
	Networks []GeoNetwork  `koanf:"networks"`
	MaxMind  MaxMindConfig `koanf:"maxmind"`
}

// GeoNetwork pins a CIDR to a location for the static resolver.
type GeoNetwork struct {
	CIDR      string  `koanf:"cidr"`
	Latitude  float64 `koanf:"latitude"`
	Longitude float64 `koanf:"longitude"`
}

type MaxMindConfig struct {
	AccountID  string `koanf:"account_id"`
	LicenseKey string `koanf:"license_key"`
	URL        string `koanf:"url"`
}

type TracingConfig struct {
	Enabled     bool   `koanf:"enabled"`
	ServiceName string `koanf:"service_name"`
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// Load reads DefaultPath and the environment.
func Load() (*Config, error) {
	return LoadFile(DefaultPath)
}

// LoadFile reads path (a missing file is fine) and then the environment,
// which overrides file values.
func LoadFile(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			// File not found is OK, we'll use env vars
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("load %s: %w", path, err)
			}
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, envPrefix)), "__", ".", -1)
	}), nil); err != nil {
		return nil, err
	}

	setDefaults(k)

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	cfg.Storage.Database.DSN = substituteEnvVars(cfg.Storage.Database.DSN)
	cfg.Classifier.URL = substituteEnvVars(cfg.Classifier.URL)
	cfg.Geo.MaxMind.AccountID = substituteEnvVars(cfg.Geo.MaxMind.AccountID)
	cfg.Geo.MaxMind.LicenseKey = substituteEnvVars(cfg.Geo.MaxMind.LicenseKey)
	for name, v := range cfg.Classifier.Headers {
		cfg.Classifier.Headers[name] = substituteEnvVars(v)
	}

	return &cfg, nil
}

func setDefaults(k *koanf.Koanf) {
	defaults := map[string]any{
		"server.port":                     8080,
		"server.read_timeout":             30 * time.Second,
		"server.write_timeout":            30 * time.Second,
		"server.request_timeout":          10 * time.Second,
		"server.max_body_bytes":           int64(1 << 20),
		"server.rate_limit.requests":      60,
		"server.rate_limit.window":        time.Minute,
		"storage.type":                    "sqlite",
		"storage.sqlite.path":             "./data/verifier.db",
		"validation.min_pointer_samples":  5,
		"validation.max_pointer_speed":    20.0,
		"validation.min_session_duration": 2 * time.Second,
		"validation.max_session_duration": 30 * time.Minute,
		"validation.min_key_interval":     15.0,
		"validation.min_key_hold":         10.0,
		"validation.geo_match_radius_km":  500.0,
		"classifier.type":                 "static",
		"classifier.timeout":              2 * time.Second,
		"classifier.retries":              1,
		"classifier.failure_threshold":    5,
		"classifier.open_timeout":         30 * time.Second,
		"events.type":                     "direct",
		"events.nats.subject":             "verification.events",
		"events.kafka.topic":              "verification-events",
		"tracing.service_name":            "behavior-verify-gateway",
		"geo.type":                        "none",
		"geo.timeout":                     2 * time.Second,
		"geo.maxmind.url":                 "https://geolite.info/geoip/v2.1/city",
	}
	for key, v := range defaults {
		if !k.Exists(key) {
			k.Set(key, v)
		}
	}
}

func substituteEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		// Extract variable name from ${VAR_NAME}
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}
