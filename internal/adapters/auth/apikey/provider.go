// Package apikey provides API key-based authentication for the admin console.
package apikey

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"strings"
	"sync"

	"github.com/tjfontaine/behavior-verify-gateway/internal/core/ports"
	"github.com/tjfontaine/behavior-verify-gateway/internal/pkg/config"
)

// ErrInvalidKey is returned for an unknown or empty key.
var ErrInvalidKey = errors.New("invalid API key")

type key struct {
	hash        []byte
	id          string
	description string
}

// Provider implements ports.AuthProvider. Keys are configured as SHA-256
// hex digests; the plaintext is never stored.
type Provider struct {
	mu   sync.RWMutex
	keys []key
}

// NewProvider creates a provider for the admin keys in cfg.
func NewProvider(cfg config.AdminConfig) *Provider {
	p := &Provider{}
	p.load(cfg)
	return p
}

// Authenticate checks token against every configured hash in constant time.
func (p *Provider) Authenticate(ctx context.Context, token string) (*ports.AuthContext, error) {
	if token == "" {
		return nil, ErrInvalidKey
	}
	sum := []byte(HashAPIKey(token))

	p.mu.RLock()
	defer p.mu.RUnlock()

	var match *key
	for i := range p.keys {
		if subtle.ConstantTimeCompare(sum, p.keys[i].hash) == 1 {
			match = &p.keys[i]
		}
	}
	if match == nil {
		return nil, ErrInvalidKey
	}

	return &ports.AuthContext{
		KeyID:       match.id,
		Description: match.description,
	}, nil
}

// Enabled reports whether at least one key is configured.
func (p *Provider) Enabled() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.keys) > 0
}

// ReloadFromConfig replaces the key set. This is called when the config
// file changes.
func (p *Provider) ReloadFromConfig(cfg *config.Config) {
	p.load(cfg.Admin)
}

func (p *Provider) load(cfg config.AdminConfig) {
	keys := make([]key, 0, len(cfg.APIKeys))
	for _, k := range cfg.APIKeys {
		h := strings.ToLower(strings.TrimSpace(k.KeyHash))
		if h == "" {
			continue
		}
		keys = append(keys, key{
			hash:        []byte(h),
			id:          keyID(h),
			description: k.Description,
		})
	}

	p.mu.Lock()
	p.keys = keys
	p.mu.Unlock()
}

// keyID is a short, non-secret identifier derived from the hash, safe to log.
func keyID(hash string) string {
	if len(hash) > 8 {
		return hash[:8]
	}
	return hash
}

// HashAPIKey creates a SHA-256 hash of an API key for storage.
func HashAPIKey(apiKey string) string {
	hash := sha256.Sum256([]byte(apiKey))
	return hex.EncodeToString(hash[:])
}
