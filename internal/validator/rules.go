// Package validator applies deterministic rule checks to derived features and
// session metadata. Every check is a pure predicate; a failed check is
// recorded as data and never blocks a submission.
package validator

import (
	"fmt"
	"math"
	"net/netip"
	"regexp"
	"strings"
	"time"

	"github.com/tjfontaine/behavior-verify-gateway/internal/core/domain"
	"github.com/tjfontaine/behavior-verify-gateway/internal/pkg/config"
)

// DefaultUserAgentPatterns match mainstream desktop and mobile browsers.
var DefaultUserAgentPatterns = []string{
	`Mozilla/5\.0 \(.+\) AppleWebKit/[\d.]+ \(KHTML, like Gecko\) .*(Chrome|CriOS|Edg|EdgA|EdgiOS|OPR)/[\d.]+`,
	`Mozilla/5\.0 \(.+\) Gecko/[\d.]+ Firefox/[\d.]+`,
	`Mozilla/5\.0 \(.+\) AppleWebKit/[\d.]+ \(KHTML, like Gecko\) (Version|FxiOS)/[\d.]+.*Safari/[\d.]+`,
}

// DefaultSuspiciousAgents match automation frameworks.
var DefaultSuspiciousAgents = []string{
	`(?i)headless`,
	`(?i)phantomjs`,
	`(?i)selenium`,
	`(?i)webdriver`,
	`(?i)puppeteer`,
	`(?i)playwright`,
	`(?i)cypress`,
	`(?i)electron`,
}

// Rules is an immutable, compiled rule set.
type Rules struct {
	MinPointerSamples  int
	MaxPointerSpeed    float64 // px/ms
	MinSessionDuration time.Duration
	MaxSessionDuration time.Duration
	MinKeyInterval     float64 // ms
	MinKeyHold         float64 // ms
	GeoMatchRadius     float64 // km

	blocklist  []netip.Prefix
	allowlist  []netip.Prefix
	userAgents []*regexp.Regexp
	suspicious []*regexp.Regexp
}

// NewRules compiles cfg. Zero thresholds fall back to defaults; malformed
// prefixes or patterns are errors.
func NewRules(cfg config.ValidationConfig) (*Rules, error) {
	r := &Rules{
		MinPointerSamples:  cfg.MinPointerSamples,
		MaxPointerSpeed:    cfg.MaxPointerSpeed,
		MinSessionDuration: cfg.MinSessionDuration,
		MaxSessionDuration: cfg.MaxSessionDuration,
		MinKeyInterval:     cfg.MinKeyInterval,
		MinKeyHold:         cfg.MinKeyHold,
		GeoMatchRadius:     cfg.GeoMatchRadius,
	}
	if r.MinPointerSamples <= 0 {
		r.MinPointerSamples = 5
	}
	if r.MaxPointerSpeed <= 0 {
		r.MaxPointerSpeed = 20
	}
	if r.MinSessionDuration <= 0 {
		r.MinSessionDuration = 2 * time.Second
	}
	if r.MaxSessionDuration <= 0 {
		r.MaxSessionDuration = 30 * time.Minute
	}
	if r.GeoMatchRadius <= 0 {
		r.GeoMatchRadius = 500
	}
	if r.MaxSessionDuration < r.MinSessionDuration {
		return nil, fmt.Errorf("max_session_duration %v is below min_session_duration %v", r.MaxSessionDuration, r.MinSessionDuration)
	}

	var err error
	if r.blocklist, err = parsePrefixes(cfg.IPBlocklist); err != nil {
		return nil, fmt.Errorf("ip_blocklist: %w", err)
	}
	if r.allowlist, err = parsePrefixes(cfg.IPAllowlist); err != nil {
		return nil, fmt.Errorf("ip_allowlist: %w", err)
	}

	uaPatterns := cfg.UserAgentPatterns
	if len(uaPatterns) == 0 {
		uaPatterns = DefaultUserAgentPatterns
	}
	if r.userAgents, err = compilePatterns(uaPatterns); err != nil {
		return nil, fmt.Errorf("user_agent_patterns: %w", err)
	}
	suspicious := cfg.SuspiciousAgents
	if len(suspicious) == 0 {
		suspicious = DefaultSuspiciousAgents
	}
	if r.suspicious, err = compilePatterns(suspicious); err != nil {
		return nil, fmt.Errorf("suspicious_agents: %w", err)
	}
	return r, nil
}

// MustRules is NewRules for static configurations known to be valid.
func MustRules(cfg config.ValidationConfig) *Rules {
	r, err := NewRules(cfg)
	if err != nil {
		panic(err)
	}
	return r
}

func parsePrefixes(items []string) ([]netip.Prefix, error) {
	out := make([]netip.Prefix, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if !strings.Contains(item, "/") {
			addr, err := netip.ParseAddr(item)
			if err != nil {
				return nil, err
			}
			out = append(out, netip.PrefixFrom(addr.Unmap(), addr.Unmap().BitLen()))
			continue
		}
		p, err := netip.ParsePrefix(item)
		if err != nil {
			return nil, err
		}
		out = append(out, p.Masked())
	}
	return out, nil
}

func compilePatterns(patterns []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, err
		}
		out = append(out, re)
	}
	return out, nil
}

// FingerprintPresent reports whether a fingerprint was obtained.
func (r *Rules) FingerprintPresent(fp string) bool {
	return strings.TrimSpace(fp) != ""
}

// IPValid reports whether ip parses and is not blocked. The allowlist wins
// over the blocklist.
func (r *Rules) IPValid(ip string) bool {
	addr, err := netip.ParseAddr(strings.TrimSpace(ip))
	if err != nil || !addr.IsValid() || addr.IsUnspecified() {
		return false
	}
	addr = addr.Unmap()
	for _, p := range r.allowlist {
		if p.Contains(addr) {
			return true
		}
	}
	for _, p := range r.blocklist {
		if p.Contains(addr) {
			return false
		}
	}
	return true
}

// MouseMovementValid requires enough accepted pointer samples and an average
// speed in (0, MaxPointerSpeed]. A missing speed fails.
func (r *Rules) MouseMovementValid(m domain.MouseMetrics) bool {
	if m.SampleCount < r.MinPointerSamples {
		return false
	}
	speed, ok := m.AverageSpeed.Get()
	if !ok {
		return false
	}
	return speed > 0 && speed <= r.MaxPointerSpeed
}

// SessionDurationValid requires time on page (ms) within the configured bounds.
func (r *Rules) SessionDurationValid(timeOnPage float64) bool {
	d := time.Duration(timeOnPage * float64(time.Millisecond))
	return d >= r.MinSessionDuration && d <= r.MaxSessionDuration
}

// UserAgentValid requires a known browser signature and no automation marker.
func (r *Rules) UserAgentValid(ua string) bool {
	ua = strings.TrimSpace(ua)
	if ua == "" {
		return false
	}
	for _, re := range r.suspicious {
		if re.MatchString(ua) {
			return false
		}
	}
	for _, re := range r.userAgents {
		if re.MatchString(ua) {
			return true
		}
	}
	return false
}

// KeyboardInputValid rejects machine-speed typing. Sessions without typing
// pass.
func (r *Rules) KeyboardInputValid(k domain.KeyboardMetrics) bool {
	if iv, ok := k.AverageInterval.Get(); ok && iv < r.MinKeyInterval {
		return false
	}
	if sd, ok := k.IntervalStdDev.Get(); ok && len(k.Holds) > 3 && sd == 0 {
		return false
	}
	if hold, ok := k.AverageHold.Get(); ok && hold < r.MinKeyHold {
		return false
	}
	return true
}

// DeviceOrientationValid requires orientation movement from touch-class
// devices that support the orientation API.
func (r *Rules) DeviceOrientationValid(device domain.DeviceContext, angular domain.Opt[float64]) bool {
	if !device.DeviceClass.TouchCapable() || !device.OrientationSupported {
		return true
	}
	v, ok := angular.Get()
	return ok && v > 0
}

// GeolocationMatch reports whether the browser's reported fix lies within
// GeoMatchRadius of the location resolved from the client IP. The accuracy
// of both sides (metres) widens the radius. Vacuously true when either side
// is absent.
func (r *Rules) GeolocationMatch(reported, resolved domain.Opt[domain.GeoPayload]) bool {
	fix, ok := reported.Get()
	if !ok {
		return true
	}
	ip, ok := resolved.Get()
	if !ok {
		return true
	}
	return distanceKm(fix, ip) <= r.GeoMatchRadius+(fix.Accuracy+ip.Accuracy)/1000
}

const earthRadiusKm = 6371.0

// distanceKm is the haversine great-circle distance between a and b.
func distanceKm(a, b domain.GeoPayload) float64 {
	lat1 := a.Latitude * math.Pi / 180
	lat2 := b.Latitude * math.Pi / 180
	dLat := lat2 - lat1
	dLon := (b.Longitude - a.Longitude) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusKm * math.Asin(math.Min(1, math.Sqrt(h)))
}

// Input is what a full validation pass reads.
type Input struct {
	Features *domain.DerivedFeatures
	Metadata domain.SessionMetadata
	Device   domain.DeviceContext
}

// Validate runs every check.
func (r *Rules) Validate(in Input) domain.ValidationResult {
	f := in.Features
	return domain.ValidationResult{
		FingerprintPresent:     r.FingerprintPresent(in.Metadata.BrowserFingerprint),
		IPValid:                r.IPValid(in.Metadata.IPAddress),
		MouseMovementValid:     r.MouseMovementValid(f.Mouse),
		SessionDurationValid:   r.SessionDurationValid(f.TimeOnPage),
		UserAgentValid:         r.UserAgentValid(in.Metadata.UserAgent),
		KeyboardInputValid:     r.KeyboardInputValid(f.Keyboard),
		DeviceOrientationValid: r.DeviceOrientationValid(in.Device, f.AngularVelocity),
		GeolocationMatch:       r.GeolocationMatch(in.Metadata.Geo, in.Metadata.IPGeo),
	}
}
