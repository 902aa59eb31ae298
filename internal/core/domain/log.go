package domain

import (
	"encoding/json"
	"errors"
	"time"
)

// ErrLogNotFound is returned when a log id does not exist.
var ErrLogNotFound = errors.New("verification log not found")

// ErrLocationUnknown is returned by a GeoResolver with no location for an IP.
var ErrLocationUnknown = errors.New("ip location unknown")

// LogID identifies a stored VerificationLog.
type LogID string

// Verdict is the external classifier's answer.
type Verdict struct {
	IsBot      bool         `json:"is_bot"`
	Confidence Opt[float64] `json:"confidence"`
}

// ClassifierInput is everything the classifier receives.
type ClassifierInput struct {
	SubmissionID string           `json:"submission_id"`
	Features     DerivedFeatures  `json:"features"`
	Validation   ValidationResult `json:"validation"`
	Metadata     SessionMetadata  `json:"metadata"`
}

// SessionMetadata is the raw request metadata forwarded to the classifier and
// persisted with the log.
type SessionMetadata struct {
	IPAddress          string          `json:"ip_address"`
	UserAgent          string          `json:"user_agent"`
	BrowserFingerprint string          `json:"browser_fingerprint"`
	DeviceClass        DeviceClass     `json:"device_type"`
	Geo                Opt[GeoPayload] `json:"geo"`
	// IPGeo is the location resolved from IPAddress.
	IPGeo Opt[GeoPayload] `json:"ip_geo"`
}

// VerificationLog is the persisted audit record of one submission. It is
// created once and never mutated.
type VerificationLog struct {
	ID                 LogID            `json:"id"`
	SubmissionID       string           `json:"submission_id"`
	SubmittedAt        time.Time        `json:"submitted_at"`
	IPAddress          string           `json:"ip_address"`
	UserAgent          string           `json:"user_agent"`
	BrowserFingerprint string           `json:"browser_fingerprint"`
	DeviceClass        DeviceClass      `json:"device_type"`
	ReportedLatitude   Opt[float64]     `json:"reported_latitude"`
	ReportedLongitude  Opt[float64]     `json:"reported_longitude"`
	IPLatitude         Opt[float64]     `json:"ip_latitude"`
	IPLongitude        Opt[float64]     `json:"ip_longitude"`
	TimeOnPage         float64          `json:"time_on_page"` // ms
	IdleTime           float64          `json:"idle_time"`    // ms
	MouseMetrics       *MouseMetrics    `json:"mouse_metrics"`
	KeyboardMetrics    *KeyboardMetrics `json:"keyboard_metrics"`
	ScrollMetrics      *ScrollMetrics   `json:"scroll_metrics"`
	AngularVelocity    Opt[float64]     `json:"angular_velocity"`
	ModelFeatures      json.RawMessage  `json:"model_features,omitempty"`
	ValidationResults  ValidationResult `json:"validation_results"`
	IsBot              Opt[bool]        `json:"is_bot"`
	Confidence         Opt[float64]     `json:"confidence"`
	Classifier         string           `json:"classifier,omitempty"`
	Notes              string           `json:"notes"`
}

// VerdictLabel returns "bot", "human" or "unknown".
func (l *VerificationLog) VerdictLabel() string {
	v, ok := l.IsBot.Get()
	switch {
	case !ok:
		return "unknown"
	case v:
		return "bot"
	default:
		return "human"
	}
}

// VerdictFilter narrows a list to a verdict.
type VerdictFilter string

const (
	VerdictAny     VerdictFilter = ""
	VerdictBot     VerdictFilter = "true"
	VerdictHuman   VerdictFilter = "false"
	VerdictUnknown VerdictFilter = "unknown"
)

// LogFilter narrows list and count queries. Zero value matches everything.
type LogFilter struct {
	Verdict   VerdictFilter
	IPAddress string
}

// Matches reports whether l passes the filter.
func (f LogFilter) Matches(l *VerificationLog) bool {
	if f.IPAddress != "" && l.IPAddress != f.IPAddress {
		return false
	}
	switch f.Verdict {
	case VerdictBot:
		v, ok := l.IsBot.Get()
		return ok && v
	case VerdictHuman:
		v, ok := l.IsBot.Get()
		return ok && !v
	case VerdictUnknown:
		return !l.IsBot.Present()
	}
	return true
}

// LogListOptions selects a window of logs ordered by descending SubmittedAt.
type LogListOptions struct {
	Filter LogFilter
	Limit  int
	Offset int
}

// LogStats are aggregate counts over the store.
type LogStats struct {
	Total   int `json:"total"`
	Bot     int `json:"bot"`
	Human   int `json:"human"`
	Unknown int `json:"unknown"`
}
