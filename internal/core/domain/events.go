package domain

import "time"

// SubmissionEventType identifies a submission lifecycle event.
type SubmissionEventType string

const (
	SubmissionEventRecorded SubmissionEventType = "verification.recorded"
	SubmissionEventFailed   SubmissionEventType = "verification.failed"
)

// SubmissionEvent is published after each submission for decoupled consumers
// (analytics, alerting). It carries a summary, not the full log.
type SubmissionEvent struct {
	Type         SubmissionEventType `json:"type"`
	LogID        LogID               `json:"log_id,omitempty"`
	SubmissionID string              `json:"submission_id"`
	Timestamp    time.Time           `json:"timestamp"`
	Verdict      string              `json:"verdict"`
	FailedChecks []string            `json:"failed_checks,omitempty"`
	Error        string              `json:"error,omitempty"`
}
