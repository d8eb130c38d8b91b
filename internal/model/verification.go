package model

import (
	"time"
)

// Check names used in verification records.
const (
	CheckURL            = "url_check"
	CheckSourceQuality  = "source_quality"
	CheckCrossReference = "cross_reference"
)

// TimeoutSentinel is the grant_id of the sentinel result appended to a batch
// summary when the deadline is hit before the candidate set is exhausted.
const TimeoutSentinel = "TIMEOUT"

// CheckOutcome is the result of one individual check within a verification.
type CheckOutcome struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail,omitempty"`
}

// VerificationRecord is one append-only history entry per verification
// attempt. Immutable once written; superseded only by newer records.
type VerificationRecord struct {
	ID         string             `json:"id"`
	GrantID    string             `json:"grant_id"`
	Checks     []CheckOutcome     `json:"checks"`
	Status     VerificationStatus `json:"status"`
	Confidence *int               `json:"confidence,omitempty"`
	DurationMS int64              `json:"duration_ms"`
	CreatedAt  time.Time          `json:"created_at"`
}

// VerifyOutcome is the result of verifying a single grant, returned to the
// caller of the single-grant verification operation.
type VerifyOutcome struct {
	GrantID      string             `json:"grant_id"`
	Status       VerificationStatus `json:"status"`
	Confidence   *int               `json:"confidence,omitempty"`
	Checks       []CheckOutcome     `json:"checks,omitempty"`
	ChecksPassed int                `json:"checks_passed"`
	ChecksTotal  int                `json:"checks_total"`
	Issues       []string           `json:"issues,omitempty"`
	DurationMS   int64              `json:"duration_ms"`
}

// ItemResult is one entry in a batch summary: a completed verification, a
// failed item, or the timeout sentinel.
type ItemResult struct {
	GrantID    string             `json:"grant_id"`
	Status     VerificationStatus `json:"status,omitempty"`
	Confidence *int               `json:"confidence,omitempty"`
	Checks     []CheckOutcome     `json:"checks,omitempty"`
	Issues     []string           `json:"issues,omitempty"`
	DurationMS int64              `json:"duration_ms,omitempty"`
	Error      string             `json:"error,omitempty"`
	Message    string             `json:"message,omitempty"`
}

// BatchSummary is the ephemeral result of one batch run. It is returned to
// the trigger, never persisted.
type BatchSummary struct {
	Status         string       `json:"status"`
	TotalQueued    int          `json:"total_queued"`
	Verified       int          `json:"verified"`
	Failed         int          `json:"failed"`
	PipelineGrants int          `json:"pipeline_grants"`
	StaleGrants    int          `json:"stale_grants"`
	Warnings       []string     `json:"warnings,omitempty"`
	TimedOut       bool         `json:"timed_out"`
	Results        []ItemResult `json:"results"`
	DurationMS     int64        `json:"duration_ms"`
}
