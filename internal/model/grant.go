package model

import (
	"time"
)

// VerificationStatus represents the current verification state of a grant.
type VerificationStatus string

const (
	StatusUnverified        VerificationStatus = "unverified"
	StatusVerified          VerificationStatus = "verified"
	StatusPartiallyVerified VerificationStatus = "partially_verified"
	StatusOutdated          VerificationStatus = "outdated"
	StatusUnreachable       VerificationStatus = "unreachable"
	StatusDisputed          VerificationStatus = "disputed"
)

// Grant is a funding program record tracked by the catalog. The descriptive
// fields are read-only inputs to verification; only the verification fields
// are mutated by this service.
type Grant struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	FundingSource string     `json:"funding_source"`
	AmountMin     float64    `json:"amount_min,omitempty"`
	AmountMax     float64    `json:"amount_max,omitempty"`
	OpensAt       *time.Time `json:"opens_at,omitempty"`
	ClosesAt      *time.Time `json:"closes_at,omitempty"`
	OfficialURL   string     `json:"official_url,omitempty"`
	RegulationRef string     `json:"regulation_ref,omitempty"`
	Description   string     `json:"description,omitempty"`

	// Verification fields. Confidence is nil iff Status is unverified.
	Status         VerificationStatus   `json:"verification_status"`
	Confidence     *int                 `json:"verification_confidence,omitempty"`
	LastVerifiedAt *time.Time           `json:"last_verified_at,omitempty"`
	Details        *VerificationDetails `json:"verification_details,omitempty"`
}

// WindowClosed reports whether the grant's application window close date is
// strictly in the past relative to now.
func (g *Grant) WindowClosed(now time.Time) bool {
	return g.ClosesAt != nil && g.ClosesAt.Before(now)
}

// VerificationDetails is the structured record of the checks performed during
// the most recent verification attempt, stored on the grant row.
type VerificationDetails struct {
	Checks     []CheckOutcome `json:"checks"`
	Issues     []string       `json:"issues,omitempty"`
	URLState   string         `json:"url_state,omitempty"`
	DurationMS int64          `json:"duration_ms"`
}
