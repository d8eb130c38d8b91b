package verify

import (
	"time"

	"github.com/sells-group/grantcheck/internal/model"
)

// Combination weights and status thresholds for the three-phase protocol.
const (
	weightURL      = 0.25
	weightQuality  = 0.35
	weightCrossRef = 0.40

	verifiedThreshold = 80
	partialThreshold  = 40
)

// urlSubScore maps the URL phase to a near-binary 0-100 gate. A grant with
// no URL on record contributes no signal rather than a penalty.
func urlSubScore(r URLResult) (score int, signal bool) {
	switch r.State {
	case URLStateOK:
		return 100, true
	case URLStateBadStatus:
		return 40, true
	case URLStateUnreachable:
		return 0, true
	default: // no_url
		return 0, false
	}
}

// CombineConfidence computes the final 0-100 confidence from the three phase
// outcomes. Weights are renormalized over the phases that produced a signal:
// the quality phase always does, the URL phase does unless no URL is on
// record, and the cross-reference phase does only when it parsed cleanly.
func CombineConfidence(url URLResult, quality QualityResult, xref *CrossRefResult) int {
	var weighted, totalWeight float64

	if s, ok := urlSubScore(url); ok {
		weighted += weightURL * float64(s)
		totalWeight += weightURL
	}

	weighted += weightQuality * float64(quality.Score)
	totalWeight += weightQuality

	if xref != nil && xref.Signal {
		weighted += weightCrossRef * float64(xref.Confidence)
		totalWeight += weightCrossRef
	}

	return clamp(int(weighted/totalWeight+0.5), 0, 100)
}

// DeriveStatus applies the status precedence rules, first match wins. A past
// window-close date always yields outdated, ahead of every other signal.
// The trailing unverified branch should not be reachable for a completed
// attempt; the verifier treats it as a defect.
func DeriveStatus(g *model.Grant, now time.Time, url URLResult, xref *CrossRefResult, confidence int) model.VerificationStatus {
	if g.WindowClosed(now) {
		return model.StatusOutdated
	}

	corroborated := xref != nil && xref.Signal && xref.Corroborated
	if url.State == URLStateUnreachable && !corroborated {
		return model.StatusUnreachable
	}

	if xref != nil && len(xref.Discrepancies) > 0 {
		return model.StatusDisputed
	}

	if confidence >= verifiedThreshold && url.Passed() && xref != nil && xref.Signal {
		return model.StatusVerified
	}

	if confidence >= partialThreshold {
		return model.StatusPartiallyVerified
	}

	return model.StatusUnverified
}
