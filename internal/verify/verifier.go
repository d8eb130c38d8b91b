package verify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/grantcheck/internal/model"
	"github.com/sells-group/grantcheck/internal/store"
)

// Verifier executes the three-phase check protocol against one grant and
// persists the outcome. Phase failures (URL probe, cross-reference call) are
// recorded as failed checks; only store failures surface as errors.
type Verifier struct {
	store   store.Store
	urls    *URLChecker
	quality *QualityScorer
	xref    CrossReferencer
}

// NewVerifier wires the three phases to a store.
func NewVerifier(st store.Store, urls *URLChecker, quality *QualityScorer, xref CrossReferencer) *Verifier {
	return &Verifier{store: st, urls: urls, quality: quality, xref: xref}
}

// Verify runs the protocol for grantID and writes the grant row and a
// history record. last_verified_at is set on every completed attempt,
// successful or not.
func (v *Verifier) Verify(ctx context.Context, grantID string) (*model.VerifyOutcome, error) {
	g, err := v.store.GetGrant(ctx, grantID)
	if err != nil {
		return nil, eris.Wrapf(err, "verify: load grant %s", grantID)
	}

	start := time.Now()
	log := zap.L().With(zap.String("grant_id", grantID))

	var checks []model.CheckOutcome
	var issues []string

	// Phase 1: URL validation.
	urlRes := v.urls.Check(ctx, g.OfficialURL)
	checks = append(checks, model.CheckOutcome{
		Name:   model.CheckURL,
		Passed: urlRes.Passed(),
		Detail: urlRes.Note,
	})
	if !urlRes.Passed() {
		issues = append(issues, urlRes.Note)
	}

	// Phase 2: source-quality scoring. Purely local, never fails.
	qRes := v.quality.Score(g)
	checks = append(checks, model.CheckOutcome{
		Name:   model.CheckSourceQuality,
		Passed: qRes.Score >= partialThreshold,
		Detail: fmt.Sprintf("score %d/100; %s", qRes.Score, strings.Join(qRes.Notes, "; ")),
	})

	// Phase 3: cross-reference. A call failure is a failed check, not an
	// aborted verification.
	xres, xerr := v.xref.CrossReference(ctx, g)
	if xerr != nil {
		log.Warn("cross-reference call failed", zap.Error(xerr))
		checks = append(checks, model.CheckOutcome{
			Name:   model.CheckCrossReference,
			Passed: false,
			Detail: fmt.Sprintf("call failed: %v", xerr),
		})
		issues = append(issues, "cross-reference unavailable")
		xres = nil
	} else {
		checks = append(checks, model.CheckOutcome{
			Name:   model.CheckCrossReference,
			Passed: xres.Signal && len(xres.Discrepancies) == 0,
			Detail: xres.Summary,
		})
		issues = append(issues, xres.Discrepancies...)
	}

	confidence := CombineConfidence(urlRes, qRes, xres)
	status := DeriveStatus(g, time.Now(), urlRes, xres, confidence)

	confPtr := &confidence
	if status == model.StatusUnverified {
		// Completed attempts must not land here; keep the confidence null
		// so the status/confidence pairing stays consistent.
		log.Error("verification completed with unverified status",
			zap.Int("confidence", confidence),
		)
		confPtr = nil
	}

	duration := time.Since(start)
	now := time.Now().UTC()
	details := &model.VerificationDetails{
		Checks:     checks,
		Issues:     issues,
		URLState:   string(urlRes.State),
		DurationMS: duration.Milliseconds(),
	}

	if err := v.store.UpdateVerification(ctx, grantID, status, confPtr, details, now); err != nil {
		return nil, eris.Wrapf(err, "verify: persist grant %s", grantID)
	}

	rec := &model.VerificationRecord{
		ID:         uuid.New().String(),
		GrantID:    grantID,
		Checks:     checks,
		Status:     status,
		Confidence: confPtr,
		DurationMS: duration.Milliseconds(),
		CreatedAt:  now,
	}
	if err := v.store.AppendVerificationRecord(ctx, rec); err != nil {
		return nil, eris.Wrapf(err, "verify: record grant %s", grantID)
	}

	passed := 0
	for _, c := range checks {
		if c.Passed {
			passed++
		}
	}

	log.Info("verification complete",
		zap.String("status", string(status)),
		zap.Int("confidence", confidence),
		zap.Int("checks_passed", passed),
		zap.Duration("duration", duration),
	)

	return &model.VerifyOutcome{
		GrantID:      grantID,
		Status:       status,
		Confidence:   confPtr,
		Checks:       checks,
		ChecksPassed: passed,
		ChecksTotal:  len(checks),
		Issues:       issues,
		DurationMS:   duration.Milliseconds(),
	}, nil
}
