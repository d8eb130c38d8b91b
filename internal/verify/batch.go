package verify

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/grantcheck/internal/model"
)

// Budget is an explicit wall-clock budget for a batch run, checked against a
// monotonic clock before each item. Items already in flight are allowed to
// finish.
type Budget struct {
	start time.Time
	limit time.Duration
}

// NewBudget starts a budget clock with the given limit.
func NewBudget(limit time.Duration) Budget {
	return Budget{start: time.Now(), limit: limit}
}

// Exceeded reports whether the budget is spent.
func (b Budget) Exceeded() bool {
	return time.Since(b.start) >= b.limit
}

// Elapsed returns time spent since the budget started.
func (b Budget) Elapsed() time.Duration {
	return time.Since(b.start)
}

// Orchestrator drives the single-grant verifier over the candidate set,
// strictly sequentially, pacing itself to respect the third-party rate
// limits. Each result is persisted by the verifier as it completes, so
// partial progress survives a timeout or crash.
type Orchestrator struct {
	selector *Selector
	verifier *Verifier
	pace     time.Duration
}

// NewOrchestrator creates an Orchestrator with a fixed inter-item delay.
func NewOrchestrator(selector *Selector, verifier *Verifier, pace time.Duration) *Orchestrator {
	if pace <= 0 {
		pace = time.Second
	}
	return &Orchestrator{selector: selector, verifier: verifier, pace: pace}
}

// Run executes one batch under the given budget and returns the summary.
// Hitting the deadline is a normal, expected outcome, not an error: the
// remaining candidates are picked up by the next scheduled run. Per-item
// failures are recorded and the batch moves on; no automatic retries.
func (o *Orchestrator) Run(ctx context.Context, budget Budget) *model.BatchSummary {
	cands := o.selector.Select(ctx)

	summary := &model.BatchSummary{
		Status:         "complete",
		TotalQueued:    len(cands.IDs),
		PipelineGrants: cands.PipelineCount,
		StaleGrants:    cands.StaleCount,
		Warnings:       cands.Warnings,
		Results:        []model.ItemResult{},
	}

	zap.L().Info("batch run starting",
		zap.Int("candidates", len(cands.IDs)),
		zap.Int("pipeline_grants", cands.PipelineCount),
		zap.Int("stale_grants", cands.StaleCount),
		zap.Duration("budget", budget.limit),
	)

	limiter := rate.NewLimiter(rate.Every(o.pace), 1)

	for _, grantID := range cands.IDs {
		if budget.Exceeded() {
			summary.TimedOut = true
			summary.Results = append(summary.Results, model.ItemResult{
				GrantID: model.TimeoutSentinel,
				Message: "batch budget exhausted; remaining grants deferred to next run",
			})
			zap.L().Info("batch budget exhausted",
				zap.Int("completed", summary.Verified+summary.Failed),
				zap.Int("remaining", summary.TotalQueued-summary.Verified-summary.Failed),
			)
			break
		}

		if err := limiter.Wait(ctx); err != nil {
			summary.TimedOut = true
			summary.Results = append(summary.Results, model.ItemResult{
				GrantID: model.TimeoutSentinel,
				Message: "batch cancelled; remaining grants deferred to next run",
			})
			break
		}

		outcome, err := o.verifier.Verify(ctx, grantID)
		if err != nil {
			summary.Failed++
			summary.Results = append(summary.Results, model.ItemResult{
				GrantID: grantID,
				Error:   err.Error(),
			})
			zap.L().Error("batch item failed", zap.String("grant_id", grantID), zap.Error(err))
			continue
		}

		summary.Verified++
		summary.Results = append(summary.Results, model.ItemResult{
			GrantID:    outcome.GrantID,
			Status:     outcome.Status,
			Confidence: outcome.Confidence,
			Checks:     outcome.Checks,
			Issues:     outcome.Issues,
			DurationMS: outcome.DurationMS,
		})
	}

	summary.DurationMS = budget.Elapsed().Milliseconds()

	zap.L().Info("batch run finished",
		zap.Int("total_queued", summary.TotalQueued),
		zap.Int("verified", summary.Verified),
		zap.Int("failed", summary.Failed),
		zap.Bool("timed_out", summary.TimedOut),
		zap.Int64("duration_ms", summary.DurationMS),
	)

	return summary
}
