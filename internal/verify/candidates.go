package verify

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/grantcheck/internal/store"
)

// Candidates is the deduplicated set of grant ids needing (re-)verification,
// with a per-source breakdown for the batch summary. IDs carries no defined
// order.
type Candidates struct {
	IDs           []string
	PipelineCount int
	StaleCount    int
	Warnings      []string
}

// Selector computes the candidate set from two independent signals: grants
// referenced by an active pipeline entry, and grants whose last verification
// is missing or older than the freshness window.
type Selector struct {
	store  store.Store
	window time.Duration
}

// NewSelector creates a Selector with the given freshness window.
func NewSelector(st store.Store, window time.Duration) *Selector {
	if window <= 0 {
		window = 7 * 24 * time.Hour
	}
	return &Selector{store: st, window: window}
}

// Select returns the union of the two sources. If one source read fails the
// selector degrades to the other and surfaces a warning; it never aborts the
// whole selection. An empty set is a valid result.
func (s *Selector) Select(ctx context.Context) Candidates {
	var c Candidates
	seen := make(map[string]bool)

	pipelineIDs, err := s.store.ActivePipelineGrantIDs(ctx)
	if err != nil {
		zap.L().Warn("selector: pipeline source unreadable", zap.Error(err))
		c.Warnings = append(c.Warnings, fmt.Sprintf("pipeline source unreadable: %v", err))
	}
	for _, id := range pipelineIDs {
		if !seen[id] {
			seen[id] = true
			c.IDs = append(c.IDs, id)
			c.PipelineCount++
		}
	}

	staleIDs, err := s.store.StaleGrantIDs(ctx, time.Now().Add(-s.window))
	if err != nil {
		zap.L().Warn("selector: staleness source unreadable", zap.Error(err))
		c.Warnings = append(c.Warnings, fmt.Sprintf("staleness source unreadable: %v", err))
	}
	for _, id := range staleIDs {
		if !seen[id] {
			seen[id] = true
			c.IDs = append(c.IDs, id)
			c.StaleCount++
		}
	}

	return c
}
