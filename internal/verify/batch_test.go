package verify

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/grantcheck/internal/model"
)

func TestBudget(t *testing.T) {
	b := NewBudget(time.Hour)
	assert.False(t, b.Exceeded())
	assert.Less(t, b.Elapsed(), time.Hour)

	assert.True(t, NewBudget(0).Exceeded())
}

func newTestOrchestrator(t *testing.T, st *fakeStore, xref CrossReferencer) *Orchestrator {
	t.Helper()
	sel := NewSelector(st, 7*24*time.Hour)
	return NewOrchestrator(sel, newTestVerifier(t, st, xref), time.Millisecond)
}

func TestOrchestrator_FullRun(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	st := newFakeStore()
	for _, id := range []string{"g1", "g2", "g3"} {
		g := completeGrant()
		g.ID = id
		g.OfficialURL = ts.URL
		require.NoError(t, st.InsertGrant(context.Background(), g))
	}
	seedEntry(t, st, "g1", model.StageDrafting)

	xref := &fakeXref{result: &CrossRefResult{Signal: true, Confidence: 92, Corroborated: true}}
	o := newTestOrchestrator(t, st, xref)

	sum := o.Run(context.Background(), NewBudget(time.Minute))

	assert.Equal(t, "complete", sum.Status)
	assert.Equal(t, 3, sum.TotalQueued)
	assert.Equal(t, 3, sum.Verified)
	assert.Zero(t, sum.Failed)
	assert.False(t, sum.TimedOut)
	assert.Equal(t, 1, sum.PipelineGrants)
	assert.Equal(t, 2, sum.StaleGrants)
	require.Len(t, sum.Results, 3)
	for _, r := range sum.Results {
		assert.Equal(t, model.StatusVerified, r.Status)
		assert.Empty(t, r.Error)
		assert.Len(t, r.Checks, 3)
	}
	assert.Len(t, st.records, 3)
	assert.GreaterOrEqual(t, sum.DurationMS, int64(0))
}

func TestOrchestrator_ZeroBudgetTimesOutImmediately(t *testing.T) {
	st := newFakeStore()
	seedGrant(t, st, "g1", nil)
	seedGrant(t, st, "g2", nil)

	xref := &fakeXref{result: &CrossRefResult{Signal: true, Confidence: 90, Corroborated: true}}
	o := newTestOrchestrator(t, st, xref)

	sum := o.Run(context.Background(), NewBudget(0))

	assert.True(t, sum.TimedOut)
	assert.Equal(t, 2, sum.TotalQueued)
	assert.Zero(t, sum.Verified)
	assert.Zero(t, sum.Failed)
	require.Len(t, sum.Results, 1)
	assert.Equal(t, model.TimeoutSentinel, sum.Results[0].GrantID)
	assert.Zero(t, xref.calls)
	assert.Empty(t, st.records)
}

func TestOrchestrator_PerItemFailureContinues(t *testing.T) {
	st := newFakeStore()
	// "ghost" is returned by the staleness source but GetGrant fails for it.
	seedGrant(t, st, "good", nil)
	g := completeGrant()
	g.ID = "good"
	g.OfficialURL = ""
	st.mu.Lock()
	st.grants["good"] = g
	st.grants["ghost"] = nil
	st.mu.Unlock()

	xref := &fakeXref{result: &CrossRefResult{Signal: true, Confidence: 85, Corroborated: true}}
	o := newTestOrchestrator(t, st, xref)

	sum := o.Run(context.Background(), NewBudget(time.Minute))

	assert.Equal(t, 2, sum.TotalQueued)
	assert.Equal(t, 1, sum.Verified)
	assert.Equal(t, 1, sum.Failed)
	assert.False(t, sum.TimedOut)

	var failed, ok int
	for _, r := range sum.Results {
		if r.Error != "" {
			failed++
			assert.Equal(t, "ghost", r.GrantID)
		} else {
			ok++
			assert.Equal(t, "good", r.GrantID)
		}
	}
	assert.Equal(t, 1, failed)
	assert.Equal(t, 1, ok)
}

func TestOrchestrator_SelectorWarningsSurfaceInSummary(t *testing.T) {
	st := newFakeStore()
	st.pipelineErr = errNotFoundForTest
	seedGrant(t, st, "g1", nil)

	xref := &fakeXref{result: &CrossRefResult{Signal: true, Confidence: 85, Corroborated: true}}
	o := newTestOrchestrator(t, st, xref)

	sum := o.Run(context.Background(), NewBudget(time.Minute))

	require.Len(t, sum.Warnings, 1)
	assert.Contains(t, sum.Warnings[0], "pipeline source unreadable")
	assert.Equal(t, 1, sum.Verified)
}

func TestOrchestrator_EmptyCandidateSet(t *testing.T) {
	o := newTestOrchestrator(t, newFakeStore(), &fakeXref{result: &CrossRefResult{}})

	sum := o.Run(context.Background(), NewBudget(time.Minute))

	assert.Equal(t, "complete", sum.Status)
	assert.Zero(t, sum.TotalQueued)
	assert.False(t, sum.TimedOut)
	assert.NotNil(t, sum.Results)
	assert.Empty(t, sum.Results)
}

func TestOrchestrator_CancelledContext(t *testing.T) {
	st := newFakeStore()
	seedGrant(t, st, "g1", nil)

	xref := &fakeXref{result: &CrossRefResult{Signal: true, Confidence: 85, Corroborated: true}}
	sel := NewSelector(st, 7*24*time.Hour)
	// Long pace so the limiter blocks until cancellation.
	o := NewOrchestrator(sel, newTestVerifier(t, st, xref), time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sum := o.Run(ctx, NewBudget(time.Minute))

	assert.True(t, sum.TimedOut)
	require.Len(t, sum.Results, 1)
	assert.Equal(t, model.TimeoutSentinel, sum.Results[0].GrantID)
}
