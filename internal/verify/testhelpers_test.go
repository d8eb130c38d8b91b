package verify

import (
	"context"
	"sync"
	"time"

	"github.com/sells-group/grantcheck/internal/model"
)

// fakeStore is an in-memory store.Store with injectable per-source errors.
type fakeStore struct {
	mu      sync.Mutex
	grants  map[string]*model.Grant
	entries []model.PipelineEntry
	records []*model.VerificationRecord

	pipelineErr error
	staleErr    error
	getErr      error
	updateErr   error
	recordErr   error
}

func newFakeStore() *fakeStore {
	return &fakeStore{grants: make(map[string]*model.Grant)}
}

func (f *fakeStore) GetGrant(_ context.Context, grantID string) (*model.Grant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	g, ok := f.grants[grantID]
	if !ok || g == nil {
		return nil, errNotFoundForTest
	}
	cp := *g
	return &cp, nil
}

func (f *fakeStore) StaleGrantIDs(_ context.Context, olderThan time.Time) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.staleErr != nil {
		return nil, f.staleErr
	}
	var ids []string
	for id, g := range f.grants {
		if g == nil || g.LastVerifiedAt == nil || g.LastVerifiedAt.Before(olderThan) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (f *fakeStore) ActivePipelineGrantIDs(_ context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pipelineErr != nil {
		return nil, f.pipelineErr
	}
	seen := make(map[string]bool)
	var ids []string
	for _, e := range f.entries {
		if !e.Stage.Terminal() && !seen[e.GrantID] {
			seen[e.GrantID] = true
			ids = append(ids, e.GrantID)
		}
	}
	return ids, nil
}

func (f *fakeStore) UpdateVerification(_ context.Context, grantID string, status model.VerificationStatus, confidence *int, details *model.VerificationDetails, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return f.updateErr
	}
	g, ok := f.grants[grantID]
	if !ok {
		return errNotFoundForTest
	}
	g.Status = status
	g.Confidence = confidence
	g.Details = details
	t := at
	g.LastVerifiedAt = &t
	return nil
}

func (f *fakeStore) AppendVerificationRecord(_ context.Context, rec *model.VerificationRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.recordErr != nil {
		return f.recordErr
	}
	f.records = append(f.records, rec)
	return nil
}

func (f *fakeStore) InsertGrant(_ context.Context, g *model.Grant) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *g
	if cp.Status == "" {
		cp.Status = model.StatusUnverified
	}
	f.grants[g.ID] = &cp
	return nil
}

func (f *fakeStore) InsertPipelineEntry(_ context.Context, e *model.PipelineEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, *e)
	return nil
}

func (f *fakeStore) Migrate(context.Context) error { return nil }
func (f *fakeStore) Ping(context.Context) error    { return nil }
func (f *fakeStore) Close() error                  { return nil }

var errNotFoundForTest = errNotFound{}

type errNotFound struct{}

func (errNotFound) Error() string { return "not found" }

// fakeXref is a substitutable cross-reference responder.
type fakeXref struct {
	mu     sync.Mutex
	result *CrossRefResult
	err    error
	calls  int
}

func (f *fakeXref) CrossReference(context.Context, *model.Grant) (*CrossRefResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	cp := *f.result
	return &cp, nil
}

func mustRules(t interface{ Fatalf(string, ...any) }) QualityRules {
	r, err := LoadDefaultRules()
	if err != nil {
		t.Fatalf("load rules: %v", err)
	}
	return r
}
