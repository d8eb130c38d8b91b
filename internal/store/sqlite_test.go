package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/grantcheck/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	st, err := NewSQLite(filepath.Join(t.TempDir(), "grantcheck.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func TestSQLiteGrantRoundTrip(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	opens := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	closes := time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC)
	g := &model.Grant{
		ID:            "g1",
		Name:          "Rural Broadband Expansion",
		FundingSource: "USDA",
		AmountMin:     50000,
		AmountMax:     2000000,
		OpensAt:       &opens,
		ClosesAt:      &closes,
		OfficialURL:   "https://www.usda.gov/broadband",
		RegulationRef: "7 CFR 1740",
		Description:   "Broadband grants.",
	}
	require.NoError(t, st.InsertGrant(ctx, g))

	got, err := st.GetGrant(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, g.Name, got.Name)
	assert.Equal(t, g.AmountMax, got.AmountMax)
	assert.Equal(t, model.StatusUnverified, got.Status)
	assert.Nil(t, got.Confidence)
	assert.Nil(t, got.LastVerifiedAt)
	require.NotNil(t, got.ClosesAt)
	assert.WithinDuration(t, closes, *got.ClosesAt, time.Second)
}

func TestSQLiteGetGrant_NotFound(t *testing.T) {
	st := newTestSQLiteStore(t)

	_, err := st.GetGrant(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteUpdateVerification(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	require.NoError(t, st.InsertGrant(ctx, &model.Grant{ID: "g1", Name: "Test"}))

	conf := 91
	at := time.Now().UTC().Truncate(time.Second)
	details := &model.VerificationDetails{
		Checks:   []model.CheckOutcome{{Name: model.CheckURL, Passed: true}},
		URLState: "ok",
	}
	require.NoError(t, st.UpdateVerification(ctx, "g1", model.StatusVerified, &conf, details, at))

	got, err := st.GetGrant(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusVerified, got.Status)
	require.NotNil(t, got.Confidence)
	assert.Equal(t, 91, *got.Confidence)
	require.NotNil(t, got.LastVerifiedAt)
	assert.WithinDuration(t, at, *got.LastVerifiedAt, time.Second)
	require.NotNil(t, got.Details)
	assert.Equal(t, "ok", got.Details.URLState)

	// A later defect attempt nulls the confidence again.
	require.NoError(t, st.UpdateVerification(ctx, "g1", model.StatusUnverified, nil, nil, at.Add(time.Minute)))
	got, err = st.GetGrant(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusUnverified, got.Status)
	assert.Nil(t, got.Confidence)
	require.NotNil(t, got.LastVerifiedAt)
}

func TestSQLiteUpdateVerification_MissingRow(t *testing.T) {
	st := newTestSQLiteStore(t)

	err := st.UpdateVerification(context.Background(), "gone", model.StatusVerified, nil, nil, time.Now())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteStaleGrantIDs(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.InsertGrant(ctx, &model.Grant{ID: "never", Name: "a"}))
	require.NoError(t, st.InsertGrant(ctx, &model.Grant{ID: "old", Name: "b"}))
	require.NoError(t, st.InsertGrant(ctx, &model.Grant{ID: "fresh", Name: "c"}))

	now := time.Now().UTC()
	require.NoError(t, st.UpdateVerification(ctx, "old", model.StatusVerified, nil, nil, now.Add(-10*24*time.Hour)))
	require.NoError(t, st.UpdateVerification(ctx, "fresh", model.StatusVerified, nil, nil, now.Add(-time.Hour)))

	ids, err := st.StaleGrantIDs(ctx, now.Add(-7*24*time.Hour))
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"never", "old"}, ids)
}

func TestSQLiteActivePipelineGrantIDs(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.InsertGrant(ctx, &model.Grant{ID: "g1", Name: "a"}))
	require.NoError(t, st.InsertGrant(ctx, &model.Grant{ID: "g2", Name: "b"}))
	require.NoError(t, st.InsertPipelineEntry(ctx, &model.PipelineEntry{ID: "e1", GrantID: "g1", Stage: model.StageDrafting}))
	require.NoError(t, st.InsertPipelineEntry(ctx, &model.PipelineEntry{ID: "e2", GrantID: "g1", Stage: model.StageSubmitted}))
	require.NoError(t, st.InsertPipelineEntry(ctx, &model.PipelineEntry{ID: "e3", GrantID: "g2", Stage: model.StageArchived}))

	ids, err := st.ActivePipelineGrantIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"g1"}, ids)
}

func TestSQLiteAppendVerificationRecord(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	require.NoError(t, st.InsertGrant(ctx, &model.Grant{ID: "g1", Name: "a"}))

	conf := 70
	rec := &model.VerificationRecord{
		ID:         "rec-1",
		GrantID:    "g1",
		Checks:     []model.CheckOutcome{{Name: model.CheckCrossReference, Passed: false, Detail: "no signal"}},
		Status:     model.StatusPartiallyVerified,
		Confidence: &conf,
		DurationMS: 512,
		CreatedAt:  time.Now().UTC(),
	}
	assert.NoError(t, st.AppendVerificationRecord(ctx, rec))
}

func TestSQLitePing(t *testing.T) {
	st := newTestSQLiteStore(t)
	assert.NoError(t, st.Ping(context.Background()))
}
