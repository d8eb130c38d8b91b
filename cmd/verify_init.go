package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/grantcheck/internal/store"
	"github.com/sells-group/grantcheck/internal/verify"
	anthropicpkg "github.com/sells-group/grantcheck/pkg/anthropic"
)

// verifyEnv holds the initialized store and verification components needed
// by the verify/batch/serve commands.
type verifyEnv struct {
	Store        store.Store
	Verifier     *verify.Verifier
	Selector     *verify.Selector
	Orchestrator *verify.Orchestrator
}

// Close releases resources held by the environment.
func (ve *verifyEnv) Close() {
	if ve.Store != nil {
		_ = ve.Store.Close()
	}
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "grantcheck.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// initVerify sets up the store, the Anthropic client, and the verification
// components. Callers should defer env.Close().
func initVerify(ctx context.Context) (*verifyEnv, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	rules, err := verify.LoadDefaultRules()
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	anthropicClient := anthropicpkg.NewClient(cfg.Anthropic.Key)
	xref := verify.NewAnthropicCrossReferencer(
		anthropicClient,
		cfg.Anthropic.Model,
		cfg.Anthropic.MaxTokens,
		cfg.Anthropic.WebSearchMaxUses,
	)

	verifier := verify.NewVerifier(
		st,
		verify.NewURLChecker(time.Duration(cfg.Verify.URLTimeoutSecs)*time.Second),
		verify.NewQualityScorer(rules),
		xref,
	)
	selector := verify.NewSelector(st, time.Duration(cfg.Verify.FreshnessWindowDays)*24*time.Hour)
	orchestrator := verify.NewOrchestrator(selector, verifier, time.Duration(cfg.Verify.PaceMillis)*time.Millisecond)

	return &verifyEnv{
		Store:        st,
		Verifier:     verifier,
		Selector:     selector,
		Orchestrator: orchestrator,
	}, nil
}
