package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/grantcheck/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool Pool
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the hot-path verification writes.
var preparedStatements = map[string]string{
	"get_grant":           `SELECT id, name, funding_source, amount_min, amount_max, opens_at, closes_at, official_url, regulation_ref, description, verification_status, verification_confidence, last_verified_at, verification_details FROM grants WHERE id = $1`,
	"update_verification": `UPDATE grants SET verification_status = $1, verification_confidence = $2, verification_details = $3, last_verified_at = $4, updated_at = $4 WHERE id = $5`,
	"insert_record":       `INSERT INTO verification_history (id, grant_id, checks, status, confidence, duration_ms, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS grants (
	id                      TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	name                    TEXT NOT NULL,
	funding_source          TEXT NOT NULL DEFAULT '',
	amount_min              NUMERIC,
	amount_max              NUMERIC,
	opens_at                TIMESTAMPTZ,
	closes_at               TIMESTAMPTZ,
	official_url            TEXT NOT NULL DEFAULT '',
	regulation_ref          TEXT NOT NULL DEFAULT '',
	description             TEXT NOT NULL DEFAULT '',
	verification_status     TEXT NOT NULL DEFAULT 'unverified',
	verification_confidence INTEGER,
	last_verified_at        TIMESTAMPTZ,
	verification_details    JSONB,
	created_at              TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at              TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS pipeline_entries (
	id       TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	grant_id TEXT NOT NULL REFERENCES grants(id),
	stage    TEXT NOT NULL DEFAULT 'discovered'
);

CREATE TABLE IF NOT EXISTS verification_history (
	id          TEXT PRIMARY KEY,
	grant_id    TEXT NOT NULL REFERENCES grants(id),
	checks      JSONB NOT NULL,
	status      TEXT NOT NULL,
	confidence  INTEGER,
	duration_ms BIGINT NOT NULL DEFAULT 0,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_grants_last_verified_at ON grants(last_verified_at);
CREATE INDEX IF NOT EXISTS idx_grants_verification_status ON grants(verification_status);
CREATE INDEX IF NOT EXISTS idx_pipeline_entries_grant_id ON pipeline_entries(grant_id);
CREATE INDEX IF NOT EXISTS idx_pipeline_entries_stage ON pipeline_entries(stage);
CREATE INDEX IF NOT EXISTS idx_verification_history_grant_id ON verification_history(grant_id);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) GetGrant(ctx context.Context, grantID string) (*model.Grant, error) {
	var g model.Grant
	var amountMin, amountMax *float64
	var detailsJSON []byte
	var confidence *int

	err := s.pool.QueryRow(ctx,
		`SELECT id, name, funding_source, amount_min, amount_max, opens_at, closes_at, official_url, regulation_ref, description, verification_status, verification_confidence, last_verified_at, verification_details FROM grants WHERE id = $1`,
		grantID,
	).Scan(&g.ID, &g.Name, &g.FundingSource, &amountMin, &amountMax, &g.OpensAt, &g.ClosesAt,
		&g.OfficialURL, &g.RegulationRef, &g.Description, &g.Status, &confidence, &g.LastVerifiedAt, &detailsJSON)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, eris.Wrapf(err, "postgres: get grant %s", grantID)
	}

	if amountMin != nil {
		g.AmountMin = *amountMin
	}
	if amountMax != nil {
		g.AmountMax = *amountMax
	}
	g.Confidence = confidence
	if len(detailsJSON) > 0 {
		g.Details = &model.VerificationDetails{}
		if err := json.Unmarshal(detailsJSON, g.Details); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal verification details")
		}
	}
	return &g, nil
}

func (s *PostgresStore) StaleGrantIDs(ctx context.Context, olderThan time.Time) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id FROM grants WHERE last_verified_at IS NULL OR last_verified_at < $1`,
		olderThan,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: stale grant ids")
	}
	defer rows.Close()

	return scanIDs(rows, "postgres: scan stale grant id")
}

func (s *PostgresStore) ActivePipelineGrantIDs(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT DISTINCT grant_id FROM pipeline_entries WHERE stage NOT IN ($1, $2)`,
		string(model.StageArchived), string(model.StageRejected),
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: active pipeline grant ids")
	}
	defer rows.Close()

	return scanIDs(rows, "postgres: scan pipeline grant id")
}

func scanIDs(rows pgx.Rows, wrapMsg string) ([]string, error) {
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, eris.Wrap(err, wrapMsg)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, wrapMsg)
	}
	return ids, nil
}

func (s *PostgresStore) UpdateVerification(ctx context.Context, grantID string, status model.VerificationStatus, confidence *int, details *model.VerificationDetails, at time.Time) error {
	var detailsJSON []byte
	if details != nil {
		var err error
		detailsJSON, err = json.Marshal(details)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal verification details")
		}
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE grants SET verification_status = $1, verification_confidence = $2, verification_details = $3, last_verified_at = $4, updated_at = $4 WHERE id = $5`,
		string(status), confidence, detailsJSON, at, grantID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update verification %s", grantID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: update verification %s", grantID)
	}
	return nil
}

func (s *PostgresStore) AppendVerificationRecord(ctx context.Context, rec *model.VerificationRecord) error {
	checksJSON, err := json.Marshal(rec.Checks)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal checks")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO verification_history (id, grant_id, checks, status, confidence, duration_ms, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		rec.ID, rec.GrantID, checksJSON, string(rec.Status), rec.Confidence, rec.DurationMS, rec.CreatedAt,
	)
	return eris.Wrapf(err, "postgres: insert verification record %s", rec.GrantID)
}

func (s *PostgresStore) InsertGrant(ctx context.Context, g *model.Grant) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO grants (id, name, funding_source, amount_min, amount_max, opens_at, closes_at, official_url, regulation_ref, description, verification_status) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		g.ID, g.Name, g.FundingSource, g.AmountMin, g.AmountMax, g.OpensAt, g.ClosesAt,
		g.OfficialURL, g.RegulationRef, g.Description, string(model.StatusUnverified),
	)
	return eris.Wrapf(err, "postgres: insert grant %s", g.ID)
}

func (s *PostgresStore) InsertPipelineEntry(ctx context.Context, e *model.PipelineEntry) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO pipeline_entries (id, grant_id, stage) VALUES ($1, $2, $3)`,
		e.ID, e.GrantID, string(e.Stage),
	)
	return eris.Wrapf(err, "postgres: insert pipeline entry %s", e.ID)
}
