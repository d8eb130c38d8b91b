package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/grantcheck/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. Intended for local
// and development runs; production uses Postgres.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS grants (
	id                      TEXT PRIMARY KEY,
	name                    TEXT NOT NULL,
	funding_source          TEXT NOT NULL DEFAULT '',
	amount_min              REAL,
	amount_max              REAL,
	opens_at                DATETIME,
	closes_at               DATETIME,
	official_url            TEXT NOT NULL DEFAULT '',
	regulation_ref          TEXT NOT NULL DEFAULT '',
	description             TEXT NOT NULL DEFAULT '',
	verification_status     TEXT NOT NULL DEFAULT 'unverified',
	verification_confidence INTEGER,
	last_verified_at        DATETIME,
	verification_details    TEXT,
	created_at              DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at              DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS pipeline_entries (
	id       TEXT PRIMARY KEY,
	grant_id TEXT NOT NULL REFERENCES grants(id),
	stage    TEXT NOT NULL DEFAULT 'discovered'
);

CREATE TABLE IF NOT EXISTS verification_history (
	id          TEXT PRIMARY KEY,
	grant_id    TEXT NOT NULL REFERENCES grants(id),
	checks      TEXT NOT NULL,
	status      TEXT NOT NULL,
	confidence  INTEGER,
	duration_ms INTEGER NOT NULL DEFAULT 0,
	created_at  DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_grants_last_verified_at ON grants(last_verified_at);
CREATE INDEX IF NOT EXISTS idx_pipeline_entries_grant_id ON pipeline_entries(grant_id);
CREATE INDEX IF NOT EXISTS idx_pipeline_entries_stage ON pipeline_entries(stage);
CREATE INDEX IF NOT EXISTS idx_verification_history_grant_id ON verification_history(grant_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) GetGrant(ctx context.Context, grantID string) (*model.Grant, error) {
	var g model.Grant
	var amountMin, amountMax sql.NullFloat64
	var confidence sql.NullInt64
	var detailsJSON sql.NullString
	var opensAt, closesAt, lastVerifiedAt sql.NullTime

	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, funding_source, amount_min, amount_max, opens_at, closes_at, official_url, regulation_ref, description, verification_status, verification_confidence, last_verified_at, verification_details FROM grants WHERE id = ?`,
		grantID,
	).Scan(&g.ID, &g.Name, &g.FundingSource, &amountMin, &amountMax, &opensAt, &closesAt,
		&g.OfficialURL, &g.RegulationRef, &g.Description, &g.Status, &confidence, &lastVerifiedAt, &detailsJSON)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, eris.Wrapf(err, "sqlite: get grant %s", grantID)
	}

	g.AmountMin = amountMin.Float64
	g.AmountMax = amountMax.Float64
	if opensAt.Valid {
		t := opensAt.Time
		g.OpensAt = &t
	}
	if closesAt.Valid {
		t := closesAt.Time
		g.ClosesAt = &t
	}
	if lastVerifiedAt.Valid {
		t := lastVerifiedAt.Time
		g.LastVerifiedAt = &t
	}
	if confidence.Valid {
		c := int(confidence.Int64)
		g.Confidence = &c
	}
	if detailsJSON.Valid && detailsJSON.String != "" {
		g.Details = &model.VerificationDetails{}
		if err := json.Unmarshal([]byte(detailsJSON.String), g.Details); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal verification details")
		}
	}
	return &g, nil
}

func (s *SQLiteStore) StaleGrantIDs(ctx context.Context, olderThan time.Time) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM grants WHERE last_verified_at IS NULL OR last_verified_at < ?`,
		olderThan,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: stale grant ids")
	}
	defer rows.Close()

	return scanSQLIDs(rows, "sqlite: scan stale grant id")
}

func (s *SQLiteStore) ActivePipelineGrantIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT grant_id FROM pipeline_entries WHERE stage NOT IN (?, ?)`,
		string(model.StageArchived), string(model.StageRejected),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: active pipeline grant ids")
	}
	defer rows.Close()

	return scanSQLIDs(rows, "sqlite: scan pipeline grant id")
}

func scanSQLIDs(rows *sql.Rows, wrapMsg string) ([]string, error) {
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

func (s *SQLiteStore) UpdateVerification(ctx context.Context, grantID string, status model.VerificationStatus, confidence *int, details *model.VerificationDetails, at time.Time) error {
	var detailsJSON any
	if details != nil {
		b, err := json.Marshal(details)
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal verification details")
		}
		detailsJSON = string(b)
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE grants SET verification_status = ?, verification_confidence = ?, verification_details = ?, last_verified_at = ?, updated_at = ? WHERE id = ?`,
		string(status), confidence, detailsJSON, at, at, grantID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update verification %s", grantID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "sqlite: update verification %s", grantID)
	}
	return nil
}

func (s *SQLiteStore) AppendVerificationRecord(ctx context.Context, rec *model.VerificationRecord) error {
	checksJSON, err := json.Marshal(rec.Checks)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal checks")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO verification_history (id, grant_id, checks, status, confidence, duration_ms, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.GrantID, string(checksJSON), string(rec.Status), rec.Confidence, rec.DurationMS, rec.CreatedAt,
	)
	return eris.Wrapf(err, "sqlite: insert verification record %s", rec.GrantID)
}

func (s *SQLiteStore) InsertGrant(ctx context.Context, g *model.Grant) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO grants (id, name, funding_source, amount_min, amount_max, opens_at, closes_at, official_url, regulation_ref, description, verification_status) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		g.ID, g.Name, g.FundingSource, g.AmountMin, g.AmountMax, g.OpensAt, g.ClosesAt,
		g.OfficialURL, g.RegulationRef, g.Description, string(model.StatusUnverified),
	)
	return eris.Wrapf(err, "sqlite: insert grant %s", g.ID)
}

func (s *SQLiteStore) InsertPipelineEntry(ctx context.Context, e *model.PipelineEntry) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO pipeline_entries (id, grant_id, stage) VALUES (?, ?, ?)`,
		e.ID, e.GrantID, string(e.Stage),
	)
	return eris.Wrapf(err, "sqlite: insert pipeline entry %s", e.ID)
}
