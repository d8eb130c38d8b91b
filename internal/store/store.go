package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rotisserie/eris"

	"github.com/sells-group/grantcheck/internal/model"
)

// ErrNotFound is returned when a requested grant does not exist.
var ErrNotFound = eris.New("store: not found")

// Pool is the subset of pgxpool.Pool used by the Postgres store. It is
// satisfied by *pgxpool.Pool and by pgxmock pools in tests.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// Store defines the persistence interface for the verification service.
// The grant catalog is owned by the surrounding application; this interface
// covers only the reads and verification writes the service needs, plus
// catalog inserts for local seeding.
type Store interface {
	// Catalog reads
	GetGrant(ctx context.Context, grantID string) (*model.Grant, error)
	StaleGrantIDs(ctx context.Context, olderThan time.Time) ([]string, error)
	ActivePipelineGrantIDs(ctx context.Context) ([]string, error)

	// Verification writes
	UpdateVerification(ctx context.Context, grantID string, status model.VerificationStatus, confidence *int, details *model.VerificationDetails, at time.Time) error
	AppendVerificationRecord(ctx context.Context, rec *model.VerificationRecord) error

	// Local seeding (catalog writes are otherwise owned by the discovery app)
	InsertGrant(ctx context.Context, g *model.Grant) error
	InsertPipelineEntry(ctx context.Context, e *model.PipelineEntry) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}
