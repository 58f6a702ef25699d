// Package auditstore persists audit rows to PostgreSQL.
//
// Each run's rows are bulk-loaded with COPY into a single table keyed by run
// ID. The table holds original values, so access to it must be controlled
// like access to the source documents.
package auditstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dshills/phiscrub/internal/deid"
)

// DefaultTable is used when no table name is configured.
const DefaultTable = "phiscrub_audit"

// Sink receives the audit rows of a run.
type Sink interface {
	Save(ctx context.Context, runID string, rows []deid.AuditRow) error
}

// DB is the subset of *pgxpool.Pool the store needs.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	CopyFrom(ctx context.Context, table pgx.Identifier, columns []string, src pgx.CopyFromSource) (int64, error)
}

var columns = []string{"run_id", "seq", "keypath", "original", "label", "confidence", "source", "recorded_at"}

// Postgres writes audit rows with COPY.
type Postgres struct {
	db    DB
	table pgx.Identifier
	pool  *pgxpool.Pool
	now   func() time.Time
}

// NewPostgres wraps an existing connection. table may be schema-qualified.
func NewPostgres(db DB, table string) *Postgres {
	return &Postgres{db: db, table: identifier(table), now: time.Now}
}

// Open connects to databaseURL, verifies the connection and creates the
// table if needed.
func Open(ctx context.Context, databaseURL, table string) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	cfg.MaxConns = 4

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	p := NewPostgres(pool, table)
	p.pool = pool
	if err := p.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return p, nil
}

// Close releases the pool opened by Open. It is a no-op for stores built
// with NewPostgres.
func (p *Postgres) Close() {
	if p.pool != nil {
		p.pool.Close()
	}
}

// Table returns the sanitized table name.
func (p *Postgres) Table() string {
	return p.table.Sanitize()
}

// Migrate creates the audit table and its recorded_at index if they do not exist.
func (p *Postgres) Migrate(ctx context.Context) error {
	tbl := p.table.Sanitize()
	idx := pgx.Identifier{p.table[len(p.table)-1] + "_recorded_idx"}.Sanitize()
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS ` + tbl + ` (
			run_id      TEXT NOT NULL,
			seq         INTEGER NOT NULL,
			keypath     TEXT NOT NULL,
			original    TEXT NOT NULL,
			label       TEXT NOT NULL,
			confidence  DOUBLE PRECISION NOT NULL,
			source      TEXT NOT NULL,
			recorded_at TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (run_id, seq)
		)`,
		`CREATE INDEX IF NOT EXISTS ` + idx + ` ON ` + tbl + ` (recorded_at)`,
	}
	for _, s := range stmts {
		if _, err := p.db.Exec(ctx, s); err != nil {
			return fmt.Errorf("migrate audit table: %w", err)
		}
	}
	return nil
}

// Save bulk-inserts rows under runID. An empty slice is a no-op.
func (p *Postgres) Save(ctx context.Context, runID string, rows []deid.AuditRow) error {
	if len(rows) == 0 {
		return nil
	}
	at := p.now().UTC()
	src := pgx.CopyFromSlice(len(rows), func(i int) ([]any, error) {
		r := rows[i]
		return []any{runID, i, r.Keypath, r.Original, string(r.Label), r.Confidence, string(r.Source), at}, nil
	})
	n, err := p.db.CopyFrom(ctx, p.table, columns, src)
	if err != nil {
		return fmt.Errorf("copy audit rows: %w", err)
	}
	if int(n) != len(rows) {
		return fmt.Errorf("copy audit rows: wrote %d of %d", n, len(rows))
	}
	return nil
}

func identifier(table string) pgx.Identifier {
	if table == "" {
		table = DefaultTable
	}
	return pgx.Identifier(strings.Split(table, "."))
}
