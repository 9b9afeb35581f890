package sqldb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/tjfontaine/polyglot-telemetry/internal/core/domain"
	"github.com/tjfontaine/polyglot-telemetry/internal/core/ports"
	"github.com/tjfontaine/polyglot-telemetry/internal/storage/dialect"
)

// Store is a SQL implementation of ports.VersionStorage that supports
// multiple database dialects. Records and content blobs live in separate
// tables so history can be listed without loading content.
type Store struct {
	db      *sqlx.DB
	dialect dialect.Dialect
}

var _ ports.VersionStorage = (*Store)(nil)

// Config holds database connection configuration
type Config struct {
	Driver string // Driver name: sqlite, postgres
	DSN    string // Data source name / connection string
}

// New creates a new SQL store with the specified configuration.
func New(cfg Config) (*Store, error) {
	d, err := dialect.FromDriverName(cfg.Driver)
	if err != nil {
		return nil, fmt.Errorf("unsupported database driver: %w", err)
	}

	db, err := sqlx.Open(d.DriverName(), cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if d.Name() == string(dialect.SQLite) {
		// Pragmas are per connection.
		db.SetMaxOpenConns(1)
	}

	for _, stmt := range d.PragmaStatements() {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute pragma: %w", err)
		}
	}

	store := &Store{db: db, dialect: d}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// NewSQLite creates a new SQLite store
func NewSQLite(dbPath string) (*Store, error) {
	return New(Config{Driver: "sqlite", DSN: dbPath})
}

// NewPostgres creates a new PostgreSQL store using the pgx driver
func NewPostgres(dsn string) (*Store, error) {
	return New(Config{Driver: "postgres", DSN: dsn})
}

// Dialect returns the dialect being used
func (s *Store) Dialect() dialect.Dialect {
	return s.dialect
}

func (s *Store) initSchema() error {
	statements := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS version_records (
	version_id TEXT PRIMARY KEY,
	content_ref TEXT NOT NULL,
	sequence INTEGER NOT NULL,
	created_at_ns %s NOT NULL,
	committer_id TEXT NOT NULL DEFAULT '',
	event_type TEXT NOT NULL DEFAULT '',
	content_type TEXT NOT NULL,
	summary TEXT NOT NULL DEFAULT '',
	metadata TEXT NOT NULL DEFAULT ''
)`, s.dialect.BigIntType()),
		`CREATE TABLE IF NOT EXISTS version_blobs (
	version_id TEXT PRIMARY KEY,
	content TEXT NOT NULL,
	FOREIGN KEY (version_id) REFERENCES version_records(version_id) ON DELETE CASCADE
)`,
		`CREATE INDEX IF NOT EXISTS idx_version_records_ref ON version_records(content_ref, sequence)`,
		`CREATE INDEX IF NOT EXISTS idx_version_records_created ON version_records(created_at_ns)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(s.dialect.Rebind(stmt)); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}

	return s.runMigrations()
}

// runMigrations adds columns introduced after the first schema version.
func (s *Store) runMigrations() error {
	migrations := []struct {
		table  string
		column string
		ddl    string
	}{
		{"version_records", "diff", "ALTER TABLE version_records ADD COLUMN diff TEXT NOT NULL DEFAULT ''"},
	}

	for _, m := range migrations {
		exists, err := s.columnExists(m.table, m.column)
		if err != nil {
			return fmt.Errorf("failed to check column %s.%s: %w", m.table, m.column, err)
		}
		if !exists {
			if _, err := s.db.Exec(m.ddl); err != nil {
				return fmt.Errorf("failed to add column %s.%s: %w", m.table, m.column, err)
			}
		}
	}

	return nil
}

func (s *Store) columnExists(table, column string) (bool, error) {
	var count int
	err := s.db.QueryRow(s.dialect.ColumnExistsQuery(), table, column).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// recordRow is the version_records row layout.
type recordRow struct {
	VersionID   string `db:"version_id"`
	ContentRef  string `db:"content_ref"`
	Sequence    int    `db:"sequence"`
	CreatedAtNs int64  `db:"created_at_ns"`
	CommitterID string `db:"committer_id"`
	EventType   string `db:"event_type"`
	ContentType string `db:"content_type"`
	Summary     string `db:"summary"`
	Diff        string `db:"diff"`
	Metadata    string `db:"metadata"`
}

func (r recordRow) toDomain() (*domain.VersionRecord, error) {
	rec := &domain.VersionRecord{
		VersionID:   r.VersionID,
		Sequence:    r.Sequence,
		Timestamp:   time.Unix(0, r.CreatedAtNs).UTC(),
		CommitterID: r.CommitterID,
		EventType:   r.EventType,
		ContentType: r.ContentType,
		ContentRef:  r.ContentRef,
		Summary:     r.Summary,
		Diff:        r.Diff,
	}
	if r.Metadata != "" {
		if err := json.Unmarshal([]byte(r.Metadata), &rec.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata for %s: %w", r.VersionID, err)
		}
	}
	return rec, nil
}

const selectRecord = `SELECT version_id, content_ref, sequence, created_at_ns, committer_id,
	event_type, content_type, summary, diff, metadata FROM version_records`

func (s *Store) ListVersions(ctx context.Context, contentRef string) ([]*domain.VersionRecord, error) {
	query := s.dialect.Rebind(selectRecord + ` WHERE content_ref = ? ORDER BY sequence DESC`)
	return s.listRecords(ctx, query, contentRef)
}

func (s *Store) ListAllVersions(ctx context.Context) ([]*domain.VersionRecord, error) {
	query := selectRecord + ` ORDER BY created_at_ns DESC, sequence DESC`
	return s.listRecords(ctx, query)
}

func (s *Store) listRecords(ctx context.Context, query string, args ...any) ([]*domain.VersionRecord, error) {
	var rows []recordRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to query versions: %w", err)
	}

	out := make([]*domain.VersionRecord, 0, len(rows))
	for _, row := range rows {
		rec, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *Store) GetContent(ctx context.Context, versionID string) (string, error) {
	query := s.dialect.Rebind(`SELECT content FROM version_blobs WHERE version_id = ?`)

	var content string
	err := s.db.GetContext(ctx, &content, query, versionID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("version %s: %w", versionID, domain.ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("failed to get content: %w", err)
	}
	return content, nil
}

// Commit writes the record, its blob and the evictions in one transaction.
func (s *Store) Commit(ctx context.Context, c domain.VersionCommit) error {
	if c.Record == nil {
		return fmt.Errorf("commit: record is required")
	}
	rec := c.Record

	metadata := ""
	if len(rec.Metadata) > 0 {
		b, err := json.Marshal(rec.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata: %w", err)
		}
		metadata = string(b)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", mapStorageError(err))
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, s.dialect.Rebind(`INSERT INTO version_records
		(version_id, content_ref, sequence, created_at_ns, committer_id, event_type, content_type, summary, diff, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		rec.VersionID, rec.ContentRef, rec.Sequence, rec.Timestamp.UnixNano(), rec.CommitterID,
		rec.EventType, rec.ContentType, rec.Summary, rec.Diff, metadata)
	if err != nil {
		return fmt.Errorf("failed to insert version record: %w", mapStorageError(err))
	}

	_, err = tx.ExecContext(ctx, s.dialect.Rebind(`INSERT INTO version_blobs (version_id, content) VALUES (?, ?)`),
		rec.VersionID, c.Content)
	if err != nil {
		return fmt.Errorf("failed to insert version content: %w", mapStorageError(err))
	}

	if len(c.Evict) > 0 {
		for _, table := range []string{"version_blobs", "version_records"} {
			query, args, err := sqlx.In(`DELETE FROM `+table+` WHERE version_id IN (?)`, c.Evict)
			if err != nil {
				return fmt.Errorf("failed to build eviction query: %w", err)
			}
			if _, err := tx.ExecContext(ctx, s.dialect.Rebind(query), args...); err != nil {
				return fmt.Errorf("failed to evict from %s: %w", table, mapStorageError(err))
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit version: %w", mapStorageError(err))
	}
	return nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// mapStorageError translates "disk full" style failures to domain.ErrStorageExhausted.
func mapStorageError(err error) error {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "database or disk is full"),
		strings.Contains(msg, "disk full"),
		strings.Contains(msg, "insufficient_resources"),
		strings.Contains(msg, "no space left on device"):
		return fmt.Errorf("%w: %v", domain.ErrStorageExhausted, err)
	}
	return err
}
