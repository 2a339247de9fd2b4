// Package postgres stores the audit trail in PostgreSQL. Writers from any
// number of processes are serialized with a transaction-scoped advisory lock,
// so the retention cap and insertion order hold across instances.
package postgres

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	audit "repairhub/pkg/platform/audit"
	"repairhub/pkg/platform/sentinel"
	txcontext "repairhub/pkg/platform/tx"
)

//go:embed migrations/*.sql
var embeddedMigrations embed.FS

// Advisory lock keys. Arbitrary but fixed so every instance agrees.
const (
	migrationLockKey int64 = 0x72686175_6d696772
	appendLockKey    int64 = 0x72686175_61707064
)

// DB abstracts the pgxpool.Pool methods the store uses.
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store implements audit.Store and audit.Querier. The pool is owned by the
// caller; Close does not close it.
type Store struct {
	db        DB
	retention int
	logger    *slog.Logger
}

type Option func(*Store)

func WithRetention(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.retention = n
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// New creates a postgres audit store on top of db.
func New(db DB, opts ...Option) (*Store, error) {
	if db == nil {
		return nil, errors.New("database pool is required")
	}
	s := &Store{
		db:        db,
		retention: audit.DefaultRetention,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// MigrationFiles returns the embedded migration names in apply order.
func MigrationFiles() ([]string, error) {
	entries, err := fs.ReadDir(embeddedMigrations, "migrations")
	if err != nil {
		return nil, fmt.Errorf("reading embedded migrations: %w", err)
	}
	files := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)
	return files, nil
}

// Init applies pending migrations. Concurrent callers, including other
// processes, wait on the migration lock, so it is safe to call at every start.
func (s *Store) Init(ctx context.Context) error {
	files, err := MigrationFiles()
	if err != nil {
		return err
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin migration: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", migrationLockKey); err != nil {
		return fmt.Errorf("acquire migration lock: %w", err)
	}
	if _, err := tx.Exec(ctx, `CREATE TABLE IF NOT EXISTS audit_schema_migrations (
		version    TEXT PRIMARY KEY,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`); err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	for _, name := range files {
		var applied bool
		if err := tx.QueryRow(ctx,
			"SELECT EXISTS (SELECT 1 FROM audit_schema_migrations WHERE version = $1)", name,
		).Scan(&applied); err != nil {
			return fmt.Errorf("check migration %s: %w", name, err)
		}
		if applied {
			continue
		}

		content, err := fs.ReadFile(embeddedMigrations, path.Join("migrations", name))
		if err != nil {
			return fmt.Errorf("reading embedded migration %s: %w", name, err)
		}
		if _, err := tx.Exec(ctx, string(content)); err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}
		if _, err := tx.Exec(ctx, "INSERT INTO audit_schema_migrations (version) VALUES ($1)", name); err != nil {
			return fmt.Errorf("record migration %s: %w", name, err)
		}
		s.logger.InfoContext(ctx, "applied audit migration", "version", name)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit migration: %w", err)
	}
	return nil
}

// Append inserts the event and trims the table to the retention cap in the
// same transaction. When ctx carries a caller transaction the append runs in
// a savepoint inside it, so the caller's rollback also discards the event.
func (s *Store) Append(ctx context.Context, event audit.Event) error {
	details := event.Details
	if details == nil {
		details = map[string]any{}
	}
	detailsJSON, err := json.Marshal(details)
	if err != nil {
		return fmt.Errorf("serializing details: %w", err)
	}
	var changesJSON []byte
	if event.Changes != nil {
		if changesJSON, err = json.Marshal(event.Changes); err != nil {
			return fmt.Errorf("serializing changes: %w", err)
		}
	}

	begin := s.db.Begin
	if outer, ok := txcontext.From(ctx); ok {
		begin = outer.Begin
	}
	tx, err := begin(ctx)
	if err != nil {
		return fmt.Errorf("begin append: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", appendLockKey); err != nil {
		return fmt.Errorf("acquire append lock: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO audit_events (id, occurred_at, action, user_id, user_role, resource, resource_id, details, changes, ip_address, status)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		event.ID, event.Timestamp, event.Action, event.UserID, event.UserRole,
		event.Resource, event.ResourceID, detailsJSON, changesJSON, event.IPAddress, string(event.Status),
	); err != nil {
		return fmt.Errorf("inserting audit event: %w", err)
	}

	// Everything at or below the (N+1)th newest seq falls outside the cap.
	tag, err := tx.Exec(ctx,
		`DELETE FROM audit_events
			WHERE seq <= (SELECT seq FROM audit_events ORDER BY seq DESC OFFSET $1 LIMIT 1)`,
		s.retention,
	)
	if err != nil {
		return fmt.Errorf("trimming audit events: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit append: %w", err)
	}
	if n := tag.RowsAffected(); n > 0 {
		s.logger.DebugContext(ctx, "evicted audit events", "count", n)
	}
	return nil
}

const selectColumns = `SELECT id, occurred_at, action, user_id, user_role, resource, resource_id, details, changes, ip_address, status
	FROM audit_events`

// Snapshot returns the retained events, oldest first.
func (s *Store) Snapshot(ctx context.Context) ([]audit.Event, error) {
	rows, err := s.db.Query(ctx, selectColumns+" ORDER BY seq ASC")
	if err != nil {
		return nil, fmt.Errorf("listing audit events: %w", err)
	}
	return collectEvents(rows)
}

// Query evaluates the filter in the database with the same ordering as
// audit.Query: timestamp descending, newest insertion first on ties.
func (s *Store) Query(ctx context.Context, f audit.Filter) ([]audit.Event, error) {
	rows, err := s.db.Query(ctx,
		selectColumns+`
			WHERE ($1::TEXT = '' OR strpos(action, $1) > 0)
				AND ($2::TEXT = '' OR user_id = $2)
				AND ($3::TIMESTAMPTZ IS NULL OR occurred_at >= $3)
				AND ($4::TIMESTAMPTZ IS NULL OR occurred_at <= $4)
			ORDER BY occurred_at DESC, seq DESC
			LIMIT $5`,
		f.Action, f.UserID, f.StartDate, f.EndDate, f.EffectiveLimit(),
	)
	if err != nil {
		return nil, fmt.Errorf("querying audit events: %w", err)
	}
	return collectEvents(rows)
}

// Close is a no-op; the pool outlives the store.
func (s *Store) Close() error { return nil }

// scanner abstracts pgx.Row and pgx.Rows for shared scan logic.
type scanner interface {
	Scan(dest ...any) error
}

func collectEvents(rows pgx.Rows) ([]audit.Event, error) {
	defer rows.Close()

	events := []audit.Event{}
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating audit events: %w", err)
	}
	return events, nil
}

func scanEvent(row scanner) (audit.Event, error) {
	var (
		e           audit.Event
		status      string
		occurredAt  time.Time
		detailsJSON []byte
		changesJSON []byte
	)
	if err := row.Scan(
		&e.ID, &occurredAt, &e.Action, &e.UserID, &e.UserRole,
		&e.Resource, &e.ResourceID, &detailsJSON, &changesJSON, &e.IPAddress, &status,
	); err != nil {
		return audit.Event{}, fmt.Errorf("scanning audit event: %w", err)
	}
	e.Timestamp = occurredAt.UTC()
	e.Status = audit.Status(status)

	if err := json.Unmarshal(detailsJSON, &e.Details); err != nil {
		return audit.Event{}, fmt.Errorf("deserializing details of %s: %w", e.ID, errors.Join(sentinel.ErrCorrupt, err))
	}
	if e.Details == nil {
		e.Details = map[string]any{}
	}
	if len(changesJSON) > 0 {
		if err := json.Unmarshal(changesJSON, &e.Changes); err != nil {
			return audit.Event{}, fmt.Errorf("deserializing changes of %s: %w", e.ID, errors.Join(sentinel.ErrCorrupt, err))
		}
	}
	return e, nil
}
