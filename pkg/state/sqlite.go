package state

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/rs/zerolog"

	"github.com/acederberg/captura-deploy/pkg/engine"

	// SQLite driver
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Config holds SQLite store configuration.
type Config struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// SQLiteStore implements engine.Store and engine.EventSink on one SQLite
// database file. WAL mode keeps reads cheap while an apply is committing.
type SQLiteStore struct {
	db  *sql.DB
	log zerolog.Logger
}

// Open opens the database, applies pending migrations, and returns the
// store ready for use.
func Open(ctx context.Context, cfg Config, log zerolog.Logger) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}
	if cfg.MaxOpenConns == 0 {
		cfg.MaxOpenConns = 25
	}
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = 5
	}
	if cfg.ConnMaxLifetime == 0 {
		cfg.ConnMaxLifetime = 5 * time.Minute
	}

	dsn := fmt.Sprintf("%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL&_txlock=immediate", cfg.Path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &SQLiteStore{db: db, log: log}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *SQLiteStore) migrate() error {
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}
	driver, err := sqlite3.WithInstance(s.db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// Load reads the full state record. A never-applied database loads as an
// empty record with serial 0.
func (s *SQLiteStore) Load(ctx context.Context) (*engine.StateRecord, error) {
	record := engine.NewStateRecord()

	if err := s.db.QueryRowContext(ctx, `SELECT serial FROM meta WHERE id = 1`).Scan(&record.Serial); err != nil {
		return nil, fmt.Errorf("failed to read serial: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, type, name, status, inputs, outputs, depends_on, applied_at
		FROM resources
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to read resources: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id, typ, name, status string
			inputs, outputs, deps sql.NullString
			appliedAt             time.Time
		)
		if err := rows.Scan(&id, &typ, &name, &status, &inputs, &outputs, &deps, &appliedAt); err != nil {
			return nil, fmt.Errorf("failed to scan resource row: %w", err)
		}

		rs := engine.ResourceState{
			Type:      engine.ResourceType(typ),
			Name:      name,
			Status:    engine.ResourceStatus(status),
			AppliedAt: appliedAt,
		}
		if err := rs.Status.Validate(); err != nil {
			return nil, &CorruptError{Detail: "resource " + id, Err: err}
		}
		if err := decodeJSON(inputs, &rs.Inputs); err != nil {
			return nil, &CorruptError{Detail: "inputs of " + id, Err: err}
		}
		if err := decodeJSON(outputs, &rs.Outputs); err != nil {
			return nil, &CorruptError{Detail: "outputs of " + id, Err: err}
		}
		if err := decodeJSON(deps, &rs.DependsOn); err != nil {
			return nil, &CorruptError{Detail: "depends_on of " + id, Err: err}
		}
		record.Resources[id] = rs
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read resources: %w", err)
	}
	return record, nil
}

// CommitResource upserts one resource snapshot.
func (s *SQLiteStore) CommitResource(ctx context.Context, rs engine.ResourceState) error {
	inputs, err := encodeJSON(rs.Inputs)
	if err != nil {
		return fmt.Errorf("failed to encode inputs of %s: %w", rs.ID(), err)
	}
	outputs, err := encodeJSON(rs.Outputs)
	if err != nil {
		return fmt.Errorf("failed to encode outputs of %s: %w", rs.ID(), err)
	}
	deps, err := encodeJSON(rs.DependsOn)
	if err != nil {
		return fmt.Errorf("failed to encode depends_on of %s: %w", rs.ID(), err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO resources (id, type, name, status, inputs, outputs, depends_on, applied_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			inputs = excluded.inputs,
			outputs = excluded.outputs,
			depends_on = excluded.depends_on,
			applied_at = excluded.applied_at,
			updated_at = excluded.updated_at
	`, rs.ID(), string(rs.Type), rs.Name, string(rs.Status), inputs, outputs, deps, rs.AppliedAt, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to commit %s: %w", rs.ID(), err)
	}
	return nil
}

// Finalize bumps the serial and records the run.
func (s *SQLiteStore) Finalize(ctx context.Context, runID string) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `UPDATE meta SET serial = serial + 1, updated_at = ? WHERE id = 1`, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to bump serial: %w", err)
	}
	var serial int64
	if err := tx.QueryRowContext(ctx, `SELECT serial FROM meta WHERE id = 1`).Scan(&serial); err != nil {
		return fmt.Errorf("failed to read serial: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO runs (id, serial, finished_at) VALUES (?, ?, ?)`,
		runID, serial, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to record run: %w", err)
	}
	return tx.Commit()
}

// Lock acquires the stack's advisory lock. Re-acquiring with the same owner
// succeeds; a different holder yields engine.ErrConcurrentApply.
func (s *SQLiteStore) Lock(ctx context.Context, owner string) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO locks (name, owner, acquired_at) VALUES ('stack', ?, ?)`,
		owner, time.Now().UTC())
	if err == nil {
		return nil
	}

	var holder string
	if qerr := s.db.QueryRowContext(ctx, `SELECT owner FROM locks WHERE name = 'stack'`).Scan(&holder); qerr != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	if holder == owner {
		return nil
	}
	return fmt.Errorf("lock held by %s: %w", holder, engine.ErrConcurrentApply)
}

// Unlock releases the advisory lock held by owner.
func (s *SQLiteStore) Unlock(ctx context.Context, owner string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM locks WHERE name = 'stack' AND owner = ?`, owner)
	if err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("lock not held by %s", owner)
	}
	return nil
}

// ForceUnlock drops the lock regardless of holder. Operator recovery after
// a crashed apply.
func (s *SQLiteStore) ForceUnlock(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM locks WHERE name = 'stack'`)
	if err != nil {
		return fmt.Errorf("failed to force-unlock: %w", err)
	}
	return nil
}

// Append implements engine.EventSink. Event write failures are logged,
// never propagated; the timeline is best-effort.
func (s *SQLiteStore) Append(ctx context.Context, ev engine.Event) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO events (run_id, resource, level, message, timestamp)
		VALUES (?, ?, ?, ?, ?)
	`, ev.RunID, ev.Resource, ev.Level, ev.Message, ev.Timestamp)
	if err != nil {
		s.log.Warn().Err(err).Str("run_id", ev.RunID).Msg("failed to append event")
	}
}

// Events returns the timeline of one run in insertion order.
func (s *SQLiteStore) Events(ctx context.Context, runID string) ([]engine.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, resource, level, message, timestamp
		FROM events
		WHERE run_id = ?
		ORDER BY id
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	var events []engine.Event
	for rows.Next() {
		var ev engine.Event
		var resource sql.NullString
		if err := rows.Scan(&ev.RunID, &resource, &ev.Level, &ev.Message, &ev.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		ev.Resource = resource.String
		events = append(events, ev)
	}
	return events, rows.Err()
}

// Run is one finalized apply.
type Run struct {
	ID         string
	Serial     int64
	FinishedAt time.Time
}

// Runs lists finalized runs, most recent first.
func (s *SQLiteStore) Runs(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, serial, finished_at FROM runs ORDER BY serial DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.Serial, &r.FinishedAt); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Replace swaps the entire resource table and serial for the given record.
// Used by snapshot import.
func (s *SQLiteStore) Replace(ctx context.Context, record *engine.StateRecord) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM resources`); err != nil {
		return fmt.Errorf("failed to clear resources: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE meta SET serial = ?, updated_at = ? WHERE id = 1`,
		record.Serial, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to set serial: %w", err)
	}

	for id, rs := range record.Resources {
		inputs, err := encodeJSON(rs.Inputs)
		if err != nil {
			return fmt.Errorf("failed to encode inputs of %s: %w", id, err)
		}
		outputs, err := encodeJSON(rs.Outputs)
		if err != nil {
			return fmt.Errorf("failed to encode outputs of %s: %w", id, err)
		}
		deps, err := encodeJSON(rs.DependsOn)
		if err != nil {
			return fmt.Errorf("failed to encode depends_on of %s: %w", id, err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO resources (id, type, name, status, inputs, outputs, depends_on, applied_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, id, string(rs.Type), rs.Name, string(rs.Status), inputs, outputs, deps, rs.AppliedAt, time.Now().UTC()); err != nil {
			return fmt.Errorf("failed to insert %s: %w", id, err)
		}
	}
	return tx.Commit()
}

func encodeJSON(v any) (sql.NullString, error) {
	if v == nil {
		return sql.NullString{}, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(raw), Valid: true}, nil
}

func decodeJSON(src sql.NullString, dst any) error {
	if !src.Valid || src.String == "" {
		return nil
	}
	return json.Unmarshal([]byte(src.String), dst)
}
