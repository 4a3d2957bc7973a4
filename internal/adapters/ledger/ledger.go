// Package ledger persists export submissions in a SQL database.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/jobrunner/envextract/internal/domain"
)

// Supported drivers.
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

// timeFormat sorts lexicographically in chronological order.
const timeFormat = "2006-01-02T15:04:05.000000000Z"

const schema = `CREATE TABLE IF NOT EXISTS tasks (
	id           TEXT PRIMARY KEY,
	remote_id    TEXT NOT NULL DEFAULT '',
	description  TEXT NOT NULL,
	folder       TEXT NOT NULL DEFAULT '',
	product      TEXT NOT NULL,
	metric       TEXT NOT NULL DEFAULT '',
	scenario     TEXT NOT NULL DEFAULT '',
	model        TEXT NOT NULL DEFAULT '',
	sensor       TEXT NOT NULL DEFAULT '',
	start_year   INTEGER NOT NULL DEFAULT 0,
	end_year     INTEGER NOT NULL DEFAULT 0,
	geometry     TEXT NOT NULL DEFAULT '',
	state        TEXT NOT NULL,
	error        TEXT NOT NULL DEFAULT '',
	submitted_at TEXT NOT NULL
)`

const indexSchema = `CREATE INDEX IF NOT EXISTS tasks_submitted_at ON tasks (submitted_at)`

const columns = `id, remote_id, description, folder, product, metric, scenario, model,
	sensor, start_year, end_year, geometry, state, error, submitted_at`

// Config holds ledger configuration.
type Config struct {
	Driver string // sqlite3 or postgres
	DSN    string // file path for sqlite3, connection string for postgres
}

// Ledger implements output.TaskLedger on database/sql.
type Ledger struct {
	db     *sql.DB
	driver string
}

// Open connects to the database and creates the schema.
func Open(ctx context.Context, cfg Config) (*Ledger, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = DriverSQLite
	}

	dsn := cfg.DSN
	switch driver {
	case DriverSQLite:
		if dsn == "" {
			dsn = "envextract.db"
		}
		if dir := filepath.Dir(dsn); dir != "." {
			if err := os.MkdirAll(dir, 0750); err != nil {
				return nil, fmt.Errorf("creating ledger directory: %w", err)
			}
		}
		dsn = fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", dsn)
	case DriverPostgres:
		if dsn == "" {
			return nil, fmt.Errorf("postgres ledger needs a dsn: %w", domain.ErrInvalidInput)
		}
	default:
		return nil, fmt.Errorf("unsupported ledger driver %q: %w", driver, domain.ErrInvalidInput)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, err
	}
	if driver == DriverSQLite {
		// sqlite allows a single writer
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, &domain.StorageError{Operation: "open", Key: driver, Err: err}
	}

	l := &Ledger{db: db, driver: driver}
	if err := l.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return l, nil
}

func (l *Ledger) migrate(ctx context.Context) error {
	for _, stmt := range []string{schema, indexSchema} {
		if _, err := l.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("creating ledger schema: %w", err)
		}
	}
	return nil
}

// Record stores rec, replacing an earlier record with the same id.
func (l *Ledger) Record(ctx context.Context, rec domain.TaskRecord) error {
	if rec.ID == "" {
		return &domain.ValidationError{Field: "id", Value: rec.ID, Constraint: "required", Message: "task record needs an id"}
	}
	if rec.SubmittedAt.IsZero() {
		rec.SubmittedAt = time.Now()
	}

	query := l.rebind(`INSERT INTO tasks (` + columns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			remote_id = excluded.remote_id,
			state = excluded.state,
			error = excluded.error`)

	_, err := l.db.ExecContext(ctx, query,
		rec.ID, rec.RemoteID, rec.Description, rec.Folder, rec.Product, rec.Metric,
		rec.Scenario, rec.Model, rec.Sensor, rec.StartYear, rec.EndYear, rec.Geometry,
		string(rec.State), rec.Error, rec.SubmittedAt.UTC().Format(timeFormat),
	)
	if err != nil {
		return &domain.StorageError{Operation: "record", Key: rec.ID, Err: err}
	}
	return nil
}

// Get returns the record with the given id.
func (l *Ledger) Get(ctx context.Context, id string) (*domain.TaskRecord, error) {
	row := l.db.QueryRowContext(ctx, l.rebind(`SELECT `+columns+` FROM tasks WHERE id = ?`), id)

	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrTaskNotFound
	}
	if err != nil {
		return nil, &domain.StorageError{Operation: "get", Key: id, Err: err}
	}
	return rec, nil
}

// List returns the records matching filter, newest first.
func (l *Ledger) List(ctx context.Context, filter domain.TaskFilter) ([]domain.TaskRecord, error) {
	var (
		where []string
		args  []any
	)
	if filter.Product != "" {
		where = append(where, "product = ?")
		args = append(args, filter.Product)
	}
	if filter.State != "" {
		where = append(where, "state = ?")
		args = append(args, string(filter.State))
	}
	if !filter.Since.IsZero() {
		where = append(where, "submitted_at >= ?")
		args = append(args, filter.Since.UTC().Format(timeFormat))
	}

	query := `SELECT ` + columns + ` FROM tasks`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY submitted_at DESC, id"
	if filter.Limit > 0 {
		query += " LIMIT " + strconv.Itoa(filter.Limit)
	}

	rows, err := l.db.QueryContext(ctx, l.rebind(query), args...)
	if err != nil {
		return nil, &domain.StorageError{Operation: "list", Key: "tasks", Err: err}
	}
	defer func() { _ = rows.Close() }()

	records := []domain.TaskRecord{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, &domain.StorageError{Operation: "list", Key: "tasks", Err: err}
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, &domain.StorageError{Operation: "list", Key: "tasks", Err: err}
	}
	return records, nil
}

// Ping checks the database connection.
func (l *Ledger) Ping(ctx context.Context) error {
	return l.db.PingContext(ctx)
}

// Close releases the database connection.
func (l *Ledger) Close() error {
	return l.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (*domain.TaskRecord, error) {
	var (
		rec       domain.TaskRecord
		state     string
		submitted string
	)
	err := s.Scan(
		&rec.ID, &rec.RemoteID, &rec.Description, &rec.Folder, &rec.Product, &rec.Metric,
		&rec.Scenario, &rec.Model, &rec.Sensor, &rec.StartYear, &rec.EndYear, &rec.Geometry,
		&state, &rec.Error, &submitted,
	)
	if err != nil {
		return nil, err
	}

	rec.State = domain.TaskState(state)
	rec.SubmittedAt, err = time.Parse(timeFormat, submitted)
	if err != nil {
		return nil, fmt.Errorf("parsing submitted_at %q: %w", submitted, err)
	}
	return &rec, nil
}

// rebind rewrites ? placeholders to $n for postgres.
func (l *Ledger) rebind(query string) string {
	if l.driver != DriverPostgres {
		return query
	}

	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
