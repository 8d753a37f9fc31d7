package database

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/dukerupert/grocerylist/internal/metrics"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrations embed.FS

// ErrStorageUnavailable is returned when the store cannot be opened, or when
// a statement is issued against a connection that was never opened.
var ErrStorageUnavailable = errors.New("storage unavailable")

// Row is a single result row keyed by column name.
type Row map[string]any

// Result describes the outcome of a write statement.
type Result struct {
	InsertedID   int64
	RowsAffected int64
}

// Conn owns the process-wide handle to a single-file SQLite store.
type Conn struct {
	name   string
	logger *slog.Logger

	mu sync.RWMutex
	db *sql.DB
}

// New returns an unopened connection for the named store. The name is a file
// path or ":memory:".
func New(name string, logger *slog.Logger) *Conn {
	if logger == nil {
		logger = slog.Default()
	}
	return &Conn{name: name, logger: logger}
}

// Name returns the store name the connection was created with.
func (c *Conn) Name() string {
	return c.name
}

// Open opens or creates the store. Calling Open on an open connection is a
// no-op; a failed Open leaves the connection closed so it can be retried.
func (c *Conn) Open(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.db != nil {
		return nil
	}

	db, err := sql.Open("sqlite", dsn(c.name))
	if err != nil {
		return fmt.Errorf("%w: open %s: %v", ErrStorageUnavailable, c.name, err)
	}

	if c.inMemory() {
		// Each pooled connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
		db.SetConnMaxLifetime(0)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("%w: ping %s: %v", ErrStorageUnavailable, c.name, err)
	}

	c.db = db
	c.logger.Debug("database opened", "name", c.name)
	return nil
}

// Migrate applies the embedded schema migrations. It is safe to call on every
// start.
func (c *Conn) Migrate(ctx context.Context) error {
	db, err := c.handle()
	if err != nil {
		return err
	}

	goose.SetBaseFS(migrations)
	goose.SetLogger(gooseLogger{c.logger})

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("goose up: %w", err)
	}

	return nil
}

// Execute runs schema statements that take no parameters.
func (c *Conn) Execute(ctx context.Context, ddl string) (err error) {
	defer observe("execute", time.Now(), &err)

	db, err := c.handle()
	if err != nil {
		return err
	}
	if _, err = db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("execute: %w", err)
	}
	return nil
}

// Query runs a read statement and returns every matching row.
func (c *Conn) Query(ctx context.Context, stmt string, args ...any) (out []Row, err error) {
	defer observe("query", time.Now(), &err)

	db, err := c.handle()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("columns: %w", err)
	}

	out = []Row{}
	for rows.Next() {
		row, err := scanRow(rows, cols)
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}

// QueryOne runs a read statement and returns its first row. The boolean is
// false when nothing matched.
func (c *Conn) QueryOne(ctx context.Context, stmt string, args ...any) (row Row, found bool, err error) {
	defer observe("query_one", time.Now(), &err)

	db, err := c.handle()
	if err != nil {
		return nil, false, err
	}

	rows, err := db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, false, fmt.Errorf("query one: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, false, fmt.Errorf("columns: %w", err)
	}

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, false, fmt.Errorf("rows: %w", err)
		}
		return nil, false, nil
	}

	row, err = scanRow(rows, cols)
	if err != nil {
		return nil, false, fmt.Errorf("scan row: %w", err)
	}
	return row, true, nil
}

// Run executes an insert, update or delete statement.
func (c *Conn) Run(ctx context.Context, stmt string, args ...any) (res Result, err error) {
	defer observe("run", time.Now(), &err)

	db, err := c.handle()
	if err != nil {
		return Result{}, err
	}

	r, err := db.ExecContext(ctx, stmt, args...)
	if err != nil {
		return Result{}, fmt.Errorf("run: %w", err)
	}

	if res.InsertedID, err = r.LastInsertId(); err != nil {
		return Result{}, fmt.Errorf("last insert id: %w", err)
	}
	if res.RowsAffected, err = r.RowsAffected(); err != nil {
		return Result{}, fmt.Errorf("rows affected: %w", err)
	}
	return res, nil
}

// Snapshot writes a consistent, compacted copy of the database to path.
// The target must not already exist.
func (c *Conn) Snapshot(ctx context.Context, path string) (err error) {
	defer observe("snapshot", time.Now(), &err)

	db, err := c.handle()
	if err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, "VACUUM INTO ?", path); err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}
	return nil
}

// DB returns the underlying handle, or nil if the connection is not open.
func (c *Conn) DB() *sql.DB {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.db
}

// Close releases the handle. The connection can be opened again afterwards.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.db == nil {
		return nil
	}
	err := c.db.Close()
	c.db = nil
	return err
}

func (c *Conn) handle() (*sql.DB, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.db == nil {
		return nil, fmt.Errorf("%w: %s is not open", ErrStorageUnavailable, c.name)
	}
	return c.db, nil
}

func (c *Conn) inMemory() bool {
	return c.name == ":memory:" || strings.Contains(c.name, "mode=memory")
}

func dsn(name string) string {
	sep := "?"
	if strings.Contains(name, "?") {
		sep = "&"
	}
	return name + sep + "_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
}

func scanRow(rows *sql.Rows, cols []string) (Row, error) {
	values := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range values {
		ptrs[i] = &values[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return nil, err
	}

	row := make(Row, len(cols))
	for i, col := range cols {
		if b, ok := values[i].([]byte); ok {
			values[i] = string(b)
		}
		row[col] = values[i]
	}
	return row, nil
}

func observe(kind string, start time.Time, err *error) {
	metrics.ObserveStatement(kind, start, *err)
}

type gooseLogger struct {
	logger *slog.Logger
}

func (l gooseLogger) Printf(format string, v ...any) {
	l.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, v...)), "component", "goose")
}

func (l gooseLogger) Fatalf(format string, v ...any) {
	l.logger.Error(strings.TrimSpace(fmt.Sprintf(format, v...)), "component", "goose")
}
