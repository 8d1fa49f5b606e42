// Package store is the data-store collaborator of the query agent. It runs
// parameterized statements through database/sql and reports rows as
// column-keyed maps.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	_ "github.com/glebarez/go-sqlite"  // registers "sqlite"
	_ "github.com/jackc/pgx/v5/stdlib" // registers "pgx"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "pgx"

	defaultMaxRows = 1000
	defaultTimeout = 30 * time.Second
)

// Config selects the driver and the execution limits.
type Config struct {
	Driver  string
	DSN     string
	MaxRows int
	Timeout time.Duration
}

// DataStore executes statements for the query agent.
type DataStore struct {
	DB      *sql.DB
	driver  string
	maxRows int
	timeout time.Duration
	logger  *slog.Logger
}

// Open connects to the configured database.
func Open(cfg Config, logger *slog.Logger) (*DataStore, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = DriverSQLite
	}
	if driver != DriverSQLite && driver != DriverPostgres {
		return nil, fmt.Errorf("unsupported datastore driver %q", driver)
	}
	if cfg.DSN == "" {
		return nil, fmt.Errorf("datastore dsn not configured")
	}

	db, err := sql.Open(driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if driver == DriverSQLite {
		// an in-memory database only exists on its own connection
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(5)
		db.SetMaxIdleConns(2)
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return New(db, driver, cfg, logger), nil
}

// New wraps an already opened handle.
func New(db *sql.DB, driver string, cfg Config, logger *slog.Logger) *DataStore {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if cfg.MaxRows <= 0 {
		cfg.MaxRows = defaultMaxRows
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	return &DataStore{
		DB:      db,
		driver:  driver,
		maxRows: cfg.MaxRows,
		timeout: cfg.Timeout,
		logger:  logger,
	}
}

// Driver reports the database/sql driver name.
func (s *DataStore) Driver() string { return s.driver }

// Placeholder describes the bind parameter syntax of the driver.
func (s *DataStore) Placeholder() string {
	if s.driver == DriverPostgres {
		return "$1, $2, ..."
	}
	return "?"
}

// Close releases the connection pool.
func (s *DataStore) Close() error {
	return s.DB.Close()
}

// Execute runs one statement inside a read-only transaction that is always
// rolled back. Failures are reported in the result, not as an error, so
// callers can surface them as text. At most maxRows rows are kept but
// RowCount counts every row the statement produced.
func (s *DataStore) Execute(ctx context.Context, statement string, params []any) ExecResult {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	out, total, err := s.query(ctx, statement, params)
	if err != nil {
		s.logger.WarnContext(ctx, "statement failed",
			slog.String("statement", truncate(statement, 120)),
			slog.String("error", err.Error()),
		)
		return ExecResult{Error: err.Error()}
	}

	s.logger.DebugContext(ctx, "statement executed",
		slog.String("statement", truncate(statement, 120)),
		slog.Int("rows", total),
		slog.Bool("truncated", total > len(out)),
		slog.Duration("took", time.Since(start)),
	)
	return ExecResult{Success: true, Rows: out, RowCount: total}
}

func (s *DataStore) query(ctx context.Context, statement string, params []any) ([]map[string]any, int, error) {
	conn, err := s.DB.Conn(ctx)
	if err != nil {
		return nil, 0, err
	}
	defer conn.Close()

	if s.driver == DriverSQLite {
		// sqlite ignores the read-only flag of a transaction
		if _, err := conn.ExecContext(ctx, "PRAGMA query_only = ON"); err != nil {
			return nil, 0, err
		}
		defer func() {
			if _, err := conn.ExecContext(context.Background(), "PRAGMA query_only = OFF"); err != nil {
				s.logger.Error("restoring writable connection", slog.String("error", err.Error()))
			}
		}()
	}

	tx, err := conn.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, 0, err
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, statement, params...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out, total, err := scanRows(rows, s.maxRows)
	if err != nil {
		return nil, 0, fmt.Errorf("reading results: %w", err)
	}
	return out, total, nil
}

// scanRows keeps the first maxRows rows and counts the rest.
func scanRows(rows *sql.Rows, maxRows int) ([]map[string]any, int, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, 0, err
	}

	out := make([]map[string]any, 0)
	total := 0
	for rows.Next() {
		total++
		if len(out) >= maxRows {
			continue
		}
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, 0, err
		}
		row := make(map[string]any, len(cols))
		for i, col := range cols {
			row[col] = normalize(values[i])
		}
		out = append(out, row)
	}
	return out, total, rows.Err()
}

// normalize makes driver values JSON friendly.
func normalize(v any) any {
	switch t := v.(type) {
	case []byte:
		return string(t)
	case time.Time:
		return t.UTC().Format(time.RFC3339)
	}
	return v
}

// Schema lists the user tables and their columns.
func (s *DataStore) Schema(ctx context.Context) ([]Table, error) {
	var (
		q    string
		args []any
	)
	switch s.driver {
	case DriverPostgres:
		q = `SELECT table_name, column_name, data_type
			FROM information_schema.columns
			WHERE table_schema = 'public'
			ORDER BY table_name, ordinal_position`
	default:
		q = `SELECT m.name, p.name, p.type
			FROM sqlite_master m JOIN pragma_table_info(m.name) p
			WHERE m.type = 'table' AND m.name NOT LIKE 'sqlite_%'
			ORDER BY m.name, p.cid`
	}

	rows, err := s.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("reading schema: %w", err)
	}
	defer rows.Close()

	var tables []Table
	for rows.Next() {
		var table, col, typ string
		if err := rows.Scan(&table, &col, &typ); err != nil {
			return nil, fmt.Errorf("reading schema: %w", err)
		}
		if len(tables) == 0 || tables[len(tables)-1].Name != table {
			tables = append(tables, Table{Name: table})
		}
		t := &tables[len(tables)-1]
		t.Columns = append(t.Columns, Column{Name: col, Type: typ})
	}
	return tables, rows.Err()
}

// DescribeSchema renders Schema as prompt text.
func (s *DataStore) DescribeSchema(ctx context.Context) string {
	tables, err := s.Schema(ctx)
	if err != nil {
		s.logger.WarnContext(ctx, "schema introspection failed", slog.String("error", err.Error()))
		return "(schema unavailable)"
	}
	if len(tables) == 0 {
		return "(no tables)"
	}
	var b strings.Builder
	for _, t := range tables {
		cols := make([]string, len(t.Columns))
		for i, c := range t.Columns {
			cols[i] = c.Name + " " + c.Type
		}
		fmt.Fprintf(&b, "- %s(%s)\n", t.Name, strings.Join(cols, ", "))
	}
	return strings.TrimRight(b.String(), "\n")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
