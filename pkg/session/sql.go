package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync/atomic"
	"time"
)

// SQLMap is a SQL-backed Map. It works with any database/sql driver;
// the sessio CLI wires github.com/lib/pq for PostgreSQL. Records are
// stored as gob blobs next to an expires_at column the sweep can use;
// NULL expires_at marks a never-expiring session.
//
// Required schema (see Migrate):
//
//	CREATE TABLE sessions (
//	    id         TEXT PRIMARY KEY,
//	    data       BYTEA NOT NULL,
//	    expires_at TIMESTAMPTZ,
//	    updated_at TIMESTAMPTZ NOT NULL
//	);
//	CREATE INDEX sessions_expires_at_idx ON sessions (expires_at);
//
// Like RedisMap, Get returns a freshly decoded handle; callers persist
// mutations by Inserting the handle back.
type SQLMap struct {
	db      *sql.DB
	table   string
	dialect Dialect
	config  Config
	closed  atomic.Bool
}

// Dialect selects the SQL flavor for query generation.
type Dialect int

const (
	// DialectPostgres uses $1, $2 placeholders and BYTEA blobs.
	DialectPostgres Dialect = iota
	// DialectMySQL uses ? placeholders and BLOB columns.
	DialectMySQL
	// DialectSQLite uses ? placeholders and BLOB columns.
	DialectSQLite
)

// SQLMapOption configures SQLMap behavior.
type SQLMapOption func(*sqlMapConfig)

type sqlMapConfig struct {
	table   string
	dialect Dialect
}

// WithSQLTable sets the table name. Default: "sessions".
func WithSQLTable(name string) SQLMapOption {
	return func(c *sqlMapConfig) {
		c.table = name
	}
}

// WithSQLDialect sets the SQL dialect. Default: DialectPostgres.
func WithSQLDialect(dialect Dialect) SQLMapOption {
	return func(c *sqlMapConfig) {
		c.dialect = dialect
	}
}

// NewSQLMap creates a SQL-backed map over an open database handle. The
// config is attached to every decoded record.
func NewSQLMap(db *sql.DB, config Config, opts ...SQLMapOption) *SQLMap {
	cfg := &sqlMapConfig{
		table:   "sessions",
		dialect: DialectPostgres,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	return &SQLMap{
		db:      db,
		table:   cfg.table,
		dialect: cfg.dialect,
		config:  config,
	}
}

// placeholder returns the placeholder syntax for the dialect.
func (m *SQLMap) placeholder(n int) string {
	if m.dialect == DialectPostgres {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

// Migrate creates the session table and its expiry index if they do not
// exist. Safe to call on every startup.
func (m *SQLMap) Migrate(ctx context.Context) error {
	if m.closed.Load() {
		return ErrClosed
	}

	blob := "BYTEA"
	ts := "TIMESTAMPTZ"
	switch m.dialect {
	case DialectMySQL:
		blob, ts = "BLOB", "DATETIME"
	case DialectSQLite:
		blob, ts = "BLOB", "TIMESTAMP"
	}

	ddl := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %[1]s (
    id         VARCHAR(128) PRIMARY KEY,
    data       %[2]s NOT NULL,
    expires_at %[3]s,
    updated_at %[3]s NOT NULL
);
CREATE INDEX IF NOT EXISTS %[1]s_expires_at_idx ON %[1]s (expires_at);
`, m.table, blob, ts)

	if _, err := m.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("session: migrate: %w", err)
	}
	return nil
}

// List loads and decodes every stored session.
func (m *SQLMap) List(ctx context.Context) ([]*Data, error) {
	if m.closed.Load() {
		return nil, ErrClosed
	}

	query := fmt.Sprintf(`SELECT data FROM %s`, m.table)
	rows, err := m.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("session: sql list: %w", err)
	}
	defer rows.Close()

	var out []*Data
	for rows.Next() {
		var blob []byte
		if err := rows.Scan(&blob); err != nil {
			return nil, fmt.Errorf("session: sql list: %w", err)
		}
		d, err := Decode(blob, m.config)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("session: sql list: %w", err)
	}
	return out, nil
}

// Get returns a decoded handle for the session under id, or nil.
func (m *SQLMap) Get(ctx context.Context, id string) (*Data, error) {
	if m.closed.Load() {
		return nil, ErrClosed
	}

	query := fmt.Sprintf(`SELECT data FROM %s WHERE id = %s`, m.table, m.placeholder(1))

	var blob []byte
	err := m.db.QueryRowContext(ctx, query, id).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("session: sql get: %w", err)
	}
	return Decode(blob, m.config)
}

// Insert encodes the record and upserts it under id.
func (m *SQLMap) Insert(ctx context.Context, id string, data *Data) error {
	if m.closed.Load() {
		return ErrClosed
	}

	blob, err := Encode(data)
	if err != nil {
		return err
	}

	var expiresAt any
	if expires := data.Expires(); !expires.IsZero() {
		expiresAt = expires
	}

	var query string
	switch m.dialect {
	case DialectPostgres:
		query = fmt.Sprintf(`
			INSERT INTO %s (id, data, expires_at, updated_at)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (id) DO UPDATE SET
				data = EXCLUDED.data,
				expires_at = EXCLUDED.expires_at,
				updated_at = EXCLUDED.updated_at
		`, m.table)
	case DialectMySQL:
		query = fmt.Sprintf(`
			INSERT INTO %s (id, data, expires_at, updated_at)
			VALUES (?, ?, ?, ?)
			ON DUPLICATE KEY UPDATE
				data = VALUES(data),
				expires_at = VALUES(expires_at),
				updated_at = VALUES(updated_at)
		`, m.table)
	case DialectSQLite:
		query = fmt.Sprintf(`
			INSERT OR REPLACE INTO %s (id, data, expires_at, updated_at)
			VALUES (?, ?, ?, ?)
		`, m.table)
	}

	if _, err := m.db.ExecContext(ctx, query, id, blob, expiresAt, time.Now()); err != nil {
		return fmt.Errorf("session: sql insert: %w", err)
	}
	return nil
}

// Remove deletes the session under id.
func (m *SQLMap) Remove(ctx context.Context, id string) (bool, error) {
	if m.closed.Load() {
		return false, ErrClosed
	}

	query := fmt.Sprintf(`DELETE FROM %s WHERE id = %s`, m.table, m.placeholder(1))
	res, err := m.db.ExecContext(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("session: sql remove: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("session: sql remove: %w", err)
	}
	return n > 0, nil
}

// RemoveExpired deletes every row whose expiry time has passed and
// returns the count. NULL expires_at rows never match.
func (m *SQLMap) RemoveExpired(ctx context.Context) (int, error) {
	if m.closed.Load() {
		return 0, ErrClosed
	}

	query := fmt.Sprintf(
		`DELETE FROM %s WHERE expires_at IS NOT NULL AND expires_at <= %s`,
		m.table, m.placeholder(1),
	)
	res, err := m.db.ExecContext(ctx, query, time.Now())
	if err != nil {
		return 0, fmt.Errorf("session: sql sweep: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("session: sql sweep: %w", err)
	}
	return int(n), nil
}

// Clear deletes every stored session. As with RedisMap, handles decoded
// earlier are independent copies and cannot be invalidated from here.
func (m *SQLMap) Clear(ctx context.Context) error {
	if m.closed.Load() {
		return ErrClosed
	}

	query := fmt.Sprintf(`DELETE FROM %s`, m.table)
	if _, err := m.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("session: sql clear: %w", err)
	}
	return nil
}

// Close marks the map as closed. It does not close the database handle,
// which may be shared with other components.
func (m *SQLMap) Close() error {
	m.closed.Store(true)
	return nil
}
