// Package sqlite implements repository.MottoRepository on SQLite.
//
// modernc.org/sqlite is a pure Go translation of SQLite, so the binary builds
// without CGo and a ":memory:" database is enough for tests.
//
// THE SEQUENCE NUMBER:
// mottos.number is declared INTEGER PRIMARY KEY AUTOINCREMENT. SQLite assigns
// it inside the INSERT and AUTOINCREMENT guarantees a value is never reused,
// even after the highest row is deleted. Gaps are possible; duplicates and
// decreases are not. No application code ever computes the next number.
package sqlite

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	// Registers the "sqlite" driver with database/sql.
	_ "modernc.org/sqlite"
)

// DefaultQueryTimeout bounds every repository call.
const DefaultQueryTimeout = 5 * time.Second

// DB wraps a sql.DB connection pool and implements repository.MottoRepository.
type DB struct {
	conn    *sql.DB
	timeout time.Duration
}

// Option configures a DB.
type Option func(*DB)

// WithQueryTimeout sets the per-call deadline. Non-positive values disable it.
func WithQueryTimeout(d time.Duration) Option {
	return func(db *DB) { db.timeout = d }
}

// New opens the database at dbPath, switches it to WAL mode and runs the
// migrations.
//
// dbPath examples:
//   - "data/mottos.db" → file-based database
//   - ":memory:"       → in-memory database, lost on close
func New(dbPath string, opts ...Option) (*DB, error) {
	dsn := dbPath
	if dbPath != ":memory:" {
		// Pragmas in the DSN apply to every pooled connection. Concurrent
		// writers wait for the lock instead of failing with SQLITE_BUSY.
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		dsn += sep + "_pragma=busy_timeout(5000)"
	}

	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	// Each pooled connection to ":memory:" would otherwise see its own empty
	// database.
	if dbPath == ":memory:" {
		conn.SetMaxOpenConns(1)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	// WAL lets readers continue while a submission is being written.
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting WAL mode: %w", err)
	}

	db := &DB{conn: conn, timeout: DefaultQueryTimeout}
	for _, opt := range opts {
		opt(db)
	}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

// Close closes the connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping reports whether the database is reachable.
func (db *DB) Ping() error {
	return db.conn.Ping()
}

// migrate creates the schema. Every statement is idempotent.
func (db *DB) migrate() error {
	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS mottos (
			number     INTEGER PRIMARY KEY AUTOINCREMENT,
			id         TEXT NOT NULL UNIQUE,
			nickname   TEXT NOT NULL DEFAULT 'anonymous',
			motto_text TEXT NOT NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
	`)
	if err != nil {
		return fmt.Errorf("creating mottos table: %w", err)
	}

	// timezone arrived after the first deployment.
	if err := db.addColumnIfNotExists("mottos", "timezone", "TEXT"); err != nil {
		return fmt.Errorf("adding timezone to mottos: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE INDEX IF NOT EXISTS idx_mottos_created_at ON mottos(created_at);
	`)
	if err != nil {
		return fmt.Errorf("creating mottos created_at index: %w", err)
	}

	return nil
}

// addColumnIfNotExists makes ALTER TABLE ... ADD COLUMN idempotent.
func (db *DB) addColumnIfNotExists(table, column, definition string) error {
	var count int
	err := db.conn.QueryRow(
		`SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?`,
		table, column,
	).Scan(&count)
	if err != nil {
		return fmt.Errorf("checking column %s.%s: %w", table, column, err)
	}
	if count > 0 {
		return nil
	}
	_, err = db.conn.Exec(fmt.Sprintf(
		`ALTER TABLE %s ADD COLUMN %s %s`, table, column, definition,
	))
	return err
}
