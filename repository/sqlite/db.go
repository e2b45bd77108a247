package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/nijaru/reelsmith/errors"
)

const schema = `
CREATE TABLE IF NOT EXISTS recordings (
    id TEXT PRIMARY KEY,
    project_id TEXT,
    feature_name TEXT,
    description TEXT,
    video_url TEXT NOT NULL,
    duration REAL NOT NULL DEFAULT 0,
    trim_start REAL NOT NULL DEFAULT 0,
    trim_end REAL NOT NULL DEFAULT 0,
    cursor_style TEXT,
    cursor_source TEXT NOT NULL,
    processing_status TEXT NOT NULL,
    progress INTEGER NOT NULL DEFAULT 0,
    cursor_data TEXT,
    zoom_points TEXT,
    created_at DATETIME NOT NULL,
    updated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS runs (
    id TEXT PRIMARY KEY,
    current_step TEXT NOT NULL,
    product_data TEXT,
    video_script TEXT,
    beat_map TEXT,
    remotion_code TEXT,
    video_url TEXT,
    errors TEXT,
    created_at DATETIME NOT NULL,
    updated_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_recordings_status ON recordings(cursor_source, processing_status);
CREATE INDEX IF NOT EXISTS idx_runs_step ON runs(current_step);
`

type DBConfig struct {
	MaxRetries         int
	RetryDelay         time.Duration
	QueryTimeout       time.Duration
	MaxConnections     int
	MaxIdleConnections int
	ConnMaxLifetime    time.Duration
}

func DefaultDBConfig() DBConfig {
	return DBConfig{
		MaxRetries:         3,
		RetryDelay:         time.Second,
		QueryTimeout:       30 * time.Second,
		MaxConnections:     10,
		MaxIdleConnections: 5,
		ConnMaxLifetime:    time.Hour,
	}
}

// DB bundles the connection pool with its prepared statements.
type DB struct {
	conn       *sql.DB
	statements *PreparedStatements
	config     DBConfig
}

// Open initializes the database at dbPath and prepares all statements.
func Open(ctx context.Context, dbPath string, config DBConfig) (*DB, error) {
	const op = "sqlite.Open"

	conn, err := InitDB(dbPath)
	if err != nil {
		return nil, err
	}
	configureDB(conn, config)

	stmts := &PreparedStatements{}
	if err := stmts.Prepare(ctx, conn); err != nil {
		stmts.Close()
		conn.Close()
		return nil, errors.Internal(op, err, "failed to prepare statements")
	}

	return &DB{conn: conn, statements: stmts, config: config}, nil
}

func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

func (db *DB) Close() error {
	stmtErr := db.statements.Close()
	if err := db.conn.Close(); err != nil {
		return err
	}
	return stmtErr
}

func configureDB(db *sql.DB, config DBConfig) {
	if config.MaxConnections > 0 {
		db.SetMaxOpenConns(config.MaxConnections)
	}
	if config.MaxIdleConnections > 0 {
		db.SetMaxIdleConns(config.MaxIdleConnections)
	}
	if config.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(config.ConnMaxLifetime)
	}
}

func InitDB(dbPath string) (*sql.DB, error) {
	const op = "sqlite.InitDB"

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, errors.Internal(op, err, "failed to create database directory")
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, errors.Internal(op, err, "failed to open database")
	}

	if err := configurePragmas(db); err != nil {
		db.Close()
		return nil, err
	}

	if err := execSchema(db); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

func configurePragmas(db *sql.DB) error {
	const op = "sqlite.configurePragmas"

	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA temp_store = MEMORY",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return errors.Internal(op, err, fmt.Sprintf("failed to set pragma: %s", pragma))
		}
	}

	return nil
}

func execSchema(db *sql.DB) error {
	const op = "sqlite.execSchema"

	tx, err := db.Begin()
	if err != nil {
		return errors.Internal(op, err, "failed to begin transaction")
	}
	defer tx.Rollback()

	for _, stmt := range strings.Split(schema, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := tx.Exec(stmt); err != nil {
			return errors.Internal(op, err, fmt.Sprintf("failed to execute schema statement: %s", stmt))
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Internal(op, err, "failed to commit schema transaction")
	}
	return nil
}

// withRetry retries fn while SQLite reports the database as locked.
func withRetry(ctx context.Context, config DBConfig, op string, fn func() error) error {
	attempts := config.MaxRetries
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		if err := ctx.Err(); err != nil {
			return errors.Internal(op, err, "context cancelled")
		}
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !isLockError(lastErr) {
			return lastErr
		}
		select {
		case <-ctx.Done():
			return errors.Internal(op, ctx.Err(), "context cancelled")
		case <-time.After(config.RetryDelay * time.Duration(i+1)):
		}
	}
	return errors.Internal(op, lastErr, "max retries exceeded")
}

func isLockError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "busy")
}
