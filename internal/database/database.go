// Package database centralises sqlx connection helpers.  The Schedule Store
// is a single SQLite file (§6: "one database file… no writable state
// outside the database"), opened through mattn/go-sqlite3 with WAL mode so
// the single-writer/many-reader access pattern in §5 doesn't serialize
// readers behind the import task.
//
// Public entry points:
//
//	Open(path)                              – quick helper with sane defaults.
//	OpenWithOptions(path, maxOpen, maxIdle)  – fine-grained control.
//
// Both helpers Ping the database before returning so callers can fail fast
// during bootstrap.  Callers should Close() the returned *sqlx.DB when no
// longer needed.
package database

import (
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/jmoiron/sqlx"
)

// Open returns a *sqlx.DB with sane defaults: 8 max open, 4 idle, and a
// 30-minute connection lifetime.  Suitable for process-wide pools or for
// test setups.
func Open(path string) (*sqlx.DB, error) {
	return OpenWithOptions(path, 8, 4)
}

// OpenWithOptions lets callers tune maxOpen and maxIdle per pool.
func OpenWithOptions(path string, maxOpen, maxIdle int) (*sqlx.DB, error) {
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on", path)

	db, err := sqlx.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, err
	}
	return db, nil
}
