// Package db provides database connection management and operations.
package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// FileName is the database file created inside the data directory.
const FileName = "leobit.db"

// DB wraps the sql.DB with the sync backend's configuration.
type DB struct {
	*sql.DB
	Path string
}

// Open opens the SQLite database inside dataDir, creating the directory
// if needed.
func Open(dataDir string) (*DB, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	return OpenPath(filepath.Join(dataDir, FileName))
}

// OpenPath opens a SQLite database at path.
// The database is opened with:
// - WAL journal so readers do not block the queue writer
// - synchronous=FULL so a committed enqueue survives power loss
// - a busy timeout for lock contention
// - foreign key constraints enabled
func OpenPath(path string) (*DB, error) {
	// modernc.org/sqlite is pure Go, no CGO
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite supports a single writer; one connection also makes every
	// statement atomic with respect to the others.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = FULL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return &DB{DB: db, Path: path}, nil
}

// OpenAndMigrate opens the database in dataDir and applies all embedded
// migrations.
func OpenAndMigrate(dataDir string) (*DB, error) {
	database, err := Open(dataDir)
	if err != nil {
		return nil, err
	}
	if err := Migrate(database.DB); err != nil {
		database.Close()
		return nil, err
	}
	return database, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.DB.Close()
}
