package db

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
	"golang.org/x/sync/singleflight"
)

//go:embed schema.sql
var schema string

const schemaVersion = "1"

var (
	// ErrNotFound is returned when an owner-scoped lookup resolves to nothing
	ErrNotFound = errors.New("record not found")
	// ErrProtected is returned when renaming or deleting the General project
	ErrProtected = errors.New("the General project cannot be renamed or deleted")
	// ErrNameConflict is returned when a project would be named General
	ErrNameConflict = errors.New("the name General is reserved")
	// ErrNameTaken is returned when a rename collides with another project of the same owner
	ErrNameTaken = errors.New("a project with this name already exists")
	// ErrEmptyName is returned for blank project or task names
	ErrEmptyName = errors.New("name must not be empty")
	// ErrInvalidStatus is returned for statuses outside the known set
	ErrInvalidStatus = errors.New("invalid task status")
)

// DB wraps the database connection
type DB struct {
	*sql.DB

	// creates collapses identical concurrent create-if-absent calls
	creates singleflight.Group
}

// querier is satisfied by both *sql.DB and *sql.Tx
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// New opens the database at path, or at the default data location when path is empty
func New(path string) (*DB, error) {
	if path == "" {
		var err error
		path, err = DefaultPath()
		if err != nil {
			return nil, err
		}
	}
	return Open(path)
}

// Open creates a new database connection and initializes the schema
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}
	// One connection serializes writers; SQLite allows a single writer anyway.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	d := &DB{DB: db}
	if err := d.SetSetting(context.Background(), "schema_version", schemaVersion); err != nil {
		db.Close()
		return nil, err
	}
	return d, nil
}

// DefaultPath returns the path to the database file
func DefaultPath() (string, error) {
	// Use XDG data directory or fallback to home directory
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		dataDir = filepath.Join(home, ".local", "share")
	}

	appDir := filepath.Join(dataDir, "stmbot")
	if err := os.MkdirAll(appDir, 0755); err != nil {
		return "", err
	}

	return filepath.Join(appDir, "stmbot.db"), nil
}

// withTx runs fn inside a transaction, rolling back when fn fails
func (db *DB) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// GetSetting retrieves a setting value by key
func (db *DB) GetSetting(ctx context.Context, key string) (string, error) {
	var value string
	err := db.QueryRowContext(ctx, "SELECT value FROM settings WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

// SetSetting sets a setting value
func (db *DB) SetSetting(ctx context.Context, key, value string) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	return err
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}
