package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/kpango/glg"
	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// SQLiteStore persists values in a single table of a local SQLite database. This is the
// default store for a desktop session.
type SQLiteStore struct {
	db      *sql.DB
	getStmt *sql.Stmt
	setStmt *sql.Stmt
	delStmt *sql.Stmt
}

// NewSQLiteStore opens (creating if needed) the database file at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		path = "tracker.db"
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create store directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite: %w", err)
	}

	// SQLite only supports a single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS preferences (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create preferences table: %w", err)
	}

	s := &SQLiteStore{db: db}
	if s.getStmt, err = db.Prepare("SELECT value FROM preferences WHERE key = ?"); err != nil {
		db.Close()
		return nil, err
	}
	if s.setStmt, err = db.Prepare(`INSERT INTO preferences (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`); err != nil {
		db.Close()
		return nil, err
	}
	if s.delStmt, err = db.Prepare("DELETE FROM preferences WHERE key = ?"); err != nil {
		db.Close()
		return nil, err
	}

	glg.Debugf("Opened SQLite store: %s", path)
	return s, nil
}

// Get returns the stored value or ErrNotFound.
func (s *SQLiteStore) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := s.getStmt.QueryRowContext(ctx, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	} else if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", key, err)
	}

	return value, nil
}

// Set stores value under key.
func (s *SQLiteStore) Set(ctx context.Context, key, value string) error {
	if _, err := s.setStmt.ExecContext(ctx, key, value); err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}

	return nil
}

// Delete removes all of the keys in one transaction.
func (s *SQLiteStore) Delete(ctx context.Context, keys ...string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	stmt := tx.StmtContext(ctx, s.delStmt)
	for _, k := range keys {
		if _, err := stmt.ExecContext(ctx, k); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to delete %s: %w", k, err)
		}
	}

	return tx.Commit()
}

// Close releases the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
