package storage

import (
	"context"
	"database/sql"
	"fmt"

	raven "github.com/getsentry/raven-go"
	"github.com/kpango/glg"
	_ "github.com/lib/pq" // Only want to import the interface here
)

const (
	// PreferencesTable is the name of the table that holds the persisted key/value pairs.
	PreferencesTable = "tracker_preferences"
)

// PostgresStore is a wrapper around the database connection pool that stores the commonly used
// queries as prepared statements.
type PostgresStore struct {
	Database   *sql.DB
	SelectStmt *sql.Stmt
	UpsertStmt *sql.Stmt
	DeleteStmt *sql.Stmt
}

// NewPostgresStore is in charge of preparing the Statements that will be used as well
// as setting up the database connection pool.
func NewPostgresStore(dbURL string) (*PostgresStore, error) {

	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		raven.CaptureError(err, nil)
		glg.Errorf("DB errror: %s", err.Error())
		return nil, err
	}

	_, err = db.Exec("CREATE TABLE IF NOT EXISTS " + PreferencesTable + " (key TEXT PRIMARY KEY, value TEXT NOT NULL)")
	if err != nil {
		raven.CaptureError(err, nil)
		glg.Errorf("Failed to create the preferences table: %s", err.Error())
		db.Close()
		return nil, err
	}

	selectStmt, err := db.Prepare("SELECT value FROM " + PreferencesTable + " WHERE key = $1")
	if err != nil {
		raven.CaptureError(err, nil)
		glg.Errorf("DB prepare error: %s", err.Error())
		db.Close()
		return nil, err
	}

	upsertStmt, err := db.Prepare("INSERT INTO " + PreferencesTable + " (key, value) VALUES ($1, $2) ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value")
	if err != nil {
		raven.CaptureError(err, nil)
		glg.Errorf("Error preparing upsert statement: %s", err.Error())
		db.Close()
		return nil, err
	}

	deleteStmt, err := db.Prepare("DELETE FROM " + PreferencesTable + " WHERE key = $1")
	if err != nil {
		raven.CaptureError(err, nil)
		glg.Errorf("Error preparing delete statement: %s", err.Error())
		db.Close()
		return nil, err
	}

	return &PostgresStore{
		Database:   db,
		SelectStmt: selectStmt,
		UpsertStmt: upsertStmt,
		DeleteStmt: deleteStmt,
	}, nil
}

// Get is in charge of querying the database and reading the value for the given key.
func (p *PostgresStore) Get(ctx context.Context, key string) (string, error) {

	row := p.SelectStmt.QueryRowContext(ctx, key)

	var value string
	err := row.Scan(&value)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	} else if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", key, err)
	}

	return value, nil
}

// Set is responsible for persisting the provided value to the database.
func (p *PostgresStore) Set(ctx context.Context, key, value string) error {

	_, err := p.UpsertStmt.ExecContext(ctx, key, value)
	if err != nil {
		raven.CaptureError(err, nil)
		glg.Errorf("Failed to save %s: %s", key, err.Error())
	}

	return err
}

// Delete removes the keys inside a single transaction.
func (p *PostgresStore) Delete(ctx context.Context, keys ...string) error {

	tx, err := p.Database.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	stmt := tx.StmtContext(ctx, p.DeleteStmt)
	for _, k := range keys {
		if _, err := stmt.ExecContext(ctx, k); err != nil {
			tx.Rollback()
			raven.CaptureError(err, nil)
			glg.Errorf("Failed to delete %s: %s", k, err.Error())
			return err
		}
	}

	return tx.Commit()
}

// Close releases the connection pool.
func (p *PostgresStore) Close() error {
	return p.Database.Close()
}
