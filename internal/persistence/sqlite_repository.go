package persistence

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3" // Import the sqlite3 driver
)

// sqliteRepository keeps every collection as one row of the collections table.
type sqliteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository initializes the database connection and creates the collections table.
func NewSQLiteRepository(dataSourceName string) (Repository, error) {
	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection keeps ":memory:" databases coherent and serialises writers.
	db.SetMaxOpenConns(1)

	if err = db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	createCollectionsTableSQL := `
	CREATE TABLE IF NOT EXISTS collections (
		key TEXT PRIMARY KEY,
		data BLOB NOT NULL,
		updated_at INTEGER NOT NULL
	);`
	if _, err := db.Exec(createCollectionsTableSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return &sqliteRepository{db: db}, nil
}

// Load retrieves the collection row. It returns (nil, nil) if no row exists.
func (r *sqliteRepository) Load(key string) ([]byte, error) {
	if key == "" {
		return nil, ErrEmptyKey
	}
	var data []byte
	err := r.db.QueryRow("SELECT data FROM collections WHERE key = ?", key).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load collection %s: %w", key, err)
	}
	return data, nil
}

// Save creates or replaces the collection row inside a transaction.
func (r *sqliteRepository) Save(key string, data []byte) error {
	if key == "" {
		return ErrEmptyKey
	}
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() // Rollback on any error

	query := `
	INSERT INTO collections (key, data, updated_at)
	VALUES (?, ?, ?)
	ON CONFLICT(key) DO UPDATE SET
		data = excluded.data,
		updated_at = excluded.updated_at;`
	if _, err := tx.Exec(query, key, data, time.Now().UnixMilli()); err != nil {
		return fmt.Errorf("failed to save collection %s: %w", key, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit collection %s: %w", key, err)
	}
	return nil
}

func (r *sqliteRepository) Close() error {
	return r.db.Close()
}
