package persistence

import "errors"

// ErrEmptyKey is returned when a collection key is blank.
var ErrEmptyKey = errors.New("persistence: empty collection key")

// Repository defines the interface for collection persistence.
// It abstracts the underlying storage mechanism (files, BadgerDB, SQLite)
// from the state stores. Each key holds one whole serialized collection.
type Repository interface {
	// Load returns the stored bytes for key.
	// If nothing was ever saved under key, it returns (nil, nil).
	Load(key string) ([]byte, error)

	// Save atomically replaces the bytes stored under key. On failure the
	// previously stored content must remain intact.
	Save(key string, data []byte) error

	// Close gracefully closes the connection to the underlying storage.
	Close() error
}
