package persistence

import (
	"errors"

	"github.com/dgraph-io/badger/v3"
)

// badgerRepository is the BadgerDB implementation of the Repository.
type badgerRepository struct {
	db     *badger.DB
	prefix []byte
}

// NewBadgerRepository creates and returns a new repository instance connected to a BadgerDB database.
func NewBadgerRepository(dbPath string) (Repository, error) {
	return openBadger(badger.DefaultOptions(dbPath))
}

// NewInMemoryBadgerRepository opens a BadgerDB that lives only in memory.
func NewInMemoryBadgerRepository() (Repository, error) {
	return openBadger(badger.DefaultOptions("").WithInMemory(true))
}

func openBadger(opts badger.Options) (Repository, error) {
	// For this use case, we can disable Badger's own logging to keep our app's logs clean.
	// Errors will still be returned from DB operations.
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}

	return &badgerRepository{
		db:     db,
		prefix: []byte("collection/"),
	}, nil
}

func (r *badgerRepository) key(key string) []byte {
	return append(append([]byte{}, r.prefix...), key...)
}

// Save atomically stores the collection under its key in a single transaction.
func (r *badgerRepository) Save(key string, data []byte) error {
	if key == "" {
		return ErrEmptyKey
	}
	return r.db.Update(func(txn *badger.Txn) error {
		return txn.Set(r.key(key), data)
	})
}

// Load loads the collection from storage.
// If the key is not found, it returns (nil, nil) to indicate no collection is present.
func (r *badgerRepository) Load(key string) ([]byte, error) {
	if key == "" {
		return nil, ErrEmptyKey
	}

	var data []byte
	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(r.key(key))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})

	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

// Close gracefully closes the connection to the database.
func (r *badgerRepository) Close() error {
	return r.db.Close()
}
