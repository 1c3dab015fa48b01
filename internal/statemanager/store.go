package statemanager

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"indodax-monitor-bot/internal/persistence"
	"sync"

	"go.uber.org/zap"
)

// ErrStoreIO marks a failed write of a collection. The previously stored
// content is left intact when it is returned.
var ErrStoreIO = errors.New("store write failed")

// Store is the single writer of one durable collection.
// All read-modify-write cycles go through Mutate, which serialises them.
type Store[T any] struct {
	mu     sync.RWMutex
	key    string
	repo   persistence.Repository
	empty  func() T
	logger *zap.Logger
}

// NewStore creates a store for the collection saved under key.
// empty builds the value returned for absent or unreadable content.
func NewStore[T any](key string, repo persistence.Repository, empty func() T, logger *zap.Logger) *Store[T] {
	return &Store[T]{
		key:    key,
		repo:   repo,
		empty:  empty,
		logger: logger.With(zap.String("collection", key)),
	}
}

// Key returns the collection key.
func (s *Store[T]) Key() string {
	return s.key
}

// Read returns a freshly decoded copy of the collection. It never fails:
// missing or malformed content yields the empty collection.
func (s *Store[T]) Read() T {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, err := s.load()
	if err != nil {
		s.logger.Warn("Failed to load collection, using empty", zap.Error(err))
		return s.empty()
	}
	return v
}

// Mutate loads the current content, applies fn and, if fn reports a change,
// writes the result back. The whole cycle runs under the store's lock.
// fn is not called when the underlying storage cannot be read, so an
// unreadable backend is never overwritten with an empty collection.
func (s *Store[T]) Mutate(fn func(T) (T, bool)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.load()
	if err != nil {
		return fmt.Errorf("%w: load %s: %w", ErrStoreIO, s.key, err)
	}
	next, changed := fn(current)
	if !changed {
		return nil
	}
	return s.save(next)
}

// Save replaces the whole collection.
func (s *Store[T]) Save(v T) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(v)
}

// load only fails when the repository itself fails. Absent, blank, null and
// malformed content all decode to the empty collection.
func (s *Store[T]) load() (T, error) {
	data, err := s.repo.Load(s.key)
	if err != nil {
		return s.empty(), err
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return s.empty(), nil
	}

	v := s.empty()
	if err := json.Unmarshal(data, &v); err != nil {
		s.logger.Warn("Malformed collection content, using empty", zap.Error(err))
		return s.empty(), nil
	}
	return v, nil
}

func (s *Store[T]) save(v T) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encode %s: %v", ErrStoreIO, s.key, err)
	}
	if err := s.repo.Save(s.key, data); err != nil {
		s.logger.Error("Failed to save collection", zap.Error(err))
		return fmt.Errorf("%w: %s: %w", ErrStoreIO, s.key, err)
	}
	return nil
}
