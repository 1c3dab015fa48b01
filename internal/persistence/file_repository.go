package persistence

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// fileRepository stores each collection as <dir>/<key>.json.
type fileRepository struct {
	dir string
}

// NewFileRepository creates a repository rooted at dir, creating the directory if needed.
func NewFileRepository(dir string) (Repository, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage dir %s: %w", dir, err)
	}
	return &fileRepository{dir: dir}, nil
}

func (r *fileRepository) path(key string) string {
	return filepath.Join(r.dir, key+".json")
}

// Load reads the collection file. A missing file is not an error.
func (r *fileRepository) Load(key string) ([]byte, error) {
	if key == "" {
		return nil, ErrEmptyKey
	}
	data, err := os.ReadFile(r.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

// Save writes to a temp file in the same directory and renames it over the target.
func (r *fileRepository) Save(key string, data []byte) error {
	if key == "" {
		return ErrEmptyKey
	}
	return WriteFileAtomic(r.path(key), data, 0o644)
}

func (r *fileRepository) Close() error {
	return nil
}

// WriteFileAtomic replaces path with data so that readers see either the old
// or the new content, never a partial write.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		return fmt.Errorf("failed to chmod temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	committed = true
	return nil
}
