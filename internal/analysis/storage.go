package analysis

import (
	"fmt"
	"os"
	"path/filepath"
)

// Storage keeps the source images of analyses
type Storage interface {
	// Save stores data under name and returns the stored path
	Save(name string, data []byte) (string, error)

	// Get reads a stored file
	Get(path string) ([]byte, error)

	// Delete removes a stored file
	Delete(path string) error
}

// LocalStorage implements Storage on the local filesystem
type LocalStorage struct {
	basePath string
}

// NewLocalStorage creates the base directory if needed
func NewLocalStorage(basePath string) (*LocalStorage, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("creating storage directory: %w", err)
	}
	return &LocalStorage{basePath: basePath}, nil
}

// resolve keeps every path inside the base directory
func (l *LocalStorage) resolve(name string) (string, error) {
	base := filepath.Base(filepath.Clean("/" + name))
	if base == "/" || base == "." {
		return "", fmt.Errorf("invalid file name %q", name)
	}
	return base, nil
}

// Save writes data to the base directory
func (l *LocalStorage) Save(name string, data []byte) (string, error) {
	path, err := l.resolve(name)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(filepath.Join(l.basePath, path), data, 0644); err != nil {
		return "", fmt.Errorf("writing file: %w", err)
	}
	return path, nil
}

// Get reads a file from the base directory
func (l *LocalStorage) Get(path string) ([]byte, error) {
	path, err := l.resolve(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(l.basePath, path))
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}
	return data, nil
}

// Delete removes a file from the base directory
func (l *LocalStorage) Delete(path string) error {
	path, err := l.resolve(path)
	if err != nil {
		return err
	}
	if err := os.Remove(filepath.Join(l.basePath, path)); err != nil {
		return fmt.Errorf("deleting file: %w", err)
	}
	return nil
}
