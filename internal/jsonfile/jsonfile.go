// Package jsonfile persists a slice of records as one indented JSON array.
package jsonfile

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// File is a JSON array on disk. A missing file reads as empty. Writes go to
// a temp file in the same directory and are renamed into place, so readers
// never observe a torn file. Updates are serialized by a mutex.
type File[T any] struct {
	path string
	mu   sync.Mutex
}

// New returns a File rooted at path. The parent directory is created on the
// first write.
func New[T any](path string) *File[T] {
	return &File[T]{path: path}
}

// Path returns the file location.
func (f *File[T]) Path() string { return f.path }

// Read loads every record.
func (f *File[T]) Read() ([]T, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.read()
}

// Update loads the records, applies fn and writes the result back.
func (f *File[T]) Update(fn func(records []T) ([]T, error)) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	records, err := f.read()
	if err != nil {
		return err
	}

	records, err = fn(records)
	if err != nil {
		return err
	}

	return f.write(records)
}

func (f *File[T]) read() ([]T, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []T{}, nil
		}
		return nil, fmt.Errorf("jsonfile: read %s: %w", f.path, err)
	}

	if len(bytes.TrimSpace(data)) == 0 {
		return []T{}, nil
	}

	var records []T
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("jsonfile: decode %s: %w", f.path, err)
	}

	if records == nil {
		records = []T{}
	}

	return records, nil
}

func (f *File[T]) write(records []T) error {
	if records == nil {
		records = []T{}
	}

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("jsonfile: encode %s: %w", f.path, err)
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("jsonfile: mkdir %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(f.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("jsonfile: temp file: %w", err)
	}

	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("jsonfile: write %s: %w", tmpName, err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("jsonfile: close %s: %w", tmpName, err)
	}

	if err := os.Rename(tmpName, f.path); err != nil {
		return fmt.Errorf("jsonfile: rename %s: %w", f.path, err)
	}

	return nil
}
