package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
)

// File persists every item in a single JSON object file.
type File struct {
	mu    sync.Mutex
	path  string
	items map[string]string
}

// OpenFile loads path if it exists. A missing file starts empty, and an
// unreadable one is renamed to <path>.corrupt before starting empty.
func OpenFile(path string) (*File, error) {
	if path == "" {
		return nil, errors.New("file storage requires a path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}

	f := &File{path: path, items: make(map[string]string)}
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return f, nil
	case err != nil:
		return nil, fmt.Errorf("read storage file: %w", err)
	}
	if len(data) == 0 {
		return f, nil
	}
	if err := json.Unmarshal(data, &f.items); err != nil {
		f.items = make(map[string]string)
		if err := f.quarantine(); err != nil {
			return nil, err
		}
		zap.L().Warn("storage file is corrupt, starting empty",
			zap.String("path", path), zap.String("movedTo", path+corruptSuffix), zap.Error(err))
	}
	return f, nil
}

const corruptSuffix = ".corrupt"

func (f *File) quarantine() error {
	if err := os.Rename(f.path, f.path+corruptSuffix); err != nil {
		return fmt.Errorf("move corrupt storage file: %w", err)
	}
	return nil
}

func (f *File) GetItem(_ context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	value, ok := f.items[key]
	if !ok {
		return "", ErrNotFound
	}
	return value, nil
}

func (f *File) SetItem(_ context.Context, key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	prev, existed := f.items[key]
	f.items[key] = value
	if err := f.flush(); err != nil {
		if existed {
			f.items[key] = prev
		} else {
			delete(f.items, key)
		}
		return err
	}
	return nil
}

func (f *File) RemoveItem(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	prev, existed := f.items[key]
	if !existed {
		return nil
	}
	delete(f.items, key)
	if err := f.flush(); err != nil {
		f.items[key] = prev
		return err
	}
	return nil
}

func (f *File) Close() error {
	return nil
}

// flush writes a temp file next to the target and renames it into place.
func (f *File) flush() error {
	data, err := json.MarshalIndent(f.items, "", "  ")
	if err != nil {
		return fmt.Errorf("encode storage file: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(f.path), filepath.Base(f.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		return fmt.Errorf("replace storage file: %w", err)
	}
	return nil
}
