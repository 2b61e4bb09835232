package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/rs/zerolog/log"
)

// File persists every key in a single JSON object on disk. Each mutation
// rewrites the document in full, using a temporary file and rename so a crash
// never leaves a truncated document behind.
//
// Other processes (plandeskctl) may replace the document while the store is
// open. Every operation checks the file first and reloads it when it changed,
// so their edits are seen and never overwritten by a stale copy. Two writers
// racing on the same key still resolve as last rename wins.
type File struct {
	path string

	mu     sync.Mutex
	values map[string]json.RawMessage
	// loaded describes the file values were read from or last written to,
	// nil when there is no file yet.
	loaded os.FileInfo
}

// OpenFile loads the store at path, creating its directory if needed. A
// missing file is treated as an empty store.
func OpenFile(path string) (*File, error) {
	if path == "" {
		return nil, errors.New("file store path is required")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("creating store directory: %w", err)
	}

	f := &File{
		path:   path,
		values: map[string]json.RawMessage{},
	}

	if err := f.refresh(); err != nil {
		return nil, err
	}

	log.Debug().Str("path", path).Int("keys", len(f.values)).Msg("store loaded")

	return f, nil
}

// Get retrieves a value from the store.
func (f *File) Get(_ context.Context, key string) ([]byte, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.refresh(); err != nil {
		return nil, false, err
	}

	value, ok := f.values[key]
	if !ok {
		return nil, false, nil
	}

	return slices.Clone([]byte(value)), true, nil
}

// Set stores a value and persists the document.
func (f *File) Set(_ context.Context, key string, value []byte) error {
	if !json.Valid(value) {
		return fmt.Errorf("value for key %q is not valid JSON", key)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.refresh(); err != nil {
		return err
	}

	previous, existed := f.values[key]
	f.values[key] = slices.Clone(value)

	if err := f.flush(); err != nil {
		// keep memory consistent with disk
		if existed {
			f.values[key] = previous
		} else {
			delete(f.values, key)
		}
		return err
	}

	return nil
}

// Delete removes a value and persists the document.
func (f *File) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.refresh(); err != nil {
		return err
	}

	previous, existed := f.values[key]
	if !existed {
		return nil
	}
	delete(f.values, key)

	if err := f.flush(); err != nil {
		f.values[key] = previous
		return err
	}

	return nil
}

// Keys lists the stored keys in sorted order.
func (f *File) Keys(_ context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.refresh(); err != nil {
		return nil, err
	}

	return slices.Sorted(maps.Keys(f.values)), nil
}

// Close is a no-op: every mutation is already on disk.
func (f *File) Close() error {
	return nil
}

// refresh reloads the document if the file was replaced, edited or removed
// since it was last read or written. Callers must hold the lock.
func (f *File) refresh() error {
	info, err := os.Stat(f.path)
	if errors.Is(err, os.ErrNotExist) {
		if f.loaded != nil {
			log.Info().Str("path", f.path).Msg("store file removed, starting empty")
			f.values = map[string]json.RawMessage{}
			f.loaded = nil
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("checking store file: %w", err)
	}

	if f.loaded != nil && sameVersion(f.loaded, info) {
		return nil
	}

	values, info, err := readDocument(f.path)
	if err != nil {
		return err
	}
	if f.loaded != nil {
		log.Debug().Str("path", f.path).Msg("store file changed on disk, reloaded")
	}

	f.values = values
	f.loaded = info
	return nil
}

func sameVersion(a, b os.FileInfo) bool {
	return os.SameFile(a, b) && a.Size() == b.Size() && a.ModTime().Equal(b.ModTime())
}

// readDocument reads the document and describes the exact file it read, so a
// replacement racing the read is detected on the next refresh.
func readDocument(path string) (map[string]json.RawMessage, os.FileInfo, error) {
	file, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]json.RawMessage{}, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("reading store file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, nil, fmt.Errorf("reading store file: %w", err)
	}

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, nil, fmt.Errorf("reading store file: %w", err)
	}

	values := map[string]json.RawMessage{}
	if len(bytes.TrimSpace(data)) == 0 {
		return values, info, nil
	}

	if err := json.Unmarshal(data, &values); err != nil {
		return nil, nil, fmt.Errorf("parsing store file %s: %w", path, err)
	}
	if values == nil {
		// the document was a JSON null
		values = map[string]json.RawMessage{}
	}

	return values, info, nil
}

// flush writes the document. Callers must hold the lock.
func (f *File) flush() error {
	data, err := json.MarshalIndent(f.values, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding store document: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(f.path), filepath.Base(f.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temporary store file: %w", err)
	}
	tmpName := tmp.Name()

	var info os.FileInfo
	_, err = tmp.Write(data)
	if err == nil {
		err = tmp.Sync()
	}
	if err == nil {
		// rename keeps the inode and mtime
		info, err = tmp.Stat()
	}
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("writing store file: %w", err)
	}

	if err := os.Rename(tmpName, f.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replacing store file: %w", err)
	}

	f.loaded = info
	return nil
}
