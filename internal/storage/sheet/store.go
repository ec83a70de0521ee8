// Package sheet stores the items table in a single .xlsx workbook.
//
// The workbook holds one worksheet named "items" whose first row is the
// header derived from entity.Record. Every Save rewrites the whole file
// through a temporary file and a rename, so a crash never leaves a half
// written workbook behind. Reads are served from a snapshot that is
// invalidated when the file's size or modification time changes.
package sheet

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/hirot01/excel-db-app/internal/storage/entity"
	"github.com/xuri/excelize/v2"
)

// Store is the file-backed items table.
type Store struct {
	path string

	mu    sync.Mutex
	cache *snapshot
}

type snapshot struct {
	size    int64
	modTime time.Time
	rows    []entity.Record
}

func (s *snapshot) matches(fi fs.FileInfo) bool {
	return s != nil && s.size == fi.Size() && s.modTime.Equal(fi.ModTime())
}

// New returns a store backed by path. The file does not need to exist; its
// directory is created.
func New(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("sheet: empty path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil { //nolint:gosec // G301: data directory
		return nil, fmt.Errorf("failed to create directory for %s: %w", path, err)
	}
	return &Store{path: path}, nil
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.path
}

// Load returns every row in file order. A missing file is an empty table.
func (s *Store) Load(ctx context.Context) ([]entity.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked()
}

func (s *Store) loadLocked() ([]entity.Record, error) {
	fi, err := os.Stat(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		s.cache = nil
		return []entity.Record{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", s.path, err)
	}
	if s.cache.matches(fi) {
		return slices.Clone(s.cache.rows), nil
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", s.path, err)
	}
	rows, err := decodeBytes(data)
	if err != nil {
		return nil, &CorruptStoreError{Path: s.path, Err: err}
	}
	s.cache = &snapshot{size: fi.Size(), modTime: fi.ModTime(), rows: rows}
	return slices.Clone(rows), nil
}

// Save replaces the whole table with records.
func (s *Store) Save(ctx context.Context, records []entity.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := checkRecords(records); err != nil {
		return fmt.Errorf("refusing to save: %w", err)
	}
	data, err := encodeBytes(records)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := writeFileAtomic(s.path, data); err != nil {
		return err
	}
	s.remember(slices.Clone(records))
	return nil
}

// Replace swaps the backing file for data after checking that it decodes as
// the items table. On failure the backing file is not touched and the error
// is an *IncompatibleUploadError.
func (s *Store) Replace(ctx context.Context, data []byte) ([]entity.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rows, err := decodeBytes(data)
	if err != nil {
		return nil, &IncompatibleUploadError{Err: err}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := writeFileAtomic(s.path, data); err != nil {
		return nil, err
	}
	s.remember(rows)
	return slices.Clone(rows), nil
}

// Bytes returns the workbook as stored on disk. When no file exists yet it
// returns a workbook with only the header row.
func (s *Store) Bytes(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	data, err := os.ReadFile(s.path)
	s.mu.Unlock()
	if errors.Is(err, fs.ErrNotExist) {
		return encodeBytes(nil)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", s.path, err)
	}
	return data, nil
}

// Invalidate drops the cached snapshot.
func (s *Store) Invalidate() {
	s.mu.Lock()
	s.cache = nil
	s.mu.Unlock()
}

// remember caches rows as the content of the file just written. Must be
// called with mu held.
func (s *Store) remember(rows []entity.Record) {
	fi, err := os.Stat(s.path)
	if err != nil {
		s.cache = nil
		return
	}
	s.cache = &snapshot{size: fi.Size(), modTime: fi.ModTime(), rows: rows}
}

func decodeBytes(data []byte) ([]entity.Record, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, &LayoutError{Reason: "not a readable .xlsx workbook: " + err.Error()}
	}
	defer func() { _ = f.Close() }()
	return decode(f)
}

// writeFileAtomic writes data next to path and renames it over path.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	name := tmp.Name()
	ok := false
	defer func() {
		if !ok {
			_ = tmp.Close()
			_ = os.Remove(name)
		}
	}()
	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("failed to sync %s: %w", name, err)
	}
	if err := tmp.Chmod(0o644); err != nil { //nolint:gosec // G302: data file readable by the spreadsheet editor
		return fmt.Errorf("failed to chmod %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", name, err)
	}
	if err := os.Rename(name, path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	ok = true
	return nil
}
