// Package audit records item mutations in an append-only JSONL file.
//
// The file is read once when opened; afterwards entries are appended both to
// disk and to an in-memory copy that serves reads.
package audit

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/hirot01/excel-db-app/internal/storage/entity"
	"github.com/maruel/ksid"
)

// Action is the kind of mutation recorded.
type Action string

// Recorded actions.
const (
	ActionAdd     Action = "add"
	ActionUpdate  Action = "update"
	ActionDelete  Action = "delete"
	ActionReplace Action = "replace"
)

// Entry is one line of the audit log.
type Entry struct {
	ID            ksid.ID        `json:"id"`
	Time          time.Time      `json:"ts"`
	Action        Action         `json:"action"`
	RecordID      int64          `json:"record_id,omitempty"`
	Name          string         `json:"name,omitempty"`
	ChangedFields []string       `json:"changed_fields,omitempty"`
	Before        *entity.Record `json:"before,omitempty"`
	After         *entity.Record `json:"after,omitempty"`
	Rows          int            `json:"rows,omitempty"`
}

// maxLine bounds a single JSONL line.
const maxLine = 1 << 20

// Log is the audit trail.
type Log struct {
	path string

	mu      sync.RWMutex
	entries []Entry
}

// Open loads the log at path, creating its directory. A missing file is an
// empty log.
func Open(path string) (*Log, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil { //nolint:gosec // G301: data directory
		return nil, fmt.Errorf("failed to create directory for %s: %w", path, err)
	}
	l := &Log{path: path}
	if err := l.load(); err != nil {
		return nil, err
	}
	return l, nil
}

// Path returns the log file path.
func (l *Log) Path() string {
	return l.path
}

func (l *Log) load() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.Open(l.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			l.entries = []Entry{}
			return nil
		}
		return fmt.Errorf("failed to open audit log %s: %w", l.path, err)
	}
	defer func() {
		_ = f.Close()
	}()

	var entries []Entry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLine)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(line, &e); err != nil {
			return fmt.Errorf("failed to decode line %d of %s: %w", lineNum, l.path, err)
		}
		entries = append(entries, e)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read audit log %s: %w", l.path, err)
	}
	l.entries = entries
	return nil
}

// Append stamps e with an ID (and a time, if unset) and persists it.
func (l *Log) Append(e Entry) (Entry, error) {
	if e.ID.IsZero() {
		e.ID = ksid.NewID()
	}
	if e.Time.IsZero() {
		e.Time = time.Now().UTC()
	}
	data, err := json.Marshal(e)
	if err != nil {
		return e, fmt.Errorf("failed to marshal audit entry: %w", err)
	}
	data = append(data, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()
	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644) //nolint:gosec // G302: log readable by the operator
	if err != nil {
		return e, fmt.Errorf("failed to open audit log for append: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return e, fmt.Errorf("failed to write audit entry: %w", err)
	}
	if err := f.Close(); err != nil {
		return e, fmt.Errorf("failed to close audit log: %w", err)
	}
	l.entries = append(l.entries, e)
	return e, nil
}

// Recent returns up to limit entries, newest first. limit <= 0 returns all.
func (l *Log) Recent(limit int) []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	n := len(l.entries)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]Entry, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, l.entries[i])
	}
	return out
}

// Len returns the number of entries.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}
