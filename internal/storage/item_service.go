// Package storage implements the item CRUD operations on top of the
// spreadsheet store and records every mutation in the audit log.
package storage

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/hirot01/excel-db-app/internal/storage/audit"
	"github.com/hirot01/excel-db-app/internal/storage/entity"
	"github.com/hirot01/excel-db-app/internal/storage/sheet"
)

// DefaultHistoryLimit is the number of audit entries History returns when no
// limit is given.
const DefaultHistoryLimit = 100

// ItemService handles item business logic.
//
// Every mutation runs a full load, mutate, save cycle under mu so that two
// requests served by this process never interleave.
type ItemService struct {
	store *sheet.Store
	log   *audit.Log
	now   func() time.Time

	mu sync.Mutex
}

// NewItemService creates an item service. log may be nil to disable
// auditing; now may be nil to use the wall clock.
func NewItemService(store *sheet.Store, log *audit.Log, now func() time.Time) *ItemService {
	if now == nil {
		now = time.Now
	}
	return &ItemService{store: store, log: log, now: now}
}

// Store returns the underlying table store.
func (s *ItemService) Store() *sheet.Store {
	return s.store
}

// List returns the records whose name or category contains query, ignoring
// case, in file order. An empty query returns every record.
func (s *ItemService) List(ctx context.Context, query string) ([]entity.Record, error) {
	records, err := s.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	m := newMatcher(query)
	if m.all() {
		return records, nil
	}
	out := make([]entity.Record, 0, len(records))
	for i := range records {
		if m.match(&records[i]) {
			out = append(out, records[i])
		}
	}
	return out, nil
}

// Get returns the record with id.
func (s *ItemService) Get(ctx context.Context, id int64) (entity.Record, error) {
	records, err := s.store.Load(ctx)
	if err != nil {
		return entity.Record{}, err
	}
	i := entity.IndexByID(records, id)
	if i < 0 {
		return entity.Record{}, &NotFoundError{ID: id}
	}
	return records[i], nil
}

// Add validates fields and appends a new record with id max+1.
func (s *ItemService) Add(ctx context.Context, fields entity.Fields) (entity.Record, error) {
	c, err := entity.Validate(fields)
	if err != nil {
		return entity.Record{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	records, err := s.store.Load(ctx)
	if err != nil {
		return entity.Record{}, err
	}
	rec := entity.Record{ID: entity.MaxID(records) + 1, UpdatedAt: s.stamp(time.Time{})}
	rec.Apply(c)
	records = append(records, rec)
	if err := s.store.Save(ctx, records); err != nil {
		return entity.Record{}, fmt.Errorf("failed to save new record: %w", err)
	}
	slog.InfoContext(ctx, "Item added", "id", rec.ID, "name", rec.Name)
	s.record(ctx, audit.Entry{Action: audit.ActionAdd, RecordID: rec.ID, Name: rec.Name, After: rec.Clone()})
	return rec, nil
}

// Edit applies patch to the record with id. When the patch changes nothing
// the record is returned as is and the file is not rewritten.
func (s *ItemService) Edit(ctx context.Context, id int64, patch entity.Patch) (entity.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	records, err := s.store.Load(ctx)
	if err != nil {
		return entity.Record{}, err
	}
	i := entity.IndexByID(records, id)
	if i < 0 {
		return entity.Record{}, &NotFoundError{ID: id}
	}
	before := records[i]
	c, err := entity.Validate(patch.Merge(before.Fields()))
	if err != nil {
		return entity.Record{}, err
	}
	after := before
	after.Apply(c)
	changed := entity.ChangedFields(&before, &after)
	if len(changed) == 0 {
		slog.DebugContext(ctx, "Item unchanged", "id", id)
		return before, nil
	}
	after.UpdatedAt = s.stamp(before.UpdatedAt)
	records[i] = after
	if err := s.store.Save(ctx, records); err != nil {
		return entity.Record{}, fmt.Errorf("failed to save record %d: %w", id, err)
	}
	slog.InfoContext(ctx, "Item updated", "id", id, "fields", changed)
	s.record(ctx, audit.Entry{
		Action:        audit.ActionUpdate,
		RecordID:      id,
		Name:          after.Name,
		ChangedFields: changed,
		Before:        before.Clone(),
		After:         after.Clone(),
	})
	return after, nil
}

// Delete removes the record with id.
func (s *ItemService) Delete(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	records, err := s.store.Load(ctx)
	if err != nil {
		return err
	}
	i := entity.IndexByID(records, id)
	if i < 0 {
		return &NotFoundError{ID: id}
	}
	before := records[i]
	records = slices.Delete(records, i, i+1)
	if err := s.store.Save(ctx, records); err != nil {
		return fmt.Errorf("failed to delete record %d: %w", id, err)
	}
	slog.InfoContext(ctx, "Item deleted", "id", id)
	s.record(ctx, audit.Entry{Action: audit.ActionDelete, RecordID: id, Name: before.Name, Before: before.Clone()})
	return nil
}

// Upload replaces the whole table with an uploaded workbook and returns the
// number of rows it holds.
func (s *ItemService) Upload(ctx context.Context, data []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.store.Replace(ctx, data)
	if err != nil {
		return 0, err
	}
	slog.InfoContext(ctx, "Table replaced", "rows", len(rows), "bytes", len(data))
	s.record(ctx, audit.Entry{Action: audit.ActionReplace, Rows: len(rows)})
	return len(rows), nil
}

// Export returns the current workbook.
func (s *ItemService) Export(ctx context.Context) ([]byte, error) {
	return s.store.Bytes(ctx)
}

// History returns the latest audit entries, newest first.
func (s *ItemService) History(ctx context.Context, limit int) ([]audit.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.log == nil {
		return []audit.Entry{}, nil
	}
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	return s.log.Recent(limit), nil
}

// stamp returns the update time for a record last updated at prev. It never
// goes backwards.
func (s *ItemService) stamp(prev time.Time) time.Time {
	now := s.now().UTC()
	if now.Before(prev) {
		return prev
	}
	return now
}

// record appends to the audit log. The mutation is already saved, so a
// failure is only logged.
func (s *ItemService) record(ctx context.Context, e audit.Entry) {
	if s.log == nil {
		return
	}
	e.Time = s.now().UTC()
	if _, err := s.log.Append(e); err != nil {
		slog.ErrorContext(ctx, "Failed to append audit entry", "action", e.Action, "id", e.RecordID, "err", err)
	}
}
