package sheet

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hirot01/excel-db-app/internal/storage/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

var header = []any{"id", "name", "category", "quantity", "updated_at"}

func workbookBytes(t *testing.T, sheetName string, rows [][]any) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()
	if sheetName != "Sheet1" {
		require.NoError(t, f.SetSheetName("Sheet1", sheetName))
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow(sheetName, cell, &row))
	}
	var buf bytes.Buffer
	_, err := f.WriteTo(&buf)
	require.NoError(t, err)
	return buf.Bytes()
}

func writeWorkbook(t *testing.T, path, sheetName string, rows [][]any) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, workbookBytes(t, sheetName, rows), 0o600))
}

func newStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "data.xlsx"))
	require.NoError(t, err)
	return s
}

func sampleRecords() []entity.Record {
	ts := time.Date(2024, 5, 1, 10, 30, 0, 123456789, time.UTC)
	return []entity.Record{
		{ID: 1, Name: "Widget", Category: "Tools", Quantity: 3, UpdatedAt: ts},
		{ID: 2, Name: "Gadget", Category: "", Quantity: 0, UpdatedAt: ts.Add(time.Hour)},
		{ID: 5, Name: "Doohickey", Category: "Misc", Quantity: 12, UpdatedAt: time.Time{}},
	}
}

func TestLoadMissingFile(t *testing.T) {
	s := newStore(t)
	got, err := s.Load(t.Context())
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)

	data, err := s.Bytes(t.Context())
	require.NoError(t, err)
	rows, err := decodeBytes(data)
	require.NoError(t, err)
	assert.Empty(t, rows)
	_, err = os.Stat(s.Path())
	assert.True(t, errors.Is(err, os.ErrNotExist), "Bytes must not create the file")
}

func TestSaveLoadRoundTrip(t *testing.T) {
	s := newStore(t)
	want := sampleRecords()
	require.NoError(t, s.Save(t.Context(), want))

	got, err := s.Load(t.Context())
	require.NoError(t, err)
	assert.Equal(t, want, got)

	// A second store bypasses the snapshot and decodes the file itself.
	s2, err := New(s.Path())
	require.NoError(t, err)
	got, err = s2.Load(t.Context())
	require.NoError(t, err)
	assert.Equal(t, want, got)

	require.NoError(t, s2.Save(t.Context(), got))
	again, err := s2.Load(t.Context())
	require.NoError(t, err)
	assert.Equal(t, want, again)
}

func TestSaveWritesHeader(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.Save(t.Context(), nil))

	f, err := excelize.OpenFile(s.Path())
	require.NoError(t, err)
	defer func() { _ = f.Close() }()
	assert.Equal(t, []string{SheetName}, f.GetSheetList())
	rows, err := f.GetRows(SheetName)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, Headers(), rows[0])
}

func TestSaveLeavesNoTempFiles(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.Save(t.Context(), sampleRecords()))
	require.NoError(t, s.Save(t.Context(), sampleRecords()[:1]))
	entries, err := os.ReadDir(filepath.Dir(s.Path()))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "data.xlsx", entries[0].Name())
}

func TestSaveRejectsInvalidRecords(t *testing.T) {
	s := newStore(t)
	err := s.Save(t.Context(), []entity.Record{{ID: 1, Name: "a"}, {ID: 1, Name: "b"}})
	require.Error(t, err)
	err = s.Save(t.Context(), []entity.Record{{ID: 1, Name: "a", Quantity: -1}})
	require.Error(t, err)
	err = s.Save(t.Context(), []entity.Record{{ID: 0, Name: "a"}})
	require.Error(t, err)
	_, err = os.Stat(s.Path())
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestLoadTolerantCells(t *testing.T) {
	s := newStore(t)
	writeWorkbook(t, s.Path(), SheetName, [][]any{
		{" id ", "name", "category ", "quantity", "updated_at"},
		{"3.0", "Widget", "Tools", "", "2024-05-01 10:00:00"},
		{},
		{"", "", "", "", ""},
		{4, "Gadget", "", 7, "2024-05-01"},
		{5, "Doohickey", "Parts", "2", 45413.5},
		{6, "Thing", "", 1, "2024-05-01T10:00:00+02:00"},
		{7, "Blank date", "", 1, ""},
	})
	got, err := s.Load(t.Context())
	require.NoError(t, err)
	want := []entity.Record{
		{ID: 3, Name: "Widget", Category: "Tools", Quantity: 0, UpdatedAt: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)},
		{ID: 4, Name: "Gadget", Quantity: 7, UpdatedAt: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)},
		{ID: 5, Name: "Doohickey", Category: "Parts", Quantity: 2, UpdatedAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)},
		{ID: 6, Name: "Thing", Quantity: 1, UpdatedAt: time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)},
		{ID: 7, Name: "Blank date", Quantity: 1},
	}
	require.Len(t, got, len(want))
	for i := range want {
		assert.Equal(t, want[i].ID, got[i].ID)
		assert.Equal(t, want[i].Name, got[i].Name)
		assert.Equal(t, want[i].Category, got[i].Category)
		assert.Equal(t, want[i].Quantity, got[i].Quantity)
		assert.WithinDuration(t, want[i].UpdatedAt, got[i].UpdatedAt, time.Second, "row %d", i)
	}
}

func TestLoadCorrupt(t *testing.T) {
	ts := "2024-05-01T10:00:00Z"
	tests := []struct {
		name   string
		sheet  string
		rows   [][]any
		row    int
		column string
	}{
		{
			name:  "missing items sheet",
			sheet: "Sheet1",
			rows:  [][]any{header},
		},
		{
			name:  "empty sheet",
			sheet: SheetName,
			rows:  nil,
			row:   1,
		},
		{
			name:   "renamed column",
			sheet:  SheetName,
			rows:   [][]any{{"id", "title", "category", "quantity", "updated_at"}},
			row:    1,
			column: "name",
		},
		{
			name:   "missing column",
			sheet:  SheetName,
			rows:   [][]any{{"id", "name", "category", "updated_at"}},
			row:    1,
			column: "quantity",
		},
		{
			name:   "header case differs",
			sheet:  SheetName,
			rows:   [][]any{{"ID", "name", "category", "quantity", "updated_at"}},
			row:    1,
			column: "id",
		},
		{
			name:  "extra column",
			sheet: SheetName,
			rows:  [][]any{{"id", "name", "category", "quantity", "updated_at", "notes"}},
			row:   1,
		},
		{
			name:   "non integer id",
			sheet:  SheetName,
			rows:   [][]any{header, {"abc", "Widget", "", 1, ts}},
			row:    2,
			column: "id",
		},
		{
			name:   "empty id",
			sheet:  SheetName,
			rows:   [][]any{header, {"", "Widget", "", 1, ts}},
			row:    2,
			column: "id",
		},
		{
			name:   "fractional id",
			sheet:  SheetName,
			rows:   [][]any{header, {1.5, "Widget", "", 1, ts}},
			row:    2,
			column: "id",
		},
		{
			name:   "zero id",
			sheet:  SheetName,
			rows:   [][]any{header, {0, "Widget", "", 1, ts}},
			row:    2,
			column: "id",
		},
		{
			name:   "negative id",
			sheet:  SheetName,
			rows:   [][]any{header, {1, "Widget", "", 1, ts}, {-3, "Gadget", "", 1, ts}},
			row:    3,
			column: "id",
		},
		{
			name:   "negative quantity",
			sheet:  SheetName,
			rows:   [][]any{header, {1, "Widget", "", -2, ts}},
			row:    2,
			column: "quantity",
		},
		{
			name:   "text quantity",
			sheet:  SheetName,
			rows:   [][]any{header, {1, "Widget", "", "many", ts}},
			row:    2,
			column: "quantity",
		},
		{
			name:   "bad timestamp",
			sheet:  SheetName,
			rows:   [][]any{header, {1, "Widget", "", 1, "yesterday"}},
			row:    2,
			column: "updated_at",
		},
		{
			name:   "duplicate id",
			sheet:  SheetName,
			rows:   [][]any{header, {1, "Widget", "", 1, ts}, {1, "Gadget", "", 1, ts}},
			row:    3,
			column: "id",
		},
		{
			name:  "value beyond last column",
			sheet: SheetName,
			rows:  [][]any{header, {1, "Widget", "", 1, ts, "stray"}},
			row:   2,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newStore(t)
			writeWorkbook(t, s.Path(), tt.sheet, tt.rows)
			_, err := s.Load(t.Context())
			var corrupt *CorruptStoreError
			require.True(t, errors.As(err, &corrupt), "err = %v", err)
			assert.Equal(t, s.Path(), corrupt.Path)
			var layout *LayoutError
			require.True(t, errors.As(err, &layout), "err = %v", err)
			assert.Equal(t, tt.row, layout.Row)
			assert.Equal(t, tt.column, layout.Column)
		})
	}
}

func TestLoadNotAWorkbook(t *testing.T) {
	s := newStore(t)
	require.NoError(t, os.WriteFile(s.Path(), []byte("id,name\n1,Widget\n"), 0o600))
	_, err := s.Load(t.Context())
	var corrupt *CorruptStoreError
	require.True(t, errors.As(err, &corrupt), "err = %v", err)
}

func TestReplace(t *testing.T) {
	t.Run("incompatible upload leaves file untouched", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Save(t.Context(), sampleRecords()))
		before, err := os.ReadFile(s.Path())
		require.NoError(t, err)

		uploads := map[string][]byte{
			"missing quantity": workbookBytes(t, SheetName, [][]any{
				{"id", "name", "category", "updated_at"},
				{1, "Widget", "Tools", "2024-05-01"},
			}),
			"wrong sheet": workbookBytes(t, "Data", [][]any{header}),
			"non positive ids": workbookBytes(t, SheetName, [][]any{
				header,
				{0, "Widget", "", 1, ""},
				{-3, "Gadget", "", 1, ""},
			}),
			"garbage":     []byte("not a zip file"),
			"empty":       nil,
		}
		for name, data := range uploads {
			t.Run(name, func(t *testing.T) {
				_, err := s.Replace(t.Context(), data)
				var incompatible *IncompatibleUploadError
				require.True(t, errors.As(err, &incompatible), "err = %v", err)
				after, err := os.ReadFile(s.Path())
				require.NoError(t, err)
				assert.Equal(t, before, after)
			})
		}

		got, err := s.Load(t.Context())
		require.NoError(t, err)
		assert.Equal(t, sampleRecords(), got)
	})

	t.Run("compatible upload is stored verbatim", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Save(t.Context(), sampleRecords()))
		data := workbookBytes(t, SheetName, [][]any{
			header,
			{10, "Sprocket", "Parts", 4, "2024-06-01T00:00:00Z"},
		})
		rows, err := s.Replace(t.Context(), data)
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, int64(10), rows[0].ID)

		onDisk, err := os.ReadFile(s.Path())
		require.NoError(t, err)
		assert.Equal(t, data, onDisk)

		got, err := s.Load(t.Context())
		require.NoError(t, err)
		assert.Equal(t, rows, got)

		exported, err := s.Bytes(t.Context())
		require.NoError(t, err)
		assert.Equal(t, data, exported)
	})
}

func TestExternalEditInvalidatesSnapshot(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.Save(t.Context(), sampleRecords()))
	assert.False(t, s.refresh(), "own write must keep the snapshot")

	writeWorkbook(t, s.Path(), SheetName, [][]any{
		header,
		{42, "Edited elsewhere with a much longer name", "", 1, ""},
	})
	assert.True(t, s.refresh())

	got, err := s.Load(t.Context())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int64(42), got[0].ID)
}

func TestWatch(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.Save(t.Context(), sampleRecords()))
	got, err := s.Load(t.Context())
	require.NoError(t, err)
	require.Len(t, got, 3)

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()
	require.NoError(t, s.Watch(ctx))

	// Replace the file the way an editor does, through a rename, so the
	// change is visible even where mtime granularity is coarse.
	tmp := filepath.Join(filepath.Dir(s.Path()), "edit.tmp")
	writeWorkbook(t, tmp, SheetName, [][]any{
		header,
		{42, "Edited elsewhere", "", 1, ""},
	})
	require.NoError(t, os.Rename(tmp, s.Path()))

	// Only the watcher drops the snapshot; Load is not called until then.
	require.Eventually(t, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.cache == nil
	}, 5*time.Second, 10*time.Millisecond)

	got, err = s.Load(t.Context())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int64(42), got[0].ID)
	cancel()
}

func TestSchema(t *testing.T) {
	assert.Equal(t, []string{"id", "name", "category", "quantity", "updated_at"}, Headers())
	cols := Schema()
	require.Len(t, cols, 5)
	want := []struct {
		typ      string
		required bool
	}{
		{ColumnTypeInteger, true},
		{ColumnTypeText, true},
		{ColumnTypeText, false},
		{ColumnTypeInteger, true},
		{ColumnTypeTimestamp, true},
	}
	for i, w := range want {
		assert.Equal(t, w.typ, cols[i].Type, "column %s", cols[i].Name)
		assert.Equal(t, w.required, cols[i].Required, "column %s", cols[i].Name)
		assert.NotEmpty(t, cols[i].Description)
	}
	cols[0].Name = "mutated"
	assert.Equal(t, "id", Schema()[0].Name)
}

func TestLayoutErrorMessage(t *testing.T) {
	assert.Equal(t, "row 3, column id: empty id", (&LayoutError{Row: 3, Column: "id", Reason: "empty id"}).Error())
	assert.Equal(t, "row 2: value beyond the last column", (&LayoutError{Row: 2, Reason: "value beyond the last column"}).Error())
	assert.Equal(t, "bad", (&LayoutError{Reason: "bad"}).Error())
}
