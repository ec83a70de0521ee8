package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/hirot01/excel-db-app/internal/server/dto"
	"github.com/hirot01/excel-db-app/internal/storage"
	"github.com/hirot01/excel-db-app/internal/storage/audit"
	"github.com/hirot01/excel-db-app/internal/storage/entity"
	"github.com/hirot01/excel-db-app/internal/storage/sheet"
)

// --- Time formatting ---

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// --- Entity to DTO ---

func recordToResponse(r *entity.Record) dto.ItemResponse {
	return dto.ItemResponse{
		ID:        r.ID,
		Name:      r.Name,
		Category:  r.Category,
		Quantity:  r.Quantity,
		UpdatedAt: formatTime(r.UpdatedAt),
	}
}

func recordsToResponse(records []entity.Record) []dto.ItemResponse {
	out := make([]dto.ItemResponse, len(records))
	for i := range records {
		out[i] = recordToResponse(&records[i])
	}
	return out
}

func auditEntryToResponse(e *audit.Entry) dto.AuditEntryResponse {
	resp := dto.AuditEntryResponse{
		ID:            e.ID.String(),
		Time:          formatTime(e.Time),
		Action:        string(e.Action),
		RecordID:      e.RecordID,
		Name:          e.Name,
		ChangedFields: e.ChangedFields,
		Rows:          e.Rows,
	}
	if e.Before != nil {
		b := recordToResponse(e.Before)
		resp.Before = &b
	}
	if e.After != nil {
		a := recordToResponse(e.After)
		resp.After = &a
	}
	return resp
}

func schemaToResponse(name string, cols []sheet.Column) *dto.SchemaResponse {
	resp := &dto.SchemaResponse{Sheet: name, Columns: make([]dto.ColumnResponse, len(cols))}
	for i, c := range cols {
		resp.Columns[i] = dto.ColumnResponse{Name: c.Name, Type: c.Type, Required: c.Required, Description: c.Description}
	}
	return resp
}

// --- Error conversion ---

// convertError maps storage errors to API errors. Errors that already carry a
// status are returned unchanged.
func convertError(err error) error {
	if err == nil {
		return nil
	}
	var ews dto.ErrorWithStatus
	if errors.As(err, &ews) {
		return err
	}
	var (
		verr         *entity.ValidationError
		notFound     *storage.NotFoundError
		incompatible *sheet.IncompatibleUploadError
		corrupt      *sheet.CorruptStoreError
		maxBytes     *http.MaxBytesError
	)
	switch {
	case errors.As(err, &verr):
		return dto.InvalidField(verr.Field, verr.Message)
	case errors.As(err, &notFound):
		return dto.NewAPIError(http.StatusNotFound, dto.ErrorCodeNotFound, notFound.Error()).WithDetail("id", notFound.ID)
	case errors.As(err, &incompatible):
		return withLayout(dto.IncompatibleUpload(incompatible.Err.Error()), err)
	case errors.As(err, &corrupt):
		return withLayout(dto.CorruptStore(corrupt.Path).WithDetail("reason", corrupt.Err.Error()), err)
	case errors.As(err, &maxBytes):
		return dto.PayloadTooLarge(maxBytes.Limit)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return dto.NewAPIError(http.StatusServiceUnavailable, dto.ErrorCodeInternal, "request canceled").Wrap(err)
	default:
		return dto.InternalWithError("internal error", err)
	}
}

// withLayout adds the offending row and column, when known.
func withLayout(apiErr *dto.APIError, err error) *dto.APIError {
	var layout *sheet.LayoutError
	if !errors.As(err, &layout) {
		return apiErr
	}
	if layout.Row > 0 {
		apiErr.WithDetail("row", layout.Row)
	}
	if layout.Column != "" {
		apiErr.WithDetail("column", layout.Column)
	}
	return apiErr
}
