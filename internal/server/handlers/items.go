// Handles item CRUD, upload and download requests.

package handlers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/hirot01/excel-db-app/internal/server/dto"
	"github.com/hirot01/excel-db-app/internal/storage/entity"
)

// xlsxContentType is the media type of .xlsx workbooks.
const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// maxMultipartMemory is how much of a multipart upload is kept in memory
// before spilling to temporary files.
const maxMultipartMemory = 10 << 20

// ItemHandler handles item-related HTTP requests.
type ItemHandler struct {
	Svc *Services
	Cfg *Config
}

// List returns the items whose name or category contains the query.
func (h *ItemHandler) List(ctx context.Context, req *dto.ListItemsRequest) (*dto.ListItemsResponse, error) {
	records, err := h.Svc.Items.List(ctx, req.Query)
	if err != nil {
		return nil, convertError(err)
	}
	return &dto.ListItemsResponse{Items: recordsToResponse(records), Total: len(records)}, nil
}

// Get returns one item.
func (h *ItemHandler) Get(ctx context.Context, req *dto.GetItemRequest) (*dto.ItemResponse, error) {
	rec, err := h.Svc.Items.Get(ctx, req.ID)
	if err != nil {
		return nil, convertError(err)
	}
	resp := recordToResponse(&rec)
	return &resp, nil
}

// Create adds an item.
func (h *ItemHandler) Create(ctx context.Context, req *dto.CreateItemRequest) (*dto.ItemResponse, error) {
	rec, err := h.Svc.Items.Add(ctx, entity.Fields{
		Name:     req.Name,
		Category: req.Category,
		Quantity: string(req.Quantity),
	})
	if err != nil {
		return nil, convertError(err)
	}
	resp := recordToResponse(&rec)
	return &resp, nil
}

// Update edits an item. Omitted fields keep their value.
func (h *ItemHandler) Update(ctx context.Context, req *dto.UpdateItemRequest) (*dto.ItemResponse, error) {
	patch := entity.Patch{Name: req.Name, Category: req.Category}
	if req.Quantity != nil {
		q := string(*req.Quantity)
		patch.Quantity = &q
	}
	rec, err := h.Svc.Items.Edit(ctx, req.ID, patch)
	if err != nil {
		return nil, convertError(err)
	}
	resp := recordToResponse(&rec)
	return &resp, nil
}

// Delete removes an item.
func (h *ItemHandler) Delete(ctx context.Context, req *dto.DeleteItemRequest) (*dto.DeleteItemResponse, error) {
	if err := h.Svc.Items.Delete(ctx, req.ID); err != nil {
		return nil, convertError(err)
	}
	return &dto.DeleteItemResponse{OK: true}, nil
}

// History returns the latest audit entries.
func (h *ItemHandler) History(ctx context.Context, req *dto.ListAuditRequest) (*dto.ListAuditResponse, error) {
	entries, err := h.Svc.Items.History(ctx, req.Limit)
	if err != nil {
		return nil, convertError(err)
	}
	resp := &dto.ListAuditResponse{Entries: make([]dto.AuditEntryResponse, len(entries))}
	for i := range entries {
		resp.Entries[i] = auditEntryToResponse(&entries[i])
	}
	return resp, nil
}

// Upload replaces the table with an uploaded workbook.
//
// The workbook is either the "file" part of a multipart/form-data body or
// the raw request body. This is a raw http.HandlerFunc because it reads
// binary and multipart content.
func (h *ItemHandler) Upload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	data, err := h.readUpload(w, r)
	if err != nil {
		slog.WarnContext(ctx, "Rejected upload", "err", err)
		writeErrorResponse(w, err)
		return
	}
	n, err := h.Svc.Items.Upload(ctx, data)
	if err != nil {
		slog.ErrorContext(ctx, "Upload failed", "err", err)
		writeErrorResponse(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.UploadResponse{Rows: n})
}

func (h *ItemHandler) readUpload(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	if limit := h.Cfg.MaxRequestBodyBytes; limit > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, limit)
	}
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		data, err := io.ReadAll(r.Body)
		if err != nil {
			return nil, err
		}
		if len(data) == 0 {
			return nil, dto.MissingField("file")
		}
		return data, nil
	}

	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			return nil, err
		}
		return nil, dto.BadRequest("invalid multipart form").Wrap(err)
	}
	defer func() {
		if err := r.MultipartForm.RemoveAll(); err != nil {
			slog.ErrorContext(r.Context(), "Failed to remove multipart files", "err", err)
		}
	}()
	file, _, err := r.FormFile("file")
	if err != nil {
		return nil, dto.MissingField("file")
	}
	defer func() {
		if err := file.Close(); err != nil {
			slog.ErrorContext(r.Context(), "Failed to close uploaded file", "err", err)
		}
	}()
	data, err := io.ReadAll(file)
	if err != nil {
		return nil, dto.InternalWithError("failed to read uploaded file", err)
	}
	return data, nil
}

// Export downloads the current workbook.
func (h *ItemHandler) Export(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	data, err := h.Svc.Items.Export(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "Export failed", "err", err)
		writeErrorResponse(w, err)
		return
	}
	name := filepath.Base(h.Svc.Items.Store().Path())
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		slog.ErrorContext(ctx, "Failed to write export", "err", err)
	}
}
