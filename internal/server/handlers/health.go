package handlers

import (
	"context"

	"github.com/hirot01/excel-db-app/internal/server/dto"
	"github.com/hirot01/excel-db-app/internal/storage/sheet"
)

// HealthHandler handles health check requests.
type HealthHandler struct {
	version string
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(version string) *HealthHandler {
	return &HealthHandler{version: version}
}

// Health handles health check requests.
func (h *HealthHandler) Health(ctx context.Context, req *dto.HealthRequest) (*dto.HealthResponse, error) {
	return &dto.HealthResponse{Status: "ok", Version: h.version}, nil
}

// Schema returns the column layout an uploaded workbook must follow.
func (h *HealthHandler) Schema(ctx context.Context, req *dto.SchemaRequest) (*dto.SchemaResponse, error) {
	return schemaToResponse(sheet.SheetName, sheet.Schema()), nil
}
