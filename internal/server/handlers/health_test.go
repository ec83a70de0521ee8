package handlers

import (
	"context"
	"testing"

	"github.com/hirot01/excel-db-app/internal/server/dto"
)

func TestNewHealthHandler(t *testing.T) {
	handler := NewHealthHandler("1.0.0")
	if handler == nil {
		t.Fatal("NewHealthHandler returned nil")
	}
	if handler.version != "1.0.0" {
		t.Errorf("version = %q, want %q", handler.version, "1.0.0")
	}
}

func TestHealthHandler_Health(t *testing.T) {
	tests := []struct {
		name    string
		version string
	}{
		{name: "release version", version: "1.0.0"},
		{name: "dev version", version: "dev"},
		{name: "empty version", version: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := NewHealthHandler(tt.version).Health(context.Background(), &dto.HealthRequest{})
			if err != nil {
				t.Fatalf("Health() error = %v", err)
			}
			if resp.Status != "ok" {
				t.Errorf("Status = %q, want %q", resp.Status, "ok")
			}
			if resp.Version != tt.version {
				t.Errorf("Version = %q, want %q", resp.Version, tt.version)
			}
		})
	}
}

func TestHealthHandler_Schema(t *testing.T) {
	resp, err := NewHealthHandler("dev").Schema(context.Background(), &dto.SchemaRequest{})
	if err != nil {
		t.Fatalf("Schema() error = %v", err)
	}
	if resp.Sheet != "items" {
		t.Errorf("Sheet = %q, want %q", resp.Sheet, "items")
	}
	want := []string{"id", "name", "category", "quantity", "updated_at"}
	if len(resp.Columns) != len(want) {
		t.Fatalf("got %d columns, want %d", len(resp.Columns), len(want))
	}
	for i, c := range resp.Columns {
		if c.Name != want[i] {
			t.Errorf("column %d = %q, want %q", i, c.Name, want[i])
		}
	}
}
