// Defines shared service dependencies for handlers.

package handlers

import "github.com/hirot01/excel-db-app/internal/storage"

// Services holds all service dependencies for handlers.
type Services struct {
	Items *storage.ItemService
}

// Config holds configuration values needed by handlers.
type Config struct {
	Version string
	// MaxRequestBodyBytes bounds JSON bodies and uploads. 0 means no limit.
	MaxRequestBodyBytes int64
}
