// Package server implements the HTTP server and routing logic.
package server

import (
	"io"
	"io/fs"
	"net/http"
	"strings"

	"github.com/hirot01/excel-db-app/frontend"
	"github.com/hirot01/excel-db-app/internal/server/dto"
	"github.com/hirot01/excel-db-app/internal/server/handlers"
	"github.com/hirot01/excel-db-app/internal/server/ratelimit"
)

// Options configures the router's middleware.
type Options struct {
	// Limiter throttles mutating requests per client IP. nil disables it.
	Limiter *ratelimit.Limiter
	// CORSOrigins lists the origins allowed to call the API from a browser.
	CORSOrigins []string
}

// NewRouter creates and configures the HTTP router.
// Serves API endpoints at /api/* and the embedded UI at /.
func NewRouter(svc *handlers.Services, cfg *handlers.Config, opts Options) http.Handler {
	mux := &http.ServeMux{}
	hh := handlers.NewHealthHandler(cfg.Version)
	ih := &handlers.ItemHandler{Svc: svc, Cfg: cfg}

	mux.Handle("GET /api/health", Wrap(hh.Health, cfg))
	mux.Handle("GET /api/schema", Wrap(hh.Schema, cfg))

	mux.Handle("GET /api/items", Wrap(ih.List, cfg))
	mux.Handle("POST /api/items", Wrap(ih.Create, cfg))
	mux.HandleFunc("GET /api/items/export", ih.Export)
	mux.HandleFunc("POST /api/items/upload", ih.Upload)
	mux.Handle("GET /api/items/{id}", Wrap(ih.Get, cfg))
	mux.Handle("PUT /api/items/{id}", Wrap(ih.Update, cfg))
	mux.Handle("DELETE /api/items/{id}", Wrap(ih.Delete, cfg))

	mux.Handle("GET /api/audit", Wrap(ih.History, cfg))

	mux.HandleFunc("/api/", func(w http.ResponseWriter, r *http.Request) {
		writeAPIError(w, dto.NotFound("endpoint "+r.Method+" "+r.URL.Path))
	})
	mux.Handle("/", NewEmbeddedSPAHandler(frontend.Files))

	var h http.Handler = mux
	h = LimitWrites(opts.Limiter)(h)
	h = CORS(opts.CORSOrigins)(h)
	return RequestLogger(h)
}

// EmbeddedSPAHandler serves an embedded single-page application with fallback to index.html.
type EmbeddedSPAHandler struct {
	fs fs.FS
}

// NewEmbeddedSPAHandler creates a handler for the embedded frontend.
func NewEmbeddedSPAHandler(f fs.FS) *EmbeddedSPAHandler {
	return &EmbeddedSPAHandler{fs: f}
}

// ServeHTTP implements http.Handler for embedded SPA routing.
func (h *EmbeddedSPAHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	fsys, err := fs.Sub(h.fs, "dist")
	if err != nil {
		http.NotFound(w, r)
		return
	}
	name := strings.TrimPrefix(r.URL.Path, "/")
	if name != "" && name != "index.html" {
		if st, err := fs.Stat(fsys, name); err == nil && !st.IsDir() {
			if containsDot(r.URL.Path) {
				w.Header().Set("Cache-Control", "public, max-age=3600")
			}
			http.FileServerFS(fsys).ServeHTTP(w, r)
			return
		}
	}

	indexFile, err := fsys.Open("index.html")
	if err != nil {
		http.NotFound(w, r)
		return
	}
	defer func() { _ = indexFile.Close() }()

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	_, _ = io.Copy(w, indexFile)
}

// containsDot checks if a path contains a dot (file extension).
func containsDot(path string) bool {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return false
		}
		if path[i] == '.' {
			return true
		}
	}
	return false
}
