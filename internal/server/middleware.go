package server

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hirot01/excel-db-app/internal/server/ratelimit"
	"github.com/hirot01/excel-db-app/internal/server/reqctx"
	"github.com/rs/cors"
)

// statusWriter records the status code written by the next handler.
type statusWriter struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (sw *statusWriter) WriteHeader(statusCode int) {
	if sw.status == 0 {
		sw.status = statusCode
	}
	sw.ResponseWriter.WriteHeader(statusCode)
}

func (sw *statusWriter) Write(b []byte) (int, error) {
	if sw.status == 0 {
		sw.status = http.StatusOK
	}
	n, err := sw.ResponseWriter.Write(b)
	sw.bytes += n
	return n, err
}

// Unwrap returns the underlying ResponseWriter for http.ResponseController.
func (sw *statusWriter) Unwrap() http.ResponseWriter {
	return sw.ResponseWriter
}

// RequestLogger tags each request with an id, stores the client metadata in
// the context and logs one line per request once it completes.
func RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		id := r.Header.Get("X-Request-ID")
		if id == "" || len(id) > 64 {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)

		ctx := reqctx.WithRequestID(r.Context(), id)
		ctx = reqctx.WithClientIP(ctx, reqctx.GetClientIP(r))
		ctx = reqctx.WithUserAgent(ctx, r.Header.Get("User-Agent"))

		sw := &statusWriter{ResponseWriter: w}
		next.ServeHTTP(sw, r.WithContext(ctx))

		level := slog.LevelInfo
		if !strings.HasPrefix(r.URL.Path, "/api/") || r.URL.Path == "/api/health" {
			level = slog.LevelDebug
		}
		if sw.status >= http.StatusInternalServerError {
			level = slog.LevelWarn
		}
		slog.Log(ctx, level, "HTTP",
			"id", id,
			"ip", reqctx.ClientIP(ctx),
			"method", r.Method,
			"path", r.URL.Path,
			"status", sw.status,
			"size", sw.bytes,
			"dur", time.Since(start).Round(time.Millisecond),
		)
	})
}

// LimitWrites rate limits mutating requests per client IP. Reads are never
// limited. A nil limiter disables the check.
func LimitWrites(limiter *ratelimit.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if limiter == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !isMutating(r.Method) {
				next.ServeHTTP(w, r)
				return
			}
			ip := reqctx.ClientIP(r.Context())
			if ip == "" {
				ip = reqctx.GetClientIP(r)
			}
			w, ok := checkRateLimit(w, limiter, ip)
			if !ok {
				slog.WarnContext(r.Context(), "Rate limited", "ip", ip, "method", r.Method, "path", r.URL.Path)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// CORS allows cross-origin calls from origins. With no origins it returns
// the handler unchanged.
func CORS(origins []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if len(origins) == 0 {
			return next
		}
		co := cors.New(cors.Options{
			AllowedOrigins: origins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
			AllowedHeaders: []string{"Content-Type", "X-Request-ID"},
			ExposedHeaders: []string{"X-Request-ID", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After", "Content-Disposition"},
			MaxAge:         600,
		})
		return co.Handler(next)
	}
}
