// Package main is the entry point for the exceldb server.
//
// exceldb serves a small inventory table kept in an .xlsx workbook. Items are
// listed, searched, added, edited and deleted from a browser UI; each change
// is written back to the workbook and recorded in a JSONL audit log.
// Configuration is read from CLI flags, the environment, a .env file and an
// optional YAML file.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/hirot01/excel-db-app/internal/config"
	"github.com/hirot01/excel-db-app/internal/server"
	"github.com/hirot01/excel-db-app/internal/server/handlers"
	"github.com/hirot01/excel-db-app/internal/server/ratelimit"
	"github.com/hirot01/excel-db-app/internal/storage"
	"github.com/hirot01/excel-db-app/internal/storage/audit"
	"github.com/hirot01/excel-db-app/internal/storage/sheet"
	"github.com/lmittmann/tint"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
)

func main() {
	if err := mainImpl(); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "exceldb: %v\n", err)
		os.Exit(1)
	}
}

func mainImpl() error {
	version := flag.Bool("version", false, "Print version and exit")
	configPath := flag.String("config", "", "Path of a YAML config file (default: exceldb.yaml if present)")
	envPath := flag.String("env-file", ".env", "Path of a .env file (ignored if missing)")
	var fromFlags config.Config
	fromFlags.RegisterFlags(flag.CommandLine)
	flag.Parse()
	if len(flag.Args()) > 0 {
		return fmt.Errorf("unknown arguments: %v", flag.Args())
	}

	if *version {
		printVersion()
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	defer stop()
	ll := &slog.LevelVar{}
	ll.Set(slog.LevelInfo)
	// Skip timestamps when running under systemd (it adds its own).
	underSystemd := os.Getenv("JOURNAL_STREAM") != ""
	logger := slog.New(tint.NewHandler(colorable.NewColorable(os.Stderr), &tint.Options{
		Level:      ll,
		TimeFormat: "15:04:05.000", // Like time.TimeOnly plus milliseconds.
		NoColor:    !isatty.IsTerminal(os.Stderr.Fd()),
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if underSystemd && a.Key == slog.TimeKey && len(groups) == 0 {
				return slog.Attr{}
			}
			// Drop localhost IPs (not useful in logs).
			if a.Key == "ip" {
				if v := a.Value.String(); v == "127.0.0.1" || v == "::1" {
					return slog.Attr{}
				}
			}
			val := a.Value.Any()
			skip := false
			switch t := val.(type) {
			case string:
				skip = t == ""
			case bool:
				skip = !t
			case uint64:
				skip = t == 0
			case int64:
				skip = t == 0
			case float64:
				skip = t == 0
			case time.Time:
				skip = t.IsZero()
			case time.Duration:
				skip = t == 0
			case nil:
				skip = true
			}
			if skip {
				return slog.Attr{}
			}
			return a
		},
	}))
	slog.SetDefault(logger)

	cfg, err := loadConfig(*configPath, *envPath, &fromFlags)
	if err != nil {
		return err
	}
	level, _ := config.ParseLevel(cfg.LogLevel)
	ll.Set(level)

	store, err := sheet.New(cfg.DataFile)
	if err != nil {
		return fmt.Errorf("failed to open data file: %w", err)
	}
	auditLog, err := audit.Open(cfg.AuditPath())
	if err != nil {
		return fmt.Errorf("failed to open audit log: %w", err)
	}
	items := storage.NewItemService(store, auditLog, nil)

	// A corrupt workbook is reported on every request, so the server still
	// starts and the user can fix the file while it runs.
	if records, err := store.Load(ctx); err != nil {
		slog.WarnContext(ctx, "Data file is not usable", "err", err)
	} else {
		slog.InfoContext(ctx, "Loaded data file", "path", store.Path(), "rows", len(records), "audit", auditLog.Len())
	}
	if cfg.Watch {
		if err := store.Watch(ctx); err != nil {
			slog.WarnContext(ctx, "Failed to watch data file", "path", store.Path(), "err", err)
		}
	}

	limiter := ratelimit.NewLimiter(cfg.WriteRatePerMin)
	if limiter != nil {
		defer limiter.Close()
	}

	buildVersion, _, _, _ := getBuildInfo()
	svc := &handlers.Services{Items: items}
	hcfg := &handlers.Config{
		Version:             buildVersion,
		MaxRequestBodyBytes: cfg.MaxUploadBytes,
	}
	httpServer := &http.Server{
		Addr: cfg.HTTP,
		Handler: server.NewRouter(svc, hcfg, server.Options{
			Limiter:     limiter,
			CORSOrigins: cfg.CORSOrigins,
		}),
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Run server in goroutine
	serverErr := make(chan error, 1)
	go func() {
		slog.InfoContext(ctx, "Starting server", "addr", cfg.HTTP, "data", cfg.DataFile, "version", buildVersion)
		serverErr <- httpServer.ListenAndServe()
	}()

	// Wait for either context cancellation or server error
	select {
	case err := <-serverErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
		slog.InfoContext(ctx, "Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown error: %w", err)
		}
		slog.InfoContext(ctx, "Server stopped")
	}
	return nil
}

// loadConfig layers defaults, the YAML file, the environment (including the
// .env file) and the flags given on the command line.
func loadConfig(configPath, envPath string, fromFlags *config.Config) (*config.Config, error) {
	cfg := config.Default()
	required := configPath != ""
	if configPath == "" {
		configPath = "exceldb.yaml"
	}
	if err := cfg.LoadFile(configPath, required); err != nil {
		return nil, err
	}
	dotEnv, err := config.ReadDotEnv(envPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(config.EnvLookup(dotEnv)); err != nil {
		return nil, fmt.Errorf("invalid environment: %w", err)
	}
	cfg.MergeFlags(flag.CommandLine, fromFlags)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func printVersion() {
	version, goVersion, revision, dirty := getBuildInfo()
	fmt.Printf("exceldb %s\n", version)
	fmt.Printf("  Go version: %s\n", goVersion)
	fmt.Printf("  Revision:   %s\n", revision)
	if dirty {
		fmt.Printf("  Modified:   true\n")
	}
}

func getBuildInfo() (version, goVersion, revision string, dirty bool) {
	version = "unknown"
	goVersion = "unknown"
	revision = "unknown"
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}
	version = info.Main.Version
	if version == "" || version == "(devel)" {
		version = "dev"
	}
	goVersion = info.GoVersion
	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			revision = setting.Value
		case "vcs.modified":
			dirty = setting.Value == "true"
		}
	}
	return
}
