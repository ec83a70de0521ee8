// Package config resolves the server settings.
//
// Settings come from, in increasing order of precedence: built-in defaults,
// a YAML file, a .env file, the process environment and command line flags.
package config

import (
	"bytes"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultAuditFile is the audit log name used when none is configured. It is
// placed next to the data file.
const DefaultAuditFile = "audit_log.jsonl"

// Config holds every setting of the server.
type Config struct {
	// HTTP is the address to listen on.
	HTTP string `yaml:"http"`
	// DataFile is the .xlsx workbook holding the items table.
	DataFile string `yaml:"data_file"`
	// AuditFile is the JSONL change log. Empty means DefaultAuditFile next to
	// DataFile.
	AuditFile string `yaml:"audit_file"`
	// LogLevel is one of debug, info, warn or error.
	LogLevel string `yaml:"log_level"`
	// MaxUploadBytes bounds request bodies, uploads included. 0 means no limit.
	MaxUploadBytes int64 `yaml:"max_upload_bytes"`
	// WriteRatePerMin limits mutating requests per client IP. 0 means
	// unlimited.
	WriteRatePerMin int `yaml:"write_rate_per_min"`
	// CORSOrigins lists the browser origins allowed to call the API. Empty
	// disables CORS.
	CORSOrigins []string `yaml:"cors_origins"`
	// Watch reloads the table when another program modifies the data file.
	Watch bool `yaml:"watch"`
}

// Default returns the built-in defaults.
func Default() Config {
	return Config{
		HTTP:            "localhost:8080",
		DataFile:        "data.xlsx",
		LogLevel:        "info",
		MaxUploadBytes:  10 * 1024 * 1024, // 10 MiB
		WriteRatePerMin: 60,
		Watch:           true,
	}
}

// LoadFile overlays the YAML file at path on c. A missing file is ignored
// unless required is set.
func (c *Config) LoadFile(path string, required bool) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path comes from the operator
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !required {
			return nil
		}
		return fmt.Errorf("failed to read config %s: %w", path, err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return nil
}

// ReadDotEnv reads the variables of a .env file. A missing file yields an
// empty map.
func ReadDotEnv(path string) (map[string]string, error) {
	env, err := godotenv.Read(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return env, nil
}

// EnvLookup returns a lookup function that consults the process environment
// first and then the given .env variables.
func EnvLookup(dotEnv map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok {
			return v, true
		}
		v, ok := dotEnv[key]
		return v, ok
	}
}

// ApplyEnv overlays the environment variables found by lookup on c.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup("HTTP"); ok {
		c.HTTP = v
	}
	if v, ok := lookup("DATA_FILE"); ok {
		c.DataFile = v
	}
	if v, ok := lookup("AUDIT_FILE"); ok {
		c.AuditFile = v
	}
	if v, ok := lookup("LOG_LEVEL"); ok {
		c.LogLevel = v
	}
	if v, ok := lookup("MAX_UPLOAD_BYTES"); ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("MAX_UPLOAD_BYTES: %w", err)
		}
		c.MaxUploadBytes = n
	}
	if v, ok := lookup("WRITE_RATE_PER_MIN"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("WRITE_RATE_PER_MIN: %w", err)
		}
		c.WriteRatePerMin = n
	}
	if v, ok := lookup("CORS_ORIGINS"); ok {
		c.CORSOrigins = splitList(v)
	}
	if v, ok := lookup("WATCH"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("WATCH: %w", err)
		}
		c.Watch = b
	}
	return nil
}

// RegisterFlags registers one flag per setting on fs. Parsed values are
// stored in c; use MergeFlags to apply only the flags that were given.
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	d := Default()
	fs.StringVar(&c.HTTP, "http", d.HTTP, "Address to listen on (e.g., localhost:8080, :8080, 0.0.0.0:8080)")
	fs.StringVar(&c.DataFile, "data-file", d.DataFile, "Path of the .xlsx workbook holding the items table")
	fs.StringVar(&c.AuditFile, "audit-file", "", "Path of the JSONL audit log (default: "+DefaultAuditFile+" next to the data file)")
	fs.StringVar(&c.LogLevel, "log-level", d.LogLevel, "Log level (debug, info, warn, error)")
	fs.Int64Var(&c.MaxUploadBytes, "max-upload-bytes", d.MaxUploadBytes, "Maximum request body size in bytes, 0 for no limit")
	fs.IntVar(&c.WriteRatePerMin, "write-rate", d.WriteRatePerMin, "Mutating requests allowed per client IP per minute, 0 for unlimited")
	fs.Func("cors-origins", "Comma separated list of origins allowed to call the API", func(s string) error {
		c.CORSOrigins = splitList(s)
		return nil
	})
	fs.BoolVar(&c.Watch, "watch", d.Watch, "Reload the table when the data file is modified by another program")
}

// MergeFlags copies into c the settings whose flags were explicitly set on
// fs. from must be the Config passed to RegisterFlags.
func (c *Config) MergeFlags(fs *flag.FlagSet, from *Config) {
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "http":
			c.HTTP = from.HTTP
		case "data-file":
			c.DataFile = from.DataFile
		case "audit-file":
			c.AuditFile = from.AuditFile
		case "log-level":
			c.LogLevel = from.LogLevel
		case "max-upload-bytes":
			c.MaxUploadBytes = from.MaxUploadBytes
		case "write-rate":
			c.WriteRatePerMin = from.WriteRatePerMin
		case "cors-origins":
			c.CORSOrigins = from.CORSOrigins
		case "watch":
			c.Watch = from.Watch
		}
	})
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.DataFile) == "" {
		return errors.New("data_file is required")
	}
	if c.HTTP == "" {
		return errors.New("http is required")
	}
	if c.MaxUploadBytes < 0 {
		return errors.New("max_upload_bytes must be non-negative")
	}
	if c.WriteRatePerMin < 0 {
		return errors.New("write_rate_per_min must be non-negative")
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// AuditPath returns the audit log path.
func (c *Config) AuditPath() string {
	if c.AuditFile != "" {
		return c.AuditFile
	}
	return filepath.Join(filepath.Dir(c.DataFile), DefaultAuditFile)
}

// ParseLevel converts a log level name.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("invalid log level %q", s)
	}
}

func splitList(s string) []string {
	var out []string
	for part := range strings.SplitSeq(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
