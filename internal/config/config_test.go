package config

import (
	"flag"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mapLookup(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestDefault(t *testing.T) {
	c := Default()
	require.NoError(t, c.Validate())
	assert.Equal(t, "localhost:8080", c.HTTP)
	assert.Equal(t, "audit_log.jsonl", c.AuditPath())
	assert.True(t, c.Watch)
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()

	t.Run("missing optional", func(t *testing.T) {
		c := Default()
		require.NoError(t, c.LoadFile(filepath.Join(dir, "nope.yaml"), false))
		assert.Equal(t, Default(), c)
	})

	t.Run("missing required", func(t *testing.T) {
		c := Default()
		assert.Error(t, c.LoadFile(filepath.Join(dir, "nope.yaml"), true))
	})

	t.Run("overlay", func(t *testing.T) {
		path := filepath.Join(dir, "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte("data_file: /srv/items.xlsx\nwrite_rate_per_min: 5\ncors_origins:\n  - http://a.example\nwatch: false\n"), 0o644))
		c := Default()
		require.NoError(t, c.LoadFile(path, true))
		assert.Equal(t, "/srv/items.xlsx", c.DataFile)
		assert.Equal(t, 5, c.WriteRatePerMin)
		assert.Equal(t, []string{"http://a.example"}, c.CORSOrigins)
		assert.False(t, c.Watch)
		assert.Equal(t, "localhost:8080", c.HTTP)
		assert.Equal(t, filepath.Join("/srv", "audit_log.jsonl"), c.AuditPath())
	})

	t.Run("empty", func(t *testing.T) {
		path := filepath.Join(dir, "empty.yaml")
		require.NoError(t, os.WriteFile(path, nil, 0o644))
		c := Default()
		require.NoError(t, c.LoadFile(path, true))
		assert.Equal(t, Default(), c)
	})

	t.Run("unknown key", func(t *testing.T) {
		path := filepath.Join(dir, "bad.yaml")
		require.NoError(t, os.WriteFile(path, []byte("datafile: x.xlsx\n"), 0o644))
		c := Default()
		assert.Error(t, c.LoadFile(path, true))
	})
}

func TestReadDotEnv(t *testing.T) {
	dir := t.TempDir()
	env, err := ReadDotEnv(filepath.Join(dir, ".env"))
	require.NoError(t, err)
	assert.Empty(t, env)

	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("# comment\nDATA_FILE=\"my items.xlsx\"\nLOG_LEVEL=debug\n"), 0o600))
	env, err = ReadDotEnv(path)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"DATA_FILE": "my items.xlsx", "LOG_LEVEL": "debug"}, env)
}

func TestApplyEnv(t *testing.T) {
	c := Default()
	require.NoError(t, c.ApplyEnv(mapLookup(map[string]string{
		"HTTP":               ":9000",
		"AUDIT_FILE":         "/var/log/items.jsonl",
		"MAX_UPLOAD_BYTES":   "1024",
		"WRITE_RATE_PER_MIN": "0",
		"CORS_ORIGINS":       "http://a.example, http://b.example,",
		"WATCH":              "false",
	})))
	assert.Equal(t, ":9000", c.HTTP)
	assert.Equal(t, "/var/log/items.jsonl", c.AuditPath())
	assert.Equal(t, int64(1024), c.MaxUploadBytes)
	assert.Equal(t, 0, c.WriteRatePerMin)
	assert.Equal(t, []string{"http://a.example", "http://b.example"}, c.CORSOrigins)
	assert.False(t, c.Watch)
	assert.Equal(t, "data.xlsx", c.DataFile)

	for _, key := range []string{"MAX_UPLOAD_BYTES", "WRITE_RATE_PER_MIN", "WATCH"} {
		c := Default()
		assert.Error(t, c.ApplyEnv(mapLookup(map[string]string{key: "many"})), key)
	}
}

func TestEnvLookupPrefersProcessEnv(t *testing.T) {
	t.Setenv("LOG_LEVEL", "warn")
	lookup := EnvLookup(map[string]string{"LOG_LEVEL": "debug", "DATA_FILE": "x.xlsx"})
	v, ok := lookup("LOG_LEVEL")
	assert.True(t, ok)
	assert.Equal(t, "warn", v)
	v, ok = lookup("DATA_FILE")
	assert.True(t, ok)
	assert.Equal(t, "x.xlsx", v)
}

func TestMergeFlags(t *testing.T) {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	var fromFlags Config
	fromFlags.RegisterFlags(fs)
	require.NoError(t, fs.Parse([]string{"-data-file", "flag.xlsx", "-watch=false", "-cors-origins", "http://c.example"}))

	c := Default()
	c.HTTP = ":7000"
	c.DataFile = "env.xlsx"
	c.MergeFlags(fs, &fromFlags)

	assert.Equal(t, ":7000", c.HTTP, "unset flags keep lower precedence values")
	assert.Equal(t, "flag.xlsx", c.DataFile)
	assert.False(t, c.Watch)
	assert.Equal(t, []string{"http://c.example"}, c.CORSOrigins)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"empty data file", func(c *Config) { c.DataFile = " " }},
		{"empty address", func(c *Config) { c.HTTP = "" }},
		{"negative body limit", func(c *Config) { c.MaxUploadBytes = -1 }},
		{"negative rate", func(c *Config) { c.WriteRatePerMin = -1 }},
		{"unknown level", func(c *Config) { c.LogLevel = "loud" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.modify(&c)
			assert.Error(t, c.Validate())
		})
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
	_, err := ParseLevel("verbose")
	assert.Error(t, err)
}
