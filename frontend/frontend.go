// Package frontend embeds the web UI.
//
// The UI is a single static page that talks to the JSON API; it needs no
// build step.
package frontend

import "embed"

// Files contains the embedded web frontend.
//
//go:embed dist/*
var Files embed.FS
