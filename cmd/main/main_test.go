package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

const heroSchema = `name: Hero Banner
category: hero
settings:
  - id: heading
    type: text
    label: Heading
    default: Welcome
  - id: height
    type: range
    label: Height
    default: 480
blocks:
  - type: button
    name: Button
    settings:
      - id: label
        type: text
        label: Label
presets:
  - name: Dark Mode
    settings:
      heading: Night
`

// writeLibrary creates a small content library under dir.
func writeLibrary(t *testing.T, dir string) {
	t.Helper()
	files := map[string]string{
		"sections/hero-banner.yaml":      heroSchema,
		"sections/hero-banner.tmpl.html": `<section class="hero"><h1>{{ .settings.heading }}</h1>{{ range .blocks }}<a>{{ .settings.label }}</a>{{ end }}</section>`,
		"sections/hero-banner.css":       `.hero{min-height:{{ .settings.height }}px}`,
		"presets/sale.yaml":              "name: Summer Sale\nsettings:\n  heading: Sale\n",
		"snippets/badge.part.html":       `{{ define "badge" }}<span class="badge">{{ . }}</span>{{ end }}`,
	}
	for name, content := range files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	}
}

// writeTestConfig writes a configuration that keeps everything inside dir.
func writeTestConfig(t *testing.T, dir string, mutate func(*Config)) string {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Server.DataDir = dir
	cfg.Server.DatabasePath = filepath.Join(dir, "trellis.db")
	cfg.Server.LibraryPath = filepath.Join(dir, "library")
	cfg.Telemetry.LogRenders = false
	if mutate != nil {
		mutate(cfg)
	}
	data, err := json.Marshal(cfg)
	require.NoError(t, err)
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, data, 0644))
	return path
}

// newTestServer builds a complete server over a temp directory.
func newTestServer(t *testing.T, mutate func(*Config)) *Server {
	t.Helper()
	dir := t.TempDir()
	writeLibrary(t, filepath.Join(dir, "library"))

	cm, err := NewConfigManager(writeTestConfig(t, dir, mutate))
	require.NoError(t, err)
	cm.SetLogger(discard)

	db, err := initDB(cm.Get().Server.DatabasePath)
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, setupSchemas(db))

	s, err := NewServer(cm, discard, db, make(chan string, 1))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close(context.Background()) })
	return s
}

// do sends a request through the server's handler and returns the recorder.
func do(t *testing.T, h http.Handler, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, target, reader)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decodeJSON[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v), rr.Body.String())
	return v
}
