package main

import (
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServer_RenderThenCacheHit(t *testing.T) {
	s := newTestServer(t, nil)
	h := s.Handler()

	body := map[string]any{
		"sectionSlug":    "hero-banner",
		"customSettings": map[string]any{"heading": "Hello"},
		"blocks":         []map[string]any{{"type": "button", "settings": map[string]any{"label": "Shop"}}},
	}
	first := do(t, h, http.MethodPost, "/api/render/section", body)
	require.Equal(t, http.StatusOK, first.Code, first.Body.String())
	res := decodeJSON[renderResponse](t, first)
	assert.True(t, res.Success)
	assert.False(t, res.Cached)
	assert.Contains(t, res.HTML, "<h1>Hello</h1>")
	assert.Contains(t, res.HTML, "<a>Shop</a>")
	assert.Contains(t, res.CSS, "min-height:480px")
	assert.Equal(t, cacheControlFresh, first.Header().Get("Cache-Control"))
	assert.NotEmpty(t, first.Header().Get("ETag"))

	second := do(t, h, http.MethodPost, "/api/render/section", body)
	require.Equal(t, http.StatusOK, second.Code)
	assert.True(t, decodeJSON[renderResponse](t, second).Cached)
	assert.Equal(t, cacheControlHit, second.Header().Get("Cache-Control"))
	assert.Equal(t, first.Header().Get("ETag"), second.Header().Get("ETag"))

	stats := do(t, h, http.MethodGet, "/api/stats/summary", nil)
	require.Equal(t, http.StatusOK, stats.Code)
	sum := decodeJSON[GlobalStatsSummary](t, stats)
	assert.Equal(t, int64(2), sum.TotalRenders)
	assert.Equal(t, int64(1), sum.CacheHits)

	cache := do(t, h, http.MethodGet, "/api/cache/stats", nil)
	require.Equal(t, http.StatusOK, cache.Code)
	assert.Equal(t, float64(1), decodeJSON[map[string]any](t, cache)["live"])
}

func TestServer_LibraryPresetsAndSchemaPresets(t *testing.T) {
	s := newTestServer(t, nil)
	h := s.Handler()

	rr := do(t, h, http.MethodPost, "/api/render/section", map[string]any{"sectionSlug": "hero-banner", "presetSlug": "summer-sale"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Contains(t, decodeJSON[renderResponse](t, rr).HTML, "<h1>Sale</h1>")

	rr = do(t, h, http.MethodPost, "/api/render/section", map[string]any{"sectionSlug": "hero-banner", "presetSlug": "dark-mode"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Contains(t, decodeJSON[renderResponse](t, rr).HTML, "<h1>Night</h1>")

	rr = do(t, h, http.MethodPost, "/api/render/section", map[string]any{"sectionSlug": "hero-banner", "presetSlug": "nope"})
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestServer_UnknownSection(t *testing.T) {
	s := newTestServer(t, nil)
	rr := do(t, s.Handler(), http.MethodPost, "/api/render/section", map[string]any{"sectionSlug": "missing"})
	assert.Equal(t, http.StatusNotFound, rr.Code)
	res := decodeJSON[renderResponse](t, rr)
	assert.False(t, res.Success)
	assert.NotEmpty(t, res.Errors)
}

func TestServer_ProjectCustomSchema(t *testing.T) {
	s := newTestServer(t, func(c *Config) { c.Cache.Backend = "memory" })
	h := s.Handler()

	custom := map[string]any{
		"name":     "Hero Banner",
		"category": "custom",
		"settings": []map[string]any{{"id": "title", "type": "text", "label": "Title", "default": "Custom"}},
		"blocks":   []any{},
		"template": `<div class="custom">{{ .settings.title }}</div>`,
	}
	rr := do(t, h, http.MethodPut, "/api/projects/acme/sections/hero-banner/schema", custom)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = do(t, h, http.MethodGet, "/api/projects/acme/sections/hero-banner/schema", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, true, decodeJSON[map[string]any](t, rr)["isCustom"])

	rr = do(t, h, http.MethodPost, "/api/render/section", map[string]any{"sectionSlug": "hero-banner", "projectSlug": "acme"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Contains(t, decodeJSON[renderResponse](t, rr).HTML, `<div class="custom">Custom</div>`)

	rr = do(t, h, http.MethodPost, "/api/render/section", map[string]any{"sectionSlug": "hero-banner", "projectSlug": "other"})
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, decodeJSON[renderResponse](t, rr).HTML, "<h1>Welcome</h1>")

	rr = do(t, h, http.MethodDelete, "/api/projects/acme/sections/hero-banner/schema", nil)
	assert.Equal(t, http.StatusNoContent, rr.Code)
	rr = do(t, h, http.MethodGet, "/api/projects/acme/sections/hero-banner/schema", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, false, decodeJSON[map[string]any](t, rr)["isCustom"])
}

func TestServer_RemoveProjectSection(t *testing.T) {
	s := newTestServer(t, nil)
	h := s.Handler()

	rr := do(t, h, http.MethodDelete, "/api/projects/acme/sections/hero-banner", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = do(t, h, http.MethodPut, "/api/projects/acme/sections/hero-banner/settings", map[string]any{"heading": "Saved"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	rr = do(t, h, http.MethodGet, "/api/projects/acme/sections", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decodeJSON[[]map[string]any](t, rr), 1)

	rr = do(t, h, http.MethodGet, "/api/projects/acme/sections/hero-banner", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)

	rr = do(t, h, http.MethodDelete, "/api/projects/acme/sections/hero-banner", nil)
	assert.Equal(t, http.StatusNoContent, rr.Code)
	rr = do(t, h, http.MethodGet, "/api/projects/acme/sections", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Empty(t, decodeJSON[[]map[string]any](t, rr))
	rr = do(t, h, http.MethodGet, "/api/projects/acme/sections/hero-banner/settings", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestServer_CustomPresets(t *testing.T) {
	s := newTestServer(t, nil)
	h := s.Handler()

	rr := do(t, h, http.MethodPost, "/api/presets", map[string]any{"name": "Summer Sale"})
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = do(t, h, http.MethodPost, "/api/presets", map[string]any{
		"name":     "Brand",
		"settings": map[string]any{"heading": "Branded"},
		"colors":   map[string]any{"primary": "#ff0000"},
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	assert.Equal(t, "brand", decodeJSON[map[string]any](t, rr)["slug"])

	rr = do(t, h, http.MethodPost, "/api/render/section", map[string]any{"sectionSlug": "hero-banner", "presetSlug": "brand"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Contains(t, decodeJSON[renderResponse](t, rr).HTML, "<h1>Branded</h1>")

	rr = do(t, h, http.MethodGet, "/api/presets/summer-sale", nil)
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = do(t, h, http.MethodDelete, "/api/presets/brand", nil)
	assert.Equal(t, http.StatusNoContent, rr.Code)
	rr = do(t, h, http.MethodGet, "/api/presets/brand", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestServer_ProjectSettings(t *testing.T) {
	s := newTestServer(t, nil)
	h := s.Handler()

	rr := do(t, h, http.MethodGet, "/api/projects/acme/sections/hero-banner/settings", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = do(t, h, http.MethodPut, "/api/projects/acme/sections/hero-banner/settings", map[string]any{"heading": "Saved"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = do(t, h, http.MethodGet, "/api/projects/acme/sections", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	list := decodeJSON[[]map[string]any](t, rr)
	require.Len(t, list, 1)
	assert.Equal(t, "hero-banner", list[0]["section_slug"])
}

func TestServer_LibraryEndpoints(t *testing.T) {
	s := newTestServer(t, nil)
	h := s.Handler()

	rr := do(t, h, http.MethodGet, "/api/library/sections", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decodeJSON[[]map[string]any](t, rr), 1)

	rr = do(t, h, http.MethodGet, "/api/library/sections/hero-banner", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	rr = do(t, h, http.MethodGet, "/api/library/sections/nope", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = do(t, h, http.MethodGet, "/api/library/snippets", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	snippets := decodeJSON[map[string][]string](t, rr)
	assert.Contains(t, snippets["partials"], "badge")

	rr = do(t, h, http.MethodPost, "/api/library/refresh", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, float64(1), decodeJSON[map[string]any](t, rr)["sections"])

	rr = do(t, h, http.MethodGet, "/api/library/refresh", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
	assert.Equal(t, "POST", rr.Header().Get("Allow"))
}

func TestServer_TemplateFiles(t *testing.T) {
	s := newTestServer(t, nil)
	h := s.Handler()

	rr := do(t, h, http.MethodPut, "/api/templates/price.part.html", `{{ define "price" }}<b>{{ . }}</b>{{ end }}`)
	require.Equal(t, http.StatusNoContent, rr.Code, rr.Body.String())

	rr = do(t, h, http.MethodGet, "/api/templates", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, decodeJSON[[]string](t, rr), "price")

	rr = do(t, h, http.MethodPost, "/api/templates/test", `{{ template "price" "9.99" }}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, "<b>9.99</b>", strings.TrimSpace(rr.Body.String()))

	rr = do(t, h, http.MethodGet, "/api/templates/price.part.html", nil)
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = do(t, h, http.MethodPut, "/api/templates/notes.txt", "x")
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, h, http.MethodDelete, "/api/templates/price.part.html", nil)
	assert.Equal(t, http.StatusNoContent, rr.Code)
	rr = do(t, h, http.MethodDelete, "/api/templates/price.part.html", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestServer_TemplateCheck(t *testing.T) {
	s := newTestServer(t, nil)
	h := s.Handler()

	rr := do(t, h, http.MethodPost, "/api/templates/check", map[string]any{
		"sectionSlug": "hero-banner",
		"template":    `<p>{{ .settings.heading }}</p>`,
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Contains(t, decodeJSON[map[string]any](t, rr)["html"], "<p>Welcome</p>")

	rr = do(t, h, http.MethodPost, "/api/templates/check", map[string]any{
		"template": `<p>{{ .settings.heading `,
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
}

func TestServer_CacheMaintenance(t *testing.T) {
	s := newTestServer(t, nil)
	h := s.Handler()

	rr := do(t, h, http.MethodPost, "/api/render/section", map[string]any{"sectionSlug": "hero-banner"})
	require.Equal(t, http.StatusOK, rr.Code)

	rr = do(t, h, http.MethodPost, "/api/cache/sweep", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, float64(0), decodeJSON[map[string]any](t, rr)["removed"])

	rr = do(t, h, http.MethodPost, "/api/cache/purge?section=hero-banner", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, float64(1), decodeJSON[map[string]any](t, rr)["removed"])
}

func TestServer_ServerEndpoints(t *testing.T) {
	s := newTestServer(t, nil)
	h := s.Handler()

	rr := do(t, h, http.MethodGet, "/api/health", nil)
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = do(t, h, http.MethodGet, "/api/server/version", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, versionInfo(), decodeJSON[VersionInfo](t, rr))

	rr = do(t, h, http.MethodPut, "/api/server/config", map[string]any{"cache_config": map[string]any{"default_ttl_sec": 120}})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, 120, s.cm.Get().Cache.DefaultTTLSec)
	assert.Equal(t, "sqlite", s.cm.Get().Cache.Backend)
}

func TestServer_RestartAction(t *testing.T) {
	dir := t.TempDir()
	writeLibrary(t, dir+"/library")
	cm, err := NewConfigManager(writeTestConfig(t, dir, nil))
	require.NoError(t, err)
	db, err := initDB(cm.Get().Server.DatabasePath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, setupSchemas(db))

	actions := make(chan string, 1)
	s, err := NewServer(cm, discard, db, actions)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close(t.Context()) })

	rr := do(t, s.Handler(), http.MethodPost, "/api/server/restart", nil)
	assert.Equal(t, http.StatusAccepted, rr.Code)
	assert.Equal(t, actionRestart, <-actions)
}
