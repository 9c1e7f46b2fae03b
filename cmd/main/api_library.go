package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/CTAG07/Trellis/pkg/library"
	"github.com/CTAG07/Trellis/pkg/templating"
)

// LibraryAPI exposes the content library.
type LibraryAPI struct {
	lib    *library.Library
	tm     *templating.TemplateManager
	logger *slog.Logger
}

func NewLibraryAPI(lib *library.Library, tm *templating.TemplateManager, logger *slog.Logger) *LibraryAPI {
	return &LibraryAPI{lib: lib, tm: tm, logger: logger}
}

// RegisterRoutes sets up the routing for all /api/library endpoints.
func (a *LibraryAPI) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/library/sections", a.handleList)
	mux.HandleFunc("/api/library/sections/", a.handleSection)
	mux.HandleFunc("/api/library/presets", a.handlePresets)
	mux.HandleFunc("/api/library/snippets", a.handleSnippets)
	mux.HandleFunc("/api/library/refresh", a.handleRefresh)
}

func (a *LibraryAPI) handleList(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodGet) {
		return
	}
	respondWithJSON(w, http.StatusOK, a.lib.Sections())
}

// handleSection returns the full schema of one section, template included.
func (a *LibraryAPI) handleSection(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodGet) {
		return
	}
	slug := strings.TrimPrefix(r.URL.Path, "/api/library/sections/")
	if slug == "" || strings.Contains(slug, "/") {
		respondWithError(w, http.StatusNotFound, "Not Found")
		return
	}
	schema, ok := a.lib.Section(slug)
	if !ok {
		respondWithError(w, http.StatusNotFound, fmt.Sprintf("Section '%s' not found", slug))
		return
	}
	respondWithJSON(w, http.StatusOK, schema)
}

func (a *LibraryAPI) handlePresets(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodGet) {
		return
	}
	respondWithJSON(w, http.StatusOK, a.lib.Presets())
}

func (a *LibraryAPI) handleSnippets(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodGet) {
		return
	}
	respondWithJSON(w, http.StatusOK, map[string][]string{
		"files":    a.lib.Snippets(),
		"partials": a.tm.GetPartialNames(),
	})
}

// handleRefresh reloads the library and the template partials from disk.
// Cached previews stay valid since their keys include the template source.
func (a *LibraryAPI) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodPost) {
		return
	}
	if err := a.lib.Refresh(); err != nil {
		a.logger.Error("API triggered library refresh failed", "error", err)
		respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to refresh library: %v", err))
		return
	}
	if err := a.tm.Refresh(); err != nil {
		a.logger.Error("API triggered template refresh failed", "error", err)
		respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to refresh templates: %v", err))
		return
	}
	a.logger.Info("Library refreshed via API")
	respondWithJSON(w, http.StatusOK, map[string]int{
		"sections": len(a.lib.Sections()),
		"presets":  len(a.lib.Presets()),
		"partials": len(a.tm.GetPartialNames()),
	})
}
