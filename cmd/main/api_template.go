package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/CTAG07/Trellis/pkg/library"
	"github.com/CTAG07/Trellis/pkg/sections"
	"github.com/CTAG07/Trellis/pkg/templating"
)

// TemplateAPI holds the dependencies for the template API handlers.
type TemplateAPI struct {
	tm     *templating.TemplateManager
	lib    *library.Library
	logger *slog.Logger
}

// NewTemplateAPI creates a new instance of the TemplateAPI.
func NewTemplateAPI(tm *templating.TemplateManager, lib *library.Library, logger *slog.Logger) *TemplateAPI {
	return &TemplateAPI{
		tm:     tm,
		lib:    lib,
		logger: logger,
	}
}

// RegisterRoutes sets up the routing for all /api/templates endpoints.
func (t *TemplateAPI) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/templates/refresh", t.handleRefresh)
	mux.HandleFunc("/api/templates/test", t.handleTest)
	mux.HandleFunc("/api/templates/check", t.handleCheck)
	mux.HandleFunc("/api/templates", t.handleList)
	mux.HandleFunc("/api/templates/", t.handleFile)
}

// handleRefresh triggers a manual refresh of partials from disk.
func (t *TemplateAPI) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodPost) {
		return
	}
	if err := t.tm.Refresh(); err != nil {
		t.logger.Error("API triggered refresh failed", "error", err)
		respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to refresh templates: %v", err))
		return
	}
	t.logger.Info("Templates refreshed via API")
	w.WriteHeader(http.StatusNoContent)
}

// handleList returns the names of all loaded partials.
func (t *TemplateAPI) handleList(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodGet) {
		return
	}
	respondWithJSON(w, http.StatusOK, t.tm.GetPartialNames())
}

// handleTest executes a raw go template body with the partials and function
// map available. Settings may be passed as a JSON query parameter.
func (t *TemplateAPI) handleTest(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodPost) {
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to read request body: %v", err))
		return
	}

	settings := map[string]any{}
	if raw := r.URL.Query().Get("settings"); raw != "" {
		_ = json.Unmarshal([]byte(raw), &settings)
	}
	data := map[string]any{
		"settings": settings,
		"section":  map[string]any{"settings": settings, "blocks": []any{}},
		"blocks":   []any{},
	}

	var buf bytes.Buffer
	if err = t.tm.ExecuteTemplateString(&buf, string(body), data); err != nil {
		respondWithError(w, http.StatusBadRequest, fmt.Sprintf("Template execution failed: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// checkRequest renders unsaved section source against a library schema's
// defaults, or against the given settings alone.
type checkRequest struct {
	SectionSlug string                `json:"sectionSlug"`
	Engine      string                `json:"engine"`
	Template    string                `json:"template"`
	Stylesheet  string                `json:"stylesheet"`
	Settings    sections.Settings     `json:"settings"`
	Blocks      []sections.BlockInput `json:"blocks"`
}

func (t *TemplateAPI) handleCheck(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodPost) {
		return
	}
	var req checkRequest
	if !decodeBody(w, r, &req) {
		return
	}

	var (
		resolved sections.Resolved
		name     = "check"
	)
	if schema, ok := t.lib.Section(req.SectionSlug); ok {
		resolved = sections.ResolveAll(schema, nil, req.Settings, req.Blocks)
		name = schema.Slug
		if req.Engine == "" {
			req.Engine = schema.EngineName()
		}
	} else {
		resolved = sections.Resolved{Settings: req.Settings}
		if resolved.Settings == nil {
			resolved.Settings = sections.Settings{}
		}
	}

	out, err := t.tm.Render(r.Context(), templating.Source{
		Name:       name,
		Engine:     req.Engine,
		Template:   req.Template,
		Stylesheet: req.Stylesheet,
	}, resolved.Settings, resolved.Blocks)
	if err != nil {
		if errors.Is(err, templating.ErrEngineFailure) {
			respondWithError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		respondWithError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"html":    out.HTML,
		"css":     out.CSS,
		"errors":  append(resolved.Warnings, out.Errors...),
	})
}

func isSnippetName(name string) bool {
	return strings.HasSuffix(name, ".part.html") || strings.HasSuffix(name, ".dj.html")
}

// handleFile manages CRUD operations for a single snippet file.
func (t *TemplateAPI) handleFile(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimPrefix(r.URL.Path, "/api/templates/")
	if name == "" || strings.HasSuffix(name, "/") {
		respondWithError(w, http.StatusNotFound, "Not Found")
		return
	}
	if strings.Contains(name, "..") || !isSnippetName(name) {
		respondWithError(w, http.StatusBadRequest, "Invalid template name format")
		return
	}
	if t.tm.GetTemplateDir() == "" {
		respondWithError(w, http.StatusNotFound, "No template directory configured")
		return
	}

	templateDir, err := filepath.Abs(t.tm.GetTemplateDir())
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to resolve template directory")
		return
	}
	path, err := filepath.Abs(filepath.Join(templateDir, name))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid path")
		return
	}
	if !strings.HasPrefix(path, templateDir+string(filepath.Separator)) {
		respondWithError(w, http.StatusForbidden, "Access denied: Path outside template directory")
		return
	}

	switch r.Method {
	case http.MethodGet:
		content, err := os.ReadFile(path)
		if err != nil {
			respondWithError(w, http.StatusNotFound, "Template not found")
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write(content)

	case http.MethodPut:
		body, err := io.ReadAll(r.Body)
		if err != nil {
			respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to read request body: %v", err))
			return
		}
		if err = os.WriteFile(path, body, 0644); err != nil {
			respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to write template file: %v", err))
			return
		}
		t.refreshAfterWrite()
		w.WriteHeader(http.StatusNoContent)

	case http.MethodDelete:
		if err := os.Remove(path); err != nil {
			if os.IsNotExist(err) {
				respondWithError(w, http.StatusNotFound, "Template not found")
				return
			}
			respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to delete template file: %v", err))
			return
		}
		t.refreshAfterWrite()
		w.WriteHeader(http.StatusNoContent)

	default:
		w.Header().Set("Allow", "GET, PUT, DELETE")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

func (t *TemplateAPI) refreshAfterWrite() {
	if err := t.tm.Refresh(); err != nil {
		t.logger.Warn("Partials failed to reload after write", "error", err)
	}
	if err := t.lib.Refresh(); err != nil {
		t.logger.Warn("Library failed to reload after write", "error", err)
	}
}
