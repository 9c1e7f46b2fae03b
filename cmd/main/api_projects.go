package main

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/CTAG07/Trellis/pkg/library"
	"github.com/CTAG07/Trellis/pkg/projects"
	"github.com/CTAG07/Trellis/pkg/sections"
)

// ProjectAPI manages per-project section data and custom presets.
type ProjectAPI struct {
	store  *projects.Store
	lib    *library.Library
	logger *slog.Logger
}

func NewProjectAPI(store *projects.Store, lib *library.Library, logger *slog.Logger) *ProjectAPI {
	return &ProjectAPI{store: store, lib: lib, logger: logger}
}

func (a *ProjectAPI) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/projects/{project}/sections", a.handleSections)
	mux.HandleFunc("/api/projects/{project}/sections/{section}", a.handleSection)
	mux.HandleFunc("/api/projects/{project}/sections/{section}/schema", a.handleSchema)
	mux.HandleFunc("/api/projects/{project}/sections/{section}/settings", a.handleSettings)
	mux.HandleFunc("/api/presets", a.handlePresets)
	mux.HandleFunc("/api/presets/{slug}", a.handlePreset)
}

// fail answers with the status matching err, logging server-side failures.
func (a *ProjectAPI) fail(w http.ResponseWriter, err error) {
	code := statusFor(err)
	if code >= http.StatusInternalServerError {
		a.logger.Error("Project request failed", "error", err)
	}
	respondWithError(w, code, err.Error())
}

func (a *ProjectAPI) handleSections(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodGet) {
		return
	}
	list, err := a.store.ListSections(r.Context(), r.PathValue("project"))
	if err != nil {
		a.fail(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, list)
}

// handleSection removes a section from the project.
func (a *ProjectAPI) handleSection(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodDelete) {
		return
	}
	if err := a.store.RemoveSection(r.Context(), r.PathValue("project"), r.PathValue("section")); err != nil {
		a.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type schemaResponse struct {
	Success     bool             `json:"success"`
	Schema      *sections.Schema `json:"schema"`
	IsCustom    bool             `json:"isCustom"`
	SectionSlug string           `json:"sectionSlug"`
}

// handleSchema reads, replaces or removes a section's custom schema. GET
// falls back to the library schema when there is no custom one.
func (a *ProjectAPI) handleSchema(w http.ResponseWriter, r *http.Request) {
	project, section := r.PathValue("project"), r.PathValue("section")
	switch r.Method {
	case http.MethodGet:
		custom, err := a.store.CustomSchema(r.Context(), project, section)
		if err != nil {
			a.fail(w, err)
			return
		}
		if custom != nil {
			respondWithJSON(w, http.StatusOK, schemaResponse{Success: true, Schema: custom, IsCustom: true, SectionSlug: section})
			return
		}
		schema, ok := a.lib.Section(section)
		if !ok {
			respondWithError(w, http.StatusNotFound, "Library section not found")
			return
		}
		respondWithJSON(w, http.StatusOK, schemaResponse{Success: true, Schema: schema, SectionSlug: section})
	case http.MethodPut:
		var schema sections.Schema
		if !decodeBody(w, r, &schema) {
			return
		}
		if err := a.store.SetCustomSchema(r.Context(), project, section, &schema); err != nil {
			a.fail(w, err)
			return
		}
		respondWithJSON(w, http.StatusOK, schemaResponse{Success: true, Schema: &schema, IsCustom: true, SectionSlug: section})
	case http.MethodDelete:
		if err := a.store.DeleteCustomSchema(r.Context(), project, section); err != nil {
			a.fail(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		w.Header().Set("Allow", "GET, PUT, DELETE")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

func (a *ProjectAPI) handleSettings(w http.ResponseWriter, r *http.Request) {
	project, section := r.PathValue("project"), r.PathValue("section")
	switch r.Method {
	case http.MethodGet:
		settings, err := a.store.SectionSettings(r.Context(), project, section)
		if err != nil {
			a.fail(w, err)
			return
		}
		respondWithJSON(w, http.StatusOK, map[string]any{"success": true, "sectionSlug": section, "settings": settings})
	case http.MethodPut:
		var settings sections.Settings
		if !decodeBody(w, r, &settings) {
			return
		}
		if settings == nil {
			respondWithError(w, http.StatusBadRequest, "Settings object is required")
			return
		}
		if err := a.store.SaveSectionSettings(r.Context(), project, section, settings); err != nil {
			a.fail(w, err)
			return
		}
		respondWithJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Settings saved successfully", "settings": settings})
	default:
		w.Header().Set("Allow", "GET, PUT")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

func (a *ProjectAPI) handlePresets(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		list, err := a.store.ListPresets(r.Context(), r.URL.Query().Get("project"))
		if err != nil {
			a.fail(w, err)
			return
		}
		respondWithJSON(w, http.StatusOK, list)
	case http.MethodPost:
		var p projects.CustomPreset
		if !decodeBody(w, r, &p) {
			return
		}
		slug := p.Slug
		if slug == "" {
			slug = sections.Slugify(p.Name)
		}
		if _, ok := a.lib.Preset(slug); ok {
			respondWithError(w, http.StatusConflict, fmt.Sprintf("Preset '%s' is defined by the library", slug))
			return
		}
		saved, err := a.store.SavePreset(r.Context(), p)
		if err != nil {
			a.fail(w, err)
			return
		}
		respondWithJSON(w, http.StatusCreated, saved)
	default:
		w.Header().Set("Allow", "GET, POST")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

func (a *ProjectAPI) handlePreset(w http.ResponseWriter, r *http.Request) {
	slug := r.PathValue("slug")
	switch r.Method {
	case http.MethodGet:
		p, err := a.store.CustomPreset(r.Context(), slug)
		if errors.Is(err, projects.ErrPresetNotFound) {
			if lp, ok := a.lib.Preset(slug); ok {
				respondWithJSON(w, http.StatusOK, lp)
				return
			}
		}
		if err != nil {
			a.fail(w, err)
			return
		}
		respondWithJSON(w, http.StatusOK, p)
	case http.MethodDelete:
		if err := a.store.DeletePreset(r.Context(), slug); err != nil {
			a.fail(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		w.Header().Set("Allow", "GET, DELETE")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}
