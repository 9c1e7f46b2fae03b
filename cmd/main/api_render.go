package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/CTAG07/Trellis/pkg/projects"
	"github.com/CTAG07/Trellis/pkg/render"
	"github.com/CTAG07/Trellis/pkg/sections"
	"go.trai.ch/zerr"
)

const (
	cacheControlHit   = "public, max-age=300, s-maxage=3600"
	cacheControlFresh = "public, max-age=60, s-maxage=300"
	cacheControlFrame = "public, max-age=60"
)

// SectionRenderer is the part of the orchestrator the render API needs.
type SectionRenderer interface {
	RenderSection(ctx context.Context, req render.Request) (render.Result, error)
}

// RenderAPI serves section renders as JSON and as iframe documents.
type RenderAPI struct {
	renderer SectionRenderer
	logger   *slog.Logger
}

func NewRenderAPI(renderer SectionRenderer, logger *slog.Logger) *RenderAPI {
	return &RenderAPI{renderer: renderer, logger: logger}
}

func (a *RenderAPI) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/render/section", a.handleSection)
	mux.HandleFunc("/api/render/preview", a.handlePreview)
}

// renderRequest is the JSON body of POST /api/render/section.
type renderRequest struct {
	SectionSlug    string                `json:"sectionSlug"`
	PresetSlug     string                `json:"presetSlug"`
	ProjectSlug    string                `json:"projectSlug"`
	CustomSettings sections.Settings     `json:"customSettings"`
	Blocks         []sections.BlockInput `json:"blocks"`
	SkipCache      bool                  `json:"skipCache"`
}

type renderResponse struct {
	Success      bool     `json:"success"`
	Error        string   `json:"error,omitempty"`
	HTML         string   `json:"html"`
	CSS          string   `json:"css"`
	Errors       []string `json:"errors"`
	RenderTimeMs int64    `json:"renderTimeMs"`
	Cached       bool     `json:"cached"`
}

// statusFor maps render errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, render.ErrMissingSection):
		return http.StatusBadRequest
	case errors.Is(err, render.ErrSectionNotFound),
		errors.Is(err, render.ErrPresetNotFound),
		errors.Is(err, projects.ErrSectionNotFound),
		errors.Is(err, projects.ErrPresetNotFound):
		return http.StatusNotFound
	case errors.Is(err, sections.ErrInvalidSchema),
		errors.Is(err, projects.ErrInvalidPreset):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (a *RenderAPI) handleSection(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodPost) {
		return
	}
	var req renderRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.SectionSlug == "" {
		respondWithError(w, http.StatusBadRequest, "Missing required parameter: sectionSlug")
		return
	}

	res, err := a.renderer.RenderSection(r.Context(), render.Request{
		SectionSlug:    req.SectionSlug,
		PresetSlug:     req.PresetSlug,
		ProjectSlug:    req.ProjectSlug,
		CustomSettings: req.CustomSettings,
		Blocks:         req.Blocks,
		SkipCache:      req.SkipCache,
	})
	if err != nil {
		code := statusFor(err)
		if code >= http.StatusInternalServerError {
			zerr.Log(r.Context(), a.logger, err)
		}
		msg := err.Error()
		respondWithJSON(w, code, renderResponse{
			Success: false,
			Error:   msg,
			Errors:  []string{msg},
		})
		return
	}

	if res.Cached {
		w.Header().Set("Cache-Control", cacheControlHit)
	} else {
		w.Header().Set("Cache-Control", cacheControlFresh)
	}
	if res.Key != "" {
		w.Header().Set("ETag", `"`+res.Key+`"`)
	}
	respondWithJSON(w, http.StatusOK, renderResponse{
		Success:      true,
		HTML:         res.HTML,
		CSS:          res.CSS,
		Errors:       res.Errors,
		RenderTimeMs: res.RenderTimeMs,
		Cached:       res.Cached,
	})
}

var viewportWidths = map[string]string{
	"desktop": "100%",
	"tablet":  "768px",
	"mobile":  "375px",
}

var previewDocument = template.Must(template.New("preview").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <meta name="viewport" content="width=device-width, initial-scale=1.0">
  <title>Preview: {{ .Section }}</title>
  <style>
    * { box-sizing: border-box; }
    body { margin: 0; padding: 0; font-family: system-ui, -apple-system, sans-serif; }
    body.viewport-{{ .Viewport }} { max-width: {{ .Width }}; margin: 0 auto; }
    {{ .CSS }}
  </style>
</head>
<body class="viewport-{{ .Viewport }}">
  {{ .HTML }}
  {{- if .Errors }}
  <script>console.warn('Render errors:', {{ .Errors }})</script>
  {{- end }}
</body>
</html>
`))

var previewError = template.Must(template.New("error").Parse(
	`<html><body><p>{{ .Prefix }}{{ .Message }}</p></body></html>`))

type previewData struct {
	Section  string
	Viewport string
	Width    template.CSS
	CSS      template.CSS
	HTML     template.HTML
	Errors   []string
}

func (a *RenderAPI) writeHTML(w http.ResponseWriter, code int, tmpl *template.Template, data any) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		a.logger.Error("Failed to render preview document", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(code)
	_, _ = buf.WriteTo(w)
}

// handlePreview renders a section as a complete HTML document for iframes.
// Settings come from a JSON query parameter; invalid JSON is ignored.
func (a *RenderAPI) handlePreview(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodGet) {
		return
	}
	q := r.URL.Query()
	section := q.Get("section")
	if section == "" {
		a.writeHTML(w, http.StatusBadRequest, previewError, map[string]string{"Message": "Missing section parameter"})
		return
	}

	var settings sections.Settings
	if raw := q.Get("settings"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &settings); err != nil {
			a.logger.Debug("Ignoring invalid preview settings", "section", section, "error", err)
			settings = nil
		}
	}
	viewport := q.Get("viewport")
	width, ok := viewportWidths[viewport]
	if !ok {
		viewport, width = "desktop", viewportWidths["desktop"]
	}

	res, err := a.renderer.RenderSection(r.Context(), render.Request{
		SectionSlug:    section,
		PresetSlug:     q.Get("preset"),
		ProjectSlug:    q.Get("project"),
		CustomSettings: settings,
	})
	if err != nil {
		code := statusFor(err)
		if code >= http.StatusInternalServerError {
			zerr.Log(r.Context(), a.logger, err)
		}
		a.writeHTML(w, code, previewError, map[string]string{"Prefix": "Render error: ", "Message": err.Error()})
		return
	}

	w.Header().Set("X-Render-Time", strconv.FormatInt(res.RenderTimeMs, 10))
	w.Header().Set("X-Cached", strconv.FormatBool(res.Cached))
	w.Header().Set("Cache-Control", cacheControlFrame)
	a.writeHTML(w, http.StatusOK, previewDocument, previewData{
		Section:  section,
		Viewport: viewport,
		Width:    template.CSS(width),
		CSS:      template.CSS(res.CSS),
		HTML:     template.HTML(res.HTML),
		Errors:   res.Errors,
	})
}
