package main

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/CTAG07/Trellis/pkg/preview"
	"github.com/dustin/go-humanize"
)

// CacheAPI exposes preview cache maintenance.
type CacheAPI struct {
	cache  preview.Maintainer
	logger *slog.Logger
}

func NewCacheAPI(cache preview.Maintainer, logger *slog.Logger) *CacheAPI {
	return &CacheAPI{cache: cache, logger: logger}
}

func (a *CacheAPI) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/cache/stats", a.handleStats)
	mux.HandleFunc("/api/cache/sweep", a.handleSweep)
	mux.HandleFunc("/api/cache/purge", a.handlePurge)
}

type cacheStatsResponse struct {
	preview.Stats
	LiveSize string `json:"live_size"`
}

func (a *CacheAPI) handleStats(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodGet) {
		return
	}
	st, err := a.cache.Stats(r.Context())
	if err != nil {
		a.logger.Error("Failed to read cache stats", "error", err)
		respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to read cache stats: %v", err))
		return
	}
	respondWithJSON(w, http.StatusOK, cacheStatsResponse{Stats: st, LiveSize: humanize.Bytes(uint64(st.LiveBytes))})
}

func (a *CacheAPI) handleSweep(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodPost) {
		return
	}
	n, err := a.cache.Sweep(r.Context())
	if err != nil {
		a.logger.Error("API triggered sweep failed", "error", err)
		respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to sweep cache: %v", err))
		return
	}
	a.logger.Info("Preview cache swept via API", "removed", n)
	respondWithJSON(w, http.StatusOK, map[string]int64{"removed": n})
}

// handlePurge drops cached previews, all of them or one section's.
func (a *CacheAPI) handlePurge(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodPost) {
		return
	}
	section := r.URL.Query().Get("section")
	n, err := a.cache.Purge(r.Context(), section)
	if err != nil {
		a.logger.Error("API triggered purge failed", "error", err)
		respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to purge cache: %v", err))
		return
	}
	a.logger.Info("Preview cache purged via API", "section", section, "removed", n)
	respondWithJSON(w, http.StatusOK, map[string]int64{"removed": n})
}
