package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/CTAG07/Trellis/pkg/render"
	"github.com/cespare/xxhash/v2"
)

const statsSchema = `
CREATE TABLE IF NOT EXISTS render_stats (
    section_slug    TEXT PRIMARY KEY,
    renders         INTEGER NOT NULL DEFAULT 0,
    cache_hits      INTEGER NOT NULL DEFAULT 0,
    failures        INTEGER NOT NULL DEFAULT 0,
    diagnostics     INTEGER NOT NULL DEFAULT 0,
    total_render_ms INTEGER NOT NULL DEFAULT 0,
    first_seen      INTEGER NOT NULL,
    last_seen       INTEGER NOT NULL
);
`

func setupStatsSchema(db *sql.DB) error {
	_, err := db.Exec(statsSchema)
	return err
}

// SectionStats is the accumulated render statistics of one section.
type SectionStats struct {
	SectionSlug   string    `json:"section_slug"`
	Renders       int64     `json:"renders"`
	CacheHits     int64     `json:"cache_hits"`
	Failures      int64     `json:"failures"`
	Diagnostics   int64     `json:"diagnostics"`
	AvgRenderMs   float64   `json:"avg_render_ms"`
	FirstSeen     time.Time `json:"first_seen"`
	LastSeen      time.Time `json:"last_seen"`
	totalRenderMs int64
}

// GlobalStatsSummary provides a high-level overview of all collected stats.
type GlobalStatsSummary struct {
	TotalRenders int64   `json:"total_renders"`
	CacheHits    int64   `json:"cache_hits"`
	HitRatio     float64 `json:"hit_ratio"`
	Failures     int64   `json:"failures"`
	Diagnostics  int64   `json:"diagnostics"`
	AvgRenderMs  float64 `json:"avg_render_ms"`
	Sections     int64   `json:"sections"`
}

// StatsSink persists render events into render_stats. It implements
// render.MetricsSink.
type StatsSink struct {
	db  *sql.DB
	now func() time.Time
}

func NewStatsSink(db *sql.DB) *StatsSink {
	return &StatsSink{db: db, now: time.Now}
}

// RecordRender upserts the section's counters. Fresh renders add their render
// time; cache hits are counted but do not skew the average.
func (s *StatsSink) RecordRender(ctx context.Context, ev render.RenderEvent) error {
	if ev.SectionSlug == "" {
		return nil
	}
	var hit, failed, renderMs int64
	switch {
	case ev.Err != nil:
		failed = 1
	case ev.Cached:
		hit = 1
	default:
		renderMs = ev.RenderTimeMs
	}
	now := s.now().UnixMilli()
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO render_stats (section_slug, renders, cache_hits, failures, diagnostics, total_render_ms, first_seen, last_seen)
        VALUES (?, 1, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(section_slug) DO UPDATE SET
            renders = renders + 1,
            cache_hits = cache_hits + excluded.cache_hits,
            failures = failures + excluded.failures,
            diagnostics = diagnostics + excluded.diagnostics,
            total_render_ms = total_render_ms + excluded.total_render_ms,
            last_seen = excluded.last_seen
    `, ev.SectionSlug, hit, failed, ev.Diagnostics, renderMs, now, now)
	if err != nil {
		return fmt.Errorf("failed to upsert render_stats: %w", err)
	}
	return nil
}

// Summary aggregates all sections.
func (s *StatsSink) Summary(ctx context.Context) (GlobalStatsSummary, error) {
	var (
		sum     GlobalStatsSummary
		totalMs int64
	)
	err := s.db.QueryRowContext(ctx, `SELECT
    COALESCE(SUM(renders), 0), COALESCE(SUM(cache_hits), 0), COALESCE(SUM(failures), 0),
    COALESCE(SUM(diagnostics), 0), COALESCE(SUM(total_render_ms), 0), COUNT(*)
FROM render_stats`).Scan(&sum.TotalRenders, &sum.CacheHits, &sum.Failures, &sum.Diagnostics, &totalMs, &sum.Sections)
	if err != nil {
		return sum, fmt.Errorf("failed to read render stats: %w", err)
	}
	if sum.TotalRenders > 0 {
		sum.HitRatio = float64(sum.CacheHits) / float64(sum.TotalRenders)
	}
	if fresh := sum.TotalRenders - sum.CacheHits - sum.Failures; fresh > 0 {
		sum.AvgRenderMs = float64(totalMs) / float64(fresh)
	}
	return sum, nil
}

// Sections lists the most rendered sections.
func (s *StatsSink) Sections(ctx context.Context, limit int) ([]SectionStats, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT section_slug, renders, cache_hits, failures, diagnostics, total_render_ms, first_seen, last_seen
FROM render_stats ORDER BY renders DESC, section_slug LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query render stats: %w", err)
	}
	defer func(rows *sql.Rows) {
		_ = rows.Close()
	}(rows)

	results := []SectionStats{}
	for rows.Next() {
		var (
			st          SectionStats
			first, last int64
		)
		if err = rows.Scan(&st.SectionSlug, &st.Renders, &st.CacheHits, &st.Failures, &st.Diagnostics, &st.totalRenderMs, &first, &last); err != nil {
			return nil, fmt.Errorf("failed to scan render stats: %w", err)
		}
		if fresh := st.Renders - st.CacheHits - st.Failures; fresh > 0 {
			st.AvgRenderMs = float64(st.totalRenderMs) / float64(fresh)
		}
		st.FirstSeen = time.UnixMilli(first)
		st.LastSeen = time.UnixMilli(last)
		results = append(results, st)
	}
	return results, rows.Err()
}

// Reset clears all statistics.
func (s *StatsSink) Reset(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM render_stats`)
	return err
}

// StatsAPI holds the dependencies for the statistics handlers.
type StatsAPI struct {
	stats     *StatsSink
	telemetry *Telemetry
	logger    *slog.Logger
}

func NewStatsAPI(stats *StatsSink, telemetry *Telemetry, logger *slog.Logger) *StatsAPI {
	return &StatsAPI{stats: stats, telemetry: telemetry, logger: logger}
}

func (s *StatsAPI) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/stats/summary", s.handleSummary)
	mux.HandleFunc("/api/stats/sections", s.handleSections)
	mux.HandleFunc("/api/stats/metrics", s.handleMetrics)
	mux.HandleFunc("/api/stats/reset", s.handleReset)
}

// respondWithETag answers 304 when the client already has this payload.
func respondWithETag(w http.ResponseWriter, r *http.Request, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to encode response")
		return
	}
	etag := `"` + strconv.FormatUint(xxhash.Sum64(data), 16) + `"`
	w.Header().Set("ETag", etag)
	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(append(data, '\n'))
}

func (s *StatsAPI) handleSummary(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodGet) {
		return
	}
	summary, err := s.stats.Summary(r.Context())
	if err != nil {
		s.logger.Error("Failed to read stats summary", "error", err)
		respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Database error: %v", err))
		return
	}
	respondWithETag(w, r, summary)
}

func (s *StatsAPI) handleSections(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodGet) {
		return
	}
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 || limit > 1000 {
		limit = 100
	}
	results, err := s.stats.Sections(r.Context(), limit)
	if err != nil {
		s.logger.Error("Failed to query section stats", "error", err)
		respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Database error: %v", err))
		return
	}
	respondWithETag(w, r, results)
}

func (s *StatsAPI) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodGet) {
		return
	}
	if s.telemetry == nil {
		respondWithError(w, http.StatusServiceUnavailable, "Telemetry is disabled")
		return
	}
	points, err := s.telemetry.Snapshot(r.Context())
	if err != nil {
		s.logger.Error("Failed to collect metrics", "error", err)
		respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to collect metrics: %v", err))
		return
	}
	respondWithJSON(w, http.StatusOK, points)
}

func (s *StatsAPI) handleReset(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodPost) {
		return
	}
	if err := s.stats.Reset(r.Context()); err != nil {
		s.logger.Error("Failed to reset stats", "error", err)
		respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Database error: %v", err))
		return
	}
	s.logger.Info("Render statistics reset via API")
	w.WriteHeader(http.StatusNoContent)
}
