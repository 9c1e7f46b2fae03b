package preview

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"go.trai.ch/zerr"
)

const schemaPreviews = `
CREATE TABLE IF NOT EXISTS rendered_previews (
    cache_key      TEXT PRIMARY KEY,
    section_slug   TEXT NOT NULL,
    preset_slug    TEXT,
    html           TEXT NOT NULL,
    css            TEXT,
    errors         TEXT,
    render_time_ms INTEGER,
    created_at     INTEGER NOT NULL,
    expires_at     INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_rendered_previews_expires ON rendered_previews (expires_at);
CREATE INDEX IF NOT EXISTS idx_rendered_previews_section ON rendered_previews (section_slug);
`

// SetupSchema creates the rendered_previews table and its indexes. It is
// idempotent.
func SetupSchema(db *sql.DB) error {
	if _, err := db.Exec(schemaPreviews); err != nil {
		return fmt.Errorf("could not create preview schema: %w", err)
	}
	return nil
}

// SQLiteStore is a Store backed by the rendered_previews table. Timestamps are
// stored as unix milliseconds so the mattn and modernc drivers agree on them.
// Expiry is evaluated in the query, so expired rows are never returned even
// before Sweep removes them.
type SQLiteStore struct {
	db          *sql.DB
	now         Clock
	logger      *slog.Logger
	stmtGet     *sql.Stmt
	stmtPut     *sql.Stmt
	stmtSweep   *sql.Stmt
	stmtStats   *sql.Stmt
	stmtPurge   *sql.Stmt
	stmtPurgeAt *sql.Stmt
}

// NewSQLiteStore prepares all statements. SetupSchema must have been called.
// A nil clock uses time.Now.
func NewSQLiteStore(db *sql.DB, clock Clock) (*SQLiteStore, error) {
	if clock == nil {
		clock = time.Now
	}
	s := &SQLiteStore{
		db:     db,
		now:    clock,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	var err error
	prepare := func(query string) *sql.Stmt {
		if err != nil {
			return nil
		}
		var stmt *sql.Stmt
		stmt, err = db.Prepare(query)
		return stmt
	}

	s.stmtGet = prepare(`SELECT cache_key, section_slug, preset_slug, html, css, errors, render_time_ms, created_at, expires_at
FROM rendered_previews WHERE cache_key = ? AND expires_at > ?;`)
	s.stmtPut = prepare(`INSERT INTO rendered_previews
    (cache_key, section_slug, preset_slug, html, css, errors, render_time_ms, created_at, expires_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(cache_key) DO UPDATE SET
    section_slug = excluded.section_slug,
    preset_slug = excluded.preset_slug,
    html = excluded.html,
    css = excluded.css,
    errors = excluded.errors,
    render_time_ms = excluded.render_time_ms,
    created_at = excluded.created_at,
    expires_at = excluded.expires_at;`)
	s.stmtSweep = prepare(`DELETE FROM rendered_previews WHERE expires_at <= ?;`)
	s.stmtStats = prepare(`SELECT
    COALESCE(SUM(CASE WHEN expires_at > ? THEN 1 ELSE 0 END), 0),
    COALESCE(SUM(CASE WHEN expires_at <= ? THEN 1 ELSE 0 END), 0),
    COALESCE(SUM(CASE WHEN expires_at > ? THEN length(html) + COALESCE(length(css), 0) ELSE 0 END), 0)
FROM rendered_previews;`)
	s.stmtPurge = prepare(`DELETE FROM rendered_previews;`)
	s.stmtPurgeAt = prepare(`DELETE FROM rendered_previews WHERE section_slug = ?;`)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("could not prepare preview statements: %w", err)
	}
	return s, nil
}

// SetLogger sets the logger. By default, all logs are discarded.
func (s *SQLiteStore) SetLogger(logger *slog.Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// Close releases the prepared statements. It does not close the database.
func (s *SQLiteStore) Close() {
	for _, stmt := range []*sql.Stmt{s.stmtGet, s.stmtPut, s.stmtSweep, s.stmtStats, s.stmtPurge, s.stmtPurgeAt} {
		if stmt != nil {
			_ = stmt.Close()
		}
	}
}

func (s *SQLiteStore) Get(ctx context.Context, key string) (*Record, error) {
	var (
		rec                  Record
		preset, css, errList sql.NullString
		renderMs             sql.NullInt64
		created, expires     int64
	)
	err := s.stmtGet.QueryRowContext(ctx, key, s.now().UnixMilli()).Scan(
		&rec.Key, &rec.SectionSlug, &preset, &rec.HTML, &css, &errList, &renderMs, &created, &expires)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, zerr.With(zerr.Wrap(ErrStoreUnavailable, err.Error()), "op", "get")
	}
	rec.PresetSlug = preset.String
	rec.CSS = css.String
	rec.RenderTimeMs = renderMs.Int64
	rec.CreatedAt = time.UnixMilli(created)
	rec.ExpiresAt = time.UnixMilli(expires)
	if errList.Valid && errList.String != "" {
		if err = json.Unmarshal([]byte(errList.String), &rec.Errors); err != nil {
			s.logger.Warn("Discarding malformed preview diagnostics", "cache_key", key, "error", err)
			rec.Errors = nil
		}
	}
	return &rec, nil
}

func (s *SQLiteStore) Put(ctx context.Context, rec Record, ttl time.Duration) error {
	rec, err := stamp(rec, s.now(), ttl)
	if err != nil {
		return err
	}
	var errList sql.NullString
	if len(rec.Errors) > 0 {
		raw, mErr := json.Marshal(rec.Errors)
		if mErr != nil {
			return fmt.Errorf("failed to encode diagnostics: %w", mErr)
		}
		errList = sql.NullString{String: string(raw), Valid: true}
	}
	_, err = s.stmtPut.ExecContext(ctx,
		rec.Key,
		rec.SectionSlug,
		nullString(rec.PresetSlug),
		rec.HTML,
		nullString(rec.CSS),
		errList,
		rec.RenderTimeMs,
		rec.CreatedAt.UnixMilli(),
		rec.ExpiresAt.UnixMilli(),
	)
	if err != nil {
		return zerr.With(zerr.Wrap(ErrStoreUnavailable, err.Error()), "op", "put")
	}
	return nil
}

func (s *SQLiteStore) Sweep(ctx context.Context) (int64, error) {
	res, err := s.stmtSweep.ExecContext(ctx, s.now().UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to sweep previews: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		s.logger.Debug("Swept expired previews", "count", n)
	}
	return n, nil
}

func (s *SQLiteStore) Stats(ctx context.Context) (Stats, error) {
	now := s.now().UnixMilli()
	var st Stats
	if err := s.stmtStats.QueryRowContext(ctx, now, now, now).Scan(&st.Live, &st.Expired, &st.LiveBytes); err != nil {
		return Stats{}, fmt.Errorf("failed to read preview stats: %w", err)
	}
	return st, nil
}

func (s *SQLiteStore) Purge(ctx context.Context, sectionSlug string) (int64, error) {
	var (
		res sql.Result
		err error
	)
	if sectionSlug == "" {
		res, err = s.stmtPurge.ExecContext(ctx)
	} else {
		res, err = s.stmtPurgeAt.ExecContext(ctx, sectionSlug)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to purge previews: %w", err)
	}
	return res.RowsAffected()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
