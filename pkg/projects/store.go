package projects

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/CTAG07/Trellis/pkg/sections"
	"github.com/google/uuid"
	"go.trai.ch/zerr"
)

var (
	// ErrSectionNotFound is returned when a project has no row for a section.
	ErrSectionNotFound = zerr.New("section not found in project")
	// ErrPresetNotFound is returned when no custom preset has the slug.
	ErrPresetNotFound = zerr.New("custom preset not found")
	// ErrInvalidPreset is returned by SavePreset for presets without a name.
	ErrInvalidPreset = zerr.New("invalid custom preset")
)

const schemaProjects = `
CREATE TABLE IF NOT EXISTS project_sections (
    project_slug  TEXT NOT NULL,
    section_slug  TEXT NOT NULL,
    position      INTEGER NOT NULL DEFAULT 0,
    settings      TEXT,
    custom_schema TEXT,
    updated_at    INTEGER NOT NULL,
    PRIMARY KEY (project_slug, section_slug)
);
CREATE TABLE IF NOT EXISTS custom_presets (
    id           TEXT PRIMARY KEY,
    slug         TEXT NOT NULL UNIQUE,
    name         TEXT NOT NULL,
    project_slug TEXT,
    is_global    INTEGER NOT NULL DEFAULT 0,
    colors       TEXT,
    typography   TEXT,
    buttons      TEXT,
    settings     TEXT,
    created_at   INTEGER NOT NULL,
    updated_at   INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_custom_presets_project ON custom_presets (project_slug);
`

// SetupSchema creates the project tables. It is idempotent.
func SetupSchema(db *sql.DB) error {
	if _, err := db.Exec(schemaProjects); err != nil {
		return fmt.Errorf("could not create project schema: %w", err)
	}
	return nil
}

// Section is one section placed in a project.
type Section struct {
	ProjectSlug     string            `json:"project_slug"`
	SectionSlug     string            `json:"section_slug"`
	Position        int               `json:"position"`
	Settings        sections.Settings `json:"settings"`
	HasCustomSchema bool              `json:"has_custom_schema"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

// Store persists project sections and custom presets in SQLite.
type Store struct {
	db     *sql.DB
	now    func() time.Time
	logger *slog.Logger
}

// NewStore returns a store on db. SetupSchema must have been called. A nil
// clock uses time.Now.
func NewStore(db *sql.DB, clock func() time.Time) *Store {
	if clock == nil {
		clock = time.Now
	}
	return &Store{db: db, now: clock, logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

// SetLogger sets the logger. By default, all logs are discarded.
func (s *Store) SetLogger(logger *slog.Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// upsertSection inserts the row for (project, section) at the end of the
// project, or updates column on the existing row.
func (s *Store) upsertSection(ctx context.Context, column, projectSlug, sectionSlug string, value sql.NullString) error {
	query := fmt.Sprintf(`INSERT INTO project_sections (project_slug, section_slug, position, %[1]s, updated_at)
VALUES (?, ?, (SELECT COALESCE(MAX(position) + 1, 0) FROM project_sections WHERE project_slug = ?), ?, ?)
ON CONFLICT(project_slug, section_slug) DO UPDATE SET %[1]s = excluded.%[1]s, updated_at = excluded.updated_at;`, column)
	_, err := s.db.ExecContext(ctx, query, projectSlug, sectionSlug, projectSlug, value, s.now().UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to save %s: %w", column, err)
	}
	return nil
}

// SetCustomSchema stores a schema override for one section of a project. The
// schema must carry a name and both the settings and blocks arrays.
func (s *Store) SetCustomSchema(ctx context.Context, projectSlug, sectionSlug string, schema *sections.Schema) error {
	if err := sections.ValidateCustom(schema, sectionSlug); err != nil {
		return err
	}
	raw, err := json.Marshal(schema)
	if err != nil {
		return fmt.Errorf("failed to encode custom schema: %w", err)
	}
	if err = s.upsertSection(ctx, "custom_schema", projectSlug, sectionSlug, nullString(string(raw))); err != nil {
		return err
	}
	s.logger.Info("Saved custom schema", "project", projectSlug, "section", sectionSlug)
	return nil
}

// CustomSchema returns the override for (project, section), or nil, nil when
// there is none.
func (s *Store) CustomSchema(ctx context.Context, projectSlug, sectionSlug string) (*sections.Schema, error) {
	var raw sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT custom_schema FROM project_sections WHERE project_slug = ? AND section_slug = ?;`,
		projectSlug, sectionSlug).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && (!raw.Valid || raw.String == "")) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read custom schema: %w", err)
	}
	var schema sections.Schema
	if err = json.Unmarshal([]byte(raw.String), &schema); err != nil {
		s.logger.Warn("Ignoring malformed custom schema", "project", projectSlug, "section", sectionSlug, "error", err)
		return nil, nil
	}
	if schema.Slug == "" {
		schema.Slug = sectionSlug
	}
	return &schema, nil
}

// DeleteCustomSchema removes the override so the library schema applies
// again. The section itself and its settings are kept.
func (s *Store) DeleteCustomSchema(ctx context.Context, projectSlug, sectionSlug string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE project_sections SET custom_schema = NULL, updated_at = ? WHERE project_slug = ? AND section_slug = ?;`,
		s.now().UnixMilli(), projectSlug, sectionSlug)
	if err != nil {
		return fmt.Errorf("failed to delete custom schema: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return zerr.With(zerr.With(zerr.Wrap(ErrSectionNotFound, "no custom schema"), "project", projectSlug), "section", sectionSlug)
	}
	return nil
}

// RemoveSection takes a section out of a project together with its settings
// and custom schema.
func (s *Store) RemoveSection(ctx context.Context, projectSlug, sectionSlug string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM project_sections WHERE project_slug = ? AND section_slug = ?;`,
		projectSlug, sectionSlug)
	if err != nil {
		return fmt.Errorf("failed to remove section: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return zerr.With(zerr.With(zerr.Wrap(ErrSectionNotFound, "not in project"), "project", projectSlug), "section", sectionSlug)
	}
	s.logger.Info("Removed section from project", "project", projectSlug, "section", sectionSlug)
	return nil
}

// SaveSectionSettings replaces the saved settings of a project section.
func (s *Store) SaveSectionSettings(ctx context.Context, projectSlug, sectionSlug string, settings sections.Settings) error {
	if settings == nil {
		settings = sections.Settings{}
	}
	raw, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}
	return s.upsertSection(ctx, "settings", projectSlug, sectionSlug, nullString(string(raw)))
}

// SectionSettings returns the saved settings of a project section. A section
// that exists without settings yields an empty map.
func (s *Store) SectionSettings(ctx context.Context, projectSlug, sectionSlug string) (sections.Settings, error) {
	var raw sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT settings FROM project_sections WHERE project_slug = ? AND section_slug = ?;`,
		projectSlug, sectionSlug).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, zerr.With(zerr.With(zerr.Wrap(ErrSectionNotFound, "no settings"), "project", projectSlug), "section", sectionSlug)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read settings: %w", err)
	}
	return decodeSettings(raw)
}

// ListSections returns the sections of a project in placement order.
func (s *Store) ListSections(ctx context.Context, projectSlug string) ([]Section, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT section_slug, position, settings, custom_schema IS NOT NULL, updated_at
FROM project_sections WHERE project_slug = ? ORDER BY position, section_slug;`, projectSlug)
	if err != nil {
		return nil, fmt.Errorf("failed to list project sections: %w", err)
	}
	defer rows.Close()

	out := []Section{}
	for rows.Next() {
		var (
			sec     = Section{ProjectSlug: projectSlug}
			raw     sql.NullString
			updated int64
		)
		if err = rows.Scan(&sec.SectionSlug, &sec.Position, &raw, &sec.HasCustomSchema, &updated); err != nil {
			return nil, fmt.Errorf("failed to scan project section: %w", err)
		}
		if sec.Settings, err = decodeSettings(raw); err != nil {
			return nil, err
		}
		sec.UpdatedAt = time.UnixMilli(updated)
		out = append(out, sec)
	}
	return out, rows.Err()
}

// SavePreset creates or updates a custom preset, matched by slug. The slug is
// derived from the name when empty. The stored preset is returned.
func (s *Store) SavePreset(ctx context.Context, p CustomPreset) (CustomPreset, error) {
	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" {
		return CustomPreset{}, zerr.Wrap(ErrInvalidPreset, "name is required")
	}
	if p.Slug == "" {
		p.Slug = sections.Slugify(p.Name)
	}
	if p.Slug == "" {
		return CustomPreset{}, zerr.With(zerr.Wrap(ErrInvalidPreset, "name does not produce a slug"), "name", p.Name)
	}

	existing, err := s.CustomPreset(ctx, p.Slug)
	switch {
	case err == nil:
		p.ID = existing.ID
		p.CreatedAt = existing.CreatedAt
	case errors.Is(err, ErrPresetNotFound):
		p.ID = uuid.NewString()
		p.CreatedAt = time.UnixMilli(s.now().UnixMilli())
	default:
		return CustomPreset{}, err
	}
	p.UpdatedAt = time.UnixMilli(s.now().UnixMilli())

	groups := make([]sql.NullString, 0, 4)
	for _, g := range []any{p.Colors, p.Typography, p.Buttons, p.Settings} {
		raw, mErr := json.Marshal(g)
		if mErr != nil {
			return CustomPreset{}, fmt.Errorf("failed to encode preset: %w", mErr)
		}
		groups = append(groups, nullString(string(raw)))
	}

	_, err = s.db.ExecContext(ctx, `INSERT INTO custom_presets
    (id, slug, name, project_slug, is_global, colors, typography, buttons, settings, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    name = excluded.name,
    project_slug = excluded.project_slug,
    is_global = excluded.is_global,
    colors = excluded.colors,
    typography = excluded.typography,
    buttons = excluded.buttons,
    settings = excluded.settings,
    updated_at = excluded.updated_at;`,
		p.ID, p.Slug, p.Name, nullString(p.ProjectSlug), p.IsGlobal,
		groups[0], groups[1], groups[2], groups[3],
		p.CreatedAt.UnixMilli(), p.UpdatedAt.UnixMilli())
	if err != nil {
		return CustomPreset{}, fmt.Errorf("failed to save preset: %w", err)
	}
	s.logger.Info("Saved custom preset", "slug", p.Slug, "id", p.ID)
	return p, nil
}

const presetColumns = `id, slug, name, project_slug, is_global, colors, typography, buttons, settings, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanPreset(row scanner) (CustomPreset, error) {
	var (
		p                          CustomPreset
		project                    sql.NullString
		colors, typo, btn, setting sql.NullString
		created, updated           int64
	)
	if err := row.Scan(&p.ID, &p.Slug, &p.Name, &project, &p.IsGlobal,
		&colors, &typo, &btn, &setting, &created, &updated); err != nil {
		return p, err
	}
	p.ProjectSlug = project.String
	p.CreatedAt = time.UnixMilli(created)
	p.UpdatedAt = time.UnixMilli(updated)
	for _, g := range []struct {
		raw sql.NullString
		dst any
	}{{colors, &p.Colors}, {typo, &p.Typography}, {btn, &p.Buttons}, {setting, &p.Settings}} {
		if !g.raw.Valid || g.raw.String == "" || g.raw.String == "null" {
			continue
		}
		if err := json.Unmarshal([]byte(g.raw.String), g.dst); err != nil {
			return p, fmt.Errorf("failed to decode preset %q: %w", p.Slug, err)
		}
	}
	return p, nil
}

// CustomPreset returns the stored preset with slug.
func (s *Store) CustomPreset(ctx context.Context, slug string) (*CustomPreset, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+presetColumns+` FROM custom_presets WHERE slug = ?;`, slug)
	p, err := scanPreset(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, zerr.With(zerr.Wrap(ErrPresetNotFound, "no preset"), "preset", slug)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read preset: %w", err)
	}
	return &p, nil
}

// Preset returns the custom preset flattened for resolution, or nil, nil
// when there is none.
func (s *Store) Preset(ctx context.Context, slug string) (*sections.Preset, error) {
	p, err := s.CustomPreset(ctx, slug)
	if errors.Is(err, ErrPresetNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return p.Preset(), nil
}

// ListPresets lists presets ordered by name. With a project slug only global
// presets and that project's own presets are returned.
func (s *Store) ListPresets(ctx context.Context, projectSlug string) ([]CustomPreset, error) {
	query := `SELECT ` + presetColumns + ` FROM custom_presets`
	var args []any
	if projectSlug != "" {
		query += ` WHERE is_global = 1 OR project_slug = ?`
		args = append(args, projectSlug)
	}
	rows, err := s.db.QueryContext(ctx, query+` ORDER BY name, slug;`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list presets: %w", err)
	}
	defer rows.Close()

	out := []CustomPreset{}
	for rows.Next() {
		p, err := scanPreset(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// DeletePreset removes a custom preset.
func (s *Store) DeletePreset(ctx context.Context, slug string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM custom_presets WHERE slug = ?;`, slug)
	if err != nil {
		return fmt.Errorf("failed to delete preset: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return zerr.With(zerr.Wrap(ErrPresetNotFound, "no preset"), "preset", slug)
	}
	return nil
}

func decodeSettings(raw sql.NullString) (sections.Settings, error) {
	out := sections.Settings{}
	if !raw.Valid || raw.String == "" {
		return out, nil
	}
	if err := json.Unmarshal([]byte(raw.String), &out); err != nil {
		return nil, fmt.Errorf("failed to decode settings: %w", err)
	}
	return out, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
