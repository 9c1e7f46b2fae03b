// Package library loads the content library: section schemas, presets and
// snippets, from a directory tree or any fs.FS.
//
//	sections/hero-banner.yaml      schema (json, yaml or yml)
//	sections/hero-banner.tmpl.html template, when the schema has none inline
//	sections/hero-banner.dj.html   pongo2 template, selects the django engine
//	sections/hero-banner.css       stylesheet
//	presets/dark.yaml              shared preset
//	snippets/button.part.html      partials and includes
package library

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/CTAG07/Trellis/pkg/sections"
	"go.trai.ch/zerr"
	"gopkg.in/yaml.v3"
)

const (
	SectionsDir = "sections"
	PresetsDir  = "presets"
	SnippetsDir = "snippets"
)

// ErrInvalidFile is returned for library files that cannot be decoded.
var ErrInvalidFile = zerr.New("invalid library file")

// Summary is the listing form of a section.
type Summary struct {
	Slug        string   `json:"slug"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Category    string   `json:"category"`
	Engine      string   `json:"engine"`
	Settings    int      `json:"settings"`
	BlockTypes  []string `json:"block_types"`
	Presets     []string `json:"presets"`
}

// Library is an in-memory snapshot of the content library.
// All methods are concurrent-safe.
type Library struct {
	fsys     fs.FS
	logger   *slog.Logger
	sections map[string]*sections.Schema
	presets  map[string]*sections.Preset
	snippets []string
	mu       sync.RWMutex
}

// New loads the library from fsys. Files that fail to decode or validate are
// logged and skipped; only filesystem errors fail the load.
func New(fsys fs.FS, logger *slog.Logger) (*Library, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	l := &Library{fsys: fsys, logger: logger}
	if err := l.Refresh(); err != nil {
		return nil, err
	}
	return l, nil
}

// Refresh reloads everything from the filesystem and swaps it in at once.
func (l *Library) Refresh() error {
	schemas, err := l.loadSections()
	if err != nil {
		return err
	}
	presets, err := l.loadPresets()
	if err != nil {
		return err
	}
	snippets, err := l.listSnippets()
	if err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.sections = schemas
	l.presets = presets
	l.snippets = snippets
	l.logger.Info("Loaded content library", "sections", len(schemas), "presets", len(presets), "snippets", len(snippets))
	return nil
}

// Section returns the schema for slug.
func (l *Library) Section(slug string) (*sections.Schema, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	s, ok := l.sections[slug]
	return s, ok
}

// Preset returns a library preset by slug.
func (l *Library) Preset(slug string) (*sections.Preset, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	p, ok := l.presets[slug]
	return p, ok
}

// Sections lists all sections ordered by slug.
func (l *Library) Sections() []Summary {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Summary, 0, len(l.sections))
	for _, s := range l.sections {
		sum := Summary{
			Slug:        s.Slug,
			Name:        s.Name,
			Description: s.Description,
			Category:    s.Category,
			Engine:      s.EngineName(),
			Settings:    len(s.Settings),
			BlockTypes:  []string{},
			Presets:     []string{},
		}
		for _, b := range s.Blocks {
			sum.BlockTypes = append(sum.BlockTypes, b.Type)
		}
		for _, p := range s.Presets {
			sum.Presets = append(sum.Presets, sections.Slugify(p.Name))
		}
		out = append(out, sum)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slug < out[j].Slug })
	return out
}

// Presets lists the shared presets ordered by slug.
func (l *Library) Presets() []*sections.Preset {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]*sections.Preset, 0, len(l.presets))
	for _, p := range l.presets {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slug < out[j].Slug })
	return out
}

// Snippets lists the files in the snippets directory.
func (l *Library) Snippets() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]string(nil), l.snippets...)
}

func isDataFile(name string) bool {
	switch path.Ext(name) {
	case ".json", ".yaml", ".yml":
		return true
	}
	return false
}

// decode reads a json or yaml file into v.
func (l *Library) decode(name string, v any) error {
	data, err := fs.ReadFile(l.fsys, name)
	if err != nil {
		return err
	}
	if path.Ext(name) == ".json" {
		err = json.Unmarshal(data, v)
	} else {
		err = yaml.Unmarshal(data, v)
	}
	if err != nil {
		return zerr.With(zerr.Wrap(ErrInvalidFile, err.Error()), "file", name)
	}
	return nil
}

// readOptional returns the contents of name, or "" when it does not exist.
func (l *Library) readOptional(name string) (string, error) {
	data, err := fs.ReadFile(l.fsys, name)
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	return string(data), err
}

func (l *Library) walk(dir string, fn func(name string) error) error {
	err := fs.WalkDir(l.fsys, dir, func(name string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		return fn(name)
	})
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

func (l *Library) loadSections() (map[string]*sections.Schema, error) {
	out := map[string]*sections.Schema{}
	err := l.walk(SectionsDir, func(name string) error {
		if !isDataFile(name) {
			return nil
		}
		var schema sections.Schema
		if err := l.decode(name, &schema); err != nil {
			zerr.Log(context.Background(), l.logger, err)
			return nil
		}
		base := strings.TrimSuffix(name, path.Ext(name))
		if schema.Slug == "" {
			schema.Slug = path.Base(base)
		}
		if schema.Category == "" {
			schema.Category = "custom"
		}
		if err := l.attachSources(base, &schema); err != nil {
			return err
		}
		if err := schema.Validate(); err != nil {
			l.logger.Warn("Skipping invalid section schema", "file", name, "error", err)
			return nil
		}
		if _, dup := out[schema.Slug]; dup {
			l.logger.Warn("Duplicate section slug, keeping the first", "file", name, "slug", schema.Slug)
			return nil
		}
		out[schema.Slug] = &schema
		return nil
	})
	return out, err
}

// attachSources fills in the template and stylesheet from sibling files when
// the schema does not carry them inline.
func (l *Library) attachSources(base string, schema *sections.Schema) error {
	if schema.Template == "" {
		tmpl, err := l.readOptional(base + ".tmpl.html")
		if err != nil {
			return err
		}
		if tmpl == "" {
			tmpl, err = l.readOptional(base + ".dj.html")
			if err != nil {
				return err
			}
			if tmpl != "" && schema.Engine == "" {
				schema.Engine = sections.EngineDjango
			}
		}
		schema.Template = tmpl
	}
	if schema.Stylesheet == "" {
		css, err := l.readOptional(base + ".css")
		if err != nil {
			return err
		}
		schema.Stylesheet = css
	}
	return nil
}

// presetFile is the on-disk form of a shared preset.
type presetFile struct {
	Name     string                `json:"name" yaml:"name"`
	Slug     string                `json:"slug" yaml:"slug"`
	Settings sections.Settings     `json:"settings" yaml:"settings"`
	Blocks   []sections.BlockInput `json:"blocks" yaml:"blocks"`
}

func (l *Library) loadPresets() (map[string]*sections.Preset, error) {
	out := map[string]*sections.Preset{}
	err := l.walk(PresetsDir, func(name string) error {
		if !isDataFile(name) {
			return nil
		}
		var pf presetFile
		if err := l.decode(name, &pf); err != nil {
			zerr.Log(context.Background(), l.logger, err)
			return nil
		}
		slug := pf.Slug
		if slug == "" {
			slug = sections.Slugify(pf.Name)
		}
		if slug == "" {
			slug = path.Base(strings.TrimSuffix(name, path.Ext(name)))
		}
		out[slug] = &sections.Preset{Slug: slug, Name: pf.Name, Settings: pf.Settings, Blocks: pf.Blocks}
		return nil
	})
	return out, err
}

func (l *Library) listSnippets() ([]string, error) {
	var out []string
	err := l.walk(SnippetsDir, func(name string) error {
		out = append(out, strings.TrimPrefix(name, SnippetsDir+"/"))
		return nil
	})
	sort.Strings(out)
	return out, err
}
