package sections

import (
	"regexp"
	"strings"

	"go.trai.ch/zerr"
)

// DefaultMaxBlocks applies when a schema does not declare max_blocks.
const DefaultMaxBlocks = 50

const (
	EngineGoTemplate = "gotemplate"
	EngineDjango     = "django"
)

// Categories accepted by the library.
var Categories = []string{"hero", "collection", "product", "content", "media", "footer", "header", "custom"}

// SettingDecl declares one configurable setting.
type SettingDecl struct {
	ID      string         `json:"id" yaml:"id"`
	Type    string         `json:"type" yaml:"type"`
	Label   string         `json:"label" yaml:"label"`
	Default *Value         `json:"default,omitempty" yaml:"default,omitempty"`
	Info    string         `json:"info,omitempty" yaml:"info,omitempty"`
	Options []SelectOption `json:"options,omitempty" yaml:"options,omitempty"`
}

// SelectOption is one choice of a select or radio setting.
type SelectOption struct {
	Value string `json:"value" yaml:"value"`
	Label string `json:"label" yaml:"label"`
}

// BlockDecl declares a repeatable block type within a section.
type BlockDecl struct {
	Type     string        `json:"type" yaml:"type"`
	Name     string        `json:"name" yaml:"name"`
	Limit    int           `json:"limit,omitempty" yaml:"limit,omitempty"`
	Settings []SettingDecl `json:"settings" yaml:"settings"`
}

// BlockInput is a block instance as stored in presets or sent by callers.
type BlockInput struct {
	Type     string   `json:"type" yaml:"type"`
	Settings Settings `json:"settings,omitempty" yaml:"settings,omitempty"`
}

// PresetDecl is a named settings bundle declared inside a section schema.
type PresetDecl struct {
	Name     string       `json:"name" yaml:"name"`
	Settings Settings     `json:"settings,omitempty" yaml:"settings,omitempty"`
	Blocks   []BlockInput `json:"blocks,omitempty" yaml:"blocks,omitempty"`
}

// Schema describes a section: its settings, block types, presets and the
// template used to render it.
type Schema struct {
	Name        string        `json:"name" yaml:"name"`
	Slug        string        `json:"slug" yaml:"slug"`
	Description string        `json:"description,omitempty" yaml:"description,omitempty"`
	Category    string        `json:"category,omitempty" yaml:"category,omitempty"`
	Settings    []SettingDecl `json:"settings" yaml:"settings"`
	Blocks      []BlockDecl   `json:"blocks" yaml:"blocks"`
	MaxBlocks   int           `json:"max_blocks,omitempty" yaml:"max_blocks,omitempty"`
	Presets     []PresetDecl  `json:"presets,omitempty" yaml:"presets,omitempty"`
	Engine      string        `json:"engine,omitempty" yaml:"engine,omitempty"`
	Template    string        `json:"template,omitempty" yaml:"template,omitempty"`
	Stylesheet  string        `json:"stylesheet,omitempty" yaml:"stylesheet,omitempty"`
}

// Preset is a resolved bundle of values applied on top of schema defaults. It
// covers schema-declared presets as well as library and custom presets.
type Preset struct {
	Slug     string       `json:"slug" yaml:"slug"`
	Name     string       `json:"name" yaml:"name"`
	Settings Settings     `json:"settings" yaml:"settings"`
	Blocks   []BlockInput `json:"blocks,omitempty" yaml:"blocks,omitempty"`
}

var slugInvalid = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify lowercases s and collapses anything outside [a-z0-9] into dashes.
func Slugify(s string) string {
	return strings.Trim(slugInvalid.ReplaceAllString(strings.ToLower(s), "-"), "-")
}

// Setting returns the declaration for id.
func (s *Schema) Setting(id string) (SettingDecl, bool) {
	for _, d := range s.Settings {
		if d.ID == id {
			return d, true
		}
	}
	return SettingDecl{}, false
}

// Block returns the declaration for a block type.
func (s *Schema) Block(blockType string) (BlockDecl, bool) {
	for _, b := range s.Blocks {
		if b.Type == blockType {
			return b, true
		}
	}
	return BlockDecl{}, false
}

// BlockLimit returns the effective maximum block count.
func (s *Schema) BlockLimit() int {
	if s.MaxBlocks <= 0 {
		return DefaultMaxBlocks
	}
	return s.MaxBlocks
}

// EngineName returns the template engine, defaulting to gotemplate.
func (s *Schema) EngineName() string {
	if s.Engine == "" {
		return EngineGoTemplate
	}
	return s.Engine
}

// Preset finds a schema-declared preset by slug or name.
func (s *Schema) Preset(slug string) (*Preset, bool) {
	for _, p := range s.Presets {
		if Slugify(p.Name) == slug || p.Name == slug {
			return &Preset{
				Slug:     Slugify(p.Name),
				Name:     p.Name,
				Settings: p.Settings,
				Blocks:   p.Blocks,
			}, true
		}
	}
	return nil, false
}

// Validate checks structural consistency of the schema.
func (s *Schema) Validate() error {
	if strings.TrimSpace(s.Slug) == "" {
		return zerr.Wrap(ErrInvalidSchema, "slug is required")
	}
	if strings.TrimSpace(s.Name) == "" {
		return zerr.With(zerr.Wrap(ErrInvalidSchema, "name is required"), "section", s.Slug)
	}
	if s.Category != "" && !contains(Categories, s.Category) {
		return zerr.With(zerr.Wrap(ErrInvalidSchema, "unknown category"), "category", s.Category)
	}
	if err := validateDecls(s.Slug, s.Settings); err != nil {
		return err
	}
	seen := make(map[string]struct{}, len(s.Blocks))
	for _, b := range s.Blocks {
		if b.Type == "" {
			return zerr.With(zerr.Wrap(ErrInvalidSchema, "block type is required"), "section", s.Slug)
		}
		if _, dup := seen[b.Type]; dup {
			return zerr.With(zerr.Wrap(ErrInvalidSchema, "duplicate block type"), "block", b.Type)
		}
		seen[b.Type] = struct{}{}
		if b.Limit < 0 {
			return zerr.With(zerr.Wrap(ErrInvalidSchema, "negative block limit"), "block", b.Type)
		}
		if err := validateDecls(s.Slug+"/"+b.Type, b.Settings); err != nil {
			return err
		}
	}
	if s.MaxBlocks < 0 {
		return zerr.With(zerr.Wrap(ErrInvalidSchema, "negative max_blocks"), "section", s.Slug)
	}
	switch s.EngineName() {
	case EngineGoTemplate, EngineDjango:
	default:
		return zerr.With(zerr.Wrap(ErrInvalidSchema, "unknown template engine"), "engine", s.Engine)
	}
	return nil
}

func validateDecls(owner string, decls []SettingDecl) error {
	seen := make(map[string]struct{}, len(decls))
	for _, d := range decls {
		if d.ID == "" {
			return zerr.With(zerr.Wrap(ErrInvalidSchema, "setting id is required"), "owner", owner)
		}
		if _, dup := seen[d.ID]; dup {
			return zerr.With(zerr.With(zerr.Wrap(ErrInvalidSchema, "duplicate setting id"), "owner", owner), "setting", d.ID)
		}
		seen[d.ID] = struct{}{}
	}
	return nil
}

// ValidateCustom checks a project's custom schema override. It must carry a
// name and both the settings and blocks arrays; the slug is taken from the
// section it overrides.
func ValidateCustom(s *Schema, sectionSlug string) error {
	if s == nil {
		return zerr.Wrap(ErrInvalidSchema, "custom schema is empty")
	}
	if strings.TrimSpace(s.Name) == "" {
		return zerr.Wrap(ErrInvalidSchema, "Invalid schema format: name is required")
	}
	if s.Settings == nil || s.Blocks == nil {
		return zerr.Wrap(ErrInvalidSchema, "Invalid schema format: settings and blocks arrays are required")
	}
	if s.Slug == "" {
		s.Slug = sectionSlug
	}
	return s.Validate()
}

func contains(list []string, s string) bool {
	for _, e := range list {
		if e == s {
			return true
		}
	}
	return false
}
