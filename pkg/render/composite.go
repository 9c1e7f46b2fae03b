package render

import (
	"context"

	"github.com/CTAG07/Trellis/pkg/sections"
)

// Library is a read-only catalogue of section schemas and presets.
type Library interface {
	Section(slug string) (*sections.Schema, bool)
	Preset(slug string) (*sections.Preset, bool)
}

// ProjectStore holds per-project custom schemas and custom presets.
type ProjectStore interface {
	CustomSchema(ctx context.Context, projectSlug, sectionSlug string) (*sections.Schema, error)
	Preset(ctx context.Context, slug string) (*sections.Preset, error)
}

// Composite answers schema and preset lookups from a library, with project
// data layered on top. Projects may be nil.
type Composite struct {
	Library  Library
	Projects ProjectStore
}

func (c Composite) SectionSchema(_ context.Context, sectionSlug string) (*sections.Schema, error) {
	if s, ok := c.Library.Section(sectionSlug); ok {
		return s, nil
	}
	return nil, nil
}

func (c Composite) CustomSchema(ctx context.Context, projectSlug, sectionSlug string) (*sections.Schema, error) {
	if c.Projects == nil {
		return nil, nil
	}
	return c.Projects.CustomSchema(ctx, projectSlug, sectionSlug)
}

// Preset prefers library presets over custom ones with the same slug.
func (c Composite) Preset(ctx context.Context, slug string) (*sections.Preset, error) {
	if p, ok := c.Library.Preset(slug); ok {
		return p, nil
	}
	if c.Projects == nil {
		return nil, nil
	}
	return c.Projects.Preset(ctx, slug)
}
