package render

import (
	"context"

	"github.com/CTAG07/Trellis/pkg/sections"
	"github.com/CTAG07/Trellis/pkg/templating"
)

//go:generate go run go.uber.org/mock/mockgen -source=ports.go -destination=mocks/mock_ports.go -package=mocks

// SchemaSource looks up section schemas.
type SchemaSource interface {
	// SectionSchema returns the library schema for a section.
	// Returns nil, nil if not found.
	SectionSchema(ctx context.Context, sectionSlug string) (*sections.Schema, error)

	// CustomSchema returns a project's override of a section schema.
	// Returns nil, nil if the project has none.
	CustomSchema(ctx context.Context, projectSlug, sectionSlug string) (*sections.Schema, error)
}

// PresetSource looks up presets that are not declared inside a schema.
type PresetSource interface {
	// Preset returns nil, nil if not found.
	Preset(ctx context.Context, presetSlug string) (*sections.Preset, error)
}

// Renderer executes a section template.
type Renderer interface {
	Render(ctx context.Context, src templating.Source, settings sections.Settings, blocks []sections.Block) (templating.Output, error)
	// Version identifies the rendering behaviour; it is part of cache keys.
	Version() string
}

// MetricsSink receives one event per render call.
type MetricsSink interface {
	RecordRender(ctx context.Context, event RenderEvent) error
}
