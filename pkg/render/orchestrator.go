package render

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"github.com/CTAG07/Trellis/pkg/preview"
	"github.com/CTAG07/Trellis/pkg/sections"
	"github.com/CTAG07/Trellis/pkg/templating"
	"github.com/cespare/xxhash/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.trai.ch/zerr"
)

//go:generate go run go.uber.org/mock/mockgen -destination=mocks/mock_store.go -package=mocks github.com/CTAG07/Trellis/pkg/preview Store

// TracerName is the instrumentation scope of render spans.
const TracerName = "github.com/CTAG07/Trellis/pkg/render"

// Request asks for one section render.
type Request struct {
	SectionSlug    string
	PresetSlug     string
	ProjectSlug    string
	CustomSettings sections.Settings
	// Blocks replaces the preset's blocks when non-nil.
	Blocks    []sections.BlockInput
	SkipCache bool
}

// Result is a rendered section. Errors holds resolution warnings followed by
// template diagnostics; it is never nil.
type Result struct {
	HTML         string
	CSS          string
	Errors       []string
	RenderTimeMs int64
	Cached       bool
	// Key is the preview cache key, empty when the cache was bypassed.
	Key string
}

// RenderEvent describes one RenderSection call for metrics sinks.
type RenderEvent struct {
	SectionSlug  string
	PresetSlug   string
	ProjectSlug  string
	DurationMs   int64
	RenderTimeMs int64
	Cached       bool
	Diagnostics  int
	Err          error
}

// Orchestrator resolves, renders and caches sections. It holds no mutable
// state of its own; the store is the only shared state between calls.
type Orchestrator struct {
	schemas  SchemaSource
	presets  PresetSource
	store    preview.Store
	renderer Renderer
	sink     MetricsSink
	ttl      preview.TTLPolicy
	clock    preview.Clock
	logger   *slog.Logger
	tracer   trace.Tracer
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithMetricsSink sets the sink that receives a RenderEvent per call.
func WithMetricsSink(sink MetricsSink) Option {
	return func(o *Orchestrator) { o.sink = sink }
}

// WithTTLPolicy overrides preview.DefaultTTLPolicy.
func WithTTLPolicy(p preview.TTLPolicy) Option {
	return func(o *Orchestrator) { o.ttl = p }
}

// WithClock sets the clock used to measure render time.
func WithClock(clock preview.Clock) Option {
	return func(o *Orchestrator) { o.clock = clock }
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = logger }
}

// WithTracer sets the tracer. The default comes from the global provider.
func WithTracer(tracer trace.Tracer) Option {
	return func(o *Orchestrator) { o.tracer = tracer }
}

// New creates an Orchestrator. presets may be nil when only schema-declared
// presets are used.
func New(schemas SchemaSource, presets PresetSource, store preview.Store, renderer Renderer, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		schemas:  schemas,
		presets:  presets,
		store:    store,
		renderer: renderer,
		sink:     NopSink{},
		ttl:      preview.DefaultTTLPolicy(),
		clock:    time.Now,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.tracer == nil {
		o.tracer = otel.Tracer(TracerName)
	}
	return o
}

// RenderSection renders a section, serving it from the preview cache when an
// identical render is still valid. Cache read failures count as misses and
// cache write failures are logged; neither fails the call.
func (o *Orchestrator) RenderSection(ctx context.Context, req Request) (res Result, err error) {
	began := o.clock()
	ctx, span := o.tracer.Start(ctx, "render.section", trace.WithAttributes(
		attribute.String("section.slug", req.SectionSlug),
		attribute.String("preset.slug", req.PresetSlug),
	))
	defer func() {
		span.SetAttributes(attribute.Bool("render.cached", res.Cached))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		o.emit(ctx, RenderEvent{
			SectionSlug:  req.SectionSlug,
			PresetSlug:   req.PresetSlug,
			ProjectSlug:  req.ProjectSlug,
			DurationMs:   o.clock().Sub(began).Milliseconds(),
			RenderTimeMs: res.RenderTimeMs,
			Cached:       res.Cached,
			Diagnostics:  len(res.Errors),
			Err:          err,
		})
	}()

	if req.SectionSlug == "" {
		return Result{}, ErrMissingSection
	}

	schema, err := o.schema(ctx, req)
	if err != nil {
		return Result{}, err
	}
	preset, err := o.preset(ctx, schema, req.PresetSlug)
	if err != nil {
		return Result{}, err
	}

	var presetSettings sections.Settings
	blocks := req.Blocks
	if preset != nil {
		presetSettings = preset.Settings
		if blocks == nil {
			blocks = preset.Blocks
		}
	}
	resolved := sections.ResolveAll(schema, presetSettings, req.CustomSettings, blocks)
	src := sourceOf(schema, req.SectionSlug)

	var key string
	if !req.SkipCache {
		key = preview.BuildKey(req.SectionSlug, req.PresetSlug, resolved.Settings, o.engineVersion(src), resolved.Blocks...)
		rec, getErr := o.store.Get(ctx, key)
		switch {
		case getErr != nil:
			o.logger.Warn("Preview cache read failed, rendering instead", "section", req.SectionSlug, "error", getErr)
		case rec != nil:
			return Result{
				HTML:         rec.HTML,
				CSS:          rec.CSS,
				Errors:       nonNil(rec.Errors),
				RenderTimeMs: rec.RenderTimeMs,
				Cached:       true,
				Key:          key,
			}, nil
		}
	}

	start := o.clock()
	out, err := o.renderer.Render(ctx, src, resolved.Settings, resolved.Blocks)
	elapsed := o.clock().Sub(start).Milliseconds()
	if err != nil {
		return Result{}, zerr.With(zerr.Wrap(err, "render section"), "section", req.SectionSlug)
	}

	diagnostics := make([]string, 0, len(resolved.Warnings)+len(out.Errors))
	diagnostics = append(diagnostics, resolved.Warnings...)
	diagnostics = append(diagnostics, out.Errors...)

	res = Result{
		HTML:         out.HTML,
		CSS:          out.CSS,
		Errors:       diagnostics,
		RenderTimeMs: elapsed,
		Key:          key,
	}

	if !req.SkipCache {
		rec := preview.Record{
			Key:          key,
			SectionSlug:  req.SectionSlug,
			PresetSlug:   req.PresetSlug,
			HTML:         res.HTML,
			CSS:          res.CSS,
			Errors:       res.Errors,
			RenderTimeMs: elapsed,
		}
		ttl := o.ttl.TTL(len(req.CustomSettings) > 0 || req.Blocks != nil)
		if putErr := o.store.Put(ctx, rec, ttl); putErr != nil {
			o.logger.Error("Failed to store preview", "section", req.SectionSlug, "error", putErr)
		}
	}
	return res, nil
}

// schema returns the project's custom schema layered over the library schema
// when one exists, else the library schema.
func (o *Orchestrator) schema(ctx context.Context, req Request) (*sections.Schema, error) {
	var custom *sections.Schema
	if req.ProjectSlug != "" {
		var err error
		custom, err = o.schemas.CustomSchema(ctx, req.ProjectSlug, req.SectionSlug)
		if err != nil {
			return nil, zerr.With(zerr.Wrap(err, "load custom schema"), "project", req.ProjectSlug)
		}
	}
	schema, err := o.schemas.SectionSchema(ctx, req.SectionSlug)
	if err != nil {
		return nil, zerr.With(zerr.Wrap(err, "load schema"), "section", req.SectionSlug)
	}
	if custom != nil {
		return overlay(custom, schema), nil
	}
	if schema == nil {
		return nil, zerr.With(zerr.Wrap(ErrSectionNotFound, "no schema"), "section", req.SectionSlug)
	}
	return schema, nil
}

// overlay takes settings, blocks and limits from a custom schema and fills
// the template, stylesheet and presets it leaves empty from the library
// schema. A custom template brings its own engine.
func overlay(custom, library *sections.Schema) *sections.Schema {
	if library == nil {
		return custom
	}
	merged := *custom
	if merged.Slug == "" {
		merged.Slug = library.Slug
	}
	if merged.Template == "" {
		merged.Template = library.Template
		merged.Engine = library.Engine
	}
	if merged.Stylesheet == "" {
		merged.Stylesheet = library.Stylesheet
	}
	if len(merged.Presets) == 0 {
		merged.Presets = library.Presets
	}
	return &merged
}

// preset looks in the schema's own presets first and then in the preset
// source.
func (o *Orchestrator) preset(ctx context.Context, schema *sections.Schema, slug string) (*sections.Preset, error) {
	if slug == "" {
		return nil, nil
	}
	if p, ok := schema.Preset(slug); ok {
		return p, nil
	}
	if o.presets != nil {
		p, err := o.presets.Preset(ctx, slug)
		if err != nil {
			return nil, zerr.With(zerr.Wrap(err, "load preset"), "preset", slug)
		}
		if p != nil {
			return p, nil
		}
	}
	return nil, zerr.With(zerr.Wrap(ErrPresetNotFound, "no preset"), "preset", slug)
}

// engineVersion ties cache keys to the renderer and to everything in the
// source that shapes output: name, engine, template, stylesheet and which
// settings are markup. Editing any of them never serves a stale preview.
func (o *Orchestrator) engineVersion(src templating.Source) string {
	d := xxhash.New()
	for _, part := range []string{src.Name, src.Engine, src.Template, src.Stylesheet} {
		_, _ = d.WriteString(part)
		_, _ = d.WriteString("\x00")
	}
	rich := make([]string, 0, len(src.RichText))
	for id, on := range src.RichText {
		if on {
			rich = append(rich, id)
		}
	}
	sort.Strings(rich)
	for _, id := range rich {
		_, _ = d.WriteString(id)
		_, _ = d.WriteString("\x00")
	}
	return o.renderer.Version() + "+" + strconv.FormatUint(d.Sum64(), 16)
}

func (o *Orchestrator) emit(ctx context.Context, ev RenderEvent) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Debug("Metrics sink panicked", "panic", r)
		}
	}()
	if err := o.sink.RecordRender(ctx, ev); err != nil {
		o.logger.Debug("Metrics sink failed", "error", err)
	}
}

// sourceOf builds the renderer input for a schema. richtext and html
// settings are marked for sanitizing.
func sourceOf(schema *sections.Schema, sectionSlug string) templating.Source {
	name := schema.Slug
	if name == "" {
		name = sectionSlug
	}
	rich := map[string]bool{}
	for _, d := range schema.Settings {
		if isMarkup(d.Type) {
			rich[d.ID] = true
		}
	}
	for _, b := range schema.Blocks {
		for _, d := range b.Settings {
			if isMarkup(d.Type) {
				rich[b.Type+"."+d.ID] = true
			}
		}
	}
	return templating.Source{
		Name:       name,
		Engine:     schema.EngineName(),
		Template:   schema.Template,
		Stylesheet: schema.Stylesheet,
		RichText:   rich,
	}
}

func isMarkup(settingType string) bool {
	return settingType == "richtext" || settingType == "html"
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
