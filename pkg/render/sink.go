package render

import (
	"context"
	"errors"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// NopSink discards render events.
type NopSink struct{}

func (NopSink) RecordRender(context.Context, RenderEvent) error { return nil }

// LogSink writes one log line per render.
type LogSink struct {
	Logger *slog.Logger
}

func (s LogSink) RecordRender(ctx context.Context, ev RenderEvent) error {
	attrs := []any{
		"section", ev.SectionSlug,
		"preset", ev.PresetSlug,
		"cached", ev.Cached,
		"render_ms", ev.RenderTimeMs,
		"duration_ms", ev.DurationMs,
		"diagnostics", ev.Diagnostics,
	}
	if ev.ProjectSlug != "" {
		attrs = append(attrs, "project", ev.ProjectSlug)
	}
	if ev.Err != nil {
		s.Logger.WarnContext(ctx, "Section render failed", append(attrs, "error", ev.Err)...)
		return nil
	}
	s.Logger.DebugContext(ctx, "Rendered section", attrs...)
	return nil
}

// OTelSink records render counts and durations as OpenTelemetry metrics.
type OTelSink struct {
	renders     metric.Int64Counter
	diagnostics metric.Int64Counter
	renderTime  metric.Float64Histogram
}

// NewOTelSink creates the instruments on meter.
func NewOTelSink(meter metric.Meter) (*OTelSink, error) {
	renders, err := meter.Int64Counter("trellis.section.renders",
		metric.WithDescription("Section render calls by outcome"))
	if err != nil {
		return nil, err
	}
	diagnostics, err := meter.Int64Counter("trellis.section.diagnostics",
		metric.WithDescription("Diagnostics reported by section renders"))
	if err != nil {
		return nil, err
	}
	renderTime, err := meter.Float64Histogram("trellis.section.render_time",
		metric.WithDescription("Time spent executing section templates"),
		metric.WithUnit("ms"))
	if err != nil {
		return nil, err
	}
	return &OTelSink{renders: renders, diagnostics: diagnostics, renderTime: renderTime}, nil
}

func (s *OTelSink) RecordRender(ctx context.Context, ev RenderEvent) error {
	outcome := "ok"
	switch {
	case ev.Err != nil:
		outcome = "error"
	case ev.Cached:
		outcome = "cached"
	}
	attrs := metric.WithAttributes(
		attribute.String("section.slug", ev.SectionSlug),
		attribute.String("render.outcome", outcome),
	)
	s.renders.Add(ctx, 1, attrs)
	if ev.Err != nil {
		return nil
	}
	if ev.Diagnostics > 0 {
		s.diagnostics.Add(ctx, int64(ev.Diagnostics), attrs)
	}
	if !ev.Cached {
		s.renderTime.Record(ctx, float64(ev.RenderTimeMs), attrs)
	}
	return nil
}

// FanOut sends each event to every sink and joins their errors.
type FanOut []MetricsSink

func (f FanOut) RecordRender(ctx context.Context, ev RenderEvent) error {
	var errs []error
	for _, s := range f {
		if err := s.RecordRender(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
