package render_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/CTAG07/Trellis/pkg/render"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func findMetric(rm metricdata.ResourceMetrics, name string) (metricdata.Metrics, bool) {
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name == name {
				return m, true
			}
		}
	}
	return metricdata.Metrics{}, false
}

func TestOTelSink(t *testing.T) {
	ctx := context.Background()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	sink, err := render.NewOTelSink(provider.Meter("test"))
	require.NoError(t, err)

	require.NoError(t, sink.RecordRender(ctx, render.RenderEvent{SectionSlug: "hero-banner", RenderTimeMs: 12, Diagnostics: 2}))
	require.NoError(t, sink.RecordRender(ctx, render.RenderEvent{SectionSlug: "hero-banner", Cached: true}))
	require.NoError(t, sink.RecordRender(ctx, render.RenderEvent{SectionSlug: "missing", Err: errors.New("boom")}))

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))

	renders, ok := findMetric(rm, "trellis.section.renders")
	require.True(t, ok)
	sum, ok := renders.Data.(metricdata.Sum[int64])
	require.True(t, ok)
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	assert.Equal(t, int64(3), total)
	assert.Len(t, sum.DataPoints, 3, "one series per outcome")

	diags, ok := findMetric(rm, "trellis.section.diagnostics")
	require.True(t, ok)
	assert.Equal(t, int64(2), diags.Data.(metricdata.Sum[int64]).DataPoints[0].Value)

	renderTime, ok := findMetric(rm, "trellis.section.render_time")
	require.True(t, ok)
	hist := renderTime.Data.(metricdata.Histogram[float64])
	require.Len(t, hist.DataPoints, 1)
	assert.Equal(t, uint64(1), hist.DataPoints[0].Count, "cached and failed renders are not timed")
}

func TestLogSink(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	sink := render.LogSink{Logger: logger}

	require.NoError(t, sink.RecordRender(context.Background(), render.RenderEvent{SectionSlug: "hero-banner", ProjectSlug: "acme"}))
	require.NoError(t, sink.RecordRender(context.Background(), render.RenderEvent{SectionSlug: "nope", Err: render.ErrSectionNotFound}))

	out := buf.String()
	assert.Contains(t, out, `msg="Rendered section"`)
	assert.Contains(t, out, "project=acme")
	assert.Contains(t, out, `msg="Section render failed"`)
}

func TestFanOut(t *testing.T) {
	first, second := &recordingSink{}, &recordingSink{err: errors.New("second failed")}
	fan := render.FanOut{first, second, render.NopSink{}}

	err := fan.RecordRender(context.Background(), render.RenderEvent{SectionSlug: "hero-banner"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "second failed")
	assert.Len(t, first.events, 1)
	assert.Len(t, second.events, 1)
}
