package main

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"testing"

	"github.com/CTAG07/Trellis/pkg/render"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

func newTestTelemetry(t *testing.T, logSpans bool) (*Telemetry, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	tel := NewTelemetry(&TelemetryConfig{ServiceName: "trellis-test", LogSpans: logSpans}, logger)
	t.Cleanup(func() { _ = tel.Shutdown(context.Background()) })
	return tel, &buf
}

func TestSpanLogger(t *testing.T) {
	tel, buf := newTestTelemetry(t, true)
	tracer := tel.Tracer("test")

	_, span := tracer.Start(context.Background(), "render.section")
	span.SetAttributes(attribute.String("section.slug", "hero"))
	span.End()
	assert.Contains(t, buf.String(), "Span finished")
	assert.Contains(t, buf.String(), "section.slug=hero")

	_, span = tracer.Start(context.Background(), "render.section")
	span.SetStatus(codes.Error, "boom")
	span.End()
	assert.Contains(t, buf.String(), "Span failed")
	assert.Contains(t, buf.String(), "error=boom")
}

func TestSpanLogger_Disabled(t *testing.T) {
	tel, buf := newTestTelemetry(t, false)
	_, span := tel.Tracer("test").Start(context.Background(), "quiet")
	span.End()
	assert.Empty(t, buf.String())
}

func TestTelemetry_Snapshot(t *testing.T) {
	tel, _ := newTestTelemetry(t, false)
	sink, err := render.NewOTelSink(tel.Meter(render.TracerName))
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, sink.RecordRender(ctx, render.RenderEvent{SectionSlug: "hero", RenderTimeMs: 12}))
	require.NoError(t, sink.RecordRender(ctx, render.RenderEvent{SectionSlug: "hero", Cached: true}))

	points, err := tel.Snapshot(ctx)
	require.NoError(t, err)

	var renders int64
	var histCount uint64
	for _, p := range points {
		switch p.Name {
		case "trellis.section.renders":
			assert.Equal(t, "hero", p.Attributes["section.slug"])
			renders += p.Value
		case "trellis.section.render_time":
			histCount += p.Count
			assert.Equal(t, "ms", p.Unit)
		}
	}
	assert.Equal(t, int64(2), renders)
	assert.Equal(t, uint64(1), histCount)
}

func TestTraceRequests(t *testing.T) {
	tel, buf := newTestTelemetry(t, true)
	h := tel.TraceRequests(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/fail" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusTeapot)
	}))

	rr := do(t, h, http.MethodGet, "/ok", nil)
	assert.Equal(t, http.StatusTeapot, rr.Code)
	assert.Contains(t, buf.String(), "http.response.status_code=418")

	do(t, h, http.MethodGet, "/fail", nil)
	assert.Contains(t, buf.String(), "Span failed")
}
