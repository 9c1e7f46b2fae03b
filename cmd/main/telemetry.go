package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sort"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/CTAG07/Trellis/cmd/main"

// SpanLogger implements sdktrace.SpanProcessor by logging finished spans.
type SpanLogger struct {
	logger *slog.Logger
}

func NewSpanLogger(logger *slog.Logger) *SpanLogger {
	return &SpanLogger{logger: logger}
}

// OnStart does nothing.
func (l *SpanLogger) OnStart(context.Context, sdktrace.ReadWriteSpan) {}

// OnEnd logs the span with its attributes and duration.
func (l *SpanLogger) OnEnd(s sdktrace.ReadOnlySpan) {
	sc := s.SpanContext()
	if !sc.IsValid() {
		return
	}
	attrs := []any{
		"span", s.Name(),
		"trace_id", sc.TraceID().String(),
		"duration_ms", s.EndTime().Sub(s.StartTime()).Milliseconds(),
	}
	for _, kv := range s.Attributes() {
		attrs = append(attrs, string(kv.Key), kv.Value.Emit())
	}
	if s.Status().Code == codes.Error {
		l.logger.Warn("Span failed", append(attrs, "error", s.Status().Description)...)
		return
	}
	l.logger.Debug("Span finished", attrs...)
}

// ForceFlush does nothing.
func (l *SpanLogger) ForceFlush(context.Context) error { return nil }

// Shutdown does nothing.
func (l *SpanLogger) Shutdown(context.Context) error { return nil }

// Telemetry owns the trace and meter providers of one server cycle. Metrics
// are kept in a manual reader and exposed through Snapshot.
type Telemetry struct {
	tp     *sdktrace.TracerProvider
	mp     *sdkmetric.MeterProvider
	reader *sdkmetric.ManualReader
}

// NewTelemetry builds the providers and installs them globally.
func NewTelemetry(cfg *TelemetryConfig, logger *slog.Logger) *Telemetry {
	res := resource.NewSchemaless(attribute.String("service.name", cfg.ServiceName))

	opts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}
	if cfg.LogSpans {
		opts = append(opts, sdktrace.WithSpanProcessor(NewSpanLogger(logger)))
	}
	reader := sdkmetric.NewManualReader()

	t := &Telemetry{
		tp:     sdktrace.NewTracerProvider(opts...),
		mp:     sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader), sdkmetric.WithResource(res)),
		reader: reader,
	}
	otel.SetTracerProvider(t.tp)
	otel.SetMeterProvider(t.mp)
	return t
}

func (t *Telemetry) Tracer(name string) trace.Tracer { return t.tp.Tracer(name) }

func (t *Telemetry) Meter(name string) metric.Meter { return t.mp.Meter(name) }

// Shutdown flushes and stops both providers.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	return errors.Join(t.tp.Shutdown(ctx), t.mp.Shutdown(ctx))
}

// MetricPoint is one data point in a metrics snapshot. Counters fill Value;
// histograms fill Count and Sum.
type MetricPoint struct {
	Name       string            `json:"name"`
	Unit       string            `json:"unit,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
	Value      int64             `json:"value,omitempty"`
	Count      uint64            `json:"count,omitempty"`
	Sum        float64           `json:"sum,omitempty"`
}

// Snapshot collects the current value of every instrument.
func (t *Telemetry) Snapshot(ctx context.Context) ([]MetricPoint, error) {
	var rm metricdata.ResourceMetrics
	if err := t.reader.Collect(ctx, &rm); err != nil {
		return nil, err
	}
	points := []MetricPoint{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				for _, dp := range data.DataPoints {
					points = append(points, MetricPoint{Name: m.Name, Unit: m.Unit, Attributes: attrMap(dp.Attributes), Value: dp.Value})
				}
			case metricdata.Histogram[float64]:
				for _, dp := range data.DataPoints {
					points = append(points, MetricPoint{Name: m.Name, Unit: m.Unit, Attributes: attrMap(dp.Attributes), Count: dp.Count, Sum: dp.Sum})
				}
			}
		}
	}
	sort.SliceStable(points, func(i, j int) bool { return points[i].Name < points[j].Name })
	return points, nil
}

func attrMap(set attribute.Set) map[string]string {
	if set.Len() == 0 {
		return nil
	}
	out := make(map[string]string, set.Len())
	for _, kv := range set.ToSlice() {
		out[string(kv.Key)] = kv.Value.Emit()
	}
	return out
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// TraceRequests starts a server span per request. Render spans started by
// the handlers become its children.
func (t *Telemetry) TraceRequests(next http.Handler) http.Handler {
	tracer := t.Tracer(instrumentationName)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), r.Method+" "+r.URL.Path,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.request.method", r.Method),
				attribute.String("url.path", r.URL.Path),
			))
		defer span.End()

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r.WithContext(ctx))

		span.SetAttributes(attribute.Int("http.response.status_code", rec.status))
		if rec.status >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(rec.status))
		}
	})
}
