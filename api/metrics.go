package api

import (
	"context"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	tracerName        = "github.com/KarmaFounder/friday-jarvis/api"
	requestSpanPrefix = "api."
)

// requestMetrics collects per-request timings and reports them as one log
// line and one span.
type requestMetrics struct {
	logger        *log.Logger
	span          trace.Span
	route         string
	start         time.Time
	authDuration  time.Duration
	execDuration  time.Duration
	procedure     string
	success       bool
	async         bool
	errorStage    string
	idempotentKey bool
}

func newRequestMetrics(ctx context.Context, logger *log.Logger, route string) (*requestMetrics, context.Context) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, requestSpanPrefix+route,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(attribute.String("http.route", route)),
	)
	return &requestMetrics{logger: logger, span: span, route: route, start: time.Now()}, ctx
}

func (m *requestMetrics) ObserveAuth(d time.Duration) {
	if d > 0 {
		m.authDuration = d
	}
}

func (m *requestMetrics) ObserveExecute(d time.Duration) {
	if d > 0 {
		m.execDuration = d
	}
}

func (m *requestMetrics) SetOutcome(procedure string, success bool) {
	m.procedure = procedure
	m.success = success
}

func (m *requestMetrics) SetAsync(async bool)      { m.async = async }
func (m *requestMetrics) SetIdempotent(keyed bool) { m.idempotentKey = keyed }

func (m *requestMetrics) SetErrorStage(stage string) {
	if stage != "" {
		m.errorStage = stage
	}
}

// Log ends the span and writes the request summary.
func (m *requestMetrics) Log(status int, err error) {
	if m == nil {
		return
	}
	total := time.Since(m.start)
	attrs := []attribute.KeyValue{
		attribute.Int("http.status_code", status),
		attribute.Float64("request.total_ms", durationToMillis(total)),
		attribute.Bool("request.async", m.async),
	}
	if m.procedure != "" {
		attrs = append(attrs,
			attribute.String("workflow.procedure", m.procedure),
			attribute.Bool("workflow.success", m.success),
		)
	}
	if m.errorStage != "" {
		attrs = append(attrs, attribute.String("request.error_stage", m.errorStage))
	}
	if m.span != nil {
		m.span.SetAttributes(attrs...)
		switch {
		case err != nil:
			m.span.RecordError(err)
			m.span.SetStatus(codes.Error, err.Error())
		case status >= http.StatusInternalServerError:
			m.span.SetStatus(codes.Error, http.StatusText(status))
		default:
			m.span.SetStatus(codes.Ok, "")
		}
		m.span.End()
	}
	if m.logger == nil {
		return
	}

	fields := log.Fields{
		"route":           m.route,
		"status":          status,
		"total_ms":        durationToMillis(total),
		"async":           m.async,
		"idempotency_key": m.idempotentKey,
	}
	if m.authDuration > 0 {
		fields["auth_ms"] = durationToMillis(m.authDuration)
	}
	if m.execDuration > 0 {
		fields["execute_ms"] = durationToMillis(m.execDuration)
	}
	if m.procedure != "" {
		fields["procedure"] = m.procedure
		fields["success"] = m.success
	}
	if m.errorStage != "" {
		fields["error_stage"] = m.errorStage
	}
	if err != nil {
		fields["error"] = err.Error()
	}
	if m.span != nil {
		if sc := m.span.SpanContext(); sc.HasTraceID() {
			fields["trace_id"] = sc.TraceID().String()
		}
	}
	m.logger.WithFields(fields).Info("request.metrics")
}

func durationToMillis(d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(d) / float64(time.Millisecond)
}
