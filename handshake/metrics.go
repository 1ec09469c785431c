package handshake

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Metrics holds the handshake's Prometheus registry and meters. A nil
// *Metrics records nothing.
type Metrics struct {
	Registry      *prometheus.Registry
	Total         *prometheus.CounterVec
	Duration      *prometheus.HistogramVec
	SoftFailures  *prometheus.CounterVec
	Notifications *prometheus.CounterVec
}

// NewMetrics creates a registry with the handshake meters registered.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	total := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "aurapair_handshake_total",
		Help: "Handshake operations by outcome.",
	}, []string{"outcome"})

	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "aurapair_handshake_duration_seconds",
		Help:    "Time from start to resolution of a handshake operation.",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 15, 30},
	}, []string{"outcome"})

	softFailures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "aurapair_session_soft_failures_total",
		Help: "Non-fatal failures by step.",
	}, []string{"step"})

	notifications := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "aurapair_notifications_total",
		Help: "Response notifications by kind (approved or ignored).",
	}, []string{"kind"})

	reg.MustRegister(total, duration, softFailures, notifications)

	return &Metrics{
		Registry:      reg,
		Total:         total,
		Duration:      duration,
		SoftFailures:  softFailures,
		Notifications: notifications,
	}
}

func (m *Metrics) observeOutcome(state State, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.Total.WithLabelValues(state.String()).Inc()
	m.Duration.WithLabelValues(state.String()).Observe(elapsed.Seconds())
}

func (m *Metrics) softFailure(step Step) {
	if m == nil {
		return
	}
	m.SoftFailures.WithLabelValues(string(step)).Inc()
}

func (m *Metrics) notification(kind string) {
	if m == nil {
		return
	}
	m.Notifications.WithLabelValues(kind).Inc()
}

func startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	ctx, span := otel.Tracer("aurapair").Start(ctx, name)
	if len(attrs) > 0 {
		span.SetAttributes(attrs...)
	}
	return ctx, span
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
