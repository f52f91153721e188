package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "pathwise/prediction"

// PredictionMetrics counts round outcomes. The global meter provider is a
// no-op unless the host process installs one.
type PredictionMetrics struct {
	rounds     metric.Int64Counter
	published  metric.Int64Counter
	superseded metric.Int64Counter
	fallbacks  metric.Int64Counter
	failures   metric.Int64Counter
}

func NewPredictionMetrics() *PredictionMetrics {
	meter := otel.Meter(meterName)
	m := &PredictionMetrics{}
	m.rounds, _ = meter.Int64Counter("pathwise.prediction.rounds", metric.WithDescription("prediction rounds started"))
	m.published, _ = meter.Int64Counter("pathwise.prediction.published", metric.WithDescription("intents published on the bus"))
	m.superseded, _ = meter.Int64Counter("pathwise.prediction.superseded", metric.WithDescription("round results discarded as stale"))
	m.fallbacks, _ = meter.Int64Counter("pathwise.prediction.fallbacks", metric.WithDescription("rounds answered by the rule engine"))
	m.failures, _ = meter.Int64Counter("pathwise.prediction.failures", metric.WithDescription("rounds that ended in PREDICTION_FAILED"))
	return m
}

func (m *PredictionMetrics) RoundStarted(ctx context.Context, immediate bool) {
	if m == nil || m.rounds == nil {
		return
	}
	m.rounds.Add(ctx, 1, metric.WithAttributes(attribute.Bool("immediate", immediate)))
}

func (m *PredictionMetrics) Published(ctx context.Context, source string) {
	if m == nil || m.published == nil {
		return
	}
	m.published.Add(ctx, 1, metric.WithAttributes(attribute.String("source", source)))
}

func (m *PredictionMetrics) Superseded(ctx context.Context) {
	if m == nil || m.superseded == nil {
		return
	}
	m.superseded.Add(ctx, 1)
}

func (m *PredictionMetrics) Fallback(ctx context.Context, reason string) {
	if m == nil || m.fallbacks == nil {
		return
	}
	m.fallbacks.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

func (m *PredictionMetrics) Failed(ctx context.Context) {
	if m == nil || m.failures == nil {
		return
	}
	m.failures.Add(ctx, 1)
}
