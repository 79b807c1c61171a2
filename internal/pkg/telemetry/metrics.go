package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics records governance engine outcomes.
type Metrics struct {
	transitionsPerformed metric.Int64Counter
	transitionsDenied    metric.Int64Counter
	numbersAssigned      metric.Int64Counter
	numberingRejected    metric.Int64Counter
	integrityAnomalies   metric.Int64Counter
}

// NewMetrics creates the governance instruments on meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	var (
		m   Metrics
		err error
	)
	if m.transitionsPerformed, err = meter.Int64Counter("lifecycle_transitions_performed_total",
		metric.WithDescription("Total number of lifecycle transitions performed")); err != nil {
		return nil, fmt.Errorf("create transitions performed counter: %w", err)
	}
	if m.transitionsDenied, err = meter.Int64Counter("lifecycle_transitions_denied_total",
		metric.WithDescription("Total number of lifecycle transitions denied by policy")); err != nil {
		return nil, fmt.Errorf("create transitions denied counter: %w", err)
	}
	if m.numbersAssigned, err = meter.Int64Counter("numbering_numbers_assigned_total",
		metric.WithDescription("Total number of numbers assigned")); err != nil {
		return nil, fmt.Errorf("create numbers assigned counter: %w", err)
	}
	if m.numberingRejected, err = meter.Int64Counter("numbering_assignments_rejected_total",
		metric.WithDescription("Total number of number assignments rejected by policy")); err != nil {
		return nil, fmt.Errorf("create assignments rejected counter: %w", err)
	}
	if m.integrityAnomalies, err = meter.Int64Counter("governance_integrity_anomalies_total",
		metric.WithDescription("Total number of storage integrity violations observed")); err != nil {
		return nil, fmt.Errorf("create integrity anomalies counter: %w", err)
	}
	return &m, nil
}

// NoopMetrics returns Metrics backed by a no-op meter.
func NoopMetrics() *Metrics {
	m, err := NewMetrics(Noop().Meter())
	if err != nil {
		panic(err) // noop instruments never fail
	}
	return m
}

func entityAttr(entityType string) metric.MeasurementOption {
	return metric.WithAttributes(attribute.String("entity_type", entityType))
}

func (m *Metrics) IncTransitionPerformed(ctx context.Context, entityType string) {
	m.transitionsPerformed.Add(ctx, 1, entityAttr(entityType))
}

func (m *Metrics) IncTransitionDenied(ctx context.Context, entityType string) {
	m.transitionsDenied.Add(ctx, 1, entityAttr(entityType))
}

func (m *Metrics) IncNumberAssigned(ctx context.Context, entityType string) {
	m.numbersAssigned.Add(ctx, 1, entityAttr(entityType))
}

func (m *Metrics) IncNumberingRejected(ctx context.Context, entityType string) {
	m.numberingRejected.Add(ctx, 1, entityAttr(entityType))
}

func (m *Metrics) IncIntegrityAnomaly(ctx context.Context, entityType string) {
	m.integrityAnomalies.Add(ctx, 1, entityAttr(entityType))
}
