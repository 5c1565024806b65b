package otel

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "canopy"

// Metrics holds all canopy metric instruments.
type Metrics struct {
	GateDenied           metric.Int64Counter
	BundlesRegenerated   metric.Int64Counter
	ManifestsRegenerated metric.Int64Counter
	InvalidationsFailed  metric.Int64Counter
	EntitiesWritten      metric.Int64Counter
	RegenDuration        metric.Float64Histogram
}

// NewMetrics creates all metric instruments.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.GateDenied, err = meter.Int64Counter("canopy.gate.denied",
		metric.WithDescription("Storage operations denied by the capability gate"))
	if err != nil {
		return nil, err
	}

	m.BundlesRegenerated, err = meter.Int64Counter("canopy.bundles.regenerated",
		metric.WithDescription("Bundle rebuilds completed"))
	if err != nil {
		return nil, err
	}

	m.ManifestsRegenerated, err = meter.Int64Counter("canopy.manifests.regenerated",
		metric.WithDescription("Manifest rebuilds completed"))
	if err != nil {
		return nil, err
	}

	m.InvalidationsFailed, err = meter.Int64Counter("canopy.invalidations.failed",
		metric.WithDescription("Invalidation tasks that ended with errors"))
	if err != nil {
		return nil, err
	}

	m.EntitiesWritten, err = meter.Int64Counter("canopy.entities.written",
		metric.WithDescription("Entity versions persisted"))
	if err != nil {
		return nil, err
	}

	m.RegenDuration, err = meter.Float64Histogram("canopy.regenerate.duration_seconds",
		metric.WithDescription("Bundle/manifest rebuild duration in seconds"))
	if err != nil {
		return nil, err
	}

	return m, nil
}
