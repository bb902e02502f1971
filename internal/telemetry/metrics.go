package telemetry

import (
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const (
	instrumentationName = "github.com/wolfeidau/tenantdb"
)

// Metrics holds all the OpenTelemetry metric instruments
type Metrics struct {
	// Persistence unit cache
	UnitCacheHitsTotal   metric.Int64Counter
	UnitCacheMissesTotal metric.Int64Counter
	UnitBuildsTotal      metric.Int64Counter
	UnitBuildErrorsTotal metric.Int64Counter
	UnitBuildDuration    metric.Float64Histogram
	UnitEvictionsTotal   metric.Int64Counter
	UnitsCached          metric.Int64UpDownCounter

	// Allocation
	AllocationsTotal          metric.Int64Counter
	AllocationsExhaustedTotal metric.Int64Counter

	// Schema provisioning
	SchemaProvisionsTotal metric.Int64Counter
}

var (
	once    sync.Once
	metrics *Metrics
)

// GetMetrics returns the singleton Metrics instance, initializing it if necessary
func GetMetrics() *Metrics {
	once.Do(func() {
		metrics = initMetrics()
	})
	return metrics
}

// initMetrics creates the instruments on the global meter provider. Instruments
// created before InitTelemetry delegate to the provider once it is installed.
func initMetrics() *Metrics {
	meter := otel.GetMeterProvider().Meter(instrumentationName)

	m := &Metrics{}

	m.UnitCacheHitsTotal, _ = meter.Int64Counter(
		"tenantdb.units.cache.hits",
		metric.WithDescription("Persistence unit lookups served from the cache"),
		metric.WithUnit("{lookup}"),
	)

	m.UnitCacheMissesTotal, _ = meter.Int64Counter(
		"tenantdb.units.cache.misses",
		metric.WithDescription("Persistence unit lookups that required a build"),
		metric.WithUnit("{lookup}"),
	)

	m.UnitBuildsTotal, _ = meter.Int64Counter(
		"tenantdb.units.builds",
		metric.WithDescription("Persistence units built, by mode"),
		metric.WithUnit("{unit}"),
	)

	m.UnitBuildErrorsTotal, _ = meter.Int64Counter(
		"tenantdb.units.build.errors",
		metric.WithDescription("Persistence unit builds that failed"),
		metric.WithUnit("{error}"),
	)

	m.UnitBuildDuration, _ = meter.Float64Histogram(
		"tenantdb.units.build.duration",
		metric.WithDescription("Duration of persistence unit builds"),
		metric.WithUnit("ms"),
	)

	m.UnitEvictionsTotal, _ = meter.Int64Counter(
		"tenantdb.units.evictions",
		metric.WithDescription("Persistence units removed from the cache"),
		metric.WithUnit("{unit}"),
	)

	m.UnitsCached, _ = meter.Int64UpDownCounter(
		"tenantdb.units.cached",
		metric.WithDescription("Persistence units currently cached"),
		metric.WithUnit("{unit}"),
	)

	m.AllocationsTotal, _ = meter.Int64Counter(
		"tenantdb.allocations",
		metric.WithDescription("Shared data source allocations"),
		metric.WithUnit("{allocation}"),
	)

	m.AllocationsExhaustedTotal, _ = meter.Int64Counter(
		"tenantdb.allocations.exhausted",
		metric.WithDescription("Allocations that found no enabled shared data source"),
		metric.WithUnit("{allocation}"),
	)

	m.SchemaProvisionsTotal, _ = meter.Int64Counter(
		"tenantdb.schema.provisions",
		metric.WithDescription("Schema provisioning runs, by outcome"),
		metric.WithUnit("{run}"),
	)

	return m
}
