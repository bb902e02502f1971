package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/tenantdb/internal/datasource"
	"github.com/wolfeidau/tenantdb/internal/jta"
	"github.com/wolfeidau/tenantdb/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// DefaultPackagesToScan are the mapped packages every tenant unit carries.
const DefaultPackagesToScan = "security,notify,dictionary,log,importer,profile"

// FactoryConfig configures unit builds.
type FactoryConfig struct {
	// PackagesToScan is the comma-separated base package list.
	PackagesToScan string
	// CustomPackagesToScan is appended to the base list for durable units.
	CustomPackagesToScan string
	Vendor               VendorSettings
}

// Factory builds persistence units.
type Factory struct {
	engine Engine
	jta    *jta.Resolver
	cfg    FactoryConfig
}

// NewFactory creates a factory.
func NewFactory(engine Engine, resolver *jta.Resolver, cfg FactoryConfig) *Factory {
	return &Factory{
		engine: engine,
		jta:    resolver,
		cfg:    cfg,
	}
}

// BasePackages returns the base package list.
func (f *Factory) BasePackages() []string {
	return MergePackages(f.cfg.PackagesToScan)
}

// MergedPackages returns the base list followed by the custom list.
func (f *Factory) MergedPackages() []string {
	return MergePackages(f.cfg.PackagesToScan, f.cfg.CustomPackagesToScan)
}

// NewBuildConfig prepares a build: vendor properties first, then the JTA platform
// unless a property already names one. The resolver runs on every call.
func (f *Factory) NewBuildConfig(name string, handle datasource.Handle, packages []string, transient bool) (*BuildConfig, error) {
	props := f.cfg.Vendor.BuildProperties()
	if err := f.jta.Configure(props); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrBuildFailure, name, err)
	}

	return &BuildConfig{
		UnitName:   name,
		DataSource: handle,
		Packages:   packages,
		Properties: props,
		JTA:        f.jta.Environment().JTA(),
		Transient:  transient,
	}, nil
}

// Build runs the engine. Failures are wrapped in ErrBuildFailure and never retried.
func (f *Factory) Build(ctx context.Context, cfg *BuildConfig) (*Unit, error) {
	mode := "durable"
	if cfg.Transient {
		mode = "transient"
	}

	ctx, span := telemetry.Tracer().Start(ctx, "persistence.Build",
		trace.WithAttributes(
			attribute.String("unit", cfg.UnitName),
			attribute.String("mode", mode),
			attribute.Int("packages", len(cfg.Packages)),
		))
	defer span.End()

	metrics := telemetry.GetMetrics()
	attrs := metric.WithAttributes(attribute.String("mode", mode))
	started := time.Now()

	mapping, err := f.engine.Build(ctx, cfg)
	metrics.UnitBuildDuration.Record(ctx, float64(time.Since(started).Milliseconds()), attrs)
	if err != nil {
		metrics.UnitBuildErrorsTotal.Add(ctx, 1, attrs)
		span.RecordError(err)
		span.SetStatus(codes.Error, "build failed")
		return nil, fmt.Errorf("%w: %s: %w", ErrBuildFailure, cfg.UnitName, err)
	}

	metrics.UnitBuildsTotal.Add(ctx, 1, attrs)

	log.Info().
		Str("unit", cfg.UnitName).
		Str("mode", mode).
		Strs("packages", cfg.Packages).
		Int("entities", len(mapping.Entities())).
		Dur("duration", time.Since(started)).
		Msg("Built persistence unit")

	return newUnit(cfg, mapping), nil
}

// BuildDurable builds a unit on a pooled data source with the merged package list.
func (f *Factory) BuildDurable(ctx context.Context, name string, handle datasource.Handle) (*Unit, error) {
	cfg, err := f.NewBuildConfig(name, handle, f.MergedPackages(), false)
	if err != nil {
		return nil, err
	}
	return f.Build(ctx, cfg)
}
