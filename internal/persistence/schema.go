package persistence

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/tenantdb/internal/models"
	"github.com/wolfeidau/tenantdb/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Listener customizes a schema provisioning build before it is finalized.
// Returning an error aborts the provisioning run.
type Listener interface {
	OnBuild(ctx context.Context, org *models.Organization, cfg *BuildConfig) error
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(ctx context.Context, org *models.Organization, cfg *BuildConfig) error

func (f ListenerFunc) OnBuild(ctx context.Context, org *models.Organization, cfg *BuildConfig) error {
	return f(ctx, org, cfg)
}

type registeredListener struct {
	priority int
	listener Listener
}

// SchemaService runs transient builds: schema generation for new tenants and
// caller-owned temporary units. Nothing it builds is cached.
type SchemaService struct {
	factory     *Factory
	provisioner Provisioner

	mu        sync.RWMutex
	listeners []registeredListener
}

// NewSchemaService creates a schema service.
func NewSchemaService(factory *Factory, provisioner Provisioner) *SchemaService {
	return &SchemaService{
		factory:     factory,
		provisioner: provisioner,
	}
}

// AddListener registers l. Listeners run in ascending priority; equal priorities
// keep registration order.
func (s *SchemaService) AddListener(priority int, l Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.listeners = append(s.listeners, registeredListener{priority: priority, listener: l})
	sort.SliceStable(s.listeners, func(i, j int) bool {
		return s.listeners[i].priority < s.listeners[j].priority
	})
}

// Provision generates the schema for org on a single connection and tears the
// unit and connection down before returning, whatever the outcome. It is a no-op
// when the provisioner has no connection for the organization.
func (s *SchemaService) Provision(ctx context.Context, org *models.Organization) (err error) {
	metrics := telemetry.GetMetrics()

	handle, err := s.provisioner.CreateSingle(ctx, org)
	if err != nil {
		metrics.SchemaProvisionsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "error")))
		return fmt.Errorf("%w: %s: %w", ErrBuildFailure, org.OrgID, err)
	}
	if handle == nil {
		log.Debug().Str("org_id", org.OrgID).Msg("No single connection for organization, skipping schema provisioning")
		metrics.SchemaProvisionsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "skipped")))
		return nil
	}

	defer func() {
		if closeErr := handle.Close(ctx); closeErr != nil {
			log.Warn().Err(closeErr).Str("org_id", org.OrgID).Msg("Failed to close schema connection")
		}
		outcome := "success"
		if err != nil {
			outcome = "error"
		}
		metrics.SchemaProvisionsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	}()

	cfg, err := s.factory.NewBuildConfig(org.OrgID, handle, s.factory.BasePackages(), true)
	if err != nil {
		return err
	}
	// schema builds apply DDL unless a listener opts out
	cfg.Properties[PropertyGenerateDDL] = true
	switch strings.ToLower(stringProperty(cfg.Properties, PropertyDDLAuto)) {
	case "create", "update":
	default:
		if prev, ok := cfg.Properties[PropertyDDLAuto]; ok {
			log.Debug().Str("org_id", org.OrgID).Interface("ddl_auto", prev).Msg("Overriding ddl_auto for schema provisioning")
		}
		cfg.Properties[PropertyDDLAuto] = "update"
	}

	if err := s.notify(ctx, org, cfg); err != nil {
		return fmt.Errorf("%w: %s: listener: %w", ErrBuildFailure, org.OrgID, err)
	}

	if !generatesDDL(cfg.Properties) {
		log.Warn().
			Str("org_id", org.OrgID).
			Interface("ddl_auto", cfg.Properties[PropertyDDLAuto]).
			Msg("Schema listener disabled DDL, provisioning applies no schema changes")
	}

	unit, err := s.factory.Build(ctx, cfg)
	if err != nil {
		return err
	}

	log.Info().Str("org_id", org.OrgID).Strs("packages", cfg.Packages).Msg("Provisioned tenant schema")

	return unit.Close(ctx)
}

// OpenTemporary builds a transient unit with the merged package list on a single
// connection. The caller owns the unit and must Close it, which also closes the
// connection. Returns nil when the organization has no data source.
func (s *SchemaService) OpenTemporary(ctx context.Context, org *models.Organization) (*Unit, error) {
	handle, err := s.provisioner.CreateSingle(ctx, org)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrBuildFailure, org.OrgID, err)
	}
	if handle == nil {
		return nil, nil
	}

	cfg, err := s.factory.NewBuildConfig(org.OrgID, handle, s.factory.MergedPackages(), true)
	if err != nil {
		_ = handle.Close(ctx)
		return nil, err
	}

	unit, err := s.factory.Build(ctx, cfg)
	if err != nil {
		_ = handle.Close(ctx)
		return nil, err
	}
	unit.ownsHandle = true

	return unit, nil
}

func (s *SchemaService) notify(ctx context.Context, org *models.Organization, cfg *BuildConfig) error {
	s.mu.RLock()
	listeners := make([]registeredListener, len(s.listeners))
	copy(listeners, s.listeners)
	s.mu.RUnlock()

	for _, l := range listeners {
		if err := l.listener.OnBuild(ctx, org, cfg); err != nil {
			return err
		}
	}
	return nil
}
