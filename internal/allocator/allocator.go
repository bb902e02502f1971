// Package allocator decides which data source descriptor a tenant uses.
package allocator

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/tenantdb/internal/models"
	"github.com/wolfeidau/tenantdb/internal/store"
	"github.com/wolfeidau/tenantdb/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	// ErrResourceExhausted indicates no enabled and shared data source exists.
	ErrResourceExhausted = errors.New("no enabled shared data source available")
	// ErrInvalidAssignment indicates a pinned data source is no longer enabled and shared.
	ErrInvalidAssignment = errors.New("assigned data source is not enabled and shared")
)

// Allocator resolves and allocates data source descriptors for organizations.
// It never modifies descriptors; load tracking belongs to whoever updates DepletionIndex.
type Allocator struct {
	infos store.DataSourceInfoStore
	orgs  store.OrganizationStore
}

// New creates an allocator over the given stores.
func New(infos store.DataSourceInfoStore, orgs store.OrganizationStore) *Allocator {
	return &Allocator{
		infos: infos,
		orgs:  orgs,
	}
}

// Resolve returns the descriptor currently assigned to org, or nil when the
// organization has not been allocated yet.
//
// A pinned DataSourceInfoID is trusted as-is, whatever its flags. Without one the
// persisted assignment is consulted, since the in-memory organization may be stale.
func (a *Allocator) Resolve(ctx context.Context, org *models.Organization) (*models.DataSourceInfo, error) {
	var (
		info *models.DataSourceInfo
		err  error
	)

	if org.HasDataSource() {
		info, err = a.infos.Get(ctx, org.DataSourceInfoID)
	} else {
		info, err = a.infos.GetByOrganization(ctx, org.OrgID)
	}

	if err != nil {
		if errors.Is(err, store.ErrDataSourceInfoNotFound) {
			log.Debug().Str("org_id", org.OrgID).Msg("No data source resolved for organization")
			return nil, nil
		}
		return nil, fmt.Errorf("failed to resolve data source for %s: %w", org.OrgID, err)
	}

	return info, nil
}

// Allocate selects the descriptor org should use from the shared pool.
//
// A pinned assignment must still be enabled and shared, otherwise ErrInvalidAssignment
// is returned rather than silently reallocating. Without an assignment the least
// depleted eligible descriptor is chosen from current storage state.
func (a *Allocator) Allocate(ctx context.Context, org *models.Organization) (*models.DataSourceInfo, error) {
	metrics := telemetry.GetMetrics()

	if org.HasDataSource() {
		info, err := a.infos.GetEnabledShared(ctx, org.DataSourceInfoID)
		if err != nil {
			if errors.Is(err, store.ErrDataSourceInfoNotFound) {
				return nil, fmt.Errorf("%w: organization %s references %s",
					ErrInvalidAssignment, org.OrgID, org.DataSourceInfoID)
			}
			return nil, fmt.Errorf("failed to load assigned data source: %w", err)
		}
		return info, nil
	}

	info, err := a.infos.LeastDepleted(ctx)
	if err != nil {
		if errors.Is(err, store.ErrDataSourceInfoNotFound) {
			metrics.AllocationsExhaustedTotal.Add(ctx, 1)
			return nil, fmt.Errorf("%w: organization %s", ErrResourceExhausted, org.OrgID)
		}
		return nil, fmt.Errorf("failed to select data source: %w", err)
	}

	metrics.AllocationsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("datasource_id", info.ID)))

	log.Info().
		Str("org_id", org.OrgID).
		Str("datasource_id", info.ID).
		Int("depletion_index", info.DepletionIndex).
		Msg("Allocated shared data source")

	return info, nil
}

// Assign returns the descriptor for org, allocating one from the shared pool and
// persisting the assignment on the organization when none exists yet.
func (a *Allocator) Assign(ctx context.Context, org *models.Organization) (*models.DataSourceInfo, error) {
	info, err := a.Resolve(ctx, org)
	if err != nil {
		return nil, err
	}
	if info != nil {
		return info, nil
	}

	info, err = a.Allocate(ctx, org)
	if err != nil {
		return nil, err
	}

	if a.orgs != nil {
		org.DataSourceInfoID = info.ID
		if err := a.orgs.Update(ctx, org); err != nil {
			org.DataSourceInfoID = ""
			return nil, fmt.Errorf("failed to persist data source assignment: %w", err)
		}
	}

	return info, nil
}

// AssignShared is Assign for callers that require a shared pool descriptor. An
// existing assignment, pinned or persisted, that is no longer enabled and shared
// fails with ErrInvalidAssignment instead of being returned.
func (a *Allocator) AssignShared(ctx context.Context, org *models.Organization) (*models.DataSourceInfo, error) {
	info, err := a.Assign(ctx, org)
	if err != nil {
		return nil, err
	}

	if !info.Enabled || !info.Shared {
		return nil, fmt.Errorf("%w: organization %s references %s (enabled=%t shared=%t)",
			ErrInvalidAssignment, org.OrgID, info.ID, info.Enabled, info.Shared)
	}

	return info, nil
}
