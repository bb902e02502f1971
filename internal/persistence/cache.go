package persistence

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/tenantdb/internal/datasource"
	"github.com/wolfeidau/tenantdb/internal/models"
	"github.com/wolfeidau/tenantdb/internal/telemetry"
	"golang.org/x/sync/singleflight"
)

// DataScriptTag identifies seeding script runs against tenant data sources.
const DataScriptTag = "multitenant-data"

// DefaultBuildTimeout bounds a single unit build, seeding included.
const DefaultBuildTimeout = 2 * time.Minute

// Assigner returns the data source descriptor an organization should use,
// allocating one when it has none.
type Assigner interface {
	Assign(ctx context.Context, org *models.Organization) (*models.DataSourceInfo, error)
}

// Provisioner opens tenant connections.
type Provisioner interface {
	GetOrCreatePooled(ctx context.Context, org *models.Organization, info *models.DataSourceInfo) (datasource.Handle, error)
	CreateSingle(ctx context.Context, org *models.Organization) (datasource.Handle, error)
	Release(ctx context.Context, org *models.Organization) error
}

// ScriptRunner runs a seeding script against a tenant data source.
type ScriptRunner interface {
	Run(ctx context.Context, tenantID string, db datasource.Querier, scriptPath, tag string) error
}

// CacheConfig wires the cache collaborators.
type CacheConfig struct {
	Factory     *Factory
	Assigner    Assigner
	Provisioner Provisioner
	Scripts     ScriptRunner
	// DataScript is the seeding script path, empty to skip seeding.
	DataScript string
	// BuildTimeout bounds each build, DefaultBuildTimeout when zero.
	BuildTimeout time.Duration
}

// Cache holds one durable unit per organization. Concurrent misses for the same
// organization share a single build; a unit is only visible once seeding succeeded.
// Builds and removals of one organization are serialized, so a removal never
// races a build into leaving a unit on a released data source.
type Cache struct {
	cfg CacheConfig

	mu     sync.RWMutex
	units  map[string]*Unit // org_id -> unit
	closed bool
	group  singleflight.Group
	locks  *orgLocks
}

// NewCache creates an empty cache; call Init before serving tenants.
func NewCache(cfg CacheConfig) *Cache {
	if cfg.BuildTimeout <= 0 {
		cfg.BuildTimeout = DefaultBuildTimeout
	}
	return &Cache{
		cfg:   cfg,
		units: make(map[string]*Unit),
		locks: newOrgLocks(),
	}
}

// Init seeds the reserved master entry with the primary unit.
func (c *Cache) Init(primary *Unit) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.units[models.MasterOrgID]; !exists {
		telemetry.GetMetrics().UnitsCached.Add(context.Background(), 1)
	}
	c.units[models.MasterOrgID] = primary
}

// Get returns the cached unit for org, or nil.
func (c *Cache) Get(org *models.Organization) *Unit {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.units[org.OrgID]
}

// GetOrCreate returns the cached unit for org, building it on a miss.
//
// The build runs detached from any single caller: a caller whose ctx ends stops
// waiting, while the build carries on for the others, bounded by BuildTimeout.
func (c *Cache) GetOrCreate(ctx context.Context, org *models.Organization) (*Unit, error) {
	metrics := telemetry.GetMetrics()

	if unit := c.Get(org); unit != nil {
		metrics.UnitCacheHitsTotal.Add(ctx, 1)
		return unit, nil
	}

	metrics.UnitCacheMissesTotal.Add(ctx, 1)

	ch := c.group.DoChan(org.OrgID, func() (any, error) {
		bctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.cfg.BuildTimeout)
		defer cancel()
		return c.create(bctx, org)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			log.Debug().Str("org_id", org.OrgID).Msg("Joined in-flight persistence unit build")
		}
		return res.Val.(*Unit), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Cache) create(ctx context.Context, org *models.Organization) (*Unit, error) {
	unlock, err := c.locks.lock(ctx, org.OrgID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	c.mu.RLock()
	unit, closed := c.units[org.OrgID], c.closed
	c.mu.RUnlock()
	if closed {
		return nil, ErrCacheClosed
	}
	// a build that finished between Get and DoChan already stored the unit
	if unit != nil {
		return unit, nil
	}

	info, err := c.cfg.Assigner.Assign(ctx, org)
	if err != nil {
		return nil, err
	}

	handle, err := c.cfg.Provisioner.GetOrCreatePooled(ctx, org, info)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrBuildFailure, org.OrgID, err)
	}

	unit, err = c.cfg.Factory.BuildDurable(ctx, org.OrgID, handle)
	if err != nil {
		c.release(ctx, org)
		return nil, err
	}

	if c.cfg.Scripts != nil && c.cfg.DataScript != "" {
		if err := c.cfg.Scripts.Run(ctx, org.OrgID, unit.DB(), c.cfg.DataScript, DataScriptTag); err != nil {
			_ = unit.Close(ctx)
			c.release(ctx, org)
			telemetry.GetMetrics().UnitBuildErrorsTotal.Add(ctx, 1)
			return nil, fmt.Errorf("%w: %s: seeding failed: %w", ErrBuildFailure, org.OrgID, err)
		}
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = unit.Close(ctx)
		c.release(ctx, org)
		return nil, ErrCacheClosed
	}
	c.units[org.OrgID] = unit
	c.mu.Unlock()

	telemetry.GetMetrics().UnitsCached.Add(ctx, 1)

	log.Info().
		Str("org_id", org.OrgID).
		Str("datasource_id", info.ID).
		Msg("Cached persistence unit")

	return unit, nil
}

// Remove evicts the organization's unit and releases its data source. The unit is
// not closed; callers still holding it may finish their work. A build in flight for
// the organization completes first and is then evicted.
func (c *Cache) Remove(ctx context.Context, org *models.Organization) error {
	if org.OrgID == models.MasterOrgID {
		return fmt.Errorf("%w: %s cannot be removed", ErrReservedUnit, org.OrgID)
	}

	unlock, err := c.locks.lock(ctx, org.OrgID)
	if err != nil {
		return fmt.Errorf("failed to remove unit %s: %w", org.OrgID, err)
	}
	defer unlock()

	c.mu.Lock()
	_, existed := c.units[org.OrgID]
	delete(c.units, org.OrgID)
	c.mu.Unlock()

	if existed {
		metrics := telemetry.GetMetrics()
		metrics.UnitEvictionsTotal.Add(ctx, 1)
		metrics.UnitsCached.Add(ctx, -1)
		log.Info().Str("org_id", org.OrgID).Msg("Evicted persistence unit")
	}

	if err := c.cfg.Provisioner.Release(ctx, org); err != nil {
		return fmt.Errorf("failed to release data source for %s: %w", org.OrgID, err)
	}

	return nil
}

// Names returns the cached organization ids, sorted.
func (c *Cache) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.units))
	for name := range c.units {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (c *Cache) release(ctx context.Context, org *models.Organization) {
	if err := c.cfg.Provisioner.Release(ctx, org); err != nil {
		log.Warn().Err(err).Str("org_id", org.OrgID).Msg("Failed to release data source after failed build")
	}
}

// Close closes every cached unit and empties the cache. Builds still in flight are
// discarded and later builds fail with ErrCacheClosed. Data sources stay with their
// owners; the provisioner closes tenant pools separately.
func (c *Cache) Close(ctx context.Context) error {
	c.mu.Lock()
	c.closed = true
	units := c.units
	c.units = make(map[string]*Unit)
	c.mu.Unlock()

	var errs []error
	for name, unit := range units {
		if err := unit.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to close unit %s: %w", name, err))
		}
	}
	telemetry.GetMetrics().UnitsCached.Add(ctx, -int64(len(units)))

	return errors.Join(errs...)
}
