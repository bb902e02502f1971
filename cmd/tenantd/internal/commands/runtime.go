package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/wolfeidau/tenantdb/internal/allocator"
	"github.com/wolfeidau/tenantdb/internal/datasource"
	"github.com/wolfeidau/tenantdb/internal/jta"
	"github.com/wolfeidau/tenantdb/internal/logger"
	"github.com/wolfeidau/tenantdb/internal/models"
	"github.com/wolfeidau/tenantdb/internal/persistence"
	"github.com/wolfeidau/tenantdb/internal/script"
	"github.com/wolfeidau/tenantdb/internal/store"
	postgresstore "github.com/wolfeidau/tenantdb/internal/store/postgres"
)

// runtime is the wired service graph shared by serve, allocate and provision.
type runtime struct {
	pool          *pgxpool.Pool
	organizations store.OrganizationStore
	infos         store.DataSourceInfoStore
	allocator     *allocator.Allocator
	provisioner   *datasource.Provisioner
	factory       *persistence.Factory
	schema        *persistence.SchemaService
	cache         *persistence.Cache
}

func newRuntime(ctx context.Context, log zerolog.Logger, pg *PostgresFlags, tenant *TenantFlags) (*runtime, error) {
	pool, err := pg.Connect(ctx)
	if err != nil {
		return nil, err
	}

	rt := &runtime{
		pool:          pool,
		organizations: postgresstore.NewOrganizationStore(pool),
	}
	rt.infos = postgresstore.NewDataSourceInfoStore(pool)
	rt.allocator = allocator.New(rt.infos, rt.organizations)

	provisionerCfg := datasource.Config{
		Pool: postgresstore.PoolConfig{
			MaxConns: tenant.MaxConns,
			MinConns: tenant.MinConns,
		},
	}
	if tenant.ShowSQL {
		provisionerCfg.Tracer = logger.NewSQLTracer(log)
	}
	rt.provisioner = datasource.NewProvisioner(provisionerCfg, rt.allocator)

	env, err := tenant.JTA.Environment()
	if err != nil {
		rt.Close(ctx)
		return nil, fmt.Errorf("invalid JTA settings: %w", err)
	}
	resolver := jta.NewResolver(env, jta.DefaultRegistry())

	catalog, err := persistence.DefaultCatalog()
	if err != nil {
		rt.Close(ctx)
		return nil, fmt.Errorf("failed to load mapping catalog: %w", err)
	}
	rt.factory = persistence.NewFactory(catalog, resolver, tenant.FactoryConfig())
	rt.schema = persistence.NewSchemaService(rt.factory, rt.provisioner)

	rt.cache = persistence.NewCache(persistence.CacheConfig{
		Factory:      rt.factory,
		Assigner:     rt.allocator,
		Provisioner:  rt.provisioner,
		Scripts:      script.NewRunner(os.DirFS(tenant.ScriptDir)),
		DataScript:   tenant.DataScript,
		BuildTimeout: tenant.BuildTimeout,
	})

	log.Info().
		Bool("jta", env.JTA()).
		Str("server", string(env.Server)).
		Strs("packages", rt.factory.MergedPackages()).
		Msg("Tenant runtime ready")

	return rt, nil
}

// initPrimary builds the reserved master unit on the control pool and seeds the cache.
func (rt *runtime) initPrimary(ctx context.Context) error {
	handle := datasource.NewPool(models.MasterOrgID, rt.pool)
	primary, err := rt.factory.BuildDurable(ctx, models.MasterOrgID, handle)
	if err != nil {
		return fmt.Errorf("failed to build primary unit: %w", err)
	}
	rt.cache.Init(primary)
	return nil
}

// organization loads orgID from the control database.
func (rt *runtime) organization(ctx context.Context, orgID string) (*models.Organization, error) {
	org, err := rt.organizations.Get(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to load organization %s: %w", orgID, err)
	}
	return org, nil
}

func (rt *runtime) Close(ctx context.Context) {
	if rt.cache != nil {
		_ = rt.cache.Close(ctx)
	}
	if rt.provisioner != nil {
		rt.provisioner.Close()
	}
	rt.pool.Close()
}
