package datasource

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/tenantdb/internal/models"
	"github.com/wolfeidau/tenantdb/internal/store/postgres"
	"golang.org/x/sync/singleflight"
)

// Resolver finds the descriptor currently assigned to an organization.
type Resolver interface {
	Resolve(ctx context.Context, org *models.Organization) (*models.DataSourceInfo, error)
}

// PoolOpener creates a pool, postgres.NewPool unless overridden.
type PoolOpener func(ctx context.Context, cfg *postgres.PoolConfig) (*pgxpool.Pool, error)

// Config holds the defaults applied to tenant connections.
type Config struct {
	// Pool settings for tenant pools; ConnString is ignored.
	Pool postgres.PoolConfig
	// Tracer is attached to every tenant connection when set.
	Tracer pgx.QueryTracer
	// Opener overrides how pools are created.
	Opener PoolOpener
}

// Provisioner owns the tenant connection pools. Pools are keyed by descriptor, so
// tenants on the same shared descriptor share one pool.
type Provisioner struct {
	cfg      Config
	resolver Resolver

	mu      sync.Mutex
	pools   map[string]*Pool  // datasource_id -> pool
	tenants map[string]string // org_id -> datasource_id
	group   singleflight.Group
}

// NewProvisioner creates a provisioner. resolver backs CreateSingle.
func NewProvisioner(cfg Config, resolver Resolver) *Provisioner {
	if cfg.Opener == nil {
		cfg.Opener = postgres.NewPool
	}
	return &Provisioner{
		cfg:      cfg,
		resolver: resolver,
		pools:    make(map[string]*Pool),
		tenants:  make(map[string]string),
	}
}

// GetOrCreatePooled returns the pool for info, opening it on first use, and binds org to it.
func (p *Provisioner) GetOrCreatePooled(ctx context.Context, org *models.Organization, info *models.DataSourceInfo) (Handle, error) {
	p.mu.Lock()
	if pool, ok := p.pools[info.ID]; ok {
		p.tenants[org.OrgID] = info.ID
		p.mu.Unlock()
		return pool, nil
	}
	p.mu.Unlock()

	v, err, _ := p.group.Do(info.ID, func() (any, error) {
		p.mu.Lock()
		if pool, ok := p.pools[info.ID]; ok {
			p.mu.Unlock()
			return pool, nil
		}
		p.mu.Unlock()

		cfg := p.poolConfig(info)
		pgxPool, err := p.cfg.Opener(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to open pool for data source %s: %w", info.ID, err)
		}

		pool := &Pool{id: info.ID, shared: info.Shared, pool: pgxPool}

		p.mu.Lock()
		p.pools[info.ID] = pool
		p.mu.Unlock()

		log.Info().
			Str("datasource_id", info.ID).
			Bool("shared", info.Shared).
			Int32("max_conns", cfg.MaxConns).
			Msg("Opened tenant pool")

		return pool, nil
	})
	if err != nil {
		return nil, err
	}

	pool := v.(*Pool)

	p.mu.Lock()
	p.tenants[org.OrgID] = info.ID
	p.mu.Unlock()

	return pool, nil
}

// CreateSingle opens a single, non-pooled connection to the organization's data
// source. It returns nil without error when the organization has no data source.
func (p *Provisioner) CreateSingle(ctx context.Context, org *models.Organization) (Handle, error) {
	info, err := p.resolver.Resolve(ctx, org)
	if err != nil {
		return nil, err
	}
	if info == nil {
		return nil, nil
	}

	connCfg, err := pgx.ParseConfig(ConnString(info))
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string for data source %s: %w", info.ID, err)
	}
	if p.cfg.Pool.ConnectTimeout > 0 {
		connCfg.ConnectTimeout = p.cfg.Pool.ConnectTimeout
	}
	if p.cfg.Tracer != nil {
		connCfg.Tracer = p.cfg.Tracer
	}

	conn, err := pgx.ConnectConfig(ctx, connCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to data source %s: %w", info.ID, err)
	}

	log.Debug().Str("org_id", org.OrgID).Str("datasource_id", info.ID).Msg("Opened single connection")

	return &Conn{id: info.ID, conn: conn}, nil
}

// Release unbinds org. A dedicated descriptor's pool is closed once no tenant is
// bound to it; shared pools stay open for the other tenants.
func (p *Provisioner) Release(ctx context.Context, org *models.Organization) error {
	p.mu.Lock()
	id, ok := p.tenants[org.OrgID]
	if !ok {
		p.mu.Unlock()
		return nil
	}
	delete(p.tenants, org.OrgID)

	pool, ok := p.pools[id]
	if !ok || pool.shared || p.boundLocked(id) {
		p.mu.Unlock()
		return nil
	}
	delete(p.pools, id)
	p.mu.Unlock()

	log.Info().Str("org_id", org.OrgID).Str("datasource_id", id).Msg("Closing dedicated tenant pool")

	return pool.Close(ctx)
}

// Pools returns the number of open tenant pools.
func (p *Provisioner) Pools() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pools)
}

// Close closes every tenant pool.
func (p *Provisioner) Close() {
	p.mu.Lock()
	pools := p.pools
	p.pools = make(map[string]*Pool)
	p.tenants = make(map[string]string)
	p.mu.Unlock()

	for _, pool := range pools {
		_ = pool.Close(context.Background())
	}
}

func (p *Provisioner) boundLocked(id string) bool {
	for _, bound := range p.tenants {
		if bound == id {
			return true
		}
	}
	return false
}

func (p *Provisioner) poolConfig(info *models.DataSourceInfo) *postgres.PoolConfig {
	cfg := p.cfg.Pool
	cfg.ConnString = ConnString(info)
	if info.MaxConns > 0 {
		cfg.MaxConns = info.MaxConns
	}
	if p.cfg.Tracer != nil {
		cfg.Tracer = p.cfg.Tracer
	}
	return &cfg
}

// ConnString builds the connection string for a descriptor. Credentials on the
// descriptor override any embedded in a URL-form connection string.
func ConnString(info *models.DataSourceInfo) string {
	if info.Username == "" {
		return info.URL
	}

	if !strings.Contains(info.URL, "://") {
		kv := info.URL + " user=" + quoteValue(info.Username)
		if info.Password != "" {
			kv += " password=" + quoteValue(info.Password)
		}
		return strings.TrimSpace(kv)
	}

	u, err := url.Parse(info.URL)
	if err != nil {
		return info.URL
	}
	if info.Password != "" {
		u.User = url.UserPassword(info.Username, info.Password)
	} else {
		u.User = url.User(info.Username)
	}
	return u.String()
}

func quoteValue(v string) string {
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `\'`)
	return "'" + v + "'"
}
