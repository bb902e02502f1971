package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/wolfeidau/tenantdb/internal/jta"
	"github.com/wolfeidau/tenantdb/internal/persistence"
	postgresstore "github.com/wolfeidau/tenantdb/internal/store/postgres"
)

type Globals struct {
	Debug   bool
	Version string
}

func configureHTTPServer(addr string, handler http.Handler) *http.Server {
	// Create HTTP server
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Minute,
		WriteTimeout:      5 * time.Minute,
		IdleTimeout:       5 * time.Minute,
		MaxHeaderBytes:    8 * 1024, // 8KiB
	}
}

// PostgresFlags configures the control database holding organizations and descriptors.
type PostgresFlags struct {
	// Connection Configuration
	ConnString string        `help:"PostgreSQL connection string" env:"TENANTDB_POSTGRES_CONNECTION_STRING"`
	RetryFor   time.Duration `help:"keep retrying the initial connection for this long" default:"30s" env:"TENANTDB_POSTGRES_RETRY_FOR"`

	// Connection Pool Configuration
	MaxConns        int32         `help:"maximum number of connections in pool" default:"20"`
	MinConns        int32         `help:"minimum number of connections in pool" default:"2"`
	MaxConnLifetime time.Duration `help:"maximum connection lifetime" default:"1h"`
	MaxConnIdleTime time.Duration `help:"maximum connection idle time" default:"30m"`

	// Migration Configuration
	AutoMigrate bool `help:"run database migrations on startup" default:"false" env:"TENANTDB_POSTGRES_AUTO_MIGRATE"`
}

func (p *PostgresFlags) Validate() error {
	if p.ConnString == "" {
		return errors.New("PostgreSQL connection string is required (--postgres-conn-string or TENANTDB_POSTGRES_CONNECTION_STRING)")
	}
	return nil
}

func (p *PostgresFlags) PoolConfig() *postgresstore.PoolConfig {
	return &postgresstore.PoolConfig{
		ConnString:      p.ConnString,
		MaxConns:        p.MaxConns,
		MinConns:        p.MinConns,
		MaxConnLifetime: p.MaxConnLifetime,
		MaxConnIdleTime: p.MaxConnIdleTime,
	}
}

// Connect opens the control pool, running migrations first when AutoMigrate is set.
func (p *PostgresFlags) Connect(ctx context.Context) (*pgxpool.Pool, error) {
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate postgres flags: %w", err)
	}

	pool, err := postgresstore.ConnectWithRetry(ctx, p.PoolConfig(), p.RetryFor)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to control database: %w", err)
	}

	if p.AutoMigrate {
		if err := postgresstore.RunMigrations(ctx, pool); err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	return pool, nil
}

// TenantFlags configures tenant data sources and the units built on them.
type TenantFlags struct {
	// Packages
	PackagesToScan       string `help:"comma-separated base packages mapped by every unit" default:"${default_packages}" env:"TENANTDB_PACKAGES_TO_SCAN"`
	CustomPackagesToScan string `help:"comma-separated packages appended for durable units" default:"" env:"TENANTDB_CUSTOM_PACKAGES_TO_SCAN"`

	// Seeding
	DataScript string `help:"comma-separated seeding scripts or directories, relative to --script-dir" default:"" env:"TENANTDB_DATA_SCRIPT"`
	ScriptDir  string `help:"root directory for seeding scripts" default:"." env:"TENANTDB_SCRIPT_DIR"`

	BuildTimeout time.Duration `help:"upper bound for building and seeding one tenant unit" default:"2m" env:"TENANTDB_BUILD_TIMEOUT"`

	// Tenant Pool Configuration
	MaxConns int32 `help:"maximum connections per tenant pool" default:"10" env:"TENANTDB_TENANT_MAX_CONNS"`
	MinConns int32 `help:"minimum connections per tenant pool" default:"0" env:"TENANTDB_TENANT_MIN_CONNS"`

	// Vendor settings
	ShowSQL          bool              `help:"echo tenant SQL statements" default:"false" env:"TENANTDB_SHOW_SQL"`
	GenerateDDL      bool              `help:"apply mapped DDL when building durable units" default:"false" env:"TENANTDB_GENERATE_DDL"`
	Database         string            `help:"database kind passed to the engine" default:"postgresql" env:"TENANTDB_DATABASE"`
	DatabasePlatform string            `help:"SQL dialect passed to the engine" default:"" env:"TENANTDB_DATABASE_PLATFORM"`
	Property         map[string]string `help:"extra engine property (key=value), wins over inferred settings"`

	JTA JTAFlags `embed:"" prefix:"jta-"`
}

// JTAFlags describe the distributed-transaction environment.
type JTAFlags struct {
	Coordinator     string `help:"name of the distributed transaction coordinator, empty for none" default:"" env:"TENANTDB_JTA_COORDINATOR"`
	Synchronization bool   `help:"coordinator supports synchronization callbacks" default:"true" env:"TENANTDB_JTA_SYNCHRONIZATION"`
	Server          string `help:"application server kind (generic, websphere)" default:"generic" env:"TENANTDB_JTA_SERVER" enum:"generic,websphere"`
	Naming          bool   `help:"a naming service is available for platform lookups" default:"false" env:"TENANTDB_JTA_NAMING"`
}

func (j *JTAFlags) Environment() (jta.Environment, error) {
	server, err := jta.ParseServerKind(j.Server)
	if err != nil {
		return jta.Environment{}, err
	}
	return jta.Environment{
		Coordinator:     jta.NewCoordinator(j.Coordinator, j.Synchronization),
		Server:          server,
		NamingAvailable: j.Naming,
	}, nil
}

func (t *TenantFlags) FactoryConfig() persistence.FactoryConfig {
	return persistence.FactoryConfig{
		PackagesToScan:       t.PackagesToScan,
		CustomPackagesToScan: t.CustomPackagesToScan,
		Vendor: persistence.VendorSettings{
			ShowSQL:          t.ShowSQL,
			GenerateDDL:      t.GenerateDDL,
			Database:         t.Database,
			DatabasePlatform: t.DatabasePlatform,
			Properties:       t.Property,
		},
	}
}
