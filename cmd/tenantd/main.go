package main

import (
	"context"

	"github.com/alecthomas/kong"
	"github.com/wolfeidau/tenantdb/cmd/tenantd/internal/commands"
	"github.com/wolfeidau/tenantdb/internal/persistence"
)

var (
	version = "dev"
	cli     struct {
		Debug      bool `help:"Enable debug mode." env:"TENANTDB_DEBUG"`
		Version    kong.VersionFlag
		Serve      commands.ServeCmd      `cmd:"" help:"Start the admin API server"`
		Migrate    commands.MigrateCmd    `cmd:"" help:"Apply control database migrations"`
		Datasource commands.DatasourceCmd `cmd:"" help:"Manage data source descriptors"`
		Allocate   commands.AllocateCmd   `cmd:"" help:"Assign a data source to an organization"`
		Provision  commands.ProvisionCmd  `cmd:"" help:"Create the schema of an organization's data source"`
	}
)

func main() {
	ctx := context.Background()
	cmd := kong.Parse(&cli,
		kong.Name("tenantd"),
		kong.Vars{
			"version":          version,
			"default_packages": persistence.DefaultPackagesToScan,
		},
		kong.BindTo(ctx, (*context.Context)(nil)))
	err := cmd.Run(&commands.Globals{Debug: cli.Debug, Version: version})
	cmd.FatalIfErrorf(err)
}
