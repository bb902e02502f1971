package commands

import (
	"context"
	"fmt"

	"github.com/wolfeidau/tenantdb/internal/logger"
	postgresstore "github.com/wolfeidau/tenantdb/internal/store/postgres"
)

type MigrateCmd struct {
	Postgres PostgresFlags `embed:"" prefix:"postgres-"`
}

func (c *MigrateCmd) Run(ctx context.Context, globals *Globals) error {
	log := logger.Setup(globals.Debug)

	c.Postgres.AutoMigrate = false
	pool, err := c.Postgres.Connect(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := postgresstore.RunMigrations(ctx, pool); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	log.Info().Msg("Control database is up to date")
	return nil
}
