package commands

import (
	"context"
	"fmt"

	"github.com/wolfeidau/tenantdb/internal/logger"
)

type AllocateCmd struct {
	OrgID string `arg:"" help:"organization id"`

	Postgres PostgresFlags `embed:"" prefix:"postgres-"`
	Tenant   TenantFlags   `embed:"" prefix:"tenant-"`
}

func (c *AllocateCmd) Run(ctx context.Context, globals *Globals) error {
	log := logger.Setup(globals.Debug)

	rt, err := newRuntime(ctx, log, &c.Postgres, &c.Tenant)
	if err != nil {
		return err
	}
	defer rt.Close(ctx)

	org, err := rt.organization(ctx, c.OrgID)
	if err != nil {
		return err
	}

	info, err := rt.allocator.AssignShared(ctx, org)
	if err != nil {
		return err
	}

	fmt.Printf("%s\t%s\t%s\n", org.OrgID, info.ID, info.Name)
	return nil
}

type ProvisionCmd struct {
	OrgID string `arg:"" help:"organization id"`
	Seed  bool   `help:"build the durable unit afterwards, running the data script" default:"false"`

	Postgres PostgresFlags `embed:"" prefix:"postgres-"`
	Tenant   TenantFlags   `embed:"" prefix:"tenant-"`
}

func (c *ProvisionCmd) Run(ctx context.Context, globals *Globals) error {
	log := logger.Setup(globals.Debug)

	rt, err := newRuntime(ctx, log, &c.Postgres, &c.Tenant)
	if err != nil {
		return err
	}
	defer rt.Close(ctx)

	org, err := rt.organization(ctx, c.OrgID)
	if err != nil {
		return err
	}

	if err := rt.schema.Provision(ctx, org); err != nil {
		return err
	}

	if c.Seed {
		if _, err := rt.cache.GetOrCreate(ctx, org); err != nil {
			return err
		}
	}

	log.Info().Str("org_id", org.OrgID).Bool("seeded", c.Seed).Msg("Provisioned organization")
	return nil
}
