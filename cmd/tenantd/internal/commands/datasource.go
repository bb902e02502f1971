package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/wolfeidau/tenantdb/internal/logger"
	"github.com/wolfeidau/tenantdb/internal/models"
	"github.com/wolfeidau/tenantdb/internal/store"
	postgresstore "github.com/wolfeidau/tenantdb/internal/store/postgres"
	"gopkg.in/yaml.v3"
)

type DatasourceCmd struct {
	Import DatasourceImportCmd `cmd:"" help:"Create or update descriptors from a YAML file"`
	List   DatasourceListCmd   `cmd:"" help:"List descriptors"`
}

type DatasourceImportCmd struct {
	File   string `arg:"" help:"YAML file with a datasources list" type:"existingfile"`
	Update bool   `help:"update descriptors that already exist" default:"false"`

	Postgres PostgresFlags `embed:"" prefix:"postgres-"`
}

// descriptorFile is the import document layout.
type descriptorFile struct {
	DataSources []descriptor `yaml:"datasources"`
}

type descriptor struct {
	ID             string `yaml:"id"`
	Name           string `yaml:"name"`
	URL            string `yaml:"url"`
	Username       string `yaml:"username"`
	Password       string `yaml:"password"`
	Enabled        *bool  `yaml:"enabled"`
	Shared         *bool  `yaml:"shared"`
	DepletionIndex int    `yaml:"depletion_index"`
	MaxConns       int32  `yaml:"max_conns"`
	Description    string `yaml:"description"`
}

// parseDescriptors decodes an import document. Missing ids get a fresh UUIDv7;
// enabled and shared default to true.
func parseDescriptors(r io.Reader) ([]*models.DataSourceInfo, error) {
	var doc descriptorFile
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to decode descriptors: %w", err)
	}

	now := time.Now()
	infos := make([]*models.DataSourceInfo, 0, len(doc.DataSources))
	seen := make(map[string]bool, len(doc.DataSources))

	for i, d := range doc.DataSources {
		if strings.TrimSpace(d.Name) == "" {
			return nil, fmt.Errorf("datasource %d: name is required", i)
		}
		if strings.TrimSpace(d.URL) == "" {
			return nil, fmt.Errorf("datasource %s: url is required", d.Name)
		}
		if d.DepletionIndex < 0 {
			return nil, fmt.Errorf("datasource %s: depletion_index must not be negative", d.Name)
		}

		id := d.ID
		if id == "" {
			v7, err := uuid.NewV7()
			if err != nil {
				return nil, fmt.Errorf("failed to generate id: %w", err)
			}
			id = v7.String()
		}
		if seen[id] {
			return nil, fmt.Errorf("datasource %s: duplicate id %s", d.Name, id)
		}
		seen[id] = true

		infos = append(infos, &models.DataSourceInfo{
			ID:             id,
			Name:           d.Name,
			URL:            d.URL,
			Username:       d.Username,
			Password:       d.Password,
			Enabled:        boolOr(d.Enabled, true),
			Shared:         boolOr(d.Shared, true),
			DepletionIndex: d.DepletionIndex,
			MaxConns:       d.MaxConns,
			Description:    d.Description,
			CreatedAt:      now,
			UpdatedAt:      now,
		})
	}

	return infos, nil
}

func boolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}

func (c *DatasourceImportCmd) Run(ctx context.Context, globals *Globals) error {
	log := logger.Setup(globals.Debug)

	f, err := os.Open(c.File)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", c.File, err)
	}
	defer f.Close()

	infos, err := parseDescriptors(f)
	if err != nil {
		return err
	}

	pool, err := c.Postgres.Connect(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	return importDescriptors(ctx, postgresstore.NewDataSourceInfoStore(pool), infos, c.Update, log)
}

// importDescriptors creates each descriptor, updating existing ones when update is set.
func importDescriptors(ctx context.Context, infos store.DataSourceInfoStore, descriptors []*models.DataSourceInfo, update bool, log zerolog.Logger) error {
	for _, info := range descriptors {
		err := infos.Create(ctx, info)
		switch {
		case err == nil:
			log.Info().Str("datasource_id", info.ID).Str("name", info.Name).Msg("Created data source")
		case errors.Is(err, store.ErrDataSourceInfoAlreadyExists) && update:
			existing, getErr := infos.Get(ctx, info.ID)
			if getErr != nil {
				return fmt.Errorf("failed to load %s: %w", info.ID, getErr)
			}
			info.CreatedAt = existing.CreatedAt
			if err := infos.Update(ctx, info); err != nil {
				return fmt.Errorf("failed to update %s: %w", info.ID, err)
			}
			log.Info().Str("datasource_id", info.ID).Str("name", info.Name).Msg("Updated data source")
		default:
			return fmt.Errorf("failed to import %s: %w", info.Name, err)
		}
	}
	return nil
}

type DatasourceListCmd struct {
	Postgres PostgresFlags `embed:"" prefix:"postgres-"`
}

func (c *DatasourceListCmd) Run(ctx context.Context, globals *Globals) error {
	pool, err := c.Postgres.Connect(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	infos, err := postgresstore.NewDataSourceInfoStore(pool).List(ctx)
	if err != nil {
		return err
	}

	return writeDescriptors(os.Stdout, infos)
}

func writeDescriptors(w io.Writer, infos []*models.DataSourceInfo) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tENABLED\tSHARED\tDEPLETION")
	for _, info := range infos {
		fmt.Fprintf(tw, "%s\t%s\t%t\t%t\t%d\n", info.ID, info.Name, info.Enabled, info.Shared, info.DepletionIndex)
	}
	return tw.Flush()
}
