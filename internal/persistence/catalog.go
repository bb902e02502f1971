package persistence

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
)

// Entity is a mapped table and the DDL that creates it.
type Entity struct {
	Name string
	DDL  string
}

// Catalog is an Engine over a registry of mapped packages.
type Catalog struct {
	mu       sync.RWMutex
	packages map[string][]Entity
}

// NewCatalog creates an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{packages: make(map[string][]Entity)}
}

// Register adds entities to a package, creating it if needed.
func (c *Catalog) Register(pkg string, entities ...Entity) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.packages[pkg] = append(c.packages[pkg], entities...)
}

// Packages returns the number of registered packages.
func (c *Catalog) Packages() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.packages)
}

// Build resolves cfg.Packages, verifies the data source is reachable and applies
// the entity DDL in one transaction when the properties ask for it.
func (c *Catalog) Build(ctx context.Context, cfg *BuildConfig) (Mapping, error) {
	entities, err := c.resolve(cfg.Packages)
	if err != nil {
		return nil, err
	}

	if cfg.DataSource == nil {
		return nil, fmt.Errorf("unit %s has no data source", cfg.UnitName)
	}
	if err := cfg.DataSource.Ping(ctx); err != nil {
		return nil, fmt.Errorf("data source unreachable: %w", err)
	}

	if generatesDDL(cfg.Properties) {
		if err := applyDDL(ctx, cfg, entities); err != nil {
			return nil, err
		}
	}

	names := make([]string, len(entities))
	for i, e := range entities {
		names[i] = e.Name
	}

	return &compiledMapping{entities: names}, nil
}

// resolve maps package names to entities. A package listed twice contributes its
// entities once.
func (c *Catalog) resolve(packages []string) ([]Entity, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	seen := make(map[string]bool)
	var entities []Entity
	for _, pkg := range packages {
		pkgEntities, ok := c.packages[pkg]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownPackage, pkg)
		}
		for _, e := range pkgEntities {
			if seen[e.Name] {
				continue
			}
			seen[e.Name] = true
			entities = append(entities, e)
		}
	}
	return entities, nil
}

func applyDDL(ctx context.Context, cfg *BuildConfig, entities []Entity) error {
	tx, err := cfg.DataSource.DB().Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin schema transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback is safe to call after commit

	for _, e := range entities {
		if _, err := tx.Exec(ctx, e.DDL); err != nil {
			return fmt.Errorf("failed to create entity %s: %w", e.Name, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit schema: %w", err)
	}

	log.Info().
		Str("unit", cfg.UnitName).
		Int("entities", len(entities)).
		Msg("Generated schema")

	return nil
}

type compiledMapping struct {
	entities []string
}

func (m *compiledMapping) Entities() []string { return m.entities }
func (m *compiledMapping) Close() error       { return nil }
