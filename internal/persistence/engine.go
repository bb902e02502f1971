package persistence

import (
	"context"

	"github.com/wolfeidau/tenantdb/internal/datasource"
)

// BuildConfig is everything the engine needs to build a unit. Schema listeners
// receive it before a transient build is finalized and may modify it.
type BuildConfig struct {
	UnitName   string
	DataSource datasource.Handle
	Packages   []string
	Properties map[string]any
	JTA        bool
	Transient  bool
}

// Mapping is the compiled mapping the engine produces for a unit.
type Mapping interface {
	// Entities lists mapped entity names in registration order.
	Entities() []string
	Close() error
}

// Engine compiles mapped packages against a data source.
type Engine interface {
	Build(ctx context.Context, cfg *BuildConfig) (Mapping, error)
}
