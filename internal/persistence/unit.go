package persistence

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/wolfeidau/tenantdb/internal/datasource"
)

// Unit is a built persistence unit: compiled mapping plus its bound data source.
type Unit struct {
	name       string
	handle     datasource.Handle
	mapping    Mapping
	packages   []string
	properties map[string]any
	transient  bool
	ownsHandle bool

	closeOnce sync.Once
	closeErr  error
	closed    chan struct{}
}

func newUnit(cfg *BuildConfig, mapping Mapping) *Unit {
	return &Unit{
		name:       cfg.UnitName,
		handle:     cfg.DataSource,
		mapping:    mapping,
		packages:   append([]string(nil), cfg.Packages...),
		properties: cloneProperties(cfg.Properties),
		transient:  cfg.Transient,
		closed:     make(chan struct{}),
	}
}

// NewPrimaryUnit wraps an externally built mapping and data source as the
// reserved primary unit.
func NewPrimaryUnit(name string, handle datasource.Handle, mapping Mapping) *Unit {
	return newUnit(&BuildConfig{UnitName: name, DataSource: handle}, mapping)
}

func (u *Unit) Name() string                  { return u.name }
func (u *Unit) DataSource() datasource.Handle { return u.handle }
func (u *Unit) DB() datasource.Querier        { return u.handle.DB() }
func (u *Unit) Mapping() Mapping              { return u.mapping }
func (u *Unit) Transient() bool               { return u.transient }

// Packages returns the mapped package scopes in build order.
func (u *Unit) Packages() []string {
	return append([]string(nil), u.packages...)
}

// Property returns a build property.
func (u *Unit) Property(key string) (any, bool) {
	v, ok := u.properties[key]
	return v, ok
}

// InTx runs fn in a transaction on the unit's data source, committing when fn
// returns nil.
func (u *Unit) InTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	select {
	case <-u.closed:
		return ErrUnitClosed
	default:
	}

	tx, err := u.handle.DB().Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback is safe to call after commit

	if err := fn(tx); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// Close releases the mapping. The data source is closed only when the unit owns
// it; durable units share pools owned by the provisioner.
func (u *Unit) Close(ctx context.Context) error {
	u.closeOnce.Do(func() {
		close(u.closed)
		var errs []error
		if u.mapping != nil {
			errs = append(errs, u.mapping.Close())
		}
		if u.ownsHandle && u.handle != nil {
			errs = append(errs, u.handle.Close(ctx))
		}
		u.closeErr = errors.Join(errs...)
	})
	return u.closeErr
}
