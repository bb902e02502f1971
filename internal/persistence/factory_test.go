package persistence

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/tenantdb/internal/jta"
)

func TestFactory_Packages(t *testing.T) {
	f := newTestFactory(&fakeEngine{})
	require.Equal(t, []string{"security", "notify"}, f.BasePackages())
	require.Equal(t, []string{"security", "notify", "billing"}, f.MergedPackages())
}

func TestFactory_NewBuildConfig(t *testing.T) {
	handle := newFakeHandle("ds-1", true)

	t.Run("no coordinator sets no-JTA platform", func(t *testing.T) {
		cfg, err := newTestFactory(&fakeEngine{}).NewBuildConfig("org-1", handle, []string{"security"}, false)
		require.NoError(t, err)
		require.False(t, cfg.JTA)
		p, ok := cfg.Properties[jta.PropertyPlatform].(jta.Platform)
		require.True(t, ok)
		require.Equal(t, jta.NoPlatformCandidates[0], p.Name())
	})

	t.Run("explicit platform property is kept", func(t *testing.T) {
		f := NewFactory(&fakeEngine{}, jta.NewResolver(jta.Environment{}, jta.NewRegistry()), FactoryConfig{
			Vendor: VendorSettings{Properties: map[string]string{jta.PropertyPlatform: "explicit"}},
		})
		cfg, err := f.NewBuildConfig("org-1", handle, nil, false)
		require.NoError(t, err)
		require.Equal(t, "explicit", cfg.Properties[jta.PropertyPlatform])
	})

	t.Run("platform resolution failure aborts the build", func(t *testing.T) {
		f := NewFactory(&fakeEngine{}, jta.NewResolver(jta.Environment{}, jta.NewRegistry()), FactoryConfig{})
		_, err := f.NewBuildConfig("org-1", handle, nil, false)
		require.ErrorIs(t, err, ErrBuildFailure)
		require.ErrorIs(t, err, jta.ErrPlatformResolution)
	})
}

func TestFactory_BuildDurable(t *testing.T) {
	ctx := context.Background()

	t.Run("merged packages on pooled data source", func(t *testing.T) {
		engine := &fakeEngine{}
		handle := newFakeHandle("ds-1", true)

		unit, err := newTestFactory(engine).BuildDurable(ctx, "org-1", handle)
		require.NoError(t, err)
		require.Equal(t, "org-1", unit.Name())
		require.Equal(t, []string{"security", "notify", "billing"}, unit.Packages())
		require.False(t, unit.Transient())
		require.Same(t, handle, unit.DataSource())

		// closing a durable unit leaves the shared pool open
		require.NoError(t, unit.Close(ctx))
		require.False(t, handle.closed.Load())
	})

	t.Run("engine failure surfaces as build failure", func(t *testing.T) {
		engine := &fakeEngine{err: ErrUnknownPackage}
		_, err := newTestFactory(engine).BuildDurable(ctx, "org-1", newFakeHandle("ds-1", true))
		require.ErrorIs(t, err, ErrBuildFailure)
		require.ErrorIs(t, err, ErrUnknownPackage)
		require.Equal(t, int32(1), engine.builds.Load())
	})
}

func TestUnit_InTxAfterClose(t *testing.T) {
	ctx := context.Background()
	handle := newFakeHandle("ds-1", true)
	unit, err := newTestFactory(&fakeEngine{}).BuildDurable(ctx, "org-1", handle)
	require.NoError(t, err)

	require.NoError(t, unit.InTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, "SELECT 1")
		return err
	}))
	require.Equal(t, []string{"SELECT 1"}, handle.db.Execs())
	require.Equal(t, 1, handle.db.commits)

	require.NoError(t, unit.Close(ctx))
	require.ErrorIs(t, unit.InTx(ctx, func(tx pgx.Tx) error { return nil }), ErrUnitClosed)
}
