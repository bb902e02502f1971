package persistence

import (
	"context"
	"errors"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/require"
)

func TestCatalog_Build(t *testing.T) {
	ctx := context.Background()

	newCatalog := func() *Catalog {
		c := NewCatalog()
		c.Register("security",
			Entity{Name: "users", DDL: "CREATE TABLE users ()"},
			Entity{Name: "roles", DDL: "CREATE TABLE roles ()"},
		)
		c.Register("notify", Entity{Name: "notifications", DDL: "CREATE TABLE notifications ()"})
		return c
	}

	t.Run("unknown package", func(t *testing.T) {
		_, err := newCatalog().Build(ctx, &BuildConfig{
			UnitName:   "org-1",
			DataSource: newFakeHandle("ds-1", true),
			Packages:   []string{"security", "missing"},
		})
		require.ErrorIs(t, err, ErrUnknownPackage)
	})

	t.Run("unreachable data source", func(t *testing.T) {
		h := newFakeHandle("ds-1", true)
		h.pingErr = errors.New("connection refused")

		_, err := newCatalog().Build(ctx, &BuildConfig{UnitName: "org-1", DataSource: h, Packages: []string{"security"}})
		require.ErrorContains(t, err, "unreachable")
	})

	t.Run("no ddl unless asked", func(t *testing.T) {
		h := newFakeHandle("ds-1", true)

		m, err := newCatalog().Build(ctx, &BuildConfig{
			UnitName:   "org-1",
			DataSource: h,
			Packages:   []string{"notify", "security"},
			Properties: map[string]any{},
		})
		require.NoError(t, err)
		require.Equal(t, []string{"notifications", "users", "roles"}, m.Entities())
		require.Empty(t, h.db.Execs())
	})

	t.Run("ddl in entity order with duplicate packages applied once", func(t *testing.T) {
		h := newFakeHandle("ds-1", false)

		m, err := newCatalog().Build(ctx, &BuildConfig{
			UnitName:   "org-1",
			DataSource: h,
			Packages:   []string{"security", "notify", "security"},
			Properties: map[string]any{PropertyGenerateDDL: true},
		})
		require.NoError(t, err)
		require.Equal(t, []string{"users", "roles", "notifications"}, m.Entities())
		require.Equal(t, []string{
			"CREATE TABLE users ()",
			"CREATE TABLE roles ()",
			"CREATE TABLE notifications ()",
		}, h.db.Execs())
		require.Equal(t, 1, h.db.commits)
	})

	t.Run("ddl failure", func(t *testing.T) {
		h := newFakeHandle("ds-1", false)
		h.db.execErr = errors.New("permission denied")

		_, err := newCatalog().Build(ctx, &BuildConfig{
			UnitName:   "org-1",
			DataSource: h,
			Packages:   []string{"security"},
			Properties: map[string]any{PropertyDDLAuto: "create"},
		})
		require.ErrorContains(t, err, "users")
		require.Equal(t, 0, h.db.commits)
	})
}

func TestLoadCatalog(t *testing.T) {
	fsys := fstest.MapFS{
		"m/billing/2_invoices.sql": {Data: []byte("CREATE TABLE invoices ()")},
		"m/billing/1_accounts.sql": {Data: []byte("CREATE TABLE accounts ()")},
		"m/billing/README.md":      {Data: []byte("ignored")},
		"m/stray.sql":              {Data: []byte("ignored")},
	}

	c, err := LoadCatalog(fsys, "m")
	require.NoError(t, err)
	require.Equal(t, 1, c.Packages())

	entities, err := c.resolve([]string{"billing"})
	require.NoError(t, err)
	require.Len(t, entities, 2)
	require.Equal(t, "accounts", entities[0].Name)
	require.Equal(t, "invoices", entities[1].Name)
}

func TestDefaultCatalog(t *testing.T) {
	c, err := DefaultCatalog()
	require.NoError(t, err)

	_, err = c.resolve(MergePackages(DefaultPackagesToScan))
	require.NoError(t, err)
}
