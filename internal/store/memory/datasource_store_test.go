package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/tenantdb/internal/models"
	"github.com/wolfeidau/tenantdb/internal/store"
)

func newInfo(id string, depletion int, enabled, shared bool) *models.DataSourceInfo {
	return &models.DataSourceInfo{
		ID:             id,
		Name:           id,
		URL:            "postgres://localhost/" + id,
		Enabled:        enabled,
		Shared:         shared,
		DepletionIndex: depletion,
	}
}

func TestDataSourceInfoStore_CRUD(t *testing.T) {
	ctx := context.Background()
	orgs := NewOrganizationStore()
	s := NewDataSourceInfoStore(orgs)

	require.NoError(t, s.Create(ctx, newInfo("a", 1, true, true)))
	require.ErrorIs(t, s.Create(ctx, newInfo("a", 1, true, true)), store.ErrDataSourceInfoAlreadyExists)

	got, err := s.Get(ctx, "a")
	require.NoError(t, err)
	got.DepletionIndex = 7
	require.NoError(t, s.Update(ctx, got))

	got, err = s.Get(ctx, "a")
	require.NoError(t, err)
	require.Equal(t, 7, got.DepletionIndex)

	require.NoError(t, orgs.Create(ctx, &models.Organization{OrgID: "acme", DataSourceInfoID: "a"}))
	require.ErrorIs(t, s.Delete(ctx, "a"), store.ErrDataSourceInfoInUse)

	require.NoError(t, orgs.Delete(ctx, "acme"))
	require.NoError(t, s.Delete(ctx, "a"))
	require.ErrorIs(t, s.Delete(ctx, "a"), store.ErrDataSourceInfoNotFound)
	require.ErrorIs(t, s.Update(ctx, newInfo("a", 1, true, true)), store.ErrDataSourceInfoNotFound)
}

func TestDataSourceInfoStore_List(t *testing.T) {
	ctx := context.Background()
	s := NewDataSourceInfoStore(nil)

	for _, id := range []string{"z", "m", "a"} {
		require.NoError(t, s.Create(ctx, newInfo(id, 0, true, true)))
	}

	infos, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, infos, 3)
	require.Equal(t, "z", infos[0].ID)
	require.Equal(t, "m", infos[1].ID)
	require.Equal(t, "a", infos[2].ID)
}

func TestDataSourceInfoStore_GetEnabledShared(t *testing.T) {
	ctx := context.Background()
	s := NewDataSourceInfoStore(nil)

	require.NoError(t, s.Create(ctx, newInfo("ok", 0, true, true)))
	require.NoError(t, s.Create(ctx, newInfo("disabled", 0, false, true)))
	require.NoError(t, s.Create(ctx, newInfo("dedicated", 0, true, false)))

	tests := []struct {
		id      string
		wantErr bool
	}{
		{id: "ok"},
		{id: "disabled", wantErr: true},
		{id: "dedicated", wantErr: true},
		{id: "missing", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			info, err := s.GetEnabledShared(ctx, tt.id)
			if tt.wantErr {
				require.ErrorIs(t, err, store.ErrDataSourceInfoNotFound)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.id, info.ID)
		})
	}
}

func TestDataSourceInfoStore_LeastDepleted(t *testing.T) {
	ctx := context.Background()

	t.Run("minimum among eligible", func(t *testing.T) {
		s := NewDataSourceInfoStore(nil)
		require.NoError(t, s.Create(ctx, newInfo("A", 5, true, true)))
		require.NoError(t, s.Create(ctx, newInfo("B", 2, true, true)))
		require.NoError(t, s.Create(ctx, newInfo("C", 0, true, false)))
		require.NoError(t, s.Create(ctx, newInfo("D", 1, false, true)))

		info, err := s.LeastDepleted(ctx)
		require.NoError(t, err)
		require.Equal(t, "B", info.ID)
	})

	t.Run("ties resolve to storage order", func(t *testing.T) {
		s := NewDataSourceInfoStore(nil)
		require.NoError(t, s.Create(ctx, newInfo("second", 3, true, true)))
		require.NoError(t, s.Create(ctx, newInfo("first", 3, true, true)))

		info, err := s.LeastDepleted(ctx)
		require.NoError(t, err)
		require.Equal(t, "second", info.ID)
	})

	t.Run("none eligible", func(t *testing.T) {
		s := NewDataSourceInfoStore(nil)
		require.NoError(t, s.Create(ctx, newInfo("off", 0, false, true)))

		_, err := s.LeastDepleted(ctx)
		require.ErrorIs(t, err, store.ErrDataSourceInfoNotFound)
	})
}

func TestDataSourceInfoStore_GetByOrganization(t *testing.T) {
	ctx := context.Background()
	orgs := NewOrganizationStore()
	s := NewDataSourceInfoStore(orgs)

	require.NoError(t, s.Create(ctx, newInfo("a", 0, true, true)))
	require.NoError(t, orgs.Create(ctx, &models.Organization{OrgID: "assigned", DataSourceInfoID: "a"}))
	require.NoError(t, orgs.Create(ctx, &models.Organization{OrgID: "unassigned"}))
	require.NoError(t, orgs.Create(ctx, &models.Organization{OrgID: "dangling", DataSourceInfoID: "gone"}))

	info, err := s.GetByOrganization(ctx, "assigned")
	require.NoError(t, err)
	require.Equal(t, "a", info.ID)

	for _, orgID := range []string{"unassigned", "dangling", "missing"} {
		_, err := s.GetByOrganization(ctx, orgID)
		require.ErrorIs(t, err, store.ErrDataSourceInfoNotFound, orgID)
	}
}
