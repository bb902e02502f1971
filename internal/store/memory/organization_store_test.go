package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/tenantdb/internal/models"
	"github.com/wolfeidau/tenantdb/internal/store"
)

func TestOrganizationStore_CRUD(t *testing.T) {
	ctx := context.Background()
	s := NewOrganizationStore()

	org := &models.Organization{OrgID: "acme", Name: "Acme", CreatedAt: time.Now()}
	require.NoError(t, s.Create(ctx, org))
	require.ErrorIs(t, s.Create(ctx, org), store.ErrOrganizationAlreadyExists)

	got, err := s.Get(ctx, "acme")
	require.NoError(t, err)
	require.Equal(t, "Acme", got.Name)
	require.False(t, got.HasDataSource())

	// returned values are copies
	got.Name = "changed"
	again, err := s.Get(ctx, "acme")
	require.NoError(t, err)
	require.Equal(t, "Acme", again.Name)

	got.DataSourceInfoID = "ds-1"
	require.NoError(t, s.Update(ctx, got))
	require.False(t, got.UpdatedAt.IsZero())

	id, ok := s.assignedTo("acme")
	require.True(t, ok)
	require.Equal(t, "ds-1", id)
	require.True(t, s.referenced("ds-1"))
	require.False(t, s.referenced("ds-2"))

	require.NoError(t, s.Delete(ctx, "acme"))
	_, err = s.Get(ctx, "acme")
	require.ErrorIs(t, err, store.ErrOrganizationNotFound)
	require.ErrorIs(t, s.Delete(ctx, "acme"), store.ErrOrganizationNotFound)
	require.ErrorIs(t, s.Update(ctx, org), store.ErrOrganizationNotFound)
}

func TestOrganizationStore_List(t *testing.T) {
	ctx := context.Background()
	s := NewOrganizationStore()

	base := time.Now()
	require.NoError(t, s.Create(ctx, &models.Organization{OrgID: "c", CreatedAt: base.Add(time.Second)}))
	require.NoError(t, s.Create(ctx, &models.Organization{OrgID: "b", CreatedAt: base}))
	require.NoError(t, s.Create(ctx, &models.Organization{OrgID: "a", CreatedAt: base}))

	orgs, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, orgs, 3)
	require.Equal(t, "a", orgs[0].OrgID)
	require.Equal(t, "b", orgs[1].OrgID)
	require.Equal(t, "c", orgs[2].OrgID)
}
