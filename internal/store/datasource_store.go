package store

import (
	"context"
	"errors"

	"github.com/wolfeidau/tenantdb/internal/models"
)

// Sentinel errors for data source descriptor operations
var (
	ErrDataSourceInfoNotFound      = errors.New("data source info not found")
	ErrDataSourceInfoAlreadyExists = errors.New("data source info already exists")
	ErrDataSourceInfoInUse         = errors.New("data source info is referenced by organizations")
)

// DataSourceInfoStore defines the interface for data source descriptor storage.
// Descriptors are read with snapshot semantics: every call observes the current
// state of the store and nothing is cached between calls.
type DataSourceInfoStore interface {
	// Create creates a new descriptor.
	// Returns ErrDataSourceInfoAlreadyExists if a descriptor with the same ID already exists.
	Create(ctx context.Context, info *models.DataSourceInfo) error

	// Get retrieves a descriptor by ID regardless of its flags.
	// Returns ErrDataSourceInfoNotFound if the descriptor doesn't exist.
	Get(ctx context.Context, id string) (*models.DataSourceInfo, error)

	// Update updates an existing descriptor, this is how load (DepletionIndex) is reported.
	// Returns ErrDataSourceInfoNotFound if the descriptor doesn't exist.
	Update(ctx context.Context, info *models.DataSourceInfo) error

	// Delete deletes a descriptor by ID.
	// Returns ErrDataSourceInfoInUse while organizations still reference it.
	Delete(ctx context.Context, id string) error

	// List returns all descriptors in storage order.
	List(ctx context.Context) ([]*models.DataSourceInfo, error)

	// GetEnabledShared retrieves the descriptor with the given ID only if it is
	// both enabled and shared.
	// Returns ErrDataSourceInfoNotFound otherwise.
	GetEnabledShared(ctx context.Context, id string) (*models.DataSourceInfo, error)

	// LeastDepleted returns an enabled and shared descriptor for which no other
	// enabled and shared descriptor has a strictly smaller depletion index.
	// Ties resolve to the first descriptor in storage order.
	// Returns ErrDataSourceInfoNotFound if no enabled and shared descriptor exists.
	LeastDepleted(ctx context.Context) (*models.DataSourceInfo, error)

	// GetByOrganization returns the descriptor referenced by the persisted
	// assignment of the given organization.
	// Returns ErrDataSourceInfoNotFound if the organization has no persisted assignment.
	GetByOrganization(ctx context.Context, orgID string) (*models.DataSourceInfo, error)
}
