package memory

import (
	"context"
	"sync"
	"time"

	"github.com/wolfeidau/tenantdb/internal/models"
	"github.com/wolfeidau/tenantdb/internal/store"
)

// DataSourceInfoStore implements store.DataSourceInfoStore using in-memory storage.
// Descriptors keep insertion order, which stands in for storage order.
type DataSourceInfoStore struct {
	mu sync.RWMutex

	infos []*models.DataSourceInfo
	orgs  *OrganizationStore
}

// NewDataSourceInfoStore creates a new in-memory descriptor store. The organization
// store backs the correlated lookups (GetByOrganization, Delete).
func NewDataSourceInfoStore(orgs *OrganizationStore) *DataSourceInfoStore {
	return &DataSourceInfoStore{
		orgs: orgs,
	}
}

// Create creates a new descriptor in memory.
func (s *DataSourceInfoStore) Create(ctx context.Context, info *models.DataSourceInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.indexOf(info.ID) >= 0 {
		return store.ErrDataSourceInfoAlreadyExists
	}

	clone := *info
	s.infos = append(s.infos, &clone)

	return nil
}

// Get retrieves a descriptor by ID.
func (s *DataSourceInfoStore) Get(ctx context.Context, id string) (*models.DataSourceInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx := s.indexOf(id)
	if idx < 0 {
		return nil, store.ErrDataSourceInfoNotFound
	}

	clone := *s.infos[idx]
	return &clone, nil
}

// Update updates an existing descriptor.
func (s *DataSourceInfoStore) Update(ctx context.Context, info *models.DataSourceInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexOf(info.ID)
	if idx < 0 {
		return store.ErrDataSourceInfoNotFound
	}

	info.UpdatedAt = time.Now()

	clone := *info
	s.infos[idx] = &clone

	return nil
}

// Delete deletes a descriptor by ID.
func (s *DataSourceInfoStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexOf(id)
	if idx < 0 {
		return store.ErrDataSourceInfoNotFound
	}

	if s.orgs != nil && s.orgs.referenced(id) {
		return store.ErrDataSourceInfoInUse
	}

	s.infos = append(s.infos[:idx], s.infos[idx+1:]...)

	return nil
}

// List returns all descriptors in insertion order.
func (s *DataSourceInfoStore) List(ctx context.Context) ([]*models.DataSourceInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*models.DataSourceInfo, 0, len(s.infos))
	for _, info := range s.infos {
		clone := *info
		result = append(result, &clone)
	}

	return result, nil
}

// GetEnabledShared retrieves a descriptor by ID if it is enabled and shared.
func (s *DataSourceInfoStore) GetEnabledShared(ctx context.Context, id string) (*models.DataSourceInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx := s.indexOf(id)
	if idx < 0 || !s.infos[idx].Eligible() {
		return nil, store.ErrDataSourceInfoNotFound
	}

	clone := *s.infos[idx]
	return &clone, nil
}

// LeastDepleted returns the first eligible descriptor holding the minimum depletion index.
func (s *DataSourceInfoStore) LeastDepleted(ctx context.Context) (*models.DataSourceInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var best *models.DataSourceInfo
	for _, info := range s.infos {
		if !info.Eligible() {
			continue
		}
		if best == nil || info.DepletionIndex < best.DepletionIndex {
			best = info
		}
	}

	if best == nil {
		return nil, store.ErrDataSourceInfoNotFound
	}

	clone := *best
	return &clone, nil
}

// GetByOrganization returns the descriptor referenced by the organization's persisted assignment.
func (s *DataSourceInfoStore) GetByOrganization(ctx context.Context, orgID string) (*models.DataSourceInfo, error) {
	if s.orgs == nil {
		return nil, store.ErrDataSourceInfoNotFound
	}

	id, ok := s.orgs.assignedTo(orgID)
	if !ok {
		return nil, store.ErrDataSourceInfoNotFound
	}

	return s.Get(ctx, id)
}

// indexOf must be called with the lock held.
func (s *DataSourceInfoStore) indexOf(id string) int {
	for i, info := range s.infos {
		if info.ID == id {
			return i
		}
	}
	return -1
}
