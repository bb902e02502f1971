package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/tenantdb/internal/models"
	"github.com/wolfeidau/tenantdb/internal/store"
)

const dataSourceInfoColumns = `d.id, d.name, d.url, d.username, d.password, d.enabled, d.shared,
	d.depletion_index, d.max_conns, d.description, d.created_at, d.updated_at`

// DataSourceInfoStore implements store.DataSourceInfoStore using PostgreSQL.
// Storage order is the insertion sequence (seq column).
type DataSourceInfoStore struct {
	pool *pgxpool.Pool
}

// NewDataSourceInfoStore creates a new PostgreSQL-backed descriptor store.
func NewDataSourceInfoStore(pool *pgxpool.Pool) *DataSourceInfoStore {
	return &DataSourceInfoStore{
		pool: pool,
	}
}

// Create creates a new descriptor in the database.
func (s *DataSourceInfoStore) Create(ctx context.Context, info *models.DataSourceInfo) error {
	now := time.Now()
	if info.CreatedAt.IsZero() {
		info.CreatedAt = now
	}
	info.UpdatedAt = now

	query := `
		INSERT INTO data_source_infos (
			id, name, url, username, password, enabled, shared,
			depletion_index, max_conns, description, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12
		)
	`

	_, err := s.pool.Exec(ctx, query,
		info.ID,
		info.Name,
		info.URL,
		info.Username,
		info.Password,
		info.Enabled,
		info.Shared,
		info.DepletionIndex,
		info.MaxConns,
		info.Description,
		info.CreatedAt,
		info.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create data source info: %w", mapPostgresError(err))
	}

	log.Debug().
		Str("datasource_id", info.ID).
		Bool("enabled", info.Enabled).
		Bool("shared", info.Shared).
		Msg("Created data source info")

	return nil
}

// Get retrieves a descriptor by ID.
func (s *DataSourceInfoStore) Get(ctx context.Context, id string) (*models.DataSourceInfo, error) {
	query := `SELECT ` + dataSourceInfoColumns + ` FROM data_source_infos d WHERE d.id = $1`
	return s.queryOne(ctx, "get", query, id)
}

// Update updates an existing descriptor.
func (s *DataSourceInfoStore) Update(ctx context.Context, info *models.DataSourceInfo) error {
	info.UpdatedAt = time.Now()

	query := `
		UPDATE data_source_infos SET
			name = $2,
			url = $3,
			username = $4,
			password = $5,
			enabled = $6,
			shared = $7,
			depletion_index = $8,
			max_conns = $9,
			description = $10,
			updated_at = $11
		WHERE id = $1
	`

	result, err := s.pool.Exec(ctx, query,
		info.ID,
		info.Name,
		info.URL,
		info.Username,
		info.Password,
		info.Enabled,
		info.Shared,
		info.DepletionIndex,
		info.MaxConns,
		info.Description,
		info.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update data source info: %w", mapPostgresError(err))
	}

	if result.RowsAffected() == 0 {
		return store.ErrDataSourceInfoNotFound
	}

	return nil
}

// Delete deletes a descriptor by ID.
func (s *DataSourceInfoStore) Delete(ctx context.Context, id string) error {
	result, err := s.pool.Exec(ctx, `DELETE FROM data_source_infos WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete data source info: %w", mapPostgresError(err))
	}

	if result.RowsAffected() == 0 {
		return store.ErrDataSourceInfoNotFound
	}

	log.Info().Str("datasource_id", id).Msg("Deleted data source info")

	return nil
}

// List returns all descriptors in storage order.
func (s *DataSourceInfoStore) List(ctx context.Context) ([]*models.DataSourceInfo, error) {
	query := `SELECT ` + dataSourceInfoColumns + ` FROM data_source_infos d ORDER BY d.seq`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list data source infos: %w", mapPostgresError(err))
	}
	defer rows.Close()

	var infos []*models.DataSourceInfo
	for rows.Next() {
		info, err := scanDataSourceInfo(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan data source info: %w", err)
		}
		infos = append(infos, info)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating data source infos: %w", err)
	}

	return infos, nil
}

// GetEnabledShared retrieves a descriptor by ID if it is enabled and shared.
func (s *DataSourceInfoStore) GetEnabledShared(ctx context.Context, id string) (*models.DataSourceInfo, error) {
	query := `
		SELECT ` + dataSourceInfoColumns + `
		FROM data_source_infos d
		WHERE d.id = $1 AND d.enabled AND d.shared
	`
	return s.queryOne(ctx, "get enabled shared", query, id)
}

// LeastDepleted selects an eligible descriptor with no strictly less depleted
// eligible peer, first in storage order.
func (s *DataSourceInfoStore) LeastDepleted(ctx context.Context) (*models.DataSourceInfo, error) {
	query := `
		SELECT ` + dataSourceInfoColumns + `
		FROM data_source_infos d
		WHERE d.enabled AND d.shared
		  AND NOT EXISTS (
			SELECT 1 FROM data_source_infos o
			WHERE o.enabled AND o.shared
			  AND o.depletion_index < d.depletion_index
		  )
		ORDER BY d.seq
		LIMIT 1
	`
	return s.queryOne(ctx, "select least depleted", query)
}

// GetByOrganization returns the descriptor that the organization's persisted row points at.
func (s *DataSourceInfoStore) GetByOrganization(ctx context.Context, orgID string) (*models.DataSourceInfo, error) {
	query := `
		SELECT ` + dataSourceInfoColumns + `
		FROM data_source_infos d
		WHERE EXISTS (
			SELECT 1 FROM organizations o
			WHERE o.data_source_info_id = d.id
			  AND o.org_id = $1
		)
	`
	return s.queryOne(ctx, "get by organization", query, orgID)
}

func (s *DataSourceInfoStore) queryOne(ctx context.Context, op, query string, args ...any) (*models.DataSourceInfo, error) {
	info, err := scanDataSourceInfo(s.pool.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrDataSourceInfoNotFound
		}
		return nil, fmt.Errorf("failed to %s data source info: %w", op, mapPostgresError(err))
	}
	return info, nil
}

func scanDataSourceInfo(row pgx.Row) (*models.DataSourceInfo, error) {
	var info models.DataSourceInfo
	err := row.Scan(
		&info.ID,
		&info.Name,
		&info.URL,
		&info.Username,
		&info.Password,
		&info.Enabled,
		&info.Shared,
		&info.DepletionIndex,
		&info.MaxConns,
		&info.Description,
		&info.CreatedAt,
		&info.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &info, nil
}
