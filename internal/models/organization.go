package models

import (
	"time"
)

// MasterOrgID is the reserved organization id of the primary persistence unit.
const MasterOrgID = "master"

// Organization represents an organization (tenant) in the system.
// DataSourceInfoID is empty until the tenant is pinned to a data source.
type Organization struct {
	OrgID            string
	Name             string
	DataSourceInfoID string // FK to data_source_infos, optional
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// HasDataSource reports whether the organization carries a data source assignment.
func (o *Organization) HasDataSource() bool {
	return o.DataSourceInfoID != ""
}
