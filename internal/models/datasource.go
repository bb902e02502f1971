package models

import (
	"time"
)

// DataSourceInfo describes a connectable database target and its eligibility for
// shared allocation. DepletionIndex ranks load: lower means less loaded.
type DataSourceInfo struct {
	ID             string
	Name           string
	URL            string // postgres://host:port/database?options
	Username       string
	Password       string
	Enabled        bool
	Shared         bool
	DepletionIndex int
	MaxConns       int32 // 0 uses the provisioner default
	Description    string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Eligible reports whether the descriptor can host tenants from the shared pool.
func (d *DataSourceInfo) Eligible() bool {
	return d.Enabled && d.Shared
}
