package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/tenantdb/internal/allocator"
	"github.com/wolfeidau/tenantdb/internal/models"
	"github.com/wolfeidau/tenantdb/internal/persistence"
	"github.com/wolfeidau/tenantdb/internal/store"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Assigner resolves and allocates tenant data sources.
type Assigner interface {
	Resolve(ctx context.Context, org *models.Organization) (*models.DataSourceInfo, error)
	AssignShared(ctx context.Context, org *models.Organization) (*models.DataSourceInfo, error)
}

// UnitCache manages cached tenant persistence units.
type UnitCache interface {
	GetOrCreate(ctx context.Context, org *models.Organization) (*persistence.Unit, error)
	Remove(ctx context.Context, org *models.Organization) error
	Names() []string
}

// SchemaProvisioner creates tenant schemas.
type SchemaProvisioner interface {
	Provision(ctx context.Context, org *models.Organization) error
}

// AdminConfig wires the admin API collaborators.
type AdminConfig struct {
	Organizations store.OrganizationStore
	Assigner      Assigner
	Units         UnitCache
	Schema        SchemaProvisioner
	CORSOrigins   []string
	Logger        zerolog.Logger
}

type admin struct {
	cfg AdminConfig
}

// NewAdminHandler returns the admin API handler wrapped in client IP, request
// logging, tracing and CORS middleware.
func NewAdminHandler(cfg AdminConfig) http.Handler {
	a := &admin{cfg: cfg}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", a.healthz)
	mux.HandleFunc("PUT /v1/organizations/{id}", a.putOrganization)
	mux.HandleFunc("GET /v1/organizations/{id}/datasource", a.getDataSource)
	mux.HandleFunc("POST /v1/organizations/{id}/datasource", a.assignDataSource)
	mux.HandleFunc("POST /v1/organizations/{id}/schema", a.provisionSchema)
	mux.HandleFunc("PUT /v1/organizations/{id}/unit", a.getOrCreateUnit)
	mux.HandleFunc("DELETE /v1/organizations/{id}/unit", a.removeUnit)
	mux.HandleFunc("GET /v1/units", a.listUnits)

	var handler http.Handler = mux
	handler = RequestLogMiddleware(cfg.Logger)(handler)
	handler = ClientIPMiddleware()(handler)
	handler = otelhttp.NewHandler(handler, "tenantd.admin",
		otelhttp.WithSpanNameFormatter(func(operation string, r *http.Request) string {
			return r.Method + " " + r.Pattern
		}),
	)

	return cors.New(cors.Options{
		AllowedOrigins: cfg.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
	}).Handler(handler)
}

// organizationRequest leaves the assignment alone when data_source_info_id is
// absent; null or "" clears it so the next allocation uses the shared pool.
type organizationRequest struct {
	Name             string         `json:"name"`
	DataSourceInfoID optionalString `json:"data_source_info_id"`
}

type optionalString struct {
	Set   bool
	Value string
}

func (o *optionalString) UnmarshalJSON(data []byte) error {
	o.Set = true
	if string(data) == "null" {
		o.Value = ""
		return nil
	}
	return json.Unmarshal(data, &o.Value)
}

type organizationResponse struct {
	OrgID            string    `json:"org_id"`
	Name             string    `json:"name"`
	DataSourceInfoID string    `json:"data_source_info_id,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// dataSourceResponse omits credentials.
type dataSourceResponse struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Enabled        bool   `json:"enabled"`
	Shared         bool   `json:"shared"`
	DepletionIndex int    `json:"depletion_index"`
}

type unitResponse struct {
	Name         string   `json:"name"`
	DataSourceID string   `json:"data_source_id"`
	Packages     []string `json:"packages"`
	Entities     []string `json:"entities"`
}

func (a *admin) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *admin) putOrganization(w http.ResponseWriter, r *http.Request) {
	var req organizationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	orgID := r.PathValue("id")
	if orgID == models.MasterOrgID {
		writeError(w, http.StatusForbidden, "organization id is reserved")
		return
	}

	now := time.Now()
	org, err := a.cfg.Organizations.Get(r.Context(), orgID)
	switch {
	case errors.Is(err, store.ErrOrganizationNotFound):
		org = &models.Organization{
			OrgID:            orgID,
			Name:             req.Name,
			DataSourceInfoID: req.DataSourceInfoID.Value,
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		err = a.cfg.Organizations.Create(r.Context(), org)
	case err == nil:
		org.Name = req.Name
		if req.DataSourceInfoID.Set {
			org.DataSourceInfoID = req.DataSourceInfoID.Value
		}
		err = a.cfg.Organizations.Update(r.Context(), org)
	}
	if err != nil {
		a.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toOrganizationResponse(org))
}

func (a *admin) getDataSource(w http.ResponseWriter, r *http.Request) {
	org, ok := a.organization(w, r)
	if !ok {
		return
	}

	info, err := a.cfg.Assigner.Resolve(r.Context(), org)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if info == nil {
		writeError(w, http.StatusNotFound, "organization has no data source")
		return
	}

	writeJSON(w, http.StatusOK, toDataSourceResponse(info))
}

func (a *admin) assignDataSource(w http.ResponseWriter, r *http.Request) {
	org, ok := a.organization(w, r)
	if !ok {
		return
	}

	info, err := a.cfg.Assigner.AssignShared(r.Context(), org)
	if err != nil {
		a.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toDataSourceResponse(info))
}

func (a *admin) provisionSchema(w http.ResponseWriter, r *http.Request) {
	org, ok := a.organization(w, r)
	if !ok {
		return
	}

	if err := a.cfg.Schema.Provision(r.Context(), org); err != nil {
		a.fail(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (a *admin) getOrCreateUnit(w http.ResponseWriter, r *http.Request) {
	org, ok := a.organization(w, r)
	if !ok {
		return
	}

	unit, err := a.cfg.Units.GetOrCreate(r.Context(), org)
	if err != nil {
		a.fail(w, r, err)
		return
	}

	resp := unitResponse{
		Name:     unit.Name(),
		Packages: unit.Packages(),
	}
	if unit.DataSource() != nil {
		resp.DataSourceID = unit.DataSource().DataSourceID()
	}
	if unit.Mapping() != nil {
		resp.Entities = unit.Mapping().Entities()
	}

	writeJSON(w, http.StatusOK, resp)
}

func (a *admin) removeUnit(w http.ResponseWriter, r *http.Request) {
	orgID := r.PathValue("id")
	org := &models.Organization{OrgID: orgID}
	if orgID != models.MasterOrgID {
		var ok bool
		if org, ok = a.organization(w, r); !ok {
			return
		}
	}

	if err := a.cfg.Units.Remove(r.Context(), org); err != nil {
		a.fail(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (a *admin) listUnits(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"units": a.cfg.Units.Names()})
}

func (a *admin) organization(w http.ResponseWriter, r *http.Request) (*models.Organization, bool) {
	org, err := a.cfg.Organizations.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		a.fail(w, r, err)
		return nil, false
	}
	return org, true
}

// fail maps domain errors onto HTTP status codes.
func (a *admin) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		a.cfg.Logger.Error().Err(err).Str("path", r.URL.Path).Msg("Admin request failed")
	}
	writeError(w, status, err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, store.ErrOrganizationNotFound),
		errors.Is(err, store.ErrDataSourceInfoNotFound):
		return http.StatusNotFound
	case errors.Is(err, allocator.ErrInvalidAssignment),
		errors.Is(err, store.ErrOrganizationAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, persistence.ErrReservedUnit):
		return http.StatusForbidden
	case errors.Is(err, allocator.ErrResourceExhausted):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func toOrganizationResponse(org *models.Organization) organizationResponse {
	return organizationResponse{
		OrgID:            org.OrgID,
		Name:             org.Name,
		DataSourceInfoID: org.DataSourceInfoID,
		CreatedAt:        org.CreatedAt,
		UpdatedAt:        org.UpdatedAt,
	}
}

func toDataSourceResponse(info *models.DataSourceInfo) dataSourceResponse {
	return dataSourceResponse{
		ID:             info.ID,
		Name:           info.Name,
		Enabled:        info.Enabled,
		Shared:         info.Shared,
		DepletionIndex: info.DepletionIndex,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("Failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
