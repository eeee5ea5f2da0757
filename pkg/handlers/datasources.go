package handlers

import (
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-query-engine/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-query-engine/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-query-engine/pkg/services"
)

// CreateDatasourceRequest is the POST /api/datasources body. Config holds
// the backend-specific fields, as accepted by each adapter.
type CreateDatasourceRequest struct {
	ID          string         `json:"id,omitempty"`
	TenantID    string         `json:"tenant_id,omitempty"`
	Type        string         `json:"type"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Config      map[string]any `json:"config"`
}

// ClearCacheResponse reports how many cached results were removed.
type ClearCacheResponse struct {
	Removed int `json:"removed"`
}

// DatasourcesHandler serves data source registration, schema and cache endpoints.
type DatasourcesHandler struct {
	svc    services.QueryService
	logger *zap.Logger
}

// NewDatasourcesHandler creates a new DatasourcesHandler.
func NewDatasourcesHandler(svc services.QueryService, logger *zap.Logger) *DatasourcesHandler {
	return &DatasourcesHandler{svc: svc, logger: logger}
}

// RegisterRoutes registers the datasources handler's routes on the given mux.
func (h *DatasourcesHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/datasources", h.List)
	mux.HandleFunc("POST /api/datasources", h.Create)
	mux.HandleFunc("GET /api/datasources/types", h.Types)
	mux.HandleFunc("DELETE /api/datasources/{id}", h.Delete)
	mux.HandleFunc("GET /api/datasources/{id}/schema", h.Schema)
	mux.HandleFunc("DELETE /api/datasources/{id}/cache", h.ClearCache)
	mux.HandleFunc("GET /api/cache/stats", h.CacheStats)
	mux.HandleFunc("DELETE /api/cache", h.InvalidateTenant)
}

// List handles GET /api/datasources. With a tenant header only that
// tenant's sources are listed.
func (h *DatasourcesHandler) List(w http.ResponseWriter, r *http.Request) {
	tenant := tenantID(r)
	all := h.svc.ListDataSources()
	if tenant != "" {
		filtered := all[:0]
		for _, info := range all {
			if info.TenantID == tenant {
				filtered = append(filtered, info)
			}
		}
		all = filtered
	}
	writeData(w, h.logger, http.StatusOK, all)
}

// Types handles GET /api/datasources/types.
func (h *DatasourcesHandler) Types(w http.ResponseWriter, r *http.Request) {
	writeData(w, h.logger, http.StatusOK, h.svc.ListTypes())
}

// Create handles POST /api/datasources.
func (h *DatasourcesHandler) Create(w http.ResponseWriter, r *http.Request) {
	var body CreateDatasourceRequest
	if err := decodeBody(r, &body); err != nil {
		WriteError(w, h.logger, err)
		return
	}

	tenant := tenantID(r)
	if tenant == "" {
		tenant = body.TenantID
	}
	if body.TenantID != "" && body.TenantID != tenant {
		WriteError(w, h.logger, apperrors.Validation("tenant_id does not match %s header", TenantHeader))
		return
	}
	if body.ID == "" {
		body.ID = uuid.NewString()
	}

	cfg, err := datasource.ParseConnectionConfig(body.ID, tenant, body.Type, body.Name, body.Config)
	if err != nil {
		WriteError(w, h.logger, apperrors.Invalid(err))
		return
	}
	cfg.Description = body.Description

	if err := h.svc.RegisterDataSource(r.Context(), cfg); err != nil {
		WriteError(w, h.logger, err)
		return
	}

	info, err := h.svc.GetDataSource(cfg.ID)
	if err != nil {
		WriteError(w, h.logger, err)
		return
	}
	writeData(w, h.logger, http.StatusCreated, info)
}

// Delete handles DELETE /api/datasources/{id}.
func (h *DatasourcesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := ownedBy(h.svc, id, tenantID(r)); err != nil {
		WriteError(w, h.logger, err)
		return
	}
	if err := h.svc.RemoveDataSource(id); err != nil {
		WriteError(w, h.logger, err)
		return
	}
	writeData(w, h.logger, http.StatusOK, map[string]string{"id": id})
}

// Schema handles GET /api/datasources/{id}/schema.
func (h *DatasourcesHandler) Schema(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := ownedBy(h.svc, id, tenantID(r)); err != nil {
		WriteError(w, h.logger, err)
		return
	}
	schema, err := h.svc.GetSchema(r.Context(), id)
	if err != nil {
		WriteError(w, h.logger, err)
		return
	}
	writeData(w, h.logger, http.StatusOK, schema)
}

// ClearCache handles DELETE /api/datasources/{id}/cache.
func (h *DatasourcesHandler) ClearCache(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := ownedBy(h.svc, id, tenantID(r)); err != nil {
		WriteError(w, h.logger, err)
		return
	}
	n, err := h.svc.ClearCache(r.Context(), id)
	if err != nil {
		WriteError(w, h.logger, err)
		return
	}
	writeData(w, h.logger, http.StatusOK, ClearCacheResponse{Removed: n})
}

// CacheStats handles GET /api/cache/stats.
func (h *DatasourcesHandler) CacheStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.svc.GetCacheStats(r.Context())
	if err != nil {
		WriteError(w, h.logger, err)
		return
	}
	writeData(w, h.logger, http.StatusOK, map[string]any{
		"hits":       stats.Hits,
		"misses":     stats.Misses,
		"sets":       stats.Sets,
		"entries":    stats.Entries,
		"memoryUsed": stats.MemoryUsed,
		"backend":    stats.Backend,
		"hitRate":    stats.HitRate(),
	})
}

// InvalidateTenant handles DELETE /api/cache for the tenant in the header.
func (h *DatasourcesHandler) InvalidateTenant(w http.ResponseWriter, r *http.Request) {
	tenant := tenantID(r)
	if tenant == "" {
		WriteError(w, h.logger, apperrors.Validation("%s header is required", TenantHeader))
		return
	}
	n, err := h.svc.InvalidateTenant(r.Context(), tenant)
	if err != nil {
		WriteError(w, h.logger, err)
		return
	}
	writeData(w, h.logger, http.StatusOK, ClearCacheResponse{Removed: n})
}
