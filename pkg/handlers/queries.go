package handlers

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-query-engine/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-query-engine/pkg/models"
	"github.com/ekaya-inc/ekaya-query-engine/pkg/services"
)

// ExecuteQueryRequest is the POST /api/query body.
type ExecuteQueryRequest struct {
	DataSourceID string         `json:"data_source_id"`
	SQL          string         `json:"sql"`
	Parameters   map[string]any `json:"parameters,omitempty"`
	UseCache     *bool          `json:"use_cache,omitempty"`
	CacheTTL     int            `json:"cache_ttl,omitempty"`
	MaxRows      int            `json:"max_rows,omitempty"`
	TimeoutMs    int            `json:"timeout_ms,omitempty"`
}

// ValidateQueryRequest is the POST /api/query/validate body.
type ValidateQueryRequest struct {
	DataSourceID string `json:"data_source_id"`
	SQL          string `json:"sql"`
}

// QueriesHandler serves query execution and validation.
type QueriesHandler struct {
	svc    services.QueryService
	logger *zap.Logger
}

// NewQueriesHandler creates a new QueriesHandler.
func NewQueriesHandler(svc services.QueryService, logger *zap.Logger) *QueriesHandler {
	return &QueriesHandler{svc: svc, logger: logger}
}

// RegisterRoutes registers the queries handler's routes on the given mux.
func (h *QueriesHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/query", h.Execute)
	mux.HandleFunc("POST /api/query/validate", h.Validate)
}

// Execute handles POST /api/query.
func (h *QueriesHandler) Execute(w http.ResponseWriter, r *http.Request) {
	var body ExecuteQueryRequest
	if err := decodeBody(r, &body); err != nil {
		WriteError(w, h.logger, err)
		return
	}
	if body.TimeoutMs < 0 {
		WriteError(w, h.logger, apperrors.Validation("timeout_ms must not be negative"))
		return
	}

	result, err := h.svc.ExecuteQuery(r.Context(), &models.QueryRequest{
		TenantID:     tenantID(r),
		DataSourceID: body.DataSourceID,
		SQL:          body.SQL,
		Parameters:   body.Parameters,
		UseCache:     body.UseCache,
		CacheTTL:     body.CacheTTL,
		MaxRows:      body.MaxRows,
		Timeout:      time.Duration(body.TimeoutMs) * time.Millisecond,
	})
	if err != nil {
		WriteError(w, h.logger, err)
		return
	}
	writeData(w, h.logger, http.StatusOK, result)
}

// Validate handles POST /api/query/validate.
func (h *QueriesHandler) Validate(w http.ResponseWriter, r *http.Request) {
	var body ValidateQueryRequest
	if err := decodeBody(r, &body); err != nil {
		WriteError(w, h.logger, err)
		return
	}
	if body.DataSourceID == "" {
		WriteError(w, h.logger, apperrors.Validation("data_source_id is required"))
		return
	}
	if err := ownedBy(h.svc, body.DataSourceID, tenantID(r)); err != nil {
		WriteError(w, h.logger, err)
		return
	}

	result, err := h.svc.ValidateQuery(r.Context(), body.DataSourceID, body.SQL)
	if err != nil {
		WriteError(w, h.logger, err)
		return
	}
	writeData(w, h.logger, http.StatusOK, result)
}

// ownedBy reports a data source outside the caller's tenant as not found.
func ownedBy(svc services.QueryService, id, tenant string) error {
	info, err := svc.GetDataSource(id)
	if err != nil {
		return err
	}
	if tenant != "" && info.TenantID != tenant {
		return apperrors.NotFound("data source not found: %s", id)
	}
	return nil
}
