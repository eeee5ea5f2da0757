package handlers

import (
	"context"
	"net/http"
	"os"
	"runtime"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-query-engine/pkg/config"
	"github.com/ekaya-inc/ekaya-query-engine/pkg/models"
	"github.com/ekaya-inc/ekaya-query-engine/pkg/services"
)

// PingResponse contains service status and version information.
type PingResponse struct {
	Status      string `json:"status"`
	Version     string `json:"version"`
	Service     string `json:"service"`
	GoVersion   string `json:"go_version"`
	Hostname    string `json:"hostname"`
	Environment string `json:"environment"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status      string    `json:"status"`
	Timestamp   time.Time `json:"timestamp"`
	DataSources int       `json:"datasources"`
	Cache       bool      `json:"cache_healthy"`
}

// DataSourceHealthResponse is returned by GET /health/datasources.
type DataSourceHealthResponse struct {
	Status      string                         `json:"status"`
	DataSources map[string]models.HealthStatus `json:"datasources"`
}

// CacheHealth is the part of a cache store the health handler needs.
type CacheHealth interface {
	HealthCheck(ctx context.Context) bool
}

// HealthHandler handles health check and ping endpoints.
type HealthHandler struct {
	cfg    *config.Config
	svc    services.QueryService
	cache  CacheHealth
	logger *zap.Logger
}

// NewHealthHandler creates a new HealthHandler. cache may be nil when caching is disabled.
func NewHealthHandler(cfg *config.Config, svc services.QueryService, cache CacheHealth, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{cfg: cfg, svc: svc, cache: cache, logger: logger}
}

// RegisterRoutes registers the health handler's routes on the given mux.
func (h *HealthHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("GET /ping", h.Ping)
	mux.HandleFunc("GET /health/datasources", h.DataSources)
}

// Health handles GET /health. The process is healthy while it can serve;
// a failing cache degrades it because queries then bypass caching.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:      "ok",
		Timestamp:   time.Now().UTC(),
		DataSources: len(h.svc.ListDataSources()),
		Cache:       true,
	}
	if h.cache != nil && !h.cache.HealthCheck(r.Context()) {
		resp.Status = "degraded"
		resp.Cache = false
	}

	if err := WriteJSON(w, http.StatusOK, resp); err != nil {
		h.logger.Error("Failed to encode health response", zap.Error(err))
	}
}

// Ping handles GET /ping requests.
// Returns detailed service information including version and environment.
func (h *HealthHandler) Ping(w http.ResponseWriter, r *http.Request) {
	hostname, err := os.Hostname()
	if err != nil {
		http.Error(w, "failed to get hostname", http.StatusInternalServerError)
		return
	}

	response := PingResponse{
		Status:      "ok",
		Version:     h.cfg.Version,
		Service:     "ekaya-query-engine",
		GoVersion:   runtime.Version(),
		Hostname:    hostname,
		Environment: h.cfg.Env,
	}

	if err := WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("Failed to encode ping response", zap.Error(err))
	}
}

// DataSources handles GET /health/datasources. It responds 503 when any
// source is unhealthy so load balancers can act on it.
func (h *HealthHandler) DataSources(w http.ResponseWriter, r *http.Request) {
	statuses := h.svc.GetHealthStatus(r.Context())

	tenant := tenantID(r)
	if tenant != "" {
		for _, info := range h.svc.ListDataSources() {
			if info.TenantID != tenant {
				delete(statuses, info.ID)
			}
		}
	}

	resp := DataSourceHealthResponse{Status: "healthy", DataSources: statuses}
	code := http.StatusOK
	for _, s := range statuses {
		if s.Status != models.Healthy {
			resp.Status = "unhealthy"
			code = http.StatusServiceUnavailable
			break
		}
	}

	if err := WriteJSON(w, code, resp); err != nil {
		h.logger.Error("Failed to encode datasource health response", zap.Error(err))
	}
}
