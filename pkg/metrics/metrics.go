// Package metrics exposes Prometheus collectors for query execution, cache
// behavior and data source health. All metric names share a configurable prefix.
//
// A nil *Metrics is valid and records nothing, so connectors and stores can
// be constructed in tests without a registry.
package metrics

import (
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DefaultPrefix is used when no prefix is configured.
const DefaultPrefix = "query_engine"

// Query outcomes used as the status label.
const (
	StatusSuccess = "success"
	StatusError   = "error"
	StatusCached  = "cached"
	StatusBlocked = "blocked"
)

// Metrics holds the engine's collectors and the registry they are registered in.
type Metrics struct {
	registry *prometheus.Registry

	queriesTotal      *prometheus.CounterVec
	queryDuration     *prometheus.HistogramVec
	rowsReturned      *prometheus.HistogramVec
	connectorDuration *prometheus.HistogramVec
	cacheRequests     *prometheus.CounterVec
	cacheSets         prometheus.Counter
	cacheInvalidated  prometheus.Counter
	dataSourceUp      *prometheus.GaugeVec
	registeredSources prometheus.Gauge
	openPools         prometheus.Gauge
}

// New creates collectors named <prefix>_* in a fresh registry.
// Go runtime and process collectors are included.
func New(prefix string) *Metrics {
	prefix = sanitizePrefix(prefix)
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		queriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: prefix,
			Name:      "queries_total",
			Help:      "Queries handled by the query service, by data source type and outcome.",
		}, []string{"source_type", "status"}),
		queryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: prefix,
			Name:      "query_duration_seconds",
			Help:      "End to end query latency including cache lookups.",
			Buckets:   []float64{.001, .005, .01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"source_type", "cached"}),
		rowsReturned: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: prefix,
			Name:      "query_rows_returned",
			Help:      "Rows returned per query.",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 9),
		}, []string{"source_type"}),
		connectorDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: prefix,
			Name:      "connector_execution_seconds",
			Help:      "Time spent inside connector ExecuteQuery.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"source_type"}),
		cacheRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: prefix,
			Name:      "cache_requests_total",
			Help:      "Cache lookups by result (hit, miss, error).",
		}, []string{"result"}),
		cacheSets: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: prefix,
			Name:      "cache_sets_total",
			Help:      "Results written to the cache.",
		}),
		cacheInvalidated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: prefix,
			Name:      "cache_invalidated_entries_total",
			Help:      "Entries removed by pattern invalidation.",
		}),
		dataSourceUp: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: prefix,
			Name:      "datasource_up",
			Help:      "1 if the last health probe of a data source succeeded.",
		}, []string{"datasource_id", "source_type"}),
		registeredSources: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: prefix,
			Name:      "datasources_registered",
			Help:      "Data sources currently registered.",
		}),
		openPools: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: prefix,
			Name:      "connection_pools_open",
			Help:      "Connection pools held by the connection manager.",
		}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.queriesTotal,
		m.queryDuration,
		m.rowsReturned,
		m.connectorDuration,
		m.cacheRequests,
		m.cacheSets,
		m.cacheInvalidated,
		m.dataSourceUp,
		m.registeredSources,
		m.openPools,
	)
	return m
}

func sanitizePrefix(prefix string) string {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return DefaultPrefix
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			return r
		default:
			return '_'
		}
	}, prefix)
}

// Registry returns the registry for tests and custom exporters.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveQuery records one query handled by the service.
func (m *Metrics) ObserveQuery(sourceType, status string, d time.Duration, rows int) {
	if m == nil {
		return
	}
	m.queriesTotal.WithLabelValues(sourceType, status).Inc()
	if status == StatusSuccess || status == StatusCached {
		cached := "false"
		if status == StatusCached {
			cached = "true"
		}
		m.queryDuration.WithLabelValues(sourceType, cached).Observe(d.Seconds())
		m.rowsReturned.WithLabelValues(sourceType).Observe(float64(rows))
	}
}

// ObserveConnector records time spent in a connector's ExecuteQuery.
func (m *Metrics) ObserveConnector(sourceType string, d time.Duration) {
	if m == nil {
		return
	}
	m.connectorDuration.WithLabelValues(sourceType).Observe(d.Seconds())
}

// CacheHit, CacheMiss and CacheError count lookups.
func (m *Metrics) CacheHit() { m.cacheLookup("hit") }

func (m *Metrics) CacheMiss() { m.cacheLookup("miss") }

func (m *Metrics) CacheError() { m.cacheLookup("error") }

func (m *Metrics) cacheLookup(result string) {
	if m == nil {
		return
	}
	m.cacheRequests.WithLabelValues(result).Inc()
}

// CacheSet counts a write.
func (m *Metrics) CacheSet() {
	if m == nil {
		return
	}
	m.cacheSets.Inc()
}

// CacheInvalidated adds n removed entries.
func (m *Metrics) CacheInvalidated(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.cacheInvalidated.Add(float64(n))
}

// SetDataSourceUp records the result of a health probe.
func (m *Metrics) SetDataSourceUp(id, sourceType string, up bool) {
	if m == nil {
		return
	}
	v := 0.0
	if up {
		v = 1
	}
	m.dataSourceUp.WithLabelValues(id, sourceType).Set(v)
}

// ForgetDataSource drops the health series of a removed source.
func (m *Metrics) ForgetDataSource(id, sourceType string) {
	if m == nil {
		return
	}
	m.dataSourceUp.DeleteLabelValues(id, sourceType)
}

// SetRegisteredSources sets the registry size gauge.
func (m *Metrics) SetRegisteredSources(n int) {
	if m == nil {
		return
	}
	m.registeredSources.Set(float64(n))
}

// SetOpenPools sets the connection manager pool gauge.
func (m *Metrics) SetOpenPools(n int) {
	if m == nil {
		return
	}
	m.openPools.Set(float64(n))
}
