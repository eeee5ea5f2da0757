package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveQuery("duckdb", StatusSuccess, time.Millisecond, 3)
		m.ObserveConnector("duckdb", time.Millisecond)
		m.CacheHit()
		m.CacheMiss()
		m.CacheError()
		m.CacheSet()
		m.CacheInvalidated(2)
		m.SetDataSourceUp("a", "duckdb", true)
		m.ForgetDataSource("a", "duckdb")
		m.SetRegisteredSources(1)
		m.SetOpenPools(1)
	})
	assert.Nil(t, m.Registry())
}

func TestCounters(t *testing.T) {
	m := New("test_engine")

	m.ObserveQuery("duckdb", StatusSuccess, 10*time.Millisecond, 3)
	m.ObserveQuery("duckdb", StatusCached, time.Millisecond, 3)
	m.ObserveQuery("duckdb", StatusBlocked, 0, 0)
	m.CacheHit()
	m.CacheMiss()
	m.CacheMiss()
	m.CacheSet()
	m.CacheInvalidated(4)
	m.SetDataSourceUp("sales", "duckdb", true)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.queriesTotal.WithLabelValues("duckdb", StatusSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.queriesTotal.WithLabelValues("duckdb", StatusBlocked)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.cacheRequests.WithLabelValues("miss")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.cacheSets))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.cacheInvalidated))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.dataSourceUp.WithLabelValues("sales", "duckdb")))
}

func TestHandlerUsesPrefix(t *testing.T) {
	m := New("my-engine")
	m.CacheSet()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, "my_engine_cache_sets_total 1"), body)
}

func TestDefaultPrefix(t *testing.T) {
	assert.Equal(t, DefaultPrefix, sanitizePrefix("  "))
	assert.Equal(t, "a_b_c", sanitizePrefix("a.b-c"))
}
