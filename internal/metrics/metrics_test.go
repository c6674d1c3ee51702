package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_IndependentRegistries(t *testing.T) {
	a := New()
	b := New()

	a.CacheHits.Inc()
	a.CacheHits.Inc()

	assert.Equal(t, 2.0, testutil.ToFloat64(a.CacheHits))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.CacheHits))
}

func TestHandler(t *testing.T) {
	m := New()
	m.Batches.Add(3)
	m.CacheEvictions.WithLabelValues("ttl").Inc()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	require.Equal(t, 200, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, "agentctx_batches_total 3"), body)
	assert.True(t, strings.Contains(body, `agentctx_cache_evictions_total{reason="ttl"} 1`), body)
}
