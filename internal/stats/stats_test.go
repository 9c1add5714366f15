package stats

import (
	"encoding/json"
	"expvar"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// expvar map names are process-global, so all subtests share one updater.
func TestStatsUpdater(t *testing.T) {
	mux := http.NewServeMux()
	su := NewStatsUpdater(mux)
	su.Run()
	defer su.Stop()

	su.RegisterMetric("NumConnections")

	metric := su.vars.Get("NumConnections")
	require.NotNil(t, metric, "expected the metric registered")

	su.Incr("NumConnections")
	su.Incr("NumConnections")
	su.Decr("NumConnections")

	assert.Eventually(t, func() bool {
		return metric.(*expvar.Int).Value() == 1
	}, time.Second, 10*time.Millisecond, "expected increments and decrements applied")

	t.Run("exposes metrics over http", func(t *testing.T) {
		rr := httptest.NewRecorder()
		mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/debug/vars", nil))

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "application/json; charset=utf-8", rr.Header().Get("Content-Type"))

		var data map[string]any
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &data))
		assert.Contains(t, data, "NumConnections")
		assert.Contains(t, data, "Uptime")
	})
}
