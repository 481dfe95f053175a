package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/common/expfmt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry(t *testing.T) {
	t.Parallel()

	t.Run("gather", func(t *testing.T) {
		t.Parallel()
		r := New()
		r.RequestServed("users", "ok")
		r.RequestServed("users", "ok")
		r.RequestServed("orders", "slow")
		r.LoadErrors("mocks", 2)
		r.LoadErrors("mocks", 1)
		r.SetMocks(4)

		families := r.Gather()
		require.Len(t, families, 3)
		assert.Equal(t, LoadErrorsTotal, families[0].GetName())
		assert.Equal(t, Mocks, families[1].GetName())
		assert.Equal(t, RequestsTotal, families[2].GetName())

		assert.Equal(t, 3.0, families[0].Metric[0].GetCounter().GetValue())
		assert.Equal(t, 4.0, families[1].Metric[0].GetGauge().GetValue())

		requests := families[2].Metric
		require.Len(t, requests, 2)
		assert.Equal(t, "orders", requests[0].Label[0].GetValue())
		assert.Equal(t, 2.0, requests[1].GetCounter().GetValue())
	})

	t.Run("text output parses back", func(t *testing.T) {
		t.Parallel()
		r := New()
		r.RequestServed("users", "ok")
		r.LoadErrors("routes", 0)
		r.SetMocks(1)

		var sb strings.Builder
		require.NoError(t, r.WriteText(&sb))
		assert.Contains(t, sb.String(), `varmock_requests_total{route="users",variant="ok"} 1`)

		var parser expfmt.TextParser
		parsed, err := parser.TextToMetricFamilies(strings.NewReader(sb.String()))
		require.NoError(t, err)
		assert.Contains(t, parsed, RequestsTotal)
		assert.Contains(t, parsed, LoadErrorsTotal)
		assert.Equal(t, 1.0, parsed[Mocks].Metric[0].GetGauge().GetValue())
	})

	t.Run("empty families are skipped", func(t *testing.T) {
		t.Parallel()
		var sb strings.Builder
		require.NoError(t, New().WriteText(&sb))
		assert.NotContains(t, sb.String(), RequestsTotal)
		assert.Contains(t, sb.String(), "varmock_mocks 0")
	})

	t.Run("handler", func(t *testing.T) {
		t.Parallel()
		r := New()
		r.RequestServed("users", "ok")
		rec := httptest.NewRecorder()
		r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
		assert.Equal(t, 200, rec.Code)
		assert.Contains(t, rec.Header().Get("Content-Type"), "text/plain")
		assert.Contains(t, rec.Body.String(), "# TYPE varmock_requests_total counter")
	})
}
