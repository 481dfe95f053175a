package testing

import (
	"testing"

	"github.com/varmock/varmock/pkg/metrics"
)

// Served returns how many responses the variant of route has produced.
func (m *MockServer) Served(routeID, variantID string) int {
	m.mustStart("Served")
	for _, mf := range m.core.Metrics().Gather() {
		if mf.GetName() != metrics.RequestsTotal {
			continue
		}
		for _, metric := range mf.GetMetric() {
			var route, variant string
			for _, l := range metric.GetLabel() {
				switch l.GetName() {
				case "route":
					route = l.GetValue()
				case "variant":
					variant = l.GetValue()
				}
			}
			if route == routeID && variant == variantID {
				return int(metric.GetCounter().GetValue())
			}
		}
	}
	return 0
}

// AssertServed checks the variant of route answered exactly times requests.
func (m *MockServer) AssertServed(t testing.TB, routeID, variantID string, times int) {
	t.Helper()
	if got := m.Served(routeID, variantID); got != times {
		t.Errorf("expected %s:%s to serve %d requests, served %d", routeID, variantID, times, got)
	}
}

// AssertNotServed checks the variant of route answered no request.
func (m *MockServer) AssertNotServed(t testing.TB, routeID, variantID string) {
	t.Helper()
	if got := m.Served(routeID, variantID); got != 0 {
		t.Errorf("expected %s:%s not to serve requests, served %d", routeID, variantID, got)
	}
}
