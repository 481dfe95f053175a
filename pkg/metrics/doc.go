// Package metrics counts served requests and load errors and exposes them in
// the Prometheus text exposition format.
//
// Exposed families:
//
//   - varmock_requests_total: responses served, labelled by route and variant
//   - varmock_load_errors_total: route variants or mocks that failed to load, labelled by kind
//   - varmock_mocks: mocks resolved by the last load
//
// A Registry satisfies mocks.Observer and is usually handed to the mock
// registry with mocks.WithObserver:
//
//	reg := metrics.New()
//	registry := mocks.NewRegistry(loader, kinds, mocks.WithObserver(reg))
//	mux.Handle("/metrics", reg.Handler())
package metrics
