// Package admin provides the REST API used to inspect and steer a running
// varmock server. It is mounted as a custom router, by default under /admin.
//
// Endpoints:
//
//	GET    /about                       - Version information
//	GET    /settings                    - Current settings
//	PATCH  /settings                    - Change settings
//	GET    /mocks                       - List resolved mocks
//	GET    /mocks/{id}                  - Get one mock
//	GET    /routes                      - List routes
//	GET    /routes/{id}                 - Get one route
//	GET    /route-variants              - List route variants
//	GET    /route-variants/{id}         - Get one route variant
//	GET    /mock-custom-route-variants  - List active overrides
//	POST   /mock-custom-route-variants  - Override a route with {"id": "route:variant"}
//	DELETE /mock-custom-route-variants  - Drop every override
//	GET    /alerts                      - List active alerts
//	GET    /metrics                     - Prometheus metrics
//
// Errors are returned as {"error": "...", "message": "..."}.
package admin
