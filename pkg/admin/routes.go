package admin

import (
	"net/http"
)

func (a *API) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /about", a.handleAbout)

	mux.HandleFunc("GET /settings", a.handleGetSettings)
	mux.HandleFunc("PATCH /settings", a.handlePatchSettings)

	mux.HandleFunc("GET /mocks", a.handleListMocks)
	mux.HandleFunc("GET /mocks/{id}", a.handleGetMock)
	mux.HandleFunc("GET /routes", a.handleListRoutes)
	mux.HandleFunc("GET /routes/{id}", a.handleGetRoute)
	mux.HandleFunc("GET /route-variants", a.handleListRouteVariants)
	mux.HandleFunc("GET /route-variants/{id}", a.handleGetRouteVariant)

	mux.HandleFunc("GET /mock-custom-route-variants", a.handleListCustomVariants)
	mux.HandleFunc("POST /mock-custom-route-variants", a.handleAddCustomVariant)
	mux.HandleFunc("DELETE /mock-custom-route-variants", a.handleRestoreVariants)

	mux.HandleFunc("GET /alerts", a.handleListAlerts)

	if a.metrics != nil {
		mux.Handle("GET /metrics", a.metrics)
	}

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "Unknown admin endpoint "+r.Method+" "+r.URL.Path)
	})
}
