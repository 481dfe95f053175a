package admin

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/varmock/varmock/pkg/httputil"
	"github.com/varmock/varmock/pkg/settings"
)

type aboutResponse struct {
	Version string `json:"version"`
}

func (a *API) handleAbout(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteOK(w, aboutResponse{Version: a.version})
}

func (a *API) handleGetSettings(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteOK(w, a.settings.All())
}

// handlePatchSettings applies every key of the body or none of them.
func (a *API) handlePatchSettings(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	if err := httputil.ReadJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, ErrMsgInvalidJSON+": "+err.Error())
		return
	}

	changes := settings.Flatten(body)
	var errs []error
	for key, value := range changes {
		if err := settings.Check(key, value); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		status, msg := errorStatus(errors.Join(errs...), a.log, "patch settings")
		writeError(w, status, msg)
		return
	}

	for _, key := range settings.Keys() {
		value, ok := changes[key]
		if !ok {
			continue
		}
		if err := a.settings.Set(key, value); err != nil {
			status, msg := errorStatus(err, a.log, "patch settings")
			writeError(w, status, msg)
			return
		}
	}
	httputil.WriteOK(w, a.settings.All())
}

func (a *API) handleListMocks(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteOK(w, a.mocks.PlainMocks())
}

func (a *API) handleGetMock(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	for _, m := range a.mocks.PlainMocks() {
		if m.ID == id {
			httputil.WriteOK(w, m)
			return
		}
	}
	writeError(w, http.StatusNotFound, fmt.Sprintf("Mock with id %q was not found", id))
}

func (a *API) handleListRoutes(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteOK(w, a.mocks.PlainRoutes())
}

func (a *API) handleGetRoute(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	for _, rt := range a.mocks.PlainRoutes() {
		if rt.ID == id {
			httputil.WriteOK(w, rt)
			return
		}
	}
	writeError(w, http.StatusNotFound, fmt.Sprintf("Route with id %q was not found", id))
}

func (a *API) handleListRouteVariants(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteOK(w, a.mocks.PlainRouteVariants())
}

func (a *API) handleGetRouteVariant(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	for _, v := range a.mocks.PlainRouteVariants() {
		if v.ID == id {
			httputil.WriteOK(w, v)
			return
		}
	}
	writeError(w, http.StatusNotFound, fmt.Sprintf("Route variant with id %q was not found", id))
}

func (a *API) handleListCustomVariants(w http.ResponseWriter, _ *http.Request) {
	ids := a.mocks.CustomRouteVariants()
	if ids == nil {
		ids = []string{}
	}
	httputil.WriteOK(w, ids)
}

type customVariantRequest struct {
	ID string `json:"id"`
}

func (a *API) handleAddCustomVariant(w http.ResponseWriter, r *http.Request) {
	var req customVariantRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, ErrMsgInvalidJSON+": "+err.Error())
		return
	}
	if req.ID == "" {
		writeError(w, http.StatusBadRequest, "id is required")
		return
	}
	if err := a.mocks.UseRouteVariant(req.ID); err != nil {
		status, msg := errorStatus(err, a.log, "use route variant")
		writeError(w, status, msg)
		return
	}
	httputil.WriteNoContent(w)
}

func (a *API) handleRestoreVariants(w http.ResponseWriter, _ *http.Request) {
	a.mocks.RestoreRouteVariants()
	httputil.WriteNoContent(w)
}

func (a *API) handleListAlerts(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteOK(w, a.alerts.List())
}
