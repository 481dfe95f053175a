package admin

import (
	"log/slog"
	"net/http"

	"github.com/varmock/varmock/pkg/alerts"
	"github.com/varmock/varmock/pkg/logging"
	"github.com/varmock/varmock/pkg/mocks"
	"github.com/varmock/varmock/pkg/route"
	"github.com/varmock/varmock/pkg/settings"
)

// Mocks is the mock registry as seen by the admin API. Mutations are
// expected to be serialized by the implementation.
type Mocks interface {
	IDs() []string
	Current() string
	PlainMocks() []mocks.PlainMock
	PlainRoutes() []route.PlainRoute
	PlainRouteVariants() []route.PlainVariant
	CustomRouteVariants() []string
	UseRouteVariant(variantID string) error
	RestoreRouteVariants()
}

// Settings reads and writes runtime settings.
type Settings interface {
	All() map[string]any
	Set(key settings.Key, value any) error
}

// Alerts lists active alerts.
type Alerts interface {
	List() []alerts.Alert
}

// API is an http.Handler serving the admin endpoints.
type API struct {
	mocks    Mocks
	settings Settings
	alerts   Alerts
	metrics  http.Handler
	version  string
	log      *slog.Logger

	mux *http.ServeMux
}

// New returns the admin API over the given collaborators.
func New(m Mocks, s Settings, a Alerts, opts ...Option) *API {
	api := &API{
		mocks:    m,
		settings: s,
		alerts:   a,
		version:  "dev",
		log:      logging.Nop(),
		mux:      http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(api)
	}
	api.registerRoutes(api.mux)
	return api
}

// ServeHTTP implements http.Handler.
func (a *API) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.mux.ServeHTTP(w, r)
}
