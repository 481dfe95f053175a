package mocks

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/varmock/varmock/pkg/alerts"
	"github.com/varmock/varmock/pkg/definition"
	"github.com/varmock/varmock/pkg/handler"
	"github.com/varmock/varmock/pkg/logging"
	"github.com/varmock/varmock/pkg/route"
)

// Alert keys raised by the Registry.
const (
	AlertProcessMocks   = "process:mocks"
	AlertProcessRoutes  = "process:routes"
	AlertRouteVariants  = "process:routes:variants"
	AlertCurrent        = "current"
	AlertCurrentSetting = "current:settings"
	AlertCurrentAmount  = "current:amount"
)

// OverridePrefix prefixes the id of the synthetic mock holding per-route
// overrides of the active mock.
const OverridePrefix = "custom-variants:from:"

var (
	// ErrVariantNotFound is returned when an override names an unknown variant.
	ErrVariantNotFound = errors.New("route variant not found")
	// ErrNoActiveMock is returned when an override is requested with no mock selected.
	ErrNoActiveMock = errors.New("no active mock")
)

// Source supplies the definitions of a load.
type Source interface {
	LoadedRoutes() []definition.RouteDefinition
	LoadedMocks() []definition.MockDefinition
}

// Observer receives operational counts from the Registry.
type Observer interface {
	RequestServed(routeID, variantID string)
	LoadErrors(kind string, n int)
	SetMocks(n int)
}

// Mock is a resolved mock definition.
type Mock struct {
	ID            string
	From          string
	DefinedRoutes []string
	Variants      []*route.Variant

	router *Router
}

func (m *Mock) variantIDs() []string {
	ids := make([]string, len(m.Variants))
	for i, v := range m.Variants {
		ids[i] = v.VariantID
	}
	return ids
}

// PlainMock is the introspection view of a Mock.
type PlainMock struct {
	ID            string   `json:"id"`
	From          string   `json:"from,omitempty"`
	DefinedRoutes []string `json:"definedRoutes"`
	Routes        []string `json:"routes"`
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger.
func WithLogger(log *slog.Logger) Option {
	return func(r *Registry) {
		if log != nil {
			r.log = log
		}
	}
}

// WithAlerts sets the alert sink.
func WithAlerts(sink alerts.Sink) Option {
	return func(r *Registry) {
		if sink != nil {
			r.alerts = sink
		}
	}
}

// WithDelay sets the global delay applied to variants without their own.
func WithDelay(fn DelayFunc) Option {
	return func(r *Registry) { r.delay = fn }
}

// WithOnChange registers a callback invoked after every published change.
func WithOnChange(fn func()) Option {
	return func(r *Registry) { r.onChange = fn }
}

// WithActive sets the mock id selected by the first Load.
func WithActive(id string) Option {
	return func(r *Registry) { r.selected = id }
}

// WithObserver sets the receiver of request and load counts.
func WithObserver(o Observer) Option {
	return func(r *Registry) { r.observer = o }
}

type snapshot struct {
	ids      []string
	current  string
	mocks    []PlainMock
	routes   []route.PlainRoute
	variants []route.PlainVariant
	custom   []string
}

// Registry owns the resolved mocks and the router currently serving traffic.
//
// Control-plane methods (Load, SetActive, UseRouteVariant,
// RestoreRouteVariants) are serialized by an internal mutex. Dispatch and the
// introspection methods never take it.
type Registry struct {
	source   Source
	kinds    *handler.Registry
	log      *slog.Logger
	alerts   alerts.Sink
	delay    DelayFunc
	onChange func()
	observer Observer

	mu        sync.Mutex
	built     *route.BuildResult
	defs      map[string]definition.MockDefinition
	mocks     []*Mock
	byID      map[string]*Mock
	selected  string
	current   *Mock
	overrides []string
	custom    *Mock

	router atomic.Pointer[Router]
	snap   atomic.Pointer[snapshot]
}

// NewRegistry returns an empty Registry reading definitions from source and
// building handlers from kinds. Call Load to populate it.
func NewRegistry(source Source, kinds *handler.Registry, opts ...Option) *Registry {
	r := &Registry{
		source: source,
		kinds:  kinds,
		log:    logging.Nop(),
		alerts: alerts.Nop(),
		built:  route.Build(nil, kinds, nil),
		byID:   map[string]*Mock{},
	}
	for _, opt := range opts {
		opt(r)
	}
	r.router.Store(r.newRouter(nil))
	r.snap.Store(&snapshot{})
	return r
}

func (r *Registry) newRouter(variants []*route.Variant) *Router {
	var observe func(*route.Variant)
	if r.observer != nil {
		observe = func(v *route.Variant) { r.observer.RequestServed(v.RouteID, v.ID) }
	}
	return NewRouter(variants, r.delay, observe)
}

// Load rebuilds routes and mocks from the source, then reselects the active
// mock by id. Overrides survive the reload when every one of them still
// resolves; otherwise they are cleared.
func (r *Registry) Load() {
	r.mu.Lock()
	r.load()
	r.publish()
	r.mu.Unlock()
	r.changed()
}

func (r *Registry) load() {
	built := route.Build(r.source.LoadedRoutes(), r.kinds, r.log)
	r.alerts.Remove(AlertProcessRoutes)
	if n := len(built.Errors); n > 0 {
		r.alerts.Add(AlertRouteVariants, fmt.Sprintf("%d route variants could not be processed", n))
	}
	r.built = built

	defs := r.source.LoadedMocks()
	r.defs = make(map[string]definition.MockDefinition, len(defs))
	r.mocks = make([]*Mock, 0, len(defs))
	r.byID = make(map[string]*Mock, len(defs))
	r.alerts.Remove(AlertProcessMocks)

	errCount := 0
	order := make([]string, 0, len(defs))
	for _, def := range defs {
		if _, dup := r.defs[def.ID]; dup {
			errCount++
			r.log.Error("duplicate mock id", logging.KeyMock, def.ID)
			r.alerts.Add(AlertProcessMocks+alerts.Separator+def.ID, fmt.Sprintf("Mock with id %q is duplicated", def.ID))
			continue
		}
		r.defs[def.ID] = def
		order = append(order, def.ID)
	}

	for _, id := range order {
		def := r.defs[id]
		res, err := Resolve(id, r.defs, built.Lookup)
		if err != nil {
			errCount++
			r.log.Error("error processing mock", logging.KeyMock, id, logging.KeyError, err)
			r.alerts.Add(AlertProcessMocks+alerts.Separator+id, err.Error())
			continue
		}
		if n := len(res.Dropped); n > 0 {
			r.log.Warn("mock references unresolved route variants", logging.KeyMock, id, "variants", res.Dropped)
			r.alerts.Add(AlertProcessMocks+alerts.Separator+id+alerts.Separator+"variants",
				fmt.Sprintf("%d route variants of mock %q could not be resolved", n, id))
		}
		m := &Mock{
			ID:            id,
			From:          def.From,
			DefinedRoutes: slices.Clone(def.Routes),
			Variants:      res.Variants,
		}
		m.router = r.newRouter(m.Variants)
		r.mocks = append(r.mocks, m)
		r.byID[id] = m
	}
	if errCount > 0 {
		r.alerts.Add(AlertProcessMocks, fmt.Sprintf("%d errors found while loading mocks", errCount))
	}

	if r.observer != nil {
		r.observer.LoadErrors("routes", len(built.Errors))
		r.observer.LoadErrors("mocks", errCount)
		r.observer.SetMocks(len(r.mocks))
	}
	r.log.Info("mocks loaded", "mocks", len(r.mocks), "variants", len(built.Variants))

	saved := r.overrides
	r.selectActive(r.selected)
	if len(saved) == 0 || r.current == nil {
		return
	}
	for _, id := range saved {
		if _, ok := built.Lookup(id); !ok {
			r.log.Info("clearing route variant overrides after reload", "missing", id)
			return
		}
	}
	r.overrides = saved
	r.applyOverrides()
}

// SetActive selects the mock answering requests and clears overrides. An
// empty or unknown id falls back to the first mock and raises an alert.
func (r *Registry) SetActive(id string) {
	r.mu.Lock()
	r.selectActive(id)
	r.publish()
	r.mu.Unlock()
	r.changed()
}

func (r *Registry) selectActive(id string) {
	r.selected = id
	r.overrides = nil
	r.custom = nil

	if len(r.mocks) == 0 {
		r.current = nil
		if id == "" {
			r.alerts.Add(AlertCurrentSetting, `"mock" option was not defined`)
		} else {
			r.alerts.Remove(AlertCurrentSetting)
		}
		r.alerts.Add(AlertCurrentAmount, "No mocks found")
		r.router.Store(r.newRouter(nil))
		return
	}
	r.alerts.Remove(AlertCurrentAmount)

	m, ok := r.byID[id]
	switch {
	case id == "":
		m = r.mocks[0]
		r.alerts.Add(AlertCurrentSetting, `"mock" option was not defined. Using the first one found`)
	case !ok:
		m = r.mocks[0]
		r.alerts.Add(AlertCurrentSetting, fmt.Sprintf("Mock %q was not found. Using the first one found", id))
	default:
		r.alerts.Remove(AlertCurrentSetting)
	}

	r.current = m
	r.router.Store(m.router)
	r.log.Info("mock selected", logging.KeyMock, m.ID, "variants", m.router.Len())
}

// UseRouteVariant overrides the active mock's choice for the variant's route.
// A previous override of the same route is replaced in place.
func (r *Registry) UseRouteVariant(variantID string) error {
	r.mu.Lock()
	v, ok := r.built.Lookup(variantID)
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrVariantNotFound, variantID)
	}
	if r.current == nil {
		r.mu.Unlock()
		return ErrNoActiveMock
	}

	next := slices.Clone(r.overrides)
	replaced := false
	for i, id := range next {
		if o, _ := r.built.Lookup(id); o != nil && o.RouteID == v.RouteID {
			next[i] = variantID
			replaced = true
			break
		}
	}
	if !replaced {
		next = append(next, variantID)
	}
	r.overrides = next
	r.applyOverrides()
	r.publish()
	r.mu.Unlock()
	r.changed()
	return nil
}

func (r *Registry) applyOverrides() {
	def := definition.MockDefinition{
		ID:     OverridePrefix + r.current.ID,
		From:   r.current.ID,
		Routes: r.overrides,
	}
	defs := make(map[string]definition.MockDefinition, len(r.defs)+1)
	for id, d := range r.defs {
		defs[id] = d
	}
	defs[def.ID] = def

	res, err := Resolve(def.ID, defs, r.built.Lookup)
	if err != nil {
		// The base resolved during load, so this only happens if the
		// definitions changed underneath; fall back to the active mock.
		r.log.Error("error applying route variant overrides", logging.KeyError, err)
		r.overrides = nil
		r.custom = nil
		r.router.Store(r.current.router)
		return
	}
	m := &Mock{ID: def.ID, From: def.From, DefinedRoutes: slices.Clone(def.Routes), Variants: res.Variants}
	m.router = r.newRouter(m.Variants)
	r.custom = m
	r.router.Store(m.router)
}

// RestoreRouteVariants drops every override.
func (r *Registry) RestoreRouteVariants() {
	r.mu.Lock()
	r.overrides = nil
	r.custom = nil
	if r.current != nil {
		r.router.Store(r.current.router)
	} else {
		r.router.Store(r.newRouter(nil))
	}
	r.publish()
	r.mu.Unlock()
	r.changed()
}

// Dispatch serves r with the router current at call time.
func (r *Registry) Dispatch(w http.ResponseWriter, req *http.Request, next http.Handler) {
	r.router.Load().Dispatch(w, req, next)
}

// Handler returns an http.Handler dispatching to the registry and falling
// through to next.
func (r *Registry) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		r.Dispatch(w, req, next)
	})
}

func (r *Registry) publish() {
	s := &snapshot{
		ids:      make([]string, len(r.mocks)),
		mocks:    make([]PlainMock, len(r.mocks)),
		routes:   r.built.Routes,
		variants: make([]route.PlainVariant, len(r.built.Variants)),
		custom:   slices.Clone(r.overrides),
	}
	for i, m := range r.mocks {
		s.ids[i] = m.ID
		s.mocks[i] = PlainMock{ID: m.ID, From: m.From, DefinedRoutes: m.DefinedRoutes, Routes: m.variantIDs()}
	}
	for i, v := range r.built.Variants {
		s.variants[i] = v.Plain()
	}
	if r.current != nil {
		s.current = r.current.ID
	}
	r.snap.Store(s)
}

func (r *Registry) changed() {
	if r.onChange != nil {
		r.onChange()
	}
}

// IDs returns the ids of the resolved mocks in definition order.
func (r *Registry) IDs() []string { return slices.Clone(r.snap.Load().ids) }

// Current returns the id of the active mock, or "" when there is none.
func (r *Registry) Current() string { return r.snap.Load().current }

// PlainMocks returns the introspection view of every resolved mock.
func (r *Registry) PlainMocks() []PlainMock {
	src := r.snap.Load().mocks
	out := make([]PlainMock, len(src))
	for i, m := range src {
		out[i] = PlainMock{
			ID:            m.ID,
			From:          m.From,
			DefinedRoutes: slices.Clone(m.DefinedRoutes),
			Routes:        slices.Clone(m.Routes),
		}
	}
	return out
}

// PlainRoutes returns the introspection view of every route.
func (r *Registry) PlainRoutes() []route.PlainRoute {
	src := r.snap.Load().routes
	out := make([]route.PlainRoute, len(src))
	for i, rt := range src {
		rt.Method = slices.Clone(rt.Method)
		rt.Variants = slices.Clone(rt.Variants)
		out[i] = rt
	}
	return out
}

// PlainRouteVariants returns the introspection view of every built variant.
func (r *Registry) PlainRouteVariants() []route.PlainVariant {
	return slices.Clone(r.snap.Load().variants)
}

// CustomRouteVariants returns the active overrides in application order.
func (r *Registry) CustomRouteVariants() []string {
	return slices.Clone(r.snap.Load().custom)
}
