package testing

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/varmock/varmock/pkg/core"
	"github.com/varmock/varmock/pkg/definition"
	"github.com/varmock/varmock/pkg/settings"
)

const definitionsFile = "definitions.json"

// MockServer is a test helper running a varmock core.
type MockServer struct {
	t        testing.TB
	routes   []*RouteBuilder
	mocks    []*MockBuilder
	active   string
	delay    int
	core     *core.Core
	settings *settings.Settings
	baseURL  string
}

// New creates a mock server for t. It is stopped when the test completes.
func New(t testing.TB) *MockServer {
	t.Helper()
	return &MockServer{t: t}
}

// Route declares a route. Without methods the route answers any method.
func (m *MockServer) Route(id, url string, methods ...string) *RouteBuilder {
	r := &RouteBuilder{def: definition.RouteDefinition{ID: id, URL: url}}
	if len(methods) > 0 {
		r.def.Method = definition.Methods(methods)
	}
	m.routes = append(m.routes, r)
	return r
}

// Mock declares a mock. The first declared mock is active unless WithActive
// names another one.
func (m *MockServer) Mock(id string) *MockBuilder {
	b := &MockBuilder{def: definition.MockDefinition{ID: id, Routes: []string{}}}
	m.mocks = append(m.mocks, b)
	return b
}

// WithActive selects the mock served after Start.
func (m *MockServer) WithActive(id string) *MockServer {
	m.active = id
	return m
}

// Collection returns the definitions declared so far.
func (m *MockServer) Collection() (*definition.Collection, error) {
	c := &definition.Collection{}
	for _, r := range m.routes {
		if err := r.Err(); err != nil {
			return nil, err
		}
		c.Routes = append(c.Routes, r.definition())
	}
	for _, b := range m.mocks {
		c.Mocks = append(c.Mocks, b.def)
	}
	return c, nil
}

// Start writes the definitions and serves them on a random local port. It
// returns the base URL. Later calls return the same URL.
func (m *MockServer) Start() string {
	m.t.Helper()
	if m.core != nil {
		return m.baseURL
	}

	c, err := m.Collection()
	if err != nil {
		m.t.Fatalf("varmock: invalid definitions: %v", err)
	}
	data, err := json.Marshal(c)
	if err != nil {
		m.t.Fatalf("varmock: encoding definitions: %v", err)
	}
	dir := m.t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, definitionsFile), data, 0o600); err != nil {
		m.t.Fatalf("varmock: writing definitions: %v", err)
	}

	s := settings.New()
	for key, value := range map[settings.Key]any{
		settings.KeyHost:  "127.0.0.1",
		settings.KeyPort:  0,
		settings.KeyPath:  dir,
		settings.KeyWatch: false,
		settings.KeyMock:  m.active,
		settings.KeyDelay: m.delay,
	} {
		if err := s.SetFrom(key, value, settings.SourceFlag); err != nil {
			m.t.Fatalf("varmock: %v", err)
		}
	}

	vc, err := core.New(s, core.WithVersion("test"))
	if err != nil {
		m.t.Fatalf("varmock: %v", err)
	}
	ctx := context.Background()
	if err := vc.Init(ctx); err != nil {
		m.t.Fatalf("varmock: init: %v", err)
	}
	if err := vc.Start(ctx); err != nil {
		m.t.Fatalf("varmock: start: %v", err)
	}
	m.t.Cleanup(m.Stop)

	m.core = vc
	m.settings = s
	m.baseURL = "http://" + vc.Server().Addr().String()
	return m.baseURL
}

// Stop shuts the server down. It is safe to call more than once.
func (m *MockServer) Stop() {
	if m.core == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.core.Close(ctx); err != nil {
		m.t.Logf("varmock: stop: %v", err)
	}
}

// URL returns the base URL of the started server.
func (m *MockServer) URL() string {
	m.mustStart("URL")
	return m.baseURL
}

// AdminURL returns the base URL of the admin API.
func (m *MockServer) AdminURL() string {
	m.mustStart("AdminURL")
	return m.baseURL + m.settings.String(settings.KeyAdminPath)
}

// Core exposes the running core.
func (m *MockServer) Core() *core.Core {
	m.mustStart("Core")
	return m.core
}

// UseMock switches the active mock.
func (m *MockServer) UseMock(id string) {
	m.t.Helper()
	if m.core == nil {
		m.active = id
		return
	}
	if err := m.settings.Set(settings.KeyMock, id); err != nil {
		m.t.Fatalf("varmock: selecting mock %q: %v", id, err)
	}
}

// SetDelay sets the global delay in milliseconds.
func (m *MockServer) SetDelay(ms int) {
	m.t.Helper()
	if m.core == nil {
		m.delay = ms
		return
	}
	if err := m.settings.Set(settings.KeyDelay, ms); err != nil {
		m.t.Fatalf("varmock: setting delay: %v", err)
	}
}

// Current returns the id of the active mock.
func (m *MockServer) Current() string {
	m.mustStart("Current")
	return m.core.Current()
}

// UseRouteVariant overrides the active mock with the given variant.
func (m *MockServer) UseRouteVariant(variantID string) {
	m.t.Helper()
	m.mustStart("UseRouteVariant")
	if err := m.core.UseRouteVariant(variantID); err != nil {
		m.t.Fatalf("varmock: %v", err)
	}
}

// RestoreRouteVariants removes every override.
func (m *MockServer) RestoreRouteVariants() {
	m.mustStart("RestoreRouteVariants")
	m.core.RestoreRouteVariants()
}

func (m *MockServer) mustStart(op string) {
	m.t.Helper()
	if m.core == nil {
		m.t.Fatalf("varmock: %s called before Start", op)
	}
}
