// Package core wires settings, definition loading, the mock registry, the
// HTTP server and the admin API into one running varmock instance.
//
// Control-plane calls arriving from the definitions watcher, settings
// changes and the admin API are serialized by a single mutex. Server
// reconfiguration triggered by a settings change runs in the background so a
// request to the admin API can change the port of the server answering it.
package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/varmock/varmock/pkg/admin"
	"github.com/varmock/varmock/pkg/alerts"
	"github.com/varmock/varmock/pkg/definition"
	"github.com/varmock/varmock/pkg/handler"
	"github.com/varmock/varmock/pkg/logging"
	"github.com/varmock/varmock/pkg/metrics"
	"github.com/varmock/varmock/pkg/mocks"
	"github.com/varmock/varmock/pkg/route"
	"github.com/varmock/varmock/pkg/server"
	"github.com/varmock/varmock/pkg/settings"
)

// ErrAlreadyInitialized is returned by a second call to Init.
var ErrAlreadyInitialized = errors.New("core already initialized")

// Option configures a Core.
type Option func(*Core)

// WithLogger sets the root logger.
func WithLogger(log *slog.Logger) Option {
	return func(c *Core) {
		if log != nil {
			c.log = log
		}
	}
}

// WithLevel lets log.level changes adjust the logger threshold at runtime.
func WithLevel(level *slog.LevelVar) Option {
	return func(c *Core) { c.level = level }
}

// WithVersion sets the version reported by the admin API.
func WithVersion(version string) Option {
	return func(c *Core) { c.version = version }
}

// WithKinds registers handler kinds beyond the built-in ones.
func WithKinds(kinds ...handler.Kind) Option {
	return func(c *Core) { c.extraKinds = append(c.extraKinds, kinds...) }
}

// WithDebounce sets how long the watcher waits for a burst of file events to
// settle before reloading.
func WithDebounce(d time.Duration) Option {
	return func(c *Core) { c.debounce = d }
}

// Core is one varmock instance.
type Core struct {
	settings *settings.Settings
	alerts   *alerts.Set
	kinds    *handler.Registry
	loader   *definition.Loader
	metrics  *metrics.Registry
	registry *mocks.Registry
	server   *server.Server
	admin    *admin.API

	log        *slog.Logger
	level      *slog.LevelVar
	version    string
	debounce   time.Duration
	extraKinds []handler.Kind

	// mu serializes control-plane calls.
	mu          sync.Mutex
	initialized bool
	unsubscribe func()

	// serverMu serializes background server reconfiguration.
	serverMu  sync.Mutex
	adminPath string
	bg        sync.WaitGroup

	watchMu   sync.Mutex
	stopWatch context.CancelFunc
	watchDone chan struct{}
	running   atomic.Bool
}

// New builds a Core over s. Nothing is loaded or bound until Init and Start.
func New(s *settings.Settings, opts ...Option) (*Core, error) {
	c := &Core{
		settings: s,
		alerts:   alerts.New(),
		metrics:  metrics.New(),
		log:      logging.Nop(),
		version:  "dev",
		debounce: definition.DefaultDebounce,
	}
	for _, opt := range opts {
		opt(c)
	}

	c.kinds = handler.NewRegistry(handler.Builtins()...)
	for _, k := range c.extraKinds {
		if err := c.kinds.Register(k); err != nil {
			return nil, err
		}
	}

	c.loader = definition.NewLoader(s.String(settings.KeyPath),
		definition.WithLoaderLogger(logging.Component(c.log, "loader")),
		definition.WithLoaderAlerts(c.alerts))

	c.registry = mocks.NewRegistry(c.loader, c.kinds,
		mocks.WithLogger(logging.Component(c.log, "mocks")),
		mocks.WithAlerts(c.alerts),
		mocks.WithObserver(c.metrics),
		mocks.WithActive(s.String(settings.KeyMock)),
		mocks.WithDelay(func() time.Duration {
			return time.Duration(s.Int(settings.KeyDelay)) * time.Millisecond
		}))

	c.server = server.New(c.registry, c.serverConfig,
		server.WithLogger(logging.Component(c.log, "server")))

	c.admin = admin.New(c, s, c.alerts,
		admin.WithLogger(logging.Component(c.log, "admin")),
		admin.WithVersion(c.version),
		admin.WithMetrics(c.metrics.Handler()))
	return c, nil
}

func (c *Core) serverConfig() server.Config {
	return server.Config{
		Host: c.settings.String(settings.KeyHost),
		Port: c.settings.Int(settings.KeyPort),
		CORS: c.settings.Bool(settings.KeyCORS),
	}
}

// Init loads the definitions, mounts the admin API and starts following
// settings changes.
func (c *Core) Init(ctx context.Context) error {
	c.mu.Lock()
	if c.initialized {
		c.mu.Unlock()
		return ErrAlreadyInitialized
	}
	c.initialized = true
	_ = c.reload()
	c.unsubscribe = c.settings.Subscribe(c.settingChanged)
	c.mu.Unlock()

	c.serverMu.Lock()
	defer c.serverMu.Unlock()
	c.adminPath = c.settings.String(settings.KeyAdminPath)
	if err := c.server.AddCustomRouter(ctx, c.adminPath, c.admin); err != nil {
		return fmt.Errorf("mounting admin api: %w", err)
	}
	return nil
}

// Start binds the server and, when enabled, watches the definitions folder.
func (c *Core) Start(ctx context.Context) error {
	if err := c.server.Start(ctx); err != nil {
		return err
	}
	c.running.Store(true)
	if c.settings.Bool(settings.KeyWatch) {
		c.startWatch()
	}
	return nil
}

// Stop ends watching, waits for pending reconfiguration and stops the server.
func (c *Core) Stop(ctx context.Context) error {
	c.running.Store(false)
	c.stopWatching()
	c.bg.Wait()
	return c.server.Stop(ctx)
}

// Close stops following settings changes. The Core cannot be restarted.
func (c *Core) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.unsubscribe != nil {
		c.unsubscribe()
		c.unsubscribe = nil
	}
	c.mu.Unlock()
	return c.Stop(ctx)
}

// Reload reads the definitions folder and rebuilds every mock.
func (c *Core) Reload() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reload()
}

func (c *Core) reload() error {
	report, err := c.loader.Load()
	if err != nil {
		c.log.Error("error loading definitions", "path", c.loader.Dir(), logging.KeyError, err)
	} else if n := len(report.Failed); n > 0 {
		c.log.Warn("some definition files failed to load", "failed", n)
	}
	c.registry.Load()
	return err
}

func (c *Core) settingChanged(key settings.Key) {
	c.log.Debug("setting changed", "key", key, "value", c.settings.Get(key))

	switch key {
	case settings.KeyMock:
		c.mu.Lock()
		c.registry.SetActive(c.settings.String(settings.KeyMock))
		c.mu.Unlock()
	case settings.KeyPath:
		c.mu.Lock()
		c.loader.SetDir(c.settings.String(settings.KeyPath))
		_ = c.reload()
		c.mu.Unlock()
		if c.running.Load() && c.settings.Bool(settings.KeyWatch) {
			c.startWatch()
		}
	case settings.KeyWatch:
		if c.running.Load() && c.settings.Bool(settings.KeyWatch) {
			c.startWatch()
		} else {
			c.stopWatching()
		}
	case settings.KeyLogLevel:
		if c.level != nil {
			c.level.Set(logging.ParseLevel(c.settings.String(settings.KeyLogLevel)))
		}
	case settings.KeyAdminPath:
		c.background(c.remountAdmin)
		return
	}

	c.background(func(ctx context.Context) error {
		return c.server.SettingsChanged(ctx, string(key))
	})
}

func (c *Core) remountAdmin(ctx context.Context) error {
	next := c.settings.String(settings.KeyAdminPath)
	if next == c.adminPath {
		return nil
	}
	if err := c.server.RemoveCustomRouter(ctx, c.adminPath, c.admin); err != nil {
		return err
	}
	c.adminPath = next
	return c.server.AddCustomRouter(ctx, next, c.admin)
}

// background runs fn after the calling request has had a chance to finish.
func (c *Core) background(fn func(ctx context.Context) error) {
	c.bg.Add(1)
	go func() {
		defer c.bg.Done()
		c.serverMu.Lock()
		defer c.serverMu.Unlock()
		if err := fn(context.Background()); err != nil {
			c.log.Error("error applying settings to server", logging.KeyError, err)
		}
	}()
}

func (c *Core) startWatch() {
	c.watchMu.Lock()
	defer c.watchMu.Unlock()
	c.stopWatchLocked()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	dir := c.loader.Dir()
	log := logging.Component(c.log, "watcher")
	go func() {
		defer close(done)
		if err := definition.Watch(ctx, dir, c.debounce, log, func() { _ = c.Reload() }); err != nil {
			log.Error("unable to watch definitions", "path", dir, logging.KeyError, err)
		}
	}()
	c.stopWatch = cancel
	c.watchDone = done
}

// stopWatching must not be called with c.mu held: the watcher may be waiting
// for it inside Reload.
func (c *Core) stopWatching() {
	c.watchMu.Lock()
	defer c.watchMu.Unlock()
	c.stopWatchLocked()
}

func (c *Core) stopWatchLocked() {
	if c.stopWatch == nil {
		return
	}
	c.stopWatch()
	<-c.watchDone
	c.stopWatch, c.watchDone = nil, nil
}

// Settings returns the settings of the instance.
func (c *Core) Settings() *settings.Settings { return c.settings }

// Alerts returns the alert set of the instance.
func (c *Core) Alerts() *alerts.Set { return c.alerts }

// Server returns the HTTP server.
func (c *Core) Server() *server.Server { return c.server }

// Metrics returns the metrics registry.
func (c *Core) Metrics() *metrics.Registry { return c.metrics }

// IDs returns the resolved mock ids.
func (c *Core) IDs() []string { return c.registry.IDs() }

// Current returns the active mock id.
func (c *Core) Current() string { return c.registry.Current() }

// PlainMocks returns every resolved mock.
func (c *Core) PlainMocks() []mocks.PlainMock { return c.registry.PlainMocks() }

// PlainRoutes returns every route.
func (c *Core) PlainRoutes() []route.PlainRoute { return c.registry.PlainRoutes() }

// PlainRouteVariants returns every route variant.
func (c *Core) PlainRouteVariants() []route.PlainVariant { return c.registry.PlainRouteVariants() }

// CustomRouteVariants returns the active overrides.
func (c *Core) CustomRouteVariants() []string { return c.registry.CustomRouteVariants() }

// UseRouteVariant overrides one route of the active mock.
func (c *Core) UseRouteVariant(variantID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.registry.UseRouteVariant(variantID)
}

// RestoreRouteVariants drops every override.
func (c *Core) RestoreRouteVariants() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.registry.RestoreRouteVariants()
}
