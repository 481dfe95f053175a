// Package server runs the HTTP listener of varmock. It owns the transport
// graph (framework middlewares, custom routers, mock dispatch, not-found
// handler), rebuilds it lazily after it is invalidated, and restarts the
// listener when a change requires it.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/varmock/varmock/pkg/logging"
)

// State is the lifecycle state of a Server.
type State string

const (
	StateStopped  State = "stopped"
	StateStarting State = "starting"
	StateStarted  State = "started"
	StateStopping State = "stopping"
	// StateError is reported while the server is stopped after a failed start.
	StateError State = "error"
)

// ErrBind is returned when the listener cannot be bound.
var ErrBind = errors.New("unable to bind listener")

// ShutdownTimeout bounds how long Stop waits for active connections.
const ShutdownTimeout = 5 * time.Second

// Config is the part of the settings the server reads when it starts.
type Config struct {
	Host string
	Port int
	CORS bool
}

// Dispatcher serves mock responses, falling through to next.
type Dispatcher interface {
	Dispatch(w http.ResponseWriter, r *http.Request, next http.Handler)
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(log *slog.Logger) Option {
	return func(s *Server) {
		if log != nil {
			s.log = log
		}
	}
}

// Server is safe for concurrent use.
type Server struct {
	dispatcher Dispatcher
	config     func() Config
	log        *slog.Logger

	group singleflight.Group
	// lifecycle serializes the bodies of start and stop.
	lifecycle sync.Mutex

	mu         sync.Mutex
	state      State
	lastErr    error
	routers    []customRouter
	graph      http.Handler
	httpServer *http.Server
	listener   net.Listener
	cancelBase context.CancelFunc
	serveDone  chan struct{}
	starts     int
}

// New returns a stopped server dispatching to d. config is read on every
// start and graph rebuild.
func New(d Dispatcher, config func() Config, opts ...Option) *Server {
	s := &Server{
		dispatcher: d,
		config:     config,
		log:        logging.Nop(),
		state:      StateStopped,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State returns the lifecycle state. Start treats StateError as stopped.
func (s *Server) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Error returns the last transport failure, or nil after a successful start.
func (s *Server) Error() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Addr returns the bound address, or nil when not listening.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Start binds the listener. Concurrent callers share the result of one
// attempt; starting a started server does nothing. ctx only bounds the wait.
func (s *Server) Start(ctx context.Context) error {
	ch := s.group.DoChan("start", func() (any, error) {
		return nil, s.start()
	})
	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Server) start() error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	s.mu.Lock()
	if s.state == StateStarted {
		s.mu.Unlock()
		return nil
	}
	s.state = StateStarting
	if s.graph == nil {
		s.graph = s.build()
	}
	graph := s.graph
	s.mu.Unlock()

	cfg := s.config()
	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		err = fmt.Errorf("%w %s: %w", ErrBind, addr, err)
		s.log.Error("error starting server", "addr", addr, logging.KeyError, err)
		s.mu.Lock()
		s.state = StateError
		s.lastErr = err
		s.mu.Unlock()
		return err
	}

	base, cancel := context.WithCancel(context.Background())
	srv := &http.Server{
		Handler:           graph,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return base },
		ErrorLog:          slog.NewLogLogger(s.log.Handler(), slog.LevelDebug),
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("server error", logging.KeyError, err)
			s.mu.Lock()
			s.lastErr = err
			s.mu.Unlock()
		}
	}()

	s.mu.Lock()
	s.httpServer = srv
	s.listener = ln
	s.cancelBase = cancel
	s.serveDone = done
	s.state = StateStarted
	s.lastErr = nil
	s.starts++
	s.mu.Unlock()

	s.log.Info("server started", "addr", ln.Addr().String())
	return nil
}

// Stop cancels pending delays and shuts the listener down, waiting for
// active connections up to ShutdownTimeout. Concurrent callers share one
// result; stopping a server without a listener returns immediately.
func (s *Server) Stop(ctx context.Context) error {
	return s.shutdown(ctx, "stop", false)
}

func (s *Server) shutdown(ctx context.Context, key string, drain bool) error {
	ch := s.group.DoChan(key, func() (any, error) {
		return nil, s.stop(drain)
	})
	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// stop closes the listener. With drain, pending delays keep running and
// complete before the transport closes; they are only cancelled once
// ShutdownTimeout expires.
func (s *Server) stop(drain bool) error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	s.mu.Lock()
	srv, cancel, done := s.httpServer, s.cancelBase, s.serveDone
	if srv == nil {
		s.mu.Unlock()
		return nil
	}
	s.state = StateStopping
	s.mu.Unlock()

	s.log.Debug("stopping server", "drain", drain)
	if !drain {
		cancel()
	}
	ctx, cancelTimeout := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancelTimeout()
	err := srv.Shutdown(ctx)
	cancel()
	if err != nil {
		_ = srv.Close()
	}
	<-done

	s.mu.Lock()
	s.httpServer = nil
	s.listener = nil
	s.cancelBase = nil
	s.serveDone = nil
	s.state = StateStopped
	s.mu.Unlock()

	if err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}
	s.log.Info("server stopped")
	return nil
}

// Restart stops and starts the server. Requests in flight, delayed ones
// included, are answered by the graph they were dispatched to before the
// listener closes.
func (s *Server) Restart(ctx context.Context) error {
	if err := s.shutdown(ctx, "restart", true); err != nil {
		return err
	}
	return s.Start(ctx)
}

// SettingsChanged invalidates the transport graph. A host or port change
// restarts a started server.
func (s *Server) SettingsChanged(ctx context.Context, keys ...string) error {
	s.invalidate()
	restart := false
	for _, k := range keys {
		if k == "host" || k == "port" {
			restart = true
		}
	}
	if restart && s.State() == StateStarted {
		s.log.Info("restarting server to apply settings", "keys", keys)
		return s.Restart(ctx)
	}
	return nil
}

func (s *Server) invalidate() {
	s.mu.Lock()
	s.graph = nil
	s.mu.Unlock()
}
