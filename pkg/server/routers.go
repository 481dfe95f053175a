package server

import (
	"context"
	"net/http"
	"reflect"
	"strings"
)

type customRouter struct {
	path    string
	handler http.Handler
}

// AddCustomRouter mounts h under the path prefix, ahead of the mock
// dispatch. A started server restarts once; a starting server restarts after
// the in-flight start completes; a stopped server only rebuilds on its next
// start.
func (s *Server) AddCustomRouter(ctx context.Context, path string, h http.Handler) error {
	s.mu.Lock()
	s.routers = append(s.routers, customRouter{path: normalizePrefix(path), handler: h})
	s.graph = nil
	state := s.state
	s.mu.Unlock()

	s.log.Debug("custom router added", "path", path)
	return s.reinit(ctx, state)
}

// RemoveCustomRouter unmounts the router registered with the same path and
// handler. Removing an unknown router only invalidates the graph.
func (s *Server) RemoveCustomRouter(ctx context.Context, path string, h http.Handler) error {
	prefix := normalizePrefix(path)

	s.mu.Lock()
	for i, cr := range s.routers {
		if cr.path == prefix && sameHandler(cr.handler, h) {
			s.routers = append(s.routers[:i:i], s.routers[i+1:]...)
			break
		}
	}
	s.graph = nil
	state := s.state
	s.mu.Unlock()

	s.log.Debug("custom router removed", "path", path)
	return s.reinit(ctx, state)
}

func (s *Server) reinit(ctx context.Context, state State) error {
	switch state {
	case StateStarted, StateStarting:
		// Restart waits on the lifecycle lock held by an in-flight start.
		return s.Restart(ctx)
	default:
		return nil
	}
}

func normalizePrefix(path string) string {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	if len(path) > 1 {
		path = strings.TrimRight(path, "/")
	}
	return path
}

// mount routes requests under prefix to h with the prefix stripped, and
// everything else to next.
func mount(prefix string, h, next http.Handler) http.Handler {
	if prefix == "/" {
		return h
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := r.URL.Path
		if p != prefix && !strings.HasPrefix(p, prefix+"/") {
			next.ServeHTTP(w, r)
			return
		}
		http.StripPrefix(prefix, ensureRoot(h)).ServeHTTP(w, r)
	})
}

// ensureRoot maps the empty path left by stripping an exact prefix match to "/".
func ensureRoot(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "" {
			r.URL.Path = "/"
		}
		h.ServeHTTP(w, r)
	})
}

// sameHandler compares handlers by identity. Func-backed handlers such as
// http.HandlerFunc compare by code pointer, since func values themselves are
// not comparable.
func sameHandler(a, b http.Handler) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	va, vb := reflect.ValueOf(a), reflect.ValueOf(b)
	if va.Type() != vb.Type() {
		return false
	}
	switch va.Kind() {
	case reflect.Func, reflect.Pointer, reflect.Map, reflect.Chan, reflect.UnsafePointer:
		return va.Pointer() == vb.Pointer()
	}
	if va.Comparable() {
		return va.Equal(vb)
	}
	return false
}
