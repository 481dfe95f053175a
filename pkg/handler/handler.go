// Package handler defines the capability every route variant exposes and the
// registry that maps handler kind tags to constructors.
//
// A variant definition names its kind with the "handler" key (default
// "default"). At load time the kind is looked up in a Registry and its
// Factory builds the Handler from the variant options; unknown kinds and
// invalid options are reported then, never per request.
package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"
)

var (
	// ErrUnknownKind is returned when no factory is registered for a kind.
	ErrUnknownKind = errors.New("unknown handler kind")
	// ErrDuplicateKind is returned when registering a kind twice.
	ErrDuplicateKind = errors.New("duplicate handler kind")
	// ErrInvalidOptions wraps option decoding and validation failures.
	ErrInvalidOptions = errors.New("invalid handler options")
)

// Handler answers requests routed to one variant.
type Handler interface {
	// Handle writes the response or passes the request on to next.
	Handle(w http.ResponseWriter, r *http.Request, next http.Handler)
	// Preview returns a static, JSON-encodable view of the response.
	Preview() any
}

// Spec carries everything a Factory may use to build a Handler.
type Spec struct {
	ID        string // variant id within its route
	VariantID string // composite "routeId:variantId"
	RouteID   string
	URL       string
	Methods   []string
	Options   map[string]any
}

// DecodeOptions decodes the spec options into dst using JSON field names.
func (s Spec) DecodeOptions(dst any) error {
	data, err := json.Marshal(s.Options)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidOptions, err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidOptions, err)
	}
	return nil
}

// Factory builds a Handler for one variant.
type Factory func(spec Spec) (Handler, error)

// Kind pairs a stable tag with its Factory.
type Kind struct {
	ID  string
	New Factory
}

// Registry maps kind tags to factories. It is safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	kinds map[string]Factory
}

// NewRegistry creates a Registry holding kinds. Later duplicates are ignored.
func NewRegistry(kinds ...Kind) *Registry {
	r := &Registry{kinds: make(map[string]Factory, len(kinds))}
	for _, k := range kinds {
		_ = r.Register(k)
	}
	return r
}

// Register adds a kind.
func (r *Registry) Register(k Kind) error {
	if k.ID == "" || k.New == nil {
		return fmt.Errorf("%w: kind needs an id and a factory", ErrInvalidOptions)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.kinds[k.ID]; ok {
		return fmt.Errorf("%w: %q", ErrDuplicateKind, k.ID)
	}
	r.kinds[k.ID] = k.New
	return nil
}

// Lookup returns the factory registered for kind.
func (r *Registry) Lookup(kind string) (Factory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.kinds[kind]
	return f, ok
}

// Kinds returns the registered tags, sorted.
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.kinds))
	for id := range r.kinds {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// New builds a handler of the given kind.
func (r *Registry) New(kind string, spec Spec) (Handler, error) {
	factory, ok := r.Lookup(kind)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	h, err := factory(spec)
	if err != nil {
		return nil, fmt.Errorf("%s handler for %q: %w", kind, spec.VariantID, err)
	}
	return h, nil
}

// Builtins returns the handler kinds shipped with varmock.
func Builtins() []Kind {
	return []Kind{
		{ID: KindDefault, New: NewJSON},
		{ID: KindJSON, New: NewJSON},
		{ID: KindText, New: NewText},
		{ID: KindFile, New: NewFile},
		{ID: KindTemplate, New: NewTemplate},
	}
}

// Func adapts a plain function into a Handler with a fixed preview.
type Func struct {
	Fn          func(w http.ResponseWriter, r *http.Request, next http.Handler)
	PreviewData any
}

// Handle calls Fn.
func (f Func) Handle(w http.ResponseWriter, r *http.Request, next http.Handler) {
	f.Fn(w, r, next)
}

// Preview returns PreviewData.
func (f Func) Preview() any { return f.PreviewData }
