// Package route turns route definitions into routable variants: each variant
// definition becomes a Variant holding the handler built for its kind, the
// route's URL pattern and methods, and its effective delay.
package route

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/varmock/varmock/internal/matching"
	"github.com/varmock/varmock/pkg/definition"
	"github.com/varmock/varmock/pkg/handler"
	"github.com/varmock/varmock/pkg/logging"
)

// ErrDuplicateVariant is reported when two variants share a composite id.
var ErrDuplicateVariant = errors.New("duplicate route variant")

// Variant is one concrete, routable response of a route.
type Variant struct {
	ID        string // id within the route
	VariantID string // composite "routeId:variantId"
	RouteID   string
	URL       string
	Methods   matching.MethodSet
	Kind      string
	Delay     *time.Duration // variant delay, else route delay, else nil
	Handler   handler.Handler

	pattern *matching.Pattern
}

// Match reports whether r targets this variant's route and returns the URL
// parameters.
func (v *Variant) Match(r *http.Request) (map[string]string, bool) {
	if !v.Methods.Match(r.Method) {
		return nil, false
	}
	return v.pattern.Match(r.URL.Path)
}

// PlainVariant is the introspection view of a Variant.
type PlainVariant struct {
	ID       string `json:"id"`
	RouteID  string `json:"routeId"`
	Handler  string `json:"handler"`
	Response any    `json:"response"`
	Delay    *int   `json:"delay"`
}

// Plain returns the introspection view of v.
func (v *Variant) Plain() PlainVariant {
	return PlainVariant{
		ID:       v.VariantID,
		RouteID:  v.RouteID,
		Handler:  v.Kind,
		Response: v.Handler.Preview(),
		Delay:    millis(v.Delay),
	}
}

// PlainRoute is the introspection view of a route definition. Variants lists
// only the composite ids that were built successfully.
type PlainRoute struct {
	ID       string   `json:"id"`
	URL      string   `json:"url"`
	Method   []string `json:"method"`
	Delay    *int     `json:"delay"`
	Variants []string `json:"variants"`
}

// BuildResult is the outcome of Build.
type BuildResult struct {
	Variants []*Variant
	Routes   []PlainRoute
	Errors   []error

	byID map[string]*Variant
}

// Lookup returns the variant with the given composite id.
func (b *BuildResult) Lookup(variantID string) (*Variant, bool) {
	v, ok := b.byID[variantID]
	return v, ok
}

// Build instantiates every variant of defs. A variant whose kind is unknown,
// whose options are rejected, or whose composite id is taken is skipped and
// recorded in Errors; the rest of the build continues.
func Build(defs []definition.RouteDefinition, kinds *handler.Registry, log *slog.Logger) *BuildResult {
	if log == nil {
		log = logging.Nop()
	}
	res := &BuildResult{byID: make(map[string]*Variant)}

	for _, def := range defs {
		plain := PlainRoute{
			ID:       def.ID,
			URL:      def.URL,
			Method:   []string(def.Method),
			Delay:    def.Delay,
			Variants: []string{},
		}

		pattern, err := matching.Compile(def.URL)
		if err != nil {
			for _, vdef := range def.Variants {
				res.fail(log, def.ID, definition.VariantID(def.ID, vdef.ID), err)
			}
			res.Routes = append(res.Routes, plain)
			continue
		}

		for _, vdef := range def.Variants {
			v, err := buildVariant(def, vdef, pattern, kinds)
			if err == nil {
				if _, taken := res.byID[v.VariantID]; taken {
					err = fmt.Errorf("%w: %q", ErrDuplicateVariant, v.VariantID)
				}
			}
			if err != nil {
				res.fail(log, def.ID, definition.VariantID(def.ID, vdef.ID), err)
				continue
			}
			res.byID[v.VariantID] = v
			res.Variants = append(res.Variants, v)
			plain.Variants = append(plain.Variants, v.VariantID)
		}
		res.Routes = append(res.Routes, plain)
	}
	return res
}

func (b *BuildResult) fail(log *slog.Logger, routeID, variantID string, err error) {
	log.Error("error processing route variant",
		logging.KeyRoute, routeID, logging.KeyVariant, variantID, logging.KeyError, err)
	b.Errors = append(b.Errors, err)
}

func buildVariant(def definition.RouteDefinition, vdef definition.VariantDefinition, pattern *matching.Pattern, kinds *handler.Registry) (*Variant, error) {
	variantID := definition.VariantID(def.ID, vdef.ID)
	kind := vdef.HandlerKind()

	h, err := kinds.New(kind, handler.Spec{
		ID:        vdef.ID,
		VariantID: variantID,
		RouteID:   def.ID,
		URL:       def.URL,
		Methods:   []string(def.Method),
		Options:   vdef.Options,
	})
	if err != nil {
		return nil, err
	}

	return &Variant{
		ID:        vdef.ID,
		VariantID: variantID,
		RouteID:   def.ID,
		URL:       def.URL,
		Methods:   matching.NewMethodSet(def.Method...),
		Kind:      kind,
		Delay:     effectiveDelay(vdef.Delay, def.Delay),
		Handler:   h,
		pattern:   pattern,
	}, nil
}

func effectiveDelay(variant, route *int) *time.Duration {
	ms := variant
	if ms == nil {
		ms = route
	}
	if ms == nil {
		return nil
	}
	d := time.Duration(*ms) * time.Millisecond
	return &d
}

func millis(d *time.Duration) *int {
	if d == nil {
		return nil
	}
	ms := int(*d / time.Millisecond)
	return &ms
}
