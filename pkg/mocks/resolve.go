package mocks

import (
	"errors"
	"fmt"

	"github.com/varmock/varmock/pkg/definition"
	"github.com/varmock/varmock/pkg/route"
)

var (
	// ErrCycle is returned when a chain of "from" references loops back.
	ErrCycle = errors.New("mock inheritance cycle")
	// ErrBaseNotFound is returned when "from" names a mock that does not exist.
	ErrBaseNotFound = errors.New("base mock not found")
)

// VariantLookup finds a built variant by composite id.
type VariantLookup func(variantID string) (*route.Variant, bool)

// Resolution is the effective variant list of one mock.
type Resolution struct {
	Variants []*route.Variant
	// Dropped lists the mock's own variant ids that did not resolve, or that
	// named a route already chosen earlier in the same list.
	Dropped []string
}

// Resolve computes the effective variants of the mock id. Own choices come
// first in definition order, followed by what each base contributes for
// routes not yet chosen, walking the "from" chain until a mock without a base.
func Resolve(id string, defs map[string]definition.MockDefinition, lookup VariantLookup) (*Resolution, error) {
	res := &Resolution{}
	chosen := make(map[string]struct{})
	visited := make(map[string]struct{})

	current := id
	for depth := 0; ; depth++ {
		if _, seen := visited[current]; seen {
			return nil, fmt.Errorf("%w: %q reached again from %q", ErrCycle, current, id)
		}
		visited[current] = struct{}{}

		def, ok := defs[current]
		if !ok {
			if depth == 0 {
				return nil, fmt.Errorf("%w: %q", ErrBaseNotFound, current)
			}
			return nil, fmt.Errorf("%w: %q (from %q)", ErrBaseNotFound, current, id)
		}

		// Routes chosen by more specific mocks are fixed before this level
		// contributes anything.
		taken := make(map[string]struct{}, len(chosen))
		for routeID := range chosen {
			taken[routeID] = struct{}{}
		}

		for _, variantID := range def.Routes {
			v, ok := lookup(variantID)
			if !ok {
				if depth == 0 {
					res.Dropped = append(res.Dropped, variantID)
				}
				continue
			}
			if _, skip := taken[v.RouteID]; skip {
				continue
			}
			if _, dup := chosen[v.RouteID]; dup {
				if depth == 0 {
					res.Dropped = append(res.Dropped, variantID)
				}
				continue
			}
			chosen[v.RouteID] = struct{}{}
			res.Variants = append(res.Variants, v)
		}

		if def.From == "" {
			return res, nil
		}
		current = def.From
	}
}
