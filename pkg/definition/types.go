// Package definition holds the declarative route, variant and mock
// definitions varmock serves, and loads them from YAML or JSON files.
package definition

import (
	"encoding/json"
	"fmt"
	"strings"
)

// DefaultHandler is the handler kind used by variants that do not name one.
const DefaultHandler = "default"

// VariantSeparator joins a route id and a variant id into a composite id.
const VariantSeparator = ":"

// VariantID returns the composite id "routeId:variantId".
func VariantID(routeID, variantID string) string {
	return routeID + VariantSeparator + variantID
}

// SplitVariantID splits a composite id into route and variant parts. Route
// ids may not contain the separator, variant ids may.
func SplitVariantID(compositeID string) (routeID, variantID string, ok bool) {
	routeID, variantID, ok = strings.Cut(compositeID, VariantSeparator)
	if !ok || routeID == "" || variantID == "" {
		return "", "", false
	}
	return routeID, variantID, true
}

// Collection is the content of one definitions document.
type Collection struct {
	Routes []RouteDefinition `json:"routes,omitempty" yaml:"routes,omitempty"`
	Mocks  []MockDefinition  `json:"mocks,omitempty" yaml:"mocks,omitempty"`
}

// Merge appends other's definitions to c.
func (c *Collection) Merge(other *Collection) {
	if other == nil {
		return
	}
	c.Routes = append(c.Routes, other.Routes...)
	c.Mocks = append(c.Mocks, other.Mocks...)
}

// RouteDefinition groups the variants answering one URL and method set.
type RouteDefinition struct {
	ID       string              `json:"id" yaml:"id"`
	URL      string              `json:"url" yaml:"url"`
	Method   Methods             `json:"method,omitempty" yaml:"method,omitempty"`
	Delay    *int                `json:"delay,omitempty" yaml:"delay,omitempty"`
	Variants []VariantDefinition `json:"variants" yaml:"variants"`
}

// VariantDefinition is one response definition of a route. Keys other than
// id, handler and delay are handler-kind specific and kept in Options.
type VariantDefinition struct {
	ID      string         `json:"id" yaml:"id"`
	Handler string         `json:"handler,omitempty" yaml:"handler,omitempty"`
	Delay   *int           `json:"delay,omitempty" yaml:"delay,omitempty"`
	Options map[string]any `json:"-" yaml:"-"`
}

// HandlerKind returns the handler kind, defaulting to DefaultHandler.
func (v VariantDefinition) HandlerKind() string {
	if v.Handler == "" {
		return DefaultHandler
	}
	return v.Handler
}

// UnmarshalJSON collects unknown keys into Options.
func (v *VariantDefinition) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*v = VariantDefinition{}
	for key, value := range raw {
		var err error
		switch key {
		case "id":
			err = json.Unmarshal(value, &v.ID)
		case "handler":
			err = json.Unmarshal(value, &v.Handler)
		case "delay":
			err = json.Unmarshal(value, &v.Delay)
		default:
			var opt any
			err = json.Unmarshal(value, &opt)
			if err == nil {
				if v.Options == nil {
					v.Options = make(map[string]any)
				}
				v.Options[key] = opt
			}
		}
		if err != nil {
			return fmt.Errorf("variant field %q: %w", key, err)
		}
	}
	return nil
}

// MarshalJSON writes Options inline next to the fixed fields.
func (v VariantDefinition) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(v.Options)+3)
	for k, val := range v.Options {
		out[k] = val
	}
	out["id"] = v.ID
	if v.Handler != "" {
		out["handler"] = v.Handler
	}
	if v.Delay != nil {
		out["delay"] = *v.Delay
	}
	return json.Marshal(out)
}

// MockDefinition is a named preset selecting one variant per route, either
// directly or inherited from the mock named in From.
type MockDefinition struct {
	ID     string   `json:"id" yaml:"id"`
	From   string   `json:"from,omitempty" yaml:"from,omitempty"`
	Routes []string `json:"routes" yaml:"routes"`
}

// Methods is a list of HTTP methods. It decodes from a single string or from
// a list of strings.
type Methods []string

// UnmarshalJSON accepts "GET" as well as ["GET", "POST"].
func (m *Methods) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*m = Methods{single}
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return fmt.Errorf("method must be a string or a list of strings: %w", err)
	}
	*m = list
	return nil
}

// String joins the methods with commas.
func (m Methods) String() string {
	return strings.Join(m, ",")
}
