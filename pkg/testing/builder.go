package testing

import (
	"fmt"

	"github.com/varmock/varmock/pkg/definition"
	"github.com/varmock/varmock/pkg/handler"
)

// RouteBuilder declares one route and its variants.
type RouteBuilder struct {
	def      definition.RouteDefinition
	variants []*VariantBuilder
	err      error
}

// setError records the first error encountered during building.
func (b *RouteBuilder) setError(err error) {
	if b.err == nil {
		b.err = err
	}
}

// Err returns the first error recorded by the route or its variants.
func (b *RouteBuilder) Err() error {
	if b.err != nil {
		return b.err
	}
	for _, v := range b.variants {
		if v.err != nil {
			return fmt.Errorf("variant %q: %w", v.def.ID, v.err)
		}
	}
	return nil
}

// WithDelay sets the route delay in milliseconds.
func (b *RouteBuilder) WithDelay(ms int) *RouteBuilder {
	if ms < 0 {
		b.setError(fmt.Errorf("route %q: negative delay %d", b.def.ID, ms))
		return b
	}
	b.def.Delay = &ms
	return b
}

// Variant adds a variant answering with status 200 and no body until
// configured.
func (b *RouteBuilder) Variant(id string) *VariantBuilder {
	v := &VariantBuilder{
		def:     definition.VariantDefinition{ID: id},
		headers: map[string]string{},
	}
	b.variants = append(b.variants, v)
	return v
}

func (b *RouteBuilder) definition() definition.RouteDefinition {
	def := b.def
	def.Variants = make([]definition.VariantDefinition, 0, len(b.variants))
	for _, v := range b.variants {
		def.Variants = append(def.Variants, v.definition())
	}
	return def
}

// VariantBuilder configures the response of one variant.
type VariantBuilder struct {
	def     definition.VariantDefinition
	status  int
	headers map[string]string
	body    any
	path    string
	err     error
}

// WithStatus sets the response status code.
func (v *VariantBuilder) WithStatus(status int) *VariantBuilder {
	if status < 100 || status > 599 {
		v.setError(fmt.Errorf("status %d out of range", status))
		return v
	}
	v.status = status
	return v
}

// WithHeader adds a response header.
func (v *VariantBuilder) WithHeader(key, value string) *VariantBuilder {
	v.headers[key] = value
	return v
}

// WithJSON answers with body encoded as JSON.
func (v *VariantBuilder) WithJSON(body any) *VariantBuilder {
	v.def.Handler = handler.KindJSON
	v.body = body
	return v
}

// WithText answers with a plain text body.
func (v *VariantBuilder) WithText(body string) *VariantBuilder {
	v.def.Handler = handler.KindText
	v.body = body
	return v
}

// WithTemplate answers with body after evaluating its {{ expr }} blocks
// against the request.
func (v *VariantBuilder) WithTemplate(body string) *VariantBuilder {
	v.def.Handler = handler.KindTemplate
	v.body = body
	return v
}

// WithFile streams the file at path.
func (v *VariantBuilder) WithFile(path string) *VariantBuilder {
	v.def.Handler = handler.KindFile
	v.body = nil
	v.path = path
	return v
}

// WithDelay sets the variant delay in milliseconds.
func (v *VariantBuilder) WithDelay(ms int) *VariantBuilder {
	if ms < 0 {
		v.setError(fmt.Errorf("negative delay %d", ms))
		return v
	}
	v.def.Delay = &ms
	return v
}

func (v *VariantBuilder) setError(err error) {
	if v.err == nil {
		v.err = err
	}
}

func (v *VariantBuilder) definition() definition.VariantDefinition {
	def := v.def
	response := map[string]any{}
	if v.status != 0 {
		response["status"] = v.status
	}
	if len(v.headers) > 0 {
		response["headers"] = v.headers
	}
	if v.path != "" {
		response["path"] = v.path
	}
	if v.body != nil {
		response["body"] = v.body
	}
	def.Options = map[string]any{"response": response}
	return def
}

// MockBuilder declares one mock.
type MockBuilder struct {
	def definition.MockDefinition
}

// From makes the mock extend base.
func (b *MockBuilder) From(base string) *MockBuilder {
	b.def.From = base
	return b
}

// Use appends route variant ids ("routeId:variantId") to the mock.
func (b *MockBuilder) Use(variantIDs ...string) *MockBuilder {
	b.def.Routes = append(b.def.Routes, variantIDs...)
	return b
}
