package route

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/varmock/varmock/pkg/definition"
	"github.com/varmock/varmock/pkg/handler"
)

func ms(n int) *int { return &n }

func jsonVariant(id string, status int) definition.VariantDefinition {
	return definition.VariantDefinition{
		ID: id,
		Options: map[string]any{
			"response": map[string]any{"status": status, "body": map[string]any{"variant": id}},
		},
	}
}

func usersRoute() definition.RouteDefinition {
	return definition.RouteDefinition{
		ID:     "get-users",
		URL:    "/api/users/:id",
		Method: definition.Methods{"GET"},
		Delay:  ms(100),
		Variants: []definition.VariantDefinition{
			jsonVariant("success", 200),
			func() definition.VariantDefinition {
				v := jsonVariant("error", 500)
				v.Delay = ms(0)
				return v
			}(),
		},
	}
}

func TestBuild(t *testing.T) {
	t.Parallel()

	kinds := handler.NewRegistry(handler.Builtins()...)

	t.Run("builds every variant", func(t *testing.T) {
		t.Parallel()
		res := Build([]definition.RouteDefinition{usersRoute()}, kinds, nil)
		require.Empty(t, res.Errors)
		require.Len(t, res.Variants, 2)

		v, ok := res.Lookup("get-users:success")
		require.True(t, ok)
		assert.Equal(t, "success", v.ID)
		assert.Equal(t, "get-users", v.RouteID)
		assert.Equal(t, handler.KindDefault, v.Kind)

		require.Len(t, res.Routes, 1)
		assert.Equal(t, []string{"get-users:success", "get-users:error"}, res.Routes[0].Variants)
	})

	t.Run("variant delay overrides route delay", func(t *testing.T) {
		t.Parallel()
		res := Build([]definition.RouteDefinition{usersRoute()}, kinds, nil)

		success, _ := res.Lookup("get-users:success")
		require.NotNil(t, success.Delay)
		assert.Equal(t, 100*time.Millisecond, *success.Delay)

		failure, _ := res.Lookup("get-users:error")
		require.NotNil(t, failure.Delay)
		assert.Equal(t, time.Duration(0), *failure.Delay)
	})

	t.Run("no delay when neither is set", func(t *testing.T) {
		t.Parallel()
		def := usersRoute()
		def.Delay = nil
		res := Build([]definition.RouteDefinition{def}, kinds, nil)
		v, _ := res.Lookup("get-users:success")
		assert.Nil(t, v.Delay)
		assert.Nil(t, v.Plain().Delay)
	})

	t.Run("unknown kind is skipped", func(t *testing.T) {
		t.Parallel()
		def := usersRoute()
		def.Variants[0].Handler = "graphql"
		res := Build([]definition.RouteDefinition{def}, kinds, nil)
		require.Len(t, res.Errors, 1)
		assert.ErrorIs(t, res.Errors[0], handler.ErrUnknownKind)
		require.Len(t, res.Variants, 1)
		assert.Equal(t, "get-users:error", res.Variants[0].VariantID)
		assert.Equal(t, []string{"get-users:error"}, res.Routes[0].Variants)
	})

	t.Run("duplicate composite id is skipped", func(t *testing.T) {
		t.Parallel()
		res := Build([]definition.RouteDefinition{usersRoute(), usersRoute()}, kinds, nil)
		assert.Len(t, res.Errors, 2)
		assert.ErrorIs(t, res.Errors[0], ErrDuplicateVariant)
		assert.Len(t, res.Variants, 2)
	})

	t.Run("invalid pattern fails the whole route", func(t *testing.T) {
		t.Parallel()
		def := usersRoute()
		def.URL = "/api/:id?/users"
		res := Build([]definition.RouteDefinition{def}, kinds, nil)
		assert.Len(t, res.Errors, 2)
		assert.Empty(t, res.Variants)
		require.Len(t, res.Routes, 1)
		assert.Empty(t, res.Routes[0].Variants)
	})
}

func TestVariantMatch(t *testing.T) {
	t.Parallel()

	res := Build([]definition.RouteDefinition{usersRoute()}, handler.NewRegistry(handler.Builtins()...), nil)
	v, ok := res.Lookup("get-users:success")
	require.True(t, ok)

	params, ok := v.Match(httptest.NewRequest("GET", "/api/users/42", nil))
	require.True(t, ok)
	assert.Equal(t, map[string]string{"id": "42"}, params)

	_, ok = v.Match(httptest.NewRequest("POST", "/api/users/42", nil))
	assert.False(t, ok)

	_, ok = v.Match(httptest.NewRequest("GET", "/api/orders/42", nil))
	assert.False(t, ok)
}

func TestPlain(t *testing.T) {
	t.Parallel()

	res := Build([]definition.RouteDefinition{usersRoute()}, handler.NewRegistry(handler.Builtins()...), nil)
	v, _ := res.Lookup("get-users:error")
	plain := v.Plain()
	assert.Equal(t, "get-users:error", plain.ID)
	assert.Equal(t, "get-users", plain.RouteID)
	assert.Equal(t, "default", plain.Handler)
	require.NotNil(t, plain.Delay)
	assert.Equal(t, 0, *plain.Delay)
	assert.Equal(t, map[string]any{"status": 500, "body": map[string]any{"variant": "error"}}, plain.Response)
}
