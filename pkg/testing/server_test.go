package testing

import (
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func declare(vm *MockServer) {
	users := vm.Route("users", "/api/users", "GET")
	users.Variant("ok").WithJSON([]string{"alice", "bob"})
	users.Variant("down").WithStatus(503).WithJSON(map[string]string{"message": "down"})

	health := vm.Route("health", "/health")
	health.Variant("up").WithText("up").WithHeader("X-Health", "ok")

	vm.Mock("base").Use("users:ok", "health:up")
	vm.Mock("outage").From("base").Use("users:down")
}

func TestMockServer(t *testing.T) {
	t.Parallel()

	t.Run("serves the first mock", func(t *testing.T) {
		t.Parallel()
		vm := New(t)
		declare(vm)
		url := vm.Start()

		status, body := get(t, url+"/api/users")
		assert.Equal(t, http.StatusOK, status)
		assert.JSONEq(t, `["alice","bob"]`, body)

		status, body = get(t, url+"/health")
		assert.Equal(t, http.StatusOK, status)
		assert.Equal(t, "up", body)

		assert.Equal(t, "base", vm.Current())
		vm.AssertServed(t, "users", "ok", 1)
		vm.AssertNotServed(t, "users", "down")
	})

	t.Run("switches mocks", func(t *testing.T) {
		t.Parallel()
		vm := New(t)
		declare(vm)
		url := vm.Start()

		vm.UseMock("outage")
		status, _ := get(t, url+"/api/users")
		assert.Equal(t, http.StatusServiceUnavailable, status)

		// inherited from base
		status, _ = get(t, url+"/health")
		assert.Equal(t, http.StatusOK, status)
		assert.Equal(t, "outage", vm.Current())
	})

	t.Run("active mock before start", func(t *testing.T) {
		t.Parallel()
		vm := New(t)
		declare(vm)
		vm.WithActive("outage")
		url := vm.Start()

		status, _ := get(t, url+"/api/users")
		assert.Equal(t, http.StatusServiceUnavailable, status)
	})

	t.Run("overrides", func(t *testing.T) {
		t.Parallel()
		vm := New(t)
		declare(vm)
		url := vm.Start()

		vm.UseRouteVariant("users:down")
		status, _ := get(t, url+"/api/users")
		assert.Equal(t, http.StatusServiceUnavailable, status)

		vm.RestoreRouteVariants()
		status, _ = get(t, url+"/api/users")
		assert.Equal(t, http.StatusOK, status)

		vm.AssertServed(t, "users", "down", 1)
		vm.AssertServed(t, "users", "ok", 1)
	})

	t.Run("template and file variants", func(t *testing.T) {
		t.Parallel()
		file := filepath.Join(t.TempDir(), "user.json")
		require.NoError(t, os.WriteFile(file, []byte(`{"from":"file"}`), 0o600))

		vm := New(t)
		user := vm.Route("user", "/api/users/:id", "GET")
		user.Variant("echo").WithTemplate(`user {{ params.id }}`)
		user.Variant("file").WithFile(file)
		vm.Mock("base").Use("user:echo")
		vm.Mock("file").From("base").Use("user:file")
		url := vm.Start()

		_, body := get(t, url+"/api/users/42")
		assert.Equal(t, "user 42", body)

		vm.UseMock("file")
		_, body = get(t, url+"/api/users/42")
		assert.JSONEq(t, `{"from":"file"}`, body)
	})

	t.Run("admin url", func(t *testing.T) {
		t.Parallel()
		vm := New(t)
		declare(vm)
		vm.Start()

		status, body := get(t, vm.AdminURL()+"/mocks")
		require.Equal(t, http.StatusOK, status)
		var mocks []map[string]any
		require.NoError(t, json.Unmarshal([]byte(body), &mocks))
		assert.Len(t, mocks, 2)
	})
}

func TestDelays(t *testing.T) {
	t.Parallel()

	vm := New(t)
	slow := vm.Route("slow", "/slow").WithDelay(120)
	slow.Variant("ok").WithText("slow")
	vm.Route("fast", "/fast").Variant("ok").WithText("fast").WithDelay(0)
	vm.Mock("base").Use("slow:ok", "fast:ok")
	vm.SetDelay(500)
	url := vm.Start()

	start := time.Now()
	get(t, url+"/slow")
	elapsed := time.Since(start)
	assert.GreaterOrEqual(t, elapsed, 120*time.Millisecond)
	assert.Less(t, elapsed, 500*time.Millisecond, "route delay must win over the global one")

	start = time.Now()
	get(t, url+"/fast")
	assert.Less(t, time.Since(start), 500*time.Millisecond, "a zero variant delay must win over the global one")
}

func TestBuilderErrors(t *testing.T) {
	t.Parallel()

	vm := New(t)
	vm.Route("bad", "/bad").WithDelay(-1)
	_, err := vm.Collection()
	require.Error(t, err)

	vm = New(t)
	vm.Route("bad", "/bad").Variant("v").WithStatus(42)
	_, err = vm.Collection()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `variant "v"`)
}

func TestCollection(t *testing.T) {
	t.Parallel()

	vm := New(t)
	declare(vm)
	c, err := vm.Collection()
	require.NoError(t, err)

	require.Len(t, c.Routes, 2)
	assert.Equal(t, []string{"GET"}, []string(c.Routes[0].Method))
	require.Len(t, c.Routes[0].Variants, 2)
	assert.Equal(t, "json", c.Routes[0].Variants[0].Handler)
	assert.Equal(t, map[string]any{"status": 503, "body": map[string]string{"message": "down"}},
		c.Routes[0].Variants[1].Options["response"])

	require.Len(t, c.Mocks, 2)
	assert.Equal(t, "base", c.Mocks[1].From)
	assert.Equal(t, []string{"users:down"}, c.Mocks[1].Routes)
}
