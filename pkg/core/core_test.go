package core

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/varmock/varmock/pkg/mocks"
	"github.com/varmock/varmock/pkg/server"
	"github.com/varmock/varmock/pkg/settings"
)

const definitionsYAML = `
routes:
  - id: users
    url: /api/users
    method: GET
    variants:
      - id: ok
        response:
          status: 200
          body: {variant: ok}
      - id: error
        response:
          status: 500
          body: {variant: error}
mocks:
  - id: base
    routes: ["users:ok"]
  - id: broken
    from: base
    routes: ["users:error"]
`

const ordersYAML = `
routes:
  - id: orders
    url: /api/orders
    variants:
      - id: ok
        response:
          status: 200
          body: {variant: orders}
mocks:
  - id: orders
    from: base
    routes: ["orders:ok"]
`

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600))
}

func newCore(t *testing.T, watch bool) (*Core, string) {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, dir, "users.yaml", definitionsYAML)

	s := settings.New()
	require.NoError(t, s.SetFrom(settings.KeyHost, "127.0.0.1", settings.SourceFlag))
	require.NoError(t, s.SetFrom(settings.KeyPort, 0, settings.SourceFlag))
	require.NoError(t, s.SetFrom(settings.KeyPath, dir, settings.SourceFlag))
	require.NoError(t, s.SetFrom(settings.KeyMock, "base", settings.SourceFlag))
	require.NoError(t, s.SetFrom(settings.KeyWatch, watch, settings.SourceFlag))

	c, err := New(s, WithDebounce(20*time.Millisecond), WithVersion("test"))
	require.NoError(t, err)
	require.NoError(t, c.Init(context.Background()))
	require.NoError(t, c.Start(context.Background()))
	t.Cleanup(func() { _ = c.Close(context.Background()) })
	return c, dir
}

func url(c *Core, path string) string {
	return fmt.Sprintf("http://%s%s", c.Server().Addr(), path)
}

func variantAt(t *testing.T, c *Core, path string) (int, string) {
	t.Helper()
	resp, err := http.Get(url(c, path))
	require.NoError(t, err)
	defer resp.Body.Close()
	var body struct {
		Variant string `json:"variant"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&body)
	return resp.StatusCode, body.Variant
}

func TestServesActiveMock(t *testing.T) {
	t.Parallel()

	c, _ := newCore(t, false)
	assert.Equal(t, server.StateStarted, c.Server().State())
	assert.Equal(t, "base", c.Current())

	status, variant := variantAt(t, c, "/api/users")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", variant)

	status, _ = variantAt(t, c, "/api/nothing")
	assert.Equal(t, http.StatusNotFound, status)

	_, ok := c.Alerts().Get(mocks.AlertCurrentSetting)
	assert.False(t, ok)
}

func TestMockSettingSwitchesDispatch(t *testing.T) {
	t.Parallel()

	c, _ := newCore(t, false)
	require.NoError(t, c.Settings().Set(settings.KeyMock, "broken"))
	assert.Equal(t, "broken", c.Current())

	status, variant := variantAt(t, c, "/api/users")
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "error", variant)
}

func TestDelaySettingIsReadPerRequest(t *testing.T) {
	t.Parallel()

	c, _ := newCore(t, false)
	require.NoError(t, c.Settings().Set(settings.KeyDelay, 150))

	start := time.Now()
	status, _ := variantAt(t, c, "/api/users")
	assert.Equal(t, http.StatusOK, status)
	assert.GreaterOrEqual(t, time.Since(start), 150*time.Millisecond)
}

func TestAdminAPI(t *testing.T) {
	t.Parallel()

	c, _ := newCore(t, false)

	resp, err := http.Get(url(c, "/admin/about"))
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"version":"test"}`, string(body))

	resp, err = http.Post(url(c, "/admin/mock-custom-route-variants"), "application/json",
		strings.NewReader(`{"id":"users:error"}`))
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	_, variant := variantAt(t, c, "/api/users")
	assert.Equal(t, "error", variant)
	assert.Equal(t, []string{"users:error"}, c.CustomRouteVariants())

	req, _ := http.NewRequest(http.MethodPatch, url(c, "/admin/settings"), strings.NewReader(`{"mock":"broken"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "broken", c.Current())
	assert.Empty(t, c.CustomRouteVariants())
}

func TestAdminPathChange(t *testing.T) {
	t.Parallel()

	c, _ := newCore(t, false)
	require.NoError(t, c.Settings().Set(settings.KeyAdminPath, "/__admin"))
	c.bg.Wait()

	status, _ := variantAt(t, c, "/admin/about")
	assert.Equal(t, http.StatusNotFound, status)

	resp, err := http.Get(url(c, "/__admin/about"))
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestReload(t *testing.T) {
	t.Parallel()

	c, dir := newCore(t, false)
	writeFile(t, dir, "orders.yaml", ordersYAML)
	require.NoError(t, c.Reload())
	assert.Equal(t, []string{"orders", "base", "broken"}, c.IDs())

	require.NoError(t, c.Settings().Set(settings.KeyMock, "orders"))
	_, variant := variantAt(t, c, "/api/orders")
	assert.Equal(t, "orders", variant)
	_, variant = variantAt(t, c, "/api/users")
	assert.Equal(t, "ok", variant)
}

func TestReloadMissingFolder(t *testing.T) {
	t.Parallel()

	c, dir := newCore(t, false)
	require.NoError(t, os.RemoveAll(dir))
	assert.Error(t, c.Reload())
	assert.Equal(t, []string{"base", "broken"}, c.IDs())
}

func TestWatchReloads(t *testing.T) {
	t.Parallel()

	c, dir := newCore(t, true)

	// Rewrite until the watcher, which starts asynchronously, has seen it.
	require.Eventually(t, func() bool {
		writeFile(t, dir, "orders.yaml", ordersYAML)
		return len(c.IDs()) == 3
	}, 5*time.Second, 100*time.Millisecond)
}

func TestInitTwice(t *testing.T) {
	t.Parallel()

	c, _ := newCore(t, false)
	assert.ErrorIs(t, c.Init(context.Background()), ErrAlreadyInitialized)
}

func TestPortChangeRestarts(t *testing.T) {
	t.Parallel()

	c, _ := newCore(t, false)
	before := c.Server().Addr().String()

	// Any free port will do; pick one by binding and releasing it.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	probe := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())

	require.NoError(t, c.Settings().Set(settings.KeyPort, probe))
	c.bg.Wait()

	assert.Equal(t, server.StateStarted, c.Server().State())
	assert.NotEqual(t, before, c.Server().Addr().String())
	assert.Contains(t, c.Server().Addr().String(), fmt.Sprintf(":%d", probe))
}
