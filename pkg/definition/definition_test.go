package definition

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/varmock/varmock/pkg/alerts"
)

const usersYAML = `
routes:
  - id: get-users
    url: /api/users
    method: GET
    delay: 100
    variants:
      - id: success
        response:
          status: 200
          body:
            - id: 1
              name: John Doe
      - id: error
        handler: text
        delay: 0
        response:
          status: 500
          body: boom
  - id: get-user
    url: /api/users/:id
    method: [GET, HEAD]
    variants:
      - id: success
        response:
          status: 200
mocks:
  - id: base
    routes: ["get-users:success", "get-user:success"]
  - id: user-error
    from: base
    routes: ["get-users:error"]
`

// ============================================================================
// Parsing
// ============================================================================

func TestParseYAML(t *testing.T) {
	t.Parallel()

	c, err := ParseYAML([]byte(usersYAML))
	require.NoError(t, err)

	require.Len(t, c.Routes, 2)
	users := c.Routes[0]
	assert.Equal(t, "get-users", users.ID)
	assert.Equal(t, Methods{"GET"}, users.Method)
	require.NotNil(t, users.Delay)
	assert.Equal(t, 100, *users.Delay)

	require.Len(t, users.Variants, 2)
	success := users.Variants[0]
	assert.Equal(t, DefaultHandler, success.HandlerKind())
	assert.Nil(t, success.Delay)
	assert.Contains(t, success.Options, "response")

	errVariant := users.Variants[1]
	assert.Equal(t, "text", errVariant.HandlerKind())
	require.NotNil(t, errVariant.Delay)
	assert.Equal(t, 0, *errVariant.Delay)

	assert.Equal(t, Methods{"GET", "HEAD"}, c.Routes[1].Method)

	require.Len(t, c.Mocks, 2)
	assert.Equal(t, "base", c.Mocks[1].From)
	assert.Equal(t, []string{"get-users:error"}, c.Mocks[1].Routes)
}

func TestParseJSON(t *testing.T) {
	t.Parallel()

	t.Run("valid document", func(t *testing.T) {
		t.Parallel()
		c, err := ParseJSON([]byte(`{"mocks":[{"id":"a","from":null,"routes":[]}]}`))
		require.NoError(t, err)
		require.Len(t, c.Mocks, 1)
		assert.Empty(t, c.Mocks[0].From)
	})

	t.Run("syntax error", func(t *testing.T) {
		t.Parallel()
		_, err := ParseJSON([]byte(`{"routes": [`))
		assert.ErrorIs(t, err, ErrInvalidJSON)
	})

	t.Run("schema violations", func(t *testing.T) {
		t.Parallel()
		docs := map[string]string{
			"unknown top-level key": `{"fixtures": []}`,
			"route without url":     `{"routes":[{"id":"r","variants":[]}]}`,
			"negative delay":        `{"routes":[{"id":"r","url":"/","delay":-1,"variants":[]}]}`,
			"route id with colon":   `{"routes":[{"id":"a:b","url":"/","variants":[]}]}`,
			"variant without id":    `{"routes":[{"id":"r","url":"/","variants":[{"handler":"json"}]}]}`,
			"mock unknown key":      `{"mocks":[{"id":"m","routesVariants":[]}]}`,
		}
		for name, doc := range docs {
			_, err := ParseJSON([]byte(doc))
			assert.ErrorIs(t, err, ErrInvalidDefinition, name)
		}
	})
}

func TestVariantDefinitionJSONRoundTrip(t *testing.T) {
	t.Parallel()

	delay := 20
	v := VariantDefinition{
		ID:      "ok",
		Handler: "json",
		Delay:   &delay,
		Options: map[string]any{"response": map[string]any{"status": float64(201)}},
	}
	data, err := json.Marshal(v)
	require.NoError(t, err)

	var got VariantDefinition
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, v, got)
}

func TestSplitVariantID(t *testing.T) {
	t.Parallel()

	r, v, ok := SplitVariantID("get-users:error:500")
	require.True(t, ok)
	assert.Equal(t, "get-users", r)
	assert.Equal(t, "error:500", v)

	_, _, ok = SplitVariantID("no-separator")
	assert.False(t, ok)
	_, _, ok = SplitVariantID(":x")
	assert.False(t, ok)

	assert.Equal(t, "a:b", VariantID("a", "b"))
}

// ============================================================================
// Loader
// ============================================================================

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func TestLoaderLoad(t *testing.T) {
	t.Parallel()

	t.Run("merges files in lexical order", func(t *testing.T) {
		t.Parallel()
		dir := t.TempDir()
		writeFile(t, dir, "b/routes.yaml", usersYAML)
		writeFile(t, dir, "a.json", `{"mocks":[{"id":"first","routes":[]}]}`)
		writeFile(t, dir, "notes.txt", "ignored")

		l := NewLoader(dir)
		report, err := l.Load()
		require.NoError(t, err)
		assert.Equal(t, []string{"a.json", "b/routes.yaml"}, report.Files)
		assert.Empty(t, report.Failed)

		mocks := l.LoadedMocks()
		require.Len(t, mocks, 3)
		assert.Equal(t, "first", mocks[0].ID)
		assert.Len(t, l.LoadedRoutes(), 2)
	})

	t.Run("broken file is skipped and alerted", func(t *testing.T) {
		t.Parallel()
		dir := t.TempDir()
		writeFile(t, dir, "good.yaml", usersYAML)
		writeFile(t, dir, "bad.json", `{"routes": [`)

		set := alerts.New()
		l := NewLoader(dir, WithLoaderAlerts(set))
		report, err := l.Load()
		require.NoError(t, err)
		assert.Contains(t, report.Failed, "bad.json")
		assert.Len(t, l.LoadedRoutes(), 2)

		_, ok := set.Get(AlertLoadFiles + ":bad.json")
		assert.True(t, ok)

		writeFile(t, dir, "bad.json", `{"routes": []}`)
		_, err = l.Load()
		require.NoError(t, err)
		assert.Equal(t, 0, set.Len())
	})

	t.Run("missing folder keeps previous definitions", func(t *testing.T) {
		t.Parallel()
		dir := t.TempDir()
		writeFile(t, dir, "good.yaml", usersYAML)

		set := alerts.New()
		l := NewLoader(dir, WithLoaderAlerts(set))
		_, err := l.Load()
		require.NoError(t, err)

		l.SetDir(filepath.Join(dir, "missing"))
		_, err = l.Load()
		require.ErrorIs(t, err, ErrFileNotFound)
		assert.Len(t, l.LoadedRoutes(), 2)
		_, ok := set.Get(AlertLoadDir)
		assert.True(t, ok)
	})

	t.Run("empty file", func(t *testing.T) {
		t.Parallel()
		dir := t.TempDir()
		writeFile(t, dir, "empty.yaml", "  \n")
		_, err := LoadFile(filepath.Join(dir, "empty.yaml"))
		assert.ErrorIs(t, err, ErrEmptyFile)
	})
}
