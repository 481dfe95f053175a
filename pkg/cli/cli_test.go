package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/rogpeppe/go-internal/testscript"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/varmock/varmock/pkg/alerts"
	"github.com/varmock/varmock/pkg/definition"
	"github.com/varmock/varmock/pkg/settings"
)

func TestMain(m *testing.M) {
	os.Exit(testscript.RunMain(m, map[string]func() int{
		"varmock": Main,
	}))
}

func TestScripts(t *testing.T) {
	t.Parallel()
	testscript.Run(t, testscript.Params{Dir: "testdata"})
}

// =============================================================================
// Settings precedence
// =============================================================================

func parseServe(t *testing.T, args ...string) (*cobra.Command, *serveFlags) {
	t.Helper()
	f := &serveFlags{}
	cmd := &cobra.Command{Use: "serve"}
	f.register(cmd)
	require.NoError(t, cmd.ParseFlags(args))
	return cmd, f
}

func TestLoadSettingsPrecedence(t *testing.T) {
	file := filepath.Join(t.TempDir(), "custom.yaml")
	require.NoError(t, os.WriteFile(file, []byte("port: 4000\ndelay: 10\nmock: from-file\ncors: false\nlog:\n  level: debug\n"), 0o600))
	t.Setenv("VARMOCK_DELAY", "50")

	cmd, f := parseServe(t, "--config", file, "--port", "8080")
	s, err := loadSettings(cmd, f)
	require.NoError(t, err)

	assert.Equal(t, 8080, s.Int(settings.KeyPort))
	assert.Equal(t, settings.SourceFlag, s.Source(settings.KeyPort))
	assert.Equal(t, 50, s.Int(settings.KeyDelay))
	assert.Equal(t, settings.SourceEnv, s.Source(settings.KeyDelay))
	assert.Equal(t, "from-file", s.String(settings.KeyMock))
	assert.Equal(t, "debug", s.String(settings.KeyLogLevel))
	assert.False(t, s.Bool(settings.KeyCORS), "unset flag defaults must not override the file")
	assert.Equal(t, settings.SourceDefault, s.Source(settings.KeyHost))
}

func TestLoadSettingsErrors(t *testing.T) {
	t.Parallel()

	t.Run("invalid flag value", func(t *testing.T) {
		t.Parallel()
		cmd, f := parseServe(t, "--config", writeSettings(t, ""), "--port", "70000")
		_, err := loadSettings(cmd, f)
		require.Error(t, err)
		assert.ErrorIs(t, err, settings.ErrInvalidValue)
		assert.Contains(t, err.Error(), "--port")
	})

	t.Run("missing explicit config", func(t *testing.T) {
		t.Parallel()
		cmd, f := parseServe(t, "--config", filepath.Join(t.TempDir(), "nope.yaml"))
		_, err := loadSettings(cmd, f)
		assert.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("invalid file", func(t *testing.T) {
		t.Parallel()
		cmd, f := parseServe(t, "--config", writeSettings(t, "log:\n  format: xml\n"))
		_, err := loadSettings(cmd, f)
		assert.ErrorIs(t, err, settings.ErrInvalidFile)
	})
}

func writeSettings(t *testing.T, content string) string {
	t.Helper()
	file := filepath.Join(t.TempDir(), settings.FileName)
	require.NoError(t, os.WriteFile(file, []byte(content), 0o600))
	return file
}

// =============================================================================
// Run
// =============================================================================

func TestRun(t *testing.T) {
	t.Parallel()

	t.Run("unknown command", func(t *testing.T) {
		t.Parallel()
		var stdout, stderr bytes.Buffer
		code := Run([]string{"frobnicate"}, &stdout, &stderr)
		assert.Equal(t, 1, code)
		assert.Contains(t, stderr.String(), "Error:")
	})

	t.Run("version", func(t *testing.T) {
		t.Parallel()
		var stdout, stderr bytes.Buffer
		code := Run([]string{"version", "--json"}, &stdout, &stderr)
		assert.Equal(t, 0, code)
		assert.Contains(t, stdout.String(), `"version":`)
		assert.Empty(t, stderr.String())
	})

	t.Run("validate folder", func(t *testing.T) {
		t.Parallel()
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "users.yaml"), []byte(usersYAML), 0o600))

		var stdout, stderr bytes.Buffer
		code := Run([]string{"validate", dir}, &stdout, &stderr)
		assert.Equal(t, 0, code, stderr.String())
		assert.Contains(t, stdout.String(), "Routes:   1")
		assert.Contains(t, stdout.String(), "Mocks:    1")
		assert.Contains(t, stdout.String(), "OK")
	})
}

const usersYAML = `
routes:
  - id: users
    url: /api/users
    variants:
      - id: ok
        response:
          status: 200
          body: []
mocks:
  - id: base
    routes: ["users:ok"]
`

func TestCheckReferences(t *testing.T) {
	t.Parallel()

	set := alerts.New()
	checkReferences([]definition.MockDefinition{
		{ID: "base", Routes: []string{"users:ok"}},
		{ID: "typo", Routes: []string{"users", ":ok", "users:ok"}},
	}, set.Scoped("process:mocks"))

	require.Equal(t, 1, set.Len())
	a, ok := set.Get("process:mocks:typo:refs")
	require.True(t, ok)
	assert.Contains(t, a.Message, `"users", ":ok"`)
}

func TestIsError(t *testing.T) {
	t.Parallel()
	assert.True(t, isError("load:files:a.yaml"))
	assert.True(t, isError("process:mocks:base"))
	assert.False(t, isError("current:settings"))
}
