package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/varmock/varmock/pkg/core"
	"github.com/varmock/varmock/pkg/logging"
	"github.com/varmock/varmock/pkg/server"
	"github.com/varmock/varmock/pkg/settings"
)

// serveFlags holds the flag values shared by the root and serve commands.
type serveFlags struct {
	config    string
	host      string
	port      int
	delay     int
	mock      string
	path      string
	watch     bool
	cors      bool
	logLevel  string
	logFormat string
	adminPath string
}

// flagKeys maps flag names to the settings they set.
var flagKeys = map[string]settings.Key{
	"host":       settings.KeyHost,
	"port":       settings.KeyPort,
	"delay":      settings.KeyDelay,
	"mock":       settings.KeyMock,
	"path":       settings.KeyPath,
	"watch":      settings.KeyWatch,
	"cors":       settings.KeyCORS,
	"log-level":  settings.KeyLogLevel,
	"log-format": settings.KeyLogFormat,
	"admin-path": settings.KeyAdminPath,
}

func (f *serveFlags) register(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringVarP(&f.config, "config", "c", "", "Settings file (default ./"+settings.FileName+" when present)")
	fs.StringVar(&f.host, "host", "0.0.0.0", "Host to bind")
	fs.IntVarP(&f.port, "port", "p", 3100, "Port to bind")
	fs.IntVar(&f.delay, "delay", 0, "Global response delay in milliseconds")
	fs.StringVarP(&f.mock, "mock", "m", "", "Mock to activate (default: first mock found)")
	fs.StringVar(&f.path, "path", "mocks", "Definitions folder")
	fs.BoolVarP(&f.watch, "watch", "w", true, "Reload definitions when files change")
	fs.BoolVar(&f.cors, "cors", true, "Enable CORS headers")
	fs.StringVar(&f.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	fs.StringVar(&f.logFormat, "log-format", "text", "Log format (text, json)")
	fs.StringVar(&f.adminPath, "admin-path", "/admin", "Path where the admin API is mounted")
}

func (f *serveFlags) value(name string) any {
	switch name {
	case "host":
		return f.host
	case "port":
		return f.port
	case "delay":
		return f.delay
	case "mock":
		return f.mock
	case "path":
		return f.path
	case "watch":
		return f.watch
	case "cors":
		return f.cors
	case "log-level":
		return f.logLevel
	case "log-format":
		return f.logFormat
	case "admin-path":
		return f.adminPath
	}
	return nil
}

func newServeCommand() *cobra.Command {
	f := &serveFlags{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the mock server",
		Example: `  # Serve ./mocks on port 3100
  varmock serve

  # Serve another folder with the "errors" mock active and a 200ms delay
  varmock serve --path ./fixtures --mock errors --delay 200

  # Read settings from a file, then override the port
  varmock serve --config ./varmock.yaml --port 8080`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, f)
		},
	}
	f.register(cmd)
	return cmd
}

// loadSettings applies the settings file, the environment and every flag the
// user actually set, in that order.
func loadSettings(cmd *cobra.Command, f *serveFlags) (*settings.Settings, error) {
	s := settings.New()

	file, optional := f.config, false
	if file == "" {
		file, optional = settings.FileName, true
	}
	if err := s.LoadFile(file, optional); err != nil {
		return nil, err
	}
	if err := s.LoadEnv(os.LookupEnv); err != nil {
		return nil, err
	}

	var errs []error
	for name, key := range flagKeys {
		if !cmd.Flags().Changed(name) {
			continue
		}
		if err := s.SetFrom(key, f.value(name), settings.SourceFlag); err != nil {
			errs = append(errs, fmt.Errorf("--%s: %w", name, err))
		}
	}
	return s, errors.Join(errs...)
}

func runServe(cmd *cobra.Command, f *serveFlags) error {
	s, err := loadSettings(cmd, f)
	if err != nil {
		return err
	}

	level := &slog.LevelVar{}
	level.Set(logging.ParseLevel(s.String(settings.KeyLogLevel)))
	log := logging.New(logging.Config{
		Dynamic: level,
		Format:  logging.ParseFormat(s.String(settings.KeyLogFormat)),
		Output:  cmd.ErrOrStderr(),
	})

	c, err := core.New(s,
		core.WithLogger(log),
		core.WithLevel(level),
		core.WithVersion(Version))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := c.Init(ctx); err != nil {
		return err
	}
	if err := c.Start(ctx); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "varmock %s listening on http://%s\n", Version, c.Server().Addr())
	fmt.Fprintf(out, "  mock:   %s\n", displayMock(c.Current()))
	fmt.Fprintf(out, "  admin:  %s\n", s.String(settings.KeyAdminPath))
	fmt.Fprintf(out, "  folder: %s\n", s.String(settings.KeyPath))

	<-ctx.Done()
	fmt.Fprintln(out, "Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), server.ShutdownTimeout+time.Second)
	defer cancel()
	return c.Close(shutdownCtx)
}

func displayMock(id string) string {
	if id == "" {
		return "(none)"
	}
	return id
}
