package definition

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/varmock/varmock/pkg/alerts"
	"github.com/varmock/varmock/pkg/logging"
)

// DefaultPattern selects the definitions files inside a directory.
const DefaultPattern = "**/*.{yaml,yml,json}"

// Alert keys raised by the loader.
const (
	AlertLoadFiles = "load:files"
	AlertLoadDir   = "load:folder"
)

// LoadReport summarizes one Load call.
type LoadReport struct {
	Files  []string
	Failed map[string]error
}

// Loader reads every definitions file below a directory and keeps the merged
// result of the last load.
type Loader struct {
	dir     string
	pattern string
	log     *slog.Logger
	alerts  alerts.Sink

	mu     sync.RWMutex
	routes []RouteDefinition
	mocks  []MockDefinition
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithPattern overrides the doublestar pattern used to select files.
func WithPattern(pattern string) LoaderOption {
	return func(l *Loader) {
		if pattern != "" {
			l.pattern = pattern
		}
	}
}

// WithLoaderLogger sets the operational logger.
func WithLoaderLogger(log *slog.Logger) LoaderOption {
	return func(l *Loader) {
		if log != nil {
			l.log = log
		}
	}
}

// WithLoaderAlerts sets the alert sink for per-file failures.
func WithLoaderAlerts(sink alerts.Sink) LoaderOption {
	return func(l *Loader) {
		if sink != nil {
			l.alerts = sink
		}
	}
}

// NewLoader creates a Loader for dir.
func NewLoader(dir string, opts ...LoaderOption) *Loader {
	l := &Loader{
		dir:     dir,
		pattern: DefaultPattern,
		log:     logging.Nop(),
		alerts:  alerts.Nop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Dir returns the directory the loader reads.
func (l *Loader) Dir() string { return l.dir }

// SetDir changes the directory read by the next Load.
func (l *Loader) SetDir(dir string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.dir = dir
}

// Load reads all matching files. Files that fail to parse are skipped and
// raised as alerts; the definitions of the remaining files replace the
// previous result. An unreadable directory keeps the previous result and
// returns an error.
func (l *Loader) Load() (*LoadReport, error) {
	l.mu.RLock()
	dir := l.dir
	l.mu.RUnlock()

	files, err := l.files(dir)
	if err != nil {
		l.alerts.Add(AlertLoadDir, fmt.Sprintf("Error reading folder %q: %v", dir, err))
		return nil, err
	}
	l.alerts.Remove(AlertLoadDir)
	l.alerts.Remove(AlertLoadFiles)

	report := &LoadReport{Files: files, Failed: map[string]error{}}
	merged := &Collection{}
	for _, file := range files {
		c, err := LoadFile(filepath.Join(dir, file))
		if err != nil {
			report.Failed[file] = err
			l.log.Error("failed to load definitions file", "file", file, logging.KeyError, err)
			l.alerts.Add(AlertLoadFiles+alerts.Separator+file, fmt.Sprintf("Error loading file %q: %v", file, err))
			continue
		}
		merged.Merge(c)
	}

	l.mu.Lock()
	l.routes = merged.Routes
	l.mocks = merged.Mocks
	l.mu.Unlock()

	l.log.Debug("definitions loaded", "files", len(files), "failed", len(report.Failed),
		"routes", len(merged.Routes), "mocks", len(merged.Mocks))
	return report, nil
}

func (l *Loader) files(dir string) ([]string, error) {
	info, err := os.Stat(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrFileNotFound, dir)
		}
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", dir)
	}

	files, err := doublestar.Glob(os.DirFS(dir), l.pattern, doublestar.WithFilesOnly())
	if err != nil {
		return nil, fmt.Errorf("expanding %q: %w", l.pattern, err)
	}
	sort.Strings(files)
	return files, nil
}

// LoadedRoutes returns the route definitions of the last load.
func (l *Loader) LoadedRoutes() []RouteDefinition {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]RouteDefinition(nil), l.routes...)
}

// LoadedMocks returns the mock definitions of the last load.
func (l *Loader) LoadedMocks() []MockDefinition {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]MockDefinition(nil), l.mocks...)
}

// Static is a fixed definitions source, used by tests and by callers that
// build definitions in code.
type Static struct {
	Routes []RouteDefinition
	Mocks  []MockDefinition
}

// LoadedRoutes returns s.Routes.
func (s *Static) LoadedRoutes() []RouteDefinition { return s.Routes }

// LoadedMocks returns s.Mocks.
func (s *Static) LoadedMocks() []MockDefinition { return s.Mocks }
