package definition

import (
	"context"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/varmock/varmock/pkg/logging"
)

// DefaultDebounce groups bursts of file events (editors writing several
// files, atomic renames) into one reload.
const DefaultDebounce = 200 * time.Millisecond

// Watch monitors dir and its subdirectories and calls onChange once per burst
// of relevant file events. It runs until ctx is cancelled.
func Watch(ctx context.Context, dir string, debounce time.Duration, log *slog.Logger, onChange func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = watcher.Close() }()

	if err := addTree(watcher, dir); err != nil {
		return err
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if log == nil {
		log = logging.Nop()
	}
	log.Info("watching definitions", "path", dir)

	var pending <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Create) {
				// New subdirectories must be watched explicitly.
				_ = addTree(watcher, event.Name)
			}
			if !relevant(event) {
				continue
			}
			log.Debug("definitions changed", "file", event.Name, "op", event.Op.String())
			pending = time.After(debounce)

		case <-pending:
			pending = nil
			onChange()

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Error("definitions watcher error", "error", err)
		}
	}
}

func relevant(event fsnotify.Event) bool {
	if event.Op == fsnotify.Chmod {
		return false
	}
	switch strings.ToLower(filepath.Ext(event.Name)) {
	case ".yaml", ".yml", ".json":
		return true
	case "":
		// directories removed or renamed
		return event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename)
	default:
		return false
	}
}

func addTree(watcher *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return watcher.Add(path)
		}
		return nil
	})
}
