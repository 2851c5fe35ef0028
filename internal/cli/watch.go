package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/aretw0/inplace/internal/logging"
	"github.com/aretw0/inplace/pkg/domain"
)

// ReloadFunc applies a changed manifest.
type ReloadFunc func(ctx context.Context) (*domain.Status, error)

// ScheduleFunc queues projects whose files changed for an update.
type ScheduleFunc func(projects ...domain.ProjectKey) error

// Watcher follows the workspace manifest and, optionally, the project
// directories. A manifest change reloads the workspace; a change inside a
// project directory schedules an update of that project.
type Watcher struct {
	manifest string
	reload   ReloadFunc
	dirs     map[string]domain.ProjectKey
	schedule ScheduleFunc
	onStatus func(*domain.Status, error)
	debounce time.Duration
	logger   *slog.Logger
}

type WatchOption func(*Watcher)

// WithProjectDirs watches dirs and schedules their project on change.
func WithProjectDirs(dirs map[string]domain.ProjectKey, schedule ScheduleFunc) WatchOption {
	return func(w *Watcher) {
		w.dirs = dirs
		w.schedule = schedule
	}
}

// WithDebounce sets how long the manifest must stay quiet before a reload.
func WithDebounce(d time.Duration) WatchOption {
	return func(w *Watcher) {
		w.debounce = d
	}
}

// WithReloadReport receives the outcome of every reload.
func WithReloadReport(fn func(*domain.Status, error)) WatchOption {
	return func(w *Watcher) {
		w.onStatus = fn
	}
}

func WithWatchLogger(logger *slog.Logger) WatchOption {
	return func(w *Watcher) {
		w.logger = logger
	}
}

// NewWatcher creates a watcher for the manifest at path.
func NewWatcher(path string, reload ReloadFunc, opts ...WatchOption) *Watcher {
	w := &Watcher{
		manifest: path,
		reload:   reload,
		debounce: 300 * time.Millisecond,
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run watches until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer fsw.Close()

	manifestPath, err := filepath.Abs(w.manifest)
	if err != nil {
		return fmt.Errorf("failed to resolve manifest path: %w", err)
	}
	// Editors replace files on save, so the directory is watched rather
	// than the manifest itself.
	if err := fsw.Add(filepath.Dir(manifestPath)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(manifestPath), err)
	}
	for dir, project := range w.dirs {
		if err := fsw.Add(dir); err != nil {
			w.logger.Warn("Project directory not watched", "project", project, "dir", dir, "err", err)
		}
	}
	w.logger.Info("Watching workspace", "manifest", manifestPath, "projects", len(w.dirs))

	var (
		timer *time.Timer
		fire  <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) == manifestPath {
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					if event.Op&fsnotify.Remove != 0 {
						w.logger.Warn("Manifest removed", "path", event.Name)
					}
					continue
				}
				w.logger.Debug("Manifest change detected", "op", event.Op.String())
				if timer == nil {
					timer = time.NewTimer(w.debounce)
				} else {
					timer.Reset(w.debounce)
				}
				fire = timer.C
				continue
			}
			if project, ok := w.projectOf(event.Name); ok && w.schedule != nil {
				w.logger.Debug("Project change detected", "project", project, "file", event.Name)
				if err := w.schedule(project); err != nil {
					w.logger.Error("Update not scheduled", "project", project, "err", err)
				}
			}
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("Watcher error", "err", err)
		case <-fire:
			fire = nil
			status, err := w.reload(ctx)
			if err != nil {
				w.logger.Error("Reload failed", "err", err)
			}
			if w.onStatus != nil {
				w.onStatus(status, err)
			}
		}
	}
}

// projectOf finds the project owning a changed file. fsnotify is not
// recursive, so only direct children of a project directory are reported.
func (w *Watcher) projectOf(name string) (domain.ProjectKey, bool) {
	project, ok := w.dirs[filepath.Dir(filepath.Clean(name))]
	return project, ok
}

// ReportTo prints reload outcomes as system messages followed by the status tree.
func ReportTo(p statusPrinter, out io.Writer) func(*domain.Status, error) {
	return func(status *domain.Status, err error) {
		if err != nil {
			printSystemMessage(out, "Reload failed: %s", strings.TrimSpace(err.Error()))
			return
		}
		printSystemMessage(out, "Manifest reloaded.")
		if status != nil {
			p.Status(status)
		}
	}
}

type statusPrinter interface {
	Status(*domain.Status)
}
