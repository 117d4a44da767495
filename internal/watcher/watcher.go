package watcher

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/specbook-dev/specbook/internal/metrics"
)

// Config controls debounce and degraded-mode timing.
type Config struct {
	// Debounce is the per-path quiet window before reconciling, so
	// editors that write-then-rename produce one reconciliation.
	Debounce time.Duration
	// FallbackRescan is the full-rescan interval used when the OS
	// notification channel is unavailable.
	FallbackRescan time.Duration
}

// Watch observes the workspace root recursively and feeds external
// changes to the reconciler until ctx is cancelled. New directories are
// added to the watch list as they appear. If the notification channel
// cannot be established or drops, Watch degrades to periodic full
// rescans instead of failing the server.
func Watch(ctx context.Context, rec *Reconciler, root string, cfg Config, logger *slog.Logger) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Error("watcher: init failed, degrading to periodic rescan", slog.String("error", err.Error()))
		return pollLoop(ctx, rec, cfg.FallbackRescan, logger)
	}
	defer w.Close()

	if err := addDirsRecursive(w, root); err != nil {
		logger.Error("watcher: initial watch setup failed, degrading to periodic rescan", slog.String("error", err.Error()))
		return pollLoop(ctx, rec, cfg.FallbackRescan, logger)
	}

	logger.Info("watcher: started", slog.String("root", root))

	// Debounce state is owned by this loop. Timers fire into channels so
	// the loop stays the single consumer.
	pathFired := make(chan string, 64)
	scopeFired := make(chan string, 16)
	pathTimers := make(map[string]*time.Timer)
	scopeTimers := make(map[string]*time.Timer)

	schedulePath := func(rel string) {
		if t, ok := pathTimers[rel]; ok {
			t.Reset(cfg.Debounce)
			return
		}
		pathTimers[rel] = time.AfterFunc(cfg.Debounce, func() {
			select {
			case pathFired <- rel:
			case <-ctx.Done():
			}
		})
	}
	// scope is a spec folder ID, or "" for the project-document area.
	scheduleScope := func(scope string) {
		if t, ok := scopeTimers[scope]; ok {
			t.Reset(cfg.Debounce)
			return
		}
		scopeTimers[scope] = time.AfterFunc(cfg.Debounce, func() {
			select {
			case scopeFired <- scope:
			case <-ctx.Done():
			}
		})
	}
	stopTimers := func() {
		for _, t := range pathTimers {
			t.Stop()
		}
		for _, t := range scopeTimers {
			t.Stop()
		}
	}

	for {
		select {
		case <-ctx.Done():
			stopTimers()
			logger.Info("watcher: stopped")
			return nil

		case rel := <-pathFired:
			delete(pathTimers, rel)
			rec.ReconcilePath(rel)

		case scope := <-scopeFired:
			delete(scopeTimers, scope)
			if scope == "" {
				rec.SyncProjectDocuments()
			} else {
				rec.SyncFolder(scope)
			}

		case ev, ok := <-w.Events:
			if !ok {
				stopTimers()
				logger.Error("watcher: event channel closed, degrading to periodic rescan")
				return pollLoop(ctx, rec, cfg.FallbackRescan, logger)
			}

			rel, relErr := filepath.Rel(root, ev.Name)
			if relErr != nil {
				continue
			}
			rel = filepath.ToSlash(rel)
			metrics.WatchEvents.WithLabelValues(opLabel(ev.Op)).Inc()

			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(ev.Name); statErr == nil && info.IsDir() {
					if addErr := addDirsRecursive(w, ev.Name); addErr != nil {
						logger.Warn("watcher: add new dir failed",
							slog.String("path", ev.Name),
							slog.String("error", addErr.Error()))
					}
					scheduleScope(scopeFor(rel))
					continue
				}
			}

			if strings.HasSuffix(rel, ".md") && !strings.HasPrefix(filepath.Base(rel), ".") {
				switch {
				case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
					schedulePath(rel)
					if ev.Op&fsnotify.Create != 0 && scopeFor(rel) == "" {
						// A brand-new project-level document also
						// changes the project-document listing, which
						// only a scoped rescan refreshes.
						scheduleScope("")
					}
				case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
					// Rename fires on the old path; the new path
					// arrives as a separate Create. Reconciling the
					// old path removes it once the debounce elapses.
					schedulePath(rel)
					scheduleScope(scopeFor(rel))
				}
				continue
			}

			// Directory removals and renames cannot be stat'ed; a
			// scoped rescan prunes whatever disappeared.
			if ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
				scheduleScope(scopeFor(rel))
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				stopTimers()
				logger.Error("watcher: error channel closed, degrading to periodic rescan")
				return pollLoop(ctx, rec, cfg.FallbackRescan, logger)
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// pollLoop is the degraded mode: periodic full reconciliation when
// filesystem notifications are unavailable.
func pollLoop(ctx context.Context, rec *Reconciler, interval time.Duration, logger *slog.Logger) error {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("watcher: poll loop stopped")
			return nil
		case <-ticker.C:
			if err := rec.SyncAll(); err != nil {
				logger.Warn("watcher: fallback rescan failed", slog.String("error", err.Error()))
			}
		}
	}
}

// scopeFor maps a relative path to its reconciliation scope: the spec
// folder ID for anything under specs/, "" (project documents) otherwise.
func scopeFor(rel string) string {
	rest, ok := strings.CutPrefix(rel, "specs/")
	if !ok {
		return ""
	}
	id, _, _ := strings.Cut(rest, "/")
	return id
}

// addDirsRecursive adds root and all its non-hidden subdirectories to
// the watcher.
func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") && path != root && d.Name() != ".specify" && d.Name() != ".kiro" {
			return filepath.SkipDir
		}
		return w.Add(path)
	})
}

func opLabel(op fsnotify.Op) string {
	switch {
	case op&fsnotify.Create != 0:
		return "create"
	case op&fsnotify.Write != 0:
		return "write"
	case op&fsnotify.Remove != 0:
		return "remove"
	case op&fsnotify.Rename != 0:
		return "rename"
	default:
		return "other"
	}
}
