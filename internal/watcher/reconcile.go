// Package watcher observes the workspace for external changes and drives
// reconciliation between the filesystem and the document store.
package watcher

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/specbook-dev/specbook/internal/checksum"
	"github.com/specbook-dev/specbook/internal/models"
	"github.com/specbook-dev/specbook/internal/scanner"
	"github.com/specbook-dev/specbook/internal/store"
)

// Reconciler compares on-disk state with the document store and updates
// the store to match externally observed changes. It only reads files.
type Reconciler struct {
	root   string // absolute workspace root
	scan   *scanner.Scanner
	docs   *store.Store
	logger *slog.Logger
}

// NewReconciler builds a reconciler over the given workspace root.
func NewReconciler(root string, scan *scanner.Scanner, docs *store.Store, logger *slog.Logger) *Reconciler {
	return &Reconciler{root: root, scan: scan, docs: docs, logger: logger}
}

// SyncAll runs a full workspace scan and brings the store up to date:
// new/changed files are upserted, files gone from disk are removed.
// Unchanged files are no-ops in the store, so repeated syncs of an
// unchanged tree cause no version bumps and no events.
func (r *Reconciler) SyncAll() error {
	tree, err := r.scan.Scan()
	if err != nil {
		return err
	}
	for _, d := range tree.Diagnostics {
		r.logger.Warn("reconcile: scan diagnostic", slog.String("detail", d))
	}

	onDisk := make(map[string]struct{}, len(tree.Files))
	for _, f := range tree.Files {
		onDisk[f.Path] = struct{}{}
		if _, changed := r.docs.UpsertFromScan(f.Path, f.Content, f.Checksum); changed {
			r.logger.Debug("reconcile: upserted", slog.String("path", f.Path))
		}
	}

	folders := make(map[string]struct{}, len(tree.FolderIDs))
	for _, id := range tree.FolderIDs {
		folders[id] = struct{}{}
		r.docs.AddFolder(id)
	}
	for _, f := range r.docs.List().Folders {
		if _, ok := folders[f.ID]; !ok {
			r.docs.RemoveFolder(f.ID)
		}
	}

	r.docs.SetProjectDocuments(tree.ProjectDocuments)

	for _, p := range r.docs.Paths("") {
		if _, ok := onDisk[p]; !ok {
			r.docs.Remove(p, models.OriginScan)
			r.logger.Debug("reconcile: removed stale", slog.String("path", p))
		}
	}
	return nil
}

// SyncFolder re-scans a single spec folder and reconciles its documents,
// pruning the whole folder when its directory is gone.
func (r *Reconciler) SyncFolder(id string) {
	dir := filepath.Join(r.root, "specs", id)
	if _, err := os.Stat(dir); errors.Is(err, os.ErrNotExist) {
		prefix := "specs/" + id + "/"
		for _, p := range r.docs.Paths(prefix) {
			r.docs.Remove(p, models.OriginScan)
		}
		r.docs.RemoveFolder(id)
		r.logger.Debug("reconcile: folder removed", slog.String("folder", id))
		return
	}

	r.docs.AddFolder(id)
	files, diags := r.scan.ScanFolder(id)
	for _, d := range diags {
		r.logger.Warn("reconcile: folder diagnostic", slog.String("folder", id), slog.String("detail", d))
	}

	onDisk := make(map[string]struct{}, len(files))
	for _, f := range files {
		onDisk[f.Path] = struct{}{}
		r.docs.UpsertFromScan(f.Path, f.Content, f.Checksum)
	}
	for _, p := range r.docs.Paths("specs/" + id + "/") {
		if _, ok := onDisk[p]; !ok {
			r.docs.Remove(p, models.OriginScan)
		}
	}
}

// SyncProjectDocuments re-discovers project-level documents.
func (r *Reconciler) SyncProjectDocuments() {
	docs, files, diags := r.scan.ScanProjectDocuments()
	for _, d := range diags {
		r.logger.Warn("reconcile: project docs diagnostic", slog.String("detail", d))
	}
	onDisk := make(map[string]struct{}, len(files))
	for _, f := range files {
		onDisk[f.Path] = struct{}{}
		r.docs.UpsertFromScan(f.Path, f.Content, f.Checksum)
	}
	r.docs.SetProjectDocuments(docs)
	for _, p := range r.docs.Paths("") {
		if strings.HasPrefix(p, "specs/") {
			continue
		}
		if _, ok := onDisk[p]; !ok {
			r.docs.Remove(p, models.OriginScan)
		}
	}
}

// ReconcilePath re-reads one file and updates the store when its bytes
// differ from the store's current checksum. A matching checksum means
// either a self-echo of our own save or a no-op rewrite; both are
// discarded without a version bump.
func (r *Reconciler) ReconcilePath(rel string) {
	abs := filepath.Join(r.root, filepath.FromSlash(rel))
	data, err := os.ReadFile(abs)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			if _, removed := r.docs.Remove(rel, models.OriginScan); removed {
				r.logger.Debug("reconcile: removed", slog.String("path", rel))
			}
			return
		}
		r.logger.Warn("reconcile: read failed", slog.String("path", rel), slog.String("error", err.Error()))
		return
	}

	cs := checksum.Sum(data)
	if cs == r.docs.Checksum(rel) {
		return
	}
	r.docs.UpsertFromScan(rel, data, cs)
	r.logger.Debug("reconcile: external change applied",
		slog.String("path", rel),
		slog.String("checksum", checksum.Short(data)))
}
