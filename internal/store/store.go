// Package store holds the authoritative in-memory model of the spec
// workspace. Every other component reads and mutates exclusively through
// it; the on-disk files are only a durability mirror rebuilt on startup.
package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/specbook-dev/specbook/internal/apperr"
	"github.com/specbook-dev/specbook/internal/checksum"
	"github.com/specbook-dev/specbook/internal/models"
	"github.com/specbook-dev/specbook/internal/parser"
)

// EventKind classifies a store mutation.
type EventKind string

// Store mutation kinds.
const (
	EventCreated EventKind = "created"
	EventUpdated EventKind = "updated"
	EventDeleted EventKind = "deleted"
)

// Event describes one store mutation. Every mutation, regardless of
// origin, produces exactly one Event.
type Event struct {
	Kind    EventKind
	Path    string
	Version int64
	Status  models.Status
	Content string
	Origin  models.Origin
}

// Listener receives store mutation events. Listeners run synchronously in
// mutation order for a given path and must not block.
type Listener func(Event)

// Store is the single source of truth for the workspace.
//
// Reads go through an RWMutex over the document map. Mutations on a given
// path are additionally serialized through a per-path slot channel:
// blocked senders on a channel are queued FIFO by the runtime, so queued
// writers acquire the slot in arrival order and each observes the result
// of the previous one.
type Store struct {
	mu          sync.RWMutex
	docs        map[string]*models.Document
	folders     map[string]struct{}
	projectDocs []models.ProjectDocument
	listeners   []Listener

	slots sync.Map // path -> chan struct{} (capacity 1)
}

// New creates an empty store.
func New() *Store {
	return &Store{
		docs:    make(map[string]*models.Document),
		folders: make(map[string]struct{}),
	}
}

// OnChange registers a mutation listener. Register before mutations start.
func (s *Store) OnChange(l Listener) {
	s.mu.Lock()
	s.listeners = append(s.listeners, l)
	s.mu.Unlock()
}

func (s *Store) emit(ev Event) {
	s.mu.RLock()
	ls := make([]Listener, len(s.listeners))
	copy(ls, s.listeners)
	s.mu.RUnlock()
	for _, l := range ls {
		l(ev)
	}
}

// acquire takes the per-path mutation slot, or gives up when ctx is
// canceled first. A caller that gives up has applied nothing.
func (s *Store) acquire(ctx context.Context, path string) error {
	v, _ := s.slots.LoadOrStore(path, make(chan struct{}, 1))
	slot := v.(chan struct{})
	select {
	case slot <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Store) release(path string) {
	v, _ := s.slots.Load(path)
	<-v.(chan struct{})
}

// Get returns the current snapshot of the document at path.
func (s *Store) Get(path string) (models.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[path]
	if !ok {
		return models.Document{}, fmt.Errorf("store: %s: %w", path, apperr.ErrNotFound)
	}
	return *doc, nil
}

// Checksum returns the current content hash for path, or "" when unknown.
// The watcher uses this to discard self-echo events without re-parsing.
func (s *Store) Checksum(path string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if doc, ok := s.docs[path]; ok {
		return doc.Checksum
	}
	return ""
}

// Paths returns every known document path with the given prefix
// ("" for all), used by reconciliation to prune removed files.
func (s *Store) Paths(prefix string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []string
	for p := range s.docs {
		if strings.HasPrefix(p, prefix) {
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out
}

// Apply accepts a candidate write with optimistic concurrency: it
// succeeds only when expectedVersion matches the document's current
// version. While the per-path slot is held, commit (the durable disk
// write) runs first; if it fails the store is left untouched and the
// version does not advance — store and disk move as one transaction.
func (s *Store) Apply(ctx context.Context, path string, content []byte, expectedVersion int64, origin models.Origin, commit func([]byte) error) (models.Document, error) {
	if err := s.acquire(ctx, path); err != nil {
		return models.Document{}, err
	}
	defer s.release(path)

	s.mu.RLock()
	cur, ok := s.docs[path]
	var snapshot models.Document
	if ok {
		snapshot = *cur
	}
	s.mu.RUnlock()

	if !ok {
		return models.Document{}, fmt.Errorf("store: %s: %w", path, apperr.ErrNotFound)
	}
	if snapshot.Version != expectedVersion {
		return models.Document{}, &apperr.ConflictError{
			Path:            path,
			ExpectedVersion: expectedVersion,
			CurrentVersion:  snapshot.Version,
			CurrentContent:  snapshot.Content,
			CurrentStatus:   snapshot.Status,
		}
	}
	if commit != nil {
		if err := commit(content); err != nil {
			return models.Document{}, fmt.Errorf("store: commit %s: %w", path, err)
		}
	}

	res := parser.Parse(content)
	now := time.Now()

	s.mu.Lock()
	doc := s.docs[path]
	doc.Content = string(content)
	doc.Status = res.Status
	doc.Title = res.Title
	doc.Diagnostics = res.Diagnostics
	doc.Version++
	doc.Checksum = checksum.Sum(content)
	doc.LastSyncedAt = now
	doc.WriteUnavailable = false
	out := *doc
	s.mu.Unlock()

	s.emit(Event{Kind: EventUpdated, Path: path, Version: out.Version, Status: out.Status, Content: out.Content, Origin: origin})
	return out, nil
}

// Create registers a new document originated by the save pipeline.
// commit is the durable disk write and runs before any store mutation.
func (s *Store) Create(ctx context.Context, path string, content []byte, commit func([]byte) error) (models.Document, error) {
	if err := s.acquire(ctx, path); err != nil {
		return models.Document{}, err
	}
	defer s.release(path)

	s.mu.RLock()
	_, exists := s.docs[path]
	s.mu.RUnlock()
	if exists {
		return models.Document{}, fmt.Errorf("store: %s: %w", path, apperr.ErrAlreadyExists)
	}
	if commit != nil {
		if err := commit(content); err != nil {
			return models.Document{}, fmt.Errorf("store: commit %s: %w", path, err)
		}
	}

	out := s.insert(path, content, checksum.Sum(content))
	s.emit(Event{Kind: EventCreated, Path: path, Version: out.Version, Status: out.Status, Content: out.Content, Origin: models.OriginSave})
	return out, nil
}

// UpsertFromScan records externally observed truth from a scan or
// watcher reconciliation. It bypasses the version check but still
// advances the version. When the checksum matches the current one the
// call is a no-op with no version bump and no event; this is what makes
// rescans idempotent and suppresses the watcher's echo of our own writes.
func (s *Store) UpsertFromScan(path string, content []byte, cs string) (models.Document, bool) {
	// Background context: reconciliation never abandons its turn.
	_ = s.acquire(context.Background(), path)
	defer s.release(path)

	s.mu.RLock()
	cur, exists := s.docs[path]
	var snapshot models.Document
	if exists {
		snapshot = *cur
	}
	s.mu.RUnlock()

	if exists && snapshot.Checksum == cs {
		return snapshot, false
	}

	if !exists {
		out := s.insert(path, content, cs)
		s.emit(Event{Kind: EventCreated, Path: path, Version: out.Version, Status: out.Status, Content: out.Content, Origin: models.OriginScan})
		return out, true
	}

	res := parser.Parse(content)
	now := time.Now()

	s.mu.Lock()
	doc := s.docs[path]
	doc.Content = string(content)
	doc.Status = res.Status
	doc.Title = res.Title
	doc.Diagnostics = res.Diagnostics
	doc.Version++
	doc.Checksum = cs
	doc.LastSyncedAt = now
	out := *doc
	s.mu.Unlock()

	s.emit(Event{Kind: EventUpdated, Path: path, Version: out.Version, Status: out.Status, Content: out.Content, Origin: models.OriginScan})
	return out, true
}

// insert builds and stores a fresh document at version 1. Caller holds
// the path slot.
func (s *Store) insert(path string, content []byte, cs string) models.Document {
	res := parser.Parse(content)
	name := docName(path)
	display, docType, _ := models.DocumentInfo(name)

	doc := &models.Document{
		Path:         path,
		Name:         name,
		DisplayName:  display,
		DocType:      docType,
		Content:      string(content),
		Status:       res.Status,
		Title:        res.Title,
		Diagnostics:  res.Diagnostics,
		Version:      1,
		Checksum:     cs,
		LastSyncedAt: time.Now(),
	}

	s.mu.Lock()
	s.docs[path] = doc
	if id := folderID(path); id != "" {
		s.folders[id] = struct{}{}
	}
	out := *doc
	s.mu.Unlock()
	return out
}

// Remove drops the document at path. Reports whether it was known.
func (s *Store) Remove(path string, origin models.Origin) (models.Document, bool) {
	_ = s.acquire(context.Background(), path)
	defer s.release(path)

	s.mu.Lock()
	doc, ok := s.docs[path]
	if !ok {
		s.mu.Unlock()
		return models.Document{}, false
	}
	out := *doc
	delete(s.docs, path)
	s.mu.Unlock()

	s.emit(Event{Kind: EventDeleted, Path: path, Version: out.Version, Status: out.Status, Origin: origin})
	return out, true
}

// AddFolder registers a (possibly empty) spec folder.
func (s *Store) AddFolder(id string) {
	s.mu.Lock()
	s.folders[id] = struct{}{}
	s.mu.Unlock()
}

// RemoveFolder drops a folder from the registry. Its documents must be
// removed individually so each removal emits its own event.
func (s *Store) RemoveFolder(id string) {
	s.mu.Lock()
	delete(s.folders, id)
	s.mu.Unlock()
}

// SetProjectDocuments replaces the project-level document listing.
func (s *Store) SetProjectDocuments(docs []models.ProjectDocument) {
	s.mu.Lock()
	s.projectDocs = docs
	s.mu.Unlock()
}

// MarkWriteUnavailable flags a document whose disk writes keep failing.
// Not a content mutation: no version bump, no event.
func (s *Store) MarkWriteUnavailable(path string, unavailable bool) {
	s.mu.Lock()
	if doc, ok := s.docs[path]; ok {
		doc.WriteUnavailable = unavailable
	}
	s.mu.Unlock()
}

// List returns an ordered snapshot of the full tree: folders by ID,
// documents within a folder in canonical doc-type order then by name.
// Folder status comes from its spec.md, completion from its tasks.md.
func (s *Store) List() models.Workspace {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.folders))
	for id := range s.folders {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	ws := models.Workspace{
		ProjectDocuments: append([]models.ProjectDocument(nil), s.projectDocs...),
		Folders:          make([]models.SpecFolder, 0, len(ids)),
	}

	for _, id := range ids {
		folder := models.SpecFolder{
			ID:     id,
			Slug:   models.Slugify(id),
			Status: models.StatusUnknown,
		}
		prefix := "specs/" + id + "/"
		for p, doc := range s.docs {
			if !strings.HasPrefix(p, prefix) {
				continue
			}
			snapshot := *doc
			snapshot.Content = "" // listings stay lightweight
			folder.Documents = append(folder.Documents, snapshot)

			switch doc.Name {
			case "spec.md":
				folder.Status = doc.Status
			case "tasks.md":
				folder.Completion = parser.CountTasks([]byte(doc.Content))
			}
		}
		models.SortDocuments(folder.Documents)
		ws.Folders = append(ws.Folders, folder)
	}
	return ws
}

// docName is the document's name within its folder: "specs/001-x/spec.md"
// -> "spec.md", "specs/001-x/contracts/api.md" -> "contracts/api.md",
// project-level paths stay as-is.
func docName(path string) string {
	if id := folderID(path); id != "" {
		return strings.TrimPrefix(path, "specs/"+id+"/")
	}
	return path
}

// folderID extracts the spec folder ID from a path under specs/, or "".
func folderID(path string) string {
	rest, ok := strings.CutPrefix(path, "specs/")
	if !ok {
		return ""
	}
	id, _, ok := strings.Cut(rest, "/")
	if !ok {
		return ""
	}
	return id
}
