// Package docservice is the edit/save pipeline: it validates
// client-originated writes and commits them to disk and the store as one
// transaction.
package docservice

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/specbook-dev/specbook/internal/apperr"
	"github.com/specbook-dev/specbook/internal/metrics"
	"github.com/specbook-dev/specbook/internal/models"
	"github.com/specbook-dev/specbook/internal/storage"
	"github.com/specbook-dev/specbook/internal/store"
)

// writeFailureLimit is how many consecutive disk-write failures leave a
// document marked unavailable for writes (still readable).
const writeFailureLimit = 3

// Service coordinates the store and durable storage for client edits.
type Service struct {
	docs  *store.Store
	vault storage.Provider

	mu       sync.Mutex
	failures map[string]int
}

// NewService creates the save pipeline.
func NewService(docs *store.Store, vault storage.Provider) *Service {
	return &Service{
		docs:     docs,
		vault:    vault,
		failures: make(map[string]int),
	}
}

// Get returns the current document snapshot.
func (s *Service) Get(_ context.Context, path string) (models.Document, error) {
	return s.docs.Get(path)
}

// List returns the ordered workspace snapshot.
func (s *Service) List(_ context.Context) models.Workspace {
	ws := s.docs.List()
	if rp, ok := s.vault.(interface{ Root() string }); ok {
		ws.Root = rp.Root()
	}
	return ws
}

// Save commits a client edit with optimistic concurrency.
//
// A version mismatch returns a *apperr.ConflictError carrying the
// authoritative content and version; the caller decides how to present
// it, nothing is overwritten. A failed disk write leaves the store
// untouched and the version unadvanced.
func (s *Service) Save(ctx context.Context, path string, content []byte, expectedVersion int64) (models.Document, error) {
	if s.writesUnavailable(path) {
		metrics.Saves.WithLabelValues("unavailable").Inc()
		return models.Document{}, fmt.Errorf("docservice: %s: %w", path, apperr.ErrWriteUnavailable)
	}

	doc, err := s.docs.Apply(ctx, path, content, expectedVersion, models.OriginSave, func(b []byte) error {
		return s.vault.Write(path, b)
	})
	if err != nil {
		switch {
		case errors.Is(err, apperr.ErrNotFound):
			metrics.Saves.WithLabelValues("not_found").Inc()
		case errors.Is(err, apperr.ErrConflict):
			metrics.Saves.WithLabelValues("conflict").Inc()
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			// Abandoned before its turn; nothing was applied.
		default:
			metrics.Saves.WithLabelValues("io_failure").Inc()
			s.recordWriteFailure(path)
		}
		return models.Document{}, err
	}

	s.clearWriteFailures(path)
	metrics.Saves.WithLabelValues("ok").Inc()
	return doc, nil
}

// Create adds a new document to disk and the store.
func (s *Service) Create(ctx context.Context, path string, content []byte) (models.Document, error) {
	doc, err := s.docs.Create(ctx, path, content, func(b []byte) error {
		return s.vault.Write(path, b)
	})
	if err != nil {
		return models.Document{}, err
	}
	return doc, nil
}

// Delete removes a document from disk and the store.
func (s *Service) Delete(_ context.Context, path string) error {
	if _, err := s.docs.Get(path); err != nil {
		return err
	}
	if err := s.vault.Delete(path); err != nil {
		return err
	}
	s.docs.Remove(path, models.OriginSave)
	return nil
}

func (s *Service) writesUnavailable(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failures[path] >= writeFailureLimit
}

func (s *Service) recordWriteFailure(path string) {
	s.mu.Lock()
	s.failures[path]++
	unavailable := s.failures[path] >= writeFailureLimit
	s.mu.Unlock()
	if unavailable {
		s.docs.MarkWriteUnavailable(path, true)
	}
}

func (s *Service) clearWriteFailures(path string) {
	s.mu.Lock()
	had := s.failures[path] > 0
	delete(s.failures, path)
	s.mu.Unlock()
	if had {
		s.docs.MarkWriteUnavailable(path, false)
	}
}
