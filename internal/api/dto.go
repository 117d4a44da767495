package api

import (
	"github.com/specbook-dev/specbook/internal/models"
)

// SaveDocumentRequest is the request body for saving a document.
type SaveDocumentRequest struct {
	Content         string `json:"content"`
	ExpectedVersion int64  `json:"expected_version"`
}

// CreateDocumentRequest is the request body for creating a document.
type CreateDocumentRequest struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// ConflictResponse is returned on a 409: the authoritative state the
// client must reconcile against before retrying.
type ConflictResponse struct {
	Error           string        `json:"error"`
	Path            string        `json:"path"`
	ExpectedVersion int64         `json:"expected_version"`
	CurrentVersion  int64         `json:"current_version"`
	Content         string        `json:"content"`
	Status          models.Status `json:"status"`
}

// WorkspaceResponse wraps the ordered tree snapshot.
type WorkspaceResponse = models.Workspace

// SearchResponse wraps search results.
type SearchResponse struct {
	Results []SearchResultItem `json:"results"`
}

// SearchResultItem is a single search hit.
type SearchResultItem struct {
	Path    string `json:"path"`
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
}
