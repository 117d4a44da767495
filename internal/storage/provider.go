// Package storage defines the workspace file-system abstraction.
//
// Only the save pipeline writes through a Provider; the watcher and
// scanner only read.
package storage

import "github.com/specbook-dev/specbook/internal/models"

// Provider is the interface for workspace file operations. All paths are
// relative to the workspace root.
type Provider interface {
	// List returns metadata for every markdown file under dir.
	List(dir string) ([]models.DocumentMeta, error)
	// Read returns the raw bytes of the file at path.
	Read(path string) ([]byte, error)
	// Write atomically writes content to path.
	Write(path string, content []byte) error
	// Delete removes the file at path.
	Delete(path string) error
}
