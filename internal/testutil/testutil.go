// Package testutil provides shared test helpers for setting up spec
// workspaces and search indexes.
package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"

	"github.com/specbook-dev/specbook/internal/index"
	"github.com/specbook-dev/specbook/internal/storage"
)

// TestIndex creates an isolated in-memory search index that is
// automatically closed. Each call gets a unique database name so parallel
// tests never share state.
func TestIndex(t *testing.T) *index.DB {
	t.Helper()
	db, err := index.Open("test-" + uuid.NewString())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestWorkspace creates a temporary workspace directory with a
// storage.Provider over it.
func TestWorkspace(t *testing.T) (string, storage.Provider) {
	t.Helper()
	root := t.TempDir()
	vault, err := storage.NewFS(root)
	if err != nil {
		t.Fatal(err)
	}
	return root, vault
}

// WriteDoc writes a markdown file under root at the given relative path,
// creating parent directories as needed.
func WriteDoc(t *testing.T, root, rel, content string) {
	t.Helper()
	abs := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(abs, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}
