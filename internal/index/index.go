// Package index provides an in-memory SQLite search index over the spec
// workspace, with optional FTS5 full-text search.
//
// The index is a derived view: it is rebuilt from the document store on
// startup and kept current by store change events. Nothing is persisted
// to disk — the markdown files are the only durable state.
package index

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/specbook-dev/specbook/internal/models"
	"github.com/specbook-dev/specbook/internal/parser"
	"github.com/specbook-dev/specbook/internal/store"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS documents (
	path       TEXT PRIMARY KEY,
	title      TEXT NOT NULL DEFAULT '',
	status     TEXT NOT NULL DEFAULT 'unknown',
	body       TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_documents_status ON documents(status);
`

// DocumentIndex is the interface for search operations. Consumers should
// depend on this rather than the concrete *DB to ease testing.
type DocumentIndex interface {
	Upsert(path string, content string, status models.Status) error
	Delete(path string) error
	Search(query string, limit int) ([]SearchResult, error)
	Rebuild(docs []models.Document) error
	Close() error
}

var _ DocumentIndex = (*DB)(nil)

// DB wraps the in-memory SQLite connection.
type DB struct {
	conn *sql.DB
}

// Open creates the in-memory database and applies the schema. A single
// connection keeps the shared memory database alive for the process.
// name distinguishes independent indexes within one process (tests).
func Open(name string) (*DB, error) {
	if name == "" {
		name = "specbook"
	}
	conn, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?mode=memory&cache=shared&_busy_timeout=5000", name))
	if err != nil {
		return nil, fmt.Errorf("index: open: %w", err)
	}
	conn.SetMaxOpenConns(1)
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("index: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("index: apply schema: %w", err)
	}
	if err := initFTS(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("index: apply fts schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the database, discarding the index.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Rebuild replaces the whole index from store snapshots.
func (db *DB) Rebuild(docs []models.Document) error {
	if _, err := db.conn.Exec(`DELETE FROM documents`); err != nil {
		return fmt.Errorf("index: clear: %w", err)
	}
	if err := ftsClear(db.conn); err != nil {
		return err
	}
	for _, d := range docs {
		if err := db.Upsert(d.Path, d.Content, d.Status); err != nil {
			return err
		}
	}
	return nil
}

// ApplyEvent keeps the index current with one store mutation.
func (db *DB) ApplyEvent(ev store.Event) error {
	if ev.Kind == store.EventDeleted {
		return db.Delete(ev.Path)
	}
	return db.Upsert(ev.Path, ev.Content, ev.Status)
}

// Upsert indexes one document's parsed body and metadata.
func (db *DB) Upsert(path string, content string, status models.Status) error {
	res := parser.Parse([]byte(content))

	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	_, err = tx.Exec(`
		INSERT INTO documents (path, title, status, body)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			title  = excluded.title,
			status = excluded.status,
			body   = excluded.body
	`, path, res.Title, string(status), res.Body)
	if err != nil {
		return fmt.Errorf("index: upsert document: %w", err)
	}

	if err := ftsUpsert(tx, path, res.Title, res.Body); err != nil {
		return err
	}
	return tx.Commit()
}

// Delete removes a document from the index.
func (db *DB) Delete(path string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	ftsDelete(tx, path)
	_, _ = tx.Exec(`DELETE FROM documents WHERE path = ?`, path)
	return tx.Commit()
}

// SearchResult is one search hit.
type SearchResult struct {
	Path    string `json:"path"`
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
}
