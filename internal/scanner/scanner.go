// Package scanner walks the workspace tree and produces the spec
// folder/document listing that seeds and reconciles the document store.
package scanner

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/specbook-dev/specbook/internal/checksum"
	"github.com/specbook-dev/specbook/internal/models"
)

// specsDir is the directory holding numbered feature folders.
const specsDir = "specs"

// projectDocLocations lists where project-level documents live, in
// precedence order. Entries ending in "/" are directories.
var projectDocLocations = []struct {
	Location string
	Category string
}{
	{".specify/memory/constitution.md", "guide"},
	{".specify/memory/", "memory"},
	{".kiro/steering/", "steering"},
	{"CLAUDE.md", "guide"},
	{"AGENTS.md", "guide"},
}

// File is one markdown file found by a scan.
type File struct {
	Path     string // relative to the workspace root, slash-separated
	Content  []byte
	Checksum string
}

// Tree is the result of a full workspace scan.
type Tree struct {
	FolderIDs        []string
	Files            []File
	ProjectDocuments []models.ProjectDocument
	// Diagnostics records skipped files and subtrees; a scan only
	// fails outright when the workspace root itself is unreadable.
	Diagnostics []string
}

// Scanner reads the workspace from disk. It never writes.
type Scanner struct {
	root   string // absolute workspace root
	logger *slog.Logger
}

// New creates a scanner over the given absolute workspace root.
func New(root string, logger *slog.Logger) *Scanner {
	return &Scanner{root: root, logger: logger}
}

// Scan walks the whole workspace. Scanning an unchanged tree twice
// yields identical results; the store turns unchanged files into no-ops.
func (s *Scanner) Scan() (*Tree, error) {
	if _, err := os.ReadDir(s.root); err != nil {
		// The only fatal error in the core.
		return nil, fmt.Errorf("scanner: read workspace root: %w", err)
	}

	tree := &Tree{}

	specsAbs := filepath.Join(s.root, specsDir)
	entries, err := os.ReadDir(specsAbs)
	if err != nil && !os.IsNotExist(err) {
		tree.Diagnostics = append(tree.Diagnostics, fmt.Sprintf("specs directory unreadable: %v", err))
	}
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		tree.FolderIDs = append(tree.FolderIDs, e.Name())
		files, diags := s.scanDir(filepath.Join(specsDir, e.Name()))
		tree.Files = append(tree.Files, files...)
		tree.Diagnostics = append(tree.Diagnostics, diags...)
	}
	sort.Strings(tree.FolderIDs)

	docs, files, diags := s.scanProjectDocuments()
	tree.ProjectDocuments = docs
	tree.Files = append(tree.Files, files...)
	tree.Diagnostics = append(tree.Diagnostics, diags...)

	return tree, nil
}

// ScanFolder re-scans a single spec folder. A missing directory returns
// an empty file list so the caller can prune the store.
func (s *Scanner) ScanFolder(id string) ([]File, []string) {
	return s.scanDir(filepath.Join(specsDir, id))
}

// ScanProjectDocuments re-discovers project-level documents.
func (s *Scanner) ScanProjectDocuments() ([]models.ProjectDocument, []File, []string) {
	return s.scanProjectDocuments()
}

// scanDir walks rel (relative to root) collecting markdown files. An
// unreadable subdirectory aborts only that subtree.
func (s *Scanner) scanDir(rel string) ([]File, []string) {
	base := filepath.Join(s.root, rel)
	var files []File
	var diags []string

	err := filepath.WalkDir(base, func(p string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			if os.IsNotExist(walkErr) {
				// Directory vanished mid-scan or was never there; the
				// caller prunes accordingly.
				return nil
			}
			diags = append(diags, fmt.Sprintf("subtree unreadable: %s: %v", p, walkErr))
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".") && p != base {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(d.Name(), ".md") {
			return nil
		}
		f, diag := s.readFile(p)
		if diag != "" {
			diags = append(diags, diag)
			return nil
		}
		files = append(files, f)
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		diags = append(diags, fmt.Sprintf("walk %s: %v", rel, err))
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, diags
}

func (s *Scanner) scanProjectDocuments() ([]models.ProjectDocument, []File, []string) {
	var docs []models.ProjectDocument
	var files []File
	var diags []string
	seen := make(map[string]struct{})

	addFile := func(abs string, category string) {
		name := filepath.Base(abs)
		if _, dup := seen[name]; dup {
			return
		}
		f, diag := s.readFile(abs)
		if diag != "" {
			diags = append(diags, diag)
			return
		}
		seen[name] = struct{}{}
		display, _, _ := models.DocumentInfo(name)
		docs = append(docs, models.ProjectDocument{
			Name:     display,
			Path:     f.Path,
			Category: category,
		})
		files = append(files, f)
	}

	for _, loc := range projectDocLocations {
		abs := filepath.Join(s.root, filepath.FromSlash(loc.Location))
		info, err := os.Stat(abs)
		if err != nil {
			continue
		}
		if !info.IsDir() {
			addFile(abs, loc.Category)
			continue
		}
		entries, err := os.ReadDir(abs)
		if err != nil {
			diags = append(diags, fmt.Sprintf("project docs dir unreadable: %s: %v", loc.Location, err))
			continue
		}
		for _, e := range entries {
			if e.IsDir() || !strings.HasSuffix(e.Name(), ".md") {
				continue
			}
			addFile(filepath.Join(abs, e.Name()), loc.Category)
		}
	}

	sort.Slice(docs, func(i, j int) bool {
		_, _, oi := models.DocumentInfo(filepath.Base(docs[i].Path))
		_, _, oj := models.DocumentInfo(filepath.Base(docs[j].Path))
		if oi != oj {
			return oi < oj
		}
		return docs[i].Name < docs[j].Name
	})
	return docs, files, diags
}

// readFile loads one file; unreadable files are skipped with a
// diagnostic, never a scan failure.
func (s *Scanner) readFile(abs string) (File, string) {
	data, err := os.ReadFile(abs)
	if err != nil {
		s.logger.Warn("scanner: read failed", slog.String("path", abs), slog.String("error", err.Error()))
		return File{}, fmt.Sprintf("unreadable file: %s: %v", abs, err)
	}
	rel, err := filepath.Rel(s.root, abs)
	if err != nil {
		return File{}, fmt.Sprintf("resolve path: %s: %v", abs, err)
	}
	return File{
		Path:     filepath.ToSlash(rel),
		Content:  data,
		Checksum: checksum.Sum(data),
	}, ""
}
