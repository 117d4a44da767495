// Package models defines the domain types for Specbook.
package models

import (
	"sort"
	"strings"
	"time"
)

// Status is the workflow status of a spec document, taken from frontmatter.
type Status string

// Recognized workflow statuses.
const (
	StatusDraft        Status = "draft"
	StatusInReview     Status = "in-review"
	StatusApproved     Status = "approved"
	StatusImplementing Status = "implementing"
	StatusComplete     Status = "complete"
	StatusUnknown      Status = "unknown"
)

var knownStatuses = map[Status]struct{}{
	StatusDraft:        {},
	StatusInReview:     {},
	StatusApproved:     {},
	StatusImplementing: {},
	StatusComplete:     {},
}

// ParseStatus normalizes a raw frontmatter value into a Status.
// It is total: any unrecognized or empty value yields StatusUnknown and
// ok=false, never an error.
func ParseStatus(raw string) (Status, bool) {
	normalized := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(raw)), "_", "-")
	if normalized == "" {
		return StatusUnknown, false
	}
	s := Status(normalized)
	if _, known := knownStatuses[s]; known {
		return s, true
	}
	return StatusUnknown, false
}

// Origin identifies where a document mutation came from.
type Origin string

// Mutation origins.
const (
	// OriginSave marks an in-app write through the save pipeline.
	OriginSave Origin = "save"
	// OriginScan marks externally observed truth from a scan or
	// watcher reconciliation pass.
	OriginScan Origin = "scan"
)

// Document is one recognized markdown file in the workspace.
// Path is the stable identity key, relative to the workspace root.
type Document struct {
	Path        string    `json:"path"`
	Name        string    `json:"name"`
	DisplayName string    `json:"display_name"`
	DocType     string    `json:"doc_type"`
	Content     string    `json:"content,omitempty"`
	Status      Status    `json:"status"`
	Title       string    `json:"title,omitempty"`
	Version     int64     `json:"version"`
	Checksum    string    `json:"checksum"`
	// Diagnostics records non-fatal per-document problems, e.g. a
	// malformed frontmatter block.
	Diagnostics []string `json:"diagnostics,omitempty"`
	// WriteUnavailable is set when repeated disk-write failures have
	// left the document read-only until a write succeeds again.
	WriteUnavailable bool      `json:"write_unavailable,omitempty"`
	LastSyncedAt     time.Time `json:"last_synced_at"`
}

// DocumentMeta is a lightweight representation returned by list operations.
type DocumentMeta struct {
	Path      string    `json:"path"`
	Checksum  string    `json:"checksum"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Completion is the checkbox-derived completion state of a spec,
// computed from its tasks.md.
type Completion struct {
	TotalTasks     int `json:"total_tasks"`
	CompletedTasks int `json:"completed_tasks"`
}

// IsComplete reports whether every task is checked. A spec with no tasks
// is not considered complete.
func (c Completion) IsComplete() bool {
	return c.TotalTasks > 0 && c.CompletedTasks == c.TotalTasks
}

// ProgressPercent returns completion as 0-100.
func (c Completion) ProgressPercent() int {
	if c.TotalTasks == 0 {
		return 0
	}
	return c.CompletedTasks * 100 / c.TotalTasks
}

// SpecFolder is one numbered feature directory (e.g. 001-user-auth).
type SpecFolder struct {
	ID         string     `json:"id"`
	Slug       string     `json:"slug"`
	Status     Status     `json:"status"`
	Completion Completion `json:"completion"`
	Documents  []Document `json:"documents"`
}

// Slugify derives the display slug from a folder ID by stripping the
// numeric prefix: "001-user-auth" -> "user-auth".
func Slugify(id string) string {
	if i := strings.Index(id, "-"); i > 0 {
		prefix := id[:i]
		if strings.Trim(prefix, "0123456789") == "" {
			return id[i+1:]
		}
	}
	return id
}

// ProjectDocument is a project-level markdown file shown alongside the
// spec folders (constitution, agent rules, steering docs).
type ProjectDocument struct {
	Name     string `json:"name"`
	Path     string `json:"path"`
	Category string `json:"category"`
}

// Workspace is an ordered snapshot of the whole spec tree.
type Workspace struct {
	Root             string            `json:"root"`
	ProjectDocuments []ProjectDocument `json:"project_documents"`
	Folders          []SpecFolder      `json:"folders"`
}

// docTypeInfo maps recognized filenames to display metadata.
type docTypeInfo struct {
	DisplayName string
	DocType     string
	SortOrder   int
}

var docTypeMap = map[string]docTypeInfo{
	"constitution.md": {"Constitution", "constitution", 1},
	"product.md":      {"Product Goals", "product", 5},
	"architecture.md": {"System Architecture", "architecture", 10},
	"tech.md":         {"Tech Overview", "tech", 15},
	"AGENTS.md":       {"Agent Rules", "agents", 91},
	"CLAUDE.md":       {"Claude Rules", "claude", 92},
	"spec.md":         {"Specification", "spec", 101},
	"plan.md":         {"Plan", "plan", 105},
	"tasks.md":        {"Tasks", "tasks", 110},
	"research.md":     {"Research", "research", 115},
	"quickstart.md":   {"Quickstart", "quickstart", 150},
	"data-model.md":   {"Data Model", "data-model", 155},
	"glossary.md":     {"Glossary", "glossary", 90},
}

// DocumentInfo returns the display name, doc type, and canonical sort
// order for a filename. Unrecognized markdown files fall back to a
// title-cased name and sort after all recognized types.
func DocumentInfo(filename string) (displayName, docType string, sortOrder int) {
	if info, ok := docTypeMap[filename]; ok {
		return info.DisplayName, info.DocType, info.SortOrder
	}
	name := strings.TrimSuffix(filename, ".md")
	name = strings.NewReplacer("-", " ", "_", " ").Replace(name)
	return strings.Title(name), "other", 999 //nolint:staticcheck // ASCII filenames
}

// SortDocuments orders documents by canonical doc-type order, then name.
func SortDocuments(docs []Document) {
	sort.SliceStable(docs, func(i, j int) bool {
		_, _, oi := DocumentInfo(docs[i].Name)
		_, _, oj := DocumentInfo(docs[j].Name)
		if oi != oj {
			return oi < oj
		}
		return docs[i].Name < docs[j].Name
	})
}
