// Package mcpserver provides an MCP (Model Context Protocol) server that
// exposes the spec workspace as tools for LLM integration via stdio
// transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/specbook-dev/specbook/internal/apperr"
	"github.com/specbook-dev/specbook/internal/docservice"
	"github.com/specbook-dev/specbook/internal/index"
	"github.com/specbook-dev/specbook/internal/store"
)

// Server wraps the MCP server with spec workspace tools.
type Server struct {
	mcp  *server.MCPServer
	svc  *docservice.Service
	docs *store.Store
	idx  index.DocumentIndex
}

// New creates a new MCP server with all workspace tools registered.
func New(svc *docservice.Service, docs *store.Store, idx index.DocumentIndex) *Server {
	s := &Server{svc: svc, docs: docs, idx: idx}

	s.mcp = server.NewMCPServer(
		"Specbook",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_specs",
		mcp.WithDescription("List the spec workspace: feature folders with their status and "+
			"task completion, plus project-level documents."),
	), s.listSpecs)

	s.mcp.AddTool(mcp.NewTool("read_document",
		mcp.WithDescription("Read a spec document. Returns the content together with the "+
			"current version, which a later save_document call must echo back."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Workspace-relative path (e.g. specs/001-auth/spec.md)")),
	), s.readDocument)

	s.mcp.AddTool(mcp.NewTool("save_document",
		mcp.WithDescription("Save a spec document with optimistic concurrency. expected_version "+
			"must be the version from the last read; a stale version is rejected with the "+
			"current content so you can merge and retry. Content MUST follow the document "+
			"format (read it via get_document_format or the specbook://document-format resource)."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Workspace-relative path of the document")),
		mcp.WithString("content", mcp.Required(), mcp.Description("Full replacement Markdown content")),
		mcp.WithNumber("expected_version", mcp.Required(), mcp.Description("Version from the last read of this document")),
	), s.saveDocument)

	s.mcp.AddTool(mcp.NewTool("search_specs",
		mcp.WithDescription("Full-text search through spec document titles and bodies."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
	), s.searchSpecs)

	s.mcp.AddTool(mcp.NewTool("get_document_format",
		mcp.WithDescription("Returns the canonical spec document format. Call this before "+
			"creating or saving documents to ensure correct structure."),
	), s.getDocumentFormat)

	// Resource: document format contract.
	s.mcp.AddResource(
		mcp.NewResource("specbook://document-format", "Document Format",
			mcp.WithResourceDescription("Canonical Markdown format for spec workspace documents."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readDocumentFormatResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func (s *Server) listSpecs(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ws := s.docs.List()
	out, err := json.MarshalIndent(ws, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) readDocument(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	doc, err := s.svc.Get(ctx, path)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", path)), nil
	}
	out, _ := json.MarshalIndent(map[string]any{
		"path":        doc.Path,
		"version":     doc.Version,
		"status":      doc.Status,
		"title":       doc.Title,
		"content":     doc.Content,
		"diagnostics": doc.Diagnostics,
	}, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) saveDocument(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	expected, err := req.RequireFloat("expected_version")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	doc, err := s.svc.Save(ctx, path, []byte(content), int64(expected))
	if err != nil {
		var conflict *apperr.ConflictError
		switch {
		case errors.As(err, &conflict):
			out, _ := json.MarshalIndent(map[string]any{
				"error":            "version conflict",
				"path":             conflict.Path,
				"expected_version": conflict.ExpectedVersion,
				"current_version":  conflict.CurrentVersion,
				"content":          conflict.CurrentContent,
			}, "", "  ")
			return mcp.NewToolResultError(string(out)), nil
		case errors.Is(err, apperr.ErrNotFound):
			// Saving a document that does not exist yet creates it.
			if !strings.HasSuffix(path, ".md") {
				return mcp.NewToolResultError("path must end with .md"), nil
			}
			created, createErr := s.svc.Create(ctx, path, []byte(content))
			if createErr != nil {
				return mcp.NewToolResultError(createErr.Error()), nil
			}
			return mcp.NewToolResultText(fmt.Sprintf("created: %s (version %d)", created.Path, created.Version)), nil
		default:
			return mcp.NewToolResultError(err.Error()), nil
		}
	}
	return mcp.NewToolResultText(fmt.Sprintf("saved: %s (version %d)", doc.Path, doc.Version)), nil
}

func (s *Server) searchSpecs(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	results, err := s.idx.Search(query, 20)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(results, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) getDocumentFormat(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(DocumentFormatContract), nil
}

func (s *Server) readDocumentFormatResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      "specbook://document-format",
			MIMEType: "text/markdown",
			Text:     DocumentFormatContract,
		},
	}, nil
}
