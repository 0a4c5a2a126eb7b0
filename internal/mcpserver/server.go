// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes the vault query engine for LLM integration via stdio
// transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/ansuz/internal/vault"
)

// Server wraps the MCP server with the query tools.
type Server struct {
	mcp *server.MCPServer
	hub *vault.Hub
}

// New creates a new MCP server with all query tools registered. Every
// tool takes an optional vault argument that defaults to the first
// configured vault.
func New(hub *vault.Hub) *Server {
	s := &Server{hub: hub}

	s.mcp = server.NewMCPServer(
		"Ansuz",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("semantic_search",
		mcp.WithDescription("Search the notes by meaning, returning the most similar chunks."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Natural-language search query")),
		mcp.WithNumber("limit", mcp.Description("Maximum results (default 8)")),
		mcp.WithString("vault", mcp.Description("Vault id (defaults to the first vault)")),
	), s.semanticSearch)

	s.mcp.AddTool(mcp.NewTool("get_backlinks",
		mcp.WithDescription("Find all notes that link to the specified note slug."),
		mcp.WithString("slug", mcp.Required(), mcp.Description("Slug of the target note")),
		mcp.WithString("vault", mcp.Description("Vault id")),
	), s.getBacklinks)

	s.mcp.AddTool(mcp.NewTool("get_connections",
		mcp.WithDescription("Walk the note graph from a slug and return every note within N hops."),
		mcp.WithString("slug", mcp.Required(), mcp.Description("Slug of the starting note")),
		mcp.WithNumber("hops", mcp.Description("Hop ceiling, 1-6 (default 1)")),
		mcp.WithString("vault", mcp.Description("Vault id")),
	), s.getConnections)

	s.mcp.AddTool(mcp.NewTool("hidden_connections",
		mcp.WithDescription("Find notes semantically related to a query with no direct link to the seed note."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Topic to search for")),
		mcp.WithString("seed", mcp.Required(), mcp.Description("Slug whose existing links are excluded")),
		mcp.WithNumber("limit", mcp.Description("Maximum results (default 8)")),
		mcp.WithString("vault", mcp.Description("Vault id")),
	), s.hiddenConnections)

	s.mcp.AddTool(mcp.NewTool("list_notes",
		mcp.WithDescription("List every note in a vault with its slug, title, and source metadata."),
		mcp.WithString("vault", mcp.Description("Vault id")),
	), s.listNotes)

	s.mcp.AddTool(mcp.NewTool("read_note",
		mcp.WithDescription("Read the raw content of a note file."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Relative path to the note (e.g. folder/note.md)")),
		mcp.WithString("vault", mcp.Description("Vault id")),
	), s.readNote)

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

func (s *Server) resolveVault(req mcp.CallToolRequest) (*vault.Vault, error) {
	id := ""
	if v, err := req.RequireString("vault"); err == nil {
		id = v
	}
	return s.hub.Get(id)
}

func optionalInt(req mcp.CallToolRequest, key string) int {
	if n, err := req.RequireInt(key); err == nil {
		return n
	}
	return 0
}

func jsonResult(v any) *mcp.CallToolResult {
	out, _ := json.MarshalIndent(v, "", "  ")
	return mcp.NewToolResultText(string(out))
}

func (s *Server) semanticSearch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	v, err := s.resolveVault(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	hits, err := v.Engine().Semantic(ctx, query, optionalInt(req, "limit"))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(hits), nil
}

func (s *Server) getBacklinks(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	slug, err := req.RequireString("slug")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	v, err := s.resolveVault(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	backs, err := v.Engine().Backlinks(ctx, slug)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(backs) == 0 {
		return mcp.NewToolResultText("no backlinks found"), nil
	}
	return jsonResult(backs), nil
}

func (s *Server) getConnections(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	slug, err := req.RequireString("slug")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	v, err := s.resolveVault(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	conns, err := v.Engine().Connections(ctx, slug, optionalInt(req, "hops"))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(conns), nil
}

func (s *Server) hiddenConnections(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	seed, err := req.RequireString("seed")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	v, err := s.resolveVault(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	hits, err := v.Engine().Hidden(ctx, query, seed, optionalInt(req, "limit"))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(hits), nil
}

func (s *Server) listNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	v, err := s.resolveVault(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	notes, err := v.DB().ListNotes()
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	var lines []string
	for _, n := range notes {
		lines = append(lines, fmt.Sprintf("%s\t%s", n.Slug, n.Title))
	}
	if len(lines) == 0 {
		return mcp.NewToolResultText("no notes"), nil
	}
	return mcp.NewToolResultText(strings.Join(lines, "\n")), nil
}

func (s *Server) readNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	v, err := s.resolveVault(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	data, err := v.Store().Read(path)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", path)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
