package mcpserver

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/ansuz/internal/testutil"
	"github.com/starford/ansuz/internal/vault"
)

func testServer(t *testing.T) *Server {
	t.Helper()

	root := t.TempDir()
	testutil.WriteNote(t, root, "alpha.md", "Alpha links to [[Beta]] and covers sailing.")
	testutil.WriteNote(t, root, "beta.md", "Beta covers gardening.")

	hub, err := vault.New(context.Background(), []vault.Config{{
		ID: "main", Name: "Main", Root: root,
		DBPath: filepath.Join(t.TempDir(), "main.db"),
	}}, vault.Options{
		Embedder: testutil.FakeEmbedder{},
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { hub.Close() })
	if err := hub.ReingestAll(context.Background()); err != nil {
		t.Fatal(err)
	}

	return New(hub)
}

func callTool(t *testing.T, srv *Server, name string, args map[string]interface{}) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	var result *mcp.CallToolResult
	var err error

	switch name {
	case "semantic_search":
		result, err = srv.semanticSearch(ctx, req)
	case "get_backlinks":
		result, err = srv.getBacklinks(ctx, req)
	case "get_connections":
		result, err = srv.getConnections(ctx, req)
	case "hidden_connections":
		result, err = srv.hiddenConnections(ctx, req)
	case "list_notes":
		result, err = srv.listNotes(ctx, req)
	case "read_note":
		result, err = srv.readNote(ctx, req)
	default:
		t.Fatalf("unknown tool: %s", name)
	}

	if err != nil {
		t.Fatalf("tool %s error: %v", name, err)
	}
	return result
}

func resultText(r *mcp.CallToolResult) string {
	if len(r.Content) > 0 {
		if tc, ok := r.Content[0].(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func TestSemanticSearchTool(t *testing.T) {
	srv := testServer(t)
	r := callTool(t, srv, "semantic_search", map[string]interface{}{
		"query": "gardening",
		"limit": 1,
	})
	if r.IsError {
		t.Fatalf("tool error: %s", resultText(r))
	}
	if !strings.Contains(resultText(r), "beta") {
		t.Errorf("result = %q", resultText(r))
	}
}

func TestGetBacklinksTool(t *testing.T) {
	srv := testServer(t)

	r := callTool(t, srv, "get_backlinks", map[string]interface{}{"slug": "beta"})
	if !strings.Contains(resultText(r), "alpha") {
		t.Errorf("backlinks = %q", resultText(r))
	}

	r = callTool(t, srv, "get_backlinks", map[string]interface{}{"slug": "nope"})
	if resultText(r) != "no backlinks found" {
		t.Errorf("backlinks = %q", resultText(r))
	}
}

func TestGetConnectionsTool(t *testing.T) {
	srv := testServer(t)
	r := callTool(t, srv, "get_connections", map[string]interface{}{
		"slug": "alpha",
		"hops": 2,
	})
	if !strings.Contains(resultText(r), "beta") {
		t.Errorf("connections = %q", resultText(r))
	}
}

func TestHiddenConnectionsTool(t *testing.T) {
	srv := testServer(t)
	r := callTool(t, srv, "hidden_connections", map[string]interface{}{
		"query": "gardening",
		"seed":  "alpha",
	})
	if r.IsError {
		t.Fatalf("tool error: %s", resultText(r))
	}
	// beta is linked from alpha, so it must not surface.
	if strings.Contains(resultText(r), `"slug": "beta"`) {
		t.Errorf("hidden leaked a neighbor: %q", resultText(r))
	}
}

func TestListNotesTool(t *testing.T) {
	srv := testServer(t)
	r := callTool(t, srv, "list_notes", map[string]interface{}{})
	text := resultText(r)
	if !strings.Contains(text, "alpha") || !strings.Contains(text, "beta") {
		t.Errorf("list = %q", text)
	}
}

func TestReadNoteTool(t *testing.T) {
	srv := testServer(t)

	r := callTool(t, srv, "read_note", map[string]interface{}{"path": "beta.md"})
	if resultText(r) != "Beta covers gardening." {
		t.Errorf("read = %q", resultText(r))
	}

	r = callTool(t, srv, "read_note", map[string]interface{}{"path": "nope.md"})
	if !r.IsError {
		t.Error("expected error for missing note")
	}
}

func TestUnknownVaultIsToolError(t *testing.T) {
	srv := testServer(t)
	r := callTool(t, srv, "list_notes", map[string]interface{}{"vault": "nope"})
	if !r.IsError {
		t.Error("expected tool error for unknown vault")
	}
}
