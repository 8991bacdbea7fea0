// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes postdesk tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/postdesk/internal/apperr"
	"github.com/starford/postdesk/internal/posts"
	"github.com/starford/postdesk/internal/postservice"
	"github.com/starford/postdesk/internal/validate"
)

const formatURI = "postdesk://post-format"

// Server wraps the MCP server with postdesk tools.
type Server struct {
	mcp      *server.MCPServer
	svc      *postservice.Service
	maxCover int64
	fetch    fetchFunc
}

// New creates a new MCP server with all postdesk tools registered.
// maxCover bounds images accepted by set_draft_cover.
func New(svc *postservice.Service, maxCover int64) *Server {
	if maxCover <= 0 {
		maxCover = validate.MaxCoverBytes
	}
	s := &Server{svc: svc, maxCover: maxCover, fetch: fetchHTTP}

	s.mcp = server.NewMCPServer(
		"Postdesk",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_posts",
		mcp.WithDescription("List committed posts, newest first, with an optional status filter and search query."),
		mcp.WithString("status", mcp.Description("Filter by status: all, published, scheduled or draft")),
		mcp.WithString("query", mcp.Description("Case-insensitive match against title and content")),
	), s.listPosts)

	s.mcp.AddTool(mcp.NewTool("read_post",
		mcp.WithDescription("Read a committed post as Markdown with YAML frontmatter."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Post id (e.g. post-1f0c...)")),
	), s.readPost)

	s.mcp.AddTool(mcp.NewTool("post_stats",
		mcp.WithDescription("Count posts by status."),
	), s.postStats)

	s.mcp.AddTool(mcp.NewTool("read_draft",
		mcp.WithDescription("Read the persisted composer draft, if any."),
	), s.readDraft)

	s.mcp.AddTool(mcp.NewTool("import_draft",
		mcp.WithDescription("Replace the composer draft with a Markdown document. "+
			"Content MUST follow the post format contract (YAML frontmatter with title, "+
			"optional category, tags and publishing options). Read it first via "+
			"the get_post_contract tool or the postdesk://post-format resource."),
		mcp.WithString("content", mcp.Required(), mcp.Description("Markdown content following the post format contract")),
	), s.importDraft)

	s.mcp.AddTool(mcp.NewTool("set_draft_cover",
		mcp.WithDescription("Attach a cover image to the composer draft from an http(s) URL or a base64 data URI."),
		mcp.WithString("url", mcp.Required(), mcp.Description("Image URL or data:image/...;base64,... URI")),
	), s.setDraftCover)

	s.mcp.AddTool(mcp.NewTool("get_post_contract",
		mcp.WithDescription("Returns the Markdown post format contract. "+
			"Call this before importing a draft to ensure correct structure."),
	), s.getPostContract)

	s.mcp.AddResource(
		mcp.NewResource(formatURI, "Post Format Contract",
			mcp.WithResourceDescription("Markdown format accepted for drafts and produced for exported posts."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readPostFormatResource,
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

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) listPosts(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var f posts.Filter
	if v, err := req.RequireString("status"); err == nil {
		f.Status = v
	}
	if v, err := req.RequireString("query"); err == nil {
		f.Query = v
	}
	if !f.ValidStatus() {
		return mcp.NewToolResultError(fmt.Sprintf("invalid status: %s", f.Status)), nil
	}
	items, _, err := s.svc.ListPosts(ctx, f)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(items)
}

func (s *Server) readPost(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	md, err := s.svc.PostMarkdown(ctx, id)
	if errors.Is(err, apperr.ErrNotFound) {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", id)), nil
	}
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(md)), nil
}

func (s *Server) postStats(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	c, err := s.svc.Stats(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(c)
}

func (s *Server) readDraft(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	f, ok, err := s.svc.ReadDraft(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if !ok {
		return mcp.NewToolResultText("no draft"), nil
	}
	return jsonResult(f)
}

func (s *Server) importDraft(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	f, errs, err := s.svc.ImportDraft(ctx, []byte(content))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if !errs.Valid() {
		return mcp.NewToolResultError("invalid draft: " + errs.Error()), nil
	}
	return jsonResult(f)
}

func (s *Server) getPostContract(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(PostFormatContract), nil
}

func (s *Server) readPostFormatResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      formatURI,
			MIMEType: "text/markdown",
			Text:     PostFormatContract,
		},
	}, nil
}
