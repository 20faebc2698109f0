package ragcore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

const Version = "1.0.0"

// NewServer exposes the client's operations as MCP tools over stdio or any
// transport the caller mounts.
func NewServer(client *Client) *server.MCPServer {
	s := server.NewMCPServer(
		"ragcore",
		Version,
		server.WithToolCapabilities(true),
		server.WithInstructions("Financial knowledge assistant: ask questions, manage documents and chat sessions."),
	)

	s.AddTool(
		mcp.NewTool("chat",
			mcp.WithDescription("Answer a user question with retrieval-augmented generation"),
			mcp.WithString("query", mcp.Required(), mcp.Description("The user question")),
			mcp.WithString("session_id", mcp.Description("Session for conversation continuity; omit for a stateless turn")),
		),
		handleChat(client),
	)

	s.AddTool(
		mcp.NewTool("search",
			mcp.WithDescription("Semantic search over the knowledge base"),
			mcp.WithString("query", mcp.Required(), mcp.Description("Search query")),
			mcp.WithNumber("top_k", mcp.Description("Number of hits to return, default 10")),
			mcp.WithNumber("threshold", mcp.Description("Minimum similarity score")),
		),
		handleSearch(client),
	)

	s.AddTool(
		mcp.NewTool("add_document",
			mcp.WithDescription("Index a document into the knowledge base"),
			mcp.WithString("content", mcp.Required(), mcp.Description("Document text")),
			mcp.WithString("title", mcp.Description("Document title")),
		),
		handleAddDocument(client),
	)

	s.AddTool(
		mcp.NewTool("create_session",
			mcp.WithDescription("Create a new chat session"),
		),
		handleCreateSession(client),
	)

	s.AddTool(
		mcp.NewTool("delete_session",
			mcp.WithDescription("Delete a chat session and its history"),
			mcp.WithString("session_id", mcp.Required(), mcp.Description("Session to delete")),
		),
		handleDeleteSession(client),
	)

	s.AddTool(
		mcp.NewTool("list_sessions",
			mcp.WithDescription("List chat sessions, newest first"),
			mcp.WithNumber("offset", mcp.Description("Pagination offset")),
			mcp.WithNumber("limit", mcp.Description("Page size, default 20")),
		),
		handleListSessions(client),
	)

	return s
}

// ServeStdio runs the server over stdin/stdout until EOF.
func ServeStdio(client *Client) error {
	return server.ServeStdio(NewServer(client))
}

func handleChat(client *Client) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := req.RequireString("query")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		sessionID := req.GetString("session_id", "")
		answer, err := client.Chat(ctx, sessionID, query)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("chat failed: %v", err)), nil
		}
		return mcp.NewToolResultText(answer), nil
	}
}

func handleSearch(client *Client) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := req.RequireString("query")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		topK := req.GetInt("top_k", 10)
		threshold := req.GetFloat("threshold", 0)

		results, err := client.Search(ctx, query, topK, threshold)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("search failed: %v", err)), nil
		}
		return jsonResult(results)
	}
}

func handleAddDocument(client *Client) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		content, err := req.RequireString("content")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		title := req.GetString("title", "")
		doc, err := client.AddDocument(ctx, content, title, nil)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("add document failed: %v", err)), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("indexed document %s", doc.ID)), nil
	}
}

func handleCreateSession(client *Client) server.ToolHandlerFunc {
	return func(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		sess, err := client.Sessions().Create(ctx)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("create session failed: %v", err)), nil
		}
		return jsonResult(sess)
	}
}

func handleDeleteSession(client *Client) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("session_id")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if err := client.Sessions().Delete(ctx, id); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("delete session failed: %v", err)), nil
		}
		return mcp.NewToolResultText("deleted"), nil
	}
}

func handleListSessions(client *Client) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		offset := req.GetInt("offset", 0)
		limit := req.GetInt("limit", 20)
		sessions, err := client.Sessions().List(ctx, offset, limit)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("list sessions failed: %v", err)), nil
		}
		return jsonResult(sessions)
	}
}

func jsonResult(v interface{}) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("encode result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
