// Package mcpserver exposes the skill library to external MCP clients so
// other agents can search and read codified skills.
package mcpserver

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/agentpad/agentpad/agent"
)

// New builds the MCP server with the skill tools registered.
func New(skills agent.SkillStore, version string) *server.MCPServer {
	s := server.NewMCPServer("agentpad", version,
		server.WithToolCapabilities(false),
	)

	s.AddTool(
		mcp.NewTool("list_skills",
			mcp.WithDescription("List the names of all saved skills."),
		),
		func(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			names, err := skills.ListSkillNames(ctx)
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			if len(names) == 0 {
				return mcp.NewToolResultText("No skills saved yet."), nil
			}
			return mcp.NewToolResultText(strings.Join(names, "\n")), nil
		},
	)

	s.AddTool(
		mcp.NewTool("search_skills",
			mcp.WithDescription("Search saved skills semantically for a topic or problem."),
			mcp.WithString("query",
				mcp.Required(),
				mcp.Description("What to search for"),
			),
		),
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			query, err := request.RequireString("query")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			hits, err := skills.SearchSkills(ctx, query, 5)
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			if len(hits) == 0 {
				return mcp.NewToolResultText(fmt.Sprintf("No skills matched %q.", query)), nil
			}
			var sb strings.Builder
			for _, hit := range hits {
				fmt.Fprintf(&sb, "%s: %s\n", hit.Name, hit.Snippet)
			}
			return mcp.NewToolResultText(sb.String()), nil
		},
	)

	s.AddTool(
		mcp.NewTool("get_skill",
			mcp.WithDescription("Read the full content of a saved skill by name."),
			mcp.WithString("name",
				mcp.Required(),
				mcp.Description("The skill name"),
			),
		),
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			name, err := request.RequireString("name")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			skill, err := skills.GetSkill(ctx, name)
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			if skill == nil {
				return mcp.NewToolResultError("skill not found: " + name), nil
			}
			return mcp.NewToolResultText(skill.Content), nil
		},
	)

	return s
}

// HTTPHandler wraps the MCP server for mounting under the API mux.
func HTTPHandler(s *server.MCPServer) http.Handler {
	return server.NewStreamableHTTPServer(s)
}
