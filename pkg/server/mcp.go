package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/mikeboe/deep-research/pkg/research"
)

const DeepResearchTool = "deep_research"

type deepResearchInput struct {
	Query   string `json:"query" jsonschema:"The topic or question to research"`
	Breadth int    `json:"breadth,omitempty" jsonschema:"Number of parallel queries per level, 1 to 10, default 4"`
	Depth   *int   `json:"depth,omitempty" jsonschema:"Number of levels to recurse, 0 to 5, default 2"`
	Mode    string `json:"mode,omitempty" jsonschema:"report for a detailed markdown report, answer for a concise answer"`
}

type deepResearchOutput struct {
	Report      string   `json:"report,omitempty"`
	Answer      string   `json:"answer,omitempty"`
	Learnings   []string `json:"learnings"`
	VisitedURLs []string `json:"visitedUrls"`
}

// NewMCPServer exposes deep research as an MCP tool.
func NewMCPServer(r Researcher, version string) *mcp.Server {
	srv := mcp.NewServer(&mcp.Implementation{Name: "deep-research", Version: version}, nil)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        DeepResearchTool,
		Description: "Research a topic on the web by recursively searching, reading and following up on findings. Returns a markdown report or a concise answer plus the learnings and sources.",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, in deepResearchInput) (*mcp.CallToolResult, deepResearchOutput, error) {
		req := ResearchRequest{Query: in.Query, Breadth: in.Breadth, Depth: in.Depth}
		out, err := r.Run(ctx, req.options(research.Mode(strings.ToLower(in.Mode))))
		if err != nil {
			return nil, deepResearchOutput{}, err
		}

		text := out.Report
		if text == "" {
			text = out.Answer
		}
		result := &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: text}},
		}
		return result, deepResearchOutput{
			Report:      out.Report,
			Answer:      out.Answer,
			Learnings:   out.Learnings,
			VisitedURLs: out.VisitedURLs,
		}, nil
	})

	return srv
}

// NewMCPHandler serves srv over streamable HTTP.
func NewMCPHandler(srv *mcp.Server) http.Handler {
	return mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return srv }, nil)
}
