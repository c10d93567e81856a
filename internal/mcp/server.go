// Package mcp provides a Model Context Protocol server for scholar.
//
// It exposes the search pipeline as MCP tools so assistants can pull
// ranked textbook passages over stdio.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/studykit/scholar/internal/corpus"
	"github.com/studykit/scholar/internal/search"
)

// ServerConfig holds configuration for the MCP server.
type ServerConfig struct {
	Engine  *search.Engine
	Corpus  *corpus.Index
	Version string
}

// NewServer creates a configured MCP server with the scholar tools.
func NewServer(cfg ServerConfig) *server.MCPServer {
	ver := cfg.Version
	if ver == "" {
		ver = "dev"
	}

	s := server.NewMCPServer(
		"Scholar",
		ver,
		server.WithToolCapabilities(false),
	)

	registerSearchTool(s, cfg.Engine)
	registerPassageTool(s, cfg.Corpus)
	registerStatsTool(s, cfg.Corpus)

	return s
}

// ServeStdio runs the server over stdin/stdout until the client hangs
// up.
func ServeStdio(s *server.MCPServer) error {
	return server.ServeStdio(s)
}

type searchResult struct {
	ID         string  `json:"id"`
	BookID     string  `json:"book_id"`
	Breadcrumb string  `json:"breadcrumb"`
	Kind       string  `json:"kind"`
	Score      float64 `json:"score"`
	Source     string  `json:"source"`
	Text       string  `json:"text"`
}

type searchResponse struct {
	Degraded []string       `json:"degraded,omitempty"`
	Results  []searchResult `json:"results"`
}

func searchPayload(resp *search.Response) searchResponse {
	out := searchResponse{
		Degraded: resp.Degraded,
		Results:  make([]searchResult, 0, len(resp.Results)),
	}
	for _, r := range resp.Results {
		out.Results = append(out.Results, searchResult{
			ID:         r.Passage.ID,
			BookID:     r.Passage.SourceID,
			Breadcrumb: r.Passage.Breadcrumb,
			Kind:       string(r.Passage.Kind),
			Score:      r.Score,
			Source:     r.Source,
			Text:       r.Passage.Text,
		})
	}
	return out
}

func registerSearchTool(s *server.MCPServer, engine *search.Engine) {
	tool := mcp.NewTool("scholar_search",
		mcp.WithDescription("Search the textbook corpus using hybrid BM25 + semantic retrieval with reranking. Returns scored passages with their heading path."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Search query string"),
		),
		mcp.WithString("mode",
			mcp.Description("Search mode: hybrid, lexical, or semantic (default: hybrid)"),
			mcp.Enum("hybrid", "lexical", "semantic"),
		),
		mcp.WithNumber("top_k",
			mcp.Description("Maximum number of results (default: 5, max: 50)"),
		),
		mcp.WithBoolean("expand",
			mcp.Description("Append each result's neighboring passages from the same source (default: false)"),
		),
		mcp.WithNumber("window",
			mcp.Description("Neighbor window for expansion (default: 1)"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := req.RequireString("query")
		if err != nil {
			return mcp.NewToolResultError("query is required"), nil
		}

		opts := search.DefaultOptions()

		if modeStr, err := req.RequireString("mode"); err == nil && modeStr != "" {
			mode, err := search.ParseMode(modeStr)
			if err != nil {
				return mcp.NewToolResultError(fmt.Sprintf("invalid mode: %v", err)), nil
			}
			opts.Mode = mode
		}

		if kVal, err := req.RequireFloat("top_k"); err == nil {
			k := int(kVal)
			if k > 50 {
				k = 50
			}
			if k > 0 {
				opts.TopK = k
			}
		}

		if expand, err := req.RequireBool("expand"); err == nil {
			opts.ExpandContext = expand
		}
		if wVal, err := req.RequireFloat("window"); err == nil && int(wVal) > 0 {
			opts.ContextWindow = int(wVal)
		}

		resp, err := engine.Search(ctx, query, opts)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("search error: %v", err)), nil
		}

		data, _ := json.MarshalIndent(searchPayload(resp), "", "  ")
		return mcp.NewToolResultText(string(data)), nil
	})
}

func registerPassageTool(s *server.MCPServer, ix *corpus.Index) {
	tool := mcp.NewTool("scholar_passage",
		mcp.WithDescription("Fetch a single passage by id, optionally with its neighboring passages from the same source."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("id",
			mcp.Required(),
			mcp.Description("Passage id"),
		),
		mcp.WithNumber("window",
			mcp.Description("Neighbor window (default: 0, passage only)"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("id")
		if err != nil {
			return mcp.NewToolResultError("id is required"), nil
		}

		p, err := ix.Get(id)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("passage error: %v", err)), nil
		}

		passages := []*corpus.Passage{p}
		if wVal, err := req.RequireFloat("window"); err == nil && int(wVal) > 0 {
			neighbors, err := ix.Neighbors(id, int(wVal))
			if err == nil {
				passages = append(passages, neighbors...)
			}
		}

		data, _ := json.MarshalIndent(passages, "", "  ")
		return mcp.NewToolResultText(string(data)), nil
	})
}

func registerStatsTool(s *server.MCPServer, ix *corpus.Index) {
	tool := mcp.NewTool("scholar_stats",
		mcp.WithDescription("Corpus statistics: passage count, books, passage kinds."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		books := map[string]int{}
		kinds := map[string]int{}
		for _, p := range ix.Passages() {
			books[p.SourceID]++
			kinds[string(p.Kind)]++
		}

		stats := map[string]any{
			"passages":    len(ix.Passages()),
			"books":       books,
			"kinds":       kinds,
			"fingerprint": ix.Fingerprint(),
		}
		data, _ := json.MarshalIndent(stats, "", "  ")
		return mcp.NewToolResultText(string(data)), nil
	})
}
