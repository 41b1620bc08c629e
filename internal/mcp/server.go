package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/loreleaf/loreleaf/internal/search"
	"github.com/loreleaf/loreleaf/internal/store"
	"github.com/loreleaf/loreleaf/pkg/version"
)

// Server is the MCP server. It bridges AI clients with the hybrid
// retrieval engine over stdio.
type Server struct {
	mcp      *mcp.Server
	engine   *search.Engine
	passages store.PassageStore
	logger   *slog.Logger
}

// SearchInput defines the input schema for the search tool.
type SearchInput struct {
	Query         string   `json:"query" jsonschema:"the search query to execute"`
	TopK          int      `json:"top_k,omitempty" jsonschema:"maximum number of results, default 10"`
	TaxonomyScope []string `json:"taxonomy_scope,omitempty" jsonschema:"restrict results to these taxonomy subtrees, e.g. science.biology"`
	UseVector     *bool    `json:"use_vector,omitempty" jsonschema:"set false to skip the vector path"`
	UseReranker   *bool    `json:"use_reranker,omitempty" jsonschema:"set false to skip reranking"`
}

// SearchOutput defines the output schema for the search tool.
type SearchOutput struct {
	Hits            []SearchHit `json:"hits" jsonschema:"ranked results"`
	Mode            string      `json:"mode" jsonschema:"which retrieval paths contributed: lexical_only, vector_only, hybrid, hybrid_reranked"`
	LatencyMS       float64     `json:"latency_ms" jsonschema:"end to end latency in milliseconds"`
	TotalCandidates int         `json:"total_candidates" jsonschema:"candidates considered before truncation"`
}

// SearchHit is one ranked result.
type SearchHit struct {
	PassageID    string   `json:"passage_id"`
	Score        float64  `json:"score" jsonschema:"relevance score, non-increasing down the list"`
	Title        string   `json:"title"`
	URLOrRef     string   `json:"url_or_ref"`
	TaxonomyPath []string `json:"taxonomy_path"`
}

// StatusInput is the (empty) input schema for the status tool.
type StatusInput struct{}

// StatusOutput reports index readiness and shape.
type StatusOutput struct {
	Ready         bool           `json:"ready"`
	PassageCount  int            `json:"passage_count"`
	TaxonomyPaths map[string]int `json:"taxonomy_paths,omitempty" jsonschema:"passage count per taxonomy path"`
	Version       string         `json:"version"`
}

// NewServer creates the MCP server and registers its tools.
func NewServer(engine *search.Engine, passages store.PassageStore, logger *slog.Logger) (*Server, error) {
	if engine == nil {
		return nil, errors.New("search engine is required")
	}
	if passages == nil {
		return nil, errors.New("passage store is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		engine:   engine,
		passages: passages,
		logger:   logger,
	}

	s.mcp = mcp.NewServer(
		&mcp.Implementation{
			Name:    "loreleaf",
			Version: version.Version,
		},
		nil,
	)
	s.registerTools()

	return s, nil
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "search",
		Description: "Search the indexed corpus with hybrid lexical and semantic retrieval. Results carry provenance and a taxonomy path; restrict with taxonomy_scope to search a subtree.",
	}, s.searchHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "status",
		Description: "Check index readiness and size before searching.",
	}, s.statusHandler)

	s.logger.Debug("MCP tools registered", slog.Int("count", 2))
}

// searchHandler is the MCP SDK handler for the search tool.
func (s *Server) searchHandler(ctx context.Context, _ *mcp.CallToolRequest, input SearchInput) (
	*mcp.CallToolResult,
	SearchOutput,
	error,
) {
	if strings.TrimSpace(input.Query) == "" {
		return nil, SearchOutput{}, NewInvalidParamsError("query parameter is required")
	}

	resp, err := s.engine.Search(ctx, &search.Request{
		Query:         input.Query,
		TopK:          input.TopK,
		TaxonomyScope: input.TaxonomyScope,
		UseVector:     input.UseVector,
		UseReranker:   input.UseReranker,
	})
	if err != nil {
		return nil, SearchOutput{}, MapError(err)
	}

	output := SearchOutput{
		Hits:            make([]SearchHit, 0, len(resp.Hits)),
		Mode:            string(resp.Mode),
		LatencyMS:       resp.LatencyMS,
		TotalCandidates: resp.TotalCandidates,
	}
	for _, h := range resp.Hits {
		output.Hits = append(output.Hits, SearchHit{
			PassageID:    h.PassageID,
			Score:        h.Score,
			Title:        h.Source.Title,
			URLOrRef:     h.Source.URLOrRef,
			TaxonomyPath: h.TaxonomyPath,
		})
	}
	return nil, output, nil
}

// statusHandler is the MCP SDK handler for the status tool.
func (s *Server) statusHandler(ctx context.Context, _ *mcp.CallToolRequest, _ StatusInput) (
	*mcp.CallToolResult,
	*StatusOutput,
	error,
) {
	stats, err := s.passages.Stats(ctx)
	if err != nil {
		return nil, nil, MapError(err)
	}
	return nil, &StatusOutput{
		Ready:         stats.PassageCount > 0,
		PassageCount:  stats.PassageCount,
		TaxonomyPaths: stats.TaxonomyCounts,
		Version:       version.Version,
	}, nil
}

// Serve runs the server on the given transport until the context ends.
func (s *Server) Serve(ctx context.Context, transport string) error {
	s.logger.Info("starting MCP server", slog.String("transport", transport))

	switch transport {
	case "stdio", "":
		err := s.mcp.Run(ctx, &mcp.StdioTransport{})
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	default:
		return fmt.Errorf("unknown transport: %s (supported: stdio)", transport)
	}
}

// MCPServer returns the underlying SDK server, used by tests to
// connect over an in-memory transport.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}
