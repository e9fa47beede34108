// Package mcpadapter exposes retrieval and query classification as MCP
// tools over stdio, so agent runtimes can ground themselves in the customs
// corpus without going through the HTTP API.
package mcpadapter

import (
	"context"

	"github.com/mark3labs/mcp-go/server"

	"github.com/ktBigDeal/customs-clearance-sub000/internal/core/domain"
)

const serverVersion = "0.1.0"

type SearchService interface {
	Search(ctx context.Context, req domain.SearchRequest) (*domain.SearchResult, error)
}

type IntentService interface {
	ExtractIntent(ctx context.Context, raw string) domain.IntentRecord
}

type FilterService interface {
	Generate(ctx context.Context, raw string, intent domain.IntentRecord, sctx *domain.SearchContext) (domain.MetadataFilter, float64)
}

type Server struct {
	search  SearchService
	intents IntentService
	filters FilterService
	mcp     *server.MCPServer
}

func NewServer(search SearchService, intents IntentService, filters FilterService) *Server {
	s := &Server{
		search:  search,
		intents: intents,
		filters: filters,
	}
	s.mcp = server.NewMCPServer(
		"customs-clearance",
		serverVersion,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)
	s.registerTools()
	return s
}

// Run serves the MCP protocol over stdio until stdin closes.
func (s *Server) Run() error {
	return server.ServeStdio(s.mcp)
}
