package api

import (
	"log/slog"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/hazyhaar/swiss-bandmap/pkg/dataset"
	"github.com/hazyhaar/swiss-bandmap/pkg/gazetteer"
	"github.com/hazyhaar/swiss-bandmap/pkg/kit"
)

// NewMCPServer returns an MCP server carrying the bandmap tools.
func NewMCPServer(version string, opts Options) *server.MCPServer {
	srv := server.NewMCPServer("bandmap", version, server.WithToolCapabilities(false))
	RegisterMCPTools(srv, opts)
	return srv
}

// RegisterMCPTools registers the four bandmap MCP tools on the server.
func RegisterMCPTools(srv *server.MCPServer, opts Options) {
	opts.withDefaults()
	registerSearchGigs(srv, opts.Store, opts.Logger)
	registerGetMunicipality(srv, opts.Store, opts.Logger)
	registerMatchLocation(srv, opts.Store, opts.Index, opts.Logger)
	registerDatasetSummary(srv, opts.Store, opts.StaleAfter, opts.Now, opts.Logger)
}

func registerSearchGigs(srv *server.MCPServer, store *dataset.Store, logger *slog.Logger) {
	tool := mcp.NewTool("search_gigs",
		mcp.WithDescription("Search upcoming Swiss live-music events by band, location or venue, optionally restricted to one municipality."),
		mcp.WithString("query", mcp.Description("Case-insensitive text matched against band name, location and venue")),
		mcp.WithString("municipality", mcp.Description("Canonical municipality name (e.g. Zürich)")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of events (default 100, max 1000)")),
	)

	kit.RegisterMCPTool(srv, tool, kit.Logging(logger, "search_gigs")(searchGigsEndpoint(store)),
		func(req mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
			args := req.GetArguments()
			query, _ := args["query"].(string)
			municipality, _ := args["municipality"].(string)
			limit, _ := args["limit"].(float64)
			return &kit.MCPDecodeResult{Request: &searchGigsReq{
				Query:        query,
				Municipality: municipality,
				Limit:        int(limit),
			}}, nil
		})
}

func registerGetMunicipality(srv *server.MCPServer, store *dataset.Store, logger *slog.Logger) {
	tool := mcp.NewTool("get_municipality",
		mcp.WithDescription("Get the events and simplified boundary of one municipality."),
		mcp.WithString("name", mcp.Required(), mcp.Description("Municipality name, matched exactly then case-insensitively")),
	)

	kit.RegisterMCPTool(srv, tool, kit.Logging(logger, "get_municipality")(getMunicipalityEndpoint(store)),
		func(req mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
			name, _ := req.GetArguments()["name"].(string)
			return &kit.MCPDecodeResult{Request: &municipalityReq{Name: name}}, nil
		})
}

func registerMatchLocation(srv *server.MCPServer, store *dataset.Store, idx *gazetteer.Index, logger *slog.Logger) {
	tool := mcp.NewTool("match_location",
		mcp.WithDescription("Resolve a free-text event location to the municipality whose name is its longest normalized substring."),
		mcp.WithString("location", mcp.Required(), mcp.Description("Free-text location, e.g. \"Zürich, Rote Fabrik\"")),
	)

	kit.RegisterMCPTool(srv, tool, kit.Logging(logger, "match_location")(matchLocationEndpoint(store, idx)),
		func(req mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
			location, _ := req.GetArguments()["location"].(string)
			return &kit.MCPDecodeResult{Request: &matchReq{Location: location}}, nil
		})
}

func registerDatasetSummary(srv *server.MCPServer, store *dataset.Store, staleAfter time.Duration, now func() time.Time, logger *slog.Logger) {
	tool := mcp.NewTool("dataset_summary",
		mcp.WithDescription("Describe the published dataset: generation time, counts, staleness and unmatched locations."),
	)

	kit.RegisterMCPTool(srv, tool, kit.Logging(logger, "dataset_summary")(datasetSummaryEndpoint(store, staleAfter, now)),
		func(_ mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
			return &kit.MCPDecodeResult{Request: nil}, nil
		})
}
