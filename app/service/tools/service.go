package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"graphmem/app/service/graph"
	"graphmem/app/service/search"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/samber/do"
	"github.com/samber/oops"
)

const (
	serverName    = "graphmem"
	serverVersion = "1.0.0"
)

// GraphService is the graph store capability consumed by the tool surface.
type GraphService interface {
	CreateEntities(entities []graph.Entity) ([]graph.Entity, error)
	CreateRelations(relations []graph.Relation) ([]graph.Relation, error)
	AddObservations(additions []graph.ObservationAdd) ([]graph.ObservationAdd, error)
	DeleteEntities(names []string) error
	DeleteObservations(deletions []graph.ObservationDelete) error
	DeleteRelations(relations []graph.Relation) error
	ReadGraph() (*graph.KnowledgeGraph, error)
	OpenNodes(names []string) (*graph.KnowledgeGraph, error)
	GetStats() (*graph.Stats, error)
}

// Searcher answers ranked text queries with a subgraph.
type Searcher interface {
	Search(ctx context.Context, query string, limit int) (*graph.KnowledgeGraph, error)
}

type Service struct {
	graphService  GraphService
	searchService Searcher
	server        *server.MCPServer
}

func New(di *do.Injector) (*Service, error) {
	s := &Service{
		graphService:  do.MustInvoke[*graph.Service](di),
		searchService: do.MustInvoke[*search.Service](di),
	}

	s.server = server.NewMCPServer(serverName, serverVersion,
		server.WithToolCapabilities(false),
		server.WithInstructions("knowledge graph service"),
		server.WithRecovery(),
	)
	s.registerTools()

	return s, nil
}

// Serve speaks MCP over stdio until ctx is cancelled or stdin closes.
func (s *Service) Serve(ctx context.Context) error {
	slog.Info("Listening on stdio", "server", serverName)

	return server.NewStdioServer(s.server).Listen(ctx, os.Stdin, os.Stdout)
}

var entityItem = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"name": map[string]any{
			"type":        "string",
			"description": "The name of the entity",
		},
		"entityType": map[string]any{
			"type":        "string",
			"description": "The type of the entity",
		},
		"observations": map[string]any{
			"type":        "array",
			"items":       map[string]any{"type": "string"},
			"description": "An array of observation contents associated with the entity",
		},
	},
	"required": []string{"name", "entityType", "observations"},
}

var relationItem = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"from": map[string]any{
			"type":        "string",
			"description": "The name of the entity where the relation starts",
		},
		"to": map[string]any{
			"type":        "string",
			"description": "The name of the entity where the relation ends",
		},
		"relationType": map[string]any{
			"type":        "string",
			"description": "The type of the relation",
		},
	},
	"required": []string{"from", "to", "relationType"},
}

var observationAddItem = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"entityName": map[string]any{
			"type":        "string",
			"description": "The name of the entity to add the observations to",
		},
		"contents": map[string]any{
			"type":        "array",
			"items":       map[string]any{"type": "string"},
			"description": "An array of observation contents to add",
		},
	},
	"required": []string{"entityName", "contents"},
}

var observationDeleteItem = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"entityName": map[string]any{
			"type":        "string",
			"description": "The name of the entity containing the observations",
		},
		"observations": map[string]any{
			"type":        "array",
			"items":       map[string]any{"type": "string"},
			"description": "An array of observations to delete",
		},
	},
	"required": []string{"entityName", "observations"},
}

func (s *Service) registerTools() {
	s.server.AddTool(mcp.NewTool("create_entities",
		mcp.WithDescription("Create multiple new entities in the knowledge graph"),
		mcp.WithArray("entities", mcp.Required(),
			mcp.Description("An array of entities to create"),
			mcp.Items(entityItem),
		),
	), s.handleCreateEntities)

	s.server.AddTool(mcp.NewTool("create_relations",
		mcp.WithDescription("Create multiple new relations between entities in the knowledge graph. Relations should be in active voice"),
		mcp.WithArray("relations", mcp.Required(),
			mcp.Description("An array of relations to create"),
			mcp.Items(relationItem),
		),
	), s.handleCreateRelations)

	s.server.AddTool(mcp.NewTool("add_observations",
		mcp.WithDescription("Add new observations to existing entities in the knowledge graph"),
		mcp.WithArray("observations", mcp.Required(),
			mcp.Description("An array of observations to add to entities"),
			mcp.Items(observationAddItem),
		),
	), s.handleAddObservations)

	s.server.AddTool(mcp.NewTool("delete_entities",
		mcp.WithDescription("Delete multiple entities and their associated relations from the knowledge graph"),
		mcp.WithArray("entityNames", mcp.Required(),
			mcp.Description("An array of entity names to delete"),
			mcp.Items(map[string]any{"type": "string"}),
		),
	), s.handleDeleteEntities)

	s.server.AddTool(mcp.NewTool("delete_observations",
		mcp.WithDescription("Delete specific observations from entities in the knowledge graph"),
		mcp.WithArray("deletions", mcp.Required(),
			mcp.Description("An array of observations to delete"),
			mcp.Items(observationDeleteItem),
		),
	), s.handleDeleteObservations)

	s.server.AddTool(mcp.NewTool("delete_relations",
		mcp.WithDescription("Delete multiple relations from the knowledge graph"),
		mcp.WithArray("relations", mcp.Required(),
			mcp.Description("An array of relations to delete"),
			mcp.Items(relationItem),
		),
	), s.handleDeleteRelations)

	s.server.AddTool(mcp.NewTool("read_graph",
		mcp.WithDescription("Read the entire knowledge graph"),
	), s.handleReadGraph)

	s.server.AddTool(mcp.NewTool("open_nodes",
		mcp.WithDescription("Open specific nodes in the knowledge graph by their names"),
		mcp.WithArray("names", mcp.Required(),
			mcp.Description("An array of entity names to retrieve"),
			mcp.Items(map[string]any{"type": "string"}),
		),
	), s.handleOpenNodes)

	s.server.AddTool(mcp.NewTool("search_nodes",
		mcp.WithDescription("Search for nodes in the knowledge graph by text query"),
		mcp.WithString("query", mcp.Required(),
			mcp.Description("The search query to match against entity names, types, and observation content"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of results to return"),
		),
	), s.handleSearchNodes)

	s.server.AddTool(mcp.NewTool("get_stats",
		mcp.WithDescription("Get statistics about the knowledge graph"),
	), s.handleGetStats)
}

func failure(tool string, err error) *mcp.CallToolResult {
	wrapped := oops.With("tool", tool).Wrap(err)
	slog.Error("Tool call failed", "tool", tool, "error", wrapped)

	return mcp.NewToolResultError(err.Error())
}

func jsonResult(v any) *mcp.CallToolResult {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to serialize response: %v", err))
	}

	return mcp.NewToolResultText(string(data))
}

func (s *Service) handleCreateEntities(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args CreateEntitiesRequest
	if err := req.BindArguments(&args); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	created, err := s.graphService.CreateEntities(args.Entities)
	if err != nil {
		return failure("create_entities", err), nil
	}

	return jsonResult(created), nil
}

func (s *Service) handleCreateRelations(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args CreateRelationsRequest
	if err := req.BindArguments(&args); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	created, err := s.graphService.CreateRelations(args.Relations)
	if err != nil {
		return failure("create_relations", err), nil
	}

	return jsonResult(created), nil
}

func (s *Service) handleAddObservations(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args AddObservationsRequest
	if err := req.BindArguments(&args); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	added, err := s.graphService.AddObservations(args.Observations)
	if err != nil {
		return failure("add_observations", err), nil
	}

	return jsonResult(added), nil
}

func (s *Service) handleDeleteEntities(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args DeleteEntitiesRequest
	if err := req.BindArguments(&args); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if err := s.graphService.DeleteEntities(args.Names()); err != nil {
		return failure("delete_entities", err), nil
	}

	return mcp.NewToolResultText("Entities deleted successfully"), nil
}

func (s *Service) handleDeleteObservations(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args DeleteObservationsRequest
	if err := req.BindArguments(&args); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if err := s.graphService.DeleteObservations(args.Deletions); err != nil {
		return failure("delete_observations", err), nil
	}

	return mcp.NewToolResultText("Observations deleted successfully"), nil
}

func (s *Service) handleDeleteRelations(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args DeleteRelationsRequest
	if err := req.BindArguments(&args); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if err := s.graphService.DeleteRelations(args.Relations); err != nil {
		return failure("delete_relations", err), nil
	}

	return mcp.NewToolResultText("Relations deleted successfully"), nil
}

func (s *Service) handleReadGraph(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	kg, err := s.graphService.ReadGraph()
	if err != nil {
		return failure("read_graph", err), nil
	}

	return jsonResult(kg), nil
}

func (s *Service) handleOpenNodes(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args OpenNodesRequest
	if err := req.BindArguments(&args); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	kg, err := s.graphService.OpenNodes(args.Names)
	if err != nil {
		return failure("open_nodes", err), nil
	}

	return jsonResult(kg), nil
}

func (s *Service) handleSearchNodes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args SearchNodesRequest
	if err := req.BindArguments(&args); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	limit := -1
	if args.Limit != nil {
		limit = *args.Limit
	}

	kg, err := s.searchService.Search(ctx, args.Query, limit)
	if err != nil {
		return failure("search_nodes", err), nil
	}

	return jsonResult(kg), nil
}

func (s *Service) handleGetStats(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	stats, err := s.graphService.GetStats()
	if err != nil {
		return failure("get_stats", err), nil
	}

	return jsonResult(stats), nil
}
