// Package mcptools exposes the engine as MCP tools: remember, recall,
// forget, get_context, set_project, get_project, graph_query,
// graph_entities, graph_explain.
package mcptools

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/cortexmem/cortex/internal/engine"
	"github.com/cortexmem/cortex/internal/kg"
	"github.com/cortexmem/cortex/internal/memstore"
	"github.com/cortexmem/cortex/internal/search"
	"github.com/cortexmem/cortex/internal/store"
)

// Register builds an MCP server exposing eng's operations as tools
// and returns it, ready for server.ServeStdio or an HTTP transport.
func Register(eng *engine.Engine) *server.MCPServer {
	s := server.NewMCPServer("cortex-memory", "1.0.0")

	s.AddTool(mcp.NewTool("remember",
		mcp.WithDescription("Store a new memory (title + content), with optional category/tags/scope."),
		mcp.WithString("title", mcp.Required(), mcp.Description("Short title for the memory")),
		mcp.WithString("content", mcp.Required(), mcp.Description("The memory's content")),
		mcp.WithString("category", mcp.Description("architecture|pattern|preference|error|context|learning|todo|note|relationship|custom")),
		mcp.WithString("project", mcp.Description("Project to scope the memory to (defaults to the active project)")),
		mcp.WithString("scope", mcp.Description("project|global")),
	), remember(eng))

	s.AddTool(mcp.NewTool("recall",
		mcp.WithDescription("Hybrid search over stored memories."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search text")),
		mcp.WithString("category", mcp.Description("Restrict to a category")),
		mcp.WithNumber("limit", mcp.Description("Max results (default 10)")),
		mcp.WithBoolean("includeGlobal", mcp.Description("Include global-scope memories alongside the active project (default true)")),
	), recall(eng))

	s.AddTool(mcp.NewTool("forget",
		mcp.WithDescription("Delete a memory by id."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Memory id")),
	), forget(eng))

	s.AddTool(mcp.NewTool("get_context",
		mcp.WithDescription("Get a project context brief: architecture, preferences, patterns, recent errors, open todos."),
		mcp.WithString("project", mcp.Description("Project (defaults to the active project)")),
	), getContext(eng))

	s.AddTool(mcp.NewTool("set_project",
		mcp.WithDescription("Set the active project scope."),
		mcp.WithString("project", mcp.Required(), mcp.Description("Project name")),
	), setProject(eng))

	s.AddTool(mcp.NewTool("get_project",
		mcp.WithDescription("Get the currently active project scope."),
	), getProject(eng))

	s.AddTool(mcp.NewTool("graph_query",
		mcp.WithDescription("Traverse the entity graph outward from one entity."),
		mcp.WithString("entity_id", mcp.Required(), mcp.Description("Entity id")),
		mcp.WithNumber("depth", mcp.Description("Traversal depth (default 4)")),
	), graphQuery(eng))

	s.AddTool(mcp.NewTool("graph_entities",
		mcp.WithDescription("List known entities, optionally filtered by type."),
		mcp.WithString("type", mcp.Description("Entity type filter")),
		mcp.WithNumber("limit", mcp.Description("Max results (default 50)")),
	), graphEntities(eng))

	s.AddTool(mcp.NewTool("graph_explain",
		mcp.WithDescription("Find the shortest predicate path between two entities."),
		mcp.WithString("from", mcp.Required(), mcp.Description("Source entity id")),
		mcp.WithString("to", mcp.Required(), mcp.Description("Target entity id")),
	), graphExplain(eng))

	return s
}

func argString(req mcp.CallToolRequest, name, def string) string {
	if v, ok := req.Params.Arguments[name].(string); ok {
		return v
	}
	return def
}

func argInt(req mcp.CallToolRequest, name string, def int) int {
	switch v := req.Params.Arguments[name].(type) {
	case float64:
		return int(v)
	case string:
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func argBool(req mcp.CallToolRequest, name string, def bool) bool {
	switch v := req.Params.Arguments[name].(type) {
	case bool:
		return v
	case string:
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(b)), nil
}

func remember(eng *engine.Engine) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		title := argString(req, "title", "")
		content := argString(req, "content", "")
		if title == "" || content == "" {
			return mcp.NewToolResultError("title and content are required"), nil
		}

		addReq := memstore.AddRequest{Title: title, Content: content}
		if c := argString(req, "category", ""); c != "" {
			cat := store.Category(c)
			addReq.Category = &cat
		}
		if p := argString(req, "project", ""); p != "" {
			addReq.Project = &p
		} else {
			addReq.Project = eng.ProjectPtr()
		}
		if sc := argString(req, "scope", ""); sc != "" {
			scope := store.Scope(sc)
			addReq.Scope = &scope
		}

		m, err := eng.Memstore.Add(ctx, addReq)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(m)
	}
}

func recall(eng *engine.Engine) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query := argString(req, "query", "")
		limit := argInt(req, "limit", 10)

		f := search.Filter{Project: eng.ProjectPtr()}
		if c := argString(req, "category", ""); c != "" {
			cat := store.Category(c)
			f.Category = &cat
		}
		if _, ok := req.Params.Arguments["includeGlobal"]; ok {
			ig := argBool(req, "includeGlobal", true)
			f.IncludeGlobal = &ig
		}

		results, err := eng.Search.Search(ctx, query, f, limit)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(results)
	}
}

func forget(eng *engine.Engine) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		idStr := argString(req, "id", "")
		id, err := strconv.ParseInt(idStr, 10, 64)
		if err != nil {
			return mcp.NewToolResultError("invalid id"), nil
		}
		if err := eng.Memstore.Delete(ctx, id); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("deleted memory %d", id)), nil
	}
}

func getContext(eng *engine.Engine) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var project *string
		if p := argString(req, "project", ""); p != "" {
			project = &p
		} else {
			project = eng.ProjectPtr()
		}
		summary, err := eng.ContextSummary(ctx, project)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(summary)
	}
}

func setProject(eng *engine.Engine) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		p := argString(req, "project", "")
		if p == "" {
			return mcp.NewToolResultError("project is required"), nil
		}
		eng.SetProject(p)
		return mcp.NewToolResultText("project set to " + p), nil
	}
}

func getProject(eng *engine.Engine) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return mcp.NewToolResultText(eng.Project()), nil
	}
}

func graphQuery(eng *engine.Engine) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		idStr := argString(req, "entity_id", "")
		id, err := strconv.ParseInt(idStr, 10, 64)
		if err != nil {
			return mcp.NewToolResultError("invalid entity_id"), nil
		}
		depth := argInt(req, "depth", kg.DefaultDepthCap)

		var neighbors []kg.Neighbor
		err = eng.Store.WithTx(ctx, func(tx store.DBTX) error {
			var err error
			neighbors, err = kg.Query(ctx, eng.Store, tx, id, depth, nil)
			return err
		})
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(neighbors)
	}
}

func graphEntities(eng *engine.Engine) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		typ := argString(req, "type", "")
		limit := argInt(req, "limit", 50)

		var entities []*store.Entity
		err := eng.Store.WithTx(ctx, func(tx store.DBTX) error {
			var err error
			entities, err = eng.Store.ListEntities(ctx, tx, typ, 0, limit)
			return err
		})
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(entities)
	}
}

func graphExplain(eng *engine.Engine) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		fromID, err := strconv.ParseInt(argString(req, "from", ""), 10, 64)
		if err != nil {
			return mcp.NewToolResultError("invalid from"), nil
		}
		toID, err := strconv.ParseInt(argString(req, "to", ""), 10, 64)
		if err != nil {
			return mcp.NewToolResultError("invalid to"), nil
		}

		var path []kg.Neighbor
		var found bool
		err = eng.Store.WithTx(ctx, func(tx store.DBTX) error {
			var err error
			path, found, err = kg.Explain(ctx, eng.Store, tx, fromID, toID, kg.DefaultDepthCap)
			return err
		})
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(map[string]any{"path": path, "found": found})
	}
}
