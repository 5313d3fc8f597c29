// Package mcp provides a Model Context Protocol server for tagfacets.
//
// It exposes faceted browsing (coincident tags, intersections, related
// items, tag clouds) and tagging as MCP tools, and store statistics and the
// tag index as MCP resources. Served over stdio.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/hurttlocker/tagfacets/internal/facet"
	"github.com/hurttlocker/tagfacets/internal/selection"
	"github.com/hurttlocker/tagfacets/internal/store"
)

// Invalidator drops cached usage after associations change.
type Invalidator interface {
	Invalidate(ctx context.Context) error
}

// ServerConfig holds configuration for the MCP server.
type ServerConfig struct {
	Engine      *facet.Engine
	Version     string            // version string for MCP server info
	Invalidator Invalidator       // optional, e.g. the redis usage cache
	DefaultPage facet.PageRequest // applied when a browse call omits paging
	Logger      *zap.Logger
}

// dbMu orders tool calls against the store. mcp-go dispatches handlers
// concurrently; SQLite allows a single writer, so tagging takes the write
// lock and queries share the read lock.
var dbMu sync.RWMutex

// NewServer creates a configured MCP server with all facet tools and resources.
func NewServer(cfg ServerConfig) *server.MCPServer {
	ver := cfg.Version
	if ver == "" {
		ver = "dev"
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	s := server.NewMCPServer(
		"tagfacets",
		ver,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(true, false),
	)

	// Register tools
	registerBrowseTool(s, cfg)
	registerCoincidentTool(s, cfg.Engine)
	registerItemsTool(s, cfg.Engine)
	registerRelatedTool(s, cfg.Engine)
	registerPopularTool(s, cfg.Engine)
	registerCloudTool(s, cfg.Engine)
	registerTagTool(s, cfg)
	registerUntagTool(s, cfg)
	registerTogglePathTool(s)

	// Register resources
	registerStatsResource(s, cfg.Engine.Store())
	registerTagsResource(s, cfg.Engine)

	return s
}

// --- Tools ---

func registerBrowseTool(s *server.MCPServer, cfg ServerConfig) {
	tool := mcp.NewTool("facet_browse",
		mcp.WithDescription("Browse items by a tag selection path (e.g. 'alpha/beta'). Returns the coincident tags with toggle paths and display bands, plus one page of matching items. A '-tag' segment removes a tag from the path."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("path",
			mcp.Description("Selection path: tag slugs separated by '/' or ','. Empty = no selection."),
		),
		mcp.WithString("subtype",
			mcp.Description("Restrict items to a subtype: document, image, audio, video, other"),
		),
		mcp.WithNumber("subtree_of",
			mcp.Description("Restrict items to a document and its descendants"),
		),
		mcp.WithNumber("page", mcp.Description("Page number, starting at 1")),
		mcp.WithNumber("page_size", mcp.Description("Items per page")),
		mcp.WithString("sort",
			mcp.Description("Sort field: created or title"),
			mcp.Enum("created", "title"),
		),
		mcp.WithString("direction",
			mcp.Description("Sort direction: asc or desc"),
			mcp.Enum("asc", "desc"),
		),
		mcp.WithNumber("facet_limit", mcp.Description("Maximum coincident tags (default 50, -1 = all)")),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		dbMu.RLock()
		defer dbMu.RUnlock()

		filter := parseFilter(req)
		page := cfg.DefaultPage
		if v, err := req.RequireFloat("page"); err == nil {
			page.Page = int(v)
		}
		if v, err := req.RequireFloat("page_size"); err == nil {
			page.PageSize = int(v)
		}
		if v, err := req.RequireString("sort"); err == nil && v != "" {
			page.Sort = facet.SortField(v)
		}
		if v, err := req.RequireString("direction"); err == nil && v != "" {
			page.Direction = facet.Direction(v)
		}

		path, _ := req.RequireString("path")
		view, err := cfg.Engine.Browse(ctx, facet.BrowseRequest{
			Path:       path,
			Filter:     filter,
			Page:       page,
			FacetLimit: limitArg(req, "facet_limit"),
		})
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("browse error: %v", err)), nil
		}

		data, _ := json.MarshalIndent(view, "", "  ")
		return mcp.NewToolResultText(string(data)), nil
	})
}

func registerCoincidentTool(s *server.MCPServer, engine *facet.Engine) {
	tool := mcp.NewTool("facet_coincident",
		mcp.WithDescription("List every tag that co-occurs with the selected tags, weighted by how many matching items carry it. Selected tags are included. An empty selection returns the most popular tags; a selection no item matches returns dead_end=true."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("tags",
			mcp.Description("Comma-separated tag titles or slugs"),
		),
		mcp.WithString("subtype",
			mcp.Description("Restrict items to a subtype"),
		),
		mcp.WithNumber("limit", mcp.Description("Maximum tags (default 50, -1 = all)")),
		mcp.WithBoolean("exclude_selected",
			mcp.Description("Drop the selected tags from the result (default: false)"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		dbMu.RLock()
		defer dbMu.RUnlock()

		sel, err := resolveTagsArg(ctx, engine, req)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		c, err := engine.CoincidentTags(ctx, sel, limitArg(req, "limit"), parseFilter(req))
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("coincidence error: %v", err)), nil
		}
		if req.GetBool("exclude_selected", false) {
			c.Tags = c.Remaining(sel)
		}

		data, _ := json.MarshalIndent(c, "", "  ")
		return mcp.NewToolResultText(string(data)), nil
	})
}

func registerItemsTool(s *server.MCPServer, engine *facet.Engine) {
	tool := mcp.NewTool("facet_items",
		mcp.WithDescription("List items carrying every given tag (AND), newest first. With ranked=true, list items carrying any of the tags ranked by how many they carry."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("tags",
			mcp.Description("Comma-separated tag titles or slugs. Empty = all items."),
		),
		mcp.WithString("subtype",
			mcp.Description("Restrict items to a subtype"),
		),
		mcp.WithNumber("subtree_of",
			mcp.Description("Restrict items to a document and its descendants"),
		),
		mcp.WithBoolean("ranked",
			mcp.Description("Rank partial matches by overlap (default: false)"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		dbMu.RLock()
		defer dbMu.RUnlock()

		sel, err := resolveTagsArg(ctx, engine, req)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		filter := parseFilter(req)

		var result interface{}
		if req.GetBool("ranked", false) {
			result, err = engine.ItemsMatchingAllRankedByOverlap(ctx, sel, filter)
		} else {
			result, err = engine.ItemsMatchingAll(ctx, sel, filter)
		}
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("items error: %v", err)), nil
		}

		data, _ := json.MarshalIndent(result, "", "  ")
		return mcp.NewToolResultText(string(data)), nil
	})
}

func registerRelatedTool(s *server.MCPServer, engine *facet.Engine) {
	tool := mcp.NewTool("facet_related",
		mcp.WithDescription("Rank other items by the number of tags they share with the given item. Items sharing no tags are omitted."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithNumber("item_id", mcp.Required(),
			mcp.Description("Item to find related items for"),
		),
		mcp.WithNumber("limit", mcp.Description("Maximum items (default: all)")),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		dbMu.RLock()
		defer dbMu.RUnlock()

		id, err := req.RequireFloat("item_id")
		if err != nil {
			return mcp.NewToolResultError("item_id is required"), nil
		}
		related, err := engine.RelatedToID(ctx, int64(id), limitArg(req, "limit"))
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("related error: %v", err)), nil
		}

		data, _ := json.MarshalIndent(related, "", "  ")
		return mcp.NewToolResultText(string(data)), nil
	})
}

func registerPopularTool(s *server.MCPServer, engine *facet.Engine) {
	tool := mcp.NewTool("facet_popular",
		mcp.WithDescription("List tags by descending usage count."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithNumber("limit", mcp.Description("Maximum tags (default 1000, -1 = all)")),
		mcp.WithString("subtype",
			mcp.Description("Count only items of a subtype"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		dbMu.RLock()
		defer dbMu.RUnlock()

		counts, err := engine.MostPopularIn(ctx, limitArg(req, "limit"), parseFilter(req))
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("popular error: %v", err)), nil
		}

		data, _ := json.MarshalIndent(counts, "", "  ")
		return mcp.NewToolResultText(string(data)), nil
	})
}

func registerCloudTool(s *server.MCPServer, engine *facet.Engine) {
	tool := mcp.NewTool("facet_cloud",
		mcp.WithDescription("Return the most popular tags in alphabetical order, each with a display band from 1 (least used) to bands (most used)."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithNumber("limit", mcp.Description("Maximum tags (default 1000, -1 = all)")),
		mcp.WithNumber("bands", mcp.Description("Number of bands (default 6)")),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		dbMu.RLock()
		defer dbMu.RUnlock()

		bands := 0
		if v, err := req.RequireFloat("bands"); err == nil {
			bands = int(v)
		}
		weighted, err := engine.Cloud(ctx, limitArg(req, "limit"), bands)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("cloud error: %v", err)), nil
		}

		data, _ := json.MarshalIndent(weighted, "", "  ")
		return mcp.NewToolResultText(string(data)), nil
	})
}

func registerTagTool(s *server.MCPServer, cfg ServerConfig) {
	tool := mcp.NewTool("facet_tag",
		mcp.WithDescription("Attach tags to an item. Unknown tags are created. Tagging an item with a tag it already has is a no-op."),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithNumber("item_id", mcp.Required(),
			mcp.Description("Item to tag"),
		),
		mcp.WithString("tags", mcp.Required(),
			mcp.Description("Comma-separated tag titles"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		dbMu.Lock()
		defer dbMu.Unlock()

		id, titles, errResult := taggingArgs(req)
		if errResult != nil {
			return errResult, nil
		}
		st := cfg.Engine.Store()
		it, err := st.GetItem(ctx, id)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("tag error: %v", err)), nil
		}
		if it == nil {
			return mcp.NewToolResultError(fmt.Sprintf("item %d not found", id)), nil
		}
		created, err := st.TagItem(ctx, id, titles...)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("tag error: %v", err)), nil
		}
		invalidate(ctx, cfg, created)

		result := map[string]interface{}{
			"item_id": id,
			"created": created,
		}
		data, _ := json.MarshalIndent(result, "", "  ")
		return mcp.NewToolResultText(string(data)), nil
	})
}

func registerUntagTool(s *server.MCPServer, cfg ServerConfig) {
	tool := mcp.NewTool("facet_untag",
		mcp.WithDescription("Remove tags from an item. Tags the item does not carry are ignored."),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(true),
		mcp.WithNumber("item_id", mcp.Required(),
			mcp.Description("Item to untag"),
		),
		mcp.WithString("tags", mcp.Required(),
			mcp.Description("Comma-separated tag titles"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		dbMu.Lock()
		defer dbMu.Unlock()

		id, titles, errResult := taggingArgs(req)
		if errResult != nil {
			return errResult, nil
		}
		removed, err := cfg.Engine.Store().UntagItem(ctx, id, titles...)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("untag error: %v", err)), nil
		}
		invalidate(ctx, cfg, removed)

		result := map[string]interface{}{
			"item_id": id,
			"removed": removed,
		}
		data, _ := json.MarshalIndent(result, "", "  ")
		return mcp.NewToolResultText(string(data)), nil
	})
}

func registerTogglePathTool(s *server.MCPServer) {
	tool := mcp.NewTool("facet_toggle_path",
		mcp.WithDescription("Build the selection path that adds or removes one tag. canonical=true returns the normalized path; otherwise a '-tag' segment is appended for removals."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("path", mcp.Description("Current selection path")),
		mcp.WithString("tag", mcp.Required(), mcp.Description("Tag to toggle")),
		mcp.WithBoolean("add", mcp.Description("Add (true, default) or remove (false)")),
		mcp.WithBoolean("canonical", mcp.Description("Return the normalized path (default: true)")),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		tag, err := req.RequireString("tag")
		if err != nil || strings.TrimSpace(tag) == "" {
			return mcp.NewToolResultError("tag is required"), nil
		}
		path, _ := req.RequireString("path")
		add := req.GetBool("add", true)

		next := selection.Compose(path, tag, add)
		if req.GetBool("canonical", true) {
			next = selection.Encode(selection.Decode(path), tag, add)
		}

		result := map[string]interface{}{
			"path": next,
			"tags": selection.Decode(next).Slugs(),
		}
		data, _ := json.MarshalIndent(result, "", "  ")
		return mcp.NewToolResultText(string(data)), nil
	})
}

// --- Helpers ---

func parseFilter(req mcp.CallToolRequest) store.ItemFilter {
	var f store.ItemFilter
	if raw, err := req.RequireString("subtype"); err == nil && strings.TrimSpace(raw) != "" {
		// An unknown subtype is kept as-is and matches nothing.
		st, err := store.ParseSubtype(raw)
		if err != nil {
			st = store.Subtype(strings.ToLower(strings.TrimSpace(raw)))
		}
		f.Subtype = st
	}
	if v, err := req.RequireFloat("subtree_of"); err == nil && v > 0 {
		root := int64(v)
		f.SubtreeOf = &root
	}
	return f
}

func limitArg(req mcp.CallToolRequest, key string) facet.Limit {
	if v, err := req.RequireFloat(key); err == nil {
		return facet.Limit(int(v))
	}
	return 0
}

func splitTitles(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func resolveTagsArg(ctx context.Context, engine *facet.Engine, req mcp.CallToolRequest) ([]*store.Tag, error) {
	raw, _ := req.RequireString("tags")
	return engine.ResolveSelection(ctx, selection.Of(splitTitles(raw)...))
}

func taggingArgs(req mcp.CallToolRequest) (int64, []string, *mcp.CallToolResult) {
	id, err := req.RequireFloat("item_id")
	if err != nil {
		return 0, nil, mcp.NewToolResultError("item_id is required")
	}
	raw, err := req.RequireString("tags")
	if err != nil {
		return 0, nil, mcp.NewToolResultError("tags is required")
	}
	titles := splitTitles(raw)
	if len(titles) == 0 {
		return 0, nil, mcp.NewToolResultError("at least one tag is required")
	}
	return int64(id), titles, nil
}

func invalidate(ctx context.Context, cfg ServerConfig, changed int) {
	if cfg.Invalidator == nil || changed == 0 {
		return
	}
	if err := cfg.Invalidator.Invalidate(ctx); err != nil {
		cfg.Logger.Warn("usage cache invalidation failed", zap.Error(err))
	}
}
