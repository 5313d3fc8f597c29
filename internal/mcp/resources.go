package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/hurttlocker/tagfacets/internal/facet"
	"github.com/hurttlocker/tagfacets/internal/store"
)

func registerStatsResource(s *server.MCPServer, st store.Store) {
	resource := mcp.NewResource(
		"tagfacets://stats",
		"Store Statistics",
		mcp.WithResourceDescription("Counts of items, tags, associations and orphan tags."),
		mcp.WithMIMEType("application/json"),
	)

	s.AddResource(resource, func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		dbMu.RLock()
		defer dbMu.RUnlock()

		stats, err := st.Stats(ctx)
		if err != nil {
			return nil, fmt.Errorf("getting stats: %w", err)
		}

		data, _ := json.MarshalIndent(stats, "", "  ")
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(data),
			},
		}, nil
	})
}

func registerTagsResource(s *server.MCPServer, engine *facet.Engine) {
	resource := mcp.NewResource(
		"tagfacets://tags",
		"Tag Index",
		mcp.WithResourceDescription("Every used tag with its usage count, most used first."),
		mcp.WithMIMEType("application/json"),
	)

	s.AddResource(resource, func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		dbMu.RLock()
		defer dbMu.RUnlock()

		counts, err := engine.MostPopular(ctx, 0)
		if err != nil {
			return nil, fmt.Errorf("listing tags: %w", err)
		}

		payload := map[string]interface{}{
			"tags":  counts,
			"count": len(counts),
		}
		data, _ := json.MarshalIndent(payload, "", "  ")
		return []mcp.ResourceContents{
			mcp.TextResourceContents{URI: req.Params.URI, MIMEType: "application/json", Text: string(data)},
		}, nil
	})
}
