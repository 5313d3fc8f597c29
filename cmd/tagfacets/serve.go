package main

import (
	"fmt"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hurttlocker/tagfacets/internal/config"
	tfmcp "github.com/hurttlocker/tagfacets/internal/mcp"
)

func newServeMCPCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve-mcp",
		Short: "Serve the facet tools to an MCP client over stdio",
		RunE: withApp(opts, func(cmd *cobra.Command, args []string, a *app) error {
			cfg := tfmcp.ServerConfig{
				Engine:      a.engine,
				Version:     version,
				DefaultPage: a.settings.DefaultPage(),
				Logger:      a.logger,
			}
			if a.cache != nil {
				cfg.Invalidator = a.cache
			}
			a.logger.Info("serving mcp over stdio", zap.String("driver", string(a.settings.Driver)))
			return server.ServeStdio(tfmcp.NewServer(cfg))
		}),
	}
}

func newConfigCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Show resolved configuration and where each value came from",
		RunE: func(cmd *cobra.Command, args []string) error {
			resolved, _, err := resolve(opts)
			if err != nil {
				return err
			}
			red := resolved.Redacted()
			if opts.jsonOut {
				return printJSON(cmd.OutOrStdout(), red)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "config file: %s\n", red.ConfigPath)
			rows := []struct {
				name string
				v    config.ResolvedValue
			}{
				{"driver", red.Driver},
				{"db_path", red.DBPath},
				{"dsn", red.DSN},
				{"redis_url", red.RedisURL},
				{"cache_ttl", red.CacheTTL},
				{"log_level", red.LogLevel},
				{"log_format", red.LogFormat},
				{"facet_limit", red.FacetLimit},
				{"index_limit", red.IndexLimit},
				{"bands", red.BandCount},
				{"page_size", red.PageSize},
				{"sort", red.Sort},
				{"direction", red.Direction},
				{"create_unknown_tags", red.CreateUnknownTags},
			}
			for _, r := range rows {
				if r.v.Value == "" {
					continue
				}
				fmt.Fprintf(out, "%-20s %-40s (%s)\n", r.name, r.v.Value, describeSource(r.v))
			}
			return nil
		},
	}
}

func describeSource(v config.ResolvedValue) string {
	if v.From != "" && v.Source != config.SourceDefault {
		return string(v.Source) + ": " + v.From
	}
	return string(v.Source)
}
