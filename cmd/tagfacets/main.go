// Command tagfacets browses and edits a tag association store from the
// command line and serves it to MCP clients.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hurttlocker/tagfacets/internal/cache"
	"github.com/hurttlocker/tagfacets/internal/config"
	"github.com/hurttlocker/tagfacets/internal/facet"
	"github.com/hurttlocker/tagfacets/internal/logging"
	"github.com/hurttlocker/tagfacets/internal/store"
)

var version = "0.1.0-dev"

type rootOptions struct {
	configPath string
	dbPath     string
	driver     string
	dsn        string
	redisURL   string
	logLevel   string
	logFormat  string
	jsonOut    bool
}

// app holds the resources a command runs against.
type app struct {
	resolved config.ResolvedConfig
	settings config.Settings
	logger   *zap.Logger
	store    *store.SQLStore
	cache    *cache.UsageCache
	engine   *facet.Engine
	jsonOut  bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	rootCmd := &cobra.Command{
		Use:           "tagfacets",
		Short:         "Faceted tag browsing over an item store",
		Long:          "Narrow items by selecting tags one at a time; at each step tagfacets reports the tags that still yield results.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&opts.configPath, "config", "", "config file (default ~/.tagfacets/config.yaml)")
	pf.StringVar(&opts.dbPath, "db", "", "sqlite database path")
	pf.StringVar(&opts.driver, "driver", "", "database driver: sqlite or postgres")
	pf.StringVar(&opts.dsn, "dsn", "", "postgres connection string")
	pf.StringVar(&opts.redisURL, "redis", "", "redis URL for the tag usage cache")
	pf.StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn, error")
	pf.StringVar(&opts.logFormat, "log-format", "", "log format: console or json")
	pf.BoolVar(&opts.jsonOut, "json", false, "print JSON output")

	rootCmd.AddCommand(
		newItemCmd(opts),
		newTagCmd(opts),
		newUntagCmd(opts),
		newBrowseCmd(opts),
		newRelatedCmd(opts),
		newPopularCmd(opts),
		newCloudCmd(opts),
		newPruneCmd(opts),
		newStatsCmd(opts),
		newServeMCPCmd(opts),
		newConfigCmd(opts),
	)
	return rootCmd
}

func resolve(opts *rootOptions) (config.ResolvedConfig, config.Settings, error) {
	resolved, err := config.ResolveConfig(config.ResolveOptions{
		ConfigPath:   opts.configPath,
		CLIDriver:    opts.driver,
		CLIDBPath:    opts.dbPath,
		CLIDSN:       opts.dsn,
		CLIRedisURL:  opts.redisURL,
		CLILogLevel:  opts.logLevel,
		CLILogFormat: opts.logFormat,
	})
	if err != nil {
		return resolved, config.Settings{}, err
	}
	settings, err := resolved.Settings()
	return resolved, settings, err
}

// openApp resolves configuration and opens the store, the optional usage
// cache and the engine.
func openApp(ctx context.Context, opts *rootOptions) (*app, error) {
	resolved, settings, err := resolve(opts)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(settings.LogLevel, settings.LogFormat)
	if err != nil {
		return nil, err
	}

	st, err := store.NewStore(settings.StoreConfig(logger))
	if err != nil {
		logging.Sync(logger)
		return nil, fmt.Errorf("opening store: %w", err)
	}

	a := &app{resolved: resolved, settings: settings, logger: logger, store: st, jsonOut: opts.jsonOut}
	var usage facet.UsageSource
	if settings.RedisURL != "" {
		if c, err := openCache(ctx, settings, st, logger); err != nil {
			logger.Warn("usage cache disabled", zap.Error(err))
		} else {
			a.cache = c
			usage = c
		}
	}
	a.engine = facet.NewEngine(st, settings.EngineOptions(logger, usage))
	return a, nil
}

func openCache(ctx context.Context, settings config.Settings, st store.Store, logger *zap.Logger) (*cache.UsageCache, error) {
	client, err := cache.NewClient(settings.RedisURL)
	if err != nil {
		return nil, err
	}
	c := cache.New(client, st, cache.Options{TTL: settings.CacheTTL, Logger: logger})
	if err := c.Ping(ctx); err != nil {
		c.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}
	return c, nil
}

func (a *app) Close() {
	if a.cache != nil {
		a.cache.Close()
	}
	if err := a.store.Close(); err != nil {
		a.logger.Warn("closing store", zap.Error(err))
	}
	logging.Sync(a.logger)
}

// invalidate drops cached usage after associations changed.
func (a *app) invalidate(ctx context.Context, changed int) {
	if a.cache == nil || changed == 0 {
		return
	}
	if err := a.cache.Invalidate(ctx); err != nil {
		a.logger.Warn("usage cache invalidation failed", zap.Error(err))
	}
}

// withApp opens the app around fn.
func withApp(opts *rootOptions, fn func(cmd *cobra.Command, args []string, a *app) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := openApp(commandContext(cmd), opts)
		if err != nil {
			return err
		}
		defer a.Close()
		return fn(cmd, args, a)
	}
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
