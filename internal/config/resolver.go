package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/hurttlocker/tagfacets/internal/cache"
	"github.com/hurttlocker/tagfacets/internal/cloud"
	"github.com/hurttlocker/tagfacets/internal/facet"
	"github.com/hurttlocker/tagfacets/internal/store"
)

type ValueSource string

const (
	SourceUnknown ValueSource = "unknown"
	SourceConfig  ValueSource = "config"
	SourceEnv     ValueSource = "env"
	SourceCLI     ValueSource = "cli"
	SourceDefault ValueSource = "default"
)

type ResolvedValue struct {
	Value  string      `json:"value"`
	Source ValueSource `json:"source"`
	From   string      `json:"from,omitempty"`
}

type ResolveOptions struct {
	ConfigPath   string
	CLIDriver    string
	CLIDBPath    string
	CLIDSN       string
	CLIRedisURL  string
	CLILogLevel  string
	CLILogFormat string
}

type ResolvedConfig struct {
	ConfigPath string `json:"config_path"`

	Driver   ResolvedValue `json:"driver"`
	DBPath   ResolvedValue `json:"db_path"`
	DSN      ResolvedValue `json:"dsn"`
	RedisURL ResolvedValue `json:"redis_url"`
	CacheTTL ResolvedValue `json:"cache_ttl"`

	LogLevel  ResolvedValue `json:"log_level"`
	LogFormat ResolvedValue `json:"log_format"`

	FacetLimit        ResolvedValue `json:"facet_limit"`
	IndexLimit        ResolvedValue `json:"index_limit"`
	BandCount         ResolvedValue `json:"band_count"`
	PageSize          ResolvedValue `json:"page_size"`
	Sort              ResolvedValue `json:"sort"`
	Direction         ResolvedValue `json:"direction"`
	CreateUnknownTags ResolvedValue `json:"create_unknown_tags"`
}

// Settings are the parsed, validated values of a ResolvedConfig.
type Settings struct {
	Driver   store.Dialect
	DBPath   string
	DSN      string
	RedisURL string
	CacheTTL time.Duration

	LogLevel  string
	LogFormat string

	FacetLimit        int
	IndexLimit        int
	BandCount         int
	PageSize          int
	Sort              facet.SortField
	Direction         facet.Direction
	CreateUnknownTags bool
}

type fileConfig struct {
	DB struct {
		Driver string `yaml:"driver"`
		Path   string `yaml:"path"`
		DSN    string `yaml:"dsn"`
	} `yaml:"db"`
	Redis struct {
		URL string `yaml:"url"`
		TTL string `yaml:"ttl"`
	} `yaml:"redis"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
	Facets struct {
		FacetLimit        int    `yaml:"facet_limit"`
		IndexLimit        int    `yaml:"index_limit"`
		Bands             int    `yaml:"bands"`
		PageSize          int    `yaml:"page_size"`
		Sort              string `yaml:"sort"`
		Direction         string `yaml:"direction"`
		CreateUnknownTags *bool  `yaml:"create_unknown_tags"`
	} `yaml:"facets"`
}

func DefaultConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".tagfacets", "config.yaml")
}

func ResolveConfig(opts ResolveOptions) (ResolvedConfig, error) {
	path := strings.TrimSpace(opts.ConfigPath)
	if path == "" {
		path = DefaultConfigPath()
	}

	out := ResolvedConfig{ConfigPath: path}
	applyDefaults(&out)

	cfg, err := loadConfig(path)
	if err != nil {
		return out, err
	}

	if cfg != nil {
		apply(&out.Driver, cfg.DB.Driver, SourceConfig, path)
		apply(&out.DBPath, cfg.DB.Path, SourceConfig, path)
		apply(&out.DSN, cfg.DB.DSN, SourceConfig, path)
		apply(&out.RedisURL, cfg.Redis.URL, SourceConfig, path)
		apply(&out.CacheTTL, cfg.Redis.TTL, SourceConfig, path)
		apply(&out.LogLevel, cfg.Log.Level, SourceConfig, path)
		apply(&out.LogFormat, cfg.Log.Format, SourceConfig, path)
		applyInt(&out.FacetLimit, cfg.Facets.FacetLimit, path)
		applyInt(&out.IndexLimit, cfg.Facets.IndexLimit, path)
		applyInt(&out.BandCount, cfg.Facets.Bands, path)
		applyInt(&out.PageSize, cfg.Facets.PageSize, path)
		apply(&out.Sort, cfg.Facets.Sort, SourceConfig, path)
		apply(&out.Direction, cfg.Facets.Direction, SourceConfig, path)
		if cfg.Facets.CreateUnknownTags != nil {
			apply(&out.CreateUnknownTags, strconv.FormatBool(*cfg.Facets.CreateUnknownTags), SourceConfig, path)
		}
	}

	applyEnv(&out.Driver, "TAGFACETS_DRIVER")
	applyEnv(&out.DBPath, "TAGFACETS_DB")
	applyEnv(&out.DBPath, "TAGFACETS_DB_PATH")
	applyEnv(&out.DSN, "DATABASE_URL")
	applyEnv(&out.DSN, "TAGFACETS_DSN")
	applyEnv(&out.RedisURL, "TAGFACETS_REDIS_URL")
	applyEnv(&out.CacheTTL, "TAGFACETS_CACHE_TTL")
	applyEnv(&out.LogLevel, "TAGFACETS_LOG_LEVEL")
	applyEnv(&out.LogFormat, "TAGFACETS_LOG_FORMAT")
	applyEnv(&out.FacetLimit, "TAGFACETS_FACET_LIMIT")
	applyEnv(&out.IndexLimit, "TAGFACETS_INDEX_LIMIT")
	applyEnv(&out.BandCount, "TAGFACETS_BANDS")
	applyEnv(&out.PageSize, "TAGFACETS_PAGE_SIZE")
	applyEnv(&out.Sort, "TAGFACETS_SORT")
	applyEnv(&out.Direction, "TAGFACETS_DIRECTION")
	applyEnv(&out.CreateUnknownTags, "TAGFACETS_CREATE_UNKNOWN_TAGS")

	apply(&out.Driver, opts.CLIDriver, SourceCLI, "--driver")
	apply(&out.DBPath, opts.CLIDBPath, SourceCLI, "--db")
	apply(&out.DSN, opts.CLIDSN, SourceCLI, "--dsn")
	apply(&out.RedisURL, opts.CLIRedisURL, SourceCLI, "--redis")
	apply(&out.LogLevel, opts.CLILogLevel, SourceCLI, "--log-level")
	apply(&out.LogFormat, opts.CLILogFormat, SourceCLI, "--log-format")

	if out.DBPath.Value != "" {
		out.DBPath.Value = expandUserPath(out.DBPath.Value)
	}

	return out, nil
}

func applyDefaults(out *ResolvedConfig) {
	def := func(dst *ResolvedValue, v string) {
		*dst = ResolvedValue{Value: v, Source: SourceDefault, From: "built-in default"}
	}
	def(&out.Driver, string(store.DialectSQLite))
	def(&out.DBPath, store.DefaultDBPath)
	def(&out.CacheTTL, cache.DefaultTTL.String())
	def(&out.LogLevel, "warn")
	def(&out.LogFormat, "console")
	def(&out.FacetLimit, strconv.Itoa(facet.DefaultFacetLimit))
	def(&out.IndexLimit, strconv.Itoa(facet.DefaultIndexLimit))
	def(&out.BandCount, strconv.Itoa(cloud.DefaultBands))
	def(&out.PageSize, strconv.Itoa(facet.DefaultPageSize))
	def(&out.Sort, string(facet.SortCreated))
	def(&out.Direction, string(facet.Desc))
	def(&out.CreateUnknownTags, "false")
}

// Settings parses and validates every resolved value. Unknown sort fields,
// directions and non-positive numbers fail with facet.ErrInvalidArgument.
func (r ResolvedConfig) Settings() (Settings, error) {
	var s Settings
	var err error

	d, ok := store.ParseDialect(r.Driver.Value)
	if !ok {
		return s, fmt.Errorf("%w: driver %q (from %s)", facet.ErrInvalidArgument, r.Driver.Value, describe(r.Driver))
	}
	s.Driver = d
	s.DBPath = r.DBPath.Value
	s.DSN = r.DSN.Value
	s.RedisURL = r.RedisURL.Value
	s.LogLevel = r.LogLevel.Value
	s.LogFormat = r.LogFormat.Value

	if s.CacheTTL, err = time.ParseDuration(r.CacheTTL.Value); err != nil || s.CacheTTL <= 0 {
		return s, fmt.Errorf("%w: cache_ttl %q (from %s)", facet.ErrInvalidArgument, r.CacheTTL.Value, describe(r.CacheTTL))
	}

	ints := []struct {
		name string
		src  ResolvedValue
		dst  *int
	}{
		{"facet_limit", r.FacetLimit, &s.FacetLimit},
		{"index_limit", r.IndexLimit, &s.IndexLimit},
		{"bands", r.BandCount, &s.BandCount},
		{"page_size", r.PageSize, &s.PageSize},
	}
	for _, n := range ints {
		v, err := strconv.Atoi(n.src.Value)
		if err != nil || v <= 0 {
			return s, fmt.Errorf("%w: %s %q must be a positive integer (from %s)", facet.ErrInvalidArgument, n.name, n.src.Value, describe(n.src))
		}
		*n.dst = v
	}

	if s.Sort, err = facet.ParseSort(r.Sort.Value); err != nil {
		return s, fmt.Errorf("%w (from %s)", err, describe(r.Sort))
	}
	if s.Direction, err = facet.ParseDirection(r.Direction.Value); err != nil {
		return s, fmt.Errorf("%w (from %s)", err, describe(r.Direction))
	}
	if s.CreateUnknownTags, err = strconv.ParseBool(r.CreateUnknownTags.Value); err != nil {
		return s, fmt.Errorf("%w: create_unknown_tags %q (from %s)", facet.ErrInvalidArgument, r.CreateUnknownTags.Value, describe(r.CreateUnknownTags))
	}
	return s, nil
}

// StoreConfig returns the store settings.
func (s Settings) StoreConfig(logger *zap.Logger) store.StoreConfig {
	return store.StoreConfig{Driver: s.Driver, DBPath: s.DBPath, DSN: s.DSN, Logger: logger}
}

// EngineOptions returns the engine settings. usage may be nil.
func (s Settings) EngineOptions(logger *zap.Logger, usage facet.UsageSource) facet.Options {
	return facet.Options{
		Logger:            logger,
		Usage:             usage,
		IndexLimit:        s.IndexLimit,
		FacetLimit:        s.FacetLimit,
		BandCount:         s.BandCount,
		PageSize:          s.PageSize,
		CreateUnknownTags: s.CreateUnknownTags,
	}
}

// DefaultPage returns the configured default page request.
func (s Settings) DefaultPage() facet.PageRequest {
	return facet.PageRequest{Page: 1, PageSize: s.PageSize, Sort: s.Sort, Direction: s.Direction}
}

// Redacted returns a copy with credentials in connection strings masked.
func (r ResolvedConfig) Redacted() ResolvedConfig {
	r.DSN.Value = maskSecret(r.DSN.Value)
	r.RedisURL.Value = maskSecret(r.RedisURL.Value)
	return r
}

var passwordKV = regexp.MustCompile(`(?i)(password\s*=\s*)('[^']*'|\S+)`)

func maskSecret(v string) string {
	if v == "" {
		return v
	}
	if u, err := url.Parse(v); err == nil && u.User != nil {
		if _, ok := u.User.Password(); ok {
			u.User = url.UserPassword(u.User.Username(), "xxxxx")
			return u.String()
		}
		return v
	}
	return passwordKV.ReplaceAllString(v, "${1}xxxxx")
}

func describe(v ResolvedValue) string {
	if v.From != "" {
		return string(v.Source) + " " + v.From
	}
	return string(v.Source)
}

func apply(dst *ResolvedValue, raw string, source ValueSource, from string) {
	v := strings.TrimSpace(raw)
	if v == "" {
		return
	}
	*dst = ResolvedValue{Value: v, Source: source, From: from}
}

func applyInt(dst *ResolvedValue, v int, from string) {
	if v == 0 {
		return
	}
	*dst = ResolvedValue{Value: strconv.Itoa(v), Source: SourceConfig, From: from}
}

func applyEnv(dst *ResolvedValue, envKey string) {
	if v := strings.TrimSpace(os.Getenv(envKey)); v != "" {
		*dst = ResolvedValue{Value: v, Source: SourceEnv, From: envKey}
	}
}

func loadConfig(path string) (*fileConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	var cfg fileConfig
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return &cfg, nil
}

func expandUserPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
