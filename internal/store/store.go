// Package store provides the tag association storage layer for tagfacets.
//
// Tags, items and the item<->tag relation live in a single SQL database:
// - tags: get-or-create by slug, title kept for display
// - items: documents and typed media assets, optionally nested
// - taggings: the (item, tag) relation, unique per pair
//
// SQLite (modernc.org/sqlite) is the default backend; Postgres (lib/pq) is
// supported through the same queries with rebound placeholders.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/lib/pq"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// DefaultDBPath is the default SQLite database location.
const DefaultDBPath = "~/.tagfacets/tagfacets.db"

// Tag is a normalized label. Slug is a pure function of Title.
type Tag struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	Slug      string    `json:"slug"`
	CreatedAt time.Time `json:"created_at"`
}

// Item is a taggable document or media asset.
type Item struct {
	ID        int64     `json:"id"`
	Kind      Kind      `json:"kind"`
	Subtype   Subtype   `json:"subtype"`
	Title     string    `json:"title"`
	ParentID  *int64    `json:"parent_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// TagCount pairs a tag with a number of associated items.
type TagCount struct {
	Tag   *Tag `json:"tag"`
	Count int  `json:"count"`
}

// ItemOverlap pairs an item with the number of requested tags it carries.
type ItemOverlap struct {
	Item    *Item `json:"item"`
	Overlap int   `json:"overlap"`
}

// ItemFilter restricts the item universe of a query.
// The zero value matches every item.
type ItemFilter struct {
	Kind      Kind    // "" = any kind
	Subtype   Subtype // "" = any subtype
	SubtreeOf *int64  // document id; the root itself is included
}

// IsZero reports whether the filter matches every item.
func (f ItemFilter) IsZero() bool {
	return f.Kind == "" && f.Subtype == "" && f.SubtreeOf == nil
}

// StoreStats holds counts over the store.
type StoreStats struct {
	ItemCount    int64 `json:"item_count"`
	TagCount     int64 `json:"tag_count"`
	TaggingCount int64 `json:"tagging_count"`
	OrphanTags   int64 `json:"orphan_tags"`
}

// StoreConfig holds configuration for NewStore.
type StoreConfig struct {
	Driver Dialect // "sqlite" (default) or "postgres"
	DBPath string  // sqlite file path, ":memory:" for tests
	DSN    string  // postgres connection string
	Logger *zap.Logger
}

// Store defines the tag association storage interface.
type Store interface {
	// Tags
	ResolveTags(ctx context.Context, titles []string) ([]*Tag, error)
	GetTag(ctx context.Context, id int64) (*Tag, error)
	GetTagBySlug(ctx context.Context, slug string) (*Tag, error)
	ListTags(ctx context.Context) ([]*Tag, error)
	PruneOrphanTags(ctx context.Context) (int64, error)

	// Items
	AddItem(ctx context.Context, it *Item) (int64, error)
	GetItem(ctx context.Context, id int64) (*Item, error)
	DeleteItem(ctx context.Context, id int64) error
	ListItems(ctx context.Context, f ItemFilter) ([]*Item, error)

	// Associations
	Associate(ctx context.Context, itemID, tagID int64) (bool, error)
	Dissociate(ctx context.Context, itemID, tagID int64) (bool, error)
	TagItem(ctx context.Context, itemID int64, titles ...string) (int, error)
	UntagItem(ctx context.Context, itemID int64, titles ...string) (int, error)
	TagsOf(ctx context.Context, itemID int64) ([]*Tag, error)
	ItemsWith(ctx context.Context, tagID int64, f ItemFilter) ([]*Item, error)

	// Aggregates
	TagUsage(ctx context.Context, f ItemFilter) ([]TagCount, error)
	CountTag(ctx context.Context, tagID int64) (int, error)
	ItemsMatchingAll(ctx context.Context, tagIDs []int64, f ItemFilter) ([]*Item, error)
	TagOverlap(ctx context.Context, tagIDs []int64, f ItemFilter) ([]ItemOverlap, error)
	CoOccurrence(ctx context.Context, tagIDs []int64, f ItemFilter) ([]TagCount, error)

	// Observability
	Stats(ctx context.Context) (*StoreStats, error)

	Close() error
}

// SQLStore implements Store on database/sql.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
	logger  *zap.Logger
}

// NewStore opens the configured backend and runs migrations.
// Pass DBPath ":memory:" for in-memory SQLite databases (testing).
func NewStore(cfg StoreConfig) (*SQLStore, error) {
	if cfg.Driver == "" {
		cfg.Driver = DialectSQLite
	}
	if !cfg.Driver.Valid() {
		return nil, fmt.Errorf("unsupported driver %q", cfg.Driver)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	dsn := cfg.DSN
	if cfg.Driver == DialectSQLite {
		if cfg.DBPath == "" {
			cfg.DBPath = expandPath(DefaultDBPath)
		}
		if cfg.DBPath != ":memory:" {
			dir := filepath.Dir(cfg.DBPath)
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("creating db directory: %w", err)
			}
		}
		dsn = cfg.DBPath
		if cfg.DBPath != ":memory:" {
			// Pragmas in the DSN apply to every pooled connection.
			dsn += "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
		}
	} else if dsn == "" {
		return nil, fmt.Errorf("postgres driver requires a DSN")
	}

	db, err := sql.Open(cfg.Driver.driverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	if cfg.Driver == DialectSQLite {
		// An in-memory database lives per connection.
		if cfg.DBPath == ":memory:" {
			db.SetMaxOpenConns(1)
		}
		pragmas := []string{
			"PRAGMA journal_mode=WAL",
			"PRAGMA foreign_keys=ON",
			"PRAGMA busy_timeout=5000",
		}
		for _, p := range pragmas {
			if _, err := db.Exec(p); err != nil {
				db.Close()
				return nil, fmt.Errorf("setting pragma %q: %w", p, err)
			}
		}
	}

	s := newSQLStore(db, cfg.Driver, logger)
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	logger.Debug("store opened", zap.String("driver", string(cfg.Driver)))
	return s, nil
}

func newSQLStore(db *sql.DB, d Dialect, logger *zap.Logger) *SQLStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SQLStore{db: db, dialect: d, logger: logger}
}

// Dialect returns the SQL dialect of the backend.
func (s *SQLStore) Dialect() Dialect {
	return s.dialect
}

// Close closes the database connection.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// Stats returns row counts for items, tags and taggings.
func (s *SQLStore) Stats(ctx context.Context) (*StoreStats, error) {
	st := &StoreStats{}
	queries := []struct {
		dst   *int64
		query string
	}{
		{&st.ItemCount, `SELECT COUNT(*) FROM items`},
		{&st.TagCount, `SELECT COUNT(*) FROM tags`},
		{&st.TaggingCount, `SELECT COUNT(*) FROM taggings`},
		{&st.OrphanTags, `SELECT COUNT(*) FROM tags g WHERE NOT EXISTS (SELECT 1 FROM taggings t WHERE t.tag_id = g.id)`},
	}
	for _, q := range queries {
		if err := s.db.QueryRowContext(ctx, q.query).Scan(q.dst); err != nil {
			return nil, fmt.Errorf("counting stats: %w", err)
		}
	}
	return st, nil
}

// expandPath expands ~ to home directory.
func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[1:])
	}
	return path
}
