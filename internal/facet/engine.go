// Package facet answers faceted tag questions over a store: popularity,
// intersection, coincidence, relatedness and paginated browsing.
//
// Every operation is a pure read of the current association state.
package facet

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/hurttlocker/tagfacets/internal/cloud"
	"github.com/hurttlocker/tagfacets/internal/store"
)

const (
	// DefaultIndexLimit caps global popularity and intersection listings.
	DefaultIndexLimit = 1000
	// DefaultFacetLimit caps coincident-tag listings.
	DefaultFacetLimit = 50
)

// Limit bounds a result list. The zero value selects the operation's
// default; All disables the bound.
type Limit int

// All requests an unbounded result.
const All Limit = -1

// UsageSource supplies per-tag usage counts. The store satisfies it; a
// cache can wrap it.
type UsageSource interface {
	TagUsage(ctx context.Context, f store.ItemFilter) ([]store.TagCount, error)
}

// Options configures an Engine.
type Options struct {
	Logger *zap.Logger
	// Usage overrides the source of unconstrained tag counts.
	Usage      UsageSource
	IndexLimit int
	FacetLimit int
	BandCount  int
	PageSize   int
	// CreateUnknownTags makes selection resolution get-or-create tags.
	// When false, unknown slugs resolve to unsaved tags that match nothing.
	CreateUnknownTags bool
}

// Engine runs facet queries against a store.
type Engine struct {
	store         store.Store
	usage         UsageSource
	logger        *zap.Logger
	indexLimit    int
	facetLimit    int
	bandCount     int
	pageSize      int
	createUnknown bool
}

// NewEngine returns an engine over s.
func NewEngine(s store.Store, opts Options) *Engine {
	e := &Engine{
		store:         s,
		usage:         opts.Usage,
		logger:        opts.Logger,
		indexLimit:    opts.IndexLimit,
		facetLimit:    opts.FacetLimit,
		bandCount:     opts.BandCount,
		pageSize:      opts.PageSize,
		createUnknown: opts.CreateUnknownTags,
	}
	if e.usage == nil {
		e.usage = s
	}
	if e.logger == nil {
		e.logger = zap.NewNop()
	}
	if e.indexLimit <= 0 {
		e.indexLimit = DefaultIndexLimit
	}
	if e.facetLimit <= 0 {
		e.facetLimit = DefaultFacetLimit
	}
	if e.bandCount <= 0 {
		e.bandCount = cloud.DefaultBands
	}
	if e.pageSize <= 0 {
		e.pageSize = DefaultPageSize
	}
	return e
}

// Store returns the underlying store.
func (e *Engine) Store() store.Store {
	return e.store
}

// resolveLimit returns the effective bound, or -1 for no bound.
func resolveLimit(l Limit, def int) (int, error) {
	switch {
	case l == All:
		return -1, nil
	case l == 0:
		return def, nil
	case l < 0:
		return 0, fmt.Errorf("%w: limit %d", ErrInvalidArgument, l)
	}
	return int(l), nil
}

func truncate[T any](list []T, n int) []T {
	if n >= 0 && len(list) > n {
		return list[:n]
	}
	return list
}

// sortTagCounts orders by count descending, then title case-insensitively,
// then slug.
func sortTagCounts(counts []store.TagCount) {
	sort.SliceStable(counts, func(i, j int) bool {
		a, b := counts[i], counts[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		ta, tb := strings.ToLower(a.Tag.Title), strings.ToLower(b.Tag.Title)
		if ta != tb {
			return ta < tb
		}
		return a.Tag.Slug < b.Tag.Slug
	})
}

// sortNewest orders by creation time descending, then id.
func sortNewest(items []*store.Item) {
	sort.SliceStable(items, func(i, j int) bool {
		return newer(items[i], items[j])
	})
}

func newer(a, b *store.Item) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID < b.ID
}

func tagIDs(tags []*store.Tag) (ids []int64, unsaved bool) {
	ids = make([]int64, 0, len(tags))
	for _, t := range tags {
		if t == nil {
			continue
		}
		if t.ID == 0 {
			unsaved = true
			continue
		}
		ids = append(ids, t.ID)
	}
	return ids, unsaved
}
