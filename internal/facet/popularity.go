package facet

import (
	"context"
	"fmt"

	"github.com/hurttlocker/tagfacets/internal/store"
)

// MostPopular returns tags by descending usage. Ties sort by title,
// case-insensitively. A zero limit selects the index default.
func (e *Engine) MostPopular(ctx context.Context, limit Limit) ([]store.TagCount, error) {
	return e.popular(ctx, limit, e.indexLimit, store.ItemFilter{})
}

// MostPopularIn is MostPopular over a filtered item universe.
func (e *Engine) MostPopularIn(ctx context.Context, limit Limit, f store.ItemFilter) ([]store.TagCount, error) {
	return e.popular(ctx, limit, e.indexLimit, f)
}

func (e *Engine) popular(ctx context.Context, limit Limit, def int, f store.ItemFilter) ([]store.TagCount, error) {
	n, err := resolveLimit(limit, def)
	if err != nil {
		return nil, err
	}
	counts, err := e.usage.TagUsage(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("loading tag usage: %w", err)
	}
	// The usage source may be shared; sort a private copy.
	out := make([]store.TagCount, len(counts))
	copy(out, counts)
	sortTagCounts(out)
	return truncate(out, n), nil
}

// Count returns the number of items associated with tag.
func (e *Engine) Count(ctx context.Context, tag *store.Tag) (int, error) {
	if tag == nil {
		return 0, fmt.Errorf("%w: count requires a tag", ErrMissingContext)
	}
	if tag.ID == 0 {
		return 0, nil
	}
	return e.store.CountTag(ctx, tag.ID)
}
