package facet

import (
	"context"
	"fmt"

	"github.com/hurttlocker/tagfacets/internal/store"
)

// RelatedTo ranks the items sharing at least one tag with item by the
// number of tags shared. The item itself is never included. A zero limit
// returns every related item.
func (e *Engine) RelatedTo(ctx context.Context, item *store.Item, limit Limit) ([]store.ItemOverlap, error) {
	if item == nil {
		return nil, fmt.Errorf("%w: related requires an item", ErrMissingContext)
	}
	n, err := resolveLimit(limit, -1)
	if err != nil {
		return nil, err
	}

	tags, err := e.store.TagsOf(ctx, item.ID)
	if err != nil {
		return nil, fmt.Errorf("loading tags of item %d: %w", item.ID, err)
	}
	ids, _ := tagIDs(tags)
	if len(ids) == 0 {
		return []store.ItemOverlap{}, nil
	}

	overlaps, err := e.store.TagOverlap(ctx, ids, store.ItemFilter{})
	if err != nil {
		return nil, fmt.Errorf("ranking related items: %w", err)
	}
	out := overlaps[:0]
	for _, o := range overlaps {
		if o.Item.ID != item.ID && o.Overlap > 0 {
			out = append(out, o)
		}
	}
	sortOverlaps(out)
	return truncate(out, n), nil
}

// RelatedToID loads the item by id and ranks its related items.
func (e *Engine) RelatedToID(ctx context.Context, id int64, limit Limit) ([]store.ItemOverlap, error) {
	item, err := e.store.GetItem(ctx, id)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, fmt.Errorf("%w: item %d not found", ErrMissingContext, id)
	}
	return e.RelatedTo(ctx, item, limit)
}
