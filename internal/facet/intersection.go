package facet

import (
	"context"
	"fmt"
	"sort"

	"github.com/hurttlocker/tagfacets/internal/store"
)

// ItemsMatchingAll returns the items carrying every tag in tags, newest
// first. An empty tag set matches the whole (filtered) universe. A tag that
// was never saved matches nothing.
func (e *Engine) ItemsMatchingAll(ctx context.Context, tags []*store.Tag, f store.ItemFilter) ([]*store.Item, error) {
	ids, unsaved := tagIDs(tags)
	if unsaved {
		return []*store.Item{}, nil
	}
	items, err := e.store.ItemsMatchingAll(ctx, ids, f)
	if err != nil {
		return nil, fmt.Errorf("matching items: %w", err)
	}
	if items == nil {
		items = []*store.Item{}
	}
	sortNewest(items)
	return items, nil
}

// ItemsMatchingAllRankedByOverlap returns items carrying at least one of
// tags, ranked by how many of them they carry.
func (e *Engine) ItemsMatchingAllRankedByOverlap(ctx context.Context, tags []*store.Tag, f store.ItemFilter) ([]store.ItemOverlap, error) {
	ids, _ := tagIDs(tags)
	if len(ids) == 0 {
		return []store.ItemOverlap{}, nil
	}
	overlaps, err := e.store.TagOverlap(ctx, ids, f)
	if err != nil {
		return nil, fmt.Errorf("ranking overlap: %w", err)
	}
	sortOverlaps(overlaps)
	return overlaps, nil
}

// sortOverlaps orders by overlap descending, then newest, then id.
func sortOverlaps(o []store.ItemOverlap) {
	sort.SliceStable(o, func(i, j int) bool {
		if o[i].Overlap != o[j].Overlap {
			return o[i].Overlap > o[j].Overlap
		}
		return newer(o[i].Item, o[j].Item)
	})
}
