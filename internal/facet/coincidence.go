package facet

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/hurttlocker/tagfacets/internal/store"
)

// Coincidence is the set of tags still viable under a selection.
type Coincidence struct {
	// Tags are ordered by co-occurrence count, then title. Selected tags
	// are included with a count equal to MatchCount.
	Tags []store.TagCount `json:"tags"`
	// MatchCount is the number of items matching every selected tag.
	// It is zero for an unconstrained selection.
	MatchCount int `json:"match_count"`
	// Unconstrained is set when nothing was selected; Tags then holds the
	// most popular tags.
	Unconstrained bool `json:"unconstrained"`
	// DeadEnd is set when no item matches the selection.
	DeadEnd bool `json:"dead_end"`
}

// Remaining returns the coincident tags that are not part of sel.
func (c *Coincidence) Remaining(sel []*store.Tag) []store.TagCount {
	chosen := make(map[string]bool, len(sel))
	for _, t := range sel {
		if t != nil {
			chosen[t.Slug] = true
		}
	}
	out := make([]store.TagCount, 0, len(c.Tags))
	for _, tc := range c.Tags {
		if !chosen[tc.Tag.Slug] {
			out = append(out, tc)
		}
	}
	return out
}

// CoincidentTags returns every tag attached to at least one item matching
// all of sel, weighted by the number of such items. An empty selection
// yields the most popular tags. A zero limit selects the facet default.
func (e *Engine) CoincidentTags(ctx context.Context, sel []*store.Tag, limit Limit, f store.ItemFilter) (*Coincidence, error) {
	n, err := resolveLimit(limit, e.facetLimit)
	if err != nil {
		return nil, err
	}

	ids, unsaved := tagIDs(sel)
	if len(ids) == 0 && !unsaved {
		tags, err := e.popular(ctx, limit, e.facetLimit, f)
		if err != nil {
			return nil, err
		}
		return &Coincidence{Tags: tags, Unconstrained: true}, nil
	}
	if unsaved {
		e.logger.Debug("selection names an unknown tag", zap.Int("selected", len(sel)))
		return &Coincidence{Tags: []store.TagCount{}, DeadEnd: true}, nil
	}

	counts, err := e.store.CoOccurrence(ctx, ids, f)
	if err != nil {
		return nil, fmt.Errorf("computing coincident tags: %w", err)
	}
	if len(counts) == 0 {
		e.logger.Debug("dead-end selection", zap.Int64s("tag_ids", ids))
		return &Coincidence{Tags: []store.TagCount{}, DeadEnd: true}, nil
	}

	// Every matching item carries each selected tag, so the highest count
	// is the size of the match set.
	match := 0
	for _, c := range counts {
		if c.Count > match {
			match = c.Count
		}
	}
	sortTagCounts(counts)
	return &Coincidence{Tags: truncate(counts, n), MatchCount: match}, nil
}
