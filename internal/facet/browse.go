package facet

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hurttlocker/tagfacets/internal/cloud"
	"github.com/hurttlocker/tagfacets/internal/selection"
	"github.com/hurttlocker/tagfacets/internal/store"
)

// BrowseRequest describes one faceted view.
type BrowseRequest struct {
	Path       string
	Filter     store.ItemFilter
	Page       PageRequest
	FacetLimit Limit
	BandCount  int
}

// Facet is a coincident tag prepared for display.
type Facet struct {
	Tag      *store.Tag `json:"tag"`
	Count    int        `json:"count"`
	Band     int        `json:"band"`
	Selected bool       `json:"selected"`
	// Path is the canonical selection path that toggles this tag.
	Path string `json:"path"`
}

// View is the result of Browse.
type View struct {
	Path        string              `json:"path"`
	Selection   selection.Selection `json:"-"`
	Tags        []*store.Tag        `json:"selected"`
	Coincidence *Coincidence        `json:"coincidence"`
	Facets      []Facet             `json:"facets"`
	Page        *ItemPage           `json:"page"`
}

// ResolveSelection maps a decoded selection onto tags. Depending on the
// engine options, unknown slugs are created or returned unsaved (ID 0).
// Created tags take the segment as typed for their title; a bare slug
// gets its dashes replaced by spaces.
func (e *Engine) ResolveSelection(ctx context.Context, sel selection.Selection) ([]*store.Tag, error) {
	if sel.IsEmpty() {
		return []*store.Tag{}, nil
	}
	if e.createUnknown {
		titles := sel.Titles()
		for i, slug := range sel.Slugs() {
			titles[i] = readableTitle(titles[i], slug)
		}
		tags, err := e.store.ResolveTags(ctx, titles)
		if err != nil {
			return nil, fmt.Errorf("resolving selection: %w", err)
		}
		return tags, nil
	}

	slugs, titles := sel.Slugs(), sel.Titles()
	tags := make([]*store.Tag, 0, len(slugs))
	for i, slug := range slugs {
		t, err := e.store.GetTagBySlug(ctx, slug)
		if err != nil {
			return nil, fmt.Errorf("resolving selection: %w", err)
		}
		if t == nil {
			t = &store.Tag{Title: titles[i], Slug: slug}
		}
		tags = append(tags, t)
	}
	return tags, nil
}

// readableTitle turns a segment that is already a slug, as every segment of
// a canonical path is, into a title with spaces. Other segments are kept
// as typed. The slug is unchanged either way.
func readableTitle(title, slug string) string {
	if title != slug {
		return title
	}
	return strings.ReplaceAll(slug, "-", " ")
}

// Browse decodes path, then computes the coincident facets and one page of
// matching items concurrently.
func (e *Engine) Browse(ctx context.Context, req BrowseRequest) (*View, error) {
	page, err := e.normalizePage(req.Page)
	if err != nil {
		return nil, err
	}
	if _, err := resolveLimit(req.FacetLimit, e.facetLimit); err != nil {
		return nil, err
	}
	bandCount := req.BandCount
	if bandCount <= 0 {
		bandCount = e.bandCount
	}

	sel := selection.Decode(req.Path)
	tags, err := e.ResolveSelection(ctx, sel)
	if err != nil {
		return nil, err
	}

	view := &View{Path: sel.String(), Selection: sel, Tags: tags}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		c, err := e.CoincidentTags(gctx, tags, req.FacetLimit, req.Filter)
		if err != nil {
			return err
		}
		view.Coincidence = c
		return nil
	})
	g.Go(func() error {
		p, err := e.Page(gctx, tags, req.Filter, page)
		if err != nil {
			return err
		}
		view.Page = p
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	view.Facets = facets(sel, view.Coincidence.Tags, bandCount)
	e.logger.Debug("browse",
		zap.String("path", view.Path),
		zap.Int("facets", len(view.Facets)),
		zap.Int("matches", view.Page.Total),
	)
	return view, nil
}

func facets(sel selection.Selection, counts []store.TagCount, bandCount int) []Facet {
	bands := cloud.BandTags(counts, bandCount)
	out := make([]Facet, 0, len(counts))
	for _, tc := range counts {
		selected := sel.Contains(tc.Tag.Slug)
		out = append(out, Facet{
			Tag:      tc.Tag,
			Count:    tc.Count,
			Band:     bands[tc.Tag.Slug],
			Selected: selected,
			Path:     selection.Encode(sel, tc.Tag.Slug, !selected),
		})
	}
	return out
}

// Cloud returns the most popular tags in alphabetical order with bands.
func (e *Engine) Cloud(ctx context.Context, limit Limit, bandCount int) ([]cloud.Weighted, error) {
	counts, err := e.MostPopular(ctx, limit)
	if err != nil {
		return nil, err
	}
	if bandCount <= 0 {
		bandCount = e.bandCount
	}
	return cloud.Cloud(counts, bandCount), nil
}
