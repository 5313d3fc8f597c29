// Package cloud maps tag usage counts onto discrete display bands.
//
// Bands are integers 1..n; the rendering layer maps them to weight classes.
package cloud

import (
	"sort"
	"strings"

	"github.com/hurttlocker/tagfacets/internal/store"
)

// DefaultBands is used when a non-positive band count is requested.
const DefaultBands = 6

// Weighted is a tag ready for cloud rendering.
type Weighted struct {
	Tag   *store.Tag `json:"tag"`
	Count int        `json:"count"`
	Band  int        `json:"band"`
}

// Band assigns each count a band in 1..bandCount by linear interpolation
// into equal-width buckets between the minimum and maximum count. When all
// counts are equal every entry gets band 1. Output order matches input.
func Band(counts []int, bandCount int) []int {
	if len(counts) == 0 {
		return nil
	}
	if bandCount <= 0 {
		bandCount = DefaultBands
	}
	lo, hi := bounds(counts)
	out := make([]int, len(counts))
	for i, c := range counts {
		out[i] = bandOf(c, lo, hi, bandCount)
	}
	return out
}

// BandTags bands a set of tag counts, keyed by slug.
func BandTags(tags []store.TagCount, bandCount int) map[string]int {
	counts := make([]int, len(tags))
	for i, t := range tags {
		counts[i] = t.Count
	}
	bands := Band(counts, bandCount)
	out := make(map[string]int, len(tags))
	for i, t := range tags {
		out[t.Tag.Slug] = bands[i]
	}
	return out
}

// Cloud bands the tags and orders them alphabetically by title.
func Cloud(tags []store.TagCount, bandCount int) []Weighted {
	bands := BandTags(tags, bandCount)
	out := make([]Weighted, 0, len(tags))
	for _, t := range tags {
		out = append(out, Weighted{Tag: t.Tag, Count: t.Count, Band: bands[t.Tag.Slug]})
	}
	sort.SliceStable(out, func(i, j int) bool {
		ti, tj := strings.ToLower(out[i].Tag.Title), strings.ToLower(out[j].Tag.Title)
		if ti != tj {
			return ti < tj
		}
		return out[i].Tag.Slug < out[j].Tag.Slug
	})
	return out
}

func bounds(counts []int) (lo, hi int) {
	lo, hi = counts[0], counts[0]
	for _, c := range counts[1:] {
		if c < lo {
			lo = c
		}
		if c > hi {
			hi = c
		}
	}
	return lo, hi
}

func bandOf(c, lo, hi, n int) int {
	if hi == lo {
		return 1
	}
	b := 1 + (c-lo)*n/(hi-lo)
	if b > n {
		b = n
	}
	return b
}
