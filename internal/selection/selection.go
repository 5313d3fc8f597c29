// Package selection encodes and decodes tag selections as URL path segments.
//
// A path is a list of tag slugs separated by "/" (or ","). A segment
// prefixed with "-" removes that tag from what precedes it, so a link that
// toggles a tag off can be built by appending to the current path.
package selection

import (
	"net/url"
	"strings"

	"github.com/hurttlocker/tagfacets/internal/store"
)

// Separator joins slugs in an encoded path.
const Separator = "/"

// RemovePrefix marks a segment that removes a tag.
const RemovePrefix = "-"

// Selection is an ordered, duplicate-free set of tags keyed by slug.
// The first title seen for a slug is kept for display.
type Selection struct {
	entries []entry
}

type entry struct {
	slug  string
	title string
}

// Of builds a selection from tag titles or slugs.
func Of(tags ...string) Selection {
	var s Selection
	for _, t := range tags {
		s = s.With(t)
	}
	return s
}

// Decode parses a path into a selection. Empty segments are ignored and
// duplicates collapse to their first occurrence.
func Decode(path string) Selection {
	var s Selection
	for _, seg := range strings.FieldsFunc(path, isSeparator) {
		if unescaped, err := url.PathUnescape(seg); err == nil {
			seg = unescaped
		}
		seg = strings.TrimSpace(seg)
		if strings.HasPrefix(seg, RemovePrefix) {
			s = s.Without(seg[len(RemovePrefix):])
			continue
		}
		s = s.With(seg)
	}
	return s
}

// Encode returns the canonical path of sel with toggle added or removed.
// Toggling an already present (or absent) tag leaves sel unchanged.
func Encode(sel Selection, toggle string, add bool) string {
	if add {
		return sel.With(toggle).String()
	}
	return sel.Without(toggle).String()
}

// Compose appends a toggle segment to a raw path without decoding it.
func Compose(path, toggle string, add bool) string {
	slug := store.Slugify(toggle)
	if slug == "" {
		return path
	}
	if !add {
		slug = RemovePrefix + slug
	}
	path = strings.TrimRight(path, "/,")
	if path == "" {
		return slug
	}
	return path + Separator + slug
}

// With returns a copy of s that includes tag.
func (s Selection) With(tag string) Selection {
	title := store.NormalizeTitle(tag)
	slug := store.Slugify(title)
	if slug == "" || s.has(slug) {
		return s
	}
	out := make([]entry, len(s.entries), len(s.entries)+1)
	copy(out, s.entries)
	return Selection{entries: append(out, entry{slug: slug, title: title})}
}

// Without returns a copy of s that excludes tag.
func (s Selection) Without(tag string) Selection {
	slug := store.Slugify(tag)
	if !s.has(slug) {
		return s
	}
	out := make([]entry, 0, len(s.entries)-1)
	for _, e := range s.entries {
		if e.slug != slug {
			out = append(out, e)
		}
	}
	return Selection{entries: out}
}

// Contains reports whether tag is selected.
func (s Selection) Contains(tag string) bool {
	return s.has(store.Slugify(tag))
}

// Slugs returns the selected slugs in insertion order.
func (s Selection) Slugs() []string {
	out := make([]string, len(s.entries))
	for i, e := range s.entries {
		out[i] = e.slug
	}
	return out
}

// Titles returns the display titles in insertion order.
func (s Selection) Titles() []string {
	out := make([]string, len(s.entries))
	for i, e := range s.entries {
		out[i] = e.title
	}
	return out
}

// Len returns the number of selected tags.
func (s Selection) Len() int { return len(s.entries) }

// IsEmpty reports whether nothing is selected.
func (s Selection) IsEmpty() bool { return len(s.entries) == 0 }

// Equal reports set equality, ignoring order.
func (s Selection) Equal(o Selection) bool {
	if len(s.entries) != len(o.entries) {
		return false
	}
	for _, e := range s.entries {
		if !o.has(e.slug) {
			return false
		}
	}
	return true
}

// String returns the canonical path.
func (s Selection) String() string {
	return strings.Join(s.Slugs(), Separator)
}

func (s Selection) has(slug string) bool {
	if slug == "" {
		return false
	}
	for _, e := range s.entries {
		if e.slug == slug {
			return true
		}
	}
	return false
}

func isSeparator(r rune) bool {
	return r == '/' || r == ','
}
