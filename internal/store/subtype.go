package store

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownSubtype is returned by ParseSubtype for names outside the
// known enumeration.
var ErrUnknownSubtype = errors.New("unknown subtype")

// Kind is the top-level item variant.
type Kind string

const (
	KindDocument Kind = "document"
	KindAsset    Kind = "asset"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	return k == KindDocument || k == KindAsset
}

// Subtype is the fixed enumeration of item subtypes.
type Subtype string

const (
	SubtypeDocument Subtype = "document"
	SubtypeImage    Subtype = "image"
	SubtypeAudio    Subtype = "audio"
	SubtypeVideo    Subtype = "video"
	SubtypeOther    Subtype = "other"
)

var knownSubtypes = []Subtype{SubtypeDocument, SubtypeImage, SubtypeAudio, SubtypeVideo, SubtypeOther}

// KnownSubtypes returns every subtype in declaration order.
func KnownSubtypes() []Subtype {
	out := make([]Subtype, len(knownSubtypes))
	copy(out, knownSubtypes)
	return out
}

// ParseSubtype accepts singular or plural names ("image", "images").
func ParseSubtype(name string) (Subtype, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	for _, st := range knownSubtypes {
		if n == string(st) || n == string(st)+"s" {
			return st, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownSubtype, name)
}

// Valid reports whether st is in the known enumeration.
func (st Subtype) Valid() bool {
	for _, k := range knownSubtypes {
		if st == k {
			return true
		}
	}
	return false
}

// Kind returns the variant a subtype belongs to.
func (st Subtype) Kind() Kind {
	if st == SubtypeDocument {
		return KindDocument
	}
	return KindAsset
}

// Taggable reports whether items of this subtype take part in taggings.
func (st Subtype) Taggable() bool {
	return st.Valid()
}

// SupportsSubtypeFilter reports whether the subtype can be used to narrow
// an item listing. "other" is a catch-all bucket and is not browsable.
func (st Subtype) SupportsSubtypeFilter() bool {
	return st.Valid() && st != SubtypeOther
}

// SupportsSubtree reports whether items of this subtype can have children.
func (st Subtype) SupportsSubtree() bool {
	return st == SubtypeDocument
}
