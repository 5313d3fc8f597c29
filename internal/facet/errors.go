package facet

import (
	"errors"

	"github.com/hurttlocker/tagfacets/internal/store"
)

var (
	// ErrInvalidArgument is returned for negative limits, unknown sort
	// fields and out-of-range pagination.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrMissingContext is returned when an operation needs a subject item
	// or tag and none was given.
	ErrMissingContext = errors.New("missing context")

	// ErrUnknownSubtype is returned by parsers for unrecognized subtype
	// names. Query filters treat an unknown subtype as matching nothing.
	ErrUnknownSubtype = store.ErrUnknownSubtype
)
