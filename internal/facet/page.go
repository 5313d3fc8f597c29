package facet

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/hurttlocker/tagfacets/internal/store"
)

// DefaultPageSize is used when a PageRequest leaves PageSize at zero.
const DefaultPageSize = 20

// SortField names the key items are ordered by.
type SortField string

const (
	SortCreated SortField = "created"
	SortTitle   SortField = "title"
)

// Direction is ascending or descending.
type Direction string

const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

// ParseSort validates a sort field name. Empty selects SortCreated.
func ParseSort(s string) (SortField, error) {
	switch SortField(strings.ToLower(strings.TrimSpace(s))) {
	case "", SortCreated:
		return SortCreated, nil
	case SortTitle:
		return SortTitle, nil
	}
	return "", fmt.Errorf("%w: unknown sort field %q (expected created or title)", ErrInvalidArgument, s)
}

// ParseDirection validates a direction. Empty selects Desc.
func ParseDirection(s string) (Direction, error) {
	switch Direction(strings.ToLower(strings.TrimSpace(s))) {
	case "", Desc:
		return Desc, nil
	case Asc:
		return Asc, nil
	}
	return "", fmt.Errorf("%w: unknown sort direction %q (expected asc or desc)", ErrInvalidArgument, s)
}

// PageRequest selects one page of a sorted item listing. Zero fields
// select defaults: page 1, the engine's page size, newest first.
type PageRequest struct {
	Page      int       `json:"page"`
	PageSize  int       `json:"page_size"`
	Sort      SortField `json:"sort"`
	Direction Direction `json:"direction"`
}

// ItemPage is one page of matching items.
type ItemPage struct {
	Items      []*store.Item `json:"items"`
	Total      int           `json:"total"`
	Page       int           `json:"page"`
	PageSize   int           `json:"page_size"`
	TotalPages int           `json:"total_pages"`
}

func (e *Engine) normalizePage(req PageRequest) (PageRequest, error) {
	if req.Page < 0 || req.PageSize < 0 {
		return req, fmt.Errorf("%w: page %d size %d", ErrInvalidArgument, req.Page, req.PageSize)
	}
	if req.Page == 0 {
		req.Page = 1
	}
	if req.PageSize == 0 {
		req.PageSize = e.pageSize
	}
	var err error
	if req.Sort, err = ParseSort(string(req.Sort)); err != nil {
		return req, err
	}
	if req.Direction, err = ParseDirection(string(req.Direction)); err != nil {
		return req, err
	}
	return req, nil
}

// Page returns one page of the items matching every tag in sel.
// A page past the end is empty, not an error.
func (e *Engine) Page(ctx context.Context, sel []*store.Tag, f store.ItemFilter, req PageRequest) (*ItemPage, error) {
	req, err := e.normalizePage(req)
	if err != nil {
		return nil, err
	}
	items, err := e.ItemsMatchingAll(ctx, sel, f)
	if err != nil {
		return nil, err
	}
	sortItems(items, req.Sort, req.Direction)

	total := len(items)
	pages := total / req.PageSize
	if total%req.PageSize != 0 {
		pages++
	}
	page := &ItemPage{
		Items:      []*store.Item{},
		Total:      total,
		Page:       req.Page,
		PageSize:   req.PageSize,
		TotalPages: pages,
	}
	// Compared before multiplying so huge page numbers cannot overflow.
	if req.Page-1 >= pages {
		return page, nil
	}
	start := (req.Page - 1) * req.PageSize
	end := total
	if total-start > req.PageSize {
		end = start + req.PageSize
	}
	page.Items = items[start:end]
	return page, nil
}

// sortItems orders items by field and direction; ties always break by
// ascending id.
func sortItems(items []*store.Item, field SortField, dir Direction) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		var cmp int
		switch field {
		case SortTitle:
			cmp = strings.Compare(strings.ToLower(a.Title), strings.ToLower(b.Title))
		default:
			cmp = a.CreatedAt.Compare(b.CreatedAt)
		}
		if cmp == 0 {
			return a.ID < b.ID
		}
		if dir == Asc {
			return cmp < 0
		}
		return cmp > 0
	})
}
