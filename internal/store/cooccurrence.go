package store

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"
)

// TagUsage returns the number of (filtered) items carrying each tag.
// Tags without associations are omitted. Order is unspecified.
func (s *SQLStore) TagUsage(ctx context.Context, f ItemFilter) ([]TagCount, error) {
	cond, args, ok := filterClause(f, "i")
	if !ok {
		return nil, nil
	}
	query := `SELECT g.id, g.title, g.slug, g.created_at, COUNT(*)
		FROM taggings t
		JOIN tags g ON g.id = t.tag_id
		JOIN items i ON i.id = t.item_id
		WHERE 1=1` + cond + `
		GROUP BY g.id, g.title, g.slug, g.created_at`

	rows, err := s.db.QueryContext(ctx, s.dialect.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("counting tag usage: %w", err)
	}
	defer rows.Close()
	return scanTagCounts(rows)
}

// CountTag returns the number of items associated with a tag.
func (s *SQLStore) CountTag(ctx context.Context, tagID int64) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		s.dialect.Rebind(`SELECT COUNT(*) FROM taggings WHERE tag_id = ?`), tagID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting tag %d: %w", tagID, err)
	}
	return n, nil
}

// ItemsMatchingAll returns items carrying every tag in tagIDs. An empty
// tagIDs matches the whole (filtered) universe.
func (s *SQLStore) ItemsMatchingAll(ctx context.Context, tagIDs []int64, f ItemFilter) ([]*Item, error) {
	ids := uniqueIDs(tagIDs)
	if len(ids) == 0 {
		return s.ListItems(ctx, f)
	}
	cond, fargs, ok := filterClause(f, "i")
	if !ok {
		return nil, nil
	}

	query := `SELECT ` + itemColumns + `
		FROM items i
		JOIN taggings t ON t.item_id = i.id
		WHERE t.tag_id IN (` + placeholders(len(ids)) + `)` + cond + `
		GROUP BY i.id, i.kind, i.subtype, i.title, i.parent_id, i.created_at
		HAVING COUNT(DISTINCT t.tag_id) = ?
		ORDER BY i.created_at DESC, i.id ASC`

	args := idArgs(ids)
	args = append(args, fargs...)
	args = append(args, len(ids))

	rows, err := s.db.QueryContext(ctx, s.dialect.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("intersecting %d tags: %w", len(ids), err)
	}
	defer rows.Close()
	return scanItems(rows)
}

// TagOverlap returns every item carrying at least one of tagIDs together
// with how many of them it carries. Order is unspecified.
func (s *SQLStore) TagOverlap(ctx context.Context, tagIDs []int64, f ItemFilter) ([]ItemOverlap, error) {
	ids := uniqueIDs(tagIDs)
	if len(ids) == 0 {
		return nil, nil
	}
	cond, fargs, ok := filterClause(f, "i")
	if !ok {
		return nil, nil
	}

	query := `SELECT ` + itemColumns + `, COUNT(DISTINCT t.tag_id)
		FROM items i
		JOIN taggings t ON t.item_id = i.id
		WHERE t.tag_id IN (` + placeholders(len(ids)) + `)` + cond + `
		GROUP BY i.id, i.kind, i.subtype, i.title, i.parent_id, i.created_at`

	args := append(idArgs(ids), fargs...)
	rows, err := s.db.QueryContext(ctx, s.dialect.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("computing tag overlap: %w", err)
	}
	defer rows.Close()

	var out []ItemOverlap
	for rows.Next() {
		var n int
		it, err := scanItem(rows, &n)
		if err != nil {
			return nil, fmt.Errorf("scanning overlap row: %w", err)
		}
		out = append(out, ItemOverlap{Item: it, Overlap: n})
	}
	return out, rows.Err()
}

// CoOccurrence returns every tag found on the items that carry all of
// tagIDs, with the number of such items per tag. The selected tags are
// part of the result. An empty tagIDs yields TagUsage.
func (s *SQLStore) CoOccurrence(ctx context.Context, tagIDs []int64, f ItemFilter) ([]TagCount, error) {
	ids := uniqueIDs(tagIDs)
	if len(ids) == 0 {
		return s.TagUsage(ctx, f)
	}
	cond, fargs, ok := filterClause(f, "i")
	if !ok {
		return nil, nil
	}

	query := `SELECT g.id, g.title, g.slug, g.created_at, COUNT(*)
		FROM taggings t
		JOIN tags g ON g.id = t.tag_id
		WHERE t.item_id IN (
			SELECT m.item_id
			FROM taggings m
			JOIN items i ON i.id = m.item_id
			WHERE m.tag_id IN (` + placeholders(len(ids)) + `)` + cond + `
			GROUP BY m.item_id
			HAVING COUNT(DISTINCT m.tag_id) = ?
		)
		GROUP BY g.id, g.title, g.slug, g.created_at`

	args := idArgs(ids)
	args = append(args, fargs...)
	args = append(args, len(ids))

	rows, err := s.db.QueryContext(ctx, s.dialect.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("computing co-occurrence: %w", err)
	}
	defer rows.Close()

	counts, err := scanTagCounts(rows)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("co-occurrence",
		zap.Int("selected", len(ids)),
		zap.Int("coincident", len(counts)))
	return counts, nil
}

func scanTagCounts(rows *sql.Rows) ([]TagCount, error) {
	var counts []TagCount
	for rows.Next() {
		t := &Tag{}
		var n int
		if err := rows.Scan(&t.ID, &t.Title, &t.Slug, &t.CreatedAt, &n); err != nil {
			return nil, fmt.Errorf("scanning tag count: %w", err)
		}
		counts = append(counts, TagCount{Tag: t, Count: n})
	}
	return counts, rows.Err()
}

// uniqueIDs drops duplicates, keeping first-appearance order.
func uniqueIDs(ids []int64) []int64 {
	if len(ids) == 0 {
		return nil
	}
	seen := make(map[int64]bool, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

func idArgs(ids []int64) []interface{} {
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}
