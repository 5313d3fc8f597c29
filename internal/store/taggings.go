package store

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Associate links an item to a tag. A duplicate association is not an
// error: created is false when the pair already existed, including when a
// concurrent writer inserted it first.
func (s *SQLStore) Associate(ctx context.Context, itemID, tagID int64) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		s.dialect.Rebind(`INSERT INTO taggings (item_id, tag_id, created_at) VALUES (?, ?, ?)
		 ON CONFLICT (item_id, tag_id) DO NOTHING`),
		itemID, tagID, time.Now().UTC(),
	)
	if err != nil {
		return false, fmt.Errorf("tagging item %d with tag %d: %w", itemID, tagID, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("checking rows affected: %w", err)
	}
	return n > 0, nil
}

// Dissociate removes an item-tag link. removed is false if none existed.
func (s *SQLStore) Dissociate(ctx context.Context, itemID, tagID int64) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		s.dialect.Rebind(`DELETE FROM taggings WHERE item_id = ? AND tag_id = ?`), itemID, tagID)
	if err != nil {
		return false, fmt.Errorf("untagging item %d from tag %d: %w", itemID, tagID, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("checking rows affected: %w", err)
	}
	return n > 0, nil
}

// TagItem resolves titles (creating tags as needed) and associates each
// with the item. Returns the number of new associations.
func (s *SQLStore) TagItem(ctx context.Context, itemID int64, titles ...string) (int, error) {
	tags, err := s.ResolveTags(ctx, titles)
	if err != nil {
		return 0, err
	}
	created := 0
	for _, t := range tags {
		ok, err := s.Associate(ctx, itemID, t.ID)
		if err != nil {
			return created, err
		}
		if ok {
			created++
		}
	}
	s.logger.Debug("tagged item",
		zap.Int64("item_id", itemID),
		zap.Int("tags", len(tags)),
		zap.Int("created", created))
	return created, nil
}

// UntagItem removes the named tags from an item. Unknown titles are
// ignored; tags are never created here.
func (s *SQLStore) UntagItem(ctx context.Context, itemID int64, titles ...string) (int, error) {
	removed := 0
	for _, title := range titles {
		t, err := s.GetTagBySlug(ctx, title)
		if err != nil {
			return removed, err
		}
		if t == nil {
			continue
		}
		ok, err := s.Dissociate(ctx, itemID, t.ID)
		if err != nil {
			return removed, err
		}
		if ok {
			removed++
		}
	}
	return removed, nil
}

// TagsOf returns the tags on an item ordered by slug.
func (s *SQLStore) TagsOf(ctx context.Context, itemID int64) ([]*Tag, error) {
	rows, err := s.db.QueryContext(ctx,
		s.dialect.Rebind(`SELECT g.id, g.title, g.slug, g.created_at
		 FROM taggings t JOIN tags g ON g.id = t.tag_id
		 WHERE t.item_id = ?
		 ORDER BY g.slug`), itemID)
	if err != nil {
		return nil, fmt.Errorf("listing tags of item %d: %w", itemID, err)
	}
	defer rows.Close()
	return scanTags(rows)
}

// ItemsWith returns the items carrying a tag, newest first.
func (s *SQLStore) ItemsWith(ctx context.Context, tagID int64, f ItemFilter) ([]*Item, error) {
	cond, args, ok := filterClause(f, "i")
	if !ok {
		return nil, nil
	}
	query := `SELECT ` + itemColumns + `
		FROM taggings t JOIN items i ON i.id = t.item_id
		WHERE t.tag_id = ?` + cond + `
		ORDER BY i.created_at DESC, i.id ASC`

	rows, err := s.db.QueryContext(ctx, s.dialect.Rebind(query), append([]interface{}{tagID}, args...)...)
	if err != nil {
		return nil, fmt.Errorf("listing items with tag %d: %w", tagID, err)
	}
	defer rows.Close()
	return scanItems(rows)
}
