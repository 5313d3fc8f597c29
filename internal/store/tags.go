package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
	"unicode"

	"go.uber.org/zap"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// NormalizeTitle trims a title and collapses internal whitespace runs.
// Case is preserved.
func NormalizeTitle(title string) string {
	return strings.Join(strings.Fields(title), " ")
}

// Slugify derives the URL-safe identity of a tag title: diacritics folded,
// lowercased, every run of non-alphanumerics replaced by a single dash.
// Slugify(Slugify(x)) == Slugify(x).
func Slugify(title string) string {
	// A transform chain carries state, so one is built per call.
	fold := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(fold, title)
	if err != nil {
		folded = title
	}

	var b strings.Builder
	b.Grow(len(folded))
	pendingDash := false
	for _, r := range strings.ToLower(folded) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if pendingDash && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingDash = false
			b.WriteRune(r)
			continue
		}
		pendingDash = true
	}
	return b.String()
}

// ResolveTags gets or creates one tag per title. Titles that share a slug
// collapse to a single tag; titles with an empty slug are skipped. The
// result follows first-appearance order of the input.
func (s *SQLStore) ResolveTags(ctx context.Context, titles []string) ([]*Tag, error) {
	if len(titles) == 0 {
		return nil, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning resolve transaction: %w", err)
	}
	defer tx.Rollback()

	insert := s.dialect.Rebind(
		`INSERT INTO tags (title, slug, created_at) VALUES (?, ?, ?)
		 ON CONFLICT (slug) DO NOTHING`)
	lookup := s.dialect.Rebind(`SELECT id, title, slug, created_at FROM tags WHERE slug = ?`)

	now := time.Now().UTC()
	seen := make(map[string]bool, len(titles))
	tags := make([]*Tag, 0, len(titles))
	for _, raw := range titles {
		title := NormalizeTitle(raw)
		slug := Slugify(title)
		if slug == "" || seen[slug] {
			continue
		}
		seen[slug] = true

		if _, err := tx.ExecContext(ctx, insert, title, slug, now); err != nil {
			return nil, fmt.Errorf("creating tag %q: %w", slug, err)
		}
		t := &Tag{}
		if err := tx.QueryRowContext(ctx, lookup, slug).Scan(&t.ID, &t.Title, &t.Slug, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("loading tag %q: %w", slug, err)
		}
		tags = append(tags, t)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing resolve: %w", err)
	}
	return tags, nil
}

// GetTag returns a tag by ID, or nil if not found.
func (s *SQLStore) GetTag(ctx context.Context, id int64) (*Tag, error) {
	t := &Tag{}
	err := s.db.QueryRowContext(ctx,
		s.dialect.Rebind(`SELECT id, title, slug, created_at FROM tags WHERE id = ?`), id,
	).Scan(&t.ID, &t.Title, &t.Slug, &t.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting tag %d: %w", id, err)
	}
	return t, nil
}

// GetTagBySlug returns the tag with the given slug, or nil if none exists.
// The argument is slugified first, so titles work too.
func (s *SQLStore) GetTagBySlug(ctx context.Context, slug string) (*Tag, error) {
	slug = Slugify(slug)
	if slug == "" {
		return nil, nil
	}
	t := &Tag{}
	err := s.db.QueryRowContext(ctx,
		s.dialect.Rebind(`SELECT id, title, slug, created_at FROM tags WHERE slug = ?`), slug,
	).Scan(&t.ID, &t.Title, &t.Slug, &t.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting tag %q: %w", slug, err)
	}
	return t, nil
}

// ListTags returns every tag ordered by slug, orphans included.
func (s *SQLStore) ListTags(ctx context.Context) ([]*Tag, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, title, slug, created_at FROM tags ORDER BY slug`)
	if err != nil {
		return nil, fmt.Errorf("listing tags: %w", err)
	}
	defer rows.Close()
	return scanTags(rows)
}

// PruneOrphanTags deletes tags no item references. Never called
// implicitly; keeping orphans is a valid policy.
func (s *SQLStore) PruneOrphanTags(ctx context.Context) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM tags WHERE NOT EXISTS (SELECT 1 FROM taggings t WHERE t.tag_id = tags.id)`)
	if err != nil {
		return 0, fmt.Errorf("pruning orphan tags: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}
	s.logger.Debug("pruned orphan tags", zap.Int64("count", n))
	return n, nil
}

func scanTags(rows *sql.Rows) ([]*Tag, error) {
	var tags []*Tag
	for rows.Next() {
		t := &Tag{}
		if err := rows.Scan(&t.ID, &t.Title, &t.Slug, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning tag row: %w", err)
		}
		tags = append(tags, t)
	}
	return tags, rows.Err()
}
