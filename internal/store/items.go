package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

const itemColumns = `i.id, i.kind, i.subtype, i.title, i.parent_id, i.created_at`

// AddItem inserts an item. Kind is derived from Subtype when empty;
// CreatedAt defaults to now. Only documents may have a parent, and the
// parent must be an existing document.
func (s *SQLStore) AddItem(ctx context.Context, it *Item) (int64, error) {
	if !it.Subtype.Valid() {
		return 0, fmt.Errorf("adding item: %w: %q", ErrUnknownSubtype, it.Subtype)
	}
	if it.Kind == "" {
		it.Kind = it.Subtype.Kind()
	}
	if it.Kind != it.Subtype.Kind() {
		return 0, fmt.Errorf("adding item: subtype %q is not a %s", it.Subtype, it.Kind)
	}
	if it.ParentID != nil && !it.Subtype.SupportsSubtree() {
		return 0, fmt.Errorf("adding item: %s items cannot have a parent", it.Subtype)
	}
	if it.ParentID != nil {
		p, err := s.GetItem(ctx, *it.ParentID)
		if err != nil {
			return 0, fmt.Errorf("adding item: loading parent: %w", err)
		}
		if p == nil {
			return 0, fmt.Errorf("adding item: parent %d not found", *it.ParentID)
		}
		if !p.Subtype.SupportsSubtree() {
			return 0, fmt.Errorf("adding item: %s item %d cannot be a parent", p.Subtype, p.ID)
		}
	}
	if it.CreatedAt.IsZero() {
		it.CreatedAt = time.Now().UTC()
	}

	var parent interface{}
	if it.ParentID != nil {
		parent = *it.ParentID
	}

	var id int64
	err := s.db.QueryRowContext(ctx,
		s.dialect.Rebind(`INSERT INTO items (kind, subtype, title, parent_id, created_at)
		 VALUES (?, ?, ?, ?, ?) RETURNING id`),
		string(it.Kind), string(it.Subtype), it.Title, parent, it.CreatedAt.UTC(),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("inserting item: %w", err)
	}

	it.ID = id
	return id, nil
}

// GetItem retrieves an item by ID. Returns nil if not found.
func (s *SQLStore) GetItem(ctx context.Context, id int64) (*Item, error) {
	row := s.db.QueryRowContext(ctx,
		s.dialect.Rebind(`SELECT `+itemColumns+` FROM items i WHERE i.id = ?`), id)
	it, err := scanItem(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting item %d: %w", id, err)
	}
	return it, nil
}

// DeleteItem removes an item; its taggings go with it.
func (s *SQLStore) DeleteItem(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, s.dialect.Rebind(`DELETE FROM items WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("deleting item %d: %w", id, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("item %d not found", id)
	}
	return nil
}

// ListItems returns the filtered item universe, newest first.
func (s *SQLStore) ListItems(ctx context.Context, f ItemFilter) ([]*Item, error) {
	cond, args, ok := filterClause(f, "i")
	if !ok {
		return nil, nil
	}
	query := `SELECT ` + itemColumns + ` FROM items i WHERE 1=1` + cond +
		` ORDER BY i.created_at DESC, i.id ASC`

	rows, err := s.db.QueryContext(ctx, s.dialect.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("listing items: %w", err)
	}
	defer rows.Close()
	return scanItems(rows)
}

// filterClause renders f as " AND ..." conditions on the items alias.
// ok is false when the filter can never match, e.g. an unknown subtype.
func filterClause(f ItemFilter, alias string) (string, []interface{}, bool) {
	var b strings.Builder
	var args []interface{}

	if f.Kind != "" {
		if !f.Kind.Valid() {
			return "", nil, false
		}
		fmt.Fprintf(&b, " AND %s.kind = ?", alias)
		args = append(args, string(f.Kind))
	}
	if f.Subtype != "" {
		if !f.Subtype.Valid() {
			return "", nil, false
		}
		fmt.Fprintf(&b, " AND %s.subtype = ?", alias)
		args = append(args, string(f.Subtype))
	}
	if f.SubtreeOf != nil {
		fmt.Fprintf(&b, ` AND %s.id IN (
			WITH RECURSIVE subtree(id) AS (
				SELECT id FROM items WHERE id = ?
				UNION ALL
				SELECT c.id FROM items c JOIN subtree p ON c.parent_id = p.id
			)
			SELECT id FROM subtree)`, alias)
		args = append(args, *f.SubtreeOf)
	}
	return b.String(), args, true
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanItem(row rowScanner, extra ...interface{}) (*Item, error) {
	it := &Item{}
	var kind, subtype string
	var parent sql.NullInt64
	dest := append([]interface{}{&it.ID, &kind, &subtype, &it.Title, &parent, &it.CreatedAt}, extra...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	it.Kind = Kind(kind)
	it.Subtype = Subtype(subtype)
	if parent.Valid {
		p := parent.Int64
		it.ParentID = &p
	}
	return it, nil
}

func scanItems(rows *sql.Rows) ([]*Item, error) {
	var items []*Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning item row: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}
