package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// Tags returns all tags ordered by name.
func (s *Store) Tags(ctx context.Context) ([]Tag, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, description, color FROM tags ORDER BY name ASC")
	if err != nil {
		return nil, fmt.Errorf("query tags: %w", err)
	}
	defer rows.Close()
	return scanTags(rows)
}

func scanTags(rows *sql.Rows) ([]Tag, error) {
	tags := []Tag{}
	for rows.Next() {
		var t Tag
		if err := rows.Scan(&t.ID, &t.Name, &t.Description, &t.Color); err != nil {
			return nil, fmt.Errorf("scan tag: %w", err)
		}
		tags = append(tags, t)
	}
	return tags, rows.Err()
}

// CreateTag inserts a tag and populates its ID. Names are unique.
func (s *Store) CreateTag(ctx context.Context, t *Tag) error {
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO tags (name, description, color) VALUES (?, ?, ?)",
		t.Name, t.Description, t.Color)
	if err != nil {
		return fmt.Errorf("create tag: %w", err)
	}
	t.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("create tag id: %w", err)
	}
	return nil
}

// UpdateTag updates a tag's name, description, and color.
func (s *Store) UpdateTag(ctx context.Context, t *Tag) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE tags SET name = ?, description = ?, color = ? WHERE id = ?",
		t.Name, t.Description, t.Color, t.ID)
	if err != nil {
		return fmt.Errorf("update tag: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("tag %d not found", t.ID)
	}
	return nil
}

// DeleteTag removes a tag. Its item joins cascade; items are untouched.
func (s *Store) DeleteTag(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM tags WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete tag: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("tag %d not found", id)
	}
	return nil
}

// AddItemTag attaches a tag to an item. Re-adding is a no-op.
func (s *Store) AddItemTag(ctx context.Context, itemID, tagID int64) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO item_tags (item_id, tag_id) VALUES (?, ?)",
		itemID, tagID)
	if err != nil {
		return fmt.Errorf("add item tag: %w", err)
	}
	return nil
}

// RemoveItemTag detaches a tag from an item.
func (s *Store) RemoveItemTag(ctx context.Context, itemID, tagID int64) error {
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM item_tags WHERE item_id = ? AND tag_id = ?", itemID, tagID)
	if err != nil {
		return fmt.Errorf("remove item tag: %w", err)
	}
	return nil
}

// ItemTags returns the tags attached to one item, ordered by name.
func (s *Store) ItemTags(ctx context.Context, itemID int64) ([]Tag, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT t.id, t.name, t.description, t.color
		FROM item_tags it
		JOIN tags t ON t.id = it.tag_id
		WHERE it.item_id = ?
		ORDER BY t.name ASC`, itemID)
	if err != nil {
		return nil, fmt.Errorf("query item tags: %w", err)
	}
	defer rows.Close()
	return scanTags(rows)
}

// ItemsByTags returns items carrying any of the given tags, or all of them
// when matchAll is set. Ordered by recency.
func (s *Store) ItemsByTags(ctx context.Context, tagIDs []int64, matchAll bool) ([]Item, error) {
	if len(tagIDs) == 0 {
		return []Item{}, nil
	}

	placeholders := strings.Repeat("?, ", len(tagIDs))
	placeholders = placeholders[:len(placeholders)-2]
	args := make([]any, 0, len(tagIDs)+1)
	for _, id := range tagIDs {
		args = append(args, id)
	}

	query := `
		SELECT i.id, i.type, i.data, i.data_hash, i.timestamp, i.name, i.thumbnail,
		       i.format_type, i.formatted_content, i.is_secret, i.is_favorite
		FROM items i
		JOIN item_tags it ON it.item_id = i.id
		WHERE it.tag_id IN (` + placeholders + `)
		GROUP BY i.id`
	if matchAll {
		query += " HAVING COUNT(DISTINCT it.tag_id) = ?"
		args = append(args, len(tagIDs))
	}
	query += " ORDER BY i.timestamp DESC"

	return s.scanItems(ctx, query, args...)
}
