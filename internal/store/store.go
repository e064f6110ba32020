// Package store implements the durable, content-addressed persistence layer
// for clipboard items, tags, and paste history, backed by SQLite.
//
// The raw Store is not safe for concurrent use; all callers go through the
// Gateway, which serializes every operation behind a single lock.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Store provides direct access to the SQLite database.
type Store struct {
	db *sql.DB

	// Prepared statements for the ingestion hot path.
	insertItem *sql.Stmt
	lookupHash *sql.Stmt
	touchItem  *sql.Stmt
	getItem    *sql.Stmt
}

const itemColumns = `id, type, data, data_hash, timestamp, name, thumbnail,
	format_type, formatted_content, is_secret, is_favorite`

// New creates a Store from an already-opened and migrated database.
func New(db *sql.DB) (*Store, error) {
	s := &Store{db: db}
	if err := s.prepareStatements(); err != nil {
		return nil, fmt.Errorf("prepare statements: %w", err)
	}
	return s, nil
}

func (s *Store) prepareStatements() error {
	var err error

	s.insertItem, err = s.db.Prepare(`
		INSERT INTO items (type, data, data_hash, timestamp, name,
			format_type, formatted_content, is_secret, is_favorite)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}

	s.lookupHash, err = s.db.Prepare(`SELECT id FROM items WHERE data_hash = ? LIMIT 1`)
	if err != nil {
		return err
	}

	s.touchItem, err = s.db.Prepare(`UPDATE items SET timestamp = ? WHERE id = ?`)
	if err != nil {
		return err
	}

	s.getItem, err = s.db.Prepare(`SELECT ` + itemColumns + ` FROM items WHERE id = ?`)
	if err != nil {
		return err
	}

	return nil
}

// tsLayout is the fixed-width form timestamps are stored in. SQLite orders
// TEXT columns lexicographically, so the fractional part must not trim
// trailing zeros the way RFC3339Nano does: "…05.5Z" would sort after
// "…05.51Z" and recency queries would mis-sort same-second neighbors.
const tsLayout = "2006-01-02T15:04:05.000000000Z07:00"

// formatTS renders a timestamp in the ISO-8601 form stored in the database.
func formatTS(t time.Time) string {
	return t.UTC().Format(tsLayout)
}

// parseTimestamp tries several common SQLite timestamp formats.
func parseTimestamp(s string) (time.Time, error) {
	formats := []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02T15:04:05Z",
		"2006-01-02 15:04:05",
	}
	for _, f := range formats {
		if t, err := time.Parse(f, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse timestamp: %s", s)
}

// InsertItem inserts a new item and populates its ID. The caller has already
// verified (under the gateway lock) that no row with the same hash exists.
func (s *Store) InsertItem(ctx context.Context, item *Item) error {
	if item.Timestamp.IsZero() {
		item.Timestamp = time.Now()
	}

	res, err := s.insertItem.ExecContext(ctx,
		item.Type, item.Data, item.DataHash, formatTS(item.Timestamp), item.Name,
		item.FormatType, item.FormattedContent, item.IsSecret, item.IsFavorite,
	)
	if err != nil {
		return fmt.Errorf("insert item: %w", err)
	}

	item.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("insert item id: %w", err)
	}
	return nil
}

// LookupHash returns the id of the item with the given content hash, if any.
func (s *Store) LookupHash(ctx context.Context, hash string) (int64, bool, error) {
	var id int64
	err := s.lookupHash.QueryRowContext(ctx, hash).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("lookup hash: %w", err)
	}
	return id, true, nil
}

// TouchItem refreshes an item's recency timestamp. Nothing else is updated:
// on a duplicate recopy the originally stored bytes and formatting win.
func (s *Store) TouchItem(ctx context.Context, id int64, at time.Time) error {
	if _, err := s.touchItem.ExecContext(ctx, formatTS(at), id); err != nil {
		return fmt.Errorf("touch item: %w", err)
	}
	return nil
}

// GetItem retrieves a single item by id, including data and thumbnail.
func (s *Store) GetItem(ctx context.Context, id int64) (*Item, error) {
	item, err := scanItem(s.getItem.QueryRowContext(ctx, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("item %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	return item, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (*Item, error) {
	var it Item
	var tsStr string
	var thumb []byte
	if err := row.Scan(
		&it.ID, &it.Type, &it.Data, &it.DataHash, &tsStr, &it.Name, &thumb,
		&it.FormatType, &it.FormattedContent, &it.IsSecret, &it.IsFavorite,
	); err != nil {
		return nil, err
	}
	it.Thumbnail = thumb
	it.Timestamp, _ = parseTimestamp(tsStr)
	return &it, nil
}

// scanItems executes a query and scans the results into an Item slice.
func (s *Store) scanItems(ctx context.Context, query string, args ...any) ([]Item, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query items: %w", err)
	}
	defer rows.Close()

	items := []Item{}
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		items = append(items, *it)
	}
	return items, rows.Err()
}

// filterClauses appends WHERE fragments for the optional history filters.
func filterClauses(q HistoryQuery, clauses []string, args []any) ([]string, []any) {
	if len(q.Types) > 0 {
		placeholders := strings.Repeat("?, ", len(q.Types))
		clauses = append(clauses, "type IN ("+placeholders[:len(placeholders)-2]+")")
		for _, t := range q.Types {
			args = append(args, t)
		}
	}
	if q.FavoritesOnly {
		clauses = append(clauses, "is_favorite = 1")
	}
	return clauses, args
}

// History returns items ordered by recency timestamp with pagination.
func (s *Store) History(ctx context.Context, q HistoryQuery) ([]Item, error) {
	if q.Limit <= 0 {
		q.Limit = 50
	}
	order := "DESC"
	if strings.EqualFold(q.SortOrder, "asc") {
		order = "ASC"
	}

	var clauses []string
	var args []any
	clauses, args = filterClauses(q, clauses, args)

	where := ""
	if len(clauses) > 0 {
		where = " WHERE " + strings.Join(clauses, " AND ")
	}

	query := `SELECT ` + itemColumns + ` FROM items` + where +
		" ORDER BY timestamp " + order + ", id " + order + " LIMIT ? OFFSET ?"
	args = append(args, q.Limit, q.Offset)

	return s.scanItems(ctx, query, args...)
}

// Search returns items whose text content or display name matches the query.
func (s *Store) Search(ctx context.Context, query string, q HistoryQuery) ([]Item, error) {
	if q.Limit <= 0 {
		q.Limit = 50
	}

	pattern := "%" + query + "%"
	clauses := []string{
		`(name LIKE ? OR (type IN ('text', 'url') AND CAST(data AS TEXT) LIKE ?))`,
	}
	args := []any{pattern, pattern}
	clauses, args = filterClauses(q, clauses, args)

	sqlQuery := `SELECT ` + itemColumns + ` FROM items WHERE ` +
		strings.Join(clauses, " AND ") +
		" ORDER BY timestamp DESC LIMIT ? OFFSET ?"
	args = append(args, q.Limit, q.Offset)

	return s.scanItems(ctx, sqlQuery, args...)
}

// RecordPaste appends a paste record for an item.
func (s *Store) RecordPaste(ctx context.Context, itemID int64) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO paste_history (item_id, pasted_timestamp) VALUES (?, ?)",
		itemID, formatTS(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("record paste: %w", err)
	}
	return nil
}

// RecentlyPasted returns items ordered by their most recent paste. An item
// pasted several times appears once, at its latest paste position.
func (s *Store) RecentlyPasted(ctx context.Context, q HistoryQuery) ([]Item, error) {
	if q.Limit <= 0 {
		q.Limit = 50
	}
	order := "DESC"
	if strings.EqualFold(q.SortOrder, "asc") {
		order = "ASC"
	}

	query := `
		SELECT i.id, i.type, i.data, i.data_hash, i.timestamp, i.name, i.thumbnail,
		       i.format_type, i.formatted_content, i.is_secret, i.is_favorite
		FROM paste_history p
		JOIN items i ON i.id = p.item_id
		GROUP BY i.id
		ORDER BY MAX(p.pasted_timestamp) ` + order + `
		LIMIT ? OFFSET ?`

	return s.scanItems(ctx, query, q.Limit, q.Offset)
}

// DeleteItem removes an item. Joins and paste records cascade.
func (s *Store) DeleteItem(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM items WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete item: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("item %d not found", id)
	}
	return nil
}

// UpdateItemName sets an item's display name.
func (s *Store) UpdateItemName(ctx context.Context, id int64, name string) error {
	return s.updateItemField(ctx, id, "name = ?", name)
}

// SetSecret sets the secret flag and, when name is non-empty, the display name.
func (s *Store) SetSecret(ctx context.Context, id int64, secret bool, name string) error {
	if name != "" {
		_, err := s.db.ExecContext(ctx,
			"UPDATE items SET is_secret = ?, name = ? WHERE id = ?", secret, name, id)
		if err != nil {
			return fmt.Errorf("update item: %w", err)
		}
		return nil
	}
	return s.updateItemField(ctx, id, "is_secret = ?", secret)
}

// SetFavorite sets the favorite flag.
func (s *Store) SetFavorite(ctx context.Context, id int64, favorite bool) error {
	return s.updateItemField(ctx, id, "is_favorite = ?", favorite)
}

// SetThumbnail stores a derived preview for an item.
func (s *Store) SetThumbnail(ctx context.Context, id int64, thumb []byte) error {
	return s.updateItemField(ctx, id, "thumbnail = ?", thumb)
}

func (s *Store) updateItemField(ctx context.Context, id int64, set string, v any) error {
	res, err := s.db.ExecContext(ctx, "UPDATE items SET "+set+" WHERE id = ?", v, id)
	if err != nil {
		return fmt.Errorf("update item: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("item %d not found", id)
	}
	return nil
}

// MaxID returns the highest item id, or 0 for an empty store.
func (s *Store) MaxID(ctx context.Context) (int64, error) {
	var max sql.NullInt64
	if err := s.db.QueryRowContext(ctx, "SELECT MAX(id) FROM items").Scan(&max); err != nil {
		return 0, fmt.Errorf("max id: %w", err)
	}
	return max.Int64, nil
}

// ItemsInRange returns items with after < id <= upto in ascending id order.
// This is the watcher's catch-up read.
func (s *Store) ItemsInRange(ctx context.Context, after, upto int64) ([]Item, error) {
	query := `SELECT ` + itemColumns + ` FROM items WHERE id > ? AND id <= ? ORDER BY id ASC`
	return s.scanItems(ctx, query, after, upto)
}

// TotalCount returns the number of stored items.
func (s *Store) TotalCount(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM items").Scan(&n); err != nil {
		return 0, fmt.Errorf("count items: %w", err)
	}
	return n, nil
}

// DeleteOldest removes the n oldest items by id and returns how many rows
// were deleted. Used by retention cleanup.
func (s *Store) DeleteOldest(ctx context.Context, n int) (int64, error) {
	if n <= 0 {
		return 0, nil
	}
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM items WHERE id IN (SELECT id FROM items ORDER BY id ASC LIMIT ?)", n)
	if err != nil {
		return 0, fmt.Errorf("retention delete: %w", err)
	}
	return res.RowsAffected()
}

// FileExtensions returns the distinct lowercase extensions across all file
// items, derived from each item's metadata block.
func (s *Store) FileExtensions(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT data FROM items WHERE type = ?", TypeFile)
	if err != nil {
		return nil, fmt.Errorf("query file items: %w", err)
	}
	defer rows.Close()

	set := make(map[string]struct{})
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan file item: %w", err)
		}
		meta, _, err := SplitFileData(data)
		if err != nil || meta.IsDirectory {
			continue
		}
		if ext := strings.ToLower(filepath.Ext(meta.FileName)); ext != "" {
			set[ext] = struct{}{}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	exts := make([]string, 0, len(set))
	for e := range set {
		exts = append(exts, e)
	}
	sort.Strings(exts)
	return exts, nil
}

// Close releases the prepared statements. The underlying *sql.DB is NOT
// closed — that is the caller's responsibility.
func (s *Store) Close() error {
	for _, stmt := range []*sql.Stmt{s.insertItem, s.lookupHash, s.touchItem, s.getItem} {
		if stmt != nil {
			stmt.Close()
		}
	}
	return nil
}
