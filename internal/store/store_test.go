package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// openTestStore creates a migrated in-memory Store for testing.
func openTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:?_foreign_keys=on")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, NewMigrationRunner(db).Run())

	st, err := New(db)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	return st
}

func hashOf(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// insertText adds a text item and returns it with its id populated.
func insertText(t *testing.T, st *Store, content string, at time.Time) *Item {
	t.Helper()
	item := &Item{
		Type:      TypeText,
		Data:      []byte(content),
		DataHash:  hashOf([]byte(content)),
		Timestamp: at,
	}
	require.NoError(t, st.InsertItem(context.Background(), item))
	return item
}

func TestInsertItem_GetItem_Roundtrip(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	at := time.Date(2026, 8, 20, 10, 30, 0, 0, time.UTC)
	item := &Item{
		Type:             TypeText,
		Data:             []byte("hello world"),
		DataHash:         hashOf([]byte("hello world")),
		Timestamp:        at,
		Name:             "greeting",
		FormatType:       "html",
		FormattedContent: "<b>hello world</b>",
		IsFavorite:       true,
	}
	require.NoError(t, st.InsertItem(ctx, item))
	assert.Greater(t, item.ID, int64(0), "id should be populated")

	got, err := st.GetItem(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, item.ID, got.ID)
	assert.Equal(t, TypeText, got.Type)
	assert.Equal(t, []byte("hello world"), got.Data)
	assert.Equal(t, item.DataHash, got.DataHash)
	assert.True(t, at.Equal(got.Timestamp), "timestamp should survive the roundtrip")
	assert.Equal(t, "greeting", got.Name)
	assert.Equal(t, "html", got.FormatType)
	assert.Equal(t, "<b>hello world</b>", got.FormattedContent)
	assert.False(t, got.IsSecret)
	assert.True(t, got.IsFavorite)
}

func TestGetItem_NotFound(t *testing.T) {
	st := openTestStore(t)

	_, err := st.GetItem(context.Background(), 999)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestLookupHash_And_Touch(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	_, ok, err := st.LookupHash(ctx, hashOf([]byte("abc")))
	require.NoError(t, err)
	assert.False(t, ok, "unknown hash should miss")

	first := time.Date(2026, 8, 20, 9, 0, 0, 0, time.UTC)
	item := insertText(t, st, "abc", first)

	id, ok, err := st.LookupHash(ctx, item.DataHash)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, item.ID, id)

	later := first.Add(2 * time.Hour)
	require.NoError(t, st.TouchItem(ctx, id, later))

	got, err := st.GetItem(ctx, id)
	require.NoError(t, err)
	assert.True(t, later.Equal(got.Timestamp), "touch should refresh the timestamp")
	assert.Equal(t, []byte("abc"), got.Data, "touch must not alter content")
}

func TestDeletedIDsAreNotReused(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	a := insertText(t, st, "first", time.Now().UTC())
	require.NoError(t, st.DeleteItem(ctx, a.ID))

	b := insertText(t, st, "second", time.Now().UTC())
	assert.Greater(t, b.ID, a.ID, "ids must be monotonic even after deletes")
}

func TestHistory_OrderLimitOffset(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		insertText(t, st, fmt.Sprintf("item-%d", i), base.Add(time.Duration(i)*time.Minute))
	}

	// Default order: newest first.
	items, err := st.History(ctx, HistoryQuery{Limit: 3})
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, []byte("item-4"), items[0].Data)
	assert.Equal(t, []byte("item-2"), items[2].Data)

	items, err = st.History(ctx, HistoryQuery{Limit: 3, Offset: 3})
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, []byte("item-1"), items[0].Data)

	items, err = st.History(ctx, HistoryQuery{Limit: 2, SortOrder: "asc"})
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, []byte("item-0"), items[0].Data)
}

func TestHistory_Filters(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC()
	text := insertText(t, st, "plain", now)
	url := &Item{Type: TypeURL, Data: []byte("https://example.com"), DataHash: hashOf([]byte("u")), Timestamp: now}
	require.NoError(t, st.InsertItem(ctx, url))
	require.NoError(t, st.SetFavorite(ctx, text.ID, true))

	items, err := st.History(ctx, HistoryQuery{Types: []string{TypeURL}})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, url.ID, items[0].ID)

	items, err = st.History(ctx, HistoryQuery{FavoritesOnly: true})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, text.ID, items[0].ID)
}

func TestSearch(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC()
	insertText(t, st, "the quick brown fox", now)
	named := insertText(t, st, "unrelated", now.Add(time.Second))
	require.NoError(t, st.UpdateItemName(ctx, named.ID, "fox notes"))

	// Binary content must not match text queries.
	img := &Item{Type: "image/png", Data: []byte("fox-bytes"), DataHash: hashOf([]byte("i")), Timestamp: now}
	require.NoError(t, st.InsertItem(ctx, img))

	items, err := st.Search(ctx, "fox", HistoryQuery{Limit: 10})
	require.NoError(t, err)
	require.Len(t, items, 2)
	for _, it := range items {
		assert.NotEqual(t, img.ID, it.ID)
	}
}

func TestRecordPaste_RecentlyPasted(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	base := time.Now().UTC().Add(-time.Hour)
	a := insertText(t, st, "alpha", base)
	b := insertText(t, st, "beta", base.Add(time.Minute))
	insertText(t, st, "never pasted", base.Add(2*time.Minute))

	require.NoError(t, st.RecordPaste(ctx, a.ID))
	time.Sleep(5 * time.Millisecond)
	require.NoError(t, st.RecordPaste(ctx, b.ID))
	time.Sleep(5 * time.Millisecond)
	require.NoError(t, st.RecordPaste(ctx, a.ID))

	items, err := st.RecentlyPasted(ctx, HistoryQuery{Limit: 10})
	require.NoError(t, err)
	require.Len(t, items, 2, "only pasted items appear")
	assert.Equal(t, a.ID, items[0].ID, "most recently pasted first")
	assert.Equal(t, b.ID, items[1].ID)
}

func TestDeleteItem(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	item := insertText(t, st, "doomed", time.Now().UTC())
	require.NoError(t, st.RecordPaste(ctx, item.ID))

	require.NoError(t, st.DeleteItem(ctx, item.ID))
	_, err := st.GetItem(ctx, item.ID)
	assert.Error(t, err)

	err = st.DeleteItem(ctx, item.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestSetSecret_WithName(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	item := insertText(t, st, "hunter2", time.Now().UTC())
	require.NoError(t, st.SetSecret(ctx, item.ID, true, "db password"))

	got, err := st.GetItem(ctx, item.ID)
	require.NoError(t, err)
	assert.True(t, got.IsSecret)
	assert.Equal(t, "db password", got.Name)
	assert.Equal(t, []byte("hunter2"), got.Data, "content stays intact")

	// Clearing the flag keeps the name.
	require.NoError(t, st.SetSecret(ctx, item.ID, false, ""))
	got, err = st.GetItem(ctx, item.ID)
	require.NoError(t, err)
	assert.False(t, got.IsSecret)
	assert.Equal(t, "db password", got.Name)
}

func TestMaxID_ItemsInRange(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	max, err := st.MaxID(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), max, "empty store")

	now := time.Now().UTC()
	a := insertText(t, st, "a", now)
	b := insertText(t, st, "b", now)
	c := insertText(t, st, "c", now)

	max, err = st.MaxID(ctx)
	require.NoError(t, err)
	assert.Equal(t, c.ID, max)

	items, err := st.ItemsInRange(ctx, a.ID, c.ID)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, b.ID, items[0].ID, "ascending id order")
	assert.Equal(t, c.ID, items[1].ID)
}

func TestDeleteOldest(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC()
	ids := make([]int64, 0, 5)
	for i := 0; i < 5; i++ {
		ids = append(ids, insertText(t, st, fmt.Sprintf("x%d", i), now).ID)
	}

	deleted, err := st.DeleteOldest(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(3), deleted)

	count, err := st.TotalCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	for _, id := range ids[:3] {
		_, err := st.GetItem(ctx, id)
		assert.Error(t, err, "oldest ids should be gone")
	}
	for _, id := range ids[3:] {
		_, err := st.GetItem(ctx, id)
		assert.NoError(t, err)
	}
}

func TestFileExtensions(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC()
	for i, name := range []string{"report.PDF", "notes.txt", "archive.pdf", "README"} {
		packed, err := PackFileData(FileMetadata{FileName: name, Path: "/tmp/" + name}, []byte("content"))
		require.NoError(t, err)
		item := &Item{
			Type:      TypeFile,
			Data:      packed,
			DataHash:  hashOf([]byte(fmt.Sprintf("f%d", i))),
			Timestamp: now,
		}
		require.NoError(t, st.InsertItem(ctx, item))
	}

	exts, err := st.FileExtensions(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{".pdf", ".txt"}, exts, "distinct, lowercased, sorted; extensionless skipped")
}

func TestFileData_PackSplit(t *testing.T) {
	meta := FileMetadata{FileName: "a.txt", Path: "/home/u/a.txt", MimeType: "text/plain", Size: 5}
	packed, err := PackFileData(meta, []byte("hello"))
	require.NoError(t, err)

	got, content, err := SplitFileData(packed)
	require.NoError(t, err)
	assert.Equal(t, meta, got)
	assert.Equal(t, []byte("hello"), content)

	_, _, err = SplitFileData([]byte("no separator here"))
	assert.Error(t, err)
}

func TestHistory_SubSecondOrdering(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	// Fractional seconds of different widths must still sort as times, not
	// as strings: "…05.5Z" is older than "…05.51Z".
	base := time.Date(2026, 8, 20, 12, 0, 5, 0, time.UTC)
	whole := insertText(t, st, "whole second", base)
	half := insertText(t, st, "half second", base.Add(500*time.Millisecond))
	halfPlus := insertText(t, st, "half plus ten ms", base.Add(510*time.Millisecond))

	items, err := st.History(ctx, HistoryQuery{Limit: 10, SortOrder: "desc"})
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, halfPlus.ID, items[0].ID)
	assert.Equal(t, half.ID, items[1].ID)
	assert.Equal(t, whole.ID, items[2].ID)
	assert.True(t, items[0].Timestamp.Equal(base.Add(510*time.Millisecond)), "stored timestamp survives the roundtrip")

	// A touch in the same second as the newest insert moves the touched
	// item to the top.
	require.NoError(t, st.TouchItem(ctx, whole.ID, base.Add(520*time.Millisecond)))
	items, err = st.History(ctx, HistoryQuery{Limit: 10, SortOrder: "desc"})
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, whole.ID, items[0].ID)
}
