package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTag_CRUD(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	tag := &Tag{Name: "work", Description: "work stuff", Color: "#ff0000"}
	require.NoError(t, st.CreateTag(ctx, tag))
	assert.Greater(t, tag.ID, int64(0))

	// Names are unique.
	err := st.CreateTag(ctx, &Tag{Name: "work"})
	assert.Error(t, err)

	tag.Name = "work-2026"
	tag.Color = "#00ff00"
	require.NoError(t, st.UpdateTag(ctx, tag))

	tags, err := st.Tags(ctx)
	require.NoError(t, err)
	require.Len(t, tags, 1)
	assert.Equal(t, "work-2026", tags[0].Name)
	assert.Equal(t, "#00ff00", tags[0].Color)

	require.NoError(t, st.DeleteTag(ctx, tag.ID))
	tags, err = st.Tags(ctx)
	require.NoError(t, err)
	assert.Empty(t, tags)
}

func TestItemTags(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	item := insertText(t, st, "tagged content", time.Now().UTC())
	tag := &Tag{Name: "snippets"}
	require.NoError(t, st.CreateTag(ctx, tag))

	require.NoError(t, st.AddItemTag(ctx, item.ID, tag.ID))
	// Re-adding the same assignment is a no-op, not an error.
	require.NoError(t, st.AddItemTag(ctx, item.ID, tag.ID))

	tags, err := st.ItemTags(ctx, item.ID)
	require.NoError(t, err)
	require.Len(t, tags, 1)
	assert.Equal(t, "snippets", tags[0].Name)

	require.NoError(t, st.RemoveItemTag(ctx, item.ID, tag.ID))
	tags, err = st.ItemTags(ctx, item.ID)
	require.NoError(t, err)
	assert.Empty(t, tags)
}

func TestItemTags_CascadeOnDelete(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	item := insertText(t, st, "cascade", time.Now().UTC())
	tag := &Tag{Name: "temp"}
	require.NoError(t, st.CreateTag(ctx, tag))
	require.NoError(t, st.AddItemTag(ctx, item.ID, tag.ID))

	// Deleting the tag clears its assignments but keeps the item.
	require.NoError(t, st.DeleteTag(ctx, tag.ID))
	tags, err := st.ItemTags(ctx, item.ID)
	require.NoError(t, err)
	assert.Empty(t, tags)

	_, err = st.GetItem(ctx, item.ID)
	assert.NoError(t, err)
}

func TestItemsByTags(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 8, 20, 8, 0, 0, 0, time.UTC)
	a := insertText(t, st, "has both", base)
	b := insertText(t, st, "has red only", base.Add(time.Minute))
	insertText(t, st, "untagged", base.Add(2*time.Minute))

	red := &Tag{Name: "red"}
	blue := &Tag{Name: "blue"}
	require.NoError(t, st.CreateTag(ctx, red))
	require.NoError(t, st.CreateTag(ctx, blue))

	require.NoError(t, st.AddItemTag(ctx, a.ID, red.ID))
	require.NoError(t, st.AddItemTag(ctx, a.ID, blue.ID))
	require.NoError(t, st.AddItemTag(ctx, b.ID, red.ID))

	// Any-of: both tagged items, newest first.
	items, err := st.ItemsByTags(ctx, []int64{red.ID, blue.ID}, false)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, b.ID, items[0].ID)
	assert.Equal(t, a.ID, items[1].ID)

	// All-of: only the doubly tagged item.
	items, err = st.ItemsByTags(ctx, []int64{red.ID, blue.ID}, true)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, a.ID, items[0].ID)
}
