package store

import (
	"context"
	"sync"
	"time"
)

// Gateway serializes all access to the Store behind a single exclusive lock,
// giving every concurrent actor (client connections, the change watcher,
// thumbnail workers, the capture loop) a linearizable view. Correctness over
// parallelism: per-operation store cost is small next to the hashing and
// network I/O that happen outside the lock, and no lock is ever held across
// an I/O suspension point.
//
// The gateway never retries; storage errors propagate to the caller.
type Gateway struct {
	mu sync.Mutex
	st *Store
}

// NewGateway wraps st.
func NewGateway(st *Store) *Gateway {
	return &Gateway{st: st}
}

// InsertOrTouch looks up the item's content hash and either refreshes the
// existing row's timestamp (returning its id) or inserts a new row. The
// lookup and the write happen under one lock acquisition, which is what
// enforces hash uniqueness.
func (g *Gateway) InsertOrTouch(ctx context.Context, item *Item) (inserted bool, id int64, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	existing, found, err := g.st.LookupHash(ctx, item.DataHash)
	if err != nil {
		return false, 0, err
	}
	if found {
		if err := g.st.TouchItem(ctx, existing, time.Now()); err != nil {
			return false, 0, err
		}
		return false, existing, nil
	}
	if err := g.st.InsertItem(ctx, item); err != nil {
		return false, 0, err
	}
	return true, item.ID, nil
}

// EnforceRetention deletes the oldest items beyond maxItems and returns how
// many were removed.
func (g *Gateway) EnforceRetention(ctx context.Context, maxItems int) (int64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	total, err := g.st.TotalCount(ctx)
	if err != nil {
		return 0, err
	}
	overflow := int(total) - maxItems
	if overflow <= 0 {
		return 0, nil
	}
	return g.st.DeleteOldest(ctx, overflow)
}

func (g *Gateway) GetItem(ctx context.Context, id int64) (*Item, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.st.GetItem(ctx, id)
}

func (g *Gateway) History(ctx context.Context, q HistoryQuery) ([]Item, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.st.History(ctx, q)
}

func (g *Gateway) Search(ctx context.Context, query string, q HistoryQuery) ([]Item, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.st.Search(ctx, query, q)
}

func (g *Gateway) RecordPaste(ctx context.Context, itemID int64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.st.RecordPaste(ctx, itemID)
}

func (g *Gateway) RecentlyPasted(ctx context.Context, q HistoryQuery) ([]Item, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.st.RecentlyPasted(ctx, q)
}

func (g *Gateway) DeleteItem(ctx context.Context, id int64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.st.DeleteItem(ctx, id)
}

func (g *Gateway) UpdateItemName(ctx context.Context, id int64, name string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.st.UpdateItemName(ctx, id, name)
}

func (g *Gateway) SetSecret(ctx context.Context, id int64, secret bool, name string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.st.SetSecret(ctx, id, secret, name)
}

func (g *Gateway) SetFavorite(ctx context.Context, id int64, favorite bool) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.st.SetFavorite(ctx, id, favorite)
}

func (g *Gateway) SetThumbnail(ctx context.Context, id int64, thumb []byte) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.st.SetThumbnail(ctx, id, thumb)
}

func (g *Gateway) MaxID(ctx context.Context) (int64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.st.MaxID(ctx)
}

func (g *Gateway) ItemsInRange(ctx context.Context, after, upto int64) ([]Item, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.st.ItemsInRange(ctx, after, upto)
}

func (g *Gateway) TotalCount(ctx context.Context) (int64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.st.TotalCount(ctx)
}

func (g *Gateway) DeleteOldest(ctx context.Context, n int) (int64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.st.DeleteOldest(ctx, n)
}

func (g *Gateway) FileExtensions(ctx context.Context) ([]string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.st.FileExtensions(ctx)
}

func (g *Gateway) Tags(ctx context.Context) ([]Tag, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.st.Tags(ctx)
}

func (g *Gateway) CreateTag(ctx context.Context, t *Tag) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.st.CreateTag(ctx, t)
}

func (g *Gateway) UpdateTag(ctx context.Context, t *Tag) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.st.UpdateTag(ctx, t)
}

func (g *Gateway) DeleteTag(ctx context.Context, id int64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.st.DeleteTag(ctx, id)
}

func (g *Gateway) AddItemTag(ctx context.Context, itemID, tagID int64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.st.AddItemTag(ctx, itemID, tagID)
}

func (g *Gateway) RemoveItemTag(ctx context.Context, itemID, tagID int64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.st.RemoveItemTag(ctx, itemID, tagID)
}

func (g *Gateway) ItemTags(ctx context.Context, itemID int64) ([]Tag, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.st.ItemTags(ctx, itemID)
}

func (g *Gateway) ItemsByTags(ctx context.Context, tagIDs []int64, matchAll bool) ([]Item, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.st.ItemsByTags(ctx, tagIDs, matchAll)
}

// Close releases the store's resources. Taking the lock first means any
// in-flight operation finishes before shutdown proceeds.
func (g *Gateway) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.st.Close()
}
