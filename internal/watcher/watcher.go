// Package watcher polls the store for newly inserted items and pushes them
// to the broadcast hub. The store has no push mechanism; the range-based
// catch-up scan is what guarantees that a watcher that misses ticks under
// load still broadcasts every item exactly once, in id order.
package watcher

import (
	"context"
	"log/slog"
	"time"

	"go.klb.dev/clipstash/internal/message"
	"go.klb.dev/clipstash/internal/store"
)

// DefaultInterval is the poll period.
const DefaultInterval = 500 * time.Millisecond

// Store is the slice of the gateway the watcher reads.
type Store interface {
	MaxID(ctx context.Context) (int64, error)
	ItemsInRange(ctx context.Context, after, upto int64) ([]store.Item, error)
}

// Broadcaster fans a notification out to all connected clients.
type Broadcaster interface {
	Broadcast(*message.Response)
}

// Projector renders a stored item into its client-facing form.
type Projector interface {
	Project(ctx context.Context, it *store.Item) message.Item
}

// Watcher is the single poll loop tracking the last known item id.
type Watcher struct {
	store    Store
	hub      Broadcaster
	project  Projector
	interval time.Duration

	lastKnownID int64
}

// New creates a Watcher. interval falls back to DefaultInterval when
// non-positive.
func New(st Store, hub Broadcaster, project Projector, interval time.Duration) *Watcher {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Watcher{store: st, hub: hub, project: project, interval: interval}
}

// Run polls until ctx is cancelled. lastKnownID starts at the store's
// current max so pre-existing rows are not replayed; the initial read is
// retried on error rather than falling back to zero, which would replay the
// entire history as new_item. A store error during a tick is logged and the
// loop continues at the next interval.
func (w *Watcher) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		maxID, err := w.store.MaxID(ctx)
		if err == nil {
			w.lastKnownID = maxID
			break
		}
		slog.Error("watcher init read failed, retrying", "err", err)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}

	slog.Info("change watcher started", "interval", w.interval, "last_id", w.lastKnownID)

	for {
		select {
		case <-ctx.Done():
			slog.Info("change watcher stopped")
			return
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

// tick broadcasts every item in (lastKnownID, max] in ascending id order,
// then advances lastKnownID.
func (w *Watcher) tick(ctx context.Context) {
	maxID, err := w.store.MaxID(ctx)
	if err != nil {
		slog.Error("watcher max id read failed", "err", err)
		return
	}
	if maxID <= w.lastKnownID {
		return
	}

	items, err := w.store.ItemsInRange(ctx, w.lastKnownID, maxID)
	if err != nil {
		slog.Error("watcher range read failed", "after", w.lastKnownID, "upto", maxID, "err", err)
		return
	}

	for i := range items {
		projected := w.project.Project(ctx, &items[i])
		w.hub.Broadcast(&message.Response{Type: message.TypeNewItem, Item: &projected})
	}

	slog.Debug("watcher broadcast", "items", len(items), "last_id", maxID)
	w.lastKnownID = maxID
}
