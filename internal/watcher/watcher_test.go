package watcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.klb.dev/clipstash/internal/message"
	"go.klb.dev/clipstash/internal/store"
)

// memStore is an in-memory Store stand-in with injectable failures. The
// mutex matters only for tests that exercise Run concurrently.
type memStore struct {
	mu         sync.Mutex
	items      []store.Item // ids are 1-based positions
	maxErr     error
	maxIDCalls int
}

func (m *memStore) MaxID(context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.maxIDCalls++
	if m.maxErr != nil {
		return 0, m.maxErr
	}
	return int64(len(m.items)), nil
}

func (m *memStore) ItemsInRange(_ context.Context, after, upto int64) ([]store.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []store.Item
	for _, it := range m.items {
		if it.ID > after && it.ID <= upto {
			out = append(out, it)
		}
	}
	return out, nil
}

func (m *memStore) add(content string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := int64(len(m.items) + 1)
	m.items = append(m.items, store.Item{ID: id, Type: store.TypeText, Data: []byte(content)})
}

func (m *memStore) setErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.maxErr = err
}

func (m *memStore) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.maxIDCalls
}

// collectHub records broadcast responses.
type collectHub struct {
	mu  sync.Mutex
	got []*message.Response
}

func (h *collectHub) Broadcast(msg *message.Response) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.got = append(h.got, msg)
}

func (h *collectHub) snapshot() []*message.Response {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]*message.Response(nil), h.got...)
}

// passProjector projects without a server.
type passProjector struct{}

func (passProjector) Project(_ context.Context, it *store.Item) message.Item {
	return message.Item{ID: it.ID, Type: it.Type, Content: string(it.Data)}
}

func newTestWatcher(st Store, h Broadcaster) *Watcher {
	return New(st, h, passProjector{}, 0)
}

func TestTick_BroadcastsNewItemsInOrder(t *testing.T) {
	st := &memStore{}
	h := &collectHub{}
	w := newTestWatcher(st, h)
	ctx := context.Background()

	st.add("pre-existing")
	w.lastKnownID, _ = st.MaxID(ctx)

	st.add("first")
	st.add("second")
	st.add("third")
	w.tick(ctx)

	require.Len(t, h.got, 3, "one broadcast per new item")
	for i, want := range []string{"first", "second", "third"} {
		assert.Equal(t, message.TypeNewItem, h.got[i].Type)
		require.NotNil(t, h.got[i].Item)
		assert.Equal(t, want, h.got[i].Item.Content, "ascending id order")
	}
}

func TestTick_NoChanges(t *testing.T) {
	st := &memStore{}
	h := &collectHub{}
	w := newTestWatcher(st, h)
	ctx := context.Background()

	st.add("only")
	w.lastKnownID = 1

	w.tick(ctx)
	assert.Empty(t, h.got)
}

func TestTick_ExactlyOnce(t *testing.T) {
	st := &memStore{}
	h := &collectHub{}
	w := newTestWatcher(st, h)
	ctx := context.Background()

	st.add("a")
	w.tick(ctx)
	w.tick(ctx)
	w.tick(ctx)

	assert.Len(t, h.got, 1, "an item is broadcast exactly once across ticks")
}

func TestTick_ErrorSkipsAndRetries(t *testing.T) {
	st := &memStore{}
	h := &collectHub{}
	w := newTestWatcher(st, h)
	ctx := context.Background()

	st.add("a")
	st.maxErr = errors.New("db busy")
	w.tick(ctx)
	assert.Empty(t, h.got, "a failed tick broadcasts nothing")
	assert.Equal(t, int64(0), w.lastKnownID, "failed tick must not advance the cursor")

	st.maxErr = nil
	w.tick(ctx)
	assert.Len(t, h.got, 1, "next tick catches up")
}

func TestTick_CatchUpAfterBurst(t *testing.T) {
	st := &memStore{}
	h := &collectHub{}
	w := newTestWatcher(st, h)
	ctx := context.Background()

	// Many inserts between two ticks: all are still delivered.
	for i := 0; i < 25; i++ {
		st.add(fmt.Sprintf("burst-%d", i))
	}
	w.tick(ctx)

	require.Len(t, h.got, 25)
	assert.Equal(t, "burst-0", h.got[0].Item.Content)
	assert.Equal(t, "burst-24", h.got[24].Item.Content)
	assert.Equal(t, int64(25), w.lastKnownID)
}

func TestRun_RetriesInitReadWithoutReplay(t *testing.T) {
	st := &memStore{maxErr: errors.New("database is locked")}
	st.add("old one")
	st.add("old two")
	h := &collectHub{}
	w := New(st, h, passProjector{}, 2*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return st.calls() >= 3 },
		time.Second, time.Millisecond, "init read keeps retrying while the store errors")
	assert.Empty(t, h.snapshot(), "pre-existing rows are never replayed, even when init fails")

	st.setErr(nil)
	time.Sleep(25 * time.Millisecond) // let the init read land before adding rows
	st.add("fresh")

	require.Eventually(t, func() bool { return len(h.snapshot()) == 1 },
		time.Second, time.Millisecond)
	got := h.snapshot()
	assert.Equal(t, "fresh", got[0].Item.Content, "only rows after the recovered init are broadcast")

	cancel()
	<-done
}
