// Package thumb derives bounded-size preview images for image items on a
// small worker pool, off the ingestion path.
package thumb

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"log/slog"
	"sync"

	_ "image/gif"
	_ "image/jpeg"
	"image/png"

	"golang.org/x/image/draw"
)

const (
	// DefaultMaxDim is the default longest-side bound in pixels.
	DefaultMaxDim = 250

	// DefaultWorkers is the default pool size.
	DefaultWorkers = 2

	queueDepth = 64
)

// Store receives finished thumbnails. Satisfied by *store.Gateway.
type Store interface {
	SetThumbnail(ctx context.Context, id int64, thumb []byte) error
}

type task struct {
	itemID int64
	data   []byte
}

// Pool is a bounded thumbnail worker pool with a task queue. Submit returns
// immediately; results are written back through the store.
type Pool struct {
	store   Store
	maxDim  int
	tasks   chan task
	wg      sync.WaitGroup
	closeMu sync.Mutex
	closed  bool
}

// NewPool starts workers goroutines consuming the task queue. maxDim and
// workers fall back to defaults when non-positive.
func NewPool(store Store, workers, maxDim int) *Pool {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if maxDim <= 0 {
		maxDim = DefaultMaxDim
	}
	p := &Pool{
		store:  store,
		maxDim: maxDim,
		tasks:  make(chan task, queueDepth),
	}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	return p
}

// Submit queues thumbnail generation for an item. Non-blocking: if the
// queue is full the task is dropped with a warning — the item stays valid
// and the read path synthesizes the preview on demand.
func (p *Pool) Submit(itemID int64, data []byte) {
	p.closeMu.Lock()
	defer p.closeMu.Unlock()
	if p.closed {
		return
	}
	select {
	case p.tasks <- task{itemID: itemID, data: data}:
	default:
		slog.Warn("thumbnail queue full, dropping task", "item", itemID)
	}
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for t := range p.tasks {
		thumb, err := Generate(t.data, p.maxDim)
		if err != nil {
			// Decode failure is not an item failure; the thumbnail stays unset.
			slog.Warn("thumbnail generation failed", "item", t.itemID, "err", err)
			continue
		}
		if err := p.store.SetThumbnail(context.Background(), t.itemID, thumb); err != nil {
			slog.Error("thumbnail write failed", "item", t.itemID, "err", err)
		}
	}
}

// Shutdown stops accepting tasks and drains in-flight work, waiting no
// longer than the context allows.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.closeMu.Lock()
	if !p.closed {
		p.closed = true
		close(p.tasks)
	}
	p.closeMu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("thumbnail drain: %w", ctx.Err())
	}
}

// Generate decodes raw image bytes and returns a PNG preview whose longest
// side is at most maxDim pixels, aspect ratio preserved.
func Generate(data []byte, maxDim int) ([]byte, error) {
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("empty image")
	}

	tw, th := w, h
	if w > maxDim || h > maxDim {
		if w >= h {
			tw = maxDim
			th = h * maxDim / w
		} else {
			th = maxDim
			tw = w * maxDim / h
		}
		if tw < 1 {
			tw = 1
		}
		if th < 1 {
			th = 1
		}
	}

	dst := image.NewRGBA(image.Rect(0, 0, tw, th))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)

	var buf bytes.Buffer
	if err := png.Encode(&buf, dst); err != nil {
		return nil, fmt.Errorf("encode thumbnail: %w", err)
	}
	return buf.Bytes(), nil
}
