// Package capture feeds the local system clipboard into the ingestion
// pipeline, so the daemon records copies even when no UI client is running.
package capture

import (
	"context"
	"fmt"
	"log/slog"

	"golang.design/x/clipboard"

	"go.klb.dev/clipstash/internal/ingest"
	"go.klb.dev/clipstash/internal/message"
)

// Monitor watches the system clipboard for text and image changes.
type Monitor struct {
	pipeline *ingest.Pipeline
}

// New initializes clipboard access. Initialization fails on headless hosts
// without a display server; callers should treat that as "run without local
// capture" rather than a fatal error.
func New(pipeline *ingest.Pipeline) (*Monitor, error) {
	if err := clipboard.Init(); err != nil {
		return nil, fmt.Errorf("clipboard init: %w", err)
	}
	return &Monitor{pipeline: pipeline}, nil
}

// Run blocks until ctx is canceled, ingesting every clipboard change. The
// store's content hash handles dedup, including echoes of our own writes.
func (m *Monitor) Run(ctx context.Context) {
	textCh := clipboard.Watch(ctx, clipboard.FmtText)
	imageCh := clipboard.Watch(ctx, clipboard.FmtImage)
	slog.Info("local clipboard capture started")

	for {
		select {
		case <-ctx.Done():
			slog.Info("local clipboard capture stopped")
			return
		case data, ok := <-textCh:
			if !ok {
				textCh = nil
				continue
			}
			if _, err := m.pipeline.HandleText(ctx, string(data), "", ""); err != nil {
				slog.Error("clipboard text ingestion failed", "err", err)
			}
		case data, ok := <-imageCh:
			if !ok {
				imageCh = nil
				continue
			}
			// The library normalizes image reads to PNG.
			if _, err := m.pipeline.HandleImage(ctx, "png", message.EncodeBytes(data)); err != nil {
				slog.Error("clipboard image ingestion failed", "err", err)
			}
		}
	}
}
