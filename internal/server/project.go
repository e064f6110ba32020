package server

import (
	"context"
	"log/slog"
	"time"

	"go.klb.dev/clipstash/internal/message"
	"go.klb.dev/clipstash/internal/store"
	"go.klb.dev/clipstash/internal/thumb"
)

// thumbnailCeiling bounds a projected thumbnail's size after base64
// encoding. Previews beyond this are omitted; the full content remains
// retrievable via get_full_image.
const thumbnailCeiling = 500 * 1024

// Project renders a stored item into its UI-safe form: decoded text for
// text/url, metadata JSON only for files (raw bytes never ride along on
// list reads), and a bounded thumbnail for images — synthesized and
// persisted on demand when an older item predates its preview.
func (s *Server) Project(ctx context.Context, it *store.Item) message.Item {
	out := message.Item{
		ID:               it.ID,
		Type:             it.Type,
		Timestamp:        it.Timestamp.UTC().Format(time.RFC3339Nano),
		Name:             it.Name,
		FormatType:       it.FormatType,
		FormattedContent: it.FormattedContent,
		IsSecret:         it.IsSecret,
		IsFavorite:       it.IsFavorite,
	}

	switch {
	case it.Type == store.TypeText || it.Type == store.TypeURL:
		out.Content = string(it.Data)

	case it.Type == store.TypeFile:
		meta, err := store.FileMetadataJSON(it.Data)
		if err != nil {
			slog.Warn("file item missing metadata block", "id", it.ID, "err", err)
			break
		}
		out.Content = meta

	case it.IsImage():
		out.Thumbnail = s.projectThumbnail(ctx, it)
	}

	return out
}

// projectThumbnail returns the item's thumbnail as base64, generating and
// persisting one on the fly when absent. First reads of items that predate
// thumbnails pay the synthesis cost once; later reads are cheap.
func (s *Server) projectThumbnail(ctx context.Context, it *store.Item) string {
	if len(it.Thumbnail) > 0 {
		if enc := message.EncodeBytes(it.Thumbnail); len(enc) <= thumbnailCeiling {
			return enc
		}
	}

	maxDim := s.opts.ThumbMaxDim
	if maxDim <= 0 {
		maxDim = thumb.DefaultMaxDim
	}
	generated, err := thumb.Generate(it.Data, maxDim)
	if err != nil {
		slog.Warn("on-demand thumbnail failed", "id", it.ID, "err", err)
		return ""
	}
	if err := s.gw.SetThumbnail(ctx, it.ID, generated); err != nil {
		slog.Error("thumbnail persist failed", "id", it.ID, "err", err)
	}

	enc := message.EncodeBytes(generated)
	if len(enc) > thumbnailCeiling {
		return ""
	}
	return enc
}

// projectAll renders a slice of stored items.
func (s *Server) projectAll(ctx context.Context, items []store.Item) []message.Item {
	out := make([]message.Item, len(items))
	for i := range items {
		out[i] = s.Project(ctx, &items[i])
	}
	return out
}
