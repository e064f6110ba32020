// Package ingest turns raw clipboard events into stored items.
//
// All three handlers share the same dedup contract: the content hash is
// computed outside the gateway lock, then a single InsertOrTouch call either
// refreshes an existing row's timestamp or inserts a new one. A byte-identical
// recopy never creates a second row.
package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"regexp"
	"strings"

	"go.klb.dev/clipstash/internal/message"
	"go.klb.dev/clipstash/internal/settings"
	"go.klb.dev/clipstash/internal/store"
)

// MaxFileSize caps regular file ingestion. Oversized files are rejected,
// not truncated.
const MaxFileSize = 100 * 1024 * 1024

// urlPattern classifies text containing a URL anywhere as a url item.
var urlPattern = regexp.MustCompile(`https?://[^\s]+`)

// Thumbnailer schedules asynchronous preview generation for image items.
type Thumbnailer interface {
	Submit(itemID int64, data []byte)
}

// Pipeline normalizes clipboard events and writes them through the gateway.
type Pipeline struct {
	gw       *store.Gateway
	thumbs   Thumbnailer
	settings *settings.Store
}

// New creates a Pipeline. thumbs may be nil to disable preview generation.
func New(gw *store.Gateway, thumbs Thumbnailer, st *settings.Store) *Pipeline {
	return &Pipeline{gw: gw, thumbs: thumbs, settings: st}
}

// Hash computes the content fingerprint used as the dedup key.
func Hash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// HandleEvent dispatches one clipboard event by its declared type.
func (p *Pipeline) HandleEvent(ctx context.Context, ev *message.EventData) error {
	switch {
	case ev.Type == "text":
		_, err := p.HandleText(ctx, ev.Content, ev.Format, ev.Rich)
		return err
	case ev.Type == "files" || ev.Type == "file":
		_, err := p.HandleFile(ctx, ev.Content)
		return err
	case ev.Type == store.TypeScreenshot:
		_, err := p.handleImageBytes(ctx, store.TypeScreenshot, ev.Content)
		return err
	case strings.HasPrefix(ev.Type, "image/"):
		_, err := p.handleImageBytes(ctx, ev.Type, ev.Content)
		return err
	default:
		slog.Warn("unknown clipboard event type, skipping", "type", ev.Type)
		return nil
	}
}

// HandleText stores a text clipboard event, classifying it as a url item
// when a URL appears anywhere in the text. On a duplicate only the timestamp
// is refreshed; the stored formatting of the first copy wins over later
// identical-text-but-different-formatting copies.
func (p *Pipeline) HandleText(ctx context.Context, text, formatType, formatted string) (*store.Item, error) {
	if text == "" {
		return nil, nil
	}

	itemType := store.TypeText
	if urlPattern.MatchString(text) {
		itemType = store.TypeURL
	}

	item := &store.Item{
		Type:             itemType,
		Data:             []byte(text),
		DataHash:         Hash([]byte(text)),
		FormatType:       formatType,
		FormattedContent: formatted,
	}

	inserted, id, err := p.gw.InsertOrTouch(ctx, item)
	if err != nil {
		return nil, fmt.Errorf("store text: %w", err)
	}
	if !inserted {
		slog.Debug("duplicate text recopied", "id", id)
		return nil, nil
	}

	p.applyRetention(ctx)
	slog.Debug("text item stored", "id", item.ID, "type", itemType, "bytes", len(item.Data))
	return item, nil
}

// HandleImage stores an image clipboard event. mimeSubtype may be a bare
// subtype ("png") or a full MIME type ("image/png"). payload is base64.
func (p *Pipeline) HandleImage(ctx context.Context, mimeSubtype, payload string) (*store.Item, error) {
	itemType := mimeSubtype
	if !strings.HasPrefix(itemType, "image/") {
		itemType = "image/" + itemType
	}
	return p.handleImageBytes(ctx, itemType, payload)
}

func (p *Pipeline) handleImageBytes(ctx context.Context, itemType, payload string) (*store.Item, error) {
	raw, err := message.DecodeBytes(payload)
	if err != nil {
		return nil, fmt.Errorf("image payload: %w", err)
	}
	if len(raw) == 0 {
		return nil, nil
	}

	item := &store.Item{
		Type:     itemType,
		Data:     raw,
		DataHash: Hash(raw),
	}

	inserted, id, err := p.gw.InsertOrTouch(ctx, item)
	if err != nil {
		return nil, fmt.Errorf("store image: %w", err)
	}
	if !inserted {
		slog.Debug("duplicate image recopied", "id", id)
		return nil, nil
	}

	// Fire-and-forget: a missing thumbnail never invalidates the item.
	if p.thumbs != nil {
		p.thumbs.Submit(item.ID, raw)
	}

	p.applyRetention(ctx)
	slog.Debug("image item stored", "id", item.ID, "type", itemType, "bytes", len(raw))
	return item, nil
}

// HandleFile stores each file or directory named by the newline-separated
// URI list as an independent item. Unreadable, missing, and oversized
// entries are logged and skipped; they never abort their siblings.
func (p *Pipeline) HandleFile(ctx context.Context, uris string) ([]store.Item, error) {
	var items []store.Item

	for _, line := range strings.Split(uris, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		path, err := uriToPath(line)
		if err != nil {
			slog.Warn("bad file URI, skipping", "uri", line, "err", err)
			continue
		}

		item, err := p.processFile(ctx, path)
		if err != nil {
			slog.Warn("file skipped", "path", path, "err", err)
			continue
		}
		if item != nil {
			items = append(items, *item)
		}
	}

	if len(items) > 0 {
		p.applyRetention(ctx)
	}
	return items, nil
}

// processFile ingests one resolved filesystem path. Returns nil, nil when
// the path deduplicated against an existing row.
func (p *Pipeline) processFile(ctx context.Context, path string) (*store.Item, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat: %w", err)
	}

	var meta store.FileMetadata
	var content []byte
	var hash string

	if info.IsDir() {
		// Directory contents are not read: a zero-byte placeholder entry,
		// hashed by the path string.
		meta = store.FileMetadata{
			FileName:    info.Name(),
			Path:        path,
			MimeType:    "inode/directory",
			IsDirectory: true,
		}
		hash = Hash([]byte(path))
	} else {
		if info.Size() > MaxFileSize {
			return nil, fmt.Errorf("file too large: %d bytes (max %d)", info.Size(), MaxFileSize)
		}
		content, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read: %w", err)
		}
		meta = store.FileMetadata{
			FileName: info.Name(),
			Path:     path,
			MimeType: inferMIME(info.Name(), content),
			Size:     info.Size(),
		}
		hash = Hash(content)
	}

	blob, err := store.PackFileData(meta, content)
	if err != nil {
		return nil, err
	}

	item := &store.Item{
		Type:     store.TypeFile,
		Data:     blob,
		DataHash: hash,
		Name:     meta.FileName,
	}

	inserted, id, err := p.gw.InsertOrTouch(ctx, item)
	if err != nil {
		return nil, fmt.Errorf("store file: %w", err)
	}
	if !inserted {
		slog.Debug("duplicate file recopied", "id", id, "path", path)
		return nil, nil
	}

	slog.Debug("file item stored", "id", item.ID, "path", path, "mime", meta.MimeType)
	return item, nil
}

// applyRetention trims the oldest overflow when the retention policy is on.
// Failures are logged, never propagated: retention is housekeeping, not part
// of the ingest contract.
func (p *Pipeline) applyRetention(ctx context.Context) {
	if p.settings == nil {
		return
	}
	r := p.settings.Retention()
	if !r.Enabled {
		return
	}
	deleted, err := p.gw.EnforceRetention(ctx, r.MaxItems)
	if err != nil {
		slog.Error("retention cleanup failed", "err", err)
		return
	}
	if deleted > 0 {
		slog.Info("retention cleanup", "deleted", deleted, "max_items", r.MaxItems)
	}
}

// uriToPath resolves a file:// URI (or a bare path) to a filesystem path.
func uriToPath(uri string) (string, error) {
	if !strings.Contains(uri, "://") {
		return uri, nil
	}
	u, err := url.Parse(uri)
	if err != nil {
		return "", err
	}
	if u.Scheme != "file" {
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Path == "" {
		return "", fmt.Errorf("empty path")
	}
	return u.Path, nil
}
