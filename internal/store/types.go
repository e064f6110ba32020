package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Item type values. Image items carry their MIME type string ("image/png",
// "image/jpeg", ...) instead of a fixed constant.
const (
	TypeText       = "text"
	TypeURL        = "url"
	TypeFile       = "file"
	TypeScreenshot = "screenshot"
)

// Item is one clipboard-history record.
type Item struct {
	ID               int64
	Type             string
	Data             []byte
	DataHash         string
	Timestamp        time.Time // recency key; refreshed when a duplicate is recopied
	Name             string
	Thumbnail        []byte
	FormatType       string
	FormattedContent string
	IsSecret         bool
	IsFavorite       bool
}

// IsImage reports whether the item's payload is raster image bytes.
func (it *Item) IsImage() bool {
	return it.Type == TypeScreenshot || strings.HasPrefix(it.Type, "image/")
}

// Tag is a named label attachable to any number of items.
type Tag struct {
	ID          int64
	Name        string
	Description string
	Color       string
}

// PasteRecord notes that an item was pasted at a point in time. Append-only.
type PasteRecord struct {
	ID       int64
	ItemID   int64
	PastedAt time.Time
}

// HistoryQuery defines pagination and filters for history reads.
type HistoryQuery struct {
	Limit         int
	Offset        int
	SortOrder     string // "asc" or "desc" (default) over the recency timestamp
	Types         []string
	FavoritesOnly bool
}

// fileSeparator splits the metadata JSON block from the raw file bytes
// inside a file item's data blob. The packing avoids a second table for
// file payloads; every reader must split on this separator.
var fileSeparator = []byte("\n---FILE_CONTENT---\n")

// FileMetadata is the JSON block stored ahead of a file item's content.
type FileMetadata struct {
	FileName    string `json:"file_name"`
	Path        string `json:"path"`
	MimeType    string `json:"mime_type"`
	Size        int64  `json:"size"`
	IsDirectory bool   `json:"is_directory"`
}

// PackFileData builds a file item's data blob from metadata and raw bytes.
func PackFileData(meta FileMetadata, content []byte) ([]byte, error) {
	head, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("file metadata: %w", err)
	}
	blob := make([]byte, 0, len(head)+len(fileSeparator)+len(content))
	blob = append(blob, head...)
	blob = append(blob, fileSeparator...)
	blob = append(blob, content...)
	return blob, nil
}

// SplitFileData splits a file item's data blob into its metadata JSON and
// raw content bytes.
func SplitFileData(data []byte) (FileMetadata, []byte, error) {
	idx := bytes.Index(data, fileSeparator)
	if idx < 0 {
		return FileMetadata{}, nil, fmt.Errorf("file blob missing separator")
	}
	var meta FileMetadata
	if err := json.Unmarshal(data[:idx], &meta); err != nil {
		return FileMetadata{}, nil, fmt.Errorf("file metadata: %w", err)
	}
	return meta, data[idx+len(fileSeparator):], nil
}

// FileMetadataJSON returns just the metadata block of a file blob, for the
// client projection (raw file bytes never ride along on list reads).
func FileMetadataJSON(data []byte) (string, error) {
	idx := bytes.Index(data, fileSeparator)
	if idx < 0 {
		return "", fmt.Errorf("file blob missing separator")
	}
	return string(data[:idx]), nil
}
