// Package message defines the clipstash client protocol.
//
// Every frame carries one JSON object. Inbound messages are Requests keyed
// by an "action" string; outbound messages are Responses keyed by a "type"
// string. Binary payloads (images, thumbnails) are base64-encoded so they
// are safe to embed in JSON strings.
package message

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// Action identifies an inbound request.
type Action string

const (
	ActionAuth              Action = "auth"
	ActionGetHistory        Action = "get_history"
	ActionGetRecentlyPasted Action = "get_recently_pasted"
	ActionRecordPaste       Action = "record_paste"
	ActionSearch            Action = "search"
	ActionGetItem           Action = "get_item"
	ActionGetFullImage      Action = "get_full_image"
	ActionDeleteItem        Action = "delete_item"
	ActionUpdateItemName    Action = "update_item_name"
	ActionToggleSecret      Action = "toggle_secret"
	ActionToggleFavorite    Action = "toggle_favorite"
	ActionGetTags           Action = "get_tags"
	ActionCreateTag         Action = "create_tag"
	ActionUpdateTag         Action = "update_tag"
	ActionDeleteTag         Action = "delete_tag"
	ActionAddItemTag        Action = "add_item_tag"
	ActionRemoveItemTag     Action = "remove_item_tag"
	ActionGetItemTags       Action = "get_item_tags"
	ActionGetItemsByTags    Action = "get_items_by_tags"
	ActionGetFileExtensions Action = "get_file_extensions"
	ActionGetTotalCount     Action = "get_total_count"
	ActionUpdateRetention   Action = "update_retention_settings"
	ActionRegisterUIPID     Action = "register_ui_pid"
	ActionClipboardEvent    Action = "clipboard_event"
	ActionCaptureScreenshot Action = "capture_screenshot"
	ActionShutdown          Action = "shutdown"
)

// Type identifies an outbound response or broadcast.
type Type string

const (
	TypeHistory         Type = "history"
	TypeRecentlyPasted  Type = "recently_pasted"
	TypePasteRecorded   Type = "paste_recorded"
	TypeSearchResults   Type = "search_results"
	TypeItem            Type = "item"
	TypeFullImage       Type = "full_image"
	TypeFullFile        Type = "full_file"
	TypeItemNameUpdated Type = "item_name_updated"
	TypeSecretToggled   Type = "secret_toggled"
	TypeFavoriteToggled Type = "favorite_toggled"
	TypeTags            Type = "tags"
	TypeTagCreated      Type = "tag_created"
	TypeTagUpdated      Type = "tag_updated"
	TypeTagDeleted      Type = "tag_deleted"
	TypeTagAdded        Type = "tag_added"
	TypeTagRemoved      Type = "tag_removed"
	TypeItemTags        Type = "item_tags"
	TypeItemsByTags     Type = "items_by_tags"
	TypeFileExtensions  Type = "file_extensions"
	TypeTotalCount      Type = "total_count"
	TypeStatus          Type = "status"
	TypeUIPIDRegistered Type = "ui_pid_registered"
	TypeShutdownAck     Type = "shutdown_acknowledged"
	TypeError           Type = "error"

	// Broadcast-only types.
	TypeNewItem          Type = "new_item"
	TypeItemDeleted      Type = "item_deleted"
	TypeItemUpdated      Type = "item_updated"
	TypeRetentionUpdated Type = "retention_updated"
)

// Filters narrows history and search queries.
type Filters struct {
	Types         []string `json:"types,omitempty"`
	FavoritesOnly bool     `json:"favorites_only,omitempty"`
}

// EventData is the payload of a clipboard_event request.
type EventData struct {
	Type    string `json:"type"`             // "text", "files", or an image MIME type
	Content string `json:"content"`          // text, base64 image bytes, or newline-separated URIs
	Format  string `json:"format,omitempty"` // optional rich-text format identifier
	Rich    string `json:"rich,omitempty"`   // optional rich-text payload
}

// Request is the inbound envelope.
type Request struct {
	Action Action `json:"action"`

	ID     int64  `json:"id,omitempty"`
	ItemID int64  `json:"item_id,omitempty"`
	TagID  int64  `json:"tag_id,omitempty"`
	Name   string `json:"name,omitempty"`

	Limit     int      `json:"limit,omitempty"`
	Offset    int      `json:"offset,omitempty"`
	SortOrder string   `json:"sort_order,omitempty"`
	Query     string   `json:"query,omitempty"`
	Filters   *Filters `json:"filters,omitempty"`

	IsSecret   *bool `json:"is_secret,omitempty"`
	IsFavorite *bool `json:"is_favorite,omitempty"`

	Description string  `json:"description,omitempty"`
	Color       string  `json:"color,omitempty"`
	TagIDs      []int64 `json:"tag_ids,omitempty"`
	MatchAll    bool    `json:"match_all,omitempty"`

	Enabled     *bool `json:"enabled,omitempty"`
	MaxItems    int   `json:"max_items,omitempty"`
	DeleteCount int   `json:"delete_count,omitempty"`

	PID   int        `json:"pid,omitempty"`
	Token string     `json:"token,omitempty"`
	Data  *EventData `json:"data,omitempty"`
}

// Item is the client-facing projection of a stored item. Content carries
// the decoded text for text/url items and the metadata JSON for file items;
// for image items Thumbnail stands in and Content stays empty.
type Item struct {
	ID               int64  `json:"id"`
	Type             string `json:"type"`
	Content          string `json:"content"`
	Thumbnail        string `json:"thumbnail,omitempty"` // base64 PNG
	Timestamp        string `json:"timestamp"`
	Name             string `json:"name,omitempty"`
	FormatType       string `json:"format_type,omitempty"`
	FormattedContent string `json:"formatted_content,omitempty"`
	IsSecret         bool   `json:"is_secret"`
	IsFavorite       bool   `json:"is_favorite"`
}

// Tag is the client-facing tag record.
type Tag struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Color       string `json:"color,omitempty"`
}

// Response is the outbound envelope for both direct responses and broadcasts.
type Response struct {
	Type Type `json:"type"`

	Items []Item `json:"items,omitempty"`
	Item  *Item  `json:"item,omitempty"`

	Tags []Tag `json:"tags,omitempty"`
	Tag  *Tag  `json:"tag,omitempty"`

	ID         int64    `json:"id,omitempty"`
	ItemID     int64    `json:"item_id,omitempty"`
	TagID      int64    `json:"tag_id,omitempty"`
	Name       string   `json:"name,omitempty"`
	Content    string   `json:"content,omitempty"` // base64 for full_image; metadata+content for full_file
	MimeType   string   `json:"mime_type,omitempty"`
	Extensions []string `json:"extensions,omitempty"`
	Count      int64    `json:"count,omitempty"`
	Deleted    int64    `json:"deleted,omitempty"`
	Enabled    bool     `json:"enabled,omitempty"`
	MaxItems   int      `json:"max_items,omitempty"`

	Success *bool  `json:"success,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Bool returns a pointer to b, for the optional boolean envelope fields.
func Bool(b bool) *bool { return &b }

// Errorf builds an error Response addressed to a single connection.
func Errorf(format string, args ...any) *Response {
	return &Response{
		Type:    TypeError,
		Success: Bool(false),
		Error:   fmt.Sprintf(format, args...),
	}
}

// EncodeRequest serialises a request to JSON without a trailing newline.
func EncodeRequest(r *Request) ([]byte, error) { return json.Marshal(r) }

// DecodeRequest deserialises a request from raw JSON bytes.
func DecodeRequest(b []byte) (*Request, error) {
	var r Request
	if err := json.Unmarshal(b, &r); err != nil {
		return nil, fmt.Errorf("request decode: %w", err)
	}
	return &r, nil
}

// EncodeResponse serialises a response to JSON without a trailing newline.
func EncodeResponse(r *Response) ([]byte, error) { return json.Marshal(r) }

// DecodeResponse deserialises a response from raw JSON bytes.
func DecodeResponse(b []byte) (*Response, error) {
	var r Response
	if err := json.Unmarshal(b, &r); err != nil {
		return nil, fmt.Errorf("response decode: %w", err)
	}
	return &r, nil
}

// EncodeBytes base64-encodes a binary payload for embedding in a frame.
func EncodeBytes(b []byte) string { return base64.StdEncoding.EncodeToString(b) }

// DecodeBytes reverses EncodeBytes.
func DecodeBytes(s string) ([]byte, error) { return base64.StdEncoding.DecodeString(s) }
