package server

import (
	"context"
	"log/slog"

	"go.klb.dev/clipstash/internal/message"
	"go.klb.dev/clipstash/internal/settings"
	"go.klb.dev/clipstash/internal/store"
)

// dispatch maps one inbound request to exactly one handler. The returned
// response (possibly nil) goes to the requesting connection only; mutating
// handlers additionally broadcast through the hub so every client's view
// stays consistent without polling. Unknown actions are logged and silently
// ignored — deliberate permissiveness that tolerates client/server version
// skew.
func (s *Server) dispatch(ctx context.Context, c *conn, req *message.Request) *message.Response {
	switch req.Action {
	case message.ActionAuth:
		// Valid only as a TCP opening frame; harmless elsewhere.
		return nil
	case message.ActionGetHistory:
		return s.handleGetHistory(ctx, req)
	case message.ActionGetRecentlyPasted:
		return s.handleGetRecentlyPasted(ctx, req)
	case message.ActionRecordPaste:
		return s.handleRecordPaste(ctx, req)
	case message.ActionSearch:
		return s.handleSearch(ctx, req)
	case message.ActionGetItem:
		return s.handleGetItem(ctx, req)
	case message.ActionGetFullImage:
		return s.handleGetFullImage(ctx, req)
	case message.ActionDeleteItem:
		return s.handleDeleteItem(ctx, req)
	case message.ActionUpdateItemName:
		return s.handleUpdateItemName(ctx, req)
	case message.ActionToggleSecret:
		return s.handleToggleSecret(ctx, req)
	case message.ActionToggleFavorite:
		return s.handleToggleFavorite(ctx, req)
	case message.ActionGetTags:
		return s.handleGetTags(ctx)
	case message.ActionCreateTag:
		return s.handleCreateTag(ctx, req)
	case message.ActionUpdateTag:
		return s.handleUpdateTag(ctx, req)
	case message.ActionDeleteTag:
		return s.handleDeleteTag(ctx, req)
	case message.ActionAddItemTag:
		return s.handleItemTag(ctx, req, true)
	case message.ActionRemoveItemTag:
		return s.handleItemTag(ctx, req, false)
	case message.ActionGetItemTags:
		return s.handleGetItemTags(ctx, req)
	case message.ActionGetItemsByTags:
		return s.handleGetItemsByTags(ctx, req)
	case message.ActionGetFileExtensions:
		return s.handleGetFileExtensions(ctx)
	case message.ActionGetTotalCount:
		return s.handleGetTotalCount(ctx)
	case message.ActionUpdateRetention:
		return s.handleUpdateRetention(ctx, req)
	case message.ActionRegisterUIPID:
		return s.handleRegisterUIPID(req)
	case message.ActionClipboardEvent:
		return s.handleClipboardEvent(ctx, req)
	case message.ActionCaptureScreenshot:
		return s.handleCaptureScreenshot(ctx)
	case message.ActionShutdown:
		return s.handleShutdown(c)
	default:
		slog.Debug("unknown action ignored", "action", req.Action, "client", c.id)
		return nil
	}
}

// historyQuery builds the store query from pagination fields, defaulting the
// page size from settings.
func (s *Server) historyQuery(req *message.Request) store.HistoryQuery {
	q := store.HistoryQuery{
		Limit:     req.Limit,
		Offset:    req.Offset,
		SortOrder: req.SortOrder,
	}
	if q.Limit <= 0 {
		q.Limit = s.settings.MaxPageLength()
	}
	if req.Filters != nil {
		q.Types = req.Filters.Types
		q.FavoritesOnly = req.Filters.FavoritesOnly
	}
	return q
}

func (s *Server) handleGetHistory(ctx context.Context, req *message.Request) *message.Response {
	items, err := s.gw.History(ctx, s.historyQuery(req))
	if err != nil {
		return message.Errorf("get_history: %v", err)
	}
	return &message.Response{Type: message.TypeHistory, Items: s.projectAll(ctx, items)}
}

func (s *Server) handleGetRecentlyPasted(ctx context.Context, req *message.Request) *message.Response {
	items, err := s.gw.RecentlyPasted(ctx, s.historyQuery(req))
	if err != nil {
		return message.Errorf("get_recently_pasted: %v", err)
	}
	return &message.Response{Type: message.TypeRecentlyPasted, Items: s.projectAll(ctx, items)}
}

func (s *Server) handleRecordPaste(ctx context.Context, req *message.Request) *message.Response {
	if req.ID == 0 {
		return message.Errorf("record_paste: id is required")
	}
	if err := s.gw.RecordPaste(ctx, req.ID); err != nil {
		return message.Errorf("record_paste: %v", err)
	}
	return &message.Response{Type: message.TypePasteRecorded, ID: req.ID, Success: message.Bool(true)}
}

func (s *Server) handleSearch(ctx context.Context, req *message.Request) *message.Response {
	if req.Query == "" {
		return message.Errorf("search: query is required")
	}
	items, err := s.gw.Search(ctx, req.Query, s.historyQuery(req))
	if err != nil {
		return message.Errorf("search: %v", err)
	}
	return &message.Response{Type: message.TypeSearchResults, Items: s.projectAll(ctx, items)}
}

func (s *Server) handleGetItem(ctx context.Context, req *message.Request) *message.Response {
	if req.ItemID == 0 {
		return message.Errorf("get_item: item_id is required")
	}
	it, err := s.gw.GetItem(ctx, req.ItemID)
	if err != nil {
		return message.Errorf("get_item: %v", err)
	}
	projected := s.Project(ctx, it)
	return &message.Response{Type: message.TypeItem, Item: &projected}
}

// handleGetFullImage is the explicit full-content escape hatch: raw image
// bytes for image items, metadata plus raw bytes for file items.
func (s *Server) handleGetFullImage(ctx context.Context, req *message.Request) *message.Response {
	if req.ID == 0 {
		return message.Errorf("get_full_image: id is required")
	}
	it, err := s.gw.GetItem(ctx, req.ID)
	if err != nil {
		return message.Errorf("get_full_image: %v", err)
	}

	switch {
	case it.IsImage():
		return &message.Response{
			Type:     message.TypeFullImage,
			ID:       it.ID,
			Content:  message.EncodeBytes(it.Data),
			MimeType: it.Type,
		}
	case it.Type == store.TypeFile:
		meta, content, err := store.SplitFileData(it.Data)
		if err != nil {
			return message.Errorf("get_full_image: %v", err)
		}
		return &message.Response{
			Type:     message.TypeFullFile,
			ID:       it.ID,
			Name:     meta.FileName,
			MimeType: meta.MimeType,
			Content:  message.EncodeBytes(content),
		}
	default:
		return message.Errorf("get_full_image: item %d has no binary content", it.ID)
	}
}

func (s *Server) handleDeleteItem(ctx context.Context, req *message.Request) *message.Response {
	if req.ID == 0 {
		return message.Errorf("delete_item: id is required")
	}
	if err := s.gw.DeleteItem(ctx, req.ID); err != nil {
		return message.Errorf("delete_item: %v", err)
	}
	s.hub.Broadcast(&message.Response{Type: message.TypeItemDeleted, ID: req.ID})
	return nil
}

// broadcastItemUpdated re-reads and re-projects the item so every client
// sees the post-mutation state.
func (s *Server) broadcastItemUpdated(ctx context.Context, id int64) {
	it, err := s.gw.GetItem(ctx, id)
	if err != nil {
		slog.Error("item_updated broadcast read failed", "id", id, "err", err)
		return
	}
	projected := s.Project(ctx, it)
	s.hub.Broadcast(&message.Response{Type: message.TypeItemUpdated, Item: &projected})
}

func (s *Server) handleUpdateItemName(ctx context.Context, req *message.Request) *message.Response {
	if req.ItemID == 0 || req.Name == "" {
		return message.Errorf("update_item_name: item_id and name are required")
	}
	if err := s.gw.UpdateItemName(ctx, req.ItemID, req.Name); err != nil {
		return message.Errorf("update_item_name: %v", err)
	}
	s.broadcastItemUpdated(ctx, req.ItemID)
	return &message.Response{
		Type:    message.TypeItemNameUpdated,
		ItemID:  req.ItemID,
		Name:    req.Name,
		Success: message.Bool(true),
	}
}

func (s *Server) handleToggleSecret(ctx context.Context, req *message.Request) *message.Response {
	if req.ItemID == 0 || req.IsSecret == nil {
		return message.Errorf("toggle_secret: item_id and is_secret are required")
	}

	if *req.IsSecret && req.Name == "" {
		it, err := s.gw.GetItem(ctx, req.ItemID)
		if err != nil {
			return message.Errorf("toggle_secret: %v", err)
		}
		// A secret item must carry a display name: there is nothing else
		// safe to show for it.
		if it.Name == "" {
			return &message.Response{
				Type:    message.TypeSecretToggled,
				ItemID:  req.ItemID,
				Success: message.Bool(false),
				Error:   "a name is required to mark an item secret",
			}
		}
	}

	if err := s.gw.SetSecret(ctx, req.ItemID, *req.IsSecret, req.Name); err != nil {
		return message.Errorf("toggle_secret: %v", err)
	}
	s.broadcastItemUpdated(ctx, req.ItemID)
	return &message.Response{
		Type:    message.TypeSecretToggled,
		ItemID:  req.ItemID,
		Success: message.Bool(true),
	}
}

func (s *Server) handleToggleFavorite(ctx context.Context, req *message.Request) *message.Response {
	if req.ItemID == 0 || req.IsFavorite == nil {
		return message.Errorf("toggle_favorite: item_id and is_favorite are required")
	}
	if err := s.gw.SetFavorite(ctx, req.ItemID, *req.IsFavorite); err != nil {
		return message.Errorf("toggle_favorite: %v", err)
	}
	s.broadcastItemUpdated(ctx, req.ItemID)
	return &message.Response{
		Type:    message.TypeFavoriteToggled,
		ItemID:  req.ItemID,
		Success: message.Bool(true),
	}
}

func projectTags(tags []store.Tag) []message.Tag {
	out := make([]message.Tag, len(tags))
	for i, t := range tags {
		out[i] = message.Tag{ID: t.ID, Name: t.Name, Description: t.Description, Color: t.Color}
	}
	return out
}

func (s *Server) handleGetTags(ctx context.Context) *message.Response {
	tags, err := s.gw.Tags(ctx)
	if err != nil {
		return message.Errorf("get_tags: %v", err)
	}
	return &message.Response{Type: message.TypeTags, Tags: projectTags(tags)}
}

func (s *Server) handleCreateTag(ctx context.Context, req *message.Request) *message.Response {
	if req.Name == "" {
		return message.Errorf("create_tag: name is required")
	}
	t := &store.Tag{Name: req.Name, Description: req.Description, Color: req.Color}
	if err := s.gw.CreateTag(ctx, t); err != nil {
		return message.Errorf("create_tag: %v", err)
	}
	tag := message.Tag{ID: t.ID, Name: t.Name, Description: t.Description, Color: t.Color}
	return &message.Response{Type: message.TypeTagCreated, Tag: &tag, Success: message.Bool(true)}
}

func (s *Server) handleUpdateTag(ctx context.Context, req *message.Request) *message.Response {
	tagID := req.TagID
	if tagID == 0 {
		tagID = req.ID
	}
	if tagID == 0 || req.Name == "" {
		return message.Errorf("update_tag: tag id and name are required")
	}
	t := &store.Tag{ID: tagID, Name: req.Name, Description: req.Description, Color: req.Color}
	if err := s.gw.UpdateTag(ctx, t); err != nil {
		return message.Errorf("update_tag: %v", err)
	}
	tag := message.Tag{ID: t.ID, Name: t.Name, Description: t.Description, Color: t.Color}
	return &message.Response{Type: message.TypeTagUpdated, Tag: &tag, Success: message.Bool(true)}
}

func (s *Server) handleDeleteTag(ctx context.Context, req *message.Request) *message.Response {
	tagID := req.TagID
	if tagID == 0 {
		tagID = req.ID
	}
	if tagID == 0 {
		return message.Errorf("delete_tag: tag id is required")
	}
	if err := s.gw.DeleteTag(ctx, tagID); err != nil {
		return message.Errorf("delete_tag: %v", err)
	}
	return &message.Response{Type: message.TypeTagDeleted, TagID: tagID, Success: message.Bool(true)}
}

func (s *Server) handleItemTag(ctx context.Context, req *message.Request, add bool) *message.Response {
	if req.ItemID == 0 || req.TagID == 0 {
		return message.Errorf("item tag: item_id and tag_id are required")
	}

	var err error
	respType := message.TypeTagAdded
	if add {
		err = s.gw.AddItemTag(ctx, req.ItemID, req.TagID)
	} else {
		respType = message.TypeTagRemoved
		err = s.gw.RemoveItemTag(ctx, req.ItemID, req.TagID)
	}
	if err != nil {
		return message.Errorf("item tag: %v", err)
	}

	s.broadcastItemUpdated(ctx, req.ItemID)
	return &message.Response{
		Type:    respType,
		ItemID:  req.ItemID,
		TagID:   req.TagID,
		Success: message.Bool(true),
	}
}

func (s *Server) handleGetItemTags(ctx context.Context, req *message.Request) *message.Response {
	if req.ItemID == 0 {
		return message.Errorf("get_item_tags: item_id is required")
	}
	tags, err := s.gw.ItemTags(ctx, req.ItemID)
	if err != nil {
		return message.Errorf("get_item_tags: %v", err)
	}
	return &message.Response{Type: message.TypeItemTags, ItemID: req.ItemID, Tags: projectTags(tags)}
}

func (s *Server) handleGetItemsByTags(ctx context.Context, req *message.Request) *message.Response {
	if len(req.TagIDs) == 0 {
		return message.Errorf("get_items_by_tags: tag_ids is required")
	}
	items, err := s.gw.ItemsByTags(ctx, req.TagIDs, req.MatchAll)
	if err != nil {
		return message.Errorf("get_items_by_tags: %v", err)
	}
	return &message.Response{Type: message.TypeItemsByTags, Items: s.projectAll(ctx, items)}
}

func (s *Server) handleGetFileExtensions(ctx context.Context) *message.Response {
	exts, err := s.gw.FileExtensions(ctx)
	if err != nil {
		return message.Errorf("get_file_extensions: %v", err)
	}
	return &message.Response{Type: message.TypeFileExtensions, Extensions: exts}
}

func (s *Server) handleGetTotalCount(ctx context.Context) *message.Response {
	n, err := s.gw.TotalCount(ctx)
	if err != nil {
		return message.Errorf("get_total_count: %v", err)
	}
	return &message.Response{Type: message.TypeTotalCount, Count: n}
}

func (s *Server) handleUpdateRetention(ctx context.Context, req *message.Request) *message.Response {
	if req.Enabled == nil || req.MaxItems <= 0 {
		return message.Errorf("update_retention_settings: enabled and max_items are required")
	}

	policy := settings.Retention{Enabled: *req.Enabled, MaxItems: req.MaxItems}
	if err := s.settings.UpdateRetention(policy); err != nil {
		return message.Errorf("update_retention_settings: %v", err)
	}

	var deleted int64
	if req.DeleteCount > 0 {
		var err error
		deleted, err = s.gw.DeleteOldest(ctx, req.DeleteCount)
		if err != nil {
			return message.Errorf("update_retention_settings: %v", err)
		}
	}

	s.hub.Broadcast(&message.Response{
		Type:     message.TypeRetentionUpdated,
		Enabled:  policy.Enabled,
		MaxItems: policy.MaxItems,
		Deleted:  deleted,
	})
	return &message.Response{Type: message.TypeStatus, Success: message.Bool(true), Deleted: deleted}
}

func (s *Server) handleRegisterUIPID(req *message.Request) *message.Response {
	if req.PID <= 0 {
		return message.Errorf("register_ui_pid: pid is required")
	}
	s.uiPID.Store(int64(req.PID))
	slog.Info("ui pid registered", "pid", req.PID)
	return &message.Response{Type: message.TypeUIPIDRegistered, Success: message.Bool(true)}
}

// handleClipboardEvent ingests silently: the requester learns about the new
// item the same way every other client does, via the watcher's new_item
// broadcast.
func (s *Server) handleClipboardEvent(ctx context.Context, req *message.Request) *message.Response {
	if req.Data == nil {
		return message.Errorf("clipboard_event: data is required")
	}
	if err := s.pipeline.HandleEvent(ctx, req.Data); err != nil {
		slog.Error("clipboard event ingestion failed", "type", req.Data.Type, "err", err)
	}
	return nil
}

func (s *Server) handleCaptureScreenshot(ctx context.Context) *message.Response {
	if s.opts.Screenshot == nil {
		return message.Errorf("capture_screenshot: no capture tool configured")
	}
	data, err := s.opts.Screenshot.Capture(ctx)
	if err != nil {
		// Non-fatal: this capture cycle is simply skipped.
		slog.Warn("screenshot capture failed", "err", err)
		return &message.Response{Type: message.TypeStatus, Success: message.Bool(false), Error: err.Error()}
	}
	ev := &message.EventData{Type: store.TypeScreenshot, Content: message.EncodeBytes(data)}
	if err := s.pipeline.HandleEvent(ctx, ev); err != nil {
		slog.Error("screenshot ingestion failed", "err", err)
		return &message.Response{Type: message.TypeStatus, Success: message.Bool(false), Error: err.Error()}
	}
	return &message.Response{Type: message.TypeStatus, Success: message.Bool(true)}
}

func (s *Server) handleShutdown(c *conn) *message.Response {
	slog.Info("shutdown requested", "client", c.id)
	// Queue the ack before tripping the shutdown path so the writer has a
	// chance to flush it.
	c.Send(&message.Response{Type: message.TypeShutdownAck, Success: message.Bool(true)})
	if s.opts.RequestShutdown != nil {
		go s.opts.RequestShutdown()
	}
	return nil
}
