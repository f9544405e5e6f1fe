// Messaging HTTP handlers
package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lancedesk/lancedesk/pkg/models"
	"github.com/lancedesk/lancedesk/pkg/service"
)

// MessagingHandler binds the messaging engine to HTTP routes. The caller's
// identity arrives in the X-User-ID header, resolved by an upstream gateway;
// no authentication happens here.
type MessagingHandler struct {
	messaging *service.MessagingService
	logger    *slog.Logger
}

// NewMessagingHandler creates a new messaging handler.
func NewMessagingHandler(messaging *service.MessagingService, logger *slog.Logger) *MessagingHandler {
	return &MessagingHandler{
		messaging: messaging,
		logger:    logger,
	}
}

// RegisterRoutes registers messaging routes.
func (h *MessagingHandler) RegisterRoutes(r *gin.RouterGroup) {
	conversations := r.Group("/conversations")
	{
		conversations.POST("", h.StartConversation)
		conversations.GET("", h.GetUserConversations)
		conversations.GET("/:id", h.GetConversation)
		conversations.GET("/:id/messages", h.GetConversationMessages)
		conversations.POST("/:id/messages", h.SendMessage)
		conversations.POST("/:id/read", h.MarkConversationAsRead)
		conversations.PUT("/:id/settings", h.UpdateConversationSettings)
	}

	messages := r.Group("/messages")
	{
		messages.GET("/search", h.SearchMessages)
		messages.GET("/stats", h.GetUserMessageStats)
		messages.PUT("/:id", h.EditMessage)
		messages.DELETE("/:id", h.DeleteMessage)
		messages.GET("/:id/reactions", h.GetMessageReactions)
		messages.POST("/:id/reactions", h.AddReaction)
		messages.DELETE("/:id/reactions/:emoji", h.RemoveReaction)
	}
}

// callerID reads the trusted caller identity from the X-User-ID header.
func callerID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.GetHeader("X-User-ID"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid X-User-ID header"})
		return 0, false
	}
	return id, true
}

func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": name + " must be a positive integer"})
		return 0, false
	}
	return id, true
}

// respondError maps engine errors onto HTTP statuses.
func (h *MessagingHandler) respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrNotParticipant):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrUserNotFound),
		errors.Is(err, service.ErrProjectNotFound),
		errors.Is(err, service.ErrConversationNotFound),
		errors.Is(err, service.ErrMessageNotFound),
		errors.Is(err, service.ErrReactionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrDuplicateReaction):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrEditWindowExpired):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	default:
		h.logger.Error("Messaging operation failed", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

// StartConversation starts (or returns) a conversation with another user
// POST /api/v1/conversations
func (h *MessagingHandler) StartConversation(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}

	var req models.StartConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	view, err := h.messaging.StartConversation(c.Request.Context(), userID, &req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// GetUserConversations lists the caller's conversations
// GET /api/v1/conversations?include_archived=true
func (h *MessagingHandler) GetUserConversations(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}

	includeArchived := c.Query("include_archived") == "true"
	views, err := h.messaging.GetUserConversations(c.Request.Context(), userID, includeArchived)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversations": views})
}

// GetConversation returns one conversation, or 404 if the caller is not a
// participant (existence is not revealed)
// GET /api/v1/conversations/:id
func (h *MessagingHandler) GetConversation(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}
	conversationID, ok := pathID(c, "id")
	if !ok {
		return
	}

	view, err := h.messaging.GetConversation(c.Request.Context(), userID, conversationID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if view == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
		return
	}
	c.JSON(http.StatusOK, view)
}

// GetConversationMessages returns a page of conversation history
// GET /api/v1/conversations/:id/messages?page=1&page_size=20
func (h *MessagingHandler) GetConversationMessages(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}
	conversationID, ok := pathID(c, "id")
	if !ok {
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	result, err := h.messaging.GetConversationMessages(c.Request.Context(), userID, conversationID, page, pageSize)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// SendMessage appends a message to a conversation
// POST /api/v1/conversations/:id/messages
func (h *MessagingHandler) SendMessage(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}
	conversationID, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req models.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	view, err := h.messaging.SendMessage(c.Request.Context(), userID, conversationID, &req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, view)
}

// MarkConversationAsRead advances the caller's read watermark
// POST /api/v1/conversations/:id/read
func (h *MessagingHandler) MarkConversationAsRead(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}
	conversationID, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req struct {
		LastMessageID *int64 `json:"last_message_id,omitempty"`
	}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	okRead, err := h.messaging.MarkConversationAsRead(c.Request.Context(), userID, conversationID, req.LastMessageID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": okRead})
}

// UpdateConversationSettings overwrites the caller's mute/archive/pin flags
// PUT /api/v1/conversations/:id/settings
func (h *MessagingHandler) UpdateConversationSettings(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}
	conversationID, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req models.ConversationSettingsUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	okUpdate, err := h.messaging.UpdateConversationSettings(c.Request.Context(), userID, conversationID, &req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": okUpdate})
}

// EditMessage rewrites one of the caller's own messages
// PUT /api/v1/messages/:id
func (h *MessagingHandler) EditMessage(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}
	messageID, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req struct {
		Content string `json:"content"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	view, err := h.messaging.EditMessage(c.Request.Context(), userID, messageID, req.Content)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// DeleteMessage soft-deletes one of the caller's own messages
// DELETE /api/v1/messages/:id
func (h *MessagingHandler) DeleteMessage(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}
	messageID, ok := pathID(c, "id")
	if !ok {
		return
	}

	deleted, err := h.messaging.DeleteMessage(c.Request.Context(), userID, messageID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if !deleted {
		c.JSON(http.StatusNotFound, gin.H{"error": "message not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// SearchMessages searches across the caller's conversations
// GET /api/v1/messages/search?query=&conversation_id=&type=&from=&to=&page=&page_size=
func (h *MessagingHandler) SearchMessages(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}

	filter := models.MessageSearchFilter{
		Query: c.Query("query"),
		Type:  c.Query("type"),
	}
	if v := c.Query("conversation_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "conversation_id must be an integer"})
			return
		}
		filter.ConversationID = &id
	}
	if v := c.Query("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "from must be RFC3339"})
			return
		}
		filter.FromDate = &t
	}
	if v := c.Query("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "to must be RFC3339"})
			return
		}
		filter.ToDate = &t
	}
	filter.Page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	filter.PageSize, _ = strconv.Atoi(c.DefaultQuery("page_size", "20"))

	views, err := h.messaging.SearchMessages(c.Request.Context(), userID, &filter)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": views})
}

// GetUserMessageStats aggregates the caller's messaging activity
// GET /api/v1/messages/stats
func (h *MessagingHandler) GetUserMessageStats(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}

	stats, err := h.messaging.GetUserMessageStats(c.Request.Context(), userID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// AddReaction adds an emoji reaction to a message
// POST /api/v1/messages/:id/reactions
func (h *MessagingHandler) AddReaction(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}
	messageID, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req struct {
		Emoji string `json:"emoji"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	view, err := h.messaging.AddReaction(c.Request.Context(), userID, messageID, req.Emoji)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// RemoveReaction removes the caller's emoji reaction from a message
// DELETE /api/v1/messages/:id/reactions/:emoji
func (h *MessagingHandler) RemoveReaction(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}
	messageID, ok := pathID(c, "id")
	if !ok {
		return
	}

	view, err := h.messaging.RemoveReaction(c.Request.Context(), userID, messageID, c.Param("emoji"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// GetMessageReactions returns a message's reactions grouped by emoji
// GET /api/v1/messages/:id/reactions
func (h *MessagingHandler) GetMessageReactions(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}
	messageID, ok := pathID(c, "id")
	if !ok {
		return
	}

	groups, err := h.messaging.GetMessageReactions(c.Request.Context(), userID, messageID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"reactions": groups})
}
