package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"

	"messenger-service/internal/blob"
	"messenger-service/internal/models"
	"messenger-service/internal/repositories"
	"messenger-service/internal/telemetry"
	"messenger-service/internal/ws"
)

// ChatHandler manages conversation and message endpoints.
type ChatHandler struct {
	chats      repositories.ConversationRepository
	messages   repositories.MessageRepository
	friends    repositories.FriendRequestRepository
	uploader   blob.Uploader
	dispatcher Dispatcher
	audit      *telemetry.AuditEmitter
}

// NewChatHandler builds a ChatHandler.
func NewChatHandler(chats repositories.ConversationRepository, messages repositories.MessageRepository, friends repositories.FriendRequestRepository, uploader blob.Uploader, dispatcher Dispatcher, audit *telemetry.AuditEmitter) *ChatHandler {
	return &ChatHandler{
		chats:      chats,
		messages:   messages,
		friends:    friends,
		uploader:   uploader,
		dispatcher: dispatcher,
		audit:      audit,
	}
}

// ListChats returns the conversations visible to the authenticated user.
func (h *ChatHandler) ListChats(c *gin.Context) {
	userID := c.GetString("userID")

	chats, err := h.chats.ListChats(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load chats"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"chats": chats})
}

// StartChat creates or returns the direct chat with a friend.
func (h *ChatHandler) StartChat(c *gin.Context) {
	var req struct {
		FriendID string `json:"friend_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := c.GetString("userID")
	if userID == req.FriendID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot chat with yourself"})
		return
	}

	friends, err := h.friends.AreFriends(c.Request.Context(), userID, req.FriendID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to validate friendship"})
		return
	}
	if !friends {
		c.JSON(http.StatusForbidden, gin.H{"error": "users are not friends"})
		return
	}

	chat, err := h.chats.CreateDirectChat(c.Request.Context(), userID, req.FriendID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create chat"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"chat_id": chat.ID})
}

// GetChatMessages returns the chat history in creation order.
func (h *ChatHandler) GetChatMessages(c *gin.Context) {
	chatID, ok := parseChatID(c)
	if !ok {
		return
	}

	userID := c.GetString("userID")
	member, err := h.chats.IsParticipant(c.Request.Context(), chatID, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to verify membership"})
		return
	}
	if !member {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a chat member"})
		return
	}

	page, limit := pagination(c)
	msgs, err := h.messages.ListMessages(c.Request.Context(), chatID, page, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load messages"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

// PostChatMessage stores a message, then notifies the other participants.
// The created message in the response is the sender's local echo; the
// broadcast deliberately excludes the sender.
func (h *ChatHandler) PostChatMessage(c *gin.Context) {
	chatID, ok := parseChatID(c)
	if !ok {
		return
	}

	userID := c.GetString("userID")
	chat, err := h.chats.GetChat(c.Request.Context(), chatID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repositories.ErrChatNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": "chat not found"})
		return
	}

	participants, err := h.chats.Participants(c.Request.Context(), chat.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load participants"})
		return
	}
	if !lo.Contains(participants, userID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a chat member"})
		return
	}

	body, attachments, ok := h.readMessageContent(c)
	if !ok {
		return
	}

	msg, err := h.messages.AppendMessage(c.Request.Context(), chatID, userID, body, attachments)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repositories.ErrChatNotFound) {
			status = http.StatusNotFound
		}
		h.emitAudit(c, "ERROR", "failed to store message")
		c.JSON(status, gin.H{"error": "failed to store message"})
		return
	}

	h.dispatcher.Deliver(ws.NewMessageEvent(msg), lo.Without(participants, userID))
	c.JSON(http.StatusCreated, msg)
}

// readMessageContent accepts either a JSON body or a multipart form with
// file attachments. A message must end up with text or at least one stored
// attachment; failed uploads only abort the request when no text remains.
func (h *ChatHandler) readMessageContent(c *gin.Context) (string, []models.Attachment, bool) {
	if c.ContentType() != "multipart/form-data" {
		var req struct {
			Body string `json:"body" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return "", nil, false
		}
		return req.Body, nil, true
	}

	body := c.PostForm("body")
	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid multipart form"})
		return "", nil, false
	}

	files := form.File["attachments"]
	if body == "" && len(files) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message needs text or attachments"})
		return "", nil, false
	}

	attachments := make([]models.Attachment, 0, len(files))
	for _, header := range files {
		file, err := header.Open()
		if err != nil {
			continue
		}
		att, err := h.uploader.Upload(c.Request.Context(), header.Filename, file)
		file.Close()
		if err != nil {
			h.emitAudit(c, "ERROR", "attachment upload failed")
			continue
		}
		attachments = append(attachments, att)
	}

	if body == "" && len(attachments) == 0 {
		c.JSON(http.StatusBadGateway, gin.H{"error": "attachment upload failed"})
		return "", nil, false
	}
	return body, attachments, true
}

// MarkSeen records the caller's read receipt for the whole chat, then
// notifies the other participants.
func (h *ChatHandler) MarkSeen(c *gin.Context) {
	chatID, ok := parseChatID(c)
	if !ok {
		return
	}

	userID := c.GetString("userID")
	participants, err := h.chats.Participants(c.Request.Context(), chatID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load participants"})
		return
	}
	if !lo.Contains(participants, userID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a chat member"})
		return
	}

	affected, err := h.messages.MarkRead(c.Request.Context(), chatID, userID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repositories.ErrChatNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": "failed to mark messages seen"})
		return
	}

	h.dispatcher.Deliver(ws.MessagesSeenEvent(chatID, userID), lo.Without(participants, userID))
	c.JSON(http.StatusOK, gin.H{"message_ids": affected})
}

func (h *ChatHandler) emitAudit(c *gin.Context, level, text string) {
	if h.audit == nil {
		return
	}
	h.audit.Emit(c.Request.Context(), level, text, requestIDFromContext(c), userIDFromContext(c))
}
