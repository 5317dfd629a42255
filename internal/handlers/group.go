package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"messenger-service/internal/repositories"
	"messenger-service/internal/telemetry"
)

// GroupHandler manages group conversation endpoints. Membership and metadata
// mutations are restricted to the current creator.
type GroupHandler struct {
	chats repositories.ConversationRepository
	audit *telemetry.AuditEmitter
}

// NewGroupHandler constructs a GroupHandler.
func NewGroupHandler(chats repositories.ConversationRepository, audit *telemetry.AuditEmitter) *GroupHandler {
	return &GroupHandler{chats: chats, audit: audit}
}

// CreateGroup handles POST /groups.
func (h *GroupHandler) CreateGroup(c *gin.Context) {
	userID := c.GetString("userID")

	var req struct {
		Name        string   `json:"name" binding:"required"`
		Description string   `json:"description"`
		MemberIDs   []string `json:"member_ids"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.emitAudit(c, "ERROR", "invalid request payload")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	group, err := h.chats.CreateGroupChat(c.Request.Context(), userID, req.Name, req.Description, req.MemberIDs)
	if err != nil {
		if errors.Is(err, repositories.ErrGroupSize) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		h.emitAudit(c, "ERROR", "internal error")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create group"})
		return
	}

	h.emitAudit(c, "INFO", "Group created")
	c.JSON(http.StatusCreated, gin.H{"chat_id": group.ID})
}

// AddMembers adds users to a group; creator only.
func (h *GroupHandler) AddMembers(c *gin.Context) {
	chatID, ok := parseChatID(c)
	if !ok {
		return
	}

	var req struct {
		MemberIDs []string `json:"member_ids" binding:"required,min=1"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if !h.requireCreator(c, chatID) {
		return
	}

	if err := h.chats.AddParticipants(c.Request.Context(), chatID, req.MemberIDs); err != nil {
		switch {
		case errors.Is(err, repositories.ErrGroupSize), errors.Is(err, repositories.ErrNotGroup):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, repositories.ErrChatNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "group not found"})
		default:
			h.emitAudit(c, "ERROR", "internal error")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not add members"})
		}
		return
	}

	h.emitAudit(c, "INFO", "Group members added")
	c.Status(http.StatusNoContent)
}

// RemoveMember removes a user from a group; creator only.
func (h *GroupHandler) RemoveMember(c *gin.Context) {
	chatID, ok := parseChatID(c)
	if !ok {
		return
	}
	target := c.Param("user_id")
	if target == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}

	if !h.requireCreator(c, chatID) {
		return
	}

	if err := h.chats.RemoveParticipant(c.Request.Context(), chatID, target); err != nil {
		h.removalError(c, err)
		return
	}

	h.emitAudit(c, "INFO", "Group member removed")
	c.Status(http.StatusNoContent)
}

// LeaveGroup removes the caller from the group. When the caller is the
// creator, the role moves to the earliest remaining participant first.
func (h *GroupHandler) LeaveGroup(c *gin.Context) {
	chatID, ok := parseChatID(c)
	if !ok {
		return
	}

	userID := c.GetString("userID")
	member, err := h.chats.IsParticipant(c.Request.Context(), chatID, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "membership check failed"})
		return
	}
	if !member {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a member"})
		return
	}

	if err := h.chats.RemoveParticipant(c.Request.Context(), chatID, userID); err != nil {
		h.removalError(c, err)
		return
	}

	h.emitAudit(c, "INFO", "Left group")
	c.Status(http.StatusNoContent)
}

// UpdateGroup updates group name and description; creator only.
func (h *GroupHandler) UpdateGroup(c *gin.Context) {
	chatID, ok := parseChatID(c)
	if !ok {
		return
	}

	var req struct {
		Name        string `json:"name" binding:"required"`
		Description string `json:"description"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if !h.requireCreator(c, chatID) {
		return
	}

	if err := h.chats.UpdateGroupMeta(c.Request.Context(), chatID, req.Name, req.Description); err != nil {
		if errors.Is(err, repositories.ErrChatNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "group not found"})
			return
		}
		h.emitAudit(c, "ERROR", "internal error")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not update group"})
		return
	}

	h.emitAudit(c, "INFO", "Group updated")
	c.Status(http.StatusNoContent)
}

func (h *GroupHandler) requireCreator(c *gin.Context, chatID int) bool {
	userID := c.GetString("userID")
	chat, err := h.chats.GetChat(c.Request.Context(), chatID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repositories.ErrChatNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": "group not found"})
		return false
	}
	if !chat.IsGroup {
		c.JSON(http.StatusBadRequest, gin.H{"error": "not a group chat"})
		return false
	}
	if chat.Creator() != userID {
		h.emitAudit(c, "ERROR", "not allowed")
		c.JSON(http.StatusForbidden, gin.H{"error": "only the group creator may do this"})
		return false
	}
	return true
}

func (h *GroupHandler) removalError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, repositories.ErrChatNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "group not found"})
	case errors.Is(err, repositories.ErrNotGroup):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		h.emitAudit(c, "ERROR", "internal error")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not remove member"})
	}
}

func (h *GroupHandler) emitAudit(c *gin.Context, level, text string) {
	if h.audit == nil {
		return
	}
	h.audit.Emit(c.Request.Context(), level, text, requestIDFromContext(c), userIDFromContext(c))
}
