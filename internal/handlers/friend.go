package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"messenger-service/internal/models"
	"messenger-service/internal/repositories"
	"messenger-service/internal/telemetry"
)

// FriendHandler manages the friend request workflow. Approving a request
// also opens the direct chat between the two users.
type FriendHandler struct {
	friends repositories.FriendRequestRepository
	chats   repositories.ConversationRepository
	audit   *telemetry.AuditEmitter
}

// NewFriendHandler builds a FriendHandler.
func NewFriendHandler(friends repositories.FriendRequestRepository, chats repositories.ConversationRepository, audit *telemetry.AuditEmitter) *FriendHandler {
	return &FriendHandler{friends: friends, chats: chats, audit: audit}
}

// SendRequest handles POST /friends/requests.
func (h *FriendHandler) SendRequest(c *gin.Context) {
	var req struct {
		ReceiverID string `json:"receiver_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := c.GetString("userID")
	if userID == req.ReceiverID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot friend yourself"})
		return
	}

	request, err := h.friends.Create(c.Request.Context(), userID, req.ReceiverID)
	if err != nil {
		switch {
		case errors.Is(err, repositories.ErrDuplicateRequest):
			c.JSON(http.StatusConflict, gin.H{"error": "request already pending"})
		case errors.Is(err, repositories.ErrAlreadyFriends):
			c.JSON(http.StatusConflict, gin.H{"error": "already friends"})
		case errors.Is(err, repositories.ErrBlocked):
			c.JSON(http.StatusForbidden, gin.H{"error": "user is blocked"})
		default:
			h.emitAudit(c, "ERROR", "internal error")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not send request"})
		}
		return
	}

	h.emitAudit(c, "INFO", "Friend request sent")
	c.JSON(http.StatusCreated, request)
}

// RespondRequest handles PATCH /friends/requests/:request_id. Only the
// receiver of a pending request may respond.
func (h *FriendHandler) RespondRequest(c *gin.Context) {
	requestID, ok := parseRequestID(c)
	if !ok {
		return
	}

	var req struct {
		Status string `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Status != models.RequestApproved && req.Status != models.RequestRejected {
		c.JSON(http.StatusBadRequest, gin.H{"error": "status must be approved or rejected"})
		return
	}

	userID := c.GetString("userID")
	request, err := h.friends.SetStatus(c.Request.Context(), requestID, userID, req.Status)
	if err != nil {
		if errors.Is(err, repositories.ErrRequestNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "request not found"})
			return
		}
		h.emitAudit(c, "ERROR", "internal error")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not update request"})
		return
	}

	if request.Status == models.RequestApproved {
		if _, err := h.chats.CreateDirectChat(c.Request.Context(), request.SenderID, request.ReceiverID); err != nil {
			h.emitAudit(c, "ERROR", "failed to open chat for new friends")
		}
	}

	h.emitAudit(c, "INFO", "Friend request "+request.Status)
	c.JSON(http.StatusOK, request)
}

// WithdrawRequest handles DELETE /friends/requests/:request_id. Only the
// sender of a pending request may withdraw it.
func (h *FriendHandler) WithdrawRequest(c *gin.Context) {
	requestID, ok := parseRequestID(c)
	if !ok {
		return
	}

	userID := c.GetString("userID")
	if err := h.friends.Withdraw(c.Request.Context(), requestID, userID); err != nil {
		if errors.Is(err, repositories.ErrRequestNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "request not found"})
			return
		}
		h.emitAudit(c, "ERROR", "internal error")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not withdraw request"})
		return
	}

	h.emitAudit(c, "INFO", "Friend request withdrawn")
	c.Status(http.StatusNoContent)
}

// IncomingRequests lists pending requests addressed to the caller.
func (h *FriendHandler) IncomingRequests(c *gin.Context) {
	userID := c.GetString("userID")
	page, limit := pagination(c)

	requests, err := h.friends.Incoming(c.Request.Context(), userID, page, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load requests"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"requests": requests})
}

// PendingRequests lists pending requests the caller has sent.
func (h *FriendHandler) PendingRequests(c *gin.Context) {
	userID := c.GetString("userID")
	page, limit := pagination(c)

	requests, err := h.friends.Pending(c.Request.Context(), userID, page, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load requests"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"requests": requests})
}

// ListFriends lists the caller's approved friends.
func (h *FriendHandler) ListFriends(c *gin.Context) {
	userID := c.GetString("userID")
	page, limit := pagination(c)

	friends, err := h.friends.Friends(c.Request.Context(), userID, page, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load friends"})
		return
	}
	if friends == nil {
		friends = []string{}
	}

	c.JSON(http.StatusOK, gin.H{"friends": friends})
}

// BlockUser blocks a friend; the friendship survives as a blocked record so
// the pair cannot chat or re-request until the blocker unblocks.
func (h *FriendHandler) BlockUser(c *gin.Context) {
	target := c.Param("user_id")
	userID := c.GetString("userID")
	if target == "" || target == userID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}

	if err := h.friends.Block(c.Request.Context(), userID, target); err != nil {
		switch {
		case errors.Is(err, repositories.ErrNotFriends):
			c.JSON(http.StatusNotFound, gin.H{"error": "users are not friends"})
		case errors.Is(err, repositories.ErrBlocked):
			c.JSON(http.StatusConflict, gin.H{"error": "already blocked"})
		default:
			h.emitAudit(c, "ERROR", "internal error")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not block user"})
		}
		return
	}

	h.emitAudit(c, "INFO", "User blocked")
	c.Status(http.StatusNoContent)
}

// UnblockUser restores a friendship the caller blocked earlier.
func (h *FriendHandler) UnblockUser(c *gin.Context) {
	target := c.Param("user_id")
	userID := c.GetString("userID")
	if target == "" || target == userID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}

	if err := h.friends.Unblock(c.Request.Context(), userID, target); err != nil {
		if errors.Is(err, repositories.ErrRequestNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "no block to lift"})
			return
		}
		h.emitAudit(c, "ERROR", "internal error")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not unblock user"})
		return
	}

	h.emitAudit(c, "INFO", "User unblocked")
	c.Status(http.StatusNoContent)
}

func parseRequestID(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("request_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request id"})
		return 0, false
	}
	return id, true
}

func (h *FriendHandler) emitAudit(c *gin.Context, level, text string) {
	if h.audit == nil {
		return
	}
	h.audit.Emit(c.Request.Context(), level, text, requestIDFromContext(c), userIDFromContext(c))
}
