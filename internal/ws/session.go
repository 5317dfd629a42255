package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/samber/lo"
	"go.opentelemetry.io/otel"

	"messenger-service/internal/observability"
	"messenger-service/internal/repositories"
)

// TokenVerifier resolves a bearer token to a verified user identity. The
// session manager never trusts raw client input for identity.
type TokenVerifier interface {
	Verify(token string) (string, error)
}

// ConnInfo captures per-connection metadata for observability events.
type ConnInfo struct {
	ConnID      string
	UserID      string
	DeviceID    string
	IP          string
	RequestID   string
	TraceID     string
	ConnectedAt time.Time
}

// SessionHandler owns the lifecycle of one client connection: handshake,
// identity binding, inbound event handling and teardown.
type SessionHandler struct {
	registry   *Registry
	dispatcher *Dispatcher
	chats      repositories.ConversationRepository
	messages   repositories.MessageRepository
	verifier   TokenVerifier
}

// NewSessionHandler constructs a SessionHandler.
func NewSessionHandler(registry *Registry, dispatcher *Dispatcher, chats repositories.ConversationRepository, messages repositories.MessageRepository, verifier TokenVerifier) *SessionHandler {
	return &SessionHandler{
		registry:   registry,
		dispatcher: dispatcher,
		chats:      chats,
		messages:   messages,
		verifier:   verifier,
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handle upgrades the connection, binds the verified identity and registers
// the client with the presence registry.
func (h *SessionHandler) Handle(c *gin.Context) {
	ctx, span := otel.Tracer("messenger-service/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	token := c.GetHeader("Authorization")
	if token == "" {
		token = c.Query("token")
		if token != "" {
			token = "Bearer " + token
		}
	}

	userID, err := h.verifyToken(token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	client := newClient(userID, conn)
	info := ConnInfo{
		ConnID:      client.connID,
		UserID:      userID,
		DeviceID:    observability.DeviceIDFromRequest(c.Request),
		IP:          observability.IPFromRequest(c.Request),
		RequestID:   observability.RequestIDFromRequest(c.Request),
		TraceID:     span.SpanContext().TraceID().String(),
		ConnectedAt: time.Now(),
	}

	h.registry.Register(userID, client)
	observability.IncWSActive()
	observability.IncWSEvent("ws_connect")
	publishSessionEvent(ctx, "ws_connect", info, "")

	go client.writePump()
	go h.readLoop(context.WithoutCancel(ctx), client, info)
}

func (h *SessionHandler) verifyToken(header string) (string, error) {
	parts := strings.Split(header, " ")
	if len(parts) == 2 {
		return h.verifier.Verify(parts[1])
	}
	return "", fmt.Errorf("invalid token")
}

// readLoop consumes inbound frames until the connection dies, then tears the
// session down. Teardown is unconditional and idempotent.
func (h *SessionHandler) readLoop(ctx context.Context, client *Client, info ConnInfo) {
	var closeReason string
	defer func() {
		h.registry.Unregister(client)
		client.close()
		client.conn.Close()
		observability.DecWSActive()
		observability.IncWSEvent("ws_disconnect")
		publishSessionEvent(ctx, "ws_disconnect", info, closeReason)
	}()

	client.conn.SetReadLimit(maxFrameSize)
	client.conn.SetReadDeadline(time.Now().Add(pongWait))
	client.conn.SetPongHandler(func(string) error {
		return client.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := client.conn.ReadMessage()
		if err != nil {
			closeReason = err.Error()
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				observability.IncWSEvent("ws_error")
				publishSessionEvent(ctx, "ws_error", info, closeReason)
			}
			return
		}

		var frame inboundFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			log.Printf("ws: invalid frame from user %s: %v", client.userID, err)
			continue
		}
		h.handleInbound(ctx, client, frame)
	}
}

// handleInbound processes one client action. Durable mutations complete (or
// fail) before any fan-out; ephemeral events fan out directly.
func (h *SessionHandler) handleInbound(ctx context.Context, client *Client, frame inboundFrame) {
	var req struct {
		ChatID int `json:"chatId"`
	}
	if err := json.Unmarshal(frame.Data, &req); err != nil {
		log.Printf("ws: invalid %s payload from user %s: %v", frame.Event, client.userID, err)
		return
	}

	switch frame.Event {
	case EventTyping:
		h.relayActivity(ctx, client, req.ChatID, TypingEvent(req.ChatID, client.userID))
	case EventTypingStopped:
		h.relayActivity(ctx, client, req.ChatID, TypingStoppedEvent(req.ChatID, client.userID))
	case EventMessagesSeen:
		h.markSeen(ctx, client, req.ChatID)
	default:
		log.Printf("ws: unknown inbound event %q from user %s", frame.Event, client.userID)
	}
}

// relayActivity fans an ephemeral event out to the chat's other
// participants. No durable state is involved.
func (h *SessionHandler) relayActivity(ctx context.Context, client *Client, chatID int, event Event) {
	participants, err := h.chats.Participants(ctx, chatID)
	if err != nil {
		log.Printf("ws: load participants for chat %d: %v", chatID, err)
		return
	}
	if !lo.Contains(participants, client.userID) {
		return
	}
	h.dispatcher.Deliver(event, lo.Without(participants, client.userID))
}

// markSeen records the read receipt, then notifies the other participants.
// A failed mutation suppresses the notification.
func (h *SessionHandler) markSeen(ctx context.Context, client *Client, chatID int) {
	participants, err := h.chats.Participants(ctx, chatID)
	if err != nil {
		log.Printf("ws: load participants for chat %d: %v", chatID, err)
		return
	}
	if !lo.Contains(participants, client.userID) {
		return
	}

	if _, err := h.messages.MarkRead(ctx, chatID, client.userID); err != nil {
		log.Printf("ws: mark read chat %d user %s: %v", chatID, client.userID, err)
		return
	}
	h.dispatcher.Deliver(MessagesSeenEvent(chatID, client.userID), lo.Without(participants, client.userID))
}

func publishSessionEvent(ctx context.Context, name string, info ConnInfo, reason string) {
	payload := map[string]interface{}{
		"ws": map[string]interface{}{
			"event":       name,
			"conn_id":     info.ConnID,
			"duration_ms": time.Since(info.ConnectedAt).Milliseconds(),
			"reason":      reason,
		},
		"identity": map[string]interface{}{
			"user_id":   info.UserID,
			"device_id": info.DeviceID,
			"ip":        info.IP,
		},
	}

	headers := observability.BuildHeaders(info.RequestID, info.TraceID)
	_ = observability.PublishEvent(ctx, "ws_events.sessions", observability.NewEnvelope("ws_events", name, payload), headers)
}
