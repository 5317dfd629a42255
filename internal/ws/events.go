package ws

import (
	"encoding/json"

	"messenger-service/internal/models"
)

// Wire-level event names. Clients depend on these exact strings.
const (
	EventOnlineUsers   = "getOnlineUsers"
	EventNewMessage    = "newMessage"
	EventTyping        = "typing"
	EventTypingStopped = "typingStopped"
	EventMessagesSeen  = "messagesSeen"
)

// Event is one protocol event: a wire name plus its payload. Frames are
// encoded as {"event": <name>, "data": <payload>}.
type Event struct {
	Name string `json:"event"`
	Data any    `json:"data"`
}

// Encode serializes the event to its wire frame.
func (e Event) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// ChatActivity is the payload of typing, typingStopped and messagesSeen.
type ChatActivity struct {
	ChatID int    `json:"chatId"`
	UserID string `json:"userId"`
}

// NewMessageEvent carries the full stored message.
func NewMessageEvent(msg models.Message) Event {
	return Event{Name: EventNewMessage, Data: msg}
}

// TypingEvent signals that a user started typing in a chat.
func TypingEvent(chatID int, userID string) Event {
	return Event{Name: EventTyping, Data: ChatActivity{ChatID: chatID, UserID: userID}}
}

// TypingStoppedEvent signals that a user stopped typing in a chat.
func TypingStoppedEvent(chatID int, userID string) Event {
	return Event{Name: EventTypingStopped, Data: ChatActivity{ChatID: chatID, UserID: userID}}
}

// MessagesSeenEvent signals that a user read the chat's messages.
func MessagesSeenEvent(chatID int, userID string) Event {
	return Event{Name: EventMessagesSeen, Data: ChatActivity{ChatID: chatID, UserID: userID}}
}

// OnlineUsersEvent carries the complete current online user set.
func OnlineUsersEvent(userIDs []string) Event {
	if userIDs == nil {
		userIDs = []string{}
	}
	return Event{Name: EventOnlineUsers, Data: userIDs}
}

// inboundFrame is a client-to-server frame; the payload stays raw until the
// event name selects a shape. The acting user is always the session identity,
// never a client-supplied field.
type inboundFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}
