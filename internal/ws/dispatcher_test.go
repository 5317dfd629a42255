package ws

import (
	"encoding/json"
	"reflect"
	"testing"

	"messenger-service/internal/models"
)

func TestDispatcherDeliverToOnlineRecipients(t *testing.T) {
	registry := NewRegistry()
	dispatcher := NewDispatcher(registry)

	alice := newClient("alice", nil)
	registry.Register("alice", alice)
	drain(alice)

	dispatcher.Deliver(TypingEvent(7, "bob"), []string{"alice", "offline-user"})

	frames := drain(alice)
	if len(frames) != 1 {
		t.Fatalf("expected one frame, got %d", len(frames))
	}
	name, data := decodeEvent(t, frames[0])
	if name != EventTyping {
		t.Fatalf("expected %s, got %s", EventTyping, name)
	}
	var activity ChatActivity
	if err := json.Unmarshal(data, &activity); err != nil {
		t.Fatalf("invalid payload: %v", err)
	}
	if activity.ChatID != 7 || activity.UserID != "bob" {
		t.Fatalf("unexpected payload %+v", activity)
	}
}

func TestDispatcherDeliverDeduplicatesRecipients(t *testing.T) {
	registry := NewRegistry()
	dispatcher := NewDispatcher(registry)

	alice := newClient("alice", nil)
	registry.Register("alice", alice)
	drain(alice)

	dispatcher.Deliver(TypingStoppedEvent(7, "bob"), []string{"alice", "alice"})

	if frames := drain(alice); len(frames) != 1 {
		t.Fatalf("expected one frame for duplicated recipient, got %d", len(frames))
	}
}

func TestDispatcherDeliverReachesEveryDevice(t *testing.T) {
	registry := NewRegistry()
	dispatcher := NewDispatcher(registry)

	phone := newClient("alice", nil)
	laptop := newClient("alice", nil)
	registry.Register("alice", phone)
	registry.Register("alice", laptop)
	drain(phone)
	drain(laptop)

	msg := models.Message{ID: 3, ChatID: 7, SenderID: "bob", Body: "hi"}
	dispatcher.Deliver(NewMessageEvent(msg), []string{"alice"})

	for _, client := range []*Client{phone, laptop} {
		frames := drain(client)
		if len(frames) != 1 {
			t.Fatalf("expected one frame per device, got %d", len(frames))
		}
		name, data := decodeEvent(t, frames[0])
		if name != EventNewMessage {
			t.Fatalf("expected %s, got %s", EventNewMessage, name)
		}
		var got models.Message
		if err := json.Unmarshal(data, &got); err != nil {
			t.Fatalf("invalid message payload: %v", err)
		}
		if got.ID != msg.ID || got.Body != msg.Body {
			t.Fatalf("unexpected message %+v", got)
		}
	}
}

func TestDispatcherBroadcast(t *testing.T) {
	registry := NewRegistry()
	dispatcher := NewDispatcher(registry)

	alice := newClient("alice", nil)
	bob := newClient("bob", nil)
	registry.Register("alice", alice)
	registry.Register("bob", bob)
	drain(alice)
	drain(bob)

	dispatcher.Broadcast(MessagesSeenEvent(7, "alice"))

	for _, client := range []*Client{alice, bob} {
		if frames := drain(client); len(frames) != 1 {
			t.Fatalf("expected broadcast frame, got %d", len(frames))
		}
	}
}

func TestOnlineUsersEventNeverNil(t *testing.T) {
	payload, err := OnlineUsersEvent(nil).Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	var frame struct {
		Event string   `json:"event"`
		Data  []string `json:"data"`
	}
	if err := json.Unmarshal(payload, &frame); err != nil {
		t.Fatalf("invalid frame: %v", err)
	}
	if frame.Event != EventOnlineUsers {
		t.Fatalf("expected %s, got %s", EventOnlineUsers, frame.Event)
	}
	if frame.Data == nil || !reflect.DeepEqual(frame.Data, []string{}) {
		t.Fatalf("expected empty array, got %v", frame.Data)
	}
}
