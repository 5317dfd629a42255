package ws_test

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"messenger-service/internal/mocks"
	"messenger-service/internal/ws"
)

// staticVerifier maps tokens to user ids without real JWT machinery.
type staticVerifier map[string]string

func (v staticVerifier) Verify(token string) (string, error) {
	if userID, ok := v[token]; ok {
		return userID, nil
	}
	return "", errors.New("unknown token")
}

type sessionFixture struct {
	server   *httptest.Server
	chats    *mocks.ConversationRepositoryMock
	messages *mocks.MessageRepositoryMock
}

func newSessionFixture(t *testing.T, tokens staticVerifier) *sessionFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	chats := new(mocks.ConversationRepositoryMock)
	messages := new(mocks.MessageRepositoryMock)

	registry := ws.NewRegistry()
	dispatcher := ws.NewDispatcher(registry)
	handler := ws.NewSessionHandler(registry, dispatcher, chats, messages, tokens)

	router := gin.New()
	router.GET("/ws", handler.Handle)

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return &sessionFixture{server: server, chats: chats, messages: messages}
}

func (f *sessionFixture) dial(t *testing.T, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/ws?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// awaitEvent reads frames until the wanted event arrives, skipping presence
// updates and anything else in between.
func awaitEvent(t *testing.T, conn *websocket.Conn, name string) json.RawMessage {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, raw, err := conn.ReadMessage()
		require.NoError(t, err)

		var frame struct {
			Event string          `json:"event"`
			Data  json.RawMessage `json:"data"`
		}
		require.NoError(t, json.Unmarshal(raw, &frame))
		if frame.Event == name {
			return frame.Data
		}
	}
	t.Fatalf("timed out waiting for %s", name)
	return nil
}

func TestSessionRejectsInvalidToken(t *testing.T) {
	fixture := newSessionFixture(t, staticVerifier{})

	url := "ws" + strings.TrimPrefix(fixture.server.URL, "http") + "/ws?token=bogus"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestSessionAnnouncesPresenceOnConnect(t *testing.T) {
	fixture := newSessionFixture(t, staticVerifier{"tok-alice": "alice"})

	conn := fixture.dial(t, "tok-alice")
	data := awaitEvent(t, conn, ws.EventOnlineUsers)

	var online []string
	require.NoError(t, json.Unmarshal(data, &online))
	require.Equal(t, []string{"alice"}, online)
}

func TestSessionRelaysTypingToOtherParticipants(t *testing.T) {
	fixture := newSessionFixture(t, staticVerifier{"tok-alice": "alice", "tok-bob": "bob"})
	fixture.chats.On("Participants", mock.Anything, 7).Return([]string{"alice", "bob"}, nil)

	alice := fixture.dial(t, "tok-alice")
	bob := fixture.dial(t, "tok-bob")
	awaitEvent(t, alice, ws.EventOnlineUsers)

	require.NoError(t, bob.WriteMessage(websocket.TextMessage, []byte(`{"event":"typing","data":{"chatId":7}}`)))

	data := awaitEvent(t, alice, ws.EventTyping)
	var activity ws.ChatActivity
	require.NoError(t, json.Unmarshal(data, &activity))
	require.Equal(t, 7, activity.ChatID)
	require.Equal(t, "bob", activity.UserID)
}

func TestSessionIgnoresTypingFromNonMember(t *testing.T) {
	fixture := newSessionFixture(t, staticVerifier{"tok-alice": "alice", "tok-eve": "eve"})
	fixture.chats.On("Participants", mock.Anything, 7).Return([]string{"alice", "bob"}, nil)

	alice := fixture.dial(t, "tok-alice")
	eve := fixture.dial(t, "tok-eve")
	awaitEvent(t, alice, ws.EventOnlineUsers)

	require.NoError(t, eve.WriteMessage(websocket.TextMessage, []byte(`{"event":"typing","data":{"chatId":7}}`)))
	require.NoError(t, eve.WriteMessage(websocket.TextMessage, []byte(`{"event":"typingStopped","data":{"chatId":7}}`)))

	// Only frames alice should see are presence updates.
	alice.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
	for {
		_, raw, err := alice.ReadMessage()
		if err != nil {
			break
		}
		var frame struct {
			Event string `json:"event"`
		}
		require.NoError(t, json.Unmarshal(raw, &frame))
		require.Equal(t, ws.EventOnlineUsers, frame.Event)
	}
}

func TestSessionMarksSeenBeforeNotifying(t *testing.T) {
	fixture := newSessionFixture(t, staticVerifier{"tok-alice": "alice", "tok-bob": "bob"})
	fixture.chats.On("Participants", mock.Anything, 7).Return([]string{"alice", "bob"}, nil)
	fixture.messages.On("MarkRead", mock.Anything, 7, "bob").Return([]int{11, 12}, nil).Once()

	alice := fixture.dial(t, "tok-alice")
	bob := fixture.dial(t, "tok-bob")
	awaitEvent(t, alice, ws.EventOnlineUsers)

	require.NoError(t, bob.WriteMessage(websocket.TextMessage, []byte(`{"event":"messagesSeen","data":{"chatId":7}}`)))

	data := awaitEvent(t, alice, ws.EventMessagesSeen)
	var activity ws.ChatActivity
	require.NoError(t, json.Unmarshal(data, &activity))
	require.Equal(t, "bob", activity.UserID)
	fixture.messages.AssertExpectations(t)
}

func TestSessionSuppressesSeenBroadcastOnFailedWrite(t *testing.T) {
	fixture := newSessionFixture(t, staticVerifier{"tok-alice": "alice", "tok-bob": "bob"})
	fixture.chats.On("Participants", mock.Anything, 7).Return([]string{"alice", "bob"}, nil)
	fixture.messages.On("MarkRead", mock.Anything, 7, "bob").Return(([]int)(nil), errors.New("db down"))

	alice := fixture.dial(t, "tok-alice")
	bob := fixture.dial(t, "tok-bob")
	awaitEvent(t, alice, ws.EventOnlineUsers)

	require.NoError(t, bob.WriteMessage(websocket.TextMessage, []byte(`{"event":"messagesSeen","data":{"chatId":7}}`)))

	alice.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
	for {
		_, raw, err := alice.ReadMessage()
		if err != nil {
			break
		}
		var frame struct {
			Event string `json:"event"`
		}
		require.NoError(t, json.Unmarshal(raw, &frame))
		require.NotEqual(t, ws.EventMessagesSeen, frame.Event)
	}
}

func TestSessionDisconnectUpdatesPresence(t *testing.T) {
	fixture := newSessionFixture(t, staticVerifier{"tok-alice": "alice", "tok-bob": "bob"})

	alice := fixture.dial(t, "tok-alice")
	bob := fixture.dial(t, "tok-bob")
	awaitEvent(t, alice, ws.EventOnlineUsers)

	bob.Close()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		data := awaitEvent(t, alice, ws.EventOnlineUsers)
		var online []string
		require.NoError(t, json.Unmarshal(data, &online))
		if len(online) == 1 && online[0] == "alice" {
			return
		}
	}
	t.Fatal("never saw bob leave the online set")
}
