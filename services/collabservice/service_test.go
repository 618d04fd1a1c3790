package collabservice

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coderoom-core/internal/eventbus"
	"coderoom-core/internal/session"
)

func newTestServer(t *testing.T) (*Service, *httptest.Server) {
	t.Helper()
	s, err := NewService(context.Background(), Config{DirectoryBackend: BackendMemory})
	require.NoError(t, err)
	srv := httptest.NewServer(s.httpServer.Handler())
	t.Cleanup(func() {
		s.Stop()
		srv.Close()
	})
	return s, srv
}

func wsURL(srv *httptest.Server, path string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + path
}

func dial(t *testing.T, srv *httptest.Server, userID string) *websocket.Conn {
	t.Helper()
	header := http.Header{}
	header.Set("X-User-ID", userID)
	header.Set("X-User-Name", strings.ToUpper(userID))
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "/ws"), header)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, event string, data interface{}) {
	t.Helper()
	msg, err := encode(event, data)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, msg))
}

// expect reads the next message and requires it to be event.
func expect(t *testing.T, conn *websocket.Conn, event string, into interface{}) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	var env Envelope
	require.NoError(t, json.Unmarshal(msg, &env))
	require.Equal(t, event, env.Event, "payload: %s", env.Data)
	if into != nil {
		require.NoError(t, json.Unmarshal(env.Data, into))
	}
}

func join(t *testing.T, conn *websocket.Conn, roomID, language string) session.RoomState {
	t.Helper()
	send(t, conn, EventJoin, map[string]string{"roomId": roomID, "language": language})
	var st session.RoomState
	expect(t, conn, session.EventRoomState, &st)
	return st
}

func TestRejectsAnonymousConnections(t *testing.T) {
	_, srv := newTestServer(t)

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv, "/ws"), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestIdentityFromQueryOnlyWhenAllowed(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/ws?user_id=u1&name=Ann&avatar=a.png", nil)
	_, ok := identify(r, false)
	assert.False(t, ok)

	user, ok := identify(r, true)
	require.True(t, ok)
	assert.Equal(t, session.User{ID: "u1", DisplayName: "Ann", Avatar: "a.png"}, user)

	r = httptest.NewRequest(http.MethodGet, "/ws?user_id=mallory", nil)
	r.Header.Set("X-User-ID", "u2")
	user, ok = identify(r, true)
	require.True(t, ok)
	assert.Equal(t, "u2", user.ID)
	assert.Equal(t, "u2", user.DisplayName)
}

func TestQueryIdentityRejectedByDefault(t *testing.T) {
	_, srv := newTestServer(t)

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv, "/ws?user_id=mallory"), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestRoomFlowOverWebsocket(t *testing.T) {
	_, srv := newTestServer(t)
	alice := dial(t, srv, "alice")
	bob := dial(t, srv, "bob")

	st := join(t, alice, "room-1", "Python")
	assert.Equal(t, "python", st.Language)
	assert.Contains(t, st.Content, "def main():")
	require.Len(t, st.Participants, 1)
	assert.Equal(t, "ALICE", st.Participants[0].DisplayName)

	st = join(t, bob, "room-1", "")
	assert.Equal(t, "python", st.Language)
	require.Len(t, st.Participants, 2)

	var joined session.UserJoined
	expect(t, alice, session.EventUserJoined, &joined)
	assert.Equal(t, "bob", joined.User.ID)

	initial := st.Content
	send(t, alice, EventCodeChange, map[string]interface{}{
		"roomId":    "room-1",
		"operation": map[string]interface{}{"type": "insert", "position": 0, "text": "#!\n"},
		"content":   "ignored",
	})
	var change session.CodeChange
	expect(t, bob, session.EventCodeChange, &change)
	assert.Equal(t, "#!\n"+initial, change.Content)
	assert.Equal(t, "alice", change.Operation.OriginID)

	// The submitter does not get its own edit back; the next thing it sees
	// is the chat it sends afterwards.
	send(t, alice, EventChatMessage, map[string]string{"roomId": "room-1", "message": "hi"})
	var chat session.ChatMessage
	expect(t, alice, session.EventChatMessage, &chat)
	assert.Equal(t, "hi", chat.Message)
	assert.NotEmpty(t, chat.ID)
	expect(t, bob, session.EventChatMessage, nil)

	send(t, bob, EventCursorUpdate, map[string]interface{}{
		"roomId": "room-1",
		"cursor": map[string]int{"line": 2, "column": 4},
	})
	var cursor session.CursorUpdate
	expect(t, alice, session.EventCursorUpdate, &cursor)
	assert.Equal(t, "bob", cursor.UserID)
	assert.Equal(t, 2, cursor.Cursor.Line)
	assert.Nil(t, cursor.Selection)

	send(t, bob, EventLanguageChange, map[string]string{"roomId": "room-1", "language": "go"})
	var lang session.LanguageChange
	expect(t, bob, session.EventLanguageChange, &lang)
	assert.Equal(t, "go", lang.Language)
	expect(t, alice, session.EventLanguageChange, &lang)

	require.NoError(t, bob.Close())
	var left session.UserLeft
	expect(t, alice, session.EventUserLeft, &left)
	assert.Equal(t, "bob", left.UserID)
	assert.Len(t, left.Participants, 1)
}

func TestErrorsGoToSenderOnly(t *testing.T) {
	_, srv := newTestServer(t)
	alice := dial(t, srv, "alice")
	carol := dial(t, srv, "carol")
	join(t, alice, "room-err", "javascript")

	tests := []struct {
		name  string
		event string
		data  interface{}
		code  string
	}{
		{"unknown room", EventCursorUpdate, map[string]interface{}{"roomId": "nowhere", "cursor": map[string]int{}}, CodeRoomNotFound},
		{"not joined", EventChatMessage, map[string]string{"roomId": "room-err", "message": "x"}, CodeNotParticipant},
		{"bad room id", EventJoin, map[string]string{"roomId": "no spaces"}, CodeBadRequest},
		{"unknown language", EventJoin, map[string]string{"roomId": "room-2", "language": "cobol"}, CodeInvalidLanguage},
		{"bad operation", EventCodeChange, map[string]interface{}{
			"roomId":    "room-err",
			"operation": map[string]interface{}{"type": "move", "position": 0},
		}, CodeInvalidOperation},
		{"insert without text", EventCodeChange, map[string]interface{}{
			"roomId":    "room-err",
			"operation": map[string]interface{}{"type": "insert", "position": 0},
		}, CodeInvalidOperation},
		{"unknown event", "teleport", map[string]string{}, CodeBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			send(t, carol, tt.event, tt.data)
			var payload ErrorPayload
			expect(t, carol, EventError, &payload)
			assert.Equal(t, tt.code, payload.Code)
			assert.Equal(t, tt.event, payload.Event)
		})
	}

	// alice saw none of it: her next message is her own chat.
	send(t, alice, EventChatMessage, map[string]string{"roomId": "room-err", "message": "still here"})
	expect(t, alice, session.EventChatMessage, nil)
}

func TestExplicitLeaveDestroysRoom(t *testing.T) {
	s, srv := newTestServer(t)
	alice := dial(t, srv, "alice")
	join(t, alice, "room-leave", "")
	require.Equal(t, 1, s.registry.Len())

	send(t, alice, EventLeave, map[string]string{"roomId": "room-leave"})
	require.Eventually(t, func() bool { return s.registry.Len() == 0 }, 5*time.Second, 10*time.Millisecond)

	resp, err := http.Get(srv.URL + "/rooms/room-leave")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRoomEndpoints(t *testing.T) {
	_, srv := newTestServer(t)
	alice := dial(t, srv, "alice")
	join(t, alice, "room-http", "rust")
	send(t, alice, EventCodeChange, map[string]interface{}{
		"roomId":    "room-http",
		"operation": map[string]interface{}{"type": "delete", "position": 0, "length": 3},
	})
	// Round-trip a chat so the edit is known to be applied.
	send(t, alice, EventChatMessage, map[string]string{"roomId": "room-http", "message": "sync"})
	expect(t, alice, session.EventChatMessage, nil)

	resp, err := http.Get(srv.URL + "/rooms/room-http")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var snap session.Snapshot
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&snap))
	assert.Equal(t, "rust", snap.Language)
	assert.Equal(t, 1, snap.LogLength)
	require.Len(t, snap.Participants, 1)

	resp, err = http.Get(srv.URL + "/rooms/room-http/operations")
	require.NoError(t, err)
	defer resp.Body.Close()
	var ops struct {
		Operations []map[string]interface{} `json:"operations"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&ops))
	require.Len(t, ops.Operations, 1)
	assert.Equal(t, "delete", ops.Operations[0]["type"])

	resp, err = http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	var health map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(t, "ok", health["status"])
	assert.EqualValues(t, 1, health["rooms"])

	resp, err = http.Get(srv.URL + "/languages")
	require.NoError(t, err)
	defer resp.Body.Close()
	var langs struct {
		Default   string   `json:"default"`
		Languages []string `json:"languages"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&langs))
	assert.Equal(t, "javascript", langs.Default)
	assert.Contains(t, langs.Languages, "plaintext")
}

func TestActivityFeedFiltersByRoom(t *testing.T) {
	s, srv := newTestServer(t)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "/ws/activity?room_id=room-a"), nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return s.activity.Len() == 1 }, 5*time.Second, 10*time.Millisecond)

	s.activity.Publish(eventbus.NewEvent(eventbus.TypeRoomCreated, "test", "room-b", nil))
	s.activity.Publish(eventbus.NewEvent(eventbus.TypeRoomCreated, "test", "room-a", nil))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	var ev eventbus.Event
	require.NoError(t, json.Unmarshal(msg, &ev))
	assert.Equal(t, "room-a", ev.RoomID)
	assert.Equal(t, eventbus.TypeRoomCreated, ev.EventType)
}

func TestHubDropsUnknownConnections(t *testing.T) {
	h := NewHub(0)
	h.Send("missing", session.Event{Name: session.EventChatMessage, Data: "x"})
	assert.Equal(t, 0, h.Len())
}
