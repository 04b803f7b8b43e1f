package api

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"velvetcode/internal/models"
)

func newWSServer(t *testing.T) (*httptest.Server, *Handlers) {
	t.Helper()
	h, _ := newTestHandlers(t, Deps{})
	r := chi.NewRouter()
	r.Get("/ws/room", h.CollabWS)
	r.Get("/ws/room/{id}", h.CollabWS)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, h
}

func dial(t *testing.T, srv *httptest.Server, path string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + path
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) models.InboundFrame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var frame models.InboundFrame
	require.NoError(t, conn.ReadJSON(&frame))
	return frame
}

func sendFrame(t *testing.T, conn *websocket.Conn, typ string, data interface{}) {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(models.InboundFrame{Type: typ, Data: raw}))
}

func TestCollabWSSession(t *testing.T) {
	srv, _ := newWSServer(t)

	alice := dial(t, srv, "/ws/room/r1")
	first := readFrame(t, alice)
	require.Equal(t, models.EventRoomState, first.Type)
	var st models.RoomState
	require.NoError(t, json.Unmarshal(first.Data, &st))
	require.NotNil(t, st.ActiveFileID)
	fileID := *st.ActiveFileID

	bob := dial(t, srv, "/ws/room")
	sendFrame(t, bob, models.EventJoinRoom, "r1")
	assert.Equal(t, models.EventRoomState, readFrame(t, bob).Type)
	assert.Equal(t, models.EventUserJoined, readFrame(t, alice).Type)

	// Garbage frames are skipped without closing the connection.
	require.NoError(t, bob.WriteMessage(websocket.TextMessage, []byte("garbage")))

	sendFrame(t, bob, models.EventFileUpdate, models.FileUpdate{FileID: fileID, Content: "let x = 1"})
	update := readFrame(t, alice)
	require.Equal(t, models.EventFileUpdate, update.Type)
	var fu models.FileUpdate
	require.NoError(t, json.Unmarshal(update.Data, &fu))
	assert.Equal(t, "let x = 1", fu.Content)

	sendFrame(t, bob, models.EventChatMessage, map[string]interface{}{
		"msg": models.ChatMessage{ID: "m1", Author: "bob", Text: "hi", Timestamp: 1},
	})
	// The sender gets no echo of its own edit, so its next frame is the chat.
	assert.Equal(t, models.EventChatMessage, readFrame(t, bob).Type)
	assert.Equal(t, models.EventChatMessage, readFrame(t, alice).Type)

	require.NoError(t, bob.Close())
	assert.Equal(t, models.EventUserLeft, readFrame(t, alice).Type)
}

func TestCollabWSLateJoinerSeesEdits(t *testing.T) {
	srv, h := newWSServer(t)

	alice := dial(t, srv, "/ws/room/r2")
	var st models.RoomState
	require.NoError(t, json.Unmarshal(readFrame(t, alice).Data, &st))
	fileID := *st.ActiveFileID

	sendFrame(t, alice, models.EventFileUpdate, models.FileUpdate{FileID: fileID, Content: "print(2)"})
	require.Eventually(t, func() bool {
		snap, ok := h.hub.Snapshot("r2")
		return ok && snap.Files[fileID].File.Content == "print(2)"
	}, 2*time.Second, 10*time.Millisecond)

	carol := dial(t, srv, "/ws/room/r2")
	frame := readFrame(t, carol)
	require.Equal(t, models.EventRoomState, frame.Type)
	var late models.RoomState
	require.NoError(t, json.Unmarshal(frame.Data, &late))
	assert.Equal(t, "print(2)", late.Files[fileID].File.Content)
}
