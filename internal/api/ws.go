package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"velvetcode/internal/models"
	"velvetcode/internal/session"
)

const maxFrameBytes = 4 << 20

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// CollabWS serves one collaboration connection. A room id in the path joins
// that room immediately; otherwise the client sends join-room itself.
func (h *Handlers) CollabWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	client := session.NewClient(conn, h.sendQueue)
	h.router.Connect(client)
	defer func() {
		h.router.Disconnect(client)
		client.Close()
	}()
	go client.WritePump()
	client.PrepareRead(maxFrameBytes)

	log := h.log.With(zap.String("client_id", client.ID))
	log.Info("client connected")

	if roomID := chi.URLParam(r, "id"); roomID != "" {
		data, _ := json.Marshal(roomID)
		h.router.Handle(client, models.InboundFrame{Type: models.EventJoinRoom, Data: data})
	}

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warn("connection closed unexpectedly", zap.Error(err))
			}
			log.Info("client disconnected")
			return
		}
		var frame models.InboundFrame
		if err := json.Unmarshal(payload, &frame); err != nil {
			log.Debug("malformed frame", zap.Error(err))
			continue
		}
		h.router.Handle(client, frame)
	}
}
