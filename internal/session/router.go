package session

import (
	"encoding/json"
	"errors"
	"strings"

	"go.uber.org/zap"

	"velvetcode/internal/metrics"
	"velvetcode/internal/models"
)

var errEmptyRoom = errors.New("empty room id")

// EventRouter is the only writer of room state. It applies inbound events
// from joined connections to their room and fans the result out.
type EventRouter struct {
	hub     *Hub
	tracker *Tracker
	log     *zap.Logger
}

func NewEventRouter(hub *Hub, tracker *Tracker, log *zap.Logger) *EventRouter {
	if log == nil {
		log = zap.NewNop()
	}
	return &EventRouter{hub: hub, tracker: tracker, log: log}
}

func (er *EventRouter) Hub() *Hub { return er.hub }

func (er *EventRouter) Connect(c *Client) {
	er.tracker.Connect(c)
	metrics.IncConnections()
}

// Disconnect forgets the connection and removes it from its room. Events read
// after this point are dropped because the tracker no longer knows c.
func (er *EventRouter) Disconnect(c *Client) {
	roomID := er.tracker.Remove(c)
	metrics.DecConnections()
	if roomID == "" {
		return
	}
	if room, ok := er.hub.Get(roomID); ok {
		room.do(func() { er.leave(room, c) })
	}
}

// Handle dispatches one inbound frame. Malformed or out-of-place events are
// dropped and the connection stays open.
func (er *EventRouter) Handle(c *Client, frame models.InboundFrame) {
	if frame.Type == models.EventJoinRoom {
		er.handleJoin(c, frame.Data)
		return
	}

	roomID, joined := er.tracker.Room(c)
	if !joined {
		er.drop(frame.Type, "connection has not joined a room")
		return
	}
	room, ok := er.hub.Get(roomID)
	if !ok {
		er.drop(frame.Type, "room no longer exists")
		return
	}

	var applied bool
	switch frame.Type {
	case models.EventFileUpdate:
		var p models.FileUpdate
		if !er.decode(frame, roomID, &p, &p.RoomID) {
			return
		}
		room.do(func() {
			if !room.tree.UpdateContent(p.FileID, p.Content) {
				return
			}
			applied = true
			room.broadcast(models.WSFrame{
				Type: models.EventFileUpdate,
				Data: models.FileUpdate{FileID: p.FileID, Content: p.Content},
			}, c)
		})

	case models.EventFileSelect, models.EventSetActive:
		var p models.FileSelect
		if !er.decode(frame, roomID, &p, &p.RoomID) {
			return
		}
		room.do(func() {
			if !room.tree.SetActive(p.FileID) {
				return
			}
			applied = true
			room.broadcast(models.WSFrame{
				Type: models.EventFileSelect,
				Data: models.FileSelect{FileID: p.FileID},
			}, nil)
		})

	case models.EventFileCreate:
		var p models.FileCreate
		if !er.decode(frame, roomID, &p, &p.RoomID) {
			return
		}
		room.do(func() {
			node, err := room.tree.CreateNode(p.Name, p.Type, p.ParentID)
			if err != nil {
				er.log.Debug("create rejected", zap.String("room_id", roomID), zap.Error(err))
				return
			}
			applied = true
			room.broadcast(models.WSFrame{
				Type: models.EventFileCreate,
				Data: models.NodeCreated{Node: node, ParentID: optional(p.ParentID)},
			}, nil)
		})

	case models.EventFileUpload:
		var p models.FileUpload
		if !er.decode(frame, roomID, &p, &p.RoomID) {
			return
		}
		room.do(func() {
			node, err := room.tree.UploadNode(p.Name, p.Content, p.ParentID)
			if err != nil {
				er.log.Debug("upload rejected", zap.String("room_id", roomID), zap.Error(err))
				return
			}
			applied = true
			room.broadcast(models.WSFrame{
				Type: models.EventFileUpload,
				Data: models.NodeCreated{Node: node, ParentID: optional(p.ParentID)},
			}, nil)
		})

	case models.EventFileDelete:
		var p models.FileDelete
		if !er.decode(frame, roomID, &p, &p.RoomID) {
			return
		}
		room.do(func() {
			active, ok := room.tree.DeleteNode(p.FileID)
			if !ok {
				return
			}
			applied = true
			room.broadcast(models.WSFrame{
				Type: models.EventFileDelete,
				Data: models.NodeDeleted{FileID: p.FileID, NewActiveFileID: optional(active)},
			}, nil)
		})

	case models.EventFileRename:
		var p models.FileRename
		if !er.decode(frame, roomID, &p, &p.RoomID) {
			return
		}
		room.do(func() {
			lang, ok := room.tree.RenameNode(p.FileID, p.NewName)
			if !ok {
				return
			}
			applied = true
			room.broadcast(models.WSFrame{
				Type: models.EventFileRename,
				Data: models.NodeRenamed{FileID: p.FileID, NewName: p.NewName, Language: lang},
			}, nil)
		})

	case models.EventChatMessage:
		msg, ok := er.decodeChat(frame, roomID)
		if !ok {
			return
		}
		room.do(func() {
			er.appendChat(room, msg)
			applied = true
		})

	default:
		er.drop(frame.Type, "unknown event")
		return
	}

	if applied {
		metrics.RecordEvent(frame.Type, metrics.OutcomeApplied)
	} else {
		metrics.RecordEvent(frame.Type, metrics.OutcomeDropped)
	}
}

func (er *EventRouter) handleJoin(c *Client, raw json.RawMessage) {
	roomID, err := parseJoin(raw)
	if err != nil {
		er.drop(models.EventJoinRoom, err.Error())
		return
	}

	outcome, prev := er.tracker.Join(c, roomID)
	switch outcome {
	case JoinDuplicate:
		metrics.RecordEvent(models.EventJoinRoom, metrics.OutcomeDuplicate)
		return
	case JoinRateLimited:
		metrics.RecordEvent(models.EventJoinRoom, metrics.OutcomeRateLimited)
		er.log.Debug("join rate limited", zap.String("client_id", c.ID), zap.String("room_id", roomID))
		return
	case JoinUnknown:
		er.drop(models.EventJoinRoom, "connection is not registered")
		return
	}

	if prev != "" {
		if old, ok := er.hub.Get(prev); ok {
			old.do(func() { er.leave(old, c) })
		}
	}

	room := er.hub.GetOrCreate(roomID)
	room.do(func() {
		room.addMember(c)
		state := room.state()
		c.Send(models.WSFrame{Type: models.EventRoomState, Data: state})
		room.broadcast(models.WSFrame{
			Type: models.EventUserJoined,
			Data: models.Presence{ID: c.ID},
		}, c)
	})
	metrics.RecordEvent(models.EventJoinRoom, metrics.OutcomeApplied)
	er.log.Info("client joined room", zap.String("client_id", c.ID), zap.String("room_id", roomID))
}

// leave runs on the room loop.
func (er *EventRouter) leave(room *Room, c *Client) {
	if !room.removeMember(c) {
		return
	}
	room.broadcast(models.WSFrame{
		Type: models.EventUserLeft,
		Data: models.Presence{ID: c.ID},
	}, nil)
	er.log.Info("client left room", zap.String("client_id", c.ID), zap.String("room_id", room.ID))
}

// appendChat runs on the room loop.
func (er *EventRouter) appendChat(room *Room, msg models.ChatMessage) {
	room.chat.Append(msg)
	room.broadcast(models.WSFrame{Type: models.EventChatMessage, Data: msg}, nil)
}

// RelayChat appends a server-authored message to an existing room and
// broadcasts it to every member.
func (er *EventRouter) RelayChat(roomID string, msg models.ChatMessage) bool {
	room, ok := er.hub.Get(roomID)
	if !ok {
		return false
	}
	return room.do(func() { er.appendChat(room, msg) })
}

// RecordRun stores an execution result in the room history and broadcasts it.
func (er *EventRouter) RecordRun(roomID string, rec models.RunRecord) bool {
	room, ok := er.hub.Get(roomID)
	if !ok {
		return false
	}
	return room.do(func() {
		room.appendRun(rec)
		room.broadcast(models.WSFrame{Type: models.EventRunResult, Data: rec}, nil)
	})
}

// decode unmarshals the payload and rejects events addressed to a room other
// than the one the connection is in. An empty room id means "my room".
func (er *EventRouter) decode(frame models.InboundFrame, roomID string, dst interface{}, target *string) bool {
	if len(frame.Data) == 0 {
		er.drop(frame.Type, "missing payload")
		return false
	}
	if err := json.Unmarshal(frame.Data, dst); err != nil {
		er.drop(frame.Type, "malformed payload")
		return false
	}
	if *target != "" && *target != roomID {
		er.drop(frame.Type, "event addressed to another room")
		return false
	}
	return true
}

// decodeChat accepts {roomId, msg} or a bare message.
func (er *EventRouter) decodeChat(frame models.InboundFrame, roomID string) (models.ChatMessage, bool) {
	var wrapped models.ChatSend
	if !er.decode(frame, roomID, &wrapped, &wrapped.RoomID) {
		return models.ChatMessage{}, false
	}
	if wrapped.Msg != nil {
		return *wrapped.Msg, true
	}
	var bare models.ChatMessage
	if err := json.Unmarshal(frame.Data, &bare); err != nil || (bare.ID == "" && bare.Text == "") {
		er.drop(frame.Type, "empty chat message")
		return models.ChatMessage{}, false
	}
	return bare, true
}

func (er *EventRouter) drop(eventType, reason string) {
	metrics.RecordEvent(eventType, metrics.OutcomeDropped)
	er.log.Debug("event dropped", zap.String("type", eventType), zap.String("reason", reason))
}

// parseJoin accepts a bare room id string or {"roomId": "..."}.
func parseJoin(raw json.RawMessage) (string, error) {
	var id string
	if err := json.Unmarshal(raw, &id); err != nil {
		var req models.JoinRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			return "", err
		}
		id = req.RoomID
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return "", errEmptyRoom
	}
	return id, nil
}
