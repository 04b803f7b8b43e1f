package session

import (
	"sync"

	"go.uber.org/zap"

	"velvetcode/internal/metrics"
	"velvetcode/internal/models"
)

// Hub is the room registry. Rooms are created lazily on first use and live
// until the hub is closed.
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]*Room

	opts      RoomOptions
	log       *zap.Logger
	onCreated func(roomID string)
}

type HubStats struct {
	Rooms   int
	Members int
}

func NewHub(log *zap.Logger, opts RoomOptions) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{
		rooms: make(map[string]*Room),
		opts:  opts,
		log:   log,
	}
}

// OnRoomCreated registers a callback invoked once per newly created room,
// outside the registry lock.
func (h *Hub) OnRoomCreated(fn func(roomID string)) {
	h.mu.Lock()
	h.onCreated = fn
	h.mu.Unlock()
}

// GetOrCreate returns the room for id, building it with the default file on
// first use. Concurrent callers for a new id all observe the same room.
func (h *Hub) GetOrCreate(id string) *Room {
	h.mu.Lock()
	if r, ok := h.rooms[id]; ok {
		h.mu.Unlock()
		return r
	}
	r := NewRoom(id, h.opts, h.log)
	h.rooms[id] = r
	count := len(h.rooms)
	cb := h.onCreated
	h.mu.Unlock()

	metrics.SetRoomsActive(count)
	h.log.Info("room created", zap.String("room_id", id))
	if cb != nil {
		cb(id)
	}
	return r
}

// Get returns an existing room without creating one.
func (h *Hub) Get(id string) (*Room, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	r, ok := h.rooms[id]
	return r, ok
}

// Snapshot returns the serializable state of an existing room.
func (h *Hub) Snapshot(id string) (models.RoomState, bool) {
	r, ok := h.Get(id)
	if !ok {
		return models.RoomState{}, false
	}
	return r.Snapshot()
}

func (h *Hub) RoomIDs() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	ids := make([]string, 0, len(h.rooms))
	for id := range h.rooms {
		ids = append(ids, id)
	}
	return ids
}

func (h *Hub) Stats() HubStats {
	h.mu.RLock()
	defer h.mu.RUnlock()
	st := HubStats{Rooms: len(h.rooms)}
	for _, r := range h.rooms {
		st.Members += r.GetClientCount()
	}
	return st
}

// Close stops every room loop. Rooms must not be used afterwards.
func (h *Hub) Close() {
	h.mu.Lock()
	rooms := h.rooms
	h.rooms = make(map[string]*Room)
	h.mu.Unlock()

	for _, r := range rooms {
		r.stop()
	}
	metrics.SetRoomsActive(0)
}

// MemberCounts returns the number of members per room.
func (h *Hub) MemberCounts() map[string]int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make(map[string]int, len(h.rooms))
	for id, r := range h.rooms {
		out[id] = r.GetClientCount()
	}
	return out
}
