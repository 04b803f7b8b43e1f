package session

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const DefaultJoinCooldown = time.Second

type JoinOutcome int

const (
	JoinAccepted JoinOutcome = iota
	JoinDuplicate
	JoinRateLimited
	JoinUnknown
)

func (o JoinOutcome) String() string {
	switch o {
	case JoinAccepted:
		return "accepted"
	case JoinDuplicate:
		return "duplicate"
	case JoinRateLimited:
		return "rate_limited"
	default:
		return "unknown"
	}
}

type sessionEntry struct {
	roomID  string
	limiter *rate.Limiter
}

// Tracker keeps the join state of each connection: Unjoined (empty room id)
// or Joined(roomID), plus the join limiter for that connection.
type Tracker struct {
	mu       sync.Mutex
	sessions map[*Client]*sessionEntry
	cooldown time.Duration
	now      func() time.Time
}

func NewTracker(cooldown time.Duration) *Tracker {
	if cooldown < 0 {
		cooldown = 0
	}
	return &Tracker{
		sessions: make(map[*Client]*sessionEntry),
		cooldown: cooldown,
		now:      time.Now,
	}
}

// Connect registers a new, unjoined connection.
func (t *Tracker) Connect(c *Client) {
	limit := rate.Inf
	if t.cooldown > 0 {
		limit = rate.Every(t.cooldown)
	}
	t.mu.Lock()
	t.sessions[c] = &sessionEntry{limiter: rate.NewLimiter(limit, 1)}
	t.mu.Unlock()
}

// Join moves c to roomID. A join for the room c already holds is a duplicate
// and does not spend the cooldown. On acceptance prev is the room c left, if
// any.
func (t *Tracker) Join(c *Client, roomID string) (JoinOutcome, string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.sessions[c]
	if !ok {
		return JoinUnknown, ""
	}
	if entry.roomID == roomID {
		return JoinDuplicate, ""
	}
	if !entry.limiter.AllowN(t.now(), 1) {
		return JoinRateLimited, ""
	}
	prev := entry.roomID
	entry.roomID = roomID
	return JoinAccepted, prev
}

// Room reports the room c is joined to.
func (t *Tracker) Room(c *Client) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	entry, ok := t.sessions[c]
	if !ok || entry.roomID == "" {
		return "", false
	}
	return entry.roomID, true
}

// Remove discards the session and its limiter, returning the room c was in.
func (t *Tracker) Remove(c *Client) string {
	t.mu.Lock()
	defer t.mu.Unlock()
	entry, ok := t.sessions[c]
	if !ok {
		return ""
	}
	delete(t.sessions, c)
	return entry.roomID
}

func (t *Tracker) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sessions)
}
