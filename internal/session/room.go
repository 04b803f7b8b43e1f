package session

import (
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"velvetcode/internal/chatlog"
	"velvetcode/internal/models"
	"velvetcode/internal/workspace"
)

// Room holds the authoritative workspace, chat log and members for one room
// id. All state is owned by the room's loop goroutine; callers submit work
// through do, so mutations never interleave and broadcasts follow the
// mutation that produced them.
type Room struct {
	ID  string
	log *zap.Logger

	ops      chan func()
	quit     chan struct{}
	stopped  chan struct{}
	stopOnce sync.Once

	members     map[*Client]struct{}
	memberCount atomic.Int64

	tree     *workspace.Tree
	chat     *chatlog.Log
	runs     []models.RunRecord
	runLimit int
}

type RoomOptions struct {
	ChatLimit int
	RunLimit  int
}

func NewRoom(id string, opts RoomOptions, log *zap.Logger) *Room {
	if log == nil {
		log = zap.NewNop()
	}
	r := &Room{
		ID:       id,
		log:      log.With(zap.String("room_id", id)),
		ops:      make(chan func()),
		quit:     make(chan struct{}),
		stopped:  make(chan struct{}),
		members:  make(map[*Client]struct{}),
		tree:     workspace.NewDefault(),
		chat:     chatlog.New(opts.ChatLimit),
		runs:     []models.RunRecord{},
		runLimit: opts.RunLimit,
	}
	go r.loop()
	return r
}

func (r *Room) loop() {
	defer close(r.stopped)
	for {
		select {
		case op := <-r.ops:
			r.run(op)
		case <-r.quit:
			return
		}
	}
}

// run keeps a faulty event from taking down the room loop.
func (r *Room) run(op func()) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("room operation panicked", zap.Any("panic", rec))
		}
	}()
	op()
}

// do runs fn on the room loop and waits for it. It reports false once the
// room has been stopped.
func (r *Room) do(fn func()) bool {
	done := make(chan struct{})
	op := func() {
		defer close(done)
		fn()
	}
	select {
	case r.ops <- op:
	case <-r.quit:
		return false
	}
	<-done
	return true
}

func (r *Room) stop() {
	r.stopOnce.Do(func() { close(r.quit) })
	<-r.stopped
}

/*** loop-only helpers ***/

func (r *Room) broadcast(frame models.WSFrame, except *Client) {
	payload, err := json.Marshal(frame)
	if err != nil {
		r.log.Error("encode frame", zap.String("type", frame.Type), zap.Error(err))
		return
	}
	for c := range r.members {
		if c == except {
			continue
		}
		c.deliver(frame, payload)
	}
}

func (r *Room) state() models.RoomState {
	files, root := r.tree.Snapshot()
	return models.RoomState{
		Files:        files,
		FileTree:     root,
		ActiveFileID: optional(r.tree.ActiveFileID()),
		Chat:         r.chat.List(),
	}
}

func (r *Room) addMember(c *Client) {
	if _, ok := r.members[c]; ok {
		return
	}
	r.members[c] = struct{}{}
	r.memberCount.Add(1)
}

func (r *Room) removeMember(c *Client) bool {
	if _, ok := r.members[c]; !ok {
		return false
	}
	delete(r.members, c)
	r.memberCount.Add(-1)
	return true
}

func (r *Room) appendRun(rec models.RunRecord) {
	r.runs = append(r.runs, rec)
	if r.runLimit > 0 && len(r.runs) > r.runLimit {
		r.runs = append([]models.RunRecord(nil), r.runs[len(r.runs)-r.runLimit:]...)
	}
}

/*** read accessors ***/

// Snapshot returns a deep copy of the room state.
func (r *Room) Snapshot() (models.RoomState, bool) {
	var st models.RoomState
	ok := r.do(func() { st = r.state() })
	return st, ok
}

// File returns a copy of one node.
func (r *Room) File(id string) (*models.Node, error) {
	var (
		n   *models.Node
		err error
	)
	if !r.do(func() { n, err = r.tree.Get(id) }) {
		return nil, fmt.Errorf("room %s is closed", r.ID)
	}
	return n, err
}

// Runs returns the execution history, oldest first.
func (r *Room) Runs() []models.RunRecord {
	var out []models.RunRecord
	r.do(func() {
		out = make([]models.RunRecord, len(r.runs))
		copy(out, r.runs)
	})
	return out
}

func (r *Room) GetClientCount() int { return int(r.memberCount.Load()) }

func optional(id string) *string {
	if id == "" {
		return nil
	}
	return &id
}
