package models

import (
	"encoding/json"
	"errors"
)

type NodeKind string

const (
	KindFile   NodeKind = "file"
	KindFolder NodeKind = "folder"
)

// AIAgentName is the display name used for relayed AI suggestions in chat.
const AIAgentName = "AI Agent"

/*** File tree ***/

type FileBody struct {
	Content  string
	Language string
}

type FolderBody struct {
	Children []string
}

// Node is a file or a folder. Exactly one of File and Folder is set.
type Node struct {
	ID       string
	Name     string
	ParentID string
	File     *FileBody
	Folder   *FolderBody
}

func (n *Node) Kind() NodeKind {
	if n.Folder != nil {
		return KindFolder
	}
	return KindFile
}

func (n *Node) IsFile() bool   { return n.File != nil }
func (n *Node) IsFolder() bool { return n.Folder != nil }

// Clone returns a deep copy that shares no slices with n.
func (n *Node) Clone() *Node {
	out := &Node{ID: n.ID, Name: n.Name, ParentID: n.ParentID}
	switch n.Kind() {
	case KindFile:
		f := *n.File
		out.File = &f
	case KindFolder:
		children := make([]string, len(n.Folder.Children))
		copy(children, n.Folder.Children)
		out.Folder = &FolderBody{Children: children}
	}
	return out
}

// nodeWire is the flat JSON shape clients know.
type nodeWire struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Type     NodeKind  `json:"type"`
	Content  *string   `json:"content,omitempty"`
	Language string    `json:"language,omitempty"`
	ParentID string    `json:"parentId,omitempty"`
	Children *[]string `json:"children,omitempty"`
}

func (n Node) MarshalJSON() ([]byte, error) {
	w := nodeWire{ID: n.ID, Name: n.Name, ParentID: n.ParentID}
	switch {
	case n.Folder != nil:
		w.Type = KindFolder
		children := n.Folder.Children
		if children == nil {
			children = []string{}
		}
		w.Children = &children
	case n.File != nil:
		w.Type = KindFile
		content := n.File.Content
		w.Content = &content
		w.Language = n.File.Language
	default:
		return nil, errors.New("node has neither file nor folder body")
	}
	return json.Marshal(w)
}

func (n *Node) UnmarshalJSON(b []byte) error {
	var w nodeWire
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	*n = Node{ID: w.ID, Name: w.Name, ParentID: w.ParentID}
	switch w.Type {
	case KindFolder:
		n.Folder = &FolderBody{Children: []string{}}
		if w.Children != nil {
			n.Folder.Children = *w.Children
		}
	case KindFile:
		n.File = &FileBody{Language: w.Language}
		if w.Content != nil {
			n.File.Content = *w.Content
		}
	default:
		return errors.New("unknown node type: " + string(w.Type))
	}
	return nil
}

/*** Chat ***/

type ChatMessage struct {
	ID        string `json:"id"`
	Author    string `json:"name"`
	Text      string `json:"text"`
	Timestamp int64  `json:"ts"`
}

/*** Collaboration session state ***/

// RoomState is the full snapshot sent to a joining client.
type RoomState struct {
	Files        map[string]*Node `json:"files"`
	FileTree     []string         `json:"fileTree"`
	ActiveFileID *string          `json:"activeFileId"`
	Chat         []ChatMessage    `json:"chat"`
}

type WSFrame struct {
	Type string      `json:"type"` // see the Event* constants
	Data interface{} `json:"data,omitempty"`
}

// InboundFrame keeps the payload raw until the event type is known.
type InboundFrame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

const (
	EventJoinRoom    = "join-room"
	EventRoomState   = "room-state"
	EventUserJoined  = "user-joined"
	EventUserLeft    = "user-left"
	EventFileUpdate  = "file-update"
	EventFileSelect  = "file-select"
	EventSetActive   = "set-active"
	EventFileCreate  = "file-create"
	EventFileUpload  = "file-upload"
	EventFileDelete  = "file-delete"
	EventFileRename  = "file-rename"
	EventChatMessage = "chat-message"
	EventRunResult   = "run-result"
)

/*** Inbound payloads ***/

type JoinRequest struct {
	RoomID string `json:"roomId"`
}

type FileUpdate struct {
	RoomID  string `json:"roomId,omitempty"`
	FileID  string `json:"fileId"`
	Content string `json:"content"`
}

type FileSelect struct {
	RoomID string `json:"roomId,omitempty"`
	FileID string `json:"fileId"`
}

type FileCreate struct {
	RoomID   string   `json:"roomId,omitempty"`
	Name     string   `json:"name"`
	Type     NodeKind `json:"type"`
	ParentID string   `json:"parentId,omitempty"`
}

type FileUpload struct {
	RoomID   string `json:"roomId,omitempty"`
	Name     string `json:"name"`
	Content  string `json:"content"`
	ParentID string `json:"parentId,omitempty"`
}

type FileDelete struct {
	RoomID string `json:"roomId,omitempty"`
	FileID string `json:"fileId"`
}

type FileRename struct {
	RoomID  string `json:"roomId,omitempty"`
	FileID  string `json:"fileId"`
	NewName string `json:"newName"`
}

type ChatSend struct {
	RoomID string       `json:"roomId,omitempty"`
	Msg    *ChatMessage `json:"msg,omitempty"`
}

/*** Outbound payloads ***/

type Presence struct {
	ID string `json:"id"`
}

type NodeCreated struct {
	Node     *Node   `json:"node"`
	ParentID *string `json:"parentId"`
}

type NodeDeleted struct {
	FileID          string  `json:"fileId"`
	NewActiveFileID *string `json:"newActiveFileId"`
}

type NodeRenamed struct {
	FileID   string `json:"fileId"`
	NewName  string `json:"newName"`
	Language string `json:"language,omitempty"`
}

/*** Code execution ***/

type Language string

type LanguageSpec struct {
	Name       Language `json:"name"`
	FileName   string   `json:"fileName"`
	Image      string   `json:"image"`
	CompileCmd []string `json:"compileCmd,omitempty"`
	RunCmd     []string `json:"runCmd"`
}

type RunRequest struct {
	Language Language `json:"language"`
	Code     string   `json:"code"`
	Stdin    string   `json:"stdin,omitempty"`
	RoomID   string   `json:"roomId,omitempty"`
}

type RunResult struct {
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
	ExitCode int    `json:"exitCode"`
	TimedOut bool   `json:"timedOut"`
}

// RunRecord is one entry of a room's execution history.
type RunRecord struct {
	ID       string    `json:"id"`
	Language Language  `json:"language"`
	Result   RunResult `json:"result"`
	RanAt    int64     `json:"ranAt"`
}

/*** AI suggestions ***/

type SuggestionKind string

const (
	SuggestImprove SuggestionKind = "improve"
	SuggestExplain SuggestionKind = "explain"
	SuggestTest    SuggestionKind = "test"
)

func (k SuggestionKind) Valid() bool {
	switch k {
	case SuggestImprove, SuggestExplain, SuggestTest:
		return true
	}
	return false
}

type SuggestRequest struct {
	Kind     SuggestionKind `json:"kind"`
	Language string         `json:"language"`
	Code     string         `json:"code"`
}

type SuggestResponse struct {
	Message string `json:"message"`
}

type AssistRequest struct {
	Kind     SuggestionKind `json:"kind"`
	FileID   string         `json:"fileId,omitempty"`
	Language string         `json:"language,omitempty"`
	Code     string         `json:"code,omitempty"`
}

/*** HTTP ***/

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

/*** Room activity feed ***/

const (
	ActivityRoomCreated = "room_created"
	ActivityRoomStats   = "room_stats"
)

// RoomInfo is the status record kept in Redis for each live room.
type RoomInfo struct {
	RoomID    string `json:"roomId"`
	Status    string `json:"status"`
	Members   int    `json:"members"`
	CreatedAt string `json:"createdAt"`
	UpdatedAt string `json:"updatedAt,omitempty"`
}

// ActivityEvent is published on the activity channel.
type ActivityEvent struct {
	Type    string `json:"type"`
	RoomID  string `json:"roomId,omitempty"`
	Rooms   int    `json:"rooms,omitempty"`
	Members int    `json:"members,omitempty"`
	At      string `json:"at"`
}

type LanguagesResponse struct {
	Extensions map[string]string `json:"extensions"`
	Runnable   []LanguageSpec    `json:"runnable"`
}
