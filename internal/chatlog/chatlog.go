// Package chatlog stores a room's chat history in arrival order.
package chatlog

import "velvetcode/internal/models"

// Log is append-only. With a positive limit the oldest messages are evicted
// once the log grows past it. Not safe for concurrent use.
type Log struct {
	messages []models.ChatMessage
	limit    int
}

func New(limit int) *Log {
	if limit < 0 {
		limit = 0
	}
	return &Log{messages: []models.ChatMessage{}, limit: limit}
}

// Append stores msg as received; ids and timestamps are not rewritten.
func (l *Log) Append(msg models.ChatMessage) {
	l.messages = append(l.messages, msg)
	if l.limit > 0 && len(l.messages) > l.limit {
		drop := len(l.messages) - l.limit
		kept := make([]models.ChatMessage, l.limit)
		copy(kept, l.messages[drop:])
		l.messages = kept
	}
}

// List returns a copy of the log, oldest first.
func (l *Log) List() []models.ChatMessage {
	out := make([]models.ChatMessage, len(l.messages))
	copy(out, l.messages)
	return out
}

func (l *Log) Len() int { return len(l.messages) }
