package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Entry is a single durable key-value pair.
type Entry struct {
	Key       string
	Value     string
	UpdatedAt time.Time
}

// Conversation is a stored assistant conversation. History, transcript and
// context are opaque JSON owned by the assistant package.
type Conversation struct {
	ID             string
	CreatedAt      time.Time
	UpdatedAt      time.Time
	HistoryJSON    string
	TranscriptJSON string
	ContextJSON    string
}
