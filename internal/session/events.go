package session

import (
	"time"

	"coderoom-core/internal/ot"
	"coderoom-core/internal/presence"
)

// Outbound event names, as seen by clients.
const (
	EventRoomState      = "room-state"
	EventUserJoined     = "user-joined"
	EventUserLeft       = "user-left"
	EventCodeChange     = "code-change"
	EventCursorUpdate   = "cursor-update"
	EventLanguageChange = "language-change"
	EventChatMessage    = "chat-message"
)

// Event is one outbound message addressed to a connection.
type Event struct {
	Name string
	Data interface{}
}

// Broadcaster delivers events to connections. Send is called from a room's
// actor goroutine and must not block.
type Broadcaster interface {
	Send(connectionID string, ev Event)
}

// User is the verified identity handed to the core by the gateway.
type User struct {
	ID          string `json:"userId"`
	DisplayName string `json:"displayName"`
	Avatar      string `json:"avatar,omitempty"`
}

// Participant is a user's public view inside a room.
type Participant struct {
	User
	Cursor    presence.Cursor     `json:"cursor"`
	Selection *presence.Selection `json:"selection"`
}

type RoomState struct {
	Content      string        `json:"content"`
	Language     string        `json:"language"`
	Participants []Participant `json:"participants"`
}

type UserJoined struct {
	User         User          `json:"user"`
	Participants []Participant `json:"participants"`
}

type UserLeft struct {
	UserID       string        `json:"userId"`
	User         User          `json:"user"`
	Participants []Participant `json:"participants"`
}

type CodeChange struct {
	Operation ot.Operation `json:"operation"`
	Content   string       `json:"content"`
}

type CursorUpdate struct {
	UserID    string              `json:"userId"`
	User      User                `json:"user"`
	Cursor    presence.Cursor     `json:"cursor"`
	Selection *presence.Selection `json:"selection"`
}

type LanguageChange struct {
	Language string `json:"language"`
}

type ChatMessage struct {
	ID        string    `json:"id"`
	User      User      `json:"user"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// Result is the outcome of a submitted operation.
type Result struct {
	Applied ot.Operation
	Content string
}

// Snapshot is a read-only copy of a live session.
type Snapshot struct {
	RoomID        string        `json:"roomId"`
	Content       string        `json:"content"`
	Language      string        `json:"language"`
	Participants  []Participant `json:"participants"`
	LogLength     int           `json:"logLength"`
	LastFlushedAt time.Time     `json:"lastFlushedAt"`
	Persisted     bool          `json:"persisted"` // backed by a directory record
}
