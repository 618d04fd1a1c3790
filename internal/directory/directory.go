// Package directory is the durable Room Directory the editing core loads
// snapshots from and flushes snapshots to.
package directory

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrRoomNotFound is returned when no record exists for a room id.
	ErrRoomNotFound = errors.New("room not found in directory")
	// ErrRoomExists is returned by Create when the room id is taken.
	ErrRoomExists = errors.New("room already exists in directory")
)

// Room is the persisted record of a room.
type Room struct {
	RoomID       string    `json:"roomId"`
	Name         string    `json:"name"`
	Language     string    `json:"language"`
	Content      string    `json:"content"`
	Participants []string  `json:"participants"`
	LastModified time.Time `json:"lastModified"`
}

// Directory is the Room Directory Service contract consumed by the core.
type Directory interface {
	FindByRoomID(ctx context.Context, roomID string) (*Room, error)
	Create(ctx context.Context, room *Room) error
	UpdateContentAndTimestamp(ctx context.Context, roomID, content string, modified time.Time) error
	UpdateLanguage(ctx context.Context, roomID, language string) error
}
