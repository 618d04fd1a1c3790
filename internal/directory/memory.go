package directory

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryDirectory keeps records in process memory. Used for local runs and
// tests.
type MemoryDirectory struct {
	mu    sync.RWMutex
	rooms map[string]Room
}

var _ Directory = (*MemoryDirectory)(nil)

func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{rooms: make(map[string]Room)}
}

func (d *MemoryDirectory) FindByRoomID(_ context.Context, roomID string) (*Room, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	r, ok := d.rooms[roomID]
	if !ok {
		return nil, fmt.Errorf("%s: %w", roomID, ErrRoomNotFound)
	}
	return cloneRoom(r), nil
}

func (d *MemoryDirectory) Create(_ context.Context, room *Room) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.rooms[room.RoomID]; ok {
		return fmt.Errorf("%s: %w", room.RoomID, ErrRoomExists)
	}
	d.rooms[room.RoomID] = *cloneRoom(*room)
	return nil
}

func (d *MemoryDirectory) UpdateContentAndTimestamp(_ context.Context, roomID, content string, modified time.Time) error {
	return d.update(roomID, func(r *Room) {
		r.Content = content
		r.LastModified = modified
	})
}

func (d *MemoryDirectory) UpdateLanguage(_ context.Context, roomID, language string) error {
	return d.update(roomID, func(r *Room) {
		r.Language = language
	})
}

func (d *MemoryDirectory) update(roomID string, fn func(*Room)) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	r, ok := d.rooms[roomID]
	if !ok {
		return fmt.Errorf("%s: %w", roomID, ErrRoomNotFound)
	}
	fn(&r)
	d.rooms[roomID] = r
	return nil
}

func cloneRoom(r Room) *Room {
	r.Participants = append([]string(nil), r.Participants...)
	return &r
}
