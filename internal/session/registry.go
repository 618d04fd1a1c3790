// Package session holds the live, serialized state of every open room.
//
// Each room is owned by one actor goroutine; ordering of concurrent edits is
// decided by arrival order at that actor. This is only sound while all traffic
// for a room reaches the same process, so deployments must route by room id.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"coderoom-core/internal/eventbus"
	"coderoom-core/internal/ot"
	"coderoom-core/internal/persistence"
	"coderoom-core/internal/presence"
)

// Templates resolves languages and their starter content.
type Templates interface {
	Normalize(language string) (string, error)
	DefaultContent(ctx context.Context, language string) string
}

type Config struct {
	Bridge      *persistence.Bridge
	Templates   Templates
	Broadcaster Broadcaster
	Events      eventbus.Publisher // nil discards
	LogCapacity int                // ot.DefaultLogCapacity when zero
	Source      string             // event source name
}

// Registry maps room ids to live sessions, creating them on first join and
// dropping them when their last participant leaves. The registry lock guards
// the map only and is never held across a session command or I/O.
type Registry struct {
	cfg Config

	mu     sync.Mutex
	rooms  map[string]*Session
	closed bool
}

func NewRegistry(cfg Config) *Registry {
	if cfg.Events == nil {
		cfg.Events = eventbus.Discard
	}
	if cfg.LogCapacity <= 0 {
		cfg.LogCapacity = ot.DefaultLogCapacity
	}
	if cfg.Source == "" {
		cfg.Source = "collab-server"
	}
	return &Registry{cfg: cfg, rooms: make(map[string]*Session)}
}

// Join adds user to roomID, creating the session if needed, and returns the
// room state. The state is also delivered to connID as room-state.
func (r *Registry) Join(ctx context.Context, roomID string, user User, language, connID string) (RoomState, error) {
	language, err := r.cfg.Templates.Normalize(language)
	if err != nil {
		return RoomState{}, err
	}
	for {
		if err := ctx.Err(); err != nil {
			return RoomState{}, err
		}
		s, err := r.getOrCreate(roomID, language, user.ID)
		if err != nil {
			return RoomState{}, err
		}
		st, err := s.join(user, connID)
		if errors.Is(err, errSessionClosed) {
			// Emptied and destroyed after lookup; it is already out of the map.
			continue
		}
		return st, err
	}
}

// Submit reconciles op from userID against the room's log and applies it.
func (r *Registry) Submit(_ context.Context, roomID, userID string, op ot.Operation) (Result, error) {
	if err := op.Validate(); err != nil {
		return Result{}, err
	}
	s, err := r.get(roomID)
	if err != nil {
		return Result{}, err
	}
	res, err := s.submit(userID, op)
	return res, r.mapErr(roomID, err)
}

// UpdateCursor records userID's presence and relays it to the others.
func (r *Registry) UpdateCursor(_ context.Context, roomID, userID string, cursor presence.Cursor, sel *presence.Selection) error {
	s, err := r.get(roomID)
	if err != nil {
		return err
	}
	return r.mapErr(roomID, s.updateCursor(userID, cursor, sel))
}

// ChangeLanguage sets the room language and notifies every participant.
func (r *Registry) ChangeLanguage(_ context.Context, roomID, userID, language string) error {
	language, err := r.cfg.Templates.Normalize(language)
	if err != nil {
		return err
	}
	s, err := r.get(roomID)
	if err != nil {
		return err
	}
	return r.mapErr(roomID, s.changeLanguage(userID, language))
}

// RelayChat fans a chat message out to every participant. Nothing is stored.
func (r *Registry) RelayChat(_ context.Context, roomID, userID, message string) (ChatMessage, error) {
	s, err := r.get(roomID)
	if err != nil {
		return ChatMessage{}, err
	}
	msg, err := s.relayChat(userID, message)
	return msg, r.mapErr(roomID, err)
}

// Leave removes userID from roomID. A non-empty connID that no longer matches
// the user's connection is ignored.
func (r *Registry) Leave(_ context.Context, roomID, userID, connID string) error {
	s, err := r.get(roomID)
	if err != nil {
		return err
	}
	return r.mapErr(roomID, s.leave(userID, connID))
}

// Snapshot returns a copy of a live room.
func (r *Registry) Snapshot(_ context.Context, roomID string) (Snapshot, error) {
	s, err := r.get(roomID)
	if err != nil {
		return Snapshot{}, err
	}
	snap, err := s.snapshot()
	return snap, r.mapErr(roomID, err)
}

// Operations returns the room's operation log, oldest first.
func (r *Registry) Operations(_ context.Context, roomID string) ([]ot.Operation, error) {
	s, err := r.get(roomID)
	if err != nil {
		return nil, err
	}
	ops, err := s.operations()
	return ops, r.mapErr(roomID, err)
}

// Len is the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rooms)
}

// Close stops every session. Unflushed edits are dropped.
func (r *Registry) Close() {
	r.mu.Lock()
	r.closed = true
	sessions := make([]*Session, 0, len(r.rooms))
	for _, s := range r.rooms {
		sessions = append(sessions, s)
	}
	r.mu.Unlock()

	for _, s := range sessions {
		s.stop()
	}
}

func (r *Registry) getOrCreate(roomID, language, owner string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrRegistryClosed
	}
	if s, ok := r.rooms[roomID]; ok {
		return s, nil
	}
	s := newSession(r, roomID)
	r.rooms[roomID] = s
	go s.run(language, owner)
	return s, nil
}

func (r *Registry) get(roomID string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.rooms[roomID]
	if !ok {
		return nil, fmt.Errorf("%s: %w", roomID, ErrRoomNotFound)
	}
	return s, nil
}

// remove drops s from the map if it is still the registered session.
func (r *Registry) remove(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.rooms[s.id] == s {
		delete(r.rooms, s.id)
	}
}

func (r *Registry) mapErr(roomID string, err error) error {
	if errors.Is(err, errSessionClosed) {
		return fmt.Errorf("%s: %w", roomID, ErrRoomNotFound)
	}
	if errors.Is(err, ErrNotParticipant) {
		return fmt.Errorf("%s: %w", roomID, err)
	}
	return err
}
