package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/google/uuid"

	"coderoom-core/internal/directory"
	"coderoom-core/internal/eventbus"
	"coderoom-core/internal/ot"
	"coderoom-core/internal/persistence"
	"coderoom-core/internal/presence"
)

type member struct {
	user   User
	connID string
	seq    int // join order
}

// Session is the live state of one room. Every field below cmds is owned by
// the run goroutine; other goroutines reach it only through do.
type Session struct {
	id   string
	reg  *Registry
	cmds chan func()
	done chan struct{}

	content       string
	language      string
	log           *ot.Log
	members       map[string]*member
	presence      *presence.Tracker
	lastFlushedAt time.Time
	joinSeq       int
	stopped       bool

	// bound is set while a directory record backs the room. Unbound rooms
	// never write content; they try to Attach once per flush interval.
	bound         bool
	diverged      bool // a record this session did not load exists; edits stay unsaved
	owner         string
	lastAttemptAt time.Time
}

func newSession(reg *Registry, roomID string) *Session {
	return &Session{
		id:       roomID,
		reg:      reg,
		cmds:     make(chan func()),
		done:     make(chan struct{}),
		log:      ot.NewLog(reg.cfg.LogCapacity),
		members:  make(map[string]*member),
		presence: presence.NewTracker(),
	}
}

// run bootstraps the room and then executes commands one at a time until the
// last participant leaves. Commands sent during bootstrap wait on the
// unbuffered channel and are served in arrival order.
func (s *Session) run(language, owner string) {
	s.bootstrap(language, owner)
	for !s.stopped {
		fn := <-s.cmds
		fn()
	}
	s.reg.remove(s)
	close(s.done)
	s.publish(eventbus.TypeRoomDestroyed, map[string]interface{}{
		"content_length": len([]rune(s.content)),
		"log_length":     s.log.Len(),
	})
	log.Printf("session: room %s destroyed", s.id)
}

func (s *Session) bootstrap(language, owner string) {
	ctx := context.Background()
	bridge := s.reg.cfg.Bridge
	defaultContent := s.reg.cfg.Templates.DefaultContent(ctx, language)
	seed := bridge.Bootstrap(ctx, s.id, language, defaultContent, owner)

	s.content = seed.Content
	s.language = seed.Language
	s.owner = owner
	s.bound = seed.Bound()
	s.lastFlushedAt = bridge.Now()
	s.lastAttemptAt = s.lastFlushedAt
	s.publish(eventbus.TypeRoomCreated, map[string]interface{}{
		"language":       s.language,
		"loaded":         seed.Loaded,
		"record_created": seed.Created,
		"bound":          s.bound,
	})
	log.Printf("session: room %s started (language=%s loaded=%t)", s.id, s.language, seed.Loaded)
}

// do runs fn on the actor and waits for it to finish.
func (s *Session) do(fn func()) error {
	finished := make(chan struct{})
	select {
	case s.cmds <- func() { defer close(finished); fn() }:
	case <-s.done:
		return errSessionClosed
	}
	<-finished
	return nil
}

func (s *Session) join(user User, connID string) (RoomState, error) {
	var st RoomState
	err := s.do(func() {
		m, rejoin := s.members[user.ID]
		if !rejoin {
			s.joinSeq++
			m = &member{seq: s.joinSeq}
			s.members[user.ID] = m
		}
		m.user = user
		m.connID = connID

		participants := s.participants()
		st = RoomState{Content: s.content, Language: s.language, Participants: participants}
		s.send(connID, Event{Name: EventRoomState, Data: st})
		s.broadcastExcept(user.ID, Event{Name: EventUserJoined, Data: UserJoined{User: user, Participants: participants}})
		s.publish(eventbus.TypeParticipantJoin, map[string]interface{}{"user_id": user.ID, "rejoin": rejoin})
	})
	return st, err
}

func (s *Session) submit(userID string, raw ot.Operation) (Result, error) {
	var res Result
	var opErr error
	err := s.do(func() {
		if _, ok := s.members[userID]; !ok {
			opErr = ErrNotParticipant
			return
		}
		op := s.log.Rebase(raw.Stamp(userID, s.reg.cfg.Bridge.Now()))
		content, err := ot.Apply(s.content, op)
		if err != nil {
			opErr = err
			return
		}
		s.content = content
		s.log.Append(op)
		res = Result{Applied: op, Content: content}

		s.broadcastExcept(userID, Event{Name: EventCodeChange, Data: CodeChange{Operation: op, Content: content}})
		s.maybeFlush()
	})
	if err != nil {
		return res, err
	}
	return res, opErr
}

func (s *Session) maybeFlush() {
	if s.diverged {
		return
	}
	bridge := s.reg.cfg.Bridge
	if !s.bound {
		if bridge.Due(s.lastAttemptAt) {
			s.attach()
		}
		return
	}
	flushedAt, flushed, err := bridge.MaybeFlush(context.Background(), s.id, s.content, s.lastFlushedAt)
	if errors.Is(err, directory.ErrRoomNotFound) {
		s.bound = false
		s.attach()
		return
	}
	if flushed {
		s.flushed(flushedAt)
	}
}

// attach binds an unbound room to a new directory record holding its current
// content.
func (s *Session) attach() {
	bridge := s.reg.cfg.Bridge
	s.lastAttemptAt = bridge.Now()
	at, err := bridge.Attach(context.Background(), s.id, s.language, s.content, s.owner)
	switch {
	case errors.Is(err, persistence.ErrSnapshotExists):
		s.diverged = true
		log.Printf("session: room %s has a snapshot this session did not load; edits will not be saved", s.id)
	case err != nil:
		log.Printf("session: attach of room %s failed: %v", s.id, err)
	default:
		s.bound = true
		s.flushed(at)
	}
}

func (s *Session) flushed(at time.Time) {
	s.lastFlushedAt = at
	s.publish(eventbus.TypeSnapshotFlushed, map[string]interface{}{
		"content_length": len([]rune(s.content)),
		"flushed_at":     at,
	})
}

func (s *Session) updateCursor(userID string, cursor presence.Cursor, sel *presence.Selection) error {
	var opErr error
	err := s.do(func() {
		m, ok := s.members[userID]
		if !ok {
			opErr = ErrNotParticipant
			return
		}
		st := s.presence.Set(userID, cursor, sel)
		s.broadcastExcept(userID, Event{Name: EventCursorUpdate, Data: CursorUpdate{
			UserID:    userID,
			User:      m.user,
			Cursor:    st.Cursor,
			Selection: st.Selection,
		}})
	})
	if err != nil {
		return err
	}
	return opErr
}

func (s *Session) changeLanguage(userID, language string) error {
	var opErr error
	err := s.do(func() {
		if _, ok := s.members[userID]; !ok {
			opErr = ErrNotParticipant
			return
		}
		s.language = language
		// The submitter gets the change too.
		s.broadcastExcept("", Event{Name: EventLanguageChange, Data: LanguageChange{Language: language}})
		if s.bound {
			s.reg.cfg.Bridge.UpdateLanguage(context.Background(), s.id, language)
		}
		s.publish(eventbus.TypeLanguageChanged, map[string]interface{}{"language": language, "user_id": userID})
	})
	if err != nil {
		return err
	}
	return opErr
}

func (s *Session) relayChat(userID, message string) (ChatMessage, error) {
	var msg ChatMessage
	var opErr error
	err := s.do(func() {
		m, ok := s.members[userID]
		if !ok {
			opErr = ErrNotParticipant
			return
		}
		msg = ChatMessage{
			ID:        uuid.NewString(),
			User:      m.user,
			Message:   message,
			Timestamp: s.reg.cfg.Bridge.Now().UTC(),
		}
		s.broadcastExcept("", Event{Name: EventChatMessage, Data: msg})
	})
	if err != nil {
		return msg, err
	}
	return msg, opErr
}

// leave removes userID if connID is still its connection (an empty connID
// always matches). The session stops when nobody is left.
func (s *Session) leave(userID, connID string) error {
	var opErr error
	err := s.do(func() {
		m, ok := s.members[userID]
		if !ok {
			opErr = ErrNotParticipant
			return
		}
		if connID != "" && m.connID != connID {
			// Superseded by a newer connection of the same user.
			return
		}
		delete(s.members, userID)
		s.presence.Remove(userID)
		s.broadcastExcept(userID, Event{Name: EventUserLeft, Data: UserLeft{
			UserID:       userID,
			User:         m.user,
			Participants: s.participants(),
		}})
		s.publish(eventbus.TypeParticipantLeave, map[string]interface{}{"user_id": userID})
		if len(s.members) == 0 {
			s.stopped = true
		}
	})
	if err != nil {
		return err
	}
	return opErr
}

func (s *Session) snapshot() (Snapshot, error) {
	var snap Snapshot
	err := s.do(func() {
		snap = Snapshot{
			RoomID:        s.id,
			Content:       s.content,
			Language:      s.language,
			Participants:  s.participants(),
			LogLength:     s.log.Len(),
			LastFlushedAt: s.lastFlushedAt,
			Persisted:     s.bound,
		}
	})
	return snap, err
}

// operations returns a copy of the operation log.
func (s *Session) operations() ([]ot.Operation, error) {
	var ops []ot.Operation
	err := s.do(func() { ops = s.log.Entries() })
	return ops, err
}

func (s *Session) stop() {
	_ = s.do(func() { s.stopped = true })
	<-s.done
}

func (s *Session) participants() []Participant {
	ms := make([]*member, 0, len(s.members))
	for _, m := range s.members {
		ms = append(ms, m)
	}
	sort.Slice(ms, func(i, j int) bool { return ms[i].seq < ms[j].seq })

	out := make([]Participant, 0, len(ms))
	for _, m := range ms {
		st := s.presence.Get(m.user.ID)
		out = append(out, Participant{User: m.user, Cursor: st.Cursor, Selection: st.Selection})
	}
	return out
}

func (s *Session) send(connID string, ev Event) {
	if s.reg.cfg.Broadcaster != nil {
		s.reg.cfg.Broadcaster.Send(connID, ev)
	}
}

// broadcastExcept sends ev to every participant but exceptUserID.
func (s *Session) broadcastExcept(exceptUserID string, ev Event) {
	for id, m := range s.members {
		if id != exceptUserID {
			s.send(m.connID, ev)
		}
	}
}

func (s *Session) publish(eventType string, payload map[string]interface{}) {
	ev := eventbus.NewEvent(eventType, s.reg.cfg.Source, s.id, payload)
	if err := s.reg.cfg.Events.Publish(context.Background(), eventbus.TopicRoomEvents, ev); err != nil {
		log.Printf("session: %v", fmt.Errorf("publish %s for room %s: %w", eventType, s.id, err))
	}
}
