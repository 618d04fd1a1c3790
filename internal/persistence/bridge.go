// Package persistence writes throttled, best-effort room snapshots to the
// Room Directory and bootstraps new sessions from it.
package persistence

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"coderoom-core/internal/directory"
)

const (
	DefaultFlushInterval = 30 * time.Second
	DefaultTimeout       = 5 * time.Second
)

// ErrSnapshotExists is returned by Attach when the room already has a
// persisted record that the session did not load.
var ErrSnapshotExists = errors.New("room already has a persisted snapshot")

// Bridge is shared by all rooms; it holds no per-room state.
type Bridge struct {
	dir      directory.Directory
	interval time.Duration
	timeout  time.Duration
	now      func() time.Time
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithInterval sets the minimum time between two flushes of one room.
func WithInterval(d time.Duration) Option {
	return func(b *Bridge) { b.interval = d }
}

// WithTimeout bounds every directory call.
func WithTimeout(d time.Duration) Option {
	return func(b *Bridge) { b.timeout = d }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(b *Bridge) { b.now = now }
}

func NewBridge(dir directory.Directory, opts ...Option) *Bridge {
	b := &Bridge{
		dir:      dir,
		interval: DefaultFlushInterval,
		timeout:  DefaultTimeout,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Now is the bridge's clock.
func (b *Bridge) Now() time.Time {
	return b.now()
}

// Due reports whether the flush interval has elapsed since last.
func (b *Bridge) Due(last time.Time) bool {
	return b.now().Sub(last) >= b.interval
}

// MaybeFlush writes content if at least the flush interval has elapsed since
// lastFlushed. It returns the new last-flush time, whether a write succeeded
// and the write error, which is also logged. A failed write leaves
// lastFlushed unchanged so the next edit retries. directory.ErrRoomNotFound
// means the record is gone and the session has to Attach again.
func (b *Bridge) MaybeFlush(ctx context.Context, roomID, content string, lastFlushed time.Time) (time.Time, bool, error) {
	if !b.Due(lastFlushed) {
		return lastFlushed, false, nil
	}
	now := b.now()

	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()
	if err := b.dir.UpdateContentAndTimestamp(ctx, roomID, content, now); err != nil {
		log.Printf("persistence: flush of room %s failed: %v", roomID, err)
		return lastFlushed, false, err
	}
	return now, true, nil
}

// Attach creates the record of a session that started without one, seeded
// with its current content. It never touches an existing record: if one is
// found it returns ErrSnapshotExists.
func (b *Bridge) Attach(ctx context.Context, roomID, language, content, owner string) (time.Time, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	_, err := b.dir.FindByRoomID(ctx, roomID)
	if err == nil {
		return time.Time{}, fmt.Errorf("%s: %w", roomID, ErrSnapshotExists)
	}
	if !errors.Is(err, directory.ErrRoomNotFound) {
		return time.Time{}, fmt.Errorf("load room %s: %w", roomID, err)
	}

	now := b.now()
	err = b.dir.Create(ctx, &directory.Room{
		RoomID:       roomID,
		Name:         roomID,
		Language:     language,
		Content:      content,
		Participants: []string{owner},
		LastModified: now,
	})
	if errors.Is(err, directory.ErrRoomExists) {
		return time.Time{}, fmt.Errorf("%s: %w", roomID, ErrSnapshotExists)
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("create room %s: %w", roomID, err)
	}
	return now, nil
}

// UpdateLanguage records a language change, best effort.
func (b *Bridge) UpdateLanguage(ctx context.Context, roomID, language string) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()
	if err := b.dir.UpdateLanguage(ctx, roomID, language); err != nil {
		log.Printf("persistence: language update of room %s failed: %v", roomID, err)
	}
}

// Seed is what a new session starts from.
type Seed struct {
	Content  string
	Language string
	Created  bool // a new directory record was written
	Loaded   bool // content came from a persisted snapshot
}

// Bound reports whether the session is backed by a directory record it
// loaded or created. An unbound session must go through Attach before its
// content may be written.
func (s Seed) Bound() bool {
	return s.Loaded || s.Created
}

// Bootstrap loads the persisted snapshot of roomID, or creates a record with
// defaultContent. When the directory is unreachable the room starts from
// defaultContent unbound (see Seed.Bound).
func (b *Bridge) Bootstrap(ctx context.Context, roomID, language, defaultContent, owner string) Seed {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	room, err := b.dir.FindByRoomID(ctx, roomID)
	if err == nil {
		return Seed{Content: room.Content, Language: room.Language, Loaded: true}
	}
	seed := Seed{Content: defaultContent, Language: language}
	if !errors.Is(err, directory.ErrRoomNotFound) {
		log.Printf("persistence: load of room %s failed, starting from default content: %v", roomID, err)
		return seed
	}

	err = b.dir.Create(ctx, &directory.Room{
		RoomID:       roomID,
		Name:         roomID,
		Language:     language,
		Content:      defaultContent,
		Participants: []string{owner},
		LastModified: b.now(),
	})
	switch {
	case err == nil:
		seed.Created = true
	case errors.Is(err, directory.ErrRoomExists):
		// Created elsewhere between find and create; take the stored copy.
		if room, err := b.dir.FindByRoomID(ctx, roomID); err == nil {
			return Seed{Content: room.Content, Language: room.Language, Loaded: true}
		}
	default:
		log.Printf("persistence: %v", fmt.Errorf("create room %s: %w", roomID, err))
	}
	return seed
}
