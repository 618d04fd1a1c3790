package session

import "errors"

var (
	// ErrRoomNotFound is returned when no live session exists for a room.
	ErrRoomNotFound = errors.New("room not found")
	// ErrNotParticipant is returned when the user has not joined the room.
	ErrNotParticipant = errors.New("user is not a participant of the room")
	// ErrRegistryClosed is returned after Close.
	ErrRegistryClosed = errors.New("room registry closed")

	// errSessionClosed signals a session that shut down between lookup and
	// delivery of a command.
	errSessionClosed = errors.New("session closed")
)
