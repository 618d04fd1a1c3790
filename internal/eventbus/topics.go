package eventbus

const (
	TopicRoomEvents = "room_events"
)

const (
	TypeRoomCreated      = "room.created"
	TypeRoomDestroyed    = "room.destroyed"
	TypeSnapshotFlushed  = "room.snapshot.flushed"
	TypeLanguageChanged  = "room.language.changed"
	TypeParticipantJoin  = "participant.joined"
	TypeParticipantLeave = "participant.left"
)
