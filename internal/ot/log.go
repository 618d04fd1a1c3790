package ot

// DefaultLogCapacity is the number of applied operations a room keeps for
// reconciling later submissions.
const DefaultLogCapacity = 100

// Log holds the most recently applied operations in arrival order. When full,
// the oldest entry is evicted first. Not safe for concurrent use.
type Log struct {
	entries  []Operation
	capacity int
}

// NewLog creates a log bounded to capacity entries (DefaultLogCapacity when
// capacity <= 0).
func NewLog(capacity int) *Log {
	if capacity <= 0 {
		capacity = DefaultLogCapacity
	}
	return &Log{entries: make([]Operation, 0, capacity), capacity: capacity}
}

// Append records op and truncates the log to its capacity.
func (l *Log) Append(op Operation) {
	l.entries = append(l.entries, op)
	if over := len(l.entries) - l.capacity; over > 0 {
		copy(l.entries, l.entries[over:])
		l.entries = l.entries[:l.capacity]
	}
}

// Rebase threads op through Transform against every logged entry not
// originating from op.OriginID, feeding each step's output into the next.
func (l *Log) Rebase(op Operation) Operation {
	for _, entry := range l.entries {
		if entry.OriginID == op.OriginID {
			continue
		}
		op, _ = Transform(op, entry)
	}
	return op
}

// Entries returns a copy of the logged operations, oldest first.
func (l *Log) Entries() []Operation {
	out := make([]Operation, len(l.entries))
	copy(out, l.entries)
	return out
}

func (l *Log) Len() int {
	return len(l.entries)
}

func (l *Log) Capacity() int {
	return l.capacity
}
