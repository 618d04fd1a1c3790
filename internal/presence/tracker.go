// Package presence tracks per-participant cursor and selection state,
// independently of document content.
package presence

// Cursor is a line/column caret position.
type Cursor struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

// Selection is a highlighted range, nil when nothing is selected.
type Selection struct {
	Start Cursor `json:"start"`
	End   Cursor `json:"end"`
}

// State is one participant's presence.
type State struct {
	Cursor    Cursor     `json:"cursor"`
	Selection *Selection `json:"selection"`
}

// Tracker is a last-write-wins presence table keyed by user id. It is owned by
// a single room actor and is not safe for concurrent use.
type Tracker struct {
	states map[string]State
}

func NewTracker() *Tracker {
	return &Tracker{states: make(map[string]State)}
}

// Set replaces the presence of userID.
func (t *Tracker) Set(userID string, cursor Cursor, sel *Selection) State {
	if sel != nil {
		cp := *sel
		sel = &cp
	}
	st := State{Cursor: cursor, Selection: sel}
	t.states[userID] = st
	return st
}

// Get returns the presence of userID, or the zero state.
func (t *Tracker) Get(userID string) State {
	return t.states[userID]
}

func (t *Tracker) Remove(userID string) {
	delete(t.states, userID)
}

func (t *Tracker) Len() int {
	return len(t.states)
}
