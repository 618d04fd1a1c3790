package presence

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTrackerLastWriteWins(t *testing.T) {
	tr := NewTracker()
	tr.Set("u1", Cursor{Line: 1, Column: 2}, nil)
	tr.Set("u1", Cursor{Line: 3, Column: 4}, &Selection{End: Cursor{Line: 3, Column: 9}})

	st := tr.Get("u1")
	assert.Equal(t, Cursor{Line: 3, Column: 4}, st.Cursor)
	if assert.NotNil(t, st.Selection) {
		assert.Equal(t, 9, st.Selection.End.Column)
	}
	assert.Equal(t, 1, tr.Len())
}

func TestTrackerCopiesSelection(t *testing.T) {
	tr := NewTracker()
	sel := &Selection{Start: Cursor{Line: 1}}
	tr.Set("u1", Cursor{}, sel)
	sel.Start.Line = 7
	assert.Equal(t, 1, tr.Get("u1").Selection.Start.Line)
}

func TestTrackerRemove(t *testing.T) {
	tr := NewTracker()
	tr.Set("u1", Cursor{Line: 1}, nil)
	tr.Remove("u1")
	assert.Equal(t, State{}, tr.Get("u1"))
	assert.Zero(t, tr.Len())
}
