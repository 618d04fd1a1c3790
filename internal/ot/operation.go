// Package ot implements the operation transform used to reconcile concurrent
// edits to a shared text document.
package ot

import (
	"errors"
	"fmt"
	"math"
	"time"
	"unicode/utf8"
)

// ErrInvalidOperation is returned for operations with a malformed shape.
var ErrInvalidOperation = errors.New("invalid operation")

// MaxOffset is the largest accepted position or length.
const MaxOffset = 1 << 30

// Kind identifies the edit an Operation performs.
type Kind string

const (
	KindInsert Kind = "insert"
	KindDelete Kind = "delete"
)

// Operation is an immutable insert or delete. Positions and lengths count
// runes, not bytes.
type Operation struct {
	Kind      Kind      `json:"type"`
	Position  int       `json:"position"`
	Text      string    `json:"text,omitempty"`
	Length    int       `json:"length,omitempty"`
	OriginID  string    `json:"userId,omitempty"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}

// Insert builds an insert operation.
func Insert(pos int, text string) Operation {
	return Operation{Kind: KindInsert, Position: pos, Text: text}
}

// Delete builds a delete operation.
func Delete(pos, length int) Operation {
	return Operation{Kind: KindDelete, Position: pos, Length: length}
}

// Validate reports whether op has a shape the engine can transform and apply.
func (op Operation) Validate() error {
	switch op.Kind {
	case KindInsert, KindDelete:
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidOperation, op.Kind)
	}
	if op.Position < 0 {
		return fmt.Errorf("%w: negative position %d", ErrInvalidOperation, op.Position)
	}
	if op.Length < 0 {
		return fmt.Errorf("%w: negative length %d", ErrInvalidOperation, op.Length)
	}
	if op.Position > MaxOffset || op.Length > MaxOffset {
		return fmt.Errorf("%w: offset beyond %d", ErrInvalidOperation, MaxOffset)
	}
	return nil
}

// Stamp returns a copy of op attributed to originID at ts.
func (op Operation) Stamp(originID string, ts time.Time) Operation {
	op.OriginID = originID
	op.Timestamp = ts
	return op
}

// Size is the number of runes the operation inserts or removes.
func (op Operation) Size() int {
	if op.Kind == KindInsert {
		return utf8.RuneCountInString(op.Text)
	}
	return op.Length
}

// end saturates at math.MaxInt.
func (op Operation) end() int {
	if op.Length > math.MaxInt-op.Position {
		return math.MaxInt
	}
	return op.Position + op.Length
}

// shift moves the operation by delta, saturating at 0 and math.MaxInt.
func (op Operation) shift(delta int) Operation {
	switch {
	case delta > 0 && op.Position > math.MaxInt-delta:
		op.Position = math.MaxInt
	case op.Position+delta < 0:
		op.Position = 0
	default:
		op.Position += delta
	}
	return op
}

func (op Operation) String() string {
	if op.Kind == KindInsert {
		return fmt.Sprintf("insert(%d,%q)", op.Position, op.Text)
	}
	return fmt.Sprintf("delete(%d,%d)", op.Position, op.Length)
}
