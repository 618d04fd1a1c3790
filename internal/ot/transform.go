package ot

import "fmt"

// Transform derives (a', b') from two operations issued against the same
// content, so that applying b then a' yields the same result as applying a
// then b'.
//
// Known gaps, kept as-is: overlapping deletes and an insert strictly inside a
// concurrently deleted range are returned unchanged, so those pairs do not
// converge.
func Transform(a, b Operation) (Operation, Operation) {
	switch a.Kind {
	case KindInsert:
		switch b.Kind {
		case KindInsert:
			// Equal positions favor a.
			if a.Position <= b.Position {
				return a, b.shift(a.Size())
			}
			return a.shift(b.Size()), b
		case KindDelete:
			return transformInsertDelete(a, b)
		}
	case KindDelete:
		switch b.Kind {
		case KindInsert:
			ins, del := transformInsertDelete(b, a)
			return del, ins
		case KindDelete:
			if a.end() <= b.Position {
				return a, b.shift(-a.Length)
			}
			if b.end() <= a.Position {
				return a.shift(-b.Length), b
			}
			// Overlapping ranges fall through.
			return a, b
		}
	}
	panic(fmt.Sprintf("ot: transform of unvalidated operations %v, %v", a, b))
}

// transformInsertDelete handles the mixed pair. An insert strictly inside
// the deleted range falls through unchanged.
func transformInsertDelete(ins, del Operation) (Operation, Operation) {
	if ins.Position <= del.Position {
		return ins, del.shift(ins.Size())
	}
	if ins.Position >= del.end() {
		return ins.shift(-del.Length), del
	}
	return ins, del
}

// Apply returns content with op applied. Positions past either end of content
// are clipped.
func Apply(content string, op Operation) (string, error) {
	if err := op.Validate(); err != nil {
		return content, err
	}
	runes := []rune(content)
	pos := clip(op.Position, len(runes))
	switch op.Kind {
	case KindInsert:
		out := make([]rune, 0, len(runes)+op.Size())
		out = append(out, runes[:pos]...)
		out = append(out, []rune(op.Text)...)
		out = append(out, runes[pos:]...)
		return string(out), nil
	default:
		end := pos + min(op.Length, len(runes)-pos)
		return string(runes[:pos]) + string(runes[end:]), nil
	}
}

func clip(v, n int) int {
	if v < 0 {
		return 0
	}
	if v > n {
		return n
	}
	return v
}
