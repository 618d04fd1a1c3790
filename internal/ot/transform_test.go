package ot_test

import (
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coderoom-core/internal/ot"
)

func TestTransform(t *testing.T) {
	run := func(a, b, wantA, wantB ot.Operation) {
		t.Helper()
		gotA, gotB := ot.Transform(a, b)
		assert.Equal(t, wantA, gotA, "a' for %v, %v", a, b)
		assert.Equal(t, wantB, gotB, "b' for %v, %v", a, b)
	}

	// Insert-insert.
	run(ot.Insert(1, "f"), ot.Insert(1, "foo"), ot.Insert(1, "f"), ot.Insert(2, "foo"))
	run(ot.Insert(1, "foo"), ot.Insert(2, "f"), ot.Insert(1, "foo"), ot.Insert(5, "f"))
	run(ot.Insert(2, "foo"), ot.Insert(1, "f"), ot.Insert(3, "foo"), ot.Insert(1, "f"))

	// Insert-delete and delete-insert.
	run(ot.Insert(2, "foo"), ot.Delete(0, 1), ot.Insert(1, "foo"), ot.Delete(0, 1))
	run(ot.Insert(2, "foo"), ot.Delete(2, 2), ot.Insert(2, "foo"), ot.Delete(5, 2))
	run(ot.Insert(2, "foo"), ot.Delete(3, 2), ot.Insert(2, "foo"), ot.Delete(6, 2))
	run(ot.Insert(4, "x"), ot.Delete(1, 3), ot.Insert(1, "x"), ot.Delete(1, 3))
	run(ot.Delete(0, 1), ot.Insert(2, "foo"), ot.Delete(0, 1), ot.Insert(1, "foo"))
	run(ot.Delete(2, 2), ot.Insert(2, "foo"), ot.Delete(5, 2), ot.Insert(2, "foo"))

	// Delete-delete.
	run(ot.Delete(0, 2), ot.Delete(3, 4), ot.Delete(0, 2), ot.Delete(1, 4))
	run(ot.Delete(3, 2), ot.Delete(5, 1), ot.Delete(3, 2), ot.Delete(3, 1))
	run(ot.Delete(8, 2), ot.Delete(3, 4), ot.Delete(4, 2), ot.Delete(3, 4))
}

// Insert inside a concurrently deleted range and overlapping deletes are
// returned unchanged. These pairs do not converge.
func TestTransformKnownGaps(t *testing.T) {
	cases := []struct{ a, b ot.Operation }{
		{ot.Insert(2, "foo"), ot.Delete(1, 2)},
		{ot.Delete(1, 2), ot.Insert(2, "foo")},
		{ot.Delete(2, 2), ot.Delete(3, 4)},
		{ot.Delete(3, 4), ot.Delete(3, 4)},
		{ot.Delete(0, 3), ot.Delete(1, 3)},
	}
	for _, tc := range cases {
		gotA, gotB := ot.Transform(tc.a, tc.b)
		assert.Equal(t, tc.a, gotA)
		assert.Equal(t, tc.b, gotB)
	}
}

func TestTransformConverges(t *testing.T) {
	const base = "hello world"
	cases := []struct{ a, b ot.Operation }{
		{ot.Insert(5, "X"), ot.Insert(5, "Y")},
		{ot.Insert(0, "abc"), ot.Insert(11, "!")},
		{ot.Insert(6, "big "), ot.Delete(0, 5)},
		{ot.Delete(6, 5), ot.Insert(0, ">> ")},
		{ot.Delete(0, 2), ot.Delete(5, 3)},
		{ot.Delete(7, 2), ot.Delete(1, 1)},
		{ot.Insert(5, "é"), ot.Delete(5, 1)},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprintf("%v/%v", tc.a, tc.b), func(t *testing.T) {
			ap, bp := ot.Transform(tc.a, tc.b)

			left, err := ot.Apply(base, tc.b)
			require.NoError(t, err)
			left, err = ot.Apply(left, ap)
			require.NoError(t, err)

			right, err := ot.Apply(base, tc.a)
			require.NoError(t, err)
			right, err = ot.Apply(right, bp)
			require.NoError(t, err)

			assert.Equal(t, left, right)
		})
	}
}

func TestTransformDoesNotMutateInputs(t *testing.T) {
	a, b := ot.Insert(1, "x"), ot.Insert(1, "y")
	_, bp := ot.Transform(a, b)
	assert.Equal(t, 1, b.Position)
	assert.Equal(t, 2, bp.Position)
}

func TestTransformSaturatesAtIntBounds(t *testing.T) {
	ap, bp := ot.Transform(ot.Insert(math.MaxInt, "x"), ot.Insert(0, "yy"))
	assert.Equal(t, math.MaxInt, ap.Position)
	assert.Equal(t, 0, bp.Position)

	ap, _ = ot.Transform(ot.Delete(math.MaxInt-1, 1), ot.Delete(0, 10))
	assert.Equal(t, math.MaxInt-11, ap.Position)

	_, bp = ot.Transform(ot.Delete(0, math.MaxInt), ot.Delete(math.MaxInt-1, 1))
	assert.GreaterOrEqual(t, bp.Position, 0)
}

func TestApply(t *testing.T) {
	s, err := ot.Apply("hello world", ot.Insert(5, ","))
	require.NoError(t, err)
	assert.Equal(t, "hello, world", s)

	s, err = ot.Apply(s, ot.Delete(5, 1))
	require.NoError(t, err)
	assert.Equal(t, "hello world", s)
}

func TestApplyClipsRanges(t *testing.T) {
	cases := []struct {
		content string
		op      ot.Operation
		want    string
	}{
		{"abc", ot.Insert(10, "x"), "abcx"},
		{"abc", ot.Insert(0, "x"), "xabc"},
		{"abc", ot.Delete(1, 10), "a"},
		{"abc", ot.Delete(5, 2), "abc"},
		{"", ot.Delete(0, 1), ""},
		{"héllo", ot.Delete(1, 1), "hllo"},
		{"日本語", ot.Insert(1, "の"), "日の本語"},
		{"hello", ot.Delete(3, ot.MaxOffset), "hel"},
		{"hello", ot.Delete(ot.MaxOffset, ot.MaxOffset), "hello"},
		{"hello", ot.Insert(ot.MaxOffset, "!"), "hello!"},
	}
	for _, tc := range cases {
		got, err := ot.Apply(tc.content, tc.op)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got, "%q %v", tc.content, tc.op)
	}
}

func TestApplyRejectsMalformed(t *testing.T) {
	for _, op := range []ot.Operation{
		{Kind: "replace", Position: 0},
		ot.Insert(-1, "x"),
		ot.Delete(0, -2),
		ot.Delete(math.MaxInt-5, 100),
		ot.Insert(ot.MaxOffset+1, "x"),
		ot.Delete(0, math.MaxInt),
	} {
		got, err := ot.Apply("abc", op)
		assert.ErrorIs(t, err, ot.ErrInvalidOperation)
		assert.Equal(t, "abc", got)
	}
}
