package engine

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKeyQueue_FIFO(t *testing.T) {
	q := newKeyQueue("k")
	require.Equal(t, "k", q.Key())
	require.True(t, q.IsEmpty())

	var got []int
	for i := 0; i < 100; i++ {
		q.Push(func() { got = append(got, i) })
	}
	require.Equal(t, 100, q.Size())

	for !q.IsEmpty() {
		item, ok := q.Pop()
		require.True(t, ok)
		item()
	}
	for i, v := range got {
		require.Equal(t, i, v)
	}

	_, ok := q.Pop()
	require.False(t, ok)
	require.Equal(t, 0, q.Size())
}

func TestKeyQueue_InterleavedPushPop(t *testing.T) {
	q := newKeyQueue(1)
	next, want := 0, 0
	var got int
	for round := 0; round < 50; round++ {
		for i := 0; i < 3; i++ {
			v := next
			q.Push(func() { got = v })
			next++
		}
		for i := 0; i < 2; i++ {
			item, ok := q.Pop()
			require.True(t, ok)
			item()
			require.Equal(t, want, got)
			want++
		}
	}
	require.Equal(t, next-want, q.Size())
}

func TestKeyQueue_Drop(t *testing.T) {
	q := newKeyQueue("k")
	q.Push(func() {})
	q.Push(func() {})
	require.Equal(t, 2, q.drop())
	require.True(t, q.IsEmpty())
}
