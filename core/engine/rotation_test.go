package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRotation_Order(t *testing.T) {
	r := newRotation()
	qs := make([]*keyQueue, 40) // forces the ring to grow
	for i := range qs {
		qs[i] = newKeyQueue(i)
		require.True(t, r.PushBack(qs[i]))
	}
	require.Equal(t, 40, r.Len())
	for i := range qs {
		require.Same(t, qs[i], r.Take())
	}
	require.Equal(t, 0, r.Len())
}

func TestRotation_TakeBlocks(t *testing.T) {
	r := newRotation()
	got := make(chan *keyQueue, 1)
	go func() { got <- r.Take() }()

	select {
	case <-got:
		t.Fatal("Take should block on an empty rotation")
	case <-time.After(20 * time.Millisecond):
	}

	q := newKeyQueue("k")
	r.PushBack(q)
	select {
	case v := <-got:
		require.Same(t, q, v)
	case <-time.After(time.Second):
		t.Fatal("Take not woken by PushBack")
	}
}

func TestRotation_Close(t *testing.T) {
	r := newRotation()
	r.PushBack(newKeyQueue("a"))

	done := make(chan *keyQueue, 2)
	r.Take()
	go func() { done <- r.Take() }()
	go func() { done <- r.Take() }()

	r.Close()
	r.Close() // idempotent
	for i := 0; i < 2; i++ {
		select {
		case v := <-done:
			require.Nil(t, v)
		case <-time.After(time.Second):
			t.Fatal("Take not released by Close")
		}
	}
	require.False(t, r.PushBack(newKeyQueue("b")))
	require.Nil(t, r.Take())
}
