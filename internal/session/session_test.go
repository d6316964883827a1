package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionLifecycle(t *testing.T) {
	s := New(4)
	assert.NotEmpty(t, s.ID())
	assert.Equal(t, StateUnbound, s.State())

	_, ok := s.Username()
	assert.False(t, ok)

	require.NoError(t, s.Bind("alice"))
	assert.Equal(t, StateBound, s.State())
	assert.ErrorIs(t, s.Bind("bob"), ErrNotUnbound)

	name, ok := s.Username()
	assert.True(t, ok)
	assert.Equal(t, "alice", name)

	name, wasBound := s.Close()
	assert.True(t, wasBound)
	assert.Equal(t, "alice", name)
	assert.Equal(t, StateClosed, s.State())

	select {
	case <-s.Done():
	default:
		t.Fatal("done channel not closed")
	}

	_, wasBound = s.Close()
	assert.False(t, wasBound, "second close must not report the username again")
	assert.ErrorIs(t, s.Bind("carol"), ErrClosed)
}

func TestSessionCloseUnbound(t *testing.T) {
	s := New(1)
	name, wasBound := s.Close()
	assert.False(t, wasBound)
	assert.Empty(t, name)
}

func TestSessionPush(t *testing.T) {
	s := New(1)
	require.NoError(t, s.Push([]byte("one")))
	assert.ErrorIs(t, s.Push([]byte("two")), ErrBufferFull)
	assert.Equal(t, []byte("one"), <-s.Out())

	s.Close()
	assert.ErrorIs(t, s.Push([]byte("three")), ErrClosed)
}
