package presence

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/spike/internal/session"
)

func TestRegistryBindConflict(t *testing.T) {
	r := NewRegistry(nil)
	a, b := session.New(1), session.New(1)

	require.NoError(t, r.Bind("alice", a))
	assert.ErrorIs(t, r.Bind("alice", b), ErrAlreadyOnline)

	got, ok := r.Lookup("alice")
	require.True(t, ok)
	assert.Same(t, a, got)

	// case-sensitive keys
	require.NoError(t, r.Bind("Alice", b))
	assert.Equal(t, 2, r.Len())
}

func TestRegistryConcurrentBindSingleWinner(t *testing.T) {
	for round := 0; round < 50; round++ {
		r := NewRegistry(nil)

		const contenders = 16
		var wg sync.WaitGroup
		results := make(chan error, contenders)
		start := make(chan struct{})
		for i := 0; i < contenders; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				results <- r.Bind("alice", session.New(1))
			}()
		}
		close(start)
		wg.Wait()
		close(results)

		wins, conflicts := 0, 0
		for err := range results {
			switch {
			case err == nil:
				wins++
			case errors.Is(err, ErrAlreadyOnline):
				conflicts++
			default:
				t.Fatalf("unexpected error: %v", err)
			}
		}
		require.Equal(t, 1, wins)
		require.Equal(t, contenders-1, conflicts)
	}
}

func TestRegistryUnbindIdempotent(t *testing.T) {
	var snapshots []Snapshot
	r := NewRegistry(func(s Snapshot) { snapshots = append(snapshots, s) })
	a := session.New(1)

	assert.False(t, r.Unbind("ghost", a), "never bound")
	require.NoError(t, r.Bind("alice", a))
	assert.True(t, r.Unbind("alice", a))
	assert.False(t, r.Unbind("alice", a), "second unbind")

	assert.Equal(t, 0, r.Len())
	require.Len(t, snapshots, 2, "only real changes notify")

	require.NoError(t, r.Bind("alice", session.New(1)))
	assert.Equal(t, 1, r.Len(), "registry still usable")
}

func TestRegistryUnbindIgnoresStaleOwner(t *testing.T) {
	r := NewRegistry(nil)
	old, current := session.New(1), session.New(1)

	require.NoError(t, r.Bind("alice", old))
	require.True(t, r.Unbind("alice", old))
	require.NoError(t, r.Bind("alice", current))

	assert.False(t, r.Unbind("alice", old))
	got, ok := r.Lookup("alice")
	require.True(t, ok)
	assert.Same(t, current, got)
}

func TestRegistryNotifiesSnapshots(t *testing.T) {
	var snapshots []Snapshot
	r := NewRegistry(func(s Snapshot) { snapshots = append(snapshots, s) })
	a, b := session.New(1), session.New(1)

	require.NoError(t, r.Bind("bob", b))
	require.NoError(t, r.Bind("alice", a))
	r.Unbind("bob", b)

	require.Len(t, snapshots, 3)
	assert.Equal(t, []string{"bob"}, snapshots[0].Usernames)
	assert.Equal(t, []string{"alice", "bob"}, snapshots[1].Usernames)
	assert.Equal(t, []*session.Session{a, b}, snapshots[1].Sessions)
	assert.Equal(t, []string{"alice"}, snapshots[2].Usernames)

	for i := 1; i < len(snapshots); i++ {
		assert.Greater(t, snapshots[i].Version, snapshots[i-1].Version)
	}
	assert.Equal(t, snapshots[2].Version, r.Snapshot().Version)
}
