// Package presence tracks which usernames are currently connected.
package presence

import (
	"errors"
	"slices"
	"sync"

	"github.com/samber/lo"

	"github.com/xiaot623/spike/internal/session"
)

// ErrAlreadyOnline is returned when a username is already bound to an open session.
var ErrAlreadyOnline = errors.New("username already online")

// Snapshot is a point-in-time copy of the registry.
type Snapshot struct {
	Version   uint64
	Usernames []string
	Sessions  []*session.Session
}

// Notifier receives every snapshot produced by a bind or unbind. It runs
// inside the registry's critical section and must not block or call back
// into the registry.
type Notifier func(Snapshot)

// Registry maps usernames to the session that claimed them. At most one
// session holds a username at any time.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*session.Session
	version uint64
	notify  Notifier
}

// NewRegistry creates an empty registry. notify may be nil.
func NewRegistry(notify Notifier) *Registry {
	return &Registry{
		entries: make(map[string]*session.Session),
		notify:  notify,
	}
}

// Bind claims username for s.
func (r *Registry) Bind(username string, s *session.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[username]; exists {
		return ErrAlreadyOnline
	}
	r.entries[username] = s
	r.changedLocked()
	return nil
}

// Unbind releases username if s still holds it. Unknown usernames and
// repeated calls are no-ops. It reports whether an entry was removed.
func (r *Registry) Unbind(username string, s *session.Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, exists := r.entries[username]
	if !exists || current != s {
		return false
	}
	delete(r.entries, username)
	r.changedLocked()
	return true
}

// Lookup returns the session bound to username.
func (r *Registry) Lookup(username string) (*session.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.entries[username]
	return s, ok
}

// Snapshot returns the current usernames (sorted) and their sessions.
func (r *Registry) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

// Len returns the number of bound usernames.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

func (r *Registry) changedLocked() {
	r.version++
	if r.notify != nil {
		r.notify(r.snapshotLocked())
	}
}

func (r *Registry) snapshotLocked() Snapshot {
	usernames := lo.Keys(r.entries)
	slices.Sort(usernames)
	sessions := lo.Map(usernames, func(name string, _ int) *session.Session {
		return r.entries[name]
	})
	return Snapshot{
		Version:   r.version,
		Usernames: usernames,
		Sessions:  sessions,
	}
}
