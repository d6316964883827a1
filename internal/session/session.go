// Package session models one live client connection and its join state.
package session

import (
	"errors"
	"sync"

	"github.com/google/uuid"
)

// State is the join state of a session.
type State int

const (
	StateUnbound State = iota
	StateBound
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUnbound:
		return "unbound"
	case StateBound:
		return "bound"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

var (
	// ErrBufferFull is returned when the outbound buffer cannot take another frame.
	ErrBufferFull = errors.New("send buffer full")
	// ErrClosed is returned when the session is already closed.
	ErrClosed = errors.New("session closed")
	// ErrNotUnbound is returned by Bind when the session already holds a username.
	ErrNotUnbound = errors.New("session already bound")
)

// Session is the per-connection state. The connection layer owns it; other
// components only hold references for lookup and delivery.
type Session struct {
	id   string
	out  chan []byte
	done chan struct{}

	mu       sync.Mutex
	state    State
	username string
}

// New creates an unbound session with an outbound buffer of the given size.
func New(bufferSize int) *Session {
	if bufferSize <= 0 {
		bufferSize = 1
	}
	return &Session{
		id:   uuid.New().String(),
		out:  make(chan []byte, bufferSize),
		done: make(chan struct{}),
	}
}

// ID returns the opaque connection handle.
func (s *Session) ID() string {
	return s.id
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Username returns the bound username, if any. It stays readable after Close.
func (s *Session) Username() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.username, s.username != ""
}

// Bind moves an unbound session to bound. It is the only place the username is set.
func (s *Session) Bind(username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case StateClosed:
		return ErrClosed
	case StateBound:
		return ErrNotUnbound
	}
	s.state = StateBound
	s.username = username
	return nil
}

// Close marks the session closed and returns the username that was bound.
// Only the first call reports the username; later calls return "", false.
func (s *Session) Close() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		return "", false
	}
	wasBound := s.state == StateBound
	s.state = StateClosed
	close(s.done)
	if !wasBound {
		return "", false
	}
	return s.username, true
}

// Push enqueues a frame without blocking.
func (s *Session) Push(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		return ErrClosed
	}
	select {
	case s.out <- data:
		return nil
	default:
		return ErrBufferFull
	}
}

// Out is the outbound frame queue drained by the connection writer.
func (s *Session) Out() <-chan []byte {
	return s.out
}

// Done is closed when the session closes.
func (s *Session) Done() <-chan struct{} {
	return s.done
}
