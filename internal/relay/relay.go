// Package relay binds sessions to usernames, fans out presence changes and
// routes private messages to live peers and to the store.
package relay

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/xiaot623/spike/internal/metrics"
	"github.com/xiaot623/spike/internal/policy"
	"github.com/xiaot623/spike/internal/presence"
	"github.com/xiaot623/spike/internal/repository"
	"github.com/xiaot623/spike/internal/session"
)

var (
	// ErrAlreadyOnline is returned by Join when another session holds the username.
	ErrAlreadyOnline = presence.ErrAlreadyOnline
	// ErrAlreadyJoined is returned by Join when the session is already bound.
	ErrAlreadyJoined = errors.New("session already joined")
	// ErrUsernameRejected is returned by Join when the join policy denies the username.
	ErrUsernameRejected = errors.New("username rejected")
	// ErrNotJoined is returned by Route when the sending session has not joined.
	ErrNotJoined = errors.New("session has not joined")
	// ErrRecipientRequired is returned by Route when no recipient is given.
	ErrRecipientRequired = errors.New("recipient is required")
)

// Options configures a Relay.
type Options struct {
	// MaxInFlightWrites bounds concurrent message writes. Zero means 64.
	MaxInFlightWrites int64
	// PersistTimeout bounds a single message write. Zero means 5s.
	PersistTimeout time.Duration
	// Policy is consulted on every join when set.
	Policy  *policy.Engine
	Metrics *metrics.Metrics
	Logger  zerolog.Logger
	// Now overrides the clock used for sentAt.
	Now func() time.Time
}

// Relay is the presence and message-routing core.
type Relay struct {
	registry *presence.Registry
	store    store.MessageWriter
	policy   *policy.Engine

	writes         *semaphore.Weighted
	inflight       sync.WaitGroup
	persistTimeout time.Duration

	metrics *metrics.Metrics
	log     zerolog.Logger
	now     func() time.Time
}

// New creates a relay that persists messages through w.
func New(w store.MessageWriter, opts Options) *Relay {
	if opts.MaxInFlightWrites <= 0 {
		opts.MaxInFlightWrites = 64
	}
	if opts.PersistTimeout <= 0 {
		opts.PersistTimeout = 5 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	r := &Relay{
		store:          w,
		policy:         opts.Policy,
		writes:         semaphore.NewWeighted(opts.MaxInFlightWrites),
		persistTimeout: opts.PersistTimeout,
		metrics:        opts.Metrics,
		log:            opts.Logger.With().Str("component", "relay").Logger(),
		now:            opts.Now,
	}
	r.registry = presence.NewRegistry(r.broadcastPresence)
	return r
}

// Join claims username for s. On success every bound session, s included,
// receives the new user list.
func (r *Relay) Join(ctx context.Context, s *session.Session, username string) error {
	switch s.State() {
	case session.StateBound:
		r.metrics.JoinResult("already_joined")
		return ErrAlreadyJoined
	case session.StateClosed:
		return session.ErrClosed
	}

	if strings.TrimSpace(username) == "" {
		r.metrics.JoinResult("rejected")
		return fmt.Errorf("%w: username is required", ErrUsernameRejected)
	}
	if r.policy != nil {
		decision, reason, err := r.policy.EvaluateJoin(ctx, policy.JoinInput{
			Username: username,
			Online:   r.registry.Len(),
		})
		if err != nil {
			return fmt.Errorf("failed to evaluate join policy: %w", err)
		}
		if decision != policy.DecisionAllow {
			r.metrics.JoinResult("rejected")
			if reason == "" {
				return ErrUsernameRejected
			}
			return fmt.Errorf("%w: %s", ErrUsernameRejected, reason)
		}
	}

	if err := r.registry.Bind(username, s); err != nil {
		r.metrics.JoinResult("already_online")
		r.log.Info().Str("username", username).Str("session", s.ID()).Msg("join refused, username already online")
		return err
	}
	if err := s.Bind(username); err != nil {
		// The connection closed while the bind was in progress.
		r.registry.Unbind(username, s)
		return err
	}

	r.metrics.JoinResult("ok")
	r.log.Info().Str("username", username).Str("session", s.ID()).Msg("user joined")
	return nil
}

// Leave closes s and releases its username. It is safe to call more than once.
func (r *Relay) Leave(s *session.Session) {
	username, wasBound := s.Close()
	if !wasBound {
		return
	}
	if r.registry.Unbind(username, s) {
		r.log.Info().Str("username", username).Str("session", s.ID()).Msg("user left")
	}
}

// Online returns the usernames currently bound, sorted.
func (r *Relay) Online() []string {
	return r.registry.Snapshot().Usernames
}

// OnlineCount returns the number of bound usernames.
func (r *Relay) OnlineCount() int {
	return r.registry.Len()
}

// Wait blocks until every dispatched message write has finished.
func (r *Relay) Wait() {
	r.inflight.Wait()
}
