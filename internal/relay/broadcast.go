package relay

import (
	"encoding/json"
	"errors"

	"github.com/xiaot623/spike/internal/presence"
	"github.com/xiaot623/spike/internal/protocol"
	"github.com/xiaot623/spike/internal/session"
)

// broadcastPresence sends the user list in snap to every session in it.
// It runs inside the registry lock, so it only does non-blocking pushes.
func (r *Relay) broadcastPresence(snap presence.Snapshot) {
	r.metrics.SetOnline(len(snap.Usernames))

	data, err := json.Marshal(protocol.UserListMessage{
		BaseMessage: protocol.NewBase(protocol.TypeUserList, ""),
		Users:       snap.Usernames,
	})
	if err != nil {
		r.log.Error().Err(err).Msg("failed to encode user list")
		return
	}

	for _, s := range snap.Sessions {
		err := s.Push(data)
		if err == nil || errors.Is(err, session.ErrClosed) {
			continue
		}
		r.metrics.BroadcastDropped()
		if errors.Is(err, session.ErrBufferFull) {
			r.log.Warn().Str("session", s.ID()).Uint64("version", snap.Version).Msg("session buffer full, closing")
			// Leave takes the registry lock.
			go r.Leave(s)
		}
	}
}
