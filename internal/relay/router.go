package relay

import (
	"context"
	"encoding/json"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/xiaot623/spike/internal/domain"
	"github.com/xiaot623/spike/internal/metrics"
	"github.com/xiaot623/spike/internal/protocol"
	"github.com/xiaot623/spike/internal/session"
)

// Route sends body from the user bound to s to the user named to. The
// message is pushed to the recipient when online and handed to the store in
// every case. Delivery and write failures are logged, not returned.
// ctx bounds only the wait for a write slot.
func (r *Relay) Route(ctx context.Context, s *session.Session, to, body string) (*domain.Message, error) {
	from, bound := s.Username()
	if !bound || s.State() != session.StateBound {
		return nil, ErrNotJoined
	}
	if to == "" {
		return nil, ErrRecipientRequired
	}

	sentAt := r.now().UTC()
	msg := &domain.Message{
		ID:     ulid.MustNew(ulid.Timestamp(sentAt), ulid.DefaultEntropy()).String(),
		From:   from,
		To:     to,
		Body:   body,
		SentAt: sentAt,
	}

	r.deliver(msg)
	r.persist(ctx, msg)
	return msg, nil
}

// deliver pushes msg to the recipient's session if it is online.
func (r *Relay) deliver(msg *domain.Message) {
	peer, online := r.registry.Lookup(msg.To)
	if !online {
		r.metrics.Routed(metrics.DeliveryOffline)
		return
	}

	sentAt := msg.SentAt
	data, err := json.Marshal(protocol.PrivateMessage{
		BaseMessage: protocol.NewBase(protocol.TypePrivateMessage, ""),
		From:        msg.From,
		Message:     msg.Body,
		Timestamp:   &sentAt,
	})
	if err != nil {
		r.metrics.Routed(metrics.DeliveryDropped)
		r.log.Error().Err(err).Str("message_id", msg.ID).Msg("failed to encode delivery")
		return
	}

	if err := peer.Push(data); err != nil {
		r.metrics.Routed(metrics.DeliveryDropped)
		r.log.Warn().Err(err).
			Str("message_id", msg.ID).
			Str("to", msg.To).
			Msg("live delivery dropped")
		return
	}
	r.metrics.Routed(metrics.DeliveryLive)
}

// persist writes msg on its own goroutine once a write slot is free.
func (r *Relay) persist(ctx context.Context, msg *domain.Message) {
	if err := r.writes.Acquire(ctx, 1); err != nil {
		r.metrics.PersistFailed()
		r.log.Error().Err(err).Str("message_id", msg.ID).Msg("message not persisted, no write slot")
		return
	}

	r.inflight.Add(1)
	go func() {
		defer r.inflight.Done()
		defer r.writes.Release(1)

		writeCtx, cancel := context.WithTimeout(context.Background(), r.persistTimeout)
		defer cancel()

		start := time.Now()
		err := r.store.InsertMessage(writeCtx, msg)
		r.metrics.ObservePersist(time.Since(start).Seconds())
		if err != nil {
			r.metrics.PersistFailed()
			r.log.Error().Err(err).
				Str("message_id", msg.ID).
				Str("from", msg.From).
				Str("to", msg.To).
				Msg("failed to persist message")
		}
	}()
}
