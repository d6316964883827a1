package hub

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/spike/internal/metrics"
	"github.com/xiaot623/spike/internal/session"
)

func TestHubRegisterUnregister(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	h := NewHub(8, m, zerolog.Nop())
	go h.Run()
	defer h.Stop()

	a := h.NewConnection(nil)
	b := h.NewConnection(nil)
	assert.NotEqual(t, a.ID(), b.ID())
	assert.Equal(t, session.StateUnbound, a.Session.State())

	h.Register(a)
	h.Register(b)
	require.Eventually(t, func() bool { return h.GetConnectionCount() == 2 }, time.Second, 5*time.Millisecond)

	h.Unregister(a)
	h.Unregister(a)
	require.Eventually(t, func() bool { return h.GetConnectionCount() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ConnectionsActive))

	// nil transports are tolerated
	h.CloseAll()
}
