package ws

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/spike/internal/config"
	"github.com/xiaot623/spike/internal/hub"
	"github.com/xiaot623/spike/internal/metrics"
	"github.com/xiaot623/spike/internal/protocol"
	"github.com/xiaot623/spike/internal/relay"
	"github.com/xiaot623/spike/internal/repository"
	"github.com/xiaot623/spike/tests/helpers"
)

type event struct {
	Type      string     `json:"type"`
	Users     []string   `json:"users"`
	From      string     `json:"from"`
	Message   string     `json:"message"`
	Timestamp *time.Time `json:"timestamp"`
	Code      string     `json:"code"`
}

type testEnv struct {
	url   string
	relay *relay.Relay
	hub   *hub.Hub
	store *store.SQLiteStore
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	cfg := &config.Config{
		CORSOrigins:    []string{"*"},
		PingInterval:   time.Minute,
		WriteTimeout:   time.Second,
		ReadTimeout:    time.Minute,
		MaxMessageSize: 4096,
		SendBuffer:     32,
	}
	m := metrics.New(prometheus.NewRegistry())
	db := helpers.NewTestSQLiteStore(t)

	h := hub.NewHub(cfg.SendBuffer, m, zerolog.Nop())
	go h.Run()
	r := relay.New(db, relay.Options{Metrics: m, Logger: zerolog.Nop()})

	e := echo.New()
	e.GET("/ws", NewServer(context.Background(), cfg, h, r, zerolog.Nop()).HandleWebSocket)
	srv := httptest.NewServer(e)

	t.Cleanup(func() {
		h.CloseAll()
		srv.Close()
		r.Wait()
		h.Stop()
	})

	return &testEnv{
		url:   "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws",
		relay: r,
		hub:   h,
		store: db,
	}
}

func (e *testEnv) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	c, _, err := websocket.DefaultDialer.Dial(e.url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func send(t *testing.T, c *websocket.Conn, v any) {
	t.Helper()
	require.NoError(t, c.WriteJSON(v))
}

func join(t *testing.T, c *websocket.Conn, username string) {
	t.Helper()
	send(t, c, map[string]string{"type": protocol.TypeJoin, "username": username})
}

func read(t *testing.T, c *websocket.Conn) event {
	t.Helper()
	require.NoError(t, c.SetReadDeadline(time.Now().Add(2*time.Second)))
	var ev event
	require.NoError(t, c.ReadJSON(&ev))
	return ev
}

// readUntil skips events until one of msgType arrives.
func readUntil(t *testing.T, c *websocket.Conn, msgType string) event {
	t.Helper()
	for {
		ev := read(t, c)
		if ev.Type == msgType {
			return ev
		}
	}
}

func TestJoinAndPresence(t *testing.T) {
	env := newTestEnv(t)

	alice := env.dial(t)
	join(t, alice, "alice")
	ev := read(t, alice)
	assert.Equal(t, protocol.TypeUserList, ev.Type)
	assert.Equal(t, []string{"alice"}, ev.Users)

	bob := env.dial(t)
	join(t, bob, "bob")
	assert.Equal(t, []string{"alice", "bob"}, readUntil(t, bob, protocol.TypeUserList).Users)
	assert.Equal(t, []string{"alice", "bob"}, readUntil(t, alice, protocol.TypeUserList).Users)

	require.NoError(t, bob.Close())
	assert.Equal(t, []string{"alice"}, readUntil(t, alice, protocol.TypeUserList).Users)
	require.Eventually(t, func() bool { return env.hub.GetConnectionCount() == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestDuplicateJoinIsRejected(t *testing.T) {
	env := newTestEnv(t)

	first := env.dial(t)
	second := env.dial(t)
	join(t, first, "alice")
	join(t, second, "alice")

	a, b := read(t, first), read(t, second)
	if a.Type == protocol.TypeError {
		a, b = b, a
	}
	assert.Equal(t, protocol.TypeUserList, a.Type)
	assert.Equal(t, []string{"alice"}, a.Users)
	assert.Equal(t, protocol.TypeError, b.Type)
	assert.Equal(t, protocol.ErrorCodeAlreadyOnline, b.Code)
	assert.Equal(t, []string{"alice"}, env.relay.Online())
}

func TestPrivateMessageDelivery(t *testing.T) {
	env := newTestEnv(t)

	alice := env.dial(t)
	join(t, alice, "alice")
	readUntil(t, alice, protocol.TypeUserList)
	bob := env.dial(t)
	join(t, bob, "bob")
	readUntil(t, bob, protocol.TypeUserList)

	send(t, alice, map[string]string{"type": protocol.TypePrivateMessage, "to": "bob", "message": "hi bob"})

	ev := readUntil(t, bob, protocol.TypePrivateMessage)
	assert.Equal(t, "alice", ev.From)
	assert.Equal(t, "hi bob", ev.Message)
	require.NotNil(t, ev.Timestamp)

	require.Eventually(t, func() bool {
		history, err := env.store.FetchConversation(context.Background(), "bob", "alice")
		return err == nil && len(history) == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestOfflineMessageIsPersisted(t *testing.T) {
	env := newTestEnv(t)

	alice := env.dial(t)
	join(t, alice, "alice")
	readUntil(t, alice, protocol.TypeUserList)

	send(t, alice, map[string]string{"type": protocol.TypePrivateMessage, "to": "carol", "message": "later"})

	require.Eventually(t, func() bool {
		history, err := env.store.FetchConversation(context.Background(), "alice", "carol")
		return err == nil && len(history) == 1 && history[0].Body == "later"
	}, 2*time.Second, 10*time.Millisecond)
}

func TestRejectedRequests(t *testing.T) {
	env := newTestEnv(t)
	c := env.dial(t)

	send(t, c, map[string]string{"type": protocol.TypePrivateMessage, "to": "bob", "message": "hi"})
	assert.Equal(t, protocol.ErrorCodeNotJoined, read(t, c).Code)

	require.NoError(t, c.WriteMessage(websocket.TextMessage, []byte("{nope")))
	assert.Equal(t, protocol.ErrorCodeInvalidMessage, read(t, c).Code)

	send(t, c, map[string]string{"type": "dance"})
	assert.Equal(t, protocol.ErrorCodeInvalidMessage, read(t, c).Code)

	join(t, c, "  ")
	assert.Equal(t, protocol.ErrorCodeUsernameRejected, read(t, c).Code)

	join(t, c, "alice")
	readUntil(t, c, protocol.TypeUserList)
	join(t, c, "alice")
	assert.Equal(t, protocol.ErrorCodeAlreadyJoined, readUntil(t, c, protocol.TypeError).Code)

	send(t, c, map[string]string{"type": protocol.TypePrivateMessage, "message": "to nobody"})
	assert.Equal(t, protocol.ErrorCodeRecipientRequired, readUntil(t, c, protocol.TypeError).Code)
}

func TestOriginAllowed(t *testing.T) {
	assert.True(t, originAllowed(nil, "http://a"))
	assert.True(t, originAllowed([]string{"*"}, "http://a"))
	assert.True(t, originAllowed([]string{"http://a"}, "http://a"))
	assert.False(t, originAllowed([]string{"http://a"}, "http://b"))
	assert.True(t, originAllowed([]string{"http://a"}, ""))
}
