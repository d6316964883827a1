package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/samber/lo"

	"github.com/xiaot623/spike/internal/domain"
	"github.com/xiaot623/spike/internal/protocol"
)

// errUnauthorized is returned by Login on a wrong password.
var errUnauthorized = errors.New("invalid username or password")

// API is a client for the account and history endpoints.
type API struct {
	baseURL string
	http    *http.Client
}

// NewAPI creates a client for the HTTP API at baseURL.
func NewAPI(baseURL string) *API {
	return &API{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

// UserExists reports whether username is registered.
func (a *API) UserExists(username string) (bool, error) {
	var resp struct {
		Exists bool `json:"exists"`
	}
	if err := a.post("/check-user", map[string]string{"username": username}, &resp); err != nil {
		return false, err
	}
	return resp.Exists, nil
}

// Register creates an account.
func (a *API) Register(username, password string) error {
	return a.post("/register", map[string]string{"username": username, "password": password}, nil)
}

// Login checks credentials.
func (a *API) Login(username, password string) error {
	return a.post("/login", map[string]string{"username": username, "password": password}, nil)
}

// History returns the conversation between username and other.
func (a *API) History(username, other string) ([]domain.Message, error) {
	var messages []domain.Message
	err := a.get("/messages", url.Values{"username": {username}, "otherUser": {other}}, &messages)
	return messages, err
}

// PastUsers returns everyone username has talked to.
func (a *API) PastUsers(username string) ([]string, error) {
	var users []string
	err := a.get("/past-users", url.Values{"username": {username}}, &users)
	return users, err
}

// Search returns registered usernames matching query.
func (a *API) Search(username, query string) ([]string, error) {
	var users []string
	err := a.get("/search-users", url.Values{"username": {username}, "query": {query}}, &users)
	return users, err
}

func (a *API) post(path string, body interface{}, out interface{}) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	resp, err := a.http.Post(a.baseURL+path, "application/json", bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("post %s: %w", path, err)
	}
	defer resp.Body.Close()
	return decode(resp, out)
}

func (a *API) get(path string, query url.Values, out interface{}) error {
	resp, err := a.http.Get(a.baseURL + path + "?" + query.Encode())
	if err != nil {
		return fmt.Errorf("get %s: %w", path, err)
	}
	defer resp.Body.Close()
	return decode(resp, out)
}

func decode(resp *http.Response, out interface{}) error {
	if resp.StatusCode == http.StatusUnauthorized {
		return errUnauthorized
	}
	if resp.StatusCode != http.StatusOK {
		var body struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&body)
		if body.Error == "" {
			body.Error = resp.Status
		}
		return errors.New(body.Error)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// Chat is a joined WebSocket session.
type Chat struct {
	conn     *websocket.Conn
	username string

	mu     sync.Mutex
	online []string
}

// Dial connects to addr and joins as username. It returns once the relay
// has answered the join.
func Dial(addr, username string) (*Chat, error) {
	conn, _, err := websocket.DefaultDialer.Dial(addr, nil)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}

	join := protocol.JoinMessage{
		BaseMessage: protocol.NewBase(protocol.TypeJoin, ""),
		Username:    username,
	}
	if err := conn.WriteJSON(join); err != nil {
		conn.Close()
		return nil, fmt.Errorf("write join: %w", err)
	}

	// The first answer is the user list on success or an error event.
	_, data, err := conn.ReadMessage()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("read join reply: %w", err)
	}
	c := &Chat{conn: conn, username: username}
	if ev, err := c.handle(data); err != nil {
		conn.Close()
		return nil, err
	} else if ev.Type == protocol.TypeError {
		conn.Close()
		return nil, fmt.Errorf("join failed: %s", ev.Text)
	}
	return c, nil
}

// Close closes the connection.
func (c *Chat) Close() error {
	c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return c.conn.Close()
}

// Send addresses body to a peer.
func (c *Chat) Send(to, body string) error {
	return c.conn.WriteJSON(protocol.PrivateMessage{
		BaseMessage: protocol.NewBase(protocol.TypePrivateMessage, ""),
		To:          to,
		Message:     body,
	})
}

// Peers returns the online users other than ourselves.
func (c *Chat) Peers() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return lo.Filter(c.online, func(u string, _ int) bool { return u != c.username })
}

// Event is a decoded server frame ready for display.
type Event struct {
	Type string
	Text string
}

// Events reads frames until the connection closes.
func (c *Chat) Events() <-chan Event {
	out := make(chan Event)
	go func() {
		defer close(out)
		for {
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
					out <- Event{Type: protocol.TypeError, Text: "connection lost: " + err.Error()}
				}
				return
			}
			ev, err := c.handle(data)
			if err != nil {
				continue
			}
			out <- ev
		}
	}()
	return out
}

func (c *Chat) handle(data []byte) (Event, error) {
	var base protocol.BaseMessage
	if err := json.Unmarshal(data, &base); err != nil {
		return Event{}, err
	}

	switch base.Type {
	case protocol.TypeUserList:
		var msg protocol.UserListMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return Event{}, err
		}
		c.mu.Lock()
		c.online = msg.Users
		c.mu.Unlock()
		return Event{Type: base.Type, Text: formatOnline(c.Peers())}, nil

	case protocol.TypePrivateMessage:
		var msg protocol.PrivateMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return Event{}, err
		}
		at := time.Now()
		if msg.Timestamp != nil {
			at = *msg.Timestamp
		}
		return Event{Type: base.Type, Text: formatMessage(msg.From, msg.Message, at)}, nil

	case protocol.TypeError:
		var msg protocol.ErrorMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return Event{}, err
		}
		return Event{Type: base.Type, Text: msg.Code + ": " + msg.Message}, nil
	}
	return Event{Type: base.Type, Text: string(data)}, nil
}
