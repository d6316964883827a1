// Package protocol defines the WebSocket message protocol between chat clients and the relay.
package protocol

import "time"

// Message types from client to relay
const (
	TypeJoin           = "join"
	TypePrivateMessage = "private_message"
)

// Message types from relay to client
const (
	TypeUserList = "user_list"
	TypeError    = "error"
	// TypePrivateMessage is also used for deliveries.
)

// BaseMessage contains common fields for all messages.
type BaseMessage struct {
	Type      string `json:"type"`
	Ts        int64  `json:"ts"`
	RequestID string `json:"request_id,omitempty"`
}

// JoinMessage is sent by the client to claim a username.
type JoinMessage struct {
	BaseMessage
	Username string `json:"username"`
}

// PrivateMessage is sent by a client to address a peer, and pushed by the
// relay to the peer when it is online.
type PrivateMessage struct {
	BaseMessage
	From      string     `json:"from,omitempty"`
	To        string     `json:"to,omitempty"`
	Message   string     `json:"message"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

// UserListMessage carries the usernames currently online.
type UserListMessage struct {
	BaseMessage
	Users []string `json:"users"`
}

// ErrorMessage is sent by the relay when a request is rejected.
type ErrorMessage struct {
	BaseMessage
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes
const (
	ErrorCodeInvalidMessage    = "invalid_message"
	ErrorCodeAlreadyOnline     = "already_online"
	ErrorCodeAlreadyJoined     = "already_joined"
	ErrorCodeNotJoined         = "not_joined"
	ErrorCodeUsernameRejected  = "username_rejected"
	ErrorCodeRecipientRequired = "recipient_required"
	ErrorCodeInternalError     = "internal_error"
)

// NewBase returns a BaseMessage stamped with the current time.
func NewBase(msgType, requestID string) BaseMessage {
	return BaseMessage{
		Type:      msgType,
		Ts:        time.Now().UnixMilli(),
		RequestID: requestID,
	}
}
