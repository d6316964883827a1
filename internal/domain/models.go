// Package domain defines the records shared by the relay and the gateway.
package domain

import "time"

// User is a registered account. Passwords are stored and compared as given.
type User struct {
	Username string `json:"username"`
	Password string `json:"-"`
}

// Message is a single private message between two users.
// It is never modified after creation.
type Message struct {
	ID     string    `json:"id"`
	From   string    `json:"from"`
	To     string    `json:"to"`
	Body   string    `json:"message"`
	SentAt time.Time `json:"timestamp"`
}
