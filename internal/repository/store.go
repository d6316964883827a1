// Package store defines the persistence gateway and its SQLite implementation.
package store

import (
	"context"
	"errors"

	"github.com/xiaot623/spike/internal/domain"
)

// ErrUserExists is returned by InsertUser when the username is taken.
var ErrUserExists = errors.New("username taken")

// Store defines the interface for data persistence.
type Store interface {
	// User operations
	FindUser(ctx context.Context, username string) (*domain.User, error)
	InsertUser(ctx context.Context, user *domain.User) error
	SearchUsernames(ctx context.Context, query, exclude string) ([]string, error)

	// Message operations
	InsertMessage(ctx context.Context, message *domain.Message) error
	FetchConversation(ctx context.Context, a, b string) ([]domain.Message, error)
	DistinctPeers(ctx context.Context, username string) ([]string, error)

	// Lifecycle
	Ping(ctx context.Context) error
	Close() error
}

// MessageWriter is the slice of Store the relay needs.
type MessageWriter interface {
	InsertMessage(ctx context.Context, message *domain.Message) error
}
