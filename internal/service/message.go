package service

import (
	"context"
	"fmt"

	"github.com/xiaot623/spike/internal/domain"
)

// PastUsers returns everyone username has exchanged a message with.
func (s *Service) PastUsers(ctx context.Context, username string) ([]string, error) {
	peers, err := s.store.DistinctPeers(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("failed to list past users: %w", err)
	}
	return peers, nil
}

// Conversation returns both directions between a and b, oldest first.
func (s *Service) Conversation(ctx context.Context, a, b string) ([]domain.Message, error) {
	messages, err := s.store.FetchConversation(ctx, a, b)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch messages: %w", err)
	}
	return messages, nil
}
