package service

import (
	"context"
	"fmt"

	"github.com/xiaot623/spike/internal/domain"
)

func (s *Service) CheckUser(ctx context.Context, username string) (bool, error) {
	user, err := s.store.FindUser(ctx, username)
	if err != nil {
		return false, fmt.Errorf("failed to find user: %w", err)
	}
	return user != nil, nil
}

// Register creates an account. A taken username yields store.ErrUserExists.
func (s *Service) Register(ctx context.Context, username, password string) error {
	user := &domain.User{
		Username: username,
		Password: password,
	}
	if err := s.store.InsertUser(ctx, user); err != nil {
		return fmt.Errorf("failed to register user: %w", err)
	}
	return nil
}

// Login compares the stored password as given.
func (s *Service) Login(ctx context.Context, username, password string) error {
	user, err := s.store.FindUser(ctx, username)
	if err != nil {
		return fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil || user.Password != password {
		return ErrInvalidCredentials
	}
	return nil
}

func (s *Service) SearchUsers(ctx context.Context, query, exclude string) ([]string, error) {
	users, err := s.store.SearchUsernames(ctx, query, exclude)
	if err != nil {
		return nil, fmt.Errorf("failed to search users: %w", err)
	}
	return users, nil
}
