package http

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/xiaot623/spike/internal/repository"
	"github.com/xiaot623/spike/internal/service"
)

// CheckUserRequest is the request to check whether a username is registered.
type CheckUserRequest struct {
	Username string `json:"username" validate:"required"`
}

// CredentialsRequest carries a username and password for register and login.
type CredentialsRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// SearchUsersRequest holds the query parameters of GET /search-users.
type SearchUsersRequest struct {
	Query    string `query:"query" validate:"required"`
	Username string `query:"username"`
}

// PastUsersRequest holds the query parameters of GET /past-users.
type PastUsersRequest struct {
	Username string `query:"username" validate:"required"`
}

// MessagesRequest holds the query parameters of GET /messages.
type MessagesRequest struct {
	Username  string `query:"username" validate:"required"`
	OtherUser string `query:"otherUser" validate:"required"`
}

// CheckUser reports whether a username is registered.
// POST /check-user
func (s *Server) CheckUser(c echo.Context) error {
	var req CheckUserRequest
	if err := s.bind(c, &req); err != nil {
		return badRequest(c, "Username required")
	}

	exists, err := s.service.CheckUser(c.Request().Context(), req.Username)
	if err != nil {
		return s.serverError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]bool{"exists": exists})
}

// Register creates an account.
// POST /register
func (s *Server) Register(c echo.Context) error {
	var req CredentialsRequest
	if err := s.bind(c, &req); err != nil {
		return badRequest(c, "Username and password required")
	}

	if err := s.service.Register(c.Request().Context(), req.Username, req.Password); err != nil {
		if errors.Is(err, store.ErrUserExists) {
			return badRequest(c, "Username taken")
		}
		return s.serverError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]bool{"success": true})
}

// Login checks a username and password.
// POST /login
func (s *Server) Login(c echo.Context) error {
	var req CredentialsRequest
	if err := s.bind(c, &req); err != nil {
		return badRequest(c, "Username and password required")
	}

	if err := s.service.Login(c.Request().Context(), req.Username, req.Password); err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Invalid username or password"})
		}
		return s.serverError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]bool{"success": true})
}

// SearchUsers lists registered usernames containing query, excluding the caller.
// GET /search-users
func (s *Server) SearchUsers(c echo.Context) error {
	var req SearchUsersRequest
	if err := s.bind(c, &req); err != nil {
		return badRequest(c, "Query required")
	}

	users, err := s.service.SearchUsers(c.Request().Context(), req.Query, req.Username)
	if err != nil {
		return s.serverError(c, err)
	}
	return c.JSON(http.StatusOK, users)
}

// PastUsers lists everyone the user has exchanged messages with.
// GET /past-users
func (s *Server) PastUsers(c echo.Context) error {
	var req PastUsersRequest
	if err := s.bind(c, &req); err != nil {
		return badRequest(c, "Username required")
	}

	users, err := s.service.PastUsers(c.Request().Context(), req.Username)
	if err != nil {
		return s.serverError(c, err)
	}
	return c.JSON(http.StatusOK, users)
}

// Messages returns the conversation between two users, oldest first.
// GET /messages
func (s *Server) Messages(c echo.Context) error {
	var req MessagesRequest
	if err := s.bind(c, &req); err != nil {
		return badRequest(c, "Username and otherUser required")
	}

	messages, err := s.service.Conversation(c.Request().Context(), req.Username, req.OtherUser)
	if err != nil {
		return s.serverError(c, err)
	}
	return c.JSON(http.StatusOK, messages)
}

func (s *Server) bind(c echo.Context, req interface{}) error {
	if err := c.Bind(req); err != nil {
		return err
	}
	return c.Validate(req)
}

func badRequest(c echo.Context, message string) error {
	return c.JSON(http.StatusBadRequest, map[string]string{"error": message})
}

func (s *Server) serverError(c echo.Context, err error) error {
	s.log.Error().Err(err).Str("path", c.Path()).Msg("request failed")
	return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Server error"})
}
