package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/xiaot623/spike/internal/domain"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// For in-memory SQLite, multiple connections create separate databases.
	// Keep a single connection to avoid schema/data disappearing across goroutines.
	if dsn == ":memory:" || strings.Contains(dsn, "mode=memory") {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// migrate runs database migrations.
func (s *SQLiteStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS users (
			username TEXT PRIMARY KEY,
			password TEXT NOT NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS messages (
			message_id TEXT PRIMARY KEY,
			from_user TEXT NOT NULL,
			to_user TEXT NOT NULL,
			body TEXT NOT NULL,
			sent_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_from ON messages(from_user, to_user, sent_at)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_to ON messages(to_user, from_user, sent_at)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\n%s", err, m)
		}
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// FindUser retrieves a user by username. It returns nil when the user does not exist.
func (s *SQLiteStore) FindUser(ctx context.Context, username string) (*domain.User, error) {
	var user domain.User
	err := s.db.QueryRowContext(ctx,
		`SELECT username, password FROM users WHERE username = ?`,
		username).Scan(&user.Username, &user.Password)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// InsertUser creates a new user.
func (s *SQLiteStore) InsertUser(ctx context.Context, user *domain.User) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (username, password) VALUES (?, ?)`,
		user.Username, user.Password)
	if isUniqueViolation(err) {
		return ErrUserExists
	}
	return err
}

// SearchUsernames returns usernames containing query, ignoring ASCII case, excluding one username.
func (s *SQLiteStore) SearchUsernames(ctx context.Context, query, exclude string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT username FROM users WHERE username LIKE ? ESCAPE '\' AND username != ? ORDER BY username`,
		"%"+escapeLike(query)+"%", exclude)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	usernames := []string{}
	for rows.Next() {
		var username string
		if err := rows.Scan(&username); err != nil {
			return nil, err
		}
		usernames = append(usernames, username)
	}
	return usernames, rows.Err()
}

// InsertMessage stores a message.
func (s *SQLiteStore) InsertMessage(ctx context.Context, message *domain.Message) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (message_id, from_user, to_user, body, sent_at) VALUES (?, ?, ?, ?, ?)`,
		message.ID, message.From, message.To, message.Body, message.SentAt.UnixNano())
	return err
}

// FetchConversation returns the messages exchanged between a and b in either direction, oldest first.
func (s *SQLiteStore) FetchConversation(ctx context.Context, a, b string) ([]domain.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT message_id, from_user, to_user, body, sent_at FROM messages
		WHERE (from_user = ? AND to_user = ?) OR (from_user = ? AND to_user = ?)
		ORDER BY sent_at ASC, message_id ASC`,
		a, b, b, a)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := []domain.Message{}
	for rows.Next() {
		var msg domain.Message
		var sentAt int64
		if err := rows.Scan(&msg.ID, &msg.From, &msg.To, &msg.Body, &sentAt); err != nil {
			return nil, err
		}
		msg.SentAt = time.Unix(0, sentAt).UTC()
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// DistinctPeers returns every user that username has exchanged messages with.
func (s *SQLiteStore) DistinctPeers(ctx context.Context, username string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT CASE WHEN from_user = ? THEN to_user ELSE from_user END AS peer
		FROM messages WHERE from_user = ? OR to_user = ? ORDER BY peer`,
		username, username, username)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	peers := []string{}
	for rows.Next() {
		var peer string
		if err := rows.Scan(&peer); err != nil {
			return nil, err
		}
		peers = append(peers, peer)
	}
	return peers, rows.Err()
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrConstraint
	}
	return false
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
