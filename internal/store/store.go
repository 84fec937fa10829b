package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// User represents a registered or guest account.
type User struct {
	ID           int64
	Username     string
	PasswordHash string
	IsGuest      bool
	SessionID    string
	CreatedAt    time.Time
}

// Message is a persisted chat message. Reactions and ReadBy are loaded
// alongside the row; mutations to them go through AddReaction and MarkRead
// so concurrent updates cannot clobber each other.
type Message struct {
	ID        int64
	Room      string
	From      string
	To        string // optional direct recipient display name
	Text      string
	Type      string // text, file, ...
	Metadata  map[string]any
	CreatedAt time.Time
	Reactions map[string][]string // emoji -> display names
	ReadBy    []string
}

// UserStore handles account persistence.
type UserStore interface {
	// CreateUser creates a new user with hashed password.
	CreateUser(ctx context.Context, username, passwordHash string) (*User, error)

	// CreateGuestUser creates a temporary guest user with session ID.
	CreateGuestUser(ctx context.Context, sessionID string) (*User, error)

	// GetUserByID retrieves a user by ID.
	GetUserByID(ctx context.Context, id int64) (*User, error)

	// GetUserByUsername retrieves a non-guest user by username.
	GetUserByUsername(ctx context.Context, username string) (*User, error)
}

// MessageStore handles message persistence.
type MessageStore interface {
	// InsertMessage persists a message and fills in its ID and CreatedAt.
	InsertMessage(ctx context.Context, msg *Message) (int64, error)

	// GetMessage retrieves a single message with reactions and read marks.
	// Returns ErrNotFound if no such message exists.
	GetMessage(ctx context.Context, id int64) (*Message, error)

	// AddReaction records username's reaction atomically and returns the
	// up-to-date reactor set for the emoji. Adding an already-present
	// reactor is a no-op that still returns the current set.
	// Returns ErrNotFound if the message does not exist.
	AddReaction(ctx context.Context, id int64, emoji, username string) ([]string, error)

	// MarkRead records a read receipt atomically. The bool reports whether
	// the username was newly added. Returns ErrNotFound if the message
	// does not exist.
	MarkRead(ctx context.Context, id int64, username string) (bool, error)

	// ListMessages returns a page of messages for a room ordered oldest
	// first, ties on timestamp broken by ID.
	ListMessages(ctx context.Context, room string, offset, limit int) ([]*Message, error)

	// RecentMessages returns the newest limit messages for a room,
	// ordered oldest first.
	RecentMessages(ctx context.Context, room string, limit int) ([]*Message, error)

	// ListRooms returns the distinct room names that have messages.
	ListRooms(ctx context.Context) ([]string, error)
}

// Store aggregates all storage interfaces.
type Store interface {
	UserStore
	MessageStore

	// Close closes the underlying database connection.
	Close() error
}
