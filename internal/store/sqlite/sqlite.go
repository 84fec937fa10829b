package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/chatrelay/chatrelay-server/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	username      TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	is_guest      INTEGER NOT NULL DEFAULT 0,
	session_id    TEXT,
	created_at    TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS messages (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	room       TEXT NOT NULL,
	sender     TEXT NOT NULL,
	recipient  TEXT,
	body       TEXT,
	kind       TEXT NOT NULL DEFAULT 'text',
	metadata   TEXT NOT NULL DEFAULT '{}',
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_messages_room_time ON messages(room, created_at, id);

CREATE TABLE IF NOT EXISTS message_reactions (
	message_id INTEGER NOT NULL REFERENCES messages(id),
	emoji      TEXT NOT NULL,
	username   TEXT NOT NULL,
	PRIMARY KEY (message_id, emoji, username)
);

CREATE TABLE IF NOT EXISTS message_reads (
	message_id INTEGER NOT NULL REFERENCES messages(id),
	username   TEXT NOT NULL,
	PRIMARY KEY (message_id, username)
);
`

// SQLiteStore implements store.Store for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// New creates a new SQLite store and applies the schema.
// dbPath is the path to the SQLite database file.
func New(dbPath string) (*SQLiteStore, error) {
	return NewWithSetup(dbPath, func(db *sql.DB) error {
		_, err := db.Exec(schema)
		return err
	})
}

// NewWithSetup creates a new SQLite store and runs a setup function.
// Useful for tests to apply an alternative schema.
func NewWithSetup(dbPath string, setup func(*sql.DB) error) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with a single connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if setup != nil {
		if err := setup(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("setup: %w", err)
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ==== UserStore implementation ====

// CreateUser creates a new user with hashed password.
func (s *SQLiteStore) CreateUser(ctx context.Context, username, passwordHash string) (*store.User, error) {
	query := `
		INSERT INTO users (username, password_hash, is_guest)
		VALUES (?, ?, 0)
	`
	result, err := s.db.ExecContext(ctx, query, username, passwordHash)
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("get last insert id: %w", err)
	}

	return s.GetUserByID(ctx, id)
}

// CreateGuestUser creates a temporary guest user with session ID.
func (s *SQLiteStore) CreateGuestUser(ctx context.Context, sessionID string) (*store.User, error) {
	query := `
		INSERT INTO users (username, password_hash, is_guest, session_id)
		VALUES (?, '', 1, ?)
	`
	guestUsername := "guest_" + sessionID[:8]

	result, err := s.db.ExecContext(ctx, query, guestUsername, sessionID)
	if err != nil {
		return nil, fmt.Errorf("insert guest user: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("get last insert id: %w", err)
	}

	return s.GetUserByID(ctx, id)
}

// GetUserByID retrieves a user by ID.
func (s *SQLiteStore) GetUserByID(ctx context.Context, id int64) (*store.User, error) {
	query := `
		SELECT id, username, password_hash, is_guest, COALESCE(session_id, ''), created_at
		FROM users
		WHERE id = ?
	`
	var user store.User
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&user.ID,
		&user.Username,
		&user.PasswordHash,
		&user.IsGuest,
		&user.SessionID,
		&user.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("query user: %w", err)
	}

	return &user, nil
}

// GetUserByUsername retrieves a non-guest user by username.
func (s *SQLiteStore) GetUserByUsername(ctx context.Context, username string) (*store.User, error) {
	query := `
		SELECT id, username, password_hash, is_guest, COALESCE(session_id, ''), created_at
		FROM users
		WHERE username = ? AND is_guest = 0
	`
	var user store.User
	err := s.db.QueryRowContext(ctx, query, username).Scan(
		&user.ID,
		&user.Username,
		&user.PasswordHash,
		&user.IsGuest,
		&user.SessionID,
		&user.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("query user: %w", err)
	}

	return &user, nil
}

// ==== MessageStore implementation ====

// InsertMessage persists a message and fills in its ID and CreatedAt.
func (s *SQLiteStore) InsertMessage(ctx context.Context, msg *store.Message) (int64, error) {
	if msg.Type == "" {
		msg.Type = "text"
	}
	meta := "{}"
	if len(msg.Metadata) > 0 {
		raw, err := json.Marshal(msg.Metadata)
		if err != nil {
			return 0, fmt.Errorf("marshal metadata: %w", err)
		}
		meta = string(raw)
	}

	query := `
		INSERT INTO messages (room, sender, recipient, body, kind, metadata)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	result, err := s.db.ExecContext(ctx, query,
		msg.Room, msg.From, nullable(msg.To), nullable(msg.Text), msg.Type, meta)
	if err != nil {
		return 0, fmt.Errorf("insert message: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("get last insert id: %w", err)
	}
	msg.ID = id

	// Read back the DB-assigned timestamp so broadcast copies match history.
	row := s.db.QueryRowContext(ctx, `SELECT created_at FROM messages WHERE id = ?`, id)
	if err := row.Scan(&msg.CreatedAt); err != nil {
		return 0, fmt.Errorf("read back message: %w", err)
	}

	return id, nil
}

// GetMessage retrieves a single message with reactions and read marks.
func (s *SQLiteStore) GetMessage(ctx context.Context, id int64) (*store.Message, error) {
	query := `
		SELECT id, room, sender, COALESCE(recipient, ''), COALESCE(body, ''), kind, metadata, created_at
		FROM messages
		WHERE id = ?
	`
	msg, err := scanMessage(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("query message: %w", err)
	}

	if err := s.attachExtras(ctx, []*store.Message{msg}); err != nil {
		return nil, err
	}
	return msg, nil
}

// AddReaction records username's reaction and returns the updated reactor
// set. The insert and the read-back run in one transaction on a single
// connection, so two concurrent reactions cannot lose each other's update.
func (s *SQLiteStore) AddReaction(ctx context.Context, id int64, emoji, username string) ([]string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var exists int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM messages WHERE id = ?`, id).Scan(&exists); err != nil {
		return nil, fmt.Errorf("check message: %w", err)
	}
	if exists == 0 {
		return nil, store.ErrNotFound
	}

	_, err = tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO message_reactions (message_id, emoji, username)
		VALUES (?, ?, ?)
	`, id, emoji, username)
	if err != nil {
		return nil, fmt.Errorf("insert reaction: %w", err)
	}

	rows, err := tx.QueryContext(ctx, `
		SELECT username FROM message_reactions
		WHERE message_id = ? AND emoji = ?
		ORDER BY username
	`, id, emoji)
	if err != nil {
		return nil, fmt.Errorf("query reactors: %w", err)
	}
	defer rows.Close()

	var reactors []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan reactor: %w", err)
		}
		reactors = append(reactors, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reactors: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return reactors, nil
}

// MarkRead records a read receipt. The bool reports whether the username
// was newly added.
func (s *SQLiteStore) MarkRead(ctx context.Context, id int64, username string) (bool, error) {
	var exists int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM messages WHERE id = ?`, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("check message: %w", err)
	}
	if exists == 0 {
		return false, store.ErrNotFound
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO message_reads (message_id, username)
		VALUES (?, ?)
	`, id, username)
	if err != nil {
		return false, fmt.Errorf("insert read mark: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// ListMessages returns a page of messages for a room ordered oldest first.
func (s *SQLiteStore) ListMessages(ctx context.Context, room string, offset, limit int) ([]*store.Message, error) {
	query := `
		SELECT id, room, sender, COALESCE(recipient, ''), COALESCE(body, ''), kind, metadata, created_at
		FROM messages
		WHERE room = ?
		ORDER BY created_at ASC, id ASC
		LIMIT ? OFFSET ?
	`
	rows, err := s.db.QueryContext(ctx, query, room, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	msgs, err := collectMessages(rows)
	if err != nil {
		return nil, err
	}
	if err := s.attachExtras(ctx, msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

// RecentMessages returns the newest limit messages for a room, oldest first.
func (s *SQLiteStore) RecentMessages(ctx context.Context, room string, limit int) ([]*store.Message, error) {
	query := `
		SELECT id, room, sender, COALESCE(recipient, ''), COALESCE(body, ''), kind, metadata, created_at
		FROM messages
		WHERE room = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`
	rows, err := s.db.QueryContext(ctx, query, room, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent messages: %w", err)
	}
	defer rows.Close()

	msgs, err := collectMessages(rows)
	if err != nil {
		return nil, err
	}

	// Query returned newest first; flip to chronological order.
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}

	if err := s.attachExtras(ctx, msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

// ListRooms returns the distinct room names that have messages.
func (s *SQLiteStore) ListRooms(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT room FROM messages ORDER BY room`)
	if err != nil {
		return nil, fmt.Errorf("query rooms: %w", err)
	}
	defer rows.Close()

	var rooms []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan room: %w", err)
		}
		rooms = append(rooms, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rooms: %w", err)
	}
	return rooms, nil
}

// ==== helpers ====

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(row rowScanner) (*store.Message, error) {
	var (
		msg  store.Message
		meta string
	)
	if err := row.Scan(
		&msg.ID,
		&msg.Room,
		&msg.From,
		&msg.To,
		&msg.Text,
		&msg.Type,
		&meta,
		&msg.CreatedAt,
	); err != nil {
		return nil, err
	}

	if meta != "" && meta != "{}" {
		if err := json.Unmarshal([]byte(meta), &msg.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}
	msg.Reactions = map[string][]string{}
	return &msg, nil
}

func collectMessages(rows *sql.Rows) ([]*store.Message, error) {
	var msgs []*store.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msgs = append(msgs, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return msgs, nil
}

// attachExtras loads reactions and read marks for the given messages with
// two IN queries instead of per-message round trips.
func (s *SQLiteStore) attachExtras(ctx context.Context, msgs []*store.Message) error {
	if len(msgs) == 0 {
		return nil
	}

	byID := make(map[int64]*store.Message, len(msgs))
	args := make([]any, 0, len(msgs))
	for _, m := range msgs {
		byID[m.ID] = m
		args = append(args, m.ID)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(msgs)), ",")

	rows, err := s.db.QueryContext(ctx, `
		SELECT message_id, emoji, username FROM message_reactions
		WHERE message_id IN (`+placeholders+`)
		ORDER BY emoji, username
	`, args...)
	if err != nil {
		return fmt.Errorf("query reactions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id    int64
			emoji string
			name  string
		)
		if err := rows.Scan(&id, &emoji, &name); err != nil {
			return fmt.Errorf("scan reaction: %w", err)
		}
		if m := byID[id]; m != nil {
			m.Reactions[emoji] = append(m.Reactions[emoji], name)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate reactions: %w", err)
	}

	readRows, err := s.db.QueryContext(ctx, `
		SELECT message_id, username FROM message_reads
		WHERE message_id IN (`+placeholders+`)
		ORDER BY username
	`, args...)
	if err != nil {
		return fmt.Errorf("query read marks: %w", err)
	}
	defer readRows.Close()

	for readRows.Next() {
		var (
			id   int64
			name string
		)
		if err := readRows.Scan(&id, &name); err != nil {
			return fmt.Errorf("scan read mark: %w", err)
		}
		if m := byID[id]; m != nil {
			m.ReadBy = append(m.ReadBy, name)
		}
	}
	if err := readRows.Err(); err != nil {
		return fmt.Errorf("iterate read marks: %w", err)
	}

	return nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
