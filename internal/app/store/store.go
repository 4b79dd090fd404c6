/*
Package store is the persistence wrapper around PostgreSQL for users, conversations,
and messages.

It owns the durability-sensitive pieces of the system: the uniqueness-constrained
create-or-fetch of a conversation for a canonical participant pair, and the
transactional append of a message together with its conversation summary update.
*/
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"dmchat/internal/app/db"
	"dmchat/internal/app/user"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("store: not found")

// ErrUsernameTaken is returned when a registration collides with an existing username.
var ErrUsernameTaken = errors.New("store: username already taken")

// Conversation is the canonical record for an unordered pair of users, plus the
// denormalized summary of its most recent message.
type Conversation struct {
	ID              string
	ParticipantLow  string
	ParticipantHigh string
	LastMessage     string
	LastMessageTime time.Time
	LastSenderID    string
	CreatedAt       time.Time
}

// HasParticipant reports whether userID is one of the two participants.
func (c Conversation) HasParticipant(userID string) bool {
	return userID == c.ParticipantLow || userID == c.ParticipantHigh
}

// Message is a single persisted message. Immutable except for IsRead, which only
// ever transitions false to true.
type Message struct {
	ID             string    `json:"messageId"`
	ConversationID string    `json:"conversationId"`
	SenderID       string    `json:"senderId"`
	RecipientID    string    `json:"recipientId"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"timestamp"`
	IsRead         bool      `json:"isRead"`
}

// ConversationOverview is one row of a user's conversation list: the conversation
// summary joined with the counterpart's identity and the caller's unread count.
type ConversationOverview struct {
	ConversationID  string    `json:"conversationId"`
	OtherUserID     string    `json:"otherUserId"`
	OtherUsername   string    `json:"otherUsername"`
	LastMessage     string    `json:"lastMessage"`
	LastMessageTime time.Time `json:"lastMessageTime"`
	UnreadCount     int64     `json:"unreadCount"`
}

// Store wraps a pgx connection pool with the queries the application needs.
type Store struct {
	pool *pgxpool.Pool
}

// New constructs a Store over an initialized connection pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// --- Users ---

// CreateUser inserts a new account. Returns ErrUsernameTaken when the username
// unique constraint rejects the insert.
func (s *Store) CreateUser(ctx context.Context, id, username, passwordHash string) (user.User, error) {
	var u user.User
	err := s.pool.QueryRow(ctx, `
		INSERT INTO users (id, username, password_hash)
		VALUES ($1, $2, $3)
		RETURNING id, username, created_at, last_active`,
		id, username, passwordHash,
	).Scan(&u.ID, &u.Username, &u.CreatedAt, &u.LastActive)

	if err != nil {
		if db.IsUniqueViolation(err) {
			return user.User{}, ErrUsernameTaken
		}
		return user.User{}, fmt.Errorf("create user: %w", err)
	}

	return u, nil
}

// GetUserByUsername fetches an account by its exact (case-sensitive) username,
// returning the credential hash alongside the public identity for login checks.
func (s *Store) GetUserByUsername(ctx context.Context, username string) (user.User, string, error) {
	var u user.User
	var hash string
	err := s.pool.QueryRow(ctx, `
		SELECT id, username, password_hash, created_at, last_active
		FROM users WHERE username = $1`,
		username,
	).Scan(&u.ID, &u.Username, &hash, &u.CreatedAt, &u.LastActive)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return user.User{}, "", ErrNotFound
		}
		return user.User{}, "", fmt.Errorf("get user by username: %w", err)
	}

	return u, hash, nil
}

// GetUserByID fetches an account by its identifier.
func (s *Store) GetUserByID(ctx context.Context, id string) (user.User, error) {
	var u user.User
	err := s.pool.QueryRow(ctx, `
		SELECT id, username, created_at, last_active
		FROM users WHERE id = $1`,
		id,
	).Scan(&u.ID, &u.Username, &u.CreatedAt, &u.LastActive)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return user.User{}, ErrNotFound
		}
		return user.User{}, fmt.Errorf("get user by id: %w", err)
	}

	return u, nil
}

// UserExists reports whether an account with the given id is registered.
func (s *Store) UserExists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, id,
	).Scan(&exists)

	if err != nil {
		return false, fmt.Errorf("user exists: %w", err)
	}
	return exists, nil
}

// SearchUsers finds accounts whose username contains q, case-insensitively,
// excluding the caller. Results are capped at limit.
func (s *Store) SearchUsers(ctx context.Context, q, excludeID string, limit int) ([]user.User, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, username, created_at, last_active
		FROM users
		WHERE username ILIKE '%' || $1 || '%' AND id <> $2
		ORDER BY username
		LIMIT $3`,
		q, excludeID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("search users: %w", err)
	}
	defer rows.Close()

	users := make([]user.User, 0)
	for rows.Next() {
		var u user.User
		if err := rows.Scan(&u.ID, &u.Username, &u.CreatedAt, &u.LastActive); err != nil {
			return nil, fmt.Errorf("search users scan: %w", err)
		}
		users = append(users, u)
	}

	return users, rows.Err()
}

// TouchLastActive updates the account's last_active timestamp.
func (s *Store) TouchLastActive(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE users SET last_active = now() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("touch last active: %w", err)
	}
	return nil
}

// --- Conversations ---

// GetOrCreateConversation returns the conversation id for the canonicalized pair
// (low, high), creating the record when none exists. The insert relies on the
// UNIQUE constraint over the pair: when a concurrent caller wins the create, the
// insert is a silent no-op and the winner's id is fetched instead, so exactly one
// record survives and every caller observes the same id.
func (s *Store) GetOrCreateConversation(ctx context.Context, candidateID, low, high string) (string, bool, error) {
	var id string
	err := s.pool.QueryRow(ctx, `
		INSERT INTO conversations (id, participant_low, participant_high, last_message, last_sender_id)
		VALUES ($1, $2, $3, '', '')
		ON CONFLICT ON CONSTRAINT conversations_pair_unique DO NOTHING
		RETURNING id`,
		candidateID, low, high,
	).Scan(&id)

	if err == nil {
		return id, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return "", false, fmt.Errorf("create conversation: %w", err)
	}

	// Lost the create race; the winner's row is committed, fetch it.
	err = s.pool.QueryRow(ctx, `
		SELECT id FROM conversations
		WHERE participant_low = $1 AND participant_high = $2`,
		low, high,
	).Scan(&id)

	if err != nil {
		return "", false, fmt.Errorf("fetch conversation after conflict: %w", err)
	}

	return id, false, nil
}

// GetConversation fetches a conversation record by id.
func (s *Store) GetConversation(ctx context.Context, id string) (Conversation, error) {
	var c Conversation
	err := s.pool.QueryRow(ctx, `
		SELECT id, participant_low, participant_high, last_message, last_message_time, last_sender_id, created_at
		FROM conversations WHERE id = $1`,
		id,
	).Scan(&c.ID, &c.ParticipantLow, &c.ParticipantHigh, &c.LastMessage, &c.LastMessageTime, &c.LastSenderID, &c.CreatedAt)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Conversation{}, ErrNotFound
		}
		return Conversation{}, fmt.Errorf("get conversation: %w", err)
	}

	return c, nil
}

// ListConversations returns the caller's conversations ordered by most recent
// activity, each with the counterpart's username and the caller's unread count.
// A counterpart with no surviving account row is reported as "Unknown".
func (s *Store) ListConversations(ctx context.Context, userID string) ([]ConversationOverview, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT c.id,
		       CASE WHEN c.participant_low = $1 THEN c.participant_high ELSE c.participant_low END,
		       COALESCE(u.username, 'Unknown'),
		       c.last_message,
		       c.last_message_time,
		       (SELECT count(*) FROM messages m
		        WHERE m.conversation_id = c.id AND m.recipient_id = $1 AND NOT m.is_read)
		FROM conversations c
		LEFT JOIN users u
		       ON u.id = CASE WHEN c.participant_low = $1 THEN c.participant_high ELSE c.participant_low END
		WHERE c.participant_low = $1 OR c.participant_high = $1
		ORDER BY c.last_message_time DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	overviews := make([]ConversationOverview, 0)
	for rows.Next() {
		var o ConversationOverview
		if err := rows.Scan(&o.ConversationID, &o.OtherUserID, &o.OtherUsername,
			&o.LastMessage, &o.LastMessageTime, &o.UnreadCount); err != nil {
			return nil, fmt.Errorf("list conversations scan: %w", err)
		}
		overviews = append(overviews, o)
	}

	return overviews, rows.Err()
}

// --- Messages ---

// AppendMessage durably appends the message and updates its conversation's
// denormalized summary in one transaction, so a persisted message can never be
// left without its summary update. The summary write is last-write-wins.
func (s *Store) AppendMessage(ctx context.Context, m Message) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("append message begin: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO messages (id, conversation_id, sender_id, recipient_id, content, created_at, is_read)
		VALUES ($1, $2, $3, $4, $5, $6, FALSE)`,
		m.ID, m.ConversationID, m.SenderID, m.RecipientID, m.Content, m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("append message insert: %w", err)
	}

	_, err = tx.Exec(ctx, `
		UPDATE conversations
		SET last_message = $2, last_message_time = $3, last_sender_id = $4
		WHERE id = $1`,
		m.ConversationID, m.Content, m.CreatedAt, m.SenderID,
	)
	if err != nil {
		return fmt.Errorf("append message summary: %w", err)
	}

	return tx.Commit(ctx)
}

// ListMessages returns every message of the conversation in non-decreasing
// timestamp order, with the id as a stable tiebreak for equal timestamps.
func (s *Store) ListMessages(ctx context.Context, conversationID string) ([]Message, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, conversation_id, sender_id, recipient_id, content, created_at, is_read
		FROM messages
		WHERE conversation_id = $1
		ORDER BY created_at, id`,
		conversationID,
	)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	messages := make([]Message, 0)
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.SenderID, &m.RecipientID,
			&m.Content, &m.CreatedAt, &m.IsRead); err != nil {
			return nil, fmt.Errorf("list messages scan: %w", err)
		}
		messages = append(messages, m)
	}

	return messages, rows.Err()
}

// MarkConversationRead flips the read flag on every message in the conversation
// addressed to recipientID. Idempotent: already-read messages are untouched.
func (s *Store) MarkConversationRead(ctx context.Context, conversationID, recipientID string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE messages SET is_read = TRUE
		WHERE conversation_id = $1 AND recipient_id = $2 AND NOT is_read`,
		conversationID, recipientID,
	)
	if err != nil {
		return fmt.Errorf("mark conversation read: %w", err)
	}
	return nil
}

// UnreadCount returns how many messages in the conversation are addressed to
// userID and still unread.
func (s *Store) UnreadCount(ctx context.Context, conversationID, userID string) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, `
		SELECT count(*) FROM messages
		WHERE conversation_id = $1 AND recipient_id = $2 AND NOT is_read`,
		conversationID, userID,
	).Scan(&count)

	if err != nil {
		return 0, fmt.Errorf("unread count: %w", err)
	}
	return count, nil
}
