// ABOUTME: Store interface and data types for fluent-gateway persistence
// ABOUTME: Defines User, Conversation, Message and the Store interface for database operations

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrDuplicateEmail is returned when signing up with an email that is already registered
var ErrDuplicateEmail = errors.New("email already registered")

// ErrDuplicateConversation is returned when creating a conversation whose ID is taken
var ErrDuplicateConversation = errors.New("conversation already exists")

// ErrInvalidReference is returned when a row points at a parent that does not exist
// (a conversation for an unknown user, a message for an unknown conversation).
var ErrInvalidReference = errors.New("referenced entity does not exist")

// DefaultLanguage is the target language used when a conversation has none.
const DefaultLanguage = "en"

// Sender values for messages
const (
	SenderUser = "user"
	SenderAI   = "ai"
)

// TimestampLayout is the ISO-8601 layout used for every stored timestamp.
// Fixed microsecond precision keeps lexical order equal to chronological order.
const TimestampLayout = "2006-01-02T15:04:05.000000Z07:00"

// FormatTimestamp renders t in UTC using TimestampLayout.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// ParseTimestamp parses a timestamp written by FormatTimestamp.
func ParseTimestamp(s string) (time.Time, error) {
	return time.Parse(TimestampLayout, s)
}

// User is a registered learner. Password holds a bcrypt hash.
type User struct {
	ID       int64
	Email    string
	Password string
}

// Conversation is a practice session in one target language
type Conversation struct {
	ID          string
	UserID      int64
	Language    string
	Topic       string
	LastMessage string    // empty until the first turn
	UpdatedAt   time.Time // zero until the first turn
	CreatedAt   time.Time
}

// Message is one persisted chat line. Messages are append-only.
type Message struct {
	ID             int64
	ConversationID string
	Sender         string // SenderUser or SenderAI
	Text           string
	Timestamp      time.Time
}

// Store defines the interface for user, conversation and message persistence
type Store interface {
	// Users
	CreateUser(ctx context.Context, email, passwordHash string) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)

	// Conversations
	CreateConversation(ctx context.Context, conv *Conversation) error
	GetConversation(ctx context.Context, id string) (*Conversation, error)
	GetConversationLanguage(ctx context.Context, id string) (string, error)
	ListConversations(ctx context.Context, userID int64) ([]*Conversation, error)
	UpdateConversationLastMessage(ctx context.Context, id, text string, ts time.Time) error
	DeleteConversation(ctx context.Context, id string) error

	// Messages
	InsertMessage(ctx context.Context, msg *Message) error
	ListMessages(ctx context.Context, conversationID string) ([]*Message, error)

	// Ping reports whether the backing database is reachable
	Ping(ctx context.Context) error

	// Close releases any resources held by the store
	Close() error
}
