// ABOUTME: Mock Store implementation for testing
// ABOUTME: Allows tests to run without SQLite

package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MockStore is an in-memory Store implementation for testing.
// It enforces the same uniqueness and reference rules as SQLiteStore.
type MockStore struct {
	mu            sync.RWMutex
	users         map[int64]*User          // keyed by user ID
	usersByEmail  map[string]int64         // keyed by email -> user ID
	conversations map[string]*Conversation // keyed by conversation ID
	messages      map[string][]*Message    // keyed by conversation ID
	nextUserID    int64
	nextMessageID int64

	insertErr error
	updateErr error
}

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		users:         make(map[int64]*User),
		usersByEmail:  make(map[string]int64),
		conversations: make(map[string]*Conversation),
		messages:      make(map[string][]*Message),
	}
}

// SetInsertMessageError makes every subsequent InsertMessage fail with err.
// Pass nil to restore normal behavior.
func (m *MockStore) SetInsertMessageError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.insertErr = err
}

// SetUpdateConversationError makes every subsequent UpdateConversationLastMessage fail with err.
func (m *MockStore) SetUpdateConversationError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updateErr = err
}

// CreateUser stores a new user with the next sequential ID.
func (m *MockStore) CreateUser(ctx context.Context, email, passwordHash string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.usersByEmail[email]; exists {
		return nil, ErrDuplicateEmail
	}

	m.nextUserID++
	u := &User{ID: m.nextUserID, Email: email, Password: passwordHash}
	m.users[u.ID] = u
	m.usersByEmail[email] = u.ID

	result := *u
	return &result, nil
}

// GetUserByEmail retrieves a user by email.
func (m *MockStore) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.usersByEmail[email]
	if !ok {
		return nil, ErrNotFound
	}

	result := *m.users[id]
	return &result, nil
}

// CreateConversation stores a new conversation.
func (m *MockStore) CreateConversation(ctx context.Context, conv *Conversation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.users[conv.UserID]; !ok {
		return ErrInvalidReference
	}
	if _, exists := m.conversations[conv.ID]; exists {
		return ErrDuplicateConversation
	}

	if conv.Language == "" {
		conv.Language = DefaultLanguage
	}
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = time.Now()
	}

	// Make a copy to avoid external modification
	c := *conv
	m.conversations[c.ID] = &c
	return nil
}

// GetConversation retrieves a conversation by ID.
func (m *MockStore) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.conversations[id]
	if !ok {
		return nil, ErrNotFound
	}

	result := *c
	return &result, nil
}

// GetConversationLanguage returns the language tag of a conversation.
func (m *MockStore) GetConversationLanguage(ctx context.Context, id string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.conversations[id]
	if !ok {
		return "", ErrNotFound
	}
	return c.Language, nil
}

// ListConversations returns a user's conversations, most recently active first.
func (m *MockStore) ListConversations(ctx context.Context, userID int64) ([]*Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := []*Conversation{}
	for _, c := range m.conversations {
		if c.UserID == userID {
			cp := *c
			result = append(result, &cp)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].UpdatedAt.Equal(result[j].UpdatedAt) {
			return result[i].UpdatedAt.After(result[j].UpdatedAt)
		}
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	return result, nil
}

// UpdateConversationLastMessage records the latest turn on a conversation.
func (m *MockStore) UpdateConversationLastMessage(ctx context.Context, id, text string, ts time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.updateErr != nil {
		return m.updateErr
	}

	c, ok := m.conversations[id]
	if !ok {
		return ErrNotFound
	}
	c.LastMessage = text
	c.UpdatedAt = ts
	return nil
}

// DeleteConversation removes a conversation and its messages.
func (m *MockStore) DeleteConversation(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.messages, id)
	delete(m.conversations, id)
	return nil
}

// InsertMessage appends a message and assigns its ID.
func (m *MockStore) InsertMessage(ctx context.Context, msg *Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.insertErr != nil {
		return m.insertErr
	}
	if _, ok := m.conversations[msg.ConversationID]; !ok {
		return ErrInvalidReference
	}

	m.nextMessageID++
	msg.ID = m.nextMessageID

	cp := *msg
	m.messages[msg.ConversationID] = append(m.messages[msg.ConversationID], &cp)
	return nil
}

// ListMessages returns a conversation's messages ordered by timestamp, then ID.
func (m *MockStore) ListMessages(ctx context.Context, conversationID string) ([]*Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	msgs := m.messages[conversationID]
	result := make([]*Message, len(msgs))
	for i, msg := range msgs {
		cp := *msg
		result[i] = &cp
	}

	sort.SliceStable(result, func(i, j int) bool {
		if !result[i].Timestamp.Equal(result[j].Timestamp) {
			return result[i].Timestamp.Before(result[j].Timestamp)
		}
		return result[i].ID < result[j].ID
	})

	return result, nil
}

// Ping always succeeds.
func (m *MockStore) Ping(ctx context.Context) error {
	return nil
}

// Close is a no-op for the mock store.
func (m *MockStore) Close() error {
	return nil
}

// Ensure MockStore implements Store interface
var _ Store = (*MockStore)(nil)
