// ABOUTME: Unit tests for MockStore to ensure behavior matches SQLiteStore
// ABOUTME: Focuses on duplicate detection, reference checks and failure injection

package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockStore_CreateUser_Duplicate(t *testing.T) {
	store := NewMockStore()
	ctx := context.Background()

	first, err := store.CreateUser(ctx, "ana@example.com", "hash")
	require.NoError(t, err)
	assert.Equal(t, int64(1), first.ID)

	_, err = store.CreateUser(ctx, "ana@example.com", "hash")
	assert.ErrorIs(t, err, ErrDuplicateEmail)
}

func TestMockStore_CreateConversation_References(t *testing.T) {
	store := NewMockStore()
	ctx := context.Background()

	err := store.CreateConversation(ctx, &Conversation{ID: "c", UserID: 7})
	assert.ErrorIs(t, err, ErrInvalidReference, "unknown user should be rejected like a foreign key")

	seedConversation(t, store, "c", "")
	lang, err := store.GetConversationLanguage(ctx, "c")
	require.NoError(t, err)
	assert.Equal(t, DefaultLanguage, lang)
}

func TestMockStore_GetConversation_ReturnsCopy(t *testing.T) {
	store := NewMockStore()
	ctx := context.Background()
	seedConversation(t, store, "c", "fr")

	conv, err := store.GetConversation(ctx, "c")
	require.NoError(t, err)
	conv.Language = "de"

	lang, err := store.GetConversationLanguage(ctx, "c")
	require.NoError(t, err)
	assert.Equal(t, "fr", lang, "mutating a returned conversation must not affect the store")
}

func TestMockStore_InsertMessage_UnknownConversation(t *testing.T) {
	store := NewMockStore()

	err := store.InsertMessage(context.Background(), &Message{ConversationID: "nope", Sender: SenderUser, Text: "hi"})
	assert.ErrorIs(t, err, ErrInvalidReference)
}

func TestMockStore_ListMessages_Ordering(t *testing.T) {
	store := NewMockStore()
	ctx := context.Background()
	seedConversation(t, store, "c", "en")

	base := time.Now()
	require.NoError(t, store.InsertMessage(ctx, &Message{ConversationID: "c", Sender: SenderUser, Text: "b", Timestamp: base.Add(time.Second)}))
	require.NoError(t, store.InsertMessage(ctx, &Message{ConversationID: "c", Sender: SenderUser, Text: "a", Timestamp: base}))
	require.NoError(t, store.InsertMessage(ctx, &Message{ConversationID: "c", Sender: SenderAI, Text: "c", Timestamp: base.Add(time.Second)}))

	msgs, err := store.ListMessages(ctx, "c")
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, "a", msgs[0].Text)
	assert.Equal(t, "b", msgs[1].Text)
	assert.Equal(t, "c", msgs[2].Text, "equal timestamps fall back to insertion ID")
}

func TestMockStore_DeleteConversation_Cascade(t *testing.T) {
	store := NewMockStore()
	ctx := context.Background()
	seedConversation(t, store, "c", "en")

	require.NoError(t, store.InsertMessage(ctx, &Message{ConversationID: "c", Sender: SenderUser, Text: "hi", Timestamp: time.Now()}))
	require.NoError(t, store.DeleteConversation(ctx, "c"))

	msgs, err := store.ListMessages(ctx, "c")
	require.NoError(t, err)
	assert.Empty(t, msgs)

	_, err = store.GetConversation(ctx, "c")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, store.DeleteConversation(ctx, "c"), "second delete is a no-op")
}

func TestMockStore_FailureInjection(t *testing.T) {
	store := NewMockStore()
	ctx := context.Background()
	seedConversation(t, store, "c", "en")

	boom := errors.New("disk full")
	store.SetInsertMessageError(boom)
	err := store.InsertMessage(ctx, &Message{ConversationID: "c", Sender: SenderUser, Text: "hi"})
	assert.ErrorIs(t, err, boom)

	store.SetInsertMessageError(nil)
	assert.NoError(t, store.InsertMessage(ctx, &Message{ConversationID: "c", Sender: SenderUser, Text: "hi"}))

	store.SetUpdateConversationError(boom)
	err = store.UpdateConversationLastMessage(ctx, "c", "hi", time.Now())
	assert.ErrorIs(t, err, boom)
}
