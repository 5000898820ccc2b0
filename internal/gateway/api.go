// ABOUTME: HTTP API handlers for accounts, conversations, messages and translation
// ABOUTME: Also upgrades /ws/chat/{id} into a conversation relay session

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/fluentroot/fluent-gateway/internal/auth"
	"github.com/fluentroot/fluent-gateway/internal/conversation"
	"github.com/fluentroot/fluent-gateway/internal/store"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 1 << 20

// CredentialsRequest is the JSON request body for POST /signup and POST /login.
type CredentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// UserResponse describes an account in signup and login responses.
type UserResponse struct {
	Email string `json:"email"`
	ID    int64  `json:"id"`
}

// AuthResponse is the JSON response for POST /signup and POST /login.
type AuthResponse struct {
	Message string       `json:"message"`
	User    UserResponse `json:"user"`
	Token   string       `json:"token,omitempty"`
}

// CreateConversationRequest is the JSON request body for POST /conversations.
type CreateConversationRequest struct {
	ID       string `json:"id"`
	UserID   int64  `json:"user_id"`
	Language string `json:"language"`
	Topic    string `json:"topic"`
}

// ConversationResponse is one element of GET /conversations/{user_id}.
// LastMessage and UpdatedAt are null until the first turn.
type ConversationResponse struct {
	ID          string  `json:"id"`
	UserID      int64   `json:"user_id"`
	Language    string  `json:"language"`
	Topic       string  `json:"topic"`
	LastMessage *string `json:"last_message"`
	UpdatedAt   *string `json:"updated_at"`
	CreatedAt   string  `json:"created_at"`
}

// MessageResponse is one element of GET /messages/{id}.
type MessageResponse struct {
	ID             int64  `json:"id"`
	ConversationID string `json:"conversation_id"`
	Sender         string `json:"sender"`
	Text           string `json:"text"`
	Timestamp      string `json:"timestamp"`
}

// TranslateRequest is the JSON request body for POST /translate.
type TranslateRequest struct {
	Text       string `json:"text"`
	TargetLang string `json:"target_lang"`
}

// TranslateResponse is the JSON response for POST /translate.
type TranslateResponse struct {
	TranslatedText string `json:"translatedText"`
}

// messageResponse is a plain {"message": ...} acknowledgement.
type messageResponse struct {
	Message string `json:"message"`
}

// errNotOwner means the caller's token belongs to another user.
var errNotOwner = errors.New("not allowed")

// handleSignup handles POST /signup requests.
func (g *Gateway) handleSignup(w http.ResponseWriter, r *http.Request) {
	req, err := parseCredentials(r)
	if err != nil {
		g.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		g.logger.Error("failed to hash password", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal error")
		return
	}

	user, err := g.store.CreateUser(r.Context(), req.Email, hash)
	if errors.Is(err, store.ErrDuplicateEmail) {
		g.sendJSONError(w, http.StatusBadRequest, "Email already registered")
		return
	}
	if err != nil {
		g.logger.Error("failed to create user", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal error")
		return
	}

	g.logger.Info("user signed up", "user_id", user.ID)
	g.sendJSON(w, http.StatusOK, AuthResponse{
		Message: "User created successfully",
		User:    UserResponse{Email: user.Email, ID: user.ID},
	})
}

// handleLogin handles POST /login requests. A token is included when auth is enabled.
func (g *Gateway) handleLogin(w http.ResponseWriter, r *http.Request) {
	req, err := parseCredentials(r)
	if err != nil {
		g.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	user, err := g.store.GetUserByEmail(r.Context(), req.Email)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		g.logger.Error("failed to look up user", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if user == nil {
		err = auth.RejectUnknownUser(req.Password)
	} else {
		err = auth.CheckPassword(user.Password, req.Password)
	}
	if err != nil {
		g.sendJSONError(w, http.StatusUnauthorized, "Invalid email or password")
		return
	}

	resp := AuthResponse{
		Message: "Login successful",
		User:    UserResponse{Email: user.Email, ID: user.ID},
	}
	if g.issuer != nil {
		resp.Token, err = g.issuer.Issue(user.ID, user.Email)
		if err != nil {
			g.logger.Error("failed to issue token", "error", err)
			g.sendJSONError(w, http.StatusInternalServerError, "internal error")
			return
		}
	}
	g.sendJSON(w, http.StatusOK, resp)
}

// handleListConversations handles GET /conversations/{user_id}, newest first.
func (g *Gateway) handleListConversations(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(r.PathValue("user_id"), 10, 64)
	if err != nil {
		g.sendJSONError(w, http.StatusBadRequest, "invalid user id")
		return
	}
	if id := auth.FromContext(r.Context()); id != nil && id.UserID != userID {
		g.sendJSONError(w, http.StatusForbidden, "Not allowed")
		return
	}

	convs, err := g.store.ListConversations(r.Context(), userID)
	if err != nil {
		g.logger.Error("failed to list conversations", "user_id", userID, "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal error")
		return
	}

	resp := make([]ConversationResponse, 0, len(convs))
	for _, c := range convs {
		resp = append(resp, toConversationResponse(c))
	}
	g.sendJSON(w, http.StatusOK, resp)
}

func toConversationResponse(c *store.Conversation) ConversationResponse {
	resp := ConversationResponse{
		ID:        c.ID,
		UserID:    c.UserID,
		Language:  c.Language,
		Topic:     c.Topic,
		CreatedAt: store.FormatTimestamp(c.CreatedAt),
	}
	if c.LastMessage != "" {
		last := c.LastMessage
		resp.LastMessage = &last
	}
	if !c.UpdatedAt.IsZero() {
		updated := store.FormatTimestamp(c.UpdatedAt)
		resp.UpdatedAt = &updated
	}
	return resp
}

// handleCreateConversation handles POST /conversations.
// With auth enabled, user_id defaults to the caller and may not name anyone else.
func (g *Gateway) handleCreateConversation(w http.ResponseWriter, r *http.Request) {
	var req CreateConversationRequest
	if err := decodeJSON(r, &req); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	req.ID = strings.TrimSpace(req.ID)
	if req.ID == "" {
		g.sendJSONError(w, http.StatusBadRequest, "id is required")
		return
	}

	if id := auth.FromContext(r.Context()); id != nil {
		if req.UserID == 0 {
			req.UserID = id.UserID
		}
		if req.UserID != id.UserID {
			g.sendJSONError(w, http.StatusForbidden, "Not allowed")
			return
		}
	}

	err := g.store.CreateConversation(r.Context(), &store.Conversation{
		ID:       req.ID,
		UserID:   req.UserID,
		Language: req.Language,
		Topic:    req.Topic,
	})
	switch {
	case errors.Is(err, store.ErrDuplicateConversation):
		g.sendJSONError(w, http.StatusConflict, "Conversation already exists")
		return
	case errors.Is(err, store.ErrInvalidReference):
		g.sendJSONError(w, http.StatusBadRequest, "Unknown user")
		return
	case err != nil:
		g.logger.Error("failed to create conversation", "conversation_id", req.ID, "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal error")
		return
	}

	g.sendJSON(w, http.StatusOK, messageResponse{Message: "Conversation created"})
}

// handleDeleteConversation handles DELETE /conversations/{id}.
// Deleting an unknown conversation succeeds.
func (g *Gateway) handleDeleteConversation(w http.ResponseWriter, r *http.Request) {
	convID := r.PathValue("id")

	if err := g.authorizeConversation(r.Context(), convID); err != nil {
		if g.writeAccessError(w, err) {
			return
		}
	}

	if err := g.store.DeleteConversation(r.Context(), convID); err != nil {
		g.logger.Error("failed to delete conversation", "conversation_id", convID, "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal error")
		return
	}

	g.logger.Info("conversation deleted", "conversation_id", convID)
	g.sendJSON(w, http.StatusOK, messageResponse{Message: "Conversation deleted successfully"})
}

// handleListMessages handles GET /messages/{id}, oldest first.
func (g *Gateway) handleListMessages(w http.ResponseWriter, r *http.Request) {
	convID := r.PathValue("id")

	if err := g.authorizeConversation(r.Context(), convID); err != nil {
		if g.writeAccessError(w, err) {
			return
		}
	}

	msgs, err := g.store.ListMessages(r.Context(), convID)
	if err != nil {
		g.logger.Error("failed to list messages", "conversation_id", convID, "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal error")
		return
	}

	resp := make([]MessageResponse, 0, len(msgs))
	for _, m := range msgs {
		resp = append(resp, MessageResponse{
			ID:             m.ID,
			ConversationID: m.ConversationID,
			Sender:         m.Sender,
			Text:           m.Text,
			Timestamp:      store.FormatTimestamp(m.Timestamp),
		})
	}
	g.sendJSON(w, http.StatusOK, resp)
}

// handleTranslate handles POST /translate. Engine failures return the input text.
func (g *Gateway) handleTranslate(w http.ResponseWriter, r *http.Request) {
	var req TranslateRequest
	if err := decodeJSON(r, &req); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.TargetLang == "" {
		g.sendJSONError(w, http.StatusBadRequest, "target_lang is required")
		return
	}

	g.sendJSON(w, http.StatusOK, TranslateResponse{
		TranslatedText: g.translator.Translate(r.Context(), req.Text, req.TargetLang),
	})
}

// handleChat handles GET /ws/chat/{id}: it upgrades the connection and runs
// a relay session until the client leaves or the gateway shuts down.
func (g *Gateway) handleChat(w http.ResponseWriter, r *http.Request) {
	convID := r.PathValue("id")

	if err := g.authorizeConversation(r.Context(), convID); err != nil {
		if g.writeAccessError(w, err) {
			return
		}
	}

	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote an HTTP error response.
		g.logger.Debug("websocket upgrade failed", "conversation_id", convID, "error", err)
		return
	}

	g.active.Add(1)
	defer g.active.Done()

	ctx, cancel := context.WithCancel(g.sessions)
	defer cancel()

	transport := conversation.NewWSTransport(ctx, conn, conversation.WSOptions{
		WriteTimeout: g.config.Relay.WriteTimeout,
		PongWait:     g.config.Relay.PongWait,
		ReadLimit:    g.config.Relay.ReadLimit,
	})

	if err := g.relay.Serve(ctx, convID, transport); err != nil {
		g.logger.Warn("relay session ended with error", "conversation_id", convID, "error", err)
	}
}

// authorizeConversation checks that the caller owns convID. With auth
// disabled every caller is allowed. A missing conversation is reported as
// store.ErrNotFound so callers can decide whether that matters.
func (g *Gateway) authorizeConversation(ctx context.Context, convID string) error {
	id := auth.FromContext(ctx)
	if id == nil {
		return nil
	}
	conv, err := g.store.GetConversation(ctx, convID)
	if err != nil {
		return err
	}
	if conv.UserID != id.UserID {
		return errNotOwner
	}
	return nil
}

// writeAccessError writes the response for an authorizeConversation error and
// reports whether the request is finished. A missing conversation is not an
// error; handlers treat it like the unauthenticated case.
func (g *Gateway) writeAccessError(w http.ResponseWriter, err error) bool {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return false
	case errors.Is(err, errNotOwner):
		g.sendJSONError(w, http.StatusForbidden, "Not allowed")
	default:
		g.logger.Error("failed to look up conversation", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal error")
	}
	return true
}

// sendJSON writes v as a JSON response with the given status.
func (g *Gateway) sendJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		g.logger.Debug("failed to write response", "error", err)
	}
}

// sendJSONError writes a JSON error response in the {"detail": ...} shape web clients expect.
func (g *Gateway) sendJSONError(w http.ResponseWriter, status int, message string) {
	g.sendJSON(w, status, map[string]string{"detail": message})
}

// decodeJSON decodes a bounded request body into v.
func decodeJSON(r *http.Request, v any) error {
	body := io.LimitReader(r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(v); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return nil
}

// parseCredentials decodes and validates a CredentialsRequest.
func parseCredentials(r *http.Request) (*CredentialsRequest, error) {
	var req CredentialsRequest
	if err := decodeJSON(r, &req); err != nil {
		return nil, err
	}
	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || req.Password == "" {
		return nil, errors.New("email and password are required")
	}
	return &req, nil
}
