// Package gateway wires fluent-gateway's components behind one HTTP server.
//
// # Overview
//
// New opens the store, builds the translation adapter from configuration,
// and connects the reply generator, connection registry and conversation
// relay. Run listens on server.http_addr until its context is canceled and
// then shuts down gracefully.
//
// # HTTP API
//
//   - POST /signup - create an account (bcrypt hashed password)
//   - POST /login - check credentials; returns a JWT when auth is enabled
//   - GET /conversations/{user_id} - a user's conversations, newest first
//   - POST /conversations - create a conversation
//   - DELETE /conversations/{id} - delete a conversation and its messages
//   - GET /messages/{id} - a conversation's messages, oldest first
//   - POST /translate - translate text with the configured engine
//   - GET /ws/chat/{id} - WebSocket relay session
//   - GET /health - liveness
//   - GET /health/ready - readiness (pings the database)
//
// Errors are JSON objects of the form {"detail": "..."}. CORS allows any
// origin.
//
// # Authentication
//
// When auth.jwt_secret is set every route except signup, login and health
// requires "Authorization: Bearer <token>". The WebSocket route also accepts
// ?token= because browsers cannot set headers on the handshake. Callers may
// only read and modify their own conversations.
//
// # Shutdown
//
// Shutdown stops the HTTP server, cancels the context shared by all relay
// sessions so their sockets close, waits for them up to the shutdown
// deadline, and finally closes the registry, the dedupe cache and the store.
package gateway
