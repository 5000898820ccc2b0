// Package auth provides password hashing and token authentication for
// fluent-gateway.
//
// Passwords are hashed with bcrypt at signup and checked at login. When a JWT
// secret is configured, login also issues an HS256 token whose "sub" claim is
// the user ID; Middleware then guards the API and WebSocket routes and puts
// the caller's Identity in the request context:
//
//	id := auth.FromContext(r.Context())
//
// WebSocket clients may send the token as a ?token= query parameter because
// browsers cannot set headers on the handshake.
package auth
