// ABOUTME: HTTP route table and middleware for fluent-gateway
// ABOUTME: Registers public and protected routes and answers CORS preflight requests

package gateway

import (
	"net/http"

	"github.com/fluentroot/fluent-gateway/internal/auth"
)

// Handler returns the gateway's HTTP handler with every route registered.
//
// Public: /signup, /login, /health, /health/ready. Everything else requires a
// bearer token when auth.jwt_secret is configured.
func (g *Gateway) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", g.handleHealth)
	mux.HandleFunc("GET /health/ready", g.handleReady)
	mux.HandleFunc("POST /signup", g.handleSignup)
	mux.HandleFunc("POST /login", g.handleLogin)

	protect := g.protect()
	mux.Handle("GET /conversations/{user_id}", protect(http.HandlerFunc(g.handleListConversations)))
	mux.Handle("POST /conversations", protect(http.HandlerFunc(g.handleCreateConversation)))
	mux.Handle("DELETE /conversations/{id}", protect(http.HandlerFunc(g.handleDeleteConversation)))
	mux.Handle("GET /messages/{id}", protect(http.HandlerFunc(g.handleListMessages)))
	mux.Handle("POST /translate", protect(http.HandlerFunc(g.handleTranslate)))
	mux.Handle("GET /ws/chat/{id}", protect(http.HandlerFunc(g.handleChat)))

	return cors(mux)
}

// protect wraps a handler with JWT auth, or returns it unchanged when auth is disabled.
func (g *Gateway) protect() func(http.Handler) http.Handler {
	if g.issuer == nil {
		return func(h http.Handler) http.Handler { return h }
	}
	return auth.Middleware(g.issuer, g.logger)
}

// cors allows any origin. Preflight requests are answered here and never
// reach the route table.
func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Authorization, Content-Type")

		if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
			h.Set("Access-Control-Max-Age", "600")
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
