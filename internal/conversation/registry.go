// ABOUTME: Connection registry fanning relay frames out to live listeners
// ABOUTME: Scoped per conversation by default, or process-wide when configured global

package conversation

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// Broadcast scopes.
const (
	ScopeConversation = "conversation"
	ScopeGlobal       = "global"
)

// Listener receives broadcast payloads.
type Listener interface {
	Send(ctx context.Context, payload []byte) error
}

type registration struct {
	conversationID string
	listener       Listener
}

// Registry tracks live listeners. A listener whose Send fails is removed
// after the broadcast pass and, if it is an io.Closer, closed.
type Registry struct {
	mu     sync.RWMutex
	byConv map[string]map[string]Listener // conversationID -> handle -> listener
	byID   map[string]registration        // handle -> registration
	global bool
	logger *slog.Logger
}

// NewRegistry creates a registry. scope is ScopeConversation or ScopeGlobal;
// anything else is treated as ScopeConversation. Pass nil logger for default.
func NewRegistry(scope string, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		byConv: make(map[string]map[string]Listener),
		byID:   make(map[string]registration),
		global: scope == ScopeGlobal,
		logger: logger.With("component", "registry"),
	}
}

// Register adds a listener for conversationID and returns its handle.
func (r *Registry) Register(conversationID string, l Listener) string {
	handle := uuid.New().String()

	r.mu.Lock()
	if _, ok := r.byConv[conversationID]; !ok {
		r.byConv[conversationID] = make(map[string]Listener)
	}
	r.byConv[conversationID][handle] = l
	r.byID[handle] = registration{conversationID: conversationID, listener: l}
	r.mu.Unlock()

	r.logger.Debug("listener registered",
		"conversation_id", conversationID,
		"handle", handle)

	return handle
}

// Unregister removes a listener. Unknown or already removed handles are ignored.
func (r *Registry) Unregister(handle string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removeLocked(handle)
}

// removeLocked reports whether handle was registered. Caller holds mu.
func (r *Registry) removeLocked(handle string) bool {
	reg, ok := r.byID[handle]
	if !ok {
		return false
	}
	delete(r.byID, handle)

	listeners := r.byConv[reg.conversationID]
	delete(listeners, handle)
	if len(listeners) == 0 {
		delete(r.byConv, reg.conversationID)
	}

	r.logger.Debug("listener unregistered",
		"conversation_id", reg.conversationID,
		"handle", handle)
	return true
}

// Broadcast sends payload to every listener in scope for conversationID and
// returns how many sends succeeded. Failures never reach the caller.
func (r *Registry) Broadcast(ctx context.Context, conversationID string, payload []byte) int {
	// Copy targets under read lock so sends happen without holding it
	r.mu.RLock()
	targets := make(map[string]Listener)
	if r.global {
		for handle, reg := range r.byID {
			targets[handle] = reg.listener
		}
	} else {
		for handle, l := range r.byConv[conversationID] {
			targets[handle] = l
		}
	}
	r.mu.RUnlock()

	if len(targets) == 0 {
		return 0
	}

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		failed []string
	)
	for handle, l := range targets {
		wg.Add(1)
		go func(handle string, l Listener) {
			defer wg.Done()
			if err := l.Send(ctx, payload); err != nil {
				r.logger.Debug("send to listener failed",
					"conversation_id", conversationID,
					"handle", handle,
					"error", err)
				mu.Lock()
				failed = append(failed, handle)
				mu.Unlock()
			}
		}(handle, l)
	}
	wg.Wait()

	r.dropFailed(failed, targets)
	return len(targets) - len(failed)
}

// dropFailed unregisters and closes listeners that failed during a pass.
func (r *Registry) dropFailed(handles []string, targets map[string]Listener) {
	if len(handles) == 0 {
		return
	}

	r.mu.Lock()
	removed := make([]Listener, 0, len(handles))
	for _, h := range handles {
		if r.removeLocked(h) {
			removed = append(removed, targets[h])
		}
	}
	r.mu.Unlock()

	for _, l := range removed {
		if c, ok := l.(io.Closer); ok {
			_ = c.Close()
		}
	}
	r.logger.Info("dropped failed listeners", "count", len(removed))
}

// Len returns the number of registered listeners.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

// Close unregisters every listener and closes those that are io.Closers,
// which unblocks their relay loops.
func (r *Registry) Close() {
	r.mu.Lock()
	listeners := make([]Listener, 0, len(r.byID))
	for _, reg := range r.byID {
		listeners = append(listeners, reg.listener)
	}
	r.byConv = make(map[string]map[string]Listener)
	r.byID = make(map[string]registration)
	r.mu.Unlock()

	for _, l := range listeners {
		if c, ok := l.(io.Closer); ok {
			_ = c.Close()
		}
	}

	r.logger.Debug("registry closed", "listeners", len(listeners))
}
