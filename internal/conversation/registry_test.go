// ABOUTME: Tests for the connection registry fan-out
// ABOUTME: Covers scoping, failure isolation, idempotent unregister, close and concurrency

package conversation

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingListener collects payloads and can be told to fail.
type recordingListener struct {
	mu       sync.Mutex
	payloads [][]byte
	fail     bool
	closed   bool
}

func (l *recordingListener) Send(_ context.Context, payload []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.fail {
		return errors.New("broken pipe")
	}
	l.payloads = append(l.payloads, payload)
	return nil
}

func (l *recordingListener) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	return nil
}

func (l *recordingListener) received() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.payloads))
	for i, p := range l.payloads {
		out[i] = string(p)
	}
	return out
}

func (l *recordingListener) isClosed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

func TestRegistry_BroadcastScopedToConversation(t *testing.T) {
	r := NewRegistry(ScopeConversation, nil)
	defer r.Close()

	a1 := &recordingListener{}
	a2 := &recordingListener{}
	b := &recordingListener{}
	r.Register("conv-a", a1)
	r.Register("conv-a", a2)
	r.Register("conv-b", b)

	delivered := r.Broadcast(context.Background(), "conv-a", []byte("hello a"))

	assert.Equal(t, 2, delivered)
	assert.Equal(t, []string{"hello a"}, a1.received())
	assert.Equal(t, []string{"hello a"}, a2.received())
	assert.Empty(t, b.received(), "other conversations must not see the frame")
}

func TestRegistry_GlobalScopeReachesEveryone(t *testing.T) {
	r := NewRegistry(ScopeGlobal, nil)
	defer r.Close()

	a := &recordingListener{}
	b := &recordingListener{}
	r.Register("conv-a", a)
	r.Register("conv-b", b)

	r.Broadcast(context.Background(), "conv-a", []byte("hi"))

	assert.Equal(t, []string{"hi"}, a.received())
	assert.Equal(t, []string{"hi"}, b.received())
}

func TestRegistry_UnknownScopeDefaultsToConversation(t *testing.T) {
	r := NewRegistry("bogus", nil)
	defer r.Close()

	b := &recordingListener{}
	r.Register("conv-b", b)
	r.Broadcast(context.Background(), "conv-a", []byte("hi"))

	assert.Empty(t, b.received())
}

func TestRegistry_FailingListenerIsolatedAndRemoved(t *testing.T) {
	r := NewRegistry(ScopeConversation, nil)
	defer r.Close()

	broken := &recordingListener{fail: true}
	healthy := &recordingListener{}
	r.Register("conv", broken)
	r.Register("conv", healthy)

	delivered := r.Broadcast(context.Background(), "conv", []byte("first"))
	assert.Equal(t, 1, delivered)
	assert.Equal(t, []string{"first"}, healthy.received(), "failure on A must not block delivery to B")
	assert.Equal(t, 1, r.Len(), "failing listener is unregistered after the pass")
	assert.True(t, broken.isClosed(), "failing listener is closed")

	// A recovered listener would still not be reached: it was removed
	broken.mu.Lock()
	broken.fail = false
	broken.mu.Unlock()

	r.Broadcast(context.Background(), "conv", []byte("second"))
	assert.Empty(t, broken.received())
	assert.Equal(t, []string{"first", "second"}, healthy.received())
}

func TestRegistry_UnregisterIdempotent(t *testing.T) {
	r := NewRegistry(ScopeConversation, nil)
	defer r.Close()

	l := &recordingListener{}
	h := r.Register("conv", l)
	require.Equal(t, 1, r.Len())

	r.Unregister(h)
	r.Unregister(h)
	r.Unregister("never-registered")

	assert.Equal(t, 0, r.Len())
	assert.Equal(t, 0, r.Broadcast(context.Background(), "conv", []byte("x")))
}

func TestRegistry_HandlesAreUnique(t *testing.T) {
	r := NewRegistry(ScopeConversation, nil)
	defer r.Close()

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		h := r.Register("conv", &recordingListener{})
		assert.False(t, seen[h])
		seen[h] = true
	}
}

func TestRegistry_CloseClosesListeners(t *testing.T) {
	r := NewRegistry(ScopeConversation, nil)

	a := &recordingListener{}
	b := &recordingListener{}
	r.Register("conv-a", a)
	r.Register("conv-b", b)

	r.Close()

	assert.Equal(t, 0, r.Len())
	assert.True(t, a.isClosed())
	assert.True(t, b.isClosed())
}

func TestRegistry_ConcurrentRegisterBroadcast(t *testing.T) {
	r := NewRegistry(ScopeConversation, nil)
	defer r.Close()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l := &recordingListener{}
			h := r.Register("conv", l)
			r.Broadcast(context.Background(), "conv", []byte("ping"))
			r.Unregister(h)
		}()
	}
	wg.Wait()

	assert.Equal(t, 0, r.Len())
}
