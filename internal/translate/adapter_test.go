package translate

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeEngine records calls and delegates to fn.
type fakeEngine struct {
	mu    sync.Mutex
	codes []string
	fn    func(ctx context.Context, text, code string) (string, error)
}

func (f *fakeEngine) Name() string           { return "fake" }
func (f *fakeEngine) Code(tag string) string { return lookupCode(nllbCodes, tag) }

func (f *fakeEngine) Translate(ctx context.Context, text, code string) (string, error) {
	f.mu.Lock()
	f.codes = append(f.codes, code)
	f.mu.Unlock()
	return f.fn(ctx, text, code)
}

func (f *fakeEngine) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.codes)
}

func failingEngine() *fakeEngine {
	return &fakeEngine{fn: func(context.Context, string, string) (string, error) {
		return "", errors.New("model not loaded")
	}}
}

func TestAdapter_Translate_Success(t *testing.T) {
	engine := &fakeEngine{fn: func(_ context.Context, text, code string) (string, error) {
		return "[" + code + "] " + text, nil
	}}
	a := NewAdapter(engine, Options{})

	got := a.Translate(context.Background(), "hello", "fr")
	assert.Equal(t, "[fra_Latn] hello", got)
	assert.Equal(t, []string{"fra_Latn"}, engine.codes)
}

func TestAdapter_Translate_UnknownTagPassesThrough(t *testing.T) {
	engine := &fakeEngine{fn: func(_ context.Context, text, code string) (string, error) {
		return code, nil
	}}
	a := NewAdapter(engine, Options{})

	assert.Equal(t, "sw", a.Translate(context.Background(), "hello", "sw"))
	assert.Equal(t, "tgl_Latn", a.Translate(context.Background(), "hello", "tgl_Latn"))
}

func TestAdapter_Translate_ErrorReturnsOriginal(t *testing.T) {
	a := NewAdapter(failingEngine(), Options{})

	assert.Equal(t, "hello there", a.Translate(context.Background(), "hello there", "fr"))
}

func TestAdapter_Translate_EmptyOutputReturnsOriginal(t *testing.T) {
	engine := &fakeEngine{fn: func(context.Context, string, string) (string, error) {
		return "   ", nil
	}}
	a := NewAdapter(engine, Options{})

	assert.Equal(t, "hello", a.Translate(context.Background(), "hello", "de"))
}

func TestAdapter_Translate_TimeoutReturnsOriginal(t *testing.T) {
	engine := &fakeEngine{fn: func(ctx context.Context, _, _ string) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}}
	a := NewAdapter(engine, Options{Timeout: 20 * time.Millisecond})

	start := time.Now()
	got := a.Translate(context.Background(), "slow text", "ja")

	assert.Equal(t, "slow text", got)
	assert.Less(t, time.Since(start), 2*time.Second, "timeout should bound the call")
}

func TestAdapter_Translate_PanicReturnsOriginal(t *testing.T) {
	engine := &fakeEngine{fn: func(context.Context, string, string) (string, error) {
		panic("engine exploded")
	}}
	a := NewAdapter(engine, Options{})

	assert.Equal(t, "hello", a.Translate(context.Background(), "hello", "ko"))
}

func TestAdapter_Translate_EmptyInputSkipsEngine(t *testing.T) {
	engine := failingEngine()
	a := NewAdapter(engine, Options{})

	assert.Equal(t, "", a.Translate(context.Background(), "", "fr"))
	assert.Equal(t, 0, engine.calls())
}

func TestAdapter_Translate_NilEngineIsPassthrough(t *testing.T) {
	a := NewAdapter(nil, Options{})

	assert.Equal(t, EnginePassthrough, a.EngineName())
	assert.Equal(t, "hola", a.Translate(context.Background(), "hola", "fr"))
}

func TestAdapter_Breaker_StaysOpenWithoutCooldown(t *testing.T) {
	engine := failingEngine()
	a := NewAdapter(engine, Options{BreakerThreshold: 3})

	for i := 0; i < 3; i++ {
		assert.Equal(t, "text", a.Translate(context.Background(), "text", "fr"))
	}
	require.Equal(t, 3, engine.calls())

	for i := 0; i < 10; i++ {
		assert.Equal(t, "text", a.Translate(context.Background(), "text", "fr"))
	}
	assert.Equal(t, 3, engine.calls(), "open breaker must not call the engine")
	assert.Equal(t, breakerOpen, a.breaker.currentState())
}

func TestAdapter_Breaker_NegativeThresholdNeverOpens(t *testing.T) {
	engine := failingEngine()
	a := NewAdapter(engine, Options{BreakerThreshold: -1})

	for i := 0; i < 20; i++ {
		assert.Equal(t, "text", a.Translate(context.Background(), "text", "fr"))
	}
	assert.Equal(t, 20, engine.calls())
	assert.Equal(t, breakerClosed, a.breaker.currentState())
}

func TestAdapter_Breaker_HalfOpenProbeCloses(t *testing.T) {
	var fail bool
	var mu sync.Mutex
	engine := &fakeEngine{fn: func(_ context.Context, text, _ string) (string, error) {
		mu.Lock()
		defer mu.Unlock()
		if fail {
			return "", errors.New("down")
		}
		return "ok:" + text, nil
	}}

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	a := NewAdapter(engine, Options{BreakerThreshold: 2, BreakerCooldown: time.Minute})
	a.breaker.now = func() time.Time { return now }

	mu.Lock()
	fail = true
	mu.Unlock()
	a.Translate(context.Background(), "x", "fr")
	a.Translate(context.Background(), "x", "fr")
	require.Equal(t, breakerOpen, a.breaker.currentState())

	// Still cooling down
	assert.Equal(t, "x", a.Translate(context.Background(), "x", "fr"))
	assert.Equal(t, 2, engine.calls())

	// Probe fails: breaker reopens for another cooldown
	now = now.Add(61 * time.Second)
	assert.Equal(t, "x", a.Translate(context.Background(), "x", "fr"))
	assert.Equal(t, 3, engine.calls())
	assert.Equal(t, breakerOpen, a.breaker.currentState())

	// Next probe succeeds and closes it
	mu.Lock()
	fail = false
	mu.Unlock()
	now = now.Add(61 * time.Second)
	assert.Equal(t, "ok:x", a.Translate(context.Background(), "x", "fr"))
	assert.Equal(t, breakerClosed, a.breaker.currentState())
	assert.Equal(t, "ok:y", a.Translate(context.Background(), "y", "fr"))
}

func TestAdapter_Breaker_SuccessResetsFailureCount(t *testing.T) {
	calls := 0
	engine := &fakeEngine{fn: func(_ context.Context, text, _ string) (string, error) {
		calls++
		if calls%2 == 1 {
			return "", errors.New("flaky")
		}
		return text, nil
	}}
	a := NewAdapter(engine, Options{BreakerThreshold: 2})

	for i := 0; i < 6; i++ {
		a.Translate(context.Background(), "x", "fr")
	}
	assert.Equal(t, breakerClosed, a.breaker.currentState(), "alternating failures never reach the threshold")
	assert.Equal(t, 6, engine.calls())
}

func TestAdapter_String(t *testing.T) {
	a := NewAdapter(Passthrough{}, Options{Timeout: time.Second})
	assert.Contains(t, a.String(), "passthrough")
	assert.Contains(t, a.String(), "closed")
}
