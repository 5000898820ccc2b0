// ABOUTME: Best-effort translation adapter wrapping an Engine with timeout, breaker and metrics
// ABOUTME: Translate never fails; any engine problem returns the original text

package translate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// instrumentationName identifies this package's meter and tracer.
const instrumentationName = "github.com/fluentroot/fluent-gateway/internal/translate"

// Outcomes recorded on the translate.requests counter.
const (
	outcomeOK          = "ok"
	outcomeError       = "error"
	outcomeTimeout     = "timeout"
	outcomeBreakerOpen = "breaker_open"
	outcomePanic       = "panic"
)

// Options configures an Adapter. Zero values disable the timeout and the breaker.
type Options struct {
	Timeout          time.Duration
	BreakerThreshold int
	BreakerCooldown  time.Duration

	Logger *slog.Logger
	Meter  metric.Meter // nil uses the global meter provider
	Tracer trace.Tracer // nil uses the global tracer provider
}

// Adapter localizes text through an Engine on a best-effort basis.
type Adapter struct {
	engine  Engine
	timeout time.Duration
	breaker *breaker
	logger  *slog.Logger
	tracer  trace.Tracer

	requests metric.Int64Counter
	duration metric.Float64Histogram
}

// NewAdapter wraps engine with the given options.
func NewAdapter(engine Engine, opts Options) *Adapter {
	if engine == nil {
		engine = Passthrough{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	meter := opts.Meter
	if meter == nil {
		meter = otel.Meter(instrumentationName)
	}
	tracer := opts.Tracer
	if tracer == nil {
		tracer = otel.Tracer(instrumentationName)
	}

	a := &Adapter{
		engine:  engine,
		timeout: opts.Timeout,
		breaker: newBreaker(opts.BreakerThreshold, opts.BreakerCooldown),
		logger:  logger.With("component", "translate", "engine", engine.Name()),
		tracer:  tracer,
	}

	var err error
	a.requests, err = meter.Int64Counter("translate.requests",
		metric.WithDescription("Translation attempts by outcome"))
	if err != nil {
		a.logger.Warn("failed to create counter", "error", err)
	}
	a.duration, err = meter.Float64Histogram("translate.duration",
		metric.WithDescription("Translation engine latency in milliseconds"),
		metric.WithUnit("ms"))
	if err != nil {
		a.logger.Warn("failed to create histogram", "error", err)
	}

	return a
}

// EngineName returns the name of the wrapped engine.
func (a *Adapter) EngineName() string {
	return a.engine.Name()
}

// Translate returns text translated into the language named by tag, or text
// unchanged if the engine fails, times out, returns nothing, or is cut off by
// the breaker.
func (a *Adapter) Translate(ctx context.Context, text, tag string) (result string) {
	if strings.TrimSpace(text) == "" {
		return text
	}

	code := a.engine.Code(tag)

	ctx, span := a.tracer.Start(ctx, "translate",
		trace.WithAttributes(
			attribute.String("translate.engine", a.engine.Name()),
			attribute.String("translate.target", code),
		))
	defer span.End()

	if !a.breaker.allow() {
		a.record(ctx, outcomeBreakerOpen, 0)
		span.SetAttributes(attribute.String("translate.outcome", outcomeBreakerOpen))
		return text
	}

	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("translation engine panicked", "panic", r)
			a.breaker.failure()
			a.record(ctx, outcomePanic, 0)
			result = text
		}
	}()

	callCtx := ctx
	if a.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	start := time.Now()
	out, err := a.engine.Translate(callCtx, text, code)
	elapsed := time.Since(start)

	if err == nil && strings.TrimSpace(out) == "" {
		err = ErrEmptyTranslation
	}
	if err != nil {
		outcome := outcomeError
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			outcome = outcomeTimeout
		}
		opened := a.breaker.failure()
		a.record(ctx, outcome, elapsed)
		span.RecordError(err)
		span.SetAttributes(attribute.String("translate.outcome", outcome))

		a.logger.Warn("translation failed, using original text",
			"target", code,
			"outcome", outcome,
			"error", err)
		if opened {
			a.logger.Warn("translation breaker opened", "cooldown", a.breaker.cooldown)
		}
		return text
	}

	a.breaker.success()
	a.record(ctx, outcomeOK, elapsed)
	span.SetAttributes(attribute.String("translate.outcome", outcomeOK))
	return out
}

func (a *Adapter) record(ctx context.Context, outcome string, elapsed time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("engine", a.engine.Name()),
		attribute.String("outcome", outcome),
	)
	if a.requests != nil {
		a.requests.Add(ctx, 1, attrs)
	}
	if a.duration != nil && elapsed > 0 {
		a.duration.Record(ctx, float64(elapsed.Microseconds())/1000, attrs)
	}
}

// String describes the adapter for startup logs.
func (a *Adapter) String() string {
	return fmt.Sprintf("translate(%s, timeout=%s, breaker=%s)", a.engine.Name(), a.timeout, a.breaker.currentState())
}
