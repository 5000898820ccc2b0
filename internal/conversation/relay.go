// ABOUTME: Conversation relay running the per-connection turn loop
// ABOUTME: Each turn is recorded before it is broadcast: user message, summary, reply

package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/fluentroot/fluent-gateway/internal/dedupe"
	"github.com/fluentroot/fluent-gateway/internal/store"
)

const instrumentationName = "github.com/fluentroot/fluent-gateway/internal/conversation"

// DefaultPersistTimeout bounds each store call when none is configured.
const DefaultPersistTimeout = 5 * time.Second

// MessageStore defines what the relay needs from storage
type MessageStore interface {
	InsertMessage(ctx context.Context, msg *store.Message) error
	UpdateConversationLastMessage(ctx context.Context, id, text string, ts time.Time) error
	GetConversationLanguage(ctx context.Context, id string) (string, error)
}

// Replier produces the reply to a user's message in the target language.
type Replier interface {
	Generate(ctx context.Context, userText, targetLang string) string
}

// Transport is one client connection. Receive blocks for the next inbound
// frame and returns an error wrapping ErrTransportClosed when the client is gone.
type Transport interface {
	Listener
	Receive(ctx context.Context) ([]byte, error)
	Close() error
}

// InboundFrame is what clients send for each turn.
type InboundFrame struct {
	Text   *string `json:"text"`
	TurnID string  `json:"turn_id,omitempty"`
}

// OutboundFrame is broadcast for every persisted message.
type OutboundFrame struct {
	ConversationID string `json:"conversation_id"`
	Sender         string `json:"sender"`
	Text           string `json:"text"`
	Timestamp      string `json:"timestamp"`
}

// ErrorFrame is sent to the originating connection when error frames are enabled.
type ErrorFrame struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// RelayOptions configures a Relay.
type RelayOptions struct {
	PersistTimeout time.Duration // per store call; zero means DefaultPersistTimeout
	ErrorFrames    bool          // send ErrorFrame on malformed input or persistence failure
	Dedupe         *dedupe.Cache // optional; enables turn_id de-duplication

	Logger *slog.Logger
	Meter  metric.Meter // nil uses the global meter provider
	Tracer trace.Tracer // nil uses the global tracer provider
}

// Relay serves conversation sessions. One Relay is shared by all
// connections; each call to Serve runs an independent turn loop.
type Relay struct {
	store          MessageStore
	replier        Replier
	registry       *Registry
	dedupe         *dedupe.Cache
	persistTimeout time.Duration
	errorFrames    bool
	now            func() time.Time

	logger *slog.Logger
	tracer trace.Tracer

	turns       metric.Int64Counter
	connections metric.Int64UpDownCounter
}

// NewRelay creates a relay.
func NewRelay(s MessageStore, replier Replier, registry *Registry, opts RelayOptions) *Relay {
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
	timeout := opts.PersistTimeout
	if timeout <= 0 {
		timeout = DefaultPersistTimeout
	}

	r := &Relay{
		store:          s,
		replier:        replier,
		registry:       registry,
		dedupe:         opts.Dedupe,
		persistTimeout: timeout,
		errorFrames:    opts.ErrorFrames,
		now:            time.Now,
		logger:         logger.With("component", "relay"),
		tracer:         tracer,
	}

	var err error
	r.turns, err = meter.Int64Counter("relay.turns",
		metric.WithDescription("Relay turns by outcome"))
	if err != nil {
		r.logger.Warn("failed to create counter", "error", err)
	}
	r.connections, err = meter.Int64UpDownCounter("relay.connections",
		metric.WithDescription("Open relay connections"))
	if err != nil {
		r.logger.Warn("failed to create counter", "error", err)
	}

	return r
}

// session is the per-connection state of one Serve call.
type session struct {
	conversationID string
	language       string
	transport      Transport
	lastStamp      time.Time
	logger         *slog.Logger
}

// Serve runs the turn loop for one connection until the client disconnects,
// ctx is cancelled, or the loop panics. The transport is always unregistered
// and closed on return. A normal disconnect returns nil.
func (r *Relay) Serve(ctx context.Context, conversationID string, t Transport) (err error) {
	handle := r.registry.Register(conversationID, t)
	r.addConnections(ctx, 1)

	logger := r.logger.With("conversation_id", conversationID, "handle", handle)

	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("relay loop panicked", "panic", rec)
			err = fmt.Errorf("%w: %v", ErrRelayPanic, rec)
		}
		r.registry.Unregister(handle)
		_ = t.Close()
		r.addConnections(context.WithoutCancel(ctx), -1)
		logger.Debug("relay session closed")
	}()

	s := &session{
		conversationID: conversationID,
		language:       r.lookupLanguage(ctx, conversationID, logger),
		transport:      t,
		logger:         logger,
	}
	logger.Info("relay session opened", "language", s.language)

	for {
		raw, err := t.Receive(ctx)
		if err != nil {
			if errors.Is(err, ErrTransportClosed) || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("receiving frame: %w", err)
		}

		if err := r.turn(ctx, s, raw); err != nil {
			r.handleTurnError(ctx, s, err)
		}
	}
}

// lookupLanguage reads the conversation's target language once per session.
func (r *Relay) lookupLanguage(ctx context.Context, conversationID string, logger *slog.Logger) string {
	lookupCtx, cancel := context.WithTimeout(ctx, r.persistTimeout)
	defer cancel()

	lang, err := r.store.GetConversationLanguage(lookupCtx, conversationID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			logger.Warn("language lookup failed, defaulting", "error", err)
		}
		return store.DefaultLanguage
	}
	if lang == "" {
		return store.DefaultLanguage
	}
	return lang
}

// decodeFrame parses one inbound frame. text must be present and a string.
func decodeFrame(raw []byte) (*InboundFrame, error) {
	var in InboundFrame
	if err := json.Unmarshal(raw, &in); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedInput, err)
	}
	if in.Text == nil {
		return nil, fmt.Errorf("%w: missing text field", ErrMalformedInput)
	}
	return &in, nil
}

// turn runs the seven steps of one turn in order.
func (r *Relay) turn(ctx context.Context, s *session, raw []byte) error {
	in, err := decodeFrame(raw)
	if err != nil {
		return err
	}
	text := *in.Text

	if in.TurnID != "" && r.dedupe != nil && r.dedupe.Seen(s.conversationID, in.TurnID) {
		return errDuplicateTurn
	}

	ctx, span := r.tracer.Start(ctx, "relay.turn",
		trace.WithAttributes(
			attribute.String("conversation.id", s.conversationID),
			attribute.String("conversation.language", s.language),
		))
	defer span.End()

	// Record first, then broadcast
	userMsg := &store.Message{
		ConversationID: s.conversationID,
		Sender:         store.SenderUser,
		Text:           text,
		Timestamp:      s.stamp(r.now()),
	}
	if err := r.persist(ctx, func(pctx context.Context) error { return r.store.InsertMessage(pctx, userMsg) }); err != nil {
		if in.TurnID != "" && r.dedupe != nil {
			r.dedupe.Forget(s.conversationID, in.TurnID)
		}
		return r.failSpan(span, fmt.Errorf("%w: saving user message: %v", ErrPersistence, err))
	}
	r.broadcast(ctx, userMsg)

	if err := r.persist(ctx, func(pctx context.Context) error {
		return r.store.UpdateConversationLastMessage(pctx, s.conversationID, text, userMsg.Timestamp)
	}); err != nil {
		return r.failSpan(span, fmt.Errorf("%w: updating conversation: %v", ErrPersistence, err))
	}

	replyText := r.replier.Generate(ctx, text, s.language)

	aiMsg := &store.Message{
		ConversationID: s.conversationID,
		Sender:         store.SenderAI,
		Text:           replyText,
		Timestamp:      s.stamp(r.now()),
	}
	if err := r.persist(ctx, func(pctx context.Context) error { return r.store.InsertMessage(pctx, aiMsg) }); err != nil {
		return r.failSpan(span, fmt.Errorf("%w: saving reply: %v", ErrPersistence, err))
	}
	r.broadcast(ctx, aiMsg)

	s.logger.Debug("turn completed",
		"user_message_id", userMsg.ID,
		"reply_message_id", aiMsg.ID)
	r.countTurn(ctx, "ok")
	return nil
}

// persist runs fn with a bounded context that survives cancellation of the
// session context, so a turn in flight at shutdown is still recorded.
func (r *Relay) persist(ctx context.Context, fn func(context.Context) error) error {
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.persistTimeout)
	defer cancel()
	return fn(pctx)
}

func (r *Relay) broadcast(ctx context.Context, msg *store.Message) {
	payload, err := json.Marshal(OutboundFrame{
		ConversationID: msg.ConversationID,
		Sender:         msg.Sender,
		Text:           msg.Text,
		Timestamp:      store.FormatTimestamp(msg.Timestamp),
	})
	if err != nil {
		r.logger.Error("failed to encode frame", "error", err)
		return
	}
	r.registry.Broadcast(ctx, msg.ConversationID, payload)
}

func (r *Relay) failSpan(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

// handleTurnError logs a failed turn and optionally tells the client.
func (r *Relay) handleTurnError(ctx context.Context, s *session, err error) {
	switch {
	case errors.Is(err, errDuplicateTurn):
		s.logger.Debug("skipping duplicate turn")
		r.countTurn(ctx, "duplicate")
		return
	case errors.Is(err, ErrMalformedInput):
		s.logger.Warn("skipping malformed frame", "error", err)
		r.countTurn(ctx, "malformed")
	case errors.Is(err, ErrPersistence):
		s.logger.Error("turn aborted", "error", err)
		r.countTurn(ctx, "persistence_failed")
	default:
		s.logger.Error("turn failed", "error", err)
		r.countTurn(ctx, "error")
	}

	if !r.errorFrames {
		return
	}
	payload, merr := json.Marshal(ErrorFrame{Error: err.Error(), Code: errorCode(err)})
	if merr != nil {
		return
	}
	if serr := s.transport.Send(ctx, payload); serr != nil {
		s.logger.Debug("failed to send error frame", "error", serr)
	}
}

func (r *Relay) countTurn(ctx context.Context, outcome string) {
	if r.turns != nil {
		r.turns.Add(context.WithoutCancel(ctx), 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	}
}

func (r *Relay) addConnections(ctx context.Context, n int64) {
	if r.connections != nil {
		r.connections.Add(ctx, n)
	}
}

// stamp returns a UTC microsecond timestamp strictly after every earlier
// stamp in this session, even if the wall clock stalls or steps back.
func (s *session) stamp(now time.Time) time.Time {
	ts := now.UTC().Truncate(time.Microsecond)
	if !ts.After(s.lastStamp) {
		ts = s.lastStamp.Add(time.Microsecond)
	}
	s.lastStamp = ts
	return ts
}
