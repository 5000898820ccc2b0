// ABOUTME: Error taxonomy for the conversation relay
// ABOUTME: Distinguishes per-turn recoverable errors from connection-terminal ones

package conversation

import "errors"

var (
	// ErrMalformedInput means an inbound frame was not {"text": string}.
	// The turn is skipped and the connection stays open.
	ErrMalformedInput = errors.New("malformed input")

	// ErrPersistence means a durable write failed. The rest of the turn is
	// skipped and the connection stays open.
	ErrPersistence = errors.New("persistence failure")

	// ErrTransportClosed means the client went away. It ends the session.
	ErrTransportClosed = errors.New("transport closed")

	// ErrRelayPanic is returned by Serve when the turn loop panicked.
	ErrRelayPanic = errors.New("relay panic")

	// errDuplicateTurn marks a turn whose turn_id was already handled.
	errDuplicateTurn = errors.New("duplicate turn")
)

// errorCode maps a turn error to the code sent in an error frame.
func errorCode(err error) string {
	switch {
	case errors.Is(err, ErrMalformedInput):
		return "malformed_input"
	case errors.Is(err, ErrPersistence):
		return "persistence_failed"
	default:
		return "internal"
	}
}
