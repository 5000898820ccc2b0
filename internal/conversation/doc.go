// Package conversation implements the real-time conversation relay.
//
// # Relay
//
// A Relay serves one WebSocket connection per Serve call. After registering
// the connection it looks up the conversation's target language once and
// then loops over inbound frames. Each turn runs strictly in order:
//
//  1. decode {"text": string, "turn_id"?: string}
//  2. persist the user message
//  3. broadcast it
//  4. update the conversation's last_message and updated_at
//  5. generate the localized reply
//  6. persist the reply with a later timestamp
//  7. broadcast the reply
//
// Nothing is broadcast before it is stored. A malformed frame or a failed
// write skips the rest of the turn but keeps the connection open; with
// error frames enabled the client is told why. A panic in the loop closes
// only that connection.
//
// # Registry
//
// The Registry fans frames out to live listeners. By default a frame
// reaches only listeners of the same conversation; the global scope sends
// every frame to every listener. A listener whose send fails is dropped
// after the pass without affecting the others.
//
// # Transport
//
// WSTransport adapts a gorilla/websocket connection. Writes are serialized
// and bounded by a deadline, pings keep idle connections alive, and the
// socket closes when the serving context is cancelled.
package conversation
