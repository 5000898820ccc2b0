// Package store provides persistent storage for the gateway using SQLite.
//
// # Data Models
//
//   - User: a learner account; the password column holds a bcrypt hash
//   - Conversation: a practice session with a target language and topic,
//     carrying a summary of its latest turn (last_message, updated_at)
//   - Message: one append-only chat line, sent by "user" or "ai"
//
// SQLiteStore and MockStore both implement Store.
//
// # SQLite Configuration
//
// The store uses SQLite with WAL mode so relay sessions for different
// conversations can write concurrently:
//
//	PRAGMA journal_mode=WAL;
//	PRAGMA foreign_keys=ON;
//	PRAGMA busy_timeout=5000;
//
// The schema is created at open time and column migrations are applied
// idempotently afterwards.
//
// # Timestamps
//
// Every timestamp is stored as an ISO-8601 UTC string with fixed microsecond
// precision (see TimestampLayout). Lexical order therefore equals
// chronological order, and messages are read back ordered by
// (timestamp, id).
//
// # Error Handling
//
//   - ErrNotFound: requested entity does not exist
//   - ErrDuplicateEmail: signup with a registered email
//   - ErrDuplicateConversation: conversation ID already taken
//   - ErrInvalidReference: parent user or conversation is missing
//
// Deleting a conversation removes its messages first and then the
// conversation row, inside one transaction.
package store
