// Package translate localizes reply text on a best-effort basis.
//
// An Engine does the actual work (a local NLLB model server, LibreTranslate,
// Gemini, or a passthrough). The Adapter wraps an engine so that callers never
// see a failure: errors, timeouts, empty output and panics all return the
// original text. After a configured number of consecutive failures a circuit
// breaker stops calling the engine; with a cooldown it probes again later,
// without one it stays open for the life of the process.
//
// Two-letter language tags are mapped to each engine's own codes through
// static tables. Tags missing from a table are handed to the engine as-is.
package translate
