// Package dedupe provides a time-bounded cache that the relay uses to drop
// chat turns whose client-supplied turn id was already processed, so a client
// retrying after a reconnect does not produce a second user/ai pair.
package dedupe
