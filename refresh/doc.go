// Package refresh persists refresh-token records and provides the atomic
// primitives rotation depends on.
//
// # Record lifecycle
//
// A record is created when a refresh token is issued and moves to exactly one
// terminal state: used (the token was exchanged once) or revoked (bulk
// invalidation). Neither flag is ever cleared. Records are keyed by the
// SHA-256 of the token; the raw token is never stored.
//
// # Architecture boundaries
//
// This package owns storage and the compare-and-swap behind [Store.MarkUsed].
// Deciding what a lost CAS or a replayed token means is the Engine's job.
//
// [RedisStore] keys share one hash tag, so it works with cluster clients as
// long as one store's data fits a single slot.
//
// # What this package must NOT do
//
//   - Sign or verify tokens.
//   - Import eduAuth or jwt.
//   - Delete records physically before their retention window ends.
package refresh
