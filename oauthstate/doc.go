// Package oauthstate stores the short-lived PKCE state minted when an OAuth
// authorization starts and consumed when the provider redirects back.
//
// # Tiers
//
// [FailoverStore] writes to a primary [Backend] (normally [RedisBackend]) and
// falls back to a process-local [MemoryBackend] whenever the primary fails or
// times out. A [Breaker] keeps the primary out of the request path for a
// cooldown after each failure and then lets exactly one caller probe it.
//
// States written to the fallback during an outage are never copied back to
// the primary. They stay visible to the instance that minted them until they
// expire; other instances will not find them.
//
// # Consumption
//
// A state is consumed by [FailoverStore.DeleteState]. If the primary does not
// confirm the delete, a consumed marker is kept in the fallback and wins over
// any copy the primary still returns, so a state is never handed out twice
// by the same process.
//
// # What this package must NOT do
//
//   - Talk to the identity provider.
//   - Keep package-level state; every tier is an explicit instance.
package oauthstate
