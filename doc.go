// Package eduAuth manages the authentication token lifecycle of an education
// platform: password login, refresh-token rotation with reuse detection, and
// PKCE-protected sign-in through an external identity provider.
//
// [Engine] is the public surface. Build it with [Builder]; its methods are
// safe for concurrent use. Flow orchestration lives in internal/flows and is
// never exported.
//
// # Storage
//
// Refresh records are stored by SHA-256 hash only (refresh.RedisStore or
// sqlstore.RefreshTokens). OAuth states live in Redis with an in-process
// fallback tier behind a circuit breaker (oauthstate.FailoverStore). Accounts
// are reached through [AccountStore]; sqlstore.Accounts is the reference
// implementation.
//
// # What this package must NOT do
//
//   - Import sqlstore or any package that imports eduAuth.
//   - Log full tokens. Logs and audit events carry a short suffix at most.
//   - Retry external calls. Each call gets one bounded attempt.
package eduAuth
