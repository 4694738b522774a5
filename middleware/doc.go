// Package middleware adapts eduAuth.Engine to net/http.
//
// # Guards
//
//   - [Guard] rejects requests without a valid bearer access token and
//     stores the [eduAuth.AuthResult] in the request context.
//   - [RequireRole] admits only the listed roles. It must run after Guard.
//   - [ClientInfo] copies the caller IP and User-Agent into the context so
//     audit events carry them.
//
// Access validation is stateless; a guarded route never touches Redis.
package middleware
