// Package identity talks to an external OAuth 2.0 identity provider: it builds
// PKCE authorization URLs, exchanges authorization codes and fetches the
// userinfo profile.
//
// Every outbound call is bounded by [Config.Timeout] and every failure is
// returned as a classified *netfail.Error so callers never inspect raw
// transport errors.
package identity
