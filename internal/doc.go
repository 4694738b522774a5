// Package internal holds token helpers shared by the stores and the engine:
// random state and verifier generation, the SHA-256 digest refresh tokens
// are stored under, and the short suffix used when a token must appear in
// a log line.
//
// audit, flows and netfail live in sub-packages.
package internal
