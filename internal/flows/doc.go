// Package flows runs the engine operations: password login, refresh
// rotation, the two halves of the OAuth round trip, access validation and
// logout-all.
//
// Every Run* function takes a Deps struct of plain funcs and interfaces and
// returns a Result whose Failure kind the root package turns into an error,
// a metric and an audit event. Nothing here logs or keeps state between
// calls, and nothing imports the root package.
package flows
