// Package sqlstore provides database/sql implementations of the account and
// refresh-token stores.
//
// Two drivers are supported: "sqlite" (modernc.org/sqlite, pure Go) and
// "postgres" (github.com/lib/pq). Queries are written with ? placeholders
// and rebound for postgres. The schema is embedded and applied by [Open].
package sqlstore
