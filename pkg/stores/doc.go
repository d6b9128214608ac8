// Package stores persists applications, pages and action collections in
// SQLite. Schema changes are applied with embedded golang-migrate
// migrations. Lookups that feed an import are streamed and stop when their
// context is cancelled.
package stores
