// Package store provides the SQLite event log of critpath builds.
//
// The log is append-only and holds, per build:
//   - Builds: one row per ingested invocation, with the backend it used
//   - Events: every accepted wire event, keyed by a content-addressed ID
//   - Instants: structured records emitted when the build finishes
//     (the BuildGraphInfo critical path)
//
// # Critical Patterns
//
// Idempotent appends
//   - Event IDs come from ir.EventID (RFC 8785 canonical JSON, SHA-256 with
//     domain separation) over the build ID, seq and event
//   - Writes use ON CONFLICT DO NOTHING, so re-appending is a no-op
//
// Logical time
//   - Events are ordered by seq, the engine's arrival clock, NEVER by
//     timestamps; reading a build back yields the exact observation order
//   - Builds are ordered by insertion ordinal
//
// Build IDs are unique: CreateBuild refuses an ID that is already
// registered (ErrBuildExists), so two ingests never share one seq space.
//
// # Database Configuration
//
// Set per connection through the DSN: WAL journal, synchronous=NORMAL,
// 5s busy timeout and enforced foreign keys.
package store
