// Package ir provides the event model shared by every critpath package.
//
// This package contains type definitions only. All other internal packages
// import ir; ir imports nothing internal. This keeps the model the
// foundational layer with no circular dependencies.
//
// Key design constraints:
//   - Node payloads are a closed sum type (Payload); each kind carries only
//     the fields that apply to it
//   - Durations are time.Duration and serialize as integer microseconds
//   - All JSON tags use snake_case
//   - Event IDs are content-addressed over RFC 8785 canonical JSON
package ir
