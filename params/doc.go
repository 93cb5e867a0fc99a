// Package params provides declared, typed parameter slots for pipeline stages.
//
// A Set holds a fixed collection of named slots, each declared with a concrete
// Go type, an optional default, an optional doc string, and optional numeric
// bounds. Assignment is type-checked against the declaration and bounds are
// enforced, so a stage's inputs carry their contract with them rather than
// relying on convention.
//
// Core features include:
//   - Type-safe retrieval using generics (Get[T])
//   - Declaration-order iteration for stable rendering
//   - Synchronous value-change watchers for readiness gating
//   - JSON Schema export of a set's slots for host UIs
//   - Thread-safe operations
//
// Slots must be declared before use; setting or reading an undeclared name
// is an error, never a silent creation.
package params
