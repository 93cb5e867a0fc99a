// Package pipeline provides a stage-graph workflow engine.
//
// A pipeline holds named stages, each with declared input parameters and
// optional declared outputs, and a directed acyclic graph of allowed
// transitions between them. A cursor moves forward and backward along the
// graph, propagating matching-named parameter values and declared outputs
// from a completed stage into the next stage's inputs.
//
// Core components include:
//   - Stages: units of computation with typed parameters and outputs
//   - Graph: validated DAG over stage names, or a default linear chain
//   - Cursor: the current stage plus the path actually taken, so backward
//     navigation is path-sensitive at merge points
//   - Gates: per-stage readiness parameters controlling advancement, with an
//     observable readiness-changed event for host-driven auto-advance
//
// The engine is synchronous and single-writer: navigation operations run to
// completion before returning, and concurrent calls against one pipeline
// must be serialized by the caller.
package pipeline
