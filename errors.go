package pipeline

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidGraph is the root of every graph validation failure.
	// GraphError wraps it with the offending stage or edge.
	ErrInvalidGraph = errors.New("invalid graph")

	// ErrNotReady is returned by Advance while the current stage's ready
	// parameter is false.
	ErrNotReady = errors.New("stage not ready")

	// ErrAmbiguousTransition is returned by Advance at a branch point when no
	// next parameter is declared and no explicit selection was supplied.
	ErrAmbiguousTransition = errors.New("ambiguous transition")

	// ErrNoFurtherStages is returned by Advance on a terminal stage.
	ErrNoFurtherStages = errors.New("no further stages")

	// ErrHistoryUnderflow is returned by Retreat when no stage has been left.
	ErrHistoryUnderflow = errors.New("history underflow")

	// ErrStaleHistory is returned by Retreat when the recorded path no longer
	// exists in the graph, i.e. the graph was redefined mid-flight.
	ErrStaleHistory = errors.New("history references a removed stage or edge")

	// ErrNotStarted is returned by navigation operations before Start.
	ErrNotStarted = errors.New("pipeline not started")

	// ErrAlreadyStarted is returned by Start on a started pipeline and by
	// registration operations once navigation has begun.
	ErrAlreadyStarted = errors.New("pipeline already started")
)

// GraphError reports why a declared graph was rejected. The graph is rejected
// wholesale: an invalid graph must never drive a pipeline.
type GraphError struct {
	// Stage is the offending stage name, when one can be identified.
	Stage string
	// Edge is the offending edge in "from->to" form, when one can be identified.
	Edge string
	// Reason describes the failure.
	Reason string
}

func (e *GraphError) Error() string {
	switch {
	case e.Edge != "":
		return fmt.Sprintf("invalid graph: edge %s: %s", e.Edge, e.Reason)
	case e.Stage != "":
		return fmt.Sprintf("invalid graph: stage %q: %s", e.Stage, e.Reason)
	default:
		return fmt.Sprintf("invalid graph: %s", e.Reason)
	}
}

// Unwrap allows errors.Is(err, ErrInvalidGraph).
func (e *GraphError) Unwrap() error { return ErrInvalidGraph }

// OutputError wraps a failure from a stage's output computation. The
// pipeline's cursor and history are unchanged when it is returned, so the
// caller may fix the stage's inputs and retry the transition.
type OutputError struct {
	Stage string
	Err   error
}

func (e *OutputError) Error() string {
	return fmt.Sprintf("stage %q output computation failed: %v", e.Stage, e.Err)
}

func (e *OutputError) Unwrap() error { return e.Err }
