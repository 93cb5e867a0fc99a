package pipeline

import (
	"context"

	"github.com/calder-labs/pipeline/params"
)

// Stage is a single unit of the workflow graph: a named computation with
// declared input parameters and zero or more declared outputs.
// Stages are the building blocks of pipelines; the engine never executes a
// stage's work itself, it only drives the cursor across stages and moves
// values between them.
type Stage interface {
	// Params returns the stage's declared parameter set.
	Params() *params.Set

	// Outputs computes the stage's declared outputs once its inputs are set.
	// It is invoked exactly once per forward transition, at the moment the
	// cursor leaves the stage. A returned error aborts the transition and
	// leaves the pipeline on the current stage.
	Outputs(ctx context.Context) (map[string]any, error)
}

// Renderer is an optional interface for stages that can draw themselves.
// Hosts may use it to embed a stage's view in the navigation UI; the engine
// itself never calls Render.
type Renderer interface {
	Render() string
}

// Factory creates a new instance of a Stage. Factories registered on a
// pipeline are invoked lazily, only when the cursor first reaches the stage,
// so expensive resource acquisition is deferred until it is needed.
type Factory func() (Stage, error)

// StageOptions is the declared transition metadata for a registered stage.
// It replaces reflective discovery: every gate and selector the engine needs
// is named explicitly at registration time.
type StageOptions struct {
	// ReadyParameter names a boolean parameter on the stage gating forward
	// navigation. While the parameter is false, Advance fails with
	// ErrNotReady. Empty means the stage is always ready.
	ReadyParameter string `mapstructure:"ready"`

	// AutoAdvance marks the stage for host-driven automatic advancement:
	// when the ready parameter transitions to true the host should call
	// Advance. The engine only reports the transition, it never self-drives.
	AutoAdvance bool `mapstructure:"auto_advance"`

	// NextParameter names a string parameter on the stage that selects the
	// successor at a branch point. Its value is read once, at the moment
	// Advance resolves the target, and must name a declared successor.
	NextParameter string `mapstructure:"next"`

	// NoInherit disables parameter inheritance for the stage: values from
	// the previous stage are not applied to matching-named parameters.
	NoInherit bool `mapstructure:"no_inherit"`

	// Doc provides details about the stage's purpose.
	Doc string `mapstructure:"doc"`
}

// stageRecord is the engine's bookkeeping for one registered stage.
// live stays nil for factory registrations until the cursor first enters
// the stage.
type stageRecord struct {
	name    string
	opts    StageOptions
	factory Factory
	live    Stage
}

// instance returns the live stage, instantiating from the factory on first
// use. Instances are held for the lifetime of the pipeline so that
// revisiting a stage preserves its parameter values.
func (r *stageRecord) instance() (Stage, error) {
	if r.live != nil {
		return r.live, nil
	}
	s, err := r.factory()
	if err != nil {
		return nil, err
	}
	r.live = s
	return s, nil
}

// ReadyFunc receives readiness-change notifications for the current stage.
type ReadyFunc func(stage string, ready bool)
