package main

import (
	"context"

	"github.com/calder-labs/pipeline"
	"github.com/calder-labs/pipeline/params"
)

// Built-in generic stages so that definitions can be walked without writing
// Go code. Applications embedding the library register their own factories.
func init() {
	pipeline.RegisterStageFactory("pipewalk.form", newFormStage)
	pipeline.RegisterStageFactory("pipewalk.choice", newChoiceStage)
}

// formStage is a free-text step gated on its "done" flag. Its outputs are
// simply its parameter values, so downstream stages inherit the note.
type formStage struct {
	set *params.Set
}

func newFormStage() (pipeline.Stage, error) {
	return &formStage{set: params.NewSetOf(
		params.Spec{Name: "note", Default: "", Doc: "free-form text carried to the next stage"},
		params.Spec{Name: "done", Default: false, Doc: "set true to allow advancing"},
	)}, nil
}

func (s *formStage) Params() *params.Set { return s.set }

func (s *formStage) Outputs(context.Context) (map[string]any, error) {
	return s.set.Values(), nil
}

// choiceStage is a branch step: its "choice" parameter names the successor
// when the stage is registered with `next: choice`.
type choiceStage struct {
	set *params.Set
}

func newChoiceStage() (pipeline.Stage, error) {
	return &choiceStage{set: params.NewSetOf(
		params.Spec{Name: "choice", Default: "", Doc: "name of the successor stage to take"},
		params.Spec{Name: "done", Default: false, Doc: "set true to allow advancing"},
	)}, nil
}

func (s *choiceStage) Params() *params.Set { return s.set }

func (s *choiceStage) Outputs(context.Context) (map[string]any, error) {
	return s.set.Values(), nil
}
