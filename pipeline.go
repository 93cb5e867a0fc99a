package pipeline

import (
	"fmt"
	"reflect"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// tracerName identifies this library to the OpenTelemetry provider.
const tracerName = "github.com/calder-labs/pipeline"

// Pipeline drives a cursor across a directed acyclic graph of stages,
// propagating parameter values and declared outputs from a completed stage
// into the next stage's inputs.
//
// A Pipeline is single-writer: navigation operations run to completion before
// returning and perform no internal locking. Concurrent calls against the
// same instance must be serialized by the caller, typically by keeping one
// pipeline per user session.
type Pipeline struct {
	// ID is the unique identifier for this pipeline instance
	ID string
	// Name is a human-readable name for the pipeline
	Name string

	logger  Logger
	metrics *Metrics
	tracer  trace.Tracer

	// order is the stage registration order, which doubles as the default
	// linear chain when no graph is declared
	order  []string
	stages map[string]*stageRecord

	adjacency    map[string][]string
	entry        string
	graphDefined bool

	started bool
	current string
	// history records the path actually taken, not graph adjacency, so that
	// Retreat is path-sensitive at merge points
	history []string

	readyFns     []ReadyFunc
	unwatchReady func()
}

// Option configures a Pipeline at construction time.
type Option func(*Pipeline)

// WithLogger sets the logger used for navigation events.
func WithLogger(logger Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// WithMetrics attaches prometheus instrumentation to the pipeline.
func WithMetrics(m *Metrics) Option {
	return func(p *Pipeline) {
		p.metrics = m
	}
}

// WithTracerProvider sets the OpenTelemetry provider used for navigation
// spans. The global provider is used by default.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(p *Pipeline) {
		p.tracer = tp.Tracer(tracerName)
	}
}

// WithID overrides the generated pipeline ID.
func WithID(id string) Option {
	return func(p *Pipeline) {
		p.ID = id
	}
}

// New creates an empty pipeline with a generated ID.
func New(name string, opts ...Option) *Pipeline {
	p := &Pipeline{
		ID:     uuid.NewString(),
		Name:   name,
		logger: NewDefaultLogger(),
		tracer: otel.GetTracerProvider().Tracer(tracerName),
		stages: make(map[string]*stageRecord),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// AddStage registers a live stage instance under a unique name.
// Stages registered before any graph is declared form a linear chain in
// registration order.
func (p *Pipeline) AddStage(name string, stage Stage, opts StageOptions) error {
	if stage == nil {
		return fmt.Errorf("stage %q: nil stage", name)
	}
	if err := p.register(name, &stageRecord{name: name, opts: opts, live: stage}); err != nil {
		return err
	}
	if err := validateOptions(stage, opts); err != nil {
		delete(p.stages, name)
		p.order = p.order[:len(p.order)-1]
		return fmt.Errorf("stage %q: %w", name, err)
	}
	return nil
}

// AddStageFactory registers a stage blueprint under a unique name. The
// factory is invoked lazily, when the cursor first reaches the stage, so
// expensive setup is deferred until the stage is actually visited.
// Option references (ready/next parameters) are validated at that point.
func (p *Pipeline) AddStageFactory(name string, factory Factory, opts StageOptions) error {
	if factory == nil {
		return fmt.Errorf("stage %q: nil factory", name)
	}
	return p.register(name, &stageRecord{name: name, opts: opts, factory: factory})
}

func (p *Pipeline) register(name string, rec *stageRecord) error {
	if name == "" {
		return fmt.Errorf("stage name cannot be empty")
	}
	if p.started {
		return fmt.Errorf("cannot add stage %q: %w", name, ErrAlreadyStarted)
	}
	if _, exists := p.stages[name]; exists {
		return fmt.Errorf("stage %q is already registered", name)
	}
	p.stages[name] = rec
	p.order = append(p.order, name)
	return nil
}

// validateOptions checks that the parameters named by the stage's options are
// declared on the stage with the expected types.
func validateOptions(stage Stage, opts StageOptions) error {
	set := stage.Params()
	if opts.ReadyParameter != "" {
		spec, ok := set.SpecOf(opts.ReadyParameter)
		if !ok {
			return fmt.Errorf("ready parameter %q is not declared", opts.ReadyParameter)
		}
		if kindOf(spec.Type, spec.Default) != reflect.Bool {
			return fmt.Errorf("ready parameter %q is not a bool", opts.ReadyParameter)
		}
	}
	if opts.NextParameter != "" {
		spec, ok := set.SpecOf(opts.NextParameter)
		if !ok {
			return fmt.Errorf("next parameter %q is not declared", opts.NextParameter)
		}
		if kindOf(spec.Type, spec.Default) != reflect.String {
			return fmt.Errorf("next parameter %q is not a string", opts.NextParameter)
		}
	}
	return nil
}

func kindOf(typ reflect.Type, fallback any) reflect.Kind {
	if typ != nil {
		return typ.Kind()
	}
	if fallback != nil {
		return reflect.TypeOf(fallback).Kind()
	}
	return reflect.Invalid
}

// DefineGraph declares the allowed transitions between registered stages as
// a mapping from stage name to its ordered successors. The graph must be a
// DAG with a single entry stage from which every stage is reachable; an
// invalid graph is rejected wholesale and the previous graph, if any, stays
// in effect.
//
// Calling DefineGraph is optional: a pipeline without a declared graph runs
// as a strict linear chain in stage registration order.
func (p *Pipeline) DefineGraph(adjacency map[string][]string) error {
	entry, err := ValidateAdjacency(p.order, adjacency)
	if err != nil {
		return err
	}
	p.adjacency = copyAdjacency(adjacency)
	p.entry = entry
	p.graphDefined = true
	p.logger.Debug("graph defined: %d stage(s), entry %q", len(p.order), entry)
	return nil
}

// Entry returns the entry stage name, resolving the default linear chain if
// no graph was declared. It returns an empty string for an empty pipeline.
func (p *Pipeline) Entry() string {
	if p.graphDefined {
		return p.entry
	}
	if len(p.order) == 0 {
		return ""
	}
	return p.order[0]
}

// StageNames returns all registered stage names in registration order.
func (p *Pipeline) StageNames() []string {
	return append([]string(nil), p.order...)
}

// Options returns the registered transition options for a stage.
func (p *Pipeline) Options(name string) (StageOptions, bool) {
	rec, ok := p.stages[name]
	if !ok {
		return StageOptions{}, false
	}
	return rec.opts, true
}

// Graph returns a copy of the effective adjacency mapping.
func (p *Pipeline) Graph() map[string][]string {
	return copyAdjacency(p.effectiveAdjacency())
}

// Successors returns the declared successors of a stage in the effective
// graph, in declared order.
func (p *Pipeline) Successors(name string) []string {
	return append([]string(nil), p.effectiveAdjacency()[name]...)
}

// History returns the path taken so far, oldest first, excluding the current
// stage.
func (p *Pipeline) History() []string {
	return append([]string(nil), p.history...)
}

// OnReadyChange registers fn to be notified when the current stage's ready
// parameter changes value. Hosts drive auto-advance from this event; the
// engine never advances on its own.
func (p *Pipeline) OnReadyChange(fn ReadyFunc) {
	p.readyFns = append(p.readyFns, fn)
}

// effectiveAdjacency resolves the graph in effect. Before Start, a pipeline
// without a declared graph recomputes the linear chain so that stages added
// later are included; Start freezes the chain.
func (p *Pipeline) effectiveAdjacency() map[string][]string {
	if p.graphDefined || p.started {
		return p.adjacency
	}
	return linearAdjacency(p.order)
}
