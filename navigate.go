package pipeline

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/calder-labs/pipeline/params"
)

// Start enters the entry stage and makes it current. It must be called once,
// after all stages are registered, before any other navigation operation.
func (p *Pipeline) Start(ctx context.Context) error {
	if p.started {
		return ErrAlreadyStarted
	}
	if len(p.order) == 0 {
		return fmt.Errorf("pipeline %q has no stages", p.Name)
	}

	ctx, span := p.tracer.Start(ctx, "pipeline.start",
		trace.WithAttributes(attribute.String("pipeline.id", p.ID)))
	defer span.End()

	if !p.graphDefined {
		p.adjacency = linearAdjacency(p.order)
		p.entry = p.order[0]
	}

	if err := p.enter(ctx, p.entry, nil); err != nil {
		return p.fail(span, "start", err)
	}

	p.started = true
	p.current = p.entry
	p.watchCurrentReady()
	p.logger.Info("pipeline %s started at stage %q", p.Name, p.entry)
	span.SetAttributes(attribute.String("stage.entered", p.entry))
	return nil
}

// Current returns the name and live instance of the current stage.
func (p *Pipeline) Current() (string, Stage, error) {
	if !p.started {
		return "", nil, ErrNotStarted
	}
	return p.current, p.stages[p.current].live, nil
}

// CanAdvance reports whether Advance could legally move forward right now:
// the current stage has at least one successor and its readiness gate, if
// any, is satisfied. It does not consider branch ambiguity.
func (p *Pipeline) CanAdvance() bool {
	if !p.started {
		return false
	}
	if len(p.effectiveAdjacency()[p.current]) == 0 {
		return false
	}
	ready, err := p.currentReady()
	return err == nil && ready
}

// CanRetreat reports whether at least one stage has been left.
func (p *Pipeline) CanRetreat() bool {
	return p.started && len(p.history) > 0
}

// Advance moves the cursor to the next stage: the single successor when one
// exists, otherwise the stage named by the current stage's next parameter.
// The completed stage's outputs are computed first and propagated, together
// with its parameter values, into matching-named parameters of the target.
//
// Advance fails with ErrNotReady while the readiness gate is unset, with
// ErrNoFurtherStages on a terminal stage, and with ErrAmbiguousTransition
// at a branch point lacking a next parameter. On any failure the cursor and
// history are unchanged.
func (p *Pipeline) Advance(ctx context.Context) error {
	return p.advance(ctx, "")
}

// AdvanceTo is Advance with an explicit successor selection, for hosts that
// resolve branch points with their own UI control. The selection must be a
// declared successor of the current stage.
func (p *Pipeline) AdvanceTo(ctx context.Context, next string) error {
	if next == "" {
		return fmt.Errorf("%w: empty selection", ErrAmbiguousTransition)
	}
	return p.advance(ctx, next)
}

func (p *Pipeline) advance(ctx context.Context, selected string) error {
	if !p.started {
		return ErrNotStarted
	}

	ctx, span := p.tracer.Start(ctx, "pipeline.advance",
		trace.WithAttributes(
			attribute.String("pipeline.id", p.ID),
			attribute.String("stage.from", p.current)))
	defer span.End()

	cur := p.stages[p.current]
	successors := p.effectiveAdjacency()[p.current]

	if len(successors) == 0 {
		return p.fail(span, "advance", fmt.Errorf("%w: stage %q is terminal", ErrNoFurtherStages, p.current))
	}

	ready, err := p.currentReady()
	if err != nil {
		return p.fail(span, "advance", fmt.Errorf("%w: reading %q: %v", ErrNotReady, cur.opts.ReadyParameter, err))
	}
	if !ready {
		return p.fail(span, "advance", fmt.Errorf("%w: stage %q parameter %q is false", ErrNotReady, p.current, cur.opts.ReadyParameter))
	}

	target, err := p.resolveTarget(cur, successors, selected)
	if err != nil {
		return p.fail(span, "advance", err)
	}
	span.SetAttributes(attribute.String("stage.to", target))

	// Leave the current stage: collect declared outputs. Failure aborts the
	// transition with the cursor unchanged so the caller may retry.
	outputs, err := cur.live.Outputs(ctx)
	if err != nil {
		return p.fail(span, "advance", &OutputError{Stage: p.current, Err: err})
	}

	inherited := cur.live.Params().Values()
	for name, value := range outputs {
		inherited[name] = value
	}

	if err := p.enter(ctx, target, inherited); err != nil {
		return p.fail(span, "advance", err)
	}

	p.unwatchCurrentReady()
	p.history = append(p.history, p.current)
	from := p.current
	p.current = target
	p.watchCurrentReady()

	if p.metrics != nil {
		p.metrics.Advances.Inc()
		p.metrics.HistoryDepth.Set(float64(len(p.history)))
	}
	p.logger.Info("advanced: %s -> %s", from, target)
	return nil
}

// resolveTarget picks the next stage name. The next parameter, when used, is
// read exactly once, here, at resolution time.
func (p *Pipeline) resolveTarget(cur *stageRecord, successors []string, selected string) (string, error) {
	if selected != "" {
		if !containsString(successors, selected) {
			return "", fmt.Errorf("%w: %q is not a declared successor of %q", ErrAmbiguousTransition, selected, cur.name)
		}
		return selected, nil
	}
	if len(successors) == 1 {
		return successors[0], nil
	}
	if cur.opts.NextParameter != "" {
		next, err := params.Get[string](cur.live.Params(), cur.opts.NextParameter)
		if err != nil {
			return "", fmt.Errorf("%w: reading next parameter %q: %v", ErrAmbiguousTransition, cur.opts.NextParameter, err)
		}
		if !containsString(successors, next) {
			return "", fmt.Errorf("%w: next parameter %q selects %q, not a declared successor of %q",
				ErrAmbiguousTransition, cur.opts.NextParameter, next, cur.name)
		}
		return next, nil
	}
	return "", fmt.Errorf("%w: stage %q has %d successors and no next parameter",
		ErrAmbiguousTransition, cur.name, len(successors))
}

// Retreat moves the cursor back along the path actually taken. The previous
// stage's held instance is re-entered as-is: no parameters are re-applied and
// no outputs are recomputed.
func (p *Pipeline) Retreat(ctx context.Context) error {
	if !p.started {
		return ErrNotStarted
	}

	_, span := p.tracer.Start(ctx, "pipeline.retreat",
		trace.WithAttributes(
			attribute.String("pipeline.id", p.ID),
			attribute.String("stage.from", p.current)))
	defer span.End()

	if len(p.history) == 0 {
		return p.fail(span, "retreat", fmt.Errorf("%w: stage %q is the entry stage", ErrHistoryUnderflow, p.current))
	}

	prev := p.history[len(p.history)-1]
	rec, ok := p.stages[prev]
	if !ok || rec.live == nil {
		return p.fail(span, "retreat", fmt.Errorf("%w: stage %q is gone", ErrStaleHistory, prev))
	}
	// A redefined graph can remove the edge we came through. Refuse to
	// relocate silently in that case.
	if !containsString(p.effectiveAdjacency()[prev], p.current) {
		return p.fail(span, "retreat", fmt.Errorf("%w: no edge %s->%s", ErrStaleHistory, prev, p.current))
	}

	p.unwatchCurrentReady()
	p.history = p.history[:len(p.history)-1]
	from := p.current
	p.current = prev
	p.watchCurrentReady()

	if p.metrics != nil {
		p.metrics.Retreats.Inc()
		p.metrics.HistoryDepth.Set(float64(len(p.history)))
	}
	p.logger.Info("retreated: %s -> %s", from, prev)
	span.SetAttributes(attribute.String("stage.to", prev))
	return nil
}

// enter instantiates the target stage if needed and applies inherited values
// to matching-named parameters, unless the stage opted out of inheritance.
func (p *Pipeline) enter(ctx context.Context, name string, inherited map[string]any) error {
	rec := p.stages[name]

	firstVisit := rec.live == nil
	stage, err := rec.instance()
	if err != nil {
		return fmt.Errorf("instantiating stage %q: %w", name, err)
	}
	if firstVisit {
		if err := validateOptions(stage, rec.opts); err != nil {
			rec.live = nil
			return fmt.Errorf("stage %q: %w", name, err)
		}
	}

	if len(inherited) > 0 && !rec.opts.NoInherit {
		applied, err := stage.Params().Apply(inherited)
		if err != nil {
			return fmt.Errorf("inheriting parameters into stage %q: %w", name, err)
		}
		p.logger.Debug("stage %q inherited %d parameter(s)", name, len(applied))
	}
	return nil
}

// currentReady evaluates the readiness gate of the current stage. Stages
// without a ready parameter are always ready.
func (p *Pipeline) currentReady() (bool, error) {
	rec := p.stages[p.current]
	if rec.opts.ReadyParameter == "" {
		return true, nil
	}
	return params.Get[bool](rec.live.Params(), rec.opts.ReadyParameter)
}

// watchCurrentReady wires the readiness-changed event to the current stage's
// ready parameter. Readiness of non-current stages is never observed.
func (p *Pipeline) watchCurrentReady() {
	rec := p.stages[p.current]
	if rec.opts.ReadyParameter == "" {
		return
	}
	stageName := rec.name
	cancel, err := rec.live.Params().Watch(rec.opts.ReadyParameter, func(_ string, _, value any) {
		ready, _ := value.(bool)
		for _, fn := range p.readyFns {
			fn(stageName, ready)
		}
	})
	if err != nil {
		// The parameter was validated at registration/instantiation time;
		// a failure here means the stage mutated its own declarations.
		p.logger.Error("watching ready parameter %q on stage %q: %v", rec.opts.ReadyParameter, stageName, err)
		return
	}
	p.unwatchReady = cancel
}

func (p *Pipeline) unwatchCurrentReady() {
	if p.unwatchReady != nil {
		p.unwatchReady()
		p.unwatchReady = nil
	}
}

// fail records a navigation failure on the span and metrics, then returns it.
func (p *Pipeline) fail(span trace.Span, op string, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	if p.metrics != nil {
		p.metrics.TransitionErrors.WithLabelValues(op, errorKind(err)).Inc()
	}
	p.logger.Warn("%s failed: %v", op, err)
	return err
}
