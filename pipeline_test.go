package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calder-labs/pipeline/params"
)

// TestLogger is a simple logger implementation for testing
type TestLogger struct {
	t *testing.T
}

func (l *TestLogger) Debug(format string, args ...interface{}) {
	l.t.Logf("[DEBUG] "+format, args...)
}

func (l *TestLogger) Info(format string, args ...interface{}) {
	l.t.Logf("[INFO] "+format, args...)
}

func (l *TestLogger) Warn(format string, args ...interface{}) {
	l.t.Logf("[WARN] "+format, args...)
}

func (l *TestLogger) Error(format string, args ...interface{}) {
	l.t.Logf("[ERROR] "+format, args...)
}

// testStage is a minimal stage for tests: its outputs are configurable and
// invocations are counted.
type testStage struct {
	set         *params.Set
	outputs     map[string]any
	outputsErr  error
	outputCalls int
}

func newTestStage(specs ...params.Spec) *testStage {
	return &testStage{set: params.NewSetOf(specs...)}
}

func (s *testStage) Params() *params.Set { return s.set }

func (s *testStage) Outputs(ctx context.Context) (map[string]any, error) {
	s.outputCalls++
	if s.outputsErr != nil {
		return nil, s.outputsErr
	}
	return s.outputs, nil
}

func newTestPipeline(t *testing.T) *Pipeline {
	return New("test-pipeline", WithLogger(&TestLogger{t: t}))
}

func TestLinearAdvanceAndRetreat(t *testing.T) {
	p := newTestPipeline(t)

	a := newTestStage()
	b := newTestStage()
	c := newTestStage()
	require.NoError(t, p.AddStage("a", a, StageOptions{}))
	require.NoError(t, p.AddStage("b", b, StageOptions{}))
	require.NoError(t, p.AddStage("c", c, StageOptions{}))

	ctx := context.Background()
	require.NoError(t, p.Start(ctx))

	name, stage, err := p.Current()
	require.NoError(t, err)
	assert.Equal(t, "a", name)
	assert.Same(t, a, stage)

	require.NoError(t, p.Advance(ctx))
	require.NoError(t, p.Advance(ctx))

	name, stage, err = p.Current()
	require.NoError(t, err)
	assert.Equal(t, "c", name)
	assert.Same(t, c, stage)
	assert.Equal(t, []string{"a", "b"}, p.History())

	require.NoError(t, p.Retreat(ctx))
	require.NoError(t, p.Retreat(ctx))

	name, stage, err = p.Current()
	require.NoError(t, err)
	assert.Equal(t, "a", name)
	// The previously entered instance is restored, not a fresh one.
	assert.Same(t, a, stage)
	assert.Empty(t, p.History())
}

func TestOutputInheritance(t *testing.T) {
	p := newTestPipeline(t)

	a := newTestStage()
	a.outputs = map[string]any{"c": 6}
	b := newTestStage(params.Spec{Name: "c", Default: 0})
	require.NoError(t, p.AddStage("a", a, StageOptions{}))
	require.NoError(t, p.AddStage("b", b, StageOptions{}))

	ctx := context.Background()
	require.NoError(t, p.Start(ctx))
	require.NoError(t, p.Advance(ctx))

	got, err := params.Get[int](b.Params(), "c")
	require.NoError(t, err)
	assert.Equal(t, 6, got)
	assert.Equal(t, 1, a.outputCalls)
}

func TestParameterValueInheritance(t *testing.T) {
	p := newTestPipeline(t)

	a := newTestStage(params.Spec{Name: "city", Default: ""})
	b := newTestStage(params.Spec{Name: "city", Default: ""}, params.Spec{Name: "other", Default: 0})
	require.NoError(t, p.AddStage("a", a, StageOptions{}))
	require.NoError(t, p.AddStage("b", b, StageOptions{}))

	ctx := context.Background()
	require.NoError(t, p.Start(ctx))
	require.NoError(t, a.Params().Set("city", "Lisbon"))
	require.NoError(t, p.Advance(ctx))

	got, err := params.Get[string](b.Params(), "city")
	require.NoError(t, err)
	assert.Equal(t, "Lisbon", got)
}

func TestInheritanceDisabled(t *testing.T) {
	p := newTestPipeline(t)

	a := newTestStage()
	a.outputs = map[string]any{"c": 6}
	b := newTestStage(params.Spec{Name: "c", Default: 1})
	require.NoError(t, p.AddStage("a", a, StageOptions{}))
	require.NoError(t, p.AddStage("b", b, StageOptions{NoInherit: true}))

	ctx := context.Background()
	require.NoError(t, p.Start(ctx))
	require.NoError(t, p.Advance(ctx))

	got, err := params.Get[int](b.Params(), "c")
	require.NoError(t, err)
	assert.Equal(t, 1, got, "opted-out stage keeps its default")
}

func TestBranchSelection(t *testing.T) {
	graph := map[string][]string{"a": {"m", "n"}}

	t.Run("no next parameter and no selection is ambiguous", func(t *testing.T) {
		p := newTestPipeline(t)
		require.NoError(t, p.AddStage("a", newTestStage(), StageOptions{}))
		require.NoError(t, p.AddStage("m", newTestStage(), StageOptions{}))
		require.NoError(t, p.AddStage("n", newTestStage(), StageOptions{}))
		require.NoError(t, p.DefineGraph(graph))

		ctx := context.Background()
		require.NoError(t, p.Start(ctx))
		err := p.Advance(ctx)
		assert.ErrorIs(t, err, ErrAmbiguousTransition)

		name, _, _ := p.Current()
		assert.Equal(t, "a", name, "cursor unchanged after failed advance")
	})

	t.Run("next parameter selects the branch", func(t *testing.T) {
		p := newTestPipeline(t)
		a := newTestStage(params.Spec{Name: "route", Default: ""})
		require.NoError(t, p.AddStage("a", a, StageOptions{NextParameter: "route"}))
		require.NoError(t, p.AddStage("m", newTestStage(), StageOptions{}))
		require.NoError(t, p.AddStage("n", newTestStage(), StageOptions{}))
		require.NoError(t, p.DefineGraph(graph))

		ctx := context.Background()
		require.NoError(t, p.Start(ctx))
		require.NoError(t, a.Params().Set("route", "m"))
		require.NoError(t, p.Advance(ctx))

		name, _, _ := p.Current()
		assert.Equal(t, "m", name)
	})

	t.Run("next parameter naming a non-successor fails", func(t *testing.T) {
		p := newTestPipeline(t)
		a := newTestStage(params.Spec{Name: "route", Default: ""})
		require.NoError(t, p.AddStage("a", a, StageOptions{NextParameter: "route"}))
		require.NoError(t, p.AddStage("m", newTestStage(), StageOptions{}))
		require.NoError(t, p.AddStage("n", newTestStage(), StageOptions{}))
		require.NoError(t, p.DefineGraph(graph))

		ctx := context.Background()
		require.NoError(t, p.Start(ctx))
		require.NoError(t, a.Params().Set("route", "a"))
		assert.ErrorIs(t, p.Advance(ctx), ErrAmbiguousTransition)
	})

	t.Run("explicit selection resolves the branch", func(t *testing.T) {
		p := newTestPipeline(t)
		require.NoError(t, p.AddStage("a", newTestStage(), StageOptions{}))
		require.NoError(t, p.AddStage("m", newTestStage(), StageOptions{}))
		require.NoError(t, p.AddStage("n", newTestStage(), StageOptions{}))
		require.NoError(t, p.DefineGraph(graph))

		ctx := context.Background()
		require.NoError(t, p.Start(ctx))
		require.NoError(t, p.AdvanceTo(ctx, "n"))

		name, _, _ := p.Current()
		assert.Equal(t, "n", name)
	})

	t.Run("explicit selection must be a declared successor", func(t *testing.T) {
		p := newTestPipeline(t)
		require.NoError(t, p.AddStage("a", newTestStage(), StageOptions{}))
		require.NoError(t, p.AddStage("m", newTestStage(), StageOptions{}))
		require.NoError(t, p.AddStage("n", newTestStage(), StageOptions{}))
		require.NoError(t, p.DefineGraph(graph))

		ctx := context.Background()
		require.NoError(t, p.Start(ctx))
		assert.ErrorIs(t, p.AdvanceTo(ctx, "a"), ErrAmbiguousTransition)
	})
}

func TestReadinessGate(t *testing.T) {
	p := newTestPipeline(t)

	a := newTestStage(params.Spec{Name: "done", Default: false})
	require.NoError(t, p.AddStage("a", a, StageOptions{ReadyParameter: "done"}))
	require.NoError(t, p.AddStage("b", newTestStage(), StageOptions{}))

	ctx := context.Background()
	require.NoError(t, p.Start(ctx))

	assert.False(t, p.CanAdvance())
	assert.ErrorIs(t, p.Advance(ctx), ErrNotReady)

	require.NoError(t, a.Params().Set("done", true))
	assert.True(t, p.CanAdvance())
	require.NoError(t, p.Advance(ctx))

	name, _, _ := p.Current()
	assert.Equal(t, "b", name)
}

func TestHistoryUnderflow(t *testing.T) {
	p := newTestPipeline(t)
	require.NoError(t, p.AddStage("a", newTestStage(), StageOptions{}))
	require.NoError(t, p.AddStage("b", newTestStage(), StageOptions{}))

	ctx := context.Background()
	require.NoError(t, p.Start(ctx))

	assert.False(t, p.CanRetreat())
	assert.ErrorIs(t, p.Retreat(ctx), ErrHistoryUnderflow)

	name, _, _ := p.Current()
	assert.Equal(t, "a", name, "cursor unchanged after rejected retreat")
}

func TestTerminalStage(t *testing.T) {
	p := newTestPipeline(t)
	require.NoError(t, p.AddStage("only", newTestStage(), StageOptions{}))

	ctx := context.Background()
	require.NoError(t, p.Start(ctx))

	assert.False(t, p.CanAdvance())
	assert.ErrorIs(t, p.Advance(ctx), ErrNoFurtherStages)
}

func TestOutputFailureLeavesStateUnchanged(t *testing.T) {
	p := newTestPipeline(t)

	a := newTestStage()
	a.outputsErr = errors.New("flaky resource")
	require.NoError(t, p.AddStage("a", a, StageOptions{}))
	require.NoError(t, p.AddStage("b", newTestStage(), StageOptions{}))

	ctx := context.Background()
	require.NoError(t, p.Start(ctx))

	err := p.Advance(ctx)
	var outErr *OutputError
	require.ErrorAs(t, err, &outErr)
	assert.Equal(t, "a", outErr.Stage)

	name, _, _ := p.Current()
	assert.Equal(t, "a", name)
	assert.Empty(t, p.History())

	// The caller may fix the stage and retry the same transition.
	a.outputsErr = nil
	require.NoError(t, p.Advance(ctx))
	name, _, _ = p.Current()
	assert.Equal(t, "b", name)
}

func TestCurrentIsIdempotent(t *testing.T) {
	p := newTestPipeline(t)
	a := newTestStage(params.Spec{Name: "x", Default: 41})
	require.NoError(t, p.AddStage("a", a, StageOptions{}))

	ctx := context.Background()
	require.NoError(t, p.Start(ctx))
	require.NoError(t, a.Params().Set("x", 42))

	for i := 0; i < 3; i++ {
		name, stage, err := p.Current()
		require.NoError(t, err)
		assert.Equal(t, "a", name)
		assert.Same(t, a, stage)
		v, err := params.Get[int](stage.Params(), "x")
		require.NoError(t, err)
		assert.Equal(t, 42, v)
	}
}

func TestLazyFactoryInstantiation(t *testing.T) {
	p := newTestPipeline(t)

	built := 0
	require.NoError(t, p.AddStage("a", newTestStage(), StageOptions{}))
	require.NoError(t, p.AddStageFactory("b", func() (Stage, error) {
		built++
		return newTestStage(), nil
	}, StageOptions{}))

	ctx := context.Background()
	require.NoError(t, p.Start(ctx))
	assert.Equal(t, 0, built, "factory not invoked until the cursor arrives")

	require.NoError(t, p.Advance(ctx))
	assert.Equal(t, 1, built)

	require.NoError(t, p.Retreat(ctx))
	require.NoError(t, p.Advance(ctx))
	assert.Equal(t, 1, built, "held instance is reused on revisit")
}

func TestReadyChangeEventAndAutoAdvance(t *testing.T) {
	p := newTestPipeline(t)

	a := newTestStage(params.Spec{Name: "done", Default: false})
	b := newTestStage(params.Spec{Name: "done", Default: false})
	require.NoError(t, p.AddStage("a", a, StageOptions{ReadyParameter: "done", AutoAdvance: true}))
	require.NoError(t, p.AddStage("b", b, StageOptions{ReadyParameter: "done"}))

	ctx := context.Background()

	var events []string
	p.OnReadyChange(func(stage string, ready bool) {
		events = append(events, stage)
		opts, _ := p.Options(stage)
		if ready && opts.AutoAdvance {
			require.NoError(t, p.Advance(ctx))
		}
	})

	require.NoError(t, p.Start(ctx))

	// Readiness of a non-current stage has no effect.
	require.NoError(t, b.Params().Set("done", true))
	assert.Empty(t, events)

	require.NoError(t, b.Params().Set("done", false))
	require.NoError(t, a.Params().Set("done", true))
	assert.Equal(t, []string{"a"}, events)

	name, _, _ := p.Current()
	assert.Equal(t, "b", name, "host-driven auto-advance moved the cursor")
}

func TestRetreatAtMergePointFollowsPathTaken(t *testing.T) {
	// Diamond: a -> {m, n} -> z. Retreating from z must return along the
	// branch actually taken.
	p := newTestPipeline(t)
	require.NoError(t, p.AddStage("a", newTestStage(), StageOptions{}))
	require.NoError(t, p.AddStage("m", newTestStage(), StageOptions{}))
	require.NoError(t, p.AddStage("n", newTestStage(), StageOptions{}))
	require.NoError(t, p.AddStage("z", newTestStage(), StageOptions{}))
	require.NoError(t, p.DefineGraph(map[string][]string{
		"a": {"m", "n"},
		"m": {"z"},
		"n": {"z"},
	}))

	ctx := context.Background()
	require.NoError(t, p.Start(ctx))
	require.NoError(t, p.AdvanceTo(ctx, "n"))
	require.NoError(t, p.Advance(ctx))

	name, _, _ := p.Current()
	require.Equal(t, "z", name)

	require.NoError(t, p.Retreat(ctx))
	name, _, _ = p.Current()
	assert.Equal(t, "n", name, "retreat follows the path stack, not graph order")
}

func TestRetreatAfterGraphMutation(t *testing.T) {
	p := newTestPipeline(t)
	require.NoError(t, p.AddStage("a", newTestStage(), StageOptions{}))
	require.NoError(t, p.AddStage("b", newTestStage(), StageOptions{}))
	require.NoError(t, p.AddStage("c", newTestStage(), StageOptions{}))
	require.NoError(t, p.DefineGraph(map[string][]string{
		"a": {"b"},
		"b": {"c"},
	}))

	ctx := context.Background()
	require.NoError(t, p.Start(ctx))
	require.NoError(t, p.Advance(ctx))

	// Redefine the graph so the edge we came through no longer exists.
	require.NoError(t, p.DefineGraph(map[string][]string{
		"a": {"c"},
		"c": {"b"},
	}))

	assert.ErrorIs(t, p.Retreat(ctx), ErrStaleHistory)
	name, _, _ := p.Current()
	assert.Equal(t, "b", name, "cursor unchanged after rejected retreat")
}

func TestNavigationBeforeStart(t *testing.T) {
	p := newTestPipeline(t)
	require.NoError(t, p.AddStage("a", newTestStage(), StageOptions{}))

	ctx := context.Background()
	_, _, err := p.Current()
	assert.ErrorIs(t, err, ErrNotStarted)
	assert.ErrorIs(t, p.Advance(ctx), ErrNotStarted)
	assert.ErrorIs(t, p.Retreat(ctx), ErrNotStarted)
	assert.False(t, p.CanAdvance())
	assert.False(t, p.CanRetreat())
}

func TestStartTwice(t *testing.T) {
	p := newTestPipeline(t)
	require.NoError(t, p.AddStage("a", newTestStage(), StageOptions{}))

	ctx := context.Background()
	require.NoError(t, p.Start(ctx))
	assert.ErrorIs(t, p.Start(ctx), ErrAlreadyStarted)
}

func TestRegistrationErrors(t *testing.T) {
	p := newTestPipeline(t)
	require.NoError(t, p.AddStage("a", newTestStage(), StageOptions{}))

	assert.Error(t, p.AddStage("a", newTestStage(), StageOptions{}), "duplicate name")
	assert.Error(t, p.AddStage("", newTestStage(), StageOptions{}), "empty name")
	assert.Error(t, p.AddStage("x", nil, StageOptions{}), "nil stage")
	assert.Error(t, p.AddStageFactory("y", nil, StageOptions{}), "nil factory")

	// Option references are validated eagerly for live stages.
	err := p.AddStage("gated", newTestStage(), StageOptions{ReadyParameter: "missing"})
	assert.Error(t, err)
	assert.NotContains(t, p.StageNames(), "gated")

	err = p.AddStage("typed", newTestStage(params.Spec{Name: "done", Default: "yes"}),
		StageOptions{ReadyParameter: "done"})
	assert.Error(t, err, "ready parameter must be a bool")

	ctx := context.Background()
	require.NoError(t, p.Start(ctx))
	assert.ErrorIs(t, p.AddStage("late", newTestStage(), StageOptions{}), ErrAlreadyStarted)
}

func TestFactoryOptionValidationAtFirstEnter(t *testing.T) {
	p := newTestPipeline(t)
	require.NoError(t, p.AddStage("a", newTestStage(), StageOptions{}))
	require.NoError(t, p.AddStageFactory("b", func() (Stage, error) {
		return newTestStage(), nil
	}, StageOptions{ReadyParameter: "missing"}))

	ctx := context.Background()
	require.NoError(t, p.Start(ctx))

	err := p.Advance(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing")

	name, _, _ := p.Current()
	assert.Equal(t, "a", name, "failed enter leaves the cursor in place")
}
