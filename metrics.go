package pipeline

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the prometheus instrumentation for pipeline navigation.
// One Metrics value may be shared across pipelines registered on the same
// registry.
type Metrics struct {
	// Advances counts successful forward transitions.
	Advances prometheus.Counter
	// Retreats counts successful backward transitions.
	Retreats prometheus.Counter
	// TransitionErrors counts rejected navigation operations by operation
	// and error kind.
	TransitionErrors *prometheus.CounterVec
	// HistoryDepth tracks the length of the path stack.
	HistoryDepth prometheus.Gauge
}

// NewMetrics creates the pipeline collectors and registers them on reg.
// Pass nil to use the default registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		Advances: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pipeline",
			Name:      "advances_total",
			Help:      "Successful forward stage transitions.",
		}),
		Retreats: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pipeline",
			Name:      "retreats_total",
			Help:      "Successful backward stage transitions.",
		}),
		TransitionErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pipeline",
			Name:      "transition_errors_total",
			Help:      "Rejected navigation operations by operation and error kind.",
		}, []string{"op", "kind"}),
		HistoryDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "pipeline",
			Name:      "history_depth",
			Help:      "Current length of the navigation path stack.",
		}),
	}

	reg.MustRegister(m.Advances, m.Retreats, m.TransitionErrors, m.HistoryDepth)
	return m
}

// errorKind maps a navigation error to a stable metric label.
func errorKind(err error) string {
	var outErr *OutputError
	switch {
	case errors.Is(err, ErrNotReady):
		return "not_ready"
	case errors.Is(err, ErrAmbiguousTransition):
		return "ambiguous_transition"
	case errors.Is(err, ErrNoFurtherStages):
		return "no_further_stages"
	case errors.Is(err, ErrHistoryUnderflow):
		return "history_underflow"
	case errors.Is(err, ErrStaleHistory):
		return "stale_history"
	case errors.Is(err, ErrInvalidGraph):
		return "invalid_graph"
	case errors.As(err, &outErr):
		return "output_failed"
	default:
		return "other"
	}
}
