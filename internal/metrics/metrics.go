// Package metrics exposes Prometheus collectors for consolidation runs.
package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/eugenenazirov/drive-consolidator/internal/consolidator"
)

const namespace = "drive_consolidator"

// Outcome labels for the runs counter.
const (
	OutcomeSuccess         = "success"
	OutcomeMissingInput    = "missing_input"
	OutcomeLengthMismatch  = "length_mismatch"
	OutcomeCapacityExceeds = "capacity_exceeded"
	OutcomeError           = "error"
)

// Recorder records consolidation runs. A nil *Recorder discards everything.
type Recorder struct {
	runs        *prometheus.CounterVec
	moves       prometheus.Histogram
	drivesFreed prometheus.Counter
	dataMoved   prometheus.Counter
	minimum     prometheus.Histogram
	duration    prometheus.Histogram
	gatherer    prometheus.Gatherer
}

// NewRecorder creates the collectors and registers them, together with the
// Go runtime and process collectors, on a fresh registry.
func NewRecorder() (*Recorder, error) {
	reg := prometheus.NewRegistry()
	r := &Recorder{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Consolidation runs by outcome.",
		}, []string{"outcome"}),
		moves: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "moves_per_run",
			Help:      "Number of moves recorded per successful run.",
			Buckets:   []float64{0, 1, 2, 5, 10, 20, 50, 100},
		}),
		drivesFreed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "drives_freed_total",
			Help:      "Drives that held data before a run and are empty after it.",
		}),
		dataMoved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "data_moved_units_total",
			Help:      "Units of data relocated across all runs.",
		}),
		minimum: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "minimum_drives",
			Help:      "Drives still holding data after a run.",
			Buckets:   []float64{0, 1, 2, 3, 5, 10, 20, 50},
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Time spent consolidating.",
			Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 8),
		}),
		gatherer: reg,
	}

	for _, c := range []prometheus.Collector{
		r.runs, r.moves, r.drivesFreed, r.dataMoved, r.minimum, r.duration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// ObserveRun records a successful run over the given input.
func (r *Recorder) ObserveRun(used []int, result consolidator.Result, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.runs.WithLabelValues(OutcomeSuccess).Inc()
	r.moves.Observe(float64(result.Moves.Size()))
	r.minimum.Observe(float64(result.MinimumDrives))
	r.duration.Observe(elapsed.Seconds())

	moved := 0
	for _, m := range result.Moves.Entries() {
		moved += m.Amount
	}
	r.dataMoved.Add(float64(moved))

	before, _ := consolidator.CountNonEmpty(used)
	if freed := before - result.MinimumDrives; freed > 0 {
		r.drivesFreed.Add(float64(freed))
	}
}

// ObserveFailure records a run rejected with err.
func (r *Recorder) ObserveFailure(err error) {
	if r == nil {
		return
	}
	r.runs.WithLabelValues(Outcome(err)).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.gatherer, promhttp.HandlerOpts{})
}

// Outcome maps a consolidation error to its runs_total label.
func Outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeSuccess
	case errors.Is(err, consolidator.ErrMissingInput):
		return OutcomeMissingInput
	case errors.Is(err, consolidator.ErrLengthMismatch):
		return OutcomeLengthMismatch
	case errors.Is(err, consolidator.ErrCapacityExceeded):
		return OutcomeCapacityExceeds
	default:
		return OutcomeError
	}
}
