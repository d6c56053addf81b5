// Package telemetry exports predictor counters as Prometheus metrics.
//
// The predictor keeps plain uint64 counters. A Recorder turns periodic Stats
// snapshots into Prometheus counters by adding the delta since the previous
// snapshot. Publish runs on the simulation goroutine; /metrics may be scraped
// concurrently.
package telemetry

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tagescl/proto/tagescl"
)

// counterSpec binds one Stats field to one Prometheus counter.
type counterSpec struct {
	name  string
	help  string
	field func(tagescl.Stats) uint64
}

var counterSpecs = []counterSpec{
	{"tagescl_predictions_total", "Conditional branch predictions made", func(s tagescl.Stats) uint64 { return s.Predictions }},
	{"tagescl_conditional_commits_total", "Conditional branches committed", func(s tagescl.Stats) uint64 { return s.ConditionalCommits }},
	{"tagescl_mispredictions_total", "Committed branches whose final prediction was wrong", func(s tagescl.Stats) uint64 { return s.Mispredictions }},
	{"tagescl_loop_overrides_total", "Predictions where the loop predictor replaced TAGE", func(s tagescl.Stats) uint64 { return s.LoopOverrides }},
	{"tagescl_sc_overrides_total", "Predictions reverted by the statistical corrector", func(s tagescl.Stats) uint64 { return s.SCOverrides }},
	{"tagescl_flushes_total", "Flush-and-repair operations", func(s tagescl.Stats) uint64 { return s.Flushes }},
	{"tagescl_flushed_branches_total", "In-flight records discarded by flushes", func(s tagescl.Stats) uint64 { return s.FlushedBranches }},
	{"tagescl_retired_total", "Branches retired", func(s tagescl.Stats) uint64 { return s.Retired }},
	{"tagescl_tage_allocations_total", "TAGE entries claimed on mispredictions", func(s tagescl.Stats) uint64 { return s.TAGEAllocations }},
	{"tagescl_tage_decays_total", "TAGE allocation candidates weakened instead of replaced", func(s tagescl.Stats) uint64 { return s.TAGEDecays }},
	{"tagescl_tage_useful_shifts_total", "Global halvings of TAGE useful counters", func(s tagescl.Stats) uint64 { return s.UsefulShifts }},
	{"tagescl_loop_allocations_total", "Loop predictor entries claimed", func(s tagescl.Stats) uint64 { return s.LoopAllocations }},
	{"tagescl_loop_evictions_total", "Valid loop entries freed after a wrong prediction", func(s tagescl.Stats) uint64 { return s.LoopEvictions }},
	{"tagescl_sc_trainings_total", "Statistical corrector table updates", func(s tagescl.Stats) uint64 { return s.SCTrainings }},
}

// Recorder owns a private registry holding the predictor metrics.
type Recorder struct {
	reg      *prometheus.Registry
	counters []prometheus.Counter

	mispredictRate prometheus.Gauge
	inFlight       prometheus.Gauge

	mu   sync.Mutex
	last tagescl.Stats
}

// NewRecorder registers every predictor metric, plus the Go runtime collectors,
// in a fresh registry. constLabels (e.g. {"preset": "64KB"}) are attached to each
// predictor metric.
func NewRecorder(constLabels prometheus.Labels) *Recorder {
	r := &Recorder{
		reg:      prometheus.NewRegistry(),
		counters: make([]prometheus.Counter, len(counterSpecs)),
		mispredictRate: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "tagescl_mispredict_ratio",
			Help:        "Mispredictions / conditional commits since start",
			ConstLabels: constLabels,
		}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "tagescl_in_flight_branches",
			Help:        "Branches allocated and not yet retired at the last publish",
			ConstLabels: constLabels,
		}),
	}
	for i, spec := range counterSpecs {
		r.counters[i] = prometheus.NewCounter(prometheus.CounterOpts{
			Name:        spec.name,
			Help:        spec.help,
			ConstLabels: constLabels,
		})
		r.reg.MustRegister(r.counters[i])
	}
	r.reg.MustRegister(r.mispredictRate, r.inFlight)
	r.reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return r
}

// Registry exposes the underlying registry for gathering or extra registrations.
func (r *Recorder) Registry() *prometheus.Registry { return r.reg }

// Handler serves the registry in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// Publish adds the growth of every counter since the previous call. Snapshots
// must come from the same predictor; counters never decrease.
func (r *Recorder) Publish(s tagescl.Stats, inFlight int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, spec := range counterSpecs {
		now, before := spec.field(s), spec.field(r.last)
		if now > before {
			r.counters[i].Add(float64(now - before))
		}
	}
	if s.ConditionalCommits > 0 {
		r.mispredictRate.Set(float64(s.Mispredictions) / float64(s.ConditionalCommits))
	}
	r.inFlight.Set(float64(inFlight))
	r.last = s
}
