// Package metrics exports optimization progress as prometheus metrics.
package metrics

import (
	"github.com/fumin/mpopt/dmrg"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector is a dmrg.Observer recording sweeps and results.
// It is safe for concurrent runs.
type Collector struct {
	sweeps        prometheus.Counter
	runs          *prometheus.CounterVec
	energy        prometheus.Gauge
	discarded     prometheus.Gauge
	bondDim       prometheus.Gauge
	sweepDuration prometheus.Histogram
}

// New registers the metrics of a Collector with reg.
// It panics if metrics of the same names are already registered.
func New(reg prometheus.Registerer) *Collector {
	f := promauto.With(reg)
	return &Collector{
		sweeps: f.NewCounter(prometheus.CounterOpts{
			Name: "mpopt_sweeps_total",
			Help: "Number of completed DMRG sweeps",
		}),
		runs: f.NewCounterVec(prometheus.CounterOpts{
			Name: "mpopt_runs_total",
			Help: "Number of finished DMRG runs by final state",
		}, []string{"state"}),
		energy: f.NewGauge(prometheus.GaugeOpts{
			Name: "mpopt_energy",
			Help: "Energy after the latest sweep",
		}),
		discarded: f.NewGauge(prometheus.GaugeOpts{
			Name: "mpopt_discarded_weight",
			Help: "Largest discarded weight of the latest sweep",
		}),
		bondDim: f.NewGauge(prometheus.GaugeOpts{
			Name: "mpopt_max_bond_dimension",
			Help: "Largest bond dimension after the latest sweep",
		}),
		sweepDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "mpopt_sweep_duration_seconds",
			Help:    "Duration of DMRG sweeps",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 12), // 0.1ms to ~7min
		}),
	}
}

// ObserveSweep implements dmrg.Observer.
func (c *Collector) ObserveSweep(info dmrg.SweepInfo) {
	c.sweeps.Inc()
	c.energy.Set(info.Energy)
	c.discarded.Set(info.DiscardedWeight)
	c.bondDim.Set(float64(info.MaxBondDim))
	c.sweepDuration.Observe(info.Duration.Seconds())
}

// ObserveResult implements dmrg.Observer.
func (c *Collector) ObserveResult(res dmrg.Result) {
	c.runs.WithLabelValues(res.State.String()).Inc()
}
