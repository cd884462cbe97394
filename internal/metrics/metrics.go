// Package metrics records harvest and transform counts in a Prometheus
// registry and writes them in the node_exporter textfile format.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rotisserie/eris"
)

// Stage labels.
const (
	StageHarvest   = "harvest"
	StageTransform = "transform"
)

// Recorder holds the gauges for one process run.
type Recorder struct {
	reg      *prometheus.Registry
	counts   *prometheus.GaugeVec
	duration *prometheus.GaugeVec
	finished *prometheus.GaugeVec
	build    *prometheus.GaugeVec
}

// New creates a Recorder on a private registry.
func New(version string) *Recorder {
	r := &Recorder{
		reg: prometheus.NewRegistry(),
		counts: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "mapwarper_records",
				Help: "Records handled by the last run, by stage and outcome.",
			},
			[]string{"stage", "outcome"},
		),
		duration: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "mapwarper_stage_duration_seconds",
				Help: "Wall time of the last run of each stage.",
			},
			[]string{"stage"},
		),
		finished: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "mapwarper_stage_last_success_timestamp_seconds",
				Help: "Unix time the stage last finished without error.",
			},
			[]string{"stage"},
		),
		build: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "mapwarper_build_info",
				Help: "Build info for this binary (value is always 1).",
			},
			[]string{"version"},
		),
	}
	r.reg.MustRegister(r.counts, r.duration, r.finished, r.build)

	if version == "" {
		version = "dev"
	}
	r.build.WithLabelValues(version).Set(1)
	return r
}

// Observe records the counts of a finished stage.
func (r *Recorder) Observe(stage string, counts map[string]int, elapsed time.Duration, at time.Time) {
	for outcome, n := range counts {
		r.counts.WithLabelValues(stage, outcome).Set(float64(n))
	}
	r.duration.WithLabelValues(stage).Set(elapsed.Seconds())
	r.finished.WithLabelValues(stage).Set(float64(at.Unix()))
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry { return r.reg }

// WriteTextfile writes the registry to path. The file is replaced atomically.
func (r *Recorder) WriteTextfile(path string) error {
	return eris.Wrapf(prometheus.WriteToTextfile(path, r.reg), "metrics: write %s", path)
}
