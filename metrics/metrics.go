// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package metrics exposes the outcome of a fit as Prometheus gauges.
//
// A run is a batch job, so the registry is written once in the textfile
// exposition format for the node exporter textfile collector:
//
//	rec := metrics.NewRecorder()
//	rec.Observe(summary)
//	err := rec.WriteTextfile("/var/lib/node_exporter/rotfit.prom")
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/curioloop/rotfit/report"
)

const namespace = "rotfit"

// States lists every terminal state label, each exported as a 0/1 series.
var States = []string{"CONVERGED", "MAX_ITERATIONS_REACHED", "DIVERGED"}

// Recorder owns a private registry for one run.
type Recorder struct {
	registry *prometheus.Registry

	objective   prometheus.Gauge
	maxRelErr   prometheus.Gauge
	iterations  prometheus.Gauge
	evaluations prometheus.Gauge
	infeasible  prometheus.Gauge
	relErr      *prometheus.GaugeVec
	sigma       *prometheus.GaugeVec
	param       *prometheus.GaugeVec
	state       *prometheus.GaugeVec
}

func NewRecorder() *Recorder {
	gauge := func(name, help string) prometheus.Gauge {
		return prometheus.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: name, Help: help})
	}
	vec := func(name, help, label string) *prometheus.GaugeVec {
		return prometheus.NewGaugeVec(prometheus.GaugeOpts{Namespace: namespace, Name: name, Help: help}, []string{label})
	}

	r := &Recorder{
		registry:    prometheus.NewRegistry(),
		objective:   gauge("objective", "Final objective value."),
		maxRelErr:   gauge("max_abs_relative_error", "Largest absolute relative error over target constants."),
		iterations:  gauge("iterations", "Iterations performed."),
		evaluations: gauge("evaluations", "Objective evaluations performed."),
		infeasible:  gauge("infeasible_evaluations", "Evaluations that hit an infeasible point."),
		relErr:      vec("relative_error", "Signed relative error of a derived constant.", "constant"),
		sigma:       vec("sigma_distance", "Distance to the reference in units of its uncertainty.", "constant"),
		param:       vec("parameter_value", "Final parameter value.", "parameter"),
		state:       vec("terminal_state", "1 for the state the run ended in.", "state"),
	}
	r.registry.MustRegister(
		r.objective, r.maxRelErr, r.iterations, r.evaluations, r.infeasible,
		r.relErr, r.sigma, r.param, r.state,
	)
	return r
}

// Observe sets every gauge from s. Constants without an uncertainty get no sigma series.
func (r *Recorder) Observe(s *report.Summary) {
	r.objective.Set(float64(s.Objective))
	r.maxRelErr.Set(float64(s.MaxRelErr))
	r.iterations.Set(float64(s.Iterations))
	r.evaluations.Set(float64(s.Evaluations))
	r.infeasible.Set(float64(s.Infeasible))

	for _, c := range s.Constants {
		r.relErr.WithLabelValues(c.Name).Set(float64(c.RelErr))
		if c.Uncertainty > 0 {
			r.sigma.WithLabelValues(c.Name).Set(float64(c.Sigma))
		}
	}
	for _, p := range s.Parameters {
		r.param.WithLabelValues(p.Name).Set(p.Value)
	}
	for _, st := range States {
		v := 0.0
		if st == s.State {
			v = 1
		}
		r.state.WithLabelValues(st).Set(v)
	}
}

// WriteTextfile writes the registry atomically to path.
func (r *Recorder) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, r.registry)
}
