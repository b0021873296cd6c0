// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package engine runs one fit from a resolved configuration:
//
//	config → objective → optimizer → error report → summary → metrics
//
// Reference validation happens before the optimizer is built, so a missing
// reference aborts the run without any iteration.
package engine

import (
	"fmt"

	"github.com/go-logr/logr"
	"github.com/google/uuid"

	"github.com/curioloop/rotfit/config"
	"github.com/curioloop/rotfit/fit"
	"github.com/curioloop/rotfit/logging"
	"github.com/curioloop/rotfit/metrics"
	"github.com/curioloop/rotfit/model"
	"github.com/curioloop/rotfit/objective"
	"github.com/curioloop/rotfit/report"
)

// Exit status of the command line for each outcome.
const (
	ExitConverged    = 0
	ExitError        = 1
	ExitNotConverged = 2
)

// Outcome bundles everything a finished run produced.
type Outcome struct {
	Result  *fit.Result
	Report  objective.ErrorReport
	Summary *report.Summary
}

// ExitCode classifies a terminal state for the command line.
func ExitCode(s fit.State) int {
	if s == fit.Converged {
		return ExitConverged
	}
	return ExitNotConverged
}

// setup is the part of a run shared by Run and Derive.
type setup struct {
	seed   model.Params
	free   []model.Param
	bounds map[model.Param]fit.Bound
	obj    *objective.Objective
}

func prepare(cfg *config.Config) (*setup, error) {
	var (
		s   setup
		err error
	)
	if s.seed, err = cfg.Params(); err != nil {
		return nil, err
	}
	if s.free, err = cfg.FreeParams(); err != nil {
		return nil, err
	}
	bounds, err := cfg.ParamBounds()
	if err != nil {
		return nil, err
	}
	s.bounds = make(map[model.Param]fit.Bound, len(bounds))
	for q, b := range bounds {
		s.bounds[q] = fit.Bound{Lower: b[0], Upper: b[1]}
	}
	refs, err := cfg.ReferenceSet()
	if err != nil {
		return nil, err
	}
	mode, err := cfg.Mode()
	if err != nil {
		return nil, err
	}
	targets, err := cfg.TargetNames()
	if err != nil {
		return nil, err
	}
	if s.obj, err = objective.New(refs, mode, targets); err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}
	return &s, nil
}

// Run fits the configured parameters and summarizes the outcome.
// A non-nil error means no run took place, or the metrics file could not be written.
func Run(cfg *config.Config, logger logr.Logger) (*Outcome, error) {

	s, err := prepare(cfg)
	if err != nil {
		return nil, err
	}

	problem := fit.Problem{
		Objective: s.obj,
		Free:      s.free,
		Bounds:    s.bounds,
		Stop: fit.Termination{
			MaxIterations: cfg.MaxIterations,
			Tolerance:     cfg.Tolerance,
			Target:        cfg.Target,
			Window:        cfg.Window,
			MaxRetries:    cfg.MaxRetries,
		},
		Step:      fit.Step{Initial: cfg.StepSize, Max: cfg.MaxStep},
		FDEpsilon: cfg.FDEpsilon,
	}
	opt, err := problem.New()
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}

	id := uuid.New()
	logger = logger.WithValues("run", id.String())
	logger.Info("Starting fit",
		"free", names(s.free),
		"targets", names(s.obj.Targets()),
		"mode", s.obj.Mode().String())
	logger.V(logging.DEBUG).Info("Termination",
		"maxIterations", cfg.MaxIterations,
		"tolerance", cfg.Tolerance,
		"target", cfg.Target,
		"window", cfg.Window,
		"maxRetries", cfg.MaxRetries,
		"fdEpsilon", cfg.FDEpsilon)

	res := opt.Fit(s.seed, opt.Init())

	if trace := logger.V(logging.TRACE); trace.Enabled() {
		for k, f := range res.History {
			trace.Info("Iteration", "iter", k, "objective", f)
		}
	}

	out := &Outcome{Result: res, Report: s.obj.Report(res.Params)}
	out.Summary = report.New(id, res, &out.Report, s.free)

	logger.Info("Fit finished",
		"state", out.Summary.State,
		"reason", res.Reason,
		"objective", res.F,
		"iterations", res.NumIter,
		"evaluations", res.NumEval)
	if res.NumInfeasible > 0 {
		logger.V(logging.DEBUG).Info("Infeasible evaluations", "count", res.NumInfeasible)
	}

	if path := cfg.Output.MetricsFile; path != "" {
		rec := metrics.NewRecorder()
		rec.Observe(out.Summary)
		if err := rec.WriteTextfile(path); err != nil {
			return out, fmt.Errorf("engine: write metrics: %w", err)
		}
		logger.V(logging.DEBUG).Info("Metrics written", "path", path)
	}
	return out, nil
}

// Derive evaluates the constants at the configured parameters without fitting.
func Derive(cfg *config.Config, logger logr.Logger) (*report.Summary, error) {
	s, err := prepare(cfg)
	if err != nil {
		return nil, err
	}
	rep := s.obj.Report(s.seed)
	if !rep.Feasible {
		logger.Info("Parameters are infeasible", "cause", rep.Cause)
	}
	return report.Derivation(s.seed, &rep, s.free), nil
}

func names[T fmt.Stringer](xs []T) []string {
	out := make([]string, len(xs))
	for i, x := range xs {
		out[i] = x.String()
	}
	return out
}
