// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package config

import (
	"math"

	"go.uber.org/multierr"

	"github.com/curioloop/rotfit/logging"
	"github.com/curioloop/rotfit/report"
)

// Validate checks every setting and reports all problems at once.
// Missing references are not checked here; the objective rejects them.
func (c *Config) Validate() error {
	var err error

	add := func(e error) {
		err = multierr.Append(err, e)
	}
	positive := func(key string, v float64) {
		if !(v > 0) || math.IsInf(v, 0) {
			add(invalid(key, "must be positive and finite, got %v", v))
		}
	}

	if !(c.Tolerance >= 0) {
		add(invalid("tolerance", "must not be negative, got %v", c.Tolerance))
	}
	if !(c.Target >= 0) {
		add(invalid("target", "must not be negative, got %v", c.Target))
	}
	if c.Window <= 0 {
		add(invalid("window", "must be positive, got %d", c.Window))
	}
	if c.MaxIterations <= 0 {
		add(invalid("max_iterations", "must be positive, got %d", c.MaxIterations))
	}
	if c.MaxRetries < 0 {
		add(invalid("max_retries", "must not be negative, got %d", c.MaxRetries))
	}
	if !(c.FDEpsilon > 0 && c.FDEpsilon < 1) {
		add(invalid("fd_epsilon", "must be in (0, 1), got %v", c.FDEpsilon))
	}
	positive("step_size", c.StepSize)
	positive("max_step", c.MaxStep)
	if c.MaxStep < c.StepSize {
		add(invalid("max_step", "must not be below step_size %v", c.StepSize))
	}

	_, perr := c.Params()
	add(perr)
	for name, v := range c.InitialParams {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			add(invalid("initial_params."+name, "must be finite, got %v", v))
		}
	}

	free, ferr := c.FreeParams()
	add(ferr)
	if ferr == nil && len(free) == 0 {
		add(invalid("free", "at least one parameter must be free"))
	}

	_, berr := c.ParamBounds()
	add(berr)
	_, rerr := c.ReferenceSet()
	add(rerr)
	_, merr := c.Mode()
	add(merr)
	_, terr := c.TargetNames()
	add(terr)

	if _, e := report.ParseFormat(c.Output.Format); e != nil {
		add(invalid("output.format", "%v", e))
	}
	if _, e := logging.ParseLevel(c.Log.Level); e != nil {
		add(invalid("log.level", "%v", e))
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		add(invalid("log.format", "want console or json, got %q", c.Log.Format))
	}
	return err
}
