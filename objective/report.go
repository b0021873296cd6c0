// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package objective

import (
	"math"
	"slices"

	"github.com/curioloop/rotfit/model"
)

// Entry compares one derived constant with its reference.
type Entry struct {
	Name        model.Name
	Computed    float64
	Reference   float64
	Uncertainty float64
	// RelErr is the signed relative error (computed - reference) / reference.
	RelErr float64
	// Target tells whether the constant contributes to the objective.
	Target bool
}

// ErrorReport is the full comparison at one parameter point.
type ErrorReport struct {
	Mode      Mode
	Entries   [model.NumConstants]Entry
	Objective float64
	Feasible  bool
	// Cause describes why the point is infeasible.
	Cause string
}

// Report compares every constant at p, whether or not it is a target.
// Constants that could not be derived carry NaN values.
func (o *Objective) Report(p model.Params) ErrorReport {
	rep := ErrorReport{Mode: o.mode, Feasible: true}

	k, derr := model.Derive(p)
	for _, n := range model.Names() {
		ref := o.refs[n]
		rep.Entries[n] = Entry{
			Name:        n,
			Computed:    k.Get(n),
			Reference:   ref.Value,
			Uncertainty: ref.Uncertainty,
			RelErr:      (k.Get(n) - ref.Value) / ref.Value,
			Target:      slices.Contains(o.targets, n),
		}
	}

	if derr != nil {
		rep.Feasible, rep.Objective = false, math.NaN()
		rep.Cause = infeasible(derr).Error()
		return rep
	}

	r := make([]float64, len(o.targets))
	if err := o.Residuals(p, r); err != nil {
		rep.Feasible, rep.Objective = false, math.NaN()
		rep.Cause = err.Error()
		return rep
	}
	rep.Objective = Aggregate(r)
	return rep
}

// MaxAbsRelErr returns the largest |RelErr| among target constants.
func (r *ErrorReport) MaxAbsRelErr() float64 {
	worst := 0.0
	for _, e := range r.Entries {
		if e.Target {
			worst = math.Max(worst, math.Abs(e.RelErr))
		}
	}
	return worst
}
