// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package objective

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/curioloop/rotfit/model"
)

// Mode selects how a relative error becomes a residual.
type Mode int

const (
	// LogRelative uses rᵢ = log₁₀(cᵢ/refᵢ), weighting constants that span
	// many orders of magnitude alike. Points with cᵢ/refᵢ ≤ 0 are infeasible.
	LogRelative Mode = iota
	// Relative uses rᵢ = (cᵢ - refᵢ)/refᵢ.
	Relative
)

func (m Mode) String() string {
	switch m {
	case LogRelative:
		return "log-relative"
	case Relative:
		return "relative"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// ParseMode accepts "log-relative" or "relative".
func ParseMode(s string) (Mode, error) {
	switch s {
	case "log-relative", "log_relative", "logrelative":
		return LogRelative, nil
	case "relative":
		return Relative, nil
	default:
		return 0, fmt.Errorf("objective: unknown mode %q", s)
	}
}

var (
	// ErrMissingReference means a derived constant has no observed value to compare with.
	ErrMissingReference = errors.New("objective: missing reference")
	// ErrInfeasiblePoint means the parameters admit no finite objective value.
	ErrInfeasiblePoint = errors.New("objective: infeasible point")
)

// InfeasibleError names the constant that made a point infeasible.
// It matches ErrInfeasiblePoint under errors.Is.
type InfeasibleError struct {
	Constant model.Name
	Reason   string
}

func (e *InfeasibleError) Error() string {
	return fmt.Sprintf("objective: infeasible point at %s: %s", e.Constant, e.Reason)
}

func (e *InfeasibleError) Is(target error) bool {
	return target == ErrInfeasiblePoint
}

// Objective measures how far derived constants are from their references.
//
// The scalar value is 𝒇(p) = Σᵢ rᵢ(p)² over the target constants, summed in Name order.
type Objective struct {
	refs    [model.NumConstants]Reference
	mode    Mode
	targets []model.Name
}

// New validates the reference set and builds an objective over targets (all constants when empty).
// Every constant needs a reference, including non-targets, since reports cover all of them.
func New(refs ReferenceSet, mode Mode, targets []model.Name) (*Objective, error) {

	o := &Objective{mode: mode}
	for _, n := range model.Names() {
		r, ok := refs.Lookup(n)
		switch {
		case !ok:
			return nil, fmt.Errorf("%w for %s", ErrMissingReference, n)
		case r.Value == 0 || math.IsNaN(r.Value) || math.IsInf(r.Value, 0):
			return nil, fmt.Errorf("objective: reference for %s must be finite and non-zero, got %v", n, r.Value)
		case r.Uncertainty < 0 || math.IsNaN(r.Uncertainty):
			return nil, fmt.Errorf("objective: uncertainty for %s must not be negative, got %v", n, r.Uncertainty)
		}
		o.refs[n] = r
	}

	if mode != LogRelative && mode != Relative {
		return nil, fmt.Errorf("objective: unknown mode %v", mode)
	}

	if len(targets) == 0 {
		targets = model.Names()
	}
	seen := make(map[model.Name]bool, len(targets))
	for _, n := range targets {
		switch {
		case n < 0 || n >= model.NumConstants:
			return nil, fmt.Errorf("objective: unknown target %v", n)
		case seen[n]:
			return nil, fmt.Errorf("objective: duplicate target %s", n)
		}
		seen[n] = true
	}
	o.targets = append([]model.Name(nil), targets...)
	return o, nil
}

// Terms is the number of residuals.
func (o *Objective) Terms() int {
	return len(o.targets)
}

func (o *Objective) Mode() Mode {
	return o.mode
}

func (o *Objective) Targets() []model.Name {
	return append([]model.Name(nil), o.targets...)
}

// Reference returns the observed value of n.
func (o *Objective) Reference(n model.Name) Reference {
	return o.refs[n]
}

// Residuals writes one residual per target into r.
// A point outside the model domain yields an error matching ErrInfeasiblePoint.
func (o *Objective) Residuals(p model.Params, r []float64) error {
	if len(r) != len(o.targets) {
		panic("residual dimension not match targets")
	}
	k, err := model.Derive(p)
	if err != nil {
		return infeasible(err)
	}
	for i, n := range o.targets {
		if r[i], err = o.residual(n, k.Get(n)); err != nil {
			return err
		}
	}
	return nil
}

// Evaluate returns the scalar objective at p.
func (o *Objective) Evaluate(p model.Params) (float64, error) {
	r := make([]float64, len(o.targets))
	if err := o.Residuals(p, r); err != nil {
		return math.NaN(), err
	}
	return Aggregate(r), nil
}

// Aggregate sums squared residuals.
func Aggregate(r []float64) float64 {
	return floats.Dot(r, r)
}

func (o *Objective) residual(n model.Name, v float64) (float64, error) {
	ref := o.refs[n].Value
	if o.mode == Relative {
		rel := (v - ref) / ref
		if math.IsNaN(rel) || math.IsInf(rel, 0) {
			return 0, &InfeasibleError{Constant: n, Reason: "relative error is not finite"}
		}
		return rel, nil
	}
	ratio := v / ref
	switch {
	case math.IsNaN(ratio) || math.IsInf(ratio, 0):
		return 0, &InfeasibleError{Constant: n, Reason: "ratio to reference is not finite"}
	case ratio <= 0:
		return 0, &InfeasibleError{Constant: n, Reason: "ratio to reference is not positive"}
	}
	return math.Log10(ratio), nil
}

func infeasible(err error) error {
	var de *model.DomainError
	if errors.As(err, &de) {
		return &InfeasibleError{Constant: de.Constant, Reason: fmt.Sprintf("evaluates to %v", de.Value)}
	}
	return fmt.Errorf("%w: %v", ErrInfeasiblePoint, err)
}
