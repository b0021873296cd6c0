// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package numdiff

import (
	"errors"
	"fmt"
	"math"
)

var sqrtEps = math.Sqrt(math.Nextafter(1, 2) - 1)
var cubeEps = math.Pow(math.Nextafter(1, 2)-1, float64(1)/3)

type Method int

const (
	// Forward use the first order accuracy forward difference.
	Forward Method = iota
	// Central use central difference in interior points and the second order accuracy
	// forward or backward difference near the boundary.
	Central
)

type Bound [2]float64

// ErrBasePoint is returned when the function cannot be evaluated at x0 itself.
var ErrBasePoint = errors.New("numdiff: function undefined at base point")

// ApproxSpec estimates the Jacobian of a vector function whose domain may have holes.
//
// A probe that fails (the Object returns an error) is replaced by a probe on the
// opposite side of x0 and, when both sides fail, the step is halved up to Retries
// times. A column that still has no valid probe, or whose step is zero, is zeroed
// and reported by Stalled.
//
// # Reference:
//
//   - https://en.wikipedia.org/wiki/Finite_difference
//   - https://github.com/scipy/scipy/blob/main/scipy/optimize/_numdiff.py
type ApproxSpec struct {
	N, M int
	// Function of which to estimate the derivatives.
	// The argument x passed to this function is an n-vector.
	// The result is store in an m-vector y.
	// A non-nil error marks x as outside the function domain.
	Object func(x, y []float64) error
	// Finite difference method to use.
	Method Method
	// Lower and upper bounds on independent variables.
	// Use it to limit the range of function evaluation.
	Bounds []Bound
	// Epsilon replaces the machine-derived factor of the automatic step
	// h = Epsilon * sign(x0) * max(1, abs(x0)).
	Epsilon float64
	// Relative step size used to compute absolute step size.
	// The absolute step size is computed as h = RelStep * sign(x0) * abs(x0) when RelStep is provided.
	RelStep float64
	// Absolute step size to use, possibly adjusted to fit into the bounds.
	// The RelStep is used when AbsStep is not provide.
	// For Central method the sign of AbsStep is ignored.
	AbsStep float64
	// Number of step halvings tried for a column whose probes all fail.
	Retries int
	// Don't check if x0 is out of bounds.
	NotChkBnd bool
	approxCtx
}

type approxCtx struct {
	f0, fx  []float64
	absStep []float64
	oneSide []bool
	stalled []bool
	evals   int
}

// Check the parameters and initialize approxCtx.
func (as *ApproxSpec) Check(x0, diff []float64) (err error) {

	switch {
	case as.N <= 0 || as.M <= 0:
		err = errors.New("negative dimensions")
	case as.Method != Forward && as.Method != Central:
		err = errors.New("unknown method")
	case as.Object == nil:
		err = errors.New("object function is required")
	case as.Retries < 0:
		err = errors.New("retries must not less than 0")
	case as.N != len(x0):
		return errors.New("invalid x0 dimensions")
	case as.N*as.M != len(diff):
		return errors.New("invalid diff dimensions")
	}

	if as.Bounds != nil {
		if len(as.Bounds) != len(x0) {
			err = errors.New("invalid bound dimension")
		} else {
			for i, bound := range as.Bounds {
				if math.IsNaN(bound[0]) {
					bound[0] = math.Inf(-1)
				}
				if math.IsNaN(bound[1]) {
					bound[1] = math.Inf(1)
				}
				if bound[0] > bound[1] {
					err = errors.New("invalid bound range")
					break
				}
				if !as.NotChkBnd && (x0[i] < bound[0] || x0[i] > bound[1]) {
					err = errors.New("x0 violates bound constraints")
					break
				}
			}
		}
	}

	if len(as.fx) != as.M*2 {
		as.f0 = make([]float64, as.M)
		as.fx = make([]float64, as.M*2)
	}
	if len(as.absStep) != as.N {
		as.absStep = make([]float64, as.N)
		as.stalled = make([]bool, as.N)
	}
	if len(as.oneSide) != as.N*int(as.Method) {
		as.oneSide = make([]bool, as.N*int(as.Method))
	}
	return
}

// Diff calculate approximation of derivatives by finite differences.
// The result is stored row-major: diff[i+j*n] = ∂yⱼ/∂xᵢ.
func (as *ApproxSpec) Diff(x0, diff []float64) error {

	if err := as.Check(x0, diff); err != nil {
		return err
	}

	bnd := false
	for _, bound := range as.Bounds {
		l, u := bound[0], bound[1]
		if bnd = !(math.IsInf(l, 0) && math.IsInf(u, 0)); bnd {
			break
		}
	}

	for i := range as.stalled {
		as.stalled[i] = false
	}
	as.evals = 0

	if err := as.eval(x0, as.f0); err != nil {
		return fmt.Errorf("%w: %w", ErrBasePoint, err)
	}

	as.absoluteStep(x0)
	as.adjustToBounds(x0, bnd)

	if as.Method == Central {
		as.approxCentral(x0, diff)
	} else {
		as.approxForward(x0, diff)
	}

	return nil
}

// Stalled reports, per variable, whether no valid probe was found in the last Diff.
func (as *ApproxSpec) Stalled() []bool {
	return as.stalled
}

// Evaluations is the number of Object calls made by the last Diff.
func (as *ApproxSpec) Evaluations() int {
	return as.evals
}

func (as *ApproxSpec) eval(x, y []float64) error {
	as.evals++
	return as.Object(x, y)
}

func (as *ApproxSpec) adjustToBounds(x0 []float64, bnd bool) {
	h, o := as.absStep, as.oneSide
	if as.Method == Central {
		for i, v := range h {
			h[i] = math.Abs(v)
		}
		for i := range o {
			o[i] = false
		}
	}

	if !bnd {
		return
	}

	b := as.Bounds
	if len(x0) != len(b) || len(x0) != len(h) {
		panic("bound check error")
	}

	if as.Method == Forward {
		for i, x0 := range x0 {
			lb, ub := b[i][0], b[i][1]
			ld, ud := x0-lb, ub-x0
			h0 := h[i]
			x := x0 + h0
			violated := x < lb || x > ub
			fitting := math.Abs(h[i]) < math.Max(ld, ud)
			if violated && fitting {
				h[i] = -h0
			} else if !fitting {
				if ud >= ld {
					h[i] = ud
				} else if ud < ld {
					h[i] = -ld
				}
			}
		}
	} else {
		if len(x0) != len(o) {
			panic("bound check error")
		}
		for i, x0 := range x0 {
			lb, ub := b[i][0], b[i][1]
			ld, ud := x0-lb, ub-x0
			central := ld >= h[i] && ud >= h[i]
			if !central {
				if ud >= ld {
					h[i] = math.Min(h[i], 0.5*ud)
					o[i] = true
				} else if ud < ld {
					h[i] = -math.Min(h[i], 0.5*ld)
					o[i] = true
				}
			}
			minDist := math.Min(ud, ld)
			adjCent := !central && math.Abs(h[i]) <= minDist
			if adjCent {
				h[i] = minDist
				o[i] = false
			}
		}
	}

}

func (as *ApproxSpec) absoluteStep(x0 []float64) {
	h := as.absStep
	if len(h) != len(x0) {
		panic("bound check error")
	}

	var eps float64
	switch as.Method {
	case Forward:
		eps = sqrtEps
	case Central:
		eps = cubeEps
	default:
		panic("unknown method")
	}
	if as.Epsilon > 0 {
		eps = as.Epsilon
	}

	abs := as.AbsStep
	rel := as.RelStep
	if abs == 0 && rel == 0 {
		for i, v := range x0 {
			h[i] = math.Copysign(eps, v) * math.Max(1.0, math.Abs(v))
		}
	} else {
		for i, v := range x0 {
			s := abs
			if s == 0 {
				s = math.Copysign(rel, v) * math.Abs(v)
			}
			d := (v + s) - v
			if d == 0 {
				s = math.Copysign(eps, v) * math.Max(1.0, math.Abs(v))
			}
			h[i] = s
		}
	}
}

// inBounds tells whether x can be probed along variable i.
func (as *ApproxSpec) inBounds(i int, x float64) bool {
	if as.Bounds == nil {
		return true
	}
	b := as.Bounds[i]
	return !(x < b[0] || x > b[1])
}

// probe evaluates the function with variable i set to x and restores x0[i].
func (as *ApproxSpec) probe(x0 []float64, i int, x float64, y []float64) bool {
	if !as.inBounds(i, x) {
		return false
	}
	t := x0[i]
	x0[i] = x
	err := as.eval(x0, y)
	x0[i] = t
	return err == nil
}

func (as *ApproxSpec) approxForward(x0, df []float64) {

	f0, fx, h, n := as.f0, as.fx[:as.M], as.absStep, as.N
	if len(h) != len(x0) || len(f0) != len(fx) {
		panic("bound check error")
	}

	for i := range h {
		s := h[i]
		if s == 0 {
			as.zeroColumn(df, i)
			continue
		}
		done := false
		for try := 0; try <= as.Retries && !done; try++ {
			switch {
			case as.probe(x0, i, x0[i]+s, fx):
				done = true
			case as.probe(x0, i, x0[i]-s, fx):
				s, done = -s, true
			default:
				s *= 0.5
			}
		}
		if !done {
			as.zeroColumn(df, i)
			continue
		}
		d := 1.0 / s
		for j := range f0 {
			df[i+j*n] = (fx[j] - f0[j]) * d
		}
	}
}

func (as *ApproxSpec) approxCentral(x0, df []float64) {

	f0, h, o, n, m := as.f0, as.absStep, as.oneSide, as.N, as.M
	f1, f2 := as.fx[:m], as.fx[m:]
	if len(h) != len(x0) || len(h) != len(o) || len(f0) != len(f1) || len(f0) != len(f2) {
		panic("bound check error")
	}

	for i := range h {
		s, x := h[i], x0[i]
		// no room to probe, e.g. a variable pinned by equal bounds
		if s == 0 {
			as.zeroColumn(df, i)
			continue
		}
		done := false
		for try := 0; try <= as.Retries && !done; try++ {
			if o[i] {
				// second order one-sided difference toward the interior
				if as.probe(x0, i, x+s, f1) && as.probe(x0, i, x+2*s, f2) {
					d := 1.0 / (2 * s)
					for j := range f0 {
						df[i+j*n] = (4*f1[j] - 3*f0[j] - f2[j]) * d
					}
					done = true
				}
			} else {
				lo := as.probe(x0, i, x-s, f1)
				hi := as.probe(x0, i, x+s, f2)
				switch {
				case lo && hi:
					d := 1.0 / (2 * s)
					for j := range f0 {
						df[i+j*n] = (f2[j] - f1[j]) * d
					}
					done = true
				case hi:
					d := 1.0 / s
					for j := range f0 {
						df[i+j*n] = (f2[j] - f0[j]) * d
					}
					done = true
				case lo:
					d := 1.0 / s
					for j := range f0 {
						df[i+j*n] = (f0[j] - f1[j]) * d
					}
					done = true
				}
			}
			s *= 0.5
		}
		if !done {
			as.zeroColumn(df, i)
		}
	}
}

func (as *ApproxSpec) zeroColumn(df []float64, i int) {
	for j := 0; j < as.M; j++ {
		df[i+j*as.N] = 0
	}
	as.stalled[i] = true
}
