// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package fit

import (
	"errors"
	"fmt"
	"math"
	"slices"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/curioloop/rotfit/model"
	"github.com/curioloop/rotfit/numdiff"
)

const (
	lambdaInit = 1e-3
	lambdaMin  = 1e-15
	lambdaMax  = 1e20
	capGrowth  = 2.0
	capShrink  = 0.5
)

var (
	errEvalPanic = errors.New("objective panicked")
	errNotFinite = errors.New("objective is not finite")
)

// iterDriver is the main driver for iterations in an optimization process,
// responsible for managing the flow of the optimization.
type iterDriver struct {
	optimizer *Optimizer
	workspace *Workspace
}

// evaluate computes the residuals at u and returns their sum of squares.
// A panic inside the objective is reported as an infeasible point.
func (d *iterDriver) evaluate(u, r []float64) (f float64, err error) {
	o, w := d.optimizer, d.workspace

	p := w.base
	o.space.decode(u, &p)
	w.numEval++

	defer func() {
		if v := recover(); v != nil {
			err = fmt.Errorf("%w: %v", errEvalPanic, v)
		}
		if err != nil {
			f = math.NaN()
			w.numInfeasible++
		}
	}()

	if err = o.obj.Residuals(p, r); err != nil {
		return
	}
	if f = floats.Dot(r, r); math.IsNaN(f) || math.IsInf(f, 0) {
		err = errNotFinite
	}
	return
}

// checkConvergence decides whether the run stops after the latest iteration.
func (d *iterDriver) checkConvergence(state State) State {
	stop, w := d.optimizer.stop, d.workspace
	k := len(w.history) - 1
	switch {
	case w.f < stop.Target:
		w.reached = true
		w.reason = fmt.Sprintf("objective %.3e below target %.3e", w.f, stop.Target)
		state = Converged
	case k >= stop.Window && w.history[k-stop.Window]-w.f < stop.Tolerance:
		w.reason = fmt.Sprintf("improvement below %.3e over the last %d iterations", stop.Tolerance, stop.Window)
		state = Converged
	case w.iter >= stop.MaxIterations:
		w.reason = fmt.Sprintf("iteration limit %d reached", stop.MaxIterations)
		state = MaxIterationsReached
	}
	return state
}

// mainLoop runs the state machine from Initializing to a terminal state.
func (d *iterDriver) mainLoop(x0 model.Params) State {

	spec := &d.optimizer.iterSpec
	w := d.workspace

	w.clear()
	w.base = x0

	if !spec.space.encode(x0, w.u) {
		w.reason = "seed has a non-positive scale parameter"
		return Diverged
	}
	spec.space.project(w.u)

	f, err := d.evaluate(w.u, w.r)
	if err != nil {
		w.reason = fmt.Sprintf("seed is infeasible: %v", err)
		return Diverged
	}
	w.f, w.seeded = f, true
	w.history = append(w.history, f)
	for i := range w.caps {
		w.caps[i] = spec.step.Initial
	}

	w.diff = numdiff.ApproxSpec{
		N: spec.n, M: spec.m,
		Object: func(x, y []float64) error {
			_, err := d.evaluate(x, y)
			return err
		},
		Method:  numdiff.Central,
		Bounds:  spec.space.diffBounds(),
		Epsilon: spec.fdEps,
		Retries: spec.stop.MaxRetries,
	}

	state := d.checkConvergence(Iterating)
	for state == Iterating {
		if state = d.iterate(); state == Iterating {
			state = d.checkConvergence(state)
		}
	}
	return state
}

// iterate performs one iteration: a Jacobian, then damped steps until one improves
// the objective or the retries run out.
func (d *iterDriver) iterate() State {

	spec := &d.optimizer.iterSpec
	w := d.workspace
	n, m := spec.n, spec.m

	w.iter++

	if err := w.diff.Diff(w.u, w.jac); err != nil {
		w.reason = fmt.Sprintf("jacobian unavailable: %v", err)
		return Diverged
	}

	if !slices.Contains(w.diff.Stalled(), false) {
		w.reason = "jacobian has no usable column"
		return Diverged
	}

	jac := mat.NewDense(m, n, w.jac)
	var jtj mat.SymDense
	jtj.SymOuterK(1, jac.T())
	grad := mat.NewVecDense(n, w.grad)
	grad.MulVec(jac.T(), mat.NewVecDense(m, w.r))

	if !finite(w.jac) || !finite(w.grad) || !finite(jtj.RawSymmetric().Data) {
		w.reason = "normal equations are not finite"
		return Diverged
	}

	// a failed solve counts as an infeasible candidate
	failed := 0
	for try := 0; try <= spec.stop.MaxRetries; try++ {
		if !d.solveStep(&jtj, grad) {
			failed++
			w.raiseLambda()
			continue
		}
		if !d.moved() {
			break
		}

		f, err := d.evaluate(w.cand, w.rc)
		switch {
		case err != nil:
			failed++
			for i, c := range w.cand {
				if c != w.u[i] {
					w.caps[i] *= capShrink
				}
			}
			w.raiseLambda()
		case f < w.f:
			for i, c := range w.cand {
				if c != w.u[i] {
					w.caps[i] = math.Min(w.caps[i]*capGrowth, spec.step.Max)
				}
			}
			copy(w.u, w.cand)
			copy(w.r, w.rc)
			w.f = f
			w.lambda = math.Max(w.lambda/10, lambdaMin)
			w.history = append(w.history, f)
			return Iterating
		default:
			w.raiseLambda()
		}
	}

	w.history = append(w.history, w.f)
	if failed > spec.stop.MaxRetries {
		w.reason = fmt.Sprintf("no feasible step after %d retries", spec.stop.MaxRetries)
		return Diverged
	}
	return Iterating
}

// solveStep computes the capped Levenberg-Marquardt step
//
//	(JᵀJ + λ(diag JᵀJ + I)) δ = −Jᵀr
//
// and stores the projected candidate u + δ. Variables sitting on a bound with δ
// pointing outward are fixed and the step is solved again over the rest.
func (d *iterDriver) solveStep(jtj *mat.SymDense, grad *mat.VecDense) bool {

	spec := &d.optimizer.iterSpec
	w := d.workspace
	n, s := spec.n, &spec.space

	h := mat.NewSymDense(n, nil)
	h.CopySym(jtj)
	for i := 0; i < n; i++ {
		v := jtj.At(i, i)
		h.SetSym(i, i, v+w.lambda*(v+1))
	}
	rhs := mat.VecDenseCopyOf(grad)
	delta := mat.NewVecDense(n, w.delta)
	for i := range w.active {
		w.active[i] = false
	}

	for {
		var chol mat.Cholesky
		if !chol.Factorize(h) {
			return false
		}
		if err := chol.SolveVecTo(delta, rhs); err != nil {
			var cond mat.Condition
			if !errors.As(err, &cond) {
				return false
			}
		}

		// δ = -delta, so an outward step has delta > 0 at the lower bound.
		fixed := false
		for i, v := range w.delta {
			if w.active[i] {
				continue
			}
			if (w.u[i] <= s.lower[i] && v > 0) || (w.u[i] >= s.upper[i] && v < 0) {
				w.active[i], fixed = true, true
				for j := 0; j < n; j++ {
					h.SetSym(i, j, 0)
				}
				h.SetSym(i, i, 1)
				rhs.SetVec(i, 0)
			}
		}
		if !fixed {
			break
		}
	}

	scale := 1.0
	for i, v := range w.delta {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
		if a := math.Abs(v) * scale; a > w.caps[i] {
			scale *= w.caps[i] / a
		}
	}
	floats.Scale(-scale, w.delta)

	floats.AddTo(w.cand, w.u, w.delta)
	s.project(w.cand)
	return true
}

func (d *iterDriver) moved() bool {
	w := d.workspace
	return !floats.Equal(w.cand, w.u)
}

func finite(x []float64) bool {
	for _, v := range x {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func (c *iterCtx) raiseLambda() {
	c.lambda = math.Min(c.lambda*10, lambdaMax)
}
