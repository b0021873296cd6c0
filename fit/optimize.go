// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package fit

import (
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/curioloop/rotfit/model"
	"github.com/curioloop/rotfit/numdiff"
)

// State of an optimization run.
type State int

const (
	// Initializing evaluates the seed point.
	Initializing State = iota
	// Iterating takes damped Gauss-Newton steps.
	Iterating
	// Converged means the objective fell below the target or stopped improving.
	Converged
	// MaxIterationsReached means the iteration budget ran out first.
	MaxIterationsReached
	// Diverged means no feasible point could be found to continue from.
	Diverged
)

func (s State) String() string {
	switch s {
	case Initializing:
		return "Initializing"
	case Iterating:
		return "Iterating"
	case Converged:
		return "Converged"
	case MaxIterationsReached:
		return "MaxIterationsReached"
	case Diverged:
		return "Diverged"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Terminal reports whether the run has stopped in s.
func (s State) Terminal() bool {
	return s == Converged || s == MaxIterationsReached || s == Diverged
}

// Objective supplies the residual vector whose sum of squares is minimized.
// A non-nil error marks p as infeasible.
type Objective interface {
	Terms() int
	Residuals(p model.Params, r []float64) error
}

// Bound limits one parameter, in parameter units. NaN means unbounded on that side.
type Bound struct {
	Lower, Upper float64
}

// Termination specifies the stopping criteria.
type Termination struct {
	// The iteration stop when the number of iteration reaches limit.
	MaxIterations int
	// The iteration converge when the best objective satisfied:
	//   𝒇ₖ₋ₘ - 𝒇ₖ < 𝚝𝚘𝚕  with m = Window
	Tolerance float64
	// The iteration converge when the best objective satisfied 𝒇ₖ < 𝚝𝚊𝚛𝚐𝚎𝚝.
	Target float64
	// Number of iterations the improvement is measured over.
	Window int
	// Number of rejected candidates tolerated per iteration. Also bounds the
	// probe step halvings of the finite-difference Jacobian.
	MaxRetries int
}

// Step controls the per-parameter trust caps in search coordinates.
type Step struct {
	// Initial cap on |δᵢ|.
	Initial float64
	// Caps grow after accepted steps but never beyond Max.
	Max float64
}

// Problem specifies a fit of the free parameters against an Objective.
type Problem struct {
	Objective Objective
	// Free parameters varied by the optimizer, all others stay at their seed value.
	Free   []model.Param
	Bounds map[model.Param]Bound
	Stop   Termination
	Step   Step
	// Relative step of the finite-difference Jacobian:
	//   h = 𝚏𝚍_𝚎𝚙𝚜𝚒𝚕𝚘𝚗 × 𝚖𝚊𝚡(1, |u|)
	FDEpsilon float64
}

// New creates an optimizer for the problem.
func (p *Problem) New() (optimizer *Optimizer, err error) {

	stop, step := p.Stop, p.Step

	switch {
	case p.Objective == nil:
		err = errors.New("objective is required")
	case p.Objective.Terms() <= 0:
		err = errors.New("objective must have at least one residual")
	case len(p.Free) == 0:
		err = errors.New("free parameters must not be empty")
	case stop.MaxIterations <= 0:
		err = errors.New("max iteration must greater than 0")
	case stop.Window <= 0:
		err = errors.New("window must greater than 0")
	case stop.MaxRetries < 0:
		err = errors.New("max retries must not less than 0")
	case !(stop.Tolerance >= 0):
		err = errors.New("tolerance must not less than 0")
	case !(stop.Target >= 0):
		err = errors.New("target must not less than 0")
	case !(step.Initial > 0) || math.IsInf(step.Initial, 0):
		err = errors.New("initial step must be positive and finite")
	case !(step.Max >= step.Initial) || math.IsInf(step.Max, 0):
		err = errors.New("max step must be finite and not less than initial step")
	case !(p.FDEpsilon > 0 && p.FDEpsilon < 1):
		err = errors.New("finite difference epsilon must be in (0, 1)")
	}
	if err != nil {
		return
	}

	seen := make(map[model.Param]bool, len(p.Free))
	for _, q := range p.Free {
		switch {
		case q < 0 || q >= model.NumParams:
			err = fmt.Errorf("unknown free parameter %v", q)
		case seen[q]:
			err = fmt.Errorf("duplicate free parameter %s", q)
		}
		if err != nil {
			return
		}
		seen[q] = true
	}

	for q, b := range p.Bounds {
		l, u := !math.IsNaN(b.Lower), !math.IsNaN(b.Upper)
		switch {
		case q < 0 || q >= model.NumParams:
			err = fmt.Errorf("bound on unknown parameter %v", q)
		case l && u && b.Lower > b.Upper:
			err = fmt.Errorf("bound range of %s has no feasible solution", q)
		case l && u && b.Lower == b.Upper:
			err = fmt.Errorf("bound range of %s has zero width", q)
		case q.Kind() == model.Scale && u && b.Upper <= 0:
			err = fmt.Errorf("upper bound of scale parameter %s must be positive", q)
		}
		if err != nil {
			return
		}
	}

	free := slices.Clone(p.Free)
	optimizer = &Optimizer{
		iterSpec{
			n: len(free), m: p.Objective.Terms(),
			obj:   p.Objective,
			space: newSpace(free, p.Bounds),
			stop:  stop,
			step:  step,
			fdEps: p.FDEpsilon,
		},
	}
	return
}

// Optimizer fits parameters by damped Gauss-Newton iteration in log-space.
type Optimizer struct {
	iterSpec
}

// Workspace contains the state and context of the optimization process.
// Given n free parameters and m residuals, the work space is approximately float64[mn + 2×n² + 4×m + 6×n].
type Workspace struct {
	n, m int
	iterCtx
}

// Result contains the final result of the optimization process.
type Result struct {
	OK    bool  // Whether the optimization was converged.
	State State // Terminal state.
	// TargetReached tells a converged run stopped below the target rather than by stalling.
	TargetReached bool
	F             float64      // Best objective value, NaN when the seed was infeasible.
	Params        model.Params // Best parameters found.
	// History holds the best objective after each iteration, History[0] being the seed.
	History []float64
	Summary // Optimization summary.
}

// Summary contains a summary of the optimization process.
type Summary struct {
	Reason        string // Why the run stopped.
	NumIter       int    // Number of iterations performed.
	NumEval       int    // Number of objective evaluations performed.
	NumInfeasible int    // Number of evaluations that hit an infeasible point.
}

// Init allocate the workspace for the optimizer.
// Separate workspaces are needed for concurrent fits, but they may share one optimizer.
func (o *Optimizer) Init() *Workspace {
	w := new(Workspace)
	w.n, w.m = o.n, o.m
	w.init(w.n, w.m)
	return w
}

// Fit runs the optimization from the seed x0 using workspace w.
// Parameters outside the free set keep their seed value.
func (o *Optimizer) Fit(x0 model.Params, w *Workspace) *Result {

	if w.n != o.n || w.m != o.m {
		panic("workspace dimension not match optimizer")
	}

	driver := iterDriver{
		optimizer: o,
		workspace: w,
	}

	state := driver.mainLoop(x0)
	res := &Result{
		OK:            state == Converged,
		State:         state,
		TargetReached: w.reached,
		F:             w.f,
		History:       slices.Clone(w.history),
		Summary: Summary{
			Reason:        w.reason,
			NumIter:       w.iter,
			NumEval:       w.numEval,
			NumInfeasible: w.numInfeasible,
		},
	}
	res.Params = x0
	if w.seeded {
		o.space.decode(w.u, &res.Params)
	}
	return res
}

type iterSpec struct {
	n, m  int
	obj   Objective
	space space
	stop  Termination
	step  Step
	fdEps float64
}

type iterCtx struct {
	u, cand   []float64 // current and candidate coordinates
	r, rc     []float64 // current and candidate residuals
	jac       []float64 // row-major m×n Jacobian
	grad      []float64 // Jᵀr
	delta     []float64
	caps      []float64
	active    []bool // variables held on a bound during a step
	base      model.Params
	lambda, f float64
	history   []float64
	reason    string
	reached   bool
	seeded    bool

	iter, numEval, numInfeasible int

	diff numdiff.ApproxSpec
}

func (c *iterCtx) init(n, m int) {
	c.u = make([]float64, n)
	c.cand = make([]float64, n)
	c.r = make([]float64, m)
	c.rc = make([]float64, m)
	c.jac = make([]float64, m*n)
	c.grad = make([]float64, n)
	c.delta = make([]float64, n)
	c.caps = make([]float64, n)
	c.active = make([]bool, n)
}

func (c *iterCtx) clear() {
	c.lambda, c.f = lambdaInit, math.NaN()
	c.history = c.history[:0]
	c.reason, c.reached, c.seeded = "", false, false
	c.iter, c.numEval, c.numInfeasible = 0, 0, 0
}
