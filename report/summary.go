// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package report

import (
	"encoding/json"
	"math"
	"slices"

	"github.com/google/uuid"

	"github.com/curioloop/rotfit/fit"
	"github.com/curioloop/rotfit/model"
	"github.com/curioloop/rotfit/objective"
)

// Float renders non-finite values as null in JSON.
type Float float64

func (f Float) MarshalJSON() ([]byte, error) {
	v := float64(f)
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return []byte("null"), nil
	}
	return json.Marshal(v)
}

// Parameter is one entry of the final parameter vector.
type Parameter struct {
	Name   string  `yaml:"name" json:"name"`
	Symbol string  `yaml:"symbol" json:"symbol"`
	Value  float64 `yaml:"value" json:"value"`
	Free   bool    `yaml:"free" json:"free"`
	Scale  bool    `yaml:"-" json:"-"`
}

// Constant compares one derived constant with its reference.
type Constant struct {
	Name        string `yaml:"name" json:"name"`
	Symbol      string `yaml:"symbol" json:"symbol"`
	Computed    Float  `yaml:"computed" json:"computed"`
	Reference   Float  `yaml:"reference" json:"reference"`
	Uncertainty Float  `yaml:"uncertainty,omitempty" json:"uncertainty,omitempty"`
	RelErr      Float  `yaml:"rel_err" json:"rel_err"`
	// Sigma is |computed - reference| in units of the uncertainty, NaN when none is known.
	Sigma  Float `yaml:"sigma" json:"sigma"`
	Target bool  `yaml:"target" json:"target"`
}

// Summary is the final outcome of a run in presentation form.
// State is empty for a plain derivation without fitting.
type Summary struct {
	RunID         string      `yaml:"run_id,omitempty" json:"run_id,omitempty"`
	State         string      `yaml:"state,omitempty" json:"state,omitempty"`
	Success       bool        `yaml:"success" json:"success"`
	TargetReached bool        `yaml:"target_reached" json:"target_reached"`
	Reason        string      `yaml:"reason,omitempty" json:"reason,omitempty"`
	Mode          string      `yaml:"objective_mode" json:"objective_mode"`
	Objective     Float       `yaml:"objective" json:"objective"`
	MaxRelErr     Float       `yaml:"max_rel_err" json:"max_rel_err"`
	Iterations    int         `yaml:"iterations" json:"iterations"`
	Evaluations   int         `yaml:"evaluations" json:"evaluations"`
	Infeasible    int         `yaml:"infeasible" json:"infeasible"`
	Kappa0        Float       `yaml:"kappa0" json:"kappa0"`
	Parameters    []Parameter `yaml:"parameters" json:"parameters"`
	Constants     []Constant  `yaml:"constants" json:"constants"`
	Cause         string      `yaml:"cause,omitempty" json:"cause,omitempty"`
}

// Label returns the upper-case label of a terminal state.
func Label(s fit.State) string {
	switch s {
	case fit.Converged:
		return "CONVERGED"
	case fit.MaxIterationsReached:
		return "MAX_ITERATIONS_REACHED"
	case fit.Diverged:
		return "DIVERGED"
	default:
		return "RUNNING"
	}
}

// New summarizes a finished fit. rep must be the error report at res.Params.
func New(id uuid.UUID, res *fit.Result, rep *objective.ErrorReport, free []model.Param) *Summary {
	s := Derivation(res.Params, rep, free)
	s.RunID = id.String()
	s.State = Label(res.State)
	s.Success = res.OK
	s.TargetReached = res.TargetReached
	s.Reason = res.Reason
	s.Iterations = res.NumIter
	s.Evaluations = res.NumEval
	s.Infeasible = res.NumInfeasible
	return s
}

// Derivation summarizes the constants at p without any fit information.
func Derivation(p model.Params, rep *objective.ErrorReport, free []model.Param) *Summary {
	s := &Summary{
		Mode:       rep.Mode.String(),
		Objective:  Float(rep.Objective),
		MaxRelErr:  Float(math.NaN()),
		Kappa0:     Float(model.Kappa0(p)),
		Parameters: make([]Parameter, 0, model.NumParams),
		Constants:  make([]Constant, 0, model.NumConstants),
		Cause:      rep.Cause,
	}
	if rep.Feasible {
		s.MaxRelErr = Float(rep.MaxAbsRelErr())
	}

	for q := model.L0; q < model.NumParams; q++ {
		s.Parameters = append(s.Parameters, Parameter{
			Name:   q.String(),
			Symbol: q.Symbol(),
			Value:  p[q],
			Free:   slices.Contains(free, q),
			Scale:  q.Kind() == model.Scale,
		})
	}

	for _, e := range rep.Entries {
		sigma := math.NaN()
		if e.Uncertainty > 0 {
			sigma = math.Abs(e.Computed-e.Reference) / e.Uncertainty
		}
		s.Constants = append(s.Constants, Constant{
			Name:        e.Name.String(),
			Symbol:      e.Name.Symbol(),
			Computed:    Float(e.Computed),
			Reference:   Float(e.Reference),
			Uncertainty: Float(e.Uncertainty),
			RelErr:      Float(e.RelErr),
			Sigma:       Float(sigma),
			Target:      e.Target,
		})
	}
	return s
}
