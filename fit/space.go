// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package fit

import (
	"math"

	"github.com/curioloop/rotfit/model"
	"github.com/curioloop/rotfit/numdiff"
)

// space maps the free parameters onto the search coordinates u.
//
//	uᵢ = ln xᵢ  for scale parameters
//	uᵢ = xᵢ     for exponent parameters
//
// Every step taken in u is therefore a step in log-space.
type space struct {
	free         []model.Param
	lower, upper []float64
	bounded      bool
}

func newSpace(free []model.Param, bounds map[model.Param]Bound) space {
	s := space{
		free:  free,
		lower: make([]float64, len(free)),
		upper: make([]float64, len(free)),
	}
	for i, p := range free {
		lo, up := math.Inf(-1), math.Inf(1)
		if b, ok := bounds[p]; ok {
			if !math.IsNaN(b.Lower) {
				lo = s.coord(p, b.Lower)
			}
			if !math.IsNaN(b.Upper) {
				up = s.coord(p, b.Upper)
			}
		}
		s.lower[i], s.upper[i] = lo, up
		s.bounded = s.bounded || !math.IsInf(lo, 0) || !math.IsInf(up, 0)
	}
	return s
}

// coord converts one parameter value into its search coordinate.
// A non-positive scale maps to -Inf.
func (s *space) coord(p model.Param, x float64) float64 {
	if p.Kind() == model.Scale {
		if x <= 0 {
			return math.Inf(-1)
		}
		return math.Log(x)
	}
	return x
}

// encode writes the coordinates of p into u and reports whether all of them are finite.
func (s *space) encode(p model.Params, u []float64) bool {
	ok := true
	for i, q := range s.free {
		u[i] = s.coord(q, p[q])
		ok = ok && !math.IsNaN(u[i]) && !math.IsInf(u[i], 0)
	}
	return ok
}

// decode writes u back into the free entries of p; fixed entries are left untouched.
func (s *space) decode(u []float64, p *model.Params) {
	for i, q := range s.free {
		if q.Kind() == model.Scale {
			p[q] = math.Exp(u[i])
		} else {
			p[q] = u[i]
		}
	}
}

// project clamps u onto the bounds.
func (s *space) project(u []float64) {
	if !s.bounded {
		return
	}
	for i, v := range u {
		u[i] = math.Max(s.lower[i], math.Min(s.upper[i], v))
	}
}

// diffBounds returns the bounds in the form numdiff expects, nil when unbounded.
func (s *space) diffBounds() []numdiff.Bound {
	if !s.bounded {
		return nil
	}
	b := make([]numdiff.Bound, len(s.free))
	for i := range b {
		b[i] = numdiff.Bound{s.lower[i], s.upper[i]}
	}
	return b
}
