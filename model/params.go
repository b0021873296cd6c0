// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package model

import (
	"fmt"
	"strings"
)

// Param enumerates the postulate parameters in their fixed vector order.
type Param int

const (
	// L0 is the postulated length scale l₀ (meters).
	L0 Param = iota
	// T0 is the postulated time scale t₀ (seconds).
	T0
	// S0 is the postulated entropy scale S₀.
	S0
	// R0 is the recursive entropy radius r₀.
	R0
	// Eta0 is the attentional field amplitude η₀.
	Eta0
	// P1 … P9 are the decimal exponents applied to c, ħ, G, α, Λ, mₑ, αₛ, mₚ and e.
	P1
	P2
	P3
	P4
	P5
	P6
	P7
	P8
	P9
	// NumParams is the length of a parameter vector.
	NumParams
)

// Kind tells how the optimizer moves a parameter in log-space.
type Kind int

const (
	// Scale parameters are strictly positive and searched as ln(x).
	Scale Kind = iota
	// Exponent parameters are decimal logarithms already and searched as is.
	Exponent
)

var paramNames = [NumParams]string{
	L0: "l0", T0: "t0", S0: "S0", R0: "r0", Eta0: "eta0",
	P1: "p1", P2: "p2", P3: "p3", P4: "p4", P5: "p5",
	P6: "p6", P7: "p7", P8: "p8", P9: "p9",
}

var paramSymbols = [NumParams]string{
	L0: "l₀", T0: "t₀", S0: "S₀", R0: "r₀", Eta0: "η₀",
	P1: "p1", P2: "p2", P3: "p3", P4: "p4", P5: "p5",
	P6: "p6", P7: "p7", P8: "p8", P9: "p9",
}

func (p Param) String() string {
	if p < 0 || p >= NumParams {
		return fmt.Sprintf("Param(%d)", int(p))
	}
	return paramNames[p]
}

// Symbol returns the typeset name used in reports.
func (p Param) Symbol() string {
	if p < 0 || p >= NumParams {
		return p.String()
	}
	return paramSymbols[p]
}

func (p Param) Kind() Kind {
	if p < P1 {
		return Scale
	}
	return Exponent
}

// ExponentOf returns the exponent parameter that scales constant n.
func ExponentOf(n Name) Param {
	return P1 + Param(n)
}

// ParseParam resolves a parameter by name, ignoring case.
func ParseParam(s string) (Param, error) {
	for p, name := range paramNames {
		if strings.EqualFold(s, name) {
			return Param(p), nil
		}
	}
	return 0, fmt.Errorf("model: unknown parameter %q", s)
}

// Params is the postulate parameter vector (l₀, t₀, S₀, r₀, η₀, p1 … p9).
type Params [NumParams]float64

// DefaultParams holds the postulated base scales with the exponent seeds
// p1–p5 from the five-constant fit and rough starting values for p6–p9.
var DefaultParams = Params{
	L0:   9.676e-35,
	T0:   3.227e-43,
	S0:   9.999e+05,
	R0:   99.790,
	Eta0: 1824.938,
	P1:   -0.0001,
	P2:   3.1364,
	P3:   12.8849,
	P4:   -4.6612,
	P5:   -133.3322,
	P6:   -21.6,
	P7:   0.9,
	P8:   3.0,
	P9:   0.0,
}
