// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package model

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// Name enumerates the derived constants.
type Name int

const (
	C Name = iota
	Hbar
	G
	Alpha
	Lambda
	Me
	AlphaS
	Mp
	E
	// NumConstants is the size of a ConstantSet.
	NumConstants
)

var constantNames = [NumConstants]string{
	C: "c", Hbar: "hbar", G: "G", Alpha: "alpha", Lambda: "Lambda",
	Me: "m_e", AlphaS: "alpha_s", Mp: "m_p", E: "e",
}

var constantSymbols = [NumConstants]string{
	C: "c", Hbar: "ħ", G: "G", Alpha: "α", Lambda: "Λ",
	Me: "mₑ", AlphaS: "αₛ", Mp: "mₚ", E: "e",
}

func (n Name) String() string {
	if n < 0 || n >= NumConstants {
		return fmt.Sprintf("Name(%d)", int(n))
	}
	return constantNames[n]
}

// Symbol returns the typeset name used in reports.
func (n Name) Symbol() string {
	if n < 0 || n >= NumConstants {
		return n.String()
	}
	return constantSymbols[n]
}

// ParseName resolves a constant by name, ignoring case.
func ParseName(s string) (Name, error) {
	for n, name := range constantNames {
		if strings.EqualFold(s, name) {
			return Name(n), nil
		}
	}
	return 0, fmt.Errorf("model: unknown constant %q", s)
}

// Names lists every constant in evaluation order.
func Names() []Name {
	names := make([]Name, NumConstants)
	for i := range names {
		names[i] = Name(i)
	}
	return names
}

// ConstantSet holds one value per derived constant, indexed by Name.
type ConstantSet [NumConstants]float64

// Get returns the value of constant n.
func (s ConstantSet) Get(n Name) float64 {
	return s[n]
}

// ErrDomain reports a formula without a finite real value at the given point.
var ErrDomain = errors.New("model: formula has no finite real value")

// DomainError names the constant whose formula left the real domain.
type DomainError struct {
	Constant Name
	Value    float64
}

func (e *DomainError) Error() string {
	return fmt.Sprintf("model: %s evaluates to %v", e.Constant, e.Value)
}

func (e *DomainError) Unwrap() error {
	return ErrDomain
}

// formula computes one constant from the parameters and the constants
// already derived earlier in Name order.
type formula func(p *Params, k *ConstantSet) float64

// formulas is indexed by Name; a later constant may only read earlier ones.
var formulas = [NumConstants]formula{
	// c = l₀/t₀ · 10ᵖ¹
	C: func(p *Params, k *ConstantSet) float64 {
		return p[L0] / p[T0] * exp10(p[P1])
	},
	// ħ = κ₀ l₀³ t₀ · 10ᵖ²
	Hbar: func(p *Params, k *ConstantSet) float64 {
		return Kappa0(*p) * cube(p[L0]) * p[T0] * exp10(p[P2])
	},
	// G = l₀³ / (S₀ t₀²) · 10ᵖ³
	G: func(p *Params, k *ConstantSet) float64 {
		return cube(p[L0]) / (p[S0] * p[T0] * p[T0]) * exp10(p[P3])
	},
	// α = (η₀/r₀)² · 10ᵖ⁴
	Alpha: func(p *Params, k *ConstantSet) float64 {
		q := p[Eta0] / p[R0]
		return q * q * exp10(p[P4])
	},
	// Λ = S₀⁻¹ t₀⁻² ln κ₀ · 10ᵖ⁵
	Lambda: func(p *Params, k *ConstantSet) float64 {
		return math.Log(Kappa0(*p)) / (p[S0] * p[T0] * p[T0]) * exp10(p[P5])
	},
	// mₑ = ħ / (l₀ c) · 10ᵖ⁶
	Me: func(p *Params, k *ConstantSet) float64 {
		return k[Hbar] / (p[L0] * k[C]) * exp10(p[P6])
	},
	// αₛ = α (η₀/r₀)^¼ · 10ᵖ⁷
	AlphaS: func(p *Params, k *ConstantSet) float64 {
		return k[Alpha] * math.Pow(p[Eta0]/p[R0], 0.25) * exp10(p[P7])
	},
	// mₚ = mₑ · 10ᵖ⁸
	Mp: func(p *Params, k *ConstantSet) float64 {
		return k[Me] * exp10(p[P8])
	},
	// e = √(4π ħ c α) · 10ᵖ⁹
	E: func(p *Params, k *ConstantSet) float64 {
		return math.Sqrt(4*math.Pi*k[Hbar]*k[C]*k[Alpha]) * exp10(p[P9])
	},
}

// Kappa0 returns the entropy density κ₀ = S₀ / (4/3 π l₀³).
func Kappa0(p Params) float64 {
	return p[S0] / (4.0 / 3.0 * math.Pi * cube(p[L0]))
}

// Derive evaluates every constant at p in Name order.
//
// Each value is checked right after its formula runs. On the first NaN or ±Inf
// a *DomainError is returned together with the constants derived so far; the
// remaining entries are NaN.
func Derive(p Params) (ConstantSet, error) {
	var k ConstantSet
	for i := range k {
		k[i] = math.NaN()
	}
	for n := C; n < NumConstants; n++ {
		v := formulas[n](&p, &k)
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return k, &DomainError{Constant: n, Value: v}
		}
		k[n] = v
	}
	return k, nil
}

func exp10(x float64) float64 {
	return math.Pow(10, x)
}

func cube(x float64) float64 {
	return x * x * x
}
