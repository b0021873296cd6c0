// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package model

import (
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormulaTableComplete(t *testing.T) {
	for _, n := range Names() {
		require.NotNil(t, formulas[n], "missing formula for %s", n)
	}
	require.Len(t, Names(), int(NumConstants))
}

func TestDeriveDeterministic(t *testing.T) {
	seeds := []Params{
		DefaultParams,
		{1, 1, 1, 1, 1, 0, 0, 0, 0, 0, 0, 0, 0, 0},
		{2e-35, 7e-44, 12, 3, 40, 1.5, -2, 0.25, 3, -7, 0.5, 0.1, -0.2, 0.3},
	}
	for _, p := range seeds {
		k1, err1 := Derive(p)
		k2, err2 := Derive(p)
		require.NoError(t, err1)
		require.NoError(t, err2)
		if diff := cmp.Diff(k1, k2); diff != "" {
			t.Fatalf("derive not deterministic (-first +second):\n%s", diff)
		}
		assert.True(t, k1 == k2)
	}
}

func TestDeriveClosedForm(t *testing.T) {
	p := DefaultParams
	k, err := Derive(p)
	require.NoError(t, err)

	kappa := p[S0] / (4.0 / 3.0 * math.Pi * p[L0] * p[L0] * p[L0])
	assert.InEpsilon(t, kappa, Kappa0(p), 1e-15)

	c := p[L0] / p[T0] * math.Pow(10, p[P1])
	assert.InEpsilon(t, c, k[C], 1e-15)

	// ħ collapses to 3 S₀ t₀ / 4π.
	hbar := 3 * p[S0] * p[T0] / (4 * math.Pi) * math.Pow(10, p[P2])
	assert.InEpsilon(t, hbar, k[Hbar], 1e-12)

	assert.InEpsilon(t, k[Me]*math.Pow(10, p[P8]), k[Mp], 1e-15)
	assert.InEpsilon(t, math.Sqrt(4*math.Pi*k[Hbar]*k[C]*k[Alpha])*math.Pow(10, p[P9]), k[E], 1e-15)

	for _, n := range Names() {
		assert.Greater(t, k.Get(n), 0.0, "constant %s", n)
	}
}

func TestDeriveExponentShift(t *testing.T) {
	p := DefaultParams
	base, err := Derive(p)
	require.NoError(t, err)

	// p8 only scales mₚ, and nothing depends on mₚ.
	p[P8] += 1
	shifted, err := Derive(p)
	require.NoError(t, err)
	for _, n := range Names() {
		if n == Mp {
			assert.InEpsilon(t, 10*base[n], shifted[n], 1e-14)
		} else {
			assert.Equal(t, base[n], shifted[n], "constant %s", n)
		}
	}
}

func TestDeriveDomainErrors(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(p *Params)
		constant Name
	}{
		{
			name:     "zero time scale",
			mutate:   func(p *Params) { p[T0] = 0 },
			constant: C,
		},
		{
			name:     "zero length scale",
			mutate:   func(p *Params) { p[L0] = 0 },
			constant: Hbar,
		},
		{
			name:     "exponent overflow",
			mutate:   func(p *Params) { p[P1] = 400 },
			constant: C,
		},
		{
			name:     "zero entropy radius",
			mutate:   func(p *Params) { p[R0] = 0 },
			constant: Alpha,
		},
		{
			name:     "negative entropy radius",
			mutate:   func(p *Params) { p[R0] = -99.79 },
			constant: AlphaS,
		},
		{
			name:     "negative entropy scale",
			mutate:   func(p *Params) { p[S0] = -1 },
			constant: Lambda,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := DefaultParams
			tt.mutate(&p)
			k, err := Derive(p)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrDomain))

			var de *DomainError
			require.True(t, errors.As(err, &de))
			assert.Equal(t, tt.constant, de.Constant)
			for n := tt.constant; n < NumConstants; n++ {
				assert.True(t, math.IsNaN(k[n]), "constant %s should be unset", n)
			}
		})
	}
}

func TestParseNames(t *testing.T) {
	for _, n := range Names() {
		got, err := ParseName(n.String())
		require.NoError(t, err)
		assert.Equal(t, n, got)
	}
	g, err := ParseName("g")
	require.NoError(t, err)
	assert.Equal(t, G, g)

	_, err = ParseName("mu")
	assert.Error(t, err)

	for p := L0; p < NumParams; p++ {
		got, err := ParseParam(p.String())
		require.NoError(t, err)
		assert.Equal(t, p, got)
	}
	s0, err := ParseParam("s0")
	require.NoError(t, err)
	assert.Equal(t, S0, s0)

	_, err = ParseParam("p10")
	assert.Error(t, err)
}

func TestParamKinds(t *testing.T) {
	for p := L0; p < NumParams; p++ {
		if p <= Eta0 {
			assert.Equal(t, Scale, p.Kind(), p.String())
		} else {
			assert.Equal(t, Exponent, p.Kind(), p.String())
		}
	}
	assert.Equal(t, P1, ExponentOf(C))
	assert.Equal(t, P9, ExponentOf(E))
	assert.Equal(t, P6, ExponentOf(Me))
}
