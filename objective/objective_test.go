// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package objective

import (
	"errors"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/curioloop/rotfit/model"
)

func exactObjective(t *testing.T, p model.Params, mode Mode, targets ...model.Name) *Objective {
	t.Helper()
	k, err := model.Derive(p)
	require.NoError(t, err)
	o, err := New(ReferencesFrom(k), mode, targets)
	require.NoError(t, err)
	return o
}

func TestMissingReference(t *testing.T) {
	for _, n := range model.Names() {
		_, err := New(DefaultReferences().Without(n), LogRelative, nil)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrMissingReference), "constant %s", n)
		assert.Contains(t, err.Error(), n.String())
	}
}

func TestNewValidation(t *testing.T) {
	refs := map[model.Name]Reference{}
	for _, n := range model.Names() {
		r, _ := DefaultReferences().Lookup(n)
		refs[n] = r
	}

	tests := []struct {
		name    string
		refs    func() ReferenceSet
		mode    Mode
		targets []model.Name
	}{
		{
			name: "zero reference",
			refs: func() ReferenceSet {
				m := NewReferenceSet(refs).Without(model.G)
				m.refs[model.G] = Reference{Value: 0}
				return m
			},
		},
		{
			name: "negative uncertainty",
			refs: func() ReferenceSet {
				m := NewReferenceSet(refs).Without(model.E)
				m.refs[model.E] = Reference{Value: 1, Uncertainty: -1}
				return m
			},
		},
		{
			name: "unknown mode",
			refs: DefaultReferences,
			mode: Mode(7),
		},
		{
			name:    "duplicate target",
			refs:    DefaultReferences,
			targets: []model.Name{model.Me, model.Me},
		},
		{
			name:    "unknown target",
			refs:    DefaultReferences,
			targets: []model.Name{model.NumConstants},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.refs(), tt.mode, tt.targets)
			assert.Error(t, err)
			assert.False(t, errors.Is(err, ErrMissingReference))
		})
	}
}

func TestZeroIffExact(t *testing.T) {
	for _, mode := range []Mode{LogRelative, Relative} {
		o := exactObjective(t, model.DefaultParams, mode)
		f, err := o.Evaluate(model.DefaultParams)
		require.NoError(t, err)
		assert.Equal(t, 0.0, f, mode.String())

		for p := model.P1; p < model.NumParams; p++ {
			q := model.DefaultParams
			q[p] += 1e-9
			f, err := o.Evaluate(q)
			require.NoError(t, err)
			assert.Greater(t, f, 0.0, "%s moved in %s mode", p, mode)
		}
	}
}

func TestNonNegative(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))
	for _, mode := range []Mode{LogRelative, Relative} {
		o, err := New(DefaultReferences(), mode, nil)
		require.NoError(t, err)
		for range 200 {
			p := model.DefaultParams
			for i := model.P1; i < model.NumParams; i++ {
				p[i] += rng.Float64()*4 - 2
			}
			f, err := o.Evaluate(p)
			require.NoError(t, err)
			assert.False(t, math.IsNaN(f))
			assert.GreaterOrEqual(t, f, 0.0)
		}
	}
}

func TestAggregateOrderIndependence(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 5))
	r := make([]float64, model.NumConstants)
	for i := range r {
		r[i] = (rng.Float64() - 0.5) * math.Pow(10, float64(rng.IntN(12)-6))
	}
	want := Aggregate(r)
	for range 100 {
		perm := append([]float64(nil), r...)
		rng.Shuffle(len(perm), func(i, j int) { perm[i], perm[j] = perm[j], perm[i] })
		assert.InEpsilon(t, want, Aggregate(perm), 1e-15)
	}

	// permuted targets at the objective level
	p := model.DefaultParams
	p[model.P6] += 0.3
	p[model.P2] -= 0.1
	forward, err := New(DefaultReferences(), LogRelative, model.Names())
	require.NoError(t, err)
	reversed := model.Names()
	for i, j := 0, len(reversed)-1; i < j; i, j = i+1, j-1 {
		reversed[i], reversed[j] = reversed[j], reversed[i]
	}
	backward, err := New(DefaultReferences(), LogRelative, reversed)
	require.NoError(t, err)

	f1, err := forward.Evaluate(p)
	require.NoError(t, err)
	f2, err := backward.Evaluate(p)
	require.NoError(t, err)
	assert.InEpsilon(t, f1, f2, 1e-15)
}

func TestInfeasiblePoint(t *testing.T) {
	o, err := New(DefaultReferences(), LogRelative, nil)
	require.NoError(t, err)

	p := model.DefaultParams
	p[model.T0] = 0
	f, err := o.Evaluate(p)
	require.Error(t, err)
	assert.True(t, math.IsNaN(f))
	assert.True(t, errors.Is(err, ErrInfeasiblePoint))
	assert.False(t, errors.Is(err, model.ErrDomain))

	var ie *InfeasibleError
	require.True(t, errors.As(err, &ie))
	assert.Equal(t, model.C, ie.Constant)
}

func TestLogModeRejectsNonPositive(t *testing.T) {
	// κ₀ < 1 drives Λ negative.
	p := model.Params{1, 1, 1, 1, 1}
	k, err := model.Derive(p)
	require.NoError(t, err)
	require.Less(t, k[model.Lambda], 0.0)

	logObj, err := New(DefaultReferences(), LogRelative, nil)
	require.NoError(t, err)
	_, err = logObj.Evaluate(p)
	var ie *InfeasibleError
	require.True(t, errors.As(err, &ie))
	assert.Equal(t, model.Lambda, ie.Constant)

	relObj, err := New(DefaultReferences(), Relative, nil)
	require.NoError(t, err)
	f, err := relObj.Evaluate(p)
	require.NoError(t, err)
	assert.Greater(t, f, 0.0)

	// Λ is not a target here, so the point is feasible again.
	partial, err := New(DefaultReferences(), LogRelative, []model.Name{model.Me, model.AlphaS, model.Mp, model.E})
	require.NoError(t, err)
	_, err = partial.Evaluate(p)
	assert.NoError(t, err)
}

func TestResidualModes(t *testing.T) {
	p := model.DefaultParams
	k, err := model.Derive(p)
	require.NoError(t, err)

	refs := map[model.Name]Reference{}
	for _, n := range model.Names() {
		refs[n] = Reference{Value: k[n]}
	}
	refs[model.Mp] = Reference{Value: k[model.Mp] / 10}

	for _, tt := range []struct {
		mode Mode
		want float64
	}{
		{LogRelative, 1},
		{Relative, 9},
	} {
		o, err := New(NewReferenceSet(refs), tt.mode, nil)
		require.NoError(t, err)
		r := make([]float64, o.Terms())
		require.NoError(t, o.Residuals(p, r))
		for i, n := range o.Targets() {
			if n == model.Mp {
				assert.InDelta(t, tt.want, r[i], 1e-12, tt.mode.String())
			} else {
				assert.Equal(t, 0.0, r[i], "%s in %s mode", n, tt.mode)
			}
		}
	}
}

func TestReport(t *testing.T) {
	o, err := New(DefaultReferences(), LogRelative, []model.Name{model.Me, model.AlphaS, model.Mp, model.E})
	require.NoError(t, err)

	rep := o.Report(model.DefaultParams)
	require.True(t, rep.Feasible)
	assert.Empty(t, rep.Cause)
	f, err := o.Evaluate(model.DefaultParams)
	require.NoError(t, err)
	assert.Equal(t, f, rep.Objective)

	for _, n := range model.Names() {
		e := rep.Entries[n]
		assert.Equal(t, n, e.Name)
		ref, _ := DefaultReferences().Lookup(n)
		assert.Equal(t, ref.Value, e.Reference)
		assert.InDelta(t, e.Computed/e.Reference-1, e.RelErr, 1e-12*math.Max(1, math.Abs(e.RelErr)))
		assert.Equal(t, n >= model.Me, e.Target, n.String())
	}
	assert.GreaterOrEqual(t, rep.MaxAbsRelErr(), math.Abs(rep.Entries[model.Me].RelErr))

	p := model.DefaultParams
	p[model.T0] = 0
	bad := o.Report(p)
	assert.False(t, bad.Feasible)
	assert.True(t, math.IsNaN(bad.Objective))
	assert.Contains(t, bad.Cause, "at c:")
	assert.True(t, math.IsNaN(bad.Entries[model.E].Computed))
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("relative")
	require.NoError(t, err)
	assert.Equal(t, Relative, m)
	m, err = ParseMode("log-relative")
	require.NoError(t, err)
	assert.Equal(t, LogRelative, m)
	assert.Equal(t, "log-relative", m.String())
	_, err = ParseMode("absolute")
	assert.Error(t, err)
}
