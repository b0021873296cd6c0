// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package objective

import (
	"maps"

	"github.com/curioloop/rotfit/model"
)

// Reference is an observed value with its standard uncertainty (zero when exact or unknown).
type Reference struct {
	Value       float64 `yaml:"value" json:"value" mapstructure:"value"`
	Uncertainty float64 `yaml:"uncertainty,omitempty" json:"uncertainty,omitempty" mapstructure:"uncertainty"`
}

// ReferenceSet maps constants to their observed values. It is read-only once built.
type ReferenceSet struct {
	refs map[model.Name]Reference
}

// NewReferenceSet copies refs into a new set.
func NewReferenceSet(refs map[model.Name]Reference) ReferenceSet {
	return ReferenceSet{refs: maps.Clone(refs)}
}

func (s ReferenceSet) Lookup(n model.Name) (Reference, bool) {
	r, ok := s.refs[n]
	return r, ok
}

func (s ReferenceSet) Len() int {
	return len(s.refs)
}

// Without returns a copy of the set lacking the given constants.
func (s ReferenceSet) Without(names ...model.Name) ReferenceSet {
	refs := maps.Clone(s.refs)
	for _, n := range names {
		delete(refs, n)
	}
	return ReferenceSet{refs: refs}
}

// DefaultReferences returns CODATA 2018 values (Planck 2018 for Λ, PDG for αₛ).
func DefaultReferences() ReferenceSet {
	return NewReferenceSet(map[model.Name]Reference{
		model.C:      {Value: 2.99792458e8},
		model.Hbar:   {Value: 1.054571817e-34},
		model.G:      {Value: 6.67430e-11, Uncertainty: 0.00015e-11},
		model.Alpha:  {Value: 7.2973525693e-3, Uncertainty: 0.0000000011e-3},
		model.Lambda: {Value: 1.1056e-52},
		model.Me:     {Value: 9.1093837015e-31, Uncertainty: 0.0000000028e-31},
		model.AlphaS: {Value: 0.1181, Uncertainty: 0.0011},
		model.Mp:     {Value: 1.67262192369e-27, Uncertainty: 0.00000000051e-27},
		model.E:      {Value: 1.602176634e-19},
	})
}

// ReferencesFrom builds a reference set that k matches exactly.
func ReferencesFrom(k model.ConstantSet) ReferenceSet {
	refs := make(map[model.Name]Reference, model.NumConstants)
	for _, n := range model.Names() {
		refs[n] = Reference{Value: k.Get(n)}
	}
	return ReferenceSet{refs: refs}
}
