// Copyright 2024 Symflow Contributors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//   http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package bdd

import (
	"github.com/pkg/errors"
)

// Integer is a bounded unsigned integer encoded over consecutive diagram
// variables, most significant bit first. Predicates over an Integer are
// ordinary Sets and compose with everything else in the domain.
type Integer struct {
	f    *Factory
	vars []int
}

// NewInteger allocates a fresh Integer of the given bit width.
func NewInteger(f *Factory, bits int) (Integer, error) {
	if bits <= 0 || bits > 63 {
		return Integer{}, errors.Errorf("unsupported integer width %d", bits)
	}
	vars, err := f.AllocVars(bits)
	if err != nil {
		return Integer{}, err
	}
	return Integer{f: f, vars: vars}, nil
}

// Factory returns the factory the integer's variables live in.
func (v Integer) Factory() *Factory {
	return v.f
}

// Bits returns the width of the integer.
func (v Integer) Bits() int {
	return len(v.vars)
}

// Max returns the largest representable value.
func (v Integer) Max() uint64 {
	return 1<<uint(len(v.vars)) - 1
}

// VarSet returns the quantification cube covering all bits of the integer.
func (v Integer) VarSet() VarSet {
	return v.f.VarSet(v.vars)
}

func (v Integer) bit(i int, one bool) Set {
	if one {
		return v.f.Var(v.vars[i])
	}
	return v.f.NVar(v.vars[i])
}

// Value returns the set where the integer equals val exactly.
func (v Integer) Value(val uint64) Set {
	res := v.f.One()
	for i := 0; i < len(v.vars); i++ {
		bit := val&(1<<uint(len(v.vars)-1-i)) != 0
		res = res.And(v.bit(i, bit))
	}
	return res
}

// Geq returns the set where the integer is >= val.
func (v Integer) Geq(val uint64) Set {
	if val == 0 {
		return v.f.One()
	}
	// Walk the bits from least to most significant, folding up the
	// comparison: acc holds ">= val restricted to the suffix seen so far".
	acc := v.f.One()
	for i := len(v.vars) - 1; i >= 0; i-- {
		one := v.bit(i, true)
		if val&(1<<uint(len(v.vars)-1-i)) != 0 {
			acc = one.And(acc)
		} else {
			acc = one.Or(acc)
		}
	}
	return acc
}

// Leq returns the set where the integer is <= val.
func (v Integer) Leq(val uint64) Set {
	if val >= v.Max() {
		return v.f.One()
	}
	acc := v.f.One()
	for i := len(v.vars) - 1; i >= 0; i-- {
		zero := v.bit(i, false)
		if val&(1<<uint(len(v.vars)-1-i)) != 0 {
			acc = zero.Or(acc)
		} else {
			acc = zero.And(acc)
		}
	}
	return acc
}

// Range returns the set where lo <= integer <= hi.
func (v Integer) Range(lo, hi uint64) Set {
	if lo > hi {
		return v.f.Zero()
	}
	return v.Geq(lo).And(v.Leq(hi))
}

// ValueFromExample decodes the integer from a variable profile produced by
// Set.Example. Don't-care bits decode as zero.
func (v Integer) ValueFromExample(prof []int) uint64 {
	var val uint64
	for i, idx := range v.vars {
		if idx < len(prof) && prof[idx] == 1 {
			val |= 1 << uint(len(v.vars)-1-i)
		}
	}
	return val
}
