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

// Package bdd implements the symbolic packet domain. A Set is a lightweight,
// immutable handle into a single shared binary decision diagram; boolean
// combinators over Sets stand for intersection, union and complement of
// (possibly infinite) sets of packet headers.
//
// The underlying diagram is provided by github.com/dalzilio/rudd, which is
// not safe for concurrent use. All operations on Sets created by the same
// Factory serialize on an internal lock, so Sets may be freely combined from
// concurrent goroutines.
package bdd

import (
	"sync"

	"github.com/dalzilio/rudd"
	"github.com/pkg/errors"
)

// DefaultVarCount is the diagram width used when the caller does not know in
// advance how many auxiliary variables it will allocate. Unused variables
// cost a few words each and do not slow down operations on sets that never
// mention them.
const DefaultVarCount = 1024

// Factory owns the shared decision diagram and hands out variables. All Sets
// derived from the same Factory share structure inside it.
type Factory struct {
	mu      sync.Mutex
	b       *rudd.BDD
	varnum  int
	nextVar int
}

// NewFactory creates a diagram with the given total number of boolean
// variables. Variables are handed out by AllocVars in allocation order.
func NewFactory(varnum int) (*Factory, error) {
	if varnum <= 0 {
		varnum = DefaultVarCount
	}
	b, err := rudd.New(varnum)
	if err != nil {
		return nil, errors.Wrap(err, "initializing decision diagram")
	}
	return &Factory{b: b, varnum: varnum}, nil
}

// VarCount returns the total number of variables in the diagram.
func (f *Factory) VarCount() int {
	return f.varnum
}

// AllocVars reserves n fresh consecutive variables and returns their indexes.
func (f *Factory) AllocVars(n int) ([]int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.nextVar+n > f.varnum {
		return nil, errors.Errorf("out of BDD variables: want %d, %d of %d used",
			n, f.nextVar, f.varnum)
	}
	vars := make([]int, n)
	for i := range vars {
		vars[i] = f.nextVar + i
	}
	f.nextVar += n
	return vars, nil
}

// One returns the full domain: the set of all packets.
func (f *Factory) One() Set {
	f.mu.Lock()
	defer f.mu.Unlock()
	return Set{f: f, n: f.b.True()}
}

// Zero returns the empty set.
func (f *Factory) Zero() Set {
	f.mu.Lock()
	defer f.mu.Unlock()
	return Set{f: f, n: f.b.False()}
}

// Var returns the set where variable i is true.
func (f *Factory) Var(i int) Set {
	f.mu.Lock()
	defer f.mu.Unlock()
	return Set{f: f, n: f.b.Ithvar(i)}
}

// NVar returns the set where variable i is false.
func (f *Factory) NVar(i int) Set {
	f.mu.Lock()
	defer f.mu.Unlock()
	return Set{f: f, n: f.b.NIthvar(i)}
}

// VarSet builds the quantification cube over the given variables, for use
// with Set.Exists.
func (f *Factory) VarSet(vars []int) VarSet {
	f.mu.Lock()
	defer f.mu.Unlock()
	return VarSet{f: f, n: f.b.Makeset(vars)}
}

// VarSet identifies a group of variables to quantify over.
type VarSet struct {
	f *Factory
	n rudd.Node
}

// Set is an immutable symbolic packet set. The zero Set is invalid; obtain
// Sets from a Factory or by combining existing ones.
type Set struct {
	f *Factory
	n rudd.Node
}

// Factory returns the Factory this set belongs to.
func (s Set) Factory() *Factory {
	return s.f
}

// And returns the intersection of s and t.
func (s Set) And(t Set) Set {
	s.f.mu.Lock()
	defer s.f.mu.Unlock()
	return Set{f: s.f, n: s.f.b.Apply(s.n, t.n, rudd.OPand)}
}

// Or returns the union of s and t.
func (s Set) Or(t Set) Set {
	s.f.mu.Lock()
	defer s.f.mu.Unlock()
	return Set{f: s.f, n: s.f.b.Apply(s.n, t.n, rudd.OPor)}
}

// Diff returns the packets in s but not in t.
func (s Set) Diff(t Set) Set {
	s.f.mu.Lock()
	defer s.f.mu.Unlock()
	return Set{f: s.f, n: s.f.b.Apply(s.n, t.n, rudd.OPdiff)}
}

// Not returns the complement of s.
func (s Set) Not() Set {
	s.f.mu.Lock()
	defer s.f.mu.Unlock()
	return Set{f: s.f, n: s.f.b.Not(s.n)}
}

// Exists existentially quantifies the variables in vs out of s: the result
// contains every packet that agrees with some member of s outside vs.
func (s Set) Exists(vs VarSet) Set {
	s.f.mu.Lock()
	defer s.f.mu.Unlock()
	return Set{f: s.f, n: s.f.b.Exist(s.n, vs.n)}
}

// IsZero reports whether s is empty.
func (s Set) IsZero() bool {
	s.f.mu.Lock()
	defer s.f.mu.Unlock()
	return nodeEqual(s.n, s.f.b.False())
}

// IsOne reports whether s is the full domain.
func (s Set) IsOne() bool {
	s.f.mu.Lock()
	defer s.f.mu.Unlock()
	return nodeEqual(s.n, s.f.b.True())
}

// Equal reports whether s and t denote the same set. Canonicity of the
// diagram makes this a constant-time identity check.
func (s Set) Equal(t Set) bool {
	if s.f != t.f {
		return false
	}
	return nodeEqual(s.n, t.n)
}

// errStopAllsat aborts the assignment walk after the first solution.
var errStopAllsat = errors.New("stop after first assignment")

// Example returns one satisfying assignment of s as a variable profile:
// prof[i] is 0 or 1 for a constrained variable, -1 for don't-care. The second
// return is false if s is empty.
func (s Set) Example() ([]int, bool, error) {
	s.f.mu.Lock()
	defer s.f.mu.Unlock()
	if nodeEqual(s.n, s.f.b.False()) {
		return nil, false, nil
	}
	var found []int
	err := s.f.b.Allsat(func(prof []int) error {
		found = append([]int(nil), prof...)
		return errStopAllsat
	}, s.n)
	if err != nil && !errors.Is(err, errStopAllsat) {
		return nil, false, errors.Wrap(err, "enumerating assignments")
	}
	if found == nil {
		return nil, false, nil
	}
	return found, true, nil
}

func nodeEqual(a, b rudd.Node) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
