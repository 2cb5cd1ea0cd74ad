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

package reach

import (
	"sort"

	"github.com/pkg/errors"

	"github.com/symflow/symflow/pkg/bdd"
	"github.com/symflow/symflow/pkg/reach/state"
)

// Analysis is the solver over one reachability graph. It computes, per
// origin, the set of packets that can travel from the origin to the Query
// sink, honoring every edge transform. The graph must be acyclic; a cycle
// is detected up front and surfaced as ErrCycle with no partial result.
//
// All methods are read-only; an Analysis may be queried concurrently.
type Analysis struct {
	one  bdd.Set
	zero bdd.Set

	roots         map[state.State]bdd.Set
	rootLocations map[state.State]Location
	edges         map[state.State]map[state.State]Edge
}

func newAnalysis(
	one, zero bdd.Set,
	roots map[state.State]bdd.Set,
	rootLocations map[state.State]Location,
	edges map[state.State]map[state.State]Edge,
) *Analysis {
	return &Analysis{
		one:           one,
		zero:          zero,
		roots:         roots,
		rootLocations: rootLocations,
		edges:         edges,
	}
}

// Edges exposes the frozen edge map. Callers must not modify it.
func (a *Analysis) Edges() map[state.State]map[state.State]Edge {
	return a.edges
}

// RootStates returns the origin states of the query in sorted order.
func (a *Analysis) RootStates() []state.State {
	roots := make([]state.State, 0, len(a.roots))
	for root := range a.roots {
		roots = append(roots, root)
	}
	sortStates(roots)
	return roots
}

// ReachableSets runs the backward sweep and returns, per origin location,
// the symbolic set of packets that reach the Query sink. An empty set is a
// first-class answer: it proves unreachability.
func (a *Analysis) ReachableSets() (map[Location]bdd.Set, error) {
	byState, err := a.reachableByState()
	if err != nil {
		return nil, err
	}
	out := make(map[Location]bdd.Set, len(a.roots))
	for root := range a.roots {
		out[a.rootLocations[root]] = byState[root]
	}
	return out, nil
}

// reachableByState seeds the Query sink with the full domain and pulls it
// backward through every edge in reverse topological order, so each state is
// finished before any of its predecessors is computed.
func (a *Analysis) reachableByState() (map[state.State]bdd.Set, error) {
	order, err := a.topologicalOrder()
	if err != nil {
		return nil, err
	}

	reach := make(map[state.State]bdd.Set, len(order))
	for _, s := range order {
		reach[s] = a.zero
	}
	reach[state.Query{}] = a.one

	for i := len(order) - 1; i >= 0; i-- {
		pre := order[i]
		for post, edge := range a.edges[pre] {
			postSet, ok := reach[post]
			if !ok || postSet.IsZero() {
				continue
			}
			reach[pre] = reach[pre].Or(edge.TraverseBackward(postSet))
		}
	}
	return reach, nil
}

// ForwardReachableSets pushes the origin sets forward through the graph and
// returns the set arriving at every state. This is the effective, post-NAT
// view of the traffic: at states past a rewriting edge the sets describe the
// transformed packets.
func (a *Analysis) ForwardReachableSets() (map[state.State]bdd.Set, error) {
	order, err := a.topologicalOrder()
	if err != nil {
		return nil, err
	}

	reach := make(map[state.State]bdd.Set, len(order))
	for _, s := range order {
		reach[s] = a.zero
	}
	for root := range a.roots {
		reach[root] = a.one
	}

	for _, pre := range order {
		preSet := reach[pre]
		if preSet.IsZero() {
			continue
		}
		for post, edge := range a.edges[pre] {
			reach[post] = reach[post].Or(edge.TraverseForward(preSet))
		}
	}
	return reach, nil
}

// topologicalOrder sorts all graph states so that every edge points from an
// earlier to a later position. Exploration order is fixed by sorting states
// on their string form, keeping the output independent of map iteration.
func (a *Analysis) topologicalOrder() ([]state.State, error) {
	all := make(map[state.State]struct{}, len(a.edges))
	for pre, posts := range a.edges {
		all[pre] = struct{}{}
		for post := range posts {
			all[post] = struct{}{}
		}
	}
	states := make([]state.State, 0, len(all))
	for s := range all {
		states = append(states, s)
	}
	sortStates(states)

	const (
		white = 0 // unvisited
		gray  = 1 // on the current path
		black = 2 // finished
	)
	color := make(map[state.State]int, len(states))
	order := make([]state.State, 0, len(states))

	// Iterative DFS; postorder reversed is a topological order. A gray
	// successor is a back edge, hence a cycle.
	type frame struct {
		s    state.State
		next []state.State
	}
	for _, start := range states {
		if color[start] != white {
			continue
		}
		stack := []frame{{s: start, next: a.sortedSuccessors(start)}}
		color[start] = gray
		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			if len(top.next) == 0 {
				color[top.s] = black
				order = append(order, top.s)
				stack = stack[:len(stack)-1]
				continue
			}
			succ := top.next[0]
			top.next = top.next[1:]
			switch color[succ] {
			case gray:
				return nil, errors.Wrapf(ErrCycle, "at %v", succ)
			case white:
				color[succ] = gray
				stack = append(stack, frame{s: succ, next: a.sortedSuccessors(succ)})
			}
		}
	}

	// Reverse the postorder in place.
	for i, j := 0, len(order)-1; i < j; i, j = i+1, j-1 {
		order[i], order[j] = order[j], order[i]
	}
	return order, nil
}

func (a *Analysis) sortedSuccessors(s state.State) []state.State {
	posts := a.edges[s]
	if len(posts) == 0 {
		return nil
	}
	succ := make([]state.State, 0, len(posts))
	for post := range posts {
		succ = append(succ, post)
	}
	sortStates(succ)
	return succ
}

func sortStates(states []state.State) {
	sort.Slice(states, func(i, j int) bool {
		return states[i].String() < states[j].String()
	})
}
