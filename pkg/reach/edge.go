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
	"github.com/symflow/symflow/pkg/bdd"
	"github.com/symflow/symflow/pkg/reach/state"
)

// Transition transforms a symbolic packet set across an edge.
type Transition func(bdd.Set) bdd.Set

// Edge connects two journey states. Forward transforms a set traveling from
// Pre toward Post; Backward transforms a set traveling from Post toward Pre.
// The two directions differ whenever the edge rewrites packets (NAT) or
// erases per-device tracking state, because such transforms have no exact
// inverse.
type Edge struct {
	Pre  state.State
	Post state.State

	forward  Transition
	backward Transition
}

func newEdge(pre, post state.State, forward, backward Transition) Edge {
	return Edge{Pre: pre, Post: post, forward: forward, backward: backward}
}

// newConstraintEdge builds an edge that intersects with the same set in both
// directions.
func newConstraintEdge(pre, post state.State, constraint bdd.Set) Edge {
	and := constraint.And
	return Edge{Pre: pre, Post: post, forward: and, backward: and}
}

// mergeParallel combines two edges between the same state pair into one
// whose traversals take the union of both, in either direction.
func mergeParallel(a, b Edge) Edge {
	return Edge{
		Pre:  a.Pre,
		Post: a.Post,
		forward: func(s bdd.Set) bdd.Set {
			return a.forward(s).Or(b.forward(s))
		},
		backward: func(s bdd.Set) bdd.Set {
			return a.backward(s).Or(b.backward(s))
		},
	}
}

// TraverseForward propagates s from Pre to Post.
func (e Edge) TraverseForward(s bdd.Set) bdd.Set {
	return e.forward(s)
}

// TraverseBackward propagates s from Post to Pre.
func (e Edge) TraverseBackward(s bdd.Set) bdd.Set {
	return e.backward(s)
}
