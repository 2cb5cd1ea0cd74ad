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
)

// compiledNat is one source-NAT rule lowered into the symbolic domain:
// packets in condition leave with their source address reconstrained to
// poolRange.
type compiledNat struct {
	condition bdd.Set
	poolRange bdd.Set
}

// natForward applies an ordered rule list: the first rule whose condition
// matches rewrites the source address (erase the old value, constrain to the
// pool); packets matching no rule pass unchanged.
func (f *Factory) natForward(nats []compiledNat) Transition {
	srcIPVars := f.srcIPVars
	zero := f.zero
	return func(orig bdd.Set) bdd.Set {
		remaining := orig
		result := zero
		for _, nat := range nats {
			natted := remaining.And(nat.condition).Exists(srcIPVars).And(nat.poolRange)
			result = result.Or(natted)
			remaining = remaining.Diff(nat.condition)
		}
		return result.Or(remaining)
	}
}

// natBackward inverts natForward as a sound over-approximation. A post-NAT
// set may have passed through untouched (it then satisfies no rule's
// condition), or it may have been written by any rule whose pool intersects
// it. The pre-rewrite source is unrecoverable, so the natted branch widens
// by discarding the source-address bits the rule constrained. Packets can
// only be gained by this widening, never lost.
func (f *Factory) natBackward(nats []compiledNat) Transition {
	srcIPVars := f.srcIPVars
	return func(orig bdd.Set) bdd.Set {
		origAnySrc := orig.Exists(srcIPVars)
		result := orig
		for _, nat := range nats {
			result = result.Diff(nat.condition)
		}
		for _, nat := range nats {
			if !orig.And(nat.poolRange).IsZero() {
				// This may be the rule that produced orig.
				result = result.Or(origAnySrc.And(nat.condition))
			}
		}
		return result
	}
}
