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

import "github.com/pkg/errors"

var (
	// ErrLoopNotSupported is returned when a query requests the Loop
	// disposition. Single-pass analysis cannot observe loops.
	ErrLoopNotSupported = errors.New("disposition Loop is not supported")

	// ErrCycle is returned when the reachability graph contains a cycle. The
	// solver requires an acyclic graph and produces no partial result.
	ErrCycle = errors.New("reachability graph contains a cycle")
)
