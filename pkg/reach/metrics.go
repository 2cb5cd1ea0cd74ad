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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	factoryBuildDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "symflow",
		Subsystem: "reach",
		Name:      "snapshot_compile_seconds",
		Help:      "Time to compile a snapshot's predicate caches.",
		Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
	})
	analysisBuilds = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "symflow",
		Subsystem: "reach",
		Name:      "analyses_total",
		Help:      "Number of reachability graphs built.",
	})
	analysisEdges = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "symflow",
		Subsystem: "reach",
		Name:      "analysis_edges",
		Help:      "Edges per reachability graph.",
		Buckets:   prometheus.ExponentialBuckets(8, 4, 10),
	})
)
