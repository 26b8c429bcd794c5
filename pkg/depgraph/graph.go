// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package depgraph builds the DependencyGraph the Solutioning orchestrator
// produces once per run: a DAG over story ids, its critical path, its
// bottleneck nodes, and groups of stories that can proceed in parallel.
package depgraph

import (
	"sort"

	"github.com/bmad-forge/bmad-core/internal/errs"
)

const component = "depgraph"

// EdgeType distinguishes a hard dependency (must complete first) from a
// soft one (preferred order, not enforced).
type EdgeType string

const (
	EdgeHard EdgeType = "hard"
	EdgeSoft EdgeType = "soft"
)

// Edge is one directed dependency: From must (if Blocking) or should (if
// not) complete before To.
type Edge struct {
	From      string   `json:"from"`
	To        string   `json:"to"`
	Type      EdgeType `json:"type"`
	Blocking  bool     `json:"blocking"`
	Reasoning string   `json:"reasoning,omitempty"`
}

// defaultBottleneckThreshold is the default blocking out-degree a node
// needs to be reported as a bottleneck.
const defaultBottleneckThreshold = 4

// Graph is the nodes-and-edges input to Build.
type Graph struct {
	Nodes []string
	Edges []Edge
}

// DependencyGraph is the built, analyzed graph: the Data Model's
// DependencyGraph entity.
type DependencyGraph struct {
	Nodes          []string   `json:"nodes"`
	Edges          []Edge     `json:"edges"`
	CriticalPath   []string   `json:"critical_path"`
	Bottlenecks    []string   `json:"bottlenecks"`
	Parallelizable [][]string `json:"parallelizable"`
}

// BuildOptions configures Build.
type BuildOptions struct {
	// BottleneckThreshold is the out-degree floor for bottleneck detection.
	// Zero uses the default of 4.
	BottleneckThreshold int
}

// Build validates g as a DAG and computes its critical path, bottlenecks,
// and parallelizable groups. Every edge endpoint must name a known node.
func Build(g Graph, opts BuildOptions) (*DependencyGraph, error) {
	threshold := opts.BottleneckThreshold
	if threshold <= 0 {
		threshold = defaultBottleneckThreshold
	}

	nodeSet := make(map[string]bool, len(g.Nodes))
	for _, n := range g.Nodes {
		nodeSet[n] = true
	}
	for _, e := range g.Edges {
		if !nodeSet[e.From] {
			return nil, errs.Validationf(component, "Build", "edge references unknown node %q", e.From)
		}
		if !nodeSet[e.To] {
			return nil, errs.Validationf(component, "Build", "edge references unknown node %q", e.To)
		}
	}

	order, err := topologicalSort(g.Nodes, g.Edges)
	if err != nil {
		return nil, err
	}

	return &DependencyGraph{
		Nodes:          g.Nodes,
		Edges:          g.Edges,
		CriticalPath:   criticalPath(g.Nodes, g.Edges, order),
		Bottlenecks:    bottlenecks(g.Nodes, g.Edges, threshold),
		Parallelizable: parallelizableGroups(g.Nodes, g.Edges, order),
	}, nil
}

// topologicalSort runs Kahn's algorithm over every edge (hard and soft
// alike — the DAG invariant binds the whole graph, not just blocking
// edges). Returns a Validation error if the graph contains a cycle; the
// error does not name the nodes on the cycle.
func topologicalSort(nodes []string, edges []Edge) ([]string, error) {
	inDegree := make(map[string]int, len(nodes))
	adj := make(map[string][]string, len(nodes))
	for _, n := range nodes {
		inDegree[n] = 0
	}
	for _, e := range edges {
		adj[e.From] = append(adj[e.From], e.To)
		inDegree[e.To]++
	}

	// Deterministic traversal: process the ready queue in a fixed node
	// order rather than map iteration order.
	var queue []string
	for _, n := range nodes {
		if inDegree[n] == 0 {
			queue = append(queue, n)
		}
	}

	order := make([]string, 0, len(nodes))
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		order = append(order, n)

		neighbors := append([]string(nil), adj[n]...)
		sort.Strings(neighbors)
		for _, m := range neighbors {
			inDegree[m]--
			if inDegree[m] == 0 {
				queue = append(queue, m)
			}
		}
	}

	if len(order) != len(nodes) {
		return nil, errs.Validationf(component, "topologicalSort", "dependency graph contains a cycle")
	}
	return order, nil
}

// criticalPath returns the longest chain of blocking dependencies, walked
// in topological order via a longest-path dynamic program. Non-blocking
// (advisory) edges don't extend the critical path.
func criticalPath(nodes []string, edges []Edge, order []string) []string {
	blockingFrom := make(map[string][]string)
	for _, e := range edges {
		if e.Blocking {
			blockingFrom[e.From] = append(blockingFrom[e.From], e.To)
		}
	}

	length := make(map[string]int, len(nodes))
	next := make(map[string]string, len(nodes))
	for i := len(order) - 1; i >= 0; i-- {
		n := order[i]
		best := 0
		var bestNext string
		for _, m := range blockingFrom[n] {
			if length[m]+1 > best {
				best = length[m] + 1
				bestNext = m
			}
		}
		length[n] = best
		if best > 0 {
			next[n] = bestNext
		}
	}

	var start string
	bestLen := -1
	for _, n := range order {
		if length[n] > bestLen {
			bestLen = length[n]
			start = n
		}
	}
	if start == "" {
		return nil
	}

	path := []string{start}
	for {
		m, ok := next[path[len(path)-1]]
		if !ok {
			break
		}
		path = append(path, m)
	}
	return path
}

// bottlenecks returns every node whose blocking out-degree meets or
// exceeds threshold, in node order.
func bottlenecks(nodes []string, edges []Edge, threshold int) []string {
	outDegree := make(map[string]int, len(nodes))
	for _, e := range edges {
		if e.Blocking {
			outDegree[e.From]++
		}
	}

	var out []string
	for _, n := range nodes {
		if outDegree[n] >= threshold {
			out = append(out, n)
		}
	}
	return out
}

// parallelizableGroups layers nodes by dependency depth (the length of
// the longest chain of any kind of edge ending at that node): every node
// in the same layer has no path to or from any other node in that layer,
// so they can proceed concurrently.
func parallelizableGroups(nodes []string, edges []Edge, order []string) [][]string {
	predecessors := make(map[string][]string)
	for _, e := range edges {
		predecessors[e.To] = append(predecessors[e.To], e.From)
	}

	depth := make(map[string]int, len(nodes))
	for _, n := range order {
		maxPred := -1
		for _, p := range predecessors[n] {
			if depth[p] > maxPred {
				maxPred = depth[p]
			}
		}
		depth[n] = maxPred + 1
	}

	layers := make(map[int][]string)
	maxDepth := 0
	for _, n := range nodes {
		layers[depth[n]] = append(layers[depth[n]], n)
		if depth[n] > maxDepth {
			maxDepth = depth[n]
		}
	}

	groups := make([][]string, 0, maxDepth+1)
	for d := 0; d <= maxDepth; d++ {
		group := layers[d]
		if len(group) == 0 {
			continue
		}
		sort.Strings(group)
		groups = append(groups, group)
	}
	return groups
}
