// Package plan turns an investigation request into a validated DAG of
// capability tasks. The planner matches request keywords and depth against
// the capability catalog; edges come from catalog prerequisites restricted to
// the matched set.
package plan

import (
	"fmt"
	"sort"

	"github.com/anderson-ufrj/cidadao.ai-backend-sub002/internal/types"
)

// TaskNode is one planned unit of work.
type TaskNode struct {
	ID         string         `json:"id"`
	Capability string         `json:"capability"`
	DependsOn  []string       `json:"depends_on,omitempty"`
	Importance float64        `json:"importance"`
	Optional   bool           `json:"optional,omitempty"`
	Payload    map[string]any `json:"payload,omitempty"`
}

// Graph is a validated DAG of task nodes.
type Graph struct {
	nodes map[string]*TaskNode
	order []string
}

// NewGraph builds a graph from nodes and validates it: unique IDs, resolvable
// dependencies, no cycles.
func NewGraph(nodes []*TaskNode) (*Graph, error) {
	g := &Graph{nodes: make(map[string]*TaskNode, len(nodes))}
	for _, node := range nodes {
		if node.ID == "" {
			return nil, types.NewError(types.PLANNING_CYCLE_DETECTED, "node with empty id")
		}
		if _, dup := g.nodes[node.ID]; dup {
			return nil, types.NewError(types.PLANNING_CYCLE_DETECTED,
				fmt.Sprintf("duplicate node id %q", node.ID))
		}
		g.nodes[node.ID] = node
		g.order = append(g.order, node.ID)
	}

	for _, node := range g.nodes {
		for _, dep := range node.DependsOn {
			if _, ok := g.nodes[dep]; !ok {
				return nil, types.NewError(types.PLANNING_CYCLE_DETECTED,
					fmt.Sprintf("node %q depends on unknown node %q", node.ID, dep))
			}
		}
	}

	if cycle := g.findCycle(); len(cycle) > 0 {
		return nil, types.NewError(types.PLANNING_CYCLE_DETECTED,
			fmt.Sprintf("dependency cycle: %v", cycle))
	}
	return g, nil
}

// Node returns the node by ID.
func (g *Graph) Node(id string) (*TaskNode, bool) {
	node, ok := g.nodes[id]
	return node, ok
}

// Nodes returns all nodes in insertion order.
func (g *Graph) Nodes() []*TaskNode {
	out := make([]*TaskNode, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, g.nodes[id])
	}
	return out
}

// Len is the node count.
func (g *Graph) Len() int {
	return len(g.nodes)
}

// Dependents returns the IDs of nodes that depend (directly) on the given
// node, sorted for determinism.
func (g *Graph) Dependents(id string) []string {
	var out []string
	for _, node := range g.nodes {
		for _, dep := range node.DependsOn {
			if dep == id {
				out = append(out, node.ID)
				break
			}
		}
	}
	sort.Strings(out)
	return out
}

// TopologicalOrder returns node IDs in a valid execution order. The graph is
// validated at construction, so this cannot fail.
func (g *Graph) TopologicalOrder() []string {
	indegree := make(map[string]int, len(g.nodes))
	for _, node := range g.nodes {
		indegree[node.ID] += 0
		for range node.DependsOn {
			indegree[node.ID]++
		}
	}

	var ready []string
	for _, id := range g.order {
		if indegree[id] == 0 {
			ready = append(ready, id)
		}
	}
	sort.Strings(ready)

	var out []string
	for len(ready) > 0 {
		id := ready[0]
		ready = ready[1:]
		out = append(out, id)
		for _, dependent := range g.Dependents(id) {
			indegree[dependent]--
			if indegree[dependent] == 0 {
				ready = append(ready, dependent)
				sort.Strings(ready)
			}
		}
	}
	return out
}

// findCycle runs a three-color DFS and returns one cycle if any exists.
func (g *Graph) findCycle() []string {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(g.nodes))

	var cycle []string
	var visit func(id string, stack []string) bool
	visit = func(id string, stack []string) bool {
		color[id] = gray
		stack = append(stack, id)
		for _, dep := range g.nodes[id].DependsOn {
			switch color[dep] {
			case gray:
				cycle = append(append([]string(nil), stack...), dep)
				return true
			case white:
				if visit(dep, stack) {
					return true
				}
			}
		}
		color[id] = black
		return false
	}

	for _, id := range g.order {
		if color[id] == white && visit(id, nil) {
			return cycle
		}
	}
	return nil
}
