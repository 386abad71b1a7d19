package orchestrator

import (
	"sync"
	"time"

	"github.com/anderson-ufrj/cidadao.ai-backend-sub002/internal/agent"
	"github.com/anderson-ufrj/cidadao.ai-backend-sub002/internal/plan"
	"github.com/anderson-ufrj/cidadao.ai-backend-sub002/internal/types"
)

// nodeState tracks one plan node through execution.
type nodeState struct {
	node        *plan.TaskNode
	status      types.TaskStatus
	attempt     int
	outcome     *agent.Outcome
	err         error
	startedAt   *time.Time
	completedAt *time.Time
}

// runState is the thread-safe execution state of one investigation run.
type runState struct {
	mu    sync.Mutex
	graph *plan.Graph
	nodes map[string]*nodeState
}

func newRunState(graph *plan.Graph) *runState {
	nodes := make(map[string]*nodeState, graph.Len())
	for _, node := range graph.Nodes() {
		nodes[node.ID] = &nodeState{node: node, status: types.TaskPending}
	}
	return &runState{graph: graph, nodes: nodes}
}

// readyNodes returns pending nodes whose dependencies have all reached a
// terminal status. Nodes whose dependency failed are normally skipped by the
// failure cascade before they can become ready; optional nodes survive the
// cascade and run with whatever prerequisite outcomes exist.
func (s *runState) readyNodes() []*plan.TaskNode {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ready []*plan.TaskNode
	for _, ns := range s.nodes {
		if ns.status != types.TaskPending {
			continue
		}
		depsDone := true
		for _, dep := range ns.node.DependsOn {
			if !s.nodes[dep].status.IsTerminal() {
				depsDone = false
				break
			}
		}
		if depsDone {
			ready = append(ready, ns.node)
		}
	}
	return ready
}

func (s *runState) markRunning(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ns := s.nodes[id]
	ns.status = types.TaskRunning
	ns.attempt++
	if ns.startedAt == nil {
		now := time.Now()
		ns.startedAt = &now
	}
}

func (s *runState) markSucceeded(id string, outcome agent.Outcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ns := s.nodes[id]
	ns.status = types.TaskSucceeded
	ns.outcome = &outcome
	now := time.Now()
	ns.completedAt = &now
}

// markFailed fails the node and transitively skips its non-optional
// dependents. It returns the IDs of the nodes skipped by the cascade.
func (s *runState) markFailed(id string, outcome *agent.Outcome, err error) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ns := s.nodes[id]
	ns.status = types.TaskFailed
	ns.outcome = outcome
	ns.err = err
	now := time.Now()
	ns.completedAt = &now

	return s.cascadeSkip(id)
}

// cascadeSkip marks pending non-optional dependents of id as skipped,
// transitively. Caller holds s.mu.
func (s *runState) cascadeSkip(id string) []string {
	var skipped []string
	queue := []string{id}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for _, depID := range s.graph.Dependents(current) {
			dep := s.nodes[depID]
			if dep.status != types.TaskPending || dep.node.Optional {
				continue
			}
			dep.status = types.TaskSkipped
			now := time.Now()
			dep.completedAt = &now
			skipped = append(skipped, depID)
			queue = append(queue, depID)
		}
	}
	return skipped
}

// priorOutcomes returns the outcomes of the node's succeeded dependencies.
func (s *runState) priorOutcomes(id string) []agent.Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()

	var prior []agent.Outcome
	node := s.nodes[id].node
	for _, dep := range node.DependsOn {
		if ns := s.nodes[dep]; ns.status == types.TaskSucceeded && ns.outcome != nil {
			prior = append(prior, *ns.outcome)
		}
	}
	return prior
}

// isComplete reports whether every node reached a terminal status.
func (s *runState) isComplete() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ns := range s.nodes {
		if !ns.status.IsTerminal() {
			return false
		}
	}
	return true
}

func (s *runState) attemptOf(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nodes[id].attempt
}

// snapshot returns a copy of all node states for aggregation.
func (s *runState) snapshot() map[string]nodeState {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]nodeState, len(s.nodes))
	for id, ns := range s.nodes {
		out[id] = *ns
	}
	return out
}

// succeededCount counts nodes that finished successfully.
func (s *runState) succeededCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, ns := range s.nodes {
		if ns.status == types.TaskSucceeded {
			n++
		}
	}
	return n
}
