// Package agent defines the analysis agent contract, the capability catalog
// the planner matches against, and the built-in detection agents.
package agent

import (
	"context"

	"github.com/anderson-ufrj/cidadao.ai-backend-sub002/internal/types"
)

// Agent is an autonomous analysis unit. Each agent advertises exactly one
// capability from the catalog; the pool instantiates agents lazily and the
// orchestrator drives them through Handle.
type Agent interface {
	// Name returns the unique identifier for this agent.
	Name() string

	// Capability returns the catalog capability this agent fulfills.
	Capability() string

	// Start prepares the agent for execution. Called once by the pool
	// before the first Handle.
	Start(ctx context.Context) error

	// Stop cleanly terminates the agent and releases resources.
	Stop(ctx context.Context) error

	// Handle executes one task attempt. Prior outcomes of the task's
	// prerequisite capabilities are passed in so dependent agents can
	// build on earlier findings. Handle must honor ctx cancellation and
	// return a failed outcome rather than panic on bad input.
	Handle(ctx context.Context, task Task, prior []Outcome) (Outcome, error)

	// SelfAssess scores an outcome this agent produced, in [0, 1]. The
	// orchestrator's quality gate retries attempts scoring below its
	// threshold.
	SelfAssess(outcome Outcome) float64

	// Health reports whether the agent is able to take work.
	Health(ctx context.Context) types.HealthStatus
}

// Factory constructs a fresh agent instance. The pool calls factories
// lazily, on first acquisition of a capability.
type Factory func() (Agent, error)
