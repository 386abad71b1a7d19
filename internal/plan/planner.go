package plan

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/anderson-ufrj/cidadao.ai-backend-sub002/internal/agent"
	"github.com/anderson-ufrj/cidadao.ai-backend-sub002/internal/procurement"
	"github.com/anderson-ufrj/cidadao.ai-backend-sub002/internal/types"
)

// Request describes what the caller wants investigated.
type Request struct {
	// Prompt is the free-text intent ("investigate cartel behavior in
	// ministry X road contracts").
	Prompt string `json:"prompt"`

	// Query scopes the data fetch.
	Query procurement.Query `json:"query"`

	// Depth controls planning breadth. Defaults to standard.
	Depth types.Depth `json:"depth,omitempty"`
}

// Planner selects capabilities for a request and arranges them into a DAG.
type Planner struct {
	catalog *agent.Catalog
	logger  *slog.Logger
}

// Option is a functional option for configuring Planner.
type Option func(*Planner)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Planner) {
		p.logger = logger
	}
}

// NewPlanner creates a planner over the capability catalog.
func NewPlanner(catalog *agent.Catalog, opts ...Option) *Planner {
	p := &Planner{catalog: catalog, logger: slog.Default()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Plan matches the request against the catalog and returns a validated task
// graph. A capability is selected when a prompt keyword matches or the
// request depth is among its defaults, and the query can supply at least one
// of its required record kinds. Prerequisite edges are kept only between
// selected capabilities; a missing prerequisite is omitted, never invented.
func (p *Planner) Plan(ctx context.Context, req Request) (*Graph, error) {
	depth := req.Depth
	if depth == "" {
		depth = types.DepthStandard
	}
	if !depth.IsValid() {
		return nil, types.NewError(types.PLANNING_NO_CAPABILITY,
			fmt.Sprintf("unknown investigation depth %q", depth))
	}

	prompt := strings.ToLower(req.Prompt)
	selected := make(map[string]agent.Capability)
	unsatisfied := make([]string, 0)

	for _, capability := range p.catalog.All() {
		if !p.matches(capability, prompt, depth) {
			continue
		}
		if !kindsSatisfiable(capability, req.Query) {
			unsatisfied = append(unsatisfied, capability.Name)
			continue
		}
		selected[capability.Name] = capability
	}

	if len(selected) == 0 {
		if len(unsatisfied) > 0 {
			return nil, types.NewError(types.PLANNING_INPUT_UNSATISFIED,
				fmt.Sprintf("matched capabilities %v cannot run: query excludes their required record kinds", unsatisfied))
		}
		return nil, types.NewError(types.PLANNING_NO_CAPABILITY,
			"no capability matches the request")
	}

	var nodes []*TaskNode
	for _, name := range p.catalog.Names() {
		capability, ok := selected[name]
		if !ok {
			continue
		}
		var deps []string
		for _, prereq := range capability.Prerequisites {
			if _, ok := selected[prereq]; ok {
				deps = append(deps, prereq)
			}
		}
		nodes = append(nodes, &TaskNode{
			ID:         capability.Name,
			Capability: capability.Name,
			DependsOn:  deps,
			Importance: capability.Importance,
			Optional:   capability.Optional,
		})
	}

	graph, err := NewGraph(nodes)
	if err != nil {
		return nil, err
	}
	p.logger.DebugContext(ctx, "planned investigation",
		"depth", depth,
		"capabilities", len(nodes),
	)
	return graph, nil
}

func (p *Planner) matches(capability agent.Capability, prompt string, depth types.Depth) bool {
	for _, d := range capability.Depths {
		if d == depth {
			return true
		}
	}
	if prompt == "" {
		return false
	}
	for _, keyword := range capability.Keywords {
		if strings.Contains(prompt, strings.ToLower(keyword)) {
			return true
		}
	}
	return false
}

// kindsSatisfiable reports whether the query can deliver at least one record
// kind the capability needs.
func kindsSatisfiable(capability agent.Capability, query procurement.Query) bool {
	if len(capability.RequiredKinds) == 0 {
		return true
	}
	for _, kind := range capability.RequiredKinds {
		if query.WantsKind(kind) {
			return true
		}
	}
	return false
}
