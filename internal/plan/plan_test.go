package plan

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anderson-ufrj/cidadao.ai-backend-sub002/internal/agent"
	"github.com/anderson-ufrj/cidadao.ai-backend-sub002/internal/procurement"
	"github.com/anderson-ufrj/cidadao.ai-backend-sub002/internal/types"
)

func testPlanner(t *testing.T) *Planner {
	t.Helper()
	catalog, err := agent.DefaultCatalog()
	require.NoError(t, err)
	return NewPlanner(catalog)
}

func TestPlan_QuickDepthIsStatisticalOnly(t *testing.T) {
	p := testPlanner(t)

	graph, err := p.Plan(context.Background(), Request{Depth: types.DepthQuick})
	require.NoError(t, err)

	require.Equal(t, 1, graph.Len())
	node := graph.Nodes()[0]
	assert.Equal(t, agent.CapabilityStatistical, node.Capability)
	assert.Empty(t, node.DependsOn)
}

func TestPlan_QuickDepthKeywordAddsCapability(t *testing.T) {
	p := testPlanner(t)

	graph, err := p.Plan(context.Background(), Request{
		Depth:  types.DepthQuick,
		Prompt: "investigar cartel em licitacoes de obras",
	})
	require.NoError(t, err)

	_, hasCartel := graph.Node(agent.CapabilityCartel)
	assert.True(t, hasCartel)
	_, hasStatistical := graph.Node(agent.CapabilityStatistical)
	assert.True(t, hasStatistical)
}

func TestPlan_DeepIncludesReportWithPrunedPrerequisites(t *testing.T) {
	p := testPlanner(t)

	graph, err := p.Plan(context.Background(), Request{Depth: types.DepthDeep})
	require.NoError(t, err)

	report, ok := graph.Node(agent.CapabilityReport)
	require.True(t, ok)
	assert.True(t, report.Optional)
	// Every selected prerequisite becomes an edge.
	assert.ElementsMatch(t, []string{
		agent.CapabilityStatistical,
		agent.CapabilitySpectral,
		agent.CapabilityCartel,
		agent.CapabilityTemporal,
		agent.CapabilityStructuring,
		agent.CapabilityLegal,
	}, report.DependsOn)

	// Report runs last in any topological order.
	order := graph.TopologicalOrder()
	assert.Equal(t, agent.CapabilityReport, order[len(order)-1])
}

func TestPlan_MissingPrerequisiteOmittedNotInvented(t *testing.T) {
	p := testPlanner(t)

	// Bids excluded from the query: cartel-detection cannot run, and the
	// report node must not keep an edge to it.
	graph, err := p.Plan(context.Background(), Request{
		Depth: types.DepthDeep,
		Query: procurement.Query{Kinds: []string{"contracts", "payments"}},
	})
	require.NoError(t, err)

	_, hasCartel := graph.Node(agent.CapabilityCartel)
	assert.False(t, hasCartel)

	report, ok := graph.Node(agent.CapabilityReport)
	require.True(t, ok)
	assert.NotContains(t, report.DependsOn, agent.CapabilityCartel)
}

func TestPlan_NoMatchIsPlanningError(t *testing.T) {
	p := testPlanner(t)

	_, err := p.Plan(context.Background(), Request{Depth: "bogus"})
	require.Error(t, err)

	var engineErr *types.EngineError
	require.ErrorAs(t, err, &engineErr)
	assert.Equal(t, types.PLANNING_NO_CAPABILITY, engineErr.Code)
}

func TestPlan_UnsatisfiableCapabilityDroppedWhenOthersRemain(t *testing.T) {
	p := testPlanner(t)

	// Keyword matches cartel-detection but the query excludes bids;
	// statistical-analysis still runs on quick depth, so the plan
	// proceeds without the cartel node.
	graph, err := p.Plan(context.Background(), Request{
		Depth:  types.DepthQuick,
		Prompt: "rodizio",
		Query:  procurement.Query{Kinds: []string{"payments"}},
	})
	require.NoError(t, err)

	_, hasCartel := graph.Node(agent.CapabilityCartel)
	assert.False(t, hasCartel)
	_, hasStatistical := graph.Node(agent.CapabilityStatistical)
	assert.True(t, hasStatistical)
}

func TestPlan_KindFilterBlocksEverything(t *testing.T) {
	catalog, err := agent.DefaultCatalog()
	require.NoError(t, err)
	p := NewPlanner(catalog)

	// Quick depth selects only statistical-analysis, which needs
	// contracts or payments; a bids-only query cannot satisfy it.
	_, err = p.Plan(context.Background(), Request{
		Depth: types.DepthQuick,
		Query: procurement.Query{Kinds: []string{"bids"}},
	})
	require.Error(t, err)

	var engineErr *types.EngineError
	require.ErrorAs(t, err, &engineErr)
	assert.Equal(t, types.PLANNING_INPUT_UNSATISFIED, engineErr.Code)
}

func TestGraph_CycleDetection(t *testing.T) {
	_, err := NewGraph([]*TaskNode{
		{ID: "a", Capability: "a", DependsOn: []string{"c"}},
		{ID: "b", Capability: "b", DependsOn: []string{"a"}},
		{ID: "c", Capability: "c", DependsOn: []string{"b"}},
	})
	require.Error(t, err)

	var engineErr *types.EngineError
	require.ErrorAs(t, err, &engineErr)
	assert.Equal(t, types.PLANNING_CYCLE_DETECTED, engineErr.Code)
}

func TestGraph_UnknownDependencyRejected(t *testing.T) {
	_, err := NewGraph([]*TaskNode{
		{ID: "a", Capability: "a", DependsOn: []string{"ghost"}},
	})
	require.Error(t, err)
}

func TestGraph_TopologicalOrderRespectsDependencies(t *testing.T) {
	graph, err := NewGraph([]*TaskNode{
		{ID: "fetch", Capability: "fetch"},
		{ID: "analyze", Capability: "analyze", DependsOn: []string{"fetch"}},
		{ID: "report", Capability: "report", DependsOn: []string{"analyze", "fetch"}},
	})
	require.NoError(t, err)

	order := graph.TopologicalOrder()
	require.Len(t, order, 3)

	pos := make(map[string]int)
	for i, id := range order {
		pos[id] = i
	}
	assert.Less(t, pos["fetch"], pos["analyze"])
	assert.Less(t, pos["analyze"], pos["report"])
}

func TestGraph_Dependents(t *testing.T) {
	graph, err := NewGraph([]*TaskNode{
		{ID: "a", Capability: "a"},
		{ID: "b", Capability: "b", DependsOn: []string{"a"}},
		{ID: "c", Capability: "c", DependsOn: []string{"a"}},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"b", "c"}, graph.Dependents("a"))
	assert.Empty(t, graph.Dependents("b"))
}
