// Package orchestrator drives one investigation through its lifecycle:
// dispatching plan nodes as their dependencies complete, gating each outcome
// through the agent's self-assessment, tolerating partial failure, and
// rolling accepted outcomes into a frozen aggregate.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/anderson-ufrj/cidadao.ai-backend-sub002/internal/agent"
	"github.com/anderson-ufrj/cidadao.ai-backend-sub002/internal/events"
	"github.com/anderson-ufrj/cidadao.ai-backend-sub002/internal/plan"
	"github.com/anderson-ufrj/cidadao.ai-backend-sub002/internal/pool"
	"github.com/anderson-ufrj/cidadao.ai-backend-sub002/internal/procurement"
	"github.com/anderson-ufrj/cidadao.ai-backend-sub002/internal/types"
)

// Config tunes the execution loop.
type Config struct {
	// QualityThreshold is the minimum self-assessment score for an
	// outcome to be accepted without retry.
	QualityThreshold float64 `yaml:"quality_threshold" mapstructure:"quality_threshold"`

	// MaxAttempts bounds attempts per node, including the first.
	MaxAttempts int `yaml:"max_attempts" mapstructure:"max_attempts"`

	// NodeTimeout is the per-node soft timeout. A timed-out attempt
	// counts as a failed outcome and is retried while attempts remain.
	NodeTimeout time.Duration `yaml:"node_timeout" mapstructure:"node_timeout"`

	// HardTimeout bounds the whole investigation. On expiry the run
	// finalizes immediately with whatever completed.
	HardTimeout time.Duration `yaml:"hard_timeout" mapstructure:"hard_timeout"`
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		QualityThreshold: 0.8,
		MaxAttempts:      2,
		NodeTimeout:      2 * time.Minute,
		HardTimeout:      30 * time.Minute,
	}
}

// Orchestrator executes planned investigations against the agent pool.
type Orchestrator struct {
	config Config
	pool   *pool.AgentPool
	bus    *events.Bus
	sink   events.Sink
	logger *slog.Logger
	tracer trace.Tracer
}

// Option is a functional option for configuring Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

// WithTracer sets the OpenTelemetry tracer.
func WithTracer(tracer trace.Tracer) Option {
	return func(o *Orchestrator) {
		o.tracer = tracer
	}
}

// WithSink sets the durable event sink.
func WithSink(sink events.Sink) Option {
	return func(o *Orchestrator) {
		o.sink = sink
	}
}

// WithBus sets the event bus for progress streaming.
func WithBus(bus *events.Bus) Option {
	return func(o *Orchestrator) {
		o.bus = bus
	}
}

// New creates an Orchestrator over the agent pool.
func New(p *pool.AgentPool, config Config, opts ...Option) *Orchestrator {
	if config.QualityThreshold <= 0 {
		config.QualityThreshold = DefaultConfig().QualityThreshold
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = DefaultConfig().MaxAttempts
	}
	if config.NodeTimeout <= 0 {
		config.NodeTimeout = DefaultConfig().NodeTimeout
	}
	if config.HardTimeout <= 0 {
		config.HardTimeout = DefaultConfig().HardTimeout
	}

	o := &Orchestrator{
		config: config,
		pool:   p,
		sink:   events.NopSink{},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// nodeResult is what a node goroutine reports back to the dispatch loop.
type nodeResult struct {
	nodeID  string
	outcome agent.Outcome
	err     error
}

// Run executes the planned graph against the fetched records and returns the
// finalized aggregate. Cancellation stops new dispatch; running nodes finish
// and the partial aggregate is finalized. The returned error is non-nil only
// when the whole investigation failed (zero successful nodes, or planning
// state was unusable).
func (o *Orchestrator) Run(ctx context.Context, investigationID types.ID, graph *plan.Graph, query procurement.Query, records *procurement.RecordSet) (*Aggregate, error) {
	if o.tracer != nil {
		var span trace.Span
		ctx, span = o.tracer.Start(ctx, "orchestrator.run",
			trace.WithAttributes(
				attribute.String("investigation.id", investigationID.String()),
				attribute.Int("plan.node_count", graph.Len()),
			),
		)
		defer span.End()
	}

	runCtx, cancel := context.WithTimeout(ctx, o.config.HardTimeout)
	defer cancel()

	state := newRunState(graph)
	results := make(chan nodeResult, graph.Len())
	running := 0

	for {
		// Stop dispatching once the run context is done; in-flight nodes
		// still drain below.
		if runCtx.Err() == nil {
			for _, node := range state.readyNodes() {
				state.markRunning(node.ID)
				running++
				o.emit(ctx, events.New(events.EventNodeStarted, investigationID).
					WithNode(node.ID, node.Capability).
					WithData("attempt", state.attemptOf(node.ID)))
				go o.executeNode(runCtx, investigationID, node, query, records, state, results)
			}
		}

		if running == 0 {
			if state.isComplete() || runCtx.Err() != nil {
				break
			}
			// Pending nodes with no runnable path: cancellation hit
			// between dispatch rounds, or a cascade left only
			// unreachable nodes. Treat them as skipped.
			o.skipRemaining(ctx, investigationID, state)
			break
		}

		result := <-results
		running--
		o.settle(ctx, investigationID, state, result)
	}

	return o.finalize(ctx, investigationID, state)
}

// executeNode runs one node through its attempt/reflection loop and reports
// the final outcome.
func (o *Orchestrator) executeNode(ctx context.Context, investigationID types.ID, node *plan.TaskNode, query procurement.Query, records *procurement.RecordSet, state *runState, results chan<- nodeResult) {
	handle, err := o.pool.Acquire(ctx, node.Capability)
	if err != nil {
		results <- nodeResult{nodeID: node.ID, err: err}
		return
	}
	defer handle.Release()

	task := agent.NewTask(investigationID, node.Capability, query).
		WithRecords(records).
		WithTimeout(o.config.NodeTimeout).
		WithImportance(node.Importance)

	prior := state.priorOutcomes(node.ID)

	var outcome agent.Outcome
	for {
		outcome = o.attempt(ctx, handle.Agent, task, prior)
		score := handle.Agent.SelfAssess(outcome)
		outcome.QualityScore = score

		if score >= o.config.QualityThreshold || task.Attempt >= o.config.MaxAttempts {
			break
		}

		feedback := fmt.Sprintf("attempt %d scored %.2f (below %.2f): %s",
			task.Attempt, score, o.config.QualityThreshold, outcome.Summary)
		task = task.Retry(feedback)
		o.emit(ctx, events.New(events.EventNodeRetried, investigationID).
			WithNode(node.ID, node.Capability).
			WithMessage(feedback).
			WithData("attempt", task.Attempt))
		o.logger.DebugContext(ctx, "quality gate rejected outcome, retrying",
			"node", node.ID,
			"score", score,
			"attempt", task.Attempt,
		)
	}

	results <- nodeResult{nodeID: node.ID, outcome: outcome}
}

// attempt runs one Handle call under the per-node soft timeout.
func (o *Orchestrator) attempt(ctx context.Context, a agent.Agent, task agent.Task, prior []agent.Outcome) agent.Outcome {
	attemptCtx, cancel := context.WithTimeout(ctx, task.Timeout)
	defer cancel()

	outcome, err := a.Handle(attemptCtx, task, prior)
	if err != nil {
		failed := agent.NewOutcome(task)
		if attemptCtx.Err() == context.DeadlineExceeded {
			failed.Fail(types.NewRetryableError(types.NODE_TIMEOUT,
				fmt.Sprintf("node %s timed out after %s", task.Capability, task.Timeout)))
		} else {
			failed.Fail(types.WrapError(types.NODE_EXECUTION_FAILED,
				fmt.Sprintf("agent %s", a.Name()), err))
		}
		return failed
	}
	return outcome
}

// settle records a node result in the run state and emits events.
func (o *Orchestrator) settle(ctx context.Context, investigationID types.ID, state *runState, result nodeResult) {
	nodeID := result.nodeID
	node, _ := state.graph.Node(nodeID)

	if result.err != nil || result.outcome.Status == agent.OutcomeFailed {
		err := result.err
		var outcome *agent.Outcome
		if err == nil {
			outcome = &result.outcome
			err = types.NewError(types.NODE_EXECUTION_FAILED, result.outcome.Error)
		}
		skipped := state.markFailed(nodeID, outcome, err)

		o.emit(ctx, events.New(events.EventNodeFailed, investigationID).
			WithNode(nodeID, node.Capability).
			WithMessage(err.Error()))
		for _, skippedID := range skipped {
			skippedNode, _ := state.graph.Node(skippedID)
			o.emit(ctx, events.New(events.EventNodeSkipped, investigationID).
				WithNode(skippedID, skippedNode.Capability).
				WithMessage(fmt.Sprintf("prerequisite %s failed", node.Capability)))
		}
		o.logger.WarnContext(ctx, "node failed",
			"node", nodeID,
			"error", err,
			"skipped_dependents", len(skipped),
		)
		return
	}

	state.markSucceeded(nodeID, result.outcome)
	o.emit(ctx, events.New(events.EventNodeCompleted, investigationID).
		WithNode(nodeID, node.Capability).
		WithData("score", result.outcome.QualityScore).
		WithData("attempt", result.outcome.Attempt))
	if len(result.outcome.Findings) > 0 {
		o.emit(ctx, events.New(events.EventFindingReported, investigationID).
			WithNode(nodeID, node.Capability).
			WithFindings(result.outcome.Findings))
	}
}

// skipRemaining marks every still-pending node skipped, for forced
// finalization.
func (o *Orchestrator) skipRemaining(ctx context.Context, investigationID types.ID, state *runState) {
	state.mu.Lock()
	var pending []string
	for id, ns := range state.nodes {
		if !ns.status.IsTerminal() && ns.status != types.TaskRunning {
			ns.status = types.TaskSkipped
			now := time.Now()
			ns.completedAt = &now
			pending = append(pending, id)
		}
	}
	state.mu.Unlock()

	for _, id := range pending {
		node, _ := state.graph.Node(id)
		o.emit(ctx, events.New(events.EventNodeSkipped, investigationID).
			WithNode(id, node.Capability).
			WithMessage("investigation finalized before dispatch"))
	}
}

// finalize builds the frozen aggregate from the run state.
func (o *Orchestrator) finalize(ctx context.Context, investigationID types.ID, state *runState) (*Aggregate, error) {
	aggregate := NewAggregate(investigationID)

	for _, ns := range state.snapshot() {
		switch ns.status {
		case types.TaskSucceeded:
			aggregate.AddOutcome(ns.outcome.Findings, ns.node.Importance,
				ns.outcome.QualityScore, ns.outcome.SkippedRecords)
			if ns.node.Capability == agent.CapabilityReport {
				aggregate.Report = ns.outcome.Summary
			}
		case types.TaskFailed, types.TaskSkipped:
			aggregate.AddFailure(ns.node.Capability, ns.node.Importance)
		default:
			// Running nodes at hard-timeout finalize count as failed.
			aggregate.AddFailure(ns.node.Capability, ns.node.Importance)
		}
	}

	if state.succeededCount() == 0 {
		aggregate.Finalize(types.InvestigationFailed)
		o.emit(ctx, events.New(events.EventAggregateUpdated, investigationID).
			WithData("status", string(types.InvestigationFailed)))
		return aggregate, types.NewError(types.INVESTIGATION_FAILED,
			"no capability completed successfully")
	}

	aggregate.Finalize(types.InvestigationCompleted)
	o.emit(ctx, events.New(events.EventAggregateUpdated, investigationID).
		WithData("status", string(types.InvestigationCompleted)).
		WithData("overall_confidence", aggregate.OverallConfidence).
		WithData("findings", len(aggregate.Findings)))
	o.logger.InfoContext(ctx, "investigation aggregated",
		"investigation_id", investigationID,
		"findings", len(aggregate.Findings),
		"failed_capabilities", len(aggregate.FailedCapabilities),
		"overall_confidence", aggregate.OverallConfidence,
	)
	return aggregate, nil
}

// emit publishes to the bus and writes through the sink. Sink failures are
// logged, never propagated: persistence is best-effort relative to progress.
func (o *Orchestrator) emit(ctx context.Context, event events.Event) {
	if o.bus != nil {
		_ = o.bus.Publish(ctx, event)
	}
	if err := o.sink.Save(context.WithoutCancel(ctx), event); err != nil {
		o.logger.WarnContext(ctx, "event sink write failed",
			"event_type", event.Type,
			"error", err,
		)
	}
}
