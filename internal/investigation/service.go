// Package investigation is the engine's front door. It assembles the
// capability catalog, agent pool, data fan-out, and orchestrator from
// configuration, accepts investigation requests, runs them asynchronously,
// and exposes status, results, and a filtered progress event stream.
package investigation

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/anderson-ufrj/cidadao.ai-backend-sub002/internal/agent"
	"github.com/anderson-ufrj/cidadao.ai-backend-sub002/internal/config"
	"github.com/anderson-ufrj/cidadao.ai-backend-sub002/internal/events"
	"github.com/anderson-ufrj/cidadao.ai-backend-sub002/internal/fanout"
	"github.com/anderson-ufrj/cidadao.ai-backend-sub002/internal/llm"
	"github.com/anderson-ufrj/cidadao.ai-backend-sub002/internal/orchestrator"
	"github.com/anderson-ufrj/cidadao.ai-backend-sub002/internal/plan"
	"github.com/anderson-ufrj/cidadao.ai-backend-sub002/internal/pool"
	"github.com/anderson-ufrj/cidadao.ai-backend-sub002/internal/store"
	"github.com/anderson-ufrj/cidadao.ai-backend-sub002/internal/types"
)

// run tracks one investigation from submission to its frozen aggregate.
type run struct {
	id        types.ID
	status    types.InvestigationStatus
	aggregate *orchestrator.Aggregate
	err       error
	done      chan struct{}
}

// Service orchestrates the full investigation lifecycle. One Service instance
// serves many concurrent investigations.
type Service struct {
	planner  *plan.Planner
	fetcher  *fanout.Fetcher
	orch     *orchestrator.Orchestrator
	pool     *pool.AgentPool
	registry *agent.Registry
	bus      *events.Bus
	sink     events.Sink
	store    *store.Store
	logger   *slog.Logger

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	mu     sync.Mutex
	runs   map[types.ID]*run
	closed bool
}

// Option is a functional option for configuring Service.
type Option func(*Service)

// WithLogger sets the structured logger for the service and every component
// it assembles.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithFetcher overrides the config-assembled data fetcher. Used by tests and
// by embedders with custom source adapters.
func WithFetcher(fetcher *fanout.Fetcher) Option {
	return func(s *Service) {
		s.fetcher = fetcher
	}
}

// New assembles a Service from configuration: catalog, built-in agents, pool,
// sources, event bus, optional SQLite sink, and the orchestrator.
func New(cfg *config.Config, opts ...Option) (*Service, error) {
	if cfg == nil {
		cfg = config.Default()
	}

	s := &Service{
		logger: slog.Default(),
		sink:   events.NopSink{},
		runs:   make(map[types.ID]*run),
	}
	for _, opt := range opts {
		opt(s)
	}

	catalog, err := agent.LoadCatalog(cfg.CatalogPath)
	if err != nil {
		return nil, err
	}
	s.registry = agent.NewRegistry(catalog)

	completer, err := llm.NewCompleter(cfg.LLM)
	if err != nil {
		return nil, err
	}
	if err := agent.RegisterBuiltins(s.registry, completer); err != nil {
		return nil, err
	}

	s.planner = plan.NewPlanner(catalog, plan.WithLogger(s.logger))
	s.pool = pool.New(s.registry, cfg.Pool, pool.WithLogger(s.logger))
	s.bus = events.NewBus(events.WithDropHandler(func(event events.Event, subscriberID uint64) {
		s.logger.Debug("dropped event for slow subscriber",
			"event_type", event.Type,
			"subscriber", subscriberID,
		)
	}))

	if cfg.Store.Enabled {
		st, err := store.Open(cfg.Store.ToStore())
		if err != nil {
			return nil, err
		}
		s.store = st
		s.sink = st
	}

	if s.fetcher == nil {
		s.fetcher = buildFetcher(cfg.Sources, s.logger)
	}

	s.orch = orchestrator.New(s.pool, cfg.Engine,
		orchestrator.WithBus(s.bus),
		orchestrator.WithSink(s.sink),
		orchestrator.WithLogger(s.logger),
	)

	s.baseCtx, s.cancel = context.WithCancel(context.Background())
	return s, nil
}

// buildFetcher wires the configured source endpoints into the fan-out layer.
func buildFetcher(cfg config.SourcesConfig, logger *slog.Logger) *fanout.Fetcher {
	sources := make([]fanout.Source, 0, len(cfg.Endpoints))
	for _, endpoint := range cfg.Endpoints {
		var opts []fanout.HTTPSourceOption
		if endpoint.APIKey != "" {
			opts = append(opts, fanout.WithAPIKey(endpoint.APIKey))
		}
		sources = append(sources, fanout.NewHTTPSource(
			endpoint.Name, endpoint.BaseURL, endpoint.Timeout, opts...))
	}

	fetcherOpts := []fanout.FetcherOption{
		fanout.WithBreakerConfig(cfg.Breaker.ToCircuitBreaker()),
		fanout.WithLogger(logger),
	}
	if cfg.Fallback != nil {
		var opts []fanout.HTTPSourceOption
		if cfg.Fallback.APIKey != "" {
			opts = append(opts, fanout.WithAPIKey(cfg.Fallback.APIKey))
		}
		fetcherOpts = append(fetcherOpts, fanout.WithFallback(fanout.NewHTTPSource(
			cfg.Fallback.Name, cfg.Fallback.BaseURL, cfg.Fallback.Timeout, opts...)))
	}
	return fanout.NewFetcher(sources, fetcherOpts...)
}

// Submit plans the request and starts executing it asynchronously. Planning
// errors surface immediately; everything after planning is reported through
// Status, Result, and the event stream.
func (s *Service) Submit(ctx context.Context, req plan.Request) (types.ID, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return "", types.NewError(types.POOL_SHUTDOWN, "engine is shut down")
	}
	s.mu.Unlock()

	graph, err := s.planner.Plan(ctx, req)
	if err != nil {
		return "", err
	}

	id := types.NewID()
	r := &run{
		id:     id,
		status: types.InvestigationPlanning,
		done:   make(chan struct{}),
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return "", types.NewError(types.POOL_SHUTDOWN, "engine is shut down")
	}
	s.runs[id] = r
	s.wg.Add(1)
	s.mu.Unlock()

	s.emit(ctx, events.New(events.EventInvestigationStarted, id).
		WithMessage(req.Prompt).
		WithData("depth", string(req.Depth)))
	s.emit(ctx, events.New(events.EventInvestigationPlanned, id).
		WithData("node_count", graph.Len()).
		WithData("execution_order", graph.TopologicalOrder()))

	go s.execute(id, req, graph)
	return id, nil
}

// execute runs one investigation to completion on the service's base context,
// so a caller abandoning Submit's context does not abort the run.
func (s *Service) execute(id types.ID, req plan.Request, graph *plan.Graph) {
	defer s.wg.Done()
	ctx := s.baseCtx

	s.setStatus(id, types.InvestigationExecuting)

	result, err := s.fetcher.Fetch(ctx, req.Query)
	if err != nil {
		s.emit(ctx, events.New(events.EventSourceFailed, id).WithMessage(err.Error()))
		s.finish(ctx, id, nil, err)
		return
	}
	s.emit(ctx, events.New(events.EventSourceFetched, id).
		WithData("records", result.Records.Len()).
		WithData("partial", result.Partial).
		WithData("used_fallback", result.UsedFallback).
		WithData("failed_sources", result.FailedSources))

	aggregate, err := s.orch.Run(ctx, id, graph, req.Query, result.Records)
	s.finish(ctx, id, aggregate, err)
}

// finish records the terminal state, archives the aggregate, and emits the
// closing lifecycle event.
func (s *Service) finish(ctx context.Context, id types.ID, aggregate *orchestrator.Aggregate, err error) {
	status := types.InvestigationCompleted
	if err != nil {
		status = types.InvestigationFailed
	}
	if aggregate != nil {
		status = aggregate.Status
	}

	s.mu.Lock()
	r, ok := s.runs[id]
	if ok {
		r.status = status
		r.aggregate = aggregate
		r.err = err
	}
	s.mu.Unlock()

	if aggregate != nil && s.store != nil {
		archiveCtx := context.WithoutCancel(ctx)
		if saveErr := s.store.SaveAggregate(archiveCtx, id, status, aggregate); saveErr != nil {
			s.logger.WarnContext(ctx, "archiving aggregate failed",
				"investigation_id", id,
				"error", saveErr,
			)
		}
	}

	if err != nil {
		s.emit(ctx, events.New(events.EventInvestigationFailed, id).
			WithMessage(err.Error()))
		s.logger.WarnContext(ctx, "investigation failed",
			"investigation_id", id,
			"error", err,
		)
	} else {
		event := events.New(events.EventInvestigationCompleted, id)
		if aggregate != nil {
			event = event.
				WithData("findings", len(aggregate.Findings)).
				WithData("overall_confidence", aggregate.OverallConfidence)
		}
		s.emit(ctx, event)
		s.logger.InfoContext(ctx, "investigation completed",
			"investigation_id", id,
		)
	}

	if ok {
		close(r.done)
	}
}

func (s *Service) setStatus(id types.ID, status types.InvestigationStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.runs[id]; ok {
		r.status = status
	}
}

func (s *Service) lookup(id types.ID) (*run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.runs[id]
	if !ok {
		return nil, types.NewError(types.INVESTIGATION_NOT_FOUND,
			fmt.Sprintf("no investigation %s", id))
	}
	return r, nil
}

// Status reports the investigation's current lifecycle state.
func (s *Service) Status(id types.ID) (types.InvestigationStatus, error) {
	r, err := s.lookup(id)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return r.status, nil
}

// Result blocks until the investigation reaches a terminal state, then
// returns its frozen aggregate. A failed investigation returns both the
// partial aggregate (possibly nil) and the terminal error.
func (s *Service) Result(ctx context.Context, id types.ID) (*orchestrator.Aggregate, error) {
	r, err := s.lookup(id)
	if err != nil {
		return nil, err
	}

	select {
	case <-r.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return r.aggregate, r.err
}

// Subscribe streams the investigation's progress events. The returned cleanup
// releases the subscription; the channel closes on cleanup or service
// shutdown. Events published before Subscribe is called are not replayed.
func (s *Service) Subscribe(ctx context.Context, id types.ID) (<-chan events.Event, func(), error) {
	if _, err := s.lookup(id); err != nil {
		return nil, nil, err
	}
	ch, cleanup := s.bus.Subscribe(ctx, events.Filter{InvestigationID: &id}, 0)
	return ch, cleanup, nil
}

// Capabilities returns the registered capability names in catalog order.
func (s *Service) Capabilities() []string {
	return s.registry.Capabilities()
}

// Health reports per-component health.
func (s *Service) Health(ctx context.Context) map[string]types.HealthStatus {
	health := map[string]types.HealthStatus{
		"pool":     s.pool.Health(ctx),
		"registry": s.registry.Health(ctx),
	}
	if s.store != nil {
		health["store"] = s.store.Health(ctx)
	}
	return health
}

// Shutdown stops accepting submissions, waits for in-flight investigations
// up to ctx's deadline, then tears the components down.
func (s *Service) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	drained := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-ctx.Done():
		s.logger.Warn("shutdown deadline reached with investigations in flight")
	}
	s.cancel()

	err := s.pool.ShutdownAll(ctx)
	if busErr := s.bus.Close(); busErr != nil && err == nil {
		err = busErr
	}
	if s.store != nil {
		if storeErr := s.store.Close(); storeErr != nil && err == nil {
			err = types.WrapError(types.STORE_WRITE_FAILED, "closing store", storeErr)
		}
	}
	return err
}

// emit publishes to the bus and writes through the sink. Sink failures are
// logged, never propagated.
func (s *Service) emit(ctx context.Context, event events.Event) {
	_ = s.bus.Publish(ctx, event)
	if err := s.sink.Save(context.WithoutCancel(ctx), event); err != nil {
		s.logger.WarnContext(ctx, "event sink write failed",
			"event_type", event.Type,
			"error", err,
		)
	}
}
