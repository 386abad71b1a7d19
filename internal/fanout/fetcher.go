package fanout

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/anderson-ufrj/cidadao.ai-backend-sub002/internal/procurement"
	"github.com/anderson-ufrj/cidadao.ai-backend-sub002/internal/types"
)

// ResultSet is the merged outcome of one fan-out fetch.
type ResultSet struct {
	// Records is the union of all successful source results, de-duplicated
	// by natural key.
	Records *procurement.RecordSet

	// FailedSources names the sources that failed this call.
	FailedSources []string

	// Partial is true when at least one source failed or returned a
	// partial view.
	Partial bool

	// UsedFallback is true when the fallback aggregator produced the
	// records because all primary sources failed.
	UsedFallback bool
}

// Fetcher dispatches a logical data request to all configured sources
// concurrently and merges whatever succeeds.
type Fetcher struct {
	sources  []Source
	fallback Source
	breaker  *CircuitBreaker
	logger   *slog.Logger
	tracer   trace.Tracer
}

// FetcherOption is a functional option for configuring Fetcher.
type FetcherOption func(*Fetcher)

// WithFallback sets the fallback aggregator source, tried only when every
// primary source fails.
func WithFallback(source Source) FetcherOption {
	return func(f *Fetcher) {
		f.fallback = source
	}
}

// WithBreakerConfig overrides the default circuit breaker configuration.
func WithBreakerConfig(cfg CircuitBreakerConfig) FetcherOption {
	return func(f *Fetcher) {
		f.breaker = NewCircuitBreaker(cfg)
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) FetcherOption {
	return func(f *Fetcher) {
		f.logger = logger
	}
}

// WithTracer sets the OpenTelemetry tracer for fetch spans.
func WithTracer(tracer trace.Tracer) FetcherOption {
	return func(f *Fetcher) {
		f.tracer = tracer
	}
}

// NewFetcher creates a Fetcher over the given primary sources.
func NewFetcher(sources []Source, opts ...FetcherOption) *Fetcher {
	f := &Fetcher{
		sources: sources,
		breaker: NewCircuitBreaker(DefaultCircuitBreakerConfig()),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch dispatches the query to every primary source concurrently, each
// bounded by its declared timeout and gated by its circuit breaker. Source
// failures are recorded, not propagated, unless every source fails; then the
// fallback aggregator is tried before surfacing a final error.
func (f *Fetcher) Fetch(ctx context.Context, query procurement.Query) (*ResultSet, error) {
	if f.tracer != nil {
		var span trace.Span
		ctx, span = f.tracer.Start(ctx, "fanout.fetch",
			trace.WithAttributes(attribute.Int("fanout.source_count", len(f.sources))),
		)
		defer span.End()
	}

	merged := &procurement.RecordSet{}
	var mu sync.Mutex
	var failed []string
	partial := false

	g, groupCtx := errgroup.WithContext(ctx)
	for _, source := range f.sources {
		source := source
		g.Go(func() error {
			result, err := f.fetchOne(groupCtx, source, query)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed = append(failed, source.Name())
				partial = true
				f.logger.WarnContext(groupCtx, "source fetch failed",
					"source", source.Name(),
					"error", err,
				)
				return nil // tolerated; accounting only
			}
			merged.Merge(result.Records)
			if result.Partial {
				partial = true
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if len(failed) < len(f.sources) || len(f.sources) == 0 {
		merged.Dedupe()
		return &ResultSet{
			Records:       merged,
			FailedSources: failed,
			Partial:       partial,
		}, nil
	}

	// Every primary source failed: try the fallback aggregator.
	if f.fallback != nil {
		f.logger.InfoContext(ctx, "all primary sources failed, trying fallback aggregator",
			"fallback", f.fallback.Name(),
		)
		result, err := f.fetchOne(ctx, f.fallback, query)
		if err == nil {
			records := result.Records
			if records == nil {
				records = &procurement.RecordSet{}
			}
			records.Dedupe()
			return &ResultSet{
				Records:       records,
				FailedSources: failed,
				Partial:       true,
				UsedFallback:  true,
			}, nil
		}
		failed = append(failed, f.fallback.Name())
	}

	return nil, types.WrapError(types.SOURCE_ALL_FAILED,
		"every configured source failed", &SourceFetchError{
			Source: failed[len(failed)-1],
			Cause:  ctx.Err(),
		})
}

// fetchOne runs a single source call under its breaker and timeout.
func (f *Fetcher) fetchOne(ctx context.Context, source Source, query procurement.Query) (FetchResult, error) {
	if err := f.breaker.Allow(source.Name()); err != nil {
		return FetchResult{}, err
	}

	callCtx := ctx
	if timeout := source.Timeout(); timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	result, err := source.Fetch(callCtx, query)
	if err != nil {
		f.breaker.RecordFailure(source.Name())
		return FetchResult{}, &SourceFetchError{Source: source.Name(), Cause: err}
	}

	f.breaker.RecordSuccess(source.Name())
	f.logger.DebugContext(ctx, "source fetch completed",
		"source", source.Name(),
		"records", result.Records.Len(),
		"partial", result.Partial,
		"duration", time.Since(start),
	)
	return result, nil
}

// BreakerState exposes the circuit state for a source, for health reporting.
func (f *Fetcher) BreakerState(source string) CircuitState {
	return f.breaker.State(source)
}
