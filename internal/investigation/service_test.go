package investigation

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anderson-ufrj/cidadao.ai-backend-sub002/internal/config"
	"github.com/anderson-ufrj/cidadao.ai-backend-sub002/internal/events"
	"github.com/anderson-ufrj/cidadao.ai-backend-sub002/internal/fanout"
	"github.com/anderson-ufrj/cidadao.ai-backend-sub002/internal/plan"
	"github.com/anderson-ufrj/cidadao.ai-backend-sub002/internal/procurement"
	"github.com/anderson-ufrj/cidadao.ai-backend-sub002/internal/types"
)

type fakeSource struct {
	name    string
	timeout time.Duration
	calls   atomic.Int32
	fetch   func(ctx context.Context, query procurement.Query) (fanout.FetchResult, error)
}

func (s *fakeSource) Name() string           { return s.name }
func (s *fakeSource) Timeout() time.Duration { return s.timeout }

func (s *fakeSource) Fetch(ctx context.Context, query procurement.Query) (fanout.FetchResult, error) {
	s.calls.Add(1)
	return s.fetch(ctx, query)
}

// skewedContracts builds contracts whose values all lead with digit 9, far
// from the Benford expectation, so the statistical capability always finds
// something.
func skewedContracts(n int) []procurement.Contract {
	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	contracts := make([]procurement.Contract, n)
	for i := range contracts {
		contracts[i] = procurement.Contract{
			Key:        fmt.Sprintf("26000:2024:%06d", i),
			SupplierID: "11222333000144",
			OrganCode:  "26000",
			Value:      90_000 + float64(i)*13,
			Modality:   "pregao",
			SignedAt:   base.Add(time.Duration(i) * time.Hour),
		}
	}
	return contracts
}

func newTestService(t *testing.T, sources ...fanout.Source) *Service {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	service, err := New(config.Default(),
		WithLogger(logger),
		WithFetcher(fanout.NewFetcher(sources, fanout.WithLogger(logger))),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = service.Shutdown(ctx)
	})
	return service
}

func TestService_SubmitCompletesInvestigation(t *testing.T) {
	source := &fakeSource{
		name:    "portal",
		timeout: time.Second,
		fetch: func(ctx context.Context, query procurement.Query) (fanout.FetchResult, error) {
			return fanout.FetchResult{
				Records: &procurement.RecordSet{Contracts: skewedContracts(200)},
			}, nil
		},
	}
	service := newTestService(t, source)

	id, err := service.Submit(context.Background(), plan.Request{
		Prompt: "analise estatistica dos contratos do ministerio",
		Query:  procurement.Query{Kinds: []string{"contracts"}},
		Depth:  types.DepthQuick,
	})
	require.NoError(t, err)
	require.NoError(t, id.Validate())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	aggregate, err := service.Result(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, aggregate)

	assert.Equal(t, types.InvestigationCompleted, aggregate.Status)
	assert.NotEmpty(t, aggregate.Findings)
	assert.Equal(t, 1.0, aggregate.OverallConfidence)

	status, err := service.Status(id)
	require.NoError(t, err)
	assert.Equal(t, types.InvestigationCompleted, status)

	// One fetch per investigation; agent retries never re-fetch.
	assert.Equal(t, int32(1), source.calls.Load())
}

func TestService_PlannedEventCarriesExecutionOrder(t *testing.T) {
	source := &fakeSource{
		name:    "portal",
		timeout: time.Second,
		fetch: func(ctx context.Context, query procurement.Query) (fanout.FetchResult, error) {
			return fanout.FetchResult{
				Records: &procurement.RecordSet{Contracts: skewedContracts(200)},
			}, nil
		},
	}
	service := newTestService(t, source)

	ch, cleanup := service.bus.Subscribe(context.Background(), events.Filter{
		Types: []events.EventType{events.EventInvestigationPlanned},
	}, 4)
	defer cleanup()

	id, err := service.Submit(context.Background(), plan.Request{
		Query: procurement.Query{Kinds: []string{"contracts"}},
		Depth: types.DepthQuick,
	})
	require.NoError(t, err)

	select {
	case event := <-ch:
		assert.Equal(t, id, event.InvestigationID)
		order, ok := event.Data["execution_order"].([]string)
		require.True(t, ok)
		require.NotEmpty(t, order)
		assert.Equal(t, event.Data["node_count"], len(order))
	case <-time.After(5 * time.Second):
		t.Fatal("planned event never arrived")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_, err = service.Result(ctx, id)
	require.NoError(t, err)
}

func TestService_UnknownIDIsNotFound(t *testing.T) {
	service := newTestService(t)
	unknown := types.NewID()

	_, err := service.Status(unknown)
	var engineErr *types.EngineError
	require.ErrorAs(t, err, &engineErr)
	assert.Equal(t, types.INVESTIGATION_NOT_FOUND, engineErr.Code)

	_, err = service.Result(context.Background(), unknown)
	require.Error(t, err)

	_, _, err = service.Subscribe(context.Background(), unknown)
	require.Error(t, err)
}

func TestService_FetchFailureFailsInvestigation(t *testing.T) {
	source := &fakeSource{
		name:    "portal",
		timeout: time.Second,
		fetch: func(ctx context.Context, query procurement.Query) (fanout.FetchResult, error) {
			return fanout.FetchResult{}, fmt.Errorf("upstream down")
		},
	}
	service := newTestService(t, source)

	id, err := service.Submit(context.Background(), plan.Request{
		Query: procurement.Query{Kinds: []string{"contracts"}},
		Depth: types.DepthQuick,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	aggregate, err := service.Result(ctx, id)
	require.Error(t, err)
	assert.Nil(t, aggregate)

	var engineErr *types.EngineError
	require.ErrorAs(t, err, &engineErr)
	assert.Equal(t, types.SOURCE_ALL_FAILED, engineErr.Code)

	status, err := service.Status(id)
	require.NoError(t, err)
	assert.Equal(t, types.InvestigationFailed, status)
}

func TestService_SubscribeStreamsLifecycleEvents(t *testing.T) {
	release := make(chan struct{})
	source := &fakeSource{
		name:    "portal",
		timeout: 5 * time.Second,
		fetch: func(ctx context.Context, query procurement.Query) (fanout.FetchResult, error) {
			select {
			case <-release:
			case <-ctx.Done():
				return fanout.FetchResult{}, ctx.Err()
			}
			return fanout.FetchResult{
				Records: &procurement.RecordSet{Contracts: skewedContracts(200)},
			}, nil
		},
	}
	service := newTestService(t, source)

	id, err := service.Submit(context.Background(), plan.Request{
		Query: procurement.Query{Kinds: []string{"contracts"}},
		Depth: types.DepthQuick,
	})
	require.NoError(t, err)

	ch, cleanup, err := service.Subscribe(context.Background(), id)
	require.NoError(t, err)
	defer cleanup()

	// The fetch is held until the subscription is in place, so no node or
	// completion event can race past the subscriber.
	close(release)

	seen := make(map[events.EventType]bool)
	deadline := time.After(10 * time.Second)
	for !seen[events.EventInvestigationCompleted] {
		select {
		case event := <-ch:
			assert.Equal(t, id, event.InvestigationID)
			seen[event.Type] = true
		case <-deadline:
			t.Fatalf("timed out waiting for completion, saw %v", seen)
		}
	}

	assert.True(t, seen[events.EventSourceFetched])
	assert.True(t, seen[events.EventNodeStarted])
	assert.True(t, seen[events.EventNodeCompleted])
}

func TestService_PlanningErrorIsImmediate(t *testing.T) {
	service := newTestService(t)

	id, err := service.Submit(context.Background(), plan.Request{
		Query: procurement.Query{Kinds: []string{"contracts"}},
		Depth: types.Depth("exhaustive"),
	})
	require.Error(t, err)
	assert.True(t, id.IsZero())
}

func TestService_SubmitAfterShutdownRejected(t *testing.T) {
	service := newTestService(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, service.Shutdown(ctx))

	_, err := service.Submit(context.Background(), plan.Request{
		Query: procurement.Query{Kinds: []string{"contracts"}},
		Depth: types.DepthQuick,
	})
	var engineErr *types.EngineError
	require.ErrorAs(t, err, &engineErr)
	assert.Equal(t, types.POOL_SHUTDOWN, engineErr.Code)
}

func TestService_ResultHonorsContext(t *testing.T) {
	release := make(chan struct{})
	source := &fakeSource{
		name:    "portal",
		timeout: 30 * time.Second,
		fetch: func(ctx context.Context, query procurement.Query) (fanout.FetchResult, error) {
			select {
			case <-release:
				return fanout.FetchResult{Records: &procurement.RecordSet{}}, nil
			case <-ctx.Done():
				return fanout.FetchResult{}, ctx.Err()
			}
		},
	}
	service := newTestService(t, source)
	t.Cleanup(func() { close(release) })

	id, err := service.Submit(context.Background(), plan.Request{
		Query: procurement.Query{Kinds: []string{"contracts"}},
		Depth: types.DepthQuick,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = service.Result(ctx, id)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestService_CapabilitiesListsCatalogOrder(t *testing.T) {
	service := newTestService(t)

	capabilities := service.Capabilities()
	require.NotEmpty(t, capabilities)
	assert.Contains(t, capabilities, "statistical-analysis")
	assert.Contains(t, capabilities, "report-synthesis")
}

func TestDefaultService_Lifecycle(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	require.NoError(t, Init(config.Default(), WithLogger(logger)))
	require.NotNil(t, Default())

	// Double Init without Shutdown is a startup error.
	require.Error(t, Init(config.Default()))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, Shutdown(ctx))
	assert.Nil(t, Default())

	// Shutdown is idempotent.
	require.NoError(t, Shutdown(ctx))
}
