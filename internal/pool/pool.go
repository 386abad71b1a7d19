// Package pool manages shared agent instances with bounded concurrency.
// Agents are instantiated lazily on first acquisition and reused; acquisition
// blocks per capability until a slot frees, with a bounded wait queue that
// rejects overflow immediately so backpressure surfaces as an error instead
// of unbounded queueing.
package pool

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/anderson-ufrj/cidadao.ai-backend-sub002/internal/agent"
	"github.com/anderson-ufrj/cidadao.ai-backend-sub002/internal/types"
)

// Config bounds the pool.
type Config struct {
	// DefaultCapabilityCap is the per-capability concurrency limit when
	// PerCapability has no entry.
	DefaultCapabilityCap int `yaml:"default_capability_cap" mapstructure:"default_capability_cap"`

	// PerCapability overrides the limit for specific capabilities.
	PerCapability map[string]int `yaml:"per_capability" mapstructure:"per_capability"`

	// GlobalCap limits in-flight acquisitions across all capabilities.
	GlobalCap int `yaml:"global_cap" mapstructure:"global_cap"`

	// MaxWaiters bounds the per-capability wait queue. An acquire beyond
	// this limit fails immediately with POOL_SATURATED.
	MaxWaiters int `yaml:"max_waiters" mapstructure:"max_waiters"`

	// ShutdownGrace is how long ShutdownAll waits for in-flight work.
	ShutdownGrace time.Duration `yaml:"shutdown_grace" mapstructure:"shutdown_grace"`
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		DefaultCapabilityCap: 2,
		GlobalCap:            8,
		MaxWaiters:           16,
		ShutdownGrace:        10 * time.Second,
	}
}

// Handle is a checked-out agent slot. Callers must Release exactly once.
type Handle struct {
	Agent      agent.Agent
	capability string
	pool       *AgentPool
	released   bool
	mu         sync.Mutex
}

// Release returns the slot to the pool. Safe to call once; later calls are
// no-ops.
func (h *Handle) Release() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.released {
		return
	}
	h.released = true
	h.pool.release(h.capability)
}

// capabilitySlot tracks one capability's shared instance and its concurrency
// gate.
type capabilitySlot struct {
	instance agent.Agent
	slots    chan struct{}
	waiters  int

	// ready is closed once the creating acquirer has finished Start.
	// startErr is set before the close, so anyone who observed the close
	// may read it without further synchronization.
	ready    chan struct{}
	startErr error
}

// AgentPool owns the agent instances for all capabilities.
type AgentPool struct {
	config   Config
	registry *agent.Registry
	logger   *slog.Logger

	mu       sync.Mutex
	caps     map[string]*capabilitySlot
	global   chan struct{}
	inflight sync.WaitGroup
	shutdown bool
}

// Option is a functional option for configuring AgentPool.
type Option func(*AgentPool)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *AgentPool) {
		p.logger = logger
	}
}

// New creates an AgentPool over the given registry.
func New(registry *agent.Registry, config Config, opts ...Option) *AgentPool {
	if config.DefaultCapabilityCap <= 0 {
		config.DefaultCapabilityCap = DefaultConfig().DefaultCapabilityCap
	}
	if config.GlobalCap <= 0 {
		config.GlobalCap = DefaultConfig().GlobalCap
	}
	if config.MaxWaiters <= 0 {
		config.MaxWaiters = DefaultConfig().MaxWaiters
	}
	if config.ShutdownGrace <= 0 {
		config.ShutdownGrace = DefaultConfig().ShutdownGrace
	}

	p := &AgentPool{
		config:   config,
		registry: registry,
		logger:   slog.Default(),
		caps:     make(map[string]*capabilitySlot),
		global:   make(chan struct{}, config.GlobalCap),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Acquire checks out an agent for the capability, blocking until a slot frees
// or ctx is done. Contention on one capability never blocks another, apart
// from the global cap. When the capability's wait queue is full the call
// fails immediately with a POOL_SATURATED error.
func (p *AgentPool) Acquire(ctx context.Context, capability string) (*Handle, error) {
	p.mu.Lock()
	if p.shutdown {
		p.mu.Unlock()
		return nil, types.NewError(types.POOL_SHUTDOWN, "agent pool is shut down")
	}

	slot, created, err := p.slotFor(capability)
	if err != nil {
		p.mu.Unlock()
		return nil, err
	}
	if slot.waiters >= p.config.MaxWaiters {
		p.mu.Unlock()
		return nil, types.NewError(types.POOL_SATURATED,
			fmt.Sprintf("capability %q has %d waiters, rejecting", capability, slot.waiters))
	}
	slot.waiters++
	p.inflight.Add(1)
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		slot.waiters--
		p.mu.Unlock()
	}()

	// The creating acquirer starts the instance outside the lock so a slow
	// start never blocks acquisitions for other capabilities. Everyone else
	// waits on ready.
	if created {
		if startErr := slot.instance.Start(ctx); startErr != nil {
			slot.startErr = types.WrapError(types.NODE_EXECUTION_FAILED,
				fmt.Sprintf("starting agent for %q", capability), startErr)
		}
		close(slot.ready)
		if slot.startErr != nil {
			// Drop the poisoned slot so a later acquire retries the
			// factory from scratch.
			p.mu.Lock()
			if p.caps[capability] == slot {
				delete(p.caps, capability)
			}
			p.mu.Unlock()
			p.inflight.Done()
			return nil, slot.startErr
		}
		p.logger.Debug("instantiated agent",
			"capability", capability,
			"agent", slot.instance.Name(),
			"cap", cap(slot.slots),
		)
	} else {
		select {
		case <-slot.ready:
		case <-ctx.Done():
			p.inflight.Done()
			return nil, ctx.Err()
		}
		if slot.startErr != nil {
			p.inflight.Done()
			return nil, slot.startErr
		}
	}

	// Capability slot first, then the global slot; both respect ctx so a
	// cancelled caller never leaks a permit.
	select {
	case slot.slots <- struct{}{}:
	case <-ctx.Done():
		p.inflight.Done()
		return nil, ctx.Err()
	}
	select {
	case p.global <- struct{}{}:
	case <-ctx.Done():
		<-slot.slots
		p.inflight.Done()
		return nil, ctx.Err()
	}

	return &Handle{Agent: slot.instance, capability: capability, pool: p}, nil
}

// slotFor lazily creates the capability's slot and agent instance, reporting
// whether this call created it. The created instance is not yet started; the
// caller starts it after dropping p.mu. Caller holds p.mu.
func (p *AgentPool) slotFor(capability string) (*capabilitySlot, bool, error) {
	if slot, ok := p.caps[capability]; ok {
		return slot, false, nil
	}

	instance, err := p.registry.Create(capability)
	if err != nil {
		return nil, false, err
	}

	cap := p.config.DefaultCapabilityCap
	if override, ok := p.config.PerCapability[capability]; ok && override > 0 {
		cap = override
	}
	slot := &capabilitySlot{
		instance: instance,
		slots:    make(chan struct{}, cap),
		ready:    make(chan struct{}),
	}
	p.caps[capability] = slot
	return slot, true, nil
}

func (p *AgentPool) release(capability string) {
	p.mu.Lock()
	slot, ok := p.caps[capability]
	p.mu.Unlock()
	if !ok {
		return
	}
	<-p.global
	<-slot.slots
	p.inflight.Done()
}

// ShutdownAll rejects new acquisitions, waits for in-flight work up to the
// grace timeout, then stops every instantiated agent.
func (p *AgentPool) ShutdownAll(ctx context.Context) error {
	p.mu.Lock()
	if p.shutdown {
		p.mu.Unlock()
		return nil
	}
	p.shutdown = true
	instances := make(map[string]agent.Agent, len(p.caps))
	for name, slot := range p.caps {
		instances[name] = slot.instance
	}
	p.mu.Unlock()

	drained := make(chan struct{})
	go func() {
		p.inflight.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-time.After(p.config.ShutdownGrace):
		p.logger.Warn("shutdown grace elapsed with work in flight")
	case <-ctx.Done():
	}

	var firstErr error
	for capability, instance := range instances {
		if err := instance.Stop(ctx); err != nil && firstErr == nil {
			firstErr = types.WrapError(types.NODE_EXECUTION_FAILED,
				fmt.Sprintf("stopping agent for %q", capability), err)
		}
	}
	return firstErr
}

// Health reports degraded when any instantiated agent is unhealthy.
func (p *AgentPool) Health(ctx context.Context) types.HealthStatus {
	p.mu.Lock()
	if p.shutdown {
		p.mu.Unlock()
		return types.Unhealthy("pool is shut down")
	}
	instances := make([]agent.Agent, 0, len(p.caps))
	for _, slot := range p.caps {
		instances = append(instances, slot.instance)
	}
	p.mu.Unlock()

	for _, instance := range instances {
		if h := instance.Health(ctx); !h.IsHealthy() {
			return types.Degraded(fmt.Sprintf("agent %s: %s", instance.Name(), h.Message))
		}
	}
	return types.Healthy(fmt.Sprintf("%d agents instantiated", len(instances)))
}
