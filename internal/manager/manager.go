// Package manager is the sandbox orchestrator. It selects a provider for
// each operation, tracks one session per live sandbox, relays provider
// events onto a single surface, polls metrics, and reaps idle sessions.
// It is the single source of truth for which provider owns which sandbox.
package manager

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/nimbuside/nimbus/internal/broadcast"
	"github.com/nimbuside/nimbus/internal/config"
	"github.com/nimbuside/nimbus/internal/metrics"
	"github.com/nimbuside/nimbus/internal/provider"
	"github.com/nimbuside/nimbus/pkg/types"
)

// Options configures a Manager. Read once at construction, immutable
// afterwards.
type Options struct {
	DefaultProvider  string
	FallbackProvider string
	LoadBalancing    bool
	Strategy         string // config.Strategy* constants
	FailoverEnabled  bool

	IdleSessionTimeout time.Duration // 0 disables the background reaper
	ReapInterval       time.Duration
	MetricsInterval    time.Duration // 0 disables metrics polling

	Broadcaster broadcast.Broadcaster // nil means discard
}

// Manager orchestrates sandbox operations across registered providers.
type Manager struct {
	registry    *provider.Registry
	opts        Options
	emitter     *provider.Emitter
	broadcaster broadcast.Broadcaster

	mu        sync.Mutex
	sessions  map[string]*types.Session // session ID -> session
	bySandbox map[string]string         // sandbox ID -> session ID
	rrCounter uint64
	loads     map[string]int // provider -> live sandbox count

	relaySubs []relaySub
	stop      chan struct{}
	stopOnce  sync.Once
	wg        sync.WaitGroup
}

type relaySub struct {
	emitter *provider.Emitter
	sub     provider.Subscription
}

// New creates a Manager over the given registry.
func New(registry *provider.Registry, opts Options) *Manager {
	if opts.Strategy == "" {
		opts.Strategy = config.StrategyRoundRobin
	}
	if opts.ReapInterval <= 0 {
		opts.ReapInterval = 5 * time.Minute
	}
	b := opts.Broadcaster
	if b == nil {
		b = broadcast.Nop{}
	}
	return &Manager{
		registry:    registry,
		opts:        opts,
		emitter:     provider.NewEmitter(),
		broadcaster: b,
		sessions:    make(map[string]*types.Session),
		bySandbox:   make(map[string]string),
		loads:       make(map[string]int),
		stop:        make(chan struct{}),
	}
}

// Start wires the event relay and kicks off the background pollers.
func (m *Manager) Start(ctx context.Context) error {
	for _, p := range m.registry.All() {
		em := p.Events()
		sub := em.SubscribeAll(func(ev provider.Event) {
			m.emitter.Emit(ev)
		})
		m.relaySubs = append(m.relaySubs, relaySub{emitter: em, sub: sub})
	}

	if m.opts.MetricsInterval > 0 {
		m.wg.Add(1)
		go m.pollLoop()
	}
	if m.opts.IdleSessionTimeout > 0 {
		m.wg.Add(1)
		go m.reapLoop()
	}

	log.Printf("manager: started with providers %v (default=%s)", m.registry.Names(), m.opts.DefaultProvider)
	return nil
}

// Close stops background loops and detaches the event relay.
func (m *Manager) Close() {
	m.stopOnce.Do(func() { close(m.stop) })
	m.wg.Wait()
	for _, rs := range m.relaySubs {
		rs.emitter.Unsubscribe(rs.sub)
	}
	m.relaySubs = nil
}

// Events is the manager's relayed event surface. Callers listen here,
// never on individual providers.
func (m *Manager) Events() *provider.Emitter { return m.emitter }

// GetAvailableProviders returns registered provider names in registry
// order.
func (m *Manager) GetAvailableProviders() []string { return m.registry.Names() }

// GetProviderCapabilities returns a provider's declared capabilities.
func (m *Manager) GetProviderCapabilities(name string) (*types.Capabilities, error) {
	return m.registry.Capabilities(name)
}

// HealthCheckProviders probes every provider. Per-provider failures are
// reported, never propagated.
func (m *Manager) HealthCheckProviders(ctx context.Context) map[string]error {
	results := m.registry.HealthCheckAll(ctx)
	for name, err := range results {
		healthy := 0.0
		if err == nil {
			healthy = 1.0
		}
		metrics.ProviderHealthy.WithLabelValues(name).Set(healthy)
	}
	return results
}

// resolveProvider finds the provider owning sandboxID: explicit override
// first, then the session cache, then probing every provider in registry
// order. A successful probe is cached into a new session so subsequent
// calls skip the scan.
func (m *Manager) resolveProvider(ctx context.Context, sandboxID, explicit string) (provider.Provider, error) {
	if explicit != "" {
		return m.registry.Get(explicit)
	}

	m.mu.Lock()
	if sid, ok := m.bySandbox[sandboxID]; ok {
		name := m.sessions[sid].Provider
		m.mu.Unlock()
		return m.registry.Get(name)
	}
	m.mu.Unlock()

	for _, p := range m.registry.All() {
		sb, err := p.GetSandbox(ctx, sandboxID)
		if err != nil {
			// Probing is best effort; an unreachable provider must not
			// hide a sandbox living in the next one.
			log.Printf("manager: probe %s for %s: %v", p.Name(), sandboxID, err)
			continue
		}
		if sb != nil {
			m.adoptSession(sb, p.Name())
			return p, nil
		}
	}
	return nil, fmt.Errorf("%w: %s not found in any provider", provider.ErrSandboxNotFound, sandboxID)
}

// GetProviderForSandbox resolves the owning provider's name.
func (m *Manager) GetProviderForSandbox(ctx context.Context, sandboxID string) (string, error) {
	p, err := m.resolveProvider(ctx, sandboxID, "")
	if err != nil {
		return "", err
	}
	return p.Name(), nil
}

// requireCapability rejects an operation before dispatch when the
// provider does not advertise it.
func requireCapability(p provider.Provider, ok bool, op string) error {
	if !ok {
		return provider.Unsupported(p.Name(), op)
	}
	return nil
}
