package manager

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"time"

	"github.com/nimbuside/nimbus/internal/config"
	"github.com/nimbuside/nimbus/internal/metrics"
	"github.com/nimbuside/nimbus/internal/provider"
	"github.com/nimbuside/nimbus/pkg/types"
)

// CreateSandbox creates a sandbox on the selected provider and opens a
// session for it. explicitProvider pins the target and disables both load
// balancing and failover; otherwise the configured strategy picks one and
// a single failover attempt to the fallback provider is made on failure.
func (m *Manager) CreateSandbox(ctx context.Context, opts types.CreateOptions, explicitProvider string) (*types.Sandbox, error) {
	p, err := m.pickCreateProvider(explicitProvider)
	if err != nil {
		return nil, err
	}

	sb, err := m.createOn(ctx, p, opts)
	if err == nil {
		m.registerSession(sb, p.Name(), opts.UserID, opts.ProjectID, opts.Metadata)
		return sb, nil
	}

	if explicitProvider != "" || !m.opts.FailoverEnabled {
		return nil, fmt.Errorf("%w: provider %s: %w", provider.ErrCreationFailed, p.Name(), err)
	}

	fb := m.fallbackFor(p.Name())
	if fb == nil {
		return nil, fmt.Errorf("%w: provider %s: %w", provider.ErrCreationFailed, p.Name(), err)
	}

	log.Printf("manager: create on %s failed (%v), failing over to %s", p.Name(), err, fb.Name())
	sb, ferr := m.createOn(ctx, fb, opts)
	if ferr != nil {
		metrics.FailoversTotal.WithLabelValues(p.Name(), fb.Name(), "error").Inc()
		return nil, fmt.Errorf("%w: provider %s: %v (failover to %s: %v)",
			provider.ErrCreationFailed, p.Name(), err, fb.Name(), ferr)
	}
	metrics.FailoversTotal.WithLabelValues(p.Name(), fb.Name(), "success").Inc()
	m.registerSession(sb, fb.Name(), opts.UserID, opts.ProjectID, opts.Metadata)
	return sb, nil
}

func (m *Manager) createOn(ctx context.Context, p provider.Provider, opts types.CreateOptions) (*types.Sandbox, error) {
	start := time.Now()
	sb, err := p.CreateSandbox(ctx, opts)
	metrics.SandboxCreateDuration.WithLabelValues(p.Name()).Observe(time.Since(start).Seconds())
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.SandboxCreatesTotal.WithLabelValues(p.Name(), status).Inc()
	return sb, err
}

// pickCreateProvider chooses where a new sandbox lands: the explicit
// override, the load-balancing strategy, or the configured default.
func (m *Manager) pickCreateProvider(explicit string) (provider.Provider, error) {
	if explicit != "" {
		return m.registry.Get(explicit)
	}
	if m.opts.LoadBalancing {
		names := m.registry.Names()
		if len(names) > 0 {
			return m.registry.Get(m.selectByStrategy(names))
		}
	}
	return m.registry.Get(m.opts.DefaultProvider)
}

func (m *Manager) selectByStrategy(names []string) string {
	switch m.opts.Strategy {
	case config.StrategyLeastLoaded:
		m.mu.Lock()
		defer m.mu.Unlock()
		best := names[0]
		for _, name := range names[1:] {
			if m.loads[name] < m.loads[best] {
				best = name
			}
		}
		return best
	case config.StrategyRandom:
		return names[rand.Intn(len(names))]
	default: // round-robin
		m.mu.Lock()
		defer m.mu.Unlock()
		name := names[m.rrCounter%uint64(len(names))]
		m.rrCounter++
		return name
	}
}

// fallbackFor picks the failover target after a failed create: the
// configured fallback provider if it is registered and distinct from the
// failed one, else the first other registered provider. Returns nil when
// no alternative exists.
func (m *Manager) fallbackFor(failed string) provider.Provider {
	if name := m.opts.FallbackProvider; name != "" && name != failed {
		if p, err := m.registry.Get(name); err == nil {
			return p
		}
	}
	for _, p := range m.registry.All() {
		if p.Name() != failed {
			return p
		}
	}
	return nil
}
