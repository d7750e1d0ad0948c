package manager

import (
	"context"
	"time"

	"github.com/nimbuside/nimbus/internal/provider"
	"github.com/nimbuside/nimbus/pkg/types"
)

// pollLoop periodically samples metrics for every live session and emits
// them as sandbox:metrics events. Sampling is best effort; providers that
// cannot measure (or are down) are skipped until the next tick.
func (m *Manager) pollLoop() {
	defer m.wg.Done()
	ticker := time.NewTicker(m.opts.MetricsInterval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.pollOnce(context.Background())
		}
	}
}

func (m *Manager) pollOnce(ctx context.Context) {
	m.HealthCheckProviders(ctx)

	for _, s := range m.GetActiveSessions(types.SessionFilter{}) {
		p, err := m.registry.Get(s.Provider)
		if err != nil {
			continue
		}
		usage, err := p.GetMetrics(ctx, s.SandboxID)
		if err != nil || usage == nil {
			continue
		}
		m.emitter.Emit(provider.Event{
			Type:      provider.EventSandboxMetrics,
			SandboxID: s.SandboxID,
			Provider:  s.Provider,
			Metrics:   usage,
		})
	}
}

// reapLoop sweeps idle sessions on the configured interval.
func (m *Manager) reapLoop() {
	defer m.wg.Done()
	ticker := time.NewTicker(m.opts.ReapInterval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.CleanupInactiveSessions(context.Background(), m.opts.IdleSessionTimeout)
		}
	}
}
