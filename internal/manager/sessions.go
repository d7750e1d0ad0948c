package manager

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/nimbuside/nimbus/internal/metrics"
	"github.com/nimbuside/nimbus/internal/provider"
	"github.com/nimbuside/nimbus/pkg/types"
)

func newSessionID() string {
	return fmt.Sprintf("session-%d-%s", time.Now().UnixMilli(), uuid.New().String()[:8])
}

// registerSession records a new sandbox-to-provider binding and bumps the
// provider's load counter. Caller must not hold m.mu.
func (m *Manager) registerSession(sb *types.Sandbox, providerName, userID, projectID string, metadata map[string]string) *types.Session {
	now := time.Now()
	s := &types.Session{
		ID:           newSessionID(),
		SandboxID:    sb.ID,
		Provider:     providerName,
		UserID:       userID,
		ProjectID:    projectID,
		CreatedAt:    now,
		LastActivity: now,
		Metadata:     metadata,
	}

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.bySandbox[sb.ID] = s.ID
	m.loads[providerName]++
	load := m.loads[providerName]
	m.mu.Unlock()

	metrics.ActiveSessions.WithLabelValues(providerName).Set(float64(load))
	return s
}

// adoptSession caches a sandbox discovered by probing. Sandboxes created
// out-of-band (or rehydrated after a manager restart) get a session the
// first time any operation touches them.
func (m *Manager) adoptSession(sb *types.Sandbox, providerName string) {
	m.mu.Lock()
	if _, ok := m.bySandbox[sb.ID]; ok {
		m.mu.Unlock()
		return
	}
	now := time.Now()
	s := &types.Session{
		ID:           newSessionID(),
		SandboxID:    sb.ID,
		Provider:     providerName,
		CreatedAt:    now,
		LastActivity: now,
		Metadata:     sb.Metadata,
	}
	m.sessions[s.ID] = s
	m.bySandbox[sb.ID] = s.ID
	m.loads[providerName]++
	load := m.loads[providerName]
	m.mu.Unlock()

	metrics.ActiveSessions.WithLabelValues(providerName).Set(float64(load))
	log.Printf("manager: adopted sandbox %s into session %s (provider=%s)", sb.ID, s.ID, providerName)
}

// touchSession refreshes the idle clock for a sandbox's session.
func (m *Manager) touchSession(sandboxID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sid, ok := m.bySandbox[sandboxID]; ok {
		m.sessions[sid].LastActivity = time.Now()
	}
}

// dropSession removes the session for a sandbox and decrements the
// provider's load, floored at zero.
func (m *Manager) dropSession(sandboxID string) {
	m.mu.Lock()
	sid, ok := m.bySandbox[sandboxID]
	if !ok {
		m.mu.Unlock()
		return
	}
	name := m.sessions[sid].Provider
	delete(m.sessions, sid)
	delete(m.bySandbox, sandboxID)
	if m.loads[name] > 0 {
		m.loads[name]--
	}
	load := m.loads[name]
	m.mu.Unlock()

	metrics.ActiveSessions.WithLabelValues(name).Set(float64(load))
}

// sessionFor returns a copy of the session for a sandbox, if any.
func (m *Manager) sessionFor(sandboxID string) (types.Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sid, ok := m.bySandbox[sandboxID]
	if !ok {
		return types.Session{}, false
	}
	return *m.sessions[sid], true
}

// GetSessionByID returns a session by its ID.
func (m *Manager) GetSessionByID(id string) (*types.Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, false
	}
	cp := *s
	return &cp, true
}

// GetActiveSessions returns sessions matching the filter, as copies.
func (m *Manager) GetActiveSessions(filter types.SessionFilter) []types.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]types.Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		if filter.Provider != "" && s.Provider != filter.Provider {
			continue
		}
		if filter.UserID != "" && s.UserID != filter.UserID {
			continue
		}
		if filter.ProjectID != "" && s.ProjectID != filter.ProjectID {
			continue
		}
		out = append(out, *s)
	}
	return out
}

// ProviderLoad returns the live sandbox count tracked for a provider.
func (m *Manager) ProviderLoad(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loads[name]
}

// CleanupInactiveSessions deletes sandboxes whose sessions have been idle
// longer than maxInactive and returns the number cleaned. Per-session
// failures are logged and skipped; one stuck sandbox must not stall the
// sweep. A sandbox already gone from its provider still counts: only the
// bookkeeping was stale.
func (m *Manager) CleanupInactiveSessions(ctx context.Context, maxInactive time.Duration) int {
	cutoff := time.Now().Add(-maxInactive)

	m.mu.Lock()
	var stale []types.Session
	for _, s := range m.sessions {
		if s.LastActivity.Before(cutoff) {
			stale = append(stale, *s)
		}
	}
	m.mu.Unlock()

	cleaned := 0
	for _, s := range stale {
		err := m.DeleteSandbox(ctx, s.SandboxID, s.Provider)
		if err != nil && !errors.Is(err, provider.ErrSandboxNotFound) {
			log.Printf("manager: reap %s (session %s): %v", s.SandboxID, s.ID, err)
			continue
		}
		cleaned++
		metrics.SessionsReapedTotal.Inc()
	}
	if cleaned > 0 {
		log.Printf("manager: reaped %d idle session(s)", cleaned)
	}
	return cleaned
}
