package manager

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nimbuside/nimbus/internal/broadcast"
	"github.com/nimbuside/nimbus/internal/config"
	"github.com/nimbuside/nimbus/internal/provider"
	"github.com/nimbuside/nimbus/internal/provider/providertest"
	"github.com/nimbuside/nimbus/pkg/types"
)

func newTestManager(t *testing.T, opts Options, fakes ...*providertest.Fake) *Manager {
	t.Helper()
	reg := provider.NewRegistry()
	for _, f := range fakes {
		if err := reg.Register(f); err != nil {
			t.Fatalf("register %s: %v", f.Name(), err)
		}
	}
	return New(reg, opts)
}

func mustCreate(t *testing.T, m *Manager, providerName string) *types.Sandbox {
	t.Helper()
	sb, err := m.CreateSandbox(context.Background(), types.CreateOptions{Name: "test"}, providerName)
	if err != nil {
		t.Fatalf("create sandbox: %v", err)
	}
	return sb
}

func TestCreateRoundRobinSpreadsEvenly(t *testing.T) {
	a, b, c := providertest.New("a"), providertest.New("b"), providertest.New("c")
	m := newTestManager(t, Options{
		DefaultProvider: "a",
		LoadBalancing:   true,
		Strategy:        config.StrategyRoundRobin,
	}, a, b, c)

	for i := 0; i < 7; i++ {
		mustCreate(t, m, "")
	}
	if a.CreateCalls != 3 || b.CreateCalls != 2 || c.CreateCalls != 2 {
		t.Errorf("create calls = %d/%d/%d, want 3/2/2", a.CreateCalls, b.CreateCalls, c.CreateCalls)
	}
	if got := len(m.GetActiveSessions(types.SessionFilter{})); got != 7 {
		t.Errorf("active sessions = %d, want 7", got)
	}
}

func TestCreateLeastLoadedConverges(t *testing.T) {
	a, b := providertest.New("a"), providertest.New("b")
	m := newTestManager(t, Options{
		DefaultProvider: "a",
		LoadBalancing:   true,
		Strategy:        config.StrategyLeastLoaded,
	}, a, b)

	for i := 0; i < 4; i++ {
		mustCreate(t, m, "")
	}
	if m.ProviderLoad("a") != 2 || m.ProviderLoad("b") != 2 {
		t.Fatalf("loads = %d/%d, want 2/2", m.ProviderLoad("a"), m.ProviderLoad("b"))
	}

	// Free a slot on a; the next create must land there.
	sessions := m.GetActiveSessions(types.SessionFilter{Provider: "a"})
	if err := m.DeleteSandbox(context.Background(), sessions[0].SandboxID, ""); err != nil {
		t.Fatalf("delete: %v", err)
	}
	sb := mustCreate(t, m, "")
	if sb.Provider != "a" {
		t.Errorf("sandbox landed on %s, want a", sb.Provider)
	}
}

func TestCreateRandomPicksRegisteredProvider(t *testing.T) {
	a, b := providertest.New("a"), providertest.New("b")
	m := newTestManager(t, Options{
		DefaultProvider: "a",
		LoadBalancing:   true,
		Strategy:        config.StrategyRandom,
	}, a, b)

	sb := mustCreate(t, m, "")
	if sb.Provider != "a" && sb.Provider != "b" {
		t.Errorf("sandbox landed on %q", sb.Provider)
	}
}

func TestCreateDefaultWithoutLoadBalancing(t *testing.T) {
	a, b := providertest.New("a"), providertest.New("b")
	m := newTestManager(t, Options{DefaultProvider: "b"}, a, b)

	for i := 0; i < 3; i++ {
		mustCreate(t, m, "")
	}
	if a.CreateCalls != 0 || b.CreateCalls != 3 {
		t.Errorf("create calls = %d/%d, want 0/3", a.CreateCalls, b.CreateCalls)
	}
}

func TestCreateFailoverExactlyOnce(t *testing.T) {
	a, b := providertest.New("a"), providertest.New("b")
	a.CreateErr = errors.New("backend down")
	m := newTestManager(t, Options{
		DefaultProvider:  "a",
		FallbackProvider: "b",
		FailoverEnabled:  true,
	}, a, b)

	sb := mustCreate(t, m, "")
	if sb.Provider != "b" {
		t.Errorf("sandbox on %s, want fallback b", sb.Provider)
	}
	if a.CreateCalls != 1 || b.CreateCalls != 1 {
		t.Errorf("create calls = %d/%d, want 1/1", a.CreateCalls, b.CreateCalls)
	}

	s, ok := m.sessionFor(sb.ID)
	if !ok || s.Provider != "b" {
		t.Errorf("session provider = %q, want b", s.Provider)
	}
}

func TestCreateFailoverBothFail(t *testing.T) {
	a, b := providertest.New("a"), providertest.New("b")
	a.CreateErr = errors.New("a down")
	b.CreateErr = errors.New("b down")
	m := newTestManager(t, Options{
		DefaultProvider:  "a",
		FallbackProvider: "b",
		FailoverEnabled:  true,
	}, a, b)

	_, err := m.CreateSandbox(context.Background(), types.CreateOptions{}, "")
	if !errors.Is(err, provider.ErrCreationFailed) {
		t.Fatalf("err = %v, want ErrCreationFailed", err)
	}
	if a.CreateCalls != 1 || b.CreateCalls != 1 {
		t.Errorf("create calls = %d/%d, want 1/1", a.CreateCalls, b.CreateCalls)
	}
	if got := len(m.GetActiveSessions(types.SessionFilter{})); got != 0 {
		t.Errorf("sessions after double failure = %d, want 0", got)
	}
}

func TestExplicitProviderDisablesFailover(t *testing.T) {
	a, b := providertest.New("a"), providertest.New("b")
	a.CreateErr = errors.New("a down")
	m := newTestManager(t, Options{
		DefaultProvider:  "a",
		FallbackProvider: "b",
		FailoverEnabled:  true,
	}, a, b)

	_, err := m.CreateSandbox(context.Background(), types.CreateOptions{}, "a")
	if !errors.Is(err, provider.ErrCreationFailed) {
		t.Fatalf("err = %v, want ErrCreationFailed", err)
	}
	if b.CreateCalls != 0 {
		t.Errorf("fallback was tried despite explicit provider")
	}
}

func TestFailoverDisabledByConfig(t *testing.T) {
	a, b := providertest.New("a"), providertest.New("b")
	a.CreateErr = errors.New("a down")
	m := newTestManager(t, Options{
		DefaultProvider:  "a",
		FallbackProvider: "b",
		FailoverEnabled:  false,
	}, a, b)

	if _, err := m.CreateSandbox(context.Background(), types.CreateOptions{}, ""); err == nil {
		t.Fatal("expected error")
	}
	if b.CreateCalls != 0 {
		t.Errorf("fallback was tried with failover disabled")
	}
}

func TestResolveProbesAndCachesIntoSession(t *testing.T) {
	a, b := providertest.New("a"), providertest.New("b")
	m := newTestManager(t, Options{DefaultProvider: "a"}, a, b)

	// Sandbox created behind the manager's back, directly on b.
	sb, err := b.CreateSandbox(context.Background(), types.CreateOptions{Name: "orphan"})
	if err != nil {
		t.Fatal(err)
	}

	name, err := m.GetProviderForSandbox(context.Background(), sb.ID)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if name != "b" {
		t.Errorf("provider = %q, want b", name)
	}

	// Probing must have opened a session so the scan is not repeated.
	s, ok := m.sessionFor(sb.ID)
	if !ok {
		t.Fatal("no session cached after probe")
	}
	if s.Provider != "b" {
		t.Errorf("cached provider = %q, want b", s.Provider)
	}
	if m.ProviderLoad("b") != 1 {
		t.Errorf("load b = %d, want 1", m.ProviderLoad("b"))
	}
}

func TestGetSandboxUnknownID(t *testing.T) {
	m := newTestManager(t, Options{DefaultProvider: "a"}, providertest.New("a"))
	_, err := m.GetSandbox(context.Background(), "nope", "")
	if !errors.Is(err, provider.ErrSandboxNotFound) {
		t.Errorf("err = %v, want ErrSandboxNotFound", err)
	}
}

func TestDeleteClearsSessionAndLoad(t *testing.T) {
	a := providertest.New("a")
	m := newTestManager(t, Options{DefaultProvider: "a"}, a)

	sb := mustCreate(t, m, "")
	if m.ProviderLoad("a") != 1 {
		t.Fatalf("load = %d, want 1", m.ProviderLoad("a"))
	}
	if err := m.DeleteSandbox(context.Background(), sb.ID, ""); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if m.ProviderLoad("a") != 0 {
		t.Errorf("load after delete = %d, want 0", m.ProviderLoad("a"))
	}
	if _, ok := m.sessionFor(sb.ID); ok {
		t.Error("session survived delete")
	}

	// A second delete finds nothing anywhere.
	err := m.DeleteSandbox(context.Background(), sb.ID, "")
	if !errors.Is(err, provider.ErrSandboxNotFound) {
		t.Errorf("double delete err = %v, want ErrSandboxNotFound", err)
	}
	if m.ProviderLoad("a") != 0 {
		t.Errorf("load went negative-ish: %d", m.ProviderLoad("a"))
	}
}

func TestCleanupInactiveSessions(t *testing.T) {
	a := providertest.New("a")
	m := newTestManager(t, Options{DefaultProvider: "a"}, a)

	stale := mustCreate(t, m, "")
	fresh := mustCreate(t, m, "")

	m.mu.Lock()
	m.sessions[m.bySandbox[stale.ID]].LastActivity = time.Now().Add(-2 * time.Hour)
	m.sessions[m.bySandbox[fresh.ID]].LastActivity = time.Now().Add(-10 * time.Minute)
	m.mu.Unlock()

	n := m.CleanupInactiveSessions(context.Background(), time.Hour)
	if n != 1 {
		t.Fatalf("cleaned = %d, want 1", n)
	}
	if _, ok := m.sessionFor(stale.ID); ok {
		t.Error("stale session survived")
	}
	if _, ok := m.sessionFor(fresh.ID); !ok {
		t.Error("fresh session was reaped")
	}
}

func TestCleanupCountsAlreadyDeletedSandbox(t *testing.T) {
	a := providertest.New("a")
	m := newTestManager(t, Options{DefaultProvider: "a"}, a)

	sb := mustCreate(t, m, "")
	// Provider-side janitor got there first.
	if err := a.DeleteSandbox(context.Background(), sb.ID); err != nil {
		t.Fatal(err)
	}

	m.mu.Lock()
	m.sessions[m.bySandbox[sb.ID]].LastActivity = time.Now().Add(-2 * time.Hour)
	m.mu.Unlock()

	if n := m.CleanupInactiveSessions(context.Background(), time.Hour); n != 1 {
		t.Errorf("cleaned = %d, want 1", n)
	}
	if _, ok := m.sessionFor(sb.ID); ok {
		t.Error("stale session survived")
	}
}

func TestEventRelay(t *testing.T) {
	a := providertest.New("a")
	m := newTestManager(t, Options{DefaultProvider: "a"}, a)
	if err := m.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer m.Close()

	var mu sync.Mutex
	var got []provider.Event
	m.Events().Subscribe(provider.EventSandboxCreated, func(ev provider.Event) {
		mu.Lock()
		got = append(got, ev)
		mu.Unlock()
	})

	sb := mustCreate(t, m, "")

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 {
		t.Fatalf("relayed events = %d, want 1", len(got))
	}
	if got[0].SandboxID != sb.ID || got[0].Provider != "a" {
		t.Errorf("relayed event = %+v", got[0])
	}
}

func TestCapabilityGating(t *testing.T) {
	a := providertest.New("a")
	a.SetCapabilities(types.Capabilities{}) // nothing supported
	m := newTestManager(t, Options{DefaultProvider: "a"}, a)
	sb := mustCreate(t, m, "")
	ctx := context.Background()

	if err := m.WriteFile(ctx, sb.ID, "x.txt", "hi", ""); !provider.IsUnsupported(err) {
		t.Errorf("WriteFile err = %v, want UnsupportedError", err)
	}
	if _, err := m.CreateSnapshot(ctx, sb.ID, "s", ""); !provider.IsUnsupported(err) {
		t.Errorf("CreateSnapshot err = %v, want UnsupportedError", err)
	}
	if _, err := m.ConnectTerminal(ctx, sb.ID, types.TerminalOptions{}, ""); !provider.IsUnsupported(err) {
		t.Errorf("ConnectTerminal err = %v, want UnsupportedError", err)
	}
	if _, err := m.ForwardPort(ctx, sb.ID, 8080, ""); !provider.IsUnsupported(err) {
		t.Errorf("ForwardPort err = %v, want UnsupportedError", err)
	}
	res := types.Resources{CPU: 2}
	if _, err := m.UpdateSandbox(ctx, sb.ID, types.UpdateOptions{Resources: &res}, ""); !provider.IsUnsupported(err) {
		t.Errorf("UpdateSandbox resources err = %v, want UnsupportedError", err)
	}
	// Non-resource updates pass through regardless of scaling support.
	if _, err := m.UpdateSandbox(ctx, sb.ID, types.UpdateOptions{Name: "renamed"}, ""); err != nil {
		t.Errorf("UpdateSandbox name: %v", err)
	}
}

type recordingBroadcaster struct {
	mu     sync.Mutex
	events []broadcast.Event
}

func (r *recordingBroadcaster) Broadcast(ev broadcast.Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func TestFileChangesAreBroadcast(t *testing.T) {
	a := providertest.New("a")
	rec := &recordingBroadcaster{}
	m := newTestManager(t, Options{DefaultProvider: "a", Broadcaster: rec}, a)
	ctx := context.Background()

	sb, err := m.CreateSandbox(ctx, types.CreateOptions{UserID: "u1", ProjectID: "p1"}, "")
	if err != nil {
		t.Fatal(err)
	}
	if err := m.WriteFile(ctx, sb.ID, "src/app.js", "console.log(1)", ""); err != nil {
		t.Fatal(err)
	}
	if err := m.DeleteFile(ctx, sb.ID, "src/app.js", ""); err != nil {
		t.Fatal(err)
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.events) != 2 {
		t.Fatalf("broadcasts = %d, want 2", len(rec.events))
	}
	w := rec.events[0]
	if w.Type != broadcast.ChangeCreated || w.Path != "src/app.js" || w.Content != "console.log(1)" {
		t.Errorf("write broadcast = %+v", w)
	}
	if w.UserID != "u1" || w.ProjectID != "p1" || w.SandboxID != sb.ID {
		t.Errorf("broadcast attribution = %+v", w)
	}
	d := rec.events[1]
	if d.Type != broadcast.ChangeDeleted || d.Content != "" {
		t.Errorf("delete broadcast = %+v", d)
	}
}

func TestExecuteCommandNonZeroExit(t *testing.T) {
	a := providertest.New("a")
	m := newTestManager(t, Options{DefaultProvider: "a"}, a)
	sb := mustCreate(t, m, "")

	res, err := m.ExecuteCommand(context.Background(), sb.ID, "exit 7", types.ExecOptions{}, "")
	if err != nil {
		t.Fatalf("exec: %v", err)
	}
	if res.Success || res.ExitCode != 7 {
		t.Errorf("result = %+v, want failure with exit 7", res)
	}
}

func TestListSandboxesAggregatesProviders(t *testing.T) {
	a, b := providertest.New("a"), providertest.New("b")
	m := newTestManager(t, Options{DefaultProvider: "a"}, a, b)
	ctx := context.Background()

	mustCreate(t, m, "a")
	mustCreate(t, m, "b")
	mustCreate(t, m, "b")

	all, err := m.ListSandboxes(ctx, types.ListFilter{}, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Errorf("aggregated = %d, want 3", len(all))
	}

	onlyB, err := m.ListSandboxes(ctx, types.ListFilter{}, "b")
	if err != nil {
		t.Fatal(err)
	}
	if len(onlyB) != 2 {
		t.Errorf("provider b list = %d, want 2", len(onlyB))
	}
}

func TestGetActiveSessionsFilter(t *testing.T) {
	a, b := providertest.New("a"), providertest.New("b")
	m := newTestManager(t, Options{DefaultProvider: "a"}, a, b)
	ctx := context.Background()

	if _, err := m.CreateSandbox(ctx, types.CreateOptions{UserID: "u1"}, "a"); err != nil {
		t.Fatal(err)
	}
	if _, err := m.CreateSandbox(ctx, types.CreateOptions{UserID: "u2"}, "b"); err != nil {
		t.Fatal(err)
	}

	if got := len(m.GetActiveSessions(types.SessionFilter{Provider: "a"})); got != 1 {
		t.Errorf("provider filter = %d, want 1", got)
	}
	if got := len(m.GetActiveSessions(types.SessionFilter{UserID: "u2"})); got != 1 {
		t.Errorf("user filter = %d, want 1", got)
	}
	if got := len(m.GetActiveSessions(types.SessionFilter{})); got != 2 {
		t.Errorf("unfiltered = %d, want 2", got)
	}
}

func TestMetricsPollEmitsEvents(t *testing.T) {
	a := providertest.New("a")
	m := newTestManager(t, Options{DefaultProvider: "a"}, a)
	sb := mustCreate(t, m, "")

	var mu sync.Mutex
	var got []provider.Event
	m.Events().Subscribe(provider.EventSandboxMetrics, func(ev provider.Event) {
		mu.Lock()
		got = append(got, ev)
		mu.Unlock()
	})

	m.pollOnce(context.Background())

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 {
		t.Fatalf("metrics events = %d, want 1", len(got))
	}
	if got[0].SandboxID != sb.ID || got[0].Metrics == nil {
		t.Errorf("metrics event = %+v", got[0])
	}
}

func TestMetricsPollSwallowsFailures(t *testing.T) {
	a := providertest.New("a")
	m := newTestManager(t, Options{DefaultProvider: "a"}, a)
	mustCreate(t, m, "")
	a.MetricsErr = errors.New("unmeasurable")

	// Must not panic or emit.
	var count int
	m.Events().Subscribe(provider.EventSandboxMetrics, func(provider.Event) { count++ })
	m.pollOnce(context.Background())
	if count != 0 {
		t.Errorf("emitted %d metrics events from a failing provider", count)
	}
}

func TestHealthCheckProviders(t *testing.T) {
	a, b := providertest.New("a"), providertest.New("b")
	b.HealthErr = errors.New("degraded")
	m := newTestManager(t, Options{DefaultProvider: "a"}, a, b)

	results := m.HealthCheckProviders(context.Background())
	if results["a"] != nil {
		t.Errorf("a unhealthy: %v", results["a"])
	}
	if results["b"] == nil {
		t.Error("b reported healthy")
	}
}
