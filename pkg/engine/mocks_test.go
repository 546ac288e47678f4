package engine

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/brij-raghuwanshi-db/genie-forge-sub000/pkg/config"
	"github.com/brij-raghuwanshi-db/genie-forge-sub000/pkg/state"
)

var fixedNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// Mock remote for testing
type mockRemote struct {
	mu       sync.Mutex
	spaces   map[string]*RemoteSpace
	nextID   int
	fail     map[string]error
	getFail  map[string]error
	calls    []string
	delay    time.Duration
	inFlight atomic.Int32
	maxSeen  atomic.Int32
}

func newMockRemote() *mockRemote {
	return &mockRemote{
		spaces:  make(map[string]*RemoteSpace),
		fail:    make(map[string]error),
		getFail: make(map[string]error),
	}
}

func (m *mockRemote) Endpoint() string { return "https://example.cloud.databricks.com" }

func (m *mockRemote) enter() func() {
	n := m.inFlight.Add(1)
	for {
		seen := m.maxSeen.Load()
		if n <= seen || m.maxSeen.CompareAndSwap(seen, n) {
			break
		}
	}
	if m.delay > 0 {
		time.Sleep(m.delay)
	}
	return func() { m.inFlight.Add(-1) }
}

func (m *mockRemote) record(call string) {
	m.mu.Lock()
	m.calls = append(m.calls, call)
	m.mu.Unlock()
}

func (m *mockRemote) Create(ctx context.Context, cfg *config.SpaceConfig) (string, error) {
	defer m.enter()()
	m.record("create:" + cfg.LogicalID)

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail[cfg.LogicalID]; err != nil {
		return "", err
	}
	m.nextID++
	id := fmt.Sprintf("r%d", m.nextID)
	m.spaces[id] = &RemoteSpace{ID: id, Title: cfg.Title, WarehouseID: cfg.WarehouseID}
	return id, nil
}

func (m *mockRemote) Update(ctx context.Context, remoteID string, cfg *config.SpaceConfig) error {
	defer m.enter()()
	m.record("update:" + remoteID)

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail[cfg.LogicalID]; err != nil {
		return err
	}
	sp, ok := m.spaces[remoteID]
	if !ok {
		return errors.New("space does not exist")
	}
	sp.Title = cfg.Title
	return nil
}

func (m *mockRemote) Delete(ctx context.Context, remoteID string) error {
	defer m.enter()()
	m.record("delete:" + remoteID)

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail[remoteID]; err != nil {
		return err
	}
	delete(m.spaces, remoteID)
	return nil
}

func (m *mockRemote) Get(ctx context.Context, remoteID string) (*RemoteSpace, error) {
	m.record("get:" + remoteID)

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.getFail[remoteID]; err != nil {
		return nil, err
	}
	sp, ok := m.spaces[remoteID]
	if !ok {
		return nil, fmt.Errorf("space %s does not exist", remoteID)
	}
	cp := *sp
	return &cp, nil
}

func (m *mockRemote) List(ctx context.Context) ([]RemoteSpace, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]RemoteSpace, 0, len(m.spaces))
	for _, sp := range m.spaces {
		out = append(out, *sp)
	}
	return out, nil
}

func (m *mockRemote) FindByNamePattern(ctx context.Context, pattern string) ([]RemoteSpace, error) {
	return nil, nil
}

func (m *mockRemote) mutatingCalls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, c := range m.calls {
		if !strings.HasPrefix(c, "get:") {
			out = append(out, c)
		}
	}
	return out
}

// Mock recorder for testing
type mockRecorder struct {
	mu       sync.Mutex
	runs     map[string]string
	events   []string
	finished map[string]string
}

func newMockRecorder() *mockRecorder {
	return &mockRecorder{runs: make(map[string]string), finished: make(map[string]string)}
}

func (m *mockRecorder) StartRun(ctx context.Context, kind, environment string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := fmt.Sprintf("run-%d", len(m.runs)+1)
	m.runs[id] = kind + "/" + environment
	return id, nil
}

func (m *mockRecorder) RecordEvent(ctx context.Context, runID, logicalID, action, outcome, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, fmt.Sprintf("%s %s %s %s", runID, logicalID, action, outcome))
	return nil
}

func (m *mockRecorder) FinishRun(ctx context.Context, runID, status, summary string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.finished[runID] = status
	return nil
}

// Mock policy for testing
type mockPolicy struct {
	denyApply   bool
	denyDestroy bool
	destroyed   [][]string
}

func (m *mockPolicy) EvaluatePlan(ctx context.Context, plan *Plan) (*PolicyResult, error) {
	if m.denyApply {
		return &PolicyResult{
			Allowed:    false,
			Violations: []PolicyViolation{{Policy: "test", Message: "apply blocked", Severity: "error"}},
		}, nil
	}
	return &PolicyResult{Allowed: true, Warnings: []string{"looks fine"}}, nil
}

func (m *mockPolicy) EvaluateDestroy(ctx context.Context, env string, logicalIDs []string) (*PolicyResult, error) {
	m.destroyed = append(m.destroyed, logicalIDs)
	if m.denyDestroy {
		return &PolicyResult{
			Allowed:    false,
			Violations: []PolicyViolation{{Policy: "test", Message: "destroy blocked in " + env, Severity: "error"}},
		}, nil
	}
	return &PolicyResult{Allowed: true}, nil
}

func newTestStore(t *testing.T) *state.FileStore {
	t.Helper()
	return state.NewFileStore(state.Options{
		Path:      filepath.Join(t.TempDir(), state.DefaultPath),
		ProjectID: "proj-test",
		Now:       func() time.Time { return fixedNow },
	})
}

func newTestReconciler(t *testing.T, opts ...Option) (*Reconciler, *state.FileStore) {
	t.Helper()
	store := newTestStore(t)
	opts = append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)
	return NewReconciler(store, opts...), store
}

func space(id, title string) *config.SpaceConfig {
	return &config.SpaceConfig{
		LogicalID:   id,
		Title:       title,
		WarehouseID: "wh-1",
		DataSources: config.DataSources{
			Tables: []config.TableConfig{{Identifier: "main.sales." + id}},
		},
	}
}

// seed puts an applied entry for cfg into env and saves.
func seed(t *testing.T, store *state.FileStore, env string, cfg *config.SpaceConfig, remoteID string) *state.SpaceState {
	t.Helper()
	envState, err := store.GetOrCreateEnvironment(env, "https://example.cloud.databricks.com")
	if err != nil {
		t.Fatalf("GetOrCreateEnvironment failed: %v", err)
	}
	entry := &state.SpaceState{LogicalID: cfg.LogicalID}
	entry.MarkApplied(remoteID, cfg.Title, cfg.ConfigHash(), fixedNow.Add(-time.Hour))
	envState.Spaces[cfg.LogicalID] = entry
	if err := store.Save(); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	return entry
}

func mustEnv(t *testing.T, store *state.FileStore, env string) *state.EnvironmentState {
	t.Helper()
	envState, ok := store.Environment(env)
	if !ok {
		t.Fatalf("environment %s not tracked", env)
	}
	return envState
}

func driftIDs(items []DriftItem) []string {
	ids := make([]string, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.LogicalID)
	}
	return ids
}

func itoa(n int64) string {
	return strconv.FormatInt(n, 10)
}
