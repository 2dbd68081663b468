package snapshot

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bakeops/internal/api"
	"bakeops/internal/core"
	"bakeops/internal/reconcile"
	apperrors "bakeops/pkg/errors"
)

type mockLogger struct{}

func (m *mockLogger) Debug(msg string, f ...interface{})               {}
func (m *mockLogger) Info(msg string, f ...interface{})                {}
func (m *mockLogger) Warn(msg string, f ...interface{})                {}
func (m *mockLogger) Error(msg string, f ...interface{})               {}
func (m *mockLogger) Fatal(msg string, f ...interface{})               {}
func (m *mockLogger) WithField(k string, v interface{}) core.ILogger   { return m }
func (m *mockLogger) WithFields(f map[string]interface{}) core.ILogger { return m }

type mockLister struct {
	mu      sync.Mutex
	calls   int32
	queries []api.Query
	pages   []api.Page // consumed in call order; last one repeats
	err     error
	gate    chan struct{} // per-call release when non-nil
}

func (m *mockLister) List(ctx context.Context, kind core.RecordKind, q api.Query) (api.Page, error) {
	n := atomic.AddInt32(&m.calls, 1)
	m.mu.Lock()
	m.queries = append(m.queries, q)
	gate := m.gate
	m.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return api.Page{}, ctx.Err()
		}
	}
	if m.err != nil {
		return api.Page{}, m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	idx := int(n) - 1
	if idx >= len(m.pages) {
		idx = len(m.pages) - 1
	}
	if idx < 0 {
		return api.Page{}, nil
	}
	return m.pages[idx], nil
}

func startedStore(t *testing.T) *reconcile.Store {
	t.Helper()
	st := reconcile.NewStore(reconcile.NewState(), &mockLogger{})
	st.Start()
	t.Cleanup(st.Stop)
	return st
}

func waitForState(t *testing.T, st *reconcile.Store, cond func(reconcile.State) bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond(st.State()) {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("store never reached expected state")
}

func rec(id string) core.Record {
	return core.Record{ID: id, Number: "RET-" + id, Kind: core.KindReturn, Status: core.StatusPendingApproval}
}

func TestFetcher_RefreshAppliesSnapshot(t *testing.T) {
	lister := &mockLister{pages: []api.Page{{Items: []core.Record{rec("r1"), rec("r2")}, Total: 42}}}
	store := startedStore(t)
	f := NewFetcher(lister, store, Config{Kind: core.KindReturn}, &mockLogger{})

	f.Refresh()
	f.Wait()

	waitForState(t, store, func(s reconcile.State) bool { return s.TotalCount == 42 })
	state := store.State()
	assert.Len(t, state.Records, 2)
	assert.Equal(t, uint64(1), state.AppliedSeq)
}

func TestFetcher_QueryReflectsViewParameters(t *testing.T) {
	lister := &mockLister{pages: []api.Page{{}}}
	store := startedStore(t)
	store.Dispatch(reconcile.SetFilterStatus{Status: core.StatusPendingApproval})
	store.Dispatch(reconcile.SetFilterBranch{Branch: "branch-2"})
	store.Dispatch(reconcile.SetSearch{Query: "RET-7"})
	store.Dispatch(reconcile.SetViewMode{Mode: core.ViewModeCard})
	waitForState(t, store, func(s reconcile.State) bool { return s.ViewMode == core.ViewModeCard })

	f := NewFetcher(lister, store, Config{Kind: core.KindReturn}, &mockLogger{})
	f.Refresh()
	f.Wait()

	lister.mu.Lock()
	defer lister.mu.Unlock()
	require.Len(t, lister.queries, 1)
	q := lister.queries[0]
	assert.Equal(t, core.StatusPendingApproval, q.Status)
	assert.Equal(t, "branch-2", q.Branch)
	assert.Equal(t, "RET-7", q.Search)
	assert.Equal(t, 1, q.Page)
	assert.Equal(t, 10, q.Limit, "card view fetches pages of ten")
}

func TestFetcher_StaleResponseSuppressed(t *testing.T) {
	gate := make(chan struct{})
	lister := &mockLister{
		gate: gate,
		pages: []api.Page{
			{Items: []core.Record{rec("old")}, Total: 1},
			{Items: []core.Record{rec("new")}, Total: 1},
		},
	}
	store := startedStore(t)
	f := NewFetcher(lister, store, Config{Kind: core.KindReturn}, &mockLogger{})

	// Two requests in flight at once; both responses release together and
	// land in arbitrary order. Only the second request's data may win.
	f.Refresh()
	f.Refresh()
	close(gate)
	f.Wait()

	waitForState(t, store, func(s reconcile.State) bool { return s.AppliedSeq == 2 })
	state := store.State()
	require.Len(t, state.Records, 1)
	assert.Equal(t, "new", state.Records[0].ID)
}

func TestFetcher_FailureKeepsDataAndReportsError(t *testing.T) {
	lister := &mockLister{err: apperrors.ErrNetwork}
	store := startedStore(t)
	store.Dispatch(reconcile.AddRecord{Record: rec("kept")})
	waitForState(t, store, func(s reconcile.State) bool { return len(s.Records) == 1 })

	f := NewFetcher(lister, store, Config{Kind: core.KindReturn}, &mockLogger{})
	var mu sync.Mutex
	var got error
	f.SetOnError(func(err error) {
		mu.Lock()
		got = err
		mu.Unlock()
	})

	f.Refresh()
	f.Wait()

	mu.Lock()
	require.ErrorIs(t, got, apperrors.ErrNetwork)
	mu.Unlock()
	assert.Len(t, store.State().Records, 1, "failed fetch must not clear canonical data")
}

func TestFetcher_DebounceCoalesces(t *testing.T) {
	lister := &mockLister{pages: []api.Page{{}}}
	store := startedStore(t)
	f := NewFetcher(lister, store, Config{Kind: core.KindReturn, SearchDebounce: 50 * time.Millisecond}, &mockLogger{})
	defer f.Stop()

	for i := 0; i < 5; i++ {
		f.RefreshDebounced()
		time.Sleep(5 * time.Millisecond)
	}

	time.Sleep(150 * time.Millisecond)
	f.Wait()
	assert.Equal(t, int32(1), atomic.LoadInt32(&lister.calls), "burst of search input issues one fetch")
}
