package reconcile

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bakeops/internal/core"
)

type mockLogger struct{}

func (m *mockLogger) Debug(msg string, f ...interface{})               {}
func (m *mockLogger) Info(msg string, f ...interface{})                {}
func (m *mockLogger) Warn(msg string, f ...interface{})                {}
func (m *mockLogger) Error(msg string, f ...interface{})               {}
func (m *mockLogger) Fatal(msg string, f ...interface{})               {}
func (m *mockLogger) WithField(k string, v interface{}) core.ILogger   { return m }
func (m *mockLogger) WithFields(f map[string]interface{}) core.ILogger { return m }

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met within deadline")
}

func TestStore_SerializesDispatches(t *testing.T) {
	st := NewStore(NewState(), &mockLogger{})
	st.Start()
	defer st.Stop()

	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				st.Dispatch(AddRecord{Record: testRecord(fmt.Sprintf("g%d-r%d", g, i), core.StatusPendingApproval)})
			}
		}(g)
	}
	wg.Wait()

	waitFor(t, func() bool { return len(st.State().Records) == 100 })
	assert.Equal(t, 100, st.State().TotalCount)
}

func TestStore_StateSnapshotIsIsolated(t *testing.T) {
	st := NewStore(stateWith(testRecord("r1", core.StatusPendingApproval)), &mockLogger{})
	st.Start()
	defer st.Stop()

	snap := st.State()
	snap.Records[0].ID = "tampered"

	assert.Equal(t, "r1", st.State().Records[0].ID)
}

func TestStore_SubscriberSeesAppliedState(t *testing.T) {
	st := NewStore(NewState(), &mockLogger{})
	sub := st.Subscribe(16)
	st.Start()
	defer st.Stop()

	st.Dispatch(AddRecord{Record: testRecord("r1", core.StatusPendingApproval)})

	select {
	case s := <-sub:
		require.Len(t, s.Records, 1)
		assert.Equal(t, "r1", s.Records[0].ID)
	case <-time.After(2 * time.Second):
		t.Fatal("no state notification received")
	}
}

func TestStore_RejectedActionLeavesStateUntouched(t *testing.T) {
	st := NewStore(stateWith(testRecord("r1", core.StatusProcessed)), &mockLogger{})
	st.Start()
	defer st.Stop()

	st.Dispatch(UpdateStatus{ID: "r1", Status: core.StatusApproved})
	st.Dispatch(SetPage{Page: 2}) // marker applied after the refused action

	waitFor(t, func() bool { return st.State().CurrentPage == 2 })
	assert.Equal(t, core.StatusProcessed, st.State().Records[0].Status)
}

func TestStore_DispatchAfterStopDoesNotBlock(t *testing.T) {
	st := NewStore(NewState(), &mockLogger{})
	st.Start()
	st.Stop()

	done := make(chan struct{})
	go func() {
		st.Dispatch(SetPage{Page: 2})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Dispatch blocked after Stop")
	}
}

func TestStore_DispatchWaitObservesResult(t *testing.T) {
	st := NewStore(NewState(), &mockLogger{})
	st.Start()
	defer st.Stop()

	for i := 1; i <= 20; i++ {
		st.DispatchWait(SetPage{Page: i})
		if got := st.State().CurrentPage; got != i {
			t.Fatalf("expected page %d after DispatchWait, got %d", i, got)
		}
	}
}

func TestStore_ZeroSeqSnapshotNotifiesSubscribers(t *testing.T) {
	st := NewStore(NewState(), &mockLogger{})
	sub := st.Subscribe(16)
	st.Start()
	defer st.Stop()

	// A cached boot snapshot is tagged with the pristine state's sequence.
	// It must count as applied, not as a superseded response.
	st.DispatchWait(FetchStarted{Seq: 0})
	st.DispatchWait(SetList{Items: []core.Record{testRecord("r1", core.StatusPendingApproval)}, Total: 5, Seq: 0})

	require.Equal(t, 5, st.State().TotalCount)
	select {
	case s := <-sub:
		assert.Equal(t, 5, s.TotalCount)
		require.Len(t, s.Records, 1)
		assert.Equal(t, "r1", s.Records[0].ID)
	case <-time.After(2 * time.Second):
		t.Fatal("no state notification received for the boot snapshot")
	}

	// A genuinely superseded response still stays silent.
	st.DispatchWait(FetchStarted{Seq: 1})
	st.DispatchWait(FetchStarted{Seq: 2})
	st.DispatchWait(SetList{Total: 9, Seq: 1})
	assert.Equal(t, 5, st.State().TotalCount)
	select {
	case s := <-sub:
		t.Fatalf("stale snapshot notified subscribers: %+v", s)
	case <-time.After(50 * time.Millisecond):
	}
}
