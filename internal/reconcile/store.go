package reconcile

import (
	"context"
	"sync"

	"bakeops/internal/core"
	"bakeops/pkg/telemetry"
)

// Store serializes every dispatch through a single goroutine so no two
// transitions ever interleave, regardless of origin (user intent, stream
// callback, fetch resolution). Dispatches apply in enqueue order; each is
// applied synchronously to completion before the next.
type Store struct {
	logger core.ILogger

	mu    sync.RWMutex
	state State

	actions chan Action

	subMu sync.Mutex
	subs  []chan State

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewStore creates a store around the given initial state.
func NewStore(initial State, logger core.ILogger) *Store {
	ctx, cancel := context.WithCancel(context.Background())
	return &Store{
		logger:  logger.WithField("component", "store"),
		state:   initial,
		actions: make(chan Action, 256),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start begins the dispatch loop.
func (st *Store) Start() {
	st.wg.Add(1)
	go st.runLoop()
}

// Stop drains nothing; pending dispatches past the cancellation point are
// dropped. Callers stop producers first.
func (st *Store) Stop() {
	st.cancel()
	st.wg.Wait()

	st.subMu.Lock()
	defer st.subMu.Unlock()
	for _, ch := range st.subs {
		close(ch)
	}
	st.subs = nil
}

// Dispatch enqueues an action. It blocks only if the queue is full, and
// returns without enqueuing once the store is stopped.
func (st *Store) Dispatch(a Action) {
	select {
	case st.actions <- a:
	case <-st.ctx.Done():
	}
}

// syncAction wraps an action with an applied signal for DispatchWait.
type syncAction struct {
	Action
	done chan struct{}
}

// DispatchWait enqueues an action and blocks until it has been applied.
// Callers that must observe the resulting state, filter changes followed by
// a fetch for instance, use this instead of Dispatch.
func (st *Store) DispatchWait(a Action) {
	done := make(chan struct{})
	select {
	case st.actions <- syncAction{Action: a, done: done}:
	case <-st.ctx.Done():
		return
	}
	select {
	case <-done:
	case <-st.ctx.Done():
	}
}

// State returns a snapshot of the current state. The record slice is copied;
// records themselves are treated as immutable values.
func (st *Store) State() State {
	st.mu.RLock()
	defer st.mu.RUnlock()
	s := st.state
	s.Records = st.state.cloneRecords()
	return s
}

// Subscribe registers a post-apply state observer. Slow subscribers miss
// intermediate states rather than blocking the loop.
func (st *Store) Subscribe(buffer int) <-chan State {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan State, buffer)
	st.subMu.Lock()
	st.subs = append(st.subs, ch)
	st.subMu.Unlock()
	return ch
}

func (st *Store) runLoop() {
	defer st.wg.Done()

	for {
		select {
		case <-st.ctx.Done():
			return
		case a := <-st.actions:
			st.apply(a)
		}
	}
}

func (st *Store) apply(a Action) {
	if sa, ok := a.(syncAction); ok {
		defer close(sa.done)
		a = sa.Action
	}

	st.mu.Lock()
	prev := st.state
	next, rejection := Apply(prev, a)
	st.state = next
	st.mu.Unlock()

	metrics := telemetry.GetGlobalMetrics()

	if rejection != nil {
		st.logger.Warn("Action refused", "action", rejection.Action, "reason", rejection.Reason)
		metrics.RecordActionRejected(context.Background(), rejection.Action)
		return
	}

	if setList, ok := a.(SetList); ok {
		if prev.SnapshotCurrent(setList.Seq) {
			metrics.RecordSnapshotApplied(context.Background())
		} else {
			st.logger.Debug("Stale snapshot suppressed", "seq", setList.Seq, "highest", next.HighestSeq)
			metrics.RecordStaleSnapshot(context.Background())
			return
		}
	}

	metrics.SetCanonicalRecords(int64(len(next.Records)))

	st.notify(next)
}

func (st *Store) notify(s State) {
	st.subMu.Lock()
	defer st.subMu.Unlock()
	for _, ch := range st.subs {
		snapshot := s
		snapshot.Records = s.cloneRecords()
		select {
		case ch <- snapshot:
		default:
		}
	}
}
