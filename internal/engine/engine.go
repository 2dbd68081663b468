// Package engine wires the reconciliation store, the realtime stream, the
// snapshot fetcher, the action coordinator, and the notification projector
// into one running unit.
package engine

import (
	"context"
	"fmt"

	"bakeops/internal/actions"
	"bakeops/internal/api"
	"bakeops/internal/cache"
	"bakeops/internal/core"
	"bakeops/internal/notify"
	"bakeops/internal/reconcile"
	"bakeops/internal/snapshot"
	"bakeops/internal/stream"
	"bakeops/pkg/telemetry"
)

// Engine owns the full reconciliation pipeline for one record kind. All
// mutation flows through the store's dispatch loop; the engine's methods
// only translate intent, stream callbacks, and fetch results into
// dispatches.
type Engine struct {
	kind        core.RecordKind
	store       *reconcile.Store
	stream      *stream.Stream
	fetcher     *snapshot.Fetcher
	coordinator *actions.Coordinator
	projector   *notify.Projector
	snapshots   *cache.SnapshotStore // optional warm-start cache
	logger      core.ILogger
}

// Options collects the engine's collaborators.
type Options struct {
	Kind        core.RecordKind
	Store       *reconcile.Store
	Stream      *stream.Stream
	Fetcher     *snapshot.Fetcher
	Coordinator *actions.Coordinator
	Projector   *notify.Projector
	Snapshots   *cache.SnapshotStore
}

// New assembles an engine from its collaborators.
func New(opts Options, logger core.ILogger) *Engine {
	e := &Engine{
		kind:        opts.Kind,
		store:       opts.Store,
		stream:      opts.Stream,
		fetcher:     opts.Fetcher,
		coordinator: opts.Coordinator,
		projector:   opts.Projector,
		snapshots:   opts.Snapshots,
		logger:      logger.WithField("component", "engine"),
	}

	e.stream.SetHandler(e.handleEvent)
	e.stream.SetOnStateChange(func(state core.ConnState) {
		e.store.Dispatch(reconcile.SetConnection{State: state})
	})
	e.stream.SetOnResync(e.fetcher.Refresh)
	return e
}

// Start warms the view from the local cache if one is configured, then
// brings up the dispatch loop and the realtime channel. The channel's
// connect callback issues the first authoritative fetch.
func (e *Engine) Start(ctx context.Context) error {
	e.store.Start()

	if e.snapshots != nil {
		if page, ok, err := e.snapshots.Load(ctx, e.viewKey()); err != nil {
			e.logger.Warn("Snapshot cache unavailable", "error", err)
		} else if ok {
			e.logger.Info("Warming view from cached snapshot", "items", len(page.Items), "total", page.Total)
			seq := e.warmSeq()
			e.store.Dispatch(reconcile.FetchStarted{Seq: seq})
			e.store.Dispatch(reconcile.SetList{Items: page.Items, Total: page.Total, Seq: seq})
		}
	}

	e.stream.Start()
	e.logger.Info("Engine started", "kind", e.kind)
	return nil
}

// Stop tears the pipeline down in dependency order.
func (e *Engine) Stop(ctx context.Context) error {
	e.stream.Stop()
	e.fetcher.Stop()
	e.store.Stop()

	if e.snapshots != nil {
		state := e.store.State()
		if len(state.Records) > 0 {
			if err := e.snapshots.Save(ctx, e.viewKey(), api.Page{Items: state.Records, Total: state.TotalCount}); err != nil {
				e.logger.Warn("Failed to persist snapshot cache", "error", err)
			}
		}
	}

	e.logger.Info("Engine stopped")
	return nil
}

// handleEvent routes one validated, deduplicated stream event. Creation
// events are checked against the active filter predicate here, at the
// dispatch site: the server owns the count for the active query, so an
// out-of-filter record is dropped entirely rather than queued.
func (e *Engine) handleEvent(ev stream.Event) {
	state := e.store.State()

	// Push-driven updates pause while the channel reports a loss; the
	// reconnect refetch re-anchors everything missed.
	if state.Connection != core.ConnConnected {
		e.logger.Debug("Ignoring event while channel is down", "kind", ev.Kind())
		telemetry.GetGlobalMetrics().RecordEventDropped(context.Background(), "channel_down")
		return
	}

	switch event := ev.(type) {
	case stream.Created:
		if event.RecordKind != e.kind {
			break
		}
		if !reconcile.Admits(state, event.Record) {
			e.logger.Debug("Creation outside active filter dropped", "record", event.Record.ID)
			telemetry.GetGlobalMetrics().RecordEventDropped(context.Background(), "filtered")
			return
		}
		e.store.Dispatch(reconcile.AddRecord{Record: event.Record})

	case stream.StatusUpdated:
		if event.RecordKind != e.kind {
			break
		}
		e.store.Dispatch(reconcile.UpdateStatus{
			ID:            event.RecordID,
			Status:        event.Status,
			ReviewNotes:   event.ReviewNotes,
			AdjustedTotal: event.AdjustedTotal,
		})

	case stream.ItemUpdated:
		e.store.Dispatch(reconcile.UpdateItem{
			RecordID: event.RecordID,
			ItemID:   event.ItemID,
			Status:   event.Status,
		})
	}

	e.projector.OnEvent(ev)
}

// SetFilterStatus changes the status filter and refetches.
func (e *Engine) SetFilterStatus(status core.RecordStatus) {
	e.store.DispatchWait(reconcile.SetFilterStatus{Status: status})
	e.fetcher.Refresh()
}

// SetFilterBranch changes the branch filter and refetches.
func (e *Engine) SetFilterBranch(branch string) {
	e.store.DispatchWait(reconcile.SetFilterBranch{Branch: branch})
	e.fetcher.Refresh()
}

// Search updates the query immediately and coalesces the refetch through
// the quiet-period debouncer.
func (e *Engine) Search(query string) {
	e.store.DispatchWait(reconcile.SetSearch{Query: query})
	e.fetcher.RefreshDebounced()
}

// SetSort changes the sort and refetches.
func (e *Engine) SetSort(by string, order core.SortOrder) {
	e.store.DispatchWait(reconcile.SetSort{By: by, Order: order})
	e.fetcher.Refresh()
}

// SetPage moves to a page and refetches.
func (e *Engine) SetPage(page int) {
	e.store.DispatchWait(reconcile.SetPage{Page: page})
	e.fetcher.Refresh()
}

// SetViewMode switches layout, which resets to page 1 and forces a fetch
// with the new page size.
func (e *Engine) SetViewMode(mode core.ViewMode) {
	e.store.DispatchWait(reconcile.SetViewMode{Mode: mode})
	e.fetcher.Refresh()
}

// Approve submits an approval for the record.
func (e *Engine) Approve(ctx context.Context, recordID, notes string, items []core.RecordItem) (actions.Outcome, error) {
	return e.submit(ctx, recordID, actions.Approve, notes, items)
}

// Reject submits a rejection for the record.
func (e *Engine) Reject(ctx context.Context, recordID, notes string, items []core.RecordItem) (actions.Outcome, error) {
	return e.submit(ctx, recordID, actions.Reject, notes, items)
}

func (e *Engine) submit(ctx context.Context, recordID string, action actions.ActionType, notes string, items []core.RecordItem) (actions.Outcome, error) {
	state := e.store.State()
	idx := state.Find(recordID)
	if idx < 0 {
		return actions.Outcome{}, fmt.Errorf("record %s not in canonical state", recordID)
	}
	return e.coordinator.Submit(ctx, state.Records[idx], action, notes, items)
}

// State returns a snapshot of the canonical state.
func (e *Engine) State() reconcile.State {
	return e.store.State()
}

// View derives the visible slice for the current view parameters. Transient
// render aid only; counts come from snapshot responses.
func (e *Engine) View() []core.Record {
	return reconcile.VisibleSlice(e.store.State())
}

// Notifications exposes the notification feed.
func (e *Engine) Notifications() *notify.Projector {
	return e.projector
}

func (e *Engine) viewKey() string {
	return string(e.kind)
}

// warmSeq yields a sequence tag for the cached snapshot without consuming a
// fetcher sequence number: zero is below every issued tag, so the warm data
// loses to any real response, yet applies to the pristine state.
func (e *Engine) warmSeq() uint64 {
	return 0
}
