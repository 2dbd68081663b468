// Package snapshot issues sequence-tagged REST snapshot fetches for the
// current view parameters.
package snapshot

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"bakeops/internal/api"
	"bakeops/internal/core"
	"bakeops/internal/reconcile"
)

// Lister is the slice of the API client the fetcher uses.
type Lister interface {
	List(ctx context.Context, kind core.RecordKind, q api.Query) (api.Page, error)
}

// Fetcher drives the request/response cycle for snapshots. Each fetch is
// tagged with a strictly increasing sequence number at issue time; whether
// the result is applied is the reducer's decision. There is no cancellation
// of in-flight requests, only suppression on arrival.
type Fetcher struct {
	api    Lister
	store  *reconcile.Store
	kind   core.RecordKind
	logger core.ILogger

	timeout time.Duration
	seq     atomic.Uint64

	// Search input is coalesced through a quiet period so fast typing
	// issues one fetch, not one per keystroke.
	debounceWait time.Duration
	debounceMu   sync.Mutex
	debounce     *time.Timer

	onError func(error)

	wg sync.WaitGroup
}

// Config tunes the fetcher.
type Config struct {
	Kind           core.RecordKind
	RequestTimeout time.Duration
	SearchDebounce time.Duration
}

// NewFetcher creates a fetcher feeding the given store.
func NewFetcher(apiClient Lister, store *reconcile.Store, cfg Config, logger core.ILogger) *Fetcher {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Second
	}
	if cfg.SearchDebounce <= 0 {
		cfg.SearchDebounce = 300 * time.Millisecond
	}
	return &Fetcher{
		api:          apiClient,
		store:        store,
		kind:         cfg.Kind,
		logger:       logger.WithField("component", "snapshot_fetcher"),
		timeout:      cfg.RequestTimeout,
		debounceWait: cfg.SearchDebounce,
	}
}

// SetOnError registers the observer for fetch failures. Canonical data is
// never cleared on failure; the observer surfaces a retry banner.
func (f *Fetcher) SetOnError(cb func(error)) {
	f.onError = cb
}

// Refresh issues a fetch for the store's current view parameters. The
// sequence tag is dispatched at issue time so any response that arrives
// after a newer request was issued is discarded by the reducer.
func (f *Fetcher) Refresh() {
	state := f.store.State()
	seq := f.seq.Add(1)
	f.store.Dispatch(reconcile.FetchStarted{Seq: seq})

	query := api.Query{
		Status:    state.FilterStatus,
		Branch:    state.FilterBranch,
		Search:    state.SearchQuery,
		SortBy:    state.SortBy,
		SortOrder: state.SortOrder,
		Page:      state.CurrentPage,
		Limit:     state.ViewMode.PageSize(),
	}

	f.wg.Add(1)
	go func() {
		defer f.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), f.timeout)
		defer cancel()

		page, err := f.api.List(ctx, f.kind, query)
		if err != nil {
			f.logger.Error("Snapshot fetch failed", "seq", seq, "page", query.Page, "error", err)
			if f.onError != nil {
				f.onError(err)
			}
			return
		}

		f.store.Dispatch(reconcile.SetList{Items: page.Items, Total: page.Total, Seq: seq})
		f.logger.Debug("Snapshot fetched", "seq", seq, "items", len(page.Items), "total", page.Total)
	}()
}

// RefreshDebounced schedules a Refresh after the quiet period, resetting
// the timer if another call lands first.
func (f *Fetcher) RefreshDebounced() {
	f.debounceMu.Lock()
	defer f.debounceMu.Unlock()

	if f.debounce != nil {
		f.debounce.Stop()
	}
	f.debounce = time.AfterFunc(f.debounceWait, f.Refresh)
}

// Wait blocks until in-flight fetches settle. Test hook.
func (f *Fetcher) Wait() {
	f.wg.Wait()
}

// Stop cancels a pending debounced refresh and waits for in-flight fetches.
func (f *Fetcher) Stop() {
	f.debounceMu.Lock()
	if f.debounce != nil {
		f.debounce.Stop()
		f.debounce = nil
	}
	f.debounceMu.Unlock()
	f.wg.Wait()
}
