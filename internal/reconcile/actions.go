package reconcile

import (
	"bakeops/internal/core"

	"github.com/shopspring/decimal"
)

// Action is the tagged union of every state transition the reducer accepts.
// All inputs — user intent, realtime events, fetch resolutions, and action
// outcomes — arrive as one of these.
type Action interface {
	actionName() string
}

// FetchStarted records that a snapshot fetch was issued with the given
// sequence number. Dispatched at issue time so the reducer can recognize
// superseded responses when they eventually arrive.
type FetchStarted struct {
	Seq uint64
}

// SetList replaces the canonical list with a server snapshot. Applied only
// when Seq still equals the highest issued sequence number.
type SetList struct {
	Items []core.Record
	Total int
	Seq   uint64
}

// AddRecord prepends a newly created record. The dispatch site is expected
// to have run the admission predicate first; the reducer still refuses
// duplicate ids.
type AddRecord struct {
	Record core.Record
}

// UpdateStatus transitions a record's status and merges the optional
// server-returned fields. Unknown ids are a no-op; invalid transitions are
// refused.
type UpdateStatus struct {
	ID            string
	Status        core.RecordStatus
	ReviewNotes   *string
	AdjustedTotal *decimal.Decimal
	Note          string
}

// UpdateItem updates the status of one line item on one record. Unknown
// record or item ids are a no-op.
type UpdateItem struct {
	RecordID string
	ItemID   string
	Status   core.ItemStatus
}

// SetFilterStatus changes the status filter and resets pagination.
type SetFilterStatus struct {
	Status core.RecordStatus
}

// SetFilterBranch changes the branch filter and resets pagination.
type SetFilterBranch struct {
	Branch string
}

// SetSearch changes the search query and resets pagination.
type SetSearch struct {
	Query string
}

// SetSort changes the sort column and direction.
type SetSort struct {
	By    string
	Order core.SortOrder
}

// SetPage moves to a page (1-based).
type SetPage struct {
	Page int
}

// SetViewMode switches between card and table layout, resetting to page 1.
type SetViewMode struct {
	Mode core.ViewMode
}

// SetSubmitting sets or clears the submission token. Empty clears.
type SetSubmitting struct {
	ID string
}

// SetConnection records the realtime channel connection state.
type SetConnection struct {
	State core.ConnState
}

func (FetchStarted) actionName() string    { return "fetchStarted" }
func (SetList) actionName() string         { return "setList" }
func (AddRecord) actionName() string       { return "addRecord" }
func (UpdateStatus) actionName() string    { return "updateStatus" }
func (UpdateItem) actionName() string      { return "updateItem" }
func (SetFilterStatus) actionName() string { return "setFilterStatus" }
func (SetFilterBranch) actionName() string { return "setFilterBranch" }
func (SetSearch) actionName() string       { return "setSearch" }
func (SetSort) actionName() string         { return "setSort" }
func (SetPage) actionName() string         { return "setPage" }
func (SetViewMode) actionName() string     { return "setViewMode" }
func (SetSubmitting) actionName() string   { return "setSubmitting" }
func (SetConnection) actionName() string   { return "setConnection" }

// Name returns the wire-style name of an action for logs and metrics.
func Name(a Action) string {
	if a == nil {
		return "nil"
	}
	return a.actionName()
}
