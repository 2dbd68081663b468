// Package reconcile owns the canonical record list and the pure state
// transitions that merge REST snapshots, realtime events, and action
// outcomes into it.
package reconcile

import "bakeops/internal/core"

// State is the complete reducer-owned state: the canonical record list,
// the server-authoritative count, and the UI-facing view substate.
type State struct {
	Records    []core.Record
	TotalCount int

	FilterStatus core.RecordStatus // empty means all statuses
	FilterBranch string            // empty means all branches
	SearchQuery  string
	SortBy       string
	SortOrder    core.SortOrder
	CurrentPage  int
	ViewMode     core.ViewMode

	// SubmittingID is the single submission token: the record id with a
	// mutation in flight, or empty.
	SubmittingID string

	Connection core.ConnState

	// HighestSeq is the largest fetch sequence number issued so far. A
	// snapshot applies only when its tag equals this value; anything older
	// was superseded while in flight.
	HighestSeq uint64
	// AppliedSeq is the sequence number of the last snapshot that was
	// actually merged.
	AppliedSeq uint64
}

// NewState returns the initial engine state.
func NewState() State {
	return State{
		SortBy:      "createdAt",
		SortOrder:   core.SortDesc,
		CurrentPage: 1,
		ViewMode:    core.ViewModeTable,
		Connection:  core.ConnDisconnected,
	}
}

// SnapshotCurrent reports whether a snapshot tagged seq still answers the
// newest issued request. The reducer merges a SetList only when this holds,
// and the store uses the same predicate against the pre-apply state to tell
// an applied snapshot from a superseded one.
func (s State) SnapshotCurrent(seq uint64) bool {
	return seq == s.HighestSeq
}

// Find returns the index of the record with the given id, or -1.
func (s State) Find(id string) int {
	for i := range s.Records {
		if s.Records[i].ID == id {
			return i
		}
	}
	return -1
}

// cloneRecords copies the record slice so a transition never mutates the
// slice the previous state still references.
func (s State) cloneRecords() []core.Record {
	if s.Records == nil {
		return nil
	}
	out := make([]core.Record, len(s.Records))
	copy(out, s.Records)
	return out
}
