package reconcile

import (
	"fmt"

	"bakeops/internal/core"
)

// Rejection explains why the reducer refused an action. The state is
// unchanged when one is returned; the store logs it and bumps a metric.
// Stale snapshots and updates for absent records are silent no-ops, not
// rejections.
type Rejection struct {
	Action string
	Reason string
}

func (r *Rejection) String() string {
	return fmt.Sprintf("%s refused: %s", r.Action, r.Reason)
}

// Apply is the pure state-transition function. It performs no I/O, reads no
// clock, and never mutates the input state; every piece of time or identity
// it needs is carried in the action payload.
func Apply(s State, a Action) (State, *Rejection) {
	switch act := a.(type) {

	case FetchStarted:
		if act.Seq > s.HighestSeq {
			s.HighestSeq = act.Seq
		}
		return s, nil

	case SetList:
		// A response for anything but the newest issued request was
		// superseded while in flight. Dropped silently; the newest
		// request's response carries the authoritative view.
		if !s.SnapshotCurrent(act.Seq) {
			return s, nil
		}
		items := make([]core.Record, len(act.Items))
		for i := range act.Items {
			items[i] = act.Items[i].Clone()
		}
		s.Records = items
		s.TotalCount = act.Total
		s.AppliedSeq = act.Seq
		return s, nil

	case AddRecord:
		if act.Record.ID == "" {
			return s, &Rejection{Action: Name(a), Reason: "record has no id"}
		}
		if s.Find(act.Record.ID) >= 0 {
			return s, &Rejection{Action: Name(a), Reason: "duplicate record id " + act.Record.ID}
		}
		records := make([]core.Record, 0, len(s.Records)+1)
		records = append(records, act.Record.Clone())
		records = append(records, s.Records...)
		s.Records = records
		s.TotalCount++
		return s, nil

	case UpdateStatus:
		idx := s.Find(act.ID)
		if idx < 0 {
			// Outside the current page or filter; the next fetch picks it
			// up. Never fabricate a record from an update.
			return s, nil
		}
		rec := s.Records[idx]
		if !act.Status.Valid() {
			return s, &Rejection{Action: Name(a), Reason: "unknown status " + string(act.Status)}
		}
		if !rec.Status.CanTransitionTo(act.Status) {
			return s, &Rejection{
				Action: Name(a),
				Reason: fmt.Sprintf("illegal transition %s -> %s for %s", rec.Status, act.Status, act.ID),
			}
		}
		updated := rec.Clone()
		updated.StatusHistory = append(updated.StatusHistory, core.StatusChange{
			From: rec.Status,
			To:   act.Status,
			Note: act.Note,
		})
		updated.Status = act.Status
		if act.ReviewNotes != nil {
			updated.ReviewNotes = *act.ReviewNotes
		}
		if act.AdjustedTotal != nil {
			updated.AdjustedTotal = *act.AdjustedTotal
		}
		s.Records = s.cloneRecords()
		s.Records[idx] = updated
		return s, nil

	case UpdateItem:
		idx := s.Find(act.RecordID)
		if idx < 0 {
			return s, nil
		}
		rec := s.Records[idx].Clone()
		found := false
		for i := range rec.Items {
			if rec.Items[i].ID == act.ItemID {
				rec.Items[i].Status = act.Status
				found = true
				break
			}
		}
		if !found {
			return s, nil
		}
		s.Records = s.cloneRecords()
		s.Records[idx] = rec
		return s, nil

	case SetFilterStatus:
		if act.Status != "" && !act.Status.Valid() {
			return s, &Rejection{Action: Name(a), Reason: "unknown status filter " + string(act.Status)}
		}
		s.FilterStatus = act.Status
		s.CurrentPage = 1
		return s, nil

	case SetFilterBranch:
		s.FilterBranch = act.Branch
		s.CurrentPage = 1
		return s, nil

	case SetSearch:
		s.SearchQuery = act.Query
		s.CurrentPage = 1
		return s, nil

	case SetSort:
		s.SortBy = act.By
		s.SortOrder = act.Order
		return s, nil

	case SetPage:
		if act.Page < 1 {
			return s, &Rejection{Action: Name(a), Reason: fmt.Sprintf("page %d out of range", act.Page)}
		}
		s.CurrentPage = act.Page
		return s, nil

	case SetViewMode:
		if act.Mode != core.ViewModeCard && act.Mode != core.ViewModeTable {
			return s, &Rejection{Action: Name(a), Reason: "unknown view mode " + string(act.Mode)}
		}
		if act.Mode != s.ViewMode {
			s.CurrentPage = 1
		}
		s.ViewMode = act.Mode
		return s, nil

	case SetSubmitting:
		s.SubmittingID = act.ID
		return s, nil

	case SetConnection:
		s.Connection = act.State
		return s, nil

	default:
		return s, &Rejection{Action: "unknown", Reason: fmt.Sprintf("unrecognized action %T", a)}
	}
}
