package reconcile

import (
	"sort"

	"bakeops/internal/core"
)

// Admits evaluates the currently active filter/search predicate against an
// incoming record. Creation events failing it are dropped at the dispatch
// site: the server owns TotalCount for the active query, and admitting an
// out-of-filter record would desynchronize the displayed count from the
// next fetch.
func Admits(s State, r core.Record) bool {
	if s.FilterStatus != "" && r.Status != s.FilterStatus {
		return false
	}
	if s.FilterBranch != "" && r.Branch.ID != s.FilterBranch {
		return false
	}
	return r.MatchesSearch(s.SearchQuery)
}

// VisibleSlice derives what the view currently shows from canonical state:
// filter, sort, then the current page window. It is a transient render aid
// between a push-event merge and the next authoritative fetch; TotalCount
// and cross-page consistency belong to snapshot responses alone.
func VisibleSlice(s State) []core.Record {
	filtered := make([]core.Record, 0, len(s.Records))
	for _, r := range s.Records {
		if Admits(s, r) {
			filtered = append(filtered, r)
		}
	}

	sortRecords(filtered, s.SortBy, s.SortOrder)

	size := s.ViewMode.PageSize()
	start := (s.CurrentPage - 1) * size
	if start >= len(filtered) {
		return []core.Record{}
	}
	end := start + size
	if end > len(filtered) {
		end = len(filtered)
	}
	return filtered[start:end]
}

func sortRecords(records []core.Record, by string, order core.SortOrder) {
	less := func(a, b core.Record) bool {
		switch by {
		case "amount":
			return a.Amount.LessThan(b.Amount)
		case "status":
			return a.Status < b.Status
		case "number":
			return a.Number < b.Number
		default: // createdAt
			return a.CreatedAt.Before(b.CreatedAt)
		}
	}
	sort.SliceStable(records, func(i, j int) bool {
		if order == core.SortDesc {
			return less(records[j], records[i])
		}
		return less(records[i], records[j])
	})
}
