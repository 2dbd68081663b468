package core

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// RecordKind distinguishes the two record families the engine reconciles.
type RecordKind string

const (
	KindOrder  RecordKind = "order"
	KindReturn RecordKind = "return"
)

// Path returns the REST collection path for the kind.
func (k RecordKind) Path() string {
	if k == KindOrder {
		return "/orders"
	}
	return "/returns"
}

// RecordStatus is the lifecycle status of a record.
type RecordStatus string

const (
	StatusPendingApproval RecordStatus = "pending_approval"
	StatusApproved        RecordStatus = "approved"
	StatusRejected        RecordStatus = "rejected"
	StatusProcessed       RecordStatus = "processed"
)

// Valid reports whether s is a known status.
func (s RecordStatus) Valid() bool {
	switch s {
	case StatusPendingApproval, StatusApproved, StatusRejected, StatusProcessed:
		return true
	}
	return false
}

// Terminal reports whether the status admits no further transitions.
func (s RecordStatus) Terminal() bool {
	return s == StatusRejected || s == StatusProcessed
}

// CanTransitionTo reports whether the status graph allows moving from s to next.
// Pending may be approved or rejected; approved records are processed by the
// downstream inventory adjustment. Terminal states are not re-enterable.
func (s RecordStatus) CanTransitionTo(next RecordStatus) bool {
	switch s {
	case StatusPendingApproval:
		return next == StatusApproved || next == StatusRejected
	case StatusApproved:
		return next == StatusProcessed
	default:
		return false
	}
}

// ItemStatus is the per-line-item review status.
type ItemStatus string

const (
	ItemPending  ItemStatus = "pending"
	ItemApproved ItemStatus = "approved"
	ItemRejected ItemStatus = "rejected"
)

// Valid reports whether s is a known item status.
func (s ItemStatus) Valid() bool {
	switch s {
	case ItemPending, ItemApproved, ItemRejected:
		return true
	default:
		return false
	}
}

// RecordItem is a single product line on an order or return.
type RecordItem struct {
	ID        string          `json:"id"`
	ProductID string          `json:"productId"`
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	Status    ItemStatus      `json:"status"`
}

// Branch identifies the bakery branch a record belongs to.
type Branch struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// StatusChange is one entry in a record's status history.
type StatusChange struct {
	From RecordStatus `json:"from"`
	To   RecordStatus `json:"to"`
	Note string       `json:"note,omitempty"`
	At   time.Time    `json:"at"`
}

// Record is an order or return as reconciled by the engine. Orders and
// returns are structurally identical here; Kind tells them apart.
type Record struct {
	ID            string          `json:"id"`
	Number        string          `json:"number"`
	Kind          RecordKind      `json:"kind"`
	Status        RecordStatus    `json:"status"`
	Items         []RecordItem    `json:"items"`
	Branch        Branch          `json:"branch"`
	Amount        decimal.Decimal `json:"amount"`
	AdjustedTotal decimal.Decimal `json:"adjustedTotal"`
	ReviewNotes   string          `json:"reviewNotes,omitempty"`
	StatusHistory []StatusChange  `json:"statusHistory,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
}

// MatchesSearch reports whether the record's identifying numbers contain the
// query as a case-insensitive substring. An empty query matches everything.
func (r Record) MatchesSearch(query string) bool {
	if query == "" {
		return true
	}
	q := strings.ToLower(query)
	return strings.Contains(strings.ToLower(r.Number), q) ||
		strings.Contains(strings.ToLower(r.ID), q)
}

// Clone returns a deep copy of the record so reducer output never aliases
// reducer input.
func (r Record) Clone() Record {
	out := r
	if r.Items != nil {
		out.Items = make([]RecordItem, len(r.Items))
		copy(out.Items, r.Items)
	}
	if r.StatusHistory != nil {
		out.StatusHistory = make([]StatusChange, len(r.StatusHistory))
		copy(out.StatusHistory, r.StatusHistory)
	}
	return out
}

// ViewMode selects the presentation layout; it determines the page size the
// fetcher requests.
type ViewMode string

const (
	ViewModeCard  ViewMode = "card"
	ViewModeTable ViewMode = "table"
)

// PageSize returns the number of records per page for the mode.
func (m ViewMode) PageSize() int {
	if m == ViewModeTable {
		return 50
	}
	return 10
}

// SortOrder is the direction of a sort.
type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// ConnState is the realtime channel connection state.
type ConnState string

const (
	ConnDisconnected ConnState = "disconnected"
	ConnConnecting   ConnState = "connecting"
	ConnConnected    ConnState = "connected"
	ConnReconnecting ConnState = "reconnecting"
)

// Identity scopes the realtime subscription to this client's authority.
// It is sent as the joinRoom payload on every successful (re)connect.
type Identity struct {
	Role     string `json:"role"`
	BranchID string `json:"branchId"`
	UserID   string `json:"userId"`
}
