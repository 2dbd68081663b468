// Package stream owns the realtime channel: connection lifecycle, room
// scoping, event validation, and at-least-once deduplication.
package stream

import (
	"encoding/json"
	"fmt"
	"time"

	"bakeops/internal/core"

	"github.com/shopspring/decimal"
)

// Kind names a realtime event type on the wire.
type Kind string

const (
	KindReturnCreated       Kind = "returnCreated"
	KindOrderCreated        Kind = "orderCreated"
	KindReturnStatusUpdated Kind = "returnStatusUpdated"
	KindOrderStatusUpdated  Kind = "orderStatusUpdated"
	KindItemStatusUpdated   Kind = "itemStatusUpdated"
	KindTaskAssigned        Kind = "taskAssigned"
	KindTaskCompleted       Kind = "taskCompleted"
	KindOrderCompleted      Kind = "orderCompleted"

	// Outbound only
	KindJoinRoom         Kind = "joinRoom"
	KindInventoryUpdated Kind = "inventoryUpdated"
)

// Envelope is the wire shape of every channel message, inbound and outbound.
type Envelope struct {
	Event     Kind            `json:"event"`
	EventID   string          `json:"eventId"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// Meta carries the envelope fields every decoded event retains.
type Meta struct {
	EventID   string
	Timestamp time.Time
}

// Event is the validated, tagged union of inbound realtime events. Payloads
// failing validation never become an Event; they are dropped at the boundary.
type Event interface {
	Kind() Kind
	meta() Meta
}

// Created announces a new order or return.
type Created struct {
	Meta
	RecordKind core.RecordKind
	Record     core.Record
}

// StatusUpdated announces a record status transition.
type StatusUpdated struct {
	Meta
	RecordKind    core.RecordKind
	RecordID      string
	Status        core.RecordStatus
	ReviewNotes   *string
	AdjustedTotal *decimal.Decimal
}

// ItemUpdated announces a line-item status change.
type ItemUpdated struct {
	Meta
	RecordID string
	ItemID   string
	Status   core.ItemStatus
}

// TaskAssigned announces a production task assignment.
type TaskAssigned struct {
	Meta
	TaskID     string
	AssigneeID string
	Title      string
}

// TaskCompleted announces a finished production task.
type TaskCompleted struct {
	Meta
	TaskID      string
	CompletedBy string
}

// OrderCompleted announces a fully fulfilled order.
type OrderCompleted struct {
	Meta
	OrderID string
}

func (e Created) Kind() Kind {
	if e.RecordKind == core.KindOrder {
		return KindOrderCreated
	}
	return KindReturnCreated
}
func (e StatusUpdated) Kind() Kind {
	if e.RecordKind == core.KindOrder {
		return KindOrderStatusUpdated
	}
	return KindReturnStatusUpdated
}
func (e ItemUpdated) Kind() Kind    { return KindItemStatusUpdated }
func (e TaskAssigned) Kind() Kind   { return KindTaskAssigned }
func (e TaskCompleted) Kind() Kind  { return KindTaskCompleted }
func (e OrderCompleted) Kind() Kind { return KindOrderCompleted }

func (m Meta) meta() Meta { return m }

type statusUpdatePayload struct {
	ID            string           `json:"id"`
	Status        string           `json:"status"`
	ReviewNotes   *string          `json:"reviewNotes"`
	AdjustedTotal *decimal.Decimal `json:"adjustedTotal"`
}

type itemUpdatePayload struct {
	RecordID string `json:"recordId"`
	ItemID   string `json:"itemId"`
	Status   string `json:"status"`
}

type taskPayload struct {
	TaskID      string `json:"taskId"`
	AssigneeID  string `json:"assigneeId"`
	Title       string `json:"title"`
	CompletedBy string `json:"completedBy"`
}

type orderCompletedPayload struct {
	OrderID string `json:"orderId"`
}

// Decode parses and validates a raw channel message into a typed event.
// Anything malformed — unknown kind, missing event id, payload failing
// validation — returns an error; the caller drops it with a logged reason.
func Decode(raw []byte) (Event, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("undecodable envelope: %w", err)
	}
	if env.EventID == "" {
		return nil, fmt.Errorf("%s event missing eventId", env.Event)
	}
	meta := Meta{EventID: env.EventID, Timestamp: env.Timestamp}

	switch env.Event {
	case KindReturnCreated, KindOrderCreated:
		var rec core.Record
		if err := json.Unmarshal(env.Payload, &rec); err != nil {
			return nil, fmt.Errorf("%s payload: %w", env.Event, err)
		}
		if rec.ID == "" {
			return nil, fmt.Errorf("%s payload missing record id", env.Event)
		}
		kind := core.KindReturn
		if env.Event == KindOrderCreated {
			kind = core.KindOrder
		}
		rec.Kind = kind
		if rec.Status == "" {
			rec.Status = core.StatusPendingApproval
		}
		if !rec.Status.Valid() {
			return nil, fmt.Errorf("%s payload has unknown status %q", env.Event, rec.Status)
		}
		return Created{Meta: meta, RecordKind: kind, Record: rec}, nil

	case KindReturnStatusUpdated, KindOrderStatusUpdated:
		var p statusUpdatePayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return nil, fmt.Errorf("%s payload: %w", env.Event, err)
		}
		if p.ID == "" {
			return nil, fmt.Errorf("%s payload missing record id", env.Event)
		}
		status := core.RecordStatus(p.Status)
		if !status.Valid() {
			return nil, fmt.Errorf("%s payload has unknown status %q", env.Event, p.Status)
		}
		kind := core.KindReturn
		if env.Event == KindOrderStatusUpdated {
			kind = core.KindOrder
		}
		return StatusUpdated{
			Meta:          meta,
			RecordKind:    kind,
			RecordID:      p.ID,
			Status:        status,
			ReviewNotes:   p.ReviewNotes,
			AdjustedTotal: p.AdjustedTotal,
		}, nil

	case KindItemStatusUpdated:
		var p itemUpdatePayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return nil, fmt.Errorf("%s payload: %w", env.Event, err)
		}
		if p.RecordID == "" || p.ItemID == "" {
			return nil, fmt.Errorf("%s payload missing record or item id", env.Event)
		}
		status := core.ItemStatus(p.Status)
		if !status.Valid() {
			return nil, fmt.Errorf("%s payload has unknown item status %q", env.Event, p.Status)
		}
		return ItemUpdated{Meta: meta, RecordID: p.RecordID, ItemID: p.ItemID, Status: status}, nil

	case KindTaskAssigned:
		var p taskPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return nil, fmt.Errorf("%s payload: %w", env.Event, err)
		}
		if p.TaskID == "" {
			return nil, fmt.Errorf("%s payload missing taskId", env.Event)
		}
		return TaskAssigned{Meta: meta, TaskID: p.TaskID, AssigneeID: p.AssigneeID, Title: p.Title}, nil

	case KindTaskCompleted:
		var p taskPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return nil, fmt.Errorf("%s payload: %w", env.Event, err)
		}
		if p.TaskID == "" {
			return nil, fmt.Errorf("%s payload missing taskId", env.Event)
		}
		return TaskCompleted{Meta: meta, TaskID: p.TaskID, CompletedBy: p.CompletedBy}, nil

	case KindOrderCompleted:
		var p orderCompletedPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return nil, fmt.Errorf("%s payload: %w", env.Event, err)
		}
		if p.OrderID == "" {
			return nil, fmt.Errorf("%s payload missing orderId", env.Event)
		}
		return OrderCompleted{Meta: meta, OrderID: p.OrderID}, nil

	default:
		return nil, fmt.Errorf("unrecognized event kind %q", env.Event)
	}
}
