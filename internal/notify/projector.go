// Package notify projects qualifying realtime events and action outcomes
// into a bounded, deduplicated notification feed.
package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"bakeops/internal/actions"
	"bakeops/internal/cache"
	"bakeops/internal/core"
	"bakeops/internal/stream"
	"bakeops/pkg/telemetry"

	"github.com/google/uuid"
)

// Type classifies a notification for presentation.
type Type string

const (
	TypeSuccess Type = "success"
	TypeError   Type = "error"
	TypeInfo    Type = "info"
	TypeWarning Type = "warning"
)

// Notification is one user-facing feed entry. Created by the projector,
// mutated only by MarkRead/MarkAllRead, removed by Clear or capacity
// eviction.
type Notification struct {
	ID        string            `json:"id"`
	Type      Type              `json:"type"`
	Message   string            `json:"message"`
	Data      map[string]string `json:"data,omitempty"`
	Read      bool              `json:"read"`
	CreatedAt time.Time         `json:"createdAt"`
}

// Config tunes the projector.
type Config struct {
	// Capacity bounds retained notifications; oldest are evicted first.
	Capacity int
	// DedupBucket is the coarse timestamp bucket combined with the source
	// id so one underlying occurrence never yields two entries.
	DedupBucket time.Duration
	// BranchNameTTL bounds how long branch display names learned from
	// creation events are reused for outcome entries.
	BranchNameTTL time.Duration
}

// Projector derives the notification feed. It is independent of the record
// reconciliation state: feed operations never touch canonical records.
type Projector struct {
	capacity int
	bucket   time.Duration
	clock    core.Clock
	logger   core.ILogger
	sinks    *SinkSet

	mu          sync.Mutex
	items       []Notification
	seen        *dedupKeys
	branchNames *cache.TTL[string]
}

// NewProjector creates a projector. sinks may be nil.
func NewProjector(cfg Config, sinks *SinkSet, clock core.Clock, logger core.ILogger) *Projector {
	if cfg.Capacity <= 0 {
		cfg.Capacity = 100
	}
	if cfg.DedupBucket <= 0 {
		cfg.DedupBucket = 5 * time.Second
	}
	if cfg.BranchNameTTL <= 0 {
		cfg.BranchNameTTL = 15 * time.Minute
	}
	if clock == nil {
		clock = core.SystemClock
	}
	return &Projector{
		capacity:    cfg.Capacity,
		bucket:      cfg.DedupBucket,
		clock:       clock,
		logger:      logger.WithField("component", "notification_projector"),
		sinks:       sinks,
		seen:        newDedupKeys(cfg.Capacity * 2),
		branchNames: cache.NewTTL[string](cfg.BranchNameTTL, clock),
	}
}

// OnEvent projects a subset of inbound events. Raw item-progress updates
// drive record state but are filtered out of the feed.
func (p *Projector) OnEvent(ev stream.Event) {
	switch e := ev.(type) {
	case stream.Created:
		noun := "return"
		if e.RecordKind == core.KindOrder {
			noun = "order"
		}
		if e.Record.Branch.ID != "" && e.Record.Branch.Name != "" {
			p.branchNames.Set(e.Record.Branch.ID, e.Record.Branch.Name)
		}
		p.add(e.EventID, e.Timestamp, Notification{
			Type:    TypeInfo,
			Message: fmt.Sprintf("New %s %s from %s", noun, e.Record.Number, e.Record.Branch.Name),
			Data:    map[string]string{"recordId": e.Record.ID, "branchId": e.Record.Branch.ID},
		})

	case stream.StatusUpdated:
		typ := TypeInfo
		switch e.Status {
		case core.StatusApproved, core.StatusProcessed:
			typ = TypeSuccess
		case core.StatusRejected:
			typ = TypeWarning
		}
		p.add(e.EventID, e.Timestamp, Notification{
			Type:    typ,
			Message: fmt.Sprintf("Record %s is now %s", e.RecordID, e.Status),
			Data:    map[string]string{"recordId": e.RecordID},
		})

	case stream.TaskAssigned:
		p.add(e.EventID, e.Timestamp, Notification{
			Type:    TypeInfo,
			Message: fmt.Sprintf("Task assigned: %s", e.Title),
			Data:    map[string]string{"taskId": e.TaskID, "assigneeId": e.AssigneeID},
		})

	case stream.TaskCompleted:
		p.add(e.EventID, e.Timestamp, Notification{
			Type:    TypeSuccess,
			Message: fmt.Sprintf("Task %s completed", e.TaskID),
			Data:    map[string]string{"taskId": e.TaskID},
		})

	case stream.OrderCompleted:
		p.add(e.EventID, e.Timestamp, Notification{
			Type:    TypeSuccess,
			Message: fmt.Sprintf("Order %s completed", e.OrderID),
			Data:    map[string]string{"orderId": e.OrderID},
		})

	case stream.ItemUpdated:
		// State-only; no feed entry.
	}
}

// RecordOutcome projects a settled submission into an audit entry.
func (p *Projector) RecordOutcome(outcome actions.Outcome) {
	if outcome.Err != nil {
		p.add(outcome.ActionID, outcome.SettledAt, Notification{
			Type:    TypeError,
			Message: fmt.Sprintf("Failed to %s %s: %v", outcome.Action, outcome.RecordID, outcome.Err),
			Data:    map[string]string{"recordId": outcome.RecordID, "actionId": outcome.ActionID},
		})
		return
	}
	msg := fmt.Sprintf("Record %s %sd", outcome.RecordID, outcome.Action)
	if name, ok := p.branchNames.Get(outcome.BranchID); ok {
		msg = fmt.Sprintf("Record %s %sd at %s", outcome.RecordID, outcome.Action, name)
	}
	p.add(outcome.ActionID, outcome.SettledAt, Notification{
		Type:    TypeSuccess,
		Message: msg,
		Data: map[string]string{
			"recordId":      outcome.RecordID,
			"actionId":      outcome.ActionID,
			"branchId":      outcome.BranchID,
			"adjustedTotal": outcome.AdjustedTotal.String(),
		},
	})
}

func (p *Projector) add(sourceID string, occurred time.Time, n Notification) {
	if occurred.IsZero() {
		occurred = p.clock()
	}
	key := fmt.Sprintf("%s/%d", sourceID, occurred.UnixNano()/int64(p.bucket))

	p.mu.Lock()
	if !p.seen.observe(key) {
		p.mu.Unlock()
		return
	}

	n.ID = uuid.NewString()
	n.CreatedAt = p.clock()
	p.items = append(p.items, n)

	evicted := 0
	for len(p.items) > p.capacity {
		p.items = p.items[1:]
		evicted++
	}
	p.mu.Unlock()

	if evicted > 0 {
		metrics := telemetry.GetGlobalMetrics()
		for i := 0; i < evicted; i++ {
			metrics.RecordNotificationEvicted(context.Background())
		}
	}

	if p.sinks != nil {
		p.sinks.Deliver(n)
	}
}

// List returns the feed newest-first.
func (p *Projector) List() []Notification {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Notification, len(p.items))
	for i := range p.items {
		out[len(p.items)-1-i] = p.items[i]
	}
	return out
}

// Unread returns the count of unread entries.
func (p *Projector) Unread() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for i := range p.items {
		if !p.items[i].Read {
			n++
		}
	}
	return n
}

// MarkRead marks one entry read. Returns false if the id is unknown.
func (p *Projector) MarkRead(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := range p.items {
		if p.items[i].ID == id {
			p.items[i].Read = true
			return true
		}
	}
	return false
}

// MarkAllRead marks every entry read.
func (p *Projector) MarkAllRead() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := range p.items {
		p.items[i].Read = true
	}
}

// Clear removes every entry.
func (p *Projector) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.items = nil
}

// dedupKeys is a small bounded set of composite dedup keys.
type dedupKeys struct {
	capacity int
	keys     map[string]struct{}
	order    []string
	head     int
}

func newDedupKeys(capacity int) *dedupKeys {
	if capacity <= 0 {
		capacity = 256
	}
	return &dedupKeys{
		capacity: capacity,
		keys:     make(map[string]struct{}, capacity),
		order:    make([]string, 0, capacity),
	}
}

func (d *dedupKeys) observe(key string) bool {
	if _, dup := d.keys[key]; dup {
		return false
	}
	if len(d.order) < d.capacity {
		d.order = append(d.order, key)
	} else {
		delete(d.keys, d.order[d.head])
		d.order[d.head] = key
		d.head = (d.head + 1) % d.capacity
	}
	d.keys[key] = struct{}{}
	return true
}
