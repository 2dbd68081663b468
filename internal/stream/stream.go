package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"bakeops/internal/core"
	"bakeops/pkg/retry"
	"bakeops/pkg/telemetry"
	"bakeops/pkg/websocket"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Handler consumes validated, deduplicated inbound events.
type Handler func(ev Event)

// Config tunes the stream transport.
type Config struct {
	URL           string
	Identity      core.Identity
	ReconnectWait time.Duration
	PingInterval  time.Duration
	DedupWindow   int
}

// Stream owns the persistent channel connection: connect/disconnect/
// reconnect, room-scoped subscription via joinRoom, boundary validation,
// and eventId deduplication. Missed events are not replayed, so every
// successful (re)connection fires the resync callback and the consumer
// re-anchors from a fresh snapshot.
type Stream struct {
	client   *websocket.Client
	identity core.Identity
	dedup    *Window
	logger   core.ILogger

	mu            sync.Mutex
	handler       Handler
	onStateChange func(core.ConnState)
	onResync      func()
	everConnected bool
}

// New creates a stream over the reconnecting websocket client.
func New(cfg Config, logger core.ILogger) *Stream {
	s := &Stream{
		identity: cfg.Identity,
		dedup:    NewWindow(cfg.DedupWindow),
		logger:   logger.WithField("component", "stream"),
	}

	s.client = websocket.NewClient(cfg.URL, s.handleMessage, logger)
	if cfg.ReconnectWait > 0 {
		s.client.SetReconnectWait(cfg.ReconnectWait)
	}
	if cfg.PingInterval > 0 {
		s.client.SetPingConfig(cfg.PingInterval, 10*time.Second, cfg.PingInterval*2)
	}
	s.client.SetOnConnecting(s.handleConnecting)
	s.client.SetOnConnected(s.handleConnected)
	s.client.SetOnDisconnected(s.handleDisconnected)
	return s
}

// SetHandler registers the consumer of inbound events. Must be called
// before Start.
func (s *Stream) SetHandler(h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = h
}

// SetOnStateChange registers the connection state observer.
func (s *Stream) SetOnStateChange(cb func(core.ConnState)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onStateChange = cb
}

// SetOnResync registers the resync trigger fired after every successful
// (re)connection.
func (s *Stream) SetOnResync(cb func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onResync = cb
}

// Start opens the connection and begins dispatching events.
func (s *Stream) Start() {
	s.client.Start()
}

// Stop tears the connection down.
func (s *Stream) Stop() {
	s.client.Stop()
	s.setState(core.ConnDisconnected)
	telemetry.GetGlobalMetrics().SetChannelConnected(false)
}

// Connected reports whether the transport currently has a live connection.
func (s *Stream) Connected() bool {
	return s.client.Connected()
}

func (s *Stream) handleConnecting(attempt int) {
	s.mu.Lock()
	ever := s.everConnected
	s.mu.Unlock()
	if ever {
		s.setState(core.ConnReconnecting)
	} else {
		s.setState(core.ConnConnecting)
	}
}

func (s *Stream) handleConnected() {
	s.mu.Lock()
	wasConnectedBefore := s.everConnected
	s.everConnected = true
	resync := s.onResync
	s.mu.Unlock()

	// Scope subsequent pushes to this client's authority. A branch user
	// only receives events for its branch.
	if err := s.sendEnvelope(KindJoinRoom, s.identity); err != nil {
		s.logger.Error("Failed to join room", "error", err)
	}

	metrics := telemetry.GetGlobalMetrics()
	metrics.SetChannelConnected(true)
	if wasConnectedBefore {
		metrics.RecordReconnect(context.Background())
	}

	s.setState(core.ConnConnected)
	s.logger.Info("Channel connected", "role", s.identity.Role, "branch", s.identity.BranchID)

	// Events missed while disconnected are not replayed; re-anchor the
	// canonical view from the server.
	if resync != nil {
		resync()
	}
}

func (s *Stream) handleDisconnected() {
	telemetry.GetGlobalMetrics().SetChannelConnected(false)
	s.setState(core.ConnDisconnected)
	s.logger.Warn("Channel connection lost")
}

func (s *Stream) setState(state core.ConnState) {
	s.mu.Lock()
	cb := s.onStateChange
	s.mu.Unlock()
	if cb != nil {
		cb(state)
	}
}

func (s *Stream) handleMessage(raw []byte) {
	ctx := context.Background()
	metrics := telemetry.GetGlobalMetrics()

	ev, err := Decode(raw)
	if err != nil {
		s.logger.Warn("Dropping malformed event", "reason", err.Error())
		metrics.RecordEventDropped(ctx, "malformed")
		return
	}

	metrics.RecordEventReceived(ctx, string(ev.Kind()))

	if !s.dedup.Observe(ev.meta().EventID) {
		s.logger.Debug("Dropping duplicate event", "eventId", ev.meta().EventID, "kind", ev.Kind())
		metrics.RecordEventDeduped(ctx)
		return
	}

	s.mu.Lock()
	handler := s.handler
	s.mu.Unlock()
	if handler != nil {
		handler(ev)
	}
}

// statusChangedPayload mirrors the inbound statusUpdatePayload shape so
// sibling clients decode our emissions with the same schema.
type statusChangedPayload struct {
	ID            string           `json:"id"`
	Status        string           `json:"status"`
	ReviewNotes   *string          `json:"reviewNotes,omitempty"`
	AdjustedTotal *decimal.Decimal `json:"adjustedTotal,omitempty"`
}

// EmitStatusChanged publishes a locally confirmed status transition so
// sibling clients reconcile without waiting for their own fetch.
func (s *Stream) EmitStatusChanged(kind core.RecordKind, id string, status core.RecordStatus, reviewNotes *string, adjustedTotal *decimal.Decimal) error {
	event := KindReturnStatusUpdated
	if kind == core.KindOrder {
		event = KindOrderStatusUpdated
	}
	return s.sendEnvelope(event, statusChangedPayload{
		ID:            id,
		Status:        string(status),
		ReviewNotes:   reviewNotes,
		AdjustedTotal: adjustedTotal,
	})
}

// EmitItemStatusChanged publishes a line-item status change.
func (s *Stream) EmitItemStatusChanged(recordID, itemID string, status core.ItemStatus) error {
	return s.sendEnvelope(KindItemStatusUpdated, itemUpdatePayload{
		RecordID: recordID,
		ItemID:   itemID,
		Status:   string(status),
	})
}

// EmitInventoryUpdated signals the branch inventory adjustment that follows
// an approved return. This emission is the engine's single inventory
// side-effect boundary.
func (s *Stream) EmitInventoryUpdated(branchID string) error {
	return s.sendEnvelope(KindInventoryUpdated, map[string]string{"branchId": branchID})
}

func (s *Stream) sendEnvelope(event Kind, payload interface{}) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s payload: %w", event, err)
	}
	env := Envelope{
		Event:     event,
		EventID:   uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Payload:   raw,
	}

	// The write can race a reconnect; a couple of short retries ride out
	// the gap without the caller seeing a transient failure.
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return retry.Do(ctx, retry.Policy{
		MaxAttempts:    3,
		InitialBackoff: 50 * time.Millisecond,
		MaxBackoff:     500 * time.Millisecond,
	}, func(error) bool { return true }, func() error {
		return s.client.Send(env)
	})
}
