// Package actions issues the engine's mutating requests: approving and
// rejecting records, with single-flight and wait-then-commit semantics.
package actions

import (
	"context"
	"fmt"
	"sync"
	"time"

	"bakeops/internal/api"
	"bakeops/internal/core"
	"bakeops/internal/reconcile"
	apperrors "bakeops/pkg/errors"
	"bakeops/pkg/telemetry"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

// ActionType is the mutation the reviewer requested.
type ActionType string

const (
	Approve ActionType = "approve"
	Reject  ActionType = "reject"
)

// Status returns the record status the action settles into.
func (a ActionType) Status() core.RecordStatus {
	if a == Approve {
		return core.StatusApproved
	}
	return core.StatusRejected
}

// Outcome is the settled result of one submission, handed to the
// notification projector for an audit entry.
type Outcome struct {
	ActionID      string
	RecordID      string
	RecordKind    core.RecordKind
	BranchID      string
	Action        ActionType
	Status        core.RecordStatus
	AdjustedTotal decimal.Decimal
	ReviewNotes   string
	SettledAt     time.Time
	Err           error
}

// Updater is the slice of the API client the coordinator uses.
type Updater interface {
	UpdateStatus(ctx context.Context, kind core.RecordKind, id string, update api.StatusUpdate) (api.StatusResult, error)
}

// Emitter publishes confirmed outcomes onto the realtime channel.
type Emitter interface {
	EmitStatusChanged(kind core.RecordKind, id string, status core.RecordStatus, reviewNotes *string, adjustedTotal *decimal.Decimal) error
	EmitInventoryUpdated(branchID string) error
}

// OutcomeSink receives settled outcomes.
type OutcomeSink interface {
	RecordOutcome(outcome Outcome)
}

// Coordinator enforces the submission contract: at most one in-flight
// mutation at a time, a short quiet period against accidental repeated
// clicks, and no state change until the backend confirms.
type Coordinator struct {
	api     Updater
	store   *reconcile.Store
	emitter Emitter
	sink    OutcomeSink
	logger  core.ILogger

	limiter *rate.Limiter
	timeout time.Duration

	mu       sync.Mutex
	inflight string
}

// Config tunes the coordinator.
type Config struct {
	RequestTimeout time.Duration
	// QuietPeriod bounds how often submissions may be issued, distinct
	// from the single-flight guard.
	QuietPeriod time.Duration
}

// NewCoordinator creates a coordinator. emitter and sink may be nil.
func NewCoordinator(apiClient Updater, store *reconcile.Store, emitter Emitter, sink OutcomeSink, cfg Config, logger core.ILogger) *Coordinator {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Second
	}
	if cfg.QuietPeriod <= 0 {
		cfg.QuietPeriod = 500 * time.Millisecond
	}
	return &Coordinator{
		api:     apiClient,
		store:   store,
		emitter: emitter,
		sink:    sink,
		logger:  logger.WithField("component", "action_coordinator"),
		limiter: rate.NewLimiter(rate.Every(cfg.QuietPeriod), 1),
		timeout: cfg.RequestTimeout,
	}
}

// Submit issues an approve or reject for the record. It rejects
// synchronously, without a network call, if a submission is already in
// flight or the quiet period has not elapsed. On success the server-returned
// fields are dispatched, the outcome is published for sibling clients, and
// an approved return triggers the branch inventory emission. On failure
// nothing is mutated; the error is classified and returned.
func (c *Coordinator) Submit(ctx context.Context, rec core.Record, action ActionType, notes string, items []core.RecordItem) (Outcome, error) {
	outcome := Outcome{
		ActionID:   uuid.NewString(),
		RecordID:   rec.ID,
		RecordKind: rec.Kind,
		BranchID:   rec.Branch.ID,
		Action:     action,
		Status:     action.Status(),
	}

	if !c.limiter.Allow() {
		return outcome, apperrors.ErrSubmissionThrottled
	}

	c.mu.Lock()
	if c.inflight != "" {
		inflight := c.inflight
		c.mu.Unlock()
		return outcome, fmt.Errorf("%w: record %s", apperrors.ErrSubmissionInFlight, inflight)
	}
	c.inflight = rec.ID
	c.mu.Unlock()

	c.store.Dispatch(reconcile.SetSubmitting{ID: rec.ID})
	defer func() {
		c.mu.Lock()
		c.inflight = ""
		c.mu.Unlock()
		c.store.Dispatch(reconcile.SetSubmitting{ID: ""})
	}()

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	result, err := c.api.UpdateStatus(reqCtx, rec.Kind, rec.ID, api.StatusUpdate{
		Status:      action.Status(),
		Items:       items,
		ReviewNotes: notes,
	})

	metrics := telemetry.GetGlobalMetrics()
	outcome.SettledAt = time.Now()

	if err != nil {
		outcome.Err = err
		metrics.RecordSubmission(ctx, string(action), true)
		c.logger.Error("Submission failed", "record", rec.ID, "action", action, "error", err)
		if c.sink != nil {
			c.sink.RecordOutcome(outcome)
		}
		return outcome, err
	}

	outcome.AdjustedTotal = result.AdjustedTotal
	outcome.ReviewNotes = result.ReviewNotes
	if outcome.ReviewNotes == "" {
		outcome.ReviewNotes = notes
	}
	metrics.RecordSubmission(ctx, string(action), false)

	reviewNotes := outcome.ReviewNotes
	adjusted := result.AdjustedTotal
	c.store.Dispatch(reconcile.UpdateStatus{
		ID:            rec.ID,
		Status:        action.Status(),
		ReviewNotes:   &reviewNotes,
		AdjustedTotal: &adjusted,
		Note:          notes,
	})

	if c.emitter != nil {
		if err := c.emitter.EmitStatusChanged(rec.Kind, rec.ID, action.Status(), &reviewNotes, &adjusted); err != nil {
			c.logger.Warn("Failed to emit status change", "record", rec.ID, "error", err)
		}
		if action == Approve && rec.Kind == core.KindReturn {
			if err := c.emitter.EmitInventoryUpdated(rec.Branch.ID); err != nil {
				c.logger.Warn("Failed to emit inventory update", "branch", rec.Branch.ID, "error", err)
			}
		}
	}

	if c.sink != nil {
		c.sink.RecordOutcome(outcome)
	}

	c.logger.Info("Submission settled", "record", rec.ID, "action", action, "adjustedTotal", adjusted)
	return outcome, nil
}

// Submitting returns the record id currently in flight, or empty.
func (c *Coordinator) Submitting() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inflight
}
