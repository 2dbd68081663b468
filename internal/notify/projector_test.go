package notify

import (
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bakeops/internal/actions"
	"bakeops/internal/core"
	"bakeops/internal/stream"
	apperrors "bakeops/pkg/errors"
)

type mockLogger struct{}

func (m *mockLogger) Debug(msg string, f ...interface{})               {}
func (m *mockLogger) Info(msg string, f ...interface{})                {}
func (m *mockLogger) Warn(msg string, f ...interface{})                {}
func (m *mockLogger) Error(msg string, f ...interface{})               {}
func (m *mockLogger) Fatal(msg string, f ...interface{})               {}
func (m *mockLogger) WithField(k string, v interface{}) core.ILogger   { return m }
func (m *mockLogger) WithFields(f map[string]interface{}) core.ILogger { return m }

func fixedClock(at time.Time) core.Clock {
	return func() time.Time { return at }
}

func newTestProjector(capacity int) *Projector {
	return NewProjector(Config{Capacity: capacity, DedupBucket: time.Second},
		nil, fixedClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)), &mockLogger{})
}

func createdEvent(eventID, recordID string, at time.Time) stream.Created {
	return stream.Created{
		Meta:       stream.Meta{EventID: eventID, Timestamp: at},
		RecordKind: core.KindReturn,
		Record: core.Record{
			ID:     recordID,
			Number: "RET-" + recordID,
			Branch: core.Branch{ID: "branch-1", Name: "Downtown"},
		},
	}
}

func TestProjector_ProjectsQualifyingEvents(t *testing.T) {
	p := newTestProjector(10)
	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	p.OnEvent(createdEvent("ev-1", "ret-1", at))
	p.OnEvent(stream.StatusUpdated{
		Meta: stream.Meta{EventID: "ev-2", Timestamp: at}, RecordKind: core.KindReturn,
		RecordID: "ret-1", Status: core.StatusApproved,
	})
	p.OnEvent(stream.TaskAssigned{Meta: stream.Meta{EventID: "ev-3", Timestamp: at}, TaskID: "t1", Title: "Bake baguettes"})
	p.OnEvent(stream.OrderCompleted{Meta: stream.Meta{EventID: "ev-4", Timestamp: at}, OrderID: "ord-1"})

	// Item progress drives record state, never the feed.
	p.OnEvent(stream.ItemUpdated{Meta: stream.Meta{EventID: "ev-5", Timestamp: at}, RecordID: "ret-1", ItemID: "i1", Status: core.ItemApproved})

	feed := p.List()
	require.Len(t, feed, 4)
	assert.Equal(t, TypeSuccess, feed[0].Type, "feed is newest-first")
	assert.Contains(t, feed[3].Message, "RET-ret-1")
	assert.Equal(t, 4, p.Unread())
}

func TestProjector_DedupBySourceAndTimeBucket(t *testing.T) {
	p := newTestProjector(10)
	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	p.OnEvent(createdEvent("ev-1", "ret-1", at))
	p.OnEvent(createdEvent("ev-1", "ret-1", at.Add(100*time.Millisecond)))
	require.Len(t, p.List(), 1, "same source in the same bucket collapses")

	// Same source well past the bucket is a distinct occurrence.
	p.OnEvent(createdEvent("ev-1", "ret-1", at.Add(5*time.Second)))
	assert.Len(t, p.List(), 2)
}

func TestProjector_CapacityEvictsOldest(t *testing.T) {
	p := newTestProjector(3)
	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		p.OnEvent(createdEvent(fmt.Sprintf("ev-%d", i), fmt.Sprintf("ret-%d", i), at.Add(time.Duration(i)*time.Minute)))
	}

	feed := p.List()
	require.Len(t, feed, 3)
	assert.Contains(t, feed[0].Message, "ret-4")
	assert.Contains(t, feed[2].Message, "ret-2", "oldest entries are gone")
}

func TestProjector_MarkReadAndClear(t *testing.T) {
	p := newTestProjector(10)
	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	p.OnEvent(createdEvent("ev-1", "ret-1", at))
	p.OnEvent(createdEvent("ev-2", "ret-2", at))

	feed := p.List()
	require.True(t, p.MarkRead(feed[0].ID))
	assert.Equal(t, 1, p.Unread())
	assert.False(t, p.MarkRead("no-such-id"))

	p.MarkAllRead()
	assert.Equal(t, 0, p.Unread())

	p.Clear()
	assert.Empty(t, p.List())
}

func TestProjector_RecordOutcome(t *testing.T) {
	p := newTestProjector(10)
	settled := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)

	p.RecordOutcome(actions.Outcome{
		ActionID:      "act-1",
		RecordID:      "ret-1",
		Action:        actions.Approve,
		Status:        core.StatusApproved,
		AdjustedTotal: decimal.NewFromInt(80),
		SettledAt:     settled,
	})
	p.RecordOutcome(actions.Outcome{
		ActionID:  "act-2",
		RecordID:  "ret-2",
		Action:    actions.Reject,
		SettledAt: settled,
		Err:       apperrors.ErrAuthorization,
	})

	feed := p.List()
	require.Len(t, feed, 2)
	assert.Equal(t, TypeError, feed[0].Type)
	assert.Equal(t, TypeSuccess, feed[1].Type)
	assert.Equal(t, "80", feed[1].Data["adjustedTotal"])
}

func TestProjector_OutcomeUsesCachedBranchName(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	p := NewProjector(Config{Capacity: 10, DedupBucket: time.Second, BranchNameTTL: 10 * time.Minute},
		nil, func() time.Time { return now }, &mockLogger{})

	p.OnEvent(createdEvent("ev-1", "ret-1", now))
	p.RecordOutcome(actions.Outcome{
		ActionID:  "act-1",
		RecordID:  "ret-1",
		BranchID:  "branch-1",
		Action:    actions.Approve,
		Status:    core.StatusApproved,
		SettledAt: now,
	})

	feed := p.List()
	require.NotEmpty(t, feed)
	assert.Contains(t, feed[0].Message, "Downtown")
	assert.Equal(t, "branch-1", feed[0].Data["branchId"])

	// After the TTL lapses the name is gone and the entry falls back to ids.
	now = now.Add(11 * time.Minute)
	p.RecordOutcome(actions.Outcome{
		ActionID:  "act-2",
		RecordID:  "ret-1",
		BranchID:  "branch-1",
		Action:    actions.Approve,
		Status:    core.StatusApproved,
		SettledAt: now,
	})
	feed = p.List()
	assert.NotContains(t, feed[0].Message, "Downtown")
}
