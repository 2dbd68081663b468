package stream

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bakeops/internal/core"
)

func TestDecode_ReturnCreated(t *testing.T) {
	raw := []byte(`{
		"event": "returnCreated",
		"eventId": "ev-1",
		"timestamp": "2026-03-01T09:00:00Z",
		"payload": {
			"id": "ret-5",
			"number": "RET-0005",
			"status": "pending_approval",
			"branch": {"id": "branch-1", "name": "Downtown"},
			"amount": "120.50",
			"items": [{"id": "i1", "productId": "rye", "name": "Rye Loaf", "quantity": 3, "unitPrice": "40.00", "status": "pending"}]
		}
	}`)

	ev, err := Decode(raw)
	require.NoError(t, err)

	created, ok := ev.(Created)
	require.True(t, ok)
	assert.Equal(t, core.KindReturn, created.RecordKind)
	assert.Equal(t, "ret-5", created.Record.ID)
	assert.Equal(t, core.StatusPendingApproval, created.Record.Status)
	assert.Equal(t, "ev-1", created.meta().EventID)
	require.Len(t, created.Record.Items, 1)
	assert.Equal(t, 3, created.Record.Items[0].Quantity)
}

func TestDecode_CreatedDefaultsStatus(t *testing.T) {
	raw := []byte(`{"event":"orderCreated","eventId":"ev-2","payload":{"id":"ord-1"}}`)
	ev, err := Decode(raw)
	require.NoError(t, err)
	created := ev.(Created)
	assert.Equal(t, core.KindOrder, created.RecordKind)
	assert.Equal(t, core.StatusPendingApproval, created.Record.Status)
}

func TestDecode_StatusUpdated(t *testing.T) {
	raw := []byte(`{
		"event": "returnStatusUpdated",
		"eventId": "ev-3",
		"payload": {"id": "ret-5", "status": "approved", "reviewNotes": "ok", "adjustedTotal": "99.00"}
	}`)

	ev, err := Decode(raw)
	require.NoError(t, err)
	upd := ev.(StatusUpdated)
	assert.Equal(t, "ret-5", upd.RecordID)
	assert.Equal(t, core.StatusApproved, upd.Status)
	require.NotNil(t, upd.ReviewNotes)
	assert.Equal(t, "ok", *upd.ReviewNotes)
	require.NotNil(t, upd.AdjustedTotal)
	assert.Equal(t, "99", upd.AdjustedTotal.String())
}

func TestDecode_ItemAndTaskEvents(t *testing.T) {
	ev, err := Decode([]byte(`{"event":"itemStatusUpdated","eventId":"ev-4","payload":{"recordId":"ret-5","itemId":"i1","status":"approved"}}`))
	require.NoError(t, err)
	item := ev.(ItemUpdated)
	assert.Equal(t, "i1", item.ItemID)
	assert.Equal(t, core.ItemApproved, item.Status)

	ev, err = Decode([]byte(`{"event":"taskAssigned","eventId":"ev-5","payload":{"taskId":"t1","assigneeId":"u9","title":"Bake croissants"}}`))
	require.NoError(t, err)
	assert.Equal(t, "t1", ev.(TaskAssigned).TaskID)

	ev, err = Decode([]byte(`{"event":"taskCompleted","eventId":"ev-6","payload":{"taskId":"t1","completedBy":"u9"}}`))
	require.NoError(t, err)
	assert.Equal(t, "u9", ev.(TaskCompleted).CompletedBy)

	ev, err = Decode([]byte(`{"event":"orderCompleted","eventId":"ev-7","payload":{"orderId":"ord-3"}}`))
	require.NoError(t, err)
	assert.Equal(t, "ord-3", ev.(OrderCompleted).OrderID)
}

func TestDecode_Malformed(t *testing.T) {
	cases := map[string]string{
		"not json":          `{{{`,
		"unknown kind":      `{"event":"somethingElse","eventId":"e1","payload":{}}`,
		"missing eventId":   `{"event":"returnCreated","payload":{"id":"r1"}}`,
		"missing record id": `{"event":"returnCreated","eventId":"e1","payload":{}}`,
		"bad status":        `{"event":"returnStatusUpdated","eventId":"e1","payload":{"id":"r1","status":"vaporized"}}`,
		"bad item payload":  `{"event":"itemStatusUpdated","eventId":"e1","payload":{"recordId":"r1"}}`,
		"bad item status":   `{"event":"itemStatusUpdated","eventId":"e1","payload":{"recordId":"r1","itemId":"i1","status":"vaporized"}}`,
		"missing taskId":    `{"event":"taskAssigned","eventId":"e1","payload":{}}`,
		"missing orderId":   `{"event":"orderCompleted","eventId":"e1","payload":{}}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Decode([]byte(raw))
			assert.Error(t, err)
		})
	}
}
