package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bakeops/pkg/concurrency"
)

type captureSink struct {
	mu  sync.Mutex
	got []Notification
}

func (c *captureSink) Name() string { return "capture" }

func (c *captureSink) Send(_ context.Context, n Notification) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.got = append(c.got, n)
	return nil
}

func (c *captureSink) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.got)
}

func TestSinkSet_FansOutToEverySink(t *testing.T) {
	pool := concurrency.NewWorkerPool(concurrency.PoolConfig{MaxWorkers: 2, MaxCapacity: 10}, &mockLogger{})
	defer pool.Stop()

	set := NewSinkSet(pool, &mockLogger{})
	a, b := &captureSink{}, &captureSink{}
	set.Add(a)
	set.Add(b)

	set.Deliver(Notification{ID: "n1", Type: TypeInfo, Message: "New return RET-1"})

	deadline := time.Now().Add(2 * time.Second)
	for (a.count() < 1 || b.count() < 1) && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	require.Equal(t, 1, a.count())
	require.Equal(t, 1, b.count())
	assert.Equal(t, "n1", a.got[0].ID)
}

func TestWebhookSink_PostsJSON(t *testing.T) {
	var mu sync.Mutex
	var received Notification
	var contentType string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		contentType = r.Header.Get("Content-Type")
		json.NewDecoder(r.Body).Decode(&received)
	}))
	defer server.Close()

	sink := NewWebhookSink(server.URL, time.Second)
	err := sink.Send(context.Background(), Notification{ID: "n1", Type: TypeSuccess, Message: "Record ret-1 approved"})
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "application/json", contentType)
	assert.Equal(t, "n1", received.ID)
}

func TestWebhookSink_NonSuccessStatusIsError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	sink := NewWebhookSink(server.URL, time.Second)
	err := sink.Send(context.Background(), Notification{ID: "n1"})
	assert.Error(t, err)
}
