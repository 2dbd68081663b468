package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"bakeops/internal/core"
	"bakeops/pkg/concurrency"
)

// Sink delivers a notification to an out-of-feed destination (desktop
// alert relay, audit webhook). Delivery is best-effort and happens off the
// dispatch path.
type Sink interface {
	Send(ctx context.Context, n Notification) error
	Name() string
}

// SinkSet fans a notification out to every registered sink on a worker
// pool, with a per-delivery timeout.
type SinkSet struct {
	pool   *concurrency.WorkerPool
	logger core.ILogger

	mu    sync.RWMutex
	sinks []Sink
}

// NewSinkSet creates the fanout around the given pool.
func NewSinkSet(pool *concurrency.WorkerPool, logger core.ILogger) *SinkSet {
	return &SinkSet{
		pool:   pool,
		logger: logger.WithField("component", "notification_sinks"),
	}
}

// Add registers a sink.
func (s *SinkSet) Add(sink Sink) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sinks = append(s.sinks, sink)
	s.logger.Info("Added notification sink", "name", sink.Name())
}

// Deliver hands the notification to every sink without blocking the caller.
func (s *SinkSet) Deliver(n Notification) {
	s.mu.RLock()
	sinks := make([]Sink, len(s.sinks))
	copy(sinks, s.sinks)
	s.mu.RUnlock()

	for _, sink := range sinks {
		sink := sink
		err := s.pool.Submit(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := sink.Send(ctx, n); err != nil {
				s.logger.Error("Failed to deliver notification", "sink", sink.Name(), "error", err)
			}
		})
		if err != nil {
			s.logger.Warn("Notification sink pool full", "sink", sink.Name(), "error", err)
		}
	}
}

// LogSink writes notifications to the structured log.
type LogSink struct {
	logger core.ILogger
}

// NewLogSink creates a sink around the given logger.
func NewLogSink(logger core.ILogger) *LogSink {
	return &LogSink{logger: logger.WithField("component", "notification_log")}
}

func (s *LogSink) Name() string { return "log" }

func (s *LogSink) Send(_ context.Context, n Notification) error {
	s.logger.Info("Notification", "type", n.Type, "message", n.Message, "data", n.Data)
	return nil
}

// WebhookSink POSTs notifications as JSON to a configured endpoint.
type WebhookSink struct {
	url    string
	client *http.Client
}

// NewWebhookSink creates a webhook sink.
func NewWebhookSink(url string, timeout time.Duration) *WebhookSink {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookSink{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

func (s *WebhookSink) Name() string { return "webhook" }

func (s *WebhookSink) Send(ctx context.Context, n Notification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook delivery failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
