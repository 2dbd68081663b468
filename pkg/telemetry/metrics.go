package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metric names
const (
	MetricEventsReceivedTotal       = "bakeops_events_received_total"
	MetricEventsDedupedTotal        = "bakeops_events_deduped_total"
	MetricEventsDroppedTotal        = "bakeops_events_dropped_total"
	MetricSnapshotsAppliedTotal     = "bakeops_snapshots_applied_total"
	MetricStaleSnapshotsTotal       = "bakeops_stale_snapshots_total"
	MetricActionsRejectedTotal      = "bakeops_actions_rejected_total"
	MetricSubmissionsTotal          = "bakeops_submissions_total"
	MetricSubmissionFailuresTotal   = "bakeops_submission_failures_total"
	MetricNotificationsEvicted      = "bakeops_notifications_evicted_total"
	MetricCanonicalRecords          = "bakeops_canonical_records"
	MetricChannelConnected          = "bakeops_channel_connected"
	MetricReconnectsTotal           = "bakeops_channel_reconnects_total"
)

// MetricsHolder holds initialized instruments
type MetricsHolder struct {
	EventsReceivedTotal     metric.Int64Counter
	EventsDedupedTotal      metric.Int64Counter
	EventsDroppedTotal      metric.Int64Counter
	SnapshotsAppliedTotal   metric.Int64Counter
	StaleSnapshotsTotal     metric.Int64Counter
	ActionsRejectedTotal    metric.Int64Counter
	SubmissionsTotal        metric.Int64Counter
	SubmissionFailuresTotal metric.Int64Counter
	NotificationsEvicted    metric.Int64Counter
	ReconnectsTotal         metric.Int64Counter
	CanonicalRecords        metric.Int64ObservableGauge
	ChannelConnected        metric.Int64ObservableGauge

	// State for observable gauges
	mu               sync.RWMutex
	canonicalRecords int64
	channelConnected int64
	initialized      bool
}

var (
	globalMetrics *MetricsHolder
	initOnce      sync.Once
)

// GetGlobalMetrics returns the singleton metrics holder
func GetGlobalMetrics() *MetricsHolder {
	initOnce.Do(func() {
		globalMetrics = &MetricsHolder{}
		// Initialization of instruments happens in InitMetrics
	})
	return globalMetrics
}

// InitMetrics initializes instruments using the meter
func (m *MetricsHolder) InitMetrics(meter metric.Meter) error {
	var err error

	m.EventsReceivedTotal, err = meter.Int64Counter(MetricEventsReceivedTotal,
		metric.WithDescription("Total inbound realtime events received"))
	if err != nil {
		return err
	}
	m.EventsDedupedTotal, err = meter.Int64Counter(MetricEventsDedupedTotal,
		metric.WithDescription("Inbound events dropped as at-least-once duplicates"))
	if err != nil {
		return err
	}
	m.EventsDroppedTotal, err = meter.Int64Counter(MetricEventsDroppedTotal,
		metric.WithDescription("Inbound events dropped as malformed or out of filter"))
	if err != nil {
		return err
	}
	m.SnapshotsAppliedTotal, err = meter.Int64Counter(MetricSnapshotsAppliedTotal,
		metric.WithDescription("Snapshot responses merged into canonical state"))
	if err != nil {
		return err
	}
	m.StaleSnapshotsTotal, err = meter.Int64Counter(MetricStaleSnapshotsTotal,
		metric.WithDescription("Snapshot responses discarded as superseded"))
	if err != nil {
		return err
	}
	m.ActionsRejectedTotal, err = meter.Int64Counter(MetricActionsRejectedTotal,
		metric.WithDescription("Reducer actions refused as invalid"))
	if err != nil {
		return err
	}
	m.SubmissionsTotal, err = meter.Int64Counter(MetricSubmissionsTotal,
		metric.WithDescription("Approve/reject submissions issued"))
	if err != nil {
		return err
	}
	m.SubmissionFailuresTotal, err = meter.Int64Counter(MetricSubmissionFailuresTotal,
		metric.WithDescription("Approve/reject submissions that failed"))
	if err != nil {
		return err
	}
	m.NotificationsEvicted, err = meter.Int64Counter(MetricNotificationsEvicted,
		metric.WithDescription("Notifications evicted by capacity bounding"))
	if err != nil {
		return err
	}
	m.ReconnectsTotal, err = meter.Int64Counter(MetricReconnectsTotal,
		metric.WithDescription("Realtime channel reconnections"))
	if err != nil {
		return err
	}

	m.CanonicalRecords, err = meter.Int64ObservableGauge(MetricCanonicalRecords,
		metric.WithDescription("Records currently held in canonical state"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			m.mu.RLock()
			defer m.mu.RUnlock()
			o.Observe(m.canonicalRecords)
			return nil
		}))
	if err != nil {
		return err
	}
	m.ChannelConnected, err = meter.Int64ObservableGauge(MetricChannelConnected,
		metric.WithDescription("1 while the realtime channel is connected"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			m.mu.RLock()
			defer m.mu.RUnlock()
			o.Observe(m.channelConnected)
			return nil
		}))
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.initialized = true
	m.mu.Unlock()
	return nil
}

func (m *MetricsHolder) ready() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.initialized
}

// RecordEventReceived counts an inbound event by kind.
func (m *MetricsHolder) RecordEventReceived(ctx context.Context, kind string) {
	if !m.ready() {
		return
	}
	m.EventsReceivedTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

// RecordEventDeduped counts a duplicate delivery.
func (m *MetricsHolder) RecordEventDeduped(ctx context.Context) {
	if !m.ready() {
		return
	}
	m.EventsDedupedTotal.Add(ctx, 1)
}

// RecordEventDropped counts a dropped event with the drop reason.
func (m *MetricsHolder) RecordEventDropped(ctx context.Context, reason string) {
	if !m.ready() {
		return
	}
	m.EventsDroppedTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

// RecordSnapshotApplied counts a merged snapshot.
func (m *MetricsHolder) RecordSnapshotApplied(ctx context.Context) {
	if !m.ready() {
		return
	}
	m.SnapshotsAppliedTotal.Add(ctx, 1)
}

// RecordStaleSnapshot counts a suppressed snapshot.
func (m *MetricsHolder) RecordStaleSnapshot(ctx context.Context) {
	if !m.ready() {
		return
	}
	m.StaleSnapshotsTotal.Add(ctx, 1)
}

// RecordActionRejected counts a refused reducer action.
func (m *MetricsHolder) RecordActionRejected(ctx context.Context, action string) {
	if !m.ready() {
		return
	}
	m.ActionsRejectedTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("action", action)))
}

// RecordSubmission counts a submission attempt and, if failed is set, a failure.
func (m *MetricsHolder) RecordSubmission(ctx context.Context, action string, failed bool) {
	if !m.ready() {
		return
	}
	m.SubmissionsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("action", action)))
	if failed {
		m.SubmissionFailuresTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("action", action)))
	}
}

// RecordNotificationEvicted counts a capacity eviction.
func (m *MetricsHolder) RecordNotificationEvicted(ctx context.Context) {
	if !m.ready() {
		return
	}
	m.NotificationsEvicted.Add(ctx, 1)
}

// RecordReconnect counts a channel reconnection.
func (m *MetricsHolder) RecordReconnect(ctx context.Context) {
	if !m.ready() {
		return
	}
	m.ReconnectsTotal.Add(ctx, 1)
}

// SetCanonicalRecords updates the canonical list size gauge.
func (m *MetricsHolder) SetCanonicalRecords(n int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.canonicalRecords = n
}

// SetChannelConnected updates the connection gauge.
func (m *MetricsHolder) SetChannelConnected(up bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if up {
		m.channelConnected = 1
	} else {
		m.channelConnected = 0
	}
}
