package metrics

import (
	"sync"
	"time"
)

// Counter names tracked by the engine
const (
	CounterRequestsCreated   = "signing_requests_created"
	CounterRequestsCompleted = "signing_requests_completed"
	CounterRequestsCancelled = "signing_requests_cancelled"
	CounterRequestsExpired   = "signing_requests_expired"
	CounterEventsApplied     = "webhook_events_applied"
	CounterEventsDuplicate   = "webhook_events_duplicate"
	CounterEventsIgnored     = "webhook_events_ignored"
	CounterEventsUnknown     = "webhook_events_unknown"
	CounterWebhookAuthFailed = "webhook_auth_failures"
	CounterNotificationsSent = "notifications_sent"
)

// TimerSnapshot captures timing information for one operation
type TimerSnapshot struct {
	Count         int64   `json:"count"`
	TotalTimeMs   int64   `json:"total_time_ms"`
	AverageTimeMs float64 `json:"average_time_ms"`
	MaxTimeMs     int64   `json:"max_time_ms"`
}

// Snapshot is a point-in-time view of all collected metrics
type Snapshot struct {
	Counters map[string]int64         `json:"counters"`
	Timers   map[string]TimerSnapshot `json:"timers"`
}

type timer struct {
	count       int64
	totalTimeMs int64
	maxTimeMs   int64
}

// Metrics is an in-process metrics collector
type Metrics struct {
	mu       sync.RWMutex
	counters map[string]int64
	timers   map[string]*timer
}

// NewMetrics creates a new metrics collector
func NewMetrics() *Metrics {
	return &Metrics{
		counters: make(map[string]int64),
		timers:   make(map[string]*timer),
	}
}

// Increment adds one to a counter
func (m *Metrics) Increment(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters[name]++
}

// ObserveDuration records the duration of one operation
func (m *Metrics) ObserveDuration(name string, d time.Duration) {
	ms := d.Milliseconds()
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.timers[name]
	if !ok {
		t = &timer{}
		m.timers[name] = t
	}
	t.count++
	t.totalTimeMs += ms
	if ms > t.maxTimeMs {
		t.maxTimeMs = ms
	}
}

// Time runs fn and records its duration under name
func (m *Metrics) Time(name string, fn func()) {
	start := time.Now()
	fn()
	m.ObserveDuration(name, time.Since(start))
}

// Snapshot returns a copy of all current metric values
func (m *Metrics) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snap := Snapshot{
		Counters: make(map[string]int64, len(m.counters)),
		Timers:   make(map[string]TimerSnapshot, len(m.timers)),
	}
	for name, v := range m.counters {
		snap.Counters[name] = v
	}
	for name, t := range m.timers {
		ts := TimerSnapshot{
			Count:       t.count,
			TotalTimeMs: t.totalTimeMs,
			MaxTimeMs:   t.maxTimeMs,
		}
		if t.count > 0 {
			ts.AverageTimeMs = float64(t.totalTimeMs) / float64(t.count)
		}
		snap.Timers[name] = ts
	}
	return snap
}
