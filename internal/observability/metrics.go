// Package observability exposes the daemon's runtime telemetry:
// Prometheus text-format metrics, health and readiness probes, and an
// optional tick endpoint so an external cron service can drive the
// scheduler instead of the in-process timer.
package observability

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Metrics collects orchestration counters. It implements the
// orchestrator's Observer interface and renders itself in Prometheus
// text format. One instance per process, owned by the container.
type Metrics struct {
	version   string
	startTime time.Time

	ticks            atomic.Int64
	lastCandidates   atomic.Int64
	releasesAdvanced atomic.Int64
	releasesErrored  atomic.Int64
	leasesAcquired   atomic.Int64
	leasesContended  atomic.Int64
	notificationsOK  atomic.Int64
	notificationsErr atomic.Int64

	mu            sync.RWMutex
	tasksExecuted map[string]*atomic.Int64
	tasksFailed   map[string]*atomic.Int64
}

// NewMetrics creates a metrics collector stamped with the build version.
func NewMetrics(version string) *Metrics {
	return &Metrics{
		version:       version,
		startTime:     time.Now(),
		tasksExecuted: make(map[string]*atomic.Int64),
		tasksFailed:   make(map[string]*atomic.Int64),
	}
}

// TickStarted records one scheduler pass and its candidate count.
func (m *Metrics) TickStarted(candidates int) {
	m.ticks.Add(1)
	m.lastCandidates.Store(int64(candidates))
}

// LeaseOutcome records one lease attempt.
func (m *Metrics) LeaseOutcome(acquired bool) {
	if acquired {
		m.leasesAcquired.Add(1)
	} else {
		m.leasesContended.Add(1)
	}
}

// ReleaseAdvanced records one completed orchestrator execution.
func (m *Metrics) ReleaseAdvanced(success bool) {
	if success {
		m.releasesAdvanced.Add(1)
	} else {
		m.releasesErrored.Add(1)
	}
}

// TaskExecuted records one task dispatch by type.
func (m *Metrics) TaskExecuted(taskType string, success bool) {
	m.counterFor(taskType, success).Add(1)
}

// NotificationDelivered records one messaging fan-out attempt.
func (m *Metrics) NotificationDelivered(success bool) {
	if success {
		m.notificationsOK.Add(1)
	} else {
		m.notificationsErr.Add(1)
	}
}

func (m *Metrics) counterFor(taskType string, success bool) *atomic.Int64 {
	table := m.tasksExecuted
	if !success {
		table = m.tasksFailed
	}
	m.mu.RLock()
	c := table[taskType]
	m.mu.RUnlock()
	if c != nil {
		return c
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if c = table[taskType]; c == nil {
		c = &atomic.Int64{}
		table[taskType] = c
	}
	return c
}

// Handler returns the /metrics endpoint in Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

		var sb strings.Builder

		sb.WriteString("# HELP railhead_info Build information\n")
		sb.WriteString("# TYPE railhead_info gauge\n")
		sb.WriteString(fmt.Sprintf("railhead_info{version=%q} 1\n\n", m.version))

		sb.WriteString("# HELP railhead_uptime_seconds Uptime in seconds\n")
		sb.WriteString("# TYPE railhead_uptime_seconds gauge\n")
		sb.WriteString(fmt.Sprintf("railhead_uptime_seconds %.2f\n\n", time.Since(m.startTime).Seconds()))

		sb.WriteString("# HELP railhead_scheduler_ticks_total Scheduler passes with at least one candidate\n")
		sb.WriteString("# TYPE railhead_scheduler_ticks_total counter\n")
		sb.WriteString(fmt.Sprintf("railhead_scheduler_ticks_total %d\n\n", m.ticks.Load()))

		sb.WriteString("# HELP railhead_scheduler_candidates Candidate releases seen by the latest pass\n")
		sb.WriteString("# TYPE railhead_scheduler_candidates gauge\n")
		sb.WriteString(fmt.Sprintf("railhead_scheduler_candidates %d\n\n", m.lastCandidates.Load()))

		sb.WriteString("# HELP railhead_releases_advanced_total Orchestrator executions that completed\n")
		sb.WriteString("# TYPE railhead_releases_advanced_total counter\n")
		sb.WriteString(fmt.Sprintf("railhead_releases_advanced_total %d\n\n", m.releasesAdvanced.Load()))

		sb.WriteString("# HELP railhead_releases_errored_total Orchestrator executions that returned an error\n")
		sb.WriteString("# TYPE railhead_releases_errored_total counter\n")
		sb.WriteString(fmt.Sprintf("railhead_releases_errored_total %d\n\n", m.releasesErrored.Load()))

		sb.WriteString("# HELP railhead_lease_acquisitions_total Advisory leases taken\n")
		sb.WriteString("# TYPE railhead_lease_acquisitions_total counter\n")
		sb.WriteString(fmt.Sprintf("railhead_lease_acquisitions_total %d\n\n", m.leasesAcquired.Load()))

		sb.WriteString("# HELP railhead_lease_contentions_total Lease attempts that lost to another holder\n")
		sb.WriteString("# TYPE railhead_lease_contentions_total counter\n")
		sb.WriteString(fmt.Sprintf("railhead_lease_contentions_total %d\n\n", m.leasesContended.Load()))

		sb.WriteString("# HELP railhead_notifications_total Notification deliveries by outcome\n")
		sb.WriteString("# TYPE railhead_notifications_total counter\n")
		sb.WriteString(fmt.Sprintf("railhead_notifications_total{outcome=\"delivered\"} %d\n", m.notificationsOK.Load()))
		sb.WriteString(fmt.Sprintf("railhead_notifications_total{outcome=\"failed\"} %d\n\n", m.notificationsErr.Load()))

		m.mu.RLock()
		types := make([]string, 0, len(m.tasksExecuted)+len(m.tasksFailed))
		seen := make(map[string]bool)
		for t := range m.tasksExecuted {
			types = append(types, t)
			seen[t] = true
		}
		for t := range m.tasksFailed {
			if !seen[t] {
				types = append(types, t)
			}
		}
		sort.Strings(types)

		sb.WriteString("# HELP railhead_tasks_total Task executions by type and outcome\n")
		sb.WriteString("# TYPE railhead_tasks_total counter\n")
		for _, t := range types {
			if c := m.tasksExecuted[t]; c != nil {
				sb.WriteString(fmt.Sprintf("railhead_tasks_total{type=%q,outcome=\"completed\"} %d\n", t, c.Load()))
			}
			if c := m.tasksFailed[t]; c != nil {
				sb.WriteString(fmt.Sprintf("railhead_tasks_total{type=%q,outcome=\"failed\"} %d\n", t, c.Load()))
			}
		}
		m.mu.RUnlock()

		_, _ = w.Write([]byte(sb.String()))
	})
}

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	Ticks            int64
	ReleasesAdvanced int64
	ReleasesErrored  int64
	LeasesAcquired   int64
	LeasesContended  int64
	NotificationsOK  int64
	NotificationsErr int64
	TasksExecuted    map[string]int64
	TasksFailed      map[string]int64
	Uptime           time.Duration
}

// Snapshot returns a copy of the current counters.
func (m *Metrics) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	executed := make(map[string]int64, len(m.tasksExecuted))
	for t, c := range m.tasksExecuted {
		executed[t] = c.Load()
	}
	failed := make(map[string]int64, len(m.tasksFailed))
	for t, c := range m.tasksFailed {
		failed[t] = c.Load()
	}
	return Snapshot{
		Ticks:            m.ticks.Load(),
		ReleasesAdvanced: m.releasesAdvanced.Load(),
		ReleasesErrored:  m.releasesErrored.Load(),
		LeasesAcquired:   m.leasesAcquired.Load(),
		LeasesContended:  m.leasesContended.Load(),
		NotificationsOK:  m.notificationsOK.Load(),
		NotificationsErr: m.notificationsErr.Load(),
		TasksExecuted:    executed,
		TasksFailed:      failed,
		Uptime:           time.Since(m.startTime),
	}
}
