// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package backgroundwork

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// metricsRecorder exposes the scheduler's operational counters and
// gauges, following the same promauto construction pattern as the
// teacher's internal/controller/filewatcher/metrics.go.
type metricsRecorder struct {
	enqueued        *prometheus.CounterVec
	terminal        *prometheus.CounterVec
	queueDepth      prometheus.Gauge
	activeWorkers   prometheus.Gauge
	dedupeJoinCount prometheus.Counter
}

// newMetricsRecorder registers the scheduler's metrics against reg. Pass
// prometheus.DefaultRegisterer in production or a fresh
// prometheus.NewRegistry() in tests to avoid cross-test collisions.
func newMetricsRecorder(reg prometheus.Registerer) *metricsRecorder {
	factory := promauto.With(reg)
	return &metricsRecorder{
		enqueued: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "backgroundwork_enqueued_total",
			Help: "Total work items enqueued, labeled by kind.",
		}, []string{"kind"}),
		terminal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "backgroundwork_terminal_total",
			Help: "Total work items reaching a terminal state, labeled by kind and state.",
		}, []string{"kind", "state"}),
		queueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Name: "backgroundwork_queue_depth",
			Help: "Current number of submissions waiting to be picked up by a worker.",
		}),
		activeWorkers: factory.NewGauge(prometheus.GaugeOpts{
			Name: "backgroundwork_active_workers",
			Help: "Current number of work bodies executing concurrently.",
		}),
		dedupeJoinCount: factory.NewCounter(prometheus.CounterOpts{
			Name: "backgroundwork_dedupe_joins_total",
			Help: "Total Enqueue calls that joined an already-live record instead of creating one.",
		}),
	}
}

func (m *metricsRecorder) observeEnqueue(kind WorkKind) {
	m.enqueued.WithLabelValues(string(kind)).Inc()
}

func (m *metricsRecorder) observeDedupeJoin() {
	m.dedupeJoinCount.Inc()
}

// observeTransition counts terminal-state transitions by kind and state
// and keeps activeWorkers in step: a Running snapshot increments it, and
// a terminal snapshot of a record that had started running (StartedAt
// set) decrements it. Pending snapshots are not recorded here.
func (m *metricsRecorder) observeTransition(snap Snapshot) {
	if !snap.State.IsTerminal() {
		if snap.State == WorkStateRunning {
			m.activeWorkers.Inc()
		}
		return
	}
	m.terminal.WithLabelValues(string(snap.Kind), string(snap.State)).Inc()
	if snap.StartedAt != nil {
		m.activeWorkers.Dec()
	}
}

func (m *metricsRecorder) setQueueDepth(n int) {
	m.queueDepth.Set(float64(n))
}
