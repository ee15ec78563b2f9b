// Copyright 2026 The Nodevisor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use file except in compliance with the License.
// You may obtain a copy of the license at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package nodevisor

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector receives fleet events.  A fleet always has one; the
// default discards everything so embedding applications that do not care
// about metrics pay nothing.
type MetricsCollector interface {
	Transition(node string, from, to NodeState)
	Restart(node string)
	Escalation(failed int)
	SetHealthy(healthy, total int)
	ProbeDuration(node string, d time.Duration, ok bool)
}

type noopMetrics struct{}

func (noopMetrics) Transition(node string, from, to NodeState) {}

func (noopMetrics) Restart(node string) {}

func (noopMetrics) Escalation(failed int) {}

func (noopMetrics) SetHealthy(healthy, total int) {}

func (noopMetrics) ProbeDuration(node string, d time.Duration, ok bool) {}

// NewNoopMetrics returns a collector that discards all events.
func NewNoopMetrics() MetricsCollector {
	return noopMetrics{}
}

// PromMetrics is a Prometheus-backed collector with its own registry, so
// several fleets can coexist in one process without duplicate registration.
type PromMetrics struct {
	registry    *prometheus.Registry
	transitions *prometheus.CounterVec
	restarts    *prometheus.CounterVec
	escalations prometheus.Counter
	healthy     prometheus.Gauge
	total       prometheus.Gauge
	probes      *prometheus.HistogramVec
}

// NewPromMetrics creates a registry and the fleet metric set under the
// given namespace ("nodevisor" when empty).
func NewPromMetrics(namespace string) *PromMetrics {
	if namespace == "" {
		namespace = "nodevisor"
	}
	m := &PromMetrics{registry: prometheus.NewRegistry()}

	m.transitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "node_state_transitions_total",
			Help:      "Node state transitions by node and edge",
		},
		[]string{"node", "from", "to"},
	)
	m.restarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "node_restarts_total",
			Help:      "Restarts performed per node",
		},
		[]string{"node"},
	)
	m.escalations = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fleet_escalation_ticks_total",
			Help:      "Cycles in which a majority of nodes were unhealthy",
		},
	)
	m.healthy = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "nodes_healthy",
			Help:      "Nodes currently in the healthy state",
		},
	)
	m.total = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "nodes_total",
			Help:      "Nodes under supervision",
		},
	)
	m.probes = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "probe_duration_seconds",
			Help:      "Readiness probe latency",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"node", "result"},
	)

	m.registry.MustRegister(m.transitions, m.restarts, m.escalations,
		m.healthy, m.total, m.probes)
	return m
}

func (m *PromMetrics) Transition(node string, from, to NodeState) {
	m.transitions.WithLabelValues(node, from.String(), to.String()).Inc()
}

func (m *PromMetrics) Restart(node string) {
	m.restarts.WithLabelValues(node).Inc()
}

func (m *PromMetrics) Escalation(failed int) {
	m.escalations.Inc()
}

func (m *PromMetrics) SetHealthy(healthy, total int) {
	m.healthy.Set(float64(healthy))
	m.total.Set(float64(total))
}

func (m *PromMetrics) ProbeDuration(node string, d time.Duration, ok bool) {
	result := "ok"
	if !ok {
		result = "fail"
	}
	m.probes.WithLabelValues(node, result).Observe(d.Seconds())
}

// Handler serves this collector's registry in the Prometheus exposition
// format, for mounting on the daemon's control listener.
func (m *PromMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
