// Copyright 2025 Kadir Pekel
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

// Package observability provides the Prometheus metrics and OpenTelemetry
// tracer every component reports through. A nil *Metrics is safe to call
// methods on (all become no-ops), so components can take a possibly-nil
// *Metrics without a separate "enabled" check at every call site.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsConfig configures Prometheus metrics collection.
type MetricsConfig struct {
	// Enabled turns on metrics collection. Default: false.
	Enabled bool `yaml:"enabled,omitempty"`
	// Endpoint is the path metrics are exposed on. Default: "/metrics".
	Endpoint string `yaml:"endpoint,omitempty"`
	// Namespace prefixes all metric names. Default: "bmad".
	Namespace string `yaml:"namespace,omitempty"`
}

// SetDefaults applies default values to MetricsConfig.
func (c *MetricsConfig) SetDefaults() {
	if c.Endpoint == "" {
		c.Endpoint = "/metrics"
	}
	if c.Namespace == "" {
		c.Namespace = "bmad"
	}
}

// Metrics collects Prometheus metrics for the Agent Pool, Decision Engine,
// Escalation Queue, Workflow Engine, and Validators.
type Metrics struct {
	config   *MetricsConfig
	registry *prometheus.Registry

	agentSpawned        *prometheus.CounterVec
	agentInvocations    *prometheus.CounterVec
	agentInvokeDuration *prometheus.HistogramVec
	agentErrors         *prometheus.CounterVec
	agentActive         *prometheus.GaugeVec
	agentQueueDepth     prometheus.Gauge
	agentCostTotal      *prometheus.CounterVec

	decisionsTotal       *prometheus.CounterVec
	decisionConfidence   *prometheus.HistogramVec
	escalationsRaised    prometheus.Counter
	escalationsResolved  prometheus.Counter
	escalationResolveDur prometheus.Histogram

	workflowStepsTotal  *prometheus.CounterVec
	workflowStepSeconds *prometheus.HistogramVec

	validationsTotal *prometheus.CounterVec
	validationScore  *prometheus.HistogramVec
}

// NewMetrics creates a Metrics instance from configuration. Returns
// (nil, nil) when cfg is nil or disabled, matching the loader's
// opt-in-only metrics pattern.
func NewMetrics(cfg *MetricsConfig) (*Metrics, error) {
	if cfg == nil || !cfg.Enabled {
		return nil, nil
	}
	cfg.SetDefaults()

	m := &Metrics{config: cfg, registry: prometheus.NewRegistry()}
	m.initAgentMetrics()
	m.initDecisionMetrics()
	m.initWorkflowMetrics()
	m.initValidationMetrics()
	return m, nil
}

func (m *Metrics) initAgentMetrics() {
	ns := m.config.Namespace
	m.agentSpawned = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns, Subsystem: "agent", Name: "spawned_total",
		Help: "Total number of agents created by the pool.",
	}, []string{"persona"})

	m.agentInvocations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns, Subsystem: "agent", Name: "invocations_total",
		Help: "Total number of agent invocations.",
	}, []string{"persona"})

	m.agentInvokeDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: ns, Subsystem: "agent", Name: "invoke_duration_seconds",
		Help:    "Agent invocation duration in seconds.",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 12), // 100ms to 204s
	}, []string{"persona"})

	m.agentErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns, Subsystem: "agent", Name: "errors_total",
		Help: "Total number of agent invocation errors.",
	}, []string{"persona"})

	m.agentActive = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: ns, Subsystem: "agent", Name: "active",
		Help: "Number of agents currently Started or Invoked.",
	}, []string{"persona"})

	m.agentQueueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: ns, Subsystem: "agent", Name: "queue_depth",
		Help: "Number of createAgent requests waiting for a free pool slot.",
	})

	m.agentCostTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns, Subsystem: "agent", Name: "cost_dollars_total",
		Help: "Total estimated LLM cost in dollars, by persona.",
	}, []string{"persona"})

	m.registry.MustRegister(m.agentSpawned, m.agentInvocations, m.agentInvokeDuration,
		m.agentErrors, m.agentActive, m.agentQueueDepth, m.agentCostTotal)
}

func (m *Metrics) initDecisionMetrics() {
	ns := m.config.Namespace
	m.decisionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns, Subsystem: "decision", Name: "decisions_total",
		Help: "Total number of decisions made, by source.",
	}, []string{"source"})

	m.decisionConfidence = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: ns, Subsystem: "decision", Name: "confidence",
		Help:    "Confidence score of each decision.",
		Buckets: []float64{0.5, 0.6, 0.7, 0.75, 0.8, 0.9, 0.95, 1.0},
	}, []string{"source"})

	m.escalationsRaised = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: ns, Subsystem: "escalation", Name: "raised_total",
		Help: "Total number of escalations raised.",
	})
	m.escalationsResolved = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: ns, Subsystem: "escalation", Name: "resolved_total",
		Help: "Total number of escalations resolved.",
	})
	m.escalationResolveDur = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: ns, Subsystem: "escalation", Name: "resolution_duration_seconds",
		Help:    "Time from escalation raised to resolved, in seconds.",
		Buckets: prometheus.ExponentialBuckets(1, 4, 10), // 1s to ~4.7 days
	})

	m.registry.MustRegister(m.decisionsTotal, m.decisionConfidence,
		m.escalationsRaised, m.escalationsResolved, m.escalationResolveDur)
}

func (m *Metrics) initWorkflowMetrics() {
	ns := m.config.Namespace
	m.workflowStepsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns, Subsystem: "workflow", Name: "steps_total",
		Help: "Total number of workflow steps executed, by outcome.",
	}, []string{"workflow", "outcome"})

	m.workflowStepSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: ns, Subsystem: "workflow", Name: "step_duration_seconds",
		Help:    "Workflow step execution duration in seconds.",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 14),
	}, []string{"workflow"})

	m.registry.MustRegister(m.workflowStepsTotal, m.workflowStepSeconds)
}

func (m *Metrics) initValidationMetrics() {
	ns := m.config.Namespace
	m.validationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns, Subsystem: "validation", Name: "runs_total",
		Help: "Total number of validator runs, by validator and pass/fail.",
	}, []string{"validator", "passed"})

	m.validationScore = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: ns, Subsystem: "validation", Name: "overall_score",
		Help:    "Overall validation score (0-100), by validator.",
		Buckets: prometheus.LinearBuckets(0, 10, 11),
	}, []string{"validator"})

	m.registry.MustRegister(m.validationsTotal, m.validationScore)
}

// RecordAgentSpawned records an agent being created.
func (m *Metrics) RecordAgentSpawned(persona string) {
	if m == nil {
		return
	}
	m.agentSpawned.WithLabelValues(persona).Inc()
}

// RecordAgentInvocation records one invokeAgent call.
func (m *Metrics) RecordAgentInvocation(persona string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	m.agentInvocations.WithLabelValues(persona).Inc()
	m.agentInvokeDuration.WithLabelValues(persona).Observe(duration.Seconds())
	if err != nil {
		m.agentErrors.WithLabelValues(persona).Inc()
	}
}

// SetAgentActive sets the gauge of currently active agents for persona.
func (m *Metrics) SetAgentActive(persona string, count int) {
	if m == nil {
		return
	}
	m.agentActive.WithLabelValues(persona).Set(float64(count))
}

// SetAgentQueueDepth sets the pending-createAgent queue depth gauge.
func (m *Metrics) SetAgentQueueDepth(depth int) {
	if m == nil {
		return
	}
	m.agentQueueDepth.Set(float64(depth))
}

// AddAgentCost adds cost dollars to the persona's running total.
func (m *Metrics) AddAgentCost(persona string, dollars float64) {
	if m == nil {
		return
	}
	m.agentCostTotal.WithLabelValues(persona).Add(dollars)
}

// RecordDecision records one Decision Engine call.
func (m *Metrics) RecordDecision(source string, confidence float64) {
	if m == nil {
		return
	}
	m.decisionsTotal.WithLabelValues(source).Inc()
	m.decisionConfidence.WithLabelValues(source).Observe(confidence)
}

// RecordEscalationRaised records one escalation being added to the queue.
func (m *Metrics) RecordEscalationRaised() {
	if m == nil {
		return
	}
	m.escalationsRaised.Inc()
}

// RecordEscalationResolved records one escalation being resolved, with its
// resolution latency.
func (m *Metrics) RecordEscalationResolved(resolutionTime time.Duration) {
	if m == nil {
		return
	}
	m.escalationsResolved.Inc()
	m.escalationResolveDur.Observe(resolutionTime.Seconds())
}

// RecordWorkflowStep records one executed workflow step.
func (m *Metrics) RecordWorkflowStep(workflow, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.workflowStepsTotal.WithLabelValues(workflow, outcome).Inc()
	m.workflowStepSeconds.WithLabelValues(workflow).Observe(duration.Seconds())
}

// RecordValidation records one validator run.
func (m *Metrics) RecordValidation(validator string, passed bool, score float64) {
	if m == nil {
		return
	}
	m.validationsTotal.WithLabelValues(validator, boolLabel(passed)).Inc()
	m.validationScore.WithLabelValues(validator).Observe(score)
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

// Handler returns an HTTP handler serving the Prometheus metrics endpoint.
// A disabled/nil Metrics serves 503 rather than panicking, so the CLI can
// always mount the route regardless of config.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying Prometheus registry, or nil if disabled.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}
