// Package metrics exposes the agent's Prometheus collectors: HTTP traffic,
// LLM rounds, tool invocations, routing decisions and inter-agent relays.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the collectors registered for one agent process. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests *prometheus.CounterVec
	httpLatency  *prometheus.HistogramVec
	llmRounds    *prometheus.CounterVec
	llmLatency   *prometheus.HistogramVec
	toolCalls    *prometheus.CounterVec
	answers      *prometheus.CounterVec
	routes       *prometheus.CounterVec
	relays       *prometheus.CounterVec
}

// New registers the collectors on a fresh registry. The agent name and role
// are attached as constant labels.
func New(agent, role string) *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	constLabels := prometheus.Labels{"agent": agent, "role": role}

	m := &Metrics{
		registry: registry,
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "eventverse_http_requests_total",
			Help:        "HTTP requests served, by handler, method and status code.",
			ConstLabels: constLabels,
		}, []string{"handler", "method", "code"}),
		httpLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "eventverse_http_request_duration_seconds",
			Help:        "HTTP request latency.",
			ConstLabels: constLabels,
			Buckets:     []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"handler", "method"}),
		llmRounds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "eventverse_llm_rounds_total",
			Help:        "LLM completion rounds, by round number and outcome.",
			ConstLabels: constLabels,
		}, []string{"round", "outcome"}),
		llmLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "eventverse_llm_round_duration_seconds",
			Help:        "LLM completion latency per round.",
			ConstLabels: constLabels,
			Buckets:     []float64{0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"round"}),
		toolCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "eventverse_tool_invocations_total",
			Help:        "Backend tool invocations, by tool and status.",
			ConstLabels: constLabels,
		}, []string{"tool", "status"}),
		answers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "eventverse_answers_total",
			Help:        "Completed queries, by outcome.",
			ConstLabels: constLabels,
		}, []string{"outcome"}),
		routes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "eventverse_routes_total",
			Help:        "Coordinator routing decisions, by target.",
			ConstLabels: constLabels,
		}, []string{"target"}),
		relays: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "eventverse_relays_total",
			Help:        "Inter-agent request/reply exchanges, by target and delivery status.",
			ConstLabels: constLabels,
		}, []string{"target", "status"}),
	}

	registry.MustRegister(
		m.httpRequests,
		m.httpLatency,
		m.llmRounds,
		m.llmLatency,
		m.toolCalls,
		m.answers,
		m.routes,
		m.relays,
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveHTTPRequest records metrics about an HTTP request lifecycle.
func (m *Metrics) ObserveHTTPRequest(handler, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(handler, method, strconv.Itoa(status)).Inc()
	m.httpLatency.WithLabelValues(handler, method).Observe(duration.Seconds())
}

// ObserveLLMRound records one completion round.
func (m *Metrics) ObserveLLMRound(round int, err error, duration time.Duration) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	label := strconv.Itoa(round)
	m.llmRounds.WithLabelValues(label, outcome).Inc()
	m.llmLatency.WithLabelValues(label).Observe(duration.Seconds())
}

// ObserveTool records one tool invocation.
func (m *Metrics) ObserveTool(tool, status string) {
	if m != nil {
		m.toolCalls.WithLabelValues(tool, status).Inc()
	}
}

// ObserveAnswer records the outcome of a query.
func (m *Metrics) ObserveAnswer(outcome string) {
	if m != nil {
		m.answers.WithLabelValues(outcome).Inc()
	}
}

// ObserveRoute records a routing decision.
func (m *Metrics) ObserveRoute(target string) {
	if m != nil {
		m.routes.WithLabelValues(target).Inc()
	}
}

// ObserveRelay records the delivery status of a forwarded request.
func (m *Metrics) ObserveRelay(target, status string) {
	if m != nil {
		m.relays.WithLabelValues(target, status).Inc()
	}
}

// Handler exposes the metrics in Prometheus text exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
