// Package metrics exposes Prometheus collectors for the desk.
package metrics

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every collector registered by the desk.
type Metrics struct {
	TicketTransitions *prometheus.CounterVec
	TicketsCreated    prometheus.Counter
	Reviews           *prometheus.CounterVec

	AgentRuns        *prometheus.CounterVec
	AgentRunDuration *prometheus.HistogramVec
	ToolCalls        *prometheus.CounterVec
	ModelCalls       *prometheus.CounterVec
	ModelTokens      *prometheus.CounterVec

	EventsPublished *prometheus.CounterVec

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

var (
	metricsOnce   sync.Once
	sharedMetrics *Metrics
)

// New returns the process wide collectors, registering them on first use.
func New() *Metrics {
	metricsOnce.Do(func() {
		sharedMetrics = &Metrics{
			TicketTransitions: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "caredesk_ticket_transitions_total",
					Help: "Ticket status transitions",
				},
				[]string{"from", "to"},
			),
			TicketsCreated: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "caredesk_tickets_created_total",
					Help: "Tickets created",
				},
			),
			Reviews: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "caredesk_reviews_total",
					Help: "Human reviews by verdict",
				},
				[]string{"verdict"},
			),
			AgentRuns: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "caredesk_agent_runs_total",
					Help: "Agent runs by kind and outcome",
				},
				[]string{"kind", "result"},
			),
			AgentRunDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "caredesk_agent_run_duration_seconds",
					Help:    "Agent run duration in seconds",
					Buckets: prometheus.ExponentialBuckets(0.25, 2, 10),
				},
				[]string{"kind"},
			),
			ToolCalls: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "caredesk_tool_calls_total",
					Help: "Tool invocations by outcome",
				},
				[]string{"tool", "result"},
			),
			ModelCalls: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "caredesk_model_calls_total",
					Help: "LLM requests by outcome",
				},
				[]string{"model", "result"},
			),
			ModelTokens: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "caredesk_model_tokens_total",
					Help: "LLM tokens consumed",
				},
				[]string{"model"},
			),
			EventsPublished: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "caredesk_events_published_total",
					Help: "Ticket events published",
				},
				[]string{"type"},
			),
			HTTPRequestsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "caredesk_http_requests_total",
					Help: "HTTP requests",
				},
				[]string{"method", "path", "status"},
			),
			HTTPRequestDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "caredesk_http_request_duration_seconds",
					Help:    "HTTP request duration in seconds",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"method", "path"},
			),
		}
	})

	return sharedMetrics
}

func result(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

// The Record methods are no-ops on a nil *Metrics.

// RecordTransition counts a ticket status change.
func (m *Metrics) RecordTransition(from, to string) {
	if m == nil {
		return
	}
	m.TicketTransitions.WithLabelValues(from, to).Inc()
}

// RecordReview counts a human verdict.
func (m *Metrics) RecordReview(approved bool) {
	if m == nil {
		return
	}
	verdict := "rejected"
	if approved {
		verdict = "approved"
	}
	m.Reviews.WithLabelValues(verdict).Inc()
}

// RecordRun records an agent run. kind is "run", "resume" or "draft";
// outcome is "completed", "interrupted" or "error".
func (m *Metrics) RecordRun(kind, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.AgentRuns.WithLabelValues(kind, outcome).Inc()
	m.AgentRunDuration.WithLabelValues(kind).Observe(d.Seconds())
}

// RecordToolCall counts a tool invocation.
func (m *Metrics) RecordToolCall(tool string, success bool) {
	if m == nil {
		return
	}
	m.ToolCalls.WithLabelValues(tool, result(success)).Inc()
}

// RecordModelCall counts an LLM request and its token usage.
func (m *Metrics) RecordModelCall(model string, success bool, tokens int) {
	if m == nil {
		return
	}
	m.ModelCalls.WithLabelValues(model, result(success)).Inc()
	if tokens > 0 {
		m.ModelTokens.WithLabelValues(model).Add(float64(tokens))
	}
}

// RecordEvent counts a published ticket event.
func (m *Metrics) RecordEvent(eventType string) {
	if m == nil {
		return
	}
	m.EventsPublished.WithLabelValues(eventType).Inc()
}

// RecordHTTPRequest records an HTTP request.
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration float64) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration)
}

// Handler serves the Prometheus exposition format.
func Handler() http.Handler { return promhttp.Handler() }

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (r *statusRecorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }

// Hijack supports websocket upgrades behind the middleware.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("metrics: response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

// Middleware records request counts and latency labelled by route pattern.
// It must wrap the ServeMux directly so the matched pattern is visible.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		path := r.Pattern
		if path == "" {
			path = "unmatched"
		}

		m.RecordHTTPRequest(r.Method, path, strconv.Itoa(rec.status), time.Since(start).Seconds())
	})
}
