package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "mypgmcp"

// Outcome labels for the executions counter.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Recorder collects gate and gateway metrics on its own registry.
// A nil *Recorder is valid and records nothing.
type Recorder struct {
	registry   *prometheus.Registry
	verdicts   *prometheus.CounterVec
	rewrites   prometheus.Counter
	executions *prometheus.CounterVec
	limitHits  prometheus.Counter
	duration   prometheus.Histogram
	toolCalls  *prometheus.CounterVec
}

// New creates a Recorder with all collectors registered.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		verdicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gate_verdicts_total",
			Help:      "Query gate verdicts by decision and deciding rule.",
		}, []string{"decision", "rule"}),
		rewrites: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gate_rewrites_total",
			Help:      "Queries whose SQL was rewritten to add or cap a LIMIT.",
		}),
		executions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "query_executions_total",
			Help:      "Executed queries by outcome.",
		}, []string{"outcome"}),
		limitHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "query_row_limit_hits_total",
			Help:      "Executions whose row count reached the row cap.",
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "query_duration_seconds",
			Help:      "Time from connection acquisition to release.",
			Buckets:   prometheus.DefBuckets,
		}),
		toolCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_calls_total",
			Help:      "MCP tool calls by tool name and error flag.",
		}, []string{"tool", "is_error"}),
	}
	r.registry.MustRegister(r.verdicts, r.rewrites, r.executions, r.limitHits, r.duration, r.toolCalls)
	return r
}

// Verdict records one gate decision. rule may be empty.
func (r *Recorder) Verdict(allowed bool, rule string) {
	if r == nil {
		return
	}
	decision := "rejected"
	if allowed {
		decision = "allowed"
	}
	if rule == "" {
		rule = "none"
	}
	r.verdicts.WithLabelValues(decision, rule).Inc()
}

// Rewrite records a LIMIT rewrite.
func (r *Recorder) Rewrite() {
	if r == nil {
		return
	}
	r.rewrites.Inc()
}

// Execution records one gateway execution.
func (r *Recorder) Execution(outcome string, hitLimit bool, d time.Duration) {
	if r == nil {
		return
	}
	r.executions.WithLabelValues(outcome).Inc()
	if hitLimit {
		r.limitHits.Inc()
	}
	r.duration.Observe(d.Seconds())
}

// ToolCall records one MCP tool call.
func (r *Recorder) ToolCall(tool string, isError bool) {
	if r == nil {
		return
	}
	flag := "false"
	if isError {
		flag = "true"
	}
	r.toolCalls.WithLabelValues(tool, flag).Inc()
}

// Registry exposes the underlying registry, mainly for tests.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
