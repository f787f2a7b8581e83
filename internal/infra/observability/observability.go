// Package observability provides Prometheus metrics and lightweight span
// tracking for the generation workflow. Spans cover the run lifecycle
// (validate → debit → generate → process → save) and are stored in-memory
// for inspection; metrics are exported at /metrics.
package observability

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ─── Trace Spans ────────────────────────────────────────────────────────────

// SpanStatus indicates success/failure.
type SpanStatus int

const (
	SpanOK SpanStatus = iota
	SpanError
)

// Span represents one step of a generation run.
type Span struct {
	TraceID   string            `json:"trace_id"`
	SpanID    string            `json:"span_id"`
	ParentID  string            `json:"parent_id,omitempty"`
	Operation string            `json:"operation"`
	StartTime time.Time         `json:"start_time"`
	EndTime   time.Time         `json:"end_time,omitempty"`
	Duration  time.Duration     `json:"duration,omitempty"`
	Status    SpanStatus        `json:"status"`
	Attrs     map[string]string `json:"attrs,omitempty"`
}

// Tracer provides lightweight span tracking without an external SDK.
// Spans live in a bounded in-memory ring buffer.
type Tracer struct {
	mu       sync.Mutex
	spans    []Span
	maxSpans int
	enabled  bool
}

// TracerConfig configures the tracer.
type TracerConfig struct {
	Enabled  bool
	MaxSpans int // ring buffer size (default 10_000)
}

// DefaultTracerConfig returns production defaults.
func DefaultTracerConfig() TracerConfig {
	return TracerConfig{Enabled: true, MaxSpans: 10_000}
}

// NewTracer creates a new tracer.
func NewTracer(cfg TracerConfig) *Tracer {
	if cfg.MaxSpans <= 0 {
		cfg.MaxSpans = 10_000
	}
	return &Tracer{
		spans:    make([]Span, 0, cfg.MaxSpans),
		maxSpans: cfg.MaxSpans,
		enabled:  cfg.Enabled,
	}
}

// StartSpan begins a span for the given operation. Caller must call EndSpan.
func (t *Tracer) StartSpan(ctx context.Context, operation string, attrs map[string]string) *Span {
	if !t.enabled {
		return &Span{Operation: operation}
	}
	return &Span{
		TraceID:   traceIDFromContext(ctx),
		SpanID:    generateID(),
		Operation: operation,
		StartTime: time.Now(),
		Status:    SpanOK,
		Attrs:     attrs,
	}
}

// EndSpan completes a span and records it.
func (t *Tracer) EndSpan(span *Span, err error) {
	if !t.enabled || span == nil {
		return
	}
	span.EndTime = time.Now()
	span.Duration = span.EndTime.Sub(span.StartTime)
	if err != nil {
		span.Status = SpanError
		if span.Attrs == nil {
			span.Attrs = make(map[string]string)
		}
		span.Attrs["error"] = err.Error()
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.spans) >= t.maxSpans {
		t.spans = t.spans[1:]
	}
	t.spans = append(t.spans, *span)
}

// Spans returns a copy of the most recent spans.
func (t *Tracer) Spans(limit int) []Span {
	t.mu.Lock()
	defer t.mu.Unlock()
	if limit <= 0 || limit > len(t.spans) {
		limit = len(t.spans)
	}
	start := len(t.spans) - limit
	out := make([]Span, limit)
	copy(out, t.spans[start:])
	return out
}

// SpanCount returns the number of recorded spans.
func (t *Tracer) SpanCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.spans)
}

// ─── Context Helpers ────────────────────────────────────────────────────────

type contextKey string

const traceIDKey contextKey = "ideaforge-trace-id"

// WithTraceID returns a context carrying the run's trace ID.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

func traceIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(traceIDKey).(string); ok {
		return v
	}
	return generateID()
}

var spanCounter atomic.Int64

// generateID creates a short unique ID (not cryptographically secure — fine for tracing).
func generateID() string {
	n := spanCounter.Add(1)
	return fmt.Sprintf("%s-%d", time.Now().Format("20060102150405"), n)
}

// ─── Generation Metrics ─────────────────────────────────────────────────────

// GenerationRuns counts orchestration runs by feature and terminal status.
var GenerationRuns = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "ideaforge",
	Subsystem: "generation",
	Name:      "runs_total",
	Help:      "Total generation runs by feature and terminal status.",
}, []string{"feature", "status"})

// GenerationDuration tracks end-to-end run duration.
var GenerationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "ideaforge",
	Subsystem: "generation",
	Name:      "duration_seconds",
	Help:      "End-to-end generation run duration in seconds.",
	Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
}, []string{"feature"})

// GenerationAttempts tracks how many remote attempts a run needed.
var GenerationAttempts = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "ideaforge",
	Subsystem: "generation",
	Name:      "attempts",
	Help:      "Remote endpoint attempts per run.",
	Buckets:   []float64{1, 2, 3, 4, 5},
}, []string{"feature"})

// GenerationRetries counts individual retry events.
var GenerationRetries = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "ideaforge",
	Subsystem: "generation",
	Name:      "retries_total",
	Help:      "Total generation endpoint retries.",
}, []string{"feature"})

// RunsInFlight tracks currently running orchestrations.
var RunsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "ideaforge",
	Subsystem: "generation",
	Name:      "runs_in_flight",
	Help:      "Number of generation runs currently in flight.",
})

// ─── Credit Metrics ─────────────────────────────────────────────────────────

// CreditsDebited counts credits debited by feature.
var CreditsDebited = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "ideaforge",
	Subsystem: "credits",
	Name:      "debited_total",
	Help:      "Total credits debited by feature.",
}, []string{"feature"})

// DebitRejections counts debits rejected for insufficient balance.
var DebitRejections = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "ideaforge",
	Subsystem: "credits",
	Name:      "debit_rejections_total",
	Help:      "Total debit attempts rejected for insufficient credits.",
})

// CreditsGranted counts credits granted (top-ups and manual refunds).
var CreditsGranted = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "ideaforge",
	Subsystem: "credits",
	Name:      "granted_total",
	Help:      "Total credits granted by transaction type.",
}, []string{"tx_type"})

// ─── Persistence Metrics ────────────────────────────────────────────────────

// ArtifactSaveFailures counts best-effort persistence failures. These never
// fail the run; the counter is how they stay visible.
var ArtifactSaveFailures = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "ideaforge",
	Subsystem: "artifacts",
	Name:      "save_failures_total",
	Help:      "Total artifact persistence failures (non-fatal).",
})
