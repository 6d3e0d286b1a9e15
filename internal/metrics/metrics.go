// Package metrics exposes the service's Prometheus collectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Fallback stages.
const (
	StageCredentials = "credentials"
	StageGeneration  = "generation"
	StageParse       = "parse"
	StageSpeech      = "speech"
	StageLipSync     = "lipsync"
)

// Metrics groups the collectors recorded by the chat pipeline and HTTP layer.
type Metrics struct {
	registry *prometheus.Registry

	Fallbacks      *prometheus.CounterVec
	VisionTriggers *prometheus.CounterVec
	Replies        prometheus.Counter
	CacheLookups   *prometheus.CounterVec
	Requests       *prometheus.CounterVec
	Duration       *prometheus.HistogramVec
}

// New registers all collectors on a fresh registry, so tests can build as
// many instances as they like.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		Fallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "copassenger",
			Name:      "fallbacks_total",
			Help:      "Replies substituted with a fallback, by pipeline stage.",
		}, []string{"stage"}),
		VisionTriggers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "copassenger",
			Name:      "vision_triggers_total",
			Help:      "Prompts that triggered environment analysis, by outcome.",
		}, []string{"outcome"}),
		Replies: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "copassenger",
			Name:      "replies_total",
			Help:      "Replies returned by the chat pipeline.",
		}),
		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "copassenger",
			Name:      "speech_cache_lookups_total",
			Help:      "Speech cache lookups, by result.",
		}, []string{"result"}),
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "copassenger",
			Name:      "http_requests_total",
			Help:      "HTTP requests, by route and status.",
		}, []string{"method", "route", "status"}),
		Duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "copassenger",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"method", "route"}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.Fallbacks, m.VisionTriggers, m.Replies, m.CacheLookups, m.Requests, m.Duration,
	)
	return m
}

// Fallback records a substitution at stage. Safe on a nil receiver.
func (m *Metrics) Fallback(stage string) {
	if m == nil {
		return
	}
	m.Fallbacks.WithLabelValues(stage).Inc()
}

// Vision records a vision trigger outcome ("described", "unavailable", "error").
func (m *Metrics) Vision(outcome string) {
	if m == nil {
		return
	}
	m.VisionTriggers.WithLabelValues(outcome).Inc()
}

// RepliesProduced adds n to the reply counter.
func (m *Metrics) RepliesProduced(n int) {
	if m == nil {
		return
	}
	m.Replies.Add(float64(n))
}

// Cache records a speech cache lookup ("hit", "miss", "error").
func (m *Metrics) Cache(result string) {
	if m == nil {
		return
	}
	m.CacheLookups.WithLabelValues(result).Inc()
}

// Handler returns an http.Handler for Prometheus scraping.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
