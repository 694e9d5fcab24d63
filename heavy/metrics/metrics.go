// Package metrics exposes Prometheus instrumentation for model calls and runs.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups every collector the application exports.
type Metrics struct {
	ModelCalls   *prometheus.CounterVec
	ModelLatency *prometheus.HistogramVec
	ModelTokens  *prometheus.CounterVec
	CacheHits    prometheus.Counter

	Runs        *prometheus.CounterVec
	RunDuration *prometheus.HistogramVec
	Votes       *prometheus.CounterVec
	VoteEntropy prometheus.Histogram
}

// New registers all collectors with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ModelCalls: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "heavy_model_calls_total",
				Help: "Total number of remote model calls",
			},
			[]string{"provider", "model", "outcome"},
		),
		ModelLatency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "heavy_model_call_duration_seconds",
				Help:    "Remote model call latency in seconds",
				Buckets: []float64{0.5, 1, 2, 5, 10, 20, 40, 80, 160},
			},
			[]string{"provider", "model"},
		),
		ModelTokens: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "heavy_model_tokens_total",
				Help: "Tokens reported by the remote model",
			},
			[]string{"model", "kind"},
		),
		CacheHits: f.NewCounter(
			prometheus.CounterOpts{
				Name: "heavy_model_cache_hits_total",
				Help: "Model calls served from the response cache",
			},
		),
		Runs: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "heavy_runs_total",
				Help: "Orchestration runs by mode and final status",
			},
			[]string{"mode", "status"},
		),
		RunDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "heavy_run_duration_seconds",
				Help:    "Wall time of a full orchestration run",
				Buckets: prometheus.ExponentialBuckets(1, 2, 10),
			},
			[]string{"mode"},
		),
		Votes: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "heavy_votes_total",
				Help: "Voter rounds by outcome (counted or discarded)",
			},
			[]string{"outcome"},
		),
		VoteEntropy: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "heavy_vote_entropy_nats",
				Help:    "Shannon entropy of the final vote distribution",
				Buckets: prometheus.LinearBuckets(0, 0.25, 12),
			},
		),
	}
}

// ObserveModelCall records one remote call.
func (m *Metrics) ObserveModelCall(provider, model string, err error, d time.Duration) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.ModelCalls.WithLabelValues(provider, model, outcome).Inc()
	m.ModelLatency.WithLabelValues(provider, model).Observe(d.Seconds())
}

// ObserveTokens records token usage reported by a backend.
func (m *Metrics) ObserveTokens(model string, prompt, completion int) {
	if m == nil {
		return
	}
	m.ModelTokens.WithLabelValues(model, "prompt").Add(float64(prompt))
	m.ModelTokens.WithLabelValues(model, "completion").Add(float64(completion))
}

// ObserveCacheHit counts a cached model response.
func (m *Metrics) ObserveCacheHit() {
	if m == nil {
		return
	}
	m.CacheHits.Inc()
}

// ObserveRun records a finished or aborted run.
func (m *Metrics) ObserveRun(mode string, err error, d time.Duration) {
	if m == nil {
		return
	}
	status := "done"
	if err != nil {
		status = "aborted"
	}
	m.Runs.WithLabelValues(mode, status).Inc()
	m.RunDuration.WithLabelValues(mode).Observe(d.Seconds())
}

// ObserveVotes records the outcome of the voter rounds of one aggregation.
func (m *Metrics) ObserveVotes(counted, discarded int, entropy float64) {
	if m == nil {
		return
	}
	m.Votes.WithLabelValues("counted").Add(float64(counted))
	m.Votes.WithLabelValues("discarded").Add(float64(discarded))
	m.VoteEntropy.Observe(entropy)
}
