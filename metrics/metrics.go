// Package metrics exposes the prometheus collectors of the vote vault
// client. Collectors are registered lazily in the default registry the first
// time an accessor is called, and every method is safe on a nil receiver.
package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type VoteMetrics struct {
	votesCast        *prometheus.CounterVec
	encryptions      *prometheus.CounterVec
	ledgerWrites     *prometheus.HistogramVec
	snapshotFailures prometheus.Counter
	snapshotSize     prometheus.Gauge
}

var (
	voteOnce     sync.Once
	voteRegistry *VoteMetrics
)

// Votes returns the coordinator collectors.
func Votes() *VoteMetrics {
	voteOnce.Do(func() {
		voteRegistry = &VoteMetrics{
			votesCast: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "votevault_votes_cast_total",
				Help: "Vote attempts by connection mode and outcome.",
			}, []string{"mode", "outcome"}),
			encryptions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "votevault_encryptions_total",
				Help: "Encrypted inputs produced, by kind (real or placeholder).",
			}, []string{"kind"}),
			ledgerWrites: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "votevault_ledger_write_seconds",
				Help:    "Latency of ledger writes until mined, by method and result.",
				Buckets: []float64{0.5, 1, 2, 5, 10, 20, 40, 80, 160},
			}, []string{"method", "result"}),
			snapshotFailures: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "votevault_snapshot_failures_total",
				Help: "Proposals skipped during snapshot loads because their read failed.",
			}),
			snapshotSize: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "votevault_snapshot_proposals",
				Help: "Number of proposals in the last loaded snapshot.",
			}),
		}
		prometheus.MustRegister(
			voteRegistry.votesCast,
			voteRegistry.encryptions,
			voteRegistry.ledgerWrites,
			voteRegistry.snapshotFailures,
			voteRegistry.snapshotSize,
		)
	})
	return voteRegistry
}

func (m *VoteMetrics) ObserveVote(mode, outcome string) {
	if m == nil {
		return
	}
	if mode == "" {
		mode = "unknown"
	}
	m.votesCast.WithLabelValues(mode, outcome).Inc()
}

func (m *VoteMetrics) ObserveEncryption(placeholder bool) {
	if m == nil {
		return
	}
	kind := "real"
	if placeholder {
		kind = "placeholder"
	}
	m.encryptions.WithLabelValues(kind).Inc()
}

func (m *VoteMetrics) ObserveLedgerWrite(method string, took time.Duration, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.ledgerWrites.WithLabelValues(method, result).Observe(took.Seconds())
}

func (m *VoteMetrics) ObserveSnapshot(loaded, failed int) {
	if m == nil {
		return
	}
	m.snapshotSize.Set(float64(loaded))
	m.snapshotFailures.Add(float64(failed))
}

type APIMetrics struct {
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	limited  *prometheus.CounterVec
}

var (
	apiOnce     sync.Once
	apiRegistry *APIMetrics
)

// API returns the HTTP API collectors.
func API() *APIMetrics {
	apiOnce.Do(func() {
		apiRegistry = &APIMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "votevault_api_requests_total",
				Help: "HTTP requests served by route, method and status code.",
			}, []string{"route", "method", "code"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "votevault_api_request_seconds",
				Help:    "HTTP request latency by route.",
				Buckets: prometheus.DefBuckets,
			}, []string{"route"}),
			limited: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "votevault_api_rate_limited_total",
				Help: "Requests rejected by the write rate limiter, by route.",
			}, []string{"route"}),
		}
		prometheus.MustRegister(apiRegistry.requests, apiRegistry.latency, apiRegistry.limited)
	})
	return apiRegistry
}

func (m *APIMetrics) ObserveRequest(route, method string, code int, took time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unknown"
	}
	m.requests.WithLabelValues(route, method, strconv.Itoa(code)).Inc()
	m.latency.WithLabelValues(route).Observe(took.Seconds())
}

func (m *APIMetrics) IncRateLimited(route string) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unknown"
	}
	m.limited.WithLabelValues(route).Inc()
}
