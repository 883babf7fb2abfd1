// Package metrics defines the counters the client emits and a Prometheus
// implementation of them. Components depend on the small interfaces below;
// Noop satisfies all of them for tests and for consumers that do not scrape.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RequestMetrics records API requests executed by the request executor.
type RequestMetrics interface {
	ObserveRequest(method, status string, durationSeconds float64)
}

// RefreshMetrics records token refresh outcomes. A single-flight refresh
// shared by many callers counts once.
type RefreshMetrics interface {
	IncRefresh(status string)
}

// DownloadMetrics records download lifecycle events.
type DownloadMetrics interface {
	IncDownloadsStarted()
	IncDownloadsFinished(state string)
	AddBytesPersisted(n int)
}

// Noop implements every metrics interface without emitting anything.
type Noop struct{}

func (Noop) ObserveRequest(string, string, float64) {}
func (Noop) IncRefresh(string)                      {}
func (Noop) IncDownloadsStarted()                   {}
func (Noop) IncDownloadsFinished(string)            {}
func (Noop) AddBytesPersisted(int)                  {}

// Prom implements every metrics interface backed by Prometheus collectors.
type Prom struct {
	requests        *prometheus.CounterVec
	latency         *prometheus.HistogramVec
	refreshes       *prometheus.CounterVec
	downloadsStart  prometheus.Counter
	downloadsFinish *prometheus.CounterVec
	bytesPersisted  prometheus.Counter
	once            sync.Once
}

// NewProm creates the collectors under namespace and registers them on reg.
// A nil reg registers on prometheus.DefaultRegisterer.
func NewProm(namespace string, reg prometheus.Registerer) *Prom {
	p := &Prom{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "api_requests_total",
			Help:      "API requests by method and status",
		}, []string{"method", "status"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "api_request_duration_seconds",
			Help:      "API request latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "token_refreshes_total",
			Help:      "Access token refreshes by outcome",
		}, []string{"status"}),
		downloadsStart: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "downloads_started_total",
			Help:      "Track downloads started",
		}),
		downloadsFinish: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "downloads_finished_total",
			Help:      "Track downloads by terminal state",
		}, []string{"state"}),
		bytesPersisted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "download_bytes_persisted_total",
			Help:      "Payload bytes written to the artifact store",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	p.register(reg)
	return p
}

func (p *Prom) register(reg prometheus.Registerer) {
	p.once.Do(func() {
		reg.MustRegister(p.requests, p.latency, p.refreshes, p.downloadsStart, p.downloadsFinish, p.bytesPersisted)
	})
}

func (p *Prom) ObserveRequest(method, status string, durationSeconds float64) {
	p.requests.WithLabelValues(method, status).Inc()
	p.latency.WithLabelValues(method).Observe(durationSeconds)
}

func (p *Prom) IncRefresh(status string) {
	p.refreshes.WithLabelValues(status).Inc()
}

func (p *Prom) IncDownloadsStarted() {
	p.downloadsStart.Inc()
}

func (p *Prom) IncDownloadsFinished(state string) {
	p.downloadsFinish.WithLabelValues(state).Inc()
}

func (p *Prom) AddBytesPersisted(n int) {
	p.bytesPersisted.Add(float64(n))
}

// Handler returns an HTTP handler for /metrics on the default gatherer.
func Handler() http.Handler {
	return promhttp.Handler()
}
