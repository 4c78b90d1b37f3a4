// Package metrics exposes queue and cache counters to Prometheus.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "task_queue"

// Metrics owns a private registry so tests can build as many as they like.
type Metrics struct {
	Registry *prometheus.Registry

	TasksEnqueued    prometheus.Counter
	TasksClaimed     prometheus.Counter
	ClaimsEmpty      prometheus.Counter
	TasksCompleted   prometheus.Counter
	StaleCompletions prometheus.Counter
	TasksTimedOut    prometheus.Counter
	NotifyFailures   prometheus.Counter
	Pending          prometheus.Gauge
	Processing       prometheus.Gauge

	// BackupDeleteFailures counts acknowledged tasks whose durable record survived and
	// will be delivered again after a restart.
	BackupDeleteFailures prometheus.Counter

	CacheHits          prometheus.Counter
	CacheMisses        prometheus.Counter
	FetchFailures      prometheus.Counter
	CacheUsedEvictions prometheus.Counter
	CacheEntries       prometheus.Gauge

	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec
}

// New creates and registers every collector.
func New() *Metrics {
	counter := func(subsystem, name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{Namespace: namespace, Subsystem: subsystem, Name: name, Help: help})
	}
	gauge := func(subsystem, name, help string) prometheus.Gauge {
		return prometheus.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Subsystem: subsystem, Name: name, Help: help})
	}

	m := &Metrics{
		Registry: prometheus.NewRegistry(),

		TasksEnqueued:    counter("queue", "enqueued_total", "Tasks accepted by add_task."),
		TasksClaimed:     counter("queue", "claimed_total", "Tasks handed to a worker."),
		ClaimsEmpty:      counter("queue", "claims_empty_total", "get_task calls that waited without a task."),
		TasksCompleted:   counter("queue", "completed_total", "Tasks acknowledged by a worker."),
		StaleCompletions: counter("queue", "stale_completions_total", "Completions with an unknown or expired id."),
		TasksTimedOut:    counter("queue", "timed_out_total", "Claims requeued after the execution timeout."),
		NotifyFailures:   counter("queue", "notify_failures_total", "Completions the collector did not accept."),
		Pending:          gauge("queue", "pending", "Tasks waiting to be claimed."),
		Processing:       gauge("queue", "processing", "Claimed tasks not yet acknowledged."),

		BackupDeleteFailures: counter("queue", "backup_delete_failures_total", "Acknowledged tasks whose durable record could not be deleted."),

		CacheHits:          counter("cache", "hits_total", "Payload lookups served from the cache."),
		CacheMisses:        counter("cache", "misses_total", "Payload lookups that went to the fetch source."),
		FetchFailures:      counter("cache", "fetch_failures_total", "Fetches that returned an error."),
		CacheUsedEvictions: counter("cache", "used_evictions_total", "Entries evicted while still in use."),
		CacheEntries:       gauge("cache", "entries", "Entries currently cached."),

		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "http", Name: "requests_total", Help: "HTTP requests by route and status.",
		}, []string{"method", "route", "status"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "http", Name: "request_duration_seconds", Help: "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	m.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.TasksEnqueued, m.TasksClaimed, m.ClaimsEmpty, m.TasksCompleted, m.StaleCompletions,
		m.TasksTimedOut, m.NotifyFailures, m.BackupDeleteFailures, m.Pending, m.Processing,
		m.CacheHits, m.CacheMisses, m.FetchFailures, m.CacheUsedEvictions, m.CacheEntries,
		m.HTTPRequests, m.HTTPDuration,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}

// CacheHit implements cache.Observer.
func (m *Metrics) CacheHit() { m.CacheHits.Inc() }

// CacheMiss implements cache.Observer.
func (m *Metrics) CacheMiss() { m.CacheMisses.Inc() }

// FetchFailed implements cache.Observer.
func (m *Metrics) FetchFailed() { m.FetchFailures.Inc() }

// ObserveQueue records the queue depth gauges.
func (m *Metrics) ObserveQueue(pending, processing int) {
	m.Pending.Set(float64(pending))
	m.Processing.Set(float64(processing))
}

// Middleware records request counts and latency per matched route.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.HTTPRequests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		m.HTTPDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}
