// Package metrics exposes chessroom counters on a private Prometheus
// registry.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"chessroom/internal/cache"
)

const namespace = "chessroom"

// Metrics implements game.Observer and records HTTP traffic.
type Metrics struct {
	reg *prometheus.Registry

	requests  *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	search    *prometheus.HistogramVec
	mutations *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status code",
		}, []string{"route", "code"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
		search: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_duration_seconds",
			Help:      "Time to answer a best-move request, split by cache result",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 10),
		}, []string{"cache"}),
		mutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "position_mutations_total",
			Help:      "Changes to the shared position by operation",
		}, []string{"op"}),
	}
	m.reg.MustRegister(
		m.requests,
		m.latency,
		m.search,
		m.mutations,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

// RegisterCache exports the cache counters. They are read from
// Cache.Stats at scrape time.
func (m *Metrics) RegisterCache(c *cache.Cache) {
	counter := func(name, help string, f func(cache.Stats) uint64) prometheus.Collector {
		return prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      name,
			Help:      help,
		}, func() float64 { return float64(f(c.Stats())) })
	}
	m.reg.MustRegister(
		counter("hits_total", "Best-move lookups answered from the cache",
			func(s cache.Stats) uint64 { return s.Hits }),
		counter("misses_total", "Best-move lookups that ran a search",
			func(s cache.Stats) uint64 { return s.Misses }),
		counter("stores_total", "Search results written to the cache",
			func(s cache.Stats) uint64 { return s.Stores }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "entries",
			Help:      "Occupied cache slots",
		}, func() float64 { return float64(c.Len()) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "capacity",
			Help:      "Fixed number of cache slots",
		}, func() float64 { return float64(c.Capacity()) }),
	)
}

func (m *Metrics) Mutation(op string) {
	m.mutations.WithLabelValues(op).Inc()
}

func (m *Metrics) BestMove(hit bool, took time.Duration) {
	label := "miss"
	if hit {
		label = "hit"
	}
	m.search.WithLabelValues(label).Observe(took.Seconds())
}

// ObserveRequest records one finished HTTP request.
func (m *Metrics) ObserveRequest(route string, code int, took time.Duration) {
	m.requests.WithLabelValues(route, strconv.Itoa(code)).Inc()
	m.latency.WithLabelValues(route).Observe(took.Seconds())
}
